// Package config handles loading and validation of application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration.
type Config struct {
	TeamSpeak    TeamSpeakConfig    `yaml:"teamspeak"`
	Bot          BotConfig          `yaml:"bot"`
	AccessLevels AccessLevelsConfig `yaml:"access_levels"`
	Storage      StorageConfig      `yaml:"storage"`
	IPC          IPCConfig          `yaml:"ipc"`
	Discord      DiscordConfig      `yaml:"discord"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// TeamSpeakConfig holds TeamSpeak ServerQuery connection settings.
type TeamSpeakConfig struct {
	Host        string        `yaml:"host"`
	QueryPort   int           `yaml:"query_port"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	ServerID    int           `yaml:"server_id"`
	Nickname    string        `yaml:"nickname"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// Address returns host:port of the query interface.
func (c TeamSpeakConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.QueryPort)
}

// BotConfig holds engine behaviour settings.
type BotConfig struct {
	CommandPrefix        string        `yaml:"command_prefix"`
	ChannelText          bool          `yaml:"channel_text"` // spawn slaves observing channel chat
	TickInterval         time.Duration `yaml:"tick_interval"`
	ReconnectMaxInterval time.Duration `yaml:"reconnect_max_interval"`
	Timers               TimersConfig  `yaml:"timers"`
}

// TimersConfig overrides the periodic refresh intervals. Zero keeps the
// built-in default.
type TimersConfig struct {
	ClientInfo   time.Duration `yaml:"client_info"`
	ServerGroups time.Duration `yaml:"server_groups"`
	AccessLevels time.Duration `yaml:"access_levels"`
	Heartbeat    time.Duration `yaml:"heartbeat"`
	Sweep        time.Duration `yaml:"sweep"`
	ChannelList  time.Duration `yaml:"channel_list"`
	ServerInfo   time.Duration `yaml:"server_info"`
	Slaves       time.Duration `yaml:"slaves"`
}

// AccessLevelsConfig maps servergroups to access levels.
type AccessLevelsConfig struct {
	Default int            `yaml:"default"`
	Groups  map[string]int `yaml:"groups"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// IPCConfig holds the local "client said" socket settings.
type IPCConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SocketPath string `yaml:"socket_path"`
	QueueSize  int    `yaml:"queue_size"`
}

// DiscordConfig holds the optional Discord status relay settings.
type DiscordConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Token     string        `yaml:"token"`
	ChannelID string        `yaml:"channel_id"`
	Display   DisplayConfig `yaml:"display"`
}

// DisplayConfig holds display and formatting options.
type DisplayConfig struct {
	ShowEmptyChannels bool          `yaml:"show_empty_channels"`
	UpdateInterval    time.Duration `yaml:"update_interval"`
	ServerInfo        ServerInfo    `yaml:"server_info"`
	CustomFooter      string        `yaml:"custom_footer"`
	ChannelNameFormat string        `yaml:"channel_name_format"` // e.g., "TS: {online}/{max}" - updates channel name
	ThumbnailURL      string        `yaml:"thumbnail_url"`
}

// ServerInfo holds optional server connection info to display.
type ServerInfo struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns a configuration with every optional field set.
func Default() *Config {
	return &Config{
		TeamSpeak: TeamSpeakConfig{
			QueryPort:   10011,
			Username:    "serveradmin",
			ServerID:    1,
			Nickname:    "QueryBot",
			DialTimeout: 10 * time.Second,
		},
		Bot: BotConfig{
			CommandPrefix:        "!",
			TickInterval:         10 * time.Millisecond,
			ReconnectMaxInterval: time.Minute,
		},
		Storage: StorageConfig{
			Path: "data/querybot.db",
		},
		IPC: IPCConfig{
			SocketPath: "data/querybot.sock",
			QueueSize:  256,
		},
		Discord: DiscordConfig{
			Display: DisplayConfig{
				UpdateInterval: 30 * time.Second,
			},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads and parses the configuration from the given file path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.TeamSpeak.Host == "" {
		return errors.New("teamspeak.host is required")
	}

	if c.TeamSpeak.Password == "" {
		return errors.New("teamspeak.password is required")
	}

	if c.TeamSpeak.QueryPort <= 0 || c.TeamSpeak.QueryPort > 65535 {
		return fmt.Errorf("teamspeak.query_port %d is out of range", c.TeamSpeak.QueryPort)
	}

	if c.TeamSpeak.ServerID <= 0 {
		return errors.New("teamspeak.server_id must be positive")
	}

	if c.Bot.CommandPrefix == "" {
		return errors.New("bot.command_prefix is required")
	}

	if c.Bot.TickInterval <= 0 {
		return errors.New("bot.tick_interval must be positive")
	}

	if c.Bot.ChannelText && c.TeamSpeak.Nickname == "" {
		return errors.New("teamspeak.nickname is required when bot.channel_text is enabled")
	}

	if c.Storage.Path == "" {
		return errors.New("storage.path is required")
	}

	if c.IPC.Enabled {
		if c.IPC.SocketPath == "" {
			return errors.New("ipc.socket_path is required when ipc is enabled")
		}

		if c.IPC.QueueSize <= 0 {
			return errors.New("ipc.queue_size must be positive")
		}
	}

	if c.Discord.Enabled {
		if c.Discord.Token == "" {
			return errors.New("discord.token is required")
		}

		if c.Discord.ChannelID == "" {
			return errors.New("discord.channel_id is required")
		}

		if c.Discord.Display.UpdateInterval < 5*time.Second {
			return errors.New("discord.display.update_interval must be at least 5s")
		}
	}

	return nil
}
