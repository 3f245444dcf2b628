package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
teamspeak:
  host: ts.example.com
  password: secret
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ts.example.com:10011", cfg.TeamSpeak.Address())
	assert.Equal(t, "serveradmin", cfg.TeamSpeak.Username)
	assert.Equal(t, 1, cfg.TeamSpeak.ServerID)
	assert.Equal(t, "!", cfg.Bot.CommandPrefix)
	assert.Equal(t, 10*time.Millisecond, cfg.Bot.TickInterval)
	assert.Equal(t, "data/querybot.db", cfg.Storage.Path)
	assert.False(t, cfg.IPC.Enabled)
	assert.False(t, cfg.Discord.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Discord.Display.UpdateInterval)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
teamspeak:
  host: 10.0.0.2
  query_port: 10022
  password: secret
  nickname: Helper
bot:
  command_prefix: "."
  channel_text: true
  timers:
    client_info: 2s
    heartbeat: 2m
access_levels:
  default: 1
  groups:
    Admin: 10
    "6": 20
ipc:
  enabled: true
  socket_path: /tmp/bot.sock
  queue_size: 8
discord:
  enabled: true
  token: abc
  channel_id: "123"
  display:
    update_interval: 1m
    show_empty_channels: true
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.2:10022", cfg.TeamSpeak.Address())
	assert.Equal(t, "Helper", cfg.TeamSpeak.Nickname)
	assert.True(t, cfg.Bot.ChannelText)
	assert.Equal(t, 2*time.Second, cfg.Bot.Timers.ClientInfo)
	assert.Equal(t, 2*time.Minute, cfg.Bot.Timers.Heartbeat)
	assert.Zero(t, cfg.Bot.Timers.Sweep)
	assert.Equal(t, map[string]int{"Admin": 10, "6": 20}, cfg.AccessLevels.Groups)
	assert.Equal(t, 1, cfg.AccessLevels.Default)
	assert.Equal(t, 8, cfg.IPC.QueueSize)
	assert.Equal(t, time.Minute, cfg.Discord.Display.UpdateInterval)
	assert.True(t, cfg.Discord.Display.ShowEmptyChannels)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = Load(writeConfig(t, "teamspeak: [unterminated"))
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.TeamSpeak.Host = "localhost"
		cfg.TeamSpeak.Password = "secret"

		return cfg
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing host", func(c *Config) { c.TeamSpeak.Host = "" }, "teamspeak.host"},
		{"missing password", func(c *Config) { c.TeamSpeak.Password = "" }, "teamspeak.password"},
		{"bad port", func(c *Config) { c.TeamSpeak.QueryPort = 70000 }, "query_port"},
		{"bad server id", func(c *Config) { c.TeamSpeak.ServerID = 0 }, "server_id"},
		{"empty prefix", func(c *Config) { c.Bot.CommandPrefix = "" }, "command_prefix"},
		{"zero tick", func(c *Config) { c.Bot.TickInterval = 0 }, "tick_interval"},
		{"channel text without nickname", func(c *Config) {
			c.Bot.ChannelText = true
			c.TeamSpeak.Nickname = ""
		}, "teamspeak.nickname"},
		{"no storage", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"ipc without socket", func(c *Config) {
			c.IPC.Enabled = true
			c.IPC.SocketPath = ""
		}, "ipc.socket_path"},
		{"ipc without queue", func(c *Config) {
			c.IPC.Enabled = true
			c.IPC.QueueSize = 0
		}, "ipc.queue_size"},
		{"discord without token", func(c *Config) {
			c.Discord.Enabled = true
			c.Discord.ChannelID = "1"
		}, "discord.token"},
		{"discord without channel", func(c *Config) {
			c.Discord.Enabled = true
			c.Discord.Token = "abc"
		}, "discord.channel_id"},
		{"discord too fast", func(c *Config) {
			c.Discord.Enabled = true
			c.Discord.Token = "abc"
			c.Discord.ChannelID = "1"
			c.Discord.Display.UpdateInterval = time.Second
		}, "update_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
