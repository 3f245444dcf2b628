// Package main provides the entry point for ts-querybot.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/samcm/ts-querybot/internal/bot"
	"github.com/samcm/ts-querybot/internal/config"
	"github.com/samcm/ts-querybot/internal/discord"
	"github.com/samcm/ts-querybot/internal/state"
	"github.com/samcm/ts-querybot/internal/teamspeak"
)

const boxWidth = 62

var (
	configPath string
	dryRun     bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ts-querybot",
	Short: "Run a TeamSpeak ServerQuery bot",
	Long:  "A ServerQuery bot that tracks clients and channels of a TeamSpeak 3 server, answers chat commands and optionally mirrors the server status to Discord.",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (required)")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Fetch the server state once and print it, without starting the bot")

	rootCmd.MarkFlagRequired("config")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}

	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if dryRun {
		return runDryRun(cmd.Context(), log, cfg)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("Received shutdown signal")
		cancel()
	}()

	svc := bot.NewService(log, cfg)

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start bot: %w", err)
	}

	<-ctx.Done()

	if err := svc.Stop(); err != nil {
		log.WithError(err).Warn("Error stopping bot")
	}

	log.Info("Shutdown complete")

	return nil
}

// runDryRun probes the server once and prints its channel tree.
func runDryRun(ctx context.Context, log logrus.FieldLogger, cfg *config.Config) error {
	log.Info("Running in dry-run mode")

	prober := teamspeak.NewProber(log, teamspeak.Config{
		Host:      cfg.TeamSpeak.Host,
		QueryPort: cfg.TeamSpeak.QueryPort,
		Username:  cfg.TeamSpeak.Username,
		Password:  cfg.TeamSpeak.Password,
		ServerID:  cfg.TeamSpeak.ServerID,
	})

	snap, err := prober.Probe(ctx)
	if err != nil {
		return fmt.Errorf("failed to probe TeamSpeak server: %w", err)
	}

	printSnapshot(os.Stdout, snap, cfg.Discord.Display)

	return nil
}

func printSnapshot(w io.Writer, snap *state.Snapshot, display config.DisplayConfig) {
	rule := strings.Repeat("═", boxWidth)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "╔%s╗\n", rule)

	title := fmt.Sprintf("TeamSpeak Status (%s)", snap.ServerName)
	padding := max((boxWidth-len(title))/2, 0)
	fmt.Fprintf(w, "║%s%s%s║\n", strings.Repeat(" ", padding), title, strings.Repeat(" ", max(boxWidth-padding-len(title), 0)))
	fmt.Fprintf(w, "╠%s╣\n", rule)

	if display.ServerInfo.Address != "" || display.ServerInfo.Password != "" {
		if display.ServerInfo.Address != "" {
			fmt.Fprintf(w, "║  Address: %-50s ║\n", display.ServerInfo.Address)
		}

		if display.ServerInfo.Password != "" {
			fmt.Fprintf(w, "║  Password: %-49s ║\n", display.ServerInfo.Password)
		}

		fmt.Fprintf(w, "╠%s╣\n", rule)
	}

	channels := discord.VisibleChannels(snap, display.ShowEmptyChannels)

	for _, ch := range channels {
		fmt.Fprintf(w, "║  📁 %-50s (%d) ║\n", truncate(ch.Name, 50), len(ch.Users))

		for _, user := range ch.Users {
			line := user.Nickname
			if status := userStatusCLI(user); status != "" {
				line += " " + status
			}

			fmt.Fprintf(w, "║      • %-53s ║\n", truncate(line, 50))
		}
	}

	if len(channels) == 0 {
		fmt.Fprintf(w, "║  %-60s║\n", "No users online")
	}

	fmt.Fprintf(w, "╠%s╣\n", rule)
	fmt.Fprintf(w, "║  %d/%d online • Uptime: %-36s ║\n", snap.TotalUsers, snap.MaxClients, discord.FormatDuration(snap.Uptime))

	if display.CustomFooter != "" {
		fmt.Fprintf(w, "║  %-59s ║\n", truncate(display.CustomFooter, 59))
	}

	fmt.Fprintf(w, "╚%s╝\n", rule)
	fmt.Fprintln(w)
}

func userStatusCLI(user state.UserSnapshot) string {
	var parts []string

	if user.IsRecording {
		parts = append(parts, "🔴REC")
	}

	if user.OutputMuted {
		parts = append(parts, "🔇")
	} else if user.InputMuted {
		parts = append(parts, "🎙️")
	}

	if user.Away {
		if user.AwayMessage != "" {
			parts = append(parts, fmt.Sprintf("💤(%s)", user.AwayMessage))
		} else {
			parts = append(parts, "💤")
		}
	}

	if user.IdleTime > 5*time.Minute {
		parts = append(parts, "idle "+discord.FormatIdle(user.IdleTime))
	}

	return strings.Join(parts, " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n-3] + "..."
}
