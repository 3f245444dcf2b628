// Package discord publishes the session as an auto-updating Discord embed.
package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"github.com/samcm/ts-querybot/internal/state"
)

// Discord allows two channel renames per ten minutes.
const renameInterval = 5 * time.Minute

// ErrNotStarted is returned by UpdateStatus before Start.
var ErrNotStarted = errors.New("not connected to Discord")

// Config holds Discord bot settings.
type Config struct {
	Token     string
	ChannelID string
}

// DisplayConfig holds display formatting options.
type DisplayConfig struct {
	ShowEmptyChannels bool
	ServerAddress     string
	ServerPassword    string
	CustomFooter      string
	ChannelNameFormat string // e.g., "TS: {online}/{max}"
	ThumbnailURL      string
}

// Service defines the Discord service interface.
type Service interface {
	Start(ctx context.Context) error
	Stop() error
	// UpdateStatus edits the status message. A nil snapshot shows the
	// connecting placeholder.
	UpdateStatus(ctx context.Context, snap *state.Snapshot) error
}

type service struct {
	log       logrus.FieldLogger
	cfg       Config
	display   DisplayConfig
	session   *discordgo.Session
	messageID string
	mu        sync.Mutex

	lastUserCount int
	lastRename    time.Time
}

// NewService creates a new Discord service.
func NewService(log logrus.FieldLogger, cfg Config, display DisplayConfig) Service {
	return &service{
		log:           log.WithField("component", "discord"),
		cfg:           cfg,
		display:       display,
		lastUserCount: -1,
	}
}

// Start connects to Discord and finds or creates the status message.
func (s *service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := discordgo.New("Bot " + s.cfg.Token)
	if err != nil {
		return fmt.Errorf("failed to create Discord session: %w", err)
	}

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	s.session = session
	s.log.Info("Connected to Discord")

	if err := s.findOrCreateMessage(ctx); err != nil {
		s.session.Close()
		s.session = nil

		return fmt.Errorf("failed to find or create status message: %w", err)
	}

	return nil
}

// findOrCreateMessage reuses the newest embed this bot posted in the
// channel, posting a placeholder when there is none.
func (s *service) findOrCreateMessage(ctx context.Context) error {
	messages, err := s.session.ChannelMessages(s.cfg.ChannelID, 50, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to fetch channel messages: %w", err)
	}

	botID := s.session.State.User.ID

	for _, msg := range messages {
		if msg.Author != nil && msg.Author.ID == botID && len(msg.Embeds) > 0 {
			s.messageID = msg.ID
			s.log.WithField("message_id", s.messageID).Info("Found existing status message")

			return nil
		}
	}

	msg, err := s.session.ChannelMessageSendEmbed(s.cfg.ChannelID, BuildEmbed(s.display, nil, time.Now()), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to create status message: %w", err)
	}

	s.messageID = msg.ID
	s.log.WithField("message_id", s.messageID).Info("Created new status message")

	return nil
}

// Stop disconnects from Discord.
func (s *service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil
	}

	err := s.session.Close()
	s.session = nil

	s.log.Info("Disconnected from Discord")

	if err != nil {
		return fmt.Errorf("failed to close Discord session: %w", err)
	}

	return nil
}

func (s *service) UpdateStatus(ctx context.Context, snap *state.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return ErrNotStarted
	}

	embed := BuildEmbed(s.display, snap, time.Now())

	if _, err := s.session.ChannelMessageEditEmbed(s.cfg.ChannelID, s.messageID, embed, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to update status message: %w", err)
	}

	if s.display.ChannelNameFormat != "" && snap != nil {
		s.maybeRenameChannel(ctx, snap)
	}

	return nil
}

// maybeRenameChannel renames the channel when the user count changed and
// the rename rate limit allows it.
func (s *service) maybeRenameChannel(ctx context.Context, snap *state.Snapshot) {
	if snap.TotalUsers == s.lastUserCount {
		return
	}

	if next := s.lastRename.Add(renameInterval); time.Now().Before(next) {
		s.log.WithField("next_allowed", next).Debug("Skipping channel rename due to rate limit")
		return
	}

	name := ChannelName(s.display.ChannelNameFormat, snap)

	if _, err := s.session.ChannelEdit(s.cfg.ChannelID, &discordgo.ChannelEdit{Name: name}, discordgo.WithContext(ctx)); err != nil {
		s.log.WithError(err).Warn("Failed to update channel name")
		return
	}

	s.lastUserCount = snap.TotalUsers
	s.lastRename = time.Now()

	s.log.WithField("name", name).Info("Updated channel name")
}
