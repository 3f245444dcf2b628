// Package bot wires the protocol engine to its collaborators and drives it.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/samcm/ts-querybot/internal/bridge"
	"github.com/samcm/ts-querybot/internal/config"
	"github.com/samcm/ts-querybot/internal/discord"
	"github.com/samcm/ts-querybot/internal/engine"
	"github.com/samcm/ts-querybot/internal/ipc"
	"github.com/samcm/ts-querybot/internal/protocol"
	"github.com/samcm/ts-querybot/internal/state"
	"github.com/samcm/ts-querybot/internal/storage"
)

// Service defines the bot service interface.
type Service interface {
	Start(ctx context.Context) error
	Stop() error
}

type service struct {
	log     logrus.FieldLogger
	cfg     *config.Config
	plugins []engine.Plugin

	db       *storage.SQLite
	engine   *engine.Engine
	listener *ipc.Listener
	bridge   bridge.Service

	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewService creates a new bot service. Plugins are registered on the
// engine in the given order.
func NewService(log logrus.FieldLogger, cfg *config.Config, plugins ...engine.Plugin) Service {
	return &service{
		log:     log.WithField("component", "bot"),
		cfg:     cfg,
		plugins: plugins,
	}
}

// Start opens storage, builds the engine and starts the tick loop, the IPC
// listener and the Discord relay.
func (s *service) Start(ctx context.Context) error {
	db, err := storage.Open(ctx, s.log, s.cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}

	s.db = db

	opts := []engine.Option{
		engine.WithPersistence(db),
		engine.WithTransportFactory(s.newTransport),
	}

	var queue *ipc.Queue

	if s.cfg.IPC.Enabled {
		queue = ipc.NewQueue(s.cfg.IPC.QueueSize)
		opts = append(opts, engine.WithSaidQueue(queue))
	}

	s.engine = engine.New(s.log, engineConfig(s.cfg), s.newTransport(0), opts...)

	for _, p := range s.plugins {
		s.engine.Register(p)
	}

	if err := s.registerCommands(); err != nil {
		s.closeStorage()
		return fmt.Errorf("failed to register commands: %w", err)
	}

	if s.cfg.Discord.Enabled {
		if err := s.startBridge(ctx); err != nil {
			s.closeStorage()
			return err
		}
	}

	if err := s.engine.Connect(); err != nil {
		s.log.WithError(err).Warn("Initial connect failed, retrying in the background")
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(runCtx)

	s.cancel = cancel
	s.group = group

	group.Go(func() error { return s.loop(gctx) })

	if queue != nil {
		s.listener = ipc.NewListener(s.log, ipc.Config{SocketPath: s.cfg.IPC.SocketPath}, queue)
		group.Go(func() error { return s.listener.Run(gctx) })
	}

	s.log.WithField("address", s.cfg.TeamSpeak.Address()).Info("Bot started")

	return nil
}

func (s *service) startBridge(ctx context.Context) error {
	display := s.cfg.Discord.Display

	dc := discord.NewService(s.log, discord.Config{
		Token:     s.cfg.Discord.Token,
		ChannelID: s.cfg.Discord.ChannelID,
	}, discord.DisplayConfig{
		ShowEmptyChannels: display.ShowEmptyChannels,
		ServerAddress:     display.ServerInfo.Address,
		ServerPassword:    display.ServerInfo.Password,
		CustomFooter:      display.CustomFooter,
		ChannelNameFormat: display.ChannelNameFormat,
		ThumbnailURL:      display.ThumbnailURL,
	})

	relay := bridge.NewService(s.log, bridge.Config{UpdateInterval: display.UpdateInterval}, s.engine, dc)

	if err := relay.Start(ctx); err != nil {
		return fmt.Errorf("failed to start bridge: %w", err)
	}

	s.engine.Register(relay)
	s.engine.Every(display.UpdateInterval, relay.Refresh)
	s.bridge = relay

	return nil
}

// Stop halts the loop and listener, then closes the engine, the relay and
// storage. It returns the first error that stopped the loop early.
func (s *service) Stop() error {
	var errs []error

	if s.cancel != nil {
		s.cancel()

		if err := s.group.Wait(); err != nil {
			errs = append(errs, err)
		}
	}

	if s.engine != nil {
		if err := s.engine.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if s.bridge != nil {
		if err := s.bridge.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := s.closeStorage(); err != nil {
		errs = append(errs, err)
	}

	s.log.Info("Bot stopped")

	return errors.Join(errs...)
}

func (s *service) closeStorage() error {
	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil

	if err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}

	return nil
}

// loop ticks the engine. Every engine call happens on this goroutine once
// Start returned.
func (s *service) loop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Bot.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.engine.Tick(ctx)
		}
	}
}

// newTransport dials the configured server. cid 0 is the primary session.
func (s *service) newTransport(cid int) protocol.Transport {
	log := s.log
	if cid != 0 {
		log = log.WithField("cid", cid)
	}

	return protocol.NewTCPTransport(log, protocol.TCPConfig{
		Address:     s.cfg.TeamSpeak.Address(),
		DialTimeout: s.cfg.TeamSpeak.DialTimeout,
	})
}

func engineConfig(cfg *config.Config) engine.Config {
	timers := cfg.Bot.Timers

	return engine.Config{
		ServerID:      cfg.TeamSpeak.ServerID,
		Username:      cfg.TeamSpeak.Username,
		Password:      cfg.TeamSpeak.Password,
		Nickname:      cfg.TeamSpeak.Nickname,
		CommandPrefix: cfg.Bot.CommandPrefix,
		ChannelText:   cfg.Bot.ChannelText,
		AccessLevels: state.AccessLevels{
			Default: cfg.AccessLevels.Default,
			Groups:  cfg.AccessLevels.Groups,
		},
		Intervals: engine.Intervals{
			ClientInfo:   timers.ClientInfo,
			ServerGroups: timers.ServerGroups,
			AccessLevels: timers.AccessLevels,
			Heartbeat:    timers.Heartbeat,
			Sweep:        timers.Sweep,
			ChannelList:  timers.ChannelList,
			ServerInfo:   timers.ServerInfo,
			Slaves:       timers.Slaves,
		},
		ReconnectMaxInterval: cfg.Bot.ReconnectMaxInterval,
	}
}
