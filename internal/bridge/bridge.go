// Package bridge relays session changes from the engine to the Discord
// status message.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/samcm/ts-querybot/internal/discord"
	"github.com/samcm/ts-querybot/internal/engine"
	"github.com/samcm/ts-querybot/internal/state"
)

// Config holds bridge configuration.
type Config struct {
	// UpdateInterval is the minimum time between two status edits.
	UpdateInterval time.Duration
}

// Source captures the session. It is only called from engine callbacks.
type Source interface {
	Snapshot() *state.Snapshot
}

// Service is an engine plugin capturing snapshots on the engine thread and
// publishing them from its own worker.
type Service interface {
	engine.Plugin
	// Refresh captures a fresh snapshot if the session is synchronized.
	// Call it from an engine timer to pick up attribute changes that
	// raise no event.
	Refresh()
	Start(ctx context.Context) error
	Stop() error
}

type service struct {
	engine.BasePlugin

	log     logrus.FieldLogger
	cfg     Config
	source  Source
	discord discord.Service

	mu     sync.Mutex
	latest *state.Snapshot
	dirty  bool
	live   bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewService creates a new bridge service.
func NewService(log logrus.FieldLogger, cfg Config, source Source, dc discord.Service) Service {
	return &service{
		log:     log.WithField("component", "bridge"),
		cfg:     cfg,
		source:  source,
		discord: dc,
		dirty:   true,
		done:    make(chan struct{}),
	}
}

func (s *service) OnInitialData([]*state.Client, []*state.Channel) {
	s.mu.Lock()
	s.live = true
	s.mu.Unlock()

	s.capture()
}

func (s *service) OnClientJoined(engine.Event) { s.capture() }
func (s *service) OnClientLeft(engine.Event)   { s.capture() }
func (s *service) OnClientMoved(engine.Event)  { s.capture() }

// OnConnectionLost swaps the status back to the connecting placeholder.
func (s *service) OnConnectionLost() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.live = false
	s.latest = nil
	s.dirty = true
}

func (s *service) Refresh() {
	s.mu.Lock()
	live := s.live
	s.mu.Unlock()

	if live {
		s.capture()
	}
}

func (s *service) capture() {
	snap := s.source.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.latest = snap
	s.dirty = true
}

// Start connects to Discord and begins the publish loop.
func (s *service) Start(ctx context.Context) error {
	if err := s.discord.Start(ctx); err != nil {
		return fmt.Errorf("failed to start Discord service: %w", err)
	}

	if err := s.update(ctx); err != nil {
		s.log.WithError(err).Warn("Initial update failed")
	}

	s.wg.Add(1)

	go s.loop(ctx)

	s.log.WithField("interval", s.cfg.UpdateInterval).Info("Bridge started")

	return nil
}

// Stop stops the publish loop and disconnects from Discord.
func (s *service) Stop() error {
	close(s.done)
	s.wg.Wait()

	if err := s.discord.Stop(); err != nil {
		s.log.WithError(err).Warn("Failed to stop Discord service")
	}

	s.log.Info("Bridge stopped")

	return nil
}

func (s *service) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.update(ctx); err != nil {
				s.log.WithError(err).Warn("Update failed")
			}
		}
	}
}

// update publishes the latest snapshot if it changed since the last edit.
// A failed edit is retried on the next tick.
func (s *service) update(ctx context.Context) error {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}

	snap := s.latest
	s.dirty = false
	s.mu.Unlock()

	if err := s.discord.UpdateStatus(ctx, snap); err != nil {
		s.mu.Lock()
		if s.latest == snap {
			s.dirty = true
		}
		s.mu.Unlock()

		return fmt.Errorf("failed to update Discord status: %w", err)
	}

	users := 0
	if snap != nil {
		users = snap.TotalUsers
	}

	s.log.WithField("users", users).Debug("Published status")

	return nil
}
