package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// Config holds IPC listener settings.
type Config struct {
	SocketPath string
}

// Listener accepts frame streams on a unix socket and pushes every frame
// into a Queue.
type Listener struct {
	log   logrus.FieldLogger
	cfg   Config
	queue *Queue

	mu    sync.Mutex
	ready chan struct{}
	addr  string
}

// NewListener creates a listener feeding queue.
func NewListener(log logrus.FieldLogger, cfg Config, queue *Queue) *Listener {
	return &Listener{
		log:   log.WithField("component", "ipc"),
		cfg:   cfg,
		queue: queue,
		ready: make(chan struct{}),
	}
}

// Ready is closed once the socket accepts connections.
func (l *Listener) Ready() <-chan struct{} {
	return l.ready
}

// Run listens until ctx is cancelled. It returns after every connection
// handler has exited.
func (l *Listener) Run(ctx context.Context) error {
	path, err := filepath.Abs(l.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to resolve socket path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing socket file: %w", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", path, err)
	}

	l.mu.Lock()
	l.addr = path
	l.mu.Unlock()
	close(l.ready)

	l.log.WithField("path", path).Info("IPC listener started")

	var wg sync.WaitGroup

	stop := make(chan struct{})
	defer close(stop)

	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}

		ln.Close()
	}()

	defer func() {
		wg.Wait()

		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			l.log.WithError(err).Warn("Failed to remove socket file")
		}

		l.log.Info("IPC listener stopped")
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}

			return fmt.Errorf("failed to accept connection: %w", err)
		}

		wg.Add(1)

		go func() {
			defer wg.Done()
			l.handle(ctx, conn)
		}()
	}
}

// Addr returns the socket path once listening.
func (l *Listener) Addr() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.addr
}

func (l *Listener) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		msg, err := ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				l.log.WithError(err).Debug("Connection closed")
			}

			return
		}

		if err := l.queue.Push(msg); err != nil {
			l.log.WithError(err).WithField("clid", msg.ClientID).Warn("Dropped message")
		}
	}
}
