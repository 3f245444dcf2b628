// Package engine drives a ServerQuery session: it classifies inbound lines,
// correlates responses with queries, enriches notifications into events,
// keeps the session store consistent and dispatches events to plugins.
//
// An Engine is single threaded. Everything happens inside Tick, which never
// blocks on the network.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/samcm/ts-querybot/internal/commands"
	"github.com/samcm/ts-querybot/internal/protocol"
	"github.com/samcm/ts-querybot/internal/query"
	"github.com/samcm/ts-querybot/internal/scheduler"
	"github.com/samcm/ts-querybot/internal/state"
)

var (
	// ErrDesync is the cause of a reset forced by a response line arriving
	// with no pending query.
	ErrDesync = errors.New("response without pending query")
	// ErrUnknownClient is returned for operations on a clid not in the store.
	ErrUnknownClient = errors.New("unknown client")
	// ErrNoSlave is returned when no session observes the requested channel.
	ErrNoSlave = errors.New("no session in channel")
)

// Intervals configures the periodic reconciliation timers. Zero values
// fall back to DefaultIntervals.
type Intervals struct {
	ClientInfo   time.Duration
	ServerGroups time.Duration
	AccessLevels time.Duration
	Heartbeat    time.Duration
	Sweep        time.Duration
	ChannelList  time.Duration
	ServerInfo   time.Duration
	Slaves       time.Duration
}

// DefaultIntervals returns the default timer intervals.
func DefaultIntervals() Intervals {
	return Intervals{
		ClientInfo:   5 * time.Second,
		ServerGroups: 5 * time.Second,
		AccessLevels: 30 * time.Second,
		Heartbeat:    60 * time.Second,
		Sweep:        10 * time.Second,
		ChannelList:  60 * time.Second,
		ServerInfo:   60 * time.Second,
		Slaves:       time.Second,
	}
}

func (i Intervals) withDefaults() Intervals {
	d := DefaultIntervals()

	for _, f := range []struct {
		v   *time.Duration
		def time.Duration
	}{
		{&i.ClientInfo, d.ClientInfo},
		{&i.ServerGroups, d.ServerGroups},
		{&i.AccessLevels, d.AccessLevels},
		{&i.Heartbeat, d.Heartbeat},
		{&i.Sweep, d.Sweep},
		{&i.ChannelList, d.ChannelList},
		{&i.ServerInfo, d.ServerInfo},
		{&i.Slaves, d.Slaves},
	} {
		if *f.v <= 0 {
			*f.v = f.def
		}
	}

	return i
}

// Config holds engine settings.
type Config struct {
	ServerID int
	Username string
	Password string
	Nickname string

	CommandPrefix string
	// ChannelText enables the slave pool observing channel chat.
	ChannelText bool

	AccessLevels state.AccessLevels
	Intervals    Intervals

	ReconnectMaxInterval time.Duration
}

// TransportFactory creates the transport of a slave session.
type TransportFactory func(channelID int) protocol.Transport

// Option configures an Engine.
type Option func(*Engine)

// WithPersistence sets the persistence collaborator.
func WithPersistence(p Persistence) Option {
	return func(e *Engine) { e.persistence = p }
}

// WithSaidQueue sets the queue "client said" messages are drained from.
func WithSaidQueue(q SaidQueue) Option {
	return func(e *Engine) { e.said = q }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithTransportFactory sets how slave sessions connect. Channel text
// observation needs it.
func WithTransportFactory(f TransportFactory) Option {
	return func(e *Engine) { e.newTransport = f }
}

// WithBackOff overrides the reconnect pacing.
func WithBackOff(b backoff.BackOff) Option {
	return func(e *Engine) { e.backoff = b }
}

// Engine is one ServerQuery session.
type Engine struct {
	log       logrus.FieldLogger
	cfg       Config
	transport protocol.Transport

	store    *state.Store
	ledger   *query.Ledger
	timers   *scheduler.Scheduler
	registry *commands.Registry
	plugins  []Plugin
	watchers map[string][]ValueWatcher

	persistence  Persistence
	said         SaidQueue
	newTransport TransportFactory
	now          func() time.Time
	ctx          context.Context

	backoff       backoff.BackOff
	nextReconnect time.Time

	lastLine string
	ownID    int
	active   bool
	ready    bool
	closed   bool

	joining        map[int]*joinContext
	initialPending int
	resyncGen      int

	slaves *SlavePool
	slave  *slaveBinding
}

// New creates a primary engine. Nothing is sent before Connect.
func New(log logrus.FieldLogger, cfg Config, transport protocol.Transport, opts ...Option) *Engine {
	e := newEngine(log.WithField("component", "engine"), cfg, transport, opts...)

	if e.backoff == nil {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = time.Second
		b.MaxInterval = cfg.ReconnectMaxInterval
		if b.MaxInterval <= 0 {
			b.MaxInterval = time.Minute
		}
		b.MaxElapsedTime = 0
		b.Reset()

		e.backoff = b
	}

	if cfg.ChannelText {
		if e.newTransport == nil {
			e.log.Warn("Channel text enabled without a transport factory, channel chat will not be observed")
		} else {
			e.slaves = newSlavePool(e.log, e.cfg, e.newTransport, e.channelText)
		}
	}

	e.registerTimers()

	return e
}

func newEngine(log logrus.FieldLogger, cfg Config, transport protocol.Transport, opts ...Option) *Engine {
	cfg.Intervals = cfg.Intervals.withDefaults()

	e := &Engine{
		log:         log,
		cfg:         cfg,
		transport:   transport,
		store:       state.NewStore(cfg.AccessLevels),
		ledger:      query.NewLedger(),
		registry:    commands.NewRegistry(),
		watchers:    make(map[string][]ValueWatcher),
		persistence: noopPersistence{},
		now:         time.Now,
		ctx:         context.Background(),
		joining:     make(map[int]*joinContext),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.timers = scheduler.New(log, e.now)

	return e
}

// Connect dials the server and starts the login and resync sequence. When
// it fails the engine keeps retrying from Tick.
func (e *Engine) Connect() error {
	e.active = true
	e.closed = false

	if err := e.transport.Connect(); err != nil {
		e.scheduleReconnect()
		return fmt.Errorf("failed to connect: %w", err)
	}

	e.lastLine = ""

	e.log.Info("Connected, logging in")

	e.send(protocol.Login(e.cfg.Username, e.cfg.Password), nil, nil, e.onLoginFailed)

	if e.slave != nil {
		e.send(protocol.Use(e.cfg.ServerID, e.slave.nickname), nil, nil, e.onLoginFailed)
		e.send(protocol.NotifyRegister(protocol.EventTextChannel, -1), nil, nil, nil)
	} else {
		e.send(protocol.Use(e.cfg.ServerID, e.cfg.Nickname), nil, nil, e.onLoginFailed)
		e.send(protocol.NotifyRegister(protocol.EventServer, -1), nil, nil, nil)
		e.send(protocol.NotifyRegister(protocol.EventTextPrivate, -1), nil, nil, nil)
		e.send(protocol.NotifyRegister(protocol.EventChannel, 0), nil, nil, nil)
	}

	e.resync()

	return nil
}

func (e *Engine) onLoginFailed(resp *query.Response) {
	e.connectionLost(fmt.Errorf("login failed: %w", resp.Err))
}

// Connected reports whether the transport is up.
func (e *Engine) Connected() bool {
	return e.transport.IsConnected()
}

// Close disconnects the engine and its slaves. A closed engine does not
// reconnect until Connect is called again.
func (e *Engine) Close() error {
	e.closed = true
	e.active = false
	e.ready = false

	if e.slaves != nil {
		e.slaves.Close()
	}

	e.ledger.Reset()
	e.joining = make(map[int]*joinContext)

	if !e.transport.IsConnected() {
		return nil
	}

	if err := e.transport.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}

	return nil
}

// Tick advances the session: queued "client said" messages, buffered
// lines, slave sessions, then due timers. It reconnects when the
// connection is down and the backoff has elapsed.
func (e *Engine) Tick(ctx context.Context) {
	e.ctx = ctx
	now := e.now()

	if e.closed {
		return
	}

	if !e.transport.IsConnected() {
		if e.active && e.slave == nil && !now.Before(e.nextReconnect) {
			e.reconnect()
		}
	}

	e.drainSaid()
	e.drainLines()

	if e.slaves != nil {
		e.slaves.Tick(ctx)
	}

	if e.slave == nil {
		e.timers.Tick(now)
	}
}

func (e *Engine) reconnect() {
	e.log.Info("Reconnecting")

	if err := e.Connect(); err != nil {
		e.log.WithError(err).WithField("retry_at", e.nextReconnect).Warn("Reconnect failed")
	}
}

func (e *Engine) scheduleReconnect() {
	wait := e.backoff.NextBackOff()
	if wait == backoff.Stop {
		wait = e.cfg.ReconnectMaxInterval
	}

	e.nextReconnect = e.now().Add(wait)
}

func (e *Engine) drainSaid() {
	if e.said == nil {
		return
	}

	for {
		msg, ok := e.said.TryPop()
		if !ok {
			return
		}

		ev := Event{
			Kind:     KindClientSaid,
			ClientID: msg.ClientID,
			Message:  string(msg.Payload),
			Payload:  msg.Payload,
		}

		if c, ok := e.store.Client(msg.ClientID); ok {
			ev.Client = c
		}

		e.dispatch("OnClientSaid", func(p Plugin) { p.OnClientSaid(ev) })
	}
}

func (e *Engine) drainLines() {
	for e.transport.IsConnected() {
		ok, err := e.transport.MessageAvailable()
		if err != nil {
			e.connectionLost(err)
			return
		}

		if !ok {
			return
		}

		line, err := e.transport.NextMessage()
		if errors.Is(err, protocol.ErrNoMessage) {
			return
		}

		if err != nil {
			e.connectionLost(err)
			return
		}

		e.handleLine(line)
	}
}

func isBanner(line string) bool {
	return line == "TS3" || strings.HasPrefix(line, "Welcome to the TeamSpeak")
}

func (e *Engine) handleLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" || isBanner(line) {
		return
	}

	name := protocol.Name(line)

	switch {
	case strings.HasPrefix(name, "notify"):
		if line == e.lastLine {
			e.log.WithField("line", line).Debug("Dropped duplicate notification")
			return
		}

		e.lastLine = line
		e.handleNotification(name, line)
	case name == "error":
		e.lastLine = ""
		e.handleTerminator(line)
	default:
		e.lastLine = ""
		e.handleData(line)
	}
}

func (e *Engine) handleTerminator(line string) {
	q := e.ledger.CompleteOldestPending()
	if q == nil {
		e.desync(line)
		return
	}

	var terminator protocol.Args
	if groups := protocol.Parse(line); len(groups) > 0 {
		terminator = groups[0]
	}

	resp := query.NewResponse(q, terminator)
	fields := logrus.Fields{"command": q.Command}

	if resp.Err != nil {
		if q.OnError == nil {
			e.log.WithFields(fields).WithError(resp.Err).Warn("Query failed")
			return
		}

		e.safeCall(fields, func() { q.OnError(resp) })

		return
	}

	if q.OnSuccess != nil {
		e.safeCall(fields, func() { q.OnSuccess(resp) })
	}
}

func (e *Engine) handleData(line string) {
	q := e.ledger.PeekOldestPending()
	if q == nil {
		e.desync(line)
		return
	}

	q.Append(line)
}

func (e *Engine) desync(line string) {
	e.log.WithField("line", line).Error("Received response with no pending query, resetting session")
	e.connectionLost(ErrDesync)
}

func (e *Engine) handleNotification(name, line string) {
	rest := strings.TrimSpace(line[len(name):])
	groups := protocol.ExpandGroups(protocol.Parse(rest))

	if e.slave != nil {
		if name == "notifytextmessage" {
			for _, g := range groups {
				e.slaveText(g)
			}
		}

		return
	}

	switch name {
	case "notifycliententerview":
		for _, g := range groups {
			e.clientJoined(line, g)
		}
	case "notifyclientleftview":
		for _, g := range groups {
			e.clientLeft(line, g)
		}
	case "notifyclientmoved":
		for _, g := range groups {
			e.clientMoved(line, g)
		}
	case "notifytextmessage":
		for _, g := range groups {
			e.privateText(line, g)
		}
	case "notifychanneldeleted":
		for _, g := range groups {
			e.channelDeleted(g)
		}
	default:
		e.log.WithField("event", name).Debug("Ignored notification")
	}
}

// connectionLost tears the session down to a clean state and schedules a
// reconnect. Plugins are told last, once the store is empty.
func (e *Engine) connectionLost(cause error) {
	e.log.WithError(cause).Warn("Connection lost")

	if err := e.transport.Disconnect(); err != nil {
		e.log.WithError(err).Debug("Disconnect failed")
	}

	e.transport.ClearBuffer()

	e.store.Clear()
	e.ledger.Reset()
	e.joining = make(map[int]*joinContext)
	e.lastLine = ""
	e.ownID = 0
	e.ready = false
	e.initialPending = 0
	e.resyncGen++

	if e.slave != nil {
		e.slave.dead = true
		return
	}

	if e.slaves != nil {
		e.slaves.Close()
	}

	if err := e.persistence.ClearOnline(e.ctx); err != nil {
		e.log.WithError(err).Warn("Failed to clear online clients")
	}

	if e.active {
		e.scheduleReconnect()
	}

	e.dispatch("OnConnectionLost", func(p Plugin) { p.OnConnectionLost() })
}
