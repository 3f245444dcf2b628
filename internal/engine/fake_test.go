package engine

import (
	"context"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/samcm/ts-querybot/internal/protocol"
	"github.com/samcm/ts-querybot/internal/state"
	"github.com/samcm/ts-querybot/internal/storage"
)

const okLine = "error id=0 msg=ok"

// fakeTransport is an in-memory server. With auto set, every sent command
// is answered from answers (exact command first, then command name)
// followed by an ok terminator unless the answer carries its own.
type fakeTransport struct {
	connected  bool
	connects   int
	connectErr error
	readErr    error
	sendErr    error

	inbox []string
	sent  []string

	auto    bool
	answers map[string][]string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{auto: true, answers: make(map[string][]string)}
}

func (f *fakeTransport) Connect() error {
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}

	f.connected = true

	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.connected = false
	return nil
}

func (f *fakeTransport) IsConnected() bool { return f.connected }

func (f *fakeTransport) MessageAvailable() (bool, error) {
	if !f.connected {
		return false, protocol.ErrNotConnected
	}

	if f.readErr != nil {
		err := f.readErr
		f.readErr = nil

		return false, err
	}

	return len(f.inbox) > 0, nil
}

func (f *fakeTransport) NextMessage() (string, error) {
	if len(f.inbox) == 0 {
		return "", protocol.ErrNoMessage
	}

	line := f.inbox[0]
	f.inbox = f.inbox[1:]

	return line, nil
}

func (f *fakeTransport) Send(text string) error {
	if !f.connected {
		return protocol.ErrNotConnected
	}

	if f.sendErr != nil {
		return f.sendErr
	}

	f.sent = append(f.sent, text)

	if !f.auto {
		return nil
	}

	lines, ok := f.answers[text]
	if !ok {
		lines = f.answers[protocol.Name(text)]
	}

	f.inbox = append(f.inbox, lines...)

	for _, l := range lines {
		if strings.HasPrefix(l, "error id=") {
			return nil
		}
	}

	f.inbox = append(f.inbox, okLine)

	return nil
}

func (f *fakeTransport) ClearBuffer() { f.inbox = nil }

func (f *fakeTransport) push(lines ...string) {
	f.inbox = append(f.inbox, lines...)
}

// sentSince returns the commands sent after the first n.
func (f *fakeTransport) sentSince(n int) []string {
	return append([]string(nil), f.sent[n:]...)
}

// Server layout: query client 1 (the bot), alice (5) and bob (6) in
// channel 5, carol (7) in channel 7. Alice is an admin.
func defaultAnswers() map[string][]string {
	return map[string][]string{
		"whoami": {"virtualserver_status=online virtualserver_id=1 client_id=1 client_channel_id=1 client_nickname=Bot client_database_id=1"},
		"clientlist": {
			"clid=1 cid=1 client_database_id=1 client_nickname=Bot client_type=1" +
				"|clid=5 cid=5 client_database_id=50 client_nickname=alice client_type=0" +
				"|clid=6 cid=5 client_database_id=60 client_nickname=bob client_type=0" +
				"|clid=7 cid=7 client_database_id=70 client_nickname=carol client_type=0",
		},
		"clientinfo": {"client_away=0 connection_client_ip=10.0.0.1"},
		"channellist": {
			"cid=1 pid=0 channel_order=0 channel_name=Lobby" +
				"|cid=5 pid=0 channel_order=1 channel_name=Games" +
				"|cid=7 pid=0 channel_order=5 channel_name=Music",
		},
		"servergroupsbyclientid cldbid=50": {"name=Admin sgid=6 cldbid=50"},
		"servergroupsbyclientid":           {"name=Guest sgid=8 cldbid=0"},
		"serverinfo":                       {`virtualserver_name=Home virtualserver_maxclients=32 virtualserver_uptime=60`},
	}
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// recorder is a plugin remembering everything it was told.
type recorder struct {
	BasePlugin

	initialClients  []*state.Client
	initialChannels []*state.Channel
	initialCount    int
	events          []Event
	lost            int
	onLost          func()
}

func (r *recorder) OnInitialData(clients []*state.Client, channels []*state.Channel) {
	r.initialCount++
	r.initialClients = clients
	r.initialChannels = channels
}

func (r *recorder) OnClientJoined(ev Event) { r.events = append(r.events, ev) }
func (r *recorder) OnClientLeft(ev Event)   { r.events = append(r.events, ev) }
func (r *recorder) OnClientMoved(ev Event)  { r.events = append(r.events, ev) }
func (r *recorder) OnPrivateText(ev Event)  { r.events = append(r.events, ev) }
func (r *recorder) OnChannelText(ev Event)  { r.events = append(r.events, ev) }
func (r *recorder) OnClientSaid(ev Event)   { r.events = append(r.events, ev) }

func (r *recorder) OnConnectionLost() {
	r.lost++
	if r.onLost != nil {
		r.onLost()
	}
}

func (r *recorder) kinds() []Kind {
	out := make([]Kind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}

	return out
}

type harness struct {
	engine    *Engine
	transport *fakeTransport
	plugin    *recorder
	clock     *fakeClock
	db        *storage.SQLite
	slaves    map[int]*fakeTransport
}

func testConfig() Config {
	return Config{
		ServerID:      1,
		Username:      "serveradmin",
		Password:      "secret",
		Nickname:      "Bot",
		CommandPrefix: ".",
		AccessLevels:  state.AccessLevels{Default: 0, Groups: map[string]int{"Admin": 10}},
	}
}

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()

	db, err := storage.Open(context.Background(), testLogger(), filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)

	h := &harness{
		transport: newFakeTransport(),
		plugin:    &recorder{},
		clock:     &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		db:        db,
		slaves:    make(map[int]*fakeTransport),
	}
	h.transport.answers = defaultAnswers()

	factory := func(cid int) protocol.Transport {
		ft := newFakeTransport()
		ft.answers["whoami"] = []string{"client_id=" + strconv.Itoa(100+cid)}
		h.slaves[cid] = ft

		return ft
	}

	all := append([]Option{
		WithPersistence(db),
		WithClock(h.clock.Now),
		WithTransportFactory(factory),
		WithBackOff(&backoff.ZeroBackOff{}),
	}, opts...)

	h.engine = New(testLogger(), cfg, h.transport, all...)
	h.engine.Register(h.plugin)

	t.Cleanup(func() {
		h.engine.Close()
		db.Close()
	})

	return h
}

// synced returns a harness whose engine finished its initial resync.
func synced(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()

	h := newHarness(t, cfg, opts...)
	require.NoError(t, h.engine.Connect())
	h.tick()
	require.Equal(t, 1, h.plugin.initialCount)
	require.Zero(t, h.engine.Pending())

	return h
}

func (h *harness) tick() {
	h.engine.Tick(context.Background())
}
