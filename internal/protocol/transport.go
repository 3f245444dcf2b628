package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	ts3 "github.com/multiplay/go-ts3"
	"github.com/sirupsen/logrus"
)

// ErrNotConnected is returned by transport operations on a closed connection.
var ErrNotConnected = errors.New("not connected")

// ErrNoMessage is returned by NextMessage when no complete line is buffered.
var ErrNoMessage = errors.New("no message available")

// Transport moves framed lines between the engine and a ServerQuery server.
// MessageAvailable and NextMessage never block.
type Transport interface {
	Connect() error
	Disconnect() error
	IsConnected() bool
	MessageAvailable() (bool, error)
	NextMessage() (string, error)
	Send(text string) error
	ClearBuffer()
}

// TCPConfig holds ServerQuery socket settings.
type TCPConfig struct {
	Address        string
	DialTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxLineLength  int
	ReadBufferSize int
}

type tcpTransport struct {
	log  logrus.FieldLogger
	cfg  TCPConfig
	conn net.Conn

	lines   chan string
	errs    chan error
	done    chan struct{}
	wg      sync.WaitGroup
	pending []string
	err     error
}

// NewTCPTransport creates a transport dialing cfg.Address on Connect.
func NewTCPTransport(log logrus.FieldLogger, cfg TCPConfig) Transport {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}

	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	if cfg.MaxLineLength <= 0 {
		cfg.MaxLineLength = 1 << 20
	}

	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = 1024
	}

	return &tcpTransport{
		log: log.WithFields(logrus.Fields{"component": "transport", "address": cfg.Address}),
		cfg: cfg,
	}
}

// Connect dials the server and starts the background line reader.
func (t *tcpTransport) Connect() error {
	if t.conn != nil {
		return nil
	}

	conn, err := net.DialTimeout("tcp", t.cfg.Address, t.cfg.DialTimeout)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", t.cfg.Address, err)
	}

	t.conn = conn
	t.lines = make(chan string, t.cfg.ReadBufferSize)
	t.errs = make(chan error, 1)
	t.done = make(chan struct{})
	t.pending = nil
	t.err = nil

	t.wg.Add(1)

	go t.readLoop(conn, t.lines, t.errs, t.done)

	t.log.Debug("Connected")

	return nil
}

func (t *tcpTransport) readLoop(conn net.Conn, lines chan<- string, errs chan<- error, done <-chan struct{}) {
	defer t.wg.Done()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), t.cfg.MaxLineLength)
	scanner.Split(ts3.ScanLines)

	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-done:
			return
		}
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}

	select {
	case errs <- err:
	case <-done:
	}
}

// Disconnect closes the socket and waits for the reader to exit.
func (t *tcpTransport) Disconnect() error {
	if t.conn == nil {
		return nil
	}

	close(t.done)
	err := t.conn.Close()
	t.wg.Wait()
	t.conn = nil

	t.log.Debug("Disconnected")

	return err
}

// IsConnected reports whether a socket is open.
func (t *tcpTransport) IsConnected() bool {
	return t.conn != nil
}

// MessageAvailable reports whether a complete line is buffered. A read error
// is only reported once every line received before it has been consumed.
func (t *tcpTransport) MessageAvailable() (bool, error) {
	if t.conn == nil {
		return false, ErrNotConnected
	}

	if t.err == nil {
		select {
		case err := <-t.errs:
			t.err = err
		default:
		}
	}

	// The reader queues every line before its error, so draining after the
	// error check keeps them in order.
	for drained := false; !drained; {
		select {
		case line := <-t.lines:
			t.pending = append(t.pending, line)
		default:
			drained = true
		}
	}

	if len(t.pending) > 0 {
		return true, nil
	}

	if t.err != nil {
		return false, fmt.Errorf("connection read failed: %w", t.err)
	}

	return false, nil
}

// NextMessage pops the next buffered line without its delimiter.
func (t *tcpTransport) NextMessage() (string, error) {
	ok, err := t.MessageAvailable()
	if err != nil {
		return "", err
	}

	if !ok {
		return "", ErrNoMessage
	}

	line := t.pending[0]
	t.pending = t.pending[1:]

	return line, nil
}

// Send writes one command line.
func (t *tcpTransport) Send(text string) error {
	if t.conn == nil {
		return ErrNotConnected
	}

	if err := t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	if _, err := io.WriteString(t.conn, text+Delimiter); err != nil {
		return fmt.Errorf("failed to write command: %w", err)
	}

	return nil
}

// ClearBuffer drops every buffered line.
func (t *tcpTransport) ClearBuffer() {
	t.pending = nil

	if t.lines == nil {
		return
	}

	for {
		select {
		case <-t.lines:
		default:
			return
		}
	}
}
