package ipc

import (
	"bytes"
	"context"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestQueue(t *testing.T) {
	q := NewQueue(2)

	require.NoError(t, q.Push(Message{ClientID: 1}))
	require.NoError(t, q.Push(Message{ClientID: 2}))
	assert.ErrorIs(t, q.Push(Message{ClientID: 3}), ErrQueueFull)
	assert.Equal(t, 2, q.Len())

	m, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, 1, m.ClientID)

	m, ok = q.TryPop()
	require.True(t, ok)
	assert.Equal(t, 2, m.ClientID)

	_, ok = q.TryPop()
	assert.False(t, ok)
}

func TestFrameLayout(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, WriteFrame(&buf, Message{ClientID: 0x0102, Payload: []byte("hey")}))
	assert.Equal(t, []byte{0x02, 0x01, 0x03, 0x00, 'h', 'e', 'y'}, buf.Bytes())

	m, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, 0x0102, m.ClientID)
	assert.Equal(t, []byte("hey"), m.Payload)

	_, err = ReadFrame(&buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrameErrors(t *testing.T) {
	assert.ErrorIs(t, WriteFrame(io.Discard, Message{Payload: make([]byte, maxPayload+1)}), ErrFrameTooLarge)
	assert.Error(t, WriteFrame(io.Discard, Message{ClientID: 70000}))

	_, err := ReadFrame(bytes.NewReader([]byte{1, 0, 5, 0, 'a'}))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestListenerQueuesFrames(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	q := NewQueue(8)
	l := NewListener(log, Config{SocketPath: filepath.Join(t.TempDir(), "bot.sock")}, q)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)

	go func() { errc <- l.Run(ctx) }()

	select {
	case <-l.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not start")
	}

	conn, err := net.Dial("unix", l.Addr())
	require.NoError(t, err)

	require.NoError(t, WriteFrame(conn, Message{ClientID: 5, Payload: []byte("hello")}))
	require.NoError(t, WriteFrame(conn, Message{ClientID: 6, Payload: []byte("world")}))

	var got []Message

	require.Eventually(t, func() bool {
		for {
			m, ok := q.TryPop()
			if !ok {
				break
			}

			got = append(got, m)
		}

		return len(got) == 2
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 5, got[0].ClientID)
	assert.Equal(t, "world", string(got[1].Payload))

	// An open client connection must not keep Run from returning.
	cancel()
	require.NoError(t, <-errc)
	conn.Close()
}
