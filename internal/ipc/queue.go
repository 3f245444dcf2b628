// Package ipc accepts "client said" messages from local processes over a
// unix socket and hands them to the bot loop through a bounded queue.
package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrQueueFull is returned by Push when the queue is at capacity.
	ErrQueueFull = errors.New("queue full")
	// ErrFrameTooLarge is returned by WriteFrame for payloads over 64KiB.
	ErrFrameTooLarge = errors.New("frame too large")
)

const (
	headerSize = 4
	maxPayload = 0xFFFF
)

// Message is something a client said, reported by an external process.
type Message struct {
	ClientID int
	Payload  []byte
}

// Queue is a bounded, non-blocking queue safe for one producer and one
// consumer on different goroutines.
type Queue struct {
	ch chan Message
}

// NewQueue creates a queue holding up to size messages.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 1
	}

	return &Queue{ch: make(chan Message, size)}
}

// Push enqueues m without blocking.
func (q *Queue) Push(m Message) error {
	select {
	case q.ch <- m:
		return nil
	default:
		return ErrQueueFull
	}
}

// TryPop dequeues one message without blocking.
func (q *Queue) TryPop() (Message, bool) {
	select {
	case m := <-q.ch:
		return m, true
	default:
		return Message{}, false
	}
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	return len(q.ch)
}

// ReadFrame reads one frame: sender clid and payload length as little
// endian uint16, then the payload.
func ReadFrame(r io.Reader) (Message, error) {
	var hdr [headerSize]byte

	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Message{}, err
	}

	clid := binary.LittleEndian.Uint16(hdr[0:2])
	size := binary.LittleEndian.Uint16(hdr[2:4])

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Message{}, fmt.Errorf("failed to read payload: %w", err)
	}

	return Message{ClientID: int(clid), Payload: payload}, nil
}

// WriteFrame writes m as one frame.
func WriteFrame(w io.Writer, m Message) error {
	if len(m.Payload) > maxPayload {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(m.Payload))
	}

	if m.ClientID < 0 || m.ClientID > 0xFFFF {
		return fmt.Errorf("client id %d out of range", m.ClientID)
	}

	buf := make([]byte, headerSize+len(m.Payload))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(m.ClientID))
	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(m.Payload)))
	copy(buf[headerSize:], m.Payload)

	_, err := w.Write(buf)

	return err
}
