// Package query correlates ServerQuery responses with the commands that
// caused them. The server answers strictly in send order, so correlation is
// positional: the oldest pending query owns every data line and the next
// terminator.
package query

import (
	"fmt"

	"github.com/samcm/ts-querybot/internal/protocol"
)

// Handler receives a completed query's response.
type Handler func(resp *Response)

// Query is one in-flight command together with its continuation.
type Query struct {
	Command   string
	Data      any
	OnSuccess Handler
	OnError   Handler

	lines     []string
	completed bool
}

// New creates a query with its continuation.
func New(command string, data any, onSuccess, onError Handler) *Query {
	return &Query{
		Command:   command,
		Data:      data,
		OnSuccess: onSuccess,
		OnError:   onError,
	}
}

// Append attaches one raw data line to the query's payload.
func (q *Query) Append(line string) {
	q.lines = append(q.lines, line)
}

// Lines returns the raw data lines received so far.
func (q *Query) Lines() []string {
	return q.lines
}

// Completed reports whether the query's terminator has arrived.
func (q *Query) Completed() bool {
	return q.completed
}

// Error is a non-zero terminator returned by the server.
type Error struct {
	ID      int
	Message string
	Command string
}

func (e *Error) Error() string {
	return fmt.Sprintf("query %q failed: %s (id %d)", e.Command, e.Message, e.ID)
}

// Response is handed to a query's handlers once it completes.
type Response struct {
	Command string
	Data    any
	Lines   []string
	Err     *Error
}

// NewResponse builds the response for a completed query from its
// terminator arguments.
func NewResponse(q *Query, terminator protocol.Args) *Response {
	resp := &Response{
		Command: q.Command,
		Data:    q.Data,
		Lines:   q.lines,
	}

	if id := terminator.IntOr("id", 0); id != 0 {
		resp.Err = &Error{
			ID:      id,
			Message: terminator.Get("msg"),
			Command: q.Command,
		}
	}

	return resp
}

// Args parses every data line and returns all argument groups in order.
func (r *Response) Args() []protocol.Args {
	var out []protocol.Args

	for _, line := range r.Lines {
		out = append(out, protocol.Parse(line)...)
	}

	return out
}

// First returns the first argument group, or an empty one.
func (r *Response) First() protocol.Args {
	for _, line := range r.Lines {
		if groups := protocol.Parse(line); len(groups) > 0 {
			return groups[0]
		}
	}

	return protocol.Args{}
}
