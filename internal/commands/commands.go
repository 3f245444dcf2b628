// Package commands maps chat commands to access-level-gated handlers.
package commands

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrDuplicate is returned when a command name is registered twice.
	ErrDuplicate = errors.New("command already registered")
	// ErrInvalidUsage is returned by handlers rejecting their arguments. The
	// engine answers it with a usage reminder.
	ErrInvalidUsage = errors.New("invalid usage")
)

// Invocation describes one use of a chat command.
type Invocation struct {
	ClientID  int
	Nickname  string
	UID       string
	ChannelID int
	Args      []string
}

// Handler runs a command.
type Handler func(inv Invocation) error

// Command is a chat command.
type Command struct {
	Name        string
	Description string
	AccessLevel int
	// Args names the arguments for usage hints.
	Args []string
	// Channel commands trigger from channel chat, others from private chat.
	Channel bool
	Handler Handler
}

// Usage renders a usage line such as ".kick <client> <reason>".
func (c *Command) Usage(prefix string) string {
	var b strings.Builder

	b.WriteString(prefix)
	b.WriteString(c.Name)

	for _, arg := range c.Args {
		fmt.Fprintf(&b, " <%s>", arg)
	}

	return b.String()
}

// Registry holds commands keyed by lower-cased name.
type Registry struct {
	commands map[string]*Command
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]*Command)}
}

// Add registers cmd.
func (r *Registry) Add(cmd Command) error {
	if cmd.Name == "" || cmd.Handler == nil {
		return fmt.Errorf("command needs a name and a handler")
	}

	key := strings.ToLower(cmd.Name)
	if _, ok := r.commands[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, cmd.Name)
	}

	r.commands[key] = &cmd

	return nil
}

// Lookup finds a command case-insensitively.
func (r *Registry) Lookup(name string) (*Command, bool) {
	cmd, ok := r.commands[strings.ToLower(name)]

	return cmd, ok
}

// Commands returns every command sorted by name.
func (r *Registry) Commands() []*Command {
	out := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		out = append(out, cmd)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}

// Parse splits a chat message into a command name and its arguments. It
// reports false when msg does not start with prefix or names nothing.
func Parse(prefix, msg string) (string, []string, bool) {
	if prefix == "" || !strings.HasPrefix(msg, prefix) {
		return "", nil, false
	}

	fields := strings.Fields(msg[len(prefix):])
	if len(fields) == 0 {
		return "", nil, false
	}

	return fields[0], fields[1:], true
}
