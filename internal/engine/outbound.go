package engine

import (
	"fmt"
	"time"

	"github.com/samcm/ts-querybot/internal/commands"
	"github.com/samcm/ts-querybot/internal/protocol"
	"github.com/samcm/ts-querybot/internal/query"
	"github.com/samcm/ts-querybot/internal/scheduler"
	"github.com/samcm/ts-querybot/internal/state"
)

// Send writes a raw command. Its response is handed to onSuccess or
// onError together with data. A failed write drops the connection.
func (e *Engine) Send(command string, data any, onSuccess, onError query.Handler) error {
	if !e.transport.IsConnected() {
		return protocol.ErrNotConnected
	}

	e.ledger.Enqueue(query.New(command, data, onSuccess, onError))

	if err := e.transport.Send(command); err != nil {
		err = fmt.Errorf("failed to send %q: %w", command, err)
		e.connectionLost(err)

		return err
	}

	return nil
}

// send is Send for internal chains, where a failure is already handled by
// the connection reset.
func (e *Engine) send(command string, data any, onSuccess, onError query.Handler) {
	_ = e.Send(command, data, onSuccess, onError)
}

// SendPrivateText messages a client.
func (e *Engine) SendPrivateText(clid int, msg string) error {
	return e.Send(protocol.SendTextMessage(protocol.TargetClient, clid, msg), nil, nil, nil)
}

// SendChannelText writes to a channel through the slave parked in it.
func (e *Engine) SendChannelText(cid int, msg string) error {
	if e.slaves == nil {
		return fmt.Errorf("%w %d: channel text disabled", ErrNoSlave, cid)
	}

	s, ok := e.slaves.Slave(cid)
	if !ok {
		return fmt.Errorf("%w %d", ErrNoSlave, cid)
	}

	return s.Send(protocol.SendTextMessage(protocol.TargetChannel, cid, msg), nil, nil, nil)
}

// MoveClient moves a client into a channel.
func (e *Engine) MoveClient(clid, cid int) error {
	return e.Send(protocol.ClientMove(clid, cid), nil, nil, nil)
}

// SwitchChannel moves this session into a channel.
func (e *Engine) SwitchChannel(cid int) error {
	return e.MoveClient(e.ownID, cid)
}

// AddServerGroup adds an online client to a servergroup and refreshes its
// groups once the server confirms.
func (e *Engine) AddServerGroup(clid, sgid int) error {
	c, ok := e.store.Client(clid)
	if !ok {
		return fmt.Errorf("%w %d", ErrUnknownClient, clid)
	}

	return e.Send(protocol.ServerGroupAddClient(sgid, c.DatabaseID), nil, func(*query.Response) {
		e.refreshGroupsOf(clid)
	}, nil)
}

// RemoveServerGroup removes an online client from a servergroup.
func (e *Engine) RemoveServerGroup(clid, sgid int) error {
	c, ok := e.store.Client(clid)
	if !ok {
		return fmt.Errorf("%w %d", ErrUnknownClient, clid)
	}

	return e.Send(protocol.ServerGroupDelClient(sgid, c.DatabaseID), nil, func(*query.Response) {
		e.refreshGroupsOf(clid)
	}, nil)
}

func (e *Engine) refreshGroupsOf(clid int) {
	if c, ok := e.store.Client(clid); ok {
		e.requestServerGroups(c)
	}
}

// RegisterEvents subscribes to an additional event category. id is only
// sent when not negative.
func (e *Engine) RegisterEvents(event string, id int) error {
	return e.Send(protocol.NotifyRegister(event, id), nil, nil, nil)
}

// AddCommand registers a chat command.
func (e *Engine) AddCommand(cmd commands.Command) error {
	return e.registry.Add(cmd)
}

// Commands returns the registered chat commands.
func (e *Engine) Commands() []*commands.Command {
	return e.registry.Commands()
}

// ClientValue returns a client attribute.
func (e *Engine) ClientValue(clid int, key string) (string, bool) {
	return e.store.ClientValue(clid, key)
}

// SetClientValue sets an application attribute on an online client,
// persisting it for the client's database id when persist is set.
func (e *Engine) SetClientValue(clid int, key, value string, persist bool) error {
	change, ok := e.store.SetCustomValue(clid, key, value)
	if !ok {
		return fmt.Errorf("%w %d", ErrUnknownClient, clid)
	}

	c, _ := e.store.Client(clid)

	if persist {
		if err := e.persistence.SetClientValue(e.ctx, c.DatabaseID, key, value); err != nil {
			return fmt.Errorf("failed to persist client value: %w", err)
		}
	}

	if change.Old != change.New {
		e.notifyWatchers(c, change)
	}

	return nil
}

// Value returns a persisted setting.
func (e *Engine) Value(key, def string) (string, error) {
	return e.persistence.Value(e.ctx, key, def)
}

// SetValue persists a setting.
func (e *Engine) SetValue(key, value string) error {
	return e.persistence.SetValue(e.ctx, key, value)
}

// Every registers a repeating timer on the engine's scheduler.
func (e *Engine) Every(interval time.Duration, fn scheduler.Func) int {
	return e.timers.Every(interval, fn)
}

// After registers a one-shot timer on the engine's scheduler.
func (e *Engine) After(delay time.Duration, fn scheduler.Func) int {
	return e.timers.After(delay, fn)
}

// CancelTimer removes a timer.
func (e *Engine) CancelTimer(id int) bool {
	return e.timers.Cancel(id)
}

// Store exposes the session store. It must only be used from the tick.
func (e *Engine) Store() *state.Store {
	return e.store
}

// Snapshot captures the session for consumers outside the tick.
func (e *Engine) Snapshot() *state.Snapshot {
	return e.store.Snapshot()
}

// OwnClientID returns this session's clid, 0 before login.
func (e *Engine) OwnClientID() int {
	return e.ownID
}

// Slaves returns the channels currently observed by slaves.
func (e *Engine) Slaves() []int {
	if e.slaves == nil {
		return nil
	}

	return e.slaves.Channels()
}

// Pending returns the number of queries awaiting a response.
func (e *Engine) Pending() int {
	return e.ledger.Pending()
}
