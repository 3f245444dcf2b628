package engine

import (
	"github.com/sirupsen/logrus"

	"github.com/samcm/ts-querybot/internal/protocol"
	"github.com/samcm/ts-querybot/internal/query"
	"github.com/samcm/ts-querybot/internal/state"
)

// ValueWatcher is told when a client attribute changes value.
type ValueWatcher func(c *state.Client, change state.Change)

func (e *Engine) registerTimers() {
	iv := e.cfg.Intervals

	e.timers.Every(iv.ClientInfo, e.whenReady(e.refreshClientInfo))
	e.timers.Every(iv.ServerGroups, e.whenReady(e.refreshServerGroups))
	e.timers.Every(iv.AccessLevels, e.whenReady(e.refreshAccessLevels))
	e.timers.Every(iv.Heartbeat, e.whenReady(e.heartbeat))
	e.timers.Every(iv.Sweep, e.sweep)
	e.timers.Every(iv.ChannelList, e.whenReady(e.refreshChannels))
	e.timers.Every(iv.ServerInfo, e.whenReady(e.refreshServerInfo))

	if e.slaves != nil {
		e.timers.Every(iv.Slaves, e.whenReady(e.reconcileSlaves))
	}
}

// whenReady skips fn while the session is disconnected or resyncing.
func (e *Engine) whenReady(fn func()) func() {
	return func() {
		if !e.ready || !e.transport.IsConnected() {
			return
		}

		fn()
	}
}

func (e *Engine) refreshClientInfo() {
	for _, c := range e.store.HumanClients() {
		e.send(protocol.ClientInfo(c.ID), c.ID, e.onRefreshClientInfo, nil)
	}
}

func (e *Engine) onRefreshClientInfo(resp *query.Response) {
	clid := resp.Data.(int)

	changes, ok := e.store.UpdateClient(clid, resp.First())
	if !ok {
		return
	}

	c, _ := e.store.Client(clid)
	for _, change := range changes {
		e.notifyWatchers(c, change)
	}
}

func (e *Engine) refreshServerGroups() {
	for _, c := range e.store.HumanClients() {
		e.requestServerGroups(c)
	}
}

func (e *Engine) requestServerGroups(c *state.Client) {
	clid := c.ID

	e.send(protocol.ServerGroupsByClientID(c.DatabaseID), clid, func(resp *query.Response) {
		e.store.SetServerGroups(clid, resp.Args())
	}, nil)
}

func (e *Engine) refreshAccessLevels() {
	for _, c := range e.store.HumanClients() {
		level, _ := e.store.AccessLevel(c.ID)

		if err := e.persistence.SetClientAccessLevel(e.ctx, c.DatabaseID, level); err != nil {
			e.log.WithError(err).WithField("cldbid", c.DatabaseID).Warn("Failed to store access level")
		}
	}
}

func (e *Engine) heartbeat() {
	e.send(protocol.Version(), nil, nil, nil)
}

func (e *Engine) sweep() {
	if n := e.ledger.Sweep(); n > 0 {
		e.log.WithField("removed", n).Debug("Swept completed queries")
	}
}

func (e *Engine) refreshChannels() {
	e.send(protocol.ChannelList(), nil, func(resp *query.Response) {
		e.store.ReplaceChannels(resp.Args())
	}, nil)
}

func (e *Engine) reconcileSlaves() {
	e.slaves.Reconcile(e.store.OccupiedChannels())
}

// WatchClientValue calls fn whenever the client attribute key changes.
func (e *Engine) WatchClientValue(key string, fn ValueWatcher) {
	e.watchers[key] = append(e.watchers[key], fn)
}

func (e *Engine) notifyWatchers(c *state.Client, change state.Change) {
	for _, fn := range e.watchers[change.Key] {
		fn := fn

		e.safeCall(logrus.Fields{"watch": change.Key, "clid": change.ClientID}, func() { fn(c, change) })
	}
}
