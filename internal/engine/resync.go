package engine

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/samcm/ts-querybot/internal/protocol"
	"github.com/samcm/ts-querybot/internal/query"
)

// groupRequest tags a servergroup query of the initial resync with the
// resync it belongs to.
type groupRequest struct {
	clid int
	gen  int
}

// resync rebuilds the session from scratch: whoami, clientlist,
// channellist, servergroups, then initial data and serverinfo.
func (e *Engine) resync() {
	e.send(protocol.WhoAmI(), nil, e.onWhoAmI, e.onResyncFailed)
}

// onResyncFailed drops a session that could not be rebuilt so the
// reconnect starts over.
func (e *Engine) onResyncFailed(resp *query.Response) {
	e.connectionLost(fmt.Errorf("resync failed: %w", resp.Err))
}

func (e *Engine) onWhoAmI(resp *query.Response) {
	e.ownID = resp.First().IntOr("client_id", 0)
	e.backoff.Reset()

	e.log.WithField("clid", e.ownID).Info("Logged in")

	if e.slave != nil {
		e.send(protocol.ClientMove(e.ownID, e.slave.channelID), nil, nil, e.onSlaveMoveFailed)
		return
	}

	e.send(protocol.ClientList(), nil, e.onClientList, e.onResyncFailed)
}

func (e *Engine) onClientList(resp *query.Response) {
	clients := e.store.ReplaceClients(resp.Args())

	if err := e.persistence.ClearOnline(e.ctx); err != nil {
		e.log.WithError(err).Warn("Failed to clear online clients")
	}

	for _, c := range clients {
		if !e.transport.IsConnected() {
			return
		}

		if !c.IsHuman() {
			continue
		}

		e.loadCustomValues(c)
		e.persistClient(c)
		e.send(protocol.ClientInfo(c.ID), c.ID, e.onResyncClientInfo, nil)
	}

	e.send(protocol.ChannelList(), nil, e.onChannelList, e.onResyncFailed)
}

func (e *Engine) onResyncClientInfo(resp *query.Response) {
	clid := resp.Data.(int)

	if _, ok := e.store.UpdateClient(clid, resp.First()); !ok {
		return
	}

	c, _ := e.store.Client(clid)
	e.persistClient(c)
}

func (e *Engine) onChannelList(resp *query.Response) {
	e.store.ReplaceChannels(resp.Args())

	if e.cfg.Nickname != "" {
		if own, ok := e.store.Client(e.ownID); ok && own.Nickname() != e.cfg.Nickname {
			e.send(protocol.ClientUpdateNickname(e.cfg.Nickname), nil, nil, nil)
		}
	}

	humans := e.store.HumanClients()
	e.initialPending = len(humans)

	if len(humans) == 0 {
		e.initialData()
		return
	}

	for _, c := range humans {
		req := groupRequest{clid: c.ID, gen: e.resyncGen}
		e.send(protocol.ServerGroupsByClientID(c.DatabaseID), req, e.onResyncGroups, e.onResyncGroups)
	}
}

// onResyncGroups handles both outcomes of a servergroup query: initial data
// waits for every one of them.
func (e *Engine) onResyncGroups(resp *query.Response) {
	req := resp.Data.(groupRequest)
	if req.gen != e.resyncGen {
		return
	}

	if resp.Err != nil {
		e.log.WithField("clid", req.clid).WithError(resp.Err).Warn("Failed to fetch servergroups")
	} else if e.store.SetServerGroups(req.clid, resp.Args()) {
		c, _ := e.store.Client(req.clid)
		e.persistClient(c)
	}

	e.initialPending--
	if e.initialPending == 0 {
		e.initialData()
	}
}

func (e *Engine) initialData() {
	e.ready = true

	clients := e.store.HumanClients()
	channels := e.store.Channels()

	e.log.WithFields(logrus.Fields{
		"clients":  len(clients),
		"channels": len(channels),
	}).Info("Session synchronized")

	e.dispatch("OnInitialData", func(p Plugin) { p.OnInitialData(clients, channels) })

	e.refreshServerInfo()

	if e.slaves != nil {
		e.slaves.Reconcile(e.store.OccupiedChannels())
	}
}

func (e *Engine) refreshServerInfo() {
	e.send(protocol.ServerInfo(), nil, func(resp *query.Response) {
		e.store.SetServer(resp.First())
	}, nil)
}
