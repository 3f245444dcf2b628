package engine

import (
	"github.com/sirupsen/logrus"

	"github.com/samcm/ts-querybot/internal/protocol"
	"github.com/samcm/ts-querybot/internal/query"
	"github.com/samcm/ts-querybot/internal/state"
	"github.com/samcm/ts-querybot/internal/storage"
)

// joinContext carries a join notification through its enrichment chain:
// clientinfo, then servergroupsbyclientid, then commit.
type joinContext struct {
	clid int
	raw  string
	data protocol.Args
}

func (e *Engine) clientJoined(raw string, data protocol.Args) {
	clid, ok := data.Int("clid")
	if !ok {
		e.log.WithField("line", raw).Warn("Join notification without clid")
		return
	}

	if state.ClientType(data.IntOr("client_type", 0)) == state.ClientQuery {
		e.store.AddClient(data)
		return
	}

	data = data.Clone()
	if ctid, ok := data["ctid"]; ok {
		data["cid"] = ctid
	}

	jc := &joinContext{clid: clid, raw: raw, data: data}
	e.joining[clid] = jc

	e.send(protocol.ClientInfo(clid), jc, e.onJoinInfo, e.onJoinFailed)
}

// current reports whether jc is still the live enrichment for its client.
// A leave or a reset abandons it.
func (e *Engine) current(jc *joinContext) bool {
	return e.joining[jc.clid] == jc
}

func (e *Engine) onJoinInfo(resp *query.Response) {
	jc := resp.Data.(*joinContext)
	if !e.current(jc) {
		return
	}

	merged := resp.First().Clone()
	merged.Merge(jc.data)
	jc.data = merged

	cldbid, ok := merged.Int("client_database_id")
	if !ok {
		e.log.WithField("clid", jc.clid).Warn("Joined client has no database id")
		delete(e.joining, jc.clid)

		return
	}

	e.send(protocol.ServerGroupsByClientID(cldbid), jc, e.onJoinGroups, e.onJoinFailed)
}

func (e *Engine) onJoinGroups(resp *query.Response) {
	jc := resp.Data.(*joinContext)
	if !e.current(jc) {
		return
	}

	delete(e.joining, jc.clid)

	c := e.store.AddClient(jc.data)
	e.store.SetServerGroups(c.ID, resp.Args())
	e.loadCustomValues(c)
	e.persistClient(c)

	e.log.WithFields(logrus.Fields{
		"clid":     c.ID,
		"nickname": c.Nickname(),
		"cid":      c.ChannelID(),
	}).Debug("Client joined")

	ev := Event{
		Kind:      KindClientJoined,
		Raw:       jc.raw,
		Args:      jc.data,
		ClientID:  c.ID,
		Client:    c,
		ToChannel: c.ChannelID(),
	}

	e.dispatch("OnClientJoined", func(p Plugin) { p.OnClientJoined(ev) })
}

func (e *Engine) onJoinFailed(resp *query.Response) {
	jc := resp.Data.(*joinContext)
	if !e.current(jc) {
		return
	}

	delete(e.joining, jc.clid)

	e.log.WithField("clid", jc.clid).WithError(resp.Err).Warn("Join enrichment failed")
}

func (e *Engine) clientLeft(raw string, data protocol.Args) {
	clid, ok := data.Int("clid")
	if !ok {
		return
	}

	delete(e.joining, clid)

	c, existed := e.store.RemoveClient(clid)

	if err := e.persistence.RemoveOnline(e.ctx, clid); err != nil {
		e.log.WithError(err).WithField("clid", clid).Warn("Failed to remove online client")
	}

	if !existed || !c.IsHuman() {
		return
	}

	ev := Event{
		Kind:        KindClientLeft,
		Raw:         raw,
		Args:        data,
		ClientID:    clid,
		Client:      c,
		FromChannel: c.ChannelID(),
	}

	e.dispatch("OnClientLeft", func(p Plugin) { p.OnClientLeft(ev) })
}

func (e *Engine) clientMoved(raw string, data protocol.Args) {
	clid, ok := data.Int("clid")
	if !ok {
		return
	}

	ctid, ok := data.Int("ctid")
	if !ok {
		return
	}

	if jc, ok := e.joining[clid]; ok {
		jc.data["cid"] = data.Get("ctid")
		return
	}

	old, ok := e.store.MoveClient(clid, ctid)
	if !ok {
		return
	}

	c, _ := e.store.Client(clid)
	if !c.IsHuman() {
		return
	}

	ev := Event{
		Kind:        KindClientMoved,
		Raw:         raw,
		Args:        data,
		ClientID:    clid,
		Client:      c,
		FromChannel: old,
		ToChannel:   ctid,
	}

	e.dispatch("OnClientMoved", func(p Plugin) { p.OnClientMoved(ev) })
}

func (e *Engine) channelDeleted(data protocol.Args) {
	cid, ok := data.Int("cid")
	if !ok {
		return
	}

	e.store.RemoveChannel(cid)
}

func (e *Engine) loadCustomValues(c *state.Client) {
	values, err := e.persistence.ClientValues(e.ctx, c.DatabaseID)
	if err != nil {
		e.log.WithError(err).WithField("cldbid", c.DatabaseID).Warn("Failed to load client values")
		return
	}

	e.store.SetCustomValues(c.ID, values)
}

func (e *Engine) persistClient(c *state.Client) {
	level, _ := e.store.AccessLevel(c.ID)

	if err := e.persistence.SetClientAccessLevel(e.ctx, c.DatabaseID, level); err != nil {
		e.log.WithError(err).WithField("cldbid", c.DatabaseID).Warn("Failed to store access level")
	}

	err := e.persistence.RecordOnline(e.ctx, storage.OnlineClient{
		ClientID:    c.ID,
		DatabaseID:  c.DatabaseID,
		Nickname:    c.Nickname(),
		RemoteIP:    c.RemoteAddress(),
		AccessLevel: level,
	})
	if err != nil {
		e.log.WithError(err).WithField("clid", c.ID).Warn("Failed to record online client")
	}
}
