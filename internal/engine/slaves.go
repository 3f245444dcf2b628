package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/samcm/ts-querybot/internal/protocol"
	"github.com/samcm/ts-querybot/internal/query"
)

// slaveBinding turns an Engine into a slave: a session parked in one
// channel that only forwards the channel's chat.
type slaveBinding struct {
	channelID int
	nickname  string
	forward   func(cid int, raw string, data protocol.Args)
	dead      bool
}

func newSlave(log logrus.FieldLogger, cfg Config, transport protocol.Transport, cid int, forward func(int, string, protocol.Args)) *Engine {
	cfg.ChannelText = false

	e := newEngine(log.WithFields(logrus.Fields{"component": "slave", "cid": cid}), cfg, transport)
	e.backoff = &backoff.StopBackOff{}
	e.slave = &slaveBinding{
		channelID: cid,
		forward:   forward,
	}

	if cfg.Nickname != "" {
		e.slave.nickname = fmt.Sprintf("%s-%d", cfg.Nickname, cid)
	}

	return e
}

func (e *Engine) slaveText(data protocol.Args) {
	if data.IntOr("targetmode", 0) != protocol.TargetChannel {
		return
	}

	if data.IntOr("invokerid", 0) == e.ownID {
		return
	}

	e.slave.forward(e.slave.channelID, e.lastLine, data)
}

func (e *Engine) onSlaveMoveFailed(resp *query.Response) {
	e.connectionLost(fmt.Errorf("failed to join channel %d: %w", e.slave.channelID, resp.Err))
}

func (e *Engine) alive() bool {
	return !e.closed && !e.slave.dead && e.transport.IsConnected()
}

// SlavePool keeps one slave session in every channel holding a human
// client.
type SlavePool struct {
	log          logrus.FieldLogger
	cfg          Config
	newTransport TransportFactory
	forward      func(cid int, raw string, data protocol.Args)
	slaves       map[int]*Engine
}

func newSlavePool(log logrus.FieldLogger, cfg Config, newTransport TransportFactory, forward func(int, string, protocol.Args)) *SlavePool {
	return &SlavePool{
		log:          log.WithField("component", "slave_pool"),
		cfg:          cfg,
		newTransport: newTransport,
		forward:      forward,
		slaves:       make(map[int]*Engine),
	}
}

// Reconcile closes slaves of empty channels and dead slaves, then spawns a
// slave for every occupied channel lacking one.
func (p *SlavePool) Reconcile(occupied map[int]struct{}) {
	for cid, s := range p.slaves {
		_, wanted := occupied[cid]
		if wanted && s.alive() {
			continue
		}

		if err := s.Close(); err != nil {
			p.log.WithError(err).WithField("cid", cid).Debug("Failed to close slave")
		}

		delete(p.slaves, cid)

		p.log.WithFields(logrus.Fields{"cid": cid, "occupied": wanted}).Debug("Removed slave")
	}

	cids := make([]int, 0, len(occupied))
	for cid := range occupied {
		if _, ok := p.slaves[cid]; !ok {
			cids = append(cids, cid)
		}
	}

	sort.Ints(cids)

	for _, cid := range cids {
		s := newSlave(p.log, p.cfg, p.newTransport(cid), cid, p.forward)
		if err := s.Connect(); err != nil {
			p.log.WithError(err).WithField("cid", cid).Warn("Failed to start slave")
			continue
		}

		p.slaves[cid] = s

		p.log.WithField("cid", cid).Debug("Spawned slave")
	}
}

// Tick advances every slave.
func (p *SlavePool) Tick(ctx context.Context) {
	for _, cid := range p.Channels() {
		if s, ok := p.slaves[cid]; ok {
			s.Tick(ctx)
		}
	}
}

// Slave returns the slave parked in cid.
func (p *SlavePool) Slave(cid int) (*Engine, bool) {
	s, ok := p.slaves[cid]

	return s, ok
}

// Channels returns the channels with a slave, ascending.
func (p *SlavePool) Channels() []int {
	out := make([]int, 0, len(p.slaves))
	for cid := range p.slaves {
		out = append(out, cid)
	}

	sort.Ints(out)

	return out
}

// Close closes every slave.
func (p *SlavePool) Close() {
	for cid, s := range p.slaves {
		if err := s.Close(); err != nil {
			p.log.WithError(err).WithField("cid", cid).Debug("Failed to close slave")
		}

		delete(p.slaves, cid)
	}
}
