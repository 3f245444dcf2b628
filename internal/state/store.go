package state

import (
	"sort"
	"strconv"

	"github.com/samcm/ts-querybot/internal/protocol"
)

// Change describes one client attribute that changed value.
type Change struct {
	ClientID int
	Key      string
	Old      string
	New      string
}

// Store is the session model maintained by the protocol engine.
type Store struct {
	clients      map[int]*Client
	channels     map[int]*Channel
	channelOrder []int
	server       protocol.Args
	levels       AccessLevels
}

// NewStore creates an empty store using levels for access resolution.
func NewStore(levels AccessLevels) *Store {
	if levels.Groups == nil {
		levels.Groups = make(map[string]int)
	}

	return &Store{
		clients:  make(map[int]*Client),
		channels: make(map[int]*Channel),
		server:   protocol.Args{},
		levels:   levels,
	}
}

// AddClient stores a client built from data, replacing any entry with the
// same clid. A human client evicts a stale human entry sharing its database
// id.
func (s *Store) AddClient(data protocol.Args) *Client {
	c := newClient(data)

	if c.IsHuman() {
		if other, ok := s.humanByDatabaseID(c.DatabaseID); ok && other.ID != c.ID {
			delete(s.clients, other.ID)
		}
	}

	s.clients[c.ID] = c

	return c
}

// ReplaceClients drops every client and stores the given ones.
func (s *Store) ReplaceClients(groups []protocol.Args) []*Client {
	s.clients = make(map[int]*Client, len(groups))

	out := make([]*Client, 0, len(groups))
	for _, g := range groups {
		if !g.Has("clid") {
			continue
		}

		out = append(out, s.AddClient(g))
	}

	return out
}

// RemoveClient deletes a client and returns it.
func (s *Store) RemoveClient(clid int) (*Client, bool) {
	c, ok := s.clients[clid]
	if ok {
		delete(s.clients, clid)
	}

	return c, ok
}

// Client returns the client with the given clid.
func (s *Store) Client(clid int) (*Client, bool) {
	c, ok := s.clients[clid]

	return c, ok
}

// humanByDatabaseID returns the human client with the given cldbid. There is
// at most one.
func (s *Store) humanByDatabaseID(cldbid int) (*Client, bool) {
	for _, c := range s.clients {
		if c.IsHuman() && c.DatabaseID == cldbid {
			return c, true
		}
	}

	return nil, false
}

// Clients returns every client ordered by clid.
func (s *Store) Clients() []*Client {
	out := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// HumanClients returns every voice client ordered by clid.
func (s *Store) HumanClients() []*Client {
	all := s.Clients()
	out := all[:0]

	for _, c := range all {
		if c.IsHuman() {
			out = append(out, c)
		}
	}

	return out
}

// UpdateClient merges data into a client's protocol attributes and returns
// the attributes whose previous value differed.
func (s *Store) UpdateClient(clid int, data protocol.Args) ([]Change, bool) {
	c, ok := s.clients[clid]
	if !ok {
		return nil, false
	}

	var changes []Change

	for k, v := range data {
		old, existed := c.Data[k]
		c.Data[k] = v

		if existed && old != v {
			changes = append(changes, Change{ClientID: clid, Key: k, Old: old, New: v})
		}
	}

	c.syncIdentity()

	sort.Slice(changes, func(i, j int) bool { return changes[i].Key < changes[j].Key })

	return changes, true
}

// MoveClient sets a client's channel and returns the previous one.
func (s *Store) MoveClient(clid, cid int) (int, bool) {
	c, ok := s.clients[clid]
	if !ok {
		return 0, false
	}

	old := c.ChannelID()
	c.Data["cid"] = strconv.Itoa(cid)

	return old, true
}

// SetCustomValue sets an application attribute and returns the previous
// value, if any.
func (s *Store) SetCustomValue(clid int, key, value string) (Change, bool) {
	c, ok := s.clients[clid]
	if !ok {
		return Change{}, false
	}

	old := c.Custom[key]
	c.Custom[key] = value

	return Change{ClientID: clid, Key: key, Old: old, New: value}, true
}

// SetCustomValues merges values into a client's application attributes.
func (s *Store) SetCustomValues(clid int, values map[string]string) bool {
	c, ok := s.clients[clid]
	if !ok {
		return false
	}

	for k, v := range values {
		c.Custom[k] = v
	}

	return true
}

// ClientValue looks a client attribute up, protocol attributes first.
func (s *Store) ClientValue(clid int, key string) (string, bool) {
	c, ok := s.clients[clid]
	if !ok {
		return "", false
	}

	return c.Value(key)
}

// SetServerGroups replaces a client's servergroups with the groups of a
// servergroupsbyclientid response.
func (s *Store) SetServerGroups(clid int, groups []protocol.Args) bool {
	c, ok := s.clients[clid]
	if !ok {
		return false
	}

	c.ServerGroups = make(map[string]int, len(groups))

	for _, g := range groups {
		sgid, ok := g.Int("sgid")
		if !ok {
			continue
		}

		c.ServerGroups[g.Get("name")] = sgid
	}

	return true
}

// AccessLevel resolves a client's access level from its servergroups.
func (s *Store) AccessLevel(clid int) (int, bool) {
	c, ok := s.clients[clid]
	if !ok {
		return 0, false
	}

	return s.levels.Resolve(c.ServerGroups), true
}

// AccessLevels returns the configured access level map.
func (s *Store) AccessLevels() AccessLevels {
	return s.levels
}

// ReplaceChannels drops every channel and stores the given ones, keeping
// their listed order.
func (s *Store) ReplaceChannels(groups []protocol.Args) []*Channel {
	s.channels = make(map[int]*Channel, len(groups))
	s.channelOrder = s.channelOrder[:0]

	out := make([]*Channel, 0, len(groups))

	for _, g := range groups {
		if !g.Has("cid") {
			continue
		}

		ch := newChannel(g)
		if _, dup := s.channels[ch.ID]; !dup {
			s.channelOrder = append(s.channelOrder, ch.ID)
		}

		s.channels[ch.ID] = ch
		out = append(out, ch)
	}

	return out
}

// RemoveChannel deletes one channel.
func (s *Store) RemoveChannel(cid int) bool {
	if _, ok := s.channels[cid]; !ok {
		return false
	}

	delete(s.channels, cid)

	for i, id := range s.channelOrder {
		if id == cid {
			s.channelOrder = append(s.channelOrder[:i], s.channelOrder[i+1:]...)
			break
		}
	}

	return true
}

// Channel returns the channel with the given cid.
func (s *Store) Channel(cid int) (*Channel, bool) {
	ch, ok := s.channels[cid]

	return ch, ok
}

// Channels returns every channel in listed order.
func (s *Store) Channels() []*Channel {
	out := make([]*Channel, 0, len(s.channelOrder))
	for _, cid := range s.channelOrder {
		out = append(out, s.channels[cid])
	}

	return out
}

// SetServer replaces the virtual server attributes.
func (s *Store) SetServer(data protocol.Args) {
	s.server = data.Clone()
}

// Server returns the virtual server attributes.
func (s *Store) Server() protocol.Args {
	return s.server
}

// OccupiedChannels returns the channels holding at least one human client.
func (s *Store) OccupiedChannels() map[int]struct{} {
	out := make(map[int]struct{})

	for _, c := range s.clients {
		if c.IsHuman() {
			out[c.ChannelID()] = struct{}{}
		}
	}

	return out
}

// Clear drops every client, channel and server attribute. Access levels
// are configuration and survive.
func (s *Store) Clear() {
	s.clients = make(map[int]*Client)
	s.channels = make(map[int]*Channel)
	s.channelOrder = nil
	s.server = protocol.Args{}
}

// Len returns the number of clients and channels held.
func (s *Store) Len() (clients, channels int) {
	return len(s.clients), len(s.channels)
}
