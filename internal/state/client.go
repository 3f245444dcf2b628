// Package state holds the authoritative in-memory model of a ServerQuery
// session: online clients, channels, server attributes and access levels.
// The store is owned by one engine and is not safe for concurrent use.
package state

import (
	"github.com/samcm/ts-querybot/internal/protocol"
)

// ClientType distinguishes voice clients from query clients.
type ClientType int

const (
	// ClientHuman is a regular voice client.
	ClientHuman ClientType = 0
	// ClientQuery is a ServerQuery (service) client.
	ClientQuery ClientType = 1
)

// Client is an online client.
type Client struct {
	ID           int
	DatabaseID   int
	Type         ClientType
	Data         protocol.Args
	Custom       map[string]string
	ServerGroups map[string]int
}

func newClient(data protocol.Args) *Client {
	c := &Client{
		Data:         data.Clone(),
		Custom:       make(map[string]string),
		ServerGroups: make(map[string]int),
	}
	c.syncIdentity()

	return c
}

func (c *Client) syncIdentity() {
	c.ID = c.Data.IntOr("clid", c.ID)
	c.DatabaseID = c.Data.IntOr("client_database_id", c.DatabaseID)
	c.Type = ClientType(c.Data.IntOr("client_type", int(c.Type)))
}

// IsHuman reports whether the client is a voice client.
func (c *Client) IsHuman() bool {
	return c.Type == ClientHuman
}

// ChannelID returns the channel the client currently sits in.
func (c *Client) ChannelID() int {
	return c.Data.IntOr("cid", 0)
}

// Nickname returns the client's display name.
func (c *Client) Nickname() string {
	return c.Data.Get("client_nickname")
}

// UID returns the client's unique identity.
func (c *Client) UID() string {
	return c.Data.Get("client_unique_identifier")
}

// RemoteAddress returns the client's IP as reported by clientinfo.
func (c *Client) RemoteAddress() string {
	return c.Data.Get("connection_client_ip")
}

// Value looks key up in the protocol attributes first, then in the custom
// attributes. Protocol keys shadow custom keys of the same name.
func (c *Client) Value(key string) (string, bool) {
	if v, ok := c.Data[key]; ok {
		return v, true
	}

	v, ok := c.Custom[key]

	return v, ok
}

// Channel is a channel on the virtual server.
type Channel struct {
	ID     int
	Data   protocol.Args
	Custom map[string]string
}

func newChannel(data protocol.Args) *Channel {
	return &Channel{
		ID:     data.IntOr("cid", 0),
		Data:   data.Clone(),
		Custom: make(map[string]string),
	}
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return c.Data.Get("channel_name")
}

// ParentID returns the parent channel id, 0 for top level channels.
func (c *Channel) ParentID() int {
	return c.Data.IntOr("pid", 0)
}

// Order returns the id of the channel this one is sorted below.
func (c *Channel) Order() int {
	return c.Data.IntOr("channel_order", 0)
}
