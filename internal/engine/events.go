package engine

import (
	"github.com/samcm/ts-querybot/internal/protocol"
	"github.com/samcm/ts-querybot/internal/state"
)

// Kind identifies an event.
type Kind int

// Event kinds.
const (
	KindClientJoined Kind = iota + 1
	KindClientLeft
	KindClientMoved
	KindPrivateText
	KindChannelText
	KindClientSaid
)

func (k Kind) String() string {
	switch k {
	case KindClientJoined:
		return "client_joined"
	case KindClientLeft:
		return "client_left"
	case KindClientMoved:
		return "client_moved"
	case KindPrivateText:
		return "private_text"
	case KindChannelText:
		return "channel_text"
	case KindClientSaid:
		return "client_said"
	default:
		return "unknown"
	}
}

// Event is a session event delivered to plugins.
type Event struct {
	Kind Kind
	// Raw is the notification line the event came from, empty for
	// synthetic events.
	Raw  string
	Args protocol.Args

	ClientID int
	// Client is the stored client, nil when unknown.
	Client *state.Client

	FromChannel int
	ToChannel   int

	// ChannelID is the channel a channel text was written in.
	ChannelID int

	Message     string
	InvokerName string
	InvokerUID  string

	Payload []byte
}
