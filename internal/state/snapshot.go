package state

import (
	"sort"
	"strings"
	"time"
)

// Snapshot is a detached, read-only copy of the session used by consumers
// outside the engine loop.
type Snapshot struct {
	ServerName string
	Uptime     time.Duration
	Channels   []ChannelSnapshot
	TotalUsers int
	MaxClients int
}

// ChannelSnapshot is a channel with the human clients inside it.
type ChannelSnapshot struct {
	ID       int
	Name     string
	ParentID int
	Order    int
	Users    []UserSnapshot
}

// UserSnapshot is one human client.
type UserSnapshot struct {
	ID          int
	Nickname    string
	ChannelID   int
	InputMuted  bool          // Microphone muted
	OutputMuted bool          // Speakers/headphones muted (deafened)
	Away        bool          // Away status
	AwayMessage string        // Away message
	IdleTime    time.Duration // How long they've been idle
	IsRecording bool          // Currently recording
}

// Snapshot copies the current session into a Snapshot.
func (s *Store) Snapshot() *Snapshot {
	snap := &Snapshot{
		ServerName: s.server.Get("virtualserver_name"),
		Uptime:     time.Duration(s.server.IntOr("virtualserver_uptime", 0)) * time.Second,
		MaxClients: s.server.IntOr("virtualserver_maxclients", 0),
		Channels:   make([]ChannelSnapshot, 0, len(s.channelOrder)),
	}

	users := make(map[int][]UserSnapshot)

	for _, c := range s.HumanClients() {
		users[c.ChannelID()] = append(users[c.ChannelID()], userSnapshot(c))
		snap.TotalUsers++
	}

	for _, ch := range s.Channels() {
		members := users[ch.ID]
		sort.Slice(members, func(i, j int) bool {
			return strings.ToLower(members[i].Nickname) < strings.ToLower(members[j].Nickname)
		})

		snap.Channels = append(snap.Channels, ChannelSnapshot{
			ID:       ch.ID,
			Name:     ch.Name(),
			ParentID: ch.ParentID(),
			Order:    ch.Order(),
			Users:    members,
		})
	}

	return snap
}

func userSnapshot(c *Client) UserSnapshot {
	return UserSnapshot{
		ID:          c.ID,
		Nickname:    c.Nickname(),
		ChannelID:   c.ChannelID(),
		InputMuted:  c.Data.Get("client_input_muted") == "1",
		OutputMuted: c.Data.Get("client_output_muted") == "1",
		Away:        c.Data.Get("client_away") == "1",
		AwayMessage: c.Data.Get("client_away_message"),
		IdleTime:    time.Duration(c.Data.IntOr("client_idle_time", 0)) * time.Millisecond,
		IsRecording: c.Data.Get("client_is_recording") == "1",
	}
}
