package teamspeak

import (
	"testing"
	"time"

	ts3 "github.com/multiplay/go-ts3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func channel(id, order int, name string) *ts3.Channel {
	ch := &ts3.Channel{}
	ch.ID = id
	ch.ChannelOrder = order
	ch.ChannelName = name

	return ch
}

func onlineClient(id, cid, cldbid, typ int, nick string) *ts3.OnlineClient {
	cl := &ts3.OnlineClient{}
	cl.ID = id
	cl.ChannelID = cid
	cl.DatabaseID = cldbid
	cl.Type = typ
	cl.Nickname = nick

	return cl
}

func TestBuildSnapshot(t *testing.T) {
	server := &ts3.Server{}
	server.Name = "Home"
	server.Uptime = 3600
	server.MaxClients = 32

	muted := true
	idle := 42

	bob := onlineClient(6, 5, 60, 0, "bob")
	bob.Away = true
	bob.AwayMessage = "lunch"
	bob.OnlineClientExt = &ts3.OnlineClientExt{
		OnlineClientVoice: &ts3.OnlineClientVoice{InputMuted: &muted},
		OnlineClientTimes: &ts3.OnlineClientTimes{IdleTime: &idle},
	}

	// Only voice details were requested for carol.
	carol := onlineClient(7, 5, 70, 0, "carol")
	carol.OnlineClientExt = &ts3.OnlineClientExt{
		OnlineClientVoice: &ts3.OnlineClientVoice{},
	}

	snap := BuildSnapshot(server,
		[]*ts3.Channel{channel(1, 0, "Lobby"), channel(5, 1, "Games")},
		[]*ts3.OnlineClient{
			onlineClient(1, 1, 1, 1, "serveradmin"),
			bob,
			carol,
			onlineClient(5, 5, 50, 0, "Alice"),
		},
	)

	assert.Equal(t, "Home", snap.ServerName)
	assert.Equal(t, time.Hour, snap.Uptime)
	assert.Equal(t, 32, snap.MaxClients)
	assert.Equal(t, 3, snap.TotalUsers)

	require.Len(t, snap.Channels, 2)
	assert.Equal(t, "Lobby", snap.Channels[0].Name)
	assert.Empty(t, snap.Channels[0].Users)

	games := snap.Channels[1]
	require.Len(t, games.Users, 3)
	assert.Equal(t, "Alice", games.Users[0].Nickname)
	assert.False(t, games.Users[0].InputMuted)
	assert.Equal(t, "bob", games.Users[1].Nickname)
	assert.True(t, games.Users[1].InputMuted)
	assert.True(t, games.Users[1].Away)
	assert.Equal(t, "lunch", games.Users[1].AwayMessage)
	assert.Equal(t, "carol", games.Users[2].Nickname)
	assert.False(t, games.Users[2].InputMuted)
}
