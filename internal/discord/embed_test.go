package discord

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcm/ts-querybot/internal/state"
)

var at = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testSnapshot() *state.Snapshot {
	return &state.Snapshot{
		ServerName: "Home",
		Uptime:     50 * time.Hour,
		MaxClients: 4,
		TotalUsers: 3,
		Channels: []state.ChannelSnapshot{
			{ID: 1, Name: "Lobby"},
			{ID: 2, Name: "[spacer0]---", Users: []state.UserSnapshot{{Nickname: "ghost"}}},
			{ID: 5, Name: "Games", Users: []state.UserSnapshot{
				{Nickname: "alice", InputMuted: true},
				{Nickname: "bob", OutputMuted: true, InputMuted: true, Away: true, IdleTime: 65 * time.Minute},
			}},
		},
	}
}

func TestBuildEmbedPlaceholder(t *testing.T) {
	embed := BuildEmbed(DisplayConfig{}, nil, at)

	assert.Equal(t, colorConnecting, embed.Color)
	assert.Contains(t, embed.Description, "Connecting")
	assert.Empty(t, embed.Fields)
	assert.Equal(t, "2024-05-01T12:00:00Z", embed.Timestamp)
}

func TestBuildEmbed(t *testing.T) {
	embed := BuildEmbed(DisplayConfig{
		ServerAddress:  "ts.example.com",
		ServerPassword: "pw",
		CustomFooter:   "hello",
	}, testSnapshot(), at)

	assert.Equal(t, "Home", embed.Title)
	assert.Equal(t, colorBusy, embed.Color)
	assert.Equal(t, "hello", embed.Footer.Text)
	assert.Nil(t, embed.Thumbnail)

	require.Len(t, embed.Fields, 4)
	assert.Equal(t, "**3** / 4", embed.Fields[0].Value)
	assert.Equal(t, "2d 2h", embed.Fields[1].Value)
	assert.Equal(t, "`ts.example.com`\nPass: `pw`", embed.Fields[2].Value)
	assert.Equal(t, "**#Games** `2`\nㅤ• alice 🎙️\nㅤ• bob 🔇💤 (1h5m idle)", embed.Fields[3].Value)
}

func TestChannelListShowsEmptyChannels(t *testing.T) {
	got := channelList(DisplayConfig{ShowEmptyChannels: true}, testSnapshot())

	assert.Equal(t, "**#Lobby**\n\n**#Games** `2`\nㅤ• alice 🎙️\nㅤ• bob 🔇💤 (1h5m idle)", got)
	assert.Equal(t, "*No active channels*", channelList(DisplayConfig{}, &state.Snapshot{}))
}

func TestCapacityColor(t *testing.T) {
	assert.Equal(t, colorEmpty, capacityColor(0, 10))
	assert.Equal(t, colorAvailable, capacityColor(4, 10))
	assert.Equal(t, colorBusy, capacityColor(5, 10))
	assert.Equal(t, colorFull, capacityColor(8, 10))
	assert.Equal(t, colorAvailable, capacityColor(3, 0))
}

func TestChannelName(t *testing.T) {
	assert.Equal(t, "TS Home: 3/4", ChannelName("TS {server}: {online}/{max}", testSnapshot()))
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "7m", FormatIdle(7*time.Minute))
	assert.Equal(t, "2h0m", FormatIdle(2*time.Hour))
	assert.Equal(t, "0m", FormatDuration(30*time.Second))
	assert.Equal(t, "3h 15m", FormatDuration(3*time.Hour+15*time.Minute))
}

func TestUpdateStatusBeforeStart(t *testing.T) {
	svc := NewService(logrus.New(), Config{}, DisplayConfig{})

	assert.ErrorIs(t, svc.UpdateStatus(context.Background(), testSnapshot()), ErrNotStarted)
	assert.NoError(t, svc.Stop())
}
