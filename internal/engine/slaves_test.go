package engine

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcm/ts-querybot/internal/commands"
)

func channelTextConfig() Config {
	cfg := testConfig()
	cfg.ChannelText = true

	return cfg
}

func TestSlavePoolFollowsOccupiedChannels(t *testing.T) {
	h := synced(t, channelTextConfig())

	assert.Equal(t, []int{5, 7}, h.engine.Slaves())

	slave := h.slaves[5]
	require.NotNil(t, slave)
	assert.Equal(t, []string{
		`login client_login_name=serveradmin client_login_password=secret`,
		`use sid=1 client_nickname=Bot-5`,
		`servernotifyregister event=textchannel`,
		`whoami`,
		`clientmove clid=105 cid=5`,
	}, slave.sent)

	h.transport.push("notifyclientmoved ctid=5 reasonid=0 clid=7")
	h.tick()

	h.clock.Advance(time.Second)
	h.tick()

	assert.Equal(t, []int{5}, h.engine.Slaves())
	assert.False(t, h.slaves[7].IsConnected())
	assert.True(t, h.slaves[5].IsConnected())
}

func TestSlavePoolReplacesDeadSlaves(t *testing.T) {
	h := synced(t, channelTextConfig())

	first := h.slaves[7]
	first.readErr = io.EOF
	h.tick()

	h.clock.Advance(time.Second)
	h.tick()

	assert.Equal(t, []int{5, 7}, h.engine.Slaves())
	assert.NotSame(t, first, h.slaves[7])
	assert.True(t, h.slaves[7].IsConnected())
	assert.Zero(t, h.plugin.lost)
}

func TestSlavePoolClosedOnConnectionLoss(t *testing.T) {
	h := synced(t, channelTextConfig())

	h.transport.readErr = io.EOF
	h.tick()

	assert.Empty(t, h.engine.Slaves())
	assert.False(t, h.slaves[5].IsConnected())
}

func TestChannelTextForwardedFromSlave(t *testing.T) {
	h := synced(t, channelTextConfig())

	var rolls []commands.Invocation

	require.NoError(t, h.engine.AddCommand(commands.Command{
		Name:    "roll",
		Channel: true,
		Handler: func(inv commands.Invocation) error { rolls = append(rolls, inv); return nil },
	}))
	require.NoError(t, h.engine.AddCommand(commands.Command{
		Name:    "private",
		Handler: func(inv commands.Invocation) error { rolls = append(rolls, inv); return nil },
	}))

	slave := h.slaves[5]
	before := len(slave.sent)

	slave.push(
		`notifytextmessage targetmode=2 msg=.roll invokerid=5 invokername=alice invokeruid=a1`,
		`notifytextmessage targetmode=2 msg=.private invokerid=6 invokername=bob invokeruid=b1`,
		`notifytextmessage targetmode=2 msg=echo invokerid=105 invokername=Bot-5`,
	)
	h.tick()

	require.Len(t, h.plugin.events, 2)
	assert.Equal(t, KindChannelText, h.plugin.events[0].Kind)
	assert.Equal(t, 5, h.plugin.events[0].ChannelID)
	assert.Equal(t, 5, h.plugin.events[0].ClientID)

	require.Len(t, rolls, 1)
	assert.Equal(t, 5, rolls[0].ChannelID)

	require.NoError(t, h.engine.SendChannelText(5, "rolled 4"))
	assert.Equal(t, []string{`sendtextmessage targetmode=2 target=5 msg=rolled\s4`}, slave.sentSince(before))

	assert.ErrorIs(t, h.engine.SendChannelText(1, "nobody here"), ErrNoSlave)
}

func TestChannelTextDisabled(t *testing.T) {
	h := synced(t, testConfig())

	assert.Empty(t, h.engine.Slaves())
	assert.Empty(t, h.slaves)
	assert.ErrorIs(t, h.engine.SendChannelText(5, "hi"), ErrNoSlave)
}
