// Package teamspeak fetches a one-shot view of a virtual server through a
// blocking go-ts3 client, independent of the event-driven engine.
package teamspeak

import (
	"context"
	"fmt"

	ts3 "github.com/multiplay/go-ts3"
	"github.com/sirupsen/logrus"

	"github.com/samcm/ts-querybot/internal/protocol"
	"github.com/samcm/ts-querybot/internal/state"
)

// Config holds TeamSpeak connection settings.
type Config struct {
	Host      string
	QueryPort int
	Username  string
	Password  string
	ServerID  int
}

// Prober defines the one-shot probe interface.
type Prober interface {
	Probe(ctx context.Context) (*state.Snapshot, error)
}

type prober struct {
	log logrus.FieldLogger
	cfg Config
}

// NewProber creates a new probe.
func NewProber(log logrus.FieldLogger, cfg Config) Prober {
	return &prober{
		log: log.WithField("component", "teamspeak"),
		cfg: cfg,
	}
}

// Probe logs in, reads server info, channels and clients, and logs out.
func (p *prober) Probe(ctx context.Context) (*state.Snapshot, error) {
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.QueryPort)
	p.log.WithField("address", addr).Info("Connecting to TeamSpeak server")

	client, err := ts3.NewClient(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to TeamSpeak: %w", err)
	}

	defer client.Close()

	if err := client.Login(p.cfg.Username, p.cfg.Password); err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}

	if err := client.Use(p.cfg.ServerID); err != nil {
		return nil, fmt.Errorf("failed to select virtual server %d: %w", p.cfg.ServerID, err)
	}

	// go-ts3 calls block without a context; give up between them.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	server, err := client.Server.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to get server info: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	channels, err := client.Server.ChannelList()
	if err != nil {
		return nil, fmt.Errorf("failed to get channel list: %w", err)
	}

	clients, err := client.Server.ClientList(ts3.ClientVoice, ts3.ClientTimes, ts3.ClientAway)
	if err != nil {
		return nil, fmt.Errorf("failed to get client list: %w", err)
	}

	snap := BuildSnapshot(server, channels, clients)

	p.log.WithFields(logrus.Fields{
		"users":    snap.TotalUsers,
		"channels": len(snap.Channels),
	}).Debug("Fetched TeamSpeak state")

	return snap, nil
}

// BuildSnapshot loads go-ts3 results into a session store and snapshots it,
// so the probe sees exactly what the engine would.
func BuildSnapshot(server *ts3.Server, channels []*ts3.Channel, clients []*ts3.OnlineClient) *state.Snapshot {
	store := state.NewStore(state.AccessLevels{})

	store.SetServer(protocol.Args{
		"virtualserver_name":       server.Name,
		"virtualserver_uptime":     fmt.Sprint(server.Uptime),
		"virtualserver_maxclients": fmt.Sprint(server.MaxClients),
	})

	channelArgs := make([]protocol.Args, 0, len(channels))
	for _, ch := range channels {
		channelArgs = append(channelArgs, protocol.Args{
			"cid":           fmt.Sprint(ch.ID),
			"pid":           fmt.Sprint(ch.ParentID),
			"channel_order": fmt.Sprint(ch.ChannelOrder),
			"channel_name":  ch.ChannelName,
		})
	}

	store.ReplaceChannels(channelArgs)

	clientArgs := make([]protocol.Args, 0, len(clients))
	for _, cl := range clients {
		clientArgs = append(clientArgs, clientArgsOf(cl))
	}

	store.ReplaceClients(clientArgs)

	return store.Snapshot()
}

func clientArgsOf(cl *ts3.OnlineClient) protocol.Args {
	args := protocol.Args{
		"clid":                fmt.Sprint(cl.ID),
		"cid":                 fmt.Sprint(cl.ChannelID),
		"client_database_id":  fmt.Sprint(cl.DatabaseID),
		"client_nickname":     cl.Nickname,
		"client_type":         fmt.Sprint(cl.Type),
		"client_away":         flag(cl.Away),
		"client_away_message": cl.AwayMessage,
	}

	ext := cl.OnlineClientExt
	if ext == nil {
		return args
	}

	if voice := ext.OnlineClientVoice; voice != nil {
		if voice.InputMuted != nil {
			args["client_input_muted"] = flag(*voice.InputMuted)
		}

		if voice.OutputMuted != nil {
			args["client_output_muted"] = flag(*voice.OutputMuted)
		}

		if voice.IsRecording != nil {
			args["client_is_recording"] = flag(*voice.IsRecording)
		}
	}

	if times := ext.OnlineClientTimes; times != nil && times.IdleTime != nil {
		args["client_idle_time"] = fmt.Sprint(*times.IdleTime)
	}

	return args
}

func flag(b bool) string {
	if b {
		return "1"
	}

	return "0"
}
