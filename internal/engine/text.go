package engine

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/samcm/ts-querybot/internal/commands"
	"github.com/samcm/ts-querybot/internal/protocol"
)

const accessDeniedMessage = "Your accesslevel is not high enough for this command."

func (e *Engine) privateText(raw string, data protocol.Args) {
	if data.IntOr("targetmode", 0) != protocol.TargetClient {
		return
	}

	ev, ok := e.textEvent(KindPrivateText, raw, data, 0)
	if !ok {
		return
	}

	e.runCommand(ev)
	e.dispatch("OnPrivateText", func(p Plugin) { p.OnPrivateText(ev) })
}

// channelText handles chat a slave observed in channel cid.
func (e *Engine) channelText(cid int, raw string, data protocol.Args) {
	ev, ok := e.textEvent(KindChannelText, raw, data, cid)
	if !ok {
		return
	}

	e.runCommand(ev)
	e.dispatch("OnChannelText", func(p Plugin) { p.OnChannelText(ev) })
}

// textEvent builds a text event, rejecting texts written by this session
// or by other query clients.
func (e *Engine) textEvent(kind Kind, raw string, data protocol.Args, cid int) (Event, bool) {
	invoker, ok := data.Int("invokerid")
	if !ok || invoker == e.ownID {
		return Event{}, false
	}

	ev := Event{
		Kind:        kind,
		Raw:         raw,
		Args:        data,
		ClientID:    invoker,
		ChannelID:   cid,
		Message:     data.Get("msg"),
		InvokerName: data.Get("invokername"),
		InvokerUID:  data.Get("invokeruid"),
	}

	if c, ok := e.store.Client(invoker); ok {
		if !c.IsHuman() {
			return Event{}, false
		}

		ev.Client = c
	}

	return ev, true
}

func (e *Engine) runCommand(ev Event) {
	name, args, ok := commands.Parse(e.cfg.CommandPrefix, ev.Message)
	if !ok {
		return
	}

	cmd, ok := e.registry.Lookup(name)
	if !ok || cmd.Channel != (ev.Kind == KindChannelText) {
		return
	}

	level := e.store.AccessLevels().Default
	if l, ok := e.store.AccessLevel(ev.ClientID); ok {
		level = l
	}

	log := e.log.WithFields(logrus.Fields{
		"command": cmd.Name,
		"clid":    ev.ClientID,
		"level":   level,
	})

	if level < cmd.AccessLevel {
		log.Info("Denied command")
		e.reply(ev, accessDeniedMessage)

		return
	}

	inv := commands.Invocation{
		ClientID:  ev.ClientID,
		Nickname:  ev.InvokerName,
		UID:       ev.InvokerUID,
		ChannelID: ev.ChannelID,
		Args:      args,
	}

	var err error

	e.safeCall(logrus.Fields{"command": cmd.Name}, func() { err = cmd.Handler(inv) })

	switch {
	case errors.Is(err, commands.ErrInvalidUsage):
		e.reply(ev, fmt.Sprintf("Usage: %s", cmd.Usage(e.cfg.CommandPrefix)))
	case err != nil:
		log.WithError(err).Warn("Command failed")
	}
}

func (e *Engine) reply(ev Event, msg string) {
	var err error

	if ev.Kind == KindChannelText {
		err = e.SendChannelText(ev.ChannelID, msg)
	} else {
		err = e.SendPrivateText(ev.ClientID, msg)
	}

	if err != nil {
		e.log.WithError(err).WithField("clid", ev.ClientID).Warn("Failed to reply")
	}
}
