package engine

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/samcm/ts-querybot/internal/state"
)

// Plugin receives session events. Callbacks run synchronously on the
// engine's tick, in registration order.
type Plugin interface {
	OnInitialData(clients []*state.Client, channels []*state.Channel)
	OnClientJoined(ev Event)
	OnClientLeft(ev Event)
	OnClientMoved(ev Event)
	OnPrivateText(ev Event)
	OnChannelText(ev Event)
	OnClientSaid(ev Event)
	OnConnectionLost()
}

// BasePlugin implements every Plugin callback as a no-op. Embed it and
// override what is needed.
type BasePlugin struct{}

func (BasePlugin) OnInitialData([]*state.Client, []*state.Channel) {}
func (BasePlugin) OnClientJoined(Event)                            {}
func (BasePlugin) OnClientLeft(Event)                              {}
func (BasePlugin) OnClientMoved(Event)                             {}
func (BasePlugin) OnPrivateText(Event)                             {}
func (BasePlugin) OnChannelText(Event)                             {}
func (BasePlugin) OnClientSaid(Event)                              {}
func (BasePlugin) OnConnectionLost()                               {}

// Register appends p to the plugins receiving events.
func (e *Engine) Register(p Plugin) {
	e.plugins = append(e.plugins, p)
}

func (e *Engine) dispatch(callback string, fn func(p Plugin)) {
	for _, p := range e.plugins {
		p := p

		e.safeCall(logrus.Fields{"callback": callback, "plugin": fmt.Sprintf("%T", p)}, func() { fn(p) })
	}
}

// safeCall runs fn, logging a panic instead of propagating it.
func (e *Engine) safeCall(fields logrus.Fields, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WithFields(fields).WithError(fmt.Errorf("%v", r)).Error("Callback panicked")
		}
	}()

	fn()
}
