package api

import (
	"github.com/inkharmony/inkharmony/pkg/bus"
	"github.com/inkharmony/inkharmony/pkg/events"
)

// Broadcaster accepts events for fan-out to connected WebSocket clients.
type Broadcaster interface {
	Broadcast(events.Event)
}

// RunEventBridge forwards bus traffic to the hub as typed events. Every
// message becomes a message.sent event; worker results that saved a component
// or an image additionally emit the matching save event. It returns when the
// tap channel closes.
func RunEventBridge(tap <-chan *bus.Message, hub Broadcaster) {
	for msg := range tap {
		hub.Broadcast(events.FromMessage(msg))
		if msg.Kind != bus.KindResult {
			continue
		}

		// Review-style results name a component without writing a version.
		if name := msg.Content.GetString("component"); name != "" && msg.Content.GetString("version") != "" {
			hub.Broadcast(events.New(events.ComponentSaved, msg.Sender.String(), events.ComponentEventData{
				BookID:    msg.BookID(),
				Component: name,
				Version:   msg.Content.GetString("version"),
			}))
		}
		if name := msg.Content.GetString("image"); name != "" {
			hub.Broadcast(events.New(events.ImageSaved, msg.Sender.String(), events.ComponentEventData{
				BookID:    msg.BookID(),
				Component: name,
			}))
		}
	}
}
