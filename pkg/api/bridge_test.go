package api

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inkharmony/inkharmony/pkg/bus"
	"github.com/inkharmony/inkharmony/pkg/domain"
	"github.com/inkharmony/inkharmony/pkg/events"
)

// recordingBroadcaster captures everything the bridge emits.
type recordingBroadcaster struct {
	got []events.Event
}

func (r *recordingBroadcaster) Broadcast(e events.Event) { r.got = append(r.got, e) }

func (r *recordingBroadcaster) byType(eventType string) []events.Event {
	var out []events.Event
	for _, e := range r.got {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func TestEventBridgeTranslatesBusTraffic(t *testing.T) {
	b := bus.New()
	tap := b.Subscribe("ws")

	task, err := bus.NewTask(domain.RoleMaestro, domain.RoleOutline, domain.TaskCreateOutline, nil, "")
	require.NoError(t, err)
	b.Send(task)

	saved, err := bus.NewResult(domain.RoleOutline, domain.RoleMaestro,
		domain.Payload{"component": "outline", "version": "v1"},
		task.ID, domain.Payload{bus.MetaBookID: "book_1"})
	require.NoError(t, err)
	b.Send(saved)

	// A review names a component without writing one.
	review, err := bus.NewResult(domain.RoleLinguistic, domain.RoleMaestro,
		domain.Payload{"component": "outline", "notes": "tighten act two"},
		task.ID, domain.Payload{bus.MetaBookID: "book_1"})
	require.NoError(t, err)
	b.Send(review)

	cover, err := bus.NewResult(domain.RoleVisual, domain.RoleMaestro,
		domain.Payload{"image": "cover", "path": "/tmp/cover.png"},
		task.ID, domain.Payload{bus.MetaBookID: "book_1"})
	require.NoError(t, err)
	b.Send(cover)

	b.Close()

	rec := &recordingBroadcaster{}
	RunEventBridge(tap, rec)

	require.Len(t, rec.byType(events.MessageSent), 4)

	comps := rec.byType(events.ComponentSaved)
	require.Len(t, comps, 1)
	data, ok := comps[0].Data.(events.ComponentEventData)
	require.True(t, ok)
	require.Equal(t, "book_1", data.BookID)
	require.Equal(t, "outline", data.Component)
	require.Equal(t, "v1", data.Version)

	imgs := rec.byType(events.ImageSaved)
	require.Len(t, imgs, 1)
	require.Equal(t, "cover", imgs[0].Data.(events.ComponentEventData).Component)
}
