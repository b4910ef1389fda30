package archive

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inkharmony/inkharmony/pkg/bus"
	"github.com/inkharmony/inkharmony/pkg/domain"
)

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "messages.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestRecordAndCount(t *testing.T) {
	a := newTestArchive(t)

	task, err := bus.NewTask(domain.RoleMaestro, domain.RoleOutline, domain.TaskCreateOutline,
		domain.Payload{"book_id": "book_1"}, "")
	require.NoError(t, err)
	task.Metadata.Set(bus.MetaBookID, "book_1")

	require.NoError(t, a.Record(task))

	n, err := a.Count("")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = a.Count("book_1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = a.Count("book_other")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRecordDuplicateIsIgnored(t *testing.T) {
	a := newTestArchive(t)

	msg := bus.NewStatus(domain.RoleSystem, domain.RoleMaestro, domain.Payload{"state": "up"})
	require.NoError(t, a.Record(msg))
	require.NoError(t, a.Record(msg))

	n, err := a.Count("")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestFollowArchivesBusTraffic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.db")
	a, err := Open(path)
	require.NoError(t, err)

	b := bus.New()
	a.Follow(b.Subscribe("archive"))

	for i := 0; i < 3; i++ {
		b.SendStatus(domain.RoleSystem, domain.RoleMaestro, domain.Payload{"tick": i})
	}
	b.Close()
	require.NoError(t, a.Close()) // waits for the follower to drain

	// The archive survives a reopen; this is its whole point.
	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	n, err := reopened.Count("")
	require.NoError(t, err)
	require.Equal(t, 3, n)
}
