package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inkharmony/inkharmony/pkg/domain"
	"github.com/inkharmony/inkharmony/pkg/events"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(t.TempDir(), testPhases)
}

func TestManagerCreateDoesNotStart(t *testing.T) {
	m := newTestManager(t)

	bookID, err := m.Create(domain.Payload{"title": "New Book", "genre": "scifi"})
	require.NoError(t, err)
	require.NotEmpty(t, bookID)

	st := m.Status(bookID)
	require.NotNil(t, st)
	require.Equal(t, domain.WorkflowPending, st.Status)
	require.Empty(t, st.CurrentPhase)
	require.Equal(t, "New Book", st.Metadata.GetString("title"))
}

func TestManagerDelegationsReturnFalseForUnknownBook(t *testing.T) {
	m := newTestManager(t)

	require.False(t, m.Start("book_nope"))
	require.False(t, m.Pause("book_nope"))
	require.False(t, m.Resume("book_nope"))
	require.False(t, m.CompleteCurrentPhase("book_nope"))
	require.False(t, m.AddTaskResult("book_nope", "t1", nil))
	require.Nil(t, m.Status("book_nope"))
	require.Nil(t, m.Get("book_nope"))
}

func TestManagerLifecycleDelegation(t *testing.T) {
	m := newTestManager(t)
	bookID, err := m.Create(domain.Payload{"title": "Cycle"})
	require.NoError(t, err)

	require.True(t, m.Start(bookID))
	require.Equal(t, domain.WorkflowRunning, m.Status(bookID).Status)

	require.True(t, m.Pause(bookID))
	require.Equal(t, domain.WorkflowPaused, m.Status(bookID).Status)

	require.True(t, m.Resume(bookID))
	require.True(t, m.CompleteCurrentPhase(bookID))
	require.Equal(t, "draft", m.Status(bookID).CurrentPhase)

	require.True(t, m.AddTaskResult(bookID, "t9", domain.Payload{"ok": true}))
	require.Equal(t, 1, m.Status(bookID).Phases["draft"].ResultCount)
}

func TestManagerRecoversFromStorage(t *testing.T) {
	root := t.TempDir()

	m1 := NewManager(root, testPhases)
	bookID, err := m1.Create(domain.Payload{"title": "Restartable"})
	require.NoError(t, err)
	require.True(t, m1.Start(bookID))
	require.True(t, m1.CompleteCurrentPhase(bookID))

	// A fresh manager (fresh process) resolves the same book from disk.
	m2 := NewManager(root, testPhases)
	st := m2.Status(bookID)
	require.NotNil(t, st)
	require.Equal(t, domain.WorkflowRunning, st.Status)
	require.Equal(t, "draft", st.CurrentPhase)

	// And the recovered instance has a live storage handle.
	require.True(t, m2.CompleteCurrentPhase(bookID))
	require.Equal(t, "polish", m2.Status(bookID).CurrentPhase)
}

func TestManagerEmitsLifecycleEvents(t *testing.T) {
	m := NewManager(t.TempDir(), []string{"outline", "draft"})
	var got []events.Event
	m.SetObserver(func(e events.Event) { got = append(got, e) })

	bookID, err := m.Create(domain.Payload{"title": "Observed"})
	require.NoError(t, err)
	require.True(t, m.Start(bookID))
	require.True(t, m.Pause(bookID))
	require.True(t, m.Resume(bookID))
	require.True(t, m.CompleteCurrentPhase(bookID))
	require.True(t, m.CompleteCurrentPhase(bookID))

	types := make([]string, len(got))
	for i, e := range got {
		types[i] = e.Type
	}
	require.Equal(t, []string{
		events.WorkflowCreated,
		events.WorkflowStarted, events.PhaseStarted,
		events.WorkflowPaused, events.WorkflowResumed,
		events.PhaseCompleted, events.PhaseStarted,
		events.PhaseCompleted, events.WorkflowCompleted,
	}, types)

	done, ok := got[5].Data.(events.WorkflowEventData)
	require.True(t, ok)
	require.Equal(t, bookID, done.BookID)
	require.Equal(t, "outline", done.Phase)
	require.GreaterOrEqual(t, done.DurationSeconds, 0.0)

	// Restarting a finished workflow is a no-op and emits nothing.
	require.True(t, m.Start(bookID))
	require.Len(t, got, 9)
}

func TestManagerFail(t *testing.T) {
	m := newTestManager(t)
	var got []events.Event
	m.SetObserver(func(e events.Event) { got = append(got, e) })

	require.False(t, m.Fail("book_nope", "boom"))

	bookID, err := m.Create(domain.Payload{"title": "Doomed"})
	require.NoError(t, err)
	require.True(t, m.Start(bookID))
	require.True(t, m.Fail(bookID, "backend down"))

	require.Equal(t, domain.WorkflowFailed, m.Status(bookID).Status)
	last := got[len(got)-1]
	require.Equal(t, events.WorkflowFailed, last.Type)
	require.Equal(t, domain.WorkflowFailed, last.Data.(events.WorkflowEventData).Status)
}

func TestManagerListActive(t *testing.T) {
	m := newTestManager(t)
	require.Empty(t, m.ListActive())

	a, err := m.Create(domain.Payload{"title": "A"})
	require.NoError(t, err)
	_, err = m.Create(domain.Payload{"title": "B"})
	require.NoError(t, err)
	require.True(t, m.Start(a))

	statuses := m.ListActive()
	require.Len(t, statuses, 2)

	counts := m.CountByStatus()
	require.Equal(t, 1, counts[domain.WorkflowRunning])
	require.Equal(t, 1, counts[domain.WorkflowPending])
}
