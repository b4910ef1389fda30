package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inkharmony/inkharmony/pkg/domain"
	"github.com/inkharmony/inkharmony/pkg/storage"
)

var testPhases = []string{"outline", "draft", "polish"}

func newTestWorkflow(t *testing.T) *BookWorkflow {
	t.Helper()
	store, err := storage.NewBookStorage(t.TempDir(), storage.NewBookID())
	require.NoError(t, err)
	return New(store, testPhases, domain.Payload{"title": "Test Book"})
}

// assertSingleRunningPhase checks the core invariant: at most one phase runs,
// and it is exactly the recorded current phase.
func assertSingleRunningPhase(t *testing.T, w *BookWorkflow) {
	t.Helper()
	st := w.GetStatus()
	running := 0
	for name, p := range st.Phases {
		if p.Status == domain.PhaseRunning {
			running++
			require.Equal(t, st.CurrentPhase, name)
		}
	}
	require.LessOrEqual(t, running, 1)
	if st.CurrentPhase == "" {
		require.Zero(t, running)
	}
}

func TestStartRunsFirstPhase(t *testing.T) {
	w := newTestWorkflow(t)
	require.Equal(t, domain.WorkflowPending, w.WorkflowStatus())

	w.Start()

	st := w.GetStatus()
	require.Equal(t, domain.WorkflowRunning, st.Status)
	require.Equal(t, "outline", st.CurrentPhase)
	require.Equal(t, domain.PhaseRunning, st.Phases["outline"].Status)
	require.NotNil(t, st.StartedAt)
	assertSingleRunningPhase(t, w)
}

func TestPhaseAdvanceScenario(t *testing.T) {
	w := newTestWorkflow(t)
	w.Start()

	w.CompletePhase()
	st := w.GetStatus()
	require.Equal(t, "draft", st.CurrentPhase)
	require.Equal(t, domain.PhaseCompleted, st.Phases["outline"].Status)
	require.Equal(t, domain.PhaseRunning, st.Phases["draft"].Status)
	assertSingleRunningPhase(t, w)

	w.CompletePhase()
	w.CompletePhase()

	st = w.GetStatus()
	require.Equal(t, domain.WorkflowCompleted, st.Status)
	require.Empty(t, st.CurrentPhase)
	require.NotNil(t, st.CompletedAt)
	for name, p := range st.Phases {
		require.Equal(t, domain.PhaseCompleted, p.Status, "phase %s", name)
	}
	assertSingleRunningPhase(t, w)
}

func TestExactlyNCompletionsFinishNWorkflow(t *testing.T) {
	w := newTestWorkflow(t)
	w.Start()

	for i := range testPhases {
		require.NotEqual(t, domain.WorkflowCompleted, w.WorkflowStatus(), "completed after %d advances", i)
		w.CompletePhase()
		assertSingleRunningPhase(t, w)
	}
	require.Equal(t, domain.WorkflowCompleted, w.WorkflowStatus())
}

func TestPhasesCompleteInConfiguredOrder(t *testing.T) {
	w := newTestWorkflow(t)
	w.Start()

	// After each advance, no later-sequence phase may be completed while an
	// earlier one is not.
	for range testPhases {
		w.CompletePhase()
		st := w.GetStatus()
		seenIncomplete := false
		for _, name := range st.PhaseOrder {
			done := st.Phases[name].Status == domain.PhaseCompleted
			if seenIncomplete {
				require.False(t, done, "phase %s completed out of order", name)
			}
			if !done {
				seenIncomplete = true
			}
		}
	}
}

func TestStartPhaseOverActivePhaseKeepsSingleRunning(t *testing.T) {
	w := newTestWorkflow(t)
	w.Start()

	// Jumping straight to a later phase closes the active one in place; it
	// must not trigger sequence advancement on the way.
	w.mu.Lock()
	err := w.startPhase("polish")
	w.mu.Unlock()
	require.NoError(t, err)

	st := w.GetStatus()
	require.Equal(t, "polish", st.CurrentPhase)
	require.Equal(t, domain.PhaseCompleted, st.Phases["outline"].Status)
	require.Equal(t, domain.PhasePending, st.Phases["draft"].Status)
	assertSingleRunningPhase(t, w)
}

func TestPauseResume(t *testing.T) {
	w := newTestWorkflow(t)
	w.Start()
	w.CompletePhase() // now in "draft"

	w.AddTask("t1", domain.Payload{"kind": "write"})
	w.AddResult("t1", domain.Payload{"text": "chapter"})

	w.Pause()
	st := w.GetStatus()
	require.Equal(t, domain.WorkflowPaused, st.Status)
	require.Equal(t, "draft", st.CurrentPhase)
	require.Equal(t, domain.PhasePaused, st.Phases["draft"].Status)

	w.Resume()
	st = w.GetStatus()
	require.Equal(t, domain.WorkflowRunning, st.Status)
	require.Equal(t, "draft", st.CurrentPhase)
	require.Equal(t, domain.PhaseRunning, st.Phases["draft"].Status)

	// Pausing must not disturb accumulated bookkeeping.
	require.Equal(t, 1, st.Phases["draft"].TaskCount)
	require.Equal(t, 1, st.Phases["draft"].ResultCount)
}

func TestResumeOnlyFromPaused(t *testing.T) {
	w := newTestWorkflow(t)
	w.Start()

	w.Resume() // not paused: no-op
	require.Equal(t, domain.WorkflowRunning, w.WorkflowStatus())

	w.Fail("boom")
	w.Resume()
	require.Equal(t, domain.WorkflowFailed, w.WorkflowStatus())
}

func TestFailScenario(t *testing.T) {
	w := newTestWorkflow(t)
	w.Start()
	w.CompletePhase() // outline done, draft running

	w.Fail("backend timeout")

	st := w.GetStatus()
	require.Equal(t, domain.WorkflowFailed, st.Status)
	require.Equal(t, domain.PhaseFailed, st.Phases["draft"].Status)
	require.Equal(t, []string{"backend timeout"}, st.Phases["draft"].Errors)
	// Earlier phases are untouched.
	require.Equal(t, domain.PhaseCompleted, st.Phases["outline"].Status)
}

func TestAccretionWithoutActivePhaseIsNoop(t *testing.T) {
	w := newTestWorkflow(t)

	// Nothing started yet: both are warnings, never panics.
	w.AddTask("t1", nil)
	w.AddResult("t1", nil)

	st := w.GetStatus()
	for _, p := range st.Phases {
		require.Zero(t, p.TaskCount)
		require.Zero(t, p.ResultCount)
	}
}

func TestCompletePhaseWithoutActivePhaseIsNoop(t *testing.T) {
	w := newTestWorkflow(t)
	w.CompletePhase()
	require.Equal(t, domain.WorkflowPending, w.WorkflowStatus())
}

func TestStartTwiceIsNoop(t *testing.T) {
	w := newTestWorkflow(t)
	w.Start()
	first := w.GetStatus().StartedAt
	w.Start()
	require.Equal(t, first, w.GetStatus().StartedAt)
	require.Equal(t, "outline", w.CurrentPhase())
}

func TestPauseTerminalIsNoop(t *testing.T) {
	w := newTestWorkflow(t)
	w.Start()
	w.Fail("done for")
	w.Pause()
	require.Equal(t, domain.WorkflowFailed, w.WorkflowStatus())
}

func TestSnapshotRoundTrip(t *testing.T) {
	store, err := storage.NewBookStorage(t.TempDir(), storage.NewBookID())
	require.NoError(t, err)

	w := New(store, testPhases, domain.Payload{"title": "Persisted"})
	w.Start()
	w.AddTask("t1", domain.Payload{"n": 1.0})
	w.CompletePhase()

	loaded, err := Load(store)
	require.NoError(t, err)

	require.Equal(t, w.BookID(), loaded.BookID())
	require.Equal(t, domain.WorkflowRunning, loaded.WorkflowStatus())
	require.Equal(t, "draft", loaded.CurrentPhase())
	require.Equal(t, "Persisted", loaded.Metadata().GetString("title"))

	st := loaded.GetStatus()
	require.Equal(t, domain.PhaseCompleted, st.Phases["outline"].Status)
	require.Equal(t, 1, st.Phases["outline"].TaskCount)

	// The reconstituted workflow keeps advancing through the same sequence.
	loaded.CompletePhase()
	loaded.CompletePhase()
	require.Equal(t, domain.WorkflowCompleted, loaded.WorkflowStatus())
}
