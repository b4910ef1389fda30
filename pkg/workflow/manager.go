package workflow

import (
	"fmt"
	"sync"

	"github.com/inkharmony/inkharmony/pkg/domain"
	"github.com/inkharmony/inkharmony/pkg/events"
	"github.com/inkharmony/inkharmony/pkg/logger"
	"github.com/inkharmony/inkharmony/pkg/storage"
)

// Observer receives workflow lifecycle events as transitions happen. Wired by
// the composition root; nil means nobody is listening.
type Observer func(events.Event)

// Manager owns lookup, creation, and lifecycle delegation for active
// workflows. Its cache is reconstructible from persisted state and is not
// the source of truth: a miss falls through to storage.
type Manager struct {
	mu       sync.Mutex
	root     string
	sequence []string
	cache    map[string]*BookWorkflow
	observer Observer
}

// NewManager creates a manager that stores books under root and builds new
// workflows over the given phase sequence.
func NewManager(root string, sequence []string) *Manager {
	return &Manager{
		root:     root,
		sequence: append([]string(nil), sequence...),
		cache:    make(map[string]*BookWorkflow),
	}
}

// SetObserver installs the lifecycle event observer.
func (m *Manager) SetObserver(fn Observer) {
	m.mu.Lock()
	m.observer = fn
	m.mu.Unlock()
}

// notify emits one lifecycle event if an observer is installed.
func (m *Manager) notify(eventType string, w *BookWorkflow, phase string, seconds float64) {
	m.mu.Lock()
	fn := m.observer
	m.mu.Unlock()
	if fn == nil {
		return
	}
	fn(events.New(eventType, "manager", events.WorkflowEventData{
		BookID:          w.BookID(),
		Status:          w.WorkflowStatus(),
		Phase:           phase,
		DurationSeconds: seconds,
	}))
}

// Create constructs a new pending workflow with the supplied metadata,
// persists its initial state, and registers it in the cache. The workflow
// is not started.
func (m *Manager) Create(metadata domain.Payload) (string, error) {
	bookID := storage.NewBookID()
	store, err := storage.NewBookStorage(m.root, bookID)
	if err != nil {
		return "", fmt.Errorf("create workflow: %w", err)
	}

	w := New(store, m.sequence, metadata)

	m.mu.Lock()
	m.cache[bookID] = w
	m.mu.Unlock()

	logger.InfoCF("manager", "workflow created", map[string]interface{}{
		"book_id": bookID, "title": metadata.GetString("title"),
	})
	m.notify(events.WorkflowCreated, w, "", 0)
	return bookID, nil
}

// Get returns the workflow for a book id, loading it from persisted state on
// a cache miss. Returns nil when no such book exists.
func (m *Manager) Get(bookID string) *BookWorkflow {
	m.mu.Lock()
	if w, ok := m.cache[bookID]; ok {
		m.mu.Unlock()
		return w
	}
	m.mu.Unlock()

	// Avoid creating a book directory as a side effect of a bad lookup.
	if !storage.Exists(m.root, bookID) {
		return nil
	}
	store, err := storage.NewBookStorage(m.root, bookID)
	if err != nil {
		return nil
	}
	w, err := Load(store)
	if err != nil {
		if err != storage.ErrNotFound {
			logger.WarnCF("manager", "load workflow", map[string]interface{}{
				"book_id": bookID, "error": err.Error(),
			})
		}
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another caller may have loaded it concurrently; keep the first.
	if cached, ok := m.cache[bookID]; ok {
		return cached
	}
	m.cache[bookID] = w
	return w
}

// Start begins a workflow. Returns false if the book id does not resolve.
func (m *Manager) Start(bookID string) bool {
	w := m.Get(bookID)
	if w == nil {
		return false
	}
	before := w.WorkflowStatus()
	w.Start()
	if before == domain.WorkflowPending && w.WorkflowStatus() == domain.WorkflowRunning {
		m.notify(events.WorkflowStarted, w, w.CurrentPhase(), 0)
		m.notify(events.PhaseStarted, w, w.CurrentPhase(), 0)
	}
	return true
}

// Pause suspends a workflow. Returns false if the book id does not resolve.
func (m *Manager) Pause(bookID string) bool {
	w := m.Get(bookID)
	if w == nil {
		return false
	}
	before := w.WorkflowStatus()
	w.Pause()
	if before != domain.WorkflowPaused && w.WorkflowStatus() == domain.WorkflowPaused {
		m.notify(events.WorkflowPaused, w, w.CurrentPhase(), 0)
	}
	return true
}

// Resume resumes a paused workflow. Returns false if the book id does not
// resolve.
func (m *Manager) Resume(bookID string) bool {
	w := m.Get(bookID)
	if w == nil {
		return false
	}
	before := w.WorkflowStatus()
	w.Resume()
	if before == domain.WorkflowPaused && w.WorkflowStatus() == domain.WorkflowRunning {
		m.notify(events.WorkflowResumed, w, w.CurrentPhase(), 0)
	}
	return true
}

// CompleteCurrentPhase advances a workflow one phase. Returns false if the
// book id does not resolve.
func (m *Manager) CompleteCurrentPhase(bookID string) bool {
	w := m.Get(bookID)
	if w == nil {
		return false
	}
	finished := w.CurrentPhase()
	w.CompletePhase()
	if finished == "" {
		return true
	}

	st := w.GetStatus()
	m.notify(events.PhaseCompleted, w, finished, st.Phases[finished].Duration)
	if st.Status == domain.WorkflowCompleted {
		m.notify(events.WorkflowCompleted, w, "", 0)
	} else if st.CurrentPhase != "" {
		m.notify(events.PhaseStarted, w, st.CurrentPhase, 0)
	}
	return true
}

// Fail terminally fails a workflow, recording the reason against its active
// phase. Returns false if the book id does not resolve.
func (m *Manager) Fail(bookID, reason string) bool {
	w := m.Get(bookID)
	if w == nil {
		return false
	}
	w.Fail(reason)
	m.notify(events.WorkflowFailed, w, w.CurrentPhase(), 0)
	return true
}

// AddTaskResult records a task result against a workflow's active phase.
// Returns false if the book id does not resolve.
func (m *Manager) AddTaskResult(bookID, taskID string, result domain.Payload) bool {
	w := m.Get(bookID)
	if w == nil {
		return false
	}
	w.AddResult(taskID, result)
	return true
}

// Status returns a workflow's status snapshot, or nil if the book id does
// not resolve.
func (m *Manager) Status(bookID string) *Status {
	w := m.Get(bookID)
	if w == nil {
		return nil
	}
	return w.GetStatus()
}

// ListActive returns status snapshots for every cache-resident workflow.
// This is deliberately not a full storage scan.
func (m *Manager) ListActive() []*Status {
	m.mu.Lock()
	workflows := make([]*BookWorkflow, 0, len(m.cache))
	for _, w := range m.cache {
		workflows = append(workflows, w)
	}
	m.mu.Unlock()

	out := make([]*Status, 0, len(workflows))
	for _, w := range workflows {
		out = append(out, w.GetStatus())
	}
	return out
}

// CountByStatus reports how many cache-resident workflows are in each state.
// Used by the metrics collector.
func (m *Manager) CountByStatus() map[domain.WorkflowStatus]int {
	m.mu.Lock()
	workflows := make([]*BookWorkflow, 0, len(m.cache))
	for _, w := range m.cache {
		workflows = append(workflows, w)
	}
	m.mu.Unlock()

	counts := make(map[domain.WorkflowStatus]int)
	for _, w := range workflows {
		counts[w.WorkflowStatus()]++
	}
	return counts
}

// Root returns the storage root the manager operates over.
func (m *Manager) Root() string { return m.root }
