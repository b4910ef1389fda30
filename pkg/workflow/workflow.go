// Package workflow implements the phase-based state machine that tracks one
// book's production, and the manager that owns all live workflow instances.
//
// A workflow advances through a fixed, externally configured phase sequence:
// no skipping, no branching. At most one phase is running at any instant and
// the current-phase pointer is the single source of truth for which one.
// Every mutation ends with a full-state snapshot write, making each
// transition durable at book-production cadence.
package workflow

import (
	"sync"
	"time"

	"github.com/inkharmony/inkharmony/pkg/domain"
	"github.com/inkharmony/inkharmony/pkg/logger"
	"github.com/inkharmony/inkharmony/pkg/storage"
)

const logComponent = "workflow"

// WorkflowError is a typed error for workflow operations.
type WorkflowError string

func (e WorkflowError) Error() string { return string(e) }

const (
	// ErrUnknownPhase is returned when a phase name is not in the sequence.
	ErrUnknownPhase WorkflowError = "unknown phase"
)

// BookWorkflow is the aggregate root for one book's production state.
// It exclusively owns its phases and its storage handle.
type BookWorkflow struct {
	mu sync.Mutex

	bookID       string
	status       domain.WorkflowStatus
	startedAt    *time.Time
	completedAt  *time.Time
	currentPhase string
	sequence     []string
	phases       map[string]*Phase
	metadata     domain.Payload
	store        *storage.BookStorage
}

// New constructs a pending workflow over the given phase sequence, persists
// its initial state, and returns it. Nothing is started.
func New(store *storage.BookStorage, sequence []string, metadata domain.Payload) *BookWorkflow {
	w := &BookWorkflow{
		bookID:   store.BookID(),
		status:   domain.WorkflowPending,
		sequence: append([]string(nil), sequence...),
		phases:   make(map[string]*Phase, len(sequence)),
		metadata: metadata.Clone(),
		store:    store,
	}
	if w.metadata == nil {
		w.metadata = domain.Payload{}
	}
	for _, name := range sequence {
		w.phases[name] = newPhase(name)
	}
	w.saveState()
	return w
}

// BookID returns the workflow's book identifier.
func (w *BookWorkflow) BookID() string { return w.bookID }

// Storage returns the workflow's owned storage handle.
func (w *BookWorkflow) Storage() *storage.BookStorage { return w.store }

// Start transitions the workflow from Pending to Running and starts the
// first configured phase. Starting a workflow twice is a logged no-op.
func (w *BookWorkflow) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.status != domain.WorkflowPending {
		logger.WarnCF(logComponent, "start ignored: workflow not pending", map[string]interface{}{
			"book_id": w.bookID, "status": w.status.String(),
		})
		return
	}

	now := time.Now().UTC()
	w.status = domain.WorkflowRunning
	w.startedAt = &now

	if err := w.startPhase(w.sequence[0]); err != nil {
		// Unreachable for a validated sequence; keep the guard anyway.
		logger.ErrorCF(logComponent, "start first phase", map[string]interface{}{
			"book_id": w.bookID, "error": err.Error(),
		})
	}
	w.saveState()
}

// CompletePhase marks the active phase completed and starts the next phase
// in the sequence, or completes the whole workflow when none remains.
// With no active phase this is a logged no-op.
func (w *BookWorkflow) CompletePhase() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.completePhase()
	w.saveState()
}

// completePhase must be called with the lock held.
func (w *BookWorkflow) completePhase() {
	if w.currentPhase == "" {
		logger.WarnCF(logComponent, "complete_phase ignored: no active phase", map[string]interface{}{
			"book_id": w.bookID,
		})
		return
	}

	name := w.currentPhase
	w.phases[name].complete()
	logger.InfoCF(logComponent, "phase completed", map[string]interface{}{
		"book_id": w.bookID, "phase": name,
	})

	next := ""
	for i, p := range w.sequence {
		if p == name && i+1 < len(w.sequence) {
			next = w.sequence[i+1]
			break
		}
	}

	w.currentPhase = ""
	if next == "" {
		w.complete()
		return
	}
	if err := w.startPhase(next); err != nil {
		logger.ErrorCF(logComponent, "start next phase", map[string]interface{}{
			"book_id": w.bookID, "phase": next, "error": err.Error(),
		})
	}
}

// complete must be called with the lock held.
func (w *BookWorkflow) complete() {
	now := time.Now().UTC()
	w.status = domain.WorkflowCompleted
	w.completedAt = &now
	w.currentPhase = ""
	logger.InfoCF(logComponent, "workflow completed", map[string]interface{}{
		"book_id": w.bookID,
	})
}

// startPhase validates the name, then marks the named phase running and
// records it as current. A still-active phase is completed in place, without
// sequence advancement: only completePhase auto-advances, so the two can
// never start each other recursively. Must be called with the lock held.
func (w *BookWorkflow) startPhase(name string) error {
	phase, ok := w.phases[name]
	if !ok {
		return ErrUnknownPhase
	}

	if w.currentPhase != "" && w.currentPhase != name {
		w.phases[w.currentPhase].complete()
		logger.InfoCF(logComponent, "phase completed", map[string]interface{}{
			"book_id": w.bookID, "phase": w.currentPhase,
		})
	}

	w.currentPhase = name
	phase.start()
	logger.InfoCF(logComponent, "phase started", map[string]interface{}{
		"book_id": w.bookID, "phase": name,
	})
	return nil
}

// Pause suspends the workflow and the active phase, keeping position.
// Terminal workflows cannot be paused.
func (w *BookWorkflow) Pause() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.status.Terminal() {
		logger.WarnCF(logComponent, "pause ignored: workflow terminal", map[string]interface{}{
			"book_id": w.bookID, "status": w.status.String(),
		})
		return
	}

	w.status = domain.WorkflowPaused
	if w.currentPhase != "" {
		w.phases[w.currentPhase].pause()
	}
	w.saveState()
}

// Resume restores a paused workflow (and its active phase) to running.
// A no-op unless the workflow is currently paused.
func (w *BookWorkflow) Resume() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.status != domain.WorkflowPaused {
		return
	}

	w.status = domain.WorkflowRunning
	if w.currentPhase != "" {
		w.phases[w.currentPhase].resume()
	}
	w.saveState()
}

// Fail marks the workflow failed, terminally. The active phase, if any, is
// failed too and the reason recorded in its error list.
func (w *BookWorkflow) Fail(reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.status = domain.WorkflowFailed
	if w.currentPhase != "" {
		w.phases[w.currentPhase].fail(reason)
	}
	logger.ErrorCF(logComponent, "workflow failed", map[string]interface{}{
		"book_id": w.bookID, "reason": reason,
	})
	w.saveState()
}

// AddTask attaches a task payload to the active phase. A logged no-op when
// no phase is active.
func (w *BookWorkflow) AddTask(taskID string, data domain.Payload) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentPhase == "" {
		logger.WarnCF(logComponent, "cannot add task: no active phase", map[string]interface{}{
			"book_id": w.bookID, "task_id": taskID,
		})
		return
	}
	w.phases[w.currentPhase].addTask(taskID, data)
	w.saveState()
}

// AddResult attaches a result payload to the active phase. A logged no-op
// when no phase is active.
func (w *BookWorkflow) AddResult(taskID string, data domain.Payload) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentPhase == "" {
		logger.WarnCF(logComponent, "cannot add result: no active phase", map[string]interface{}{
			"book_id": w.bookID, "task_id": taskID,
		})
		return
	}
	w.phases[w.currentPhase].addResult(taskID, data)
	w.saveState()
}

// SetMetadata merges book-level facts into the workflow metadata.
func (w *BookWorkflow) SetMetadata(updates domain.Payload) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for k, v := range updates {
		w.metadata[k] = v
	}
	w.saveState()
}

// Metadata returns a copy of the workflow's metadata bag.
func (w *BookWorkflow) Metadata() domain.Payload {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.metadata.Clone()
}

// CurrentPhase returns the active phase name, or empty when none is active.
func (w *BookWorkflow) CurrentPhase() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentPhase
}

// WorkflowStatus returns the overall status.
func (w *BookWorkflow) WorkflowStatus() domain.WorkflowStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// PhaseInfo is a read-only view of one phase inside a status snapshot.
type PhaseInfo struct {
	Status      domain.PhaseStatus `json:"status"`
	Duration    float64            `json:"duration_seconds"`
	TaskCount   int                `json:"task_count"`
	ResultCount int                `json:"result_count"`
	ErrorCount  int                `json:"error_count"`
	Errors      []string           `json:"errors,omitempty"`
}

// Status is the read-only snapshot consumed by status reporting and the
// web front end.
type Status struct {
	BookID       string                `json:"book_id"`
	Status       domain.WorkflowStatus `json:"status"`
	CurrentPhase string                `json:"current_phase,omitempty"`
	StartedAt    *time.Time            `json:"started_at,omitempty"`
	CompletedAt  *time.Time            `json:"completed_at,omitempty"`
	Duration     float64               `json:"duration_seconds"`
	PhaseOrder   []string              `json:"phase_order"`
	Phases       map[string]PhaseInfo  `json:"phases"`
	Metadata     domain.Payload        `json:"metadata"`
}

// GetStatus produces a point-in-time snapshot of the whole workflow.
func (w *BookWorkflow) GetStatus() *Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	phases := make(map[string]PhaseInfo, len(w.phases))
	for name, p := range w.phases {
		phases[name] = PhaseInfo{
			Status:      p.Status,
			Duration:    p.Duration().Seconds(),
			TaskCount:   len(p.Tasks),
			ResultCount: len(p.Results),
			ErrorCount:  len(p.Errors),
			Errors:      append([]string(nil), p.Errors...),
		}
	}

	return &Status{
		BookID:       w.bookID,
		Status:       w.status,
		CurrentPhase: w.currentPhase,
		StartedAt:    w.startedAt,
		CompletedAt:  w.completedAt,
		Duration:     w.duration().Seconds(),
		PhaseOrder:   append([]string(nil), w.sequence...),
		Phases:       phases,
		Metadata:     w.metadata.Clone(),
	}
}

// duration must be called with the lock held.
func (w *BookWorkflow) duration() time.Duration {
	if w.startedAt == nil {
		return 0
	}
	end := time.Now().UTC()
	if w.completedAt != nil {
		end = *w.completedAt
	}
	return end.Sub(*w.startedAt)
}

// saveState persists the full snapshot plus the flattened metadata
// projection. Persistence failure never blocks an in-memory transition; it
// is logged and the next mutation retries the write. Must be called with
// the lock held.
func (w *BookWorkflow) saveState() {
	if err := w.store.SaveState(w.snapshot()); err != nil {
		logger.ErrorCF(logComponent, "persist state", map[string]interface{}{
			"book_id": w.bookID, "error": err.Error(),
		})
	}

	meta := w.metadata.Clone()
	meta["book_id"] = w.bookID
	meta["status"] = w.status.String()
	meta["current_phase"] = w.currentPhase
	if w.startedAt != nil {
		meta["started_at"] = w.startedAt.Format(time.RFC3339Nano)
	}
	if w.completedAt != nil {
		meta["completed_at"] = w.completedAt.Format(time.RFC3339Nano)
	}
	if err := w.store.SaveMetadata(meta); err != nil {
		logger.ErrorCF(logComponent, "persist metadata", map[string]interface{}{
			"book_id": w.bookID, "error": err.Error(),
		})
	}
}
