package workflow

import (
	"time"

	"github.com/inkharmony/inkharmony/pkg/domain"
	"github.com/inkharmony/inkharmony/pkg/storage"
)

// Snapshot is the explicit, self-describing persisted form of a workflow.
// Every field of the workflow and its phases is enumerated here so persisted
// state is inspectable and repairable without the in-memory object graph.
type Snapshot struct {
	BookID       string                `json:"book_id"`
	Status       domain.WorkflowStatus `json:"status"`
	StartedAt    *time.Time            `json:"started_at,omitempty"`
	CompletedAt  *time.Time            `json:"completed_at,omitempty"`
	CurrentPhase string                `json:"current_phase,omitempty"`
	Sequence     []string              `json:"sequence"`
	Phases       []*Phase              `json:"phases"`
	Metadata     domain.Payload        `json:"metadata"`
}

// snapshot must be called with the lock held.
func (w *BookWorkflow) snapshot() *Snapshot {
	phases := make([]*Phase, 0, len(w.sequence))
	for _, name := range w.sequence {
		phases = append(phases, w.phases[name])
	}
	return &Snapshot{
		BookID:       w.bookID,
		Status:       w.status,
		StartedAt:    w.startedAt,
		CompletedAt:  w.completedAt,
		CurrentPhase: w.currentPhase,
		Sequence:     w.sequence,
		Phases:       phases,
		Metadata:     w.metadata,
	}
}

// Load reconstitutes a workflow from its persisted snapshot, re-attaching a
// live storage handle. Returns storage.ErrNotFound when no snapshot exists.
func Load(store *storage.BookStorage) (*BookWorkflow, error) {
	var snap Snapshot
	if err := store.LoadState(&snap); err != nil {
		return nil, err
	}

	w := &BookWorkflow{
		bookID:       snap.BookID,
		status:       snap.Status,
		startedAt:    snap.StartedAt,
		completedAt:  snap.CompletedAt,
		currentPhase: snap.CurrentPhase,
		sequence:     snap.Sequence,
		phases:       make(map[string]*Phase, len(snap.Phases)),
		metadata:     snap.Metadata,
		store:        store,
	}
	if w.bookID == "" {
		w.bookID = store.BookID()
	}
	if w.metadata == nil {
		w.metadata = domain.Payload{}
	}
	for _, p := range snap.Phases {
		if p.Tasks == nil {
			p.Tasks = make(map[string]domain.Payload)
		}
		if p.Results == nil {
			p.Results = make(map[string]domain.Payload)
		}
		w.phases[p.Name] = p
	}
	return w, nil
}
