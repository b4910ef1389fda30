package workflow

import (
	"time"

	"github.com/inkharmony/inkharmony/pkg/domain"
)

// Phase is one named stage of the book-production pipeline. Phases are
// created at workflow construction time and retained for audit even after
// the book finishes; they are mutated only through the workflow's
// transition operations.
type Phase struct {
	Name        string                    `json:"name"`
	Status      domain.PhaseStatus        `json:"status"`
	StartedAt   *time.Time                `json:"started_at,omitempty"`
	CompletedAt *time.Time                `json:"completed_at,omitempty"`
	Tasks       map[string]domain.Payload `json:"tasks"`
	Results     map[string]domain.Payload `json:"results"`
	Errors      []string                  `json:"errors"`
}

func newPhase(name string) *Phase {
	return &Phase{
		Name:    name,
		Status:  domain.PhasePending,
		Tasks:   make(map[string]domain.Payload),
		Results: make(map[string]domain.Payload),
	}
}

func (p *Phase) start() {
	now := time.Now().UTC()
	p.Status = domain.PhaseRunning
	p.StartedAt = &now
}

func (p *Phase) complete() {
	now := time.Now().UTC()
	p.Status = domain.PhaseCompleted
	p.CompletedAt = &now
}

func (p *Phase) fail(reason string) {
	p.Status = domain.PhaseFailed
	p.Errors = append(p.Errors, reason)
}

// pause suspends the phase without touching its timestamps.
func (p *Phase) pause() {
	p.Status = domain.PhasePaused
}

func (p *Phase) resume() {
	p.Status = domain.PhaseRunning
}

func (p *Phase) addTask(taskID string, data domain.Payload) {
	p.Tasks[taskID] = data
}

func (p *Phase) addResult(taskID string, data domain.Payload) {
	p.Results[taskID] = data
}

// Duration is the elapsed time since the phase started, frozen at completion.
// Zero if the phase never started.
func (p *Phase) Duration() time.Duration {
	if p.StartedAt == nil {
		return 0
	}
	end := time.Now().UTC()
	if p.CompletedAt != nil {
		end = *p.CompletedAt
	}
	return end.Sub(*p.StartedAt)
}
