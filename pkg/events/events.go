// Package events defines the typed event contracts for the InkHarmony system.
// Every event flowing to the WebSocket stream uses one of these types. No
// ad-hoc map[string]interface{} events.
package events

import (
	"time"

	"github.com/inkharmony/inkharmony/pkg/bus"
	"github.com/inkharmony/inkharmony/pkg/domain"
)

// Event is the universal envelope for all system events.
type Event struct {
	// Type identifies the event (e.g., "message.sent", "workflow.started")
	Type string `json:"type"`

	// Source identifies who emitted the event
	Source string `json:"source"`

	// Timestamp is when the event was emitted
	Timestamp time.Time `json:"timestamp"`

	// Data is the typed payload
	Data interface{} `json:"data"`
}

// New creates a timestamped event.
func New(eventType, source string, data interface{}) Event {
	return Event{
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

const (
	// Message flow events
	MessageSent = "message.sent"

	// Workflow lifecycle events
	WorkflowCreated   = "workflow.created"
	WorkflowStarted   = "workflow.started"
	WorkflowPaused    = "workflow.paused"
	WorkflowResumed   = "workflow.resumed"
	WorkflowCompleted = "workflow.completed"
	WorkflowFailed    = "workflow.failed"
	PhaseStarted      = "phase.started"
	PhaseCompleted    = "phase.completed"

	// Component events
	ComponentSaved = "component.saved"
	ImageSaved     = "image.saved"

	// System events
	SystemStarted      = "system.started"
	SystemStopping     = "system.stopping"
	SystemInitialState = "system.initial_state"
	SystemStatusUpdate = "system.status_update"
)

// MessageEventData is the payload for message flow events. It mirrors the bus
// message minus its content body, which can be large.
type MessageEventData struct {
	MessageID string      `json:"message_id"`
	Kind      string      `json:"kind"`
	Sender    domain.Role `json:"sender"`
	Recipient domain.Role `json:"recipient"`
	TaskType  string      `json:"task_type,omitempty"`
	BookID    string      `json:"book_id,omitempty"`
	ParentID  string      `json:"parent_id,omitempty"`
}

// FromMessage builds a message.sent event from a bus message.
func FromMessage(msg *bus.Message) Event {
	return New(MessageSent, msg.Sender.String(), MessageEventData{
		MessageID: msg.ID,
		Kind:      msg.Kind.String(),
		Sender:    msg.Sender,
		Recipient: msg.Recipient,
		TaskType:  msg.TaskType().String(),
		BookID:    msg.BookID(),
		ParentID:  msg.ParentID,
	})
}

// WorkflowEventData is the payload for workflow lifecycle events. For
// phase.completed events DurationSeconds carries the finished phase's runtime.
type WorkflowEventData struct {
	BookID          string                `json:"book_id"`
	Status          domain.WorkflowStatus `json:"status"`
	Phase           string                `json:"phase,omitempty"`
	DurationSeconds float64               `json:"duration_seconds,omitempty"`
}

// ComponentEventData is the payload for component and image save events.
type ComponentEventData struct {
	BookID    string `json:"book_id"`
	Component string `json:"component"`
	Version   string `json:"version,omitempty"`
}

// SystemStatusData is the payload for the periodic status broadcast.
type SystemStatusData struct {
	UptimeSeconds  int `json:"uptime_seconds"`
	HistoryLen     int `json:"history_len"`
	PendingMailbox int `json:"pending_mailbox"`
}

// InitialStateData is the payload pushed to a WebSocket client on connect.
// Workflows stays untyped so this package sits below the workflow layer.
type InitialStateData struct {
	UptimeSeconds   int           `json:"uptime_seconds"`
	RegisteredRoles []domain.Role `json:"registered_roles"`
	HistoryLen      int           `json:"history_len"`
	Workflows       interface{}   `json:"workflows"`
}
