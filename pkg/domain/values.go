// Package domain provides the shared value objects for InkHarmony.
// All other packages build on these foundational types.
package domain

// ---------------------------------------------------------------------------
// Roles: the fixed set of agents in the book pipeline
// ---------------------------------------------------------------------------

// Role identifies an agent on the message bus.
type Role string

const (
	RoleSystem     Role = "system"
	RoleMaestro    Role = "maestro"
	RoleOutline    Role = "outline"
	RoleNarrative  Role = "narrative"
	RoleLinguistic Role = "linguistic"
	RoleVisual     Role = "visual"
)

// WorkerRoles returns the worker agents (everything except maestro/system).
func WorkerRoles() []Role {
	return []Role{RoleOutline, RoleNarrative, RoleLinguistic, RoleVisual}
}

func (r Role) String() string { return string(r) }

// ---------------------------------------------------------------------------
// Task types: closed enum, required on every task message
// ---------------------------------------------------------------------------

// TaskType classifies what a task message asks an agent to do.
// It is mandatory at message construction time; free-text inference lives in
// the agents package boundary adapter, never in the core.
type TaskType string

const (
	// Maestro tasks
	TaskInitializeBook   TaskType = "initialize_book"
	TaskAssignTask       TaskType = "assign_task"
	TaskEvaluateResult   TaskType = "evaluate_result"
	TaskProgressWorkflow TaskType = "progress_workflow"
	TaskHandleError      TaskType = "handle_error"
	TaskGenerateReport   TaskType = "generate_report"

	// Outline tasks
	TaskCreateOutline    TaskType = "create_outline"
	TaskCreateCharacters TaskType = "create_characters"
	TaskRefineOutline    TaskType = "refine_outline"

	// Narrative tasks
	TaskWriteChapter  TaskType = "write_chapter"
	TaskReviseChapter TaskType = "revise_chapter"

	// Linguistic tasks
	TaskPolishText     TaskType = "polish_text"
	TaskReviewDialogue TaskType = "review_dialogue"

	// Visual tasks
	TaskDesignCover TaskType = "design_cover"
	TaskGenerateArt TaskType = "generate_art"
)

// AllTaskTypes returns every known task type.
func AllTaskTypes() []TaskType {
	return []TaskType{
		TaskInitializeBook, TaskAssignTask, TaskEvaluateResult,
		TaskProgressWorkflow, TaskHandleError, TaskGenerateReport,
		TaskCreateOutline, TaskCreateCharacters, TaskRefineOutline,
		TaskWriteChapter, TaskReviseChapter,
		TaskPolishText, TaskReviewDialogue,
		TaskDesignCover, TaskGenerateArt,
	}
}

// Valid returns true if the task type is recognized.
func (t TaskType) Valid() bool {
	for _, tt := range AllTaskTypes() {
		if tt == t {
			return true
		}
	}
	return false
}

func (t TaskType) String() string { return string(t) }

// ---------------------------------------------------------------------------
// Workflow and phase statuses
// ---------------------------------------------------------------------------

// WorkflowStatus tracks the lifecycle of a book workflow.
type WorkflowStatus string

const (
	WorkflowPending   WorkflowStatus = "pending"
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowPaused    WorkflowStatus = "paused"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
)

func (s WorkflowStatus) String() string { return string(s) }

// Terminal returns true once no further transitions are defined.
func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowCompleted || s == WorkflowFailed
}

// PhaseStatus tracks the lifecycle of one phase within a workflow.
type PhaseStatus string

const (
	PhasePending   PhaseStatus = "pending"
	PhaseRunning   PhaseStatus = "running"
	PhasePaused    PhaseStatus = "paused"
	PhaseCompleted PhaseStatus = "completed"
	PhaseFailed    PhaseStatus = "failed"
)

func (s PhaseStatus) String() string { return string(s) }

// ---------------------------------------------------------------------------
// Payload: free-form key-value content carried by messages and metadata
// ---------------------------------------------------------------------------

// Payload is a generic key-value map for message content and metadata.
type Payload map[string]interface{}

// GetString returns a string value, or empty string if absent or not a string.
func (p Payload) GetString(key string) string {
	if p == nil {
		return ""
	}
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

// Set writes a key-value pair. Initializes the map if nil.
func (p *Payload) Set(key string, value interface{}) {
	if *p == nil {
		*p = make(Payload)
	}
	(*p)[key] = value
}

// Clone returns a shallow copy of the payload.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
