package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/inkharmony/inkharmony/pkg/bus"
	"github.com/inkharmony/inkharmony/pkg/domain"
	"github.com/inkharmony/inkharmony/pkg/logger"
	"github.com/inkharmony/inkharmony/pkg/providers"
	"github.com/inkharmony/inkharmony/pkg/workflow"
)

const maestroSystem = `You are the orchestrator of a multi-agent book production
pipeline. You coordinate outline, narrative, linguistic, and visual specialists.
Respond with a single JSON object and nothing else.`

// Maestro orchestrates book production: it owns workflow lifecycle decisions,
// assigns tasks to worker roles, and records their results. Decision text is
// delegated to an optional advisor backend; all protocol behavior works with
// a nil advisor and structured fallbacks.
type Maestro struct {
	bus     *bus.MessageBus
	books   *workflow.Manager
	advisor providers.Completer
	retry   providers.RetryConfig
}

var _ Handler = (*Maestro)(nil)

// NewMaestro wires the orchestrator. advisor may be nil.
func NewMaestro(b *bus.MessageBus, books *workflow.Manager, advisor providers.Completer, retry providers.RetryConfig) *Maestro {
	return &Maestro{bus: b, books: books, advisor: advisor, retry: retry}
}

// Role implements Handler.
func (m *Maestro) Role() domain.Role { return domain.RoleMaestro }

// Handle implements Handler.
func (m *Maestro) Handle(ctx context.Context, msg *bus.Message) error {
	switch msg.Kind {
	case bus.KindTask:
		return m.handleTask(ctx, msg)
	case bus.KindResult:
		return m.handleResult(msg)
	case bus.KindError:
		m.handleWorkerError(msg)
		return nil
	case bus.KindQuery:
		return m.handleQuery(msg)
	default:
		logger.WarnCF("maestro", "unhandled message kind", map[string]interface{}{
			"message_id": msg.ID, "kind": msg.Kind.String(),
		})
		return nil
	}
}

func (m *Maestro) handleTask(ctx context.Context, msg *bus.Message) error {
	switch msg.TaskType() {
	case domain.TaskInitializeBook:
		return m.initializeBook(ctx, msg)
	case domain.TaskAssignTask:
		return m.assignTask(ctx, msg)
	case domain.TaskEvaluateResult:
		return m.evaluateResult(ctx, msg)
	case domain.TaskProgressWorkflow:
		return m.progressWorkflow(ctx, msg)
	case domain.TaskHandleError:
		return m.handleWorkflowError(ctx, msg)
	case domain.TaskGenerateReport:
		return m.generateReport(msg)
	default:
		return fmt.Errorf("task type %q is not a maestro task", msg.TaskType())
	}
}

// handleResult records a worker's result against the originating task and
// acknowledges it with feedback.
func (m *Maestro) handleResult(msg *bus.Message) error {
	tasks := m.bus.History(bus.Filter{ID: msg.ParentID, Kind: bus.KindTask})
	if len(tasks) == 0 {
		logger.WarnCF("maestro", "result without originating task", map[string]interface{}{
			"message_id": msg.ID, "parent_id": msg.ParentID,
		})
		return nil
	}

	if bookID := msg.BookID(); bookID != "" {
		if w := m.books.Get(bookID); w != nil {
			w.AddResult(tasks[0].ID, msg.Content)
		}
	}

	_, err := m.bus.SendFeedback(m.Role(), msg.Sender, "result received and processed", msg.ID, 0)
	return err
}

// handleWorkerError fails the affected workflow when a worker reports an
// error tied to a book.
func (m *Maestro) handleWorkerError(msg *bus.Message) {
	errText := msg.Content.GetString("error")
	logger.ErrorCF("maestro", "worker reported error", map[string]interface{}{
		"sender": msg.Sender.String(), "error": errText,
	})
	if bookID := msg.BookID(); bookID != "" {
		m.books.Fail(bookID, errText)
	}
}

func (m *Maestro) handleQuery(msg *bus.Message) error {
	queryType := msg.Metadata.GetString(bus.MetaQueryType)
	switch queryType {
	case "workflow_status":
		bookID := msg.Content.GetString("book_id")
		st := m.books.Status(bookID)
		if st == nil {
			return fmt.Errorf("workflow not found for book %q", bookID)
		}
		_, err := m.bus.SendResponse(m.Role(), msg.Sender, domain.Payload{"status": st}, msg.ID)
		return err
	default:
		return fmt.Errorf("unknown query type %q", queryType)
	}
}

// initializeBook creates and starts a new workflow from the supplied book
// metadata, optionally enriched by the advisor's concept development.
func (m *Maestro) initializeBook(ctx context.Context, msg *bus.Message) error {
	metadata := asPayload(msg.Content["metadata"]).Clone()
	if metadata == nil {
		metadata = domain.Payload{}
	}
	if metadata.GetString("title") == "" {
		metadata["title"] = "Untitled Book"
	}
	metadata["created_at"] = float64(time.Now().Unix())

	prompt := fmt.Sprintf(
		"Develop the initial concept for a book.\nTitle: %s\nGenre: %s\nDescription: %s\nReturn JSON with keys: concept, themes, estimated_chapters.",
		metadata.GetString("title"), metadata.GetString("genre"), metadata.GetString("description"),
	)
	if concept := m.advise(ctx, prompt, 0.7); concept != nil {
		for k, v := range concept {
			if _, exists := metadata[k]; !exists {
				metadata[k] = v
			}
		}
	}

	bookID, err := m.books.Create(metadata)
	if err != nil {
		return fmt.Errorf("initialize book: %w", err)
	}

	if _, err := m.bus.SendResult(m.Role(), msg.Sender, domain.Payload{
		"book_id":        bookID,
		"initialization": metadata,
	}, msg.ID, domain.Payload{bus.MetaBookID: bookID}); err != nil {
		return err
	}

	m.books.Start(bookID)
	return nil
}

// assignTask dispatches a task to a worker role and records it against the
// workflow's active phase.
func (m *Maestro) assignTask(ctx context.Context, msg *bus.Message) error {
	bookID := msg.Content.GetString("book_id")
	target := domain.Role(msg.Content.GetString("agent"))
	details := asPayload(msg.Content["task_details"])

	if bookID == "" || target == "" {
		return fmt.Errorf("assign_task requires book_id and agent")
	}
	if !isWorkerRole(target) {
		return fmt.Errorf("agent %q is not a worker role", target)
	}
	w := m.books.Get(bookID)
	if w == nil {
		return fmt.Errorf("workflow not found for book %q", bookID)
	}

	description := details.GetString("task_description")
	taskType, ok := ResolveTaskType(target, domain.TaskType(details.GetString("task_type")), description)
	if !ok {
		return fmt.Errorf("cannot determine task type for agent %q", target)
	}

	content := domain.Payload{
		"book_id":          bookID,
		"task_description": description,
	}
	for k, v := range details {
		if _, exists := content[k]; !exists {
			content[k] = v
		}
	}
	prompt := fmt.Sprintf(
		"Refine this task briefing for the %s specialist.\nPhase: %s\nDetails: %s\nReturn JSON with key task_description.",
		target, w.CurrentPhase(), jsonString(details),
	)
	if briefing := m.advise(ctx, prompt, 0.7); briefing != nil {
		if d := briefing.GetString("task_description"); d != "" {
			content["task_description"] = d
		}
	}

	taskID, err := m.dispatch(target, taskType, bookID, content, msg.ID)
	if err != nil {
		return err
	}

	w.AddTask(taskID, domain.Payload{
		"agent":        target.String(),
		"task_type":    taskType.String(),
		"task_details": details,
		"assigned_at":  float64(time.Now().Unix()),
	})

	_, err = m.bus.SendResult(m.Role(), msg.Sender, domain.Payload{
		"task_id": taskID,
		"agent":   target.String(),
		"book_id": bookID,
	}, msg.ID, domain.Payload{bus.MetaBookID: bookID})
	return err
}

// evaluateResult scores a previously recorded result and feeds the verdict
// back to the producing worker.
func (m *Maestro) evaluateResult(ctx context.Context, msg *bus.Message) error {
	bookID := msg.Content.GetString("book_id")
	resultID := msg.Content.GetString("result_id")
	if bookID == "" || resultID == "" {
		return fmt.Errorf("evaluate_result requires book_id and result_id")
	}
	if m.books.Get(bookID) == nil {
		return fmt.Errorf("workflow not found for book %q", bookID)
	}

	results := m.bus.History(bus.Filter{ID: resultID, Kind: bus.KindResult})
	if len(results) == 0 {
		return fmt.Errorf("result message not found: %s", resultID)
	}
	result := results[0]

	evaluation := domain.Payload{
		"feedback":           "result accepted",
		"quality_score":      3,
		"meets_requirements": true,
	}
	prompt := fmt.Sprintf(
		"Evaluate this deliverable from the %s specialist.\nContent: %s\nCriteria: %s\nReturn JSON with keys: feedback, quality_score (1-5), meets_requirements.",
		result.Sender, jsonString(result.Content), jsonString(msg.Content["criteria"]),
	)
	if verdict := m.advise(ctx, prompt, 0.4); verdict != nil {
		evaluation = verdict
	}

	rating := 3
	if n, ok := evaluation["quality_score"].(float64); ok {
		rating = int(n)
	}
	if _, err := m.bus.SendFeedback(m.Role(), result.Sender, evaluation.GetString("feedback"), resultID, rating); err != nil {
		return err
	}

	_, err := m.bus.SendResult(m.Role(), msg.Sender, domain.Payload{
		"evaluation": evaluation,
		"book_id":    bookID,
		"result_id":  resultID,
	}, msg.ID, domain.Payload{bus.MetaBookID: bookID})
	return err
}

// progressWorkflow executes a lifecycle action (next, pause, resume) against
// a workflow and reports the outcome.
func (m *Maestro) progressWorkflow(ctx context.Context, msg *bus.Message) error {
	bookID := msg.Content.GetString("book_id")
	action := msg.Content.GetString("action")
	if action == "" {
		action = "next"
	}
	if bookID == "" {
		return fmt.Errorf("progress_workflow requires book_id")
	}
	w := m.books.Get(bookID)
	if w == nil {
		return fmt.Errorf("workflow not found for book %q", bookID)
	}

	outcome := ""
	switch action {
	case "next":
		if w.CurrentPhase() != "" {
			m.books.CompleteCurrentPhase(bookID)
			outcome = "advanced to next phase"
		} else {
			m.books.Start(bookID)
			outcome = "started workflow"
		}
	case "pause":
		m.books.Pause(bookID)
		outcome = "paused workflow"
	case "resume":
		m.books.Resume(bookID)
		outcome = "resumed workflow"
	default:
		outcome = "no action taken"
	}

	_, err := m.bus.SendResult(m.Role(), msg.Sender, domain.Payload{
		"book_id":        bookID,
		"action_taken":   action,
		"outcome":        outcome,
		"current_status": m.books.Status(bookID),
	}, msg.ID, domain.Payload{bus.MetaBookID: bookID})
	return err
}

// handleWorkflowError asks the advisor for a recovery assessment of a
// reported failure. The protocol fallback recommends a retry.
func (m *Maestro) handleWorkflowError(ctx context.Context, msg *bus.Message) error {
	bookID := msg.Content.GetString("book_id")
	if bookID == "" {
		return fmt.Errorf("handle_error requires book_id")
	}
	w := m.books.Get(bookID)
	if w == nil {
		return fmt.Errorf("workflow not found for book %q", bookID)
	}

	assessment := domain.Payload{
		"assessment":     "transient failure",
		"recommendation": "retry",
	}
	prompt := fmt.Sprintf(
		"A failure occurred in phase %s of a book workflow.\nDetails: %s\nReturn JSON with keys: assessment, recommendation, recovery_steps.",
		w.CurrentPhase(), jsonString(msg.Content["error_details"]),
	)
	if verdict := m.advise(ctx, prompt, 0.5); verdict != nil {
		assessment = verdict
	}

	_, err := m.bus.SendResult(m.Role(), msg.Sender, assessment,
		msg.ID, domain.Payload{bus.MetaBookID: bookID})
	return err
}

// generateReport returns the full status snapshot for a book.
func (m *Maestro) generateReport(msg *bus.Message) error {
	bookID := msg.Content.GetString("book_id")
	reportType := msg.Content.GetString("report_type")
	if reportType == "" {
		reportType = "progress"
	}
	st := m.books.Status(bookID)
	if st == nil {
		return fmt.Errorf("workflow not found for book %q", bookID)
	}

	_, err := m.bus.SendResult(m.Role(), msg.Sender, domain.Payload{
		"report_type":  reportType,
		"book_id":      bookID,
		"status":       st,
		"generated_at": float64(time.Now().Unix()),
	}, msg.ID, domain.Payload{bus.MetaBookID: bookID})
	return err
}

// dispatch sends a task to a worker, stamping the book id into metadata so
// replies can be routed back to the right workflow.
func (m *Maestro) dispatch(target domain.Role, taskType domain.TaskType, bookID string, content domain.Payload, parentID string) (string, error) {
	task, err := bus.NewTask(m.Role(), target, taskType, content, parentID)
	if err != nil {
		return "", err
	}
	task.Metadata.Set(bus.MetaBookID, bookID)
	return m.bus.Send(task), nil
}

// advise asks the advisor for a JSON decision. Returns nil when no advisor is
// configured or its output is unusable; callers fall back to structured
// defaults.
func (m *Maestro) advise(ctx context.Context, prompt string, temperature float64) domain.Payload {
	if m.advisor == nil {
		return nil
	}
	opts := providers.DefaultOptions()
	opts.System = maestroSystem
	opts.Temperature = temperature

	// The assistant prefill steers the advisor into bare JSON output.
	reply, err := providers.CompleteWithRetry(ctx, m.advisor, m.retry, []providers.Message{
		providers.UserMessage(prompt),
		providers.AssistantMessage("{"),
	}, opts)
	if err != nil {
		logger.WarnCF("maestro", "advisor unavailable, using fallback", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}

	// Backends differ on whether the prefilled brace is echoed back.
	text := strings.TrimSpace(reply)
	if !strings.HasPrefix(text, "{") {
		text = "{" + text
	}
	var out domain.Payload
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil
	}
	return out
}

// asPayload normalizes nested map values regardless of how the sender typed
// them.
func asPayload(v interface{}) domain.Payload {
	switch t := v.(type) {
	case domain.Payload:
		return t
	case map[string]interface{}:
		return domain.Payload(t)
	default:
		return nil
	}
}

func jsonString(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}
