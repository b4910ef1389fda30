package agents

import (
	"context"
	"fmt"

	"github.com/inkharmony/inkharmony/pkg/bus"
	"github.com/inkharmony/inkharmony/pkg/domain"
	"github.com/inkharmony/inkharmony/pkg/logger"
	"github.com/inkharmony/inkharmony/pkg/providers"
	"github.com/inkharmony/inkharmony/pkg/storage"
	"github.com/inkharmony/inkharmony/pkg/workflow"
)

// worker holds what every specialist role needs: the bus, workflow lookup for
// storage access, and the text backend.
type worker struct {
	role  domain.Role
	bus   *bus.MessageBus
	books *workflow.Manager
	text  providers.Completer
	retry providers.RetryConfig
}

// taskFunc processes one typed task and returns the result content to send
// back to the task's sender.
type taskFunc func(ctx context.Context, msg *bus.Message) (domain.Payload, error)

// handle is the shared per-message dispatch for all workers: typed tasks go
// through the role's task table, feedback and errors are logged, anything
// else is a warning.
func (w *worker) handle(ctx context.Context, msg *bus.Message, tasks map[domain.TaskType]taskFunc) error {
	switch msg.Kind {
	case bus.KindTask:
		taskType, ok := ResolveTaskType(w.role, msg.TaskType(), msg.Content.GetString("task_description"))
		if !ok {
			return fmt.Errorf("could not determine task type")
		}
		fn, ok := tasks[taskType]
		if !ok {
			return fmt.Errorf("task type %q is not a %s task", taskType, w.role)
		}
		result, err := fn(ctx, msg)
		if err != nil {
			return err
		}
		_, err = w.bus.SendResult(w.role, msg.Sender, result, msg.ID,
			domain.Payload{bus.MetaBookID: w.bookID(msg)})
		return err
	case bus.KindFeedback:
		logger.InfoCF(w.role.String(), "feedback received", map[string]interface{}{
			"parent_id": msg.ParentID,
			"feedback":  msg.Content.GetString("feedback"),
		})
		return nil
	case bus.KindError:
		logger.WarnCF(w.role.String(), "error notification", map[string]interface{}{
			"sender": msg.Sender.String(),
			"error":  msg.Content.GetString("error"),
		})
		return nil
	default:
		logger.WarnCF(w.role.String(), "unhandled message kind", map[string]interface{}{
			"message_id": msg.ID, "kind": msg.Kind.String(),
		})
		return nil
	}
}

// bookID resolves the book id from metadata, falling back to content.
func (w *worker) bookID(msg *bus.Message) string {
	if id := msg.BookID(); id != "" {
		return id
	}
	return msg.Content.GetString("book_id")
}

// storageFor returns the book's storage handle via its workflow.
func (w *worker) storageFor(msg *bus.Message) (*storage.BookStorage, error) {
	bookID := w.bookID(msg)
	if bookID == "" {
		return nil, fmt.Errorf("task carries no book_id")
	}
	wf := w.books.Get(bookID)
	if wf == nil {
		return nil, fmt.Errorf("workflow not found for book %q", bookID)
	}
	return wf.Storage(), nil
}

// metadataFor returns the book's workflow metadata, or an empty payload.
func (w *worker) metadataFor(msg *bus.Message) domain.Payload {
	if wf := w.books.Get(w.bookID(msg)); wf != nil {
		return wf.Metadata()
	}
	return domain.Payload{}
}

// complete runs one prompt through the text backend with retries.
func (w *worker) complete(ctx context.Context, system, prompt string, temperature float64) (string, error) {
	if w.text == nil {
		return "", fmt.Errorf("no text generation backend configured")
	}
	opts := providers.DefaultOptions()
	opts.System = system
	opts.Temperature = temperature
	return providers.CompleteWithRetry(ctx, w.text, w.retry,
		[]providers.Message{providers.UserMessage(prompt)}, opts)
}
