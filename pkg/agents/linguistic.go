package agents

import (
	"context"
	"fmt"

	"github.com/inkharmony/inkharmony/pkg/bus"
	"github.com/inkharmony/inkharmony/pkg/domain"
	"github.com/inkharmony/inkharmony/pkg/providers"
	"github.com/inkharmony/inkharmony/pkg/workflow"
)

const linguisticSystem = `You are a linguistic editor. You polish prose for
grammar, rhythm, and style without changing story content.`

// LinguisticWorker polishes prose and reviews dialogue.
type LinguisticWorker struct {
	worker
}

var _ Handler = (*LinguisticWorker)(nil)

// NewLinguisticWorker wires the linguistic specialist.
func NewLinguisticWorker(b *bus.MessageBus, books *workflow.Manager, text providers.Completer, retry providers.RetryConfig) *LinguisticWorker {
	return &LinguisticWorker{worker{role: domain.RoleLinguistic, bus: b, books: books, text: text, retry: retry}}
}

// Role implements Handler.
func (l *LinguisticWorker) Role() domain.Role { return l.role }

// Handle implements Handler.
func (l *LinguisticWorker) Handle(ctx context.Context, msg *bus.Message) error {
	return l.handle(ctx, msg, map[domain.TaskType]taskFunc{
		domain.TaskPolishText:     l.polishText,
		domain.TaskReviewDialogue: l.reviewDialogue,
	})
}

// targetComponent names the component a task operates on.
func targetComponent(msg *bus.Message) (string, error) {
	component := msg.Content.GetString("component")
	if component == "" {
		return "", fmt.Errorf("task carries no component name")
	}
	return component, nil
}

func (l *LinguisticWorker) polishText(ctx context.Context, msg *bus.Message) (domain.Payload, error) {
	store, err := l.storageFor(msg)
	if err != nil {
		return nil, err
	}
	component, err := targetComponent(msg)
	if err != nil {
		return nil, err
	}

	current, err := store.LoadComponent(component, "")
	if err != nil {
		return nil, fmt.Errorf("no %s to polish: %w", component, err)
	}

	prompt := fmt.Sprintf(
		"Polish this text.\nInstructions: %s\n\nText:\n%s",
		msg.Content.GetString("task_description"), current,
	)
	text, err := l.complete(ctx, linguisticSystem, prompt, 0.4)
	if err != nil {
		return nil, err
	}

	version, err := store.SaveComponent(component, text, "")
	if err != nil {
		return nil, err
	}
	return domain.Payload{"component": component, "version": version}, nil
}

// reviewDialogue returns critique notes without touching the component.
func (l *LinguisticWorker) reviewDialogue(ctx context.Context, msg *bus.Message) (domain.Payload, error) {
	store, err := l.storageFor(msg)
	if err != nil {
		return nil, err
	}
	component, err := targetComponent(msg)
	if err != nil {
		return nil, err
	}

	current, err := store.LoadComponent(component, "")
	if err != nil {
		return nil, fmt.Errorf("no %s to review: %w", component, err)
	}

	prompt := fmt.Sprintf(
		"Review the dialogue in this text and list concrete improvement notes.\n\nText:\n%s",
		current,
	)
	notes, err := l.complete(ctx, linguisticSystem, prompt, 0.4)
	if err != nil {
		return nil, err
	}
	return domain.Payload{"component": component, "notes": notes}, nil
}
