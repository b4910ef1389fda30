package agents

import (
	"context"
	"fmt"

	"github.com/inkharmony/inkharmony/pkg/bus"
	"github.com/inkharmony/inkharmony/pkg/domain"
	"github.com/inkharmony/inkharmony/pkg/providers"
	"github.com/inkharmony/inkharmony/pkg/workflow"
)

const narrativeSystem = `You are a narrative prose writer. You draft and revise
book chapters that follow the established outline and character roster.`

// NarrativeWorker drafts and revises chapters.
type NarrativeWorker struct {
	worker
}

var _ Handler = (*NarrativeWorker)(nil)

// NewNarrativeWorker wires the narrative specialist.
func NewNarrativeWorker(b *bus.MessageBus, books *workflow.Manager, text providers.Completer, retry providers.RetryConfig) *NarrativeWorker {
	return &NarrativeWorker{worker{role: domain.RoleNarrative, bus: b, books: books, text: text, retry: retry}}
}

// Role implements Handler.
func (n *NarrativeWorker) Role() domain.Role { return n.role }

// Handle implements Handler.
func (n *NarrativeWorker) Handle(ctx context.Context, msg *bus.Message) error {
	return n.handle(ctx, msg, map[domain.TaskType]taskFunc{
		domain.TaskWriteChapter:  n.writeChapter,
		domain.TaskReviseChapter: n.reviseChapter,
	})
}

// chapterNumber reads the target chapter from task content, defaulting to 1.
func chapterNumber(msg *bus.Message) int {
	if f, ok := msg.Content["chapter"].(float64); ok && f >= 1 {
		return int(f)
	}
	if i, ok := msg.Content["chapter"].(int); ok && i >= 1 {
		return i
	}
	return 1
}

func (n *NarrativeWorker) writeChapter(ctx context.Context, msg *bus.Message) (domain.Payload, error) {
	store, err := n.storageFor(msg)
	if err != nil {
		return nil, err
	}
	chapter := chapterNumber(msg)

	outline, _ := store.LoadComponent("outline", "")
	characters, _ := store.LoadComponent("characters", "")
	prompt := fmt.Sprintf(
		"Write chapter %d.\nBrief: %s\n\nOutline:\n%s\n\nCharacters:\n%s",
		chapter, msg.Content.GetString("task_description"), outline, characters,
	)
	text, err := n.complete(ctx, narrativeSystem, prompt, 0.8)
	if err != nil {
		return nil, err
	}

	component := fmt.Sprintf("chapter_%d", chapter)
	version, err := store.SaveComponent(component, text, "")
	if err != nil {
		return nil, err
	}
	return domain.Payload{"component": component, "chapter": chapter, "version": version}, nil
}

func (n *NarrativeWorker) reviseChapter(ctx context.Context, msg *bus.Message) (domain.Payload, error) {
	store, err := n.storageFor(msg)
	if err != nil {
		return nil, err
	}
	chapter := chapterNumber(msg)
	component := fmt.Sprintf("chapter_%d", chapter)

	current, err := store.LoadComponent(component, "")
	if err != nil {
		return nil, fmt.Errorf("no draft of %s to revise: %w", component, err)
	}

	prompt := fmt.Sprintf(
		"Revise chapter %d.\nInstructions: %s\n\nCurrent draft:\n%s",
		chapter, msg.Content.GetString("task_description"), current,
	)
	text, err := n.complete(ctx, narrativeSystem, prompt, 0.7)
	if err != nil {
		return nil, err
	}

	version, err := store.SaveComponent(component, text, "")
	if err != nil {
		return nil, err
	}
	return domain.Payload{"component": component, "chapter": chapter, "version": version}, nil
}
