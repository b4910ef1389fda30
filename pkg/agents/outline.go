package agents

import (
	"context"
	"fmt"

	"github.com/inkharmony/inkharmony/pkg/bus"
	"github.com/inkharmony/inkharmony/pkg/domain"
	"github.com/inkharmony/inkharmony/pkg/providers"
	"github.com/inkharmony/inkharmony/pkg/workflow"
)

const outlineSystem = `You are a book outline architect. You produce chapter
structures, plot arcs, and character rosters in clean prose.`

// OutlineWorker builds and refines book outlines and character rosters.
type OutlineWorker struct {
	worker
}

var _ Handler = (*OutlineWorker)(nil)

// NewOutlineWorker wires the outline specialist.
func NewOutlineWorker(b *bus.MessageBus, books *workflow.Manager, text providers.Completer, retry providers.RetryConfig) *OutlineWorker {
	return &OutlineWorker{worker{role: domain.RoleOutline, bus: b, books: books, text: text, retry: retry}}
}

// Role implements Handler.
func (o *OutlineWorker) Role() domain.Role { return o.role }

// Handle implements Handler.
func (o *OutlineWorker) Handle(ctx context.Context, msg *bus.Message) error {
	return o.handle(ctx, msg, map[domain.TaskType]taskFunc{
		domain.TaskCreateOutline:    o.createOutline,
		domain.TaskCreateCharacters: o.createCharacters,
		domain.TaskRefineOutline:    o.refineOutline,
	})
}

func (o *OutlineWorker) createOutline(ctx context.Context, msg *bus.Message) (domain.Payload, error) {
	store, err := o.storageFor(msg)
	if err != nil {
		return nil, err
	}
	meta := o.metadataFor(msg)

	prompt := fmt.Sprintf(
		"Create a full outline for the book %q.\nGenre: %s\nDescription: %s\nBrief: %s",
		meta.GetString("title"), meta.GetString("genre"), meta.GetString("description"),
		msg.Content.GetString("task_description"),
	)
	text, err := o.complete(ctx, outlineSystem, prompt, 0.7)
	if err != nil {
		return nil, err
	}

	version, err := store.SaveComponent("outline", text, "")
	if err != nil {
		return nil, err
	}
	return domain.Payload{"component": "outline", "version": version}, nil
}

func (o *OutlineWorker) createCharacters(ctx context.Context, msg *bus.Message) (domain.Payload, error) {
	store, err := o.storageFor(msg)
	if err != nil {
		return nil, err
	}
	meta := o.metadataFor(msg)

	outline, _ := store.LoadComponent("outline", "")
	prompt := fmt.Sprintf(
		"Create the character roster for the book %q.\nGenre: %s\nOutline:\n%s",
		meta.GetString("title"), meta.GetString("genre"), outline,
	)
	text, err := o.complete(ctx, outlineSystem, prompt, 0.7)
	if err != nil {
		return nil, err
	}

	version, err := store.SaveComponent("characters", text, "")
	if err != nil {
		return nil, err
	}
	return domain.Payload{"component": "characters", "version": version}, nil
}

func (o *OutlineWorker) refineOutline(ctx context.Context, msg *bus.Message) (domain.Payload, error) {
	store, err := o.storageFor(msg)
	if err != nil {
		return nil, err
	}

	outline, err := store.LoadComponent("outline", "")
	if err != nil {
		return nil, fmt.Errorf("no outline to refine: %w", err)
	}

	prompt := fmt.Sprintf(
		"Refine this outline.\nInstructions: %s\n\nCurrent outline:\n%s",
		msg.Content.GetString("task_description"), outline,
	)
	text, err := o.complete(ctx, outlineSystem, prompt, 0.6)
	if err != nil {
		return nil, err
	}

	version, err := store.SaveComponent("outline", text, "")
	if err != nil {
		return nil, err
	}
	return domain.Payload{"component": "outline", "version": version}, nil
}
