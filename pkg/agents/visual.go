package agents

import (
	"context"
	"fmt"

	"github.com/inkharmony/inkharmony/pkg/bus"
	"github.com/inkharmony/inkharmony/pkg/domain"
	"github.com/inkharmony/inkharmony/pkg/providers"
	"github.com/inkharmony/inkharmony/pkg/workflow"
)

// VisualWorker produces cover and interior art through the image backend.
type VisualWorker struct {
	worker
	images providers.ImageGenerator
}

var _ Handler = (*VisualWorker)(nil)

// NewVisualWorker wires the visual specialist.
func NewVisualWorker(b *bus.MessageBus, books *workflow.Manager, images providers.ImageGenerator, retry providers.RetryConfig) *VisualWorker {
	return &VisualWorker{
		worker: worker{role: domain.RoleVisual, bus: b, books: books, retry: retry},
		images: images,
	}
}

// Role implements Handler.
func (v *VisualWorker) Role() domain.Role { return v.role }

// Handle implements Handler.
func (v *VisualWorker) Handle(ctx context.Context, msg *bus.Message) error {
	return v.handle(ctx, msg, map[domain.TaskType]taskFunc{
		domain.TaskDesignCover: v.designCover,
		domain.TaskGenerateArt: v.generateArt,
	})
}

func (v *VisualWorker) designCover(ctx context.Context, msg *bus.Message) (domain.Payload, error) {
	if v.images == nil {
		return nil, fmt.Errorf("no image generation backend configured")
	}
	store, err := v.storageFor(msg)
	if err != nil {
		return nil, err
	}
	meta := v.metadataFor(msg)

	opts := providers.DefaultImageOptions()
	opts.Prompt = msg.Content.GetString("prompt")
	if opts.Prompt == "" {
		opts.Prompt = fmt.Sprintf("Book cover for %q, a %s book. %s",
			meta.GetString("title"), meta.GetString("genre"), meta.GetString("description"))
	}
	opts.Style = msg.Content.GetString("style")

	data, err := providers.GenerateWithRetry(ctx, v.images, v.retry, opts)
	if err != nil {
		return nil, err
	}

	path, err := store.SaveImage("cover", data, "png")
	if err != nil {
		return nil, err
	}
	return domain.Payload{"image": "cover", "path": path}, nil
}

func (v *VisualWorker) generateArt(ctx context.Context, msg *bus.Message) (domain.Payload, error) {
	if v.images == nil {
		return nil, fmt.Errorf("no image generation backend configured")
	}
	store, err := v.storageFor(msg)
	if err != nil {
		return nil, err
	}

	opts := providers.DefaultImageOptions()
	opts.Prompt = msg.Content.GetString("prompt")
	if opts.Prompt == "" {
		return nil, fmt.Errorf("generate_art requires a prompt")
	}
	opts.Style = msg.Content.GetString("style")

	name := msg.Content.GetString("name")
	if name == "" {
		name = "art"
	}

	data, err := providers.GenerateWithRetry(ctx, v.images, v.retry, opts)
	if err != nil {
		return nil, err
	}

	path, err := store.SaveImage(name, data, "png")
	if err != nil {
		return nil, err
	}
	return domain.Payload{"image": name, "path": path}, nil
}
