// Package providers wraps the external generation backends behind narrow
// contracts: submit a structured prompt plus options, receive generated
// text or image bytes, retriable on transient failure.
package providers

import "context"

// Message is one turn of a generation conversation.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// UserMessage builds a user turn.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// AssistantMessage builds an assistant turn.
func AssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}

// Options control a text completion.
type Options struct {
	Model         string
	MaxTokens     int
	Temperature   float64
	TopP          float64
	TopK          int
	StopSequences []string
	System        string
	Stream        bool
}

// DefaultOptions returns the completion defaults.
func DefaultOptions() Options {
	return Options{
		MaxTokens:   4000,
		Temperature: 0.7,
		TopP:        1.0,
	}
}

// Completer is the text generation backend contract.
type Completer interface {
	Complete(ctx context.Context, messages []Message, opts Options) (string, error)
}

// ImageOptions control an image generation.
type ImageOptions struct {
	Prompt         string
	NegativePrompt string
	Width          int
	Height         int
	Steps          int
	CFGScale       float64
	Samples        int
	Seed           *int64
	Style          string
}

// DefaultImageOptions returns the image generation defaults.
func DefaultImageOptions() ImageOptions {
	return ImageOptions{
		Width:    1024,
		Height:   1024,
		Steps:    30,
		CFGScale: 7.0,
		Samples:  1,
	}
}

// ImageGenerator is the image generation backend contract.
type ImageGenerator interface {
	Generate(ctx context.Context, opts ImageOptions) ([]byte, error)
}

// GenerationError wraps a transport or API failure from a backend. These are
// the retriable failures; anything else is a programming error and is
// surfaced immediately.
type GenerationError struct {
	Backend string
	Err     error
}

func (e *GenerationError) Error() string {
	return "generation backend " + e.Backend + ": " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error { return e.Err }
