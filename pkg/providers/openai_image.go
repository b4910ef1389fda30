package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/inkharmony/inkharmony/pkg/logger"
)

// OpenAIImageProvider generates images with the OpenAI Images API.
//
// The diffusion-style knobs in ImageOptions (steps, cfg scale, seed) have no
// counterpart in this API and are ignored; the negative prompt is folded into
// the prompt text instead.
type OpenAIImageProvider struct {
	client openai.Client
	model  string
}

var _ ImageGenerator = (*OpenAIImageProvider)(nil)

// NewOpenAIImageProvider builds a provider from an API key and model name.
func NewOpenAIImageProvider(apiKey, model string) *OpenAIImageProvider {
	return &OpenAIImageProvider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Generate produces one image and returns its raw bytes (PNG unless the
// backend says otherwise). Failures come back as *GenerationError.
func (p *OpenAIImageProvider) Generate(ctx context.Context, opts ImageOptions) ([]byte, error) {
	if opts.Prompt == "" {
		return nil, errors.New("openai: empty prompt")
	}

	prompt := opts.Prompt
	if opts.Style != "" {
		prompt = fmt.Sprintf("%s\n\nStyle: %s", prompt, opts.Style)
	}
	if opts.NegativePrompt != "" {
		prompt = fmt.Sprintf("%s\n\nAvoid: %s", prompt, opts.NegativePrompt)
	}

	params := openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  openai.ImageModel(p.model),
		Size:   openai.ImageGenerateParamsSize(fmt.Sprintf("%dx%d", opts.Width, opts.Height)),
	}
	if opts.Samples > 1 {
		params.N = openai.Int(int64(opts.Samples))
	}
	// gpt-image models always return base64 and reject the response_format
	// parameter; older models need it requested explicitly.
	if !strings.HasPrefix(p.model, "gpt-image") {
		params.ResponseFormat = openai.ImageGenerateParamsResponseFormatB64JSON
	}

	res, err := p.client.Images.Generate(ctx, params)
	if err != nil {
		logger.WarnCF("providers", "openai image request failed", map[string]interface{}{
			"model": p.model, "error": err.Error(),
		})
		return nil, &GenerationError{Backend: "openai", Err: err}
	}
	if len(res.Data) == 0 {
		return nil, &GenerationError{Backend: "openai", Err: errors.New("response contained no images")}
	}

	raw, err := base64.StdEncoding.DecodeString(res.Data[0].B64JSON)
	if err != nil {
		return nil, &GenerationError{Backend: "openai", Err: fmt.Errorf("decode image payload: %w", err)}
	}
	return raw, nil
}
