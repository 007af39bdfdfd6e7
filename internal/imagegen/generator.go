// Package imagegen produces social and cover images: a generation call to
// an image model followed by a resize/re-encode pass.
package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/steveyegge/seoloop/internal/retry"
)

// DefaultModel is used when no image model is configured
const DefaultModel = openai.CreateImageModelDallE3

// imageAPI is the subset of the OpenAI client the generator calls.
type imageAPI interface {
	CreateImage(ctx context.Context, request openai.ImageRequest) (openai.ImageResponse, error)
}

// Generator turns a prompt into raw image bytes.
type Generator struct {
	api    imageAPI
	model  string
	caller *retry.Caller
	logger *slog.Logger
}

// generationPolicy allows for slow renders and keeps retries few, since
// every attempt is billed.
func generationPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries:       2,
		InitialBackoff:   2 * time.Second,
		MaxBackoff:       20 * time.Second,
		AttemptTimeout:   2 * time.Minute,
		FailureThreshold: 3,
		SuccessThreshold: 1,
		OpenTimeout:      time.Minute,
		MaxConcurrent:    2,
	}
}

// NewGenerator creates a generator using the OpenAI images API.
func NewGenerator(apiKey, model string, logger *slog.Logger) (*Generator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	return newGenerator(openai.NewClient(apiKey), model, generationPolicy(), logger), nil
}

func newGenerator(api imageAPI, model string, policy retry.Policy, logger *slog.Logger) *Generator {
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "imagegen")
	return &Generator{
		api:    api,
		model:  model,
		caller: retry.New("openai-images", policy, isRetriable, logger),
		logger: logger,
	}
}

func isRetriable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return retry.RetriableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return retry.RetriableStatus(reqErr.HTTPStatusCode)
	}
	return retry.Transient(err)
}

// Generate returns the decoded bytes of one landscape image for prompt.
func (g *Generator) Generate(ctx context.Context, prompt string) ([]byte, error) {
	g.logger.Debug("generating image", "model", g.model)

	var resp openai.ImageResponse
	err := g.caller.Do(ctx, "create image", func(ctx context.Context) error {
		var err error
		resp, err = g.api.CreateImage(ctx, openai.ImageRequest{
			Prompt:         prompt,
			Model:          g.model,
			N:              1,
			Size:           openai.CreateImageSize1792x1024,
			ResponseFormat: openai.CreateImageResponseFormatB64JSON,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("image generation failed: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("image generation returned no data")
	}

	raw, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decoding generated image: %w", err)
	}
	return raw, nil
}
