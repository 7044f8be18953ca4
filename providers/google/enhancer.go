package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/BaSui01/studioflow/providers"
	"github.com/BaSui01/studioflow/types"
)

// DefaultEnhancerModel is the Gemini model used to rewrite prompts.
const DefaultEnhancerModel = "gemini-2.5-flash"

const enhancementPrompt = "Rewrite the following image generation prompt to be more descriptive, detailed, " +
	"and artistic, high quality, optimized for Flux Dev. Keep it under 60 words. " +
	"Directly return the new prompt text only. Prompt: %q"

// Enhancer rewrites prompts with Gemini through the genai SDK.
type Enhancer struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewEnhancer creates a Gemini prompt enhancer.
func NewEnhancer(ctx context.Context, cfg providers.GoogleConfig, model string, logger *zap.Logger) (*Enhancer, error) {
	if model == "" {
		model = DefaultEnhancerModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := newGenAIClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Enhancer{client: client, model: model, logger: logger.With(zap.String("component", "enhancer"))}, nil
}

// Enhance returns the rewritten prompt.
func (e *Enhancer) Enhance(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		{Parts: []*genai.Part{{Text: fmt.Sprintf(enhancementPrompt, prompt)}}},
	}
	result, err := e.client.Models.GenerateContent(ctx, e.model, contents, nil)
	if err != nil {
		return "", mapGenAIError(err)
	}
	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", types.NewProviderError(types.ProviderMalformed, "gemini", "empty enhancement")
	}
	e.logger.Debug("prompt enhanced", zap.Int("input_len", len(prompt)), zap.Int("output_len", len(text)))
	return text, nil
}

// newGenAIClient builds a Gemini API client. A non-default BaseURL in cfg is
// passed to the SDK.
func newGenAIClient(ctx context.Context, cfg providers.GoogleConfig) (*genai.Client, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: providers.NewHTTPClient(cfg.WithDefaults().Timeout),
	}
	if cfg.BaseURL != "" && cfg.BaseURL != providers.DefaultGoogleBaseURL {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client, nil
}

func mapGenAIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return providers.MapHTTPError("gemini", apiErr.Code, apiErr.Message).WithCause(err)
	}
	return types.NewProviderError(types.ProviderTransport, "gemini", "gemini request failed").WithCause(err)
}
