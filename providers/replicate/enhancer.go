package replicate

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// DefaultEnhancerModel is the instruction model used to rewrite prompts.
const DefaultEnhancerModel = "meta/meta-llama-3-8b-instruct"

const curatorPrompt = "You are an expert AI art curator. Rewrite the user's simple prompt into a detailed, " +
	"high-quality image generation prompt for Flux. Focus on lighting, texture, and composition. " +
	"Keep it under 75 words. Output ONLY the new prompt, no \"Here is...\" or quotes.\n\nUser Prompt: %s"

// Enhancer rewrites short prompts with a Llama model on Replicate.
type Enhancer struct {
	client *Client
	model  string
	logger *zap.Logger
}

// NewEnhancer creates a prompt enhancer. An empty model uses the default.
func NewEnhancer(client *Client, model string, logger *zap.Logger) *Enhancer {
	if model == "" {
		model = DefaultEnhancerModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enhancer{client: client, model: model, logger: logger.With(zap.String("component", "enhancer"))}
}

// Enhance returns the rewritten prompt.
func (e *Enhancer) Enhance(ctx context.Context, prompt string) (string, error) {
	pred, _, err := e.client.Run(ctx, e.model, map[string]any{
		"prompt":      fmt.Sprintf(curatorPrompt, prompt),
		"max_tokens":  150,
		"temperature": 0.7,
		"top_p":       0.9,
	})
	if err != nil {
		return "", err
	}
	text, err := JoinText(pred.Output)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	e.logger.Debug("prompt enhanced", zap.Int("input_len", len(prompt)), zap.Int("output_len", len(text)))
	return text, nil
}
