package adapter

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/zen-systems/routegate/pkg/artifact"
)

const anthropicDefaultModel = "claude-sonnet-4-20250514"

// AnthropicAdapter implements Provider for Claude models.
type AnthropicAdapter struct {
	client anthropic.Client
}

// NewAnthropicAdapter creates a new Anthropic adapter.
// SDK-level retries are disabled; the engine owns retry and fallback.
func NewAnthropicAdapter(apiKey string) (*AnthropicAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey), option.WithMaxRetries(0))
	return &AnthropicAdapter{client: client}, nil
}

// Describe returns the adapter metadata.
func (a *AnthropicAdapter) Describe() Info {
	return Info{
		Name: "anthropic",
		Kind: artifact.KindText,
		Models: []string{
			"claude-sonnet-4-20250514",
			"claude-opus-4-20250514",
		},
	}
}

// Invoke sends a prompt to Claude and returns the response as an artifact.
func (a *AnthropicAdapter) Invoke(ctx context.Context, prompt string, params Params) (*artifact.Artifact, error) {
	model := modelOr(params, anthropicDefaultModel)
	req := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens(params),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if params.Temperature != nil {
		req.Temperature = anthropic.Float(*params.Temperature)
	}

	resp, err := a.client.Messages.New(ctx, req)
	if err != nil {
		return nil, Classify("anthropic", fmt.Errorf("anthropic API error: %w", err))
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return artifact.New(content, "anthropic", model, prompt), nil
}

// Ping lists models to verify credentials and reachability.
func (a *AnthropicAdapter) Ping(ctx context.Context) error {
	if _, err := a.client.Models.List(ctx, anthropic.ModelListParams{}); err != nil {
		return Classify("anthropic", err)
	}
	return nil
}
