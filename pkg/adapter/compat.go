package adapter

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/zen-systems/routegate/pkg/artifact"
)

const deepseekBaseURL = "https://api.deepseek.com/v1"

// CompatAdapter implements Provider for any backend that speaks the
// OpenAI chat completions format: DeepSeek, or a local inference daemon.
type CompatAdapter struct {
	name   string
	models []string
	client openai.Client
}

// NewCompatAdapter creates an adapter for an OpenAI-compatible endpoint.
// apiKey may be empty for local daemons that do not authenticate.
func NewCompatAdapter(name, baseURL, apiKey string, models []string) (*CompatAdapter, error) {
	if name == "" {
		return nil, fmt.Errorf("compat adapter name is required")
	}
	if baseURL == "" {
		return nil, fmt.Errorf("%s base URL is required", name)
	}

	opts := []option.RequestOption{option.WithBaseURL(baseURL), option.WithMaxRetries(0)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	} else {
		opts = append(opts, option.WithAPIKey("none"))
	}

	return &CompatAdapter{
		name:   name,
		models: models,
		client: openai.NewClient(opts...),
	}, nil
}

// NewDeepSeekAdapter creates a CompatAdapter pointed at DeepSeek.
func NewDeepSeekAdapter(apiKey string) (*CompatAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepseek API key is required")
	}
	return NewCompatAdapter("deepseek", deepseekBaseURL, apiKey, []string{
		"deepseek-chat",
		"deepseek-coder",
		"deepseek-reasoner",
	})
}

// Describe returns the adapter metadata.
func (a *CompatAdapter) Describe() Info {
	return Info{Name: a.name, Kind: artifact.KindText, Models: a.models}
}

// Invoke sends a prompt to the endpoint and returns the response as an artifact.
func (a *CompatAdapter) Invoke(ctx context.Context, prompt string, params Params) (*artifact.Artifact, error) {
	fallback := ""
	if len(a.models) > 0 {
		fallback = a.models[0]
	}
	model := modelOr(params, fallback)
	if model == "" {
		return nil, NewError(a.name, KindUnavailable, fmt.Errorf("no model configured"))
	}

	content, err := chatCompletion(ctx, a.client, model, prompt, params)
	if err != nil {
		return nil, Classify(a.name, fmt.Errorf("%s API error: %w", a.name, err))
	}
	return artifact.New(content, a.name, model, prompt), nil
}

// Ping lists models on the endpoint.
func (a *CompatAdapter) Ping(ctx context.Context) error {
	if _, err := a.client.Models.List(ctx); err != nil {
		return Classify(a.name, err)
	}
	return nil
}
