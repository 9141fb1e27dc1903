package adapter

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/zen-systems/routegate/pkg/artifact"
)

const openaiDefaultModel = "gpt-5.2-instant"

// OpenAIAdapter implements Provider for OpenAI chat models.
type OpenAIAdapter struct {
	client openai.Client
}

// NewOpenAIAdapter creates a new OpenAI adapter.
func NewOpenAIAdapter(apiKey string) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	client := openai.NewClient(option.WithAPIKey(apiKey), option.WithMaxRetries(0))
	return &OpenAIAdapter{client: client}, nil
}

// Describe returns the adapter metadata.
func (a *OpenAIAdapter) Describe() Info {
	return Info{
		Name: "openai",
		Kind: artifact.KindText,
		Models: []string{
			"gpt-5.2-instant",
			"gpt-5.2-thinking",
			"gpt-5.2-codex",
			"gpt-5.2-pro",
		},
	}
}

// Invoke sends a prompt to OpenAI and returns the response as an artifact.
func (a *OpenAIAdapter) Invoke(ctx context.Context, prompt string, params Params) (*artifact.Artifact, error) {
	model := modelOr(params, openaiDefaultModel)
	content, err := chatCompletion(ctx, a.client, model, prompt, params)
	if err != nil {
		return nil, Classify("openai", fmt.Errorf("openai API error: %w", err))
	}
	return artifact.New(content, "openai", model, prompt), nil
}

// Ping lists models to verify credentials and reachability.
func (a *OpenAIAdapter) Ping(ctx context.Context) error {
	if _, err := a.client.Models.List(ctx); err != nil {
		return Classify("openai", err)
	}
	return nil
}

// chatCompletion is shared by every adapter that speaks the OpenAI chat format.
func chatCompletion(ctx context.Context, client openai.Client, model, prompt string, params Params) (string, error) {
	req := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		MaxCompletionTokens: openai.Int(maxTokens(params)),
	}
	if params.Temperature != nil {
		req.Temperature = openai.Float(*params.Temperature)
	}

	resp, err := client.Chat.Completions.New(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", NewError("", KindInvalidResponse, fmt.Errorf("no choices returned"))
	}
	return resp.Choices[0].Message.Content, nil
}
