package adapter

import (
	"context"
	"fmt"

	"github.com/zen-systems/routegate/pkg/artifact"
	"google.golang.org/genai"
)

const googleDefaultModel = "gemini-2.0-pro"

// GoogleAdapter implements Provider for Gemini models.
type GoogleAdapter struct {
	client *genai.Client
}

// NewGoogleAdapter creates a new Google Gemini adapter.
func NewGoogleAdapter(apiKey string) (*GoogleAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google API key is required")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}

	return &GoogleAdapter{
		client: client,
	}, nil
}

// Describe returns the adapter metadata.
func (a *GoogleAdapter) Describe() Info {
	return Info{
		Name:   "google",
		Kind:   artifact.KindText,
		Models: []string{"gemini-2.0-pro", "gemini-2.5-flash"},
	}
}

// Invoke sends a prompt to Gemini and returns the response as an artifact.
func (a *GoogleAdapter) Invoke(ctx context.Context, prompt string, params Params) (*artifact.Artifact, error) {
	model := modelOr(params, googleDefaultModel)
	cfg := &genai.GenerateContentConfig{MaxOutputTokens: int32(maxTokens(params))}
	if params.Temperature != nil {
		t := float32(*params.Temperature)
		cfg.Temperature = &t
	}

	resp, err := a.client.Models.GenerateContent(ctx, model, genai.Text(prompt), cfg)
	if err != nil {
		return nil, Classify("google", fmt.Errorf("google API error: %w", err))
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, NewError("google", KindInvalidResponse, fmt.Errorf("no candidates returned"))
	}

	var content string
	if resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				content += part.Text
			}
		}
	}

	return artifact.New(content, "google", model, prompt), nil
}

// Ping fetches the default model's metadata.
func (a *GoogleAdapter) Ping(ctx context.Context) error {
	if _, err := a.client.Models.Get(ctx, googleDefaultModel, nil); err != nil {
		return Classify("google", err)
	}
	return nil
}
