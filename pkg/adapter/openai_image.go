package adapter

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/zen-systems/routegate/pkg/artifact"
)

// OpenAIImageAdapter implements Provider for OpenAI image generation.
// The artifact content is the image URL, or base64 data when no URL is returned.
type OpenAIImageAdapter struct {
	client openai.Client
}

// NewOpenAIImageAdapter creates a new image generation adapter.
func NewOpenAIImageAdapter(apiKey string) (*OpenAIImageAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	client := openai.NewClient(option.WithAPIKey(apiKey), option.WithMaxRetries(0))
	return &OpenAIImageAdapter{client: client}, nil
}

// Describe returns the adapter metadata.
func (a *OpenAIImageAdapter) Describe() Info {
	return Info{
		Name:   "openai-image",
		Kind:   artifact.KindImageURL,
		Models: []string{openai.ImageModelGPTImage1, openai.ImageModelDallE3},
	}
}

// Invoke generates one image for the prompt.
func (a *OpenAIImageAdapter) Invoke(ctx context.Context, prompt string, params Params) (*artifact.Artifact, error) {
	model := modelOr(params, openai.ImageModelGPTImage1)
	resp, err := a.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  openai.ImageModel(model),
		N:      openai.Int(1),
	})
	if err != nil {
		return nil, Classify("openai-image", fmt.Errorf("openai images API error: %w", err))
	}
	if len(resp.Data) == 0 {
		return nil, NewError("openai-image", KindInvalidResponse, fmt.Errorf("no images returned"))
	}

	img := resp.Data[0]
	if img.URL != "" {
		return artifact.NewOfKind(artifact.KindImageURL, img.URL, "openai-image", model, prompt), nil
	}
	return artifact.NewOfKind(artifact.KindImageB64, img.B64JSON, "openai-image", model, prompt), nil
}
