package adapter

import (
	"context"

	"github.com/zen-systems/routegate/pkg/artifact"
)

// Provider is the uniform contract every backend model or service implements.
// The attempt's time budget travels as the context deadline.
type Provider interface {
	// Invoke sends a prompt to the backend and returns its output.
	// Failures are reported as *Error.
	Invoke(ctx context.Context, prompt string, params Params) (*artifact.Artifact, error)

	// Describe returns static metadata about the provider.
	Describe() Info
}

// Pinger is implemented by providers that support a cheap health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Params carries per-invocation options.
type Params struct {
	Model       string
	MaxTokens   int
	Temperature *float64
}

// Info holds metadata about an adapter.
type Info struct {
	Name   string        `json:"name"`
	Kind   artifact.Kind `json:"kind"`
	Models []string      `json:"models"`
}

const defaultMaxTokens = 4096

func maxTokens(p Params) int64 {
	if p.MaxTokens <= 0 {
		return defaultMaxTokens
	}
	return int64(p.MaxTokens)
}

func modelOr(p Params, fallback string) string {
	if p.Model == "" {
		return fallback
	}
	return p.Model
}
