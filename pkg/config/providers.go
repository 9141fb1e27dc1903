package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zen-systems/routegate/pkg/capability"
	"github.com/zen-systems/routegate/pkg/registry"
)

// ProvidersConfig is the provider profile file.
type ProvidersConfig struct {
	Aliases   map[string]string `yaml:"aliases,omitempty"`
	Providers []ProviderSpec    `yaml:"providers"`
}

// ProviderSpec is one plain profile record.
type ProviderSpec struct {
	ID            string        `yaml:"id"`
	Adapter       string        `yaml:"adapter"`
	Model         string        `yaml:"model"`
	BaseURL       string        `yaml:"base_url,omitempty"`
	APIKeyEnv     string        `yaml:"api_key_env,omitempty"`
	Capabilities  []string      `yaml:"capabilities"`
	StaticQuality float64       `yaml:"static_quality"`
	StaticSpeed   float64       `yaml:"static_speed"`
	ContextLimit  int           `yaml:"context_limit,omitempty"`
	LatencyTarget time.Duration `yaml:"latency_target,omitempty"`
	MaxTokens     int           `yaml:"max_tokens,omitempty"`
	Temperature   *float64      `yaml:"temperature,omitempty"`
}

// defaultRating fills static_quality and static_speed when the key is absent.
// An explicit 0 is kept.
const defaultRating = 0.5

// UnmarshalYAML decodes a profile record over the rating defaults.
func (s *ProviderSpec) UnmarshalYAML(value *yaml.Node) error {
	type plain ProviderSpec
	p := plain{StaticQuality: defaultRating, StaticSpeed: defaultRating}
	if err := value.Decode(&p); err != nil {
		return err
	}
	*s = ProviderSpec(p)
	return nil
}

// LoadProviders reads provider profiles from a YAML file.
func LoadProviders(path string) (*ProvidersConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg ProvidersConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	applyProfileDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// LoadProvidersOrDefault reads path when it exists and falls back to DefaultProviders.
func LoadProvidersOrDefault(path string) (*ProvidersConfig, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return LoadProviders(path)
		}
	}
	return DefaultProviders(), nil
}

// Validate checks that every profile can be registered.
func (c *ProvidersConfig) Validate() error {
	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.ID == "" {
			return fmt.Errorf("providers[%d]: id is required", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("provider %q defined twice", p.ID)
		}
		seen[p.ID] = true
		if p.Adapter == "" {
			return fmt.Errorf("provider %q: adapter is required", p.ID)
		}
		if p.Adapter == "compat" && p.BaseURL == "" {
			return fmt.Errorf("provider %q: compat adapter needs base_url", p.ID)
		}
		if p.StaticQuality < 0 || p.StaticQuality > 1 || p.StaticSpeed < 0 || p.StaticSpeed > 1 {
			return fmt.Errorf("provider %q: static ratings must be in [0,1]", p.ID)
		}
		if len(p.Capabilities) == 0 {
			return fmt.Errorf("provider %q: at least one capability is required", p.ID)
		}
	}
	return nil
}

// Profile converts the record into a registry profile, resolving model aliases.
func (p ProviderSpec) Profile(aliases *ModelAliases) registry.Profile {
	return registry.Profile{
		ID:            p.ID,
		Adapter:       p.Adapter,
		Model:         aliases.Resolve(p.Model),
		Capabilities:  capability.Parse(p.Capabilities),
		StaticQuality: p.StaticQuality,
		StaticSpeed:   p.StaticSpeed,
		ContextLimit:  p.ContextLimit,
		LatencyTarget: p.LatencyTarget,
	}
}

// ModelAliases returns the alias table declared in the file.
func (c *ProvidersConfig) ModelAliases() *ModelAliases {
	return NewModelAliases(c.Aliases)
}

// DefaultProviders returns a profile set covering every built-in adapter.
// Profiles whose adapter has no API key are skipped at startup.
func DefaultProviders() *ProvidersConfig {
	cfg := &ProvidersConfig{
		Aliases: map[string]string{
			"quality": "claude-sonnet-4-20250514",
			"deep":    "claude-opus-4-20250514",
			"fast":    "gpt-4o-mini",
			"general": "gpt-4o",
			"image":   "gpt-image-1",
			"gemini":  "gemini-2.5-pro",
			"flash":   "gemini-2.5-flash",
			"cheap":   "deepseek-chat",
			"reason":  "deepseek-reasoner",
		},
		Providers: []ProviderSpec{
			{
				ID: "claude-sonnet", Adapter: "anthropic", Model: "quality",
				Capabilities:  []string{"chat", "coding", "accuracy", "creative", "vision", "long-context", "safety_filter"},
				StaticQuality: 0.9, StaticSpeed: 0.6, ContextLimit: 200000, LatencyTarget: 20 * time.Second,
			},
			{
				ID: "claude-opus", Adapter: "anthropic", Model: "deep",
				Capabilities:  []string{"chat", "coding", "accuracy", "creative", "vision", "long-context", "safety_filter"},
				StaticQuality: 0.95, StaticSpeed: 0.3, ContextLimit: 200000, LatencyTarget: 40 * time.Second,
			},
			{
				ID: "gpt-4o", Adapter: "openai", Model: "general",
				Capabilities:  []string{"chat", "coding", "creative", "vision", "safety_filter"},
				StaticQuality: 0.85, StaticSpeed: 0.7, ContextLimit: 128000, LatencyTarget: 15 * time.Second,
			},
			{
				ID: "gpt-4o-mini", Adapter: "openai", Model: "fast",
				Capabilities:  []string{"chat", "fast", "safety_filter"},
				StaticQuality: 0.65, StaticSpeed: 0.95, ContextLimit: 128000, LatencyTarget: 5 * time.Second,
			},
			{
				ID: "gpt-image", Adapter: "openai-image", Model: "image",
				Capabilities:  []string{"image_generation", "safety_filter"},
				StaticQuality: 0.85, StaticSpeed: 0.3, LatencyTarget: 60 * time.Second,
			},
			{
				ID: "gemini-pro", Adapter: "google", Model: "gemini",
				Capabilities:  []string{"chat", "coding", "accuracy", "vision", "long-context"},
				StaticQuality: 0.85, StaticSpeed: 0.5, ContextLimit: 1000000, LatencyTarget: 25 * time.Second,
			},
			{
				ID: "gemini-flash", Adapter: "google", Model: "flash",
				Capabilities:  []string{"chat", "fast", "long-context"},
				StaticQuality: 0.7, StaticSpeed: 0.9, ContextLimit: 1000000, LatencyTarget: 8 * time.Second,
			},
			{
				ID: "deepseek-chat", Adapter: "deepseek", Model: "cheap",
				Capabilities:  []string{"chat", "coding", "creative", "unrestricted"},
				StaticQuality: 0.75, StaticSpeed: 0.6, ContextLimit: 64000, LatencyTarget: 20 * time.Second,
			},
			{
				ID: "deepseek-reasoner", Adapter: "deepseek", Model: "reason",
				Capabilities:  []string{"coding", "accuracy"},
				StaticQuality: 0.85, StaticSpeed: 0.2, ContextLimit: 64000, LatencyTarget: 60 * time.Second,
			},
		},
	}
	applyProfileDefaults(cfg)
	return cfg
}

func applyProfileDefaults(cfg *ProvidersConfig) {
	if cfg == nil {
		return
	}
	if cfg.Aliases == nil {
		cfg.Aliases = make(map[string]string)
	}
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		if p.ID == "" && p.Adapter != "" && p.Model != "" {
			p.ID = p.Adapter + "/" + p.Model
		}
		if p.LatencyTarget == 0 {
			p.LatencyTarget = 30 * time.Second
		}
		if len(p.Capabilities) == 0 {
			p.Capabilities = defaultCapabilities(p.Adapter)
		}
	}
}

func defaultCapabilities(adapterName string) []string {
	switch adapterName {
	case "openai-image":
		return []string{string(capability.ImageGeneration)}
	case "":
		return nil
	default:
		return []string{string(capability.Chat)}
	}
}
