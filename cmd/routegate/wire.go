package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/zen-systems/routegate/pkg/adapter"
	"github.com/zen-systems/routegate/pkg/classifier"
	"github.com/zen-systems/routegate/pkg/config"
	"github.com/zen-systems/routegate/pkg/engine"
	"github.com/zen-systems/routegate/pkg/orchestrator"
	"github.com/zen-systems/routegate/pkg/policy"
	"github.com/zen-systems/routegate/pkg/registry"
	"github.com/zen-systems/routegate/pkg/router"
	"github.com/zen-systems/routegate/pkg/tracker"
)

// app is the assembled process.
type app struct {
	cfg       *config.Config
	providers *config.ProvidersConfig
	aliases   *config.ModelAliases
	logger    *zap.Logger
	orch      *orchestrator.Orchestrator
	prom      *prometheus.Registry
	redis     redis.UniversalClient
	// skipped lists profiles whose adapter has no credentials.
	skipped []config.ProviderSpec
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	providers, err := config.LoadProvidersOrDefault(cfg.Providers)
	if err != nil {
		return nil, fmt.Errorf("failed to load providers: %w", err)
	}

	pol, err := policy.NewRegistry().Get(cfg.Sensitive.Policy)
	if err != nil {
		return nil, fmt.Errorf("sensitivity policy: %w", err)
	}

	prom := prometheus.NewRegistry()
	prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := tracker.NewMetrics(prom, "routegate")

	trackerOpts := []tracker.Option{tracker.WithMetrics(metrics)}
	var rdb redis.UniversalClient
	if cfg.Redis.Address != "" {
		rdb, err = tracker.NewRedisClient(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		trackerOpts = append(trackerOpts, tracker.WithSink(tracker.NewRedisSink(rdb, cfg.Redis.Prefix, cfg.Redis.TTL)))
	}

	reg := registry.New(cfg.RegistrySettings(),
		registry.WithLogger(logger),
		registry.WithStateChange(metrics.ObserveBreaker),
	)
	orch := orchestrator.New(reg,
		orchestrator.WithLogger(logger),
		orchestrator.WithClassifier(classifier.New(
			classifier.WithSensitivityIndicators(cfg.Sensitive.Indicators),
			classifier.WithLogger(logger),
		)),
		orchestrator.WithRouterOptions(
			router.WithTopK(cfg.Router.TopK),
			router.WithWeights(cfg.Router.Weights),
			router.WithPolicy(pol),
		),
		orchestrator.WithEngineOptions(
			engine.WithTimeouts(cfg.TimeoutPolicy()),
			engine.WithRetry(cfg.RetryPolicy()),
		),
		orchestrator.WithTrackerOptions(trackerOpts...),
		orchestrator.WithHealthChecks(cfg.Health.Timeout, cfg.Health.Concurrency),
	)

	a := &app{
		cfg:       cfg,
		providers: providers,
		aliases:   providers.ModelAliases(),
		logger:    logger,
		orch:      orch,
		prom:      prom,
		redis:     rdb,
	}
	if err := a.registerProviders(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) registerProviders() error {
	shared, err := createAdapters(a.cfg)
	if err != nil {
		return err
	}

	for _, spec := range a.providers.Providers {
		provider, err := adapterFor(spec, shared)
		if err != nil {
			return fmt.Errorf("provider %s: %w", spec.ID, err)
		}
		if provider == nil {
			a.skipped = append(a.skipped, spec)
			a.logger.Debug("skipping provider without credentials",
				zap.String("provider", spec.ID),
				zap.String("adapter", spec.Adapter),
			)
			continue
		}
		profile := spec.Profile(a.aliases)
		params := adapter.Params{Model: profile.Model, MaxTokens: spec.MaxTokens, Temperature: spec.Temperature}
		if err := a.orch.RegisterWithParams(profile, provider, params); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) Close() {
	a.orch.Close()
	if a.redis != nil {
		_ = a.redis.Close()
	}
	_ = a.logger.Sync()
}

// createAdapters builds one client per configured vendor, shared by every
// profile that names it.
func createAdapters(cfg *config.Config) (map[string]adapter.Provider, error) {
	adapters := make(map[string]adapter.Provider)

	if cfg.AnthropicAPIKey != "" {
		a, err := adapter.NewAnthropicAdapter(cfg.AnthropicAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create anthropic adapter: %w", err)
		}
		adapters["anthropic"] = a
	}

	if cfg.OpenAIAPIKey != "" {
		a, err := adapter.NewOpenAIAdapter(cfg.OpenAIAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai adapter: %w", err)
		}
		adapters["openai"] = a

		img, err := adapter.NewOpenAIImageAdapter(cfg.OpenAIAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai image adapter: %w", err)
		}
		adapters["openai-image"] = img
	}

	if cfg.GoogleAPIKey != "" {
		a, err := adapter.NewGoogleAdapter(cfg.GoogleAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create google adapter: %w", err)
		}
		adapters["google"] = a
	}

	if cfg.DeepSeekAPIKey != "" {
		a, err := adapter.NewDeepSeekAdapter(cfg.DeepSeekAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create deepseek adapter: %w", err)
		}
		adapters["deepseek"] = a
	}

	return adapters, nil
}

// adapterFor returns nil, nil when the spec's vendor has no credentials.
func adapterFor(spec config.ProviderSpec, shared map[string]adapter.Provider) (adapter.Provider, error) {
	switch spec.Adapter {
	case "mock":
		return adapter.NewMockAdapter(spec.ID), nil
	case "compat":
		key := ""
		if spec.APIKeyEnv != "" {
			key = os.Getenv(spec.APIKeyEnv)
		}
		return adapter.NewCompatAdapter(spec.ID, spec.BaseURL, key, []string{spec.Model})
	}
	if a, ok := shared[spec.Adapter]; ok {
		return a, nil
	}
	switch spec.Adapter {
	case "anthropic", "openai", "openai-image", "google", "deepseek":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown adapter %q", spec.Adapter)
	}
}
