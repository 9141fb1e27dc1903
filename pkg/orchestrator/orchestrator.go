// Package orchestrator wires classification, routing, execution and outcome
// tracking into a single request entry point.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zen-systems/routegate/pkg/adapter"
	"github.com/zen-systems/routegate/pkg/artifact"
	"github.com/zen-systems/routegate/pkg/classifier"
	"github.com/zen-systems/routegate/pkg/engine"
	"github.com/zen-systems/routegate/pkg/registry"
	"github.com/zen-systems/routegate/pkg/router"
	"github.com/zen-systems/routegate/pkg/tracker"
)

// FinalResponse is returned to the caller for a served request.
type FinalResponse struct {
	RequestID    string              `json:"request_id"`
	Text         string              `json:"text"`
	ProviderID   string              `json:"provider_id"`
	Model        string              `json:"model"`
	Reasoning    string              `json:"reasoning"`
	TaskType     classifier.TaskType `json:"task_type"`
	Complexity   float64             `json:"complexity"`
	AttemptIndex int                 `json:"attempt_index"`
	Chain        []string            `json:"chain"`
	Outcomes     []engine.Outcome    `json:"outcomes"`
	Artifact     *artifact.Artifact  `json:"artifact"`
	Duration     time.Duration       `json:"duration"`
}

// Plan is a dry-run routing decision.
type Plan struct {
	Descriptor classifier.Descriptor `json:"descriptor"`
	Decision   *router.Decision      `json:"decision"`
}

// ProviderStatus joins a registry profile with its tracked statistics.
type ProviderStatus struct {
	registry.Profile
	Stats []tracker.Stats `json:"stats,omitempty"`
}

// Option configures an Orchestrator.
type Option func(*options)

type options struct {
	classifier    *classifier.Classifier
	routerOpts    []router.Option
	engineOpts    []engine.Option
	trackerOpts   []tracker.Option
	healthTimeout time.Duration
	healthLimit   int
	logger        *zap.Logger
}

// WithClassifier replaces the default classifier.
func WithClassifier(c *classifier.Classifier) Option {
	return func(o *options) { o.classifier = c }
}

// WithRouterOptions passes options to the router.
func WithRouterOptions(opts ...router.Option) Option {
	return func(o *options) { o.routerOpts = append(o.routerOpts, opts...) }
}

// WithEngineOptions passes options to the execution engine.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(o *options) { o.engineOpts = append(o.engineOpts, opts...) }
}

// WithTrackerOptions passes options to the outcome tracker.
func WithTrackerOptions(opts ...tracker.Option) Option {
	return func(o *options) { o.trackerOpts = append(o.trackerOpts, opts...) }
}

// WithHealthChecks bounds each health probe and how many run at once.
func WithHealthChecks(timeout time.Duration, limit int) Option {
	return func(o *options) {
		if timeout > 0 {
			o.healthTimeout = timeout
		}
		if limit > 0 {
			o.healthLimit = limit
		}
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	classifier *classifier.Classifier
	registry   *registry.Registry
	router     *router.Router
	engine     *engine.Engine
	tracker    *tracker.Tracker
	prober     *prober
	logger     *zap.Logger
}

// New assembles an orchestrator around reg.
func New(reg *registry.Registry, opts ...Option) *Orchestrator {
	o := options{
		healthTimeout: 10 * time.Second,
		healthLimit:   4,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.classifier == nil {
		o.classifier = classifier.New(classifier.WithLogger(o.logger))
	}

	trk := tracker.New(reg, append([]tracker.Option{tracker.WithLogger(o.logger)}, o.trackerOpts...)...)
	rt := router.New(reg, append([]router.Option{
		router.WithSpecialization(trk),
		router.WithLogger(o.logger),
	}, o.routerOpts...)...)
	eng := engine.New(reg, trk, append([]engine.Option{engine.WithLogger(o.logger)}, o.engineOpts...)...)

	return &Orchestrator{
		classifier: o.classifier,
		registry:   reg,
		router:     rt,
		engine:     eng,
		tracker:    trk,
		prober:     newProber(reg, eng, o.healthTimeout, o.healthLimit, o.logger),
		logger:     o.logger,
	}
}

// Register adds a provider profile and binds its adapter.
func (o *Orchestrator) Register(p registry.Profile, provider adapter.Provider) error {
	return o.RegisterWithParams(p, provider, adapter.Params{})
}

// RegisterWithParams is Register with explicit invocation params. An empty
// params.Model uses the profile's model.
func (o *Orchestrator) RegisterWithParams(p registry.Profile, provider adapter.Provider, params adapter.Params) error {
	if provider == nil {
		return fmt.Errorf("register %s: adapter is nil", p.ID)
	}
	if err := o.registry.Register(p); err != nil {
		return fmt.Errorf("register %s: %w", p.ID, err)
	}
	if params.Model == "" {
		params.Model = p.Model
	}
	o.engine.Bind(p.ID, provider, params)
	return nil
}

// Handle classifies, routes and executes one request. Failures are
// *router.NoEligibleProviderError before any provider is called, or
// *engine.AllProvidersFailedError once the chain is exhausted.
func (o *Orchestrator) Handle(ctx context.Context, req classifier.Request) (*FinalResponse, error) {
	start := time.Now()
	requestID := uuid.NewString()

	desc := o.classifier.Classify(req)
	decision, err := o.router.Route(desc)
	if err != nil {
		return nil, fmt.Errorf("route request %s: %w", requestID, err)
	}

	result, err := o.engine.Execute(ctx, decision.Chain, engine.Request{
		ID:         requestID,
		Prompt:     req.Text,
		Descriptor: desc,
	})
	if err != nil {
		return nil, fmt.Errorf("execute request %s: %w", requestID, err)
	}

	resp := &FinalResponse{
		RequestID:    requestID,
		Text:         result.Artifact.Content,
		ProviderID:   result.ProviderID,
		Model:        result.Artifact.Model,
		Reasoning:    decision.Reasoning,
		TaskType:     desc.TaskType,
		Complexity:   desc.Complexity,
		AttemptIndex: result.AttemptIndex,
		Chain:        decision.Chain,
		Outcomes:     result.Outcomes,
		Artifact:     result.Artifact,
		Duration:     time.Since(start),
	}
	o.logger.Info("request served",
		zap.String("request_id", requestID),
		zap.String("task_type", string(desc.TaskType)),
		zap.String("provider", resp.ProviderID),
		zap.Int("attempt", resp.AttemptIndex),
		zap.Duration("latency", resp.Duration),
	)
	return resp, nil
}

// Plan returns the descriptor and decision Handle would act on, without
// invoking any provider.
func (o *Orchestrator) Plan(req classifier.Request) (*Plan, error) {
	desc := o.classifier.Classify(req)
	decision, err := o.router.Route(desc)
	if err != nil {
		return &Plan{Descriptor: desc}, err
	}
	return &Plan{Descriptor: desc, Decision: decision}, nil
}

// Providers lists every registered provider with its per-task statistics.
func (o *Orchestrator) Providers() []ProviderStatus {
	byProvider := make(map[string][]tracker.Stats)
	for _, s := range o.tracker.Snapshot() {
		byProvider[s.ProviderID] = append(byProvider[s.ProviderID], s)
	}
	profiles := o.registry.All()
	out := make([]ProviderStatus, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, ProviderStatus{Profile: p, Stats: byProvider[p.ID]})
	}
	return out
}

// Flush waits until every outcome so far has been applied to scores.
func (o *Orchestrator) Flush(ctx context.Context) error {
	return o.tracker.Flush(ctx)
}

// CheckHealth pings every provider that supports it once.
func (o *Orchestrator) CheckHealth(ctx context.Context) map[string]error {
	return o.prober.checkAll(ctx)
}

// StartHealthChecks pings providers every interval until ctx ends or Close is called.
func (o *Orchestrator) StartHealthChecks(ctx context.Context, interval time.Duration) {
	o.prober.start(ctx, interval)
}

// Close stops health checks and drains pending outcomes.
func (o *Orchestrator) Close() {
	o.prober.stop()
	o.tracker.Close()
}
