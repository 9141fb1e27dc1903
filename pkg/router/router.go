// Package router ranks eligible providers into a fallback chain.
package router

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/zen-systems/routegate/pkg/capability"
	"github.com/zen-systems/routegate/pkg/classifier"
	"github.com/zen-systems/routegate/pkg/policy"
	"github.com/zen-systems/routegate/pkg/registry"
)

const (
	DefaultTopK = 3
	MaxTopK     = 8

	// MinSamplesForSpecialization is how many outcomes a (provider, task)
	// pair needs before its success rate influences the match bonus.
	MinSamplesForSpecialization = 5
	specializationShare         = 0.3
)

// Weights balance the composite score.
type Weights struct {
	Dynamic   float64 `mapstructure:"dynamic" json:"dynamic"`
	SpeedBias float64 `mapstructure:"speed_bias" json:"speed_bias"`
	Match     float64 `mapstructure:"match" json:"match"`
}

// DefaultWeights returns the standard weighting.
func DefaultWeights() Weights {
	return Weights{Dynamic: 0.5, SpeedBias: 0.3, Match: 0.2}
}

// Source supplies the eligible providers.
type Source interface {
	Eligible(required capability.Set, minContext int) []registry.Profile
}

// Specialization supplies observed success rates per provider and task type.
type Specialization interface {
	SuccessRate(providerID string, taskType classifier.TaskType) (rate float64, samples int)
}

// Option configures a Router.
type Option func(*Router)

// WithWeights overrides the score weights.
func WithWeights(w Weights) Option {
	return func(r *Router) { r.weights = w }
}

// WithTopK sets the chain length, clamped to [1, MaxTopK].
func WithTopK(k int) Option {
	return func(r *Router) { r.topK = clampTopK(k) }
}

// WithPolicy sets the sensitivity policy.
func WithPolicy(p policy.Policy) Option {
	return func(r *Router) { r.policy = p }
}

// WithSpecialization enables the observed success-rate bonus.
func WithSpecialization(s Specialization) Option {
	return func(r *Router) { r.specialization = s }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

// Router is stateless apart from its configuration and safe for concurrent use.
type Router struct {
	source         Source
	weights        Weights
	topK           int
	policy         policy.Policy
	specialization Specialization
	logger         *zap.Logger
}

// New creates a router reading from source.
func New(source Source, opts ...Option) *Router {
	r := &Router{
		source:  source,
		weights: DefaultWeights(),
		topK:    DefaultTopK,
		policy:  policy.Policy{ID: policy.Ignore},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TopK returns the configured chain length.
func (r *Router) TopK() int {
	return r.topK
}

// Route ranks the providers eligible for desc. It fails with
// *NoEligibleProviderError when no provider qualifies at any context size.
func (r *Router) Route(desc classifier.Descriptor) (*Decision, error) {
	extra, exclude := r.policy.Constraints(desc.Sensitive)
	required := desc.Required.Union(extra)

	eligible := without(r.source.Eligible(required, desc.EstimatedTokens), exclude)
	contextFallback := false
	if len(eligible) == 0 {
		eligible = largestContext(without(r.source.Eligible(required, 0), exclude))
		contextFallback = len(eligible) > 0
	}
	if len(eligible) == 0 {
		err := &NoEligibleProviderError{TaskType: desc.TaskType, Required: required, Excluded: exclude}
		r.logger.Warn("no eligible provider",
			zap.String("task_type", string(desc.TaskType)),
			zap.Strings("required", required.Strings()),
		)
		return nil, err
	}

	candidates := make([]Candidate, 0, len(eligible))
	for _, p := range eligible {
		candidates = append(candidates, r.score(p, desc, required))
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ProviderID < candidates[j].ProviderID
	})

	k := r.topK
	if k > len(candidates) {
		k = len(candidates)
	}
	chain := make([]string, k)
	for i := 0; i < k; i++ {
		chain[i] = candidates[i].ProviderID
	}

	d := &Decision{
		Chain:           chain,
		TaskType:        desc.TaskType,
		Complexity:      desc.Complexity,
		Required:        required,
		Candidates:      candidates,
		ContextFallback: contextFallback,
	}
	d.Reasoning = buildReasoning(desc, required, r.policy.ID, d)

	r.logger.Debug("routed request",
		zap.String("task_type", string(desc.TaskType)),
		zap.Strings("chain", chain),
		zap.String("reasoning", d.Reasoning),
	)
	return d, nil
}

func (r *Router) score(p registry.Profile, desc classifier.Descriptor, required capability.Set) Candidate {
	c := desc.Complexity
	speedBias := (1-c)*p.StaticSpeed + c*p.StaticQuality

	matched := p.Capabilities.Intersect(required)
	match := 0.0
	if len(p.Capabilities) > 0 {
		match = float64(len(matched)) / float64(len(p.Capabilities))
	}
	if r.specialization != nil {
		if rate, n := r.specialization.SuccessRate(p.ID, desc.TaskType); n >= MinSamplesForSpecialization {
			match = (1-specializationShare)*match + specializationShare*rate
		}
	}

	w := r.weights
	total := w.Dynamic*p.DynamicScore + w.SpeedBias*speedBias + w.Match*match
	return Candidate{
		ProviderID: p.ID,
		Score:      round(total),
		Dynamic:    round(p.DynamicScore),
		SpeedBias:  round(speedBias),
		Match:      round(match),
		Matched:    matched,
	}
}

func without(profiles []registry.Profile, exclude capability.Set) []registry.Profile {
	if len(exclude) == 0 {
		return profiles
	}
	out := profiles[:0:0]
	for _, p := range profiles {
		if len(p.Capabilities.Intersect(exclude)) == 0 {
			out = append(out, p)
		}
	}
	return out
}

// largestContext keeps the providers with the biggest context limit.
func largestContext(profiles []registry.Profile) []registry.Profile {
	best := 0
	for _, p := range profiles {
		if p.ContextLimit > best {
			best = p.ContextLimit
		}
	}
	var out []registry.Profile
	for _, p := range profiles {
		if p.ContextLimit == best {
			out = append(out, p)
		}
	}
	return out
}

func clampTopK(k int) int {
	if k < 1 {
		return 1
	}
	if k > MaxTopK {
		return MaxTopK
	}
	return k
}

// round drops float noise so equal scores tie-break by ID.
func round(v float64) float64 {
	return math.Round(v*1e9) / 1e9
}
