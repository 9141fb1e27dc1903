// Package registry keeps the runtime table of provider profiles: static
// ratings, the adaptive dynamic score, and per-provider circuit breakers.
package registry

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/zen-systems/routegate/pkg/adapter"
	"github.com/zen-systems/routegate/pkg/capability"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrUnavailable     = errors.New("provider unavailable")
)

// Profile describes one registered provider/model.
type Profile struct {
	ID            string         `json:"id"`
	Adapter       string         `json:"adapter"`
	Model         string         `json:"model"`
	Capabilities  capability.Set `json:"capabilities"`
	StaticQuality float64        `json:"static_quality"`
	StaticSpeed   float64        `json:"static_speed"`
	// DynamicScore starts at StaticQuality and is owned by the registry;
	// Register ignores the value passed in.
	DynamicScore float64 `json:"dynamic_score"`
	// ContextLimit is the maximum input size in tokens. Zero means unlimited.
	ContextLimit int `json:"context_limit"`
	// LatencyTarget is the latency above which successes score less than 1.
	LatencyTarget time.Duration `json:"latency_target"`

	// Available and Breaker are computed on read.
	Available bool   `json:"available"`
	Breaker   string `json:"breaker"`
}

// Fits reports whether the profile accepts minContext tokens.
func (p Profile) Fits(minContext int) bool {
	return p.ContextLimit <= 0 || p.ContextLimit >= minContext
}

// Settings tunes scoring and circuit breaking.
type Settings struct {
	// Alpha is the EMA smoothing constant for dynamic scores.
	Alpha float64
	// FailureThreshold is the number of consecutive failures that trips a breaker.
	FailureThreshold uint32
	// FailureWindow is the span the last FailureThreshold failures must fit in to trip.
	FailureWindow time.Duration
	// CoolDown is how long a tripped breaker stays open before a probe is allowed.
	CoolDown time.Duration
}

// DefaultSettings returns the standard tuning.
func DefaultSettings() Settings {
	return Settings{
		Alpha:            0.2,
		FailureThreshold: 3,
		FailureWindow:    60 * time.Second,
		CoolDown:         30 * time.Second,
	}
}

// StateChangeFunc observes breaker transitions.
type StateChangeFunc func(id string, from, to gobreaker.State)

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithStateChange registers an observer for breaker transitions.
// The observer runs under the breaker's lock and must not call back into the registry.
func WithStateChange(fn StateChangeFunc) Option {
	return func(r *Registry) { r.onStateChange = fn }
}

type entry struct {
	mu         sync.RWMutex
	profile    Profile
	manualDown bool
	breaker    *gobreaker.TwoStepCircuitBreaker[struct{}]
	failures   *failureLog
}

// Registry is safe for concurrent use. The map lock only guards membership;
// each entry serializes its own updates.
type Registry struct {
	mu            sync.RWMutex
	entries       map[string]*entry
	settings      Settings
	logger        *zap.Logger
	onStateChange StateChangeFunc
}

// New creates an empty registry.
func New(settings Settings, opts ...Option) *Registry {
	def := DefaultSettings()
	if settings.Alpha <= 0 || settings.Alpha > 1 {
		settings.Alpha = def.Alpha
	}
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = def.FailureThreshold
	}
	if settings.FailureWindow <= 0 {
		settings.FailureWindow = def.FailureWindow
	}
	if settings.CoolDown <= 0 {
		settings.CoolDown = def.CoolDown
	}

	r := &Registry{
		entries:  make(map[string]*entry),
		settings: settings,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Settings returns the effective settings.
func (r *Registry) Settings() Settings {
	return r.settings
}

// Register inserts or updates a profile by ID. Updating keeps the dynamic
// score, manual availability mark and breaker state.
func (r *Registry) Register(p Profile) error {
	if p.ID == "" {
		return fmt.Errorf("profile id is required")
	}
	if p.StaticQuality < 0 || p.StaticQuality > 1 {
		return fmt.Errorf("profile %s: static_quality %.2f outside [0,1]", p.ID, p.StaticQuality)
	}
	if p.StaticSpeed < 0 || p.StaticSpeed > 1 {
		return fmt.Errorf("profile %s: static_speed %.2f outside [0,1]", p.ID, p.StaticSpeed)
	}
	if p.ContextLimit < 0 {
		return fmt.Errorf("profile %s: context_limit must not be negative", p.ID)
	}
	p.Capabilities = capability.NewSet(p.Capabilities...)
	p.Available = false
	p.Breaker = ""

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[p.ID]; ok {
		e.mu.Lock()
		p.DynamicScore = e.profile.DynamicScore
		e.profile = p
		e.mu.Unlock()
		r.logger.Info("provider profile updated", zap.String("provider", p.ID))
		return nil
	}

	p.DynamicScore = p.StaticQuality
	e := &entry{profile: p}
	e.breaker, e.failures = r.newBreaker(p.ID)
	r.entries[p.ID] = e
	r.logger.Info("provider registered",
		zap.String("provider", p.ID),
		zap.String("adapter", p.Adapter),
		zap.String("model", p.Model),
		zap.Strings("capabilities", p.Capabilities.Strings()),
	)
	return nil
}

// Get returns a snapshot of one profile.
func (r *Registry) Get(id string) (Profile, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Profile{}, err
	}
	return e.snapshot(), nil
}

// All returns snapshots of every profile, sorted by ID.
func (r *Registry) All() []Profile {
	return r.filter(func(Profile) bool { return true })
}

// Eligible returns available profiles that carry every required capability
// and accept minContext tokens, sorted by ID. The result is empty, never nil
// with an error, when nothing qualifies.
func (r *Registry) Eligible(required capability.Set, minContext int) []Profile {
	return r.filter(func(p Profile) bool {
		return p.Available && p.Capabilities.SupersetOf(required) && p.Fits(minContext)
	})
}

// Status returns the breaker state name: "closed", "half-open" or "open".
func (r *Registry) Status(id string) (string, error) {
	p, err := r.Get(id)
	if err != nil {
		return "", err
	}
	return p.Breaker, nil
}

// IsAvailable reports whether a provider may currently be routed to.
func (r *Registry) IsAvailable(id string) bool {
	e, err := r.lookup(id)
	if err != nil {
		return false
	}
	return e.snapshot().Available
}

// Release reports the outcome of an acquired attempt. An empty kind is a success.
type Release func(kind adapter.Kind)

// Acquire asks the provider's breaker for permission to invoke it. The caller
// must call the returned Release exactly once with the attempt's error kind.
func (r *Registry) Acquire(id string) (Release, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	down := e.manualDown
	cb := e.breaker
	failures := e.failures
	e.mu.RUnlock()

	if down {
		return nil, fmt.Errorf("%w: %s marked unavailable", ErrUnavailable, id)
	}
	done, err := cb.Allow()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, id, err)
	}

	var once sync.Once
	return func(kind adapter.Kind) {
		once.Do(func() {
			if !kind.Neutral() {
				if kind == "" {
					failures.reset()
				} else {
					failures.add(time.Now())
				}
				done(kind == "")
				return
			}
			// A neutral result leaves closed-state counters alone. A half-open
			// probe must still resolve: a rate limit proves the backend answers,
			// a caller cancellation proves nothing and re-arms the cool-down.
			if cb.State() == gobreaker.StateHalfOpen {
				done(kind == adapter.KindRateLimited)
			}
		})
	}, nil
}

// UpdateDynamicScore folds one outcome into the provider's EMA score.
func (r *Registry) UpdateDynamicScore(id string, success bool, latency time.Duration) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	signal := 0.0
	if success {
		signal = latencySignal(latency, e.profile.LatencyTarget)
	}
	alpha := r.settings.Alpha
	e.profile.DynamicScore = clamp(e.profile.DynamicScore*(1-alpha) + signal*alpha)
	return nil
}

// MarkUnavailable removes a provider from routing until MarkAvailable.
func (r *Registry) MarkUnavailable(id string) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	changed := !e.manualDown
	e.manualDown = true
	e.mu.Unlock()

	if changed {
		r.logger.Warn("provider marked unavailable", zap.String("provider", id))
	}
	return nil
}

// MarkAvailable clears a manual mark and resets the provider's breaker.
func (r *Registry) MarkAvailable(id string) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	changed := e.manualDown || e.breaker.State() != gobreaker.StateClosed
	e.manualDown = false
	if changed {
		e.breaker, e.failures = r.newBreaker(id)
	}
	e.mu.Unlock()

	if changed {
		r.logger.Info("provider marked available", zap.String("provider", id))
	}
	return nil
}

func (r *Registry) lookup(id string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	return e, nil
}

func (r *Registry) filter(keep func(Profile) bool) []Profile {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]Profile, 0, len(entries))
	for _, e := range entries {
		if p := e.snapshot(); keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// newBreaker builds a breaker whose closed-state counts never reset on a
// timer; the failure log decides whether recent failures are close enough.
func (r *Registry) newBreaker(id string) (*gobreaker.TwoStepCircuitBreaker[struct{}], *failureLog) {
	threshold := r.settings.FailureThreshold
	window := r.settings.FailureWindow
	failures := newFailureLog(int(threshold))
	cb := gobreaker.NewTwoStepCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        id,
		MaxRequests: 1,
		Timeout:     r.settings.CoolDown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold && failures.within(window, time.Now())
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Warn("circuit breaker state changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if r.onStateChange != nil {
				r.onStateChange(name, from, to)
			}
		},
	})
	return cb, failures
}

func (e *entry) snapshot() Profile {
	e.mu.RLock()
	p := e.profile
	down := e.manualDown
	cb := e.breaker
	e.mu.RUnlock()

	state := cb.State()
	p.Breaker = state.String()
	switch {
	case down:
		p.Available = false
	case state == gobreaker.StateClosed:
		p.Available = true
	case state == gobreaker.StateHalfOpen:
		// One probe at a time.
		p.Available = cb.Counts().Requests == 0
	default:
		p.Available = false
	}
	return p
}

// latencySignal scales a success by how far latency overshot the target.
func latencySignal(latency, target time.Duration) float64 {
	if target <= 0 || latency <= target {
		return 1
	}
	overshoot := float64(latency-target) / float64(target)
	return 1 / (1 + overshoot)
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
