// Package engine walks a ranked fallback chain and is the only component
// that invokes provider adapters.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/routegate/pkg/adapter"
	"github.com/zen-systems/routegate/pkg/artifact"
	"github.com/zen-systems/routegate/pkg/registry"
)

// Gate grants permission to invoke a provider.
type Gate interface {
	Acquire(id string) (registry.Release, error)
}

// Recorder receives outcomes. Record must not block.
type Recorder interface {
	Record(Outcome)
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeouts sets the per-attempt timeout policy.
func WithTimeouts(p TimeoutPolicy) Option {
	return func(e *Engine) { e.timeouts = p }
}

// WithRetry sets the same-provider retry policy.
func WithRetry(p RetryPolicy) Option {
	return func(e *Engine) { e.retry = p }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

type binding struct {
	provider adapter.Provider
	params   adapter.Params
}

// Engine holds provider bindings and executes chains. It holds no lock
// while an adapter call is in flight.
type Engine struct {
	mu       sync.RWMutex
	bindings map[string]binding

	gate     Gate
	recorder Recorder
	timeouts TimeoutPolicy
	retry    RetryPolicy
	logger   *zap.Logger
}

// New creates an engine. A nil gate admits every attempt; a nil recorder drops outcomes.
func New(gate Gate, recorder Recorder, opts ...Option) *Engine {
	e := &Engine{
		bindings: make(map[string]binding),
		gate:     gate,
		recorder: recorder,
		timeouts: DefaultTimeoutPolicy(),
		retry:    DefaultRetryPolicy(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Bind associates a provider ID with an adapter and its invocation params.
// The adapter is wrapped with adapter.Clean.
func (e *Engine) Bind(id string, p adapter.Provider, params adapter.Params) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bindings[id] = binding{provider: adapter.Clean(p), params: params}
}

// Provider returns the bound adapter for id.
func (e *Engine) Provider(id string) (adapter.Provider, bool) {
	b, ok := e.lookup(id)
	return b.provider, ok
}

// IDs lists bound provider IDs in sorted order.
func (e *Engine) IDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.bindings))
	for id := range e.bindings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Execute walks chain in order until one provider succeeds. Every invoked
// provider yields exactly one Outcome, recorded before Execute returns.
// When the chain is exhausted the error is *AllProvidersFailedError; when
// ctx ends first it wraps ctx.Err().
func (e *Engine) Execute(ctx context.Context, chain []string, req Request) (*Result, error) {
	res := &Result{AttemptIndex: -1}
	res.transition(StatePending, "", -1)

	for i, id := range chain {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("execution canceled before %s: %w", id, err)
		}

		b, ok := e.lookup(id)
		if !ok {
			res.Attempts = append(res.Attempts, Attempt{ProviderID: id, Skipped: true, Err: ErrUnboundProvider})
			e.logger.Warn("skipping unbound provider", zap.String("provider", id), zap.String("request_id", req.ID))
			continue
		}

		release := registry.Release(func(adapter.Kind) {})
		if e.gate != nil {
			rel, err := e.gate.Acquire(id)
			if err != nil {
				res.Attempts = append(res.Attempts, Attempt{ProviderID: id, Skipped: true, Err: err})
				e.logger.Info("provider refused by circuit breaker",
					zap.String("provider", id),
					zap.String("request_id", req.ID),
					zap.Error(err),
				)
				continue
			}
			release = rel
		}

		res.transition(StateTrying, id, i)
		art, kind, retries, latency, err := e.attempt(ctx, id, b, req)
		release(kind)

		outcome := Outcome{
			RequestID:    req.ID,
			ProviderID:   id,
			TaskType:     req.Descriptor.TaskType,
			Success:      kind == "",
			Latency:      latency,
			ErrorKind:    kind,
			AttemptIndex: i,
			Retries:      retries,
		}
		res.Outcomes = append(res.Outcomes, outcome)
		res.AttemptIndex = i
		if e.recorder != nil {
			e.recorder.Record(outcome)
		}

		if kind == "" {
			res.transition(StateSuccess, id, i)
			res.Artifact = art.WithMetadata("provider", id)
			res.ProviderID = id
			e.logger.Info("provider succeeded",
				zap.String("provider", id),
				zap.String("request_id", req.ID),
				zap.Int("attempt", i),
				zap.Duration("latency", latency),
			)
			return res, nil
		}

		res.transition(StateFailed, id, i)
		res.Attempts = append(res.Attempts, Attempt{ProviderID: id, ErrorKind: kind, Err: err})
		e.logger.Warn("provider failed",
			zap.String("provider", id),
			zap.String("request_id", req.ID),
			zap.Int("attempt", i),
			zap.String("error_kind", string(kind)),
			zap.Duration("latency", latency),
			zap.Error(err),
		)

		if kind == adapter.KindCanceled {
			return res, fmt.Errorf("execution canceled during %s: %w", id, errors.Join(ctx.Err(), err))
		}
	}

	res.transition(StateAllFailed, "", -1)
	return res, &AllProvidersFailedError{Attempts: res.Attempts}
}

// attempt invokes one provider, retrying transient failures per the retry policy.
func (e *Engine) attempt(ctx context.Context, id string, b binding, req Request) (*artifact.Artifact, adapter.Kind, int, time.Duration, error) {
	timeout := e.timeouts.For(req.Descriptor)
	start := time.Now()

	for retry := 0; ; retry++ {
		art, err := e.invoke(ctx, id, b, req.Prompt, timeout)
		if err == nil {
			return art, "", retry, time.Since(start), nil
		}

		kind := adapter.KindOf(err)
		if ctx.Err() != nil {
			kind = adapter.KindCanceled
		}
		if kind == adapter.KindCanceled || retry >= e.retry.MaxRetries || !adapter.IsTransient(err) {
			return nil, kind, retry, time.Since(start), err
		}

		backoff := computeBackoff(e.retry.BaseBackoff, e.retry.MaxBackoff, retry)
		e.logger.Debug("retrying provider",
			zap.String("provider", id),
			zap.Int("retry", retry+1),
			zap.Duration("backoff", backoff),
		)
		if err := sleepWithContext(ctx, backoff); err != nil {
			return nil, adapter.KindCanceled, retry, time.Since(start), err
		}
	}
}

type invokeResult struct {
	art *artifact.Artifact
	err error
}

// invoke runs one call under its own deadline. The call runs in a goroutine
// so a backend that ignores cancellation cannot hold the chain past timeout.
func (e *Engine) invoke(ctx context.Context, id string, b binding, prompt string, timeout time.Duration) (*artifact.Artifact, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan invokeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- invokeResult{err: adapter.NewError(id, adapter.KindUnknown, fmt.Errorf("adapter panic: %v", r))}
			}
		}()
		art, err := b.provider.Invoke(attemptCtx, prompt, b.params)
		done <- invokeResult{art: art, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, adapter.NewError(id, adapter.KindTimeout, r.err)
		}
		return r.art, r.err
	case <-attemptCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, adapter.NewError(id, adapter.KindCanceled, err)
		}
		return nil, adapter.NewError(id, adapter.KindTimeout,
			fmt.Errorf("no response within %s: %w", timeout, attemptCtx.Err()))
	}
}

func (e *Engine) lookup(id string) (binding, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, ok := e.bindings[id]
	return b, ok
}
