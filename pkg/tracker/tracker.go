// Package tracker records attempt outcomes off the request path and feeds
// them back into provider scores.
package tracker

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/routegate/pkg/adapter"
	"github.com/zen-systems/routegate/pkg/classifier"
	"github.com/zen-systems/routegate/pkg/engine"
	"github.com/zen-systems/routegate/pkg/registry"
)

const sinkTimeout = 2 * time.Second

// Scorer receives dynamic score updates.
type Scorer interface {
	UpdateDynamicScore(id string, success bool, latency time.Duration) error
	Get(id string) (registry.Profile, error)
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithMetrics publishes outcomes to Prometheus.
func WithMetrics(m *Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// WithSink mirrors outcomes to an external store.
func WithSink(s Sink) Option {
	return func(t *Tracker) { t.sink = s }
}

// WithWindow sets the rolling window size.
func WithWindow(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.windowSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

type flushWaiter struct {
	target uint64
	ch     chan struct{}
}

// Tracker applies outcomes in the order they were recorded on a single
// worker goroutine. Record never blocks the caller.
type Tracker struct {
	scores     Scorer
	metrics    *Metrics
	sink       Sink
	windowSize int
	logger     *zap.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []engine.Outcome
	enqueued uint64
	applied  uint64
	waiters  []flushWaiter
	closed   bool

	statsMu sync.RWMutex
	stats   map[key]*window

	closeOnce sync.Once
	done      chan struct{}
}

// New starts a tracker. scores may be nil when only statistics are wanted.
func New(scores Scorer, opts ...Option) *Tracker {
	t := &Tracker{
		scores:     scores,
		windowSize: DefaultWindow,
		logger:     zap.NewNop(),
		stats:      make(map[key]*window),
		done:       make(chan struct{}),
	}
	t.cond = sync.NewCond(&t.mu)
	for _, opt := range opts {
		opt(t)
	}
	go t.run()
	return t
}

// Record queues an outcome. Outcomes recorded after Close are dropped.
func (t *Tracker) Record(o engine.Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		t.logger.Debug("dropping outcome after close", zap.String("provider", o.ProviderID))
		return
	}
	t.queue = append(t.queue, o)
	t.enqueued++
	t.cond.Signal()
}

// Flush waits until every outcome recorded before the call has been applied.
func (t *Tracker) Flush(ctx context.Context) error {
	t.mu.Lock()
	if t.applied >= t.enqueued {
		t.mu.Unlock()
		return nil
	}
	w := flushWaiter{target: t.enqueued, ch: make(chan struct{})}
	t.waiters = append(t.waiters, w)
	t.mu.Unlock()

	select {
	case <-w.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close applies everything already queued and stops the worker.
func (t *Tracker) Close() {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.cond.Broadcast()
		t.mu.Unlock()
	})
	<-t.done
}

// SuccessRate returns the windowed success rate for a provider on a task type
// and the number of samples behind it.
func (t *Tracker) SuccessRate(providerID string, taskType classifier.TaskType) (float64, int) {
	s, ok := t.Stats(providerID, taskType)
	if !ok {
		return 0, 0
	}
	return s.SuccessRate, s.Samples
}

// Stats returns the statistics for one pair.
func (t *Tracker) Stats(providerID string, taskType classifier.TaskType) (Stats, bool) {
	k := key{provider: providerID, task: taskType}
	t.statsMu.RLock()
	defer t.statsMu.RUnlock()
	w, ok := t.stats[k]
	if !ok {
		return Stats{ProviderID: providerID, TaskType: taskType}, false
	}
	return w.stats(k), true
}

// Snapshot returns statistics for every pair seen, sorted by provider then task.
func (t *Tracker) Snapshot() []Stats {
	t.statsMu.RLock()
	out := make([]Stats, 0, len(t.stats))
	for k, w := range t.stats {
		out = append(out, w.stats(k))
	}
	t.statsMu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ProviderID != out[j].ProviderID {
			return out[i].ProviderID < out[j].ProviderID
		}
		return out[i].TaskType < out[j].TaskType
	})
	return out
}

func (t *Tracker) run() {
	defer close(t.done)
	for {
		t.mu.Lock()
		for len(t.queue) == 0 && !t.closed {
			t.cond.Wait()
		}
		if len(t.queue) == 0 && t.closed {
			t.releaseWaiters(true)
			t.mu.Unlock()
			return
		}
		batch := t.queue
		t.queue = nil
		t.mu.Unlock()

		for _, o := range batch {
			t.apply(o)
		}

		t.mu.Lock()
		t.applied += uint64(len(batch))
		t.releaseWaiters(false)
		t.mu.Unlock()
	}
}

// releaseWaiters must be called with t.mu held.
func (t *Tracker) releaseWaiters(all bool) {
	kept := t.waiters[:0]
	for _, w := range t.waiters {
		if all || w.target <= t.applied {
			close(w.ch)
			continue
		}
		kept = append(kept, w)
	}
	t.waiters = kept
}

func (t *Tracker) apply(o engine.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("outcome handler panicked", zap.String("provider", o.ProviderID), zap.Any("panic", r))
		}
	}()

	canceled := o.ErrorKind == adapter.KindCanceled

	if t.scores != nil && !canceled {
		if err := t.scores.UpdateDynamicScore(o.ProviderID, o.Success, o.Latency); err != nil {
			t.logger.Warn("dynamic score update failed", zap.String("provider", o.ProviderID), zap.Error(err))
		}
	}

	k := key{provider: o.ProviderID, task: o.TaskType}
	t.statsMu.Lock()
	w, ok := t.stats[k]
	if !ok {
		w = newWindow(t.windowSize)
		t.stats[k] = w
	}
	w.total++
	if !canceled {
		w.add(sample{success: o.Success, latency: o.Latency})
	}
	t.statsMu.Unlock()

	if t.metrics != nil {
		result := "success"
		if !o.Success {
			result = string(o.ErrorKind)
		}
		t.metrics.OutcomesTotal.WithLabelValues(o.ProviderID, string(o.TaskType), result).Inc()
		t.metrics.AttemptDuration.WithLabelValues(o.ProviderID).Observe(o.Latency.Seconds())
		if t.scores != nil {
			if p, err := t.scores.Get(o.ProviderID); err == nil {
				t.metrics.DynamicScore.WithLabelValues(o.ProviderID).Set(p.DynamicScore)
			}
		}
	}

	if t.sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := t.sink.Observe(ctx, o); err != nil {
			t.logger.Warn("outcome sink failed", zap.String("provider", o.ProviderID), zap.Error(err))
		}
		cancel()
	}

	t.logger.Debug("outcome applied",
		zap.String("request_id", o.RequestID),
		zap.String("provider", o.ProviderID),
		zap.String("task_type", string(o.TaskType)),
		zap.Bool("success", o.Success),
		zap.String("error_kind", string(o.ErrorKind)),
		zap.Duration("latency", o.Latency),
	)
}
