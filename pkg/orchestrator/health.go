package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zen-systems/routegate/pkg/adapter"
	"github.com/zen-systems/routegate/pkg/engine"
	"github.com/zen-systems/routegate/pkg/registry"
)

// prober pings providers and toggles their manual availability mark. It only
// clears marks it set itself so operator decisions and breakers are untouched.
type prober struct {
	registry *registry.Registry
	engine   *engine.Engine
	timeout  time.Duration
	limit    int
	logger   *zap.Logger

	mu       sync.Mutex
	downed   map[string]bool
	cancel   context.CancelFunc
	finished chan struct{}
}

func newProber(reg *registry.Registry, eng *engine.Engine, timeout time.Duration, limit int, logger *zap.Logger) *prober {
	return &prober{
		registry: reg,
		engine:   eng,
		timeout:  timeout,
		limit:    limit,
		logger:   logger,
		downed:   make(map[string]bool),
	}
}

func (p *prober) start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.finished = make(chan struct{})
	finished := p.finished
	p.mu.Unlock()

	go func() {
		defer close(finished)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.checkAll(ctx)
			}
		}
	}()
}

func (p *prober) stop() {
	p.mu.Lock()
	cancel, finished := p.cancel, p.finished
	p.cancel = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
		<-finished
	}
}

func (p *prober) checkAll(ctx context.Context) map[string]error {
	var (
		mu      sync.Mutex
		results = make(map[string]error)
		g       errgroup.Group
	)
	g.SetLimit(p.limit)

	for _, id := range p.engine.IDs() {
		provider, ok := p.engine.Provider(id)
		if !ok {
			continue
		}
		pinger, ok := adapter.AsPinger(provider)
		if !ok {
			continue
		}
		g.Go(func() error {
			err := p.check(ctx, id, pinger)
			mu.Lock()
			results[id] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (p *prober) check(ctx context.Context, id string, pinger adapter.Pinger) error {
	pingCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	err := pinger.Ping(pingCtx)
	if ctx.Err() != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		if !p.downed[id] && p.registry.IsAvailable(id) {
			if markErr := p.registry.MarkUnavailable(id); markErr == nil {
				p.downed[id] = true
			}
		}
		p.logger.Warn("health check failed", zap.String("provider", id), zap.Error(err))
		return err
	}
	if p.downed[id] {
		if markErr := p.registry.MarkAvailable(id); markErr == nil {
			delete(p.downed, id)
			p.logger.Info("provider recovered", zap.String("provider", id))
		}
	}
	return nil
}
