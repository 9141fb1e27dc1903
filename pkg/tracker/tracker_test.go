package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/routegate/pkg/adapter"
	"github.com/zen-systems/routegate/pkg/capability"
	"github.com/zen-systems/routegate/pkg/classifier"
	"github.com/zen-systems/routegate/pkg/engine"
	"github.com/zen-systems/routegate/pkg/registry"
)

func newScores(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New(registry.DefaultSettings())
	require.NoError(t, reg.Register(registry.Profile{
		ID:            "claude",
		Capabilities:  capability.NewSet(capability.Chat),
		StaticQuality: 0.5,
		StaticSpeed:   0.5,
		LatencyTarget: time.Second,
	}))
	return reg
}

func flush(t *testing.T, tr *Tracker) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, tr.Flush(ctx))
}

func outcome(success bool, kind adapter.Kind) engine.Outcome {
	return engine.Outcome{
		ProviderID: "claude",
		TaskType:   classifier.Conversation,
		Success:    success,
		ErrorKind:  kind,
		Latency:    200 * time.Millisecond,
	}
}

func TestRecordUpdatesDynamicScore(t *testing.T) {
	scores := newScores(t)
	tr := New(scores)
	defer tr.Close()

	tr.Record(outcome(true, ""))
	flush(t, tr)

	p, err := scores.Get("claude")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, p.DynamicScore, 1e-9)

	tr.Record(outcome(false, adapter.KindTimeout))
	flush(t, tr)
	p, err = scores.Get("claude")
	require.NoError(t, err)
	assert.InDelta(t, 0.48, p.DynamicScore, 1e-9)
}

func TestRecordAppliesInOrder(t *testing.T) {
	scores := newScores(t)
	tr := New(scores)
	defer tr.Close()

	for i := 0; i < 10; i++ {
		tr.Record(outcome(false, adapter.KindUnavailable))
	}
	tr.Record(outcome(true, ""))
	flush(t, tr)

	p, err := scores.Get("claude")
	require.NoError(t, err)
	// 0.5 * 0.8^11 + 0.2
	assert.InDelta(t, 0.5*0.08589934592+0.2, p.DynamicScore, 1e-9)
}

func TestCanceledOutcomeLeavesScore(t *testing.T) {
	scores := newScores(t)
	tr := New(scores)
	defer tr.Close()

	tr.Record(outcome(false, adapter.KindCanceled))
	flush(t, tr)

	p, err := scores.Get("claude")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p.DynamicScore, 1e-9)

	s, ok := tr.Stats("claude", classifier.Conversation)
	require.True(t, ok)
	assert.EqualValues(t, 1, s.Total)
	assert.Equal(t, 0, s.Samples)
}

func TestRollingWindow(t *testing.T) {
	tr := New(nil, WithWindow(4))
	defer tr.Close()

	for i := 0; i < 4; i++ {
		tr.Record(outcome(false, adapter.KindTimeout))
	}
	flush(t, tr)
	rate, n := tr.SuccessRate("claude", classifier.Conversation)
	assert.Equal(t, 4, n)
	assert.Zero(t, rate)

	for i := 0; i < 3; i++ {
		tr.Record(outcome(true, ""))
	}
	flush(t, tr)
	rate, n = tr.SuccessRate("claude", classifier.Conversation)
	assert.Equal(t, 4, n)
	assert.InDelta(t, 0.75, rate, 1e-9)

	s, ok := tr.Stats("claude", classifier.Conversation)
	require.True(t, ok)
	assert.EqualValues(t, 7, s.Total)
	assert.Equal(t, 200*time.Millisecond, s.MeanLatency)

	rate, n = tr.SuccessRate("claude", classifier.Coding)
	assert.Zero(t, rate)
	assert.Zero(t, n)
}

func TestSnapshotSorted(t *testing.T) {
	tr := New(nil)
	defer tr.Close()

	tr.Record(engine.Outcome{ProviderID: "zeta", TaskType: classifier.Coding, Success: true})
	tr.Record(engine.Outcome{ProviderID: "alpha", TaskType: classifier.Creative, Success: true})
	tr.Record(engine.Outcome{ProviderID: "alpha", TaskType: classifier.Coding, Success: true})
	flush(t, tr)

	snap := tr.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "alpha", snap[0].ProviderID)
	assert.Equal(t, classifier.Coding, snap[0].TaskType)
	assert.Equal(t, classifier.Creative, snap[1].TaskType)
	assert.Equal(t, "zeta", snap[2].ProviderID)
}

func TestRecordAfterCloseIsDropped(t *testing.T) {
	tr := New(nil)
	tr.Record(outcome(true, ""))
	tr.Close()
	tr.Close()

	tr.Record(outcome(true, ""))
	flush(t, tr)

	s, ok := tr.Stats("claude", classifier.Conversation)
	require.True(t, ok)
	assert.EqualValues(t, 1, s.Total)
}

func TestFlushHonorsContext(t *testing.T) {
	tr := New(nil, WithSink(blockingSink{}))
	defer tr.Close()

	tr.Record(outcome(true, ""))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tr.Flush(ctx), context.DeadlineExceeded)
}

type blockingSink struct{}

func (blockingSink) Observe(ctx context.Context, _ engine.Outcome) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")
	tr := New(newScores(t), WithMetrics(m))
	defer tr.Close()

	tr.Record(outcome(true, ""))
	tr.Record(outcome(false, adapter.KindRateLimited))
	flush(t, tr)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutcomesTotal.WithLabelValues("claude", "conversation", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutcomesTotal.WithLabelValues("claude", "conversation", "rate_limited")))
	assert.InDelta(t, 0.48, testutil.ToFloat64(m.DynamicScore.WithLabelValues("claude")), 1e-9)
	assert.Equal(t, 1, testutil.CollectAndCount(m.AttemptDuration))

	m.ObserveBreaker("claude", gobreaker.StateClosed, gobreaker.StateOpen)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("claude")))
	m.ObserveBreaker("claude", gobreaker.StateOpen, gobreaker.StateHalfOpen)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("claude")))
}

func TestRedisSink(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sink := NewRedisSink(client, "", time.Hour)
	tr := New(nil, WithSink(sink))
	defer tr.Close()

	tr.Record(outcome(true, ""))
	tr.Record(outcome(true, ""))
	tr.Record(outcome(false, adapter.KindTimeout))
	flush(t, tr)

	key := sink.Key("claude", "conversation")
	assert.Equal(t, "routegate:stats:claude:conversation", key)
	assert.Equal(t, "3", mr.HGet(key, "total"))
	assert.Equal(t, "2", mr.HGet(key, "success"))
	assert.Equal(t, "1", mr.HGet(key, "error:timeout"))
	assert.Equal(t, "600", mr.HGet(key, "latency_ms"))
	assert.Equal(t, time.Hour, mr.TTL(key))
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	mr.Close()
	_, err = NewRedisClient(context.Background(), mr.Addr(), "", 0)
	assert.Error(t, err)
}
