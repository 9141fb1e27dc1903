package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/routegate/pkg/adapter"
	"github.com/zen-systems/routegate/pkg/capability"
)

const testCoolDown = 50 * time.Millisecond

func newTestRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	r := New(Settings{Alpha: 0.2, FailureThreshold: 3, FailureWindow: time.Minute, CoolDown: testCoolDown}, opts...)
	require.NoError(t, r.Register(Profile{
		ID:            "coder",
		Capabilities:  capability.NewSet(capability.Coding, capability.Accuracy, capability.Chat),
		StaticQuality: 0.8,
		StaticSpeed:   0.5,
		ContextLimit:  32000,
		LatencyTarget: time.Second,
	}))
	require.NoError(t, r.Register(Profile{
		ID:            "chatty",
		Capabilities:  capability.NewSet(capability.Chat, capability.Fast),
		StaticQuality: 0.6,
		StaticSpeed:   0.9,
		ContextLimit:  8000,
	}))
	require.NoError(t, r.Register(Profile{
		ID:            "reader",
		Capabilities:  capability.NewSet(capability.Chat, capability.LongContext),
		StaticQuality: 0.7,
		StaticSpeed:   0.3,
	}))
	return r
}

func fail(t *testing.T, r *Registry, id string, kind adapter.Kind) {
	t.Helper()
	release, err := r.Acquire(id)
	require.NoError(t, err)
	release(kind)
}

func TestRegisterIsUpsert(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.UpdateDynamicScore("coder", false, 0))

	before, err := r.Get("coder")
	require.NoError(t, err)

	require.NoError(t, r.Register(Profile{
		ID:            "coder",
		Capabilities:  capability.NewSet(capability.Coding),
		StaticQuality: 0.9,
		StaticSpeed:   0.5,
		DynamicScore:  0.1,
	}))

	after, err := r.Get("coder")
	require.NoError(t, err)
	assert.Equal(t, before.DynamicScore, after.DynamicScore)
	assert.Equal(t, 0.9, after.StaticQuality)
	assert.Equal(t, capability.NewSet(capability.Coding), after.Capabilities)
	assert.Len(t, r.All(), 3)
}

func TestRegisterValidates(t *testing.T) {
	r := New(DefaultSettings())
	assert.Error(t, r.Register(Profile{}))
	assert.Error(t, r.Register(Profile{ID: "x", StaticQuality: 1.5}))
	assert.Error(t, r.Register(Profile{ID: "x", StaticSpeed: -0.1}))
	assert.Error(t, r.Register(Profile{ID: "x", ContextLimit: -1}))
}

func TestNewProfileStartsAtStaticQuality(t *testing.T) {
	r := newTestRegistry(t)
	p, err := r.Get("coder")
	require.NoError(t, err)
	assert.Equal(t, 0.8, p.DynamicScore)
	assert.True(t, p.Available)
	assert.Equal(t, "closed", p.Breaker)
}

func TestEligible(t *testing.T) {
	r := newTestRegistry(t)

	tests := []struct {
		name       string
		required   capability.Set
		minContext int
		want       []string
	}{
		{"chat any size", capability.NewSet(capability.Chat), 0, []string{"chatty", "coder", "reader"}},
		{"coding", capability.NewSet(capability.Coding, capability.Accuracy), 0, []string{"coder"}},
		{"context filter", capability.NewSet(capability.Chat), 20000, []string{"coder", "reader"}},
		{"unlimited context", capability.NewSet(capability.LongContext), 1_000_000, []string{"reader"}},
		{"nothing qualifies", capability.NewSet(capability.ImageGeneration), 0, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Eligible(tt.required, tt.minContext)
			ids := make([]string, 0, len(got))
			for _, p := range got {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestUpdateDynamicScore(t *testing.T) {
	r := newTestRegistry(t)

	require.NoError(t, r.UpdateDynamicScore("coder", false, 0))
	p, _ := r.Get("coder")
	assert.InDelta(t, 0.64, p.DynamicScore, 1e-9)

	require.NoError(t, r.UpdateDynamicScore("coder", true, 500*time.Millisecond))
	p, _ = r.Get("coder")
	assert.InDelta(t, 0.64*0.8+0.2, p.DynamicScore, 1e-9)

	// Twice the latency target halves the success signal.
	require.NoError(t, r.UpdateDynamicScore("coder", true, 2*time.Second))
	p2, _ := r.Get("coder")
	assert.InDelta(t, p.DynamicScore*0.8+0.5*0.2, p2.DynamicScore, 1e-9)

	assert.ErrorIs(t, r.UpdateDynamicScore("ghost", true, 0), ErrUnknownProvider)
}

func TestDynamicScoreStaysInRange(t *testing.T) {
	r := newTestRegistry(t)
	for i := 0; i < 100; i++ {
		require.NoError(t, r.UpdateDynamicScore("chatty", true, 0))
	}
	p, _ := r.Get("chatty")
	assert.LessOrEqual(t, p.DynamicScore, 1.0)

	for i := 0; i < 100; i++ {
		require.NoError(t, r.UpdateDynamicScore("chatty", false, 0))
	}
	p, _ = r.Get("chatty")
	assert.GreaterOrEqual(t, p.DynamicScore, 0.0)
}

func TestBreakerTripsAndRecovers(t *testing.T) {
	r := newTestRegistry(t)

	for i := 0; i < 3; i++ {
		assert.True(t, r.IsAvailable("coder"), "attempt %d", i)
		fail(t, r, "coder", adapter.KindTimeout)
	}

	assert.False(t, r.IsAvailable("coder"))
	assert.Empty(t, r.Eligible(capability.NewSet(capability.Coding), 0))
	_, err := r.Acquire("coder")
	assert.ErrorIs(t, err, ErrUnavailable)

	time.Sleep(testCoolDown + 20*time.Millisecond)

	// Half-open: exactly one probe is admitted.
	require.True(t, r.IsAvailable("coder"))
	probe, err := r.Acquire("coder")
	require.NoError(t, err)
	assert.False(t, r.IsAvailable("coder"))
	_, err = r.Acquire("coder")
	assert.ErrorIs(t, err, ErrUnavailable)

	probe("")
	p, _ := r.Get("coder")
	assert.True(t, p.Available)
	assert.Equal(t, "closed", p.Breaker)
}

func TestBreakerFailedProbeRetrips(t *testing.T) {
	r := newTestRegistry(t)
	for i := 0; i < 3; i++ {
		fail(t, r, "chatty", adapter.KindUnavailable)
	}
	time.Sleep(testCoolDown + 20*time.Millisecond)

	fail(t, r, "chatty", adapter.KindInvalidResponse)
	p, _ := r.Get("chatty")
	assert.False(t, p.Available)
	assert.Equal(t, "open", p.Breaker)
}

func TestSuccessResetsConsecutiveFailures(t *testing.T) {
	r := newTestRegistry(t)
	fail(t, r, "coder", adapter.KindTimeout)
	fail(t, r, "coder", adapter.KindTimeout)
	fail(t, r, "coder", "")
	fail(t, r, "coder", adapter.KindTimeout)
	fail(t, r, "coder", adapter.KindTimeout)
	assert.True(t, r.IsAvailable("coder"))
}

func TestRateLimitIsNeutral(t *testing.T) {
	r := newTestRegistry(t)
	fail(t, r, "coder", adapter.KindTimeout)
	fail(t, r, "coder", adapter.KindTimeout)
	for i := 0; i < 10; i++ {
		fail(t, r, "coder", adapter.KindRateLimited)
		fail(t, r, "coder", adapter.KindCanceled)
	}
	assert.True(t, r.IsAvailable("coder"))
}

func TestRateLimitedProbeCloses(t *testing.T) {
	r := newTestRegistry(t)
	for i := 0; i < 3; i++ {
		fail(t, r, "reader", adapter.KindTimeout)
	}
	time.Sleep(testCoolDown + 20*time.Millisecond)

	fail(t, r, "reader", adapter.KindRateLimited)
	p, _ := r.Get("reader")
	assert.Equal(t, "closed", p.Breaker)
}

func TestReleaseIsIdempotent(t *testing.T) {
	r := newTestRegistry(t)
	release, err := r.Acquire("coder")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		release(adapter.KindTimeout)
	}
	assert.True(t, r.IsAvailable("coder"))
}

func TestManualMarks(t *testing.T) {
	r := newTestRegistry(t)

	require.NoError(t, r.MarkUnavailable("reader"))
	assert.False(t, r.IsAvailable("reader"))
	_, err := r.Acquire("reader")
	assert.ErrorIs(t, err, ErrUnavailable)

	require.NoError(t, r.MarkAvailable("reader"))
	assert.True(t, r.IsAvailable("reader"))

	for i := 0; i < 3; i++ {
		fail(t, r, "reader", adapter.KindTimeout)
	}
	require.False(t, r.IsAvailable("reader"))
	require.NoError(t, r.MarkAvailable("reader"))
	assert.True(t, r.IsAvailable("reader"))

	assert.ErrorIs(t, r.MarkUnavailable("ghost"), ErrUnknownProvider)
}

func TestStateChangeObserver(t *testing.T) {
	var mu sync.Mutex
	var seen []gobreaker.State
	r := newTestRegistry(t, WithStateChange(func(id string, _, to gobreaker.State) {
		mu.Lock()
		defer mu.Unlock()
		if id == "coder" {
			seen = append(seen, to)
		}
	}))

	for i := 0; i < 3; i++ {
		fail(t, r, "coder", adapter.KindTimeout)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, seen)
}

func TestConcurrentUpdatesAndReads(t *testing.T) {
	r := newTestRegistry(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = r.UpdateDynamicScore("coder", (i+j)%2 == 0, time.Duration(j)*time.Millisecond)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				for _, p := range r.Eligible(capability.NewSet(capability.Chat), 0) {
					assert.GreaterOrEqual(t, p.DynamicScore, 0.0)
					assert.LessOrEqual(t, p.DynamicScore, 1.0)
				}
			}
		}()
	}
	wg.Wait()
}

func TestStatus(t *testing.T) {
	r := newTestRegistry(t)

	state, err := r.Status("reader")
	require.NoError(t, err)
	assert.Equal(t, "closed", state)

	for i := 0; i < 3; i++ {
		fail(t, r, "reader", adapter.KindUnavailable)
	}
	state, err = r.Status("reader")
	require.NoError(t, err)
	assert.Equal(t, "open", state)

	_, err = r.Status("nobody")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestFailureWindowSlides(t *testing.T) {
	window := 200 * time.Millisecond
	newReg := func(t *testing.T) *Registry {
		r := New(Settings{FailureThreshold: 3, FailureWindow: window, CoolDown: time.Minute})
		require.NoError(t, r.Register(Profile{ID: "p", Capabilities: capability.NewSet(capability.Chat), StaticQuality: 0.5}))
		return r
	}

	t.Run("consecutive failures close together trip across any boundary", func(t *testing.T) {
		r := newReg(t)
		time.Sleep(170 * time.Millisecond)
		fail(t, r, "p", adapter.KindTimeout)
		fail(t, r, "p", adapter.KindTimeout)
		time.Sleep(40 * time.Millisecond)
		fail(t, r, "p", adapter.KindTimeout)

		state, err := r.Status("p")
		require.NoError(t, err)
		assert.Equal(t, "open", state)
	})

	t.Run("failures spread wider than the window do not trip", func(t *testing.T) {
		r := newReg(t)
		fail(t, r, "p", adapter.KindUnavailable)
		time.Sleep(window + 50*time.Millisecond)
		fail(t, r, "p", adapter.KindUnavailable)
		fail(t, r, "p", adapter.KindUnavailable)
		assert.True(t, r.IsAvailable("p"))

		// The last three now fit inside the window.
		fail(t, r, "p", adapter.KindUnavailable)
		assert.False(t, r.IsAvailable("p"))
	})
}

func TestFailureLog(t *testing.T) {
	l := newFailureLog(3)
	base := time.Unix(1000, 0)

	l.add(base)
	l.add(base.Add(time.Second))
	assert.False(t, l.within(time.Minute, base.Add(2*time.Second)), "not full")

	l.add(base.Add(2 * time.Second))
	assert.True(t, l.within(5*time.Second, base.Add(3*time.Second)))
	assert.False(t, l.within(2*time.Second, base.Add(3*time.Second)))

	l.add(base.Add(10 * time.Second))
	assert.True(t, l.within(9*time.Second, base.Add(10*time.Second)), "oldest entry evicted")

	l.reset()
	assert.False(t, l.within(time.Hour, base.Add(10*time.Second)))
}
