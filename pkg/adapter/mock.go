package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zen-systems/routegate/pkg/artifact"
)

// MockStep scripts one invocation of a MockAdapter.
type MockStep struct {
	Content string
	Err     error
	Delay   time.Duration
	// IgnoreContext makes the step sleep through cancellation, like a hung backend.
	IgnoreContext bool
}

// MockAdapter returns scripted responses for local runs and tests.
// Once the script is exhausted the last step repeats; with no script it echoes the prompt.
type MockAdapter struct {
	name string

	mu    sync.Mutex
	steps []MockStep
	calls int
	pings []error
}

// NewMockAdapter creates a mock adapter that echoes prompts.
func NewMockAdapter(name string) *MockAdapter {
	if name == "" {
		name = "mock"
	}
	return &MockAdapter{name: name}
}

// NewScriptedMockAdapter creates a mock adapter that plays back steps in order.
func NewScriptedMockAdapter(name string, steps ...MockStep) *MockAdapter {
	m := NewMockAdapter(name)
	m.steps = steps
	return m
}

// FailWith returns a step that fails with the given kind.
func FailWith(kind Kind) MockStep {
	return MockStep{Err: NewError("", kind, fmt.Errorf("scripted %s", kind))}
}

// Describe returns the adapter metadata.
func (a *MockAdapter) Describe() Info {
	return Info{Name: a.name, Kind: artifact.KindText, Models: []string{"mock-1"}}
}

// Calls reports how many times Invoke has been entered.
func (a *MockAdapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// SetPingErrors scripts successive Ping results.
func (a *MockAdapter) SetPingErrors(errs ...error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pings = errs
}

// Ping plays back scripted ping results, succeeding once they run out.
func (a *MockAdapter) Ping(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.pings) == 0 {
		return nil
	}
	err := a.pings[0]
	a.pings = a.pings[1:]
	return err
}

// Invoke plays the next scripted step.
func (a *MockAdapter) Invoke(ctx context.Context, prompt string, params Params) (*artifact.Artifact, error) {
	step := a.next()
	model := modelOr(params, "mock-1")

	if step.Delay > 0 {
		timer := time.NewTimer(step.Delay)
		defer timer.Stop()
		if step.IgnoreContext {
			<-timer.C
		} else {
			select {
			case <-ctx.Done():
				return nil, Classify(a.name, ctx.Err())
			case <-timer.C:
			}
		}
	}

	if step.Err != nil {
		if adapterErr, ok := step.Err.(*Error); ok && adapterErr.Provider == "" {
			copied := *adapterErr
			copied.Provider = a.name
			return nil, &copied
		}
		return nil, step.Err
	}

	content := step.Content
	if content == "" {
		content = fmt.Sprintf("mock response:\n%s", prompt)
	}
	return artifact.New(content, a.name, model, prompt), nil
}

func (a *MockAdapter) next() MockStep {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if len(a.steps) == 0 {
		return MockStep{}
	}
	idx := a.calls - 1
	if idx >= len(a.steps) {
		idx = len(a.steps) - 1
	}
	return a.steps[idx]
}
