package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zen-systems/routegate/pkg/adapter"
	"github.com/zen-systems/routegate/pkg/artifact"
	"github.com/zen-systems/routegate/pkg/classifier"
)

// ErrUnboundProvider is recorded when a chain names a provider with no adapter bound.
var ErrUnboundProvider = errors.New("no adapter bound for provider")

// State is a step of the per-request state machine.
type State string

const (
	StatePending   State = "pending"
	StateTrying    State = "trying"
	StateSuccess   State = "success"
	StateFailed    State = "failed"
	StateAllFailed State = "all_failed"
)

// Transition records one state change. Attempt is -1 for states not tied to a provider.
type Transition struct {
	State      State  `json:"state"`
	ProviderID string `json:"provider_id,omitempty"`
	Attempt    int    `json:"attempt"`
}

// Outcome is reported once for every provider actually invoked.
type Outcome struct {
	RequestID    string              `json:"request_id,omitempty"`
	ProviderID   string              `json:"provider_id"`
	TaskType     classifier.TaskType `json:"task_type"`
	Success      bool                `json:"success"`
	Latency      time.Duration       `json:"latency"`
	ErrorKind    adapter.Kind        `json:"error_kind,omitempty"`
	AttemptIndex int                 `json:"attempt_index"`
	Retries      int                 `json:"retries"`
}

// Attempt summarizes what happened to one chain entry.
type Attempt struct {
	ProviderID string       `json:"provider_id"`
	ErrorKind  adapter.Kind `json:"error_kind,omitempty"`
	// Skipped is set when the provider was never invoked.
	Skipped bool  `json:"skipped,omitempty"`
	Err     error `json:"-"`
}

// AllProvidersFailedError lists every chain entry in order with its failure.
type AllProvidersFailedError struct {
	Attempts []Attempt
}

func (e *AllProvidersFailedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		switch {
		case a.Skipped:
			parts = append(parts, a.ProviderID+"=skipped")
		default:
			parts = append(parts, fmt.Sprintf("%s=%s", a.ProviderID, a.ErrorKind))
		}
	}
	return "all providers failed: " + strings.Join(parts, ", ")
}

// Request is one unit of work for the engine.
type Request struct {
	ID         string
	Prompt     string
	Descriptor classifier.Descriptor
}

// Result describes a completed execution, successful or not.
type Result struct {
	Artifact   *artifact.Artifact `json:"artifact,omitempty"`
	ProviderID string             `json:"provider_id,omitempty"`
	// AttemptIndex is the chain position of the success, or of the last
	// invoked provider on failure. It is -1 when nothing was invoked.
	AttemptIndex int          `json:"attempt_index"`
	Outcomes     []Outcome    `json:"outcomes"`
	Attempts     []Attempt    `json:"attempts"`
	Transitions  []Transition `json:"transitions"`
}

func (r *Result) transition(state State, providerID string, attempt int) {
	r.Transitions = append(r.Transitions, Transition{State: state, ProviderID: providerID, Attempt: attempt})
}

// Final returns the terminal state.
func (r *Result) Final() State {
	if len(r.Transitions) == 0 {
		return StatePending
	}
	return r.Transitions[len(r.Transitions)-1].State
}
