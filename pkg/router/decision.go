package router

import (
	"fmt"
	"strings"

	"github.com/zen-systems/routegate/pkg/capability"
	"github.com/zen-systems/routegate/pkg/classifier"
)

// Candidate captures one ranked provider and its score breakdown.
type Candidate struct {
	ProviderID string         `json:"provider_id"`
	Score      float64        `json:"score"`
	Dynamic    float64        `json:"dynamic"`
	SpeedBias  float64        `json:"speed_bias"`
	Match      float64        `json:"match"`
	Matched    capability.Set `json:"matched,omitempty"`
}

// Decision captures routing decision details.
type Decision struct {
	Chain      []string            `json:"chain"`
	Reasoning  string              `json:"reasoning"`
	TaskType   classifier.TaskType `json:"task_type"`
	Complexity float64             `json:"complexity"`
	Required   capability.Set      `json:"required_capabilities"`
	Candidates []Candidate         `json:"candidates,omitempty"`
	// ContextFallback is set when no provider accepted the full input size.
	ContextFallback bool `json:"context_fallback,omitempty"`
}

// NoEligibleProviderError is returned when no provider carries the required capabilities.
type NoEligibleProviderError struct {
	TaskType classifier.TaskType
	Required capability.Set
	Excluded capability.Set
}

func (e *NoEligibleProviderError) Error() string {
	msg := fmt.Sprintf("no backend available for %s task (requires %s)", e.TaskType, e.Required)
	if len(e.Excluded) > 0 {
		msg += fmt.Sprintf(" excluding %s", e.Excluded)
	}
	return msg
}

func buildReasoning(desc classifier.Descriptor, required capability.Set, policyID string, d *Decision) string {
	var b strings.Builder
	fmt.Fprintf(&b, "task=%s complexity=%.2f required=%s", desc.TaskType, desc.Complexity, required)
	if desc.Sensitive {
		fmt.Fprintf(&b, " sensitive policy=%s", policyID)
	}
	if d.ContextFallback {
		fmt.Fprintf(&b, " context_fallback tokens=%d", desc.EstimatedTokens)
	}
	b.WriteString(" chain=[")
	for i, c := range d.Candidates[:len(d.Chain)] {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%s(%.3f matched=%s)", c.ProviderID, c.Score, c.Matched)
	}
	b.WriteString("]")
	return b.String()
}
