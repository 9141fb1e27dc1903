package engine

import (
	"context"
	"time"

	"github.com/zen-systems/routegate/pkg/classifier"
)

// TimeoutPolicy derives a per-attempt budget from the task.
type TimeoutPolicy struct {
	Base    map[classifier.TaskType]time.Duration
	Default time.Duration
	Min     time.Duration
	Max     time.Duration
}

// DefaultTimeoutPolicy gives long-form tasks more room than short replies.
func DefaultTimeoutPolicy() TimeoutPolicy {
	return TimeoutPolicy{
		Base: map[classifier.TaskType]time.Duration{
			classifier.Conversation:     20 * time.Second,
			classifier.SensitiveContent: 20 * time.Second,
			classifier.Coding:           45 * time.Second,
			classifier.Creative:         60 * time.Second,
			classifier.DocumentAnalysis: 90 * time.Second,
			classifier.ImageGeneration:  90 * time.Second,
			classifier.VideoGeneration:  180 * time.Second,
		},
		Default: 30 * time.Second,
		Min:     2 * time.Second,
		Max:     5 * time.Minute,
	}
}

// For scales the task's base budget from 0.75x at complexity 0 to 1.25x at 1.
func (p TimeoutPolicy) For(desc classifier.Descriptor) time.Duration {
	base, ok := p.Base[desc.TaskType]
	if !ok || base <= 0 {
		base = p.Default
	}
	c := desc.Complexity
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	d := time.Duration(float64(base) * (0.75 + 0.5*c))
	if p.Min > 0 && d < p.Min {
		d = p.Min
	}
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	return d
}

// RetryPolicy bounds same-provider retries for transient failures.
// Rate limits are never retried; the chain moves on.
type RetryPolicy struct {
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryPolicy falls through immediately; the chain is the retry budget.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 0, BaseBackoff: 200 * time.Millisecond, MaxBackoff: 2 * time.Second}
}

func computeBackoff(base, limit time.Duration, attempt int) time.Duration {
	backoff := base
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff >= limit {
			return limit
		}
	}
	if backoff > limit {
		return limit
	}
	return backoff
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
