package tracker

import (
	"time"

	"github.com/zen-systems/routegate/pkg/classifier"
)

// DefaultWindow is how many recent outcomes feed the rolling rates.
const DefaultWindow = 100

// Stats summarizes one (provider, task type) pair.
type Stats struct {
	ProviderID string              `json:"provider_id"`
	TaskType   classifier.TaskType `json:"task_type"`
	// Total counts every recorded outcome, including cancellations.
	Total int64 `json:"total"`
	// Samples is the number of outcomes in the rolling window.
	Samples     int           `json:"samples"`
	SuccessRate float64       `json:"success_rate"`
	MeanLatency time.Duration `json:"mean_latency"`
}

type key struct {
	provider string
	task     classifier.TaskType
}

type sample struct {
	success bool
	latency time.Duration
}

// window is a fixed-size ring of recent samples.
type window struct {
	total     int64
	samples   []sample
	next      int
	full      bool
	successes int
	latency   time.Duration
}

func newWindow(size int) *window {
	return &window{samples: make([]sample, size)}
}

func (w *window) add(s sample) {
	if w.full {
		old := w.samples[w.next]
		if old.success {
			w.successes--
		}
		w.latency -= old.latency
	}
	w.samples[w.next] = s
	if s.success {
		w.successes++
	}
	w.latency += s.latency

	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.full = true
	}
}

func (w *window) len() int {
	if w.full {
		return len(w.samples)
	}
	return w.next
}

func (w *window) stats(k key) Stats {
	s := Stats{ProviderID: k.provider, TaskType: k.task, Total: w.total, Samples: w.len()}
	if s.Samples > 0 {
		s.SuccessRate = float64(w.successes) / float64(s.Samples)
		s.MeanLatency = w.latency / time.Duration(s.Samples)
	}
	return s
}
