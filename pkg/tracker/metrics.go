package tracker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

// Metrics holds the routing metrics.
type Metrics struct {
	OutcomesTotal   *prometheus.CounterVec
	AttemptDuration *prometheus.HistogramVec
	DynamicScore    *prometheus.GaugeVec
	BreakerState    *prometheus.GaugeVec
}

// NewMetrics registers the routing metrics with reg. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "routegate"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		OutcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "outcomes_total",
				Help:      "Provider invocations by task type and result",
			},
			[]string{"provider", "task_type", "result"}, // result: success or an error kind
		),
		AttemptDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "attempt_duration_seconds",
				Help:      "Provider attempt latency in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"provider"},
		),
		DynamicScore: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "dynamic_score",
				Help:      "Adaptive provider score in [0,1]",
			},
			[]string{"provider"},
		),
		BreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"provider"},
		),
	}
}

// ObserveBreaker records a breaker transition. It matches registry.StateChangeFunc.
func (m *Metrics) ObserveBreaker(id string, _, to gobreaker.State) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(id).Set(breakerValue(to))
}

func breakerValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
