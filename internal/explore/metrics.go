package explore

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels of plancost_explore_configurations_total.
const (
	OutcomeCollected = "collected"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Metrics records exploration progress. A nil *Metrics records nothing.
type Metrics struct {
	configurations *prometheus.CounterVec
	explainSeconds prometheus.Histogram
}

// NewMetrics creates the exploration metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		configurations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plancost",
			Subsystem: "explore",
			Name:      "configurations_total",
			Help:      "Planner configurations explored, by outcome.",
		}, []string{"outcome"}),
		explainSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "plancost",
			Subsystem: "explore",
			Name:      "explain_seconds",
			Help:      "Time spent obtaining one plan from the executor.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.configurations, m.explainSeconds} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("explore: register metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) observeOutcome(outcome string) {
	if m == nil {
		return
	}
	m.configurations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeExplain(d time.Duration) {
	if m == nil {
		return
	}
	m.explainSeconds.Observe(d.Seconds())
}
