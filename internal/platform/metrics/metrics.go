// Package metrics instruments the transaction pipeline. All recorders
// are nil-safe so library code can run unmetered in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Orchestration struct {
	submissions *prometheus.CounterVec
	outcomes    *prometheus.CounterVec
	confirmWait prometheus.Histogram
}

// NewOrchestration registers the orchestration collectors. Pass
// prometheus.DefaultRegisterer outside of tests.
func NewOrchestration(reg prometheus.Registerer) *Orchestration {
	m := &Orchestration{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loanclient_submissions_total",
			Help: "State-changing operations submitted to the ledger.",
		}, []string{"kind"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loanclient_operation_outcomes_total",
			Help: "Terminal operation outcomes by kind and result.",
		}, []string{"kind", "outcome"}),
		confirmWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "loanclient_confirmation_wait_seconds",
			Help:    "Time from submission to observed terminal state.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
	reg.MustRegister(m.submissions, m.outcomes, m.confirmWait)
	return m
}

func (m *Orchestration) RecordSubmission(kind string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(kind).Inc()
}

func (m *Orchestration) RecordOutcome(kind, outcome string, wait time.Duration) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(kind, outcome).Inc()
	m.confirmWait.Observe(wait.Seconds())
}
