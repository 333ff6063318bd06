package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Submission outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

type Metrics struct {
	Submissions    *prometheus.CounterVec
	StreamFailures prometheus.Counter
}

// New registers ingestion metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tasktrail_activity_submissions_total",
			Help: "Activity submissions by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		StreamFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "tasktrail_activity_stream_failures_total",
			Help: "Stored events that could not be mirrored to the event stream",
		}),
	}
}

func (m *Metrics) IncrementSubmission(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(endpoint, outcome).Inc()
}

func (m *Metrics) IncrementStreamFailures() {
	if m == nil {
		return
	}
	m.StreamFailures.Inc()
}
