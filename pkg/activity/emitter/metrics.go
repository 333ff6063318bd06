package emitter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSent     = "sent"
	outcomeFailed   = "failed"
	outcomeDropped  = "dropped"
	outcomeDisabled = "disabled"
)

// Metrics counts emission outcomes per emitter. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Events   *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewMetrics registers emitter metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tasktrail_activity_emitter_events_total",
			Help: "Activity events by emitter and outcome (sent, failed, dropped, disabled)",
		}, []string{"emitter", "outcome"}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tasktrail_activity_emitter_duration_seconds",
			Help:    "Duration of outbound activity submissions",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}, []string{"emitter"}),
	}
}

func (m *Metrics) observe(emitter, outcome string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(emitter, outcome).Inc()
}

func (m *Metrics) observeDuration(emitter string, d time.Duration) {
	if m == nil {
		return
	}
	m.Duration.WithLabelValues(emitter).Observe(d.Seconds())
}
