// Package metrics provides Prometheus metrics for attempt scoring.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "reading_fluency"

type Metrics struct {
	AttemptsTotal     *prometheus.CounterVec
	ProcessingSeconds *prometheus.HistogramVec
	Hesitations       *prometheus.CounterVec
	ReportsBuilt      prometheus.Counter
	EventPublish      *prometheus.CounterVec
}

// DefaultMetrics is registered with the default Prometheus registry.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates the metric set and registers it with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AttemptsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Scored attempts by test type and outcome",
		}, []string{"test_type", "outcome"}),
		ProcessingSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attempt_processing_seconds",
			Help:      "Time from submission to scored attempt, including upload and transcription",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"test_type"}),
		Hesitations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hesitations_total",
			Help:      "Attempts flagged for hesitation",
		}, []string{"test_type"}),
		ReportsBuilt: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_built_total",
			Help:      "Achievement reports computed",
		}),
		EventPublish: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_total",
			Help:      "Attempt events published, by status",
		}, []string{"status"}),
	}
}

// RecordAttempt counts one processed attempt. outcome is "correct",
// "incorrect" or the attempt's error kind.
func (m *Metrics) RecordAttempt(testType, outcome string, hesitation bool, seconds float64) {
	m.AttemptsTotal.WithLabelValues(testType, outcome).Inc()
	m.ProcessingSeconds.WithLabelValues(testType).Observe(seconds)
	if hesitation {
		m.Hesitations.WithLabelValues(testType).Inc()
	}
}

func (m *Metrics) RecordPublish(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.EventPublish.WithLabelValues(status).Inc()
}
