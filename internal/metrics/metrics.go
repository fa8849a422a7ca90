package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the registration service
type Metrics struct {
	Registrations        *prometheus.CounterVec
	Compensations        *prometheus.CounterVec
	StepDuration         *prometheus.HistogramVec
	PendingCompensations prometheus.Gauge
}

// New creates and registers all metrics on reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "qola_registrations_total",
			Help: "Registration attempts by terminal outcome",
		}, []string{"outcome"}),
		Compensations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "qola_compensations_total",
			Help: "Compensating identity deletions by result",
		}, []string{"result"}),
		StepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "qola_registration_step_duration_seconds",
			Help:    "Duration of each registration step",
			Buckets: prometheus.DefBuckets,
		}, []string{"step"}),
		PendingCompensations: factory.NewGauge(prometheus.GaugeOpts{
			Name: "qola_pending_compensations",
			Help: "Identities awaiting a compensating delete",
		}),
	}
}

// ObserveRegistration counts one terminal outcome.
func (m *Metrics) ObserveRegistration(outcome string) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(outcome).Inc()
}

// ObserveCompensation counts one compensation attempt.
func (m *Metrics) ObserveCompensation(result string) {
	if m == nil {
		return
	}
	m.Compensations.WithLabelValues(result).Inc()
}

// ObserveStep records how long a step took.
func (m *Metrics) ObserveStep(step string, started time.Time) {
	if m == nil {
		return
	}
	m.StepDuration.WithLabelValues(step).Observe(time.Since(started).Seconds())
}

// SetPendingCompensations reports the outbox size.
func (m *Metrics) SetPendingCompensations(n int64) {
	if m == nil {
		return
	}
	m.PendingCompensations.Set(float64(n))
}
