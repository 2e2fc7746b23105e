package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains authentication metrics.
type Metrics struct {
	validationsTotal   *prometheus.CounterVec
	validationDuration prometheus.Histogram
}

// NewMetrics creates authentication metrics registered with the default
// registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates authentication metrics registered with
// the provided registerer.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "apiguard"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		validationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "validations_total",
				Help:      "Total number of credential validations",
			},
			[]string{"outcome", "reason"},
		),
		validationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "validation_duration_seconds",
				Help:      "Duration of credential validations in seconds",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
		),
	}

	// Duplicate registration is harmless: descriptors are identical.
	_ = registerer.Register(m.validationsTotal)
	_ = registerer.Register(m.validationDuration)

	return m
}

// RecordValidation records the outcome of a credential validation.
func (m *Metrics) RecordValidation(outcome, reason string, duration time.Duration) {
	if m == nil {
		return
	}
	m.validationsTotal.WithLabelValues(outcome, reason).Inc()
	m.validationDuration.Observe(duration.Seconds())
}
