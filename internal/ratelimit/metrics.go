package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains rate limiting metrics.
type Metrics struct {
	decisionsTotal *prometheus.CounterVec
}

// NewMetrics creates rate limit metrics registered with the default
// registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates rate limit metrics registered with the
// provided registerer.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "apiguard"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit",
				Name:      "decisions_total",
				Help:      "Total number of rate limit decisions",
			},
			[]string{"scope", "outcome"},
		),
	}

	// Duplicate registration is harmless: descriptors are identical.
	_ = registerer.Register(m.decisionsTotal)

	return m
}

// RecordDecision records the outcome of a quota check.
func (m *Metrics) RecordDecision(scope, outcome string) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(scope, outcome).Inc()
}
