package audit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains usage recording metrics.
type Metrics struct {
	recordsTotal *prometheus.CounterVec
}

// NewMetrics creates audit metrics registered with the default
// registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates audit metrics registered with the
// provided registerer.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "apiguard"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		recordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "audit",
				Name:      "records_total",
				Help:      "Total number of usage records by outcome",
			},
			[]string{"outcome"},
		),
	}

	// Duplicate registration is harmless: descriptors are identical.
	_ = registerer.Register(m.recordsTotal)

	return m
}

// RecordOutcome counts a record outcome.
func (m *Metrics) RecordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.recordsTotal.WithLabelValues(outcome).Inc()
}
