package metrics

import "github.com/prometheus/client_golang/prometheus"

// RetryMetrics counts provider retries reported by the resilience executor.
type RetryMetrics struct {
	service string
	retries *prometheus.CounterVec
}

func NewRetryMetrics(service string, reg prometheus.Registerer) *RetryMetrics {
	retries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "retries_total",
			Help:      "Retried provider calls by operation.",
		},
		[]string{"service", "operation"},
	)
	reg.MustRegister(retries)
	return &RetryMetrics{service: service, retries: retries}
}

// OnRetry matches resilience.Config.OnRetry.
func (m *RetryMetrics) OnRetry(operation string, _ int, _ error) {
	m.retries.WithLabelValues(m.service, operation).Inc()
}
