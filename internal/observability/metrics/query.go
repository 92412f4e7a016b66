package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// QueryMetrics tracks the question answering path.
type QueryMetrics struct {
	service string

	requestsTotal *prometheus.CounterVec
	routingTotal  *prometheus.CounterVec
	noContext     *prometheus.CounterVec
	fusedResults  *prometheus.HistogramVec
	duration      *prometheus.HistogramVec
}

func NewQueryMetrics(service string, reg prometheus.Registerer) *QueryMetrics {
	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "requests_total",
			Help:      "Total answered questions by search mode.",
		},
		[]string{"service", "mode"},
	)
	routingTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "routing_total",
			Help:      "Partition routing outcome: promoted to one partition or fallback to all.",
		},
		[]string{"service", "routing"},
	)
	noContext := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "no_context_total",
			Help:      "Questions answered without any retrieved result.",
		},
		[]string{"service"},
	)
	fusedResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "fused_results",
			Help:      "Fused results per question.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "duration_seconds",
			Help:      "End-to-end question answering duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	reg.MustRegister(requestsTotal, routingTotal, noContext, fusedResults, duration)

	return &QueryMetrics{
		service:       service,
		requestsTotal: requestsTotal,
		routingTotal:  routingTotal,
		noContext:     noContext,
		fusedResults:  fusedResults,
		duration:      duration,
	}
}

func (m *QueryMetrics) RecordQuery(promoted, lexicalOnly bool, results int, duration time.Duration) {
	mode := "hybrid"
	if lexicalOnly {
		mode = "lexical_only"
	}
	routing := "fallback"
	if promoted {
		routing = "promoted"
	}

	m.requestsTotal.WithLabelValues(m.service, mode).Inc()
	m.routingTotal.WithLabelValues(m.service, routing).Inc()
	m.fusedResults.WithLabelValues(m.service).Observe(float64(results))
	m.duration.WithLabelValues(m.service).Observe(duration.Seconds())
	if results == 0 {
		m.noContext.WithLabelValues(m.service).Inc()
	}
}
