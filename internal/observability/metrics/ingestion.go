package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
)

// IngestionMetrics is owned by the worker and the ingest CLI.
type IngestionMetrics struct {
	registry *prometheus.Registry
	service  string

	runTotal    *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	runInFlight prometheus.Gauge
	itemsTotal  *prometheus.CounterVec
	queueLag    *prometheus.HistogramVec
}

func NewIngestionMetrics(service string) *IngestionMetrics {
	registry := prometheus.NewRegistry()

	runTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "runs_total",
			Help:      "Total partition ingestion runs by status.",
		},
		[]string{"service", "partition", "status"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "run_duration_seconds",
			Help:      "Partition ingestion duration in seconds by status.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"service", "status"},
	)
	runInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "runs_in_flight",
			Help:      "Number of in-flight ingestion runs.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	itemsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "items_total",
			Help:      "Ingested items by partition and outcome.",
		},
		[]string{"service", "partition", "outcome"},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "queue_lag_seconds",
			Help:      "Delay between run publication and worker delivery.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	registry.MustRegister(runTotal, runDuration, runInFlight, itemsTotal, queueLag)

	return &IngestionMetrics{
		registry:    registry,
		service:     service,
		runTotal:    runTotal,
		runDuration: runDuration,
		runInFlight: runInFlight,
		itemsTotal:  itemsTotal,
		queueLag:    queueLag,
	}
}

func (m *IngestionMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *IngestionMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *IngestionMetrics) StartRun() {
	m.runInFlight.Inc()
}

func (m *IngestionMetrics) FinishRun(report domain.IngestionReport, duration time.Duration, err error) {
	m.runInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	m.runTotal.WithLabelValues(m.service, report.Partition, status).Inc()
	m.runDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())

	outcomes := map[string]int{
		"indexed":            report.Indexed,
		"skipped":            report.Skipped,
		"embed_failed":       report.EmbedFailed,
		"dimension_rejected": report.DimensionRejected,
		"index_failed":       report.IndexFailed,
	}
	for outcome, n := range outcomes {
		if n > 0 {
			m.itemsTotal.WithLabelValues(m.service, report.Partition, outcome).Add(float64(n))
		}
	}
}

func (m *IngestionMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(m.service).Observe(lag.Seconds())
}
