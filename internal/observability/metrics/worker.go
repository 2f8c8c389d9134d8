package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type IndexerMetrics struct {
	registry *prometheus.Registry

	batchTotal    *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
	batchInFlight prometheus.Gauge
	itemsTotal    *prometheus.CounterVec
	batchSize     *prometheus.HistogramVec
}

func NewIndexerMetrics(service string) *IndexerMetrics {
	registry := prometheus.NewRegistry()

	batchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kbr",
			Subsystem: "indexer",
			Name:      "batch_total",
			Help:      "Total processed index batches by status.",
		},
		[]string{"service", "status"},
	)
	batchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kbr",
			Subsystem: "indexer",
			Name:      "batch_duration_seconds",
			Help:      "Index batch duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	batchInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kbr",
			Subsystem: "indexer",
			Name:      "batch_in_flight",
			Help:      "Number of in-flight index batches.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	itemsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kbr",
			Subsystem: "indexer",
			Name:      "items_total",
			Help:      "Total embedded items by outcome.",
		},
		[]string{"service", "outcome"},
	)
	batchSize := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kbr",
			Subsystem: "indexer",
			Name:      "batch_size",
			Help:      "Distribution of items per index batch.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"service"},
	)

	registry.MustRegister(batchTotal, batchDuration, batchInFlight, itemsTotal, batchSize)

	return &IndexerMetrics{
		registry:      registry,
		batchTotal:    batchTotal,
		batchDuration: batchDuration,
		batchInFlight: batchInFlight,
		itemsTotal:    itemsTotal,
		batchSize:     batchSize,
	}
}

func (m *IndexerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *IndexerMetrics) StartBatch(service string, size int) {
	m.batchInFlight.Inc()
	m.batchSize.WithLabelValues(service).Observe(float64(size))
}

func (m *IndexerMetrics) FinishBatch(service string, duration time.Duration, successful, failed int, err error) {
	m.batchInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.batchTotal.WithLabelValues(service, status).Inc()
	m.batchDuration.WithLabelValues(service, status).Observe(duration.Seconds())
	if successful > 0 {
		m.itemsTotal.WithLabelValues(service, "success").Add(float64(successful))
	}
	if failed > 0 {
		m.itemsTotal.WithLabelValues(service, "failed").Add(float64(failed))
	}
}
