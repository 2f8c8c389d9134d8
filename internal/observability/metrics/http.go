package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	searchRequestsTotal *prometheus.CounterVec
	searchNoHitsTotal   *prometheus.CounterVec
	searchResultCount   *prometheus.HistogramVec
	searchDuration      *prometheus.HistogramVec
	answerTotal         *prometheus.CounterVec
	cacheHitRate        *prometheus.GaugeVec
	cacheSize           *prometheus.GaugeVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kbr",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kbr",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kbr",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	searchRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kbr",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total successful search requests.",
		},
		[]string{"service", "endpoint", "preset"},
	)
	searchNoHitsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kbr",
			Subsystem: "search",
			Name:      "no_hits_total",
			Help:      "Total search requests returning zero results.",
		},
		[]string{"service", "endpoint"},
	)
	searchResultCount := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kbr",
			Subsystem: "search",
			Name:      "result_count",
			Help:      "Distribution of results per successful search request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "endpoint"},
	)
	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kbr",
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Search pipeline duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	answerTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kbr",
			Subsystem: "answer",
			Name:      "responses_total",
			Help:      "Total answers by outcome type.",
		},
		[]string{"service", "answer_type"},
	)
	cacheHitRate := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "kbr",
			Subsystem: "cache",
			Name:      "hit_rate",
			Help:      "Hit rate per cache since process start.",
		},
		[]string{"service", "cache"},
	)
	cacheSize := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "kbr",
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Current entries per cache.",
		},
		[]string{"service", "cache"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		searchRequestsTotal,
		searchNoHitsTotal,
		searchResultCount,
		searchDuration,
		answerTotal,
		cacheHitRate,
		cacheSize,
	)

	return &HTTPServerMetrics{
		registry:            registry,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		searchRequestsTotal: searchRequestsTotal,
		searchNoHitsTotal:   searchNoHitsTotal,
		searchResultCount:   searchResultCount,
		searchDuration:      searchDuration,
		answerTotal:         answerTotal,
		cacheHitRate:        cacheHitRate,
		cacheSize:           cacheSize,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			r.URL.Path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

func (m *HTTPServerMetrics) RecordSearch(service, endpoint, preset string, resultCount int, duration time.Duration) {
	if preset == "" {
		preset = "general"
	}
	m.searchRequestsTotal.WithLabelValues(service, endpoint, preset).Inc()
	m.searchResultCount.WithLabelValues(service, endpoint).Observe(float64(resultCount))
	m.searchDuration.WithLabelValues(service, endpoint).Observe(duration.Seconds())
	if resultCount == 0 {
		m.searchNoHitsTotal.WithLabelValues(service, endpoint).Inc()
	}
}

func (m *HTTPServerMetrics) RecordAnswer(service, answerType string) {
	if answerType == "" {
		answerType = "unknown"
	}
	m.answerTotal.WithLabelValues(service, answerType).Inc()
}

func (m *HTTPServerMetrics) RecordCacheStats(service, cache string, hitRate float64, size int) {
	m.cacheHitRate.WithLabelValues(service, cache).Set(hitRate)
	m.cacheSize.WithLabelValues(service, cache).Set(float64(size))
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
