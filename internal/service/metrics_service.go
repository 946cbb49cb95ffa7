package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "fieldops"

// Cache outcomes reported through ObserveCache.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
	CacheWrite = "write"
)

// MetricsService owns a private Prometheus registry with HTTP, cache and workflow collectors.
// Every recorder is a no-op on a nil receiver so services can run without metrics.
type MetricsService struct {
	registry *prometheus.Registry
	factory  promauto.Factory
	handler  http.Handler

	httpDuration     *prometheus.HistogramVec
	cacheDuration    *prometheus.HistogramVec
	taskTransitions  *prometheus.CounterVec
	surveySubmits    prometheus.Counter
	photosStored     *prometheus.CounterVec
	importRows       *prometheus.CounterVec
	snapshotDuration prometheus.Histogram
}

func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: metricsNamespace}),
	)
	factory := promauto.With(registry)

	return &MetricsService{
		registry: registry,
		factory:  factory,
		handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route template and status.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "route", "status"}),
		cacheDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "operation_duration_seconds",
			Help:      "Statistics cache round trips by outcome.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}, []string{"outcome"}),
		taskTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "task_transitions_total",
			Help:      "Applied task status changes.",
		}, []string{"from", "to"}),
		surveySubmits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "survey_submissions_total",
			Help:      "Accepted survey submissions.",
		}),
		photosStored: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "photos_stored_total",
			Help:      "Stored photos by origin and quality.",
		}, []string{"origin", "quality"}),
		importRows: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "client_import_rows_total",
			Help:      "Confirmed client import rows by outcome.",
		}, []string{"outcome"}),
		snapshotDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "statistics",
			Name:      "snapshot_duration_seconds",
			Help:      "Time spent regenerating a task statistics snapshot.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// WatchQueue exports the current depth of a background queue.
func (m *MetricsService) WatchQueue(name string, depth func() int) {
	if m == nil || depth == nil {
		return
	}
	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "jobs",
		Name:        "queue_depth",
		Help:        "Jobs waiting for a worker.",
		ConstLabels: prometheus.Labels{"queue": name},
	}, func() float64 { return float64(depth()) })
}

func (m *MetricsService) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}

// ObserveCache records one cache round trip. outcome is one of the Cache* constants.
func (m *MetricsService) ObserveCache(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *MetricsService) RecordTaskTransition(from, to string) {
	if m == nil {
		return
	}
	m.taskTransitions.WithLabelValues(from, to).Inc()
}

func (m *MetricsService) RecordSurveySubmission() {
	if m == nil {
		return
	}
	m.surveySubmits.Inc()
}

// RecordPhotoStored counts a persisted photo. origin is "answer" or "report".
func (m *MetricsService) RecordPhotoStored(origin string, highQuality bool) {
	if m == nil {
		return
	}
	quality := "low"
	if highQuality {
		quality = "high"
	}
	m.photosStored.WithLabelValues(origin, quality).Inc()
}

func (m *MetricsService) RecordImportRows(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.importRows.WithLabelValues(outcome).Add(float64(n))
}

func (m *MetricsService) ObserveSnapshot(duration time.Duration) {
	if m == nil {
		return
	}
	m.snapshotDuration.Observe(duration.Seconds())
}
