package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService owns the Prometheus registry of the review API.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	imageUploads    *prometheus.CounterVec
	orphanedImages  prometheus.Counter
	transitions     *prometheus.CounterVec
	invalidations   *prometheus.CounterVec
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "view_cache_lookups_total",
			Help: "Track view cache lookups by result",
		}, []string{"result"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "view_cache_latency_seconds",
			Help:    "Latency of track view cache operations",
			Buckets: prometheus.DefBuckets,
		}),
		imageUploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "image_uploads_total",
			Help: "Images sent to the image host by result",
		}, []string{"result"}),
		orphanedImages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "image_orphans_total",
			Help: "Uploaded images whose mutation was not saved",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "round_transitions_total",
			Help: "Closed review rounds by client decision",
		}, []string{"decision"}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "view_invalidations_total",
			Help: "Cache invalidation jobs by result",
		}, []string{"result"}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(m.requestDuration, m.requestTotal, m.cacheLookups, m.cacheLatency,
		m.imageUploads, m.orphanedImages, m.transitions, m.invalidations, goroutines)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest records one served request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheLookup records a view cache hit or miss.
func (m *MetricsService) RecordCacheLookup(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
	m.cacheLatency.Observe(duration.Seconds())
}

// RecordImageUploads counts n uploads with the given result.
func (m *MetricsService) RecordImageUploads(result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.imageUploads.WithLabelValues(result).Add(float64(n))
}

// RecordOrphanedImages counts uploaded images left without an owner.
func (m *MetricsService) RecordOrphanedImages(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.orphanedImages.Add(float64(n))
}

// RecordTransition counts a closed round.
func (m *MetricsService) RecordTransition(decision string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(decision).Inc()
}

// RecordInvalidation counts a processed invalidation job.
func (m *MetricsService) RecordInvalidation(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.invalidations.WithLabelValues(result).Inc()
}
