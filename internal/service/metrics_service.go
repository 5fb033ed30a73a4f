package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic, caching and scheduling.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheWrite      prometheus.Histogram
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	sessionsCreated    prometheus.Counter
	sessionsCancelled  *prometheus.CounterVec
	sessionsResolved   prometheus.Counter
	sessionsUnresolved prometheus.Counter
	materializeRaces   prometheus.Counter
	notifications      *prometheus.CounterVec

	cacheHitCount  uint64
	cacheMissCount uint64
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
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_latency_seconds",
			Help:    "Latency for cache lookups",
			Buckets: prometheus.DefBuckets,
		}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_write_seconds",
			Help:    "Latency for cache set operations",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cache_hit_ratio",
			Help: "Ratio of cache hits to total cache lookups",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses",
		}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_sessions_created_total",
			Help: "Sessions materialized from time slots",
		}),
		sessionsCancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_sessions_cancelled_total",
			Help: "Sessions cancelled by slot lifecycle changes",
		}, []string{"cause"}),
		sessionsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_sessions_resolved_total",
			Help: "Sessions that received a tutor from rotation",
		}),
		sessionsUnresolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_sessions_unresolved_total",
			Help: "Sessions left without a tutor after rotation",
		}),
		materializeRaces: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_materialization_races_total",
			Help: "Session inserts skipped because a concurrent call created the same session",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_notifications_total",
			Help: "Notifications handed to the dispatcher by outcome",
		}, []string{"outcome"}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		m.requestDuration, m.requestTotal,
		m.cacheLatency, m.cacheWrite, m.cacheHitRatio, m.cacheHits, m.cacheMisses,
		m.sessionsCreated, m.sessionsCancelled, m.sessionsResolved, m.sessionsUnresolved, m.materializeRaces, m.notifications,
		goroutines,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Registry exposes the underlying registry for tests and additional collectors.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates the hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// SessionsCreated counts newly materialized sessions.
func (m *MetricsService) SessionsCreated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsCreated.Add(float64(n))
}

// SessionsCancelled counts sessions cancelled for cause.
func (m *MetricsService) SessionsCancelled(cause string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsCancelled.WithLabelValues(cause).Add(float64(n))
}

// RotationOutcome counts resolved and unresolved sessions of one rotation pass.
func (m *MetricsService) RotationOutcome(resolved, unresolved int) {
	if m == nil {
		return
	}
	if resolved > 0 {
		m.sessionsResolved.Add(float64(resolved))
	}
	if unresolved > 0 {
		m.sessionsUnresolved.Add(float64(unresolved))
	}
}

// MaterializationRace counts an insert skipped by the identity key after a negative lookup.
func (m *MetricsService) MaterializationRace() {
	if m == nil {
		return
	}
	m.materializeRaces.Inc()
}

// NotificationOutcome counts notifications by dispatch outcome (queued, dropped, delivered, failed).
func (m *MetricsService) NotificationOutcome(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.notifications.WithLabelValues(outcome).Add(float64(n))
}
