package service

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/edustack/campus-api/internal/authz"
	"github.com/edustack/campus-api/internal/models"
	appErrors "github.com/edustack/campus-api/pkg/errors"
)

// MetricsService owns the prometheus registry and the instruments the HTTP
// layer and services record into.
type MetricsService struct {
	registry *prometheus.Registry
	policy   *authz.Policy

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
	dbDuration   *prometheus.HistogramVec
}

// NewMetricsService builds the registry with process and Go runtime
// collectors plus the application instruments.
func NewMetricsService(policy *authz.Policy) *MetricsService {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &MetricsService{
		registry: registry,
		policy:   policy,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Number of handled HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalog_cache_hits_total",
			Help: "Course catalog cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalog_cache_misses_total",
			Help: "Course catalog cache misses.",
		}),
		dbDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query latency by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	registry.MustRegister(m.httpRequests, m.httpDuration, m.cacheHits, m.cacheMisses, m.dbDuration)
	return m
}

// Registry exposes the registry for the /metrics handler.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest counts a handled request and observes its latency.
func (m *MetricsService) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordCacheHit counts a catalog cache hit.
func (m *MetricsService) RecordCacheHit() {
	m.cacheHits.Inc()
}

// RecordCacheMiss counts a catalog cache miss.
func (m *MetricsService) RecordCacheMiss() {
	m.cacheMisses.Inc()
}

// RecordDBQuery observes the latency of a database operation.
func (m *MetricsService) RecordDBQuery(operation string, duration time.Duration) {
	m.dbDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// MetricsSnapshot summarizes the application counters for the admin
// operations endpoint; the full instrument set stays on /metrics.
type MetricsSnapshot struct {
	HTTPRequests float64   `json:"http_requests_total"`
	CacheHits    float64   `json:"catalog_cache_hits_total"`
	CacheMisses  float64   `json:"catalog_cache_misses_total"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// Snapshot returns the current counter totals. Admin only.
func (m *MetricsService) Snapshot(ctx context.Context, actor *models.Identity) (*MetricsSnapshot, error) {
	if _, err := authorize(ctx, m.policy, actor, authz.ActionRead, authz.ResourceMetrics, authz.Scope{}); err != nil {
		return nil, err
	}

	families, err := m.registry.Gather()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "gather metrics")
	}

	snapshot := &MetricsSnapshot{GeneratedAt: time.Now().UTC()}
	for _, family := range families {
		var total float64
		for _, metric := range family.GetMetric() {
			if counter := metric.GetCounter(); counter != nil {
				total += counter.GetValue()
			}
		}
		switch family.GetName() {
		case "http_requests_total":
			snapshot.HTTPRequests = total
		case "catalog_cache_hits_total":
			snapshot.CacheHits = total
		case "catalog_cache_misses_total":
			snapshot.CacheMisses = total
		}
	}
	return snapshot, nil
}
