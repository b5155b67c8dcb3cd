package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Gate metrics
	GateRejectionsTotal *prometheus.CounterVec

	// Username cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Telegram Bot API metrics
	TelegramLookupsTotal   *prometheus.CounterVec
	TelegramLookupDuration prometheus.Histogram

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "teamgate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "teamgate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		GateRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "teamgate_gate_rejections_total",
				Help: "Requests rejected before reaching a handler",
			},
			[]string{"status"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "teamgate_cache_hits_total",
				Help: "Total number of username cache hits",
			},
			[]string{"tier"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "teamgate_cache_misses_total",
				Help: "Total number of username cache misses",
			},
			[]string{"tier"},
		),
		TelegramLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "teamgate_telegram_lookups_total",
				Help: "Total number of Telegram Bot API username lookups",
			},
			[]string{"result"},
		),
		TelegramLookupDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "teamgate_telegram_lookup_duration_seconds",
				Help:    "Telegram Bot API lookup duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5},
			},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "teamgate_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "teamgate_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.GateRejectionsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.TelegramLookupsTotal,
		m.TelegramLookupDuration,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// ObserveDBStats copies the connection pool stats into the gauges.
func (m *Metrics) ObserveDBStats(stats sql.DBStats) {
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

// RecordCacheHit counts a username cache hit for the given tier.
func (m *Metrics) RecordCacheHit(tier string) {
	m.CacheHitsTotal.WithLabelValues(tier).Inc()
}

// RecordCacheMiss counts a username cache miss for the given tier.
func (m *Metrics) RecordCacheMiss(tier string) {
	m.CacheMissesTotal.WithLabelValues(tier).Inc()
}

// ObserveTelegramLookup records the outcome and duration of a Bot API
// username lookup.
func (m *Metrics) ObserveTelegramLookup(result string, d time.Duration) {
	m.TelegramLookupsTotal.WithLabelValues(result).Inc()
	m.TelegramLookupDuration.Observe(d.Seconds())
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// The path label uses the mux route template, not the raw URL, to keep
// label cardinality bounded.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			path := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if template, err := route.GetPathTemplate(); err == nil {
					path = template
				}
			}

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
			if rw.statusCode == http.StatusUnauthorized || rw.statusCode == http.StatusForbidden {
				metrics.GateRejectionsTotal.WithLabelValues(status).Inc()
			}
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
