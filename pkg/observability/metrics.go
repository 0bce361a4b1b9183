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

// Metrics holds all Prometheus metrics.
// All recording helpers are safe to call on a nil *Metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authentication metrics
	LoginAttemptsTotal      *prometheus.CounterVec
	ThrottleRejectionsTotal *prometheus.CounterVec
	SessionExpirationsTotal prometheus.Counter
	SessionAddressMismatch  prometheus.Counter

	// Authorization metrics
	PolicyDecisionsTotal *prometheus.CounterVec
	TenantSwitchesTotal  *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "andobill_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "andobill_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		LoginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "andobill_login_attempts_total",
				Help: "Authentication attempts by outcome and failure reason",
			},
			[]string{"outcome", "reason"},
		),
		ThrottleRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "andobill_login_throttle_rejections_total",
				Help: "Login attempts rejected by the throttle, by scope (address or identifier)",
			},
			[]string{"scope"},
		),
		SessionExpirationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "andobill_session_expirations_total",
				Help: "Sessions force-logged-out after the idle timeout",
			},
		),
		SessionAddressMismatch: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "andobill_session_address_mismatch_total",
				Help: "Requests whose source address differs from the session's login address",
			},
		),
		PolicyDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "andobill_policy_decisions_total",
				Help: "Resource policy decisions",
			},
			[]string{"entity", "action", "result"},
		),
		TenantSwitchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "andobill_tenant_switches_total",
				Help: "Tenant switch requests by result",
			},
			[]string{"result"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "andobill_cache_hits_total",
				Help: "Aggregate cache hits",
			},
			[]string{"aggregate"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "andobill_cache_misses_total",
				Help: "Aggregate cache misses",
			},
			[]string{"aggregate"},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "andobill_db_connections_active",
				Help: "Number of in-use database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "andobill_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.LoginAttemptsTotal,
		m.ThrottleRejectionsTotal,
		m.SessionExpirationsTotal,
		m.SessionAddressMismatch,
		m.PolicyDecisionsTotal,
		m.TenantSwitchesTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// RecordLoginAttempt counts one authentication attempt
func (m *Metrics) RecordLoginAttempt(outcome, reason string) {
	if m == nil {
		return
	}
	m.LoginAttemptsTotal.WithLabelValues(outcome, reason).Inc()
}

// RecordThrottleRejection counts a throttled login attempt
func (m *Metrics) RecordThrottleRejection(scope string) {
	if m == nil {
		return
	}
	m.ThrottleRejectionsTotal.WithLabelValues(scope).Inc()
}

// RecordSessionExpired counts a forced logout
func (m *Metrics) RecordSessionExpired() {
	if m == nil {
		return
	}
	m.SessionExpirationsTotal.Inc()
}

// RecordAddressMismatch counts a session source address change
func (m *Metrics) RecordAddressMismatch() {
	if m == nil {
		return
	}
	m.SessionAddressMismatch.Inc()
}

// RecordPolicyDecision counts an allow/deny outcome
func (m *Metrics) RecordPolicyDecision(entity, action string, allowed bool) {
	if m == nil {
		return
	}
	result := "denied"
	if allowed {
		result = "allowed"
	}
	m.PolicyDecisionsTotal.WithLabelValues(entity, action, result).Inc()
}

// RecordTenantSwitch counts a tenant switch by result
func (m *Metrics) RecordTenantSwitch(result string) {
	if m == nil {
		return
	}
	m.TenantSwitchesTotal.WithLabelValues(result).Inc()
}

// RecordCache counts an aggregate cache lookup
func (m *Metrics) RecordCache(aggregate string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(aggregate).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(aggregate).Inc()
}

// RecordDBStats publishes the connection pool gauges
func (m *Metrics) RecordDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
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

// routeLabel returns the mux path template so label cardinality stays bounded
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			if metrics == nil {
				return
			}
			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
