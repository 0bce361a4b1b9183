package observability

import (
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	require.NotNil(t, metrics)

	metrics.RecordLoginAttempt("failed", "invalid_credentials")
	metrics.RecordLoginAttempt("failed", "invalid_credentials")
	metrics.RecordThrottleRejection("address")
	metrics.RecordSessionExpired()
	metrics.RecordAddressMismatch()
	metrics.RecordPolicyDecision("expense", "create", false)
	metrics.RecordTenantSwitch("ok")
	metrics.RecordCache("dashboard", true)
	metrics.RecordCache("dashboard", false)

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.LoginAttemptsTotal.WithLabelValues("failed", "invalid_credentials")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ThrottleRejectionsTotal.WithLabelValues("address")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SessionExpirationsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SessionAddressMismatch))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.PolicyDecisionsTotal.WithLabelValues("expense", "create", "denied")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues("dashboard")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CacheMissesTotal.WithLabelValues("dashboard")))

	metrics.RecordDBStats(sql.DBStats{InUse: 3, Idle: 2})
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.DBConnectionsActive))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.DBConnectionsIdle))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordLoginAttempt("success", "")
		m.RecordThrottleRejection("identifier")
		m.RecordSessionExpired()
		m.RecordAddressMismatch()
		m.RecordPolicyDecision("user", "view", true)
		m.RecordTenantSwitch("denied")
		m.RecordCache("shared", true)
	})
}

func TestHTTPMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(metrics))
	router.HandleFunc("/api/companies/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/companies/42", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(
		metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/companies/{id}", "418")))
}

func TestMetricsHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.RecordSessionExpired()

	rec := httptest.NewRecorder()
	MetricsHandler(registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "andobill_session_expirations_total 1"))
}
