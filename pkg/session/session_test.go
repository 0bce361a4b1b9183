package session

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/andobill/pkg/audit"
	"github.com/platinummonkey/andobill/pkg/httputil"
	"github.com/platinummonkey/andobill/pkg/observability"
)

const cookieName = "andobill_session"

type freshnessFixture struct {
	store     *MemoryStore
	manager   *Manager
	freshness *Freshness
	metrics   *observability.Metrics
	logs      *bytes.Buffer
	audit     *audit.MemoryLogger
	now       time.Time
	handled   int
	handler   http.Handler
}

func newFreshnessFixture(t *testing.T) *freshnessFixture {
	t.Helper()
	f := &freshnessFixture{
		store:   NewMemoryStore(100, 12*time.Hour),
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
		logs:    &bytes.Buffer{},
		audit:   audit.NewMemoryLogger(),
		now:     time.Now().UTC(),
	}
	logger := observability.NewLogger(observability.InfoLevel, f.logs)
	f.manager = NewManager(f.store, Options{CookieName: cookieName, Lifetime: 12 * time.Hour}, logger)
	f.freshness = NewFreshness(120*time.Minute, f.manager, "/login", logger, f.metrics)
	f.freshness.now = func() time.Time { return f.now }

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.handled++
		w.WriteHeader(http.StatusOK)
	})
	withAudit := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(audit.WithLogger(r.Context(), f.audit)))
		})
	}
	f.handler = withAudit(f.manager.Middleware(f.freshness.Middleware(inner)))
	return f
}

func (f *freshnessFixture) seed(t *testing.T, idle time.Duration) *Session {
	t.Helper()
	uid := int64(7)
	s := &Session{
		ID:           "sess-1",
		UserID:       &uid,
		LastActivity: f.now.Add(-idle),
		LoginIP:      "192.0.2.1",
		CreatedAt:    f.now.Add(-3 * time.Hour),
	}
	require.NoError(t, f.store.Save(context.Background(), s))
	return s
}

func (f *freshnessFixture) request(ip string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.RemoteAddr = ip + ":4000"
	req.AddCookie(&http.Cookie{Name: cookieName, Value: "sess-1"})
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func responseCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	return nil
}

func TestFreshness_Evaluate(t *testing.T) {
	fr := NewFreshness(120*time.Minute, nil, "", nil, nil)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		last time.Time
		want State
	}{
		{"no marker", time.Time{}, StateFresh},
		{"119 minutes", now.Add(-119 * time.Minute), StateActive},
		{"exactly the timeout", now.Add(-120 * time.Minute), StateActive},
		{"121 minutes", now.Add(-121 * time.Minute), StateExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fr.Evaluate(&Session{LastActivity: tt.last}, now))
		})
	}
}

func TestFreshness_ExpiredSessionRedirects(t *testing.T) {
	f := newFreshnessFixture(t)
	f.seed(t, 121*time.Minute)

	rec := f.request("192.0.2.1", nil)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?status=session_expired", rec.Header().Get("Location"))
	assert.Zero(t, f.handled)

	_, err := f.store.Get(context.Background(), "sess-1")
	assert.ErrorIs(t, err, ErrNotFound, "old session destroyed")

	c := responseCookie(rec)
	require.NotNil(t, c)
	assert.NotEqual(t, "sess-1", c.Value, "new token issued")

	fresh, err := f.store.Get(context.Background(), c.Value)
	require.NoError(t, err)
	assert.False(t, fresh.IsAuthenticated())
	assert.Contains(t, fresh.Flash["status"], "Sitzung")

	expired := f.audit.OfType(audit.EventTypeAuthSessionExpired)
	require.Len(t, expired, 1)
	assert.Equal(t, int64(7), *expired[0].UserID)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SessionExpirationsTotal))
}

func TestFreshness_ExpiredSessionJSON(t *testing.T) {
	f := newFreshnessFixture(t)
	f.seed(t, 121*time.Minute)

	rec := f.request("192.0.2.1", http.Header{"Accept": {"application/json"}})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var body httputil.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, StatusSessionExpired, body.Error)
	assert.Equal(t, "/login?status=session_expired", body.Redirect)
	assert.NotEmpty(t, body.Message)
}

func TestFreshness_ActiveSessionRefreshed(t *testing.T) {
	f := newFreshnessFixture(t)
	f.seed(t, 119*time.Minute)

	rec := f.request("192.0.2.1", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.handled)
	assert.Nil(t, responseCookie(rec), "id unchanged")

	s, err := f.store.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.True(t, s.LastActivity.Equal(f.now), "marker refreshed to now")
	assert.Empty(t, f.audit.Events())
	assert.NotContains(t, f.logs.String(), "different address")
}

func TestFreshness_AddressMismatchOnlyWarns(t *testing.T) {
	f := newFreshnessFixture(t)
	f.seed(t, time.Minute)

	rec := f.request("198.51.100.9", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.handled)
	assert.Contains(t, f.logs.String(), "session used from a different address")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SessionAddressMismatch))
}

func TestFreshness_AddressMismatchOnFreshSession(t *testing.T) {
	f := newFreshnessFixture(t)
	s := f.seed(t, 0)
	s.LastActivity = time.Time{}
	require.NoError(t, f.store.Save(context.Background(), s))

	rec := f.request("198.51.100.9", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, f.logs.String(), "session used from a different address")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SessionAddressMismatch))

	stored, err := f.store.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.True(t, stored.LastActivity.Equal(f.now), "fresh session stamped")
}

func TestFreshness_LoginRouteSkipsExpiry(t *testing.T) {
	f := newFreshnessFixture(t)
	f.seed(t, 121*time.Minute)

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "192.0.2.1:4000"
	req.AddCookie(&http.Cookie{Name: cookieName, Value: "sess-1"})
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.handled)
	assert.Empty(t, f.audit.OfType(audit.EventTypeAuthSessionExpired))

	f.freshness.Exempt("/api/ping")
	req = httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: "sess-1"})
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, f.handled)
}

func TestFreshness_AnonymousPassesThrough(t *testing.T) {
	f := newFreshnessFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.handled)
	assert.Nil(t, responseCookie(rec), "untouched anonymous sessions are not stored")
	assert.Zero(t, f.store.Len())
}
