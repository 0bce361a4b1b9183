package audit

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/andobill/pkg/contextkeys"
	"github.com/platinummonkey/andobill/pkg/observability"
)

func TestMiddleware_AttachesLoggerAndRequestInfo(t *testing.T) {
	sink := NewMemoryLogger()
	mw := NewMiddleware(sink)

	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithActor(r.Context(), Actor{UserID: 7, Username: "anna@example.de"})
		err := FromContext(ctx).LogAuthentication(ctx, EventTypeAuthLogout, nil, "", EventStatusSuccess, "logout")
		require.NoError(t, err)
	}))

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.RemoteAddr = "203.0.113.5:1234"
	req.Header.Set("User-Agent", "test-agent")
	req = req.WithContext(contextkeys.WithRequestID(req.Context(), "req-1"))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	events := sink.Events()
	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, EventTypeAuthLogout, e.EventType)
	require.NotNil(t, e.UserID)
	assert.Equal(t, int64(7), *e.UserID)
	assert.Equal(t, "anna@example.de", e.Username)
	assert.Equal(t, "203.0.113.5", e.IPAddress)
	assert.Equal(t, "test-agent", e.UserAgent)
	assert.Equal(t, "/logout", e.Path)
	assert.Equal(t, "req-1", e.RequestID)
}

func TestFromContext_NoOp(t *testing.T) {
	logger := FromContext(context.Background())
	assert.NoError(t, logger.Log(context.Background(), &AuditEvent{}))
	assert.NoError(t, logger.Close())
}

func TestBuildBaseEvent_UsesEffectiveCompany(t *testing.T) {
	home := int64(1)
	effective := int64(9)
	ctx := WithActor(context.Background(), Actor{UserID: 3, CompanyID: &home})
	ctx = contextkeys.WithTenant(ctx, &effective)

	event := buildBaseEvent(ctx, EventTypeTenantSwitch, EventStatusSuccess)
	require.NotNil(t, event.CompanyID)
	assert.Equal(t, int64(9), *event.CompanyID)
}

func TestLogDenied(t *testing.T) {
	sink := NewMemoryLogger()
	ctx := WithLogger(context.Background(), sink)

	require.NoError(t, LogDenied(ctx, ResourceTypeCompany, "4", "missing manage_companies"))
	denied := sink.OfType(EventTypeAuthzAccessDenied)
	require.Len(t, denied, 1)
	assert.Equal(t, EventStatusDenied, denied[0].Status)
	assert.Contains(t, denied[0].Message, "manage_companies")
}

func TestLogLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogLogger(observability.NewLogger(observability.InfoLevel, &buf))

	userID := int64(5)
	ctx := context.Background()
	require.NoError(t, logger.LogAuthentication(ctx, EventTypeAuthSessionExpired, &userID, "", EventStatusFailure, "session expired"))
	require.NoError(t, logger.LogAdminAction(ctx, EventTypeAuthzRoleCreate, &userID, ResourceTypeRole, "accountant", "role created"))

	out := buf.String()
	assert.Contains(t, out, `"event_type":"auth.session_expired"`)
	assert.Contains(t, out, `"level":"warning"`)
	assert.Contains(t, out, `"resource_id":"accountant"`)
	assert.NoError(t, logger.Close())
}
