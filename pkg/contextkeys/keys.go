// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here so that
// producers and consumers agree on names and value types.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/andobill/pkg/contextkeys"
//	ctx = contextkeys.WithTenant(ctx, &companyID)
//	companyID := contextkeys.GetTenant(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// SessionKey contains *session.Session
	// Set by: session.Manager.Middleware
	// Required by: freshness guard, tenant switch, login/logout handlers
	SessionKey Key = "session"

	// TenantKey contains the effective company id (*int64)
	// Set by: middleware.TenantContext (pkg/middleware/tenant.go)
	TenantKey Key = "effective_company"

	// PrincipalMemoKey contains the request-scoped *rbac.Grants
	// Set by: rbac.Checker.ForRequest via middleware.AuthMiddleware
	PrincipalMemoKey Key = "principal_memo"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: logger, audit trail
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	LoggerKey Key = "logger"

	// AuditLoggerKey contains audit.Logger
	AuditLoggerKey Key = "audit_logger"

	// ClientIPKey contains the resolved client address string
	// Set by: httputil.RealIPMiddleware
	// Used by: login throttle, session address check, audit trail
	ClientIPKey Key = "client_ip"

	// LanguageKey contains the negotiated language tag string
	// Set by: i18n.Middleware
	LanguageKey Key = "language"
)

// WithSession adds the session record to the context
func WithSession(ctx context.Context, sess interface{}) context.Context {
	return context.WithValue(ctx, SessionKey, sess)
}

// WithTenant adds the effective company id to the context
func WithTenant(ctx context.Context, companyID *int64) context.Context {
	return context.WithValue(ctx, TenantKey, companyID)
}

// GetTenant returns the effective company id, or nil when none was resolved
func GetTenant(ctx context.Context) *int64 {
	if id, ok := ctx.Value(TenantKey).(*int64); ok {
		return id
	}
	return nil
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// WithAuditLogger adds audit logger to the context
func WithAuditLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, AuditLoggerKey, logger)
}

// WithLanguage stores the negotiated language tag
func WithLanguage(ctx context.Context, tag string) context.Context {
	return context.WithValue(ctx, LanguageKey, tag)
}

// GetLanguage returns the negotiated language tag, empty if none
func GetLanguage(ctx context.Context) string {
	if tag, ok := ctx.Value(LanguageKey).(string); ok {
		return tag
	}
	return ""
}

// WithClientIP stores the resolved client address
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ClientIPKey, ip)
}

// GetClientIP returns the resolved client address, empty if none
func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ClientIPKey).(string); ok {
		return ip
	}
	return ""
}
