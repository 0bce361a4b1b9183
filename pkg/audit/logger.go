package audit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/platinummonkey/andobill/pkg/contextkeys"
	"github.com/platinummonkey/andobill/pkg/httputil"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *AuditEvent) error

	// LogAuthentication logs an authentication event
	LogAuthentication(ctx context.Context, eventType EventType, userID *int64, username string, status EventStatus, message string) error

	// LogAuthorization logs an authorization event
	LogAuthorization(ctx context.Context, eventType EventType, userID *int64, resourceType ResourceType, resourceID string, status EventStatus, message string) error

	// LogConfiguration logs a settings change on a company
	LogConfiguration(ctx context.Context, eventType EventType, userID *int64, resourceID string, changes *ChangeDetails, message string) error

	// LogAdminAction logs an admin action event
	LogAdminAction(ctx context.Context, eventType EventType, adminUserID *int64, resourceType ResourceType, resourceID string, message string) error

	// Close flushes any buffered events
	Close() error
}

// contextKey is the type for package-private context keys
type contextKey string

const (
	requestInfoKey contextKey = "audit_request_info"
	actorKey       contextKey = "audit_actor"
)

// RequestInfo is the request metadata stamped onto events
type RequestInfo struct {
	IPAddress string
	UserAgent string
	Method    string
	Path      string
	StartedAt time.Time
}

// Actor identifies the authenticated principal behind a request
type Actor struct {
	UserID    int64
	Username  string
	CompanyID *int64
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return contextkeys.WithAuditLogger(ctx, logger)
}

// FromContext retrieves the audit logger from context
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok {
		return logger
	}
	return &noOpLogger{}
}

// WithRequestInfo stores request metadata for later events
func WithRequestInfo(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, requestInfoKey, RequestInfo{
		IPAddress: httputil.ClientIP(r),
		UserAgent: r.UserAgent(),
		Method:    r.Method,
		Path:      r.URL.Path,
		StartedAt: time.Now(),
	})
}

// WithActor records the authenticated principal on the context
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

func actorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}

// noOpLogger is used when no logger is configured
type noOpLogger struct{}

func (l *noOpLogger) Log(ctx context.Context, event *AuditEvent) error { return nil }

func (l *noOpLogger) LogAuthentication(ctx context.Context, eventType EventType, userID *int64, username string, status EventStatus, message string) error {
	return nil
}

func (l *noOpLogger) LogAuthorization(ctx context.Context, eventType EventType, userID *int64, resourceType ResourceType, resourceID string, status EventStatus, message string) error {
	return nil
}

func (l *noOpLogger) LogConfiguration(ctx context.Context, eventType EventType, userID *int64, resourceID string, changes *ChangeDetails, message string) error {
	return nil
}

func (l *noOpLogger) LogAdminAction(ctx context.Context, eventType EventType, adminUserID *int64, resourceType ResourceType, resourceID string, message string) error {
	return nil
}

func (l *noOpLogger) Close() error { return nil }

// buildBaseEvent creates an event with request and actor fields populated from ctx
func buildBaseEvent(ctx context.Context, eventType EventType, status EventStatus) *AuditEvent {
	event := &AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		RequestID: contextkeys.GetRequestID(ctx),
		Metadata:  make(map[string]interface{}),
	}

	if info, ok := ctx.Value(requestInfoKey).(RequestInfo); ok {
		event.IPAddress = info.IPAddress
		event.UserAgent = info.UserAgent
		event.Method = info.Method
		event.Path = info.Path
	}
	if actor, ok := actorFromContext(ctx); ok {
		id := actor.UserID
		event.UserID = &id
		event.Username = actor.Username
		event.CompanyID = actor.CompanyID
	}
	if companyID := contextkeys.GetTenant(ctx); companyID != nil {
		event.CompanyID = companyID
	}

	return event
}

// eventBuilder implements the typed Log* helpers on top of a Log function
type eventBuilder struct {
	log func(ctx context.Context, event *AuditEvent) error
}

func (b eventBuilder) LogAuthentication(ctx context.Context, eventType EventType, userID *int64, username string, status EventStatus, message string) error {
	event := buildBaseEvent(ctx, eventType, status)
	if userID != nil {
		event.UserID = userID
	}
	if username != "" {
		event.Username = username
	}
	event.Message = message
	event.ResourceType = ResourceTypeUser
	return b.log(ctx, event)
}

func (b eventBuilder) LogAuthorization(ctx context.Context, eventType EventType, userID *int64, resourceType ResourceType, resourceID string, status EventStatus, message string) error {
	event := buildBaseEvent(ctx, eventType, status)
	if userID != nil {
		event.UserID = userID
	}
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = message
	return b.log(ctx, event)
}

func (b eventBuilder) LogConfiguration(ctx context.Context, eventType EventType, userID *int64, resourceID string, changes *ChangeDetails, message string) error {
	event := buildBaseEvent(ctx, eventType, EventStatusSuccess)
	if userID != nil {
		event.UserID = userID
	}
	event.ResourceType = ResourceTypeSetting
	event.ResourceID = resourceID
	event.Changes = changes
	event.Message = message
	return b.log(ctx, event)
}

func (b eventBuilder) LogAdminAction(ctx context.Context, eventType EventType, adminUserID *int64, resourceType ResourceType, resourceID string, message string) error {
	event := buildBaseEvent(ctx, eventType, EventStatusSuccess)
	if adminUserID != nil {
		event.UserID = adminUserID
	}
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = message
	return b.log(ctx, event)
}

// LogDenied logs an access denied event through the logger on ctx
func LogDenied(ctx context.Context, resourceType ResourceType, resourceID string, reason string) error {
	event := buildBaseEvent(ctx, EventTypeAuthzAccessDenied, EventStatusDenied)
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = fmt.Sprintf("Access denied: %s", reason)
	return FromContext(ctx).Log(ctx, event)
}
