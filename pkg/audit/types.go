package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeAuthLogin          EventType = "auth.login"
	EventTypeAuthLogout         EventType = "auth.logout"
	EventTypeAuthLoginFailed    EventType = "auth.login_failed"
	EventTypeAuthLockout        EventType = "auth.lockout"
	EventTypeAuthSessionExpired EventType = "auth.session_expired"

	// Authorization events
	EventTypeAuthzPermissionGrant  EventType = "authz.permission_grant"
	EventTypeAuthzPermissionRevoke EventType = "authz.permission_revoke"
	EventTypeAuthzRoleCreate       EventType = "authz.role_create"
	EventTypeAuthzRoleDelete       EventType = "authz.role_delete"
	EventTypeAuthzRoleChange       EventType = "authz.role_change"
	EventTypeAuthzAccessDenied     EventType = "authz.access_denied"

	// Tenant events
	EventTypeTenantSwitch        EventType = "tenant.switch"
	EventTypeTenantSwitchCleared EventType = "tenant.switch_cleared"
	EventTypeTenantDefaultChange EventType = "tenant.default_change"
	EventTypeTenantStatusChange  EventType = "tenant.status_change"
	EventTypeTenantCreate        EventType = "tenant.create"

	// Configuration events
	EventTypeConfigSettingChange EventType = "config.setting_change"
	EventTypeConfigSettingDelete EventType = "config.setting_delete"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being accessed
type ResourceType string

const (
	ResourceTypeUser       ResourceType = "user"
	ResourceTypeCompany    ResourceType = "company"
	ResourceTypeRole       ResourceType = "role"
	ResourceTypePermission ResourceType = "permission"
	ResourceTypeSetting    ResourceType = "setting"
	ResourceTypeSession    ResourceType = "session"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	UserID    *int64 `json:"user_id,omitempty"`
	Username  string `json:"username,omitempty"`
	CompanyID *int64 `json:"company_id,omitempty"`

	// Resource information
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	// Request context
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`

	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`

	// Changes tracking (before/after for updates)
	Changes *ChangeDetails `json:"changes,omitempty"`
}

// ChangeDetails tracks before/after values for updates
type ChangeDetails struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *AuditEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// SearchFilter represents filters for searching audit logs
type SearchFilter struct {
	StartTime *time.Time
	EndTime   *time.Time

	UserID    *int64
	CompanyID *int64

	EventTypes []EventType
	Status     *EventStatus

	ResourceType ResourceType
	ResourceID   string

	Limit  int
	Offset int
}
