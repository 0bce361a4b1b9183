package audit

import (
	"context"

	"github.com/platinummonkey/andobill/pkg/observability"
)

// LogLogger mirrors audit events into the structured application log
type LogLogger struct {
	eventBuilder
	logger *observability.Logger
}

// NewLogLogger creates an audit sink that writes through logger
func NewLogLogger(logger *observability.Logger) *LogLogger {
	l := &LogLogger{logger: logger.WithField("component", "audit")}
	l.eventBuilder = eventBuilder{log: l.Log}
	return l
}

// Log writes one event as a structured log line
func (l *LogLogger) Log(ctx context.Context, event *AuditEvent) error {
	fields := map[string]interface{}{
		"event_type": string(event.EventType),
		"status":     string(event.Status),
	}
	if event.UserID != nil {
		fields["user_id"] = *event.UserID
	}
	if event.CompanyID != nil {
		fields["company_id"] = *event.CompanyID
	}
	if event.ResourceType != "" {
		fields["resource_type"] = string(event.ResourceType)
		fields["resource_id"] = event.ResourceID
	}
	if event.IPAddress != "" {
		fields["ip_address"] = event.IPAddress
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}

	entry := l.logger.WithFields(fields)
	if event.Status == EventStatusSuccess {
		entry.Info(event.Message)
	} else {
		entry.Warn(event.Message)
	}
	return nil
}

// Close is a no-op
func (l *LogLogger) Close() error {
	return nil
}
