package audit

import (
	"context"
	"sync"
)

// MemoryLogger keeps events in memory; used by tests and the admin CLI dry runs
type MemoryLogger struct {
	eventBuilder
	mu     sync.Mutex
	events []*AuditEvent
}

// NewMemoryLogger creates an empty in-memory audit sink
func NewMemoryLogger() *MemoryLogger {
	l := &MemoryLogger{}
	l.eventBuilder = eventBuilder{log: l.Log}
	return l
}

// Log appends the event
func (l *MemoryLogger) Log(ctx context.Context, event *AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

// Events returns a copy of the recorded events
func (l *MemoryLogger) Events() []*AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*AuditEvent, len(l.events))
	copy(out, l.events)
	return out
}

// OfType returns the recorded events with the given type
func (l *MemoryLogger) OfType(eventType EventType) []*AuditEvent {
	var out []*AuditEvent
	for _, e := range l.Events() {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Close is a no-op
func (l *MemoryLogger) Close() error {
	return nil
}
