package session

import (
	"context"
	"time"
)

// EventType names a session state change.
type EventType string

const (
	EventSessionCreated           EventType = "session_created"
	EventSessionClosed            EventType = "session_closed"
	EventSessionExpired           EventType = "session_expired"
	EventSessionForceClosed       EventType = "session_force_closed"
	EventConflictDetected         EventType = "conflict_detected"
	EventDeviceSwitchingSuspected EventType = "device_switching_suspected"
)

// Event is published after a state change has been persisted.
type Event struct {
	Type       EventType              `json:"type"`
	SessionID  string                 `json:"session_id,omitempty"`
	EmployeeID string                 `json:"employee_id"`
	Date       string                 `json:"date,omitempty"`
	DeviceID   string                 `json:"device_id,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// EventPublisher delivers events to the notification layer. Delivery is best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}
