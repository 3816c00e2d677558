package session

import (
	"context"
	"time"
)

// SessionRepository is the storage contract of the session store. Every method
// that flips SessionActive is conditional on the record still being active.
type SessionRepository interface {
	// GetByID returns ErrSessionNotFound when no session has the id.
	GetByID(ctx context.Context, id string) (Session, error)

	// FindActive returns the active sessions for an employee on a date, oldest first.
	FindActive(ctx context.Context, employeeID string, date string) ([]Session, error)

	// CreateIfNoActive inserts s only when no active session exists for
	// (s.EmployeeID, s.Date); otherwise it returns ErrActiveSessionExists.
	CreateIfNoActive(ctx context.Context, s Session) (Session, error)

	// Heartbeat sets LastHeartbeat and increments HeartbeatCount.
	Heartbeat(ctx context.Context, id string, at time.Time) error

	// Close applies a clock-out. Returns ErrAlreadyClosed when the session is no longer active.
	Close(ctx context.Context, id string, upd ClockOutUpdate) error

	// ForceClose applies an administrative termination. Returns ErrAlreadyClosed when the session is no longer active.
	ForceClose(ctx context.Context, id string, upd ForceCloseUpdate) error

	// ExpireStale closes every active session whose last heartbeat is before
	// heartbeatBefore and returns the sessions it closed.
	ExpireStale(ctx context.Context, heartbeatBefore time.Time, at time.Time) ([]Session, error)

	// AnnotateConflict marks the session as the target of a device conflict. It never touches SessionActive.
	AnnotateConflict(ctx context.Context, id string, a ConflictAnnotation) error

	// ListByEmployeeBetween returns the employee's sessions with fromDate <= date <= toDate.
	ListByEmployeeBetween(ctx context.Context, employeeID string, fromDate string, toDate string) ([]Session, error)

	// ListByEmployeeSince returns the employee's sessions clocked in at or after since.
	ListByEmployeeSince(ctx context.Context, employeeID string, since time.Time) ([]Session, error)

	// ListEmployeeIDsBetween returns the distinct employees with sessions in the date range.
	ListEmployeeIDsBetween(ctx context.Context, fromDate string, toDate string) ([]string, error)
}

// ConflictFilter narrows ListConflicts. Empty fields match everything.
type ConflictFilter struct {
	EmployeeID string
	SessionID  string
	Date       string
}

// ConflictRepository persists device conflict audit records.
type ConflictRepository interface {
	// Create stores c. A record whose ID already exists is returned unchanged,
	// which keeps retried reports from duplicating the audit trail.
	Create(ctx context.Context, c DeviceConflict) (DeviceConflict, error)
	List(ctx context.Context, filter ConflictFilter) ([]DeviceConflict, error)
}
