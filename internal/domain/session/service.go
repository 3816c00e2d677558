package session

import (
	"context"
	"time"
)

// Outcome is the result of validating a device against the active session.
type Outcome string

const (
	OutcomeNoActiveSession Outcome = "NO_ACTIVE_SESSION"
	OutcomeValidSameDevice Outcome = "VALID_SAME_DEVICE"
	OutcomeConflict        Outcome = "CONFLICT"
)

// Validation is returned by ValidateDeviceSession.
type Validation struct {
	Outcome   Outcome
	SessionID string
	Active    *Session
}

type CreateSessionRequest struct {
	EmployeeID    string
	PFNumber      string
	Name          string
	Date          string
	DeviceID      string
	Device        DeviceSnapshot
	Latitude      float64
	Longitude     float64
	OfficeID      string
	OfficeName    string
	ClockIn       time.Time
	Location      *time.Location
	TimeIntegrity TimeSnapshot
}

type CreateSessionResult struct {
	SessionID string
	Created   bool
	Session   Session
}

type TerminateSessionRequest struct {
	SessionID  string
	Latitude   float64
	Longitude  float64
	OfficeID   string
	OfficeName string
	Reason     *string
	Location   *time.Location
	// ClockOut is the verified clock-out instant. Zero means the store clock.
	ClockOut   time.Time
}

type ForceTerminateRequest struct {
	SessionID string
	Reason    string
	AdminID   string
}

// Store is the attendance session state machine.
type Store interface {
	// ValidateDeviceSession reports whether deviceID may act for the employee on date.
	ValidateDeviceSession(ctx context.Context, employeeID string, date string, deviceID string) (Validation, error)

	// CreateSession opens a session or returns the caller's existing one. Another
	// device holding the active session yields a *ConflictError.
	CreateSession(ctx context.Context, req CreateSessionRequest) (CreateSessionResult, error)

	Heartbeat(ctx context.Context, sessionID string) error

	// TerminateSession clocks out and returns the hours worked.
	TerminateSession(ctx context.Context, req TerminateSessionRequest) (float64, error)

	ForceTerminate(ctx context.Context, req ForceTerminateRequest) error

	// CleanupExpiredSessions expires active sessions without a heartbeat within timeout.
	CleanupExpiredSessions(ctx context.Context, timeout time.Duration) (int, error)

	// ReportConflict persists the audit record and annotates the original session.
	ReportConflict(ctx context.Context, c DeviceConflict) (DeviceConflict, error)

	GetSession(ctx context.Context, id string) (Session, error)
	ListConflicts(ctx context.Context, filter ConflictFilter) ([]DeviceConflict, error)
}
