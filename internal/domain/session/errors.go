package session

import (
	"errors"
	"fmt"

	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/validator"
)

// Session domain errors
var (
	ErrSessionNotFound     = errors.New("attendance session not found")
	ErrAlreadyClosed       = errors.New("attendance session is already closed")
	ErrDeviceConflict      = errors.New("another device is already clocked in")
	ErrActiveSessionExists = errors.New("an active session already exists for this employee and date")
	ErrStorageUnavailable  = errors.New("session storage is temporarily unavailable")
	ErrInvariantViolation  = errors.New("session invariant violated")

	// Boundary validation errors
	ErrOutsideGeofence = errors.New("you are too far from any office")
	ErrClockUntrusted  = errors.New("your device clock looks wrong")
	ErrReasonRequired  = errors.New("a reason is required to clock out early")
	ErrNotSessionOwner = errors.New("session does not belong to this employee")
	ErrInvalidWeek     = errors.New("invalid week date")
)

// ConflictError is returned when another device holds the active session.
type ConflictError struct {
	Active Session
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s (session %s on %s)", ErrDeviceConflict.Error(), e.Active.ID, e.Active.Device.DeviceInfo())
}

func (e *ConflictError) Unwrap() error {
	return ErrDeviceConflict
}

// GeofenceError carries the nearest office for a rejection message.
type GeofenceError struct {
	NearestOffice   string
	NearestDistance float64
}

func (e *GeofenceError) Error() string {
	if e.NearestOffice == "" {
		return ErrOutsideGeofence.Error()
	}
	return fmt.Sprintf("%s: nearest office is %s, %.0f m away", ErrOutsideGeofence.Error(), e.NearestOffice, e.NearestDistance)
}

func (e *GeofenceError) Unwrap() error {
	return ErrOutsideGeofence
}

// ErrorKind is the coarse error taxonomy callers branch on.
type ErrorKind string

const (
	KindValidation ErrorKind = "VALIDATION"
	KindConflict   ErrorKind = "CONFLICT"
	KindNotFound   ErrorKind = "NOT_FOUND"
	KindTransient  ErrorKind = "TRANSIENT"
	KindInvariant  ErrorKind = "INVARIANT"
	KindInternal   ErrorKind = "INTERNAL"
)

// Kind classifies err. A nil error has no kind.
func Kind(err error) ErrorKind {
	var validationErrs validator.ValidationErrors
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validationErrs),
		errors.Is(err, ErrOutsideGeofence),
		errors.Is(err, ErrClockUntrusted),
		errors.Is(err, ErrReasonRequired),
		errors.Is(err, ErrInvalidWeek):
		return KindValidation
	case errors.Is(err, ErrDeviceConflict),
		errors.Is(err, ErrActiveSessionExists),
		errors.Is(err, ErrNotSessionOwner):
		return KindConflict
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrAlreadyClosed):
		return KindNotFound
	case errors.Is(err, ErrStorageUnavailable):
		return KindTransient
	case errors.Is(err, ErrInvariantViolation):
		return KindInvariant
	}
	return KindInternal
}
