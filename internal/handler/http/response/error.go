package response

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cmlabs-hris/presence-backend-go/internal/domain/office"
	"github.com/cmlabs-hris/presence-backend-go/internal/domain/session"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/validator"
)

// HandleError maps domain errors to HTTP responses
func HandleError(w http.ResponseWriter, err error) {
	// Check if it's a validation error
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		ValidationError(w, validationErrs.ToMap())
		return
	}

	var geofenceErr *session.GeofenceError
	if errors.As(err, &geofenceErr) {
		Unprocessable(w, "OUTSIDE_GEOFENCE", "You are outside any office", map[string]string{
			"reason": geofenceErr.Error(),
		})
		return
	}

	var conflictErr *session.ConflictError
	if errors.As(err, &conflictErr) {
		ConflictWithDetails(w, "DEVICE_CONFLICT", "Another device is already clocked in", map[string]string{
			"session_id": conflictErr.Active.ID,
			"device":     conflictErr.Active.Device.DeviceInfo(),
			"since":      conflictErr.Active.ClockInTime,
		})
		return
	}

	switch {
	// Boundary checks
	case errors.Is(err, session.ErrClockUntrusted):
		Unprocessable(w, "CLOCK_UNTRUSTED", "Your device clock looks wrong", map[string]string{
			"reason": err.Error(),
		})
	case errors.Is(err, session.ErrReasonRequired):
		ValidationError(w, map[string]string{"reason": session.ErrReasonRequired.Error()})
	case errors.Is(err, session.ErrInvalidWeek):
		BadRequest(w, "Invalid week", nil)

	// Session state
	case errors.Is(err, session.ErrSessionNotFound):
		NotFound(w, "Session not found")
	case errors.Is(err, session.ErrAlreadyClosed):
		Conflict(w, "Session is already closed")
	case errors.Is(err, session.ErrNotSessionOwner):
		Conflict(w, "Session belongs to another employee")
	case errors.Is(err, session.ErrDeviceConflict), errors.Is(err, session.ErrActiveSessionExists):
		Conflict(w, "Another device is already clocked in")

	// Office domain errors
	case errors.Is(err, office.ErrOfficeNotFound):
		NotFound(w, "Office not found")

	default:
		switch session.Kind(err) {
		case session.KindTransient:
			ServiceUnavailable(w, "Temporary error, please retry")
		case session.KindInvariant:
			slog.Error("Session invariant violated", "error", err)
			InternalServerError(w, "An unexpected error occurred")
		default:
			slog.Error("Unhandled error", "error", err)
			InternalServerError(w, "An unexpected error occurred")
		}
	}
}
