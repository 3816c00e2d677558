package attendance

import (
	"context"

	"github.com/cmlabs-hris/presence-backend-go/internal/domain/session"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/jwt"
)

// AttendanceService gates the session store with the location, time and
// device checks of a clock action.
type AttendanceService interface {
	// ClockIn opens a session, or returns the caller's existing one. A second
	// device yields a *session.ConflictError after the conflict is recorded.
	ClockIn(ctx context.Context, identity jwt.Identity, req ClockInRequest) (ClockInResponse, error)

	// ClockOut closes the caller's session from the device that opened it.
	ClockOut(ctx context.Context, identity jwt.Identity, req ClockOutRequest) (ClockOutResponse, error)

	ValidateDevice(ctx context.Context, identity jwt.Identity, req ValidateDeviceRequest) (session.ValidateSessionResponse, error)
}
