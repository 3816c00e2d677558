package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cmlabs-hris/presence-backend-go/internal/domain/attendance"
	"github.com/cmlabs-hris/presence-backend-go/internal/domain/office"
	"github.com/cmlabs-hris/presence-backend-go/internal/domain/session"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/device"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/geofence"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/jwt"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/timeintegrity"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/workday"
	"github.com/google/uuid"
)

const conflictReportRetries = 3

type AttendanceServiceImpl struct {
	store    session.Store
	sessions session.SessionRepository
	office.OfficeRepository
	checker   *timeintegrity.Checker
	publisher session.EventPublisher
	workEnd   workday.TimeOfDay
	location  *time.Location
	now       func() time.Time

	newBackOff func() backoff.BackOff
}

func NewAttendanceService(
	store session.Store,
	sessionRepo session.SessionRepository,
	officeRepo office.OfficeRepository,
	checker *timeintegrity.Checker,
	publisher session.EventPublisher,
	workEnd workday.TimeOfDay,
	location *time.Location,
	clock func() time.Time,
) *AttendanceServiceImpl {
	if location == nil {
		location = time.UTC
	}
	if clock == nil {
		clock = time.Now
	}
	return &AttendanceServiceImpl{
		store:            store,
		sessions:         sessionRepo,
		OfficeRepository: officeRepo,
		checker:          checker,
		publisher:        publisher,
		workEnd:          workEnd,
		location:         location,
		now:              clock,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
	}
}

// ClockIn implements attendance.AttendanceService.
func (a *AttendanceServiceImpl) ClockIn(ctx context.Context, identity jwt.Identity, req attendance.ClockInRequest) (attendance.ClockInResponse, error) {
	if err := req.Validate(); err != nil {
		return attendance.ClockInResponse{}, err
	}

	timeCheck := a.checker.Check(ctx, req.AutoTimeEnabled, time.UnixMilli(req.DeviceTimeMillis))
	if !timeCheck.Valid {
		slog.Info("Clock-in rejected: untrusted device time",
			"employee_id", identity.EmployeeID,
			"status", timeCheck.Status,
			"skew_millis", timeCheck.SkewMillis,
		)
		return attendance.ClockInResponse{}, fmt.Errorf("%w: %s", session.ErrClockUntrusted, timeCheck.Reason)
	}

	matched, err := a.matchOffice(ctx, req.Latitude, req.Longitude)
	if err != nil {
		return attendance.ClockInResponse{}, err
	}

	deviceID := device.Fingerprint(req.Device)
	risk := device.AssessRisk(req.Device)
	snapshot := device.Snapshot(req.Device, risk)
	if risk.Level == device.RiskHigh {
		slog.Warn("High risk device clocking in",
			"employee_id", identity.EmployeeID,
			"device_id", deviceID,
			"risk_score", risk.Score,
			"reasons", risk.Reasons,
		)
	}

	loc := matched.Location(a.location)
	instant := timeCheck.Instant()
	date := instant.In(loc).Format(session.DateLayout)

	result, err := a.store.CreateSession(ctx, session.CreateSessionRequest{
		EmployeeID: identity.EmployeeID,
		PFNumber:   identity.PFNumber,
		Name:       identity.Name,
		Date:       date,
		DeviceID:   deviceID,
		Device:     snapshot,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		OfficeID:   matched.ID,
		OfficeName: matched.Name,
		ClockIn:    instant,
		Location:   loc,
		TimeIntegrity: session.TimeSnapshot{
			Method:     session.TimeValidationMethod(timeCheck.Method),
			SkewMillis: timeCheck.SkewMillis,
			Verified:   timeCheck.Verified,
		},
	})
	if err != nil {
		var conflict *session.ConflictError
		if errors.As(err, &conflict) {
			a.reportConflict(ctx, conflict.Active, deviceID, snapshot, instant)
		}
		return attendance.ClockInResponse{}, err
	}

	if result.Created {
		a.checkSwitching(ctx, identity.EmployeeID, instant)
	}

	return attendance.ClockInResponse{
		Created:  result.Created,
		DeviceID: deviceID,
		Session:  session.ToResponse(result.Session),
		TimeCheck: attendance.TimeCheckResponse{
			Status:     string(timeCheck.Status),
			Method:     string(timeCheck.Method),
			Verified:   timeCheck.Verified,
			SkewMillis: timeCheck.SkewMillis,
		},
		Risk: attendance.RiskResponse{
			Level:   risk.Level,
			Score:   risk.Score,
			Reasons: risk.Reasons,
		},
	}, nil
}

// ClockOut implements attendance.AttendanceService.
func (a *AttendanceServiceImpl) ClockOut(ctx context.Context, identity jwt.Identity, req attendance.ClockOutRequest) (attendance.ClockOutResponse, error) {
	if err := req.Validate(); err != nil {
		return attendance.ClockOutResponse{}, err
	}

	timeCheck := a.checker.Check(ctx, req.AutoTimeEnabled, time.UnixMilli(req.DeviceTimeMillis))
	if !timeCheck.Valid {
		slog.Info("Clock-out rejected: untrusted device time",
			"employee_id", identity.EmployeeID,
			"session_id", req.SessionID,
			"status", timeCheck.Status,
			"skew_millis", timeCheck.SkewMillis,
		)
		return attendance.ClockOutResponse{}, fmt.Errorf("%w: %s", session.ErrClockUntrusted, timeCheck.Reason)
	}
	instant := timeCheck.Instant()

	current, err := a.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return attendance.ClockOutResponse{}, err
	}
	if current.EmployeeID != identity.EmployeeID {
		return attendance.ClockOutResponse{}, session.ErrNotSessionOwner
	}
	if !current.SessionActive {
		return attendance.ClockOutResponse{}, session.ErrAlreadyClosed
	}
	if deviceID := req.CallingDevice(); current.DeviceID != deviceID {
		var snapshot session.DeviceSnapshot
		if req.Device != nil {
			snapshot = device.Snapshot(*req.Device, device.AssessRisk(*req.Device))
		}
		a.reportConflict(ctx, current, deviceID, snapshot, instant)
		return attendance.ClockOutResponse{}, &session.ConflictError{Active: current}
	}

	matched, err := a.matchOffice(ctx, req.Latitude, req.Longitude)
	if err != nil {
		return attendance.ClockOutResponse{}, err
	}

	loc := matched.Location(a.location)
	local := instant.In(loc)

	var reason *string
	if workday.LeftEarly(local, a.workEnd) {
		trimmed := strings.TrimSpace(req.Reason)
		if trimmed == "" {
			return attendance.ClockOutResponse{}, session.ErrReasonRequired
		}
		reason = &trimmed
	}

	hours, err := a.store.TerminateSession(ctx, session.TerminateSessionRequest{
		SessionID:  current.ID,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		OfficeID:   matched.ID,
		OfficeName: matched.Name,
		Reason:     reason,
		Location:   loc,
		ClockOut:   instant,
	})
	if err != nil {
		return attendance.ClockOutResponse{}, err
	}

	return attendance.ClockOutResponse{
		SessionID:       current.ID,
		ClockOutTime:    local.Format(session.ClockLayout),
		TotalHours:      hours,
		IsEarlyClockOut: reason != nil,
		OfficeID:        matched.ID,
		OfficeName:      matched.Name,
	}, nil
}

// ValidateDevice implements attendance.AttendanceService. Without a date it
// checks today in the fallback timezone and in every active office timezone,
// since a session is dated in the timezone of the office it was opened at.
func (a *AttendanceServiceImpl) ValidateDevice(ctx context.Context, identity jwt.Identity, req attendance.ValidateDeviceRequest) (session.ValidateSessionResponse, error) {
	if err := req.Validate(); err != nil {
		return session.ValidateSessionResponse{}, err
	}

	dates := []string{req.Date}
	if req.Date == "" {
		var err error
		if dates, err = a.todayDates(ctx); err != nil {
			return session.ValidateSessionResponse{}, err
		}
	}

	var v session.Validation
	for _, date := range dates {
		var err error
		v, err = a.store.ValidateDeviceSession(ctx, identity.EmployeeID, date, req.CallingDevice())
		if err != nil {
			return session.ValidateSessionResponse{}, err
		}
		if v.Outcome != session.OutcomeNoActiveSession {
			break
		}
	}

	resp := session.ValidateSessionResponse{
		Outcome:   v.Outcome,
		SessionID: v.SessionID,
	}
	if v.Active != nil {
		active := session.ToResponse(*v.Active)
		resp.ActiveSession = &active
	}
	return resp, nil
}

// todayDates returns the distinct current dates across the fallback timezone
// and the active offices, fallback first.
func (a *AttendanceServiceImpl) todayDates(ctx context.Context) ([]string, error) {
	offices, err := a.OfficeRepository.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active offices: %w", err)
	}

	now := a.now()
	dates := []string{now.In(a.location).Format(session.DateLayout)}
	for _, o := range offices {
		date := now.In(o.Location(a.location)).Format(session.DateLayout)
		if !slices.Contains(dates, date) {
			dates = append(dates, date)
		}
	}
	return dates, nil
}

func (a *AttendanceServiceImpl) matchOffice(ctx context.Context, lat, lng float64) (office.Office, error) {
	offices, err := a.OfficeRepository.ListActive(ctx)
	if err != nil {
		return office.Office{}, fmt.Errorf("list active offices: %w", err)
	}
	if len(offices) == 0 {
		slog.Warn("Geofence check without offices", "error", office.ErrNoOfficesDefined)
		return office.Office{}, &session.GeofenceError{}
	}

	m := geofence.MatchOffice(geofence.Point{Latitude: lat, Longitude: lng}, offices)
	if m.Matched == nil {
		return office.Office{}, &session.GeofenceError{
			NearestOffice:   m.Nearest.Name,
			NearestDistance: m.NearestDistance,
		}
	}
	return *m.Matched, nil
}

// reportConflict records the rejected attempt. The id is fixed before the
// first try so retries do not create duplicate records.
func (a *AttendanceServiceImpl) reportConflict(ctx context.Context, active session.Session, deviceID string, snapshot session.DeviceSnapshot, at time.Time) {
	conflict := session.DeviceConflict{
		ID:                   uuid.NewString(),
		EmployeeID:           active.EmployeeID,
		Date:                 active.Date,
		OriginalSessionID:    active.ID,
		OriginalDeviceID:     active.DeviceID,
		OriginalDeviceInfo:   active.Device.DeviceInfo(),
		AttemptingDeviceID:   deviceID,
		AttemptingDeviceInfo: snapshot.DeviceInfo(),
		DetectedAt:           at.UTC(),
	}

	operation := func() error {
		_, err := a.store.ReportConflict(ctx, conflict)
		if err != nil && session.Kind(err) != session.KindTransient {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		slog.Warn("Reporting device conflict failed, retrying", "conflict_id", conflict.ID, "error", err, "retry_in", wait.String())
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(a.newBackOff(), conflictReportRetries), ctx)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		slog.Error("Failed to record device conflict",
			"conflict_id", conflict.ID,
			"employee_id", conflict.EmployeeID,
			"session_id", conflict.OriginalSessionID,
			"error", err,
		)
	}
}

// checkSwitching flags employees moving between many devices. It never blocks the clock-in.
func (a *AttendanceServiceImpl) checkSwitching(ctx context.Context, employeeID string, now time.Time) {
	recent, err := a.sessions.ListByEmployeeSince(ctx, employeeID, now.Add(-device.SwitchingWindow))
	if err != nil {
		slog.Warn("Device switching check skipped", "employee_id", employeeID, "error", err)
		return
	}

	sw := device.DetectSwitchingPattern(recent, now)
	if !sw.Suspicious {
		return
	}

	slog.Warn("Device switching pattern suspected",
		"employee_id", employeeID,
		"distinct_devices", sw.DistinctDeviceCount,
		"sessions", sw.SessionCount,
	)

	if a.publisher == nil {
		return
	}
	err = a.publisher.Publish(ctx, session.Event{
		Type:       session.EventDeviceSwitchingSuspected,
		EmployeeID: employeeID,
		OccurredAt: now.UTC(),
		Data: map[string]interface{}{
			"distinct_devices": sw.DistinctDeviceCount,
			"sessions":         sw.SessionCount,
			"window":           device.SwitchingWindow.String(),
		},
	})
	if err != nil {
		slog.Warn("Failed to publish session event", "type", session.EventDeviceSwitchingSuspected, "error", err)
	}
}

var _ attendance.AttendanceService = (*AttendanceServiceImpl)(nil)
