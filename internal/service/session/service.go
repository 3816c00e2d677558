package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cmlabs-hris/presence-backend-go/internal/domain/session"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/validator"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/workday"
	"github.com/google/uuid"
)

// DefaultSessionTimeout is the heartbeat age after which an active session expires.
const DefaultSessionTimeout = 24 * time.Hour

// createAttempts bounds how often CreateSession re-reads the active session
// after losing an insert race.
const createAttempts = 3

type SessionStoreImpl struct {
	session.SessionRepository
	session.ConflictRepository
	publisher session.EventPublisher
	workStart workday.TimeOfDay
	location  *time.Location
	now       func() time.Time
}

// NewSessionStore builds the session store. workStart drives lateness;
// location is used when a request carries no office timezone. A nil clock
// means time.Now.
func NewSessionStore(
	sessionRepo session.SessionRepository,
	conflictRepo session.ConflictRepository,
	publisher session.EventPublisher,
	workStart workday.TimeOfDay,
	location *time.Location,
	clock func() time.Time,
) *SessionStoreImpl {
	if location == nil {
		location = time.UTC
	}
	if clock == nil {
		clock = time.Now
	}
	return &SessionStoreImpl{
		SessionRepository:  sessionRepo,
		ConflictRepository: conflictRepo,
		publisher:          publisher,
		workStart:          workStart,
		location:           location,
		now:                clock,
	}
}

// ValidateDeviceSession implements session.Store.
func (s *SessionStoreImpl) ValidateDeviceSession(ctx context.Context, employeeID string, date string, deviceID string) (session.Validation, error) {
	active, err := s.SessionRepository.FindActive(ctx, employeeID, date)
	if err != nil {
		return session.Validation{}, storageError("find active session", err)
	}

	if len(active) == 0 {
		return session.Validation{Outcome: session.OutcomeNoActiveSession}, nil
	}

	if len(active) > 1 {
		ids := make([]string, 0, len(active))
		for _, a := range active {
			ids = append(ids, a.ID)
		}
		slog.Error("Multiple active sessions observed",
			"error", session.ErrInvariantViolation,
			"employee_id", employeeID,
			"date", date,
			"session_ids", ids,
		)
	}

	current := active[0]
	if current.DeviceID == deviceID {
		return session.Validation{
			Outcome:   session.OutcomeValidSameDevice,
			SessionID: current.ID,
			Active:    &current,
		}, nil
	}

	return session.Validation{
		Outcome:   session.OutcomeConflict,
		SessionID: current.ID,
		Active:    &current,
	}, nil
}

// CreateSession implements session.Store.
func (s *SessionStoreImpl) CreateSession(ctx context.Context, req session.CreateSessionRequest) (session.CreateSessionResult, error) {
	if err := validateCreate(req); err != nil {
		return session.CreateSessionResult{}, err
	}

	for attempt := 0; attempt < createAttempts; attempt++ {
		v, err := s.ValidateDeviceSession(ctx, req.EmployeeID, req.Date, req.DeviceID)
		if err != nil {
			return session.CreateSessionResult{}, err
		}

		switch v.Outcome {
		case session.OutcomeConflict:
			return session.CreateSessionResult{}, &session.ConflictError{Active: *v.Active}
		case session.OutcomeValidSameDevice:
			return session.CreateSessionResult{SessionID: v.SessionID, Session: *v.Active}, nil
		}

		created, err := s.SessionRepository.CreateIfNoActive(ctx, s.newSession(req))
		if errors.Is(err, session.ErrActiveSessionExists) {
			// Lost the race against another create; re-read to report who won.
			slog.Info("Concurrent session create detected, re-validating",
				"employee_id", req.EmployeeID,
				"date", req.Date,
				"device_id", req.DeviceID,
			)
			continue
		}
		if err != nil {
			return session.CreateSessionResult{}, storageError("create session", err)
		}

		s.publish(ctx, session.Event{
			Type:       session.EventSessionCreated,
			SessionID:  created.ID,
			EmployeeID: created.EmployeeID,
			Date:       created.Date,
			DeviceID:   created.DeviceID,
			OccurredAt: created.SessionStartTime,
			Data: map[string]interface{}{
				"office_id":    created.OfficeID,
				"is_late":      created.IsLate,
				"late_minutes": created.LateMinutes,
				"risk_level":   created.Device.RiskLevel,
			},
		})

		return session.CreateSessionResult{SessionID: created.ID, Created: true, Session: created}, nil
	}

	return session.CreateSessionResult{}, fmt.Errorf("create session for %s on %s: %w", req.EmployeeID, req.Date, session.ErrActiveSessionExists)
}

func (s *SessionStoreImpl) newSession(req session.CreateSessionRequest) session.Session {
	loc := req.Location
	if loc == nil {
		loc = s.location
	}
	clockIn := req.ClockIn.UTC()
	local := clockIn.In(loc)
	isLate, lateMinutes := workday.Lateness(local, s.workStart)

	status := session.StatusPresent
	if isLate {
		status = session.StatusLate
	}

	return session.Session{
		EmployeeID:       req.EmployeeID,
		PFNumber:         req.PFNumber,
		EmployeeName:     req.Name,
		Date:             req.Date,
		DeviceID:         req.DeviceID,
		ClockInTime:      local.Format(session.ClockLayout),
		ClockInTimestamp: clockIn,
		SessionStartTime: clockIn,
		LastHeartbeat:    s.now().UTC(),
		ClockInLatitude:  req.Latitude,
		ClockInLongitude: req.Longitude,
		OfficeID:         req.OfficeID,
		OfficeName:       req.OfficeName,
		SessionActive:    true,
		Status:           status,
		IsLate:           isLate,
		LateMinutes:      lateMinutes,
		Device:           req.Device,
		TimeIntegrity:    req.TimeIntegrity,
	}
}

func validateCreate(req session.CreateSessionRequest) error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(req.EmployeeID) {
		errs = append(errs, validator.ValidationError{Field: "employee_id", Message: "employee_id is required"})
	}
	if _, ok := validator.IsValidDate(req.Date); !ok {
		errs = append(errs, validator.ValidationError{Field: "date", Message: "date must be in YYYY-MM-DD format"})
	}
	if validator.IsEmpty(req.DeviceID) {
		errs = append(errs, validator.ValidationError{Field: "device_id", Message: "device_id is required"})
	}
	if req.ClockIn.IsZero() {
		errs = append(errs, validator.ValidationError{Field: "clock_in", Message: "clock_in time is required"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Heartbeat implements session.Store.
func (s *SessionStoreImpl) Heartbeat(ctx context.Context, sessionID string) error {
	if err := s.SessionRepository.Heartbeat(ctx, sessionID, s.now().UTC()); err != nil {
		return storageError("heartbeat", err)
	}
	return nil
}

// TerminateSession implements session.Store.
func (s *SessionStoreImpl) TerminateSession(ctx context.Context, req session.TerminateSessionRequest) (float64, error) {
	current, err := s.SessionRepository.GetByID(ctx, req.SessionID)
	if err != nil {
		return 0, storageError("get session", err)
	}
	if !current.SessionActive {
		return 0, session.ErrAlreadyClosed
	}

	loc := req.Location
	if loc == nil {
		loc = s.location
	}
	now := s.now().UTC()
	if !req.ClockOut.IsZero() {
		now = req.ClockOut.UTC()
	}

	hours := now.Sub(current.ClockInTimestamp).Hours()
	if hours < 0 {
		hours = 0
	}

	upd := session.ClockOutUpdate{
		ClockOutTime:       now.In(loc).Format(session.ClockLayout),
		ClockOutTimestamp:  now,
		ClockOutLatitude:   req.Latitude,
		ClockOutLongitude:  req.Longitude,
		ClockOutOfficeID:   req.OfficeID,
		ClockOutOfficeName: req.OfficeName,
		TotalHours:         hours,
	}
	if req.Reason != nil && strings.TrimSpace(*req.Reason) != "" {
		reason := strings.TrimSpace(*req.Reason)
		upd.IsEarlyClockOut = true
		upd.EarlyClockOutReason = &reason
	}

	if err := s.SessionRepository.Close(ctx, req.SessionID, upd); err != nil {
		return 0, storageError("close session", err)
	}

	s.publish(ctx, session.Event{
		Type:       session.EventSessionClosed,
		SessionID:  current.ID,
		EmployeeID: current.EmployeeID,
		Date:       current.Date,
		DeviceID:   current.DeviceID,
		OccurredAt: now,
		Data: map[string]interface{}{
			"total_hours":        hours,
			"is_early_clock_out": upd.IsEarlyClockOut,
		},
	})

	return hours, nil
}

// ForceTerminate implements session.Store.
func (s *SessionStoreImpl) ForceTerminate(ctx context.Context, req session.ForceTerminateRequest) error {
	if validator.IsEmpty(req.Reason) {
		return validator.ValidationErrors{{Field: "reason", Message: "reason is required"}}
	}

	current, err := s.SessionRepository.GetByID(ctx, req.SessionID)
	if err != nil {
		return storageError("get session", err)
	}
	if !current.SessionActive {
		return session.ErrAlreadyClosed
	}

	now := s.now().UTC()
	err = s.SessionRepository.ForceClose(ctx, req.SessionID, session.ForceCloseUpdate{
		Reason:  strings.TrimSpace(req.Reason),
		AdminID: req.AdminID,
		At:      now,
	})
	if err != nil {
		return storageError("force close session", err)
	}

	slog.Info("Session force terminated",
		"session_id", req.SessionID,
		"employee_id", current.EmployeeID,
		"admin_id", req.AdminID,
	)

	s.publish(ctx, session.Event{
		Type:       session.EventSessionForceClosed,
		SessionID:  current.ID,
		EmployeeID: current.EmployeeID,
		Date:       current.Date,
		DeviceID:   current.DeviceID,
		OccurredAt: now,
		Data: map[string]interface{}{
			"reason":   strings.TrimSpace(req.Reason),
			"admin_id": req.AdminID,
		},
	})
	return nil
}

// CleanupExpiredSessions implements session.Store.
func (s *SessionStoreImpl) CleanupExpiredSessions(ctx context.Context, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	now := s.now().UTC()

	expired, err := s.SessionRepository.ExpireStale(ctx, now.Add(-timeout), now)
	if err != nil {
		return 0, storageError("expire stale sessions", err)
	}

	for _, e := range expired {
		s.publish(ctx, session.Event{
			Type:       session.EventSessionExpired,
			SessionID:  e.ID,
			EmployeeID: e.EmployeeID,
			Date:       e.Date,
			DeviceID:   e.DeviceID,
			OccurredAt: now,
			Data: map[string]interface{}{
				"last_heartbeat": e.LastHeartbeat,
			},
		})
	}

	if len(expired) > 0 {
		slog.Info("Expired stale sessions", "count", len(expired), "timeout", timeout.String())
	}
	return len(expired), nil
}

// ReportConflict implements session.Store.
func (s *SessionStoreImpl) ReportConflict(ctx context.Context, c session.DeviceConflict) (session.DeviceConflict, error) {
	original, err := s.SessionRepository.GetByID(ctx, c.OriginalSessionID)
	if err != nil {
		return session.DeviceConflict{}, storageError("get original session", err)
	}

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.DetectedAt.IsZero() {
		c.DetectedAt = s.now().UTC()
	}
	if c.EmployeeID == "" {
		c.EmployeeID = original.EmployeeID
	}
	if c.Date == "" {
		c.Date = original.Date
	}
	if c.OriginalDeviceID == "" {
		c.OriginalDeviceID = original.DeviceID
	}
	if c.OriginalDeviceInfo == "" {
		c.OriginalDeviceInfo = original.Device.DeviceInfo()
	}
	c.Resolved = false

	created, err := s.ConflictRepository.Create(ctx, c)
	if err != nil {
		return session.DeviceConflict{}, storageError("create device conflict", err)
	}

	err = s.SessionRepository.AnnotateConflict(ctx, original.ID, session.ConflictAnnotation{
		ConflictDeviceID: created.AttemptingDeviceID,
		ConflictTime:     created.DetectedAt,
		SecurityAlertID:  created.ID,
	})
	if err != nil {
		return session.DeviceConflict{}, storageError("annotate session conflict", err)
	}

	slog.Warn("Device conflict detected",
		"employee_id", created.EmployeeID,
		"session_id", original.ID,
		"original_device_id", created.OriginalDeviceID,
		"attempting_device_id", created.AttemptingDeviceID,
	)

	s.publish(ctx, session.Event{
		Type:       session.EventConflictDetected,
		SessionID:  original.ID,
		EmployeeID: created.EmployeeID,
		Date:       created.Date,
		DeviceID:   created.AttemptingDeviceID,
		OccurredAt: created.DetectedAt,
		Data: map[string]interface{}{
			"conflict_id":            created.ID,
			"original_device_info":   created.OriginalDeviceInfo,
			"attempting_device_info": created.AttemptingDeviceInfo,
		},
	})

	return created, nil
}

// GetSession implements session.Store.
func (s *SessionStoreImpl) GetSession(ctx context.Context, id string) (session.Session, error) {
	found, err := s.SessionRepository.GetByID(ctx, id)
	if err != nil {
		return session.Session{}, storageError("get session", err)
	}
	return found, nil
}

// ListConflicts implements session.Store.
func (s *SessionStoreImpl) ListConflicts(ctx context.Context, filter session.ConflictFilter) ([]session.DeviceConflict, error) {
	conflicts, err := s.ConflictRepository.List(ctx, filter)
	if err != nil {
		return nil, storageError("list device conflicts", err)
	}
	return conflicts, nil
}

func (s *SessionStoreImpl) publish(ctx context.Context, event session.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		slog.Warn("Failed to publish session event", "type", event.Type, "session_id", event.SessionID, "error", err)
	}
}

// storageError passes domain errors through and reports caller timeouts as
// ErrStorageUnavailable.
func storageError(op string, err error) error {
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrAlreadyClosed),
		errors.Is(err, session.ErrStorageUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w: %v", op, session.ErrStorageUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ session.Store = (*SessionStoreImpl)(nil)
