// Package memory keeps sessions, conflicts and offices in process memory. It
// satisfies the same repository contracts as the postgresql package and backs
// STORAGE_DRIVER=memory and the service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cmlabs-hris/presence-backend-go/internal/domain/session"
	"github.com/google/uuid"
)

type sessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]session.Session
	order    []string
	now      func() time.Time
}

func NewSessionRepository() session.SessionRepository {
	return &sessionRepository{
		sessions: make(map[string]session.Session),
		now:      time.Now,
	}
}

func checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", session.ErrStorageUnavailable, err)
	}
	return nil
}

// GetByID implements session.SessionRepository.
func (r *sessionRepository) GetByID(ctx context.Context, id string) (session.Session, error) {
	if err := checkContext(ctx); err != nil {
		return session.Session{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return session.Session{}, session.ErrSessionNotFound
	}
	return s, nil
}

// FindActive implements session.SessionRepository.
func (r *sessionRepository) FindActive(ctx context.Context, employeeID string, date string) ([]session.Session, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.filter(func(s session.Session) bool {
		return s.SessionActive && s.EmployeeID == employeeID && s.Date == date
	}), nil
}

// CreateIfNoActive implements session.SessionRepository.
func (r *sessionRepository) CreateIfNoActive(ctx context.Context, s session.Session) (session.Session, error) {
	if err := checkContext(ctx); err != nil {
		return session.Session{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.order {
		existing := r.sessions[id]
		if existing.SessionActive && existing.EmployeeID == s.EmployeeID && existing.Date == s.Date {
			return session.Session{}, session.ErrActiveSessionExists
		}
	}

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := r.now()
	s.CreatedAt = now
	s.UpdatedAt = now

	r.sessions[s.ID] = s
	r.order = append(r.order, s.ID)
	return s, nil
}

// Heartbeat implements session.SessionRepository.
func (r *sessionRepository) Heartbeat(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, false, func(s *session.Session) {
		s.LastHeartbeat = at
		s.HeartbeatCount++
	})
}

// Close implements session.SessionRepository.
func (r *sessionRepository) Close(ctx context.Context, id string, upd session.ClockOutUpdate) error {
	return r.update(ctx, id, true, func(s *session.Session) {
		clockOut := upd.ClockOutTime
		ts := upd.ClockOutTimestamp
		lat, lng := upd.ClockOutLatitude, upd.ClockOutLongitude
		officeID, officeName := upd.ClockOutOfficeID, upd.ClockOutOfficeName
		by := session.TerminatedBySelf

		s.ClockOutTime = &clockOut
		s.ClockOutTimestamp = &ts
		s.SessionEndTime = &ts
		s.ClockOutLatitude = &lat
		s.ClockOutLongitude = &lng
		s.ClockOutOfficeID = &officeID
		s.ClockOutOfficeName = &officeName
		s.TotalHours = upd.TotalHours
		s.IsEarlyClockOut = upd.IsEarlyClockOut
		s.EarlyClockOutReason = upd.EarlyClockOutReason
		s.TerminatedBy = &by
		s.SessionActive = false
	})
}

// ForceClose implements session.SessionRepository.
func (r *sessionRepository) ForceClose(ctx context.Context, id string, upd session.ForceCloseUpdate) error {
	return r.update(ctx, id, true, func(s *session.Session) {
		at := upd.At
		reason, adminID := upd.Reason, upd.AdminID
		by := session.TerminatedByAdmin

		s.SessionEndTime = &at
		s.TerminationReason = &reason
		s.TerminatedByAdminID = &adminID
		s.TerminatedBy = &by
		s.SessionActive = false
	})
}

// ExpireStale implements session.SessionRepository.
func (r *sessionRepository) ExpireStale(ctx context.Context, heartbeatBefore time.Time, at time.Time) ([]session.Session, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []session.Session
	for _, id := range r.order {
		s := r.sessions[id]
		if !s.SessionActive || !s.LastHeartbeat.Before(heartbeatBefore) {
			continue
		}
		expiredAt := at
		by := session.TerminatedByExpiry
		s.SessionActive = false
		s.SessionExpired = true
		s.SessionExpiredTime = &expiredAt
		s.SessionEndTime = &expiredAt
		s.TerminatedBy = &by
		s.UpdatedAt = r.now()
		r.sessions[id] = s
		expired = append(expired, s)
	}
	return expired, nil
}

// AnnotateConflict implements session.SessionRepository.
func (r *sessionRepository) AnnotateConflict(ctx context.Context, id string, a session.ConflictAnnotation) error {
	return r.update(ctx, id, false, func(s *session.Session) {
		deviceID, alertID, at := a.ConflictDeviceID, a.SecurityAlertID, a.ConflictTime
		s.HasDeviceConflict = true
		s.ConflictDeviceID = &deviceID
		s.ConflictTime = &at
		s.SecurityAlertID = &alertID
	})
}

// ListByEmployeeBetween implements session.SessionRepository.
func (r *sessionRepository) ListByEmployeeBetween(ctx context.Context, employeeID string, fromDate string, toDate string) ([]session.Session, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := r.filter(func(s session.Session) bool {
		return s.EmployeeID == employeeID && s.Date >= fromDate && s.Date <= toDate
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].ClockInTimestamp.Before(out[j].ClockInTimestamp)
	})
	return out, nil
}

// ListByEmployeeSince implements session.SessionRepository.
func (r *sessionRepository) ListByEmployeeSince(ctx context.Context, employeeID string, since time.Time) ([]session.Session, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := r.filter(func(s session.Session) bool {
		return s.EmployeeID == employeeID && !s.ClockInTimestamp.Before(since)
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ClockInTimestamp.Before(out[j].ClockInTimestamp)
	})
	return out, nil
}

// ListEmployeeIDsBetween implements session.SessionRepository.
func (r *sessionRepository) ListEmployeeIDsBetween(ctx context.Context, fromDate string, toDate string) ([]string, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	var ids []string
	for _, id := range r.order {
		s := r.sessions[id]
		if s.Date < fromDate || s.Date > toDate {
			continue
		}
		if _, ok := seen[s.EmployeeID]; ok {
			continue
		}
		seen[s.EmployeeID] = struct{}{}
		ids = append(ids, s.EmployeeID)
	}
	sort.Strings(ids)
	return ids, nil
}

// update applies fn to the session under the write lock. With requireActive
// the write only happens while the session is still active.
func (r *sessionRepository) update(ctx context.Context, id string, requireActive bool, fn func(*session.Session)) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return session.ErrSessionNotFound
	}
	if requireActive && !s.SessionActive {
		return session.ErrAlreadyClosed
	}
	fn(&s)
	s.UpdatedAt = r.now()
	r.sessions[id] = s
	return nil
}

func (r *sessionRepository) filter(keep func(session.Session) bool) []session.Session {
	var out []session.Session
	for _, id := range r.order {
		if s := r.sessions[id]; keep(s) {
			out = append(out, s)
		}
	}
	return out
}
