package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cmlabs-hris/presence-backend-go/internal/domain/session"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/validator"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/workday"
	"github.com/cmlabs-hris/presence-backend-go/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nairobi = time.FixedZone("EAT", 3*60*60)

type recordingPublisher struct {
	mu     sync.Mutex
	events []session.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e session.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []session.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]session.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type fixture struct {
	store     *SessionStoreImpl
	sessions  session.SessionRepository
	conflicts session.ConflictRepository
	events    *recordingPublisher
	clock     *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sessions:  memory.NewSessionRepository(),
		conflicts: memory.NewConflictRepository(),
		events:    &recordingPublisher{},
		clock:     &fakeClock{t: local(8, 0, 0)},
	}
	f.store = NewSessionStore(f.sessions, f.conflicts, f.events, workday.MustParse("08:00"), nairobi, f.clock.Now)
	return f
}

func local(h, m, s int) time.Time {
	return time.Date(2024, 3, 4, h, m, s, 0, nairobi)
}

func createReq(device string, clockIn time.Time) session.CreateSessionRequest {
	return session.CreateSessionRequest{
		EmployeeID: "emp-1",
		PFNumber:   "PF-001",
		Name:       "Amina Odhiambo",
		Date:       "2024-03-04",
		DeviceID:   device,
		Device:     session.DeviceSnapshot{Manufacturer: "Samsung", Model: "Galaxy A52", RiskLevel: "LOW"},
		Latitude:   -1.2921,
		Longitude:  36.8219,
		OfficeID:   "office-nbo",
		OfficeName: "Nairobi HQ",
		ClockIn:    clockIn,
		TimeIntegrity: session.TimeSnapshot{
			Method:     session.MethodServerTime,
			SkewMillis: 1200,
			Verified:   true,
		},
	}
}

func TestValidateDeviceSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.store.ValidateDeviceSession(ctx, "emp-1", "2024-03-04", "device-a")
	require.NoError(t, err)
	assert.Equal(t, session.OutcomeNoActiveSession, v.Outcome)
	assert.Nil(t, v.Active)

	res, err := f.store.CreateSession(ctx, createReq("device-a", local(8, 0, 0)))
	require.NoError(t, err)

	v, err = f.store.ValidateDeviceSession(ctx, "emp-1", "2024-03-04", "device-a")
	require.NoError(t, err)
	assert.Equal(t, session.OutcomeValidSameDevice, v.Outcome)
	assert.Equal(t, res.SessionID, v.SessionID)

	v, err = f.store.ValidateDeviceSession(ctx, "emp-1", "2024-03-04", "device-b")
	require.NoError(t, err)
	assert.Equal(t, session.OutcomeConflict, v.Outcome)
	require.NotNil(t, v.Active)
	assert.Equal(t, "device-a", v.Active.DeviceID)

	v, err = f.store.ValidateDeviceSession(ctx, "emp-1", "2024-03-05", "device-b")
	require.NoError(t, err)
	assert.Equal(t, session.OutcomeNoActiveSession, v.Outcome)
}

func TestCreateSession_ConcurrentDevicesOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const devices = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   []string
		conflicts int
		others    []error
	)

	start := make(chan struct{})
	for i := 0; i < devices; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			res, err := f.store.CreateSession(ctx, createReq(fmt.Sprintf("device-%02d", i), local(8, 0, 0)))

			mu.Lock()
			defer mu.Unlock()
			var conflictErr *session.ConflictError
			switch {
			case err == nil && res.Created:
				created = append(created, res.SessionID)
			case errors.As(err, &conflictErr):
				conflicts++
			default:
				others = append(others, err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Empty(t, others)
	assert.Len(t, created, 1)
	assert.Equal(t, devices-1, conflicts)

	active, err := f.sessions.FindActive(ctx, "emp-1", "2024-03-04")
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestCreateSession_SameDeviceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.store.CreateSession(ctx, createReq("device-a", local(8, 0, 0)))
	require.NoError(t, err)
	assert.True(t, first.Created)

	f.clock.Set(local(9, 30, 0))
	second, err := f.store.CreateSession(ctx, createReq("device-a", local(9, 30, 0)))
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, "08:00:00", second.Session.ClockInTime, "clock-in must not be re-performed")

	all, err := f.sessions.ListByEmployeeBetween(ctx, "emp-1", "2024-03-04", "2024-03-04")
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, []session.EventType{session.EventSessionCreated}, f.events.types())
}

func TestCreateSession_Lateness(t *testing.T) {
	tests := []struct {
		name        string
		clockIn     time.Time
		isLate      bool
		lateMinutes int
		status      session.Status
	}{
		{"five minutes late", local(8, 5, 0), true, 5, session.StatusLate},
		{"one second early", local(7, 59, 59), false, 0, session.StatusPresent},
		{"exactly on time", local(8, 0, 0), false, 0, session.StatusPresent},
		{"partial minute floors", local(8, 10, 59), true, 10, session.StatusLate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			res, err := f.store.CreateSession(context.Background(), createReq("device-a", tt.clockIn))
			require.NoError(t, err)

			assert.Equal(t, tt.isLate, res.Session.IsLate)
			assert.Equal(t, tt.lateMinutes, res.Session.LateMinutes)
			assert.Equal(t, tt.status, res.Session.Status)
			assert.Equal(t, tt.clockIn.Format(session.ClockLayout), res.Session.ClockInTime)
		})
	}
}

func TestCreateSession_PersistsSnapshots(t *testing.T) {
	f := newFixture(t)
	res, err := f.store.CreateSession(context.Background(), createReq("device-a", local(8, 0, 0)))
	require.NoError(t, err)

	got, err := f.store.GetSession(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.True(t, got.SessionActive)
	assert.Equal(t, session.MethodServerTime, got.TimeIntegrity.Method)
	assert.Equal(t, int64(1200), got.TimeIntegrity.SkewMillis)
	assert.Equal(t, "Galaxy A52", got.Device.Model)
	assert.Zero(t, got.TotalHours)
	assert.Nil(t, got.ClockOutTime)
}

func TestCreateSession_RejectsIncompleteRequest(t *testing.T) {
	f := newFixture(t)
	req := createReq("", local(8, 0, 0))
	req.Date = "04/03/2024"

	_, err := f.store.CreateSession(context.Background(), req)
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 2)
	assert.Equal(t, session.KindValidation, session.Kind(err))
}

func TestTerminateSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.store.CreateSession(ctx, createReq("device-a", local(8, 0, 0)))
	require.NoError(t, err)

	f.clock.Set(local(17, 30, 0))
	hours, err := f.store.TerminateSession(ctx, session.TerminateSessionRequest{
		SessionID:  res.SessionID,
		Latitude:   -1.2925,
		Longitude:  36.8220,
		OfficeID:   "office-nbo",
		OfficeName: "Nairobi HQ",
	})
	require.NoError(t, err)
	assert.Equal(t, 9.5, hours)

	got, err := f.store.GetSession(ctx, res.SessionID)
	require.NoError(t, err)
	assert.False(t, got.SessionActive)
	assert.Equal(t, 9.5, got.TotalHours)
	require.NotNil(t, got.ClockOutTime)
	assert.Equal(t, "17:30:00", *got.ClockOutTime)
	require.NotNil(t, got.TerminatedBy)
	assert.Equal(t, session.TerminatedBySelf, *got.TerminatedBy)
	assert.False(t, got.IsEarlyClockOut)

	_, err = f.store.TerminateSession(ctx, session.TerminateSessionRequest{SessionID: res.SessionID})
	assert.ErrorIs(t, err, session.ErrAlreadyClosed)

	_, err = f.store.TerminateSession(ctx, session.TerminateSessionRequest{SessionID: "missing"})
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
	assert.Equal(t, session.KindNotFound, session.Kind(err))
}

func TestTerminateSession_EarlyReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.store.CreateSession(ctx, createReq("device-a", local(8, 0, 0)))
	require.NoError(t, err)

	f.clock.Set(local(14, 0, 0))
	reason := " clinic appointment "
	_, err = f.store.TerminateSession(ctx, session.TerminateSessionRequest{SessionID: res.SessionID, Reason: &reason})
	require.NoError(t, err)

	got, err := f.store.GetSession(ctx, res.SessionID)
	require.NoError(t, err)
	assert.True(t, got.IsEarlyClockOut)
	require.NotNil(t, got.EarlyClockOutReason)
	assert.Equal(t, "clinic appointment", *got.EarlyClockOutReason)
}

func TestForceTerminate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.store.CreateSession(ctx, createReq("device-a", local(8, 0, 0)))
	require.NoError(t, err)

	err = f.store.ForceTerminate(ctx, session.ForceTerminateRequest{SessionID: res.SessionID, AdminID: "admin-1"})
	assert.Equal(t, session.KindValidation, session.Kind(err))

	err = f.store.ForceTerminate(ctx, session.ForceTerminateRequest{SessionID: res.SessionID, Reason: "lost phone", AdminID: "admin-1"})
	require.NoError(t, err)

	got, err := f.store.GetSession(ctx, res.SessionID)
	require.NoError(t, err)
	assert.False(t, got.SessionActive)
	assert.Nil(t, got.ClockOutTime)
	assert.Zero(t, got.TotalHours)
	require.NotNil(t, got.TerminatedBy)
	assert.Equal(t, session.TerminatedByAdmin, *got.TerminatedBy)
	assert.Equal(t, "lost phone", *got.TerminationReason)
	assert.Equal(t, "admin-1", *got.TerminatedByAdminID)

	// A force-closed session with no clock-out frees the day for a new device.
	v, err := f.store.ValidateDeviceSession(ctx, "emp-1", "2024-03-04", "device-b")
	require.NoError(t, err)
	assert.Equal(t, session.OutcomeNoActiveSession, v.Outcome)

	err = f.store.ForceTerminate(ctx, session.ForceTerminateRequest{SessionID: res.SessionID, Reason: "again", AdminID: "admin-1"})
	assert.ErrorIs(t, err, session.ErrAlreadyClosed)
}

func TestCleanupExpiredSessions_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale := createReq("device-a", local(8, 0, 0))
	_, err := f.store.CreateSession(ctx, stale)
	require.NoError(t, err)

	other := createReq("device-b", local(8, 0, 0))
	other.EmployeeID = "emp-2"
	_, err = f.store.CreateSession(ctx, other)
	require.NoError(t, err)

	f.clock.Set(local(8, 0, 0).Add(20 * time.Hour))
	fresh := createReq("device-c", local(8, 0, 0))
	fresh.EmployeeID = "emp-3"
	_, err = f.store.CreateSession(ctx, fresh)
	require.NoError(t, err)

	f.clock.Set(local(8, 0, 0).Add(25 * time.Hour))
	n, err := f.store.CleanupExpiredSessions(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.store.CleanupExpiredSessions(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	for _, emp := range []string{"emp-1", "emp-2"} {
		all, err := f.sessions.ListByEmployeeBetween(ctx, emp, "2024-03-04", "2024-03-04")
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.False(t, all[0].SessionActive)
		assert.True(t, all[0].SessionExpired)
		require.NotNil(t, all[0].SessionExpiredTime)
		assert.Equal(t, session.TerminatedByExpiry, *all[0].TerminatedBy)
	}

	active, err := f.sessions.FindActive(ctx, "emp-3", "2024-03-04")
	require.NoError(t, err)
	assert.Len(t, active, 1)

	expiredEvents := 0
	for _, typ := range f.events.types() {
		if typ == session.EventSessionExpired {
			expiredEvents++
		}
	}
	assert.Equal(t, 2, expiredEvents)
}

func TestCleanupExpiredSessions_HeartbeatKeepsSessionAlive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.store.CreateSession(ctx, createReq("device-a", local(8, 0, 0)))
	require.NoError(t, err)

	f.clock.Set(local(8, 0, 0).Add(23 * time.Hour))
	require.NoError(t, f.store.Heartbeat(ctx, res.SessionID))

	f.clock.Set(local(8, 0, 0).Add(30 * time.Hour))
	n, err := f.store.CleanupExpiredSessions(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := f.store.GetSession(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.HeartbeatCount)
	assert.True(t, got.SessionActive)
}

func TestReportConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.store.CreateSession(ctx, createReq("device-a", local(8, 0, 0)))
	require.NoError(t, err)

	_, err = f.store.CreateSession(ctx, createReq("device-b", local(8, 20, 0)))
	var conflictErr *session.ConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.ErrorIs(t, err, session.ErrDeviceConflict)
	assert.Equal(t, session.KindConflict, session.Kind(err))
	assert.Equal(t, res.SessionID, conflictErr.Active.ID)

	report := session.DeviceConflict{
		ID:                   "conflict-1",
		OriginalSessionID:    conflictErr.Active.ID,
		AttemptingDeviceID:   "device-b",
		AttemptingDeviceInfo: "Tecno Spark 10",
	}
	created, err := f.store.ReportConflict(ctx, report)
	require.NoError(t, err)
	assert.False(t, created.Resolved)
	assert.Equal(t, "emp-1", created.EmployeeID)
	assert.Equal(t, "device-a", created.OriginalDeviceID)
	assert.Equal(t, "Samsung Galaxy A52", created.OriginalDeviceInfo)

	// A retried report does not duplicate the audit record.
	_, err = f.store.ReportConflict(ctx, report)
	require.NoError(t, err)

	original, err := f.store.GetSession(ctx, res.SessionID)
	require.NoError(t, err)
	assert.True(t, original.HasDeviceConflict)
	assert.True(t, original.SessionActive)
	require.NotNil(t, original.ConflictDeviceID)
	assert.Equal(t, "device-b", *original.ConflictDeviceID)
	require.NotNil(t, original.SecurityAlertID)
	assert.Equal(t, "conflict-1", *original.SecurityAlertID)

	records, err := f.store.ListConflicts(ctx, session.ConflictFilter{SessionID: res.SessionID})
	require.NoError(t, err)
	assert.Len(t, records, 1)

	_, err = f.store.ReportConflict(ctx, session.DeviceConflict{OriginalSessionID: "missing"})
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestMultipleActiveSessionsFirstIsAuthoritative(t *testing.T) {
	repo := &duplicatingRepo{SessionRepository: memory.NewSessionRepository()}
	store := NewSessionStore(repo, memory.NewConflictRepository(), nil, workday.MustParse("08:00"), nairobi, nil)
	ctx := context.Background()

	first, err := repo.SessionRepository.CreateIfNoActive(ctx, session.Session{ID: "s-1", EmployeeID: "emp-1", Date: "2024-03-04", DeviceID: "device-a", SessionActive: true})
	require.NoError(t, err)
	repo.extra = session.Session{ID: "s-2", EmployeeID: "emp-1", Date: "2024-03-04", DeviceID: "device-b", SessionActive: true}

	v, err := store.ValidateDeviceSession(ctx, "emp-1", "2024-03-04", "device-a")
	require.NoError(t, err)
	assert.Equal(t, session.OutcomeValidSameDevice, v.Outcome)
	assert.Equal(t, first.ID, v.SessionID)

	v, err = store.ValidateDeviceSession(ctx, "emp-1", "2024-03-04", "device-b")
	require.NoError(t, err)
	assert.Equal(t, session.OutcomeConflict, v.Outcome)
	assert.Equal(t, first.ID, v.SessionID)
}

func TestStorageTimeoutIsTransient(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	_, err := f.store.CreateSession(ctx, createReq("device-a", local(8, 0, 0)))
	assert.ErrorIs(t, err, session.ErrStorageUnavailable)
	assert.Equal(t, session.KindTransient, session.Kind(err))
}

// duplicatingRepo simulates a store that has already let a second active
// session through.
type duplicatingRepo struct {
	session.SessionRepository
	extra session.Session
}

func (r *duplicatingRepo) FindActive(ctx context.Context, employeeID string, date string) ([]session.Session, error) {
	active, err := r.SessionRepository.FindActive(ctx, employeeID, date)
	if err != nil {
		return nil, err
	}
	if r.extra.ID != "" {
		active = append(active, r.extra)
	}
	return active, nil
}
