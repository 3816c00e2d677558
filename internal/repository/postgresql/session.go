package postgresql

import (
	"context"
	"errors"
	"time"

	"github.com/cmlabs-hris/presence-backend-go/internal/domain/session"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

const sessionColumns = `
	id, employee_id, pf_number, employee_name, to_char(date, 'YYYY-MM-DD'), device_id,
	clock_in_time, clock_in_timestamp, clock_out_time, clock_out_timestamp,
	session_start_time, session_end_time, last_heartbeat, heartbeat_count,
	clock_in_latitude, clock_in_longitude, clock_out_latitude, clock_out_longitude,
	office_id, office_name, clock_out_office_id, clock_out_office_name,
	session_active, status, is_late, late_minutes, is_early_clock_out, early_clock_out_reason,
	session_expired, session_expired_time, terminated_by, termination_reason, terminated_by_admin_id,
	has_device_conflict, conflict_device_id, conflict_time, security_alert_id,
	device_model, device_manufacturer, device_os_version,
	device_is_rooted, device_is_emulator, device_developer_mode, device_usb_debugging,
	risk_level, risk_score, risk_reasons,
	time_validation_method, clock_skew_millis, is_time_valid,
	total_hours, created_at, updated_at`

type sessionRepository struct {
	db *database.DB
}

func NewSessionRepository(db *database.DB) session.SessionRepository {
	return &sessionRepository{db: db}
}

func scanSession(row pgx.Row) (session.Session, error) {
	var (
		s            session.Session
		status       string
		terminatedBy *string
		method       string
	)
	err := row.Scan(
		&s.ID, &s.EmployeeID, &s.PFNumber, &s.EmployeeName, &s.Date, &s.DeviceID,
		&s.ClockInTime, &s.ClockInTimestamp, &s.ClockOutTime, &s.ClockOutTimestamp,
		&s.SessionStartTime, &s.SessionEndTime, &s.LastHeartbeat, &s.HeartbeatCount,
		&s.ClockInLatitude, &s.ClockInLongitude, &s.ClockOutLatitude, &s.ClockOutLongitude,
		&s.OfficeID, &s.OfficeName, &s.ClockOutOfficeID, &s.ClockOutOfficeName,
		&s.SessionActive, &status, &s.IsLate, &s.LateMinutes, &s.IsEarlyClockOut, &s.EarlyClockOutReason,
		&s.SessionExpired, &s.SessionExpiredTime, &terminatedBy, &s.TerminationReason, &s.TerminatedByAdminID,
		&s.HasDeviceConflict, &s.ConflictDeviceID, &s.ConflictTime, &s.SecurityAlertID,
		&s.Device.Model, &s.Device.Manufacturer, &s.Device.OSVersion,
		&s.Device.IsRooted, &s.Device.IsEmulator, &s.Device.DeveloperMode, &s.Device.USBDebugging,
		&s.Device.RiskLevel, &s.Device.RiskScore, &s.Device.RiskReasons,
		&method, &s.TimeIntegrity.SkewMillis, &s.TimeIntegrity.Verified,
		&s.TotalHours, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return session.Session{}, err
	}

	s.Status = session.Status(status)
	s.TimeIntegrity.Method = session.TimeValidationMethod(method)
	if terminatedBy != nil {
		by := session.TerminatedBy(*terminatedBy)
		s.TerminatedBy = &by
	}
	return s, nil
}

func collectSessions(rows pgx.Rows) ([]session.Session, error) {
	defer rows.Close()

	var sessions []session.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetByID implements session.SessionRepository.
func (r *sessionRepository) GetByID(ctx context.Context, id string) (session.Session, error) {
	q := GetQuerier(ctx, r.db)

	query := `SELECT ` + sessionColumns + ` FROM attendance_sessions WHERE id = $1`

	s, err := scanSession(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidID(err) {
			return session.Session{}, session.ErrSessionNotFound
		}
		return session.Session{}, mapError("get session", err)
	}
	return s, nil
}

// FindActive implements session.SessionRepository.
func (r *sessionRepository) FindActive(ctx context.Context, employeeID string, date string) ([]session.Session, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT ` + sessionColumns + `
		FROM attendance_sessions
		WHERE employee_id = $1
		  AND date = $2::date
		  AND session_active
		ORDER BY session_start_time ASC, created_at ASC
	`

	rows, err := q.Query(ctx, query, employeeID, date)
	if err != nil {
		return nil, mapError("find active sessions", err)
	}
	sessions, err := collectSessions(rows)
	if err != nil {
		return nil, mapError("scan active sessions", err)
	}
	return sessions, nil
}

// CreateIfNoActive implements session.SessionRepository. The existence check
// and insert share a transaction; the partial unique index catches the race
// the check cannot see.
func (r *sessionRepository) CreateIfNoActive(ctx context.Context, s session.Session) (session.Session, error) {
	err := WithTransaction(ctx, r.db, func(ctx context.Context) error {
		q := GetQuerier(ctx, r.db)

		var exists bool
		err := q.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM attendance_sessions
				WHERE employee_id = $1 AND date = $2::date AND session_active
			)`, s.EmployeeID, s.Date).Scan(&exists)
		if err != nil {
			return mapError("check active session", err)
		}
		if exists {
			return session.ErrActiveSessionExists
		}

		query := `
			INSERT INTO attendance_sessions (
				employee_id, pf_number, employee_name, date, device_id,
				clock_in_time, clock_in_timestamp, session_start_time, last_heartbeat, heartbeat_count,
				clock_in_latitude, clock_in_longitude, office_id, office_name,
				session_active, status, is_late, late_minutes,
				device_model, device_manufacturer, device_os_version,
				device_is_rooted, device_is_emulator, device_developer_mode, device_usb_debugging,
				risk_level, risk_score, risk_reasons,
				time_validation_method, clock_skew_millis, is_time_valid, total_hours
			) VALUES (
				$1, $2, $3, $4::date, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
				$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32
			) RETURNING id, created_at, updated_at
		`

		reasons := s.Device.RiskReasons
		if reasons == nil {
			reasons = []string{}
		}

		err = q.QueryRow(ctx, query,
			s.EmployeeID, s.PFNumber, s.EmployeeName, s.Date, s.DeviceID,
			s.ClockInTime, s.ClockInTimestamp, s.SessionStartTime, s.LastHeartbeat, s.HeartbeatCount,
			s.ClockInLatitude, s.ClockInLongitude, s.OfficeID, s.OfficeName,
			s.SessionActive, string(s.Status), s.IsLate, s.LateMinutes,
			s.Device.Model, s.Device.Manufacturer, s.Device.OSVersion,
			s.Device.IsRooted, s.Device.IsEmulator, s.Device.DeveloperMode, s.Device.USBDebugging,
			s.Device.RiskLevel, s.Device.RiskScore, reasons,
			string(s.TimeIntegrity.Method), s.TimeIntegrity.SkewMillis, s.TimeIntegrity.Verified, s.TotalHours,
		).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
		if err != nil {
			return mapError("insert session", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, session.ErrActiveSessionExists) {
			return session.Session{}, session.ErrActiveSessionExists
		}
		return session.Session{}, mapError("create session", err)
	}
	return s, nil
}

// Heartbeat implements session.SessionRepository.
func (r *sessionRepository) Heartbeat(ctx context.Context, id string, at time.Time) error {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE attendance_sessions
		SET last_heartbeat = $2, heartbeat_count = heartbeat_count + 1, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := q.Exec(ctx, query, id, at)
	if err != nil {
		if isInvalidID(err) {
			return session.ErrSessionNotFound
		}
		return mapError("heartbeat", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrSessionNotFound
	}
	return nil
}

// Close implements session.SessionRepository.
func (r *sessionRepository) Close(ctx context.Context, id string, upd session.ClockOutUpdate) error {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE attendance_sessions
		SET clock_out_time = $2,
			clock_out_timestamp = $3,
			session_end_time = $3,
			clock_out_latitude = $4,
			clock_out_longitude = $5,
			clock_out_office_id = $6,
			clock_out_office_name = $7,
			total_hours = $8,
			is_early_clock_out = $9,
			early_clock_out_reason = $10,
			terminated_by = $11,
			session_active = FALSE,
			updated_at = NOW()
		WHERE id = $1 AND session_active
	`

	tag, err := q.Exec(ctx, query, id,
		upd.ClockOutTime, upd.ClockOutTimestamp,
		upd.ClockOutLatitude, upd.ClockOutLongitude,
		upd.ClockOutOfficeID, upd.ClockOutOfficeName,
		upd.TotalHours, upd.IsEarlyClockOut, upd.EarlyClockOutReason,
		string(session.TerminatedBySelf),
	)
	if err != nil {
		return mapError("close session", err)
	}
	return r.checkTransition(ctx, id, tag.RowsAffected())
}

// ForceClose implements session.SessionRepository.
func (r *sessionRepository) ForceClose(ctx context.Context, id string, upd session.ForceCloseUpdate) error {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE attendance_sessions
		SET session_active = FALSE,
			session_end_time = $2,
			termination_reason = $3,
			terminated_by_admin_id = $4,
			terminated_by = $5,
			updated_at = NOW()
		WHERE id = $1 AND session_active
	`

	tag, err := q.Exec(ctx, query, id, upd.At, upd.Reason, upd.AdminID, string(session.TerminatedByAdmin))
	if err != nil {
		return mapError("force close session", err)
	}
	return r.checkTransition(ctx, id, tag.RowsAffected())
}

// checkTransition tells a missing session from one that was already closed
// when a conditional update touched no row.
func (r *sessionRepository) checkTransition(ctx context.Context, id string, affected int64) error {
	if affected > 0 {
		return nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return session.ErrAlreadyClosed
}

// ExpireStale implements session.SessionRepository.
func (r *sessionRepository) ExpireStale(ctx context.Context, heartbeatBefore time.Time, at time.Time) ([]session.Session, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE attendance_sessions
		SET session_active = FALSE,
			session_expired = TRUE,
			session_expired_time = $2,
			session_end_time = $2,
			terminated_by = $3,
			updated_at = NOW()
		WHERE session_active
		  AND last_heartbeat < $1
		RETURNING ` + sessionColumns

	rows, err := q.Query(ctx, query, heartbeatBefore, at, string(session.TerminatedByExpiry))
	if err != nil {
		return nil, mapError("expire stale sessions", err)
	}
	sessions, err := collectSessions(rows)
	if err != nil {
		return nil, mapError("scan expired sessions", err)
	}
	return sessions, nil
}

// AnnotateConflict implements session.SessionRepository.
func (r *sessionRepository) AnnotateConflict(ctx context.Context, id string, a session.ConflictAnnotation) error {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE attendance_sessions
		SET has_device_conflict = TRUE,
			conflict_device_id = $2,
			conflict_time = $3,
			security_alert_id = $4,
			updated_at = NOW()
		WHERE id = $1
	`

	tag, err := q.Exec(ctx, query, id, a.ConflictDeviceID, a.ConflictTime, a.SecurityAlertID)
	if err != nil {
		if isInvalidID(err) {
			return session.ErrSessionNotFound
		}
		return mapError("annotate conflict", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrSessionNotFound
	}
	return nil
}

// ListByEmployeeBetween implements session.SessionRepository.
func (r *sessionRepository) ListByEmployeeBetween(ctx context.Context, employeeID string, fromDate string, toDate string) ([]session.Session, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT ` + sessionColumns + `
		FROM attendance_sessions
		WHERE employee_id = $1
		  AND date BETWEEN $2::date AND $3::date
		ORDER BY date ASC, clock_in_timestamp ASC
	`

	rows, err := q.Query(ctx, query, employeeID, fromDate, toDate)
	if err != nil {
		return nil, mapError("list sessions by date", err)
	}
	sessions, err := collectSessions(rows)
	if err != nil {
		return nil, mapError("scan sessions", err)
	}
	return sessions, nil
}

// ListByEmployeeSince implements session.SessionRepository.
func (r *sessionRepository) ListByEmployeeSince(ctx context.Context, employeeID string, since time.Time) ([]session.Session, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT ` + sessionColumns + `
		FROM attendance_sessions
		WHERE employee_id = $1
		  AND clock_in_timestamp >= $2
		ORDER BY clock_in_timestamp ASC
	`

	rows, err := q.Query(ctx, query, employeeID, since)
	if err != nil {
		return nil, mapError("list recent sessions", err)
	}
	sessions, err := collectSessions(rows)
	if err != nil {
		return nil, mapError("scan sessions", err)
	}
	return sessions, nil
}

// ListEmployeeIDsBetween implements session.SessionRepository.
func (r *sessionRepository) ListEmployeeIDsBetween(ctx context.Context, fromDate string, toDate string) ([]string, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT DISTINCT employee_id
		FROM attendance_sessions
		WHERE date BETWEEN $1::date AND $2::date
		ORDER BY employee_id
	`

	rows, err := q.Query(ctx, query, fromDate, toDate)
	if err != nil {
		return nil, mapError("list employees", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, mapError("scan employees", err)
	}
	return ids, nil
}
