package postgresql

import (
	"context"
	"fmt"
	"strings"

	"github.com/cmlabs-hris/presence-backend-go/internal/domain/session"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

type conflictRepository struct {
	db *database.DB
}

func NewConflictRepository(db *database.DB) session.ConflictRepository {
	return &conflictRepository{db: db}
}

// Create implements session.ConflictRepository.
func (r *conflictRepository) Create(ctx context.Context, c session.DeviceConflict) (session.DeviceConflict, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO device_conflicts (
			id, employee_id, date, original_session_id, original_device_id, original_device_info,
			attempting_device_id, attempting_device_info, detected_at, resolved
		) VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := q.Exec(ctx, query,
		c.ID, c.EmployeeID, c.Date, c.OriginalSessionID, c.OriginalDeviceID, c.OriginalDeviceInfo,
		c.AttemptingDeviceID, c.AttemptingDeviceInfo, c.DetectedAt, c.Resolved,
	)
	if err != nil {
		return session.DeviceConflict{}, mapError("create device conflict", err)
	}

	conflicts, err := r.list(ctx, `WHERE id = $1`, []interface{}{c.ID})
	if err != nil {
		return session.DeviceConflict{}, err
	}
	if len(conflicts) == 0 {
		return session.DeviceConflict{}, fmt.Errorf("device conflict %s not found after insert", c.ID)
	}
	return conflicts[0], nil
}

// List implements session.ConflictRepository.
func (r *conflictRepository) List(ctx context.Context, filter session.ConflictFilter) ([]session.DeviceConflict, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.EmployeeID != "" {
		args = append(args, filter.EmployeeID)
		where = append(where, fmt.Sprintf("employee_id = $%d", len(args)))
	}
	if filter.SessionID != "" {
		args = append(args, filter.SessionID)
		where = append(where, fmt.Sprintf("original_session_id::text = $%d", len(args)))
	}
	if filter.Date != "" {
		args = append(args, filter.Date)
		where = append(where, fmt.Sprintf("date = $%d::date", len(args)))
	}

	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}
	return r.list(ctx, clause, args)
}

func (r *conflictRepository) list(ctx context.Context, clause string, args []interface{}) ([]session.DeviceConflict, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id, employee_id, to_char(date, 'YYYY-MM-DD'), original_session_id, original_device_id,
			   original_device_info, attempting_device_id, attempting_device_info, detected_at, resolved
		FROM device_conflicts
		` + clause + `
		ORDER BY detected_at DESC
	`

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError("list device conflicts", err)
	}

	conflicts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (session.DeviceConflict, error) {
		var c session.DeviceConflict
		err := row.Scan(
			&c.ID, &c.EmployeeID, &c.Date, &c.OriginalSessionID, &c.OriginalDeviceID,
			&c.OriginalDeviceInfo, &c.AttemptingDeviceID, &c.AttemptingDeviceInfo, &c.DetectedAt, &c.Resolved,
		)
		return c, err
	})
	if err != nil {
		return nil, mapError("scan device conflicts", err)
	}
	return conflicts, nil
}
