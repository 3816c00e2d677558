package postgresql

import (
	"context"
	"errors"

	"github.com/cmlabs-hris/presence-backend-go/internal/domain/office"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

type officeRepository struct {
	db *database.DB
}

func NewOfficeRepository(db *database.DB) office.OfficeRepository {
	return &officeRepository{db: db}
}

const officeColumns = `id, name, latitude, longitude, radius_meters, timezone, active, created_at, updated_at`

func scanOffice(row pgx.Row) (office.Office, error) {
	var o office.Office
	err := row.Scan(&o.ID, &o.Name, &o.Latitude, &o.Longitude, &o.RadiusMeters, &o.Timezone, &o.Active, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

// ListActive implements office.OfficeRepository.
func (r *officeRepository) ListActive(ctx context.Context) ([]office.Office, error) {
	q := GetQuerier(ctx, r.db)

	query := `SELECT ` + officeColumns + ` FROM offices WHERE active ORDER BY name ASC, id ASC`

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, mapError("list offices", err)
	}
	offices, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (office.Office, error) {
		return scanOffice(row)
	})
	if err != nil {
		return nil, mapError("scan offices", err)
	}
	return offices, nil
}

// GetByID implements office.OfficeRepository.
func (r *officeRepository) GetByID(ctx context.Context, id string) (office.Office, error) {
	q := GetQuerier(ctx, r.db)

	query := `SELECT ` + officeColumns + ` FROM offices WHERE id = $1`

	o, err := scanOffice(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidID(err) {
			return office.Office{}, office.ErrOfficeNotFound
		}
		return office.Office{}, mapError("get office", err)
	}
	return o, nil
}
