package memory

import (
	"context"

	"github.com/cmlabs-hris/presence-backend-go/internal/domain/office"
)

type officeRepository struct {
	offices []office.Office
}

// NewOfficeRepository serves a fixed office directory in the given order.
func NewOfficeRepository(offices ...office.Office) office.OfficeRepository {
	return &officeRepository{offices: offices}
}

// ListActive implements office.OfficeRepository.
func (r *officeRepository) ListActive(ctx context.Context) ([]office.Office, error) {
	var out []office.Office
	for _, o := range r.offices {
		if o.Active {
			out = append(out, o)
		}
	}
	return out, nil
}

// GetByID implements office.OfficeRepository.
func (r *officeRepository) GetByID(ctx context.Context, id string) (office.Office, error) {
	for _, o := range r.offices {
		if o.ID == id {
			return o, nil
		}
	}
	return office.Office{}, office.ErrOfficeNotFound
}
