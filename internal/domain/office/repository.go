package office

import "context"

// OfficeRepository is the read-only office directory.
type OfficeRepository interface {
	// ListActive returns every active office in a stable order, which is also
	// the tie-break order of geofence matching.
	ListActive(ctx context.Context) ([]Office, error)

	// GetByID returns ErrOfficeNotFound when the office does not exist.
	GetByID(ctx context.Context, id string) (Office, error)
}
