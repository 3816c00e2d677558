package memory

import (
	"context"
	"sync"

	"github.com/cmlabs-hris/presence-backend-go/internal/domain/session"
	"github.com/google/uuid"
)

type conflictRepository struct {
	mu        sync.RWMutex
	conflicts []session.DeviceConflict
}

func NewConflictRepository() session.ConflictRepository {
	return &conflictRepository{}
}

// Create implements session.ConflictRepository. Creating an existing id is a no-op.
func (r *conflictRepository) Create(ctx context.Context, c session.DeviceConflict) (session.DeviceConflict, error) {
	if err := checkContext(ctx); err != nil {
		return session.DeviceConflict{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	for _, existing := range r.conflicts {
		if existing.ID == c.ID {
			return existing, nil
		}
	}
	r.conflicts = append(r.conflicts, c)
	return c, nil
}

// List implements session.ConflictRepository. Newest first.
func (r *conflictRepository) List(ctx context.Context, filter session.ConflictFilter) ([]session.DeviceConflict, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []session.DeviceConflict
	for i := len(r.conflicts) - 1; i >= 0; i-- {
		c := r.conflicts[i]
		if filter.EmployeeID != "" && c.EmployeeID != filter.EmployeeID {
			continue
		}
		if filter.SessionID != "" && c.OriginalSessionID != filter.SessionID {
			continue
		}
		if filter.Date != "" && c.Date != filter.Date {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
