package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/cmlabs-hris/presence-backend-go/internal/domain/office"
	"github.com/google/uuid"
)

// loadOffices reads the offices served by the in-memory driver from a JSON
// array of office objects. An empty path yields no offices.
func loadOffices(path string) ([]office.Office, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read offices file: %w", err)
	}

	var rows []office.OfficeResponse
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse offices file %s: %w", path, err)
	}

	now := time.Now()
	offices := make([]office.Office, 0, len(rows))
	for i, row := range rows {
		if row.Name == "" || row.RadiusMeters <= 0 {
			return nil, fmt.Errorf("offices file %s: entry %d needs a name and a positive radius_meters", path, i)
		}
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		offices = append(offices, office.Office{
			ID:           row.ID,
			Name:         row.Name,
			Latitude:     row.Latitude,
			Longitude:    row.Longitude,
			RadiusMeters: row.RadiusMeters,
			Timezone:     row.Timezone,
			Active:       true,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return offices, nil
}
