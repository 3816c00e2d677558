package office

import "time"

// Office is a geofenced work location.
type Office struct {
	ID           string
	Name         string
	Latitude     float64
	Longitude    float64
	RadiusMeters float64
	Timezone     string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Location resolves the office timezone, falling back to the given location
// when the office has none or it cannot be loaded.
func (o Office) Location(fallback *time.Location) *time.Location {
	if o.Timezone == "" {
		return fallback
	}
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		return fallback
	}
	return loc
}

type OfficeResponse struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radius_meters"`
	Timezone     string  `json:"timezone"`
}

func ToResponse(o Office) OfficeResponse {
	return OfficeResponse{
		ID:           o.ID,
		Name:         o.Name,
		Latitude:     o.Latitude,
		Longitude:    o.Longitude,
		RadiusMeters: o.RadiusMeters,
		Timezone:     o.Timezone,
	}
}
