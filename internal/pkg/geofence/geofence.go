package geofence

import (
	"math"

	"github.com/cmlabs-hris/presence-backend-go/internal/domain/office"
)

const earthRadiusMeters = 6371000

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Latitude  float64
	Longitude float64
}

// Match is the result of MatchOffice. Matched is nil when the point lies in no
// office; Nearest is then the closest office and NearestDistance its distance.
type Match struct {
	Matched         *office.Office
	Nearest         *office.Office
	NearestDistance float64
}

// DistanceMeters returns the haversine great-circle distance between a and b.
func DistanceMeters(a, b Point) float64 {
	dLat := toRadians(b.Latitude - a.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)

	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1)*math.Cos(lat2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

// IsWithinRadius reports whether p lies inside the office radius. The boundary is inclusive.
func IsWithinRadius(p Point, o office.Office) bool {
	return DistanceMeters(p, center(o)) <= o.RadiusMeters
}

// MatchOffice returns the first office, in input order, containing p. When
// none contains it the nearest office is reported instead.
func MatchOffice(p Point, offices []office.Office) Match {
	var m Match
	nearestIdx := -1

	for i := range offices {
		d := DistanceMeters(p, center(offices[i]))
		if d <= offices[i].RadiusMeters {
			matched := offices[i]
			return Match{Matched: &matched, Nearest: &matched, NearestDistance: d}
		}
		if nearestIdx == -1 || d < m.NearestDistance {
			nearestIdx = i
			m.NearestDistance = d
		}
	}

	if nearestIdx >= 0 {
		nearest := offices[nearestIdx]
		m.Nearest = &nearest
	}
	return m
}

func center(o office.Office) Point {
	return Point{Latitude: o.Latitude, Longitude: o.Longitude}
}

func toRadians(deg float64) float64 {
	return deg * (math.Pi / 180.0)
}
