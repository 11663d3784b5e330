package utils

import (
	"fmt"
	"math"

	"attendguard/model"
)

// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
const EarthRadiusMeters = 6371000.0

// GeofenceResult is the outcome of comparing a position with a geofence.
type GeofenceResult struct {
	IsValid  bool    `json:"is_valid"`
	Distance float64 `json:"distance"`
}

// DistanceMeters returns the great-circle distance between a and b. Invalid
// coordinates produce NaN, which callers must reject.
func DistanceMeters(a, b model.GeoCoordinate) float64 {
	if !a.Valid() || !b.Valid() {
		return math.NaN()
	}

	phi1 := a.Latitude * math.Pi / 180
	phi2 := b.Latitude * math.Pi / 180
	dPhi := (b.Latitude - a.Latitude) * math.Pi / 180
	dLambda := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

// WithinRadius compares position with the location's geofence. The boundary is
// inclusive.
func WithinRadius(position model.GeoCoordinate, location model.AttendanceLocation) GeofenceResult {
	distance := DistanceMeters(position, location.Center)
	return GeofenceResult{
		// NaN compares false, so invalid input is never inside the fence
		IsValid:  distance <= location.RadiusMeters,
		Distance: distance,
	}
}

// FormatDistance renders a distance for user-facing messages.
func FormatDistance(meters float64) string {
	switch {
	case math.IsNaN(meters):
		return "unknown distance"
	case meters < 1000:
		return fmt.Sprintf("%dm", int(math.Round(meters)))
	default:
		return fmt.Sprintf("%.1fkm", meters/1000)
	}
}
