package model

import (
	"errors"
	"math"
)

// GeoCoordinate is a WGS84 point in decimal degrees.
type GeoCoordinate struct {
	Latitude  float64 `bson:"latitude" json:"latitude" binding:"lat"`
	Longitude float64 `bson:"longitude" json:"longitude" binding:"lng"`
}

// Valid reports whether the coordinate is finite and inside the degree ranges.
func (c GeoCoordinate) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) ||
		math.IsInf(c.Latitude, 0) || math.IsInf(c.Longitude, 0) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// AttendanceLocation is the geofence attached to a session. Organizers manage
// it elsewhere; this service only reads it.
type AttendanceLocation struct {
	ID           string        `bson:"location_id" json:"id"`
	Name         string        `bson:"name" json:"name"`
	Description  string        `bson:"description,omitempty" json:"description,omitempty"`
	Center       GeoCoordinate `bson:"center" json:"center"`
	RadiusMeters float64       `bson:"radius_meters" json:"radius_meters"`
	IsActive     bool          `bson:"is_active" json:"is_active"`
}

var ErrInvalidRadius = errors.New("geofence radius must be greater than zero")

// Validate checks the geofence invariants.
func (l *AttendanceLocation) Validate() error {
	if l == nil {
		return errors.New("location cannot be nil")
	}
	if !(l.RadiusMeters > 0) || math.IsInf(l.RadiusMeters, 0) {
		return ErrInvalidRadius
	}
	if !l.Center.Valid() {
		return errors.New("geofence center is not a valid coordinate")
	}
	return nil
}

// SessionEntry is how the session catalog stores a session: its geofence plus
// an optional TOTP secret for rotating attendance codes.
type SessionEntry struct {
	SessionID  string             `bson:"session_id" json:"session_id"`
	Title      string             `bson:"title,omitempty" json:"title,omitempty"`
	Location   AttendanceLocation `bson:"location" json:"location"`
	CodeSecret string             `bson:"code_secret,omitempty" json:"-"`
}
