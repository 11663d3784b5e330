package model

import "time"

type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "present"
	StatusLate    AttendanceStatus = "late"
	StatusAbsent  AttendanceStatus = "absent"
)

// AttendanceRecord is an entry of the append-only attendance log.
type AttendanceRecord struct {
	ID                 string           `bson:"record_id" json:"id"`
	UserID             string           `bson:"user_id" json:"user_id"`
	SessionID          string           `bson:"session_id" json:"session_id"`
	LocationID         string           `bson:"location_id" json:"location_id"`
	Timestamp          time.Time        `bson:"timestamp" json:"timestamp"`
	Day                string           `bson:"day" json:"day"` // calendar day, YYYY-MM-DD
	Coordinates        GeoCoordinate    `bson:"coordinates" json:"coordinates"`
	DistanceFromCenter float64          `bson:"distance_from_center" json:"distance_from_center"`
	Status             AttendanceStatus `bson:"status" json:"status"`
}

// AttendanceStats aggregates a user's attendance history.
type AttendanceStats struct {
	UserID         string     `json:"user_id"`
	Total          int        `json:"total"`
	Present        int        `json:"present"`
	Late           int        `json:"late"`
	Absent         int        `json:"absent"`
	AttendanceRate float64    `json:"attendance_rate"` // (present+late)/total, 0 when empty
	SessionsMarked int        `json:"sessions_marked"`
	LastMarkedAt   *time.Time `json:"last_marked_at,omitempty"`
}
