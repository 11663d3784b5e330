package model

import "time"

// AttendanceRestriction records that a device was used by a user within a
// session.
type AttendanceRestriction struct {
	DeviceFingerprintID string         `json:"device_fingerprint_id"`
	UserID              string         `json:"user_id"`
	SessionID           string         `json:"session_id"`
	BoundAt             time.Time      `json:"bound_at"`
	ReportedLocation    *GeoCoordinate `json:"reported_location,omitempty"`
	DeviceLabel         string         `json:"device_label,omitempty"`
}

// RestrictionSummary is the audit view over one session scope.
type RestrictionSummary struct {
	SessionID         string                  `json:"session_id"`
	TotalRestrictions int                     `json:"total_restrictions"`
	UniqueDevices     int                     `json:"unique_devices"`
	UniqueUsers       int                     `json:"unique_users"`
	Restrictions      []AttendanceRestriction `json:"restrictions"`
}

// PurgeReport describes one cleanup sweep.
type PurgeReport struct {
	ScopesScanned  int       `json:"scopes_scanned"`
	ScopesRemoved  int       `json:"scopes_removed"`
	EntriesRemoved int       `json:"entries_removed"`
	Cutoff         time.Time `json:"cutoff"`
}
