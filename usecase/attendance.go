package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"attendguard/logger"
	"attendguard/model"
	"attendguard/repository"
	"attendguard/services"
	"attendguard/utils"
)

var (
	ErrLocationInactive = errors.New("attendance location is not active")
	ErrDeviceRestricted = errors.New("device restricted")
)

// DeviceRestrictedError carries the human-readable reason of a ledger denial.
// The conflicting user is kept for audit and never rendered.
type DeviceRestrictedError struct {
	Reason         string `json:"reason"`
	Kind           string `json:"kind"`
	ConflictUserID string `json:"-"`
}

func (e *DeviceRestrictedError) Error() string {
	return "device restricted: " + e.Reason
}

func (e *DeviceRestrictedError) Is(target error) bool {
	return target == ErrDeviceRestricted
}

// AttendanceHistoryStore is the append-only attendance log. Append returns
// repository.ErrDuplicateRecord when a record for the same user, session,
// location and day already exists.
type AttendanceHistoryStore interface {
	Append(ctx context.Context, record *model.AttendanceRecord) error
	QueryByUser(ctx context.Context, userID string) ([]*model.AttendanceRecord, error)
}

// SessionCatalog resolves sessions to their geofence. Unknown sessions yield
// repository.ErrSessionNotFound.
type SessionCatalog interface {
	GetSession(ctx context.Context, sessionID string) (*model.SessionEntry, error)
	GetLocation(ctx context.Context, sessionID string) (model.AttendanceLocation, error)
}

type AttendanceRecorder struct {
	Geofence *services.GeofenceValidator
	Ledger   *RestrictionLedger
	Records  AttendanceHistoryStore
	Catalog  SessionCatalog
	Codes    *services.AttendanceCodes
	Clock    utils.Clock
	// Zone decides where a calendar day starts for idempotence.
	Zone *time.Location
}

func (r *AttendanceRecorder) now() time.Time {
	if r.Clock == nil {
		return time.Now()
	}
	return r.Clock.Now()
}

func (r *AttendanceRecorder) day(t time.Time) string {
	zone := r.Zone
	if zone == nil {
		zone = time.UTC
	}
	return t.In(zone).Format("2006-01-02")
}

// MarkPresent records userID as present in sessionID at location. A user who
// already has a record for the same session, location and day gets that
// record back unchanged.
func (r *AttendanceRecorder) MarkPresent(ctx context.Context, sessionID, userID string, location model.AttendanceLocation) (*model.AttendanceRecord, error) {
	today := r.day(r.now())
	existing, err := r.findExisting(ctx, userID, sessionID, location.ID, today)
	if err != nil {
		utils.TrackAttendanceMark("error")
		return nil, err
	}
	if existing != nil {
		utils.TrackAttendanceMark("existing")
		return existing, nil
	}

	if !location.IsActive {
		utils.TrackAttendanceMark("location_error")
		return nil, ErrLocationInactive
	}

	check, err := r.Geofence.Check(ctx, location)
	if err != nil {
		utils.TrackAttendanceMark("location_error")
		return nil, err
	}
	if !check.IsValid {
		utils.TrackAttendanceMark("location_error")
		return nil, &services.LocationError{
			Reason:   services.ReasonOutOfRange,
			Distance: check.Distance,
			Radius:   location.RadiusMeters,
		}
	}

	now := r.now()
	record := &model.AttendanceRecord{
		ID:                 uuid.New().String(),
		UserID:             userID,
		SessionID:          sessionID,
		LocationID:         location.ID,
		Timestamp:          now,
		Day:                r.day(now),
		Coordinates:        check.Position,
		DistanceFromCenter: check.Distance,
		Status:             model.StatusPresent,
	}

	position := check.Position
	var appendErr error
	appended := false
	eligibility, err := r.Ledger.Reserve(ctx, sessionID, userID, &position, func(ctx context.Context) error {
		if appendErr = r.Records.Append(ctx, record); appendErr != nil {
			return appendErr
		}
		appended = true
		return nil
	})
	switch {
	case appendErr != nil:
		if errors.Is(appendErr, repository.ErrDuplicateRecord) {
			// lost a race with a concurrent mark by the same user
			existing, ferr := r.findExisting(ctx, userID, sessionID, location.ID, record.Day)
			if ferr == nil && existing != nil {
				utils.TrackAttendanceMark("existing")
				return existing, nil
			}
		}
		utils.TrackAttendanceMark("error")
		return nil, fmt.Errorf("failed to append attendance record: %w", appendErr)
	case err != nil && appended:
		// the record stands; a retry finds it through the idempotence check
		utils.TrackAttendanceMark("error")
		return nil, fmt.Errorf("failed to bind device: %w", err)
	case err != nil:
		utils.TrackAttendanceMark("error")
		return nil, err
	case !eligibility.Allowed:
		utils.TrackAttendanceMark("restricted")
		return nil, &DeviceRestrictedError{
			Reason:         eligibility.Reason,
			Kind:           eligibility.Kind,
			ConflictUserID: eligibility.ConflictUserID,
		}
	}

	utils.TrackAttendanceMark("created")
	logger.Info(ctx).
		Str("record_id", record.ID).
		Str("session_id", sessionID).
		Str("user_id", userID).
		Float64("distance", record.DistanceFromCenter).
		Msg("attendance marked")
	return record, nil
}

// MarkPresentWithCode resolves the session's geofence and, when the session
// requires one, checks the rotating attendance code before marking.
func (r *AttendanceRecorder) MarkPresentWithCode(ctx context.Context, sessionID, userID, code string) (*model.AttendanceRecord, error) {
	session, err := r.Catalog.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.CodeSecret != "" {
		codes := r.Codes
		if codes == nil {
			codes = services.NewAttendanceCodes(r.Clock)
		}
		if err := codes.Verify(session.CodeSecret, code); err != nil {
			utils.TrackAttendanceMark("invalid_code")
			return nil, err
		}
	}
	return r.MarkPresent(ctx, sessionID, userID, session.Location)
}

// CheckEligibility exposes the ledger decision for the current device.
func (r *AttendanceRecorder) CheckEligibility(ctx context.Context, sessionID, userID string) (Eligibility, error) {
	return r.Ledger.CheckEligibility(ctx, sessionID, userID)
}

// GetDistance measures position against location without acquiring anything.
func (r *AttendanceRecorder) GetDistance(position model.GeoCoordinate, location model.AttendanceLocation) utils.GeofenceResult {
	return utils.WithinRadius(position, location)
}

// History returns the user's records, newest first.
func (r *AttendanceRecorder) History(ctx context.Context, userID string) ([]*model.AttendanceRecord, error) {
	records, err := r.Records.QueryByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance history: %w", err)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	return records, nil
}

// Stats aggregates the user's history.
func (r *AttendanceRecorder) Stats(ctx context.Context, userID string) (*model.AttendanceStats, error) {
	records, err := r.History(ctx, userID)
	if err != nil {
		return nil, err
	}
	return computeStats(userID, records), nil
}

func computeStats(userID string, records []*model.AttendanceRecord) *model.AttendanceStats {
	stats := &model.AttendanceStats{UserID: userID, Total: len(records)}
	sessions := make(map[string]struct{})
	for _, rec := range records {
		switch rec.Status {
		case model.StatusPresent:
			stats.Present++
		case model.StatusLate:
			stats.Late++
		case model.StatusAbsent:
			stats.Absent++
		}
		if rec.Status != model.StatusAbsent {
			sessions[rec.SessionID] = struct{}{}
		}
		if stats.LastMarkedAt == nil || rec.Timestamp.After(*stats.LastMarkedAt) {
			ts := rec.Timestamp
			stats.LastMarkedAt = &ts
		}
	}
	stats.SessionsMarked = len(sessions)
	if stats.Total > 0 {
		stats.AttendanceRate = float64(stats.Present+stats.Late) / float64(stats.Total)
	}
	return stats
}

func (r *AttendanceRecorder) findExisting(ctx context.Context, userID, sessionID, locationID, day string) (*model.AttendanceRecord, error) {
	records, err := r.Records.QueryByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance history: %w", err)
	}
	for _, rec := range records {
		if rec.SessionID == sessionID && rec.LocationID == locationID && rec.Day == day {
			return rec, nil
		}
	}
	return nil, nil
}
