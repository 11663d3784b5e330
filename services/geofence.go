package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"attendguard/model"
	"attendguard/utils"
)

const DefaultGeolocationTimeout = 5 * time.Second

type LocationReason string

const (
	ReasonPermissionDenied LocationReason = "permission_denied"
	ReasonTimeout          LocationReason = "timeout"
	ReasonUnavailable      LocationReason = "unavailable"
	ReasonInvalidPosition  LocationReason = "invalid_position"
	ReasonOutOfRange       LocationReason = "out_of_range"
)

var (
	// ErrLocationUnavailable matches every failure to acquire a position.
	ErrLocationUnavailable      = errors.New("location unavailable")
	ErrLocationPermissionDenied = errors.New("location permission denied")
	ErrLocationTimeout          = errors.New("location request timed out")
	ErrOutOfGeofence            = errors.New("position is outside the geofence")
	ErrInvalidGeofence          = errors.New("invalid geofence")
)

// LocationError is returned when a position cannot be used for attendance.
type LocationError struct {
	Reason   LocationReason
	Distance float64 // set for ReasonOutOfRange
	Radius   float64
	Err      error
}

func (e *LocationError) Error() string {
	if e.Reason == ReasonOutOfRange {
		return fmt.Sprintf("location error: %s (%.1fm from center, radius %.1fm)", e.Reason, e.Distance, e.Radius)
	}
	if e.Err != nil {
		return fmt.Sprintf("location error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("location error: %s", e.Reason)
}

func (e *LocationError) Unwrap() error {
	return e.Err
}

func (e *LocationError) Is(target error) bool {
	switch target {
	case ErrLocationUnavailable:
		return e.Reason == ReasonPermissionDenied || e.Reason == ReasonTimeout || e.Reason == ReasonUnavailable
	case ErrLocationPermissionDenied:
		return e.Reason == ReasonPermissionDenied
	case ErrLocationTimeout:
		return e.Reason == ReasonTimeout
	case ErrOutOfGeofence:
		return e.Reason == ReasonOutOfRange
	}
	return false
}

// Message is the text shown to the person marking attendance.
func (e *LocationError) Message() string {
	switch e.Reason {
	case ReasonPermissionDenied:
		return "Location access denied. Please enable location services to mark attendance."
	case ReasonTimeout:
		return "Location request timed out. Please try again."
	case ReasonUnavailable:
		return "Location information is unavailable. Please check your GPS settings."
	case ReasonInvalidPosition:
		return "The reported position is not a valid coordinate."
	case ReasonOutOfRange:
		return fmt.Sprintf("You are %s away from the attendance location. Please move within %s to mark attendance.",
			utils.FormatDistance(e.Distance), utils.FormatDistance(e.Radius))
	}
	return "Unable to determine your location."
}

// Position is one reading from the device's location hardware.
type Position struct {
	Coordinates    model.GeoCoordinate
	AccuracyMeters float64
	Timestamp      time.Time
}

// PositionProvider acquires the device's current position. Implementations
// should return a *LocationError for denied or unavailable readings and honor
// ctx cancellation.
type PositionProvider interface {
	CurrentPosition(ctx context.Context) (Position, error)
}

// PositionFunc adapts a function to PositionProvider.
type PositionFunc func(ctx context.Context) (Position, error)

func (f PositionFunc) CurrentPosition(ctx context.Context) (Position, error) {
	return f(ctx)
}

type GeofenceCheck struct {
	IsValid  bool                `json:"is_valid"`
	Distance float64             `json:"distance"`
	Position model.GeoCoordinate `json:"position"`
}

// GeofenceValidator compares the device position with a session geofence.
type GeofenceValidator struct {
	Positions PositionProvider
	Timeout   time.Duration
}

func NewGeofenceValidator(positions PositionProvider, timeout time.Duration) *GeofenceValidator {
	if timeout <= 0 {
		timeout = DefaultGeolocationTimeout
	}
	return &GeofenceValidator{Positions: positions, Timeout: timeout}
}

// Check acquires the current position and measures it against location. Being
// outside the fence is reported through IsValid, not as an error.
func (v *GeofenceValidator) Check(ctx context.Context, location model.AttendanceLocation) (GeofenceCheck, error) {
	if err := location.Validate(); err != nil {
		return GeofenceCheck{}, fmt.Errorf("%w: %v", ErrInvalidGeofence, err)
	}

	position, err := v.acquire(ctx)
	if err != nil {
		return GeofenceCheck{}, err
	}
	if !position.Coordinates.Valid() {
		return GeofenceCheck{}, &LocationError{Reason: ReasonInvalidPosition}
	}

	result := utils.WithinRadius(position.Coordinates, location)
	utils.GeofenceDistance.Observe(result.Distance)
	return GeofenceCheck{
		IsValid:  result.IsValid,
		Distance: result.Distance,
		Position: position.Coordinates,
	}, nil
}

func (v *GeofenceValidator) acquire(ctx context.Context) (Position, error) {
	if v.Positions == nil {
		return Position{}, &LocationError{Reason: ReasonUnavailable, Err: errors.New("no position provider")}
	}
	timeout := v.Timeout
	if timeout <= 0 {
		timeout = DefaultGeolocationTimeout
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		position Position
		err      error
	}
	done := make(chan result, 1)
	go func() {
		p, err := v.Positions.CurrentPosition(tctx)
		done <- result{position: p, err: err}
	}()

	select {
	case r := <-done:
		if r.err == nil {
			return r.position, nil
		}
		if ctx.Err() != nil {
			return Position{}, ctx.Err()
		}
		var locErr *LocationError
		if errors.As(r.err, &locErr) {
			return Position{}, locErr
		}
		if errors.Is(r.err, context.DeadlineExceeded) {
			return Position{}, &LocationError{Reason: ReasonTimeout, Err: r.err}
		}
		return Position{}, &LocationError{Reason: ReasonUnavailable, Err: r.err}
	case <-tctx.Done():
		if ctx.Err() != nil {
			return Position{}, ctx.Err()
		}
		utils.TrackError("geolocation", string(ReasonTimeout))
		return Position{}, &LocationError{Reason: ReasonTimeout, Err: tctx.Err()}
	}
}
