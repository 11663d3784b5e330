package usecase

import (
	"time"

	"attendguard/model"
	"attendguard/services"
	"attendguard/storage"
	"attendguard/utils"
)

const (
	LedgerScopeDevice = "device"
	LedgerScopeShared = "shared"
)

type ServiceConfig struct {
	FingerprintValidity time.Duration
	GeolocationTimeout  time.Duration
	// LedgerScope is LedgerScopeDevice (each device sees only its own
	// bindings) or LedgerScopeShared (all devices share one ledger per session).
	LedgerScope        string
	ExpireOnSessionEnd bool
	Zone               *time.Location
}

// AttendanceService holds the long-lived dependencies and assembles the
// per-device components for each caller.
type AttendanceService struct {
	Store     storage.Store
	Generator *services.FingerprintGenerator
	History   AttendanceHistoryStore
	Catalog   SessionCatalog
	Codes     *services.AttendanceCodes
	Clock     utils.Clock
	Config    ServiceConfig
}

func NewAttendanceService(store storage.Store, history AttendanceHistoryStore, catalog SessionCatalog, clock utils.Clock, cfg ServiceConfig) *AttendanceService {
	if clock == nil {
		clock = utils.RealClock{}
	}
	return &AttendanceService{
		Store:     store,
		Generator: services.NewFingerprintGenerator(clock),
		History:   history,
		Catalog:   catalog,
		Codes:     services.NewAttendanceCodes(clock),
		Clock:     clock,
		Config:    cfg,
	}
}

// Device describes the caller's device for one request.
type Device struct {
	ID          string
	Environment services.DeviceEnvironment
	Positions   services.PositionProvider
	Label       string
}

// deviceStore is the device-local part of the store.
func (s *AttendanceService) deviceStore(deviceID string) storage.Store {
	return storage.WithPrefix(s.Store, "device/"+deviceID+"/")
}

// Fingerprints returns the fingerprint cache of a device.
func (s *AttendanceService) Fingerprints(d Device) *services.FingerprintCache {
	return services.NewFingerprintCache(s.deviceStore(d.ID), s.Generator, d.Environment, s.Config.FingerprintValidity)
}

// Ledger returns the restriction ledger as seen from a device.
func (s *AttendanceService) Ledger(d Device) *RestrictionLedger {
	namespace := SharedNamespace
	if s.Config.LedgerScope != LedgerScopeShared {
		namespace = DeviceNamespace(d.ID)
	}
	return NewRestrictionLedger(s.Store, s.Fingerprints(d), LedgerOptions{
		Namespace:          namespace,
		ExpireOnSessionEnd: s.Config.ExpireOnSessionEnd,
		DeviceLabel:        d.Label,
		Clock:              s.Clock,
	})
}

// Janitor returns a ledger usable for store-wide maintenance. It has no
// device and must not be asked for eligibility.
func (s *AttendanceService) Janitor() *RestrictionLedger {
	return NewRestrictionLedger(s.Store, nil, LedgerOptions{
		ExpireOnSessionEnd: s.Config.ExpireOnSessionEnd,
		Clock:              s.Clock,
	})
}

// GetDistance measures position against location. It needs no device.
func (s *AttendanceService) GetDistance(position model.GeoCoordinate, location model.AttendanceLocation) utils.GeofenceResult {
	return utils.WithinRadius(position, location)
}

// Recorder assembles the attendance recorder for a device.
func (s *AttendanceService) Recorder(d Device) *AttendanceRecorder {
	return &AttendanceRecorder{
		Geofence: services.NewGeofenceValidator(d.Positions, s.Config.GeolocationTimeout),
		Ledger:   s.Ledger(d),
		Records:  s.History,
		Catalog:  s.Catalog,
		Codes:    s.Codes,
		Clock:    s.Clock,
		Zone:     s.Config.Zone,
	}
}
