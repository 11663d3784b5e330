package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"attendguard/logger"
	"attendguard/model"
	"attendguard/storage"
	"attendguard/utils"
)

const (
	restrictionPrefix = "restrictions/"
	// SharedNamespace puts every device's bindings for a session in one scope.
	SharedNamespace = "shared"

	DefaultRestrictionRetention = 48 * time.Hour
)

// Denial kinds reported by CheckEligibility.
const (
	KindDeviceConflict = "device_conflict"
	KindUserConflict   = "user_conflict"
)

const (
	reasonDeviceConflict = "This device has already been used to mark attendance for another user in this session"
	reasonUserConflict   = "You have already marked attendance for this session from another device"
)

// FingerprintSource yields the fingerprint of the device the ledger runs on.
type FingerprintSource interface {
	GetOrCreate(ctx context.Context) (model.DeviceFingerprint, error)
}

// Eligibility is the outcome of CheckEligibility. ConflictUserID is meant for
// audit only and must not be shown to the blocked user.
type Eligibility struct {
	Allowed        bool   `json:"allowed"`
	Reason         string `json:"reason,omitempty"`
	Kind           string `json:"kind,omitempty"`
	ConflictUserID string `json:"-"`
	FingerprintID  string `json:"-"`
}

type LedgerOptions struct {
	// Namespace separates ledgers of different devices sharing one store.
	// Empty means SharedNamespace.
	Namespace string
	// ExpireOnSessionEnd lets EndSession drop a session's bindings.
	ExpireOnSessionEnd bool
	DeviceLabel        string
	Clock              utils.Clock
}

// RestrictionLedger decides whether a (session, user, device) triple may mark
// attendance and remembers the bindings that were made. All state lives in
// store under restrictions/<namespace>/<sessionID>, one JSON array per scope.
type RestrictionLedger struct {
	store        storage.Store
	fingerprints FingerprintSource
	opts         LedgerOptions
}

func NewRestrictionLedger(store storage.Store, fingerprints FingerprintSource, opts LedgerOptions) *RestrictionLedger {
	if opts.Namespace == "" {
		opts.Namespace = SharedNamespace
	}
	if opts.Clock == nil {
		opts.Clock = utils.RealClock{}
	}
	return &RestrictionLedger{store: store, fingerprints: fingerprints, opts: opts}
}

// DeviceNamespace is the namespace of a single device's ledger.
func DeviceNamespace(deviceID string) string {
	return "device/" + deviceID
}

func scopeKey(namespace, sessionID string) string {
	return restrictionPrefix + namespace + "/" + sessionID
}

// scopeSession extracts the session id from a scope key.
func scopeSession(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, restrictionPrefix)
	if !ok {
		return "", false
	}
	if session, ok := strings.CutPrefix(rest, SharedNamespace+"/"); ok {
		return session, session != ""
	}
	if rest, ok = strings.CutPrefix(rest, "device/"); ok {
		_, session, found := strings.Cut(rest, "/")
		return session, found && session != ""
	}
	return "", false
}

// CheckEligibility applies, in order: same device bound to another user is
// denied; same device and same user is allowed; same user bound from another
// device is denied; anything else is allowed. It only reads; use Reserve to
// act on the decision.
func (l *RestrictionLedger) CheckEligibility(ctx context.Context, sessionID, userID string) (Eligibility, error) {
	fp, err := l.fingerprints.GetOrCreate(ctx)
	if err != nil {
		return Eligibility{}, fmt.Errorf("failed to get device fingerprint: %w", err)
	}
	entries, err := l.load(ctx, scopeKey(l.opts.Namespace, sessionID))
	if err != nil {
		return Eligibility{}, err
	}
	return l.decide(ctx, entries, sessionID, userID, fp.ID), nil
}

// Reserve decides eligibility and, when allowed, runs commit and binds the
// caller. The scope stays locked from the decision to the bind, so two users
// racing on one device cannot both pass. A denial or a failed commit leaves
// the ledger unchanged; commit is not run on denial.
func (l *RestrictionLedger) Reserve(ctx context.Context, sessionID, userID string, location *model.GeoCoordinate, commit func(context.Context) error) (Eligibility, error) {
	fp, err := l.fingerprints.GetOrCreate(ctx)
	if err != nil {
		return Eligibility{}, fmt.Errorf("failed to get device fingerprint: %w", err)
	}

	key := scopeKey(l.opts.Namespace, sessionID)
	unlock := scopeLocks.lock(key)
	defer unlock()

	entries, err := l.load(ctx, key)
	if err != nil {
		return Eligibility{}, err
	}
	decision := l.decide(ctx, entries, sessionID, userID, fp.ID)
	if !decision.Allowed {
		return decision, nil
	}
	if commit != nil {
		if err := commit(ctx); err != nil {
			return decision, err
		}
	}
	return decision, l.save(ctx, key, l.rebind(entries, sessionID, userID, fp.ID, location))
}

func (l *RestrictionLedger) decide(ctx context.Context, entries []model.AttendanceRestriction, sessionID, userID, fingerprintID string) Eligibility {
	decision := evaluate(entries, fingerprintID, userID)
	decision.FingerprintID = fingerprintID

	if decision.Allowed {
		utils.TrackEligibility("allowed")
		return decision
	}
	utils.TrackEligibility(decision.Kind)
	logger.Warn(ctx).
		Str("session_id", sessionID).
		Str("user_id", userID).
		Str("fingerprint", fingerprintID).
		Str("conflict_user_id", decision.ConflictUserID).
		Str("kind", decision.Kind).
		Msg("attendance restricted")
	return decision
}

func evaluate(entries []model.AttendanceRestriction, fingerprintID, userID string) Eligibility {
	sameDevice := false
	for _, e := range entries {
		if e.DeviceFingerprintID != fingerprintID {
			continue
		}
		if e.UserID != userID {
			return Eligibility{
				Reason:         reasonDeviceConflict,
				Kind:           KindDeviceConflict,
				ConflictUserID: e.UserID,
			}
		}
		sameDevice = true
	}
	if sameDevice {
		return Eligibility{Allowed: true}
	}
	for _, e := range entries {
		if e.UserID == userID {
			return Eligibility{Reason: reasonUserConflict, Kind: KindUserConflict}
		}
	}
	return Eligibility{Allowed: true}
}

// Bind records that userID marked sessionID from this device, replacing any
// earlier binding of the same (user, device) pair. It does not check
// eligibility.
func (l *RestrictionLedger) Bind(ctx context.Context, sessionID, userID string, location *model.GeoCoordinate) error {
	fp, err := l.fingerprints.GetOrCreate(ctx)
	if err != nil {
		return fmt.Errorf("failed to get device fingerprint: %w", err)
	}

	key := scopeKey(l.opts.Namespace, sessionID)
	unlock := scopeLocks.lock(key)
	defer unlock()

	entries, err := l.load(ctx, key)
	if err != nil {
		return err
	}
	return l.save(ctx, key, l.rebind(entries, sessionID, userID, fp.ID, location))
}

// rebind drops the stale (user, fingerprint) entry and appends a fresh one.
func (l *RestrictionLedger) rebind(entries []model.AttendanceRestriction, sessionID, userID, fingerprintID string, location *model.GeoCoordinate) []model.AttendanceRestriction {
	kept := entries[:0]
	for _, e := range entries {
		if e.UserID == userID && e.DeviceFingerprintID == fingerprintID {
			continue
		}
		kept = append(kept, e)
	}

	var reported *model.GeoCoordinate
	if location != nil {
		c := *location
		reported = &c
	}
	return append(kept, model.AttendanceRestriction{
		DeviceFingerprintID: fingerprintID,
		UserID:              userID,
		SessionID:           sessionID,
		BoundAt:             l.opts.Clock.Now(),
		ReportedLocation:    reported,
		DeviceLabel:         l.opts.DeviceLabel,
	})
}

// Summary lists this ledger's bindings for a session.
func (l *RestrictionLedger) Summary(ctx context.Context, sessionID string) (model.RestrictionSummary, error) {
	entries, err := l.load(ctx, scopeKey(l.opts.Namespace, sessionID))
	if err != nil {
		return model.RestrictionSummary{}, err
	}
	devices := make(map[string]struct{})
	users := make(map[string]struct{})
	for _, e := range entries {
		devices[e.DeviceFingerprintID] = struct{}{}
		users[e.UserID] = struct{}{}
	}
	return model.RestrictionSummary{
		SessionID:         sessionID,
		TotalRestrictions: len(entries),
		UniqueDevices:     len(devices),
		UniqueUsers:       len(users),
		Restrictions:      entries,
	}, nil
}

// EndSession drops every scope of sessionID, across namespaces, when the
// ledger is configured to expire bindings at session end. It reports whether
// anything was released.
func (l *RestrictionLedger) EndSession(ctx context.Context, sessionID string) (bool, error) {
	if !l.opts.ExpireOnSessionEnd {
		return false, nil
	}

	var keys []string
	err := l.store.Iterate(ctx, restrictionPrefix, func(key string, _ []byte) error {
		if session, ok := scopeSession(key); ok && session == sessionID {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to scan restriction scopes: %w", err)
	}

	for _, key := range keys {
		unlock := scopeLocks.lock(key)
		err := l.store.Delete(ctx, key)
		unlock()
		if err != nil {
			return false, fmt.Errorf("failed to release restriction scope: %w", err)
		}
	}
	if len(keys) > 0 {
		logger.Info(ctx).Str("session_id", sessionID).Int("scopes", len(keys)).Msg("released session restrictions")
	}
	return len(keys) > 0, nil
}

// PurgeOlderThan removes, from every scope in the store, the bindings made
// more than maxAge ago and deletes scopes left empty. Entries exactly maxAge
// old are kept.
func (l *RestrictionLedger) PurgeOlderThan(ctx context.Context, maxAge time.Duration) (model.PurgeReport, error) {
	now := l.opts.Clock.Now()
	report := model.PurgeReport{Cutoff: now.Add(-maxAge)}

	var keys []string
	seen := make(map[string]struct{})
	err := l.store.Iterate(ctx, restrictionPrefix, func(key string, _ []byte) error {
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("failed to scan restriction scopes: %w", err)
	}

	for _, key := range keys {
		removed, emptied, err := l.purgeScope(ctx, key, now, maxAge)
		if err != nil {
			return report, err
		}
		report.ScopesScanned++
		report.EntriesRemoved += removed
		if emptied {
			report.ScopesRemoved++
		}
	}

	utils.RestrictionsPurged.Add(float64(report.EntriesRemoved))
	logger.Info(ctx).
		Int("scopes_scanned", report.ScopesScanned).
		Int("scopes_removed", report.ScopesRemoved).
		Int("entries_removed", report.EntriesRemoved).
		Time("cutoff", report.Cutoff).
		Msg("purged attendance restrictions")
	return report, nil
}

func (l *RestrictionLedger) purgeScope(ctx context.Context, key string, now time.Time, maxAge time.Duration) (int, bool, error) {
	unlock := scopeLocks.lock(key)
	defer unlock()

	entries, err := l.load(ctx, key)
	if err != nil {
		return 0, false, err
	}
	kept := entries[:0]
	for _, e := range entries {
		if now.Sub(e.BoundAt) > maxAge {
			continue
		}
		kept = append(kept, e)
	}
	removed := len(entries) - len(kept)

	if len(kept) == 0 {
		if err := l.store.Delete(ctx, key); err != nil {
			return 0, false, fmt.Errorf("failed to delete restriction scope: %w", err)
		}
		return removed, true, nil
	}
	if removed == 0 {
		return 0, false, nil
	}
	return removed, false, l.save(ctx, key, kept)
}

// load reads a scope. A missing or unreadable scope is empty.
func (l *RestrictionLedger) load(ctx context.Context, key string) ([]model.AttendanceRestriction, error) {
	data, err := l.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read restrictions: %w", err)
	}

	var entries []model.AttendanceRestriction
	if err := json.Unmarshal(data, &entries); err != nil {
		logger.Warn(ctx).Err(err).Str("scope", key).Msg("discarding unreadable restriction scope")
		return nil, nil
	}
	return entries, nil
}

func (l *RestrictionLedger) save(ctx context.Context, key string, entries []model.AttendanceRestriction) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal restrictions: %w", err)
	}
	if err := l.store.Set(ctx, key, data); err != nil {
		return fmt.Errorf("failed to write restrictions: %w", err)
	}
	return nil
}

// keyedMutex serializes read-modify-write cycles on one scope within this
// process. Writers on other processes still race, last write wins.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

var scopeLocks = &keyedMutex{locks: make(map[string]*refMutex)}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
