package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendguard/model"
	"attendguard/repository"
	"attendguard/services"
	"attendguard/storage"
	"attendguard/testutils"
	"attendguard/utils"
)

type recorderFixture struct {
	clock   *utils.ManualClock
	store   *storage.Memory
	history *repository.MemoryAttendanceRepo
	catalog *repository.MemorySessionCatalog
	svc     *AttendanceService
}

func newRecorderFixture(t *testing.T, cfg ServiceConfig, sessions ...model.SessionEntry) *recorderFixture {
	t.Helper()
	if len(sessions) == 0 {
		sessions = []model.SessionEntry{{SessionID: "cs101", Location: testutils.Location("hall-a", 0, 0, 50)}}
	}
	f := &recorderFixture{
		clock:   utils.NewManualClock(epoch),
		store:   storage.NewMemory(),
		history: repository.NewMemoryAttendanceRepo(),
		catalog: repository.NewMemorySessionCatalog(sessions...),
	}
	f.svc = NewAttendanceService(f.store, f.history, f.catalog, f.clock, cfg)
	return f
}

func (f *recorderFixture) device(id string, env *testutils.StaticEnvironment, positions services.PositionProvider) *AttendanceRecorder {
	return f.svc.Recorder(Device{ID: id, Environment: env, Positions: positions, Label: "Chrome on Windows (Desktop)"})
}

func TestMarkPresent(t *testing.T) {
	ctx := context.Background()
	f := newRecorderFixture(t, ServiceConfig{})
	phone := f.device("phone", testutils.NewStaticEnvironment(), testutils.FixedPosition(0.00029, 0))

	record, err := phone.MarkPresentWithCode(ctx, "cs101", "alice", "")
	require.NoError(t, err)

	assert.NotEmpty(t, record.ID)
	assert.Equal(t, "alice", record.UserID)
	assert.Equal(t, "cs101", record.SessionID)
	assert.Equal(t, "hall-a", record.LocationID)
	assert.Equal(t, model.StatusPresent, record.Status)
	assert.Equal(t, epoch, record.Timestamp)
	assert.Equal(t, "2026-03-02", record.Day)
	assert.InDelta(t, 32.25, record.DistanceFromCenter, 0.5)
	assert.Equal(t, 0.00029, record.Coordinates.Latitude)

	summary, err := phone.Ledger.Summary(ctx, "cs101")
	require.NoError(t, err)
	require.Len(t, summary.Restrictions, 1)
	assert.Equal(t, "alice", summary.Restrictions[0].UserID)
	require.NotNil(t, summary.Restrictions[0].ReportedLocation)
	assert.Equal(t, 0.00029, summary.Restrictions[0].ReportedLocation.Latitude)
}

func TestMarkPresentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newRecorderFixture(t, ServiceConfig{})
	phone := f.device("phone", testutils.NewStaticEnvironment(), testutils.FixedPosition(0, 0))

	first, err := phone.MarkPresentWithCode(ctx, "cs101", "alice", "")
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	// the retry is answered even from outside the fence
	away := f.device("phone", testutils.NewStaticEnvironment(), testutils.FixedPosition(1, 1))
	second, err := away.MarkPresentWithCode(ctx, "cs101", "alice", "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Timestamp, second.Timestamp)

	records, err := f.history.QueryByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestMarkPresentDayFollowsZone(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		zone    *time.Location
		newDay  bool
		wantDay string
	}{
		{name: "utc rolls over at midnight", zone: time.UTC, newDay: true, wantDay: "2026-03-03"},
		{name: "local evening is the same day", zone: time.FixedZone("UTC-5", -5*60*60), newDay: false, wantDay: "2026-03-02"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRecorderFixture(t, ServiceConfig{Zone: tt.zone})
			f.clock.Set(time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC))
			phone := f.device("phone", testutils.NewStaticEnvironment(), testutils.FixedPosition(0, 0))

			first, err := phone.MarkPresentWithCode(ctx, "cs101", "alice", "")
			require.NoError(t, err)

			f.clock.Advance(6 * time.Hour)
			second, err := phone.MarkPresentWithCode(ctx, "cs101", "alice", "")
			require.NoError(t, err)
			assert.Equal(t, tt.newDay, first.ID != second.ID)
			assert.Equal(t, tt.wantDay, second.Day)
		})
	}
}

func TestMarkPresentDeviceReuse(t *testing.T) {
	ctx := context.Background()
	f := newRecorderFixture(t, ServiceConfig{})
	phone := f.device("phone", testutils.NewStaticEnvironment(), testutils.FixedPosition(0, 0))

	_, err := phone.MarkPresentWithCode(ctx, "cs101", "alice", "")
	require.NoError(t, err)

	_, err = phone.MarkPresentWithCode(ctx, "cs101", "bob", "")
	require.ErrorIs(t, err, ErrDeviceRestricted)

	var restricted *DeviceRestrictedError
	require.ErrorAs(t, err, &restricted)
	assert.Equal(t, KindDeviceConflict, restricted.Kind)
	assert.Equal(t, "alice", restricted.ConflictUserID)
	assert.NotContains(t, restricted.Error(), "alice")

	records, err := f.history.QueryByUser(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestMarkPresentUserReuseInSharedLedger(t *testing.T) {
	ctx := context.Background()
	f := newRecorderFixture(t, ServiceConfig{LedgerScope: LedgerScopeShared})
	phone := f.device("phone", testutils.NewStaticEnvironment(), testutils.FixedPosition(0, 0))

	_, err := phone.MarkPresentWithCode(ctx, "cs101", "alice", "")
	require.NoError(t, err)

	// next day the record no longer answers, but the binding is still held
	f.clock.Advance(24 * time.Hour)
	laptopEnv := testutils.NewStaticEnvironment()
	laptopEnv.Width, laptopEnv.Height = 2560, 1440
	laptop := f.device("laptop", laptopEnv, testutils.FixedPosition(0, 0))

	_, err = laptop.MarkPresentWithCode(ctx, "cs101", "alice", "")
	var restricted *DeviceRestrictedError
	require.ErrorAs(t, err, &restricted)
	assert.Equal(t, KindUserConflict, restricted.Kind)
	assert.Empty(t, restricted.ConflictUserID)
}

func TestMarkPresentRejections(t *testing.T) {
	inactive := testutils.Location("hall-b", 0, 0, 50)
	inactive.IsActive = false

	tests := []struct {
		name      string
		sessionID string
		positions services.PositionProvider
		check     func(t *testing.T, err error)
	}{
		{
			name:      "out of range",
			sessionID: "cs101",
			positions: testutils.FixedPosition(0.001, 0),
			check: func(t *testing.T, err error) {
				var locErr *services.LocationError
				require.ErrorAs(t, err, &locErr)
				assert.Equal(t, services.ReasonOutOfRange, locErr.Reason)
				assert.InDelta(t, 111.2, locErr.Distance, 0.5)
				assert.Equal(t, 50.0, locErr.Radius)
				assert.ErrorIs(t, err, services.ErrOutOfGeofence)
			},
		},
		{
			name:      "permission denied",
			sessionID: "cs101",
			positions: testutils.FailingPosition(services.ReasonPermissionDenied),
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, services.ErrLocationPermissionDenied)
			},
		},
		{
			name:      "inactive location",
			sessionID: "closed",
			positions: testutils.FixedPosition(0, 0),
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrLocationInactive)
			},
		},
		{
			name:      "unknown session",
			sessionID: "nope",
			positions: testutils.FixedPosition(0, 0),
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, repository.ErrSessionNotFound)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newRecorderFixture(t, ServiceConfig{},
				model.SessionEntry{SessionID: "cs101", Location: testutils.Location("hall-a", 0, 0, 50)},
				model.SessionEntry{SessionID: "closed", Location: inactive},
			)
			phone := f.device("phone", testutils.NewStaticEnvironment(), tt.positions)

			record, err := phone.MarkPresentWithCode(ctx, tt.sessionID, "alice", "")
			assert.Nil(t, record)
			tt.check(t, err)

			summary, err := phone.Ledger.Summary(ctx, tt.sessionID)
			require.NoError(t, err)
			assert.Zero(t, summary.TotalRestrictions, "rejected marks leave no binding")
		})
	}
}

func TestMarkPresentWithCode(t *testing.T) {
	ctx := context.Background()
	f := newRecorderFixture(t, ServiceConfig{})
	secret, err := f.svc.Codes.NewSecret("cs102")
	require.NoError(t, err)
	require.NoError(t, f.catalog.PutSession(ctx, &model.SessionEntry{
		SessionID:  "cs102",
		Location:   testutils.Location("hall-c", 0, 0, 50),
		CodeSecret: secret,
	}))
	phone := f.device("phone", testutils.NewStaticEnvironment(), testutils.FixedPosition(0, 0))

	_, err = phone.MarkPresentWithCode(ctx, "cs102", "alice", "")
	assert.ErrorIs(t, err, services.ErrInvalidAttendanceCode)

	_, err = phone.MarkPresentWithCode(ctx, "cs102", "alice", "000000x")
	assert.ErrorIs(t, err, services.ErrInvalidAttendanceCode)

	code, err := f.svc.Codes.Current(secret)
	require.NoError(t, err)
	record, err := phone.MarkPresentWithCode(ctx, "cs102", "alice", code)
	require.NoError(t, err)
	assert.Equal(t, "hall-c", record.LocationID)
}

// racingHistory reports a duplicate on Append as if another request had
// stored the record in between.
type racingHistory struct {
	mu     sync.Mutex
	winner *model.AttendanceRecord
	stored bool
}

func (h *racingHistory) Append(_ context.Context, record *model.AttendanceRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	w := *record
	w.ID = "winner"
	h.winner = &w
	h.stored = true
	return repository.ErrDuplicateRecord
}

func (h *racingHistory) QueryByUser(context.Context, string) ([]*model.AttendanceRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.stored {
		return nil, nil
	}
	return []*model.AttendanceRecord{h.winner}, nil
}

func TestMarkPresentLosesRace(t *testing.T) {
	ctx := context.Background()
	f := newRecorderFixture(t, ServiceConfig{})
	phone := f.device("phone", testutils.NewStaticEnvironment(), testutils.FixedPosition(0, 0))
	phone.Records = &racingHistory{}

	record, err := phone.MarkPresentWithCode(ctx, "cs101", "alice", "")
	require.NoError(t, err)
	assert.Equal(t, "winner", record.ID)
}

// gatedHistory holds each Append until a second one arrives or a short
// timeout passes, so two overlapping marks meet inside the store.
type gatedHistory struct {
	*repository.MemoryAttendanceRepo
	mu      sync.Mutex
	arrived int
	both    chan struct{}
}

func (h *gatedHistory) Append(ctx context.Context, record *model.AttendanceRecord) error {
	h.mu.Lock()
	h.arrived++
	if h.arrived == 2 {
		close(h.both)
	}
	h.mu.Unlock()

	select {
	case <-h.both:
	case <-time.After(200 * time.Millisecond):
	}
	return h.MemoryAttendanceRepo.Append(ctx, record)
}

func TestMarkPresentConcurrentUsersOnOneDevice(t *testing.T) {
	ctx := context.Background()
	f := newRecorderFixture(t, ServiceConfig{})
	history := &gatedHistory{MemoryAttendanceRepo: f.history, both: make(chan struct{})}

	users := []string{"alice", "bob"}
	errs := make([]error, len(users))
	var wg sync.WaitGroup
	for i, user := range users {
		phone := f.device("phone", testutils.NewStaticEnvironment(), testutils.FixedPosition(0, 0))
		phone.Records = history
		wg.Add(1)
		go func(i int, user string) {
			defer wg.Done()
			_, errs[i] = phone.MarkPresentWithCode(ctx, "cs101", user, "")
		}(i, user)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var restricted *DeviceRestrictedError
		require.ErrorAs(t, err, &restricted)
		assert.Equal(t, KindDeviceConflict, restricted.Kind)
	}
	assert.Equal(t, 1, succeeded)

	total := 0
	for _, user := range users {
		records, err := f.history.QueryByUser(ctx, user)
		require.NoError(t, err)
		total += len(records)
	}
	assert.Equal(t, 1, total)

	summary, err := f.device("phone", testutils.NewStaticEnvironment(), nil).Ledger.Summary(ctx, "cs101")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.UniqueUsers)
}

type failingHistory struct{ err error }

func (h failingHistory) Append(context.Context, *model.AttendanceRecord) error { return h.err }
func (h failingHistory) QueryByUser(context.Context, string) ([]*model.AttendanceRecord, error) {
	return nil, nil
}

func TestMarkPresentAppendFailure(t *testing.T) {
	ctx := context.Background()
	f := newRecorderFixture(t, ServiceConfig{})
	phone := f.device("phone", testutils.NewStaticEnvironment(), testutils.FixedPosition(0, 0))
	phone.Records = failingHistory{err: errors.New("mongo down")}

	_, err := phone.MarkPresentWithCode(ctx, "cs101", "alice", "")
	assert.ErrorContains(t, err, "mongo down")

	summary, err := phone.Ledger.Summary(ctx, "cs101")
	require.NoError(t, err)
	assert.Zero(t, summary.TotalRestrictions)
}

func TestHistoryAndStats(t *testing.T) {
	ctx := context.Background()
	f := newRecorderFixture(t, ServiceConfig{},
		model.SessionEntry{SessionID: "cs101", Location: testutils.Location("hall-a", 0, 0, 50)},
		model.SessionEntry{SessionID: "cs102", Location: testutils.Location("hall-b", 0, 0, 50)},
	)
	phone := f.device("phone", testutils.NewStaticEnvironment(), testutils.FixedPosition(0, 0))

	_, err := phone.MarkPresentWithCode(ctx, "cs101", "alice", "")
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	_, err = phone.MarkPresentWithCode(ctx, "cs102", "alice", "")
	require.NoError(t, err)

	history, err := phone.History(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "cs102", history[0].SessionID, "newest first")

	stats, err := phone.Stats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Present)
	assert.Equal(t, 2, stats.SessionsMarked)
	assert.Equal(t, 1.0, stats.AttendanceRate)
	require.NotNil(t, stats.LastMarkedAt)
	assert.Equal(t, epoch.Add(time.Hour), *stats.LastMarkedAt)

	empty, err := phone.Stats(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Zero(t, empty.AttendanceRate)
	assert.Nil(t, empty.LastMarkedAt)
}

func TestComputeStats(t *testing.T) {
	at := func(h int) time.Time { return epoch.Add(time.Duration(h) * time.Hour) }
	records := []*model.AttendanceRecord{
		{SessionID: "s1", Status: model.StatusPresent, Timestamp: at(0)},
		{SessionID: "s1", Status: model.StatusLate, Timestamp: at(24)},
		{SessionID: "s2", Status: model.StatusAbsent, Timestamp: at(48)},
		{SessionID: "s3", Status: model.StatusPresent, Timestamp: at(12)},
	}

	stats := computeStats("alice", records)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Present)
	assert.Equal(t, 1, stats.Late)
	assert.Equal(t, 1, stats.Absent)
	assert.Equal(t, 0.75, stats.AttendanceRate)
	assert.Equal(t, 2, stats.SessionsMarked)
	assert.Equal(t, at(48), *stats.LastMarkedAt)
}

func TestGetDistance(t *testing.T) {
	r := &AttendanceRecorder{}
	got := r.GetDistance(model.GeoCoordinate{Latitude: 0.00029}, testutils.Location("hall-a", 0, 0, 50))
	assert.True(t, got.IsValid)
	assert.InDelta(t, 32.25, got.Distance, 0.5)
}

func TestServiceGetDistance(t *testing.T) {
	f := newRecorderFixture(t, ServiceConfig{})
	location := testutils.Location("hall-a", 0, 0, 50)

	inside := f.svc.GetDistance(model.GeoCoordinate{Latitude: 0.00029}, location)
	assert.True(t, inside.IsValid)
	assert.InDelta(t, 32.25, inside.Distance, 0.5)

	outside := f.svc.GetDistance(model.GeoCoordinate{Latitude: 0.0009}, location)
	assert.False(t, outside.IsValid)
	assert.InDelta(t, 100.08, outside.Distance, 0.5)
}
