package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendguard/model"
	"attendguard/testutils"
)

type historyStore interface {
	Append(ctx context.Context, record *model.AttendanceRecord) error
	QueryByUser(ctx context.Context, userID string) ([]*model.AttendanceRecord, error)
}

type sessionStore interface {
	GetSession(ctx context.Context, sessionID string) (*model.SessionEntry, error)
	GetLocation(ctx context.Context, sessionID string) (model.AttendanceLocation, error)
	PutSession(ctx context.Context, entry *model.SessionEntry) error
}

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newRecord(user, session, location string, at time.Time) *model.AttendanceRecord {
	return &model.AttendanceRecord{
		ID:         uuid.New().String(),
		UserID:     user,
		SessionID:  session,
		LocationID: location,
		Timestamp:  at,
		Day:        at.Format("2006-01-02"),
		Status:     model.StatusPresent,
	}
}

func exerciseHistory(t *testing.T, repo historyStore) {
	ctx := context.Background()

	t.Run("append and query newest first", func(t *testing.T) {
		first := newRecord("alice", "cs101", "hall-a", base)
		second := newRecord("alice", "cs102", "hall-b", base.Add(time.Hour))
		require.NoError(t, repo.Append(ctx, first))
		require.NoError(t, repo.Append(ctx, second))
		require.NoError(t, repo.Append(ctx, newRecord("bob", "cs101", "hall-a", base)))

		records, err := repo.QueryByUser(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, second.ID, records[0].ID)
		assert.Equal(t, first.ID, records[1].ID)
		assert.True(t, first.Timestamp.Equal(records[1].Timestamp))
		assert.Equal(t, model.StatusPresent, records[1].Status)
	})

	t.Run("second record on the same day is a duplicate", func(t *testing.T) {
		err := repo.Append(ctx, newRecord("alice", "cs101", "hall-a", base.Add(3*time.Hour)))
		assert.ErrorIs(t, err, ErrDuplicateRecord)
	})

	t.Run("next day is a new record", func(t *testing.T) {
		assert.NoError(t, repo.Append(ctx, newRecord("alice", "cs101", "hall-a", base.Add(24*time.Hour))))
	})

	t.Run("ids are required", func(t *testing.T) {
		assert.Error(t, repo.Append(ctx, newRecord("", "cs101", "hall-a", base)))
		assert.Error(t, repo.Append(ctx, newRecord("carol", "", "hall-a", base)))
	})

	t.Run("unknown user has no records", func(t *testing.T) {
		records, err := repo.QueryByUser(ctx, "nobody")
		require.NoError(t, err)
		assert.NotNil(t, records)
		assert.Empty(t, records)
	})
}

func exerciseCatalog(t *testing.T, catalog sessionStore) {
	ctx := context.Background()

	t.Run("unknown session", func(t *testing.T) {
		_, err := catalog.GetSession(ctx, "nope")
		assert.ErrorIs(t, err, ErrSessionNotFound)
		_, err = catalog.GetLocation(ctx, "nope")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("put and get", func(t *testing.T) {
		entry := &model.SessionEntry{
			SessionID:  "cs101",
			Title:      "Algorithms",
			Location:   testutils.Location("hall-a", 52.52, 13.405, 75),
			CodeSecret: "JBSWY3DPEHPK3PXP",
		}
		require.NoError(t, catalog.PutSession(ctx, entry))

		got, err := catalog.GetSession(ctx, "cs101")
		require.NoError(t, err)
		assert.Equal(t, "Algorithms", got.Title)
		assert.Equal(t, "JBSWY3DPEHPK3PXP", got.CodeSecret)

		location, err := catalog.GetLocation(ctx, "cs101")
		require.NoError(t, err)
		assert.Equal(t, entry.Location, location)
	})

	t.Run("put replaces", func(t *testing.T) {
		entry := &model.SessionEntry{SessionID: "cs101", Location: testutils.Location("hall-b", 0, 0, 30)}
		require.NoError(t, catalog.PutSession(ctx, entry))

		location, err := catalog.GetLocation(ctx, "cs101")
		require.NoError(t, err)
		assert.Equal(t, "hall-b", location.ID)
	})

	t.Run("invalid entries are rejected", func(t *testing.T) {
		assert.Error(t, catalog.PutSession(ctx, &model.SessionEntry{Location: testutils.Location("x", 0, 0, 10)}))
		err := catalog.PutSession(ctx, &model.SessionEntry{SessionID: "bad", Location: testutils.Location("x", 0, 0, 0)})
		assert.ErrorIs(t, err, model.ErrInvalidRadius)
	})
}

func TestMemoryAttendanceRepo(t *testing.T) {
	exerciseHistory(t, NewMemoryAttendanceRepo())
}

func TestMemoryAttendanceRepoCopiesRecords(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAttendanceRepo()
	record := newRecord("alice", "cs101", "hall-a", base)
	require.NoError(t, repo.Append(ctx, record))
	record.Status = model.StatusAbsent

	records, err := repo.QueryByUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, model.StatusPresent, records[0].Status)
}

func TestMemorySessionCatalog(t *testing.T) {
	exerciseCatalog(t, NewMemorySessionCatalog())
}

func TestMongoAttendanceRepo(t *testing.T) {
	db, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	require.NoError(t, SetupIndexes(context.Background(), db, "attendance", "sessions"))
	exerciseHistory(t, &AttendanceRepo{MongoCollection: db.Collection("attendance")})
}

func TestMongoSessionCatalog(t *testing.T) {
	db, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	require.NoError(t, SetupIndexes(context.Background(), db, "attendance", "sessions"))
	catalog := NewSessionCatalogRepo(db.Collection("sessions"), 16, time.Minute)
	exerciseCatalog(t, catalog)

	t.Run("cached entries survive a removed document", func(t *testing.T) {
		ctx := context.Background()
		_, err := catalog.GetSession(ctx, "cs101")
		require.NoError(t, err)
		_, err = db.Collection("sessions").DeleteMany(ctx, map[string]any{})
		require.NoError(t, err)

		_, err = catalog.GetSession(ctx, "cs101")
		assert.NoError(t, err)

		_, err = NewSessionCatalogRepo(db.Collection("sessions"), 16, time.Minute).GetSession(ctx, "cs101")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}
