package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"attendguard/model"
	"attendguard/utils"
)

// SessionCatalogRepo reads session geofences from Mongo, keeping recently
// used entries in an expiring LRU cache.
type SessionCatalogRepo struct {
	MongoCollection *mongo.Collection
	cache           *expirable.LRU[string, *model.SessionEntry]
}

func GetSessionCatalogRepo(client *mongo.Client, database, collection string, cacheSize int, cacheTTL time.Duration) *SessionCatalogRepo {
	return NewSessionCatalogRepo(client.Database(database).Collection(collection), cacheSize, cacheTTL)
}

func NewSessionCatalogRepo(coll *mongo.Collection, cacheSize int, cacheTTL time.Duration) *SessionCatalogRepo {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	return &SessionCatalogRepo{
		MongoCollection: coll,
		cache:           expirable.NewLRU[string, *model.SessionEntry](cacheSize, nil, cacheTTL),
	}
}

func (r *SessionCatalogRepo) GetSession(ctx context.Context, sessionID string) (*model.SessionEntry, error) {
	if entry, ok := r.cache.Get(sessionID); ok {
		utils.TrackCacheOperation("session_catalog", true)
		return entry, nil
	}
	utils.TrackCacheOperation("session_catalog", false)

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	timer := utils.TrackDBOperation("find_one", r.MongoCollection.Name())
	defer timer.ObserveDuration()

	var entry model.SessionEntry
	err := r.MongoCollection.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrSessionNotFound
		}
		utils.TrackError("database", "session_find")
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	r.cache.Add(sessionID, &entry)
	return &entry, nil
}

func (r *SessionCatalogRepo) GetLocation(ctx context.Context, sessionID string) (model.AttendanceLocation, error) {
	entry, err := r.GetSession(ctx, sessionID)
	if err != nil {
		return model.AttendanceLocation{}, err
	}
	return entry.Location, nil
}

// PutSession creates or replaces a session entry.
func (r *SessionCatalogRepo) PutSession(ctx context.Context, entry *model.SessionEntry) error {
	if entry.SessionID == "" {
		return errors.New("session ID is required")
	}
	if err := entry.Location.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	timer := utils.TrackDBOperation("replace", r.MongoCollection.Name())
	defer timer.ObserveDuration()

	_, err := r.MongoCollection.ReplaceOne(ctx,
		bson.M{"session_id": entry.SessionID},
		entry,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	r.cache.Remove(entry.SessionID)
	return nil
}
