package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"attendguard/logger"
)

func SetupIndexes(ctx context.Context, db *mongo.Database, attendanceCollection, sessionsCollection string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	attendanceIndexes := []mongo.IndexModel{
		// One record per user, session, location and calendar day
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "session_id", Value: 1},
				{Key: "location_id", Value: 1},
				{Key: "day", Value: 1},
			},
			Options: options.Index().
				SetName("user_session_location_day").
				SetUnique(true),
		},
		// History listing
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "timestamp", Value: -1},
			},
			Options: options.Index().
				SetName("user_attendance_date"),
		},
		{
			Keys: bson.D{{Key: "record_id", Value: 1}},
			Options: options.Index().
				SetName("record_id_index").
				SetUnique(true),
		},
	}

	sessionIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().
				SetName("session_id_index").
				SetUnique(true),
		},
	}

	if _, err := db.Collection(attendanceCollection).Indexes().CreateMany(ctx, attendanceIndexes); err != nil {
		return fmt.Errorf("failed to create attendance indexes: %w", err)
	}
	if _, err := db.Collection(sessionsCollection).Indexes().CreateMany(ctx, sessionIndexes); err != nil {
		return fmt.Errorf("failed to create session indexes: %w", err)
	}

	logger.Info(ctx).Msg("Successfully created all indexes")
	return nil
}
