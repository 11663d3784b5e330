package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"attendguard/model"
	"attendguard/utils"
)

var (
	ErrDuplicateRecord = errors.New("attendance record already exists")
	ErrSessionNotFound = errors.New("session not found")
)

const dbTimeout = 10 * time.Second

type AttendanceRepo struct {
	MongoCollection *mongo.Collection
}

func GetAttendanceRepo(client *mongo.Client, database, collection string) *AttendanceRepo {
	return &AttendanceRepo{
		MongoCollection: client.Database(database).Collection(collection),
	}
}

// Append inserts a record. The unique day index turns a second record for the
// same user, session, location and day into ErrDuplicateRecord.
func (r *AttendanceRepo) Append(ctx context.Context, record *model.AttendanceRecord) error {
	if record.UserID == "" || record.SessionID == "" {
		return errors.New("user ID and session ID are required")
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	timer := utils.TrackDBOperation("insert", r.MongoCollection.Name())
	defer timer.ObserveDuration()

	_, err := r.MongoCollection.InsertOne(ctx, record)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateRecord
	}
	if err != nil {
		utils.TrackError("database", "attendance_insert")
		return fmt.Errorf("failed to insert attendance record: %w", err)
	}
	return nil
}

// QueryByUser returns the user's records, newest first.
func (r *AttendanceRepo) QueryByUser(ctx context.Context, userID string) ([]*model.AttendanceRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	timer := utils.TrackDBOperation("find", r.MongoCollection.Name())
	defer timer.ObserveDuration()

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	cursor, err := r.MongoCollection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		utils.TrackError("database", "attendance_find")
		return nil, fmt.Errorf("failed to query attendance records: %w", err)
	}
	defer cursor.Close(ctx)

	records := make([]*model.AttendanceRecord, 0)
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode attendance records: %w", err)
	}
	return records, nil
}
