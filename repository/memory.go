package repository

import (
	"context"
	"errors"
	"sort"
	"sync"

	"attendguard/model"
)

// MemoryAttendanceRepo is an in-process attendance log with the same
// uniqueness rule as the Mongo index.
type MemoryAttendanceRepo struct {
	mu      sync.RWMutex
	records []*model.AttendanceRecord
}

func NewMemoryAttendanceRepo() *MemoryAttendanceRepo {
	return &MemoryAttendanceRepo{}
}

func (r *MemoryAttendanceRepo) Append(_ context.Context, record *model.AttendanceRecord) error {
	if record.UserID == "" || record.SessionID == "" {
		return errors.New("user ID and session ID are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.records {
		if existing.UserID == record.UserID &&
			existing.SessionID == record.SessionID &&
			existing.LocationID == record.LocationID &&
			existing.Day == record.Day {
			return ErrDuplicateRecord
		}
	}
	stored := *record
	r.records = append(r.records, &stored)
	return nil
}

func (r *MemoryAttendanceRepo) QueryByUser(_ context.Context, userID string) ([]*model.AttendanceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]*model.AttendanceRecord, 0)
	for _, rec := range r.records {
		if rec.UserID == userID {
			c := *rec
			records = append(records, &c)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	return records, nil
}

// MemorySessionCatalog serves sessions from a map.
type MemorySessionCatalog struct {
	mu       sync.RWMutex
	sessions map[string]model.SessionEntry
}

func NewMemorySessionCatalog(entries ...model.SessionEntry) *MemorySessionCatalog {
	c := &MemorySessionCatalog{sessions: make(map[string]model.SessionEntry)}
	for _, e := range entries {
		c.sessions[e.SessionID] = e
	}
	return c
}

func (c *MemorySessionCatalog) GetSession(_ context.Context, sessionID string) (*model.SessionEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &entry, nil
}

func (c *MemorySessionCatalog) GetLocation(ctx context.Context, sessionID string) (model.AttendanceLocation, error) {
	entry, err := c.GetSession(ctx, sessionID)
	if err != nil {
		return model.AttendanceLocation{}, err
	}
	return entry.Location, nil
}

func (c *MemorySessionCatalog) PutSession(_ context.Context, entry *model.SessionEntry) error {
	if entry.SessionID == "" {
		return errors.New("session ID is required")
	}
	if err := entry.Location.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.sessions[entry.SessionID] = *entry
	c.mu.Unlock()
	return nil
}
