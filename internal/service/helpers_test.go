package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"medprep/internal/database"
	"medprep/internal/models"
	"medprep/migrations"
)

// monday is 2026-10-19 12:00 UTC
var monday = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Initialize(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.RunMigrations(migrations.FS))
	return db
}

// fixedClock returns a settable time source
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// memorySource is an in-memory ActivitySource
type memorySource struct {
	kind models.ActivityKind
	err  error

	mu      sync.Mutex
	records map[string][]time.Time
}

func newMemorySource(kind models.ActivityKind) *memorySource {
	return &memorySource{kind: kind, records: make(map[string][]time.Time)}
}

func (s *memorySource) add(ownerID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[ownerID] = append(s.records[ownerID], at.UTC())
}

func (s *memorySource) inWindow(ownerID string, from, to time.Time) []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []time.Time
	for _, at := range s.records[ownerID] {
		if !at.Before(from) && at.Before(to) {
			result = append(result, at)
		}
	}
	return result
}

func (s *memorySource) Kind() models.ActivityKind { return s.kind }

func (s *memorySource) Exists(_ context.Context, ownerID string, from, to time.Time) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return len(s.inWindow(ownerID, from, to)) > 0, nil
}

func (s *memorySource) CountByDay(_ context.Context, ownerID string, from, to time.Time) ([]models.DayCount, error) {
	if s.err != nil {
		return nil, s.err
	}
	counts := map[string]int{}
	var order []string
	for _, at := range s.inWindow(ownerID, from, to) {
		key := models.DayKey(at)
		if _, ok := counts[key]; !ok {
			order = append(order, key)
		}
		counts[key]++
	}
	result := make([]models.DayCount, 0, len(order))
	for _, key := range order {
		result = append(result, models.DayCount{Day: key, Count: counts[key]})
	}
	return result, nil
}

func (s *memorySource) List(_ context.Context, ownerID string, from, to time.Time) ([]models.ActivityRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	var records []models.ActivityRecord
	for i, at := range s.inWindow(ownerID, from, to) {
		records = append(records, models.ActivityRecord{ID: string(rune('a' + i)), CreatedAt: at})
	}
	return records, nil
}

// failingPrefs always fails to load preferences
type failingPrefs struct{}

func (failingPrefs) Get(context.Context, string) (*models.ReviewPreferences, error) {
	return nil, errors.New("preferences store unavailable")
}
