package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medprep/migrations"
)

func newMigratedDB(t *testing.T) *DB {
	t.Helper()

	db, err := Initialize(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.RunMigrations(migrations.FS))
	return db
}

// TestDatabaseIntegration tests the complete database lifecycle
func TestDatabaseIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := newMigratedDB(t)
	ctx := context.Background()
	require.NoError(t, db.PingContext(ctx))

	tables := []string{
		"review_sessions", "review_items", "review_preferences", "review_completion_stats",
		"streak_records", "streak_history",
		"test_attempts", "simulation_attempts", "challenge_sessions", "daily_challenges",
	}

	for _, table := range tables {
		query := "SELECT name FROM sqlite_master WHERE type='table' AND name=?"
		var name string
		err := db.QueryRowContext(ctx, query, table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s not found: %v", table, err)
		}
	}

	// Running again is a no-op
	require.NoError(t, db.RunMigrations(migrations.FS))
}

// TestDatabaseTransactions tests transaction support
func TestDatabaseTransactions(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := newMigratedDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	err := db.WithTx(ctx, func(tx DBTX) error {
		_, err := tx.ExecReturningID(ctx,
			"INSERT INTO streak_records (owner_id, current_streak, longest_streak, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
			"owner-1", 1, 1, now, now)
		return err
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM streak_records WHERE owner_id = ?", "owner-1").Scan(&count))
	assert.Equal(t, 1, count)

	// A failing unit of work leaves nothing behind
	err = db.WithTx(ctx, func(tx DBTX) error {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO streak_records (owner_id, current_streak, longest_streak, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
			"owner-2", 1, 1, now, now); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO streak_records (owner_id, current_streak, longest_streak, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
			"owner-1", 1, 1, now, now)
		return err
	})
	require.Error(t, err)
	assert.True(t, db.Dialect.IsUniqueViolation(err))

	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM streak_records WHERE owner_id = ?", "owner-2").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestDayExprGroupsByUTCDay(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := newMigratedDB(t)
	ctx := context.Background()
	day := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

	for _, at := range []time.Time{day, day.Add(23 * time.Hour), day.Add(25 * time.Hour)} {
		_, err := db.ExecContext(ctx, "INSERT INTO test_attempts (owner_id, created_at) VALUES (?, ?)", "owner-1", at)
		require.NoError(t, err)
	}

	rows, err := db.QueryContext(ctx,
		"SELECT "+db.Dialect.DayExpr("created_at")+" AS d, COUNT(*) FROM test_attempts WHERE owner_id = ? GROUP BY d ORDER BY d",
		"owner-1")
	require.NoError(t, err)
	defer rows.Close()

	got := map[string]int{}
	for rows.Next() {
		var d string
		var n int
		require.NoError(t, rows.Scan(&d, &n))
		got[d] = n
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, map[string]int{"2026-10-19": 2, "2026-10-20": 1}, got)
}

// TestConcurrentAccess tests concurrent database access
func TestConcurrentAccess(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := newMigratedDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := db.ExecContext(ctx,
		"INSERT INTO streak_records (owner_id, current_streak, longest_streak, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		"concurrent-owner", 4, 9, now, now)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var longest int
			err := db.QueryRowContext(ctx, "SELECT longest_streak FROM streak_records WHERE owner_id = ?", "concurrent-owner").Scan(&longest)
			if err != nil {
				t.Errorf("Concurrent read failed: %v", err)
			}
			if longest != 9 {
				t.Errorf("Expected longest streak 9, got %d", longest)
			}
		}()
	}
	wg.Wait()
}
