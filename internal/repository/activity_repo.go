package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"medprep/internal/database"
	"medprep/internal/models"
)

// activityTables maps each kind to the table its records live in
var activityTables = map[models.ActivityKind]string{
	models.ActivityTest:       "test_attempts",
	models.ActivitySimulation: "simulation_attempts",
	models.ActivityChallenge:  "challenge_sessions",
	models.ActivityDaily:      "daily_challenges",
}

// SQLActivitySource reads one activity table. It only looks at owner_id and created_at.
type SQLActivitySource struct {
	db    database.DBTX
	kind  models.ActivityKind
	table string
}

// NewSQLActivitySource creates a source for kind
func NewSQLActivitySource(db database.DBTX, kind models.ActivityKind) (*SQLActivitySource, error) {
	table, ok := activityTables[kind]
	if !ok {
		return nil, fmt.Errorf("unknown activity kind: %s", kind)
	}
	return &SQLActivitySource{db: db, kind: kind, table: table}, nil
}

// NewSQLActivitySources creates one source per known kind
func NewSQLActivitySources(db database.DBTX) []*SQLActivitySource {
	sources := make([]*SQLActivitySource, 0, len(models.ActivityKinds))
	for _, kind := range models.ActivityKinds {
		sources = append(sources, &SQLActivitySource{db: db, kind: kind, table: activityTables[kind]})
	}
	return sources
}

// Kind returns the activity kind this source reads
func (s *SQLActivitySource) Kind() models.ActivityKind {
	return s.kind
}

// Exists reports whether the owner has at least one record created in [from, to)
func (s *SQLActivitySource) Exists(ctx context.Context, ownerID string, from, to time.Time) (bool, error) {
	query := `SELECT 1 FROM ` + s.table + ` WHERE owner_id = ? AND created_at >= ? AND created_at < ? LIMIT 1`

	rows, err := s.db.QueryContext(ctx, query, ownerID, from.UTC(), to.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to check %s activity: %w", s.kind, err)
	}
	defer rows.Close()

	found := rows.Next()
	return found, rows.Err()
}

// CountByDay groups the owner's records created in [from, to) by UTC day
func (s *SQLActivitySource) CountByDay(ctx context.Context, ownerID string, from, to time.Time) ([]models.DayCount, error) {
	day := s.db.GetDialect().DayExpr("created_at")
	query := `
		SELECT ` + day + ` AS activity_day, COUNT(*)
		FROM ` + s.table + `
		WHERE owner_id = ? AND created_at >= ? AND created_at < ?
		GROUP BY ` + day + `
		ORDER BY activity_day ASC
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate %s activity: %w", s.kind, err)
	}
	defer rows.Close()

	var counts []models.DayCount
	for rows.Next() {
		var dc models.DayCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan %s activity: %w", s.kind, err)
		}
		counts = append(counts, dc)
	}
	return counts, rows.Err()
}

// List returns the owner's records created in [from, to), oldest first
func (s *SQLActivitySource) List(ctx context.Context, ownerID string, from, to time.Time) ([]models.ActivityRecord, error) {
	query := `
		SELECT id, created_at
		FROM ` + s.table + `
		WHERE owner_id = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list %s activity: %w", s.kind, err)
	}
	defer rows.Close()

	records := []models.ActivityRecord{}
	for rows.Next() {
		var id int64
		var createdAt time.Time
		if err := rows.Scan(&id, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan %s activity: %w", s.kind, err)
		}
		records = append(records, models.ActivityRecord{ID: strconv.FormatInt(id, 10), CreatedAt: createdAt.UTC()})
	}
	return records, rows.Err()
}

// Record inserts an activity row. Production activity is written by the services that
// own these tables; Record seeds fixtures for tests of the streak path.
func (s *SQLActivitySource) Record(ctx context.Context, ownerID string, at time.Time) (int64, error) {
	query := `INSERT INTO ` + s.table + ` (owner_id, created_at) VALUES (?, ?)`

	id, err := s.db.ExecReturningID(ctx, query, ownerID, at.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to record %s activity: %w", s.kind, err)
	}
	return id, nil
}
