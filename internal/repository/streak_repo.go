package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"medprep/internal/database"
	"medprep/internal/models"
)

// StreakRepository handles streak record database operations
type StreakRepository struct {
	db database.DBTX
}

// NewStreakRepository creates a new streak repository
func NewStreakRepository(db database.DBTX) *StreakRepository {
	return &StreakRepository{db: db}
}

// Get retrieves an owner's streak record with its full history, or nil if none exists
func (r *StreakRepository) Get(ctx context.Context, ownerID string) (*models.StreakRecord, error) {
	query := `
		SELECT id, owner_id, current_streak, longest_streak, last_activity_date, created_at, updated_at
		FROM streak_records
		WHERE owner_id = ?
	`

	record := &models.StreakRecord{}
	var lastActivity sql.NullTime

	err := r.db.QueryRowContext(ctx, query, ownerID).Scan(
		&record.ID,
		&record.OwnerID,
		&record.CurrentStreak,
		&record.LongestStreak,
		&lastActivity,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get streak record: %w", err)
	}

	record.LastActivityDate = nullTimePtr(lastActivity)
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()

	history, err := r.history(ctx, record.ID)
	if err != nil {
		return nil, err
	}
	record.History = history
	return record, nil
}

// Save persists the record counters and appends entry to its history.
// A record without an ID is inserted; ErrDuplicate means another writer created it first.
func (r *StreakRepository) Save(ctx context.Context, record *models.StreakRecord, entry models.StreakHistoryEntry) error {
	now := time.Now().UTC()
	record.UpdatedAt = now

	if record.ID == 0 {
		record.CreatedAt = now
		query := `
			INSERT INTO streak_records (owner_id, current_streak, longest_streak, last_activity_date, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`
		id, err := r.db.ExecReturningID(ctx, query,
			record.OwnerID, record.CurrentStreak, record.LongestStreak, utcPtr(record.LastActivityDate),
			record.CreatedAt, record.UpdatedAt,
		)
		if err != nil {
			if r.db.GetDialect().IsUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("failed to create streak record: %w", err)
		}
		record.ID = id
	} else {
		query := `
			UPDATE streak_records
			SET current_streak = ?, longest_streak = ?, last_activity_date = ?, updated_at = ?
			WHERE id = ?
		`
		if _, err := r.db.ExecContext(ctx, query,
			record.CurrentStreak, record.LongestStreak, utcPtr(record.LastActivityDate), record.UpdatedAt, record.ID,
		); err != nil {
			return fmt.Errorf("failed to update streak record: %w", err)
		}
	}

	historyQuery := `INSERT INTO streak_history (streak_id, entry_date, streak_value) VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, historyQuery, record.ID, entry.Date.UTC(), entry.Streak); err != nil {
		return fmt.Errorf("failed to append streak history: %w", err)
	}
	return nil
}

func (r *StreakRepository) history(ctx context.Context, streakID int64) ([]models.StreakHistoryEntry, error) {
	query := `SELECT entry_date, streak_value FROM streak_history WHERE streak_id = ? ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, streakID)
	if err != nil {
		return nil, fmt.Errorf("failed to load streak history: %w", err)
	}
	defer rows.Close()

	history := []models.StreakHistoryEntry{}
	for rows.Next() {
		var entry models.StreakHistoryEntry
		if err := rows.Scan(&entry.Date, &entry.Streak); err != nil {
			return nil, fmt.Errorf("failed to scan streak history: %w", err)
		}
		entry.Date = entry.Date.UTC()
		history = append(history, entry)
	}
	return history, rows.Err()
}

// Restore inserts a complete record with its history, keeping the stored timestamps
func (r *StreakRepository) Restore(ctx context.Context, record *models.StreakRecord) error {
	query := `
		INSERT INTO streak_records (owner_id, current_streak, longest_streak, last_activity_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query,
		record.OwnerID, record.CurrentStreak, record.LongestStreak, utcPtr(record.LastActivityDate),
		record.CreatedAt.UTC(), record.UpdatedAt.UTC(),
	)
	if err != nil {
		if r.db.GetDialect().IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to restore streak record: %w", err)
	}
	record.ID = id

	historyQuery := `INSERT INTO streak_history (streak_id, entry_date, streak_value) VALUES (?, ?, ?)`
	for _, entry := range record.History {
		if _, err := r.db.ExecContext(ctx, historyQuery, id, entry.Date.UTC(), entry.Streak); err != nil {
			return fmt.Errorf("failed to restore streak history: %w", err)
		}
	}
	return nil
}
