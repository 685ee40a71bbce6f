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

// CompletionRepository handles daily completion stat database operations
type CompletionRepository struct {
	db database.DBTX
}

// NewCompletionRepository creates a new completion stat repository
func NewCompletionRepository(db database.DBTX) *CompletionRepository {
	return &CompletionRepository{db: db}
}

const completionColumns = `id, owner_id, stat_date, total_reviews, completed_reviews, completion_rate,
		       created_at, updated_at`

// GetByDate retrieves the stat for one owner and YYYY-MM-DD day, or nil if absent
func (r *CompletionRepository) GetByDate(ctx context.Context, ownerID, day string) (*models.ReviewCompletionStat, error) {
	query := `SELECT ` + completionColumns + ` FROM review_completion_stats WHERE owner_id = ? AND stat_date = ?`

	stat, err := scanCompletionStat(r.db.QueryRowContext(ctx, query, ownerID, day))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get completion stat: %w", err)
	}
	return stat, nil
}

// Insert creates a stat row. It returns ErrDuplicate when the day already has one.
func (r *CompletionRepository) Insert(ctx context.Context, stat *models.ReviewCompletionStat) error {
	now := time.Now().UTC()
	stat.CreatedAt = now
	stat.UpdatedAt = now

	query := `
		INSERT INTO review_completion_stats (owner_id, stat_date, total_reviews, completed_reviews,
		                                     completion_rate, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	id, err := r.db.ExecReturningID(ctx, query,
		stat.OwnerID, stat.Date, stat.TotalReviews, stat.CompletedReviews, stat.CompletionRate,
		stat.CreatedAt, stat.UpdatedAt,
	)
	if err != nil {
		if r.db.GetDialect().IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert completion stat: %w", err)
	}

	stat.ID = id
	return nil
}

// Update stores the counters and rate of an existing stat
func (r *CompletionRepository) Update(ctx context.Context, stat *models.ReviewCompletionStat) error {
	stat.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE review_completion_stats
		SET total_reviews = ?, completed_reviews = ?, completion_rate = ?, updated_at = ?
		WHERE id = ?
	`

	if _, err := r.db.ExecContext(ctx, query,
		stat.TotalReviews, stat.CompletedReviews, stat.CompletionRate, stat.UpdatedAt, stat.ID,
	); err != nil {
		return fmt.Errorf("failed to update completion stat: %w", err)
	}
	return nil
}

// RecordCompletion counts one completed review for the owner's day, creating the stat
// row when it does not exist. The counter bump is a single upsert so concurrent
// completions on the same day never collide on the unique key.
func (r *CompletionRepository) RecordCompletion(ctx context.Context, ownerID, day string) (*models.ReviewCompletionStat, error) {
	now := time.Now().UTC()

	var conflict string
	switch r.db.GetDialect().Name() {
	case "mysql":
		conflict = `
		ON DUPLICATE KEY UPDATE
			total_reviews = total_reviews + 1,
			completed_reviews = completed_reviews + 1,
			updated_at = VALUES(updated_at)`
	default:
		conflict = `
		ON CONFLICT (owner_id, stat_date) DO UPDATE SET
			total_reviews = review_completion_stats.total_reviews + 1,
			completed_reviews = review_completion_stats.completed_reviews + 1,
			updated_at = excluded.updated_at`
	}

	query := `
		INSERT INTO review_completion_stats (owner_id, stat_date, total_reviews, completed_reviews,
		                                     completion_rate, created_at, updated_at)
		VALUES (?, ?, 1, 1, 100, ?, ?)` + conflict

	if _, err := r.db.ExecContext(ctx, query, ownerID, day, now, now); err != nil {
		return nil, fmt.Errorf("failed to record completion: %w", err)
	}

	stat, err := r.GetByDate(ctx, ownerID, day)
	if err != nil {
		return nil, err
	}
	if stat == nil {
		return nil, fmt.Errorf("completion stat for %s missing after upsert", day)
	}

	stat.Recompute()
	if err := r.Update(ctx, stat); err != nil {
		return nil, err
	}
	return stat, nil
}

// LatestSince returns the most recent stat dated on or after fromDay, or nil
func (r *CompletionRepository) LatestSince(ctx context.Context, ownerID, fromDay string) (*models.ReviewCompletionStat, error) {
	query := `
		SELECT ` + completionColumns + `
		FROM review_completion_stats
		WHERE owner_id = ? AND stat_date >= ?
		ORDER BY stat_date DESC
		LIMIT 1
	`

	stat, err := scanCompletionStat(r.db.QueryRowContext(ctx, query, ownerID, fromDay))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest completion stat: %w", err)
	}
	return stat, nil
}

// ListBetween returns stats dated in [fromDay, toDay], oldest first
func (r *CompletionRepository) ListBetween(ctx context.Context, ownerID, fromDay, toDay string) ([]*models.ReviewCompletionStat, error) {
	query := `
		SELECT ` + completionColumns + `
		FROM review_completion_stats
		WHERE owner_id = ? AND stat_date >= ? AND stat_date <= ?
		ORDER BY stat_date ASC
	`

	rows, err := r.db.QueryContext(ctx, query, ownerID, fromDay, toDay)
	if err != nil {
		return nil, fmt.Errorf("failed to list completion stats: %w", err)
	}
	defer rows.Close()

	stats := []*models.ReviewCompletionStat{}
	for rows.Next() {
		stat, err := scanCompletionStat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan completion stat: %w", err)
		}
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}

func scanCompletionStat(row rowScanner) (*models.ReviewCompletionStat, error) {
	stat := &models.ReviewCompletionStat{}
	err := row.Scan(
		&stat.ID,
		&stat.OwnerID,
		&stat.Date,
		&stat.TotalReviews,
		&stat.CompletedReviews,
		&stat.CompletionRate,
		&stat.CreatedAt,
		&stat.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	stat.CreatedAt = stat.CreatedAt.UTC()
	stat.UpdatedAt = stat.UpdatedAt.UTC()
	return stat, nil
}
