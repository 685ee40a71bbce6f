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

// ReviewRepository handles review session database operations
type ReviewRepository struct {
	db database.DBTX
}

// NewReviewRepository creates a new review repository
func NewReviewRepository(db database.DBTX) *ReviewRepository {
	return &ReviewRepository{db: db}
}

const sessionColumns = `id, owner_id, title, type, stage, scheduled_for, completed_at, status,
		       correct_answers, total_questions, created_at, updated_at`

// CreateSession inserts a session and its items, filling in ID and timestamps
func (r *ReviewRepository) CreateSession(ctx context.Context, session *models.ReviewSession) error {
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = session.CreatedAt

	query := `
		INSERT INTO review_sessions (owner_id, title, type, stage, scheduled_for, completed_at, status,
		                             correct_answers, total_questions, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	id, err := r.db.ExecReturningID(ctx, query,
		session.OwnerID,
		session.Title,
		string(session.Type),
		session.Stage,
		session.ScheduledFor.UTC(),
		utcPtr(session.CompletedAt),
		string(session.Status),
		session.Performance.CorrectAnswers,
		session.Performance.TotalQuestions,
		session.CreatedAt.UTC(),
		session.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert review session: %w", err)
	}
	session.ID = id

	itemQuery := `
		INSERT INTO review_items (session_id, position, item_id, item_type, difficulty, last_reviewed)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	for position, item := range session.Items {
		if _, err := r.db.ExecContext(ctx, itemQuery,
			id, position, item.ItemID, item.ItemType, item.Difficulty, utcPtr(item.LastReviewed),
		); err != nil {
			return fmt.Errorf("failed to insert review item: %w", err)
		}
	}

	return nil
}

// GetSession retrieves a session owned by ownerID, or nil if there is none
func (r *ReviewRepository) GetSession(ctx context.Context, id int64, ownerID string) (*models.ReviewSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM review_sessions WHERE id = ? AND owner_id = ?`

	session, err := scanSession(r.db.QueryRowContext(ctx, query, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get review session: %w", err)
	}

	if err := r.attachItems(ctx, []*models.ReviewSession{session}); err != nil {
		return nil, err
	}
	return session, nil
}

// MarkCompleted moves a pending session to completed. It reports false when the
// session was no longer pending.
func (r *ReviewRepository) MarkCompleted(ctx context.Context, id int64, perf models.Performance, at time.Time) (bool, error) {
	query := `
		UPDATE review_sessions
		SET status = ?, completed_at = ?, correct_answers = ?, total_questions = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		string(models.StatusCompleted), at.UTC(), perf.CorrectAnswers, perf.TotalQuestions, at.UTC(),
		id, string(models.StatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("failed to complete review session: %w", err)
	}
	return affected(result)
}

// UpdateScheduledFor moves a session owned by ownerID to a new time
func (r *ReviewRepository) UpdateScheduledFor(ctx context.Context, id int64, ownerID string, scheduledFor, at time.Time) (bool, error) {
	query := `UPDATE review_sessions SET scheduled_for = ?, updated_at = ? WHERE id = ? AND owner_id = ?`

	result, err := r.db.ExecContext(ctx, query, scheduledFor.UTC(), at.UTC(), id, ownerID)
	if err != nil {
		return false, fmt.Errorf("failed to reschedule review session: %w", err)
	}
	return affected(result)
}

// CountSessions counts an owner's sessions, optionally restricted to one status
func (r *ReviewRepository) CountSessions(ctx context.Context, ownerID string, status models.ReviewStatus) (int, error) {
	query := `SELECT COUNT(*) FROM review_sessions WHERE owner_id = ?`
	args := []any{ownerID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count review sessions: %w", err)
	}
	return count, nil
}

// ListUpcoming returns pending sessions scheduled at or after from, soonest first
func (r *ReviewRepository) ListUpcoming(ctx context.Context, ownerID string, from time.Time, limit int) ([]*models.ReviewSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM review_sessions
		WHERE owner_id = ? AND status = ? AND scheduled_for >= ?
		ORDER BY scheduled_for ASC
		LIMIT ?
	`
	return r.list(ctx, query, ownerID, string(models.StatusPending), from.UTC(), limit)
}

// ListPendingBetween returns pending sessions scheduled in [from, to), soonest first
func (r *ReviewRepository) ListPendingBetween(ctx context.Context, ownerID string, from, to time.Time, limit int) ([]*models.ReviewSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM review_sessions
		WHERE owner_id = ? AND status = ? AND scheduled_for >= ? AND scheduled_for < ?
		ORDER BY scheduled_for ASC
		LIMIT ?
	`
	return r.list(ctx, query, ownerID, string(models.StatusPending), from.UTC(), to.UTC(), limit)
}

// ListSessions returns an owner's sessions newest first. An empty status lists
// all of them and a limit of 0 means no limit.
func (r *ReviewRepository) ListSessions(ctx context.Context, ownerID string, status models.ReviewStatus, limit int) ([]*models.ReviewSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM review_sessions WHERE owner_id = ?`
	args := []any{ownerID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY scheduled_for DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.list(ctx, query, args...)
}

// MarkMissed moves every pending session scheduled before cutoff to missed
func (r *ReviewRepository) MarkMissed(ctx context.Context, cutoff, at time.Time) (int64, error) {
	query := `UPDATE review_sessions SET status = ?, updated_at = ? WHERE status = ? AND scheduled_for < ?`

	result, err := r.db.ExecContext(ctx, query,
		string(models.StatusMissed), at.UTC(), string(models.StatusPending), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to mark missed review sessions: %w", err)
	}
	return result.RowsAffected()
}

func (r *ReviewRepository) list(ctx context.Context, query string, args ...any) ([]*models.ReviewSession, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list review sessions: %w", err)
	}

	sessions := []*models.ReviewSession{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan review session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// Items are loaded on the same connection inside a transaction, so the cursor must be closed first
	rows.Close()

	if err := r.attachItems(ctx, sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *ReviewRepository) attachItems(ctx context.Context, sessions []*models.ReviewSession) error {
	query := `
		SELECT item_id, item_type, difficulty, last_reviewed
		FROM review_items
		WHERE session_id = ?
		ORDER BY position ASC
	`

	for _, session := range sessions {
		rows, err := r.db.QueryContext(ctx, query, session.ID)
		if err != nil {
			return fmt.Errorf("failed to load review items: %w", err)
		}

		session.Items = []models.ReviewItem{}
		for rows.Next() {
			var item models.ReviewItem
			var lastReviewed sql.NullTime
			if err := rows.Scan(&item.ItemID, &item.ItemType, &item.Difficulty, &lastReviewed); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan review item: %w", err)
			}
			item.LastReviewed = nullTimePtr(lastReviewed)
			session.Items = append(session.Items, item)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func scanSession(row rowScanner) (*models.ReviewSession, error) {
	session := &models.ReviewSession{}
	var sessionType, status string
	var completedAt sql.NullTime

	err := row.Scan(
		&session.ID,
		&session.OwnerID,
		&session.Title,
		&sessionType,
		&session.Stage,
		&session.ScheduledFor,
		&completedAt,
		&status,
		&session.Performance.CorrectAnswers,
		&session.Performance.TotalQuestions,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	session.Type = models.Cadence(sessionType)
	session.Status = models.ReviewStatus(status)
	session.ScheduledFor = session.ScheduledFor.UTC()
	session.CreatedAt = session.CreatedAt.UTC()
	session.UpdatedAt = session.UpdatedAt.UTC()
	session.CompletedAt = nullTimePtr(completedAt)
	return session, nil
}

func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
