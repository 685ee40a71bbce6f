package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"medprep/internal/database"
	"medprep/internal/models"
)

// PreferencesRepository handles review preference database operations
type PreferencesRepository struct {
	db database.DBTX
}

// NewPreferencesRepository creates a new preferences repository
func NewPreferencesRepository(db database.DBTX) *PreferencesRepository {
	return &PreferencesRepository{db: db}
}

const preferenceColumns = `id, owner_id, preferred_time, preferred_days, max_reviews_per_day,
		       notifications_enabled, custom_intervals, stage1_hours, stage2_days, stage3_days,
		       contact_email, created_at, updated_at`

// Get retrieves an owner's preferences, or nil if none were stored yet
func (r *PreferencesRepository) Get(ctx context.Context, ownerID string) (*models.ReviewPreferences, error) {
	query := `SELECT ` + preferenceColumns + ` FROM review_preferences WHERE owner_id = ?`

	prefs, err := scanPreferences(r.db.QueryRowContext(ctx, query, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get review preferences: %w", err)
	}
	return prefs, nil
}

// Create inserts the owner's single preferences record. It returns ErrDuplicate
// if a record already exists.
func (r *PreferencesRepository) Create(ctx context.Context, prefs *models.ReviewPreferences) error {
	now := time.Now().UTC()
	prefs.CreatedAt = now
	prefs.UpdatedAt = now

	query := `
		INSERT INTO review_preferences (owner_id, preferred_time, preferred_days, max_reviews_per_day,
		                                notifications_enabled, custom_intervals, stage1_hours, stage2_days,
		                                stage3_days, contact_email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	id, err := r.db.ExecReturningID(ctx, query,
		prefs.OwnerID,
		prefs.PreferredTime,
		strings.Join(prefs.PreferredDays, ","),
		prefs.MaxReviewsPerDay,
		prefs.NotificationsEnabled,
		prefs.CustomIntervals,
		prefs.Intervals.Stage1Hours,
		prefs.Intervals.Stage2Days,
		prefs.Intervals.Stage3Days,
		prefs.ContactEmail,
		prefs.CreatedAt,
		prefs.UpdatedAt,
	)
	if err != nil {
		if r.db.GetDialect().IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create review preferences: %w", err)
	}

	prefs.ID = id
	return nil
}

// Update overwrites the owner's preferences
func (r *PreferencesRepository) Update(ctx context.Context, prefs *models.ReviewPreferences) error {
	prefs.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE review_preferences
		SET preferred_time = ?, preferred_days = ?, max_reviews_per_day = ?, notifications_enabled = ?,
		    custom_intervals = ?, stage1_hours = ?, stage2_days = ?, stage3_days = ?, contact_email = ?,
		    updated_at = ?
		WHERE owner_id = ?
	`

	_, err := r.db.ExecContext(ctx, query,
		prefs.PreferredTime,
		strings.Join(prefs.PreferredDays, ","),
		prefs.MaxReviewsPerDay,
		prefs.NotificationsEnabled,
		prefs.CustomIntervals,
		prefs.Intervals.Stage1Hours,
		prefs.Intervals.Stage2Days,
		prefs.Intervals.Stage3Days,
		prefs.ContactEmail,
		prefs.UpdatedAt,
		prefs.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("failed to update review preferences: %w", err)
	}
	return nil
}

// ListNotifiable returns the preferences of every owner who can receive reminders
func (r *PreferencesRepository) ListNotifiable(ctx context.Context) ([]*models.ReviewPreferences, error) {
	query := `
		SELECT ` + preferenceColumns + `
		FROM review_preferences
		WHERE notifications_enabled = ` + r.db.GetDialect().BoolValue(true) + ` AND contact_email <> ''
		ORDER BY owner_id ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifiable preferences: %w", err)
	}
	defer rows.Close()

	var result []*models.ReviewPreferences
	for rows.Next() {
		prefs, err := scanPreferences(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review preferences: %w", err)
		}
		result = append(result, prefs)
	}
	return result, rows.Err()
}

func scanPreferences(row rowScanner) (*models.ReviewPreferences, error) {
	prefs := &models.ReviewPreferences{}
	var days string

	err := row.Scan(
		&prefs.ID,
		&prefs.OwnerID,
		&prefs.PreferredTime,
		&days,
		&prefs.MaxReviewsPerDay,
		&prefs.NotificationsEnabled,
		&prefs.CustomIntervals,
		&prefs.Intervals.Stage1Hours,
		&prefs.Intervals.Stage2Days,
		&prefs.Intervals.Stage3Days,
		&prefs.ContactEmail,
		&prefs.CreatedAt,
		&prefs.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	prefs.PreferredDays = splitDays(days)
	prefs.CreatedAt = prefs.CreatedAt.UTC()
	prefs.UpdatedAt = prefs.UpdatedAt.UTC()
	return prefs, nil
}

func splitDays(days string) []string {
	result := []string{}
	for _, day := range strings.Split(days, ",") {
		if day = strings.TrimSpace(day); day != "" {
			result = append(result, day)
		}
	}
	return result
}
