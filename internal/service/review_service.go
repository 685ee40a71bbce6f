package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"medprep/internal/database"
	"medprep/internal/metrics"
	"medprep/internal/models"
	"medprep/internal/repository"
	"medprep/internal/validation"
)

const (
	// fallbackInterval is used for unknown stages and whenever preferences cannot be read
	fallbackInterval = 24 * time.Hour

	// missedAfter is how long a pending session may be overdue before it is marked missed
	missedAfter = 24 * time.Hour

	upcomingLimit = 5
)

// Schedule is the outcome of a next-review computation. Degraded is set when the
// preferred intervals could not be resolved and the fallback interval was used.
type Schedule struct {
	At       time.Time
	Degraded bool
	Err      error
}

// CompletionResult describes what completing a session produced
type CompletionResult struct {
	NextReviewDate time.Time             `json:"nextReviewDate"`
	PreviousStage  int                   `json:"previousStage"`
	NextStage      int                   `json:"nextStage"`
	NextSession    *models.ReviewSession `json:"nextSession"`
	Degraded       bool                  `json:"degraded"`
}

// DashboardSummary is the review dashboard read model
type DashboardSummary struct {
	CompletionRate   float64                 `json:"completionRate"`
	TotalReviews     int                     `json:"totalReviews"`
	CompletedReviews int                     `json:"completedReviews"`
	UpcomingReviews  []*models.ReviewSession `json:"upcomingReviews"`
}

// preferenceReader is the part of the preferences repository scheduling needs
type preferenceReader interface {
	Get(ctx context.Context, ownerID string) (*models.ReviewPreferences, error)
}

// ReviewService handles spaced-repetition scheduling and review session lifecycle
type ReviewService struct {
	db         *database.DB
	reviewRepo *repository.ReviewRepository
	prefsRepo  *repository.PreferencesRepository
	statsRepo  *repository.CompletionRepository
	now        func() time.Time
}

// NewReviewService creates a new review service
func NewReviewService(db *database.DB) *ReviewService {
	return &ReviewService{
		db:         db,
		reviewRepo: repository.NewReviewRepository(db),
		prefsRepo:  repository.NewPreferencesRepository(db),
		statsRepo:  repository.NewCompletionRepository(db),
		now:        time.Now,
	}
}

// SetClock replaces the time source
func (s *ReviewService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *ReviewService) clock() time.Time {
	return s.now().UTC()
}

// DifficultyModifier scales a base interval: 1.0 at difficulty 1 down to 0.6 at 5.
// Out-of-range difficulties are not clamped and follow the same line.
func DifficultyModifier(difficulty float64) float64 {
	return 1 - (difficulty-1)*0.1
}

// NextStage applies the promote/hold/demote thresholds to a correct rate
func NextStage(stage int, correctRate float64) int {
	switch {
	case correctRate >= 0.8:
		return min(stage+1, models.MaxStage)
	case correctRate >= 0.6:
		return stage
	default:
		return max(stage-1, models.MinStage)
	}
}

// AdjustedDifficulty raises difficulty after poor performance and lowers it after good performance
func AdjustedDifficulty(averageDifficulty, correctRate float64) float64 {
	return averageDifficulty * (1 - correctRate + 0.5)
}

// NextReviewAt adds the stage's base interval, scaled by the difficulty modifier, to from
func NextReviewAt(from time.Time, stage int, difficulty float64, intervals models.Intervals) time.Time {
	modifier := DifficultyModifier(difficulty)

	var base time.Duration
	switch stage {
	case 1:
		base = time.Duration(intervals.Stage1Hours) * time.Hour
	case 2:
		base = time.Duration(intervals.Stage2Days) * models.Day
	case 3:
		base = time.Duration(intervals.Stage3Days) * models.Day
	default:
		return from.Add(fallbackInterval)
	}
	return from.Add(time.Duration(float64(base) * modifier))
}

// ComputeNextReviewDate schedules the next review for a stage. It never fails:
// when preferences cannot be read the result is degraded to now plus 24 hours.
// A nil custom uses the owner's stored intervals if enabled, otherwise the defaults.
func (s *ReviewService) ComputeNextReviewDate(ctx context.Context, ownerID string, stage int, difficulty float64, custom *models.Intervals) Schedule {
	return s.schedule(ctx, s.prefsRepo, ownerID, stage, difficulty, custom)
}

func (s *ReviewService) schedule(ctx context.Context, prefs preferenceReader, ownerID string, stage int, difficulty float64, custom *models.Intervals) Schedule {
	now := s.clock()

	intervals, err := resolveIntervals(ctx, prefs, ownerID, custom)
	if err != nil {
		slog.Warn("falling back to default review interval", "owner_id", ownerID, "stage", stage, "error", err)
		metrics.ScheduleFallbacks.Inc()
		return Schedule{At: now.Add(fallbackInterval), Degraded: true, Err: err}
	}

	return Schedule{At: NextReviewAt(now, stage, difficulty, intervals)}
}

func resolveIntervals(ctx context.Context, prefs preferenceReader, ownerID string, custom *models.Intervals) (models.Intervals, error) {
	if custom != nil {
		return *custom, nil
	}

	stored, err := prefs.Get(ctx, ownerID)
	if err != nil {
		return models.Intervals{}, err
	}
	if stored != nil && stored.CustomIntervals {
		return stored.Intervals, nil
	}
	return models.DefaultIntervals(), nil
}

// CompleteSession records the performance of a pending session, creates the next
// session at the adjusted stage and counts the completion in today's stats.
// All writes happen in one transaction.
func (s *ReviewService) CompleteSession(ctx context.Context, sessionID int64, ownerID string, perf models.Performance) (*CompletionResult, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	if err := perf.Validate(); err != nil {
		return nil, invalid(err)
	}

	now := s.clock()
	var result *CompletionResult

	err := s.db.WithTx(ctx, func(tx database.DBTX) error {
		reviews := repository.NewReviewRepository(tx)
		stats := repository.NewCompletionRepository(tx)

		session, err := reviews.GetSession(ctx, sessionID, ownerID)
		if err != nil {
			return err
		}
		if session == nil || session.Status != models.StatusPending {
			return ErrNotFound
		}

		completed, err := reviews.MarkCompleted(ctx, session.ID, perf, now)
		if err != nil {
			return err
		}
		if !completed {
			return ErrNotFound
		}

		rate := perf.CorrectRate()
		nextStage := NextStage(session.Stage, rate)
		difficulty := AdjustedDifficulty(session.AverageDifficulty(), rate)
		schedule := s.schedule(ctx, repository.NewPreferencesRepository(tx), ownerID, nextStage, difficulty, nil)

		items := make([]models.ReviewItem, len(session.Items))
		for i, item := range session.Items {
			reviewed := now
			item.LastReviewed = &reviewed
			items[i] = item
		}

		next := &models.ReviewSession{
			OwnerID:      ownerID,
			Title:        models.StageTitle(nextStage),
			Type:         models.CadenceForStage(nextStage),
			Stage:        nextStage,
			ScheduledFor: schedule.At,
			Status:       models.StatusPending,
			Items:        items,
			CreatedAt:    now,
		}
		if err := reviews.CreateSession(ctx, next); err != nil {
			return err
		}

		if err := recordCompletion(ctx, stats, ownerID, models.DayKey(now)); err != nil {
			return err
		}

		result = &CompletionResult{
			NextReviewDate: schedule.At,
			PreviousStage:  session.Stage,
			NextStage:      nextStage,
			NextSession:    next,
			Degraded:       schedule.Degraded,
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Error("failed to complete review session", "owner_id", ownerID, "session_id", sessionID, "error", err)
		}
		return nil, err
	}

	metrics.ReviewCompletions.WithLabelValues(transition(result.PreviousStage, result.NextStage)).Inc()
	slog.Info("review session completed",
		"owner_id", ownerID,
		"session_id", sessionID,
		"next_stage", result.NextStage,
		"next_review", result.NextReviewDate,
	)
	return result, nil
}

func recordCompletion(ctx context.Context, stats *repository.CompletionRepository, ownerID, day string) error {
	_, err := stats.RecordCompletion(ctx, ownerID, day)
	return err
}

func transition(from, to int) string {
	switch {
	case to > from:
		return "promoted"
	case to < from:
		return "demoted"
	default:
		return "held"
	}
}

// RescheduleSession moves one of the owner's sessions to a new time
func (s *ReviewService) RescheduleSession(ctx context.Context, sessionID int64, ownerID string, scheduledFor time.Time) (*models.ReviewSession, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	if scheduledFor.IsZero() {
		return nil, invalid(validation.Error{Field: "scheduledFor", Message: "scheduledFor is required"})
	}

	updated, err := s.reviewRepo.UpdateScheduledFor(ctx, sessionID, ownerID, scheduledFor, s.clock())
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, ErrNotFound
	}

	session, err := s.reviewRepo.GetSession(ctx, sessionID, ownerID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNotFound
	}
	return session, nil
}

// StartSession creates a pending stage-1 session scheduled now. Without items,
// three placeholder items are generated.
func (s *ReviewService) StartSession(ctx context.Context, ownerID string, items []models.ReviewItem) (*models.ReviewSession, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}

	if len(items) == 0 {
		items = []models.ReviewItem{
			{ItemID: models.NewItemID(), ItemType: "flashcard", Difficulty: 3},
			{ItemID: models.NewItemID(), ItemType: "question", Difficulty: 2},
			{ItemID: models.NewItemID(), ItemType: "case_study", Difficulty: 4},
		}
	}

	now := s.clock()
	session := &models.ReviewSession{
		OwnerID:      ownerID,
		Title:        models.DefaultSessionTitle,
		Type:         models.CadenceDaily,
		Stage:        models.MinStage,
		ScheduledFor: now,
		Status:       models.StatusPending,
		Items:        items,
		Performance:  models.Performance{TotalQuestions: len(items)},
		CreatedAt:    now,
	}
	if err := session.Validate(); err != nil {
		return nil, invalid(err)
	}

	if err := s.reviewRepo.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// ListSessions returns the owner's sessions newest first, optionally filtered by status
func (s *ReviewService) ListSessions(ctx context.Context, ownerID string, status models.ReviewStatus, limit int) ([]*models.ReviewSession, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	if status != "" && !status.Valid() {
		return nil, invalid(validation.Error{Field: "status", Message: fmt.Sprintf("unknown status %q", status)})
	}
	return s.reviewRepo.ListSessions(ctx, ownerID, status, limit)
}

// MarkMissed sweeps pending sessions overdue by more than a day to missed
func (s *ReviewService) MarkMissed(ctx context.Context) (int64, error) {
	now := s.clock()
	n, err := s.reviewRepo.MarkMissed(ctx, now.Add(-missedAfter), now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.MissedSessions.Add(float64(n))
		slog.Info("marked overdue review sessions as missed", "count", n)
	}
	return n, nil
}

// GetDashboardSummary returns the latest completion rate of the last week, session
// totals and the next five pending sessions
func (s *ReviewService) GetDashboardSummary(ctx context.Context, ownerID string) (*DashboardSummary, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}

	now := s.clock()
	weekAgo := models.StartOfDay(now).AddDate(0, 0, -7)

	latest, err := s.statsRepo.LatestSince(ctx, ownerID, models.DayKey(weekAgo))
	if err != nil {
		return nil, err
	}

	total, err := s.reviewRepo.CountSessions(ctx, ownerID, "")
	if err != nil {
		return nil, err
	}
	completed, err := s.reviewRepo.CountSessions(ctx, ownerID, models.StatusCompleted)
	if err != nil {
		return nil, err
	}

	upcoming, err := s.reviewRepo.ListUpcoming(ctx, ownerID, now, upcomingLimit)
	if err != nil {
		return nil, err
	}

	summary := &DashboardSummary{
		TotalReviews:     total,
		CompletedReviews: completed,
		UpcomingReviews:  upcoming,
	}
	if latest != nil {
		summary.CompletionRate = latest.CompletionRate
	}
	return summary, nil
}

// GetPreferences returns the owner's preferences, creating the defaults on first read
func (s *ReviewService) GetPreferences(ctx context.Context, ownerID string) (*models.ReviewPreferences, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}

	prefs, err := s.prefsRepo.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if prefs != nil {
		return prefs, nil
	}

	prefs = models.DefaultPreferences(ownerID)
	if err := s.prefsRepo.Create(ctx, prefs); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, err
		}
		// Another request created it first
		return s.prefsRepo.Get(ctx, ownerID)
	}
	return prefs, nil
}

// PreferencesPatch is a partial preferences update; nil fields are left unchanged
type PreferencesPatch struct {
	PreferredTime        *string           `json:"preferredTime"`
	PreferredDays        []string          `json:"preferredDays"`
	MaxReviewsPerDay     *int              `json:"maxReviewsPerDay"`
	NotificationsEnabled *bool             `json:"notificationsEnabled"`
	CustomIntervals      *bool             `json:"customIntervals"`
	Intervals            *models.Intervals `json:"intervals"`
	ContactEmail         *string           `json:"contactEmail"`
}

// Apply copies the set fields onto prefs
func (p PreferencesPatch) Apply(prefs *models.ReviewPreferences) {
	if p.PreferredTime != nil {
		prefs.PreferredTime = *p.PreferredTime
	}
	if p.PreferredDays != nil {
		prefs.PreferredDays = p.PreferredDays
	}
	if p.MaxReviewsPerDay != nil {
		prefs.MaxReviewsPerDay = *p.MaxReviewsPerDay
	}
	if p.NotificationsEnabled != nil {
		prefs.NotificationsEnabled = *p.NotificationsEnabled
	}
	if p.CustomIntervals != nil {
		prefs.CustomIntervals = *p.CustomIntervals
	}
	if p.Intervals != nil {
		prefs.Intervals = *p.Intervals
	}
	if p.ContactEmail != nil {
		prefs.ContactEmail = *p.ContactEmail
	}
}

// UpdatePreferences validates and stores a partial update, creating the record if needed
func (s *ReviewService) UpdatePreferences(ctx context.Context, ownerID string, patch PreferencesPatch) (*models.ReviewPreferences, error) {
	prefs, err := s.GetPreferences(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	patch.Apply(prefs)
	if err := prefs.Validate(); err != nil {
		return nil, invalid(err)
	}

	if err := s.prefsRepo.Update(ctx, prefs); err != nil {
		return nil, err
	}
	return prefs, nil
}
