package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"medprep/internal/database"
	"medprep/internal/metrics"
	"medprep/internal/models"
	"medprep/internal/repository"
	"medprep/internal/validation"
)

const activityWindowDays = 7

// ActivitySource answers whether and how often an owner was active in a time window.
// Windows are half-open: [from, to).
type ActivitySource interface {
	Kind() models.ActivityKind
	Exists(ctx context.Context, ownerID string, from, to time.Time) (bool, error)
	CountByDay(ctx context.Context, ownerID string, from, to time.Time) ([]models.DayCount, error)
	List(ctx context.Context, ownerID string, from, to time.Time) ([]models.ActivityRecord, error)
}

// DayGuard lets only the first caller per owner and UTC day proceed
type DayGuard interface {
	Acquire(ctx context.Context, ownerID string, day time.Time) (bool, error)
	Release(ctx context.Context, ownerID string, day time.Time) error
}

// StreakPublisher announces persisted streak changes
type StreakPublisher interface {
	PublishStreakUpdated(ctx context.Context, record *models.StreakRecord) error
}

// StreakOutcome says what an UpdateStreak call did
type StreakOutcome string

const (
	OutcomeUpdated StreakOutcome = "updated"
	OutcomeSkipped StreakOutcome = "skipped"
	OutcomeFailed  StreakOutcome = "failed"
)

// StreakUpdate is the result of UpdateStreak. Record is nil when Outcome is failed.
type StreakUpdate struct {
	Record  *models.StreakRecord
	Outcome StreakOutcome
	Err     error
}

// ActivityRef identifies one committed activity record
type ActivityRef struct {
	Kind models.ActivityKind
	ID   string
}

// Validate requires a known kind and a record id
func (r ActivityRef) Validate() error {
	if !r.Kind.Valid() {
		return validation.Error{Field: "kind", Message: "unknown activity kind"}
	}
	return validation.ValidateRequired("recordId", r.ID)
}

// StreakService maintains per-owner consecutive-day activity streaks
type StreakService struct {
	db         *database.DB
	streakRepo *repository.StreakRepository
	sources    []ActivitySource
	guard      DayGuard
	publisher  StreakPublisher
	now        func() time.Time
}

// NewStreakService creates a new streak service reading activity from sources
func NewStreakService(db *database.DB, sources []ActivitySource) *StreakService {
	return &StreakService{
		db:         db,
		streakRepo: repository.NewStreakRepository(db),
		sources:    sources,
		now:        time.Now,
	}
}

// SetGuard enables the per-owner-per-day guard for unforced updates
func (s *StreakService) SetGuard(guard DayGuard) {
	s.guard = guard
}

// SetPublisher sets where streak.updated events go
func (s *StreakService) SetPublisher(publisher StreakPublisher) {
	s.publisher = publisher
}

// SetClock replaces the time source
func (s *StreakService) SetClock(now func() time.Time) {
	s.now = now
}

// UpdateStreak applies today's qualifying activity to the owner's streak.
//
// Unless forced, the call is a no-op when any source already holds a record from
// today, so it must run before the triggering record is committed; UpdateStreakFor
// covers records that are already committed. Otherwise the streak grows by one when
// yesterday had activity and restarts at 1 when it did not.
// Errors never propagate: they are logged and reported as OutcomeFailed.
func (s *StreakService) UpdateStreak(ctx context.Context, ownerID string, force bool) StreakUpdate {
	return s.update(ctx, ownerID, nil, force)
}

// UpdateStreakFor is UpdateStreak for activity that is already committed. The today
// check ignores the triggering record, so the update still applies when the record is
// visible by the time the call runs. Any other record from today still makes it a no-op.
func (s *StreakService) UpdateStreakFor(ctx context.Context, ownerID string, trigger ActivityRef, force bool) StreakUpdate {
	if err := trigger.Validate(); err != nil {
		return s.failed(ownerID, invalid(err))
	}
	return s.update(ctx, ownerID, &trigger, force)
}

func (s *StreakService) update(ctx context.Context, ownerID string, trigger *ActivityRef, force bool) StreakUpdate {
	if err := requireOwner(ownerID); err != nil {
		return s.failed(ownerID, err)
	}

	today := models.StartOfDay(s.now())
	tomorrow := today.Add(models.Day)
	yesterday := today.Add(-models.Day)

	guarded := false
	if !force {
		active, err := s.anyActivity(ctx, ownerID, today, tomorrow, trigger)
		if err != nil {
			return s.failed(ownerID, err)
		}
		if active {
			return s.skipped(ctx, ownerID)
		}

		if s.guard != nil {
			acquired, err := s.guard.Acquire(ctx, ownerID, today)
			switch {
			case err != nil:
				slog.Warn("streak guard unavailable, continuing unguarded", "owner_id", ownerID, "error", err)
			case !acquired:
				return s.skipped(ctx, ownerID)
			default:
				guarded = true
			}
		}
	}

	release := func() {
		if guarded {
			if err := s.guard.Release(ctx, ownerID, today); err != nil {
				slog.Warn("failed to release streak guard", "owner_id", ownerID, "error", err)
			}
		}
	}

	continued, err := s.anyActivity(ctx, ownerID, yesterday, today, nil)
	if err != nil {
		release()
		return s.failed(ownerID, err)
	}

	var record *models.StreakRecord
	err = s.db.WithTx(ctx, func(tx database.DBTX) error {
		repo := repository.NewStreakRepository(tx)

		current, err := repo.Get(ctx, ownerID)
		if err != nil {
			return err
		}
		if current == nil {
			current = models.NewStreakRecord(ownerID)
		}

		entry := current.Advance(today, continued)
		if err := repo.Save(ctx, current, entry); err != nil {
			return err
		}
		record = current
		return nil
	})
	if err != nil {
		release()
		return s.failed(ownerID, err)
	}

	metrics.StreakUpdates.WithLabelValues(string(OutcomeUpdated)).Inc()
	slog.Info("streak updated",
		"owner_id", ownerID,
		"current_streak", record.CurrentStreak,
		"longest_streak", record.LongestStreak,
		"continued", continued,
		"forced", force,
	)
	s.publish(ctx, record)

	return StreakUpdate{Record: record, Outcome: OutcomeUpdated}
}

func (s *StreakService) skipped(ctx context.Context, ownerID string) StreakUpdate {
	record, err := s.streakRepo.Get(ctx, ownerID)
	if err != nil {
		return s.failed(ownerID, err)
	}
	if record == nil {
		record = models.NewStreakRecord(ownerID)
	}

	metrics.StreakUpdates.WithLabelValues(string(OutcomeSkipped)).Inc()
	slog.Debug("activity already recorded today, streak unchanged", "owner_id", ownerID)
	return StreakUpdate{Record: record, Outcome: OutcomeSkipped}
}

func (s *StreakService) failed(ownerID string, err error) StreakUpdate {
	metrics.StreakUpdates.WithLabelValues(string(OutcomeFailed)).Inc()
	slog.Error("failed to update streak", "owner_id", ownerID, "error", err)
	return StreakUpdate{Outcome: OutcomeFailed, Err: err}
}

func (s *StreakService) publish(ctx context.Context, record *models.StreakRecord) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishStreakUpdated(ctx, record); err != nil {
		slog.Warn("failed to publish streak update", "owner_id", record.OwnerID, "error", err)
	}
}

// anyActivity asks every source concurrently whether the owner was active in [from, to).
// A non-nil exclude is not counted.
func (s *StreakService) anyActivity(ctx context.Context, ownerID string, from, to time.Time, exclude *ActivityRef) (bool, error) {
	found := make([]bool, len(s.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, source := range s.sources {
		g.Go(func() error {
			if exclude != nil && source.Kind() == exclude.Kind {
				ok, err := hasOtherRecord(gctx, source, ownerID, from, to, exclude.ID)
				if err != nil {
					return err
				}
				found[i] = ok
				return nil
			}
			ok, err := source.Exists(gctx, ownerID, from, to)
			if err != nil {
				return err
			}
			found[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	for _, ok := range found {
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func hasOtherRecord(ctx context.Context, source ActivitySource, ownerID string, from, to time.Time, id string) (bool, error) {
	records, err := source.List(ctx, ownerID, from, to)
	if err != nil {
		return false, err
	}
	for _, record := range records {
		if record.ID != id {
			return true, nil
		}
	}
	return false, nil
}

// GetStreakData returns the owner's streak, all zeros when none exists yet
func (s *StreakService) GetStreakData(ctx context.Context, ownerID string) (models.StreakSummary, error) {
	if err := requireOwner(ownerID); err != nil {
		return models.StreakSummary{}, err
	}

	record, err := s.streakRepo.Get(ctx, ownerID)
	if err != nil {
		return models.StreakSummary{}, err
	}
	if record == nil {
		record = models.NewStreakRecord(ownerID)
	}
	return record.Summary(), nil
}

// GetActivityData counts the owner's activity per source for each of the last 7 UTC days,
// oldest first. Days without activity are included with a zero count.
func (s *StreakService) GetActivityData(ctx context.Context, ownerID string) ([]models.ActivityDay, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}

	today := models.StartOfDay(s.now())
	from := today.AddDate(0, 0, -(activityWindowDays - 1))
	to := today.Add(models.Day)

	counts := make([][]models.DayCount, len(s.sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, source := range s.sources {
		g.Go(func() error {
			result, err := source.CountByDay(gctx, ownerID, from, to)
			if err != nil {
				return err
			}
			counts[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	days := make([]models.ActivityDay, activityWindowDays)
	index := make(map[string]int, activityWindowDays)
	for i := range days {
		key := models.DayKey(from.AddDate(0, 0, i))
		days[i] = models.ActivityDay{Date: key, Activities: map[models.ActivityKind]int{}}
		index[key] = i
	}

	for i, source := range s.sources {
		for _, dc := range counts[i] {
			pos, ok := index[dc.Day]
			if !ok {
				continue
			}
			days[pos].Count += dc.Count
			days[pos].Activities[source.Kind()] += dc.Count
		}
	}
	return days, nil
}

// ResetStreak force-sets the current streak without looking at activity
func (s *StreakService) ResetStreak(ctx context.Context, ownerID string, startValue int) (*models.StreakRecord, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	if err := validation.ValidateMin("startValue", startValue, 0); err != nil {
		return nil, invalid(err)
	}

	now := s.now()
	var record *models.StreakRecord
	err := s.db.WithTx(ctx, func(tx database.DBTX) error {
		repo := repository.NewStreakRepository(tx)

		current, err := repo.Get(ctx, ownerID)
		if err != nil {
			return err
		}
		if current == nil {
			current = models.NewStreakRecord(ownerID)
		}

		entry := current.Reset(startValue, now)
		if err := repo.Save(ctx, current, entry); err != nil {
			return err
		}
		record = current
		return nil
	})
	if err != nil {
		slog.Error("failed to reset streak", "owner_id", ownerID, "error", err)
		return nil, err
	}

	slog.Info("streak reset", "owner_id", ownerID, "start_value", startValue)
	s.publish(ctx, record)
	return record, nil
}

// SourceDiagnostic lists one source's records in the today and yesterday windows
type SourceDiagnostic struct {
	Kind      models.ActivityKind     `json:"kind"`
	Today     []models.ActivityRecord `json:"today"`
	Yesterday []models.ActivityRecord `json:"yesterday"`
	Error     string                  `json:"error,omitempty"`
}

// StreakDiagnostic explains what UpdateStreak would see right now
type StreakDiagnostic struct {
	Streak    models.StreakSummary `json:"streak"`
	Now       time.Time            `json:"now"`
	Today     time.Time            `json:"today"`
	Yesterday time.Time            `json:"yesterday"`
	Sources   []SourceDiagnostic   `json:"sources"`
}

// Diagnose reports the owner's streak, the UTC day windows and the records each source
// holds inside them. A failing source is reported in place rather than failing the call.
func (s *StreakService) Diagnose(ctx context.Context, ownerID string) (*StreakDiagnostic, error) {
	summary, err := s.GetStreakData(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	today := models.StartOfDay(now)
	yesterday := today.Add(-models.Day)

	sources := make([]SourceDiagnostic, len(s.sources))
	var wg sync.WaitGroup
	for i, source := range s.sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			diag := SourceDiagnostic{Kind: source.Kind()}

			todayRecords, todayErr := source.List(ctx, ownerID, today, today.Add(models.Day))
			yesterdayRecords, yesterdayErr := source.List(ctx, ownerID, yesterday, today)
			if err := errors.Join(todayErr, yesterdayErr); err != nil {
				diag.Error = err.Error()
			}
			diag.Today = todayRecords
			diag.Yesterday = yesterdayRecords
			sources[i] = diag
		}()
	}
	wg.Wait()

	return &StreakDiagnostic{
		Streak:    summary,
		Now:       now,
		Today:     today,
		Yesterday: yesterday,
		Sources:   sources,
	}, nil
}

// StreakOverview combines the streak and the 7-day activity calendar
type StreakOverview struct {
	Streak   models.StreakSummary `json:"streak"`
	Activity []models.ActivityDay `json:"activity"`
}

// Overview loads the streak and the activity calendar concurrently
func (s *StreakService) Overview(ctx context.Context, ownerID string) (*StreakOverview, error) {
	var overview StreakOverview

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		summary, err := s.GetStreakData(gctx, ownerID)
		overview.Streak = summary
		return err
	})
	g.Go(func() error {
		activity, err := s.GetActivityData(gctx, ownerID)
		overview.Activity = activity
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &overview, nil
}
