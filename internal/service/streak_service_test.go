package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medprep/internal/models"
	"medprep/internal/repository"
)

type streakFixture struct {
	svc        *StreakService
	clock      *fixedClock
	tests      *memorySource
	challenges *memorySource
}

func newStreakFixture(t *testing.T) *streakFixture {
	t.Helper()

	f := &streakFixture{
		clock:      &fixedClock{now: monday},
		tests:      newMemorySource(models.ActivityTest),
		challenges: newMemorySource(models.ActivityChallenge),
	}
	f.svc = NewStreakService(newTestDB(t), []ActivitySource{f.tests, f.challenges})
	f.svc.SetClock(f.clock.Now)
	return f
}

// activeOn runs the update-before-record contract for one day
func (f *streakFixture) activeOn(t *testing.T, at time.Time) StreakUpdate {
	t.Helper()
	f.clock.Set(at)
	update := f.svc.UpdateStreak(context.Background(), "owner-1", false)
	require.NoError(t, update.Err)
	f.tests.add("owner-1", at)
	return update
}

type stubGuard struct {
	acquired bool
	err      error

	mu       sync.Mutex
	released int
}

func (g *stubGuard) Acquire(context.Context, string, time.Time) (bool, error) {
	return g.acquired, g.err
}

func (g *stubGuard) Release(context.Context, string, time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.released++
	return nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	records []models.StreakRecord
	err     error
}

func (p *recordingPublisher) PublishStreakUpdated(_ context.Context, record *models.StreakRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, *record)
	return p.err
}

func TestUpdateStreakFirstActivity(t *testing.T) {
	f := newStreakFixture(t)

	update := f.activeOn(t, monday)
	assert.Equal(t, OutcomeUpdated, update.Outcome)
	require.NotNil(t, update.Record)
	assert.Equal(t, 1, update.Record.CurrentStreak)
	assert.Equal(t, 1, update.Record.LongestStreak)
	require.Len(t, update.Record.History, 1)
	assert.Equal(t, models.StartOfDay(monday), update.Record.History[0].Date)
	assert.Equal(t, models.StartOfDay(monday), *update.Record.LastActivityDate)
}

func TestUpdateStreakSkipsWhenActiveToday(t *testing.T) {
	f := newStreakFixture(t)
	ctx := context.Background()

	f.activeOn(t, monday)

	f.clock.Set(monday.Add(3 * time.Hour))
	update := f.svc.UpdateStreak(ctx, "owner-1", false)
	assert.Equal(t, OutcomeSkipped, update.Outcome)
	require.NotNil(t, update.Record)
	assert.Equal(t, 1, update.Record.CurrentStreak)
	assert.Len(t, update.Record.History, 1)
}

func TestUpdateStreakConsecutiveDaysAndGap(t *testing.T) {
	f := newStreakFixture(t)

	f.activeOn(t, monday)
	f.activeOn(t, monday.Add(models.Day))
	update := f.activeOn(t, monday.Add(2*models.Day))
	assert.Equal(t, 3, update.Record.CurrentStreak)
	assert.Equal(t, 3, update.Record.LongestStreak)

	// Thursday has no activity; Friday restarts the run
	update = f.activeOn(t, monday.Add(4*models.Day))
	assert.Equal(t, 1, update.Record.CurrentStreak)
	assert.Equal(t, 3, update.Record.LongestStreak)
	assert.Len(t, update.Record.History, 4)

	summary, err := f.svc.GetStreakData(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.CurrentStreak)
	assert.Equal(t, 3, summary.LongestStreak)
	assert.LessOrEqual(t, summary.CurrentStreak, summary.LongestStreak)
	assert.Len(t, summary.StreakHistory, 4)
}

func TestUpdateStreakUsesUTCDays(t *testing.T) {
	f := newStreakFixture(t)

	// 23:30 UTC and 00:30 UTC the next day are consecutive days
	f.activeOn(t, time.Date(2026, 10, 19, 23, 30, 0, 0, time.UTC))
	update := f.activeOn(t, time.Date(2026, 10, 20, 0, 30, 0, 0, time.UTC))
	assert.Equal(t, 2, update.Record.CurrentStreak)
}

func TestUpdateStreakForce(t *testing.T) {
	f := newStreakFixture(t)
	guard := &stubGuard{acquired: false}
	f.svc.SetGuard(guard)

	f.tests.add("owner-1", monday)

	update := f.svc.UpdateStreak(context.Background(), "owner-1", true)
	assert.Equal(t, OutcomeUpdated, update.Outcome)
	assert.Equal(t, 1, update.Record.CurrentStreak)
	assert.Equal(t, 0, guard.released, "forced updates do not take the guard")
}

func TestUpdateStreakGuard(t *testing.T) {
	tests := []struct {
		name        string
		guard       *stubGuard
		wantOutcome StreakOutcome
	}{
		{name: "lost race skips", guard: &stubGuard{acquired: false}, wantOutcome: OutcomeSkipped},
		{name: "acquired updates", guard: &stubGuard{acquired: true}, wantOutcome: OutcomeUpdated},
		{name: "guard error fails open", guard: &stubGuard{err: errors.New("redis down")}, wantOutcome: OutcomeUpdated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newStreakFixture(t)
			f.svc.SetGuard(tt.guard)

			update := f.svc.UpdateStreak(context.Background(), "owner-1", false)
			assert.Equal(t, tt.wantOutcome, update.Outcome)
			assert.NoError(t, update.Err)
			assert.Equal(t, 0, tt.guard.released)
		})
	}
}

func TestUpdateStreakSourceFailure(t *testing.T) {
	f := newStreakFixture(t)
	f.challenges.err = errors.New("collection unavailable")

	update := f.svc.UpdateStreak(context.Background(), "owner-1", false)
	assert.Equal(t, OutcomeFailed, update.Outcome)
	assert.Nil(t, update.Record)
	assert.Error(t, update.Err)

	record, err := f.svc.streakRepo.Get(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Nil(t, record, "nothing is written on failure")
}

func TestUpdateStreakReleasesGuardOnFailure(t *testing.T) {
	f := newStreakFixture(t)
	guard := &stubGuard{acquired: true}
	f.svc.SetGuard(guard)

	// Yesterday's window is the first to hit the failing source after the guard
	failing := &yesterdayFailingSource{memorySource: newMemorySource(models.ActivityDaily), today: models.StartOfDay(monday)}
	f.svc.sources = append(f.svc.sources, failing)

	update := f.svc.UpdateStreak(context.Background(), "owner-1", false)
	assert.Equal(t, OutcomeFailed, update.Outcome)
	assert.Equal(t, 1, guard.released)
}

type yesterdayFailingSource struct {
	*memorySource
	today time.Time
}

func (s *yesterdayFailingSource) Exists(ctx context.Context, ownerID string, from, to time.Time) (bool, error) {
	if from.Before(s.today) {
		return false, errors.New("timeout")
	}
	return s.memorySource.Exists(ctx, ownerID, from, to)
}

func TestUpdateStreakPublishes(t *testing.T) {
	f := newStreakFixture(t)
	publisher := &recordingPublisher{err: errors.New("broker closed")}
	f.svc.SetPublisher(publisher)

	update := f.activeOn(t, monday)
	assert.Equal(t, OutcomeUpdated, update.Outcome, "publish errors do not fail the update")
	require.Len(t, publisher.records, 1)
	assert.Equal(t, 1, publisher.records[0].CurrentStreak)

	f.clock.Set(monday.Add(time.Hour))
	f.svc.UpdateStreak(context.Background(), "owner-1", false)
	assert.Len(t, publisher.records, 1, "skipped updates are not published")
}

func TestUpdateStreakRequiresOwner(t *testing.T) {
	f := newStreakFixture(t)

	update := f.svc.UpdateStreak(context.Background(), "", false)
	assert.Equal(t, OutcomeFailed, update.Outcome)
	assert.ErrorIs(t, update.Err, ErrValidation)
}

func TestGetStreakDataDefaults(t *testing.T) {
	f := newStreakFixture(t)

	summary, err := f.svc.GetStreakData(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.CurrentStreak)
	assert.Equal(t, 0, summary.LongestStreak)
	assert.Nil(t, summary.LastActivityDate)
	assert.NotNil(t, summary.StreakHistory)
	assert.Empty(t, summary.StreakHistory)
}

func TestGetActivityData(t *testing.T) {
	f := newStreakFixture(t)
	ctx := context.Background()

	f.tests.add("owner-1", monday)
	f.tests.add("owner-1", monday.Add(-time.Hour))
	f.challenges.add("owner-1", monday.Add(-2*models.Day))
	f.challenges.add("owner-1", monday.Add(-10*models.Day))
	f.tests.add("owner-2", monday)

	days, err := f.svc.GetActivityData(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, days, 7)

	assert.Equal(t, "2026-10-13", days[0].Date)
	assert.Equal(t, 0, days[0].Count)
	assert.NotNil(t, days[0].Activities)

	assert.Equal(t, "2026-10-17", days[4].Date)
	assert.Equal(t, 1, days[4].Count)
	assert.Equal(t, 1, days[4].Activities[models.ActivityChallenge])

	assert.Equal(t, "2026-10-19", days[6].Date)
	assert.Equal(t, 2, days[6].Count)
	assert.Equal(t, map[models.ActivityKind]int{models.ActivityTest: 2}, days[6].Activities)
}

func TestGetActivityDataSourceFailure(t *testing.T) {
	f := newStreakFixture(t)
	f.tests.err = errors.New("boom")

	_, err := f.svc.GetActivityData(context.Background(), "owner-1")
	assert.Error(t, err)
}

func TestResetStreak(t *testing.T) {
	f := newStreakFixture(t)
	ctx := context.Background()
	publisher := &recordingPublisher{}
	f.svc.SetPublisher(publisher)

	f.clock.Set(monday.Add(5 * time.Hour))
	record, err := f.svc.ResetStreak(ctx, "owner-1", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, record.CurrentStreak)
	assert.Equal(t, 5, record.LongestStreak)
	assert.Equal(t, models.StartOfDay(monday), record.History[0].Date)

	record, err = f.svc.ResetStreak(ctx, "owner-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, record.CurrentStreak)
	assert.Equal(t, 5, record.LongestStreak)
	assert.Len(t, publisher.records, 2)

	_, err = f.svc.ResetStreak(ctx, "owner-1", -1)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDiagnose(t *testing.T) {
	f := newStreakFixture(t)
	ctx := context.Background()

	f.activeOn(t, monday.Add(-models.Day))
	f.clock.Set(monday)
	f.tests.add("owner-1", monday.Add(-time.Hour))
	f.challenges.err = errors.New("collection unavailable")

	diag, err := f.svc.Diagnose(ctx, "owner-1")
	require.NoError(t, err)

	assert.Equal(t, 1, diag.Streak.CurrentStreak)
	assert.Equal(t, models.StartOfDay(monday), diag.Today)
	assert.Equal(t, models.StartOfDay(monday).Add(-models.Day), diag.Yesterday)
	require.Len(t, diag.Sources, 2)

	assert.Equal(t, models.ActivityTest, diag.Sources[0].Kind)
	assert.Len(t, diag.Sources[0].Today, 1)
	assert.Len(t, diag.Sources[0].Yesterday, 1)
	assert.Empty(t, diag.Sources[0].Error)

	assert.Equal(t, models.ActivityChallenge, diag.Sources[1].Kind)
	assert.Contains(t, diag.Sources[1].Error, "collection unavailable")
}

func TestOverview(t *testing.T) {
	f := newStreakFixture(t)
	f.activeOn(t, monday)

	overview, err := f.svc.Overview(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 1, overview.Streak.CurrentStreak)
	assert.Len(t, overview.Activity, 7)
	assert.Equal(t, 1, overview.Activity[6].Count)
}

func TestUpdateStreakWithSQLSources(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	sqlSources := repository.NewSQLActivitySources(db)
	sources := make([]ActivitySource, len(sqlSources))
	for i, source := range sqlSources {
		sources[i] = source
	}

	clock := &fixedClock{now: monday}
	svc := NewStreakService(db, sources)
	svc.SetClock(clock.Now)

	update := svc.UpdateStreak(ctx, "owner-1", false)
	require.Equal(t, OutcomeUpdated, update.Outcome)
	_, err := sqlSources[0].Record(ctx, "owner-1", monday)
	require.NoError(t, err)

	clock.Set(monday.Add(models.Day))
	update = svc.UpdateStreak(ctx, "owner-1", false)
	require.Equal(t, OutcomeUpdated, update.Outcome)
	_, err = sqlSources[2].Record(ctx, "owner-1", monday.Add(models.Day))
	require.NoError(t, err)
	assert.Equal(t, 2, update.Record.CurrentStreak)

	update = svc.UpdateStreak(ctx, "owner-1", false)
	assert.Equal(t, OutcomeSkipped, update.Outcome)
	assert.Equal(t, 2, update.Record.CurrentStreak)
}

func TestUpdateStreakForCommittedRecord(t *testing.T) {
	f := newStreakFixture(t)
	ctx := context.Background()

	f.activeOn(t, monday.Add(-models.Day))

	f.clock.Set(monday)
	f.tests.add("owner-1", monday)

	plain := f.svc.UpdateStreak(ctx, "owner-1", false)
	assert.Equal(t, OutcomeSkipped, plain.Outcome, "the committed record counts as today's activity")

	trigger := ActivityRef{Kind: models.ActivityTest, ID: "a"}
	update := f.svc.UpdateStreakFor(ctx, "owner-1", trigger, false)
	require.NoError(t, update.Err)
	assert.Equal(t, OutcomeUpdated, update.Outcome)
	assert.Equal(t, 2, update.Record.CurrentStreak)

	f.challenges.add("owner-1", monday.Add(time.Hour))
	again := f.svc.UpdateStreakFor(ctx, "owner-1", trigger, false)
	assert.Equal(t, OutcomeSkipped, again.Outcome, "other activity today still makes it a no-op")
	assert.Equal(t, 2, again.Record.CurrentStreak)
}

func TestUpdateStreakForRequiresRecord(t *testing.T) {
	f := newStreakFixture(t)

	tests := []struct {
		name    string
		trigger ActivityRef
	}{
		{name: "unknown kind", trigger: ActivityRef{Kind: "forum", ID: "1"}},
		{name: "missing id", trigger: ActivityRef{Kind: models.ActivityDaily}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			update := f.svc.UpdateStreakFor(context.Background(), "owner-1", tt.trigger, false)
			assert.Equal(t, OutcomeFailed, update.Outcome)
			assert.ErrorIs(t, update.Err, ErrValidation)
		})
	}
}
