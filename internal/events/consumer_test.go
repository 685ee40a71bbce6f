package events

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medprep/internal/database"
	"medprep/internal/models"
	"medprep/internal/repository"
	"medprep/internal/service"
	"medprep/migrations"
)

type stubUpdater struct {
	outcome  service.StreakOutcome
	calls    []string
	forced   []bool
	triggers []service.ActivityRef
}

func (u *stubUpdater) UpdateStreakFor(ctx context.Context, ownerID string, trigger service.ActivityRef, force bool) service.StreakUpdate {
	u.triggers = append(u.triggers, trigger)
	return u.UpdateStreak(ctx, ownerID, force)
}

func (u *stubUpdater) UpdateStreak(_ context.Context, ownerID string, force bool) service.StreakUpdate {
	u.calls = append(u.calls, ownerID)
	u.forced = append(u.forced, force)
	if u.outcome == service.OutcomeFailed {
		return service.StreakUpdate{Outcome: service.OutcomeFailed, Err: errors.New("db locked")}
	}
	return service.StreakUpdate{Outcome: u.outcome, Record: models.NewStreakRecord(ownerID)}
}

func eventBody(t *testing.T, event ActivityRecordedEvent) []byte {
	t.Helper()
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return body
}

func TestHandle(t *testing.T) {
	valid := ActivityRecordedEvent{EventType: EventTypeActivityRecorded, OwnerID: "owner-1", Kind: models.ActivityTest}

	tests := []struct {
		name        string
		body        []byte
		outcome     service.StreakOutcome
		redelivered bool
		want        action
		wantCalls   int
	}{
		{name: "updated", body: eventBody(t, valid), outcome: service.OutcomeUpdated, want: actionAck, wantCalls: 1},
		{name: "skipped is acked", body: eventBody(t, valid), outcome: service.OutcomeSkipped, want: actionAck, wantCalls: 1},
		{name: "failure requeues", body: eventBody(t, valid), outcome: service.OutcomeFailed, want: actionRequeue, wantCalls: 1},
		{name: "failure on redelivery drops", body: eventBody(t, valid), outcome: service.OutcomeFailed, redelivered: true, want: actionDrop, wantCalls: 1},
		{name: "malformed json drops", body: []byte("{not json"), want: actionDrop},
		{name: "missing owner drops", body: eventBody(t, ActivityRecordedEvent{Kind: models.ActivityDaily}), want: actionDrop},
		{name: "record of unknown kind drops", body: eventBody(t, ActivityRecordedEvent{OwnerID: "owner-1", Kind: "forum", RecordID: "7"}), want: actionDrop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updater := &stubUpdater{outcome: tt.outcome}
			consumer := &EventConsumer{streaks: updater}

			got := consumer.handle(context.Background(), tt.body, tt.redelivered)
			assert.Equal(t, tt.want, got)
			assert.Len(t, updater.calls, tt.wantCalls)
		})
	}
}

func TestHandlePassesForce(t *testing.T) {
	updater := &stubUpdater{outcome: service.OutcomeUpdated}
	consumer := &EventConsumer{streaks: updater}

	body := eventBody(t, ActivityRecordedEvent{OwnerID: "owner-1", Force: true})
	consumer.handle(context.Background(), body, false)

	require.Len(t, updater.forced, 1)
	assert.True(t, updater.forced[0])
}

func TestHandleRoutesCommittedRecords(t *testing.T) {
	updater := &stubUpdater{outcome: service.OutcomeUpdated}
	consumer := &EventConsumer{streaks: updater}

	body := eventBody(t, ActivityRecordedEvent{OwnerID: "owner-1", Kind: models.ActivityChallenge, RecordID: "42"})
	assert.Equal(t, actionAck, consumer.handle(context.Background(), body, false))

	require.Len(t, updater.triggers, 1)
	assert.Equal(t, service.ActivityRef{Kind: models.ActivityChallenge, ID: "42"}, updater.triggers[0])

	body = eventBody(t, ActivityRecordedEvent{OwnerID: "owner-1", Kind: models.ActivityChallenge})
	consumer.handle(context.Background(), body, false)
	assert.Len(t, updater.triggers, 1, "events without a record id use the plain update")
	assert.Len(t, updater.calls, 2)
}

func TestHandleAdvancesStreakAfterCommit(t *testing.T) {
	db, err := database.Initialize(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.RunMigrations(migrations.FS))

	sqlSources := repository.NewSQLActivitySources(db)
	sources := make([]service.ActivitySource, 0, len(sqlSources))
	for _, source := range sqlSources {
		sources = append(sources, source)
	}
	tests := sqlSources[0]
	require.Equal(t, models.ActivityTest, tests.Kind())

	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	streaks := service.NewStreakService(db, sources)
	streaks.SetClock(func() time.Time { return now })
	consumer := &EventConsumer{streaks: streaks}
	ctx := context.Background()

	// committed before the event is handled
	deliver := func(at time.Time) action {
		id, err := tests.Record(ctx, "owner-1", at)
		require.NoError(t, err)
		body := eventBody(t, ActivityRecordedEvent{
			EventType: EventTypeActivityRecorded,
			OwnerID:   "owner-1",
			Kind:      models.ActivityTest,
			RecordID:  strconv.FormatInt(id, 10),
		})
		return consumer.handle(ctx, body, false)
	}

	assert.Equal(t, actionAck, deliver(now))
	summary, err := streaks.GetStreakData(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.CurrentStreak)

	now = now.Add(models.Day)
	assert.Equal(t, actionAck, deliver(now))
	summary, err = streaks.GetStreakData(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.CurrentStreak, "consecutive day advances")

	assert.Equal(t, actionAck, deliver(now.Add(time.Hour)))
	summary, err = streaks.GetStreakData(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.CurrentStreak, "second record of the day is a no-op")
	assert.Equal(t, 2, summary.LongestStreak)
}

func TestDisabledClients(t *testing.T) {
	publisher, err := NewEventPublisher("")
	require.NoError(t, err)
	assert.NoError(t, publisher.PublishStreakUpdated(context.Background(), models.NewStreakRecord("owner-1")))
	assert.NoError(t, publisher.Close())

	consumer, err := NewEventConsumer("", &stubUpdater{})
	require.NoError(t, err)
	assert.NoError(t, consumer.Start(context.Background()))
	assert.NoError(t, consumer.Close())
}

func TestNewStreakUpdatedEvent(t *testing.T) {
	day := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	record := &models.StreakRecord{OwnerID: "owner-1", CurrentStreak: 3, LongestStreak: 5, LastActivityDate: &day}

	event := NewStreakUpdatedEvent(record)
	assert.Equal(t, EventTypeStreakUpdated, event.EventType)
	assert.Equal(t, 3, event.CurrentStreak)
	assert.Equal(t, 5, event.LongestStreak)
	assert.Equal(t, &day, event.LastActivityDate)
	assert.NotZero(t, event.Timestamp)
}
