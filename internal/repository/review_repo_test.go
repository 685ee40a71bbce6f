package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medprep/internal/models"
)

func newPendingSession(owner string, at time.Time) *models.ReviewSession {
	return &models.ReviewSession{
		OwnerID:      owner,
		Title:        models.DefaultSessionTitle,
		Type:         models.CadenceDaily,
		Stage:        1,
		ScheduledFor: at,
		Status:       models.StatusPending,
		Items: []models.ReviewItem{
			{ItemID: "card-1", ItemType: "flashcard", Difficulty: 2},
			{ItemID: "q-1", ItemType: "question", Difficulty: 4},
		},
		Performance: models.Performance{TotalQuestions: 2},
	}
}

func TestReviewRepositoryCreateAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewReviewRepository(db)
	ctx := context.Background()
	at := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

	session := newPendingSession("owner-1", at)
	require.NoError(t, repo.CreateSession(ctx, session))
	require.NotZero(t, session.ID)

	got, err := repo.GetSession(ctx, session.ID, "owner-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, at, got.ScheduledFor)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Nil(t, got.CompletedAt)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "card-1", got.Items[0].ItemID)
	assert.Equal(t, 4, got.Items[1].Difficulty)

	other, err := repo.GetSession(ctx, session.ID, "owner-2")
	require.NoError(t, err)
	assert.Nil(t, other, "sessions are scoped to their owner")
}

func TestReviewRepositoryMarkCompletedOnlyOnce(t *testing.T) {
	db := newTestDB(t)
	repo := NewReviewRepository(db)
	ctx := context.Background()
	at := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

	session := newPendingSession("owner-1", at)
	require.NoError(t, repo.CreateSession(ctx, session))

	ok, err := repo.MarkCompleted(ctx, session.ID, models.Performance{CorrectAnswers: 1, TotalQuestions: 2}, at.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkCompleted(ctx, session.ID, models.Performance{CorrectAnswers: 2, TotalQuestions: 2}, at.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetSession(ctx, session.ID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, 1, got.Performance.CorrectAnswers)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, at.Add(time.Hour), *got.CompletedAt)
}

func TestReviewRepositoryListing(t *testing.T) {
	db := newTestDB(t)
	repo := NewReviewRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	for i := -2; i < 7; i++ {
		require.NoError(t, repo.CreateSession(ctx, newPendingSession("owner-1", now.Add(time.Duration(i)*time.Hour))))
	}
	require.NoError(t, repo.CreateSession(ctx, newPendingSession("owner-2", now.Add(time.Hour))))

	upcoming, err := repo.ListUpcoming(ctx, "owner-1", now, 5)
	require.NoError(t, err)
	require.Len(t, upcoming, 5)
	assert.Equal(t, now, upcoming[0].ScheduledFor)
	for i := 1; i < len(upcoming); i++ {
		assert.True(t, upcoming[i-1].ScheduledFor.Before(upcoming[i].ScheduledFor))
	}

	total, err := repo.CountSessions(ctx, "owner-1", "")
	require.NoError(t, err)
	assert.Equal(t, 9, total)

	pending, err := repo.ListPendingBetween(ctx, "owner-1", now, now.Add(2*time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	all, err := repo.ListSessions(ctx, "owner-1", "", 0)
	require.NoError(t, err)
	require.Len(t, all, 9)
	assert.Equal(t, now.Add(6*time.Hour), all[0].ScheduledFor)
}

func TestReviewRepositoryMarkMissed(t *testing.T) {
	db := newTestDB(t)
	repo := NewReviewRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	stale := newPendingSession("owner-1", now.Add(-48*time.Hour))
	fresh := newPendingSession("owner-1", now.Add(-time.Hour))
	require.NoError(t, repo.CreateSession(ctx, stale))
	require.NoError(t, repo.CreateSession(ctx, fresh))

	n, err := repo.MarkMissed(ctx, now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	missed, err := repo.CountSessions(ctx, "owner-1", models.StatusMissed)
	require.NoError(t, err)
	assert.Equal(t, 1, missed)
}

func TestReviewRepositoryUpdateScheduledFor(t *testing.T) {
	db := newTestDB(t)
	repo := NewReviewRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	session := newPendingSession("owner-1", now)
	require.NoError(t, repo.CreateSession(ctx, session))

	ok, err := repo.UpdateScheduledFor(ctx, session.ID, "owner-2", now.Add(time.Hour), now)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.UpdateScheduledFor(ctx, session.ID, "owner-1", now.Add(time.Hour), now)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetSession(ctx, session.ID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), got.ScheduledFor)
}
