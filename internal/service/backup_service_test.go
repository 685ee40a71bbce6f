package service

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medprep/internal/models"
)

func seedBackupOwner(t *testing.T, reviews *ReviewService, streaks *StreakService) {
	t.Helper()
	ctx := context.Background()

	_, err := reviews.UpdatePreferences(ctx, "owner-1", PreferencesPatch{PreferredDays: []string{"tuesday"}})
	require.NoError(t, err)

	session, err := reviews.StartSession(ctx, "owner-1", nil)
	require.NoError(t, err)
	_, err = reviews.CompleteSession(ctx, session.ID, "owner-1", models.Performance{CorrectAnswers: 2, TotalQuestions: 3})
	require.NoError(t, err)

	update := streaks.UpdateStreak(ctx, "owner-1", false)
	require.Equal(t, OutcomeUpdated, update.Outcome)
}

func TestBackupRoundTrip(t *testing.T) {
	ctx := context.Background()

	source := newTestDB(t)
	reviews := NewReviewService(source)
	reviews.SetClock(func() time.Time { return monday })
	streaks := NewStreakService(source, nil)
	streaks.SetClock(func() time.Time { return monday })
	seedBackupOwner(t, reviews, streaks)

	var buf bytes.Buffer
	require.NoError(t, NewBackupService(source).ExportToWriter(ctx, "owner-1", &buf))

	var exported OwnerBackup
	require.NoError(t, json.Unmarshal(buf.Bytes(), &exported))
	assert.Equal(t, "sqlite", exported.DatabaseType)
	assert.Len(t, exported.Sessions, 2)
	assert.Len(t, exported.CompletionStats, 1)
	require.NotNil(t, exported.Streak)

	target := newTestDB(t)
	backups := NewBackupService(target)
	summary, err := backups.ImportFromReader(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, &ImportSummary{Sessions: 2, CompletionStats: 1, Preferences: true, Streak: true}, summary)

	restored, err := backups.Collect(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"tuesday"}, restored.Preferences.PreferredDays)
	require.Len(t, restored.Sessions, 2)
	assert.Equal(t, exported.Sessions[0].Status, restored.Sessions[0].Status)
	assert.Equal(t, exported.Sessions[1].Performance, restored.Sessions[1].Performance)
	assert.Equal(t, 100.0, restored.CompletionStats[0].CompletionRate)
	assert.Equal(t, 1, restored.Streak.CurrentStreak)
	assert.Len(t, restored.Streak.History, 1)

	_, err = backups.ImportFromReader(ctx, bytes.NewReader(buf.Bytes()))
	assert.ErrorIs(t, err, ErrValidation, "an owner with data is not overwritten")
}

func TestBackupFileExportImport(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "owner.json")

	source := newTestDB(t)
	_, err := NewReviewService(source).StartSession(ctx, "owner-1", nil)
	require.NoError(t, err)
	require.NoError(t, NewBackupService(source).Export(ctx, "owner-1", path))

	summary, err := NewBackupService(newTestDB(t)).Import(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sessions)
	assert.False(t, summary.Preferences)
	assert.False(t, summary.Streak)
}

func TestBackupImportRejectsMissingOwner(t *testing.T) {
	_, err := NewBackupService(newTestDB(t)).ImportFromReader(context.Background(), bytes.NewReader([]byte(`{"version":"1.0"}`)))
	assert.ErrorIs(t, err, ErrValidation)
}
