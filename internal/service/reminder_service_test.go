package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medprep/internal/models"
	"medprep/internal/repository"
)

type recordingSender struct {
	sent map[string]int
	err  error
}

func (s *recordingSender) SendReviewReminder(_ context.Context, toEmail string, sessions []*models.ReviewSession) error {
	if s.err != nil {
		return s.err
	}
	if s.sent == nil {
		s.sent = make(map[string]int)
	}
	s.sent[toEmail] += len(sessions)
	return nil
}

func seedReminderOwner(t *testing.T, prefsRepo *repository.PreferencesRepository, reviewRepo *repository.ReviewRepository, owner, email, at string, due ...time.Time) {
	t.Helper()
	ctx := context.Background()

	prefs := models.DefaultPreferences(owner)
	prefs.ContactEmail = email
	prefs.PreferredTime = at
	prefs.MaxReviewsPerDay = 2
	require.NoError(t, prefsRepo.Create(ctx, prefs))

	for _, scheduled := range due {
		require.NoError(t, reviewRepo.CreateSession(ctx, &models.ReviewSession{
			OwnerID:      owner,
			Title:        models.DefaultSessionTitle,
			Type:         models.CadenceDaily,
			Stage:        1,
			ScheduledFor: scheduled,
			Status:       models.StatusPending,
			Items:        []models.ReviewItem{{ItemID: "f-1", ItemType: "flashcard", Difficulty: 3}},
		}))
	}
}

func TestReminderRunOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	prefsRepo := repository.NewPreferencesRepository(db)
	reviewRepo := repository.NewReviewRepository(db)

	seedReminderOwner(t, prefsRepo, reviewRepo, "due", "due@example.com", "12:00",
		monday.Add(30*time.Minute), monday.Add(time.Hour), monday.Add(90*time.Minute))
	seedReminderOwner(t, prefsRepo, reviewRepo, "wrong-hour", "late@example.com", "18:00", monday.Add(time.Hour))
	seedReminderOwner(t, prefsRepo, reviewRepo, "nothing-due", "idle@example.com", "12:00", monday.Add(5*time.Hour))
	seedReminderOwner(t, prefsRepo, reviewRepo, "no-email", "", "12:00", monday.Add(time.Hour))

	sender := &recordingSender{}
	svc := NewReminderService(prefsRepo, reviewRepo, sender, 2*time.Hour)

	sent, err := svc.RunOnce(ctx, monday.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, map[string]int{"due@example.com": 2}, sender.sent, "capped at maxReviewsPerDay")

	sent, err = svc.RunOnce(ctx, monday.Add(20*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, sent, "one reminder per owner per day")

	sent, err = svc.RunOnce(ctx, monday.Add(models.Day))
	require.NoError(t, err)
	assert.Equal(t, 0, sent, "tuesday is not a preferred day")
}

func TestReminderSendFailureIsRetried(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	prefsRepo := repository.NewPreferencesRepository(db)
	reviewRepo := repository.NewReviewRepository(db)
	seedReminderOwner(t, prefsRepo, reviewRepo, "owner-1", "owner@example.com", "12:00", monday.Add(time.Hour))

	sender := &recordingSender{err: errors.New("throttled")}
	svc := NewReminderService(prefsRepo, reviewRepo, sender, 2*time.Hour)

	sent, err := svc.RunOnce(ctx, monday)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	sender.err = nil
	sent, err = svc.RunOnce(ctx, monday.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestDueForReminder(t *testing.T) {
	prefs := models.DefaultPreferences("owner-1")
	prefs.ContactEmail = "owner@example.com"

	assert.False(t, dueForReminder(prefs, monday), "09:00 preferred, 12:00 now")
	assert.True(t, dueForReminder(prefs, time.Date(2026, 10, 19, 9, 45, 0, 0, time.UTC)))

	prefs.NotificationsEnabled = false
	assert.False(t, dueForReminder(prefs, time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)))
}

func TestRenderReminder(t *testing.T) {
	sessions := []*models.ReviewSession{
		{Title: "Cardio <basics>", ScheduledFor: monday, Items: make([]models.ReviewItem, 2)},
		{Title: "Renal", ScheduledFor: monday.Add(time.Hour), Items: make([]models.ReviewItem, 1)},
	}

	subject, htmlBody, textBody := renderReminder("https://medprep.example", sessions)
	assert.Equal(t, "You have 2 review sessions due", subject)
	assert.Contains(t, htmlBody, "Cardio &lt;basics&gt;")
	assert.Contains(t, htmlBody, "https://medprep.example/reviews")
	assert.Contains(t, textBody, "- Renal (1 items) due Mon 19 Oct 13:00 UTC")
	assert.False(t, strings.Contains(htmlBody, "<basics>"))

	subject, _, _ = renderReminder("", sessions[:1])
	assert.Equal(t, "You have a review session due", subject)
}

func TestDisabledEmailServiceSkipsSends(t *testing.T) {
	svc, err := NewEmailService(context.Background(), "us-east-1", "", "", "")
	require.NoError(t, err)
	assert.False(t, svc.IsEnabled())
	assert.NoError(t, svc.SendReviewReminder(context.Background(), "owner@example.com", []*models.ReviewSession{{Title: "x"}}))
}
