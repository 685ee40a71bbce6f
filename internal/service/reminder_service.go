package service

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"medprep/internal/metrics"
	"medprep/internal/models"
	"medprep/internal/repository"
)

// ReminderSender delivers a reminder for the given sessions
type ReminderSender interface {
	SendReviewReminder(ctx context.Context, toEmail string, sessions []*models.ReviewSession) error
}

// ReminderService emails owners about review sessions due soon
type ReminderService struct {
	prefsRepo  *repository.PreferencesRepository
	reviewRepo *repository.ReviewRepository
	sender     ReminderSender
	window     time.Duration

	mu       sync.Mutex
	lastSent map[string]string // owner -> UTC day of the last reminder
}

// NewReminderService creates a reminder service that looks window ahead on every run
func NewReminderService(prefsRepo *repository.PreferencesRepository, reviewRepo *repository.ReviewRepository, sender ReminderSender, window time.Duration) *ReminderService {
	return &ReminderService{
		prefsRepo:  prefsRepo,
		reviewRepo: reviewRepo,
		sender:     sender,
		window:     window,
		lastSent:   make(map[string]string),
	}
}

// RunOnce sends reminders to owners whose preferred day and hour match now (UTC).
// It returns how many reminders were sent; one owner's failure does not stop the others.
func (s *ReminderService) RunOnce(ctx context.Context, now time.Time) (int, error) {
	now = now.UTC()

	owners, err := s.prefsRepo.ListNotifiable(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, prefs := range owners {
		if !dueForReminder(prefs, now) || s.alreadySent(prefs.OwnerID, now) {
			continue
		}

		sessions, err := s.reviewRepo.ListPendingBetween(ctx, prefs.OwnerID, now, now.Add(s.window), prefs.MaxReviewsPerDay)
		if err != nil {
			slog.Error("failed to load sessions for reminder", "owner_id", prefs.OwnerID, "error", err)
			continue
		}
		if len(sessions) == 0 {
			continue
		}

		if err := s.sender.SendReviewReminder(ctx, prefs.ContactEmail, sessions); err != nil {
			metrics.RemindersSent.WithLabelValues("failed").Inc()
			slog.Error("failed to send review reminder", "owner_id", prefs.OwnerID, "error", err)
			continue
		}
		metrics.RemindersSent.WithLabelValues("sent").Inc()
		s.markSent(prefs.OwnerID, now)
		sent++
	}
	return sent, nil
}

// dueForReminder reports whether now falls on a preferred day within the preferred hour
func dueForReminder(prefs *models.ReviewPreferences, now time.Time) bool {
	if !prefs.NotificationsEnabled || prefs.ContactEmail == "" || !prefs.PrefersDay(now) {
		return false
	}
	hour, _, ok := strings.Cut(prefs.PreferredTime, ":")
	if !ok {
		return false
	}
	h, err := strconv.Atoi(hour)
	if err != nil {
		return false
	}
	return now.Hour() == h
}

func (s *ReminderService) alreadySent(ownerID string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSent[ownerID] == models.DayKey(now)
}

func (s *ReminderService) markSent(ownerID string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSent[ownerID] = models.DayKey(now)
}
