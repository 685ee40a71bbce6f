package models

import (
	"fmt"
	"math"
	"time"

	"medprep/internal/validation"

	"github.com/google/uuid"
)

// ReviewStatus is the lifecycle state of a review session
type ReviewStatus string

const (
	StatusPending   ReviewStatus = "pending"
	StatusCompleted ReviewStatus = "completed"
	StatusMissed    ReviewStatus = "missed"
)

// Valid reports whether s is a known status
func (s ReviewStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusMissed:
		return true
	}
	return false
}

// Cadence labels a session by its stage
type Cadence string

const (
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"
)

const (
	MinStage          = 1
	MaxStage          = 3
	MinDifficulty     = 1
	MaxDifficulty     = 5
	DefaultDifficulty = 3

	DefaultSessionTitle = "Medical Review Session"
)

// CadenceForStage maps 1 to daily, 2 to weekly and everything else to monthly
func CadenceForStage(stage int) Cadence {
	switch stage {
	case 1:
		return CadenceDaily
	case 2:
		return CadenceWeekly
	default:
		return CadenceMonthly
	}
}

// StageTitle is the title given to the session created for the next cycle
func StageTitle(stage int) string {
	return fmt.Sprintf("%s - Stage %d", DefaultSessionTitle, stage)
}

// ReviewItem is one learning item inside a session. The item id is opaque.
type ReviewItem struct {
	ItemID       string     `json:"itemId"`
	ItemType     string     `json:"itemType"`
	Difficulty   int        `json:"difficulty"`
	LastReviewed *time.Time `json:"lastReviewed"`
}

// NewItemID returns a fresh opaque item identifier
func NewItemID() string {
	return uuid.NewString()
}

// Validate checks the item and fills in defaults for a missing id or difficulty
func (i *ReviewItem) Validate() error {
	if i.ItemID == "" {
		i.ItemID = NewItemID()
	}
	if i.Difficulty == 0 {
		i.Difficulty = DefaultDifficulty
	}
	if err := validation.ValidateRequired("itemType", i.ItemType); err != nil {
		return err
	}
	return validation.ValidateRange("difficulty", i.Difficulty, MinDifficulty, MaxDifficulty)
}

// Performance is the correct/total summary reported when a session completes
type Performance struct {
	CorrectAnswers int `json:"correctAnswers"`
	TotalQuestions int `json:"totalQuestions"`
}

// CorrectRate returns correct/total, or 0 when nothing was asked
func (p Performance) CorrectRate() float64 {
	if p.TotalQuestions <= 0 {
		return 0
	}
	return float64(p.CorrectAnswers) / float64(p.TotalQuestions)
}

// Validate rejects negative counts and more correct answers than questions
func (p Performance) Validate() error {
	if err := validation.ValidateMin("totalQuestions", p.TotalQuestions, 0); err != nil {
		return err
	}
	return validation.ValidateRange("correctAnswers", p.CorrectAnswers, 0, p.TotalQuestions)
}

// ReviewSession is one unit of review work
type ReviewSession struct {
	ID           int64        `json:"id"`
	OwnerID      string       `json:"ownerId"`
	Title        string       `json:"title"`
	Type         Cadence      `json:"type"`
	Stage        int          `json:"stage"`
	ScheduledFor time.Time    `json:"scheduledFor"`
	CompletedAt  *time.Time   `json:"completedAt"`
	Status       ReviewStatus `json:"status"`
	Items        []ReviewItem `json:"items"`
	Performance  Performance  `json:"performance"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// Validate checks stage, status and items before the session is persisted
func (s *ReviewSession) Validate() error {
	if err := validation.ValidateRequired("ownerId", s.OwnerID); err != nil {
		return err
	}
	if err := validation.ValidateRange("stage", s.Stage, MinStage, MaxStage); err != nil {
		return err
	}
	if !s.Status.Valid() {
		return validation.Error{Field: "status", Message: fmt.Sprintf("unknown status %q", s.Status)}
	}
	if s.ScheduledFor.IsZero() {
		return validation.Error{Field: "scheduledFor", Message: "scheduledFor is required"}
	}
	for idx := range s.Items {
		if err := s.Items[idx].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// AverageDifficulty is the mean item difficulty, DefaultDifficulty for an empty session
func (s *ReviewSession) AverageDifficulty() float64 {
	if len(s.Items) == 0 {
		return DefaultDifficulty
	}
	sum := 0
	for _, item := range s.Items {
		sum += item.Difficulty
	}
	return float64(sum) / float64(len(s.Items))
}

// Intervals holds the base interval per stage: hours for stage 1, days for stages 2 and 3
type Intervals struct {
	Stage1Hours int `json:"stage1"`
	Stage2Days  int `json:"stage2"`
	Stage3Days  int `json:"stage3"`
}

// DefaultIntervals returns 24 hours, 7 days and 30 days
func DefaultIntervals() Intervals {
	return Intervals{Stage1Hours: 24, Stage2Days: 7, Stage3Days: 30}
}

const (
	// MaxStage1Hours and MaxStageDays bound interval overrides to ten years
	MaxStage1Hours = 87600
	MaxStageDays   = 3650
)

// Validate requires every interval to be at least 1 and at most ten years
func (in Intervals) Validate() error {
	if err := validation.ValidateRange("intervals.stage1", in.Stage1Hours, 1, MaxStage1Hours); err != nil {
		return err
	}
	if err := validation.ValidateRange("intervals.stage2", in.Stage2Days, 1, MaxStageDays); err != nil {
		return err
	}
	return validation.ValidateRange("intervals.stage3", in.Stage3Days, 1, MaxStageDays)
}

// ReviewPreferences holds one owner's scheduling preferences
type ReviewPreferences struct {
	ID                   int64     `json:"id"`
	OwnerID              string    `json:"ownerId"`
	PreferredTime        string    `json:"preferredTime"`
	PreferredDays        []string  `json:"preferredDays"`
	MaxReviewsPerDay     int       `json:"maxReviewsPerDay"`
	NotificationsEnabled bool      `json:"notificationsEnabled"`
	CustomIntervals      bool      `json:"customIntervals"`
	Intervals            Intervals `json:"intervals"`
	ContactEmail         string    `json:"contactEmail,omitempty"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// DefaultPreferences returns the record created on first read
func DefaultPreferences(ownerID string) *ReviewPreferences {
	return &ReviewPreferences{
		OwnerID:              ownerID,
		PreferredTime:        "09:00",
		PreferredDays:        []string{"monday", "wednesday", "friday"},
		MaxReviewsPerDay:     10,
		NotificationsEnabled: true,
		CustomIntervals:      false,
		Intervals:            DefaultIntervals(),
	}
}

// Validate checks every preference field
func (p *ReviewPreferences) Validate() error {
	if err := validation.ValidateRequired("ownerId", p.OwnerID); err != nil {
		return err
	}
	if err := validation.ValidateTimeOfDay("preferredTime", p.PreferredTime); err != nil {
		return err
	}
	if err := validation.ValidateWeekdays("preferredDays", p.PreferredDays); err != nil {
		return err
	}
	if err := validation.ValidateRange("maxReviewsPerDay", p.MaxReviewsPerDay, 1, 50); err != nil {
		return err
	}
	return p.Intervals.Validate()
}

// PrefersDay reports whether the weekday of t (UTC) is one of the preferred days
func (p *ReviewPreferences) PrefersDay(t time.Time) bool {
	name := validation.Weekdays[(int(t.UTC().Weekday())+6)%7]
	for _, day := range p.PreferredDays {
		if day == name {
			return true
		}
	}
	return false
}

// ReviewCompletionStat counts completions for one owner on one UTC day
type ReviewCompletionStat struct {
	ID               int64     `json:"id"`
	OwnerID          string    `json:"ownerId"`
	Date             string    `json:"date"`
	TotalReviews     int       `json:"totalReviews"`
	CompletedReviews int       `json:"completedReviews"`
	CompletionRate   float64   `json:"completionRate"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// NewCompletionStat starts an empty stat for the given day
func NewCompletionStat(ownerID, day string) *ReviewCompletionStat {
	return &ReviewCompletionStat{OwnerID: ownerID, Date: day}
}

// RecordCompletion counts one completed review
func (s *ReviewCompletionStat) RecordCompletion() {
	s.TotalReviews++
	s.CompletedReviews++
	s.Recompute()
}

// Recompute derives the rate from the counters; it is never set on its own
func (s *ReviewCompletionStat) Recompute() {
	if s.TotalReviews <= 0 {
		s.CompletionRate = 0
		return
	}
	s.CompletionRate = math.Round(float64(s.CompletedReviews) / float64(s.TotalReviews) * 100)
}
