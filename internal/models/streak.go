package models

import "time"

// StreakHistoryEntry records the streak value on one day
type StreakHistoryEntry struct {
	Date   time.Time `json:"date"`
	Streak int       `json:"streak"`
}

// StreakRecord is the per-owner consecutive-day counter
type StreakRecord struct {
	ID               int64                `json:"id"`
	OwnerID          string               `json:"ownerId"`
	CurrentStreak    int                  `json:"currentStreak"`
	LongestStreak    int                  `json:"longestStreak"`
	LastActivityDate *time.Time           `json:"lastActivityDate"`
	History          []StreakHistoryEntry `json:"streakHistory"`
	CreatedAt        time.Time            `json:"createdAt"`
	UpdatedAt        time.Time            `json:"updatedAt"`
}

// NewStreakRecord returns an unsaved record with zero counters
func NewStreakRecord(ownerID string) *StreakRecord {
	return &StreakRecord{OwnerID: ownerID, History: []StreakHistoryEntry{}}
}

// Advance applies one qualifying day. A continued streak increments; anything else restarts at 1.
// It returns the history entry that was appended.
func (r *StreakRecord) Advance(day time.Time, continued bool) StreakHistoryEntry {
	if continued {
		r.CurrentStreak++
	} else {
		r.CurrentStreak = 1
	}
	return r.mark(StartOfDay(day))
}

// Reset force-sets the current streak, ignoring activity
func (r *StreakRecord) Reset(startValue int, at time.Time) StreakHistoryEntry {
	r.CurrentStreak = startValue
	return r.mark(StartOfDay(at))
}

func (r *StreakRecord) mark(day time.Time) StreakHistoryEntry {
	if r.CurrentStreak > r.LongestStreak {
		r.LongestStreak = r.CurrentStreak
	}
	r.LastActivityDate = &day
	entry := StreakHistoryEntry{Date: day, Streak: r.CurrentStreak}
	r.History = append(r.History, entry)
	return entry
}

// Summary returns the read view of the record
func (r *StreakRecord) Summary() StreakSummary {
	history := r.History
	if history == nil {
		history = []StreakHistoryEntry{}
	}
	return StreakSummary{
		CurrentStreak:    r.CurrentStreak,
		LongestStreak:    r.LongestStreak,
		LastActivityDate: r.LastActivityDate,
		StreakHistory:    history,
	}
}

// StreakSummary is what dashboards read
type StreakSummary struct {
	CurrentStreak    int                  `json:"currentStreak"`
	LongestStreak    int                  `json:"longestStreak"`
	LastActivityDate *time.Time           `json:"lastActivityDate"`
	StreakHistory    []StreakHistoryEntry `json:"streakHistory"`
}
