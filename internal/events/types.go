package events

import (
	"time"

	"medprep/internal/models"
)

const (
	// ExchangeName is the topic exchange activity producers and the tracker share
	ExchangeName = "medprep.activity"

	// EventTypeActivityRecorded is published by an activity producer once it commits the record
	EventTypeActivityRecorded = "activity.recorded"

	// EventTypeStreakUpdated is published after a streak change is persisted
	EventTypeStreakUpdated = "streak.updated"
)

// ActivityRecordedEvent announces qualifying activity for an owner. RecordID names the
// committed record that triggered it; events without one are treated as published
// before the commit.
type ActivityRecordedEvent struct {
	EventType string              `json:"eventType"`
	OwnerID   string              `json:"ownerId"`
	Kind      models.ActivityKind `json:"kind"`
	RecordID  string              `json:"recordId,omitempty"`
	Force     bool                `json:"force,omitempty"`
	Timestamp int64               `json:"timestamp"`
}

// StreakUpdatedEvent carries the streak state after an update or reset
type StreakUpdatedEvent struct {
	EventType        string     `json:"eventType"`
	OwnerID          string     `json:"ownerId"`
	CurrentStreak    int        `json:"currentStreak"`
	LongestStreak    int        `json:"longestStreak"`
	LastActivityDate *time.Time `json:"lastActivityDate"`
	Timestamp        int64      `json:"timestamp"`
}

// NewStreakUpdatedEvent builds the event for a persisted record
func NewStreakUpdatedEvent(record *models.StreakRecord) StreakUpdatedEvent {
	return StreakUpdatedEvent{
		EventType:        EventTypeStreakUpdated,
		OwnerID:          record.OwnerID,
		CurrentStreak:    record.CurrentStreak,
		LongestStreak:    record.LongestStreak,
		LastActivityDate: record.LastActivityDate,
		Timestamp:        time.Now().Unix(),
	}
}
