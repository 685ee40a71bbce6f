package models

import "time"

// ActivityKind names a source of qualifying activity
type ActivityKind string

const (
	ActivityTest       ActivityKind = "test"
	ActivitySimulation ActivityKind = "simulation"
	ActivityChallenge  ActivityKind = "challenge"
	ActivityDaily      ActivityKind = "daily"
)

// ActivityKinds lists every source in a stable order
var ActivityKinds = []ActivityKind{ActivityTest, ActivitySimulation, ActivityChallenge, ActivityDaily}

// Valid reports whether k is a known source
func (k ActivityKind) Valid() bool {
	for _, kind := range ActivityKinds {
		if kind == k {
			return true
		}
	}
	return false
}

// DayCount is the number of records a source holds for one day
type DayCount struct {
	Day   string
	Count int
}

// ActivityDay is one bucket of the activity calendar
type ActivityDay struct {
	Date       string               `json:"date"`
	Count      int                  `json:"count"`
	Activities map[ActivityKind]int `json:"activities"`
}

// ActivityRecord identifies one source record for diagnostics
type ActivityRecord struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}
