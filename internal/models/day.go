package models

import "time"

// DayLayout is the calendar-day format used for stat dates and activity buckets
const DayLayout = "2006-01-02"

// Day is one UTC calendar day
const Day = 24 * time.Hour

// StartOfDay truncates t to midnight UTC
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DayKey formats the UTC calendar day containing t
func DayKey(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// ParseDayKey parses a YYYY-MM-DD key as midnight UTC
func ParseDayKey(key string) (time.Time, error) {
	return time.ParseInLocation(DayLayout, key, time.UTC)
}
