package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var timeOfDayRegex = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// Weekdays lists the accepted preferred-day names in calendar order
var Weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// Error represents a validation error
type Error struct {
	Field   string
	Message string
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateTimeOfDay checks an "HH:MM" 24-hour clock value
func ValidateTimeOfDay(field, value string) error {
	if !timeOfDayRegex.MatchString(value) {
		return Error{Field: field, Message: "must be a HH:MM time"}
	}
	return nil
}

// ValidateWeekdays checks that every entry is a lowercase weekday name and appears once
func ValidateWeekdays(field string, days []string) error {
	seen := make(map[string]bool, len(days))
	for _, day := range days {
		if !IsWeekday(day) {
			return Error{Field: field, Message: fmt.Sprintf("unknown weekday %q", day)}
		}
		if seen[day] {
			return Error{Field: field, Message: fmt.Sprintf("duplicate weekday %q", day)}
		}
		seen[day] = true
	}
	return nil
}

// IsWeekday reports whether name is one of Weekdays
func IsWeekday(name string) bool {
	for _, day := range Weekdays {
		if day == name {
			return true
		}
	}
	return false
}

// ValidateRange checks min <= value <= max
func ValidateRange(field string, value, min, max int) error {
	if value < min || value > max {
		return Error{Field: field, Message: fmt.Sprintf("must be between %d and %d", min, max)}
	}
	return nil
}

// ValidateMin checks value >= min
func ValidateMin(field string, value, min int) error {
	if value < min {
		return Error{Field: field, Message: fmt.Sprintf("must be at least %d", min)}
	}
	return nil
}

// ValidateRequired checks that a trimmed string is not empty
func ValidateRequired(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return Error{Field: field, Message: field + " is required"}
	}
	return nil
}
