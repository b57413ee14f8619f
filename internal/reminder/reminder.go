// Package reminder handles reminder time calculation and the scheduled
// callback lifecycle. A reminder is stored as an offset in minutes before
// the owning task's due date; the remind-at instant is due date minus
// offset.
package reminder

import (
	"fmt"
	"time"
)

// Offset bounds in minutes: at least one minute, at most one year.
const (
	MinOffsetMinutes = 1
	MaxOffsetMinutes = 525600
)

// Presets are the common reminder offsets, in minutes.
var Presets = map[string]int{
	"10_minutes": 10,
	"30_minutes": 30,
	"1_hour":     60,
	"2_hours":    120,
	"1_day":      1440,
	"2_days":     2880,
	"1_week":     10080,
}

// RemindAt calculates the remind-at instant from a due date and an offset.
// It returns nil when either input is nil: a reminder requires a due date,
// and a task without an offset has no reminder. The result may be in the
// past when the due date is soon; scheduling decides what to do with that.
func RemindAt(dueDate *time.Time, offsetMinutes *int) (*time.Time, error) {
	if dueDate == nil || offsetMinutes == nil {
		return nil, nil
	}
	if *offsetMinutes < 0 {
		return nil, fmt.Errorf("reminder offset must be non-negative, got %d", *offsetMinutes)
	}
	remindAt := dueDate.Add(-time.Duration(*offsetMinutes) * time.Minute)
	return &remindAt, nil
}

// ValidateOffset reports whether an offset is within the accepted bounds.
func ValidateOffset(offsetMinutes int) bool {
	return offsetMinutes >= MinOffsetMinutes && offsetMinutes <= MaxOffsetMinutes
}

// OffsetDisplay returns a human-readable description of a reminder offset.
func OffsetDisplay(offsetMinutes *int) string {
	if offsetMinutes == nil {
		return "No reminder"
	}
	m := *offsetMinutes
	switch {
	case m < 60:
		if m == 1 {
			return "1 minute before"
		}
		return fmt.Sprintf("%d minutes before", m)
	case m < 1440:
		hours := m / 60
		if hours == 1 {
			return "1 hour before"
		}
		return fmt.Sprintf("%d hours before", hours)
	default:
		days := m / 1440
		if days == 1 {
			return "1 day before"
		}
		if days == 7 {
			return "1 week before"
		}
		return fmt.Sprintf("%d days before", days)
	}
}
