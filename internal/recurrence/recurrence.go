// Package recurrence is the single source of truth for recurrence rule
// parsing and next-occurrence arithmetic. Every component computes next
// due dates through this package; there is intentionally no second,
// approximate implementation anywhere else.
package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RuleType classifies a parsed recurrence rule.
type RuleType string

const (
	Daily    RuleType = "DAILY"
	Weekly   RuleType = "WEEKLY"
	Monthly  RuleType = "MONTHLY"
	Yearly   RuleType = "YEARLY"
	Interval RuleType = "INTERVAL"
)

// Unit is the measurement a rule's interval counts in.
type Unit string

const (
	UnitDays   Unit = "days"
	UnitMonths Unit = "months"
	UnitYears  Unit = "years"
)

// Rule is a parsed recurrence rule.
type Rule struct {
	Type     RuleType
	Interval int
	Unit     Unit
}

const intervalPrefix = "INTERVAL:"

// ParseRule parses a recurrence rule string. Recognized forms are DAILY,
// WEEKLY, MONTHLY, YEARLY and INTERVAL:N for a positive integer N.
// Matching is case-insensitive; anything else is a hard error.
func ParseRule(rule string) (Rule, error) {
	if rule == "" {
		return Rule{}, fmt.Errorf("recurrence rule cannot be empty")
	}

	normalized := strings.ToUpper(strings.TrimSpace(rule))

	switch normalized {
	case "DAILY":
		return Rule{Type: Daily, Interval: 1, Unit: UnitDays}, nil
	case "WEEKLY":
		return Rule{Type: Weekly, Interval: 7, Unit: UnitDays}, nil
	case "MONTHLY":
		return Rule{Type: Monthly, Interval: 1, Unit: UnitMonths}, nil
	case "YEARLY":
		return Rule{Type: Yearly, Interval: 1, Unit: UnitYears}, nil
	}

	if strings.HasPrefix(normalized, intervalPrefix) {
		n, err := strconv.Atoi(normalized[len(intervalPrefix):])
		if err != nil || n < 1 {
			return Rule{}, fmt.Errorf("invalid INTERVAL format: %s (use INTERVAL:N where N is a positive integer)", rule)
		}
		return Rule{Type: Interval, Interval: n, Unit: UnitDays}, nil
	}

	return Rule{}, fmt.Errorf("unknown recurrence rule: %s (valid values: DAILY, WEEKLY, MONTHLY, YEARLY, INTERVAL:N)", rule)
}

// NextDue computes the next occurrence of currentDue under rule. A nil
// currentDue yields nil unconditionally: a recurring item with no due
// date produces a next occurrence with no due date. MONTHLY and YEARLY
// use true calendar addition, so a month-end due date advances to the
// last valid day of the following month and a leap-day due date advances
// correctly in non-leap years.
func NextDue(currentDue *time.Time, rule string) (*time.Time, error) {
	if currentDue == nil {
		return nil, nil
	}

	parsed, err := ParseRule(rule)
	if err != nil {
		return nil, err
	}

	var next time.Time
	switch parsed.Unit {
	case UnitMonths:
		next = addMonths(*currentDue, parsed.Interval)
	case UnitYears:
		next = addMonths(*currentDue, parsed.Interval*12)
	default:
		next = currentDue.AddDate(0, 0, parsed.Interval)
	}
	return &next, nil
}

// Display returns a human-readable description of a rule, or the raw
// string when it cannot be parsed.
func Display(rule string) string {
	parsed, err := ParseRule(rule)
	if err != nil {
		return rule
	}
	switch parsed.Type {
	case Daily:
		return "Every day"
	case Weekly:
		return "Every week"
	case Monthly:
		return "Every month"
	case Yearly:
		return "Every year"
	case Interval:
		if parsed.Interval == 1 {
			return "Every day"
		}
		return fmt.Sprintf("Every %d days", parsed.Interval)
	}
	return rule
}

// addMonths advances t by whole calendar months, clamping the day of
// month to the last valid day of the target month. time.Time.AddDate is
// not used here because it normalizes overflow (Jan 31 + 1 month becomes
// Mar 2/3) instead of clamping.
func addMonths(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	total := int(month) - 1 + months
	targetYear := year + total/12
	targetMonth := time.Month(total%12 + 1)

	if last := daysInMonth(targetYear, targetMonth); day > last {
		day = last
	}
	return time.Date(targetYear, targetMonth, day, hour, min, sec, t.Nanosecond(), t.Location())
}

// daysInMonth returns the number of days in the given month.
func daysInMonth(year int, month time.Month) int {
	// Day zero of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
