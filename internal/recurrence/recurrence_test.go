package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return parsed
}

func TestParseRule(t *testing.T) {
	tests := []struct {
		rule     string
		expected Rule
		wantErr  bool
	}{
		{rule: "DAILY", expected: Rule{Type: Daily, Interval: 1, Unit: UnitDays}},
		{rule: "WEEKLY", expected: Rule{Type: Weekly, Interval: 7, Unit: UnitDays}},
		{rule: "MONTHLY", expected: Rule{Type: Monthly, Interval: 1, Unit: UnitMonths}},
		{rule: "YEARLY", expected: Rule{Type: Yearly, Interval: 1, Unit: UnitYears}},
		{rule: "INTERVAL:3", expected: Rule{Type: Interval, Interval: 3, Unit: UnitDays}},
		{rule: "INTERVAL:365", expected: Rule{Type: Interval, Interval: 365, Unit: UnitDays}},
		{rule: "daily", expected: Rule{Type: Daily, Interval: 1, Unit: UnitDays}},
		{rule: " weekly ", expected: Rule{Type: Weekly, Interval: 7, Unit: UnitDays}},
		{rule: "interval:2", expected: Rule{Type: Interval, Interval: 2, Unit: UnitDays}},
		{rule: "interval:0", wantErr: true},
		{rule: "INTERVAL:-1", wantErr: true},
		{rule: "INTERVAL:abc", wantErr: true},
		{rule: "INTERVAL:", wantErr: true},
		{rule: "FOO", wantErr: true},
		{rule: "", wantErr: true},
		{rule: "every_3_days", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.rule, func(t *testing.T) {
			parsed, err := ParseRule(tt.rule)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, parsed)
		})
	}
}

func TestNextDue_NilDue(t *testing.T) {
	// A recurring item with no due date produces a next occurrence with
	// no due date, regardless of the rule.
	next, err := NextDue(nil, "DAILY")
	require.NoError(t, err)
	assert.Nil(t, next)

	next, err = NextDue(nil, "garbage")
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestNextDue_UnknownRule(t *testing.T) {
	due := mustTime(t, "2024-01-15T00:00:00Z")
	_, err := NextDue(&due, "FOO")
	require.Error(t, err)
}

func TestNextDue(t *testing.T) {
	tests := []struct {
		name     string
		current  string
		rule     string
		expected string
	}{
		{"daily", "2024-01-15T09:00:00Z", "DAILY", "2024-01-16T09:00:00Z"},
		{"weekly", "2024-01-15T09:00:00Z", "WEEKLY", "2024-01-22T09:00:00Z"},
		{"interval three days", "2024-01-30T09:00:00Z", "INTERVAL:3", "2024-02-02T09:00:00Z"},
		{"monthly plain", "2024-03-15T09:00:00Z", "MONTHLY", "2024-04-15T09:00:00Z"},
		{"monthly end-of-month into leap february", "2024-01-31T00:00:00Z", "MONTHLY", "2024-02-29T00:00:00Z"},
		{"monthly end-of-month into short february", "2023-01-31T00:00:00Z", "MONTHLY", "2023-02-28T00:00:00Z"},
		{"monthly 31st into 30-day month", "2024-03-31T00:00:00Z", "MONTHLY", "2024-04-30T00:00:00Z"},
		{"monthly across year boundary", "2023-12-31T00:00:00Z", "MONTHLY", "2024-01-31T00:00:00Z"},
		{"yearly plain", "2024-06-01T12:30:00Z", "YEARLY", "2025-06-01T12:30:00Z"},
		{"yearly leap day into non-leap year", "2024-02-29T00:00:00Z", "YEARLY", "2025-02-28T00:00:00Z"},
		{"daily across month boundary", "2024-02-29T00:00:00Z", "DAILY", "2024-03-01T00:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			current := mustTime(t, tt.current)
			next, err := NextDue(&current, tt.rule)
			require.NoError(t, err)
			require.NotNil(t, next)
			assert.Equal(t, mustTime(t, tt.expected), *next)
		})
	}
}

func TestNextDue_PreservesClockTime(t *testing.T) {
	current := mustTime(t, "2024-01-31T17:45:30Z")
	next, err := NextDue(&current, "MONTHLY")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, mustTime(t, "2024-02-29T17:45:30Z"), *next)
}

func TestDisplay(t *testing.T) {
	assert.Equal(t, "Every day", Display("DAILY"))
	assert.Equal(t, "Every week", Display("WEEKLY"))
	assert.Equal(t, "Every month", Display("MONTHLY"))
	assert.Equal(t, "Every year", Display("YEARLY"))
	assert.Equal(t, "Every 3 days", Display("INTERVAL:3"))
	assert.Equal(t, "Every day", Display("INTERVAL:1"))
	assert.Equal(t, "whatever", Display("whatever"))
}
