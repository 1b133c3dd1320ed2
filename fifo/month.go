package fifo

import (
	"fmt"
	"time"
)

// =============================================================================
// MONTH KEY - "YYYY-MM" processing granularity
// =============================================================================

// MonthKey identifies a processing month. The string form sorts
// chronologically, so plain string comparison gives month order.
type MonthKey string

const monthKeyLayout = "2006-01"

// MonthOf returns the month key for a date.
func MonthOf(t time.Time) MonthKey {
	return MonthKey(t.UTC().Format(monthKeyLayout))
}

// Parse returns the first instant of the month in UTC.
func (m MonthKey) Parse() (time.Time, error) {
	t, err := time.Parse(monthKeyLayout, string(m))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month key %q: %w", m, err)
	}
	return t, nil
}

// EndOfMonth returns the last day of the month at midnight UTC. This is the
// lot-queue cutoff for the month's processing pass: a lot purchased later in
// the month still qualifies, a lot purchased in a later month never does.
func (m MonthKey) EndOfMonth() (time.Time, error) {
	start, err := m.Parse()
	if err != nil {
		return time.Time{}, err
	}
	return start.AddDate(0, 1, 0).AddDate(0, 0, -1), nil
}

func (m MonthKey) Before(other MonthKey) bool { return m < other }

// =============================================================================
// WINDOW - Optional date scoping for read-only passes
// =============================================================================

// Window bounds a verification or detection pass. A nil bound is open.
type Window struct {
	From *time.Time
	To   *time.Time
}

// Contains reports whether t falls inside the window (bounds inclusive).
func (w Window) Contains(t time.Time) bool {
	if w.From != nil && t.Before(*w.From) {
		return false
	}
	if w.To != nil && t.After(*w.To) {
		return false
	}
	return true
}

// IsOpen reports whether the window has no bounds at all.
func (w Window) IsOpen() bool { return w.From == nil && w.To == nil }
