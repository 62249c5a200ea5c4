// Package deadline converts a member's local check-in time of day into UTC
// deadline instants and lateness magnitudes.
package deadline

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vigilhq/checkin-engine/internal/domain"
)

// Deadline is the result of a lateness computation. Derived, never persisted.
type Deadline struct {
	DeadlineUTC time.Time
	IsLate      bool
	MinutesLate int
}

// Compute resolves today's civil date in tz, combines it with localTime and
// converts back to a UTC instant using the timezone rules in effect at that
// date. The same UTC "now" maps to different civil dates in different
// timezones, so the civil date must be resolved in tz first, never in UTC.
//
// The deadline is always today's occurrence; Compute never rolls forward.
func Compute(localTime string, tz string, now time.Time) (Deadline, error) {
	hour, minute, err := parseClock(localTime)
	if err != nil {
		return Deadline{}, err
	}

	loc, err := loadLocation(tz)
	if err != nil {
		return Deadline{}, err
	}

	local := now.In(loc)
	deadlineUTC := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc).UTC()

	d := Deadline{DeadlineUTC: deadlineUTC}
	if now.After(deadlineUTC) {
		d.IsLate = true
		d.MinutesLate = int(now.Sub(deadlineUTC) / time.Minute)
	}
	return d, nil
}

// NextOccurrence returns the upcoming deadline instant for countdown display,
// rolling forward one civil day when today's occurrence has already passed.
// This is display semantics, distinct from lateness detection: a caller that
// wants to know whether a member is late must use Compute.
func NextOccurrence(localTime string, tz string, now time.Time) (time.Time, error) {
	hour, minute, err := parseClock(localTime)
	if err != nil {
		return time.Time{}, err
	}

	loc, err := loadLocation(tz)
	if err != nil {
		return time.Time{}, err
	}

	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		// Add a civil day, not 24 hours, so DST transitions keep the
		// deadline at the same wall-clock time.
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next.UTC(), nil
}

func parseClock(localTime string) (hour int, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(localTime), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: invalid time format %q, want HH:MM", domain.ErrValidation, localTime)
	}

	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: invalid hour in %q", domain.ErrValidation, localTime)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: invalid minute in %q", domain.ErrValidation, localTime)
	}
	return hour, minute, nil
}

func loadLocation(tz string) (*time.Location, error) {
	trimmed := strings.TrimSpace(tz)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: timezone is required", domain.ErrValidation)
	}
	loc, err := time.LoadLocation(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", domain.ErrValidation, tz)
	}
	return loc, nil
}
