// Package recurrence computes fire instants for 5-field cron
// expressions evaluated in a named timezone.
package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron"
)

var (
	ErrInvalidRecurrence            = errors.New("invalid recurrence")
	ErrUnknownTimezone              = errors.New("unknown timezone")
	ErrIncompleteStructuredSchedule = errors.New("incomplete structured schedule")
)

var parser = cron.NewParser(
	cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow,
)

// Schedule is a parsed expression bound to a location.
type Schedule struct {
	expr     string
	schedule cron.Schedule
	location *time.Location
}

// Parse validates expr and timezone and returns the bound schedule.
// An empty timezone means UTC.
func Parse(expr, timezone string) (*Schedule, error) {
	expr = strings.TrimSpace(expr)
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("%w: %q must have 5 fields", ErrInvalidRecurrence, expr)
	}
	fields[4] = sundayAsZero(fields[4])

	sched, err := parser.Parse(strings.Join(fields, " "))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidRecurrence, expr, err)
	}

	loc, err := Location(timezone)
	if err != nil {
		return nil, err
	}

	return &Schedule{expr: expr, schedule: sched, location: loc}, nil
}

// sundayAsZero rewrites 7 in a day-of-week field to 0, the only Sunday
// the parser knows. "7" becomes "0" and a range ending in 7 becomes a
// range ending in 6 plus 0. Stepped ranges are left to the parser.
func sundayAsZero(dow string) string {
	items := strings.Split(dow, ",")
	out := make([]string, 0, len(items)+1)
	for _, item := range items {
		switch {
		case item == "7":
			out = append(out, "0")
		case strings.HasSuffix(item, "-7") && !strings.Contains(item, "/"):
			if start := strings.TrimSuffix(item, "-7"); start == "7" {
				out = append(out, "0")
			} else {
				out = append(out, start+"-6", "0")
			}
		default:
			out = append(out, item)
		}
	}
	return strings.Join(out, ",")
}

// Location resolves a timezone name.
func Location(timezone string) (*time.Location, error) {
	tz := strings.TrimSpace(timezone)
	if tz == "" {
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTimezone, tz)
	}

	return loc, nil
}

// Next returns the first activation strictly after the given instant.
func (s *Schedule) Next(after time.Time) (time.Time, error) {
	next := s.schedule.Next(after.In(s.location))
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("%w: %q never fires", ErrInvalidRecurrence, s.expr)
	}
	return next, nil
}

// Location returns the schedule's timezone.
func (s *Schedule) Location() *time.Location {
	return s.location
}

// Next parses expr in timezone and returns its first fire instant
// strictly after the provided time.
func Next(expr, timezone string, after time.Time) (time.Time, error) {
	sched, err := Parse(expr, timezone)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after)
}

// Validate reports whether expr and timezone describe a usable schedule.
func Validate(expr, timezone string) error {
	_, err := Next(expr, timezone, time.Now())
	return err
}
