// Package timeutil holds the Eastern-Time session math the rest of the bot
// leans on: clock-string parsing, entry-window membership, and the business
// day arithmetic behind T+1 settlement.
package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var eastern *time.Location

func init() {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.FixedZone("ET", -5*3600)
	}
	eastern = loc
}

// Eastern returns the exchange time zone.
func Eastern() *time.Location { return eastern }

// NowET returns the current wall clock in exchange time.
func NowET() time.Time { return time.Now().In(eastern) }

// ParseClock parses "HH:MM" onto the date of base, in exchange time.
func ParseClock(hhmm string, base time.Time) (time.Time, error) {
	parts := strings.SplitN(strings.TrimSpace(hhmm), ":", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("invalid clock %q, want HH:MM", hhmm)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return time.Time{}, fmt.Errorf("invalid hour in %q", hhmm)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return time.Time{}, fmt.Errorf("invalid minute in %q", hhmm)
	}
	b := base.In(eastern)
	return time.Date(b.Year(), b.Month(), b.Day(), h, m, 0, 0, eastern), nil
}

// MustClock is ParseClock for configuration already validated at load time.
func MustClock(hhmm string, base time.Time) time.Time {
	t, err := ParseClock(hhmm, base)
	if err != nil {
		panic(err)
	}
	return t
}

// Window is a same-day [Start, End] clock range in exchange time.
type Window struct {
	Start string
	End   string
}

// Contains reports whether now falls inside the window. Weekends never match.
func (w Window) Contains(now time.Time) bool {
	now = now.In(eastern)
	if IsWeekend(now) {
		return false
	}
	start, err := ParseClock(w.Start, now)
	if err != nil {
		return false
	}
	end, err := ParseClock(w.End, now)
	if err != nil {
		return false
	}
	return !now.Before(start) && !now.After(end)
}

func IsWeekend(t time.Time) bool {
	wd := t.In(eastern).Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// NextBusinessDayAt returns the next non-weekend day after now, at the given
// hour in exchange time. This is the T+1 settlement anchor.
func NextBusinessDayAt(now time.Time, hour int) time.Time {
	next := now.In(eastern).AddDate(0, 0, 1)
	for IsWeekend(next) {
		next = next.AddDate(0, 0, 1)
	}
	return time.Date(next.Year(), next.Month(), next.Day(), hour, 0, 0, 0, eastern)
}

// FridayFlattenDue reports whether now is a Friday at or past the flatten
// deadline.
func FridayFlattenDue(now time.Time, deadline string) bool {
	now = now.In(eastern)
	if now.Weekday() != time.Friday {
		return false
	}
	cut, err := ParseClock(deadline, now)
	if err != nil {
		return false
	}
	return !now.Before(cut)
}
