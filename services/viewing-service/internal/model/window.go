package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock is a wall-clock time of day in minutes after midnight. 1440 means end of day.
type Clock int

const EndOfDay Clock = 24 * 60

// ParseClock parses "HH:MM". "24:00" is accepted as end of day.
func ParseClock(raw string) (Clock, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock %q", raw)
	}
	hh, err := strconv.Atoi(h)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q", raw)
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 || hh < 0 || hh > 24 {
		return 0, fmt.Errorf("invalid clock %q", raw)
	}
	c := Clock(hh*60 + mm)
	if c > EndOfDay {
		return 0, fmt.Errorf("invalid clock %q", raw)
	}
	return c, nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// On returns the instant this clock time falls on for the given date in loc.
// Nonexistent local times (DST gaps) are normalized by time.Date.
func (c Clock) On(year int, month time.Month, day int, loc *time.Location) time.Time {
	return time.Date(year, month, day, 0, int(c), 0, 0, loc)
}

// AvailabilityWindow declares when an agent is bookable. A window applies
// either every week on Weekday or on one calendar Date ("2006-01-02").
// Start and End are wall-clock times in Location.
type AvailabilityWindow struct {
	AgentID  string
	Weekday  time.Weekday
	Date     string
	Start    Clock
	End      Clock
	Location *time.Location
	Blocked  []Interval
}

// Dated reports whether the window is pinned to a calendar date.
func (w AvailabilityWindow) Dated() bool {
	return w.Date != ""
}

func (w AvailabilityWindow) Validate() error {
	if w.End <= w.Start {
		return fmt.Errorf("window %s-%s: end must be after start", w.Start, w.End)
	}
	if w.Dated() {
		if _, err := time.Parse(time.DateOnly, w.Date); err != nil {
			return fmt.Errorf("window date %q: %w", w.Date, err)
		}
	} else if w.Weekday < time.Sunday || w.Weekday > time.Saturday {
		return fmt.Errorf("window weekday %d out of range", w.Weekday)
	}
	for _, b := range w.Blocked {
		if b.Empty() {
			return fmt.Errorf("blocked interval %s-%s is empty", b.Start.Format(time.RFC3339), b.End.Format(time.RFC3339))
		}
	}
	return nil
}

func (w AvailabilityWindow) Loc() *time.Location {
	if w.Location == nil {
		return time.UTC
	}
	return w.Location
}
