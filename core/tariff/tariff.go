// Package tariff decides whether an instant falls inside the cheap import
// window of a two-rate electricity tariff.
//
// Window boundaries are local wall-clock times, so the classification follows
// daylight saving shifts of the configured location.
package tariff

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidClock is returned when a boundary is not a valid "HH:MM" value.
var ErrInvalidClock = errors.New("invalid time of day")

const minutesPerDay = 24 * 60

// Clock is a time of day expressed in minutes after local midnight.
type Clock int

// ParseClock parses a 24-hour "HH:MM" value.
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || len(parts[0]) == 0 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return Clock(h*60 + m), nil
}

// ClockOf returns the local wall-clock time of day of t in loc.
func ClockOf(t time.Time, loc *time.Location) Clock {
	lt := t.In(loc)
	return Clock(lt.Hour()*60 + lt.Minute())
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Window is a recurring daily cheap-rate period [Start, End). When End is not
// after Start the window wraps past midnight; equal bounds cover the whole day.
type Window struct {
	Start Clock
	End   Clock
	Loc   *time.Location
}

// NewWindow builds a Window from two "HH:MM" boundaries. A nil location means
// the process local time zone.
func NewWindow(start, end string, loc *time.Location) (Window, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Window{}, fmt.Errorf("cheap start: %w", err)
	}
	e, err := ParseClock(end)
	if err != nil {
		return Window{}, fmt.Errorf("cheap end: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}
	return Window{Start: s, End: e, Loc: loc}, nil
}

// IsCheap reports whether t falls inside the cheap window.
func (w Window) IsCheap(t time.Time) bool {
	loc := w.Loc
	if loc == nil {
		loc = time.Local
	}
	now := ClockOf(t, loc)
	if w.End > w.Start {
		return now >= w.Start && now < w.End
	}
	return now >= w.Start || now < w.End
}

// Minutes returns how many minutes of a regular day are cheap.
func (w Window) Minutes() int {
	if w.End > w.Start {
		return int(w.End - w.Start)
	}
	return minutesPerDay - int(w.Start-w.End)
}

// IsCheap is a convenience wrapper classifying t in the process local zone.
func IsCheap(t time.Time, start, end string) (bool, error) {
	w, err := NewWindow(start, end, nil)
	if err != nil {
		return false, err
	}
	return w.IsCheap(t), nil
}
