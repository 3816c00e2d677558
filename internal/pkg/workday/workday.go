// Package workday holds the configured working-day boundaries shared by
// session creation and weekly reporting.
package workday

import (
	"fmt"
	"math"
	"time"
)

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// Parse reads a 24h "HH:MM" value.
func Parse(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// MustParse is Parse for constants; it panics on malformed input.
func MustParse(s string) TimeOfDay {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// On returns t on the calendar day of day, in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, day.Location())
}

// Lateness reports whether at is after start on the same local day and by how
// many whole minutes. at exactly on start is not late.
func Lateness(at time.Time, start TimeOfDay) (bool, int) {
	scheduled := start.On(at)
	if !at.After(scheduled) {
		return false, 0
	}
	return true, int(math.Floor(at.Sub(scheduled).Minutes()))
}

// LeftEarly reports whether at is before end on the same local day.
func LeftEarly(at time.Time, end TimeOfDay) bool {
	return at.Before(end.On(at))
}

// IsWorkDay reports Monday through Friday.
func IsWorkDay(d time.Weekday) bool {
	return d != time.Saturday && d != time.Sunday
}

// WeekStart returns the Monday 00:00 of the week containing day, in day's location.
func WeekStart(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	d := day.AddDate(0, 0, -offset)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
}
