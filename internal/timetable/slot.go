package timetable

import (
	"fmt"
	"strings"
	"time"
)

// Kind classifies what happens during a slot.
type Kind string

const (
	KindInstructional Kind = "instructional"
	KindOpen          Kind = "open"
	KindRecess        Kind = "recess"
)

// Valid returns true when the kind is a supported value.
func (k Kind) Valid() bool {
	switch k {
	case KindInstructional, KindOpen, KindRecess:
		return true
	default:
		return false
	}
}

// Clock is a wall-clock time of day in minutes after midnight.
type Clock int

// ParseClock parses "HH:MM" (24h).
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: expected HH:MM", s)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// On places c on the calendar date of day, in day's location.
func (c Clock) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour(), c.Minute(), 0, 0, day.Location())
}

// MarshalText renders the clock as HH:MM for JSON payloads.
func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	v, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Slot is one weekly, time-boxed entry of the timetable.
type Slot struct {
	ID      string       `json:"id"`
	Subject string       `json:"subject"`
	OwnerID string       `json:"owner_id,omitempty"`
	Room    string       `json:"room"`
	Group   string       `json:"group,omitempty"`
	Day     time.Weekday `json:"day"`
	Start   Clock        `json:"start"`
	End     Clock        `json:"end"`
	Kind    Kind         `json:"kind"`
}

// Overlaps reports whether both slots share time on the same weekday.
func (s Slot) Overlaps(o Slot) bool {
	return s.Day == o.Day && s.Start < o.End && o.Start < s.End
}

// Bounds returns the absolute start and end of the slot on date.
func (s Slot) Bounds(date time.Time) (time.Time, time.Time) {
	return s.Start.On(date), s.End.On(date)
}

// Instructional reports whether attendance is taken for the slot.
func (s Slot) Instructional() bool {
	return s.Kind == KindInstructional
}

// ParseWeekday accepts full English day names in any case.
func ParseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(strings.TrimSpace(s), d.String()) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid day of week %q", s)
}

// DateOf truncates t to midnight of its calendar date in loc.
func DateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
