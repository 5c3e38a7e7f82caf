package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"edutrack/internal/timetable"
)

const dateLayout = "2006-01-02"

// ErrNotFound is returned for session ids that name no slot occurrence.
var ErrNotFound = errors.New("session not found")

// State is the derived lifecycle position of a session.
type State string

const (
	StateUpcoming State = "upcoming"
	StateLive     State = "live"
	StateClosed   State = "closed"
)

// Session is one calendar occurrence of a timetable slot.
type Session struct {
	ID    string         `json:"id"`
	Slot  timetable.Slot `json:"slot"`
	Date  time.Time      `json:"date"`
	Start time.Time      `json:"start"`
	End   time.Time      `json:"end"`
}

// MakeID builds the canonical "<slot>:<YYYY-MM-DD>" session id.
func MakeID(slotID string, date time.Time) string {
	return slotID + ":" + date.Format(dateLayout)
}

// Of builds the occurrence of slot on date. date must already be in the
// timetable's location.
func Of(slot timetable.Slot, date time.Time) Session {
	start, end := slot.Bounds(date)
	y, m, d := date.Date()
	return Session{
		ID:    MakeID(slot.ID, date),
		Slot:  slot,
		Date:  time.Date(y, m, d, 0, 0, 0, 0, date.Location()),
		Start: start,
		End:   end,
	}
}

// Occurrence parses a session id and rebuilds the session against tt.
func Occurrence(tt *timetable.Timetable, id string) (Session, error) {
	i := strings.LastIndexByte(id, ':')
	if i <= 0 {
		return Session{}, fmt.Errorf("%w: malformed id %q", ErrNotFound, id)
	}
	slot, ok := tt.Slot(id[:i])
	if !ok {
		return Session{}, fmt.Errorf("%w: unknown slot %q", ErrNotFound, id[:i])
	}
	date, err := time.ParseInLocation(dateLayout, id[i+1:], tt.Location())
	if err != nil {
		return Session{}, fmt.Errorf("%w: bad date in %q", ErrNotFound, id)
	}
	if date.Weekday() != slot.Day {
		return Session{}, fmt.Errorf("%w: %s does not meet on %s", ErrNotFound, slot.ID, date.Weekday())
	}
	return Of(slot, date), nil
}

// Between enumerates occurrences of the slots accepted by keep whose date
// lies in [from, to), ordered by start time.
func Between(tt *timetable.Timetable, from, to time.Time, keep func(timetable.Slot) bool) []Session {
	loc := tt.Location()
	slots := tt.Slots()
	var out []Session
	for day := timetable.DateOf(from, loc); day.Before(to); day = day.AddDate(0, 0, 1) {
		for _, s := range slots {
			if s.Day != day.Weekday() || (keep != nil && !keep(s)) {
				continue
			}
			out = append(out, Of(s, day))
		}
	}
	return out
}
