package session

import (
	"time"

	"edutrack/internal/timetable"
)

// DefaultTolerance absorbs clock skew between clients and the server.
const DefaultTolerance = time.Minute

// Resolver decides which session is live. It holds no state besides its
// tolerance, so every answer is a pure function of the inputs.
type Resolver struct {
	Tolerance time.Duration
}

// NewResolver returns a resolver; a negative tolerance falls back to the default.
func NewResolver(tolerance time.Duration) Resolver {
	if tolerance < 0 {
		tolerance = DefaultTolerance
	}
	return Resolver{Tolerance: tolerance}
}

// State derives the session's state at now.
func (r Resolver) State(s Session, now time.Time) State {
	switch {
	case now.Before(s.Start.Add(-r.Tolerance)):
		return StateUpcoming
	case now.Before(s.End.Add(r.Tolerance)):
		return StateLive
	default:
		return StateClosed
	}
}

// Live reports whether s is live at now.
func (r Resolver) Live(s Session, now time.Time) bool {
	return r.State(s, now) == StateLive
}

// Resolve returns the live session for a person (enrolled subject or owning
// instructor) at now. ok is false outside class hours.
func (r Resolver) Resolve(tt *timetable.Timetable, personID string, now time.Time) (Session, bool) {
	return r.pick(tt, now, func(s timetable.Slot) bool { return tt.Applies(s, personID) })
}

// ResolveRoom returns the session live in room at now.
func (r Resolver) ResolveRoom(tt *timetable.Timetable, room string, now time.Time) (Session, bool) {
	return r.pick(tt, now, func(s timetable.Slot) bool { return s.Room == room })
}

// pick scans yesterday, today and tomorrow so the tolerance window may cross
// midnight, and prefers the earliest start among matches.
func (r Resolver) pick(tt *timetable.Timetable, now time.Time, keep func(timetable.Slot) bool) (Session, bool) {
	today := timetable.DateOf(now, tt.Location())
	var (
		best  Session
		found bool
	)
	for _, s := range Between(tt, today.AddDate(0, 0, -1), today.AddDate(0, 0, 2), keep) {
		if !r.Live(s, now) {
			continue
		}
		if !found || s.Start.Before(best.Start) {
			best, found = s, true
		}
	}
	return best, found
}
