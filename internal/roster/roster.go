package roster

import (
	"context"
	"math"
	"sort"
	"time"

	"edutrack/internal/attendance"
	"edutrack/internal/session"
	"edutrack/internal/timetable"
)

// Unmarked is the roster status of an enrolled person with no entry while
// the session has not closed yet.
const Unmarked = "unmarked"

// Stats is derived per request and never stored.
type Stats struct {
	SessionID  string        `json:"session_id"`
	State      session.State `json:"state"`
	Enrolled   int           `json:"enrolled"`
	Present    int           `json:"present"`
	Late       int           `json:"late"`
	Absent     int           `json:"absent"`
	Unmarked   int           `json:"unmarked"`
	Percentage int           `json:"percentage"`
}

// Ratio is the unrounded attended share. A closed session divides by the
// enrolled count; otherwise unmarked people are left out of the denominator.
// A zero denominator gives 0.
func (s Stats) Ratio() float64 {
	denom := s.Enrolled
	if s.State != session.StateClosed {
		denom = s.Present + s.Late + s.Absent
	}
	if denom == 0 {
		return 0
	}
	return float64(s.Present+s.Late) / float64(denom)
}

// Percent rounds a ratio to a whole percentage.
func Percent(ratio float64) int {
	return int(math.Round(100 * ratio))
}

// Row is one person's line in a session roster.
type Row struct {
	PersonID   string            `json:"person_id"`
	Name       string            `json:"name"`
	Status     string            `json:"status"`
	Timestamp  *time.Time        `json:"timestamp,omitempty"`
	Method     attendance.Method `json:"method,omitempty"`
	RecordedBy string            `json:"recorded_by,omitempty"`
}

// Compute derives stats from the enrolled ids and the authoritative entries
// of one session. Entries of people outside the enrolled set are ignored.
func Compute(sessionID string, state session.State, enrolled []string, entries map[string]attendance.Entry) Stats {
	st := Stats{SessionID: sessionID, State: state, Enrolled: len(enrolled)}
	for _, id := range enrolled {
		e, ok := entries[id]
		switch {
		case !ok && state == session.StateClosed:
			st.Absent++
		case !ok:
			st.Unmarked++
		case e.Status == attendance.StatusPresent:
			st.Present++
		case e.Status == attendance.StatusLate:
			st.Late++
		default:
			st.Absent++
		}
	}
	st.Percentage = Percent(st.Ratio())
	return st
}

// Aggregator derives rosters and stats from the ledger.
type Aggregator struct {
	repo     *attendance.Repository
	tt       *timetable.Timetable
	resolver session.Resolver
}

func NewAggregator(repo *attendance.Repository, tt *timetable.Timetable, resolver session.Resolver) *Aggregator {
	return &Aggregator{repo: repo, tt: tt, resolver: resolver}
}

// StatsFor returns the session's counts at now.
func (a *Aggregator) StatsFor(ctx context.Context, s session.Session, now time.Time) (Stats, error) {
	entries, err := a.repo.Authoritative(ctx, s.ID)
	if err != nil {
		return Stats{}, err
	}
	return Compute(s.ID, a.resolver.State(s, now), a.tt.Enrolled(s.Slot), entries), nil
}

// RosterFor lists every enrolled person ordered by display name then id.
func (a *Aggregator) RosterFor(ctx context.Context, s session.Session, now time.Time) ([]Row, Stats, error) {
	entries, err := a.repo.Authoritative(ctx, s.ID)
	if err != nil {
		return nil, Stats{}, err
	}
	state := a.resolver.State(s, now)
	enrolled := a.tt.Enrolled(s.Slot)

	rows := make([]Row, 0, len(enrolled))
	for _, id := range enrolled {
		row := Row{PersonID: id, Name: a.tt.Person(id).Name}
		if e, ok := entries[id]; ok {
			row = withEntry(row, e)
		} else if state == session.StateClosed {
			row.Status = string(attendance.StatusAbsent)
		} else {
			row.Status = Unmarked
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Name != rows[j].Name {
			return rows[i].Name < rows[j].Name
		}
		return rows[i].PersonID < rows[j].PersonID
	})
	return rows, Compute(s.ID, state, enrolled, entries), nil
}

// Recent returns the latest n authoritative marks of the session, newest
// first, for the display's activity feed.
func (a *Aggregator) Recent(ctx context.Context, s session.Session, n int) ([]Row, error) {
	entries, err := a.repo.Authoritative(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	list := make([]attendance.Entry, 0, len(entries))
	for _, e := range entries {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].Timestamp.Equal(list[j].Timestamp) {
			return list[i].Timestamp.After(list[j].Timestamp)
		}
		return list[i].ID > list[j].ID
	})
	if n >= 0 && len(list) > n {
		list = list[:n]
	}
	rows := make([]Row, 0, len(list))
	for _, e := range list {
		rows = append(rows, withEntry(Row{PersonID: e.PersonID, Name: a.tt.Person(e.PersonID).Name}, e))
	}
	return rows, nil
}

func withEntry(row Row, e attendance.Entry) Row {
	ts := e.Timestamp
	row.Status = string(e.Status)
	row.Timestamp = &ts
	row.Method = e.Method
	row.RecordedBy = e.RecordedBy
	return row
}
