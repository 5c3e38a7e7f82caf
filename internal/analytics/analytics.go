package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"edutrack/internal/attendance"
	"edutrack/internal/roster"
	"edutrack/internal/session"
	"edutrack/internal/timetable"
)

// MaxWindow bounds how many days a single query may cover.
const MaxWindow = 366 * 24 * time.Hour

var (
	ErrInvalidWindow    = errors.New("invalid analytics window")
	ErrInvalidBucket    = errors.New("invalid trend bucket")
	ErrInvalidDimension = errors.New("invalid breakdown dimension")
)

// Bucket is the trend granularity.
type Bucket string

const (
	BucketDay  Bucket = "day"
	BucketWeek Bucket = "week"
)

// Label returns the bucket label of day: "2006-01-02" or ISO "2006-W02".
func (b Bucket) Label(day time.Time) (string, error) {
	switch b {
	case BucketDay:
		return day.Format("2006-01-02"), nil
	case BucketWeek:
		y, w := day.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", y, w), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidBucket, b)
}

// Dimension is a breakdown axis.
type Dimension string

const (
	DimStatus  Dimension = "status"
	DimMethod  Dimension = "method"
	DimSubject Dimension = "subject"
	DimRoom    Dimension = "room"
	DimWeekday Dimension = "weekday"
)

// Window is the half-open date range [From, To).
type Window struct {
	From time.Time
	To   time.Time
}

func (w Window) validate() error {
	if !w.From.Before(w.To) {
		return fmt.Errorf("%w: from must be before to", ErrInvalidWindow)
	}
	if w.To.Sub(w.From) > MaxWindow {
		return fmt.Errorf("%w: longer than %d days", ErrInvalidWindow, int(MaxWindow.Hours()/24))
	}
	return nil
}

// Point is one trend bucket.
type Point struct {
	Label      string `json:"label"`
	Percentage int    `json:"percentage"`
	Sessions   int    `json:"sessions"`
}

// Summary is one person's record over a window.
type Summary struct {
	PersonID   string `json:"person_id"`
	Sessions   int    `json:"sessions"`
	Present    int    `json:"present"`
	Late       int    `json:"late"`
	Absent     int    `json:"absent"`
	Percentage int    `json:"percentage"`
}

// Rollup aggregates closed sessions across time. It only reads the ledger.
type Rollup struct {
	repo     *attendance.Repository
	tt       *timetable.Timetable
	resolver session.Resolver
}

func NewRollup(repo *attendance.Repository, tt *timetable.Timetable, resolver session.Resolver) *Rollup {
	return &Rollup{repo: repo, tt: tt, resolver: resolver}
}

// closedStats is a closed instructional session with its derived stats.
type closedStats struct {
	sess    session.Session
	stats   roster.Stats
	entries map[string]attendance.Entry
}

// closed collects the closed instructional sessions of scope (an owner id,
// or empty for the whole institution) inside w.
func (r *Rollup) closed(ctx context.Context, scope string, w Window, now time.Time) ([]closedStats, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}
	snap, err := r.repo.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	keep := func(s timetable.Slot) bool {
		return s.Instructional() && (scope == "" || s.OwnerID == scope)
	}
	var out []closedStats
	for _, s := range session.Between(r.tt, w.From, w.To, keep) {
		state := r.resolver.State(s, now)
		if state != session.StateClosed {
			continue
		}
		entries := snap[s.ID]
		out = append(out, closedStats{
			sess:    s,
			stats:   roster.Compute(s.ID, state, r.tt.Enrolled(s.Slot), entries),
			entries: entries,
		})
	}
	return out, nil
}

// Trend returns one point per bucket in w, in order. A bucket's percentage
// is the mean attendance ratio of its closed sessions; sessions with nobody
// enrolled are left out, and empty buckets report 0 with Sessions = 0.
func (r *Rollup) Trend(ctx context.Context, scope string, w Window, bucket Bucket, now time.Time) ([]Point, error) {
	if _, err := bucket.Label(w.From); err != nil {
		return nil, err
	}
	list, err := r.closed(ctx, scope, w, now)
	if err != nil {
		return nil, err
	}

	loc := r.tt.Location()
	points := []Point{}
	index := map[string]int{}
	for day := timetable.DateOf(w.From, loc); day.Before(w.To); day = day.AddDate(0, 0, 1) {
		label, _ := bucket.Label(day)
		if _, ok := index[label]; !ok {
			index[label] = len(points)
			points = append(points, Point{Label: label})
		}
	}

	sums := make([]float64, len(points))
	for _, c := range list {
		if c.stats.Enrolled == 0 {
			continue
		}
		label, _ := bucket.Label(c.sess.Date)
		i, ok := index[label]
		if !ok {
			continue
		}
		sums[i] += c.stats.Ratio()
		points[i].Sessions++
	}
	for i := range points {
		if points[i].Sessions > 0 {
			points[i].Percentage = roster.Percent(sums[i] / float64(points[i].Sessions))
		}
	}
	return points, nil
}

// Breakdown counts outcomes of closed sessions in w along dim. Status counts
// every enrolled person, with missing entries as absent. Method counts
// written entries. Subject, room and weekday count attended marks.
func (r *Rollup) Breakdown(ctx context.Context, scope string, w Window, dim Dimension, now time.Time) (map[string]int, error) {
	switch dim {
	case DimStatus, DimMethod, DimSubject, DimRoom, DimWeekday:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidDimension, dim)
	}
	list, err := r.closed(ctx, scope, w, now)
	if err != nil {
		return nil, err
	}

	out := map[string]int{}
	add := func(key string, n int) {
		if n > 0 {
			out[key] += n
		}
	}
	for _, c := range list {
		attended := c.stats.Present + c.stats.Late
		switch dim {
		case DimStatus:
			add(string(attendance.StatusPresent), c.stats.Present)
			add(string(attendance.StatusLate), c.stats.Late)
			add(string(attendance.StatusAbsent), c.stats.Absent)
		case DimMethod:
			for _, id := range r.tt.Enrolled(c.sess.Slot) {
				if e, ok := c.entries[id]; ok {
					add(string(e.Method), 1)
				}
			}
		case DimSubject:
			add(c.sess.Slot.Subject, attended)
		case DimRoom:
			add(c.sess.Slot.Room, attended)
		case DimWeekday:
			add(c.sess.Date.Weekday().String(), attended)
		}
	}
	return out, nil
}

// Summary totals a person's closed sessions in w.
func (r *Rollup) Summary(ctx context.Context, personID string, w Window, now time.Time) (Summary, error) {
	if err := w.validate(); err != nil {
		return Summary{}, err
	}
	records, err := r.repo.ForPerson(ctx, personID)
	if err != nil {
		return Summary{}, err
	}
	bySession := make(map[string]attendance.Entry, len(records))
	for _, e := range records {
		bySession[e.SessionID] = e
	}

	sum := Summary{PersonID: personID}
	keep := func(s timetable.Slot) bool { return s.Instructional() && r.tt.IsEnrolled(s, personID) }
	for _, s := range session.Between(r.tt, w.From, w.To, keep) {
		if r.resolver.State(s, now) != session.StateClosed {
			continue
		}
		sum.Sessions++
		switch bySession[s.ID].Status {
		case attendance.StatusPresent:
			sum.Present++
		case attendance.StatusLate:
			sum.Late++
		default:
			sum.Absent++
		}
	}
	if sum.Sessions > 0 {
		sum.Percentage = roster.Percent(float64(sum.Present+sum.Late) / float64(sum.Sessions))
	}
	return sum, nil
}

// Volume counts authoritative ledger entries regardless of session state.
type Volume struct {
	Total   int            `json:"total_records"`
	Today   int            `json:"today_records"`
	Methods map[string]int `json:"methods"`
}

// Volume counts the authoritative entries of scope. Today means the entry
// timestamp falls on now's date in the timetable zone. Entries whose session
// no longer maps to a slot only count in the institution-wide scope.
func (r *Rollup) Volume(ctx context.Context, scope string, now time.Time) (Volume, error) {
	snap, err := r.repo.Snapshot(ctx)
	if err != nil {
		return Volume{}, err
	}
	loc := r.tt.Location()
	today := timetable.DateOf(now, loc)
	v := Volume{Methods: map[string]int{}}
	for sessionID, entries := range snap {
		if scope != "" {
			s, err := session.Occurrence(r.tt, sessionID)
			if err != nil || s.Slot.OwnerID != scope {
				continue
			}
		}
		for _, e := range entries {
			v.Total++
			v.Methods[string(e.Method)]++
			if timetable.DateOf(e.Timestamp, loc).Equal(today) {
				v.Today++
			}
		}
	}
	return v, nil
}
