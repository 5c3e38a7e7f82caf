package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/google/uuid"

	"edutrack/internal/store"
)

// Status of one attendance entry.
type Status string

const (
	StatusPresent Status = "present"
	StatusLate    Status = "late"
	StatusAbsent  Status = "absent"
)

// Valid reports whether s is one of the stored statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusLate, StatusAbsent:
		return true
	}
	return false
}

// Method records how an entry was created.
type Method string

const (
	MethodCode   Method = "code"
	MethodManual Method = "manual"
)

// Entry is one immutable ledger record.
type Entry struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	PersonID   string    `json:"person_id"`
	Status     Status    `json:"status"`
	Method     Method    `json:"method"`
	Timestamp  time.Time `json:"timestamp"`
	RecordedBy string    `json:"recorded_by"`
}

// supersedes reports whether e wins over o for the same (session, person).
func (e Entry) supersedes(o Entry) bool {
	if !e.Timestamp.Equal(o.Timestamp) {
		return e.Timestamp.After(o.Timestamp)
	}
	return e.ID > o.ID
}

const (
	bySession = "ledger/s/"
	byPerson  = "ledger/p/"
)

// Repository is the append-only attendance ledger. Every entry is written
// under two keys, one per scan direction, and each key holds the full entry.
type Repository struct {
	kv store.KV
}

// NewRepository creates a ledger over kv.
func NewRepository(kv store.KV) *Repository {
	return &Repository{kv: kv}
}

// Append writes e. Entries are never updated in place.
func (r *Repository) Append(ctx context.Context, e Entry) (Entry, error) {
	if e.SessionID == "" || e.PersonID == "" {
		return Entry{}, errors.New("session and person required")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		return Entry{}, errors.New("timestamp required")
	}
	e.Timestamp = e.Timestamp.UTC()
	payload, err := json.Marshal(e)
	if err != nil {
		return Entry{}, err
	}
	suffix := tsKey(e.Timestamp) + "-" + esc(e.ID)
	if err := r.kv.Put(ctx, sessionPrefix(e.SessionID)+esc(e.PersonID)+"/"+suffix, payload); err != nil {
		return Entry{}, fmt.Errorf("put session key: %w", err)
	}
	if err := r.kv.Put(ctx, personPrefix(e.PersonID)+esc(e.SessionID)+"/"+suffix, payload); err != nil {
		return Entry{}, fmt.Errorf("put person key: %w", err)
	}
	return e, nil
}

// Authoritative returns the winning entry per person for a session.
func (r *Repository) Authoritative(ctx context.Context, sessionID string) (map[string]Entry, error) {
	entries, err := r.scan(ctx, sessionPrefix(sessionID))
	if err != nil {
		return nil, err
	}
	return latestBy(entries, func(e Entry) string { return e.PersonID }), nil
}

// AuthoritativeFor returns the winning entry for one (session, person) pair.
func (r *Repository) AuthoritativeFor(ctx context.Context, sessionID, personID string) (Entry, bool, error) {
	entries, err := r.History(ctx, sessionID, personID)
	if err != nil || len(entries) == 0 {
		return Entry{}, false, err
	}
	return entries[len(entries)-1], true, nil
}

// History returns every entry for the pair, superseded ones included,
// oldest first.
func (r *Repository) History(ctx context.Context, sessionID, personID string) ([]Entry, error) {
	entries, err := r.scan(ctx, sessionPrefix(sessionID)+esc(personID)+"/")
	if err != nil {
		return nil, err
	}
	sortEntries(entries)
	return entries, nil
}

// ForPerson returns the person's authoritative entry per session, newest
// first.
func (r *Repository) ForPerson(ctx context.Context, personID string) ([]Entry, error) {
	entries, err := r.scan(ctx, personPrefix(personID))
	if err != nil {
		return nil, err
	}
	latest := latestBy(entries, func(e Entry) string { return e.SessionID })
	out := make([]Entry, 0, len(latest))
	for _, e := range latest {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].supersedes(out[j]) })
	return out, nil
}

// Snapshot returns the authoritative entries of every session, keyed by
// session id then person id.
func (r *Repository) Snapshot(ctx context.Context) (map[string]map[string]Entry, error) {
	entries, err := r.scan(ctx, bySession)
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]Entry)
	for _, e := range entries {
		m, ok := out[e.SessionID]
		if !ok {
			m = make(map[string]Entry)
			out[e.SessionID] = m
		}
		if cur, ok := m[e.PersonID]; !ok || e.supersedes(cur) {
			m[e.PersonID] = e
		}
	}
	return out, nil
}

func (r *Repository) scan(ctx context.Context, prefix string) ([]Entry, error) {
	pairs, err := r.kv.Scan(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", prefix, err)
	}
	out := make([]Entry, 0, len(pairs))
	for _, p := range pairs {
		var e Entry
		if err := json.Unmarshal(p.Value, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", p.Key, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func latestBy(entries []Entry, key func(Entry) string) map[string]Entry {
	out := make(map[string]Entry, len(entries))
	for _, e := range entries {
		k := key(e)
		if cur, ok := out[k]; !ok || e.supersedes(cur) {
			out[k] = e
		}
	}
	return out
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[j].supersedes(entries[i]) })
}

func sessionPrefix(sessionID string) string { return bySession + esc(sessionID) + "/" }
func personPrefix(personID string) string   { return byPerson + esc(personID) + "/" }

// tsKey renders t so that byte order matches time order.
func tsKey(t time.Time) string { return fmt.Sprintf("%020d", t.UnixNano()) }

func esc(s string) string { return url.PathEscape(s) }
