package timetable

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"edutrack/internal/identity"
)

// ErrNotFound is returned when an identity or slot has no timetable entries.
var ErrNotFound = errors.New("not found in timetable")

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Timetable is an immutable weekly schedule plus the people and groups it
// refers to. It is safe for concurrent readers.
type Timetable struct {
	loc      *time.Location
	slots    []Slot
	byID     map[string]Slot
	groups   map[string][]string
	memberOf map[string]map[string]bool
	people   map[string]identity.Person
}

// New validates the inputs and builds a timetable.
func New(loc *time.Location, slots []Slot, groups map[string][]string, people []identity.Person) (*Timetable, error) {
	if loc == nil {
		loc = time.UTC
	}
	tt := &Timetable{
		loc:      loc,
		byID:     make(map[string]Slot, len(slots)),
		groups:   make(map[string][]string, len(groups)),
		memberOf: make(map[string]map[string]bool),
		people:   make(map[string]identity.Person, len(people)),
	}

	for _, p := range people {
		if p.ID == "" {
			return nil, errors.New("person id required")
		}
		if !p.Role.Valid() {
			return nil, fmt.Errorf("person %s: invalid role %q", p.ID, p.Role)
		}
		tt.people[p.ID] = p
	}

	for name, members := range groups {
		if !idPattern.MatchString(name) {
			return nil, fmt.Errorf("group %q: invalid id", name)
		}
		seen := make(map[string]bool, len(members))
		list := make([]string, 0, len(members))
		for _, m := range members {
			if m == "" || seen[m] {
				continue
			}
			seen[m] = true
			list = append(list, m)
			if tt.memberOf[m] == nil {
				tt.memberOf[m] = make(map[string]bool)
			}
			tt.memberOf[m][name] = true
		}
		sort.Strings(list)
		tt.groups[name] = list
	}

	for _, s := range slots {
		if err := tt.checkSlot(s); err != nil {
			return nil, err
		}
		tt.byID[s.ID] = s
		tt.slots = append(tt.slots, s)
	}
	sort.SliceStable(tt.slots, func(i, j int) bool {
		a, b := tt.slots[i], tt.slots[j]
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.ID < b.ID
	})

	if err := checkOverlaps(tt.slots); err != nil {
		return nil, err
	}
	return tt, nil
}

func (tt *Timetable) checkSlot(s Slot) error {
	if !idPattern.MatchString(s.ID) {
		return fmt.Errorf("slot %q: invalid id", s.ID)
	}
	if _, dup := tt.byID[s.ID]; dup {
		return fmt.Errorf("slot %s: duplicate id", s.ID)
	}
	if !s.Kind.Valid() {
		return fmt.Errorf("slot %s: invalid kind %q", s.ID, s.Kind)
	}
	if s.Start < 0 || s.End > 24*60 || s.Start >= s.End {
		return fmt.Errorf("slot %s: start %s must be before end %s", s.ID, s.Start, s.End)
	}
	if s.Instructional() {
		if s.OwnerID == "" {
			return fmt.Errorf("slot %s: instructional slot needs an owner", s.ID)
		}
		if _, ok := tt.groups[s.Group]; !ok {
			return fmt.Errorf("slot %s: unknown group %q", s.ID, s.Group)
		}
	}
	return nil
}

// checkOverlaps enforces that no owner, group, or instructional room is
// double-booked on the same day.
func checkOverlaps(slots []Slot) error {
	for i := 0; i < len(slots); i++ {
		for j := i + 1; j < len(slots); j++ {
			a, b := slots[i], slots[j]
			if !a.Overlaps(b) {
				continue
			}
			switch {
			case a.OwnerID != "" && a.OwnerID == b.OwnerID:
				return fmt.Errorf("slots %s and %s overlap for owner %s", a.ID, b.ID, a.OwnerID)
			case a.Group != "" && a.Group == b.Group:
				return fmt.Errorf("slots %s and %s overlap for group %s", a.ID, b.ID, a.Group)
			case a.Instructional() && b.Instructional() && a.Room == b.Room:
				return fmt.Errorf("slots %s and %s overlap in room %s", a.ID, b.ID, a.Room)
			}
		}
	}
	return nil
}

// Location is the time zone calendar dates are computed in.
func (tt *Timetable) Location() *time.Location { return tt.loc }

// Slots returns every slot ordered by weekday then start time.
func (tt *Timetable) Slots() []Slot {
	out := make([]Slot, len(tt.slots))
	copy(out, tt.slots)
	return out
}

// Slot looks up a slot by id.
func (tt *Timetable) Slot(id string) (Slot, bool) {
	s, ok := tt.byID[id]
	return s, ok
}

// Applies reports whether the slot concerns the identity, as owner or as an
// enrolled member of its group.
func (tt *Timetable) Applies(s Slot, id string) bool {
	if id == "" {
		return false
	}
	if s.OwnerID == id {
		return true
	}
	return s.Group != "" && tt.memberOf[id][s.Group]
}

// SlotsFor returns the identity's slots on date ordered by start time. It
// fails with ErrNotFound only when the identity has no slots on any day.
func (tt *Timetable) SlotsFor(id string, date time.Time) ([]Slot, error) {
	day := date.In(tt.loc).Weekday()
	known := false
	out := []Slot{}
	for _, s := range tt.slots {
		if !tt.Applies(s, id) {
			continue
		}
		known = true
		if s.Day == day {
			out = append(out, s)
		}
	}
	if !known {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return out, nil
}

// SlotsInRoom returns the room's slots on date ordered by start time.
func (tt *Timetable) SlotsInRoom(room string, date time.Time) []Slot {
	day := date.In(tt.loc).Weekday()
	out := []Slot{}
	for _, s := range tt.slots {
		if s.Room == room && s.Day == day {
			out = append(out, s)
		}
	}
	return out
}

// Members returns the sorted ids enrolled in group.
func (tt *Timetable) Members(group string) []string {
	m := tt.groups[group]
	out := make([]string, len(m))
	copy(out, m)
	return out
}

// Enrolled returns the ids enrolled in the slot.
func (tt *Timetable) Enrolled(s Slot) []string {
	if s.Group == "" {
		return []string{}
	}
	return tt.Members(s.Group)
}

// IsEnrolled reports whether id belongs to the slot's group.
func (tt *Timetable) IsEnrolled(s Slot, id string) bool {
	return s.Group != "" && tt.memberOf[id][s.Group]
}

// Person returns the directory entry for id. Unknown ids get a placeholder
// with the id as display name.
func (tt *Timetable) Person(id string) identity.Person {
	if p, ok := tt.people[id]; ok {
		return p
	}
	return identity.Person{ID: id, Name: id, Role: identity.RoleSubject}
}
