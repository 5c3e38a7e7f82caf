package timetable

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"edutrack/internal/identity"
)

type fileSlot struct {
	ID      string `yaml:"id"`
	Subject string `yaml:"subject"`
	Owner   string `yaml:"owner"`
	Room    string `yaml:"room"`
	Group   string `yaml:"group"`
	Day     string `yaml:"day"`
	Start   string `yaml:"start"`
	End     string `yaml:"end"`
	Kind    string `yaml:"kind"`
}

type file struct {
	Timezone string              `yaml:"timezone"`
	People   []identity.Person   `yaml:"people"`
	Groups   map[string][]string `yaml:"groups"`
	Slots    []fileSlot          `yaml:"slots"`
}

// Load reads a YAML timetable from path. fallback is used when the file does
// not name a time zone.
func Load(path string, fallback *time.Location) (*Timetable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read timetable: %w", err)
	}
	return Parse(data, fallback)
}

// Parse decodes a YAML timetable document.
func Parse(data []byte, fallback *time.Location) (*Timetable, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode timetable: %w", err)
	}

	loc := fallback
	if f.Timezone != "" {
		l, err := time.LoadLocation(f.Timezone)
		if err != nil {
			return nil, fmt.Errorf("timetable timezone: %w", err)
		}
		loc = l
	}

	slots := make([]Slot, 0, len(f.Slots))
	for i, fs := range f.Slots {
		s, err := fs.slot()
		if err != nil {
			return nil, fmt.Errorf("slot #%d: %w", i+1, err)
		}
		slots = append(slots, s)
	}
	return New(loc, slots, f.Groups, f.People)
}

func (fs fileSlot) slot() (Slot, error) {
	day, err := ParseWeekday(fs.Day)
	if err != nil {
		return Slot{}, err
	}
	start, err := ParseClock(fs.Start)
	if err != nil {
		return Slot{}, err
	}
	end, err := ParseClock(fs.End)
	if err != nil {
		return Slot{}, err
	}
	kind := Kind(strings.ToLower(fs.Kind))
	if kind == "" {
		kind = KindInstructional
	}
	return Slot{
		ID:      fs.ID,
		Subject: fs.Subject,
		OwnerID: fs.Owner,
		Room:    fs.Room,
		Group:   fs.Group,
		Day:     day,
		Start:   start,
		End:     end,
		Kind:    kind,
	}, nil
}
