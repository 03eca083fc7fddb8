package directory

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/model"
	"gopkg.in/yaml.v3"
)

// Static is an in-memory directory, usually loaded from a YAML file.
type Static struct {
	agents     map[string][]model.AvailabilityWindow
	properties map[string]struct{}
}

func NewStatic(agents map[string][]model.AvailabilityWindow, properties []string) *Static {
	s := &Static{
		agents:     make(map[string][]model.AvailabilityWindow, len(agents)),
		properties: make(map[string]struct{}, len(properties)),
	}
	for id, windows := range agents {
		s.agents[id] = append([]model.AvailabilityWindow(nil), windows...)
	}
	for _, p := range properties {
		s.properties[p] = struct{}{}
	}
	return s
}

func (s *Static) WorkingHours(_ context.Context, agentID string) ([]model.AvailabilityWindow, error) {
	windows, ok := s.agents[agentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	return append([]model.AvailabilityWindow(nil), windows...), nil
}

func (s *Static) PropertyExists(_ context.Context, propertyID string) (bool, error) {
	_, ok := s.properties[propertyID]
	return ok, nil
}

type fileDoc struct {
	Agents     []fileAgent `yaml:"agents"`
	Properties []string    `yaml:"properties"`
}

type fileAgent struct {
	ID       string        `yaml:"id"`
	Timezone string        `yaml:"timezone"`
	Weekly   []fileWeekly  `yaml:"weekly"`
	Dated    []fileDated   `yaml:"dated"`
	Blocked  []fileBlocked `yaml:"blocked"`
}

type fileWeekly struct {
	Days  []string `yaml:"days"`
	Start string   `yaml:"start"`
	End   string   `yaml:"end"`
}

type fileDated struct {
	Date  string `yaml:"date"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

type fileBlocked struct {
	Start time.Time `yaml:"start"`
	End   time.Time `yaml:"end"`
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

func LoadFile(path string) (*Static, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directory file: %w", err)
	}
	return Parse(raw)
}

// Parse builds a Static directory from YAML.
func Parse(raw []byte) (*Static, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse directory: %w", err)
	}

	agents := make(map[string][]model.AvailabilityWindow, len(doc.Agents))
	for _, a := range doc.Agents {
		if strings.TrimSpace(a.ID) == "" {
			return nil, fmt.Errorf("directory: agent without id")
		}
		windows, err := a.windows()
		if err != nil {
			return nil, fmt.Errorf("directory: agent %s: %w", a.ID, err)
		}
		agents[a.ID] = windows
	}
	return NewStatic(agents, doc.Properties), nil
}

func (a fileAgent) windows() ([]model.AvailabilityWindow, error) {
	loc := time.UTC
	if a.Timezone != "" {
		l, err := time.LoadLocation(a.Timezone)
		if err != nil {
			return nil, err
		}
		loc = l
	}

	blocked := make([]model.Interval, 0, len(a.Blocked))
	for _, b := range a.Blocked {
		blocked = append(blocked, model.Interval{Start: b.Start, End: b.End})
	}

	var out []model.AvailabilityWindow
	add := func(w model.AvailabilityWindow, start, end string) error {
		var err error
		if w.Start, err = model.ParseClock(start); err != nil {
			return err
		}
		if w.End, err = model.ParseClock(end); err != nil {
			return err
		}
		w.AgentID = a.ID
		w.Location = loc
		w.Blocked = blocked
		if err := w.Validate(); err != nil {
			return err
		}
		out = append(out, w)
		return nil
	}

	for _, wk := range a.Weekly {
		for _, d := range wk.Days {
			day, err := parseWeekday(d)
			if err != nil {
				return nil, err
			}
			if err := add(model.AvailabilityWindow{Weekday: day}, wk.Start, wk.End); err != nil {
				return nil, err
			}
		}
	}
	for _, dt := range a.Dated {
		if err := add(model.AvailabilityWindow{Date: dt.Date}, dt.Start, dt.End); err != nil {
			return nil, err
		}
	}
	if len(out) == 0 && len(blocked) > 0 {
		return nil, fmt.Errorf("blocked intervals without any window")
	}
	return out, nil
}

// parseWeekday accepts "mon", "Monday" and the like.
func parseWeekday(raw string) (time.Weekday, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if len(v) >= 3 {
		if day, ok := weekdays[v[:3]]; ok {
			return day, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", raw)
}
