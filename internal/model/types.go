package model

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Event is a calendar occurrence snapshot supplied by the event source.
// The engine receives events already filtered to the active window; Start
// and End are retained for logging and for collaborators that derive the
// active flag themselves.
type Event struct {
	SourceID string    `json:"source_id" yaml:"source_id"`
	Label    string    `json:"label" yaml:"label"`
	Start    time.Time `json:"start" yaml:"start"`
	End      time.Time `json:"end" yaml:"end"`
}

// ActiveAt reports whether the event covers the given instant
// (start inclusive, end exclusive).
func (e Event) ActiveAt(now time.Time) bool {
	return !now.Before(e.Start) && now.Before(e.End)
}

// PatternKind selects the matching strategy for a rule pattern.
type PatternKind string

const (
	// MatchExact is a case-sensitive equality match on the event label.
	MatchExact PatternKind = "exact"
	// MatchContains is a case-insensitive substring match.
	MatchContains PatternKind = "contains"
	// MatchRegex anchors the expression at the start of the label.
	// Authors must write a leading wildcard to match anywhere.
	MatchRegex PatternKind = "regex"
)

// Pattern is the predicate half of a rule: how to test an event label.
type Pattern struct {
	Kind  PatternKind `json:"kind" yaml:"kind"`
	Value string      `json:"value" yaml:"value"`
}

func (p Pattern) String() string {
	return fmt.Sprintf("%s:%q", p.Kind, p.Value)
}

// SourceFilter scopes a rule to event sources. The zero value matches
// nothing; use AllSources or Sources to construct one.
type SourceFilter struct {
	// All matches every source when true; IDs is ignored.
	All bool
	// IDs is the explicit set of source ids the filter admits.
	IDs []string
}

// AllSources returns the wildcard filter.
func AllSources() SourceFilter {
	return SourceFilter{All: true}
}

// Sources returns a filter admitting exactly the given source ids.
func Sources(ids ...string) SourceFilter {
	return SourceFilter{IDs: ids}
}

// Matches reports whether the filter admits the given source id.
func (f SourceFilter) Matches(sourceID string) bool {
	if f.All {
		return true
	}
	for _, id := range f.IDs {
		if id == sourceID {
			return true
		}
	}
	return false
}

func (f SourceFilter) String() string {
	if f.All {
		return "*"
	}
	return fmt.Sprintf("%v", f.IDs)
}

// UnmarshalYAML accepts "*", a single source id, or a list of ids.
func (f *SourceFilter) UnmarshalYAML(node *yaml.Node) error {
	var single string
	if err := node.Decode(&single); err == nil {
		if single == "*" {
			*f = SourceFilter{All: true}
		} else {
			*f = SourceFilter{IDs: []string{single}}
		}
		return nil
	}
	var many []string
	if err := node.Decode(&many); err != nil {
		return fmt.Errorf("source filter must be %q, a source id, or a list of source ids", "*")
	}
	*f = SourceFilter{IDs: many}
	return nil
}

// MarshalJSON renders the wildcard as "*" and explicit filters as a list.
func (f SourceFilter) MarshalJSON() ([]byte, error) {
	if f.All {
		return []byte(`"*"`), nil
	}
	out := []byte{'['}
	for i, id := range f.IDs {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, fmt.Sprintf("%q", id)...)
	}
	return append(out, ']'), nil
}

// Rule binds events matching a pattern to a slot. Rules are evaluated in
// authoring order: at equal priority the later-defined rule wins, so the
// order of the rules slice is significant and must be preserved.
type Rule struct {
	ID      string       `json:"id" yaml:"id"`
	Sources SourceFilter `json:"sources" yaml:"sources"`
	Pattern Pattern      `json:"pattern" yaml:"pattern"`
	SlotID  string       `json:"slot_id" yaml:"slot_id"`
	// TargetDevices restricts the rule to these devices. Empty means the
	// global device pool.
	TargetDevices []string `json:"target_devices,omitempty" yaml:"target_devices"`
	Priority      int      `json:"priority" yaml:"priority"`
}

// Slot is a reusable named payload template.
type Slot struct {
	ID             string  `json:"id" yaml:"id"`
	Label          string  `json:"label" yaml:"label"`
	DefaultPayload Payload `json:"default_payload" yaml:"default_payload"`
	// DeviceOverrides supersedes DefaultPayload for specific devices.
	DeviceOverrides map[string]Payload `json:"device_overrides,omitempty" yaml:"device_overrides"`
	// ExcludedDevices are never touched by this slot, even if targeted.
	ExcludedDevices []string `json:"excluded_devices,omitempty" yaml:"excluded_devices"`
}

// Excludes reports whether the slot must never touch the given device.
func (s Slot) Excludes(deviceID string) bool {
	for _, id := range s.ExcludedDevices {
		if id == deviceID {
			return true
		}
	}
	return false
}

// EffectivePayload resolves the payload to push to a device: the
// device-specific override when present, else the default payload.
func (s Slot) EffectivePayload(deviceID string) Payload {
	if p, ok := s.DeviceOverrides[deviceID]; ok {
		return p
	}
	return s.DefaultPayload
}

// SlotByID looks up a slot in a snapshot by id.
func SlotByID(slots []Slot, id string) (Slot, bool) {
	for _, s := range slots {
		if s.ID == id {
			return s, true
		}
	}
	return Slot{}, false
}
