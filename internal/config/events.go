package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/slotwire/slotwire/internal/engine"
	"github.com/slotwire/slotwire/internal/model"
)

// eventsDoc is the on-disk shape of an events file.
type eventsDoc struct {
	Events []model.Event `yaml:"events"`
}

// LoadEvents reads an events file. Events are returned in document order
// and are not filtered; callers apply their own time window.
func LoadEvents(path string) ([]model.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading events: %w", err)
	}
	var doc eventsDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	for i, ev := range doc.Events {
		if ev.SourceID == "" {
			return nil, fmt.Errorf("events[%d]: missing source_id", i)
		}
		if !ev.End.After(ev.Start) {
			return nil, fmt.Errorf("events[%d] (%s): end is not after start", i, ev.Label)
		}
	}
	return doc.Events, nil
}

// ActiveEvents filters to events covering the given instant, preserving
// document order. Events from disabled sources are dropped when the
// config names the source.
func ActiveEvents(events []model.Event, cfg *Config, now time.Time) []model.Event {
	var active []model.Event
	for _, ev := range events {
		if !ev.ActiveAt(now) {
			continue
		}
		if src, ok := cfg.SourceByID(ev.SourceID); ok && !src.Enabled {
			continue
		}
		active = append(active, ev)
	}
	return active
}

// FileSource builds cycle snapshots from a config file and an events file.
// Both are re-read on every cycle so edits take effect on the next
// evaluation without a restart.
type FileSource struct {
	ConfigPath string
	EventsPath string
	// Now supplies the active-window instant; defaults to time.Now.
	Now func() time.Time
}

var _ engine.SnapshotSource = (*FileSource)(nil)

func (s *FileSource) Snapshot(ctx context.Context) (engine.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return engine.Snapshot{}, err
	}
	cfg, err := Load(s.ConfigPath)
	if err != nil {
		return engine.Snapshot{}, err
	}
	events, err := LoadEvents(s.EventsPath)
	if err != nil {
		return engine.Snapshot{}, err
	}
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	return engine.Snapshot{
		Events:     ActiveEvents(events, cfg, now),
		Rules:      cfg.Rules,
		Slots:      cfg.Slots,
		DevicePool: cfg.Devices,
	}, nil
}
