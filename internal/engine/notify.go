package engine

import (
	"log/slog"
	"time"

	"github.com/slotwire/slotwire/internal/model"
)

// RuleMatched is emitted once per applied change group.
type RuleMatched struct {
	CycleToken   string            `json:"cycle_token"`
	RuleID       string            `json:"rule_id"`
	EventLabel   string            `json:"event_label"`
	SourceID     string            `json:"source_id"`
	SlotID       string            `json:"slot_id"`
	SlotLabel    string            `json:"slot_label"`
	PatternKind  model.PatternKind `json:"pattern_kind"`
	PatternValue string            `json:"pattern_value"`
	Priority     int               `json:"priority"`
	DeviceIDs    []string          `json:"device_ids"`
}

// CycleSummary is emitted once per evaluation cycle.
type CycleSummary struct {
	CycleToken     string        `json:"cycle_token"`
	Seq            int64         `json:"seq"`
	ActiveEvents   int           `json:"active_events"`
	MatchedRules   int           `json:"matched_rules"`
	DevicesChanged int           `json:"devices_changed"`
	DevicesRemoved int           `json:"devices_removed"`
	DevicesFailed  int           `json:"devices_failed"`
	DryRun         bool          `json:"dry_run"`
	Debug          bool          `json:"debug"`
	Forced         bool          `json:"forced"`
	Skipped        bool          `json:"skipped"`
	Elapsed        time.Duration `json:"elapsed"`
}

// FlagChange is emitted when an override flag is set or cleared.
type FlagChange struct {
	Type   FlagType `json:"type"`
	SlotID string   `json:"slot_id,omitempty"`
	// Reason is only set on clear: manual_clear, expired_new_day,
	// expired_next_change, replaced.
	Reason string `json:"reason,omitempty"`
}

// Notifier receives the engine's outcome notifications. Consumers are out
// of scope; the engine only guarantees the emission contract. All methods
// are called from the engine's cycle goroutine and must not block for
// long.
type Notifier interface {
	RuleMatched(m RuleMatched)
	DeviceApplied(r DeviceResult)
	CycleComplete(s CycleSummary)
	FlagSet(c FlagChange)
	FlagCleared(c FlagChange)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) RuleMatched(RuleMatched)    {}
func (NopNotifier) DeviceApplied(DeviceResult) {}
func (NopNotifier) CycleComplete(CycleSummary) {}
func (NopNotifier) FlagSet(FlagChange)         {}
func (NopNotifier) FlagCleared(FlagChange)     {}

// LogNotifier renders notifications as structured log records.
type LogNotifier struct{}

func (LogNotifier) RuleMatched(m RuleMatched) {
	slog.Info("rule matched group",
		"cycle", m.CycleToken,
		"rule_id", m.RuleID,
		"event_label", m.EventLabel,
		"source_id", m.SourceID,
		"slot_id", m.SlotID,
		"slot_label", m.SlotLabel,
		"pattern", string(m.PatternKind)+":"+m.PatternValue,
		"priority", m.Priority,
		"devices", m.DeviceIDs,
	)
}

func (LogNotifier) DeviceApplied(r DeviceResult) {
	if r.Success {
		slog.Info("payload applied",
			"device_id", r.DeviceID,
			"slot_id", r.SlotID,
			"rule_id", r.RuleID,
			"attempts", r.Attempts,
			"dry_run", r.DryRun,
			"skipped", r.Skipped,
		)
		return
	}
	slog.Error("payload apply failed",
		"device_id", r.DeviceID,
		"slot_id", r.SlotID,
		"rule_id", r.RuleID,
		"attempts", r.Attempts,
		"error", r.Error,
	)
}

func (LogNotifier) CycleComplete(s CycleSummary) {
	slog.Info("evaluation complete",
		"cycle", s.CycleToken,
		"seq", s.Seq,
		"active_events", s.ActiveEvents,
		"matched_rules", s.MatchedRules,
		"devices_changed", s.DevicesChanged,
		"devices_removed", s.DevicesRemoved,
		"devices_failed", s.DevicesFailed,
		"dry_run", s.DryRun,
		"debug", s.Debug,
		"forced", s.Forced,
		"skipped", s.Skipped,
		"elapsed", s.Elapsed,
	)
}

func (LogNotifier) FlagSet(c FlagChange) {
	slog.Info("override flag set", "type", c.Type, "slot_id", c.SlotID)
}

func (LogNotifier) FlagCleared(c FlagChange) {
	slog.Info("override flag cleared", "type", c.Type, "reason", c.Reason)
}

// MultiNotifier fans notifications out to several consumers in order.
type MultiNotifier []Notifier

func (m MultiNotifier) RuleMatched(n RuleMatched) {
	for _, sub := range m {
		sub.RuleMatched(n)
	}
}

func (m MultiNotifier) DeviceApplied(r DeviceResult) {
	for _, sub := range m {
		sub.DeviceApplied(r)
	}
}

func (m MultiNotifier) CycleComplete(s CycleSummary) {
	for _, sub := range m {
		sub.CycleComplete(s)
	}
}

func (m MultiNotifier) FlagSet(c FlagChange) {
	for _, sub := range m {
		sub.FlagSet(c)
	}
}

func (m MultiNotifier) FlagCleared(c FlagChange) {
	for _, sub := range m {
		sub.FlagCleared(c)
	}
}
