package engine

import (
	"log/slog"
	"sort"
)

// Assignment records which (slot, rule) pair owns a device. The desired
// state and the previous state are both maps device id -> Assignment.
type Assignment struct {
	SlotID string
	RuleID string
}

// DesiredState is the per-device assignment computed fresh each cycle.
// INVARIANT: a device id appears at most once - enforced by construction
// in BuildDesired via the claimed set.
type DesiredState map[string]Assignment

// BuildDesired assigns each device to exactly one winning match.
//
// Matches are ordered by priority descending across all of the cycle's
// events; ties go to the later-resolved match (same last-wins policy as
// the resolver, applied globally). Each match then claims its device set:
// the rule's explicit targets or the global pool, minus the slot's
// exclusions, minus devices already claimed by a higher-priority match.
//
// A match whose device set empties out after subtraction contributes
// nothing. That is expected operation (a broader rule shadowed by a
// narrower one), not an error.
func BuildDesired(matches []ResolvedMatch, devicePool []string) DesiredState {
	// Sort by (priority desc, resolution index desc). Breaking ties on the
	// index rather than relying on sort stability makes the later-wins
	// policy explicit: a plain stable descending sort would keep the
	// earlier match first.
	ordered := make([]int, len(matches))
	for i := range ordered {
		ordered[i] = i
	}
	sort.Slice(ordered, func(a, b int) bool {
		ia, ib := ordered[a], ordered[b]
		if matches[ia].Rule.Priority != matches[ib].Rule.Priority {
			return matches[ia].Rule.Priority > matches[ib].Rule.Priority
		}
		return ia > ib
	})

	desired := make(DesiredState)
	claimed := make(map[string]bool)

	for _, idx := range ordered {
		m := matches[idx]

		targets := m.Rule.TargetDevices
		if len(targets) == 0 {
			targets = devicePool
		}

		assigned := 0
		for _, deviceID := range targets {
			if m.Slot.Excludes(deviceID) {
				continue
			}
			if claimed[deviceID] {
				continue
			}
			desired[deviceID] = Assignment{SlotID: m.Slot.ID, RuleID: m.Rule.ID}
			claimed[deviceID] = true
			assigned++
		}

		if assigned == 0 {
			slog.Debug("match contributes no devices",
				"rule_id", m.Rule.ID,
				"slot_id", m.Slot.ID,
				"event_label", m.EventLabel,
			)
		}
	}

	return desired
}
