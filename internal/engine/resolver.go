package engine

import (
	"log/slog"

	"github.com/slotwire/slotwire/internal/model"
)

// ResolvedMatch is the per-cycle outcome of resolving one active event:
// the winning rule, its slot, and the device targeting carried over from
// the rule. Ephemeral - never persisted.
type ResolvedMatch struct {
	Rule       model.Rule
	Slot       model.Slot
	EventLabel string
	SourceID   string
}

// Resolve selects the winning rule for one event, or no match.
//
// Algorithm:
//  1. Keep rules whose source filter admits the event's source.
//  2. Keep rules whose pattern matches the event label.
//  3. Pick the highest priority; at equal priority the later-defined rule
//     wins. This is deliberate policy, not an artifact: authors expect a
//     newly added rule to take over from an older one at the same
//     priority, so the scan below prefers later candidates on ties.
//  4. Look up the winner's slot. A missing slot is a reported, non-fatal
//     no-match: the rule won but there is nothing deployable.
//
// Pure with respect to its inputs; rules and slots are never mutated.
func Resolve(event model.Event, rules []model.Rule, slots []model.Slot) (ResolvedMatch, bool) {
	var winner model.Rule
	found := false

	for _, rule := range rules {
		if !rule.Sources.Matches(event.SourceID) {
			continue
		}
		if !Matches(rule.Pattern, event) {
			continue
		}
		// >= makes the later-defined rule win priority ties.
		if !found || rule.Priority >= winner.Priority {
			winner = rule
			found = true
		}
	}

	if !found {
		return ResolvedMatch{}, false
	}

	slot, ok := model.SlotByID(slots, winner.SlotID)
	if !ok {
		slog.Warn("rule references non-existent slot",
			"rule_id", winner.ID,
			"slot_id", winner.SlotID,
			"event_label", event.Label,
			"source_id", event.SourceID,
		)
		return ResolvedMatch{}, false
	}

	slog.Info("rule matched",
		"rule_id", winner.ID,
		"event_label", event.Label,
		"source_id", event.SourceID,
		"slot_id", slot.ID,
		"priority", winner.Priority,
	)

	return ResolvedMatch{
		Rule:       winner,
		Slot:       slot,
		EventLabel: event.Label,
		SourceID:   event.SourceID,
	}, true
}

// ResolveAll resolves every active event in order. Events that produce no
// match contribute nothing; the returned slice preserves event order,
// which the desired-state builder relies on for its tie-break.
func ResolveAll(events []model.Event, rules []model.Rule, slots []model.Slot) []ResolvedMatch {
	matches := make([]ResolvedMatch, 0, len(events))
	for _, event := range events {
		if m, ok := Resolve(event, rules, slots); ok {
			matches = append(matches, m)
		}
	}
	return matches
}
