package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotwire/slotwire/internal/model"
)

func testSlots() []model.Slot {
	return []model.Slot{
		{ID: "comfort", Label: "Comfort", DefaultPayload: model.Payload{"temp": model.Float(21.5)}},
		{ID: "eco", Label: "Eco", DefaultPayload: model.Payload{"temp": model.Float(17.0)}},
	}
}

func TestResolveHighestPriorityWins(t *testing.T) {
	rules := []model.Rule{
		{ID: "low", Sources: model.AllSources(), Pattern: model.Pattern{Kind: model.MatchContains, Value: "standup"}, SlotID: "eco", Priority: 1},
		{ID: "high", Sources: model.AllSources(), Pattern: model.Pattern{Kind: model.MatchContains, Value: "standup"}, SlotID: "comfort", Priority: 10},
	}

	m, ok := Resolve(event("Morning Standup"), rules, testSlots())
	require.True(t, ok)
	assert.Equal(t, "high", m.Rule.ID)
	assert.Equal(t, "comfort", m.Slot.ID)
}

func TestResolveEqualPriorityLaterDefinedWins(t *testing.T) {
	rules := []model.Rule{
		{ID: "first", Sources: model.AllSources(), Pattern: model.Pattern{Kind: model.MatchContains, Value: "standup"}, SlotID: "eco", Priority: 5},
		{ID: "second", Sources: model.AllSources(), Pattern: model.Pattern{Kind: model.MatchContains, Value: "standup"}, SlotID: "comfort", Priority: 5},
	}

	m, ok := Resolve(event("Standup"), rules, testSlots())
	require.True(t, ok)
	assert.Equal(t, "second", m.Rule.ID)
}

func TestResolveSourceFilter(t *testing.T) {
	rules := []model.Rule{
		{ID: "work-only", Sources: model.Sources("cal.work"), Pattern: model.Pattern{Kind: model.MatchContains, Value: "meeting"}, SlotID: "comfort", Priority: 1},
	}

	ev := model.Event{SourceID: "cal.home", Label: "Family meeting"}
	_, ok := Resolve(ev, rules, testSlots())
	assert.False(t, ok)

	ev.SourceID = "cal.work"
	m, ok := Resolve(ev, rules, testSlots())
	require.True(t, ok)
	assert.Equal(t, "work-only", m.Rule.ID)
	assert.Equal(t, "cal.work", m.SourceID)
	assert.Equal(t, "Family meeting", m.EventLabel)
}

func TestResolveNoMatch(t *testing.T) {
	rules := []model.Rule{
		{ID: "r1", Sources: model.AllSources(), Pattern: model.Pattern{Kind: model.MatchExact, Value: "Standup"}, SlotID: "comfort", Priority: 1},
	}

	_, ok := Resolve(event("Lunch"), rules, testSlots())
	assert.False(t, ok)
}

func TestResolveMissingSlotIsNoMatch(t *testing.T) {
	rules := []model.Rule{
		{ID: "dangling", Sources: model.AllSources(), Pattern: model.Pattern{Kind: model.MatchContains, Value: "standup"}, SlotID: "deleted", Priority: 10},
		{ID: "fallback", Sources: model.AllSources(), Pattern: model.Pattern{Kind: model.MatchContains, Value: "standup"}, SlotID: "eco", Priority: 1},
	}

	// The dangling rule wins the priority contest; its missing slot makes
	// the whole event a no-match rather than falling through to the lower
	// priority rule.
	_, ok := Resolve(event("Standup"), rules, testSlots())
	assert.False(t, ok)
}

func TestResolveAllPreservesEventOrder(t *testing.T) {
	rules := []model.Rule{
		{ID: "standup", Sources: model.AllSources(), Pattern: model.Pattern{Kind: model.MatchContains, Value: "standup"}, SlotID: "comfort", Priority: 1},
		{ID: "focus", Sources: model.AllSources(), Pattern: model.Pattern{Kind: model.MatchContains, Value: "focus"}, SlotID: "eco", Priority: 1},
	}
	events := []model.Event{
		event("Focus block"),
		event("No rule for this"),
		event("Standup"),
	}

	matches := ResolveAll(events, rules, testSlots())
	require.Len(t, matches, 2)
	assert.Equal(t, "focus", matches[0].Rule.ID)
	assert.Equal(t, "standup", matches[1].Rule.ID)
}
