package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slotwire/slotwire/internal/model"
)

func match(ruleID, slotID string, priority int, targets ...string) ResolvedMatch {
	return ResolvedMatch{
		Rule: model.Rule{ID: ruleID, SlotID: slotID, Priority: priority, TargetDevices: targets},
		Slot: model.Slot{ID: slotID},
	}
}

func TestBuildDesiredPoolAssignment(t *testing.T) {
	pool := []string{"hvac.living", "hvac.kitchen"}

	desired := BuildDesired([]ResolvedMatch{match("r1", "comfort", 1)}, pool)

	assert.Equal(t, DesiredState{
		"hvac.living":  {SlotID: "comfort", RuleID: "r1"},
		"hvac.kitchen": {SlotID: "comfort", RuleID: "r1"},
	}, desired)
}

func TestBuildDesiredTargetedDevices(t *testing.T) {
	pool := []string{"hvac.living", "hvac.kitchen", "hvac.office"}

	desired := BuildDesired([]ResolvedMatch{
		match("r1", "comfort", 1, "hvac.office"),
	}, pool)

	assert.Equal(t, DesiredState{
		"hvac.office": {SlotID: "comfort", RuleID: "r1"},
	}, desired)
}

func TestBuildDesiredHigherPriorityClaimsFirst(t *testing.T) {
	pool := []string{"hvac.living", "hvac.kitchen"}

	desired := BuildDesired([]ResolvedMatch{
		match("broad", "eco", 1),
		match("narrow", "comfort", 10, "hvac.living"),
	}, pool)

	assert.Equal(t, DesiredState{
		"hvac.living":  {SlotID: "comfort", RuleID: "narrow"},
		"hvac.kitchen": {SlotID: "eco", RuleID: "broad"},
	}, desired)
}

func TestBuildDesiredEqualPriorityLaterMatchWins(t *testing.T) {
	pool := []string{"hvac.living"}

	desired := BuildDesired([]ResolvedMatch{
		match("earlier", "eco", 5),
		match("later", "comfort", 5),
	}, pool)

	assert.Equal(t, DesiredState{
		"hvac.living": {SlotID: "comfort", RuleID: "later"},
	}, desired)
}

func TestBuildDesiredExcludedDevices(t *testing.T) {
	pool := []string{"hvac.living", "hvac.garage"}
	m := match("r1", "comfort", 1)
	m.Slot.ExcludedDevices = []string{"hvac.garage"}

	desired := BuildDesired([]ResolvedMatch{m}, pool)

	assert.Equal(t, DesiredState{
		"hvac.living": {SlotID: "comfort", RuleID: "r1"},
	}, desired)
}

func TestBuildDesiredShadowedMatchContributesNothing(t *testing.T) {
	pool := []string{"hvac.living"}

	desired := BuildDesired([]ResolvedMatch{
		match("shadowed", "eco", 1, "hvac.living"),
		match("winner", "comfort", 10, "hvac.living"),
	}, pool)

	assert.Len(t, desired, 1)
	assert.Equal(t, "winner", desired["hvac.living"].RuleID)
}

func TestBuildDesiredEmptyInputs(t *testing.T) {
	assert.Empty(t, BuildDesired(nil, []string{"hvac.living"}))
	assert.Empty(t, BuildDesired([]ResolvedMatch{match("r1", "comfort", 1)}, nil))
}
