package engine

import (
	"sort"

	"github.com/slotwire/slotwire/internal/model"
)

// ChangeSet is the output of diffing desired state against previous state.
type ChangeSet struct {
	// Changed holds devices that are new this cycle or whose (slot, rule)
	// assignment differs from the previous cycle.
	Changed map[string]Assignment
	// Removed holds devices that were assigned last cycle but not this
	// one. They are NOT reverted to any default - the engine has no
	// concept of a "clear" payload. They simply stop receiving commands
	// and keep whatever state was last pushed.
	Removed []string
}

// Empty reports whether the diff requires no work.
func (c ChangeSet) Empty() bool {
	return len(c.Changed) == 0 && len(c.Removed) == 0
}

// Diff computes the minimal set of change operations between the desired
// assignment and the previously-applied one. Pure, no I/O.
func Diff(desired DesiredState, previous DesiredState) ChangeSet {
	changed := make(map[string]Assignment)
	for deviceID, want := range desired {
		if have, ok := previous[deviceID]; !ok || have != want {
			changed[deviceID] = want
		}
	}

	var removed []string
	for deviceID := range previous {
		if _, ok := desired[deviceID]; !ok {
			removed = append(removed, deviceID)
		}
	}
	sort.Strings(removed)

	return ChangeSet{Changed: changed, Removed: removed}
}

// ChangeGroup collects the changed devices that share a (slot, rule)
// assignment. The applier issues one logical operation per group, and
// notifications are emitted once per group rather than per device.
type ChangeGroup struct {
	Assignment Assignment
	Slot       model.Slot
	DeviceIDs  []string
}

// GroupChanges partitions the changed set by assignment. Groups are
// returned in (slot id, rule id) order and device ids within a group are
// sorted, so a cycle's apply order is deterministic.
//
// A changed entry whose slot has disappeared from the snapshot between
// build and grouping cannot happen in practice (both read the same
// snapshot), so slots are looked up without a guard here; BuildDesired
// only emits assignments for slots it was handed.
func GroupChanges(changed map[string]Assignment, slots []model.Slot) []ChangeGroup {
	byAssignment := make(map[Assignment][]string)
	for deviceID, a := range changed {
		byAssignment[a] = append(byAssignment[a], deviceID)
	}

	groups := make([]ChangeGroup, 0, len(byAssignment))
	for a, deviceIDs := range byAssignment {
		sort.Strings(deviceIDs)
		slot, _ := model.SlotByID(slots, a.SlotID)
		groups = append(groups, ChangeGroup{
			Assignment: a,
			Slot:       slot,
			DeviceIDs:  deviceIDs,
		})
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Assignment.SlotID != groups[j].Assignment.SlotID {
			return groups[i].Assignment.SlotID < groups[j].Assignment.SlotID
		}
		return groups[i].Assignment.RuleID < groups[j].Assignment.RuleID
	})

	return groups
}
