// Package engine implements the slotwire binding-resolution and
// state-reconciliation engine.
//
// The engine binds active calendar events to slot payload templates via
// prioritized rules, computes the desired per-device assignment, diffs it
// against the previously-applied state, and pushes only the changed
// payloads to devices.
//
// ARCHITECTURE:
//
// Single-Writer Cycle Loop:
// All reconciliation state (the previous-assignment map, override flags)
// is owned by the Run loop goroutine. External callers request work with
// Trigger(), which coalesces: a trigger arriving mid-cycle queues exactly
// one re-run after the current cycle completes. Cycles never interleave.
//
// Cycle Processing Flow:
//  1. Snapshot events, rules, slots, and the device pool from collaborators
//  2. Resolve the winning rule per active event (priority desc,
//     last-defined wins ties)
//  3. Build the desired state: each device assigned to at most one rule
//  4. Diff desired against previous, grouping changes by (slot, rule)
//  5. Apply each group sequentially with bounded retry
//  6. Replace the previous-state map with the full desired state and emit
//     a cycle summary
//
// Matching and diffing are pure and perform no I/O. Application is
// sequential within a cycle to bound load on device integrations; the
// whole cycle runs under a timeout so one unresponsive device cannot
// stall the engine past the current cycle.
//
// Errors from matching or application never abort a cycle: invalid
// patterns fail closed, rules referencing missing slots contribute
// nothing, and device failures are recorded per device while processing
// continues. The previous-state map is always updated at cycle end, even
// for devices whose apply failed.
package engine
