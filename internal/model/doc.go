// Package model defines the data types the slotwire engine operates on:
// calendar events, rules (event-to-slot bindings), slots (payload
// templates), and the variant payload value types.
//
// Everything in this package is plain data. Events, rules, and slots are
// supplied by external collaborators as immutable per-cycle snapshots; the
// engine never mutates them. Payload values are a sealed set of variant
// scalar types plus a Deferred variant for expressions the engine passes
// through unresolved.
package model
