// Package store provides SQLite-backed persistence for the parts of
// slotwire that must survive restarts: the active override flag and the
// outcome journal (cycle summaries and per-device apply results).
//
// The engine's reconciliation state is deliberately NOT stored here - the
// previous-assignment map is in-memory only and rebuilt from scratch on
// restart. The journal is write-mostly history for the history command
// and external inspection; the engine never reads it back.
package store
