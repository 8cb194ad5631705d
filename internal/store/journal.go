package store

import (
	"context"
	"fmt"
	"time"

	"github.com/slotwire/slotwire/internal/engine"
)

// CycleRecord is a journaled cycle summary plus its storage timestamp.
type CycleRecord struct {
	engine.CycleSummary
	RecordedAt time.Time
}

// RecordCycle journals a cycle summary.
// Uses ON CONFLICT DO NOTHING for idempotency - a token is written once.
func (s *Store) RecordCycle(ctx context.Context, summary engine.CycleSummary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cycles
		(cycle_token, seq, active_events, matched_rules, devices_changed,
		 devices_removed, devices_failed, dry_run, debug, forced, skipped,
		 elapsed_ms, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cycle_token) DO NOTHING
	`,
		summary.CycleToken,
		summary.Seq,
		summary.ActiveEvents,
		summary.MatchedRules,
		summary.DevicesChanged,
		summary.DevicesRemoved,
		summary.DevicesFailed,
		summary.DryRun,
		summary.Debug,
		summary.Forced,
		summary.Skipped,
		summary.Elapsed.Milliseconds(),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record cycle %s: %w", summary.CycleToken, err)
	}
	return nil
}

// RecordDeviceResult journals one per-device apply outcome.
func (s *Store) RecordDeviceResult(ctx context.Context, r engine.DeviceResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO device_results
		(cycle_token, device_id, slot_id, rule_id, success, attempts,
		 error, dry_run, skipped, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.CycleToken,
		r.DeviceID,
		r.SlotID,
		r.RuleID,
		r.Success,
		r.Attempts,
		r.Error,
		r.DryRun,
		r.Skipped,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record device result %s/%s: %w", r.CycleToken, r.DeviceID, err)
	}
	return nil
}

// RecentCycles returns the most recent cycle summaries, newest first.
func (s *Store) RecentCycles(ctx context.Context, limit int) ([]CycleRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT cycle_token, seq, active_events, matched_rules,
		       devices_changed, devices_removed, devices_failed,
		       dry_run, debug, forced, skipped, elapsed_ms, recorded_at
		FROM cycles
		ORDER BY seq DESC, cycle_token DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("read recent cycles: %w", err)
	}
	defer rows.Close()

	var records []CycleRecord
	for rows.Next() {
		var (
			rec       CycleRecord
			elapsedMS int64
			recorded  string
		)
		if err := rows.Scan(
			&rec.CycleToken, &rec.Seq, &rec.ActiveEvents, &rec.MatchedRules,
			&rec.DevicesChanged, &rec.DevicesRemoved, &rec.DevicesFailed,
			&rec.DryRun, &rec.Debug, &rec.Forced, &rec.Skipped,
			&elapsedMS, &recorded,
		); err != nil {
			return nil, fmt.Errorf("scan cycle row: %w", err)
		}
		rec.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		if ts, err := time.Parse(time.RFC3339Nano, recorded); err == nil {
			rec.RecordedAt = ts
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read recent cycles: %w", err)
	}

	return records, nil
}

// ResultsForCycle returns the journaled device results for one cycle in
// insertion order.
func (s *Store) ResultsForCycle(ctx context.Context, cycleToken string) ([]engine.DeviceResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cycle_token, device_id, slot_id, rule_id, success,
		       attempts, error, dry_run, skipped
		FROM device_results
		WHERE cycle_token = ?
		ORDER BY id
	`, cycleToken)
	if err != nil {
		return nil, fmt.Errorf("read results for cycle %s: %w", cycleToken, err)
	}
	defer rows.Close()

	var results []engine.DeviceResult
	for rows.Next() {
		var r engine.DeviceResult
		if err := rows.Scan(
			&r.CycleToken, &r.DeviceID, &r.SlotID, &r.RuleID,
			&r.Success, &r.Attempts, &r.Error, &r.DryRun, &r.Skipped,
		); err != nil {
			return nil, fmt.Errorf("scan device result row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read results for cycle %s: %w", cycleToken, err)
	}

	return results, nil
}

// Journal adapts the store to engine.Notifier, persisting device results
// and cycle summaries as they are emitted. Flag and rule-matched
// notifications are not journaled - flags have their own table and
// matches are recoverable from the results.
type Journal struct {
	store *Store
	// writeTimeout bounds each journal write so a wedged disk cannot
	// stall the cycle goroutine.
	writeTimeout time.Duration
}

// NewJournal creates a journaling notifier backed by the store.
func NewJournal(s *Store) *Journal {
	return &Journal{store: s, writeTimeout: 5 * time.Second}
}

func (j *Journal) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), j.writeTimeout)
}

// RuleMatched implements engine.Notifier.
func (j *Journal) RuleMatched(engine.RuleMatched) {}

// DeviceApplied implements engine.Notifier.
func (j *Journal) DeviceApplied(r engine.DeviceResult) {
	ctx, cancel := j.ctx()
	defer cancel()
	if err := j.store.RecordDeviceResult(ctx, r); err != nil {
		// Journal failures never propagate into the cycle.
		logStoreError("journal device result", err)
	}
}

// CycleComplete implements engine.Notifier.
func (j *Journal) CycleComplete(s engine.CycleSummary) {
	ctx, cancel := j.ctx()
	defer cancel()
	if err := j.store.RecordCycle(ctx, s); err != nil {
		logStoreError("journal cycle summary", err)
	}
}

// FlagSet implements engine.Notifier.
func (j *Journal) FlagSet(engine.FlagChange) {}

// FlagCleared implements engine.Notifier.
func (j *Journal) FlagCleared(engine.FlagChange) {}
