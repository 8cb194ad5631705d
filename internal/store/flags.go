package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/slotwire/slotwire/internal/engine"
)

// Store implements engine.FlagStore.

// LoadFlag returns the active override flag, or ok=false when none is set.
func (s *Store) LoadFlag(ctx context.Context) (engine.Flag, bool, error) {
	var (
		flagType string
		slotID   sql.NullString
		setAt    string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT flag_type, slot_id, set_at FROM flags WHERE id = 1`,
	).Scan(&flagType, &slotID, &setAt)
	if err == sql.ErrNoRows {
		return engine.Flag{}, false, nil
	}
	if err != nil {
		return engine.Flag{}, false, fmt.Errorf("load flag: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, setAt)
	if err != nil {
		return engine.Flag{}, false, fmt.Errorf("load flag: parse set_at: %w", err)
	}

	return engine.Flag{
		Type:   engine.FlagType(flagType),
		SlotID: slotID.String,
		SetAt:  ts,
	}, true, nil
}

// SaveFlag stores the flag, replacing any existing one.
func (s *Store) SaveFlag(ctx context.Context, f engine.Flag) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flags (id, flag_type, slot_id, set_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			flag_type = excluded.flag_type,
			slot_id   = excluded.slot_id,
			set_at    = excluded.set_at
	`,
		string(f.Type),
		f.SlotID,
		f.SetAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save flag: %w", err)
	}
	return nil
}

// ClearFlag removes the active flag. No-op when none is set.
func (s *Store) ClearFlag(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM flags WHERE id = 1`); err != nil {
		return fmt.Errorf("clear flag: %w", err)
	}
	return nil
}
