package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// FlagType identifies an override flag. Flags are mutually exclusive:
// setting one replaces any other active flag.
type FlagType string

const (
	// FlagForceSlot pins one slot to the whole device pool regardless of
	// events and rules. Never auto-expires.
	FlagForceSlot FlagType = "force_slot"
	// FlagSkipToday suppresses payload application until the local day
	// changes.
	FlagSkipToday FlagType = "skip_today"
	// FlagSkipUntilNextChange suppresses payload application until the
	// desired assignment next changes.
	FlagSkipUntilNextChange FlagType = "skip_until_next_change"
)

// ParseFlagType converts a user-supplied string to a FlagType.
func ParseFlagType(s string) (FlagType, error) {
	switch FlagType(s) {
	case FlagForceSlot, FlagSkipToday, FlagSkipUntilNextChange:
		return FlagType(s), nil
	}
	return "", fmt.Errorf("unknown flag type %q (want %s, %s, or %s)",
		s, FlagForceSlot, FlagSkipToday, FlagSkipUntilNextChange)
}

// Flag is an active override flag.
type Flag struct {
	Type   FlagType  `json:"type"`
	SlotID string    `json:"slot_id,omitempty"` // required for force_slot
	SetAt  time.Time `json:"set_at"`
}

// SkipsApplication reports whether the flag suppresses payload pushes.
func (f Flag) SkipsApplication() bool {
	return f.Type == FlagSkipToday || f.Type == FlagSkipUntilNextChange
}

// FlagStore persists the active flag across restarts. Implemented by the
// SQLite store; tests use an in-memory fake.
type FlagStore interface {
	// LoadFlag returns the active flag, or ok=false when none is set.
	LoadFlag(ctx context.Context) (Flag, bool, error)
	// SaveFlag stores the flag, replacing any existing one.
	SaveFlag(ctx context.Context, f Flag) error
	// ClearFlag removes the active flag. Clearing when none is set is a
	// no-op.
	ClearFlag(ctx context.Context) error
}

// SetFlag activates an override flag, replacing any existing one
// (mutual exclusion). Thread-safe; takes effect on the next cycle.
func (e *Engine) SetFlag(ctx context.Context, flagType FlagType, slotID string) error {
	switch flagType {
	case FlagForceSlot:
		if slotID == "" {
			return fmt.Errorf("flag %q requires a slot id", FlagForceSlot)
		}
	case FlagSkipToday, FlagSkipUntilNextChange:
		slotID = ""
	default:
		return fmt.Errorf("unknown flag type %q", flagType)
	}

	flag := Flag{Type: flagType, SlotID: slotID, SetAt: e.now()}

	e.flagMu.Lock()
	defer e.flagMu.Unlock()

	if prev, ok := e.activeFlag(); ok {
		e.notifier.FlagCleared(FlagChange{Type: prev.Type, Reason: "replaced"})
	}

	if e.flagStore != nil {
		if err := e.flagStore.SaveFlag(ctx, flag); err != nil {
			return fmt.Errorf("persist flag: %w", err)
		}
	}
	e.flag = &flag
	e.notifier.FlagSet(FlagChange{Type: flag.Type, SlotID: flag.SlotID})
	return nil
}

// ClearFlag removes the active override flag.
func (e *Engine) ClearFlag(ctx context.Context, reason string) error {
	if reason == "" {
		reason = "manual_clear"
	}

	e.flagMu.Lock()
	defer e.flagMu.Unlock()
	return e.clearFlagLocked(ctx, reason)
}

func (e *Engine) clearFlagLocked(ctx context.Context, reason string) error {
	flag, ok := e.activeFlag()
	if !ok {
		return nil
	}

	if e.flagStore != nil {
		if err := e.flagStore.ClearFlag(ctx); err != nil {
			return fmt.Errorf("clear flag: %w", err)
		}
	}
	e.flag = nil
	e.notifier.FlagCleared(FlagChange{Type: flag.Type, Reason: reason})
	return nil
}

// ActiveFlag returns the current override flag, if any.
func (e *Engine) ActiveFlag() (Flag, bool) {
	e.flagMu.Lock()
	defer e.flagMu.Unlock()
	return e.activeFlag()
}

func (e *Engine) activeFlag() (Flag, bool) {
	if e.flag == nil {
		return Flag{}, false
	}
	return *e.flag, true
}

// loadFlag primes the in-memory flag from the store at engine start.
func (e *Engine) loadFlag(ctx context.Context) error {
	if e.flagStore == nil {
		return nil
	}
	flag, ok, err := e.flagStore.LoadFlag(ctx)
	if err != nil {
		return fmt.Errorf("load flag: %w", err)
	}
	e.flagMu.Lock()
	defer e.flagMu.Unlock()
	if ok {
		e.flag = &flag
	}
	return nil
}

// refreshFlag syncs the in-memory flag from the store at the top of a
// cycle, so a flag set or cleared by another process (the flag command
// against a running daemon's database) is observed without a restart.
// Store errors keep the in-memory flag; a read failure must not take the
// active override away.
func (e *Engine) refreshFlag(ctx context.Context) {
	if e.flagStore == nil {
		return
	}
	flag, ok, err := e.flagStore.LoadFlag(ctx)
	if err != nil {
		slog.Error("flag refresh failed", "error", err)
		return
	}

	e.flagMu.Lock()
	defer e.flagMu.Unlock()
	switch {
	case ok && (e.flag == nil || !sameFlag(*e.flag, flag)):
		e.flag = &flag
		slog.Info("override flag picked up", "type", flag.Type, "slot_id", flag.SlotID)
	case !ok && e.flag != nil:
		slog.Info("override flag cleared externally", "type", e.flag.Type)
		e.flag = nil
	}
}

func sameFlag(a, b Flag) bool {
	return a.Type == b.Type && a.SlotID == b.SlotID && a.SetAt.Equal(b.SetAt)
}

// checkFlagExpiration auto-clears flags whose condition has passed.
// Called at the top of each cycle and again after diffing (the
// skip_until_next_change flag expires on the change that ends it, so the
// post-diff check clears it for subsequent cycles while the current cycle
// still skips).
//
//   - skip_today expires once the local day is later than the day it was
//     set
//   - skip_until_next_change expires when the assignment changed
//   - force_slot never auto-expires
func (e *Engine) checkFlagExpiration(ctx context.Context, assignmentChanged bool) {
	e.flagMu.Lock()
	defer e.flagMu.Unlock()

	flag, ok := e.activeFlag()
	if !ok {
		return
	}

	switch flag.Type {
	case FlagSkipToday:
		now := e.now()
		setY, setM, setD := flag.SetAt.Date()
		nowY, nowM, nowD := now.Date()
		if nowY != setY || nowM != setM || nowD != setD {
			if err := e.clearFlagLocked(ctx, "expired_new_day"); err != nil {
				slog.Error("flag expiration failed", "type", flag.Type, "error", err)
			}
		}
	case FlagSkipUntilNextChange:
		if assignmentChanged {
			if err := e.clearFlagLocked(ctx, "expired_next_change"); err != nil {
				slog.Error("flag expiration failed", "type", flag.Type, "error", err)
			}
		}
	case FlagForceSlot:
		// Sticky until cleared explicitly.
	}
}
