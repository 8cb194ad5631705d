package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotwire/slotwire/internal/engine"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "slotwire.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenCreatesSchema(t *testing.T) {
	st := openTestStore(t)

	// Fresh database: no flag, no cycles.
	_, ok, err := st.LoadFlag(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	cycles, err := st.RecentCycles(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, cycles)
}

func TestOpenIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slotwire.db")

	st, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, st.SaveFlag(context.Background(), engine.Flag{
		Type:  engine.FlagSkipToday,
		SetAt: time.Now(),
	}))
	require.NoError(t, st.Close())

	// Re-opening an existing database must not wipe it.
	st, err = Open(path)
	require.NoError(t, err)
	defer st.Close()

	_, ok, err := st.LoadFlag(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFlagRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	setAt := time.Date(2026, 8, 29, 7, 30, 0, 0, time.UTC)
	require.NoError(t, st.SaveFlag(ctx, engine.Flag{
		Type:   engine.FlagForceSlot,
		SlotID: "comfort",
		SetAt:  setAt,
	}))

	flag, ok, err := st.LoadFlag(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, engine.FlagForceSlot, flag.Type)
	assert.Equal(t, "comfort", flag.SlotID)
	assert.True(t, flag.SetAt.Equal(setAt))
}

func TestSaveFlagReplaces(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveFlag(ctx, engine.Flag{Type: engine.FlagForceSlot, SlotID: "eco", SetAt: time.Now()}))
	require.NoError(t, st.SaveFlag(ctx, engine.Flag{Type: engine.FlagSkipToday, SetAt: time.Now()}))

	flag, ok, err := st.LoadFlag(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, engine.FlagSkipToday, flag.Type)
	assert.Empty(t, flag.SlotID)
}

func TestClearFlag(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveFlag(ctx, engine.Flag{Type: engine.FlagSkipToday, SetAt: time.Now()}))
	require.NoError(t, st.ClearFlag(ctx))

	_, ok, err := st.LoadFlag(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// Clearing with no flag set is a no-op.
	assert.NoError(t, st.ClearFlag(ctx))
}

func TestRecordCycleAndRecentCycles(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, st.RecordCycle(ctx, engine.CycleSummary{
			CycleToken:     string(rune('a'+i-1)) + "-token",
			Seq:            i,
			ActiveEvents:   2,
			MatchedRules:   1,
			DevicesChanged: int(i),
			Elapsed:        150 * time.Millisecond,
		}))
	}

	records, err := st.RecentCycles(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(3), records[0].Seq, "newest first")
	assert.Equal(t, int64(2), records[1].Seq)
	assert.Equal(t, 150*time.Millisecond, records[0].Elapsed)
	assert.False(t, records[0].RecordedAt.IsZero())
}

func TestRecordCycleIdempotent(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	summary := engine.CycleSummary{CycleToken: "tok-1", Seq: 1}
	require.NoError(t, st.RecordCycle(ctx, summary))
	require.NoError(t, st.RecordCycle(ctx, summary), "duplicate token is a no-op")

	records, err := st.RecentCycles(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestResultsForCycle(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	results := []engine.DeviceResult{
		{CycleToken: "tok-1", DeviceID: "hvac.living", SlotID: "comfort", RuleID: "r1", Success: true, Attempts: 1},
		{CycleToken: "tok-1", DeviceID: "hvac.kitchen", SlotID: "comfort", RuleID: "r1", Success: false, Attempts: 2, Error: "device busy"},
		{CycleToken: "tok-2", DeviceID: "hvac.living", SlotID: "eco", RuleID: "r2", Success: true, Attempts: 1},
	}
	for _, r := range results {
		require.NoError(t, st.RecordDeviceResult(ctx, r))
	}

	got, err := st.ResultsForCycle(ctx, "tok-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, results[0], got[0], "insertion order preserved")
	assert.Equal(t, results[1], got[1])

	empty, err := st.ResultsForCycle(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestJournalNotifierPersists(t *testing.T) {
	st := openTestStore(t)
	journal := NewJournal(st)

	journal.DeviceApplied(engine.DeviceResult{
		CycleToken: "tok-1", DeviceID: "hvac.living", SlotID: "comfort", RuleID: "r1",
		Success: true, Attempts: 1,
	})
	journal.CycleComplete(engine.CycleSummary{CycleToken: "tok-1", Seq: 1, DevicesChanged: 1})

	ctx := context.Background()
	records, err := st.RecentCycles(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "tok-1", records[0].CycleToken)

	results, err := st.ResultsForCycle(ctx, "tok-1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "hvac.living", results[0].DeviceID)
}
