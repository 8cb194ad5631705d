package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotwire/slotwire/internal/testutil"
)

func newFlagEngine(t *testing.T) (*Engine, *memFlagStore) {
	t.Helper()
	flags := &memFlagStore{}
	eng := New(&scenario{snapshot: standupSnapshot()}, &testutil.RecordingSink{}, nil,
		WithFlagStore(flags),
	)
	return eng, flags
}

func TestParseFlagType(t *testing.T) {
	for _, valid := range []string{"force_slot", "skip_today", "skip_until_next_change"} {
		got, err := ParseFlagType(valid)
		require.NoError(t, err)
		assert.Equal(t, FlagType(valid), got)
	}

	_, err := ParseFlagType("skip_forever")
	assert.Error(t, err)
}

func TestSetFlagForceSlotRequiresSlot(t *testing.T) {
	eng, _ := newFlagEngine(t)

	err := eng.SetFlag(context.Background(), FlagForceSlot, "")
	assert.Error(t, err)

	_, ok := eng.ActiveFlag()
	assert.False(t, ok)
}

func TestSetFlagRejectsUnknownType(t *testing.T) {
	eng, _ := newFlagEngine(t)

	err := eng.SetFlag(context.Background(), "banana", "")
	assert.Error(t, err)
}

func TestSetFlagIgnoresSlotForSkipFlags(t *testing.T) {
	eng, _ := newFlagEngine(t)

	require.NoError(t, eng.SetFlag(context.Background(), FlagSkipToday, "comfort"))

	flag, ok := eng.ActiveFlag()
	require.True(t, ok)
	assert.Empty(t, flag.SlotID)
}

func TestSetFlagMutualExclusion(t *testing.T) {
	eng, flags := newFlagEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.SetFlag(ctx, FlagForceSlot, "eco"))
	require.NoError(t, eng.SetFlag(ctx, FlagSkipToday, ""))

	flag, ok := eng.ActiveFlag()
	require.True(t, ok)
	assert.Equal(t, FlagSkipToday, flag.Type)

	stored, ok, err := flags.LoadFlag(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, FlagSkipToday, stored.Type, "replacement persisted")
}

func TestClearFlag(t *testing.T) {
	eng, flags := newFlagEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.SetFlag(ctx, FlagForceSlot, "eco"))
	require.NoError(t, eng.ClearFlag(ctx, ""))

	_, ok := eng.ActiveFlag()
	assert.False(t, ok)

	_, ok, err := flags.LoadFlag(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// Clearing again is a no-op.
	assert.NoError(t, eng.ClearFlag(ctx, ""))
}

func TestFlagNotifications(t *testing.T) {
	var changes []FlagChange
	notifier := &flagRecorder{changes: &changes}
	eng := New(&scenario{snapshot: standupSnapshot()}, &testutil.RecordingSink{}, nil,
		WithFlagStore(&memFlagStore{}),
		WithNotifier(notifier),
	)
	ctx := context.Background()

	require.NoError(t, eng.SetFlag(ctx, FlagForceSlot, "eco"))
	require.NoError(t, eng.SetFlag(ctx, FlagSkipToday, ""))
	require.NoError(t, eng.ClearFlag(ctx, ""))

	require.Len(t, changes, 4)
	assert.Equal(t, FlagChange{Type: FlagForceSlot, SlotID: "eco"}, changes[0])
	assert.Equal(t, FlagChange{Type: FlagForceSlot, Reason: "replaced"}, changes[1])
	assert.Equal(t, FlagChange{Type: FlagSkipToday}, changes[2])
	assert.Equal(t, FlagChange{Type: FlagSkipToday, Reason: "manual_clear"}, changes[3])
}

type flagRecorder struct {
	NopNotifier
	changes *[]FlagChange
}

func (r *flagRecorder) FlagSet(c FlagChange)     { *r.changes = append(*r.changes, c) }
func (r *flagRecorder) FlagCleared(c FlagChange) { *r.changes = append(*r.changes, c) }

func TestSkipsApplication(t *testing.T) {
	assert.False(t, Flag{Type: FlagForceSlot}.SkipsApplication())
	assert.True(t, Flag{Type: FlagSkipToday}.SkipsApplication())
	assert.True(t, Flag{Type: FlagSkipUntilNextChange}.SkipsApplication())
}
