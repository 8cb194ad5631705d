package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "slotwire.db")
}

func TestFlagSetShowClear(t *testing.T) {
	db := tempDB(t)

	out, err := executeCommand(t, "flag", "set", "skip_today", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "flag set: skip_today")

	out, err = executeCommand(t, "flag", "show", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "active flag: skip_today")

	out, err = executeCommand(t, "flag", "clear", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "flag cleared")

	out, err = executeCommand(t, "flag", "show", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "no active flag")
}

func TestFlagSetForceSlot(t *testing.T) {
	db := tempDB(t)

	out, err := executeCommand(t,
		"flag", "set", "force_slot", "--slot", "comfort",
		"--config", "testdata/config.yaml", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "flag set: force_slot slot=comfort")
}

func TestFlagSetForceSlotRequiresSlot(t *testing.T) {
	_, err := executeCommand(t, "flag", "set", "force_slot", "--db", tempDB(t))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestFlagSetUnknownSlotRejected(t *testing.T) {
	_, err := executeCommand(t,
		"flag", "set", "force_slot", "--slot", "penthouse",
		"--config", "testdata/config.yaml", "--db", tempDB(t))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestFlagSetSlotOnlyValidForForceSlot(t *testing.T) {
	_, err := executeCommand(t,
		"flag", "set", "skip_today", "--slot", "comfort", "--db", tempDB(t))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestFlagSetInvalidType(t *testing.T) {
	_, err := executeCommand(t, "flag", "set", "skip_forever", "--db", tempDB(t))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestFlagReplacement(t *testing.T) {
	db := tempDB(t)

	_, err := executeCommand(t,
		"flag", "set", "force_slot", "--slot", "comfort",
		"--config", "testdata/config.yaml", "--db", db)
	require.NoError(t, err)

	_, err = executeCommand(t, "flag", "set", "skip_until_next_change", "--db", db)
	require.NoError(t, err)

	out, err := executeCommand(t, "flag", "show", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "active flag: skip_until_next_change")
	assert.NotContains(t, out, "force_slot")
}
