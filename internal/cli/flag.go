package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/slotwire/slotwire/internal/config"
	"github.com/slotwire/slotwire/internal/engine"
	"github.com/slotwire/slotwire/internal/store"
)

// FlagOptions holds flags for the flag command group.
type FlagOptions struct {
	*RootOptions
	Database   string
	ConfigPath string
	SlotID     string
}

// NewFlagCommand creates the flag command group: set, clear, and show
// override flags.
func NewFlagCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FlagOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "flag",
		Short: "Manage override flags",
		Long: `Manage the engine's override flag. Flags are mutually exclusive:
setting one replaces any other active flag. The engine picks the flag up
on its next cycle.

  force_slot               pin a slot to all devices (requires --slot)
  skip_today               skip payload application until the day changes
  skip_until_next_change   skip until the desired assignment changes`,
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	set := &cobra.Command{
		Use:           "set <type>",
		Short:         "Set an override flag",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlagSet(opts, args[0], cmd)
		},
	}
	set.Flags().StringVar(&opts.SlotID, "slot", "", "slot id (required for force_slot)")
	set.Flags().StringVar(&opts.ConfigPath, "config", "", "config YAML to check the slot against (optional)")

	clear := &cobra.Command{
		Use:           "clear",
		Short:         "Clear the active override flag",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlagClear(opts, cmd)
		},
	}

	show := &cobra.Command{
		Use:           "show",
		Short:         "Show the active override flag",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlagShow(opts, cmd)
		},
	}

	cmd.AddCommand(set, clear, show)
	return cmd
}

func runFlagSet(opts *FlagOptions, typeArg string, cmd *cobra.Command) error {
	flagType, err := engine.ParseFlagType(typeArg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid flag type", err)
	}
	if flagType == engine.FlagForceSlot && opts.SlotID == "" {
		return NewExitError(ExitCommandError, "force_slot requires --slot")
	}
	if flagType != engine.FlagForceSlot && opts.SlotID != "" {
		return NewExitError(ExitCommandError, fmt.Sprintf("--slot is only valid for %s", engine.FlagForceSlot))
	}

	// Catch typos before they pin a nonexistent slot.
	if opts.ConfigPath != "" && opts.SlotID != "" {
		cfg, err := config.Load(opts.ConfigPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid config", err)
		}
		if !slotExists(cfg, opts.SlotID) {
			return NewExitError(ExitCommandError, fmt.Sprintf("unknown slot %q", opts.SlotID))
		}
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := commandContext(cmd)
	flag := engine.Flag{Type: flagType, SlotID: opts.SlotID, SetAt: time.Now()}
	if err := st.SaveFlag(ctx, flag); err != nil {
		return WrapExitError(ExitFailure, "failed to save flag", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if done, err := out.JSON(flag); done {
		return err
	}
	if flag.SlotID != "" {
		out.Textf("flag set: %s slot=%s", flag.Type, flag.SlotID)
	} else {
		out.Textf("flag set: %s", flag.Type)
	}
	return nil
}

func runFlagClear(opts *FlagOptions, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if err := st.ClearFlag(commandContext(cmd)); err != nil {
		return WrapExitError(ExitFailure, "failed to clear flag", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if done, err := out.JSON(map[string]string{"cleared": "ok"}); done {
		return err
	}
	out.Textf("flag cleared")
	return nil
}

func runFlagShow(opts *FlagOptions, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	flag, ok, err := st.LoadFlag(commandContext(cmd))
	if err != nil {
		return WrapExitError(ExitFailure, "failed to load flag", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if !ok {
		if done, err := out.JSON(nil); done {
			return err
		}
		out.Textf("no active flag")
		return nil
	}
	if done, err := out.JSON(flag); done {
		return err
	}
	if flag.SlotID != "" {
		out.Textf("active flag: %s slot=%s set_at=%s", flag.Type, flag.SlotID, flag.SetAt.Format(time.RFC3339))
	} else {
		out.Textf("active flag: %s set_at=%s", flag.Type, flag.SetAt.Format(time.RFC3339))
	}
	return nil
}

func slotExists(cfg *config.Config, slotID string) bool {
	for _, s := range cfg.Slots {
		if s.ID == slotID {
			return true
		}
	}
	return false
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
