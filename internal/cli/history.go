package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/slotwire/slotwire/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database   string
	Limit      int
	CycleToken string
}

// NewHistoryCommand creates the history command: inspect the cycle
// journal recorded by a running engine.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded evaluation cycles",
		Long: `Show recent evaluation cycles from the journal, newest first.
With --cycle, show the per-device results of one cycle instead.

Example:
  slotwire history --db slotwire.db
  slotwire history --db slotwire.db --cycle 0192d0bc-...`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum cycles to show")
	cmd.Flags().StringVar(&opts.CycleToken, "cycle", "", "show device results for one cycle token")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := commandContext(cmd)
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	if opts.CycleToken != "" {
		results, err := st.ResultsForCycle(ctx, opts.CycleToken)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read results", err)
		}
		if done, err := out.JSON(results); done {
			return err
		}
		if len(results) == 0 {
			out.Textf("no results for cycle %s", opts.CycleToken)
			return nil
		}
		for _, r := range results {
			out.Textf("device %s: slot=%s rule=%s %s", r.DeviceID, r.SlotID, r.RuleID, deviceStatus(r))
		}
		return nil
	}

	cycles, err := st.RecentCycles(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read cycles", err)
	}
	if done, err := out.JSON(cycles); done {
		return err
	}
	if len(cycles) == 0 {
		out.Textf("no recorded cycles")
		return nil
	}
	for _, c := range cycles {
		mode := "apply"
		if c.DryRun {
			mode = "dry-run"
		}
		out.Textf("%s seq=%d %s events=%d matched=%d changed=%d removed=%d failed=%d elapsed=%s",
			c.RecordedAt.Format(time.RFC3339), c.Seq, mode,
			c.ActiveEvents, c.MatchedRules, c.DevicesChanged, c.DevicesRemoved, c.DevicesFailed,
			c.Elapsed.Round(time.Millisecond))
	}
	return nil
}
