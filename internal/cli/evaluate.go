package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/slotwire/slotwire/internal/config"
	"github.com/slotwire/slotwire/internal/engine"
	"github.com/slotwire/slotwire/internal/store"
)

// EvaluateOptions holds flags for the evaluate command.
type EvaluateOptions struct {
	*RootOptions
	ConfigPath string
	EventsPath string
	At         string
	Apply      bool
	Database   string

	// Tokens overrides the cycle token generator (for testing).
	Tokens engine.CycleTokenGenerator
	// Now overrides the evaluation instant (for testing).
	Now func() time.Time
}

// NewEvaluateCommand creates the evaluate command: a single cycle against
// a config and events file, dry-run unless --apply is given.
func NewEvaluateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvaluateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run one evaluation cycle and report the outcome",
		Long: `Run a single evaluation cycle against a configuration and an events
file. Without --apply the cycle is a dry run: the full resolution
pipeline executes and the per-device outcome is reported, but no payload
is pushed.

Example:
  slotwire evaluate --config slotwire.yaml --events today.yaml
  slotwire evaluate --config slotwire.yaml --events today.yaml --at 2026-08-29T08:30:00Z`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to config YAML (required)")
	cmd.Flags().StringVar(&opts.EventsPath, "events", "", "path to events YAML (required)")
	cmd.Flags().StringVar(&opts.At, "at", "", "evaluation instant, RFC 3339 (default now)")
	cmd.Flags().BoolVar(&opts.Apply, "apply", false, "push payloads instead of dry run")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database for override flags (optional)")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("events")

	return cmd
}

// evaluateReport is the JSON shape of an evaluate outcome.
type evaluateReport struct {
	Summary engine.CycleSummary   `json:"summary"`
	Matches []engine.RuleMatched  `json:"matches,omitempty"`
	Results []engine.DeviceResult `json:"results,omitempty"`
}

// matchRecorder captures rule-match notifications for the report.
type matchRecorder struct {
	engine.NopNotifier
	matches []engine.RuleMatched
}

func (r *matchRecorder) RuleMatched(m engine.RuleMatched) {
	r.matches = append(r.matches, m)
}

func runEvaluate(opts *EvaluateOptions, cmd *cobra.Command) error {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	if opts.At != "" {
		at, err := time.Parse(time.RFC3339, opts.At)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --at", err)
		}
		now = func() time.Time { return at }
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}

	source := &config.FileSource{
		ConfigPath: opts.ConfigPath,
		EventsPath: opts.EventsPath,
		Now:        now,
	}

	recorder := &matchRecorder{}
	engineOpts := []engine.Option{
		engine.WithDryRun(!opts.Apply),
		engine.WithNotifier(recorder),
		engine.WithNow(now),
	}
	if cfg.Engine.CycleTimeout > 0 {
		engineOpts = append(engineOpts, engine.WithCycleTimeout(cfg.Engine.CycleTimeout))
	}
	if opts.Tokens != nil {
		engineOpts = append(engineOpts, engine.WithTokenGenerator(opts.Tokens))
	}
	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
		engineOpts = append(engineOpts, engine.WithFlagStore(st))
	}

	eng := engine.New(source, NewWriterSink(cmd.OutOrStdout()), nil, engineOpts...)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	summary, results, err := eng.EvaluateNow(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "cycle failed", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	report := evaluateReport{Summary: summary, Matches: recorder.matches, Results: results}
	if done, err := out.JSON(report); done {
		if err != nil {
			return err
		}
		if summary.DevicesFailed > 0 {
			return NewExitError(ExitFailure, "device applies failed")
		}
		return nil
	}

	printEvaluateText(out, report)
	if summary.DevicesFailed > 0 {
		return NewExitError(ExitFailure, "device applies failed")
	}
	return nil
}

func printEvaluateText(out *OutputFormatter, report evaluateReport) {
	s := report.Summary
	mode := "apply"
	if s.DryRun {
		mode = "dry-run"
	}
	out.Textf("cycle %s seq=%d mode=%s", s.CycleToken, s.Seq, mode)
	out.Textf("  active events: %d", s.ActiveEvents)

	for _, m := range report.Matches {
		out.Textf("  matched rule %s (priority %d): event %q [%s] -> slot %s (%s)",
			m.RuleID, m.Priority, m.EventLabel, m.SourceID, m.SlotID, m.SlotLabel)
	}

	results := append([]engine.DeviceResult(nil), report.Results...)
	sort.Slice(results, func(i, j int) bool {
		if results[i].SlotID != results[j].SlotID {
			return results[i].SlotID < results[j].SlotID
		}
		return results[i].DeviceID < results[j].DeviceID
	})
	for _, r := range results {
		status := deviceStatus(r)
		out.Textf("  device %s: slot=%s rule=%s %s", r.DeviceID, r.SlotID, r.RuleID, status)
	}

	if s.Skipped {
		out.Textf("  application skipped by override flag")
	}
	out.Textf("summary: changed=%d removed=%d failed=%d forced=%t",
		s.DevicesChanged, s.DevicesRemoved, s.DevicesFailed, s.Forced)
}

func deviceStatus(r engine.DeviceResult) string {
	switch {
	case r.Skipped:
		return "skipped"
	case r.DryRun:
		return "dry-run"
	case r.Success:
		return fmt.Sprintf("ok attempts=%d", r.Attempts)
	default:
		return fmt.Sprintf("FAILED attempts=%d error=%q", r.Attempts, r.Error)
	}
}
