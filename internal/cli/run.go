package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/slotwire/slotwire/internal/config"
	"github.com/slotwire/slotwire/internal/engine"
	"github.com/slotwire/slotwire/internal/store"
)

// DefaultSchedule re-evaluates once a minute when the config does not set
// engine.schedule.
const DefaultSchedule = "* * * * *"

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ConfigPath string
	EventsPath string
	Database   string
	DryRun     bool

	// Tokens overrides the cycle token generator (for testing).
	Tokens engine.CycleTokenGenerator
}

// NewRunCommand creates the run command: the long-running reconciliation
// loop driven by a cron schedule.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the reconciliation engine",
		Long: `Start the reconciliation engine. The config and events files are
re-read on every cycle, so edits take effect without a restart. Cycles
fire on the configured cron schedule; the first one fires immediately.

Example:
  slotwire run --config slotwire.yaml --events today.yaml --db slotwire.db
  slotwire run --config slotwire.yaml --events today.yaml --dry-run --verbose`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to config YAML (required)")
	cmd.Flags().StringVar(&opts.EventsPath, "events", "", "path to events YAML (required)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database for flags and the journal (overrides config)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "log intended applies without pushing payloads")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("events")

	return cmd
}

// cronParser accepts standard 5-field expressions plus descriptors like
// @every 30s.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func runEngine(opts *RunOptions, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}
	if _, err := config.LoadEvents(opts.EventsPath); err != nil {
		return WrapExitError(ExitCommandError, "invalid events file", err)
	}

	schedule := cfg.Engine.Schedule
	if schedule == "" {
		schedule = DefaultSchedule
	}

	source := &config.FileSource{
		ConfigPath: opts.ConfigPath,
		EventsPath: opts.EventsPath,
	}

	dryRun := cfg.Engine.DryRun || opts.DryRun
	engineOpts := []engine.Option{
		engine.WithDryRun(dryRun),
		engine.WithDebug(cfg.Engine.Debug),
	}
	if cfg.Engine.CycleTimeout > 0 {
		engineOpts = append(engineOpts, engine.WithCycleTimeout(cfg.Engine.CycleTimeout))
	}
	if opts.Tokens != nil {
		engineOpts = append(engineOpts, engine.WithTokenGenerator(opts.Tokens))
	}

	notifiers := engine.MultiNotifier{engine.LogNotifier{}}

	dbPath := opts.Database
	if dbPath == "" {
		dbPath = cfg.Engine.StorePath
	}
	if dbPath != "" {
		slog.Info("opening database", "path", dbPath)
		st, err := store.Open(dbPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
		engineOpts = append(engineOpts, engine.WithFlagStore(st))
		notifiers = append(notifiers, store.NewJournal(st))
	}
	engineOpts = append(engineOpts, engine.WithNotifier(notifiers))

	eng := engine.New(source, NewWriterSink(cmd.OutOrStdout()), nil, engineOpts...)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := cron.New(cron.WithParser(cronParser))
	if _, err := ticker.AddFunc(schedule, func() {
		if !eng.Trigger() {
			slog.Debug("evaluation already pending, tick coalesced")
		}
	}); err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("invalid schedule %q", schedule), err)
	}

	slog.Info("engine starting",
		"config", opts.ConfigPath, "events", opts.EventsPath,
		"schedule", schedule, "dry_run", dryRun)
	fmt.Fprintln(cmd.OutOrStdout(), "Engine started. Press Ctrl-C to stop.")

	// First cycle fires immediately; the schedule takes over afterwards.
	eng.Trigger()
	ticker.Start()
	defer ticker.Stop()

	if err := eng.Run(ctx); err != nil && err != context.Canceled && err != context.DeadlineExceeded {
		return WrapExitError(ExitFailure, "engine error", err)
	}

	slog.Info("engine stopped gracefully")
	return nil
}
