package cli

import (
	"github.com/spf13/cobra"

	"github.com/slotwire/slotwire/internal/config"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	ConfigPath string
	EventsPath string
}

// NewValidateCommand creates the validate command: schema-check a config
// (and optionally an events file) without running a cycle.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Long: `Validate a configuration file against the schema and its internal
cross-references (rules referencing slots, duplicate ids, pattern
syntax). With --events, the events file is checked too.

Example:
  slotwire validate --config slotwire.yaml
  slotwire validate --config slotwire.yaml --events today.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to config YAML (required)")
	cmd.Flags().StringVar(&opts.EventsPath, "events", "", "path to events YAML (optional)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

// validateReport is the JSON shape of a validate outcome.
type validateReport struct {
	Config  string `json:"config"`
	Sources int    `json:"sources"`
	Devices int    `json:"devices"`
	Slots   int    `json:"slots"`
	Rules   int    `json:"rules"`
	Events  int    `json:"events,omitempty"`
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		if done, jsonErr := out.ErrorJSON(err.Error(), nil); done {
			if jsonErr != nil {
				return jsonErr
			}
			return NewExitError(ExitFailure, "config invalid")
		}
		return WrapExitError(ExitFailure, "config invalid", err)
	}

	report := validateReport{
		Config:  opts.ConfigPath,
		Sources: len(cfg.Sources),
		Devices: len(cfg.Devices),
		Slots:   len(cfg.Slots),
		Rules:   len(cfg.Rules),
	}

	if opts.EventsPath != "" {
		events, err := config.LoadEvents(opts.EventsPath)
		if err != nil {
			if done, jsonErr := out.ErrorJSON(err.Error(), nil); done {
				if jsonErr != nil {
					return jsonErr
				}
				return NewExitError(ExitFailure, "events invalid")
			}
			return WrapExitError(ExitFailure, "events invalid", err)
		}
		report.Events = len(events)
	}

	if done, err := out.JSON(report); done {
		return err
	}
	out.Textf("%s: ok (%d sources, %d devices, %d slots, %d rules)",
		report.Config, report.Sources, report.Devices, report.Slots, report.Rules)
	if opts.EventsPath != "" {
		out.Textf("%s: ok (%d events)", opts.EventsPath, report.Events)
	}
	return nil
}
