package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"

	"github.com/slotwire/slotwire/internal/engine"
	"github.com/slotwire/slotwire/internal/model"
)

//go:embed schema.cue
var schemaSource string

// Engine holds runtime options for the reconciliation loop.
type Engine struct {
	DryRun       bool
	Debug        bool
	CycleTimeout time.Duration
	// Schedule is a cron expression for the periodic re-evaluation tick.
	Schedule string
	// StorePath is the SQLite database used for flags and the cycle journal.
	// Empty disables persistence.
	StorePath string
}

// Source describes an event source known to the configuration.
type Source struct {
	ID              string
	DefaultPriority int
	Description     string
	Enabled         bool
}

// Config is a fully validated and normalized configuration document.
type Config struct {
	Engine  Engine
	Sources []Source
	Devices []string
	Slots   []model.Slot
	Rules   []model.Rule
}

// SourceByID looks up a configured source.
func (c *Config) SourceByID(id string) (Source, bool) {
	for _, s := range c.Sources {
		if s.ID == id {
			return s, true
		}
	}
	return Source{}, false
}

// rawConfig mirrors the YAML document before normalization. Pointer fields
// distinguish "absent" from zero so defaults can be applied.
type rawConfig struct {
	Engine struct {
		DryRun       *bool  `yaml:"dry_run"`
		Debug        *bool  `yaml:"debug"`
		CycleTimeout string `yaml:"cycle_timeout"`
		Schedule     string `yaml:"schedule"`
		StorePath    string `yaml:"store_path"`
	} `yaml:"engine"`
	Sources []struct {
		ID              string `yaml:"id"`
		DefaultPriority int    `yaml:"default_priority"`
		Description     string `yaml:"description"`
		Enabled         *bool  `yaml:"enabled"`
	} `yaml:"sources"`
	Devices []string     `yaml:"devices"`
	Slots   []model.Slot `yaml:"slots"`
	Rules   []struct {
		ID            string             `yaml:"id"`
		Sources       model.SourceFilter `yaml:"sources"`
		Pattern       model.Pattern      `yaml:"pattern"`
		SlotID        string             `yaml:"slot_id"`
		TargetDevices []string           `yaml:"target_devices"`
		Priority      *int               `yaml:"priority"`
	} `yaml:"rules"`
}

// Load reads, schema-checks, decodes, and normalizes a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(path, data)
}

// Parse validates and decodes a configuration document. The filename is
// used only for error positions.
func Parse(filename string, data []byte) (*Config, error) {
	if err := validateSchema(filename, data); err != nil {
		return nil, err
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filename, err)
	}

	cfg := &Config{
		Engine: Engine{
			Schedule:  raw.Engine.Schedule,
			StorePath: raw.Engine.StorePath,
		},
		Devices: raw.Devices,
		Slots:   raw.Slots,
	}
	if raw.Engine.DryRun != nil {
		cfg.Engine.DryRun = *raw.Engine.DryRun
	}
	if raw.Engine.Debug != nil {
		cfg.Engine.Debug = *raw.Engine.Debug
	}
	if raw.Engine.CycleTimeout != "" {
		d, err := time.ParseDuration(raw.Engine.CycleTimeout)
		if err != nil {
			return nil, fmt.Errorf("engine.cycle_timeout: %w", err)
		}
		cfg.Engine.CycleTimeout = d
	}

	for _, s := range raw.Sources {
		src := Source{
			ID:              s.ID,
			DefaultPriority: s.DefaultPriority,
			Description:     s.Description,
			Enabled:         true,
		}
		if s.Enabled != nil {
			src.Enabled = *s.Enabled
		}
		cfg.Sources = append(cfg.Sources, src)
	}

	for i, r := range raw.Rules {
		rule := model.Rule{
			ID:            r.ID,
			Sources:       r.Sources,
			Pattern:       r.Pattern,
			SlotID:        r.SlotID,
			TargetDevices: r.TargetDevices,
		}
		if rule.ID == "" {
			rule.ID = model.DeriveRuleID(rule.Sources, rule.Pattern, rule.SlotID)
		}
		switch {
		case r.Priority != nil:
			rule.Priority = *r.Priority
		default:
			rule.Priority = cfg.defaultPriorityFor(rule.Sources)
		}
		if err := engine.ValidatePattern(rule.Pattern); err != nil {
			return nil, fmt.Errorf("rules[%d] (%s): %w", i, rule.ID, err)
		}
		cfg.Rules = append(cfg.Rules, rule)
	}

	if err := cfg.check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultPriorityFor resolves the priority of a rule authored without one.
// A rule scoped to exactly one configured source inherits that source's
// default_priority; everything else gets 0.
func (c *Config) defaultPriorityFor(filter model.SourceFilter) int {
	if filter.All || len(filter.IDs) != 1 {
		return 0
	}
	src, ok := c.SourceByID(filter.IDs[0])
	if !ok {
		return 0
	}
	return src.DefaultPriority
}

// check enforces cross-references the schema cannot express.
func (c *Config) check() error {
	slotIDs := make(map[string]bool, len(c.Slots))
	for i, s := range c.Slots {
		if slotIDs[s.ID] {
			return fmt.Errorf("slots[%d]: duplicate slot id %q", i, s.ID)
		}
		slotIDs[s.ID] = true
	}

	ruleIDs := make(map[string]bool, len(c.Rules))
	for i, r := range c.Rules {
		if ruleIDs[r.ID] {
			return fmt.Errorf("rules[%d]: duplicate rule id %q", i, r.ID)
		}
		ruleIDs[r.ID] = true
		if !slotIDs[r.SlotID] {
			return fmt.Errorf("rules[%d] (%s): unknown slot %q", i, r.ID, r.SlotID)
		}
	}

	srcIDs := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if srcIDs[s.ID] {
			return fmt.Errorf("sources[%d]: duplicate source id %q", i, s.ID)
		}
		srcIDs[s.ID] = true
	}
	return nil
}

// validateSchema unifies the YAML document with the embedded CUE schema.
func validateSchema(filename string, data []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", filename, err)
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("building %s: %w", filename, err)
	}

	unified := schema.Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("config schema violation:\n%s", cueerrors.Details(err, nil))
	}
	return nil
}
