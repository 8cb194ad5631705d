package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/slotwire/slotwire/internal/model"
)

// Snapshot is the self-consistent view of the world one cycle evaluates:
// currently active events plus immutable rule/slot/pool configuration.
// The engine never mutates a snapshot.
type Snapshot struct {
	Events     []model.Event
	Rules      []model.Rule
	Slots      []model.Slot
	DevicePool []string
}

// SnapshotSource supplies the cycle snapshot. The event half is expected
// to be pre-filtered to active events; the engine does no time-window
// logic. An empty event list means "nothing currently matches", not an
// error.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// SnapshotFunc adapts a function to the SnapshotSource interface.
type SnapshotFunc func(ctx context.Context) (Snapshot, error)

func (f SnapshotFunc) Snapshot(ctx context.Context) (Snapshot, error) {
	return f(ctx)
}

// DefaultCycleTimeout bounds a full evaluation so a single unresponsive
// device integration cannot stall the engine indefinitely. The timeout
// affects only the current cycle, never the next one.
const DefaultCycleTimeout = 2 * time.Minute

// ruleIDForced marks assignments produced by the force_slot override,
// which has no backing rule.
const ruleIDForced = "__forced__"

// Engine is the cycle orchestrator. It owns the previous-assignment map
// and drives resolve -> build -> diff -> apply once per trigger.
//
// Thread-safety model:
//   - Trigger(): safe from any goroutine; coalesces while a cycle runs
//   - Run(): the single cycle-driving goroutine
//   - EvaluateNow(): safe from any goroutine; serialized against Run's
//     cycles by the cycle mutex, so cycles never interleave
//   - SetFlag/ClearFlag/SetDryRun/SetDebug: safe from any goroutine,
//     take effect on the next cycle
//
// Multiple independent engines can coexist: every piece of state lives on
// the Engine value, nothing is process-global.
type Engine struct {
	source   SnapshotSource
	applier  *Applier
	notifier Notifier

	flagStore FlagStore
	flagMu    sync.Mutex
	flag      *Flag

	clock  *Clock
	tokens CycleTokenGenerator
	now    func() time.Time

	dryRun atomic.Bool
	debug  atomic.Bool

	cycleTimeout time.Duration

	// cycleMu serializes cycles: only one reconciliation pass may be in
	// flight at a time.
	cycleMu sync.Mutex
	// previous is the assignment recorded at the end of the prior cycle:
	// what was last attempted per device, successful or not. Guarded by
	// cycleMu. In-memory only; a restart reapplies everything.
	previous DesiredState

	// trigger has capacity 1: a trigger arriving mid-cycle is coalesced
	// into exactly one follow-up cycle instead of being dropped or run
	// concurrently.
	trigger chan struct{}
	stopped chan struct{}
	stopOne sync.Once
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier sets the notification consumer. Default: LogNotifier.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithFlagStore enables override-flag persistence.
func WithFlagStore(s FlagStore) Option {
	return func(e *Engine) { e.flagStore = s }
}

// WithDryRun starts the engine in dry-run mode: no downstream calls,
// would-apply results only.
func WithDryRun(enabled bool) Option {
	return func(e *Engine) { e.dryRun.Store(enabled) }
}

// WithDebug enables verbose per-cycle logging.
func WithDebug(enabled bool) Option {
	return func(e *Engine) { e.debug.Store(enabled) }
}

// WithCycleTimeout overrides the per-cycle deadline. Zero disables it.
func WithCycleTimeout(d time.Duration) Option {
	return func(e *Engine) { e.cycleTimeout = d }
}

// WithTokenGenerator overrides the cycle token generator. Tests use
// NewFixedGenerator for deterministic tokens.
func WithTokenGenerator(g CycleTokenGenerator) Option {
	return func(e *Engine) { e.tokens = g }
}

// WithRetryDelay overrides the applier's retry delay.
func WithRetryDelay(d time.Duration) Option {
	return func(e *Engine) { e.applier.SetRetryDelay(d) }
}

// WithNow overrides the wall clock used for flag expiration. Tests only.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine reading snapshots from source and pushing
// payloads through sink. resolver may be nil; see ExpressionResolver.
func New(source SnapshotSource, sink DeviceSink, resolver ExpressionResolver, opts ...Option) *Engine {
	e := &Engine{
		source:       source,
		applier:      NewApplier(sink, resolver),
		notifier:     LogNotifier{},
		clock:        NewClock(),
		tokens:       UUIDv7Generator{},
		now:          time.Now,
		cycleTimeout: DefaultCycleTimeout,
		trigger:      make(chan struct{}, 1),
		stopped:      make(chan struct{}),
		previous:     make(DesiredState),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Trigger requests an evaluation cycle. Safe from any goroutine. Returns
// false if the engine has been stopped. Triggers arriving while a cycle
// is in flight coalesce into a single follow-up cycle.
func (e *Engine) Trigger() bool {
	select {
	case <-e.stopped:
		return false
	default:
	}

	select {
	case e.trigger <- struct{}{}:
	default:
		// A re-run is already queued; coalesce.
	}
	return true
}

// Run drives the cycle loop until the context is cancelled or Stop is
// called. Must be called from exactly one goroutine. Loads the persisted
// override flag before processing the first trigger.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.loadFlag(ctx); err != nil {
		return err
	}

	slog.Info("engine starting",
		"dry_run", e.dryRun.Load(),
		"debug", e.debug.Load(),
		"cycle_timeout", e.cycleTimeout,
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.Stop()
			return ctx.Err()

		case <-e.stopped:
			slog.Info("engine stopping: stop requested")
			return nil

		case <-e.trigger:
			if _, _, err := e.EvaluateNow(ctx); err != nil {
				// Cycle-level failures affect this cycle only; the loop
				// keeps serving subsequent triggers.
				slog.Error("cycle failed", "error", err)
			}
		}
	}
}

// Stop shuts the engine down. Idempotent.
func (e *Engine) Stop() {
	e.stopOne.Do(func() { close(e.stopped) })
}

// SetDryRun updates dry-run mode at runtime.
func (e *Engine) SetDryRun(enabled bool) {
	old := e.dryRun.Swap(enabled)
	if old != enabled {
		slog.Info("dry run mode changed", "from", old, "to", enabled)
	}
}

// SetDebug updates debug mode at runtime.
func (e *Engine) SetDebug(enabled bool) {
	old := e.debug.Swap(enabled)
	if old != enabled {
		slog.Info("debug mode changed", "from", old, "to", enabled)
	}
}

// PreviousState returns a copy of the previous-assignment map. Testing
// and introspection only.
func (e *Engine) PreviousState() DesiredState {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()
	out := make(DesiredState, len(e.previous))
	for k, v := range e.previous {
		out[k] = v
	}
	return out
}

// Clock returns the engine's cycle counter.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// EvaluateNow runs one full evaluation cycle synchronously and returns
// the cycle summary plus the per-device results. Serialized against any
// concurrently running cycle.
//
// The previous-state map is replaced with the full desired state at the
// end of the cycle even when some applies failed: failed devices are
// recorded as last-attempted and are not retried next cycle unless their
// assignment changes again.
func (e *Engine) EvaluateNow(ctx context.Context) (CycleSummary, []DeviceResult, error) {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	cycleToken := e.tokens.Generate()
	seq := e.clock.Next()
	started := e.now()
	debug := e.debug.Load()
	dryRun := e.dryRun.Load()

	if e.cycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cycleTimeout)
		defer cancel()
	}

	if debug {
		slog.Debug("cycle starting", "cycle", cycleToken, "seq", seq)
	}

	snapshot, err := e.source.Snapshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return CycleSummary{}, nil, newTimeoutError(cycleToken, err)
		}
		return CycleSummary{}, nil, newSnapshotError(cycleToken, err)
	}

	// Pick up flags written by other processes, then expire flags whose
	// condition passed between cycles (day rollover).
	e.refreshFlag(ctx)
	e.checkFlagExpiration(ctx, false)
	flag, hasFlag := e.ActiveFlag()
	forced := hasFlag && flag.Type == FlagForceSlot

	var (
		matches []ResolvedMatch
		desired DesiredState
	)
	if forced {
		desired = e.buildForced(flag, snapshot)
	} else {
		matches = ResolveAll(snapshot.Events, snapshot.Rules, snapshot.Slots)
		desired = BuildDesired(matches, snapshot.DevicePool)
	}

	changes := Diff(desired, e.previous)
	skip := hasFlag && flag.SkipsApplication()

	if debug {
		slog.Debug("cycle diff computed",
			"cycle", cycleToken,
			"desired", len(desired),
			"changed", len(changes.Changed),
			"removed", len(changes.Removed),
			"forced", forced,
			"skip", skip,
		)
	}

	var (
		allResults []DeviceResult
		failed     int
	)
	for _, group := range GroupChanges(changes.Changed, snapshot.Slots) {
		e.emitRuleMatched(cycleToken, group, matches)

		var results []DeviceResult
		if skip {
			results = skippedResults(group, string(flag.Type))
		} else {
			results = e.applier.ApplyGroup(ctx, group, dryRun)
		}

		for i := range results {
			results[i].CycleToken = cycleToken
			e.notifier.DeviceApplied(results[i])
			if !results[i].Success {
				failed++
			}
		}
		allResults = append(allResults, results...)
	}

	for _, deviceID := range changes.Removed {
		// No revert: the device keeps whatever was last pushed and simply
		// stops receiving commands.
		slog.Info("device dropped from desired state, leaving as-is",
			"cycle", cycleToken,
			"device_id", deviceID,
		)
	}

	// Unconditional, even after failures or a skip. Nothing above may
	// prevent this.
	e.previous = desired

	e.checkFlagExpiration(ctx, !changes.Empty())

	summary := CycleSummary{
		CycleToken:     cycleToken,
		Seq:            seq,
		ActiveEvents:   len(snapshot.Events),
		MatchedRules:   len(matches),
		DevicesChanged: len(changes.Changed),
		DevicesRemoved: len(changes.Removed),
		DevicesFailed:  failed,
		DryRun:         dryRun,
		Debug:          debug,
		Forced:         forced,
		Skipped:        skip,
		Elapsed:        e.now().Sub(started),
	}
	e.notifier.CycleComplete(summary)

	return summary, allResults, nil
}

// buildForced builds the desired state for the force_slot override: the
// forced slot over the whole pool, exclusions still honored. A forced
// slot id that matches nothing is a reported, non-fatal condition
// yielding an empty desired state.
func (e *Engine) buildForced(flag Flag, snapshot Snapshot) DesiredState {
	slot, ok := model.SlotByID(snapshot.Slots, flag.SlotID)
	if !ok {
		slog.Warn("forced slot not found", "slot_id", flag.SlotID)
		return make(DesiredState)
	}

	slog.Info("forcing slot", "slot_id", slot.ID, "slot_label", slot.Label)

	desired := make(DesiredState, len(snapshot.DevicePool))
	for _, deviceID := range snapshot.DevicePool {
		if slot.Excludes(deviceID) {
			continue
		}
		desired[deviceID] = Assignment{SlotID: slot.ID, RuleID: ruleIDForced}
	}
	return desired
}

// emitRuleMatched emits the per-group rule-matched notification. Groups
// produced by the force_slot override have no backing rule and emit
// nothing. When one rule matched several events, the scan runs back to
// front: later-resolved matches win ties in BuildDesired, so the last
// hit is the one that holds the claim.
func (e *Engine) emitRuleMatched(cycleToken string, group ChangeGroup, matches []ResolvedMatch) {
	if group.Assignment.RuleID == ruleIDForced {
		return
	}
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		if m.Rule.ID != group.Assignment.RuleID {
			continue
		}
		e.notifier.RuleMatched(RuleMatched{
			CycleToken:   cycleToken,
			RuleID:       m.Rule.ID,
			EventLabel:   m.EventLabel,
			SourceID:     m.SourceID,
			SlotID:       m.Slot.ID,
			SlotLabel:    m.Slot.Label,
			PatternKind:  m.Rule.Pattern.Kind,
			PatternValue: m.Rule.Pattern.Value,
			Priority:     m.Rule.Priority,
			DeviceIDs:    group.DeviceIDs,
		})
		return
	}
}

// skippedResults synthesizes per-device results for a group suppressed by
// an override flag. The previous-state update still proceeds, matching
// the dry-run contract.
func skippedResults(group ChangeGroup, reason string) []DeviceResult {
	results := make([]DeviceResult, 0, len(group.DeviceIDs))
	for _, deviceID := range group.DeviceIDs {
		slog.Info("skipping payload application due to override flag",
			"device_id", deviceID,
			"slot_id", group.Assignment.SlotID,
			"flag", reason,
		)
		results = append(results, DeviceResult{
			DeviceID: deviceID,
			SlotID:   group.Assignment.SlotID,
			RuleID:   group.Assignment.RuleID,
			Success:  true,
			Attempts: 0,
			Skipped:  true,
		})
	}
	return results
}
