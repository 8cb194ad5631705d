package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/slotwire/slotwire/internal/model"
)

// DeviceSink executes the actual control action. Out of scope for the
// engine: implementations talk to whatever device integration exists.
// A single call may target multiple devices when they share a payload.
// Any returned error is treated uniformly - the applier does not
// differentiate by error type beyond logging.
type DeviceSink interface {
	Apply(ctx context.Context, deviceIDs []string, payload model.Payload) error
}

// ExpressionResolver resolves deferred payload values immediately before
// the device call. Out of scope for the engine: the engine never
// interprets expressions itself, it only passes them through. A nil
// resolver means deferred values reach the sink unresolved.
type ExpressionResolver interface {
	ResolvePayload(ctx context.Context, payload model.Payload) (model.Payload, error)
}

// DeviceResult records the outcome of applying a payload to one device.
type DeviceResult struct {
	// CycleToken correlates the result with its cycle. Stamped by the
	// orchestrator, not the applier.
	CycleToken string `json:"cycle_token,omitempty"`
	DeviceID   string `json:"device_id"`
	SlotID     string `json:"slot_id"`
	RuleID     string `json:"rule_id"`
	Success    bool   `json:"success"`
	// Attempts is 0 for dry-run results, otherwise 1 or 2.
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
	DryRun   bool   `json:"dry_run,omitempty"`
	Skipped  bool   `json:"skipped,omitempty"`
}

// Retry policy: one retry after a fixed delay, total attempts <= 2.
const (
	maxAttempts       = 2
	DefaultRetryDelay = 1 * time.Second
)

// Applier pushes change-group payloads to devices.
//
// Application is strictly sequential across devices and sub-groups within
// a cycle. This bounds peak concurrent load on device integrations and
// keeps per-device retry timing predictable; do not parallelize without
// re-deriving the failure-isolation guarantees.
type Applier struct {
	sink       DeviceSink
	resolver   ExpressionResolver
	retryDelay time.Duration
}

// NewApplier creates an Applier. resolver may be nil (deferred values
// pass through to the sink unresolved).
func NewApplier(sink DeviceSink, resolver ExpressionResolver) *Applier {
	return &Applier{
		sink:       sink,
		resolver:   resolver,
		retryDelay: DefaultRetryDelay,
	}
}

// SetRetryDelay overrides the retry delay. Used by tests to avoid
// real one-second sleeps.
func (a *Applier) SetRetryDelay(d time.Duration) {
	a.retryDelay = d
}

// ApplyGroup applies one change group and returns a result per device.
//
// Devices sharing an identical effective payload are sub-grouped so one
// downstream command can target all of them; devices with distinct
// overrides are applied individually. A failed sub-group is retried once
// and then recorded as failed without aborting the remaining sub-groups
// (failure isolation).
//
// In dry-run mode no sink or resolver calls happen; every device gets a
// synthesized would-apply result with Attempts: 0 so the orchestrator's
// previous-state update behaves exactly as a real apply would.
func (a *Applier) ApplyGroup(ctx context.Context, group ChangeGroup, dryRun bool) []DeviceResult {
	subGroups := subGroupByPayload(group)

	out := make([]DeviceResult, 0, len(group.DeviceIDs))

	for _, sg := range subGroups {
		if dryRun {
			slog.Info("dry run: would apply payload",
				"slot_id", group.Slot.ID,
				"rule_id", group.Assignment.RuleID,
				"devices", sg.deviceIDs,
			)
			for _, deviceID := range sg.deviceIDs {
				out = append(out, DeviceResult{
					DeviceID: deviceID,
					SlotID:   group.Assignment.SlotID,
					RuleID:   group.Assignment.RuleID,
					Success:  true,
					Attempts: 0,
					DryRun:   true,
				})
			}
			continue
		}

		success, attempts, errMsg := a.applyWithRetry(ctx, sg.deviceIDs, sg.payload)
		for _, deviceID := range sg.deviceIDs {
			out = append(out, DeviceResult{
				DeviceID: deviceID,
				SlotID:   group.Assignment.SlotID,
				RuleID:   group.Assignment.RuleID,
				Success:  success,
				Attempts: attempts,
				Error:    errMsg,
			})
		}
	}

	return out
}

// applyWithRetry executes one downstream command with the bounded retry
// policy. Resolution of deferred values happens inside the attempt so a
// transient resolver failure is retried like any other application error.
func (a *Applier) applyWithRetry(ctx context.Context, deviceIDs []string, payload model.Payload) (success bool, attempts int, errMsg string) {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt

		err := a.applyOnce(ctx, deviceIDs, payload)
		if err == nil {
			if attempt > 1 {
				slog.Info("payload applied after retry",
					"devices", deviceIDs,
					"attempt", attempt,
				)
			}
			return true, attempts, ""
		}

		lastErr = err
		if attempt < maxAttempts {
			slog.Warn("payload apply failed, retrying",
				"devices", deviceIDs,
				"attempt", attempt,
				"retry_delay", a.retryDelay,
				"error", err,
			)
			select {
			case <-time.After(a.retryDelay):
			case <-ctx.Done():
				// Cycle timeout or shutdown - record the original failure.
				return false, attempts, lastErr.Error()
			}
		} else {
			slog.Error("payload apply failed, attempts exhausted",
				"devices", deviceIDs,
				"attempts", attempt,
				"error", err,
			)
		}
	}

	return false, attempts, lastErr.Error()
}

func (a *Applier) applyOnce(ctx context.Context, deviceIDs []string, payload model.Payload) error {
	effective := payload
	if a.resolver != nil && payload.HasDeferred() {
		resolved, err := a.resolver.ResolvePayload(ctx, payload)
		if err != nil {
			return err
		}
		effective = resolved
	}
	return a.sink.Apply(ctx, deviceIDs, effective)
}

// payloadSubGroup is a set of devices within a change group whose
// effective payloads are byte-identical in canonical form.
type payloadSubGroup struct {
	payload   model.Payload
	deviceIDs []string
}

// subGroupByPayload partitions a group's devices by effective payload
// identity. Order is deterministic: sub-groups appear in order of their
// first device in the group's (sorted) device list.
func subGroupByPayload(group ChangeGroup) []payloadSubGroup {
	var subGroups []payloadSubGroup
	index := make(map[string]int)

	for _, deviceID := range group.DeviceIDs {
		payload := group.Slot.EffectivePayload(deviceID)

		hash, err := model.PayloadHash(payload)
		if err != nil {
			// Cannot prove identity - apply this device individually.
			slog.Warn("payload hash failed, applying device individually",
				"device_id", deviceID,
				"error", err,
			)
			subGroups = append(subGroups, payloadSubGroup{payload: payload, deviceIDs: []string{deviceID}})
			continue
		}

		if i, ok := index[hash]; ok {
			subGroups[i].deviceIDs = append(subGroups[i].deviceIDs, deviceID)
			continue
		}
		index[hash] = len(subGroups)
		subGroups = append(subGroups, payloadSubGroup{payload: payload, deviceIDs: []string{deviceID}})
	}

	return subGroups
}
