package engine

import (
	"errors"
	"fmt"
)

// CycleError represents a cycle-level failure: the snapshot could not be
// taken or the cycle deadline elapsed. Per-rule and per-device failures
// never become CycleErrors - they are logged or recorded in DeviceResults
// and the cycle carries on.
type CycleError struct {
	// Code identifies the error category.
	Code CycleErrorCode

	// Message is a human-readable description.
	Message string

	// CycleToken identifies the affected cycle, when one was started.
	CycleToken string

	// Err is the underlying cause, if any.
	Err error
}

// CycleErrorCode categorizes cycle errors.
type CycleErrorCode string

const (
	// ErrCodeSnapshot indicates the event/config snapshot could not be taken.
	ErrCodeSnapshot CycleErrorCode = "SNAPSHOT_FAILED"

	// ErrCodeTimeout indicates the cycle deadline elapsed mid-cycle.
	ErrCodeTimeout CycleErrorCode = "CYCLE_TIMEOUT"

	// ErrCodeStopped indicates the engine was stopped before the cycle ran.
	ErrCodeStopped CycleErrorCode = "ENGINE_STOPPED"
)

// Error implements the error interface.
func (e *CycleError) Error() string {
	if e.CycleToken != "" {
		return fmt.Sprintf("%s: %s (cycle=%s)", e.Code, e.Message, e.CycleToken)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is/errors.As.
func (e *CycleError) Unwrap() error {
	return e.Err
}

// IsSnapshotError reports whether err is a snapshot failure.
// Uses errors.As to handle wrapped errors.
func IsSnapshotError(err error) bool {
	var ce *CycleError
	return errors.As(err, &ce) && ce.Code == ErrCodeSnapshot
}

// IsTimeoutError reports whether err is a cycle deadline failure.
func IsTimeoutError(err error) bool {
	var ce *CycleError
	return errors.As(err, &ce) && ce.Code == ErrCodeTimeout
}

func newSnapshotError(cycleToken string, err error) *CycleError {
	return &CycleError{
		Code:       ErrCodeSnapshot,
		Message:    "taking cycle snapshot",
		CycleToken: cycleToken,
		Err:        err,
	}
}

func newTimeoutError(cycleToken string, err error) *CycleError {
	return &CycleError{
		Code:       ErrCodeTimeout,
		Message:    "cycle deadline elapsed",
		CycleToken: cycleToken,
		Err:        err,
	}
}
