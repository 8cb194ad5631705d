package testutil

import (
	"context"
	"sync"

	"github.com/slotwire/slotwire/internal/model"
)

// ApplyCall records one call to a RecordingSink.
type ApplyCall struct {
	DeviceIDs []string
	Payload   model.Payload
}

// RecordingSink is a scripted device sink for tests. It records every
// Apply call and fails according to FailFirst / FailAlways, which is how
// retry behavior is exercised deterministically.
//
// Thread-safety: all methods are safe for concurrent use.
type RecordingSink struct {
	mu    sync.Mutex
	calls []ApplyCall

	// FailFirst makes the first n Apply calls return Err.
	FailFirst int
	// FailAlways makes every Apply call return Err.
	FailAlways bool
	// Err is the error returned on scripted failures. Required when
	// FailFirst or FailAlways is set.
	Err error
}

// Apply implements engine.DeviceSink.
func (s *RecordingSink) Apply(ctx context.Context, deviceIDs []string, payload model.Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.calls)
	s.calls = append(s.calls, ApplyCall{
		DeviceIDs: append([]string(nil), deviceIDs...),
		Payload:   payload.Clone(),
	})
	if s.FailAlways || n < s.FailFirst {
		return s.Err
	}
	return nil
}

// Calls returns a copy of the recorded calls in order.
func (s *RecordingSink) Calls() []ApplyCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ApplyCall(nil), s.calls...)
}

// Reset discards recorded calls, keeping the failure script.
func (s *RecordingSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}
