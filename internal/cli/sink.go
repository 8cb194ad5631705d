package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/slotwire/slotwire/internal/model"
)

// WriterSink is the reference device sink: it writes one line per apply
// call with the target devices and the canonical payload. Real device
// integrations implement engine.DeviceSink against their own transport.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a sink writing apply lines to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Apply(ctx context.Context, deviceIDs []string, payload model.Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	canonical, err := model.MarshalCanonical(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = fmt.Fprintf(s.w, "apply devices=%s payload=%s\n",
		strings.Join(deviceIDs, ","), canonical)
	return err
}
