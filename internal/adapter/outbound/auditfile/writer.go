package auditfile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/medicos-health/medigate/internal/domain/call"
	"github.com/medicos-health/medigate/internal/port/outbound"
)

// WriterSink writes audit records as JSON Lines to an io.Writer,
// typically stderr. Stdout stays reserved for JSON-RPC traffic.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink wraps a writer as an audit sink.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

var _ outbound.AuditSink = (*WriterSink)(nil)

// Log writes one JSON line per record.
func (s *WriterSink) Log(_ context.Context, records ...call.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal audit record: %w", err)
		}
		if _, err := s.w.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("write audit record: %w", err)
		}
	}
	return nil
}

// Close is a no-op; the sink does not own the writer.
func (s *WriterSink) Close() error { return nil }
