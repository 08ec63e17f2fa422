package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/medicos-health/medigate/internal/domain/call"
)

// blockingSink blocks Log until released; used to fill the buffer.
type blockingSink struct {
	mu       sync.Mutex
	batches  [][]call.AuditRecord
	release  chan struct{}
	blocking bool
	err      error
}

func newBlockingSink(blocking bool) *blockingSink {
	return &blockingSink{release: make(chan struct{}), blocking: blocking}
}

func (s *blockingSink) Log(_ context.Context, records ...call.AuditRecord) error {
	if s.blocking {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := make([]call.AuditRecord, len(records))
	copy(batch, records)
	s.batches = append(s.batches, batch)
	return s.err
}

func (s *blockingSink) Close() error { return nil }

func (s *blockingSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func auditRecord(id string) call.AuditRecord {
	return call.AuditRecord{
		CallID:  id,
		Tool:    "records.get",
		Caller:  "clinic-app",
		Outcome: call.OutcomeSuccess,
	}
}

func TestAuditServiceDeliversRecords(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := newBlockingSink(false)
	svc := NewAuditService(sink, testLogger(), WithAuditFlushInterval(10*time.Millisecond))

	for i := 0; i < 5; i++ {
		svc.Record(auditRecord("c1"))
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if got := sink.total(); got != 5 {
		t.Errorf("delivered = %d, want 5", got)
	}
	if got := svc.Dropped(); got != 0 {
		t.Errorf("dropped = %d, want 0", got)
	}
}

func TestAuditServiceFlushesOnBatchSize(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := newBlockingSink(false)
	svc := NewAuditService(sink, testLogger(),
		WithAuditBatchSize(2),
		WithAuditFlushInterval(time.Hour),
	)
	defer svc.Close()

	svc.Record(auditRecord("c1"))
	svc.Record(auditRecord("c2"))

	deadline := time.Now().Add(2 * time.Second)
	for sink.total() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := sink.total(); got != 2 {
		t.Errorf("delivered = %d before interval elapsed, want 2", got)
	}
}

func TestAuditServiceDropsOnBackpressure(t *testing.T) {
	sink := newBlockingSink(true)
	svc := NewAuditService(sink, testLogger(),
		WithAuditBuffer(1),
		WithAuditBatchSize(1),
		WithAuditSendTimeout(10*time.Millisecond),
	)

	// First record is taken by the worker and blocks in the sink, the
	// second fills the buffer, the rest must drop.
	for i := 0; i < 5; i++ {
		svc.Record(auditRecord("c1"))
	}
	if got := svc.Dropped(); got == 0 {
		t.Error("dropped = 0, want drops under backpressure")
	}

	close(sink.release)
	if err := svc.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestAuditServiceSinkFailureDoesNotPanic(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := newBlockingSink(false)
	sink.err = errors.New("sink unavailable")
	svc := NewAuditService(sink, testLogger(), WithAuditFlushInterval(10*time.Millisecond))

	svc.Record(auditRecord("c1"))
	if err := svc.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestAuditServiceSinkFailureCountsDrops(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := newBlockingSink(false)
	sink.err = errors.New("sink unavailable")
	svc := NewAuditService(sink, testLogger(), WithAuditFlushInterval(10*time.Millisecond))

	for i := 0; i < 3; i++ {
		svc.Record(auditRecord("c1"))
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// The sink rejected every record; each one is a lost audit entry.
	if got := svc.Dropped(); got != 3 {
		t.Errorf("dropped = %d, want 3", got)
	}
}

func TestAuditServiceCloseIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := NewAuditService(newBlockingSink(false), testLogger())
	if err := svc.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}
