package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/medicos-health/medigate/internal/domain/call"
	"github.com/medicos-health/medigate/internal/port/outbound"
)

// AuditService delivers audit records to a sink asynchronously so the
// dispatch path never waits on sink I/O. Records are buffered on a
// channel and flushed in batches by a single worker goroutine.
//
// Backpressure is bounded: when the buffer is full, Record waits up to
// sendTimeout and then drops the record, counting the drop. Audit
// delivery failures never affect call outcomes.
type AuditService struct {
	sink   outbound.AuditSink
	logger *slog.Logger

	records chan call.AuditRecord
	done    chan struct{}
	wg      sync.WaitGroup

	closeOnce sync.Once
	dropped   atomic.Uint64

	bufferSize    int
	batchSize     int
	flushInterval time.Duration
	sendTimeout   time.Duration
}

// AuditOption configures an AuditService.
type AuditOption func(*AuditService)

// WithAuditBuffer sets the channel buffer size. Default 1024.
func WithAuditBuffer(n int) AuditOption {
	return func(s *AuditService) { s.bufferSize = n }
}

// WithAuditBatchSize sets the max records per sink write. Default 64.
func WithAuditBatchSize(n int) AuditOption {
	return func(s *AuditService) { s.batchSize = n }
}

// WithAuditFlushInterval sets how long a partial batch may wait before
// it is flushed. Default 1s.
func WithAuditFlushInterval(d time.Duration) AuditOption {
	return func(s *AuditService) { s.flushInterval = d }
}

// WithAuditSendTimeout sets how long Record blocks on a full buffer
// before dropping. Default 100ms.
func WithAuditSendTimeout(d time.Duration) AuditOption {
	return func(s *AuditService) { s.sendTimeout = d }
}

// NewAuditService starts the worker goroutine. Callers must Close the
// service to flush buffered records and stop the worker.
func NewAuditService(sink outbound.AuditSink, logger *slog.Logger, opts ...AuditOption) *AuditService {
	s := &AuditService{
		sink:          sink,
		logger:        logger,
		done:          make(chan struct{}),
		bufferSize:    1024,
		batchSize:     64,
		flushInterval: time.Second,
		sendTimeout:   100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.records = make(chan call.AuditRecord, s.bufferSize)
	s.wg.Add(1)
	go s.worker()
	return s
}

var _ AuditRecorder = (*AuditService)(nil)

// Record enqueues one audit record. Blocks at most sendTimeout when the
// buffer is full, then drops the record and increments the drop counter.
func (s *AuditService) Record(record call.AuditRecord) {
	select {
	case s.records <- record:
		return
	default:
	}
	timer := time.NewTimer(s.sendTimeout)
	defer timer.Stop()
	select {
	case s.records <- record:
	case <-timer.C:
		n := s.dropped.Add(1)
		s.logger.Error("audit buffer full, record dropped",
			"call_id", record.CallID,
			"tool", record.Tool,
			"total_dropped", n,
		)
	case <-s.done:
		s.dropped.Add(1)
	}
}

// Dropped returns the number of records lost to backpressure or
// shutdown since the service started.
func (s *AuditService) Dropped() uint64 {
	return s.dropped.Load()
}

// Close drains remaining records, flushes them, and closes the sink.
func (s *AuditService) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return s.sink.Close()
}

func (s *AuditService) worker() {
	defer s.wg.Done()

	batch := make([]call.AuditRecord, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := s.sink.Log(ctx, batch...); err != nil {
			// The batch is lost; count every record so the drop metric
			// reflects the real audit gap.
			n := s.dropped.Add(uint64(len(batch)))
			s.logger.Error("audit sink write failed",
				"records", len(batch),
				"error", err,
				"total_dropped", n,
			)
		}
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case record := <-s.records:
			batch = append(batch, record)
			if len(batch) >= s.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-s.done:
			// Drain whatever made it into the buffer before shutdown.
			for {
				select {
				case record := <-s.records:
					batch = append(batch, record)
					if len(batch) >= s.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}
