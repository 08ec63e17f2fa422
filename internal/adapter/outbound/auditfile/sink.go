// Package auditfile persists audit records as JSON Lines with daily
// rotation, size caps, and retention cleanup. It backs the file://
// audit sink for deployments without an ArmorIQ endpoint.
package auditfile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/medicos-health/medigate/internal/domain/call"
	"github.com/medicos-health/medigate/internal/port/outbound"
)

// filePattern matches sink filenames: calls-YYYY-MM-DD.log or calls-YYYY-MM-DD-N.log
var filePattern = regexp.MustCompile(`^calls-(\d{4}-\d{2}-\d{2})(?:-(\d+))?\.log$`)

// Config holds settings for the file sink.
type Config struct {
	// Dir is the directory where log files are stored.
	Dir string
	// RetentionDays is the number of days to keep files (default 30).
	RetentionDays int
	// MaxFileSizeMB is the maximum file size before rotation (default 100).
	MaxFileSizeMB int
}

// Sink writes audit records to rotated JSON Lines files.
type Sink struct {
	dir           string
	maxFileSize   int64
	retentionDays int

	mu            sync.Mutex
	currentFile   *os.File
	currentDate   string
	currentSize   int64
	currentSuffix int
	closed        bool

	cancel context.CancelFunc
	logger *slog.Logger
}

// NewSink creates the sink directory if needed, opens today's file,
// runs retention cleanup, and starts the hourly cleanup goroutine.
func NewSink(cfg Config, logger *slog.Logger) (*Sink, error) {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	if cfg.MaxFileSizeMB <= 0 {
		cfg.MaxFileSizeMB = 100
	}

	if err := os.MkdirAll(cfg.Dir, 0700); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Sink{
		dir:           cfg.Dir,
		maxFileSize:   int64(cfg.MaxFileSizeMB) * 1024 * 1024,
		retentionDays: cfg.RetentionDays,
		cancel:        cancel,
		logger:        logger,
	}

	today := time.Now().UTC().Format("2006-01-02")
	if err := s.openLocked(today, s.highestSuffix(today)); err != nil {
		cancel()
		return nil, fmt.Errorf("open audit file: %w", err)
	}

	s.cleanup()
	go s.cleanupLoop(ctx)

	return s, nil
}

var _ outbound.AuditSink = (*Sink)(nil)

// Log appends records as JSON Lines, rotating on date change or when
// the size cap is reached.
func (s *Sink) Log(_ context.Context, records ...call.AuditRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("sink closed")
	}

	for _, rec := range records {
		date := rec.FinishedAt.UTC().Format("2006-01-02")
		if date != s.currentDate {
			if err := s.rotateLocked(date, 0); err != nil {
				return fmt.Errorf("date rotation: %w", err)
			}
		}
		if s.currentSize >= s.maxFileSize {
			if err := s.rotateLocked(s.currentDate, s.currentSuffix+1); err != nil {
				return fmt.Errorf("size rotation: %w", err)
			}
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal audit record: %w", err)
		}
		n, err := s.currentFile.Write(append(data, '\n'))
		if err != nil {
			return fmt.Errorf("write audit record: %w", err)
		}
		s.currentSize += int64(n)
	}

	return nil
}

// Close stops the cleanup goroutine and closes the current file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()

	if s.currentFile != nil {
		_ = s.currentFile.Sync()
		err := s.currentFile.Close()
		s.currentFile = nil
		return err
	}
	return nil
}

func (s *Sink) filename(date string, suffix int) string {
	if suffix == 0 {
		return fmt.Sprintf("calls-%s.log", date)
	}
	return fmt.Sprintf("calls-%s-%d.log", date, suffix)
}

// openLocked opens or creates the file for a date/suffix pair.
// Must be called with s.mu held (or before the sink is shared).
func (s *Sink) openLocked(date string, suffix int) error {
	path := filepath.Join(s.dir, s.filename(date, suffix))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}

	s.currentFile = f
	s.currentDate = date
	s.currentSize = info.Size()
	s.currentSuffix = suffix
	return nil
}

func (s *Sink) rotateLocked(date string, suffix int) error {
	if s.currentFile != nil {
		_ = s.currentFile.Sync()
		_ = s.currentFile.Close()
		s.currentFile = nil
	}
	return s.openLocked(date, suffix)
}

// highestSuffix returns the highest existing suffix for a date so a
// restart resumes appending to the newest segment.
func (s *Sink) highestSuffix(date string) int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0
	}
	highest := 0
	for _, e := range entries {
		m := filePattern.FindStringSubmatch(e.Name())
		if m == nil || m[1] != date {
			continue
		}
		if m[2] != "" {
			if n, err := strconv.Atoi(m[2]); err == nil && n > highest {
				highest = n
			}
		}
	}
	return highest
}

// cleanup deletes files older than the retention period.
func (s *Sink) cleanup() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Error("audit cleanup failed to read directory", "dir", s.dir, "error", err)
		return
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
	deleted := 0
	for _, e := range entries {
		m := filePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		fileDate, err := time.Parse("2006-01-02", m[1])
		if err != nil || !fileDate.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			s.logger.Error("audit cleanup failed to delete file", "file", e.Name(), "error", err)
			continue
		}
		deleted++
	}
	if deleted > 0 {
		s.logger.Info("audit cleanup completed", "deleted", deleted)
	}
}

func (s *Sink) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}
