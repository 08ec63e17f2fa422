package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/medicos-health/medigate/internal/adapter/outbound/memory"
	"github.com/medicos-health/medigate/internal/domain/call"
	"github.com/medicos-health/medigate/internal/domain/tool"
	"github.com/medicos-health/medigate/internal/service"
)

type recordingAudit struct {
	mu      sync.Mutex
	records []call.AuditRecord
}

func (r *recordingAudit) Record(record call.AuditRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
}

func (r *recordingAudit) Callers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var callers []string
	for _, rec := range r.records {
		callers = append(callers, rec.Caller)
	}
	return callers
}

func newTestTransport(t *testing.T, caller string) (*Transport, *recordingAudit) {
	t.Helper()
	reg := tool.NewRegistry()
	reg.MustRegister(tool.Descriptor{
		Name:        "records.get",
		Sensitivity: tool.Routine,
		Handler: func(_ context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			return map[string]interface{}{"echo": args["patient_id"]}, nil
		},
	})
	reg.Freeze()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	audit := &recordingAudit{}
	d := service.NewDispatcher(reg, &memory.PolicyClient{Decision: call.DecisionAllow}, audit, logger)
	gw := service.NewGateway(d, reg, logger, "medigate", "0.1.0")
	return NewTransport(gw, caller, logger), audit
}

// syncWriter makes concurrent response writes observable from the test.
type syncWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *syncWriter) Lines() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(w.buf.Bytes()))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

func TestRunHandlesRequestsAndSkipsNotifications(t *testing.T) {
	transport, audit := newTestTransport(t, "clinic-app")

	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05"}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"records.get","arguments":{"patient_id":"p-1"}}}`,
		"",
	}, "\n")
	out := &syncWriter{}

	if err := transport.Run(context.Background(), strings.NewReader(input), out); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	lines := out.Lines()
	if len(lines) != 2 {
		t.Fatalf("responses = %d, want 2 (notification gets none)\n%v", len(lines), lines)
	}

	ids := map[float64]bool{}
	for _, line := range lines {
		var resp map[string]interface{}
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			t.Fatalf("invalid response line %q: %v", line, err)
		}
		if resp["error"] != nil {
			t.Errorf("response error = %v", resp["error"])
		}
		ids[resp["id"].(float64)] = true
	}
	if !ids[1] || !ids[2] {
		t.Errorf("response ids = %v, want 1 and 2", ids)
	}

	if callers := audit.Callers(); len(callers) != 1 || callers[0] != "clinic-app" {
		t.Errorf("audit callers = %v", callers)
	}
}

func TestRunReturnsParseErrorLine(t *testing.T) {
	transport, _ := newTestTransport(t, "clinic-app")
	out := &syncWriter{}

	if err := transport.Run(context.Background(), strings.NewReader("{not json}\n"), out); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	lines := out.Lines()
	if len(lines) != 1 {
		t.Fatalf("responses = %d, want 1", len(lines))
	}
	var resp map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &resp); err != nil {
		t.Fatal(err)
	}
	errObj := resp["error"].(map[string]interface{})
	if errObj["code"] != float64(-32700) {
		t.Errorf("code = %v, want -32700", errObj["code"])
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	transport, _ := newTestTransport(t, "clinic-app")
	ctx, cancel := context.WithCancel(context.Background())

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- transport.Run(ctx, pr, &syncWriter{})
	}()

	cancel()
	// Unblock the scanner so the loop can observe cancellation.
	if _, err := pw.Write([]byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n")); err != nil {
		t.Fatal(err)
	}
	pw.Close()

	select {
	case err := <-done:
		if err != nil && err != context.Canceled {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
}

func TestRunRejectsOversizedMessage(t *testing.T) {
	transport, _ := newTestTransport(t, "clinic-app")

	huge := strings.Repeat("x", scannerMaxBufSize+1)
	err := transport.Run(context.Background(), strings.NewReader(huge), &syncWriter{})
	if err != bufio.ErrTooLong {
		t.Errorf("Run() error = %v, want bufio.ErrTooLong", err)
	}
}
