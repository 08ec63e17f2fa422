// Package stdio provides the stdio transport adapter for the gateway.
// It speaks newline-delimited JSON-RPC on stdin and stdout, the framing
// MCP clients use when they spawn the server as a subprocess.
package stdio

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/medicos-health/medigate/internal/service"
)

const (
	// scannerInitialBufSize is the initial buffer size for the message scanner.
	scannerInitialBufSize = 256 * 1024 // 256KB

	// scannerMaxBufSize caps a single inbound message. Anything larger
	// makes the scanner return bufio.ErrTooLong and ends the session.
	scannerMaxBufSize = 1024 * 1024 // 1MB
)

// Transport pumps JSON-RPC messages between an io.Reader/io.Writer pair
// and the gateway. Each message is handled on its own goroutine so a
// slow tool call does not block the read loop; writes are serialized.
type Transport struct {
	gateway *service.Gateway
	caller  string
	logger  *slog.Logger

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// NewTransport creates a stdio transport. The caller identity is attached
// to every dispatched call, since stdio sessions carry no credentials of
// their own.
func NewTransport(gateway *service.Gateway, caller string, logger *slog.Logger) *Transport {
	return &Transport{
		gateway: gateway,
		caller:  caller,
		logger:  logger,
	}
}

// Run reads newline-delimited messages from r until EOF or context
// cancellation and writes responses to w. It blocks until the read loop
// ends and all in-flight handlers have finished.
func (t *Transport) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, scannerInitialBufSize), scannerMaxBufSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		// Scanner reuses its buffer on the next Scan.
		raw := make([]byte, len(line))
		copy(raw, line)

		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.handle(ctx, raw, w)
		}()
	}
	t.wg.Wait()

	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			t.logger.Error("inbound message exceeds size limit", "limit_bytes", scannerMaxBufSize)
		}
		return err
	}
	return ctx.Err()
}

func (t *Transport) handle(ctx context.Context, raw []byte, w io.Writer) {
	resp := t.gateway.Handle(ctx, raw, t.caller)
	if resp == nil {
		return
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := w.Write(append(resp, '\n')); err != nil {
		t.logger.Error("write response", "error", err)
	}
}
