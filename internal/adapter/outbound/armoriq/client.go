// Package armoriq implements the outbound policy and audit clients for
// the ArmorIQ governance engine over its HTTPS API.
package armoriq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/medicos-health/medigate/internal/domain/call"
	"github.com/medicos-health/medigate/internal/port/outbound"
)

const (
	intentPath = "/v1/intents/check"
	eventsPath = "/v1/audit/events"

	apiKeyHeader = "X-ArmorIQ-Key"

	defaultTimeout = 5 * time.Second
)

// Client talks to the ArmorIQ policy and audit endpoints. All requests
// carry the tenant API key; transport errors and non-2xx statuses are
// reported to the caller so the dispatcher can fail closed.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a client for the given ArmorIQ endpoint.
func NewClient(baseURL, apiKey string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	_ outbound.PolicyClient = (*Client)(nil)
	_ outbound.AuditSink    = (*Client)(nil)
)

// CheckIntent submits one intent for evaluation and returns the
// decision. Any failure to obtain a decision (transport error, non-2xx
// status, malformed body) is an error; the caller decides what a
// missing decision means.
func (c *Client) CheckIntent(ctx context.Context, req call.IntentRequest) (call.PolicyDecision, error) {
	var decision call.PolicyDecision
	if err := c.post(ctx, intentPath, req, &decision); err != nil {
		return call.PolicyDecision{}, fmt.Errorf("intent check: %w", err)
	}
	if decision.Decision != call.DecisionAllow && decision.Decision != call.DecisionDeny {
		return call.PolicyDecision{}, fmt.Errorf("intent check: unrecognized decision %q", decision.Decision)
	}
	return decision, nil
}

// Log delivers a batch of audit records to the event endpoint.
func (c *Client) Log(ctx context.Context, records ...call.AuditRecord) error {
	if len(records) == 0 {
		return nil
	}
	payload := map[string]interface{}{"events": records}
	if err := c.post(ctx, eventsPath, payload, nil); err != nil {
		return fmt.Errorf("audit events: %w", err)
	}
	return nil
}

// Close is a no-op; the client holds no persistent connections beyond
// the HTTP client's idle pool.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Read a short prefix of the body for diagnostics only.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		c.logger.Warn("armoriq request failed",
			"path", path,
			"status", resp.StatusCode,
			"body", string(snippet),
		)
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
