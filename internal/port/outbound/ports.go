// Package outbound defines the interfaces the gateway consumes.
// Interfaces are owned here per hexagonal architecture; adapters under
// internal/adapter/outbound implement them.
package outbound

import (
	"context"
	"errors"

	"github.com/medicos-health/medigate/internal/domain/call"
)

// ErrNotFound is returned by DocumentStore implementations when a
// document does not exist.
var ErrNotFound = errors.New("document not found")

// PolicyClient obtains an authorization decision from the external
// policy engine. Implementations must be safe for concurrent use and
// must not retry inline: a transient failure is surfaced to the
// dispatcher, which fails closed.
type PolicyClient interface {
	// CheckIntent requests a decision for one sensitive call. A non-nil
	// error means the engine was unreachable or returned an unusable
	// response; the dispatcher treats that as an implicit deny.
	CheckIntent(ctx context.Context, req call.IntentRequest) (call.PolicyDecision, error)
}

// AuditSink persists audit records. Append-only from the gateway's
// perspective; durability is the sink's responsibility.
type AuditSink interface {
	// Log submits one or more records. Implementations may batch.
	Log(ctx context.Context, records ...call.AuditRecord) error
	// Close releases resources and flushes pending records.
	Close() error
}

// Filter is a single field comparison for DocumentStore queries.
type Filter struct {
	Field string
	Op    string // "==", "<", "<=", ">", ">="
	Value interface{}
}

// DocumentStore is the document-style CRUD boundary consumed by tool
// handlers. Per-document reads and writes are strongly consistent; no
// cross-document transactions are offered.
type DocumentStore interface {
	// Get reads one document. Returns ErrNotFound if absent.
	Get(ctx context.Context, collection, id string) (map[string]interface{}, error)
	// Put writes a document under the caller-chosen id, replacing any
	// existing content.
	Put(ctx context.Context, collection, id string, doc map[string]interface{}) error
	// Update patches fields of an existing document.
	Update(ctx context.Context, collection, id string, fields map[string]interface{}) error
	// Delete removes a document. Deleting an absent document is not an error.
	Delete(ctx context.Context, collection, id string) error
	// Query returns documents matching all filters. Result limits are the
	// caller's concern; handlers truncate after filtering.
	Query(ctx context.Context, collection string, filters []Filter) ([]map[string]interface{}, error)
}

// BlobStore stores binary objects by path and returns a reference URL.
type BlobStore interface {
	Put(ctx context.Context, path string, data []byte, contentType string, metadata map[string]string) (string, error)
}

// Notification is one push message.
type Notification struct {
	Title string
	Body  string
	Data  map[string]string
	// Token targets a single device; Topic targets a subscription.
	// Exactly one is set per send.
	Token string
	Topic string
}

// Notifier delivers push notifications. Fire-and-forget: the gateway
// never retries a send on the caller's behalf. The returned string is
// the provider's message id, empty when the provider has none.
type Notifier interface {
	Send(ctx context.Context, n Notification) (string, error)
}

// CompletionRequest is one LLM call. Options beyond the prompt pair are
// provider-specific and passed through opaquely by handlers.
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	// Model overrides the configured default when non-empty.
	Model string
}

// Completer performs synchronous LLM completions that return a JSON
// object.
type Completer interface {
	CompleteJSON(ctx context.Context, req CompletionRequest) (map[string]interface{}, error)
}
