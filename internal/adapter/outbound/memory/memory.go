// Package memory provides in-memory implementations of the outbound
// ports for development mode and tests.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/medicos-health/medigate/internal/domain/call"
	"github.com/medicos-health/medigate/internal/port/outbound"
)

// PolicyClient returns a fixed decision for every intent. Dev mode uses
// an allow-all instance; tests script denials.
type PolicyClient struct {
	Decision   string
	ReasonCode string
	Err        error
}

var _ outbound.PolicyClient = (*PolicyClient)(nil)

func (p *PolicyClient) CheckIntent(_ context.Context, req call.IntentRequest) (call.PolicyDecision, error) {
	if p.Err != nil {
		return call.PolicyDecision{}, p.Err
	}
	return call.PolicyDecision{
		CallID:        req.CallID,
		Decision:      p.Decision,
		ReasonCode:    p.ReasonCode,
		PolicyVersion: "static",
	}, nil
}

// DocumentStore keeps documents in nested maps keyed by collection and id.
type DocumentStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]interface{}
}

// NewDocumentStore creates an empty store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{collections: make(map[string]map[string]map[string]interface{})}
}

var _ outbound.DocumentStore = (*DocumentStore)(nil)

func (s *DocumentStore) Get(_ context.Context, collection, id string) (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", outbound.ErrNotFound, collection, id)
	}
	return cloneDoc(doc), nil
}

func (s *DocumentStore) Put(_ context.Context, collection, id string, doc map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]map[string]interface{})
	}
	s.collections[collection][id] = cloneDoc(doc)
	return nil
}

func (s *DocumentStore) Update(_ context.Context, collection, id string, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.collections[collection][id]
	if !ok {
		return fmt.Errorf("%w: %s/%s", outbound.ErrNotFound, collection, id)
	}
	for k, v := range fields {
		doc[k] = v
	}
	return nil
}

func (s *DocumentStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], id)
	return nil
}

func (s *DocumentStore) Query(_ context.Context, collection string, filters []outbound.Filter) ([]map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []map[string]interface{}
	for _, doc := range s.collections[collection] {
		match := true
		for _, f := range filters {
			if !matches(doc[f.Field], f.Op, f.Value) {
				match = false
				break
			}
		}
		if match {
			docs = append(docs, cloneDoc(doc))
		}
	}
	return docs, nil
}

func cloneDoc(doc map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

func matches(have interface{}, op string, want interface{}) bool {
	switch op {
	case "==":
		return fmt.Sprint(have) == fmt.Sprint(want)
	case "!=":
		return fmt.Sprint(have) != fmt.Sprint(want)
	case ">", ">=", "<", "<=":
		// RFC 3339 timestamps order lexicographically, so string pairs
		// compare as strings and everything else goes through float64.
		if as, aok := have.(string); aok {
			if bs, bok := want.(string); bok {
				return compareOrdered(op, strings.Compare(as, bs))
			}
		}
		a, aok := toFloat(have)
		b, bok := toFloat(want)
		if !aok || !bok {
			return false
		}
		switch {
		case a < b:
			return compareOrdered(op, -1)
		case a > b:
			return compareOrdered(op, 1)
		default:
			return compareOrdered(op, 0)
		}
	default:
		return false
	}
}

func compareOrdered(op string, cmp int) bool {
	switch op {
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	case "<":
		return cmp < 0
	default:
		return cmp <= 0
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Notifier records notifications instead of sending them.
type Notifier struct {
	mu   sync.Mutex
	sent []outbound.Notification
}

// NewNotifier creates an empty recorder.
func NewNotifier() *Notifier {
	return &Notifier{}
}

var _ outbound.Notifier = (*Notifier)(nil)

func (n *Notifier) Send(_ context.Context, notification outbound.Notification) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	return fmt.Sprintf("mem-%d", len(n.sent)), nil
}

// Sent returns a copy of all recorded notifications.
func (n *Notifier) Sent() []outbound.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]outbound.Notification, len(n.sent))
	copy(out, n.sent)
	return out
}

// Completer returns scripted responses in order, then repeats the last
// one. An empty script yields an error on every call.
type Completer struct {
	mu        sync.Mutex
	responses []map[string]interface{}
	next      int
	err       error
}

// NewCompleter creates a completer with scripted responses.
func NewCompleter(responses ...map[string]interface{}) *Completer {
	return &Completer{responses: responses}
}

// Fail makes every subsequent call return err.
func (c *Completer) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

var _ outbound.Completer = (*Completer)(nil)

func (c *Completer) CompleteJSON(_ context.Context, _ outbound.CompletionRequest) (map[string]interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	if len(c.responses) == 0 {
		return nil, fmt.Errorf("no scripted completion")
	}
	resp := c.responses[c.next]
	if c.next < len(c.responses)-1 {
		c.next++
	}
	return resp, nil
}

// BlobStore records uploads and returns mem:// URIs.
type BlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewBlobStore creates an empty blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{objects: make(map[string][]byte)}
}

var _ outbound.BlobStore = (*BlobStore)(nil)

func (b *BlobStore) Put(_ context.Context, path string, data []byte, _ string, _ map[string]string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	b.objects[path] = buf
	return "mem://" + path, nil
}

// Object returns a stored object and whether it exists.
func (b *BlobStore) Object(path string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[path]
	return data, ok
}
