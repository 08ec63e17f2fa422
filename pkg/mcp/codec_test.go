package mcp

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

func TestDecodeToolsCallRequest(t *testing.T) {
	raw := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"records.get"}}`)

	decoded, err := DecodeMessage(raw)
	if err != nil {
		t.Fatalf("DecodeMessage failed: %v", err)
	}

	req, ok := decoded.(*jsonrpc.Request)
	if !ok {
		t.Fatalf("expected *jsonrpc.Request, got %T", decoded)
	}

	if req.Method != "tools/call" {
		t.Errorf("expected method 'tools/call', got %q", req.Method)
	}
}

func TestDecodeMalformedJSON(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{
			name: "not valid json",
			data: []byte(`{not valid`),
		},
		{
			name: "empty object",
			data: []byte(`{}`),
		},
		{
			name: "missing jsonrpc version",
			data: []byte(`{"id":1,"method":"test"}`),
		},
		{
			name: "wrong jsonrpc version",
			data: []byte(`{"jsonrpc":"1.0","id":1,"method":"test"}`),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMessage(tt.data)
			if err == nil {
				t.Errorf("expected error for malformed JSON %q, got nil", tt.name)
			}
		})
	}
}

func TestWrapMessage(t *testing.T) {
	tests := []struct {
		name             string
		raw              []byte
		wantMethod       string
		wantRequest      bool
		wantToolCall     bool
		wantNotification bool
		wantID           string
		wantErr          bool
	}{
		{
			name:         "tools/call request with numeric id",
			raw:          []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"records.get"}}`),
			wantMethod:   "tools/call",
			wantRequest:  true,
			wantToolCall: true,
			wantID:       `1`,
		},
		{
			name:        "tools/list request with string id",
			raw:         []byte(`{"jsonrpc":"2.0","id":"abc-2","method":"tools/list"}`),
			wantMethod:  "tools/list",
			wantRequest: true,
			wantID:      `"abc-2"`,
		},
		{
			name:             "notification has no id",
			raw:              []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`),
			wantMethod:       "notifications/initialized",
			wantRequest:      true,
			wantNotification: true,
		},
		{
			name:       "response is not a request",
			raw:        []byte(`{"jsonrpc":"2.0","id":1,"result":{"content":"data"}}`),
			wantMethod: "",
			wantID:     `1`,
		},
		{
			name:    "invalid json returns error",
			raw:     []byte(`{invalid`),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := WrapMessage(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			// Verify raw bytes preserved
			if string(msg.Raw) != string(tt.raw) {
				t.Errorf("raw bytes not preserved: got %q, want %q", msg.Raw, tt.raw)
			}

			// Verify timestamp is set
			if msg.Timestamp.IsZero() {
				t.Error("timestamp should be set")
			}

			if msg.Method() != tt.wantMethod {
				t.Errorf("Method(): got %q, want %q", msg.Method(), tt.wantMethod)
			}

			if msg.IsRequest() != tt.wantRequest {
				t.Errorf("IsRequest(): got %v, want %v", msg.IsRequest(), tt.wantRequest)
			}

			if msg.IsToolCall() != tt.wantToolCall {
				t.Errorf("IsToolCall(): got %v, want %v", msg.IsToolCall(), tt.wantToolCall)
			}

			if msg.IsNotification() != tt.wantNotification {
				t.Errorf("IsNotification(): got %v, want %v", msg.IsNotification(), tt.wantNotification)
			}

			// RawID preserves the original wire format of the id.
			gotID := msg.RawID()
			if tt.wantID == "" {
				if gotID != nil {
					t.Errorf("RawID(): got %s, want nil", gotID)
				}
			} else if string(gotID) != tt.wantID {
				t.Errorf("RawID(): got %s, want %s", gotID, tt.wantID)
			}
		})
	}
}

func TestParseParams(t *testing.T) {
	raw := []byte(`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"rx.validate","arguments":{"prescription_id":"rx-1"}}}`)
	msg, err := WrapMessage(raw)
	if err != nil {
		t.Fatalf("WrapMessage failed: %v", err)
	}

	params := msg.ParseParams()
	if params == nil {
		t.Fatal("expected parsed params, got nil")
	}
	if params["name"] != "rx.validate" {
		t.Errorf("expected name 'rx.validate', got %v", params["name"])
	}

	// Repeated calls return the cached map.
	params["marker"] = true
	if _, ok := msg.ParseParams()["marker"]; !ok {
		t.Error("ParseParams should reuse the cached map")
	}
}

func TestParseParamsMissingOrInvalid(t *testing.T) {
	// No params at all.
	noParams, err := WrapMessage([]byte(`{"jsonrpc":"2.0","id":4,"method":"tools/list"}`))
	if err != nil {
		t.Fatalf("WrapMessage failed: %v", err)
	}
	if noParams.ParseParams() != nil {
		t.Error("expected nil params for request without params")
	}

	// Params that are not an object.
	badParams, err := WrapMessage([]byte(`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":[1,2]}`))
	if err != nil {
		t.Fatalf("WrapMessage failed: %v", err)
	}
	if badParams.ParseParams() != nil {
		t.Error("expected nil params for non-object params")
	}
}

func TestNewResult(t *testing.T) {
	b := NewResult(json.RawMessage(`7`), map[string]interface{}{"ok": true})

	var resp struct {
		JSONRPC string          `json:"jsonrpc"`
		Result  map[string]bool `json:"result"`
		ID      json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(b, &resp); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if resp.JSONRPC != "2.0" {
		t.Errorf("expected jsonrpc 2.0, got %q", resp.JSONRPC)
	}
	if !resp.Result["ok"] {
		t.Error("expected result.ok to be true")
	}
	if string(resp.ID) != `7` {
		t.Errorf("expected id 7, got %s", resp.ID)
	}
}

func TestNewError(t *testing.T) {
	tests := []struct {
		name   string
		id     json.RawMessage
		wantID string
	}{
		{name: "numeric id passthrough", id: json.RawMessage(`9`), wantID: `9`},
		{name: "string id passthrough", id: json.RawMessage(`"req-1"`), wantID: `"req-1"`},
		{name: "nil id becomes null", id: nil, wantID: `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewError(tt.id, CodeParseError, "parse error")

			var resp struct {
				JSONRPC string `json:"jsonrpc"`
				Error   struct {
					Code    int    `json:"code"`
					Message string `json:"message"`
				} `json:"error"`
				ID json.RawMessage `json:"id"`
			}
			if err := json.Unmarshal(b, &resp); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			if resp.JSONRPC != "2.0" {
				t.Errorf("expected jsonrpc 2.0, got %q", resp.JSONRPC)
			}
			if resp.Error.Code != CodeParseError {
				t.Errorf("expected code %d, got %d", CodeParseError, resp.Error.Code)
			}
			if resp.Error.Message != "parse error" {
				t.Errorf("expected message 'parse error', got %q", resp.Error.Message)
			}
			if string(resp.ID) != tt.wantID {
				t.Errorf("expected id %s, got %s", tt.wantID, resp.ID)
			}
		})
	}
}

func TestMessageWithNilDecoded(t *testing.T) {
	msg := &Message{
		Raw:       []byte(`invalid`),
		Decoded:   nil,
		Timestamp: time.Now(),
	}

	if msg.IsRequest() {
		t.Error("IsRequest() should return false for nil Decoded")
	}
	if msg.Method() != "" {
		t.Error("Method() should return empty string for nil Decoded")
	}
	if msg.IsToolCall() {
		t.Error("IsToolCall() should return false for nil Decoded")
	}
	if msg.Request() != nil {
		t.Error("Request() should return nil for nil Decoded")
	}
	if msg.RawID() != nil {
		t.Error("RawID() should return nil for unparseable raw bytes")
	}
}
