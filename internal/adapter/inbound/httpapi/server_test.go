package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/medicos-health/medigate/internal/adapter/outbound/memory"
	"github.com/medicos-health/medigate/internal/domain/auth"
	"github.com/medicos-health/medigate/internal/domain/call"
	"github.com/medicos-health/medigate/internal/domain/tool"
	"github.com/medicos-health/medigate/internal/service"
)

type discardAudit struct{}

func (discardAudit) Record(call.AuditRecord) {}

const testAPIKey = "mg_test_key_1"

func newTestServer(t *testing.T) *httptest.Server {
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
	d := service.NewDispatcher(reg, &memory.PolicyClient{Decision: call.DecisionAllow}, discardAudit{}, logger)
	gw := service.NewGateway(d, reg, logger, "medigate", "0.1.0")

	hash, err := auth.HashKey(testAPIKey)
	if err != nil {
		t.Fatal(err)
	}
	resolver := auth.NewResolver([]auth.KeyEntry{
		{Hash: hash, Identity: auth.Identity{ID: "clinic-app", Name: "Clinic App"}},
	})

	srv := httptest.NewServer(NewServer(gw, resolver, logger).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, key, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/mcp", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestMCPEndpointRequiresAPIKey(t *testing.T) {
	srv := newTestServer(t)

	resp := post(t, srv, "", `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}

	resp = post(t, srv, "wrong-key", `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestMCPEndpointToolCall(t *testing.T) {
	srv := newTestServer(t)

	resp := post(t, srv, testAPIKey,
		`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"records.get","arguments":{"patient_id":"p-1"}}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["id"] != float64(5) {
		t.Errorf("id = %v, want 5", body["id"])
	}
	if body["error"] != nil {
		t.Errorf("error = %v", body["error"])
	}
	result, _ := body["result"].(map[string]interface{})
	if result["content"] == nil {
		t.Errorf("result = %v, want content", result)
	}
}

func TestMCPEndpointNotificationAccepted(t *testing.T) {
	srv := newTestServer(t)

	resp := post(t, srv, testAPIKey, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want 202", resp.StatusCode)
	}
}

func TestMCPEndpointRejectsOversizedBody(t *testing.T) {
	srv := newTestServer(t)

	resp := post(t, srv, testAPIKey, `{"padding":"`+strings.Repeat("x", maxBodySize)+`"}`)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", resp.StatusCode)
	}
}

func TestMCPEndpointMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/mcp")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
