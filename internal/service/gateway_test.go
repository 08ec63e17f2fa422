package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/medicos-health/medigate/internal/domain/call"
	"github.com/medicos-health/medigate/internal/domain/tool"
)

func newTestGateway(t *testing.T) (*Gateway, *recordingAudit, *mockPolicyClient) {
	t.Helper()
	policy := &mockPolicyClient{decision: call.PolicyDecision{Decision: call.DecisionAllow}}
	audit := &recordingAudit{}
	reg := newTestRegistry(t, nil, tool.Sensitive)
	d := NewDispatcher(reg, policy, audit, testLogger())
	return NewGateway(d, reg, testLogger(), "medigate", "0.1.0"), audit, policy
}

func decodeResponse(t *testing.T, raw []byte) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("invalid response JSON: %v\n%s", err, raw)
	}
	return resp
}

func TestGatewayInitialize(t *testing.T) {
	gw, _, _ := newTestGateway(t)

	resp := decodeResponse(t, gw.Handle(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05"}}`),
		"clinic-app"))

	result, ok := resp["result"].(map[string]interface{})
	if !ok {
		t.Fatalf("response = %v, want result", resp)
	}
	if result["protocolVersion"] != protocolVersion {
		t.Errorf("protocolVersion = %v", result["protocolVersion"])
	}
	info, _ := result["serverInfo"].(map[string]interface{})
	if info["name"] != "medigate" {
		t.Errorf("serverInfo = %v", info)
	}
	if resp["id"] != float64(1) {
		t.Errorf("id = %v, want 1", resp["id"])
	}
}

func TestGatewayToolsList(t *testing.T) {
	gw, _, _ := newTestGateway(t)

	resp := decodeResponse(t, gw.Handle(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":"a","method":"tools/list"}`), "clinic-app"))

	result := resp["result"].(map[string]interface{})
	tools, _ := result["tools"].([]interface{})
	if len(tools) != 2 {
		t.Fatalf("tools = %d, want 2", len(tools))
	}
	first := tools[0].(map[string]interface{})
	if first["name"] != "records.get" {
		t.Errorf("first tool = %v, want records.get (sorted)", first["name"])
	}
	if first["inputSchema"] == nil {
		t.Error("inputSchema missing")
	}
}

func TestGatewayToolCallSuccess(t *testing.T) {
	gw, audit, _ := newTestGateway(t)

	resp := decodeResponse(t, gw.Handle(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"records.get","arguments":{"patient_id":"p-9"}}}`),
		"clinic-app"))

	result := resp["result"].(map[string]interface{})
	if result["isError"] != nil {
		t.Fatalf("result = %v, want success", result)
	}
	content := result["content"].([]interface{})
	item := content[0].(map[string]interface{})
	if item["type"] != "text" {
		t.Errorf("content type = %v", item["type"])
	}
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(item["text"].(string)), &payload); err != nil {
		t.Fatalf("content text is not JSON: %v", err)
	}
	if payload["ok"] != true {
		t.Errorf("payload = %v", payload)
	}

	records := audit.all()
	if len(records) != 1 {
		t.Fatalf("audit records = %d, want 1", len(records))
	}
	if records[0].CallID == "" {
		t.Error("call id not assigned")
	}
	if records[0].Caller != "clinic-app" {
		t.Errorf("caller = %q", records[0].Caller)
	}
}

func TestGatewayToolCallDeniedIsInBand(t *testing.T) {
	gw, _, policy := newTestGateway(t)
	policy.decision = call.PolicyDecision{Decision: call.DecisionDeny, ReasonCode: "OUT_OF_HOURS"}

	resp := decodeResponse(t, gw.Handle(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"rx.validate","arguments":{}}}`),
		"clinic-app"))

	if resp["error"] != nil {
		t.Fatalf("response = %v, want in-band tool error", resp)
	}
	result := resp["result"].(map[string]interface{})
	if result["isError"] != true {
		t.Errorf("result = %v, want isError", result)
	}
}

func TestGatewayToolCallUnknownTool(t *testing.T) {
	gw, audit, _ := newTestGateway(t)

	resp := decodeResponse(t, gw.Handle(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"records.purge"}}`),
		"clinic-app"))

	errObj, ok := resp["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("response = %v, want protocol error", resp)
	}
	if errObj["code"] != float64(-32602) {
		t.Errorf("code = %v, want -32602", errObj["code"])
	}
	if got := len(audit.all()); got != 0 {
		t.Errorf("audit records = %d, want 0", got)
	}
}

func TestGatewayPing(t *testing.T) {
	gw, _, _ := newTestGateway(t)
	resp := decodeResponse(t, gw.Handle(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":2,"method":"ping"}`), "clinic-app"))
	if _, ok := resp["result"].(map[string]interface{}); !ok {
		t.Errorf("response = %v, want empty result", resp)
	}
}

func TestGatewayMethodNotFound(t *testing.T) {
	gw, _, _ := newTestGateway(t)
	resp := decodeResponse(t, gw.Handle(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":2,"method":"resources/list"}`), "clinic-app"))
	errObj, ok := resp["error"].(map[string]interface{})
	if !ok || errObj["code"] != float64(-32601) {
		t.Errorf("response = %v, want method not found", resp)
	}
}

func TestGatewayNotificationNoResponse(t *testing.T) {
	gw, _, _ := newTestGateway(t)
	if out := gw.Handle(context.Background(),
		[]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`), "clinic-app"); out != nil {
		t.Errorf("response = %s, want none for notification", out)
	}
	if out := gw.Handle(context.Background(),
		[]byte(`{"jsonrpc":"2.0","method":"ping"}`), "clinic-app"); out != nil {
		t.Errorf("response = %s, want none for id-less ping", out)
	}
}

func TestGatewayToolCallNotificationNoResponse(t *testing.T) {
	gw, audit, _ := newTestGateway(t)

	// A tools/call without an id is a notification: the call still runs
	// and is audited, but no response may be emitted.
	out := gw.Handle(context.Background(),
		[]byte(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"records.get","arguments":{"patient_id":"p-9"}}}`),
		"clinic-app")
	if out != nil {
		t.Errorf("response = %s, want none for notification", out)
	}
	if got := len(audit.all()); got != 1 {
		t.Errorf("audit records = %d, want 1", got)
	}

	// Malformed notifications get no error response either.
	if out := gw.Handle(context.Background(),
		[]byte(`{"jsonrpc":"2.0","method":"tools/call","params":{}}`), "clinic-app"); out != nil {
		t.Errorf("response = %s, want none for malformed notification", out)
	}
}

func TestGatewayParseError(t *testing.T) {
	gw, _, _ := newTestGateway(t)
	resp := decodeResponse(t, gw.Handle(context.Background(), []byte(`{not json`), "clinic-app"))
	errObj, ok := resp["error"].(map[string]interface{})
	if !ok || errObj["code"] != float64(-32700) {
		t.Errorf("response = %v, want parse error", resp)
	}
}
