package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/medicos-health/medigate/internal/domain/call"
	"github.com/medicos-health/medigate/internal/domain/tool"
	"github.com/medicos-health/medigate/pkg/mcp"
)

// protocolVersion is the MCP protocol revision the gateway speaks.
const protocolVersion = "2024-11-05"

// Gateway routes MCP JSON-RPC requests to the dispatcher. It owns the
// protocol surface (initialize, tools/list, tools/call, ping) while the
// dispatcher owns call semantics.
type Gateway struct {
	dispatcher *Dispatcher
	registry   *tool.Registry
	logger     *slog.Logger

	serverName    string
	serverVersion string
}

// NewGateway creates a gateway over a dispatcher and its registry.
func NewGateway(dispatcher *Dispatcher, registry *tool.Registry, logger *slog.Logger, name, version string) *Gateway {
	return &Gateway{
		dispatcher:    dispatcher,
		registry:      registry,
		logger:        logger,
		serverName:    name,
		serverVersion: version,
	}
}

// Handle processes one raw JSON-RPC message and returns the encoded
// response, or nil when no response is owed (notifications).
// The caller identity comes from the transport (API key identity for
// HTTP, configured identity for stdio).
func (g *Gateway) Handle(ctx context.Context, raw []byte, caller string) []byte {
	msg, err := mcp.WrapMessage(raw)
	if err != nil {
		g.logger.Warn("unparseable message", "error", err)
		return mcp.NewError(nil, mcp.CodeParseError, "parse error")
	}

	if !msg.IsRequest() {
		// Responses are never expected on an inbound gateway connection.
		g.logger.Warn("ignoring non-request message")
		return nil
	}

	id := msg.RawID()

	// Requests without an id are notifications and must never be
	// answered. Only tools/call notifications carry side effects worth
	// running; everything else is dropped here.
	if msg.IsNotification() && msg.Method() != "tools/call" {
		return nil
	}

	switch msg.Method() {
	case "initialize":
		return mcp.NewResult(id, g.initializeResult())
	case "ping":
		return mcp.NewResult(id, map[string]interface{}{})
	case "tools/list":
		return mcp.NewResult(id, g.listToolsResult())
	case "tools/call":
		return g.handleToolCall(ctx, msg, caller)
	default:
		return mcp.NewError(id, mcp.CodeMethodNotFound, "method not found: "+msg.Method())
	}
}

func (g *Gateway) initializeResult() map[string]interface{} {
	return map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]interface{}{
			"tools": map[string]interface{}{},
		},
		"serverInfo": map[string]interface{}{
			"name":    g.serverName,
			"version": g.serverVersion,
		},
	}
}

func (g *Gateway) listToolsResult() map[string]interface{} {
	descriptors := g.registry.Descriptors()
	tools := make([]map[string]interface{}, 0, len(descriptors))
	for _, desc := range descriptors {
		schema := desc.InputSchema
		if schema == nil {
			schema = map[string]interface{}{"type": "object"}
		}
		tools = append(tools, map[string]interface{}{
			"name":        desc.Name,
			"description": desc.Description,
			"inputSchema": schema,
		})
	}
	return map[string]interface{}{"tools": tools}
}

func (g *Gateway) handleToolCall(ctx context.Context, msg *mcp.Message, caller string) []byte {
	id := msg.RawID()
	// Tool calls sent as notifications still run through the full gate
	// (policy, handler, audit) but must not be answered: JSON-RPC 2.0
	// forbids responding to a request without an id.
	notification := msg.IsNotification()

	params := msg.ParseParams()
	if params == nil {
		if notification {
			return nil
		}
		return mcp.NewError(id, mcp.CodeInvalidParams, "invalid params")
	}
	name, _ := params["name"].(string)
	if name == "" {
		if notification {
			return nil
		}
		return mcp.NewError(id, mcp.CodeInvalidParams, "missing tool name")
	}
	args, _ := params["arguments"].(map[string]interface{})
	if args == nil {
		args = map[string]interface{}{}
	}

	tc := call.ToolCall{
		CallID:     uuid.NewString(),
		Tool:       name,
		Arguments:  args,
		Caller:     caller,
		ReceivedAt: time.Now().UTC(),
	}

	result, err := g.dispatcher.Dispatch(ctx, tc)
	if notification {
		return nil
	}
	if err != nil {
		if errors.Is(err, call.ErrUnknownTool) {
			return mcp.NewError(id, mcp.CodeInvalidParams, "unknown tool: "+name)
		}
		// Gated and failed calls surface as tool errors, not protocol
		// errors, so clients see them in-band.
		return mcp.NewResult(id, toolErrorResult(err))
	}

	return mcp.NewResult(id, toolResult(result))
}

// toolResult wraps a handler result as a single text content item
// holding the JSON-encoded payload.
func toolResult(result map[string]interface{}) map[string]interface{} {
	text, err := json.Marshal(result)
	if err != nil {
		return toolErrorResult(err)
	}
	return map[string]interface{}{
		"content": []map[string]interface{}{
			{"type": "text", "text": string(text)},
		},
	}
}

func toolErrorResult(err error) map[string]interface{} {
	return map[string]interface{}{
		"content": []map[string]interface{}{
			{"type": "text", "text": err.Error()},
		},
		"isError": true,
	}
}
