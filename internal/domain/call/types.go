// Package call contains domain types for a single tool invocation:
// the inbound ToolCall, the policy decision obtained for it, and the
// audit record describing its terminal state.
package call

import "time"

// Decision values returned by the policy engine.
const (
	// DecisionAllow permits the tool call to proceed.
	DecisionAllow = "allow"
	// DecisionDeny blocks the tool call.
	DecisionDeny = "deny"
)

// Outcome values describing the terminal state of a dispatched call.
const (
	// OutcomeSuccess indicates the handler completed normally.
	OutcomeSuccess = "success"
	// OutcomeHandlerError indicates the handler (or its argument
	// validation) failed during the execution phase.
	OutcomeHandlerError = "handler_error"
	// OutcomePolicyDenied indicates the policy engine denied the intent.
	OutcomePolicyDenied = "policy_denied"
	// OutcomePolicyUnavailable indicates the policy engine could not be
	// reached; sensitive calls fail closed with this outcome.
	OutcomePolicyUnavailable = "policy_unavailable"
)

// ToolCall is one inbound tool invocation. Immutable once built at the
// transport boundary; the dispatcher consumes it and discards it after
// the response is produced.
type ToolCall struct {
	// CallID is a unique identifier generated per call at ingress.
	CallID string
	// Tool is the registered tool name (e.g. "schedule.generate").
	Tool string
	// Arguments are the decoded tool arguments.
	Arguments map[string]interface{}
	// Caller is the opaque caller identity resolved by the transport
	// (API key identity for HTTP, "local" for stdio).
	Caller string
	// ReceivedAt is when the transport decoded the call.
	ReceivedAt time.Time
}

// IntentRequest is the input to the policy engine's intent check.
type IntentRequest struct {
	CallID    string
	Tool      string
	Caller    string
	Arguments map[string]interface{}
}

// PolicyDecision is the policy engine's answer for one sensitive call.
// Never mutated; owned by the dispatcher for the duration of the call.
type PolicyDecision struct {
	// CallID echoes the call this decision was issued for.
	CallID string `json:"call_id"`
	// Decision is DecisionAllow or DecisionDeny.
	Decision string `json:"decision"`
	// ReasonCode is the engine's machine-readable reason (e.g. "OUT_OF_HOURS").
	ReasonCode string `json:"reason_code"`
	// PolicyVersion identifies the policy set that produced the decision.
	PolicyVersion string `json:"policy_version"`
	// EvaluatedAt is the engine's evaluation timestamp.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Allowed reports whether the decision permits execution.
func (d PolicyDecision) Allowed() bool {
	return d.Decision == DecisionAllow
}

// AuditRecord describes the authorization and execution outcome of one
// dispatched tool call. Exactly one record is produced per call that
// resolves to a registered tool.
type AuditRecord struct {
	// CallID correlates the record with the inbound call.
	CallID string `json:"call_id"`
	// Tool is the invoked tool name.
	Tool string `json:"tool"`
	// Caller is the opaque caller identity.
	Caller string `json:"caller"`
	// Sensitive reports whether the tool required an intent check.
	Sensitive bool `json:"sensitive"`
	// Decision is nil for routine tools and for calls where the policy
	// engine was unreachable.
	Decision *PolicyDecision `json:"decision,omitempty"`
	// Outcome is the terminal state of the call.
	Outcome string `json:"outcome"`
	// ErrorDetail is a sanitized description of the failure, if any.
	ErrorDetail string `json:"error_detail,omitempty"`
	// Arguments are the redacted call arguments (loggable keys only).
	Arguments map[string]interface{} `json:"arguments,omitempty"`
	// ArgumentsDigest is a stable hash of the full argument map, so an
	// auditor can match calls without the record carrying raw values.
	ArgumentsDigest string `json:"arguments_digest,omitempty"`
	// StartedAt is when the dispatcher accepted the call.
	StartedAt time.Time `json:"started_at"`
	// FinishedAt is when the terminal state was reached.
	FinishedAt time.Time `json:"finished_at"`
}
