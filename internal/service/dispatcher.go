// Package service contains application services: the dispatcher that
// gates and executes tool calls, the async audit pipeline, and the
// gateway façade that speaks the outer protocol.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/medicos-health/medigate/internal/domain/call"
	"github.com/medicos-health/medigate/internal/domain/tool"
	"github.com/medicos-health/medigate/internal/port/outbound"
)

// AuditRecorder accepts one audit record per dispatched call.
// Satisfied by AuditService; submission must not block the dispatch path
// beyond its own bounded backpressure.
type AuditRecorder interface {
	Record(record call.AuditRecord)
}

// StatsRecorder records dispatch statistics. Satisfied by the HTTP
// transport's Metrics; optional, may be nil.
type StatsRecorder interface {
	RecordOutcome(tool, outcome string)
	RecordPolicyDecision(decision string)
	RecordRejection()
	ObserveDispatch(tool string, d time.Duration)
}

// Dispatcher is the policy-gated tool dispatch state machine. For each
// call it resolves the handler, obtains a policy decision when the tool
// is sensitive, executes the handler, and emits exactly one audit
// record reflecting the terminal state.
//
// Dispatchers are safe for concurrent use; calls share no mutable state
// beyond the frozen registry.
type Dispatcher struct {
	registry *tool.Registry
	policy   outbound.PolicyClient
	audit    AuditRecorder
	stats    StatsRecorder // optional, may be nil
	logger   *slog.Logger
	tracer   trace.Tracer

	policyTimeout  time.Duration
	handlerTimeout time.Duration
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithPolicyTimeout bounds the intent check. Default 5s.
func WithPolicyTimeout(d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) { dp.policyTimeout = d }
}

// WithHandlerTimeout bounds handler execution. Default 60s.
func WithHandlerTimeout(d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) { dp.handlerTimeout = d }
}

// WithStats attaches a stats recorder.
func WithStats(s StatsRecorder) DispatcherOption {
	return func(dp *Dispatcher) { dp.stats = s }
}

// WithTracer attaches an OpenTelemetry tracer. Default is a no-op tracer.
func WithTracer(t trace.Tracer) DispatcherOption {
	return func(dp *Dispatcher) { dp.tracer = t }
}

// NewDispatcher creates a dispatcher over a frozen registry.
func NewDispatcher(
	registry *tool.Registry,
	policy outbound.PolicyClient,
	audit AuditRecorder,
	logger *slog.Logger,
	opts ...DispatcherOption,
) *Dispatcher {
	d := &Dispatcher{
		registry:       registry,
		policy:         policy,
		audit:          audit,
		logger:         logger,
		tracer:         noop.NewTracerProvider().Tracer("medigate"),
		policyTimeout:  5 * time.Second,
		handlerTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs one tool call through the full gate:
//
//	RESOLVING -> (POLICY_CHECK) -> EXECUTING -> AUDITING
//
// Exactly one audit record is emitted for every call that resolves to a
// registered tool. Unknown tools return before a call-scoped audit
// context exists and are logged only as a rejection.
func (d *Dispatcher) Dispatch(ctx context.Context, tc call.ToolCall) (map[string]interface{}, error) {
	desc, ok := d.registry.Resolve(tc.Tool)
	if !ok {
		d.logger.Warn("rejected call to unknown tool",
			"tool", tc.Tool,
			"caller", tc.Caller,
			"call_id", tc.CallID,
		)
		if d.stats != nil {
			d.stats.RecordRejection()
		}
		return nil, fmt.Errorf("%w: %s", call.ErrUnknownTool, tc.Tool)
	}

	started := time.Now().UTC()
	ctx, span := d.tracer.Start(ctx, "dispatch",
		trace.WithAttributes(
			attribute.String("tool", tc.Tool),
			attribute.String("call_id", tc.CallID),
			attribute.Bool("sensitive", desc.Sensitivity == tool.Sensitive),
		),
	)
	defer span.End()

	var decision *call.PolicyDecision

	if desc.Sensitivity == tool.Sensitive {
		dec, err := d.checkIntent(ctx, tc)
		if err != nil {
			// Fail closed: a sensitive tool never executes when the
			// policy engine cannot be reached.
			d.logger.Error("policy engine unreachable, denying call",
				"tool", tc.Tool,
				"call_id", tc.CallID,
				"error", err,
			)
			d.finish(tc, desc, nil, call.OutcomePolicyUnavailable, err, started)
			return nil, fmt.Errorf("%w: %s", call.ErrPolicyUnavailable, tc.Tool)
		}
		decision = &dec
		if d.stats != nil {
			d.stats.RecordPolicyDecision(dec.Decision)
		}
		if !dec.Allowed() {
			d.logger.Info("call denied by policy",
				"tool", tc.Tool,
				"call_id", tc.CallID,
				"reason_code", dec.ReasonCode,
				"policy_version", dec.PolicyVersion,
			)
			d.finish(tc, desc, decision, call.OutcomePolicyDenied, nil, started)
			return nil, &call.PolicyDenyError{
				CallID:     tc.CallID,
				Tool:       tc.Tool,
				ReasonCode: dec.ReasonCode,
			}
		}
	}

	result, execErr := d.execute(ctx, desc, tc)
	if execErr != nil {
		d.finish(tc, desc, decision, call.OutcomeHandlerError, execErr, started)
		return nil, &call.HandlerError{
			CallID: tc.CallID,
			Tool:   tc.Tool,
			Detail: call.SanitizeErrorDetail(execErr),
		}
	}

	d.finish(tc, desc, decision, call.OutcomeSuccess, nil, started)
	return result, nil
}

// checkIntent asks the policy engine for a decision under a bounded
// timeout. No inline retries: tool calls are not assumed idempotent.
func (d *Dispatcher) checkIntent(ctx context.Context, tc call.ToolCall) (call.PolicyDecision, error) {
	pctx, cancel := context.WithTimeout(ctx, d.policyTimeout)
	defer cancel()
	return d.policy.CheckIntent(pctx, call.IntentRequest{
		CallID:    tc.CallID,
		Tool:      tc.Tool,
		Caller:    tc.Caller,
		Arguments: tc.Arguments,
	})
}

// execute runs the guard and the handler under the handler timeout.
// Guard failures count as execution-phase failures; the handler never
// runs after one.
func (d *Dispatcher) execute(ctx context.Context, desc *tool.Descriptor, tc call.ToolCall) (map[string]interface{}, error) {
	if desc.Guard != nil {
		if err := desc.Guard(tc.Arguments); err != nil {
			return nil, fmt.Errorf("%w: %s", call.ErrInvalidArguments, err)
		}
	}
	hctx, cancel := context.WithTimeout(ctx, d.handlerTimeout)
	defer cancel()
	return desc.Handler(hctx, tc.Arguments)
}

// finish builds and submits the single audit record for the call.
// Submission is non-blocking and detached from the call's context: an
// action that took effect is recorded even when the caller has already
// disconnected.
func (d *Dispatcher) finish(
	tc call.ToolCall,
	desc *tool.Descriptor,
	decision *call.PolicyDecision,
	outcome string,
	failure error,
	started time.Time,
) {
	record := call.AuditRecord{
		CallID:          tc.CallID,
		Tool:            tc.Tool,
		Caller:          tc.Caller,
		Sensitive:       desc.Sensitivity == tool.Sensitive,
		Decision:        decision,
		Outcome:         outcome,
		ErrorDetail:     call.SanitizeErrorDetail(failure),
		Arguments:       call.RedactSensitiveArgs(tc.Arguments),
		ArgumentsDigest: call.DigestArgs(tc.Arguments),
		StartedAt:       started,
		FinishedAt:      time.Now().UTC(),
	}
	d.audit.Record(record)

	if d.stats != nil {
		d.stats.RecordOutcome(tc.Tool, outcome)
		d.stats.ObserveDispatch(tc.Tool, record.FinishedAt.Sub(started))
	}

	d.logger.Debug("call audited",
		"tool", tc.Tool,
		"call_id", tc.CallID,
		"outcome", outcome,
		"latency_us", record.FinishedAt.Sub(started).Microseconds(),
	)
}
