// Package tool contains the tool registry and descriptor types.
package tool

import "context"

// Sensitivity classifies whether a tool needs a policy intent check
// before it may execute.
type Sensitivity int

const (
	// Routine tools execute without an intent check. They are still audited.
	Routine Sensitivity = iota
	// Sensitive tools require an allow decision from the policy engine
	// before any side effect.
	Sensitive
)

// String returns the string representation of the Sensitivity.
func (s Sensitivity) String() string {
	switch s {
	case Sensitive:
		return "sensitive"
	case Routine:
		return "routine"
	default:
		return "unknown"
	}
}

// Handler is the business logic behind one tool. It receives the decoded
// arguments and returns a JSON-serializable result map. Handlers must be
// safe for concurrent invocation.
type Handler func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error)

// GuardFunc is an optional argument guard evaluated at the start of the
// execution phase, after the policy decision. A non-nil error rejects the
// call before the handler runs.
type GuardFunc func(args map[string]interface{}) error

// Descriptor declares one registered tool. Created at startup and
// immutable for the process lifetime.
type Descriptor struct {
	// Name is the unique registry key (e.g. "rx.parse_text").
	Name string
	// Description is the human-readable summary exposed via tools/list.
	Description string
	// Sensitivity controls whether an intent check precedes execution.
	Sensitivity Sensitivity
	// InputSchema is the JSON Schema for the tool arguments.
	InputSchema map[string]interface{}
	// Guard is an optional compiled argument guard. Nil means no guard.
	Guard GuardFunc
	// Handler executes the tool.
	Handler Handler
}
