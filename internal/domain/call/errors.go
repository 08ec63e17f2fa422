package call

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the caller-facing error taxonomy.
var (
	// ErrUnknownTool indicates the call named an unregistered tool.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidArguments indicates the arguments failed validation
	// before the handler ran.
	ErrInvalidArguments = errors.New("invalid arguments")
	// ErrPolicyDenied indicates the policy engine denied the intent.
	ErrPolicyDenied = errors.New("policy denied")
	// ErrPolicyUnavailable indicates the policy engine could not be
	// reached. Sensitive calls fail closed.
	ErrPolicyUnavailable = errors.New("policy engine unavailable")
	// ErrHandlerFailed indicates the handler returned an error.
	ErrHandlerFailed = errors.New("handler failed")
)

// PolicyDenyError wraps a denial with the engine's reason code so the
// transport can surface the minimum a caller needs to act on.
type PolicyDenyError struct {
	CallID     string
	Tool       string
	ReasonCode string
}

// Error implements the error interface.
func (e *PolicyDenyError) Error() string {
	return fmt.Sprintf("policy denied %s: %s", e.Tool, e.ReasonCode)
}

// Unwrap returns ErrPolicyDenied so errors.Is(err, ErrPolicyDenied) works.
func (e *PolicyDenyError) Unwrap() error {
	return ErrPolicyDenied
}

// HandlerError wraps a handler failure with a sanitized detail string.
// The raw downstream error never crosses the transport boundary.
type HandlerError struct {
	CallID string
	Tool   string
	Detail string
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Detail)
}

// Unwrap returns ErrHandlerFailed so errors.Is(err, ErrHandlerFailed) works.
func (e *HandlerError) Unwrap() error {
	return ErrHandlerFailed
}
