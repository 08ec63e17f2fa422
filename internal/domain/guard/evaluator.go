// Package guard provides a CEL-based argument guard evaluator.
//
// Guards are an optional second line of defense: they run after the
// policy engine has allowed a sensitive call and reject arguments that
// violate a per-tool constraint (e.g. a schedule adjustment that names a
// dosage field). Guards never replace the intent check.
package guard

import (
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/medicos-health/medigate/internal/domain/tool"
)

// maxExpressionLength is the maximum allowed length for guard expressions.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit.
const maxCostBudget = 100_000

// maxNestingDepth is the maximum allowed parenthesis/bracket nesting depth.
const maxNestingDepth = 50

// Evaluator compiles CEL guard expressions into tool.GuardFuncs.
type Evaluator struct {
	env *cel.Env
}

// NewEvaluator creates an evaluator whose environment exposes the tool
// arguments as the map variable "args".
func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("args", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create guard environment: %w", err)
	}
	return &Evaluator{env: env}, nil
}

// Compile parses, checks, and compiles an expression. The resulting
// GuardFunc returns nil when the expression evaluates to true, and an
// error naming the guard otherwise.
func (e *Evaluator) Compile(toolName, expression string) (tool.GuardFunc, error) {
	if err := validateExpression(expression); err != nil {
		return nil, fmt.Errorf("guard for %s: %w", toolName, err)
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("guard for %s: compilation failed: %w", toolName, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("guard for %s: expression must evaluate to bool, got %s", toolName, ast.OutputType())
	}

	prg, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
	)
	if err != nil {
		return nil, fmt.Errorf("guard for %s: program creation failed: %w", toolName, err)
	}

	return func(args map[string]interface{}) error {
		if args == nil {
			args = map[string]interface{}{}
		}
		out, _, err := prg.Eval(map[string]interface{}{"args": args})
		if err != nil {
			return fmt.Errorf("guard evaluation failed: %w", err)
		}
		ok, isBool := out.Value().(bool)
		if !isBool {
			return errors.New("guard produced a non-boolean result")
		}
		if !ok {
			return fmt.Errorf("arguments rejected by guard %q", expression)
		}
		return nil
	}, nil
}

// validateExpression enforces the static safety limits before compilation.
func validateExpression(expr string) error {
	if expr == "" {
		return errors.New("expression is empty")
	}
	if len(expr) > maxExpressionLength {
		return fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}
