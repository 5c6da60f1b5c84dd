package env

import (
	"fmt"

	"github.com/expr-lang/expr"
)

// EvalBool evaluates a boolean expression against the current environment.
// Missing variables evaluate to nil instead of failing compilation, so
// assertions on not-yet-extracted values read naturally.
func (e *Environment) EvalBool(expression string) (bool, error) {
	context := e.Snapshot()
	context["null"] = nil

	program, err := expr.Compile(expression,
		expr.Env(context),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return false, fmt.Errorf("invalid expression %q: %w", expression, err)
	}

	result, err := expr.Run(program, context)
	if err != nil {
		return false, fmt.Errorf("expression %q failed: %w", expression, err)
	}

	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q returned %T, expected bool", expression, result)
	}
	return b, nil
}
