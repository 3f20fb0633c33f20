package rules

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// Protect CEL environment creation and compilation from concurrent access.
var (
	celMutex sync.Mutex
	celEnv   *cel.Env
)

// Expression variables:
//   - `value` (dyn): the target column's value (null, string, double or bool)
//   - `row` (map<string, dyn>): every column of the current row
//
// Examples:
//   - value == null || value.size() <= 64
//   - row.country != "DE" || value.matches("^DE[0-9]{20}$")
//   - double(value) >= 0.0
func environment() (*cel.Env, error) {
	if celEnv != nil {
		return celEnv, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("value", cel.DynType),
		cel.Variable("row", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	celEnv = env
	return celEnv, nil
}

// CompileExpression compiles a custom_expression into a CEL program. The
// expression must be boolean or dynamically typed.
//
//nolint:ireturn // Following CEL's function signature.
func CompileExpression(expression string) (cel.Program, error) {
	celMutex.Lock()
	defer celMutex.Unlock()

	env, err := environment()
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile expression: %w", issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression must return bool, got %s", out)
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("create program: %w", err)
	}
	return program, nil
}
