package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

// celCostLimit bounds runaway expressions
const celCostLimit = 1000000

const (
	// celValueVar holds the value of the column a condition cell belongs to
	celValueVar = "value"
	// celInputVar holds the whole input row as a map
	celInputVar = "input"
)

type celProgram = cel.Program

// newCELEnv declares one dynamic variable per input column plus value and input
func newCELEnv(inputs []*Column) (*cel.Env, error) {
	opts := []cel.EnvOption{
		cel.CrossTypeNumericComparisons(true),
		cel.Variable(celValueVar, cel.DynType),
		cel.Variable(celInputVar, cel.MapType(cel.StringType, cel.DynType)),
	}
	for _, col := range inputs {
		opts = append(opts, cel.Variable(col.Name, cel.DynType))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// compileExpression compiles a CEL expression into a program with a cost limit
func compileExpression(env *cel.Env, expression string) (celProgram, error) {
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	prog, err := env.Program(ast, cel.CostLimit(celCostLimit))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}
	return prog, nil
}

// evalExpression runs prog and returns its native Go value; CEL null becomes nil
func evalExpression(prog celProgram, vars map[string]any) (any, error) {
	out, _, err := prog.Eval(vars)
	if err != nil {
		return nil, err
	}
	if _, isNull := out.(types.Null); isNull {
		return nil, nil
	}
	return out.Value(), nil
}

// activation builds the CEL variables for one input row
func activation(row InputRow) map[string]any {
	input := make(map[string]any, len(row))
	vars := make(map[string]any, len(row)+2)
	for name, v := range row {
		if v.IsNull() {
			continue
		}
		input[name] = v.Value()
		vars[name] = v.Value()
	}
	vars[celInputVar] = input
	return vars
}
