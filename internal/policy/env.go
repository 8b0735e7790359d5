package policy

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// newEnv builds the CEL environment shared by every compiled condition: the
// three implicit bindings from spec §3.3, plus a custom `in` overload so
// that membership against a missing (null) right-hand side evaluates to
// false instead of erroring — combined with nullSafeMap's undefined-field
// handling this gives `!(x in y)` on a missing y the value true, per spec
// §4.6's expression evaluator rules.
func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("user", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("input", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("response", cel.MapType(cel.StringType, cel.DynType)),
		cel.Function(operators.In,
			cel.Overload("in_null", []*cel.Type{cel.DynType, cel.NullType}, cel.BoolType,
				cel.BinaryBinding(func(_, _ ref.Val) ref.Val {
					return types.False
				}),
			),
		),
	)
}

// compiledCondition is a Policy.Condition after CEL compilation.
type compiledCondition struct {
	source  string
	program cel.Program
}

func compileCondition(env *cel.Env, expr string) (*compiledCondition, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compiling condition %q: %w", expr, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("building program for condition %q: %w", expr, err)
	}
	return &compiledCondition{source: expr, program: prg}, nil
}
