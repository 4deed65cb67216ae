package grading

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
)

// Evaluator evaluates a formula against a grading context.
type Evaluator interface {
	Evaluate(formula string, ctx *Context) Value
}

// ExprEvaluator evaluates formulas written in the expr language, e.g.
// `score >= 70 && algebra > 10` or `passed`.
type ExprEvaluator struct{}

// NewExprEvaluator returns the default formula evaluator.
func NewExprEvaluator() *ExprEvaluator {
	return &ExprEvaluator{}
}

// Evaluate compiles the formula against the variables currently bound in ctx.
// Referencing an unbound variable is an error.
func (e *ExprEvaluator) Evaluate(formula string, ctx *Context) Value {
	formula = strings.TrimSpace(formula)
	if formula == "" {
		return Err(fmt.Errorf("empty formula"))
	}

	env := ctx.Env()
	program, err := expr.Compile(formula, expr.Env(env))
	if err != nil {
		return Err(fmt.Errorf("compile %q: %w", formula, err))
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return Err(fmt.Errorf("run %q: %w", formula, err))
	}

	switch v := out.(type) {
	case bool:
		return Bool(v)
	case float64:
		return Real(v)
	case float32:
		return Real(float64(v))
	case int:
		return Real(float64(v))
	case int64:
		return Real(float64(v))
	case int32:
		return Real(float64(v))
	default:
		return Err(fmt.Errorf("formula %q produced unsupported %T", formula, out))
	}
}
