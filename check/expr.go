package check

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
)

// ExprResult holds the result of evaluating an expectation.
type ExprResult struct {
	Expression string // The expression that was evaluated
	Passed     bool   // Whether the expression evaluated to true
	Error      error  // Any error during compilation or evaluation
}

// Failed reports whether the expectation did not hold.
func (r ExprResult) Failed() bool {
	return r.Error != nil || !r.Passed
}

// EvalExpr evaluates one boolean expectation against a response environment.
// A blank expression passes.
func EvalExpr(exprStr string, env map[string]any) ExprResult {
	result := ExprResult{Expression: exprStr}

	if strings.TrimSpace(exprStr) == "" {
		result.Passed = true

		return result
	}

	program, err := expr.Compile(exprStr, expr.Env(env), expr.AsBool())
	if err != nil {
		result.Error = fmt.Errorf("compile expression %q: %w", exprStr, err)

		return result
	}

	output, err := expr.Run(program, env)
	if err != nil {
		result.Error = fmt.Errorf("evaluate expression %q: %w", exprStr, err)

		return result
	}

	passed, ok := output.(bool)
	if !ok {
		result.Error = fmt.Errorf("%w: %q returned %T", ErrExprNotBool, exprStr, output)

		return result
	}

	result.Passed = passed

	return result
}

// EvalExprs evaluates every expectation. With stopOnFail it returns after the
// first one that does not hold.
func EvalExprs(exprs []string, env map[string]any, stopOnFail bool) []ExprResult {
	results := make([]ExprResult, 0, len(exprs))

	for _, e := range exprs {
		result := EvalExpr(e, env)
		results = append(results, result)

		if stopOnFail && result.Failed() {
			break
		}
	}

	return results
}

// FirstFailure returns the first failed or errored result, or nil if all passed.
func FirstFailure(results []ExprResult) *ExprResult {
	for i := range results {
		if results[i].Failed() {
			return &results[i]
		}
	}

	return nil
}
