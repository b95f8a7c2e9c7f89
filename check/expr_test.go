//nolint:testpackage // Tests need access to internal types
package check

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/rlch/moviegraph/graphql"
)

func TestEvalExpr(t *testing.T) {
	t.Parallel()

	env := map[string]any{
		"ok": true,
		"data": map[string]any{
			"movie": map[string]any{
				"title":    "Cloud Atlas",
				"released": 2012,
				"tagline":  nil,
				"cast": []any{
					map[string]any{"roles": []any{"Zachry", "Dr. Henry Goose"}},
				},
			},
		},
		"errors": []any{},
	}

	tests := []struct {
		name   string
		expr   string
		passed bool
	}{
		{"blank", "  ", true},
		{"bool", "ok", true},
		{"string equal", `data.movie.title == "Cloud Atlas"`, true},
		{"int compare", "data.movie.released > 2000", true},
		{"nil field", "data.movie.tagline == nil", true},
		{"len", "len(errors) == 0", true},
		{"nested index", `data.movie.cast[0].roles[1] == "Dr. Henry Goose"`, true},
		{"builtin", `"Zachry" in data.movie.cast[0].roles`, true},
		{"false", "data.movie.released < 2000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := EvalExpr(tt.expr, env)
			require.NoError(t, result.Error)
			assert.Equal(t, tt.passed, result.Passed)
		})
	}
}

func TestEvalExpr_Errors(t *testing.T) {
	t.Parallel()

	env := map[string]any{"n": 1}

	result := EvalExpr("n +", env)
	require.Error(t, result.Error)
	assert.True(t, result.Failed())

	result = EvalExpr("missing > 1", env)
	require.Error(t, result.Error)
}

func TestEvalExprs(t *testing.T) {
	t.Parallel()

	env := map[string]any{"n": 1}
	exprs := []string{"n == 1", "n == 2", "n == 3"}

	all := EvalExprs(exprs, env, false)
	assert.Len(t, all, 3)

	first := FirstFailure(all)
	require.NotNil(t, first)
	assert.Equal(t, "n == 2", first.Expression)

	stopped := EvalExprs(exprs, env, true)
	assert.Len(t, stopped, 2)

	assert.Nil(t, FirstFailure(EvalExprs([]string{"n == 1"}, env, false)))
}

func TestEnv(t *testing.T) {
	t.Parallel()

	resp := &graphql.Response{Errors: gqlerror.List{graphql.ClassifyError(errors.New("boom"))}}

	env := Env(resp)
	assert.Equal(t, false, env["ok"])
	assert.Nil(t, env["data"])

	result := EvalExpr(`data == nil && errors[0].message == "boom"`, env)
	require.NoError(t, result.Error)
	assert.True(t, result.Passed)
}
