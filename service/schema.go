package service

import (
	_ "embed"
	"fmt"
	"sync"
	"time"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/rlch/moviegraph"
	"github.com/rlch/moviegraph/graphql"
)

//go:embed schema.graphqls
var schemaSDL string

// SchemaSDL returns the GraphQL schema served by the service.
func SchemaSDL() string {
	return schemaSDL
}

var loadSchema = sync.OnceValues(func() (*ast.Schema, error) {
	schema, err := gqlparser.LoadSchema(&ast.Source{Name: "schema.graphqls", Input: schemaSDL})
	if err != nil {
		return nil, fmt.Errorf("service: failed to load schema: %w", err)
	}

	return schema, nil
})

// Schema returns the parsed GraphQL schema.
func Schema() (*ast.Schema, error) {
	return loadSchema()
}

// idScalar renders unset identities as null.
var idScalar graphql.Scalar = graphql.ScalarFuncs{
	SerializeFunc: func(v any) (any, error) {
		switch id := v.(type) {
		case moviegraph.ID:
			if !id.IsSet() {
				return nil, nil
			}

			return id.String(), nil
		case string:
			return id, nil
		default:
			return nil, &graphql.CoercionError{Type: "ID", Value: v}
		}
	},
	ParseValueFunc: func(v any) (any, error) {
		s, ok := v.(string)
		if !ok {
			return nil, &graphql.CoercionError{Type: "ID", Value: v}
		}

		id, err := moviegraph.ParseID(s)
		if err != nil {
			return nil, &graphql.CoercionError{Type: "ID", Value: v, Err: err}
		}

		return id, nil
	},
	ParseLiteralFunc: func(v *ast.Value) (any, error) {
		id, err := moviegraph.ParseID(v.Raw)
		if err != nil {
			return nil, &graphql.CoercionError{Type: "ID", Value: v.Raw, Literal: true, Err: err}
		}

		return id, nil
	},
}

// instantScalar renders a zero time as null.
var instantScalar graphql.Scalar = graphql.ScalarFuncs{
	SerializeFunc: func(v any) (any, error) {
		if t, ok := v.(time.Time); ok && t.IsZero() {
			return nil, nil
		}

		return graphql.InstantScalar.Serialize(v)
	},
	ParseValueFunc:   graphql.InstantScalar.ParseValue,
	ParseLiteralFunc: graphql.InstantScalar.ParseLiteral,
}
