package graphql

import (
	"context"
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
)

// ResolveParams is passed to a per-parent resolver.
type ResolveParams struct {
	// Source is the parent value (nil for root fields).
	Source any
	// Args holds the coerced field arguments.
	Args map[string]any
	// Field is the AST field being resolved.
	Field *ast.Field
}

// ResolveFunc resolves one field of one parent.
type ResolveFunc func(ctx context.Context, p ResolveParams) (any, error)

// BatchParams is passed to a batch resolver.
type BatchParams struct {
	// Sources are the parents of every sibling instance of the field, in
	// response order.
	Sources []any
	// Args holds the coerced field arguments shared by all instances.
	Args map[string]any
	// Field is the AST field being resolved.
	Field *ast.Field
}

// BatchResult is the outcome for one parent of a batch.
type BatchResult struct {
	Value any
	Err   error
}

// BatchResolveFunc resolves one field for many parents at once. It must
// return exactly one result per source, in the same order. A non-nil error
// fails the field for every parent of the batch.
type BatchResolveFunc func(ctx context.Context, p BatchParams) ([]BatchResult, error)

type fieldKey struct {
	typeName string
	field    string
}

type resolver struct {
	single ResolveFunc
	batch  BatchResolveFunc
}

// Registry maps (parent type, field name) to resolvers. Per-parent and batch
// resolvers are registered separately; fields without a resolver are read
// from the parent value.
type Registry struct {
	resolvers map[fieldKey]resolver
	scalars   map[string]Scalar
}

// NewRegistry creates a registry with the built-in scalars.
func NewRegistry() *Registry {
	r := &Registry{
		resolvers: make(map[fieldKey]resolver),
		scalars:   make(map[string]Scalar),
	}

	for name, s := range builtinScalars() {
		r.scalars[name] = s
	}

	return r
}

// Field registers a per-parent resolver.
func (r *Registry) Field(typeName, field string, fn ResolveFunc) {
	r.resolvers[fieldKey{typeName, field}] = resolver{single: fn}
}

// Batch registers a batch resolver. The executor groups every sibling
// instance of the field before calling it.
func (r *Registry) Batch(typeName, field string, fn BatchResolveFunc) {
	r.resolvers[fieldKey{typeName, field}] = resolver{batch: fn}
}

// Scalar registers a custom scalar, replacing any previous one with the same name.
func (r *Registry) Scalar(name string, s Scalar) {
	r.scalars[name] = s
}

// IsBatched reports whether the field has a batch resolver.
func (r *Registry) IsBatched(typeName, field string) bool {
	return r.resolvers[fieldKey{typeName, field}].batch != nil
}

func (r *Registry) lookup(typeName, field string) (resolver, bool) {
	res, ok := r.resolvers[fieldKey{typeName, field}]

	return res, ok
}

// Check verifies that every registered resolver and scalar exists in schema.
func (r *Registry) Check(schema *ast.Schema) error {
	for key := range r.resolvers {
		def := schema.Types[key.typeName]
		if def == nil {
			return fmt.Errorf("%w: type %s", ErrUnknownSchemaElement, key.typeName)
		}

		if def.Fields.ForName(key.field) == nil {
			return fmt.Errorf("%w: field %s.%s", ErrUnknownSchemaElement, key.typeName, key.field)
		}
	}

	for name, def := range schema.Types {
		if def.Kind != ast.Scalar || def.BuiltIn {
			continue
		}

		if _, ok := r.scalars[name]; !ok {
			return fmt.Errorf("%w: scalar %s has no coercion", ErrUnknownSchemaElement, name)
		}
	}

	return nil
}
