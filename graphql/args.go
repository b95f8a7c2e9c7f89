package graphql

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/vektah/gqlparser/v2/ast"
)

// coerceArgs converts a field's arguments into internal values. Literals go
// through Scalar.ParseLiteral and variables through Scalar.ParseValue.
func (x *execution) coerceArgs(field *ast.Field, def *ast.FieldDefinition) (map[string]any, error) {
	args := make(map[string]any, len(def.Arguments))

	for _, argDef := range def.Arguments {
		arg := field.Arguments.ForName(argDef.Name)

		var (
			v   any
			err error
		)

		switch {
		case arg == nil || arg.Value == nil:
			if argDef.DefaultValue == nil {
				continue
			}

			v, err = x.coerceLiteral(argDef.Type, argDef.DefaultValue)
		case arg.Value.Kind == ast.Variable:
			raw, ok := x.vars[arg.Value.Raw]
			if !ok {
				continue
			}

			v, err = x.coerceInput(argDef.Type, raw)
		default:
			v, err = x.coerceLiteral(argDef.Type, arg.Value)
		}

		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", argDef.Name, err)
		}

		args[argDef.Name] = v
	}

	return args, nil
}

func (x *execution) coerceInput(typ *ast.Type, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}

	if typ.Elem != nil {
		rv := reflect.ValueOf(raw)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			item, err := x.coerceInput(typ.Elem, raw)
			if err != nil {
				return nil, err
			}

			return []any{item}, nil
		}

		out := make([]any, rv.Len())
		for i := range out {
			item, err := x.coerceInput(typ.Elem, rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}

			out[i] = item
		}

		return out, nil
	}

	def := x.schema.Types[typ.NamedType]

	switch def.Kind {
	case ast.Scalar:
		return x.scalar(def.Name).ParseValue(raw)
	case ast.Enum:
		return coerceString(raw)
	case ast.InputObject:
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, &CoercionError{Type: def.Name, Value: raw}
		}

		out := make(map[string]any, len(def.Fields))

		for _, f := range def.Fields {
			fv, present := m[f.Name]
			if !present {
				if f.DefaultValue != nil {
					dv, err := x.coerceLiteral(f.Type, f.DefaultValue)
					if err != nil {
						return nil, err
					}

					out[f.Name] = dv
				}

				continue
			}

			cv, err := x.coerceInput(f.Type, fv)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.Name, err)
			}

			out[f.Name] = cv
		}

		return out, nil
	default:
		return nil, fmt.Errorf("%w: input %s", ErrUnsupportedType, def.Kind)
	}
}

func (x *execution) coerceLiteral(typ *ast.Type, v *ast.Value) (any, error) {
	switch v.Kind {
	case ast.Variable:
		raw, ok := x.vars[v.Raw]
		if !ok {
			return nil, nil
		}

		return x.coerceInput(typ, raw)
	case ast.NullValue:
		return nil, nil
	}

	if typ.Elem != nil {
		if v.Kind != ast.ListValue {
			item, err := x.coerceLiteral(typ.Elem, v)
			if err != nil {
				return nil, err
			}

			return []any{item}, nil
		}

		out := make([]any, len(v.Children))
		for i, child := range v.Children {
			item, err := x.coerceLiteral(typ.Elem, child.Value)
			if err != nil {
				return nil, err
			}

			out[i] = item
		}

		return out, nil
	}

	def := x.schema.Types[typ.NamedType]

	switch def.Kind {
	case ast.Scalar:
		return x.scalar(def.Name).ParseLiteral(v)
	case ast.Enum:
		return v.Raw, nil
	case ast.InputObject:
		if v.Kind != ast.ObjectValue {
			return nil, &CoercionError{Type: def.Name, Value: v.Raw, Literal: true}
		}

		out := make(map[string]any, len(def.Fields))

		for _, f := range def.Fields {
			child := v.Children.ForName(f.Name)
			if child == nil {
				child = f.DefaultValue
			}

			if child == nil {
				continue
			}

			cv, err := x.coerceLiteral(f.Type, child)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.Name, err)
			}

			out[f.Name] = cv
		}

		return out, nil
	default:
		return nil, fmt.Errorf("%w: input %s", ErrUnsupportedType, def.Kind)
	}
}

func (x *execution) scalar(name string) Scalar { //nolint:ireturn
	if s, ok := x.registry.scalars[name]; ok {
		return s
	}

	return x.registry.scalars["String"]
}

// defaultResolve reads a field from the parent value: a map entry, or the
// struct field whose json tag (or case-insensitive name) matches.
func defaultResolve(source any, name string) (any, error) {
	if m, ok := source.(map[string]any); ok {
		return m[name], nil
	}

	rv := reflect.ValueOf(source)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, nil
		}

		rv = rv.Elem()
	}

	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: cannot read %q from %T", ErrNoResolver, name, source)
	}

	idx, ok := structField(rv.Type(), name)
	if !ok {
		return nil, fmt.Errorf("%w: %T has no field %q", ErrNoResolver, source, name)
	}

	return rv.FieldByIndex(idx).Interface(), nil
}

type structFieldKey struct {
	typ  reflect.Type
	name string
}

var structFields sync.Map // structFieldKey -> []int

func structField(typ reflect.Type, name string) ([]int, bool) {
	key := structFieldKey{typ, name}
	if idx, ok := structFields.Load(key); ok {
		return idx.([]int), true //nolint:forcetypeassert
	}

	for i := range typ.NumField() {
		f := typ.Field(i)
		if !f.IsExported() {
			continue
		}

		tag, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if tag == "-" {
			continue
		}

		if tag == name || (tag == "" && strings.EqualFold(f.Name, name)) {
			structFields.Store(key, f.Index)

			return f.Index, true
		}
	}

	return nil, false
}

// indirect dereferences pointers, returning nil for nil pointers, maps and
// interfaces. A nil slice stays a slice and completes as an empty list.
func indirect(v any) any {
	if v == nil {
		return nil
	}

	rv := reflect.ValueOf(v)
	for {
		switch rv.Kind() {
		case reflect.Pointer, reflect.Interface:
			if rv.IsNil() {
				return nil
			}

			if rv.Kind() == reflect.Pointer && rv.Elem().Kind() == reflect.Struct {
				return rv.Interface()
			}

			rv = rv.Elem()
		case reflect.Map:
			if rv.IsNil() {
				return nil
			}

			return rv.Interface()
		default:
			return rv.Interface()
		}
	}
}

func listItems(v any) ([]any, bool) {
	if items, ok := v.([]any); ok {
		return items, true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}

	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}

	return items, true
}
