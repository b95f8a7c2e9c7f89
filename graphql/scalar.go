package graphql

import (
	"encoding"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/vektah/gqlparser/v2/ast"
)

// Scalar converts between wire values and internal values of a leaf type.
type Scalar interface {
	// Serialize converts an internal value into a JSON-safe output value.
	Serialize(v any) (any, error)
	// ParseValue converts a programmatic input (e.g. a variable) into an internal value.
	ParseValue(v any) (any, error)
	// ParseLiteral converts a literal from the query text into an internal value.
	ParseLiteral(v *ast.Value) (any, error)
}

// ScalarFuncs adapts three functions to the Scalar interface.
type ScalarFuncs struct {
	SerializeFunc    func(v any) (any, error)
	ParseValueFunc   func(v any) (any, error)
	ParseLiteralFunc func(v *ast.Value) (any, error)
}

func (s ScalarFuncs) Serialize(v any) (any, error)          { return s.SerializeFunc(v) }
func (s ScalarFuncs) ParseValue(v any) (any, error)         { return s.ParseValueFunc(v) }
func (s ScalarFuncs) ParseLiteral(v *ast.Value) (any, error) { return s.ParseLiteralFunc(v) }

// InstantScalar is the Instant scalar: a point in time carried as an
// ISO-8601 string on the wire.
var InstantScalar Scalar = ScalarFuncs{
	SerializeFunc: func(v any) (any, error) {
		switch t := v.(type) {
		case time.Time:
			return SerializeInstant(t), nil
		case *time.Time:
			if t == nil {
				return nil, nil
			}

			return SerializeInstant(*t), nil
		default:
			return nil, &CoercionError{Type: "Instant", Value: v}
		}
	},
	ParseValueFunc: func(v any) (any, error) {
		return ParseInstantValue(v)
	},
	ParseLiteralFunc: func(v *ast.Value) (any, error) {
		return ParseInstantLiteral(v)
	},
}

const isoRest = "-01-02T15:04:05.999999999Z07:00"

// SerializeInstant renders t in UTC as ISO-8601. Years outside 0000-9999
// use the expanded form with an explicit sign, e.g. "+12345-01-01T00:00:00Z".
func SerializeInstant(t time.Time) string {
	t = t.UTC()

	year := t.Year()
	if year >= 0 && year <= 9999 {
		return t.Format(time.RFC3339Nano)
	}

	sign := "+"
	if year < 0 {
		sign = "-"
		year = -year
	}

	// 2000 is a leap year, so any month/day of t is valid in it.
	rest := time.Date(2000, t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)

	return fmt.Sprintf("%s%04d%s", sign, year, rest.Format(isoRest))
}

// ParseInstant parses the output of SerializeInstant, or any RFC 3339 timestamp.
func ParseInstant(s string) (time.Time, error) {
	if len(s) > 0 && (s[0] == '+' || s[0] == '-') {
		return parseExpandedInstant(s)
	}

	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}

	return t.UTC(), nil
}

func parseExpandedInstant(s string) (time.Time, error) {
	end := strings.IndexByte(s[1:], '-')
	if end < 0 {
		return time.Time{}, fmt.Errorf("parsing time %q: missing month", s)
	}

	year, err := strconv.Atoi(s[1 : end+1])
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing time %q: %w", s, err)
	}

	if s[0] == '-' {
		year = -year
	}

	// The offset stays on rest so it is applied in the real year.
	rest, err := time.Parse("2006"+isoRest, "2000"+s[end+1:])
	if err != nil {
		return time.Time{}, err
	}

	t := time.Date(year, rest.Month(), rest.Day(), rest.Hour(), rest.Minute(), rest.Second(),
		rest.Nanosecond(), rest.Location())
	if t.Month() != rest.Month() || t.Day() != rest.Day() {
		return time.Time{}, fmt.Errorf("parsing time %q: day out of range", s)
	}

	return t.UTC(), nil
}

// ParseInstantValue coerces a programmatic input into a time. The input
// must be a parseable string.
func ParseInstantValue(v any) (time.Time, error) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, &CoercionError{Type: "Instant", Value: v}
	}

	t, err := ParseInstant(s)
	if err != nil {
		return time.Time{}, &CoercionError{Type: "Instant", Value: v, Err: err}
	}

	return t, nil
}

// ParseInstantLiteral coerces a query literal into a time. The literal must
// be a quoted string.
func ParseInstantLiteral(v *ast.Value) (time.Time, error) {
	if v == nil || (v.Kind != ast.StringValue && v.Kind != ast.BlockValue) {
		var raw any
		if v != nil {
			raw = v.Raw
		}

		return time.Time{}, &CoercionError{Type: "Instant", Value: raw, Literal: true}
	}

	t, err := ParseInstant(v.Raw)
	if err != nil {
		return time.Time{}, &CoercionError{Type: "Instant", Value: v.Raw, Literal: true, Err: err}
	}

	return t, nil
}

func builtinScalars() map[string]Scalar {
	literal := func(v *ast.Value) (any, error) { return v.Value(nil) }

	return map[string]Scalar{
		"String": ScalarFuncs{
			SerializeFunc:    serializeString,
			ParseValueFunc:   func(v any) (any, error) { return coerceString(v) },
			ParseLiteralFunc: literal,
		},
		"ID": ScalarFuncs{
			SerializeFunc:    serializeString,
			ParseValueFunc:   func(v any) (any, error) { return coerceString(v) },
			ParseLiteralFunc: literal,
		},
		"Int": ScalarFuncs{
			SerializeFunc:  func(v any) (any, error) { return CoerceInt(v) },
			ParseValueFunc: func(v any) (any, error) { return CoerceInt(v) },
			ParseLiteralFunc: func(v *ast.Value) (any, error) {
				if v.Kind != ast.IntValue {
					return nil, &CoercionError{Type: "Int", Value: v.Raw, Literal: true}
				}

				return CoerceInt(v.Raw)
			},
		},
		"Float": ScalarFuncs{
			SerializeFunc:    coerceFloat,
			ParseValueFunc:   coerceFloat,
			ParseLiteralFunc: literal,
		},
		"Boolean": ScalarFuncs{
			SerializeFunc:    coerceBool,
			ParseValueFunc:   coerceBool,
			ParseLiteralFunc: literal,
		},
	}
}

func serializeString(v any) (any, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case int, int32, int64:
		return fmt.Sprint(s), nil
	case fmt.Stringer:
		return s.String(), nil
	case encoding.TextMarshaler:
		b, err := s.MarshalText()
		if err != nil {
			return nil, err
		}

		return string(b), nil
	default:
		return coerceString(v)
	}
}

func coerceString(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case json.Number:
		return s.String(), nil
	case int, int32, int64:
		return fmt.Sprint(s), nil
	default:
		return "", &CoercionError{Type: "String", Value: v}
	}
}

// CoerceInt converts the numeric representations produced by JSON decoding,
// literal parsing and Go code into an int.
func CoerceInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		if n > math.MaxInt32 || n < math.MinInt32 {
			return 0, &CoercionError{Type: "Int", Value: v}
		}

		return int(n), nil
	case float64:
		if n != math.Trunc(n) || n > math.MaxInt32 || n < math.MinInt32 {
			return 0, &CoercionError{Type: "Int", Value: v}
		}

		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, &CoercionError{Type: "Int", Value: v, Err: err}
		}

		return CoerceInt(i)
	case string:
		i, err := strconv.ParseInt(n, 10, 32)
		if err != nil {
			return 0, &CoercionError{Type: "Int", Value: v, Err: err}
		}

		return int(i), nil
	default:
		return 0, &CoercionError{Type: "Int", Value: v}
	}
}

func coerceFloat(v any) (any, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	default:
		return nil, &CoercionError{Type: "Float", Value: v}
	}
}

func coerceBool(v any) (any, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, &CoercionError{Type: "Boolean", Value: v}
	}

	return b, nil
}
