package graphql

import (
	"errors"
	"fmt"
	"maps"

	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/rlch/moviegraph"
)

// Error classifications reported in the "classification" extension.
const (
	ClassValidation = "ValidationError"
	ClassInternal   = "INTERNAL_ERROR"
)

var (
	// ErrUnknownSchemaElement is returned by Registry.Check for resolvers or
	// scalars that do not match the schema.
	ErrUnknownSchemaElement = errors.New("unknown schema element")
	// ErrNoOperation is returned when the document has no operation matching the request.
	ErrNoOperation = errors.New("no matching operation")
	// ErrUnsupportedOperation is returned for subscriptions.
	ErrUnsupportedOperation = errors.New("unsupported operation type")
	// ErrNoResolver is reported when a field has no resolver and cannot be
	// read from its parent value.
	ErrNoResolver = errors.New("no resolver")
)

// CoercionError is returned when a scalar value cannot be converted.
type CoercionError struct {
	Type    string
	Value   any
	Literal bool
	Err     error
}

func (e *CoercionError) Error() string {
	kind := "value"
	if e.Literal {
		kind = "literal"
	}

	if e.Err != nil {
		return fmt.Sprintf("%s: unsupported %s %v: %v", e.Type, kind, e.Value, e.Err)
	}

	return fmt.Sprintf("%s: unsupported %s %v", e.Type, kind, e.Value)
}

func (e *CoercionError) Unwrap() error {
	return e.Err
}

// ClassifyError converts a resolver failure into the error reported to the
// caller. Invalid caller input keeps its message verbatim and is classified
// as ValidationError, as are scalar coercion failures. Every other failure is
// reported as INTERNAL_ERROR with the underlying message. A *gqlerror.Error
// keeps its own classification and gets INTERNAL_ERROR when it has none. No
// locations or path are set.
func ClassifyError(err error) *gqlerror.Error {
	var gqlErr *gqlerror.Error
	if errors.As(err, &gqlErr) {
		out := withClass(gqlErr, ClassInternal)
		out.Path, out.Locations = nil, nil

		return out
	}

	if errors.Is(err, moviegraph.ErrInvalidArgument) {
		msg := err.Error()

		var iae *moviegraph.InvalidArgumentError
		if errors.As(err, &iae) {
			msg = iae.Message
		}

		return newError(msg, ClassValidation, err)
	}

	var coercionErr *CoercionError
	if errors.As(err, &coercionErr) {
		return newError(err.Error(), ClassValidation, err)
	}

	return newError(err.Error(), ClassInternal, err)
}

// withClass returns a copy of e carrying class unless e is already
// classified.
func withClass(e *gqlerror.Error, class string) *gqlerror.Error {
	out := *e
	out.Extensions = maps.Clone(e.Extensions)

	if out.Extensions == nil {
		out.Extensions = map[string]any{}
	}

	if _, ok := out.Extensions["classification"]; !ok {
		out.Extensions["classification"] = class
	}

	return &out
}

// IsValidation reports whether a classified error is a ValidationError.
func IsValidation(err *gqlerror.Error) bool {
	return err != nil && err.Extensions["classification"] == ClassValidation
}

func newError(msg, class string, cause error) *gqlerror.Error {
	return &gqlerror.Error{
		Err:     cause,
		Message: msg,
		Extensions: map[string]any{
			"classification": class,
		},
	}
}

// requestErrors classifies document-level failures (parse, validation,
// variable coercion) as ValidationError.
func requestErrors(list gqlerror.List) gqlerror.List {
	out := make(gqlerror.List, 0, len(list))

	for _, e := range list {
		out = append(out, withClass(e, ClassValidation))
	}

	return out
}
