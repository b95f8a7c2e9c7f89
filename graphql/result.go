package graphql

import (
	"bytes"
	"encoding/json"

	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Object is a response object whose keys keep selection order.
type Object struct {
	keys   []string
	values []any
}

func newObject(fields []collected) *Object {
	o := &Object{
		keys:   make([]string, len(fields)),
		values: make([]any, len(fields)),
	}

	for i, f := range fields {
		o.keys[i] = f.key
	}

	return o
}

// Keys returns the response keys in selection order.
func (o *Object) Keys() []string {
	return o.keys
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (any, bool) {
	for i, k := range o.keys {
		if k == key {
			return o.values[i], true
		}
	}

	return nil, false
}

// Map converts the object, and every nested object, into plain maps and slices.
func (o *Object) Map() map[string]any {
	if o == nil {
		return nil
	}

	m := make(map[string]any, len(o.keys))
	for i, k := range o.keys {
		m[k] = plain(o.values[i])
	}

	return m
}

func plain(v any) any {
	switch t := v.(type) {
	case *Object:
		if t == nil {
			return nil
		}

		return t.Map()
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = plain(item)
		}

		return out
	default:
		return v
	}
}

// MarshalJSON writes the object with keys in selection order.
func (o *Object) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer

	buf.WriteByte('{')

	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}

		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}

		val, err := json.Marshal(o.values[i])
		if err != nil {
			return nil, err
		}

		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// Response is the result of executing a request.
type Response struct {
	// Data is nil when the request failed before execution or when a
	// non-null root field failed.
	Data   *Object
	Errors gqlerror.List

	executed bool
}

// Executed reports whether execution started, i.e. the document was valid.
func (r *Response) Executed() bool {
	return r.executed
}

// Map returns the response as plain maps: {"data": ..., "errors": [...]}.
func (r *Response) Map() map[string]any {
	m := map[string]any{"data": r.Data.Map()}

	errs := make([]any, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = map[string]any{
			"message":    e.Message,
			"extensions": e.Extensions,
		}
	}

	m["errors"] = errs

	return m
}

// MarshalJSON omits "data" when execution never started.
func (r *Response) MarshalJSON() ([]byte, error) {
	type wire struct {
		Data   json.RawMessage `json:"data,omitempty"`
		Errors gqlerror.List   `json:"errors,omitempty"`
	}

	w := wire{Errors: r.Errors}

	if r.executed {
		data, err := r.Data.MarshalJSON()
		if err != nil {
			return nil, err
		}

		w.Data = data
	}

	return json.Marshal(w)
}
