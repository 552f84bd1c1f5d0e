// Package port provides the runtime type system for node ports:
// value kinds, validation, coercion, and secret handling.
// PRINCIPLES:
// - KISS: tagged union over a fixed set of kinds, no reflection
// - SRP: only responsible for values and their contracts, not execution
package port

import (
	"fmt"
)

// Kind identifies the runtime type of a port value.
type Kind string

const (
	// KindBool represents a boolean value
	KindBool Kind = "boolean"
	// KindNumber represents a numeric value (IEEE 754 double)
	KindNumber Kind = "number"
	// KindString represents a string value
	KindString Kind = "string"
	// KindArray represents an ordered collection of values
	KindArray Kind = "array"
	// KindObject represents a keyed collection of values
	KindObject Kind = "object"
	// KindSecret represents an encrypted value with a payload type tag
	KindSecret Kind = "secret"
	// KindStream represents an opaque reference to an external stream
	KindStream Kind = "stream"
)

// Valid reports whether k is a known value kind.
func (k Kind) Valid() bool {
	switch k {
	case KindBool, KindNumber, KindString, KindArray, KindObject, KindSecret, KindStream:
		return true
	}
	return false
}

// Value is a tagged union over all port value kinds. Exactly the field
// selected by Kind is meaningful; the zero Value carries no kind and is
// treated as "unbound".
type Value struct {
	Kind   Kind             `json:"kind"`
	Bool   bool             `json:"bool,omitempty"`
	Number float64          `json:"number,omitempty"`
	Str    string           `json:"string,omitempty"`
	Array  []Value          `json:"array,omitempty"`
	Object map[string]Value `json:"object,omitempty"`
	Secret *Secret          `json:"secret,omitempty"`
	Stream string           `json:"stream,omitempty"`
}

// Bound reports whether the value carries a kind.
func (v Value) Bound() bool { return v.Kind != "" }

// Constructors for each kind.

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Number returns a numeric value.
func Number(f float64) Value { return Value{Kind: KindNumber, Number: f} }

// String returns a string value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Array returns an array value over the given elements.
func Array(elems ...Value) Value { return Value{Kind: KindArray, Array: elems} }

// Object returns an object value over the given fields.
func Object(fields map[string]Value) Value { return Value{Kind: KindObject, Object: fields} }

// SecretValue returns a secret value wrapping the given ciphertext.
func SecretValue(s *Secret) Value { return Value{Kind: KindSecret, Secret: s} }

// StreamRef returns a stream reference value.
func StreamRef(id string) Value { return Value{Kind: KindStream, Stream: id} }

// Redacted renders the value as plain data with every secret, at any
// nesting level, replaced by a masked placeholder. Safe for logs and
// event payloads.
func (v Value) Redacted() any {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Number
	case KindString:
		return v.Str
	case KindArray:
		out := make([]any, len(v.Array))
		for i, e := range v.Array {
			out[i] = e.Redacted()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.Object))
		for k, f := range v.Object {
			out[k] = f.Redacted()
		}
		return out
	case KindSecret:
		return "[redacted]"
	case KindStream:
		return map[string]any{"stream": v.Stream}
	}
	return nil
}

// TypeError reports a contract violation between a declared port type and a
// runtime value. It unwraps to one of the package sentinel errors so callers
// can branch with errors.Is.
type TypeError struct {
	Port string
	Path string
	Want Kind
	Got  Kind
	Err  error
}

func (e *TypeError) Error() string {
	loc := e.Port
	if e.Path != "" {
		loc += e.Path
	}
	if e.Want != "" && e.Got != "" {
		return fmt.Sprintf("port %q: %v: want %s, got %s", loc, e.Err, e.Want, e.Got)
	}
	return fmt.Sprintf("port %q: %v", loc, e.Err)
}

func (e *TypeError) Unwrap() error { return e.Err }

// Validate checks v against the schema's declared type and returns the value
// with object defaults applied. An unbound value resolves to the schema
// default when one is declared.
func Validate(s Schema, v Value) (Value, error) {
	if !v.Bound() {
		if s.Default != nil {
			v = *s.Default
		} else {
			return Value{}, &TypeError{Port: s.ID, Err: ErrNoValue}
		}
	}
	return validateSpec(s.ID, "", s.Type, v)
}

// Coerce attempts same-kind widening of v toward the schema's declared type.
// Cross-kind conversions always fail closed: a string is never parsed into a
// number, a number is never truncated into a boolean.
func Coerce(s Schema, v Value) (Value, error) {
	if !v.Bound() {
		return Validate(s, v)
	}
	if v.Kind != s.Type.Kind {
		return Value{}, &TypeError{Port: s.ID, Want: s.Type.Kind, Got: v.Kind, Err: ErrNotCoercible}
	}
	return validateSpec(s.ID, "", s.Type, v)
}

func validateSpec(portID, path string, spec TypeSpec, v Value) (Value, error) {
	if v.Kind != spec.Kind {
		return Value{}, &TypeError{Port: portID, Path: path, Want: spec.Kind, Got: v.Kind, Err: ErrTypeMismatch}
	}

	switch spec.Kind {
	case KindArray:
		if spec.Elem == nil {
			return v, nil
		}
		out := make([]Value, len(v.Array))
		for i, elem := range v.Array {
			ev, err := validateSpec(portID, fmt.Sprintf("%s[%d]", path, i), *spec.Elem, elem)
			if err != nil {
				return Value{}, err
			}
			out[i] = ev
		}
		return Value{Kind: KindArray, Array: out}, nil

	case KindObject:
		return validateObject(portID, path, spec, v)

	case KindSecret:
		if v.Secret == nil {
			return Value{}, &TypeError{Port: portID, Path: path, Err: ErrNilSecret}
		}
		if spec.Payload != "" && v.Secret.Payload != spec.Payload {
			return Value{}, &TypeError{Port: portID, Path: path, Want: spec.Payload, Got: v.Secret.Payload, Err: ErrTypeMismatch}
		}
		return v, nil

	case KindStream:
		if v.Stream == "" {
			return Value{}, &TypeError{Port: portID, Path: path, Err: ErrInvalidValue}
		}
		return v, nil
	}
	return v, nil
}

func validateObject(portID, path string, spec TypeSpec, v Value) (Value, error) {
	declared := make(map[string]bool, len(spec.Fields))
	out := make(map[string]Value, len(v.Object))

	for _, f := range spec.Fields {
		declared[f.ID] = true
		fieldPath := path + "." + f.ID
		child, ok := v.Object[f.ID]
		if !ok {
			if f.Default != nil {
				out[f.ID] = *f.Default
				continue
			}
			if f.Required {
				return Value{}, &TypeError{Port: portID, Path: fieldPath, Err: ErrMissingField}
			}
			continue
		}
		fv, err := validateSpec(portID, fieldPath, f.Type, child)
		if err != nil {
			return Value{}, err
		}
		out[f.ID] = fv
	}

	// Undeclared fields pass through only on schema-mutable ports.
	for key, child := range v.Object {
		if declared[key] {
			continue
		}
		if !spec.Mutable {
			return Value{}, &TypeError{Port: portID, Path: path + "." + key, Err: ErrUndeclaredField}
		}
		out[key] = child
	}

	return Value{Kind: KindObject, Object: out}, nil
}
