// Package port provides schema definitions for node ports
package port

// Direction marks a port as a node input or output.
type Direction string

const (
	// DirectionInput marks a port that receives values
	DirectionInput Direction = "input"
	// DirectionOutput marks a port that produces values
	DirectionOutput Direction = "output"
)

// TypeSpec is the declared type of a port. Arrays carry an optional element
// spec, objects carry ordered field schemas, secrets carry the plaintext kind.
// Mutable ports accept undeclared child entries at runtime.
type TypeSpec struct {
	Kind    Kind      `json:"kind"`
	Elem    *TypeSpec `json:"elem,omitempty"`
	Fields  []Schema  `json:"fields,omitempty"`
	Payload Kind      `json:"payload,omitempty"`
	Mutable bool      `json:"mutable,omitempty"`
}

// Schema declares a single typed port on a node descriptor.
// Immutable once the owning descriptor is registered.
type Schema struct {
	ID        string            `json:"id"`
	Direction Direction         `json:"direction"`
	Type      TypeSpec          `json:"type"`
	Required  bool              `json:"required,omitempty"`
	Default   *Value            `json:"default,omitempty"`
	UIHints   map[string]string `json:"ui_hints,omitempty"`
}

// Validate ensures schema integrity, including that any declared default
// matches the declared type.
func (s Schema) Validate() error {
	if s.ID == "" {
		return ErrInvalidSchemaID
	}
	if s.Direction != DirectionInput && s.Direction != DirectionOutput {
		return ErrInvalidDirection
	}
	if err := s.Type.Validate(); err != nil {
		return err
	}
	if s.Default != nil {
		if _, err := validateSpec(s.ID, "", s.Type, *s.Default); err != nil {
			return ErrInvalidDefault
		}
	}
	return nil
}

// Validate ensures the type spec references only known kinds.
func (t TypeSpec) Validate() error {
	if !t.Kind.Valid() {
		return ErrInvalidKind
	}
	if t.Elem != nil {
		if err := t.Elem.Validate(); err != nil {
			return err
		}
	}
	for _, f := range t.Fields {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	if t.Payload != "" && !t.Payload.Valid() {
		return ErrInvalidKind
	}
	return nil
}

// Compatible reports whether a value produced by an output port typed `out`
// may flow into an input port typed `in`.
func Compatible(out, in TypeSpec) bool {
	if out.Kind != in.Kind {
		return false
	}
	switch in.Kind {
	case KindArray:
		if in.Elem == nil {
			return true
		}
		if out.Elem == nil {
			// Unconstrained source into a constrained target only when the
			// target extends its element schema at runtime.
			return in.Mutable
		}
		return Compatible(*out.Elem, *in.Elem)
	case KindObject:
		outFields := make(map[string]TypeSpec, len(out.Fields))
		for _, f := range out.Fields {
			outFields[f.ID] = f.Type
		}
		for _, f := range in.Fields {
			src, ok := outFields[f.ID]
			if !ok {
				if f.Required && f.Default == nil {
					return false
				}
				continue
			}
			if !Compatible(src, f.Type) {
				return false
			}
		}
		return true
	case KindSecret:
		return in.Payload == "" || out.Payload == in.Payload
	}
	return true
}
