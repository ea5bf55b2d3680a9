package geostream

import (
	"fmt"

	"github.com/google/uuid"
)

// Schema is an identified, ordered set of fields. Field order is the column
// order used by tabular formats.
type Schema struct {
	ID   string
	Name string

	fields []*SimpleField
	index  map[string]int
	frozen bool
}

// NewSchema returns an empty schema. An empty id is replaced by a generated
// one of the form "s_<uuid>".
func NewSchema(id string) *Schema {
	if id == "" {
		id = "s_" + uuid.New().String()
	}
	return &Schema{ID: id, index: make(map[string]int)}
}

// NewSchemaWithFields builds a schema from fields in order.
func NewSchemaWithFields(id string, fields ...*SimpleField) (*Schema, error) {
	s := NewSchema(id)
	for _, f := range fields {
		if err := s.Put(f); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Schema) Kind() Kind { return KindSchema }

// Put appends f, or replaces the field of the same name in place.
func (s *Schema) Put(f *SimpleField) error {
	if s.frozen {
		return fmt.Errorf("%w: %s", ErrSchemaFrozen, s.ID)
	}
	if f == nil || f.Name == "" {
		return fmt.Errorf("%w: field without a name", ErrInvalidField)
	}
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if i, ok := s.index[f.Name]; ok {
		s.fields[i] = f
		return nil
	}
	s.index[f.Name] = len(s.fields)
	s.fields = append(s.fields, f)
	return nil
}

// Field returns the named field.
func (s *Schema) Field(name string) (*SimpleField, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.fields[i], true
}

// Fields returns the fields in order. The slice must not be modified.
func (s *Schema) Fields() []*SimpleField { return s.fields }

// Keys returns the field names in order.
func (s *Schema) Keys() []string {
	keys := make([]string, len(s.fields))
	for i, f := range s.fields {
		keys[i] = f.Name
	}
	return keys
}

// Len is the number of fields.
func (s *Schema) Len() int { return len(s.fields) }

// Freeze makes the schema immutable. Streams freeze a schema as soon as a row
// refers to it.
func (s *Schema) Freeze() { s.frozen = true }

// Frozen reports whether fields can no longer be added.
func (s *Schema) Frozen() bool { return s.frozen }

func (s *Schema) String() string {
	return fmt.Sprintf("Schema{%s %v}", s.ID, s.Keys())
}
