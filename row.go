package geostream

import (
	"fmt"
)

// Row is a set of field values belonging to the schema named by SchemaID. A
// nil value means no value.
type Row struct {
	SchemaID string

	fields []*SimpleField
	values map[string]any
}

// NewRow returns an empty row for the given schema.
func NewRow(schemaID string) *Row {
	return &Row{SchemaID: schemaID}
}

func (r *Row) Kind() Kind { return KindRow }

// Put sets the value of f. It rejects a non-nil value whose type cannot be
// coerced to f.Type.
func (r *Row) Put(f *SimpleField, v any) error {
	if f == nil || f.Name == "" {
		return fmt.Errorf("%w: field without a name", ErrInvalidField)
	}
	if !Compatible(f.Type, v) {
		return fmt.Errorf("%w: %T for %s field %q", ErrIncompatibleValue, v, f.Type, f.Name)
	}
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[f.Name]; !ok {
		r.fields = append(r.fields, f)
	} else {
		for i, existing := range r.fields {
			if existing.Name == f.Name {
				r.fields[i] = f
				break
			}
		}
	}
	r.values[f.Name] = v
	return nil
}

// Value returns the value stored for name and whether the field is present.
func (r *Row) Value(name string) (any, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Fields returns the fields that carry a value, in the order they were put.
func (r *Row) Fields() []*SimpleField { return r.fields }

// Len returns the number of fields present.
func (r *Row) Len() int { return len(r.fields) }

// Feature is a Row with a geometry and display metadata. Geometry may be nil.
type Feature struct {
	Row
	Name        string
	Description string
	Geometry    Geometry
}

// NewFeature returns a feature for the given schema.
func NewFeature(schemaID string, g Geometry) *Feature {
	return &Feature{Row: Row{SchemaID: schemaID}, Geometry: g}
}

func (f *Feature) Kind() Kind { return KindFeature }

// ContainerStart opens a named group such as a folder or layer.
type ContainerStart struct {
	Type string
	Name string
}

func (c *ContainerStart) Kind() Kind { return KindContainerStart }

// ContainerEnd closes the innermost open ContainerStart.
type ContainerEnd struct{}

func (c *ContainerEnd) Kind() Kind { return KindContainerEnd }

// RowOf returns the row part of a Row or Feature, and nil for anything else.
func RowOf(obj Object) *Row {
	switch v := obj.(type) {
	case *Row:
		return v
	case *Feature:
		return &v.Row
	}
	return nil
}
