// Package geojson reads and writes GeoJSON FeatureCollections on top of
// github.com/paulmach/orb/geojson.
//
// A document is decoded in one pass: the attribute schema is inferred from
// the union of all feature properties, so the reader can emit the schema
// before the first feature. The writer buffers every feature and encodes the
// collection on Close.
package geojson

import (
	"errors"
	"math"
	"sort"

	orbjson "github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
	"github.com/tingold/geostream"
)

// Common errors
var (
	ErrInvalidData     = errors.New("geojson: invalid data")
	ErrMultipleSchemas = errors.New("geojson: a collection holds a single schema")
)

// NameMember is the top-level collection member carrying the layer name.
const NameMember = "name"

// maxExactInt is the largest magnitude a float64 holds without losing
// integer precision.
const maxExactInt = 1 << 53

// Options configures reading and writing.
type Options struct {
	// Name is written as the collection "name" member. Empty uses the
	// schema name.
	Name string
	// Indent pretty-prints the output with two spaces.
	Indent bool
	// Logger receives soft conditions. Nil uses the global logger.
	Logger *zerolog.Logger
}

// DefaultOptions returns default options.
func DefaultOptions() *Options {
	return &Options{}
}

// OutputArgs are the positional writer arguments: name and indent.
var OutputArgs = []geostream.ArgSpec{
	geostream.Arg[string]("name", false),
	geostream.Arg[bool]("indent", false),
}

// OptionsFromArgs overlays the non-zero positional arguments on a copy of
// base.
func OptionsFromArgs(base *Options, args []any) *Options {
	opts := DefaultOptions()
	if base != nil {
		*opts = *base
	}
	if len(args) > 0 {
		if s, ok := args[0].(string); ok && s != "" {
			opts.Name = s
		}
	}
	if len(args) > 1 {
		if b, ok := args[1].(bool); ok {
			opts.Indent = b
		}
	}
	return opts
}

// inferFieldType maps a decoded JSON value to a field type. Integral numbers
// become LONG; nested objects and arrays are carried as STRING.
func inferFieldType(v any) geostream.FieldType {
	switch x := v.(type) {
	case bool:
		return geostream.FieldBool
	case float64:
		if x == math.Trunc(x) && math.Abs(x) <= maxExactInt {
			return geostream.FieldLong
		}
		return geostream.FieldDouble
	}
	return geostream.FieldString
}

func promoteFieldType(a, b geostream.FieldType) geostream.FieldType {
	switch {
	case a == b:
		return a
	case a == geostream.FieldLong && b == geostream.FieldDouble,
		a == geostream.FieldDouble && b == geostream.FieldLong:
		return geostream.FieldDouble
	}
	return geostream.FieldString
}

// inferSchema builds a schema holding every property key of fc in sorted
// order. A key that is null everywhere is STRING.
func inferSchema(fc *orbjson.FeatureCollection) *geostream.Schema {
	types := make(map[string]geostream.FieldType)
	seen := make(map[string]bool)
	for _, f := range fc.Features {
		for key, v := range f.Properties {
			if _, ok := seen[key]; !ok {
				seen[key] = false
			}
			if v == nil {
				continue
			}
			t := inferFieldType(v)
			if seen[key] {
				t = promoteFieldType(types[key], t)
			}
			types[key] = t
			seen[key] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	s := geostream.NewSchema("")
	for _, key := range keys {
		t, ok := types[key]
		if !ok {
			t = geostream.FieldString
		}
		f, err := geostream.NewField(key, t)
		if err != nil {
			// Blank property names cannot be fields.
			continue
		}
		s.Put(f)
	}
	return s
}
