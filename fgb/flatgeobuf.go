// Package flatgeobuf reads and writes FlatGeobuf files as geostream objects.
//
// A file decodes to one geostream.Schema built from the header columns,
// followed by one geostream.Feature per record. Features are read through the
// packed spatial index, so files written without one can only report their
// header. The writer buffers features and encodes the file on Close.
package flatgeobuf

import (
	"errors"

	"github.com/rs/zerolog"
	"github.com/tingold/geostream"
)

// Common errors returned by this package.
var (
	ErrNoFeatures       = errors.New("flatgeobuf: no features to write")
	ErrUnsupportedType  = errors.New("flatgeobuf: unsupported geometry type")
	ErrInvalidData      = errors.New("flatgeobuf: invalid data")
	ErrNoIndex          = errors.New("flatgeobuf: file has no spatial index")
	ErrInvalidColumn    = errors.New("flatgeobuf: invalid column type")
	ErrPropertyMismatch = errors.New("flatgeobuf: property type mismatch")
	ErrMultipleSchemas  = errors.New("flatgeobuf: only one schema per file")
)

// CRS represents a coordinate reference system.
type CRS struct {
	Code        int    // EPSG code (e.g., 4326 for WGS84)
	Name        string // CRS name
	Description string // CRS description
	WKT         string // Well-Known Text representation
}

// WGS84 returns the standard WGS84 CRS (EPSG:4326).
func WGS84() *CRS {
	return &CRS{
		Code: 4326,
		Name: "WGS 84",
	}
}

// Options configures FlatGeobuf reading and writing.
type Options struct {
	Name         string // Layer name
	Description  string // Layer description
	IncludeIndex bool   // Include spatial index (default: true)
	CRS          *CRS   // Coordinate reference system (optional)
	Logger       *zerolog.Logger
}

// DefaultOptions returns default options for writing FlatGeobuf files.
func DefaultOptions() *Options {
	return &Options{
		IncludeIndex: true,
		CRS:          WGS84(),
	}
}

// OutputArgs are the positional registry arguments of the writer.
var OutputArgs = []geostream.ArgSpec{
	geostream.Arg[string]("name", false),
	geostream.Arg[string]("description", false),
	geostream.Arg[bool]("includeIndex", false),
	geostream.Arg[*CRS]("crs", false),
}

// OptionsFromArgs overlays positional writer arguments on base.
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
		if s, ok := args[1].(string); ok && s != "" {
			opts.Description = s
		}
	}
	if len(args) > 2 {
		if b, ok := args[2].(bool); ok {
			opts.IncludeIndex = b
		}
	}
	if len(args) > 3 {
		if c, ok := args[3].(*CRS); ok && c != nil {
			opts.CRS = c
		}
	}
	return opts
}

// ColumnInfo describes a property column in a FlatGeobuf file.
type ColumnInfo struct {
	Name        string // Column name
	Type        string // Column type ("Bool", "Int", "Long", "Double", "String", "Json", etc.)
	Title       string // Column title (human-readable)
	Description string // Column description
	Nullable    bool   // Whether the column can contain null values
}

// Header contains metadata about a FlatGeobuf file.
type Header struct {
	Name          string       // Layer name
	Description   string       // Layer description
	GeometryType  string       // Geometry type ("Point", "Polygon", "Unknown", etc.)
	FeaturesCount uint64       // Number of features in the file
	Envelope      [4]float64   // Bounding box [minX, minY, maxX, maxY]
	CRS           *CRS         // Coordinate reference system
	HasIndex      bool         // Whether the file has a spatial index
	Columns       []ColumnInfo // Property column schema
}
