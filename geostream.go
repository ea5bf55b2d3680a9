// Package geostream provides a format-agnostic streaming model for geospatial
// vector data. Every supported on-disk format decodes into, and encodes from,
// the same sequence of objects: a Schema describing attribute fields, Rows and
// Features referencing that schema, and optional container markers grouping
// features. A Registry maps a DocType to the construction contract of the
// format's Reader and Writer so that callers never hand-wire codecs.
//
// Codecs live in sub-packages (wkt, dbf, csv, fgb, geojson); the formats
// package assembles a Registry with all of them.
package geostream

import (
	"errors"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Common errors returned by this package and by codecs built on it.
var (
	ErrNilObject           = errors.New("geostream: nil object")
	ErrUnsupported         = errors.New("geostream: operation not supported")
	ErrUnsupportedFormat   = errors.New("geostream: format not registered")
	ErrDuplicateFormat     = errors.New("geostream: format already registered")
	ErrInvalidGeometry     = errors.New("geostream: invalid geometry")
	ErrInvalidField        = errors.New("geostream: invalid field")
	ErrIncompatibleValue   = errors.New("geostream: value incompatible with field type")
	ErrSchemaFrozen        = errors.New("geostream: schema is referenced by rows and cannot change")
	ErrUnknownSchema       = errors.New("geostream: row references a schema that was not written")
	ErrSchemaAfterRows     = errors.New("geostream: schema written after rows")
	ErrUnbalancedContainer = errors.New("geostream: container end without matching start")
	ErrInvalidArgument     = errors.New("geostream: invalid argument")
	ErrClosed              = errors.New("geostream: stream is closed")
)

// LoggerOr returns *l, or the global zerolog logger when l is nil.
func LoggerOr(l *zerolog.Logger) zerolog.Logger {
	if l == nil {
		return log.Logger
	}
	return *l
}
