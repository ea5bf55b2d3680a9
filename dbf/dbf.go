// Package dbf reads and writes dBase III tables, the attribute half of a
// shapefile.
//
// A table decodes to one geostream.Schema followed by one geostream.Row per
// record. Soft-deleted records are not supported.
package dbf

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/tingold/geostream"
)

const (
	signature   = 0x03 // dBase III without memo
	endOfHeader = 0x0D
	endOfFile   = 0x1A
	recordOK    = ' '

	headerSize     = 32
	descriptorSize = 32
	nameSize       = 11
	maxCharLength  = 254
	doubleLength   = 34
	doubleDecimals = 16
	dateLayout     = "20060102"
)

// Common errors returned by this package.
var (
	ErrInvalidHeader   = errors.New("dbf: invalid header")
	ErrDeletedRecord   = errors.New("dbf: deleted records are not supported")
	ErrMultipleSchemas = errors.New("dbf: only one schema per table")
	ErrNoSchema        = errors.New("dbf: no schema written")
	ErrTooLarge        = errors.New("dbf: table exceeds format limits")
)

// FormatError reports malformed binary content at a byte offset.
type FormatError struct {
	Offset int64
	Msg    string
	Err    error // ErrInvalidHeader or ErrDeletedRecord
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("dbf: %s at offset %d", e.Msg, e.Offset)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Options configures a Reader or Writer.
type Options struct {
	Logger *zerolog.Logger // defaults to the global logger
	// EntryName is the archive entry written by the zip variant.
	EntryName string
}

// DefaultOptions returns the default options.
func DefaultOptions() *Options {
	return &Options{EntryName: "data.dbf"}
}

// fieldFromDescriptor maps a dBase type code, length and decimal count to a
// field type.
func fieldFromDescriptor(code byte, length, decimals int) (geostream.FieldType, bool) {
	switch code {
	case 'C', 'c':
		return geostream.FieldString, true
	case 'N', 'n':
		if decimals > 0 {
			return geostream.FieldDouble, true
		}
		switch {
		case length < 5:
			return geostream.FieldShort, true
		case length < 10:
			return geostream.FieldInt, true
		case length < 19:
			return geostream.FieldLong, true
		}
		return geostream.FieldDouble, true
	case 'F', 'f':
		return geostream.FieldDouble, true
	case 'D', 'd':
		return geostream.FieldDate, true
	case 'L', 'l':
		return geostream.FieldBool, true
	}
	return 0, false
}

// descriptorFor returns the type code, width and decimals used to store f.
func descriptorFor(f *geostream.SimpleField) (code byte, length, decimals int) {
	switch f.Type {
	case geostream.FieldString:
		length = f.EffectiveLength()
		if length > maxCharLength {
			length = maxCharLength
		}
		return 'C', length, 0
	case geostream.FieldDouble, geostream.FieldFloat:
		return 'F', doubleLength, doubleDecimals
	case geostream.FieldLong:
		length = f.Length
		if length < 15 {
			length = 15
		} else if length > 20 {
			length = 20
		}
		return 'N', length, 0
	case geostream.FieldInt:
		return 'N', 10, 0
	case geostream.FieldShort:
		return 'N', 6, 0
	case geostream.FieldDate:
		return 'D', 8, 0
	case geostream.FieldBool:
		return 'L', 1, 0
	}
	return 'C', 32, 0
}
