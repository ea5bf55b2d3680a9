// Package csv reads and writes delimited text tables.
//
// The reader sniffs the line delimiter from the start of the input and turns
// the header line into a schema of string fields, unless a schema is
// supplied. The writer quotes every value.
package csv

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/tingold/geostream"
)

// HeaderSchemaID identifies the schema built from a header line.
const HeaderSchemaID = "#csvschema"

const sniffSize = 1000

// Common errors returned by this package.
var (
	ErrUnterminatedQuote = errors.New("csv: unterminated quoted value")
	ErrMultipleSchemas   = errors.New("csv: only one schema per table")
	ErrSchemaMismatch    = errors.New("csv: row schema does not match the table schema")
)

// FormatError reports malformed text at a line and byte offset.
type FormatError struct {
	Line   int
	Offset int64
	Msg    string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("csv: line %d, offset %d: %s", e.Line, e.Offset, e.Msg)
}

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	// Schema, when set, names the columns; the first line is then data.
	Schema *geostream.Schema
	// LineDelimiter is sniffed from the input when empty.
	LineDelimiter  string
	ValueDelimiter rune
	Quote          rune
	Logger         *zerolog.Logger
}

// DefaultReaderOptions returns comma separated, double quoted input with a
// sniffed line delimiter.
func DefaultReaderOptions() *ReaderOptions {
	return &ReaderOptions{ValueDelimiter: ',', Quote: '"'}
}

// WriterOptions configures a Writer.
type WriterOptions struct {
	LineDelimiter  string
	ValueDelimiter rune
	Quote          rune
	// SkipHeader omits the header line.
	SkipHeader bool
	Logger     *zerolog.Logger
}

// DefaultWriterOptions returns comma separated, double quoted output with
// newline terminated lines.
func DefaultWriterOptions() *WriterOptions {
	return &WriterOptions{LineDelimiter: "\n", ValueDelimiter: ',', Quote: '"'}
}

// Positional registry arguments.
var (
	InputArgs = []geostream.ArgSpec{
		geostream.Arg[*geostream.Schema]("schema", false),
		geostream.Arg[string]("lineDelimiter", false),
		geostream.Arg[rune]("valueDelimiter", false),
		geostream.Arg[rune]("quote", false),
	}
	OutputArgs = []geostream.ArgSpec{
		geostream.Arg[string]("lineDelimiter", false),
		geostream.Arg[rune]("valueDelimiter", false),
		geostream.Arg[rune]("quote", false),
		geostream.Arg[bool]("skipHeader", false),
	}
)

// ReaderOptionsFromArgs overlays positional arguments on base. Nil or zero
// arguments keep the base value.
func ReaderOptionsFromArgs(base *ReaderOptions, args []any) *ReaderOptions {
	opts := DefaultReaderOptions()
	if base != nil {
		*opts = *base
	}
	if s, ok := arg[*geostream.Schema](args, 0); ok && s != nil {
		opts.Schema = s
	}
	if s, ok := arg[string](args, 1); ok && s != "" {
		opts.LineDelimiter = s
	}
	if r, ok := arg[rune](args, 2); ok && r != 0 {
		opts.ValueDelimiter = r
	}
	if r, ok := arg[rune](args, 3); ok && r != 0 {
		opts.Quote = r
	}
	return opts
}

// WriterOptionsFromArgs overlays positional arguments on base.
func WriterOptionsFromArgs(base *WriterOptions, args []any) *WriterOptions {
	opts := DefaultWriterOptions()
	if base != nil {
		*opts = *base
	}
	if s, ok := arg[string](args, 0); ok && s != "" {
		opts.LineDelimiter = s
	}
	if r, ok := arg[rune](args, 1); ok && r != 0 {
		opts.ValueDelimiter = r
	}
	if r, ok := arg[rune](args, 2); ok && r != 0 {
		opts.Quote = r
	}
	if b, ok := arg[bool](args, 3); ok {
		opts.SkipHeader = b
	}
	return opts
}

func arg[T any](args []any, i int) (T, bool) {
	var zero T
	if i >= len(args) || args[i] == nil {
		return zero, false
	}
	v, ok := args[i].(T)
	return v, ok
}
