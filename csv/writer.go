package csv

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tingold/geostream"
)

const dateLayout = "2006-01-02T15:04:05Z"

// Writer encodes rows as delimited text. A schema, when written, becomes the
// header line and fixes the column order. Rows without a schema are written
// in their own field order.
type Writer struct {
	geostream.VisitorBase

	dst    io.Writer
	w      *bufio.Writer
	opts   WriterOptions
	guard  geostream.SchemaGuard
	schema *geostream.Schema
	rows   int
	logger zerolog.Logger
	closed bool
}

// NewWriter returns a writer over w. The writer owns w and closes it on
// Close when it implements io.Closer.
func NewWriter(w io.Writer, opts *WriterOptions) *Writer {
	if opts == nil {
		opts = DefaultWriterOptions()
	}
	wr := &Writer{
		dst:    w,
		w:      bufio.NewWriter(w),
		opts:   *opts,
		guard:  geostream.SchemaGuard{AllowSchemaless: true},
		logger: geostream.LoggerOr(opts.Logger),
	}
	if wr.opts.LineDelimiter == "" {
		wr.opts.LineDelimiter = "\n"
	}
	if wr.opts.ValueDelimiter == 0 {
		wr.opts.ValueDelimiter = ','
	}
	if wr.opts.Quote == 0 {
		wr.opts.Quote = '"'
	}
	return wr
}

// Write encodes obj. Container markers and bare geometries are ignored.
func (w *Writer) Write(obj geostream.Object) error {
	if w.closed {
		return geostream.ErrClosed
	}
	return geostream.Dispatch(w, obj)
}

// VisitSchema fixes the column order and writes the header line unless
// SkipHeader is set. Only one schema is accepted, before any row.
func (w *Writer) VisitSchema(s *geostream.Schema) error {
	if w.schema != nil {
		return fmt.Errorf("%w: got %s after %s", ErrMultipleSchemas, s.ID, w.schema.ID)
	}
	if err := w.guard.AddSchema(s); err != nil {
		return err
	}
	w.schema = s
	if w.opts.SkipHeader {
		return nil
	}
	for i, name := range s.Keys() {
		if i > 0 {
			w.w.WriteRune(w.opts.ValueDelimiter)
		}
		w.writeQuoted(name)
	}
	_, err := w.w.WriteString(w.opts.LineDelimiter)
	return err
}

// VisitRow writes one record. With a schema the values follow its column
// order and r must refer to it; without one they follow r's own fields.
func (w *Writer) VisitRow(r *geostream.Row) error {
	if w.schema != nil && r.SchemaID != w.schema.ID {
		return fmt.Errorf("%w: %q, table has %q", ErrSchemaMismatch, r.SchemaID, w.schema.ID)
	}
	s, err := w.guard.CheckRow(r)
	if err != nil {
		return err
	}
	fields := r.Fields()
	if s != nil {
		fields = s.Fields()
	}
	for i, f := range fields {
		if i > 0 {
			w.w.WriteRune(w.opts.ValueDelimiter)
		}
		v, _ := r.Value(f.Name)
		text, err := formatValue(f.Type, v)
		if err != nil {
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
		w.writeQuoted(text)
	}
	w.rows++
	_, err = w.w.WriteString(w.opts.LineDelimiter)
	return err
}

// VisitFeature writes the feature's attributes; its geometry is dropped.
func (w *Writer) VisitFeature(f *geostream.Feature) error {
	return w.VisitRow(&f.Row)
}

// writeQuoted writes s between quotes, doubling embedded quotes.
func (w *Writer) writeQuoted(s string) {
	q := string(w.opts.Quote)
	w.w.WriteString(q)
	w.w.WriteString(strings.ReplaceAll(s, q, q+q))
	w.w.WriteString(q)
}

func formatValue(t geostream.FieldType, v any) (string, error) {
	if v == nil {
		return "", nil
	}
	switch t {
	case geostream.FieldDate:
		if s, ok := v.(string); ok {
			d, err := geostream.ParseDate(s)
			if err != nil {
				return s, nil
			}
			v = d
		}
		if d, ok := v.(time.Time); ok {
			return d.UTC().Format(dateLayout), nil
		}
	case geostream.FieldShort, geostream.FieldInt, geostream.FieldLong, geostream.FieldDouble, geostream.FieldFloat:
		switch v.(type) {
		case string, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		default:
			return "", fmt.Errorf("%w: %T for %s field", geostream.ErrIncompatibleValue, v, t)
		}
	}
	s, err := geostream.Coerce(geostream.FieldString, v)
	if err != nil {
		return "", err
	}
	return s.(string), nil
}

// Close flushes buffered output and releases the sink.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.w.Flush()
	if c, ok := w.dst.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	w.logger.Debug().Int("rows", w.rows).Msg("wrote csv table")
	return err
}
