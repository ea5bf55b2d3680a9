package dbf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/tingold/geostream"
)

// Writer encodes one schema and its rows as a dBase III table. Records are
// encoded as they arrive and the table is written on Close, once the record
// count is known. Geometries of features are dropped.
type Writer struct {
	geostream.VisitorBase

	dst     io.Writer
	guard   geostream.SchemaGuard
	schema  *geostream.Schema
	columns []column
	records bytes.Buffer
	count   int
	logger  zerolog.Logger
	now     func() time.Time
	closed  bool
}

type column struct {
	field    *geostream.SimpleField
	name     string
	code     byte
	length   int
	decimals int
}

// NewWriter returns a writer over w. The writer owns w and closes it on
// Close when it implements io.Closer.
func NewWriter(w io.Writer, opts *Options) *Writer {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Writer{
		dst:    w,
		logger: geostream.LoggerOr(opts.Logger),
		now:    time.Now,
	}
}

// Write buffers obj. Nothing reaches the sink before Close.
func (w *Writer) Write(obj geostream.Object) error {
	if w.closed {
		return geostream.ErrClosed
	}
	return geostream.Dispatch(w, obj)
}

// VisitSchema derives the field descriptors. Only one schema is accepted.
func (w *Writer) VisitSchema(s *geostream.Schema) error {
	if w.schema != nil {
		return fmt.Errorf("%w: got %s after %s", ErrMultipleSchemas, s.ID, w.schema.ID)
	}
	if err := w.guard.AddSchema(s); err != nil {
		return err
	}
	w.schema = s
	w.columns = columnsFor(s)
	width := 1
	for _, c := range w.columns {
		width += c.length
	}
	if width > math.MaxUint16 || headerSize+1+descriptorSize*len(w.columns) > math.MaxUint16 {
		return fmt.Errorf("%w: %d fields, record length %d", ErrTooLarge, len(w.columns), width)
	}
	return nil
}

// VisitRow encodes one record against the schema's descriptors.
func (w *Writer) VisitRow(r *geostream.Row) error {
	if _, err := w.guard.CheckRow(r); err != nil {
		return err
	}
	if w.count == math.MaxInt32 {
		return fmt.Errorf("%w: more than %d records", ErrTooLarge, math.MaxInt32)
	}
	w.records.WriteByte(recordOK)
	for _, c := range w.columns {
		v, _ := r.Value(c.field.Name)
		w.encodeValue(c, v)
	}
	w.count++
	return nil
}

// VisitFeature records the feature's attributes; its geometry is dropped.
func (w *Writer) VisitFeature(f *geostream.Feature) error {
	return w.VisitRow(&f.Row)
}

// Close writes the header and the buffered records and releases the sink.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.flush()
	if c, ok := w.dst.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (w *Writer) flush() error {
	if w.schema == nil {
		return ErrNoSchema
	}
	var hdr bytes.Buffer
	today := w.now().UTC()
	hdr.WriteByte(signature)
	hdr.WriteByte(byte(today.Year() - 1900))
	hdr.WriteByte(byte(today.Month()))
	hdr.WriteByte(byte(today.Day()))

	recordLen := 1
	for _, c := range w.columns {
		recordLen += c.length
	}
	var nums [8]byte
	binary.LittleEndian.PutUint32(nums[0:4], uint32(w.count))
	binary.LittleEndian.PutUint16(nums[4:6], uint16(headerSize+1+descriptorSize*len(w.columns)))
	binary.LittleEndian.PutUint16(nums[6:8], uint16(recordLen))
	hdr.Write(nums[:])
	hdr.Write(make([]byte, 20))

	for _, c := range w.columns {
		var desc [descriptorSize]byte
		copy(desc[:nameSize-1], c.name)
		desc[11] = c.code
		desc[16] = byte(c.length)
		desc[17] = byte(c.decimals)
		hdr.Write(desc[:])
	}
	hdr.WriteByte(endOfHeader)

	if _, err := w.dst.Write(hdr.Bytes()); err != nil {
		return err
	}
	if _, err := w.records.WriteTo(w.dst); err != nil {
		return err
	}
	_, err := w.dst.Write([]byte{endOfFile})
	w.logger.Debug().Int("records", w.count).Int("fields", len(w.columns)).Msg("wrote dbf table")
	return err
}

func columnsFor(s *geostream.Schema) []column {
	used := make(map[string]bool)
	cols := make([]column, 0, s.Len())
	for _, f := range s.Fields() {
		code, length, decimals := descriptorFor(f)
		cols = append(cols, column{
			field:    f,
			name:     fieldName(f.Name, used),
			code:     code,
			length:   length,
			decimals: decimals,
		})
	}
	return cols
}

// fieldName reduces name to at most ten ASCII letters, digits or
// underscores, unique among used.
func fieldName(name string, used map[string]bool) string {
	var sb strings.Builder
	for _, c := range strings.TrimSpace(name) {
		if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			sb.WriteRune(c)
		}
	}
	n := sb.String()
	if len(n) > 10 {
		if n == "description" && !used["desc"] {
			n = "desc"
		} else {
			n = n[:1] + strings.Map(func(c rune) rune {
				if strings.ContainsRune("aeiou", c) {
					return -1
				}
				return c
			}, n[1:])
		}
	}
	if len(n) > 10 {
		n = n[:10]
	}
	if n == "" {
		n = "field"
	}
	if used[n] {
		base := n
		for i := 1; used[n]; i++ {
			suffix := strconv.Itoa(i)
			if len(base)+len(suffix) > 10 {
				n = base[:10-len(suffix)] + suffix
			} else {
				n = base + suffix
			}
		}
	}
	used[n] = true
	return n
}

func (w *Writer) encodeValue(c column, v any) {
	switch c.field.Type {
	case geostream.FieldString:
		w.writeLeft(stringValue(v), c.length)
	case geostream.FieldDouble, geostream.FieldFloat:
		f, ok := w.number(c, v)
		if !ok {
			w.writeRight("", c.length)
			return
		}
		w.writeRight(formatDouble(f), c.length)
	case geostream.FieldShort, geostream.FieldInt, geostream.FieldLong:
		n, ok := w.integer(c, v)
		if !ok {
			w.writeRight("", c.length)
			return
		}
		w.writeRight(strconv.FormatInt(n, 10), c.length)
	case geostream.FieldDate:
		t, err := geostream.Coerce(geostream.FieldDate, v)
		if err != nil || t == nil {
			w.warn(c, v, err)
			w.writeLeft("", c.length)
			return
		}
		w.writeLeft(t.(time.Time).UTC().Format(dateLayout), c.length)
	case geostream.FieldBool:
		w.writeLeft(boolValue(v), c.length)
	default:
		w.writeRight(stringValue(v), c.length)
	}
}

func (w *Writer) number(c column, v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	f, err := geostream.Coerce(geostream.FieldDouble, v)
	if err != nil {
		w.warn(c, v, err)
		return 0, false
	}
	return f.(float64), true
}

// integer truncates fractional values the way numeric casts do.
func (w *Writer) integer(c column, v any) (int64, bool) {
	if v == nil {
		return 0, false
	}
	if n, err := geostream.Coerce(geostream.FieldLong, v); err == nil {
		return n.(int64), true
	}
	f, ok := w.number(c, v)
	if !ok || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func (w *Writer) warn(c column, v any, err error) {
	if v == nil {
		return
	}
	w.logger.Warn().Err(err).Str("field", c.field.Name).Interface("value", v).Msg("cannot encode dbf value, writing null")
}

// writeLeft pads text on the right, as character fields are stored.
func (w *Writer) writeLeft(text string, length int) {
	text = w.fit(text, length)
	w.records.WriteString(text)
	w.records.WriteString(strings.Repeat(" ", length-len(text)))
}

// writeRight pads text on the left, as numeric fields are stored.
func (w *Writer) writeRight(text string, length int) {
	text = w.fit(text, length)
	w.records.WriteString(strings.Repeat(" ", length-len(text)))
	w.records.WriteString(text)
}

// fit cuts text to at most length bytes without splitting a character.
func (w *Writer) fit(text string, length int) string {
	if len(text) <= length {
		return text
	}
	w.logger.Trace().Str("value", text).Int("length", length).Msg("value truncated to field length")
	cut := length
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func stringValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case time.Time:
		return x.UTC().Format("2006-01-02T15:04:05.000")
	}
	s, _ := geostream.Coerce(geostream.FieldString, v)
	return s.(string)
}

func boolValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "?"
	case bool:
		if x {
			return "T"
		}
		return "F"
	case string:
		if x == "?" {
			return "?"
		}
	}
	b, err := geostream.Coerce(geostream.FieldBool, v)
	if err != nil {
		return "F"
	}
	if b.(bool) {
		return "T"
	}
	return "F"
}

// formatDouble writes a signed decimal with at most 16 fraction digits,
// switching to exponent form when that does not fit the field.
func formatDouble(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if i := strings.IndexByte(s, '.'); i >= 0 && len(s)-i-1 > doubleDecimals {
		s = strconv.FormatFloat(f, 'f', doubleDecimals, 64)
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	if !strings.HasPrefix(s, "-") {
		s = "+" + s
	}
	if len(s) > doubleLength {
		s = strconv.FormatFloat(f, 'e', -1, 64)
	}
	return s
}
