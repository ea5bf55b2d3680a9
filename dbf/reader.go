package dbf

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tingold/geostream"
)

// Reader decodes a dBase III table. The schema is available as soon as
// NewReader returns.
type Reader struct {
	geostream.ObjectQueue

	src       io.Reader
	r         *bufio.Reader
	schema    *geostream.Schema
	count     int
	current   int
	recordLen int
	buf       []byte
	offset    int64
	logger    zerolog.Logger
	closed    bool
}

// NewReader parses the table header from r. The reader owns r and closes it
// on Close when it implements io.Closer.
func NewReader(r io.Reader, opts *Options) (*Reader, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	rd := &Reader{
		src:    r,
		r:      bufio.NewReader(r),
		logger: geostream.LoggerOr(opts.Logger),
	}
	if err := rd.readHeader(); err != nil {
		return nil, err
	}
	rd.AddLast(rd.schema)
	return rd, nil
}

// Open opens the table at path. The schema is named after the file.
func Open(path string, opts *Options) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	rd, err := NewReader(f, opts)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rd.schema.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return rd, nil
}

func (r *Reader) readFull(b []byte) error {
	n, err := io.ReadFull(r.r, b)
	r.offset += int64(n)
	return err
}

func (r *Reader) readHeader() error {
	var hdr [headerSize]byte
	if err := r.readFull(hdr[:]); err != nil {
		return &FormatError{Offset: r.offset, Msg: "truncated header: " + err.Error(), Err: ErrInvalidHeader}
	}
	if hdr[0] != signature {
		return &FormatError{Offset: 0, Msg: fmt.Sprintf("unsupported signature 0x%02x", hdr[0]), Err: ErrInvalidHeader}
	}
	count := int32(binary.LittleEndian.Uint32(hdr[4:8]))
	headerLen := int(binary.LittleEndian.Uint16(hdr[8:10]))
	r.recordLen = int(binary.LittleEndian.Uint16(hdr[10:12]))
	if count < 0 {
		return &FormatError{Offset: 4, Msg: fmt.Sprintf("negative record count %d", count), Err: ErrInvalidHeader}
	}
	if headerLen < headerSize+1 {
		return &FormatError{Offset: 8, Msg: fmt.Sprintf("header length %d too small", headerLen), Err: ErrInvalidHeader}
	}
	r.count = int(count)
	numFields := (headerLen - headerSize - 1) / descriptorSize

	r.schema = geostream.NewSchema("")
	width := 1
	var desc [descriptorSize]byte
	for i := 0; i < numFields; i++ {
		start := r.offset
		if err := r.readFull(desc[:]); err != nil {
			return &FormatError{Offset: r.offset, Msg: "truncated field descriptor: " + err.Error(), Err: ErrInvalidHeader}
		}
		f, err := parseDescriptor(desc[:])
		if err != nil {
			return &FormatError{Offset: start, Msg: err.Error(), Err: ErrInvalidHeader}
		}
		if _, dup := r.schema.Field(f.Name); dup {
			return &FormatError{Offset: start, Msg: fmt.Sprintf("duplicate field name %q", f.Name), Err: ErrInvalidHeader}
		}
		if err := r.schema.Put(f); err != nil {
			return err
		}
		width += f.Length
	}

	var eoh [1]byte
	if err := r.readFull(eoh[:]); err != nil || eoh[0] != endOfHeader {
		return &FormatError{Offset: r.offset - 1, Msg: "missing end-of-header marker", Err: ErrInvalidHeader}
	}
	if pad := int64(headerLen) - r.offset; pad > 0 {
		n, err := r.r.Discard(int(pad))
		r.offset += int64(n)
		if err != nil {
			return &FormatError{Offset: r.offset, Msg: "truncated header padding", Err: ErrInvalidHeader}
		}
	}
	if width > r.recordLen {
		return &FormatError{Offset: 10, Msg: fmt.Sprintf("fields need %d bytes, record length is %d", width, r.recordLen), Err: ErrInvalidHeader}
	}
	r.buf = make([]byte, r.recordLen)
	r.logger.Debug().
		Int("records", r.count).
		Int("fields", numFields).
		Int("recordLength", r.recordLen).
		Msg("read dbf header")
	return nil
}

func parseDescriptor(desc []byte) (*geostream.SimpleField, error) {
	name := desc[:nameSize]
	if i := strings.IndexByte(string(name), 0); i >= 0 {
		name = name[:i]
	}
	code := desc[11]
	length := int(desc[16])
	decimals := int(desc[17])
	ft, ok := fieldFromDescriptor(code, length, decimals)
	if !ok {
		return nil, fmt.Errorf("unknown field type %q", code)
	}
	f, err := geostream.NewField(string(name), ft)
	if err != nil {
		return nil, err
	}
	f.Length = length
	if ft == geostream.FieldDouble {
		f.Scale = decimals
	}
	return f, nil
}

// Schema returns the table schema.
func (r *Reader) Schema() *geostream.Schema { return r.schema }

// Count returns the number of records declared in the header.
func (r *Reader) Count() int { return r.count }

// Read returns the schema first and then one row per record.
func (r *Reader) Read() (geostream.Object, error) {
	if r.closed {
		return nil, geostream.ErrClosed
	}
	if r.HasSaved() {
		return r.ReadSaved(), nil
	}
	if r.current >= r.count {
		return nil, io.EOF
	}
	start := r.offset
	if err := r.readFull(r.buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("dbf: record %d of %d: %w", r.current+1, r.count, err)
	}
	if r.buf[0] != recordOK {
		return nil, &FormatError{
			Offset: start,
			Msg:    fmt.Sprintf("record %d has deletion flag 0x%02x", r.current+1, r.buf[0]),
			Err:    ErrDeletedRecord,
		}
	}
	r.schema.Freeze()

	row := geostream.NewRow(r.schema.ID)
	pos := 1
	for _, f := range r.schema.Fields() {
		text := strings.TrimSpace(string(r.buf[pos : pos+f.Length]))
		pos += f.Length
		if err := row.Put(f, r.parseValue(f, text)); err != nil {
			return nil, err
		}
	}
	r.current++
	return row, nil
}

// parseValue decodes trimmed field text. Unparseable numbers and dates are
// logged and yield nil.
func (r *Reader) parseValue(f *geostream.SimpleField, text string) any {
	if text == "" {
		return nil
	}
	switch f.Type {
	case geostream.FieldString:
		return text
	case geostream.FieldShort, geostream.FieldInt, geostream.FieldLong, geostream.FieldDouble, geostream.FieldFloat:
		if v, ok := parseNumber(f.Type, text); ok {
			return v
		}
	case geostream.FieldDate:
		if t, err := time.ParseInLocation(dateLayout, text, time.UTC); err == nil {
			return t
		}
	case geostream.FieldBool:
		switch text[0] {
		case '?':
			return nil
		case 'Y', 'y', 'T', 't':
			return true
		}
		return false
	}
	r.logger.Warn().
		Str("field", f.Name).
		Str("type", f.Type.String()).
		Str("value", text).
		Int("record", r.current+1).
		Msg("unparseable dbf value, using null")
	return nil
}

// parseNumber tries progressively wider types, starting at the declared
// one. A leading '*' is null for integer fields. The result is nil with ok
// set when the text denotes null.
func parseNumber(t geostream.FieldType, text string) (v any, ok bool) {
	precheck := true
	switch t {
	case geostream.FieldShort:
		if n, err := strconv.ParseInt(text, 10, 16); err == nil {
			return int16(n), true
		}
		fallthrough
	case geostream.FieldInt:
		if n, err := strconv.ParseInt(text, 10, 32); err == nil {
			return int32(n), true
		}
		fallthrough
	case geostream.FieldLong:
		if strings.HasPrefix(text, "*") {
			return nil, true
		}
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return n, true
		}
		precheck = false
		fallthrough
	case geostream.FieldDouble, geostream.FieldFloat:
		if precheck && !strings.ContainsAny(text, ".+") {
			if v, ok := parseIntByWidth(text); ok {
				return v, true
			}
		}
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return f, true
		}
	}
	return nil, false
}

func parseIntByWidth(text string) (any, bool) {
	switch n := len(text); {
	case n < 5:
		if v, err := strconv.ParseInt(text, 10, 16); err == nil {
			return int16(v), true
		}
	case n < 10:
		if v, err := strconv.ParseInt(text, 10, 32); err == nil {
			return int32(v), true
		}
	default:
		if v, err := strconv.ParseInt(text, 10, 64); err == nil {
			return v, true
		}
	}
	return nil, false
}

// EnumerateSchemata returns the single table schema.
func (r *Reader) EnumerateSchemata() ([]*geostream.Schema, error) {
	return []*geostream.Schema{r.schema}, nil
}

// Close releases the source. Calling it again does nothing.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if c, ok := r.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
