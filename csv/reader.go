package csv

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/tingold/geostream"
)

// Reader decodes delimited text into a schema and one row per line.
type Reader struct {
	geostream.ObjectQueue

	src     io.Reader
	r       *bufio.Reader
	opts    ReaderOptions
	schema  *geostream.Schema
	line    int
	offset  int64
	logger  zerolog.Logger
	started bool
	closed  bool
}

type tokenEnd int

const (
	endValue tokenEnd = iota
	endLine
	endInput
)

// NewReader returns a reader over r. The reader owns r and closes it on
// Close when it implements io.Closer.
func NewReader(r io.Reader, opts *ReaderOptions) *Reader {
	if opts == nil {
		opts = DefaultReaderOptions()
	}
	rd := &Reader{
		src:    r,
		r:      bufio.NewReaderSize(r, 4096),
		opts:   *opts,
		logger: geostream.LoggerOr(opts.Logger),
		line:   1,
	}
	if rd.opts.ValueDelimiter == 0 {
		rd.opts.ValueDelimiter = ','
	}
	if rd.opts.Quote == 0 {
		rd.opts.Quote = '"'
	}
	if opts.Schema != nil {
		rd.schema = opts.Schema
		rd.AddLast(opts.Schema)
	}
	return rd
}

// LineDelimiter returns the line delimiter in use, sniffing it when needed.
func (r *Reader) LineDelimiter() string {
	r.start()
	return r.opts.LineDelimiter
}

func (r *Reader) start() {
	if r.started {
		return
	}
	r.started = true
	if bom, _ := r.r.Peek(3); bytes.Equal(bom, []byte{0xEF, 0xBB, 0xBF}) {
		n, _ := r.r.Discard(3)
		r.offset += int64(n)
	}
	if r.opts.LineDelimiter == "" {
		head, _ := r.r.Peek(sniffSize)
		r.opts.LineDelimiter = sniffLineDelimiter(head)
		r.logger.Trace().Str("lineDelimiter", fmt.Sprintf("%q", r.opts.LineDelimiter)).Msg("sniffed csv line delimiter")
	}
}

// sniffLineDelimiter returns the first carriage return or newline in head
// together with the control characters that directly follow it. A repeated
// character ends the run, so blank lines are not folded into the delimiter.
func sniffLineDelimiter(head []byte) string {
	i := bytes.IndexAny(head, "\r\n")
	if i < 0 {
		return "\n"
	}
	end := i + 1
	for end < len(head) && head[end] < 0x20 && head[end] != '\t' && bytes.IndexByte(head[i:end], head[end]) < 0 {
		end++
	}
	return string(head[i:end])
}

// Read returns the schema first, then one row per line.
func (r *Reader) Read() (geostream.Object, error) {
	if r.closed {
		return nil, geostream.ErrClosed
	}
	if r.HasSaved() {
		return r.ReadSaved(), nil
	}
	r.start()
	if r.schema == nil {
		s, err := r.readHeader()
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	if !r.more() {
		return nil, io.EOF
	}
	return r.readRow()
}

func (r *Reader) more() bool {
	_, err := r.r.Peek(1)
	return err == nil
}

func (r *Reader) readHeader() (*geostream.Schema, error) {
	if !r.more() {
		return nil, io.EOF
	}
	tokens, err := r.readLine()
	if err != nil {
		return nil, err
	}
	s := geostream.NewSchema(HeaderSchemaID)
	for i, tok := range tokens {
		name := strings.TrimSpace(tok)
		if name == "" {
			name = fmt.Sprintf("field_%d", i+1)
		}
		if _, dup := s.Field(name); dup {
			base := name
			for n := 2; dup; n++ {
				name = fmt.Sprintf("%s_%d", base, n)
				_, dup = s.Field(name)
			}
		}
		if err := s.Put(geostream.MustField(name, geostream.FieldString)); err != nil {
			return nil, err
		}
	}
	r.schema = s
	r.logger.Debug().Strs("columns", s.Keys()).Msg("read csv header")
	return s, nil
}

func (r *Reader) readRow() (*geostream.Row, error) {
	line := r.line
	tokens, err := r.readLine()
	if err != nil {
		return nil, err
	}
	r.schema.Freeze()
	row := geostream.NewRow(r.schema.ID)
	fields := r.schema.Fields()
	if len(tokens) > len(fields) {
		r.logger.Warn().Int("line", line).Int("values", len(tokens)).Int("columns", len(fields)).Msg("extra csv values ignored")
		tokens = tokens[:len(fields)]
	}
	for i, tok := range tokens {
		if err := row.Put(fields[i], r.decode(fields[i], tok, line)); err != nil {
			return nil, err
		}
	}
	return row, nil
}

// decode converts token text to the declared field type. Text that does not
// convert is logged and yields nil.
func (r *Reader) decode(f *geostream.SimpleField, tok string, line int) any {
	if f.Type == geostream.FieldString {
		return tok
	}
	if strings.TrimSpace(tok) == "" {
		return nil
	}
	v, err := geostream.Coerce(f.Type, tok)
	if err != nil {
		r.logger.Warn().Err(err).Str("field", f.Name).Int("line", line).Msg("unparseable csv value, using null")
		return nil
	}
	return v
}

// readLine reads the tokens of one line.
func (r *Reader) readLine() ([]string, error) {
	var tokens []string
	for {
		tok, end, err := r.readToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if end != endValue {
			r.line++
			return tokens, nil
		}
	}
}

func (r *Reader) readRune() (rune, error) {
	c, n, err := r.r.ReadRune()
	r.offset += int64(n)
	return c, err
}

// atLineEnd consumes the rest of the line delimiter when c starts it.
func (r *Reader) atLineEnd(c rune) bool {
	first, size := utf8.DecodeRuneInString(r.opts.LineDelimiter)
	if c != first {
		return false
	}
	rest := r.opts.LineDelimiter[size:]
	if rest == "" {
		return true
	}
	peek, err := r.r.Peek(len(rest))
	if err != nil || string(peek) != rest {
		return false
	}
	n, _ := r.r.Discard(len(rest))
	r.offset += int64(n)
	return true
}

func (r *Reader) readToken() (string, tokenEnd, error) {
	c, err := r.readRune()
	if errors.Is(err, io.EOF) {
		return "", endInput, nil
	}
	if err != nil {
		return "", endInput, err
	}
	if c == r.opts.Quote {
		return r.readQuoted()
	}
	var sb strings.Builder
	for {
		switch {
		case c == r.opts.ValueDelimiter:
			return sb.String(), endValue, nil
		case r.atLineEnd(c):
			return sb.String(), endLine, nil
		}
		sb.WriteRune(c)
		c, err = r.readRune()
		if errors.Is(err, io.EOF) {
			return sb.String(), endInput, nil
		}
		if err != nil {
			return "", endInput, err
		}
	}
}

// readQuoted reads a quoted token whose opening quote was consumed. A doubled
// quote is a literal quote.
func (r *Reader) readQuoted() (string, tokenEnd, error) {
	var sb strings.Builder
	startLine := r.line
	for {
		c, err := r.readRune()
		if errors.Is(err, io.EOF) {
			return "", endInput, fmt.Errorf("%w starting on line %d", ErrUnterminatedQuote, startLine)
		}
		if err != nil {
			return "", endInput, err
		}
		if c != r.opts.Quote {
			sb.WriteRune(c)
			continue
		}
		next, err := r.readRune()
		if errors.Is(err, io.EOF) {
			return sb.String(), endInput, nil
		}
		if err != nil {
			return "", endInput, err
		}
		switch {
		case next == r.opts.Quote:
			sb.WriteRune(next)
		case next == r.opts.ValueDelimiter:
			return sb.String(), endValue, nil
		case r.atLineEnd(next):
			return sb.String(), endLine, nil
		default:
			return "", endInput, &FormatError{
				Line:   r.line,
				Offset: r.offset - int64(utf8.RuneLen(next)),
				Msg:    fmt.Sprintf("unexpected %q after closing quote", next),
			}
		}
	}
}

// EnumerateSchemata returns the supplied schema, or reads the header line
// and keeps it queued for Read.
func (r *Reader) EnumerateSchemata() ([]*geostream.Schema, error) {
	if r.closed {
		return nil, geostream.ErrClosed
	}
	if r.schema == nil {
		r.start()
		s, err := r.readHeader()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		r.AddFirst(s)
	}
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
