// Package wkt reads and writes geometries as OGC Well-Known Text.
package wkt

import (
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tingold/geostream"
)

// Options configures a Reader or Writer.
type Options struct {
	Logger *zerolog.Logger // defaults to the global logger
}

// DefaultOptions returns the default options.
func DefaultOptions() *Options {
	return &Options{}
}

type dimension struct {
	z, m bool
}

// Reader decodes a sequence of WKT geometries. Each Read returns one
// geostream.Geometry.
type Reader struct {
	lex    *Lexer
	src    io.Reader
	logger zerolog.Logger
	closed bool
}

// NewReader returns a reader over r. The reader owns r and closes it on
// Close when it implements io.Closer.
func NewReader(r io.Reader, opts *Options) *Reader {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Reader{
		lex:    NewLexer(r),
		src:    r,
		logger: geostream.LoggerOr(opts.Logger),
	}
}

// Read returns the next geometry, or io.EOF after the last one.
func (r *Reader) Read() (geostream.Object, error) {
	if r.closed {
		return nil, geostream.ErrClosed
	}
	tok, err := r.lex.Next()
	if err != nil {
		return nil, err
	}
	r.lex.Push(tok)
	g, err := r.geometry()
	if err != nil {
		return nil, err
	}
	return g, nil
}

// EnumerateSchemata always fails: WKT carries no schema.
func (r *Reader) EnumerateSchemata() ([]*geostream.Schema, error) {
	return nil, geostream.ErrUnsupported
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

// Unmarshal parses a single geometry.
func Unmarshal(s string) (geostream.Geometry, error) {
	r := NewReader(strings.NewReader(s), nil)
	obj, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, newSyntaxError(nil, "empty input")
	}
	if err != nil {
		return nil, err
	}
	if tok, err := r.lex.Next(); err == nil {
		return nil, newSyntaxError(tok, "unexpected trailing input")
	}
	return obj.(geostream.Geometry), nil
}

// next reads a token; running out of input is a syntax error here.
func (r *Reader) next(what string) (*Token, error) {
	tok, err := r.lex.Next()
	if errors.Is(err, io.EOF) {
		e := newSyntaxError(nil, "unexpected end of input, expected %s", what)
		e.Offset = r.lex.Offset()
		return nil, e
	}
	return tok, err
}

func (r *Reader) expect(c rune) error {
	tok, err := r.next(string(c))
	if err != nil {
		return err
	}
	if !tok.Is(c) {
		return newSyntaxError(tok, "expected %q", c)
	}
	return nil
}

// more reads a list separator: true after ',', false after ')'.
func (r *Reader) more() (bool, error) {
	tok, err := r.next("',' or ')'")
	if err != nil {
		return false, err
	}
	switch {
	case tok.Is(','):
		return true, nil
	case tok.Is(')'):
		return false, nil
	}
	return false, newSyntaxError(tok, "expected ',' or ')'")
}

func (r *Reader) number() (*Token, error) {
	tok, err := r.next("number")
	if err != nil {
		return nil, err
	}
	if tok.Type != TokenNumber {
		return nil, newSyntaxError(tok, "expected number")
	}
	return tok, nil
}

// keyword splits an identifier into the geometry keyword, its dimension
// suffix and the EMPTY marker.
func keyword(text string) (kw string, dim dimension, empty bool) {
	kw = text
	if base, ok := strings.CutSuffix(kw, "EMPTY"); ok {
		kw, empty = base, true
	}
	switch {
	case strings.HasSuffix(kw, "ZM"), strings.HasSuffix(kw, "MZ"):
		kw, dim = kw[:len(kw)-2], dimension{z: true, m: true}
	case strings.HasSuffix(kw, "Z"):
		kw, dim = kw[:len(kw)-1], dimension{z: true}
	case strings.HasSuffix(kw, "M"):
		kw, dim = kw[:len(kw)-1], dimension{m: true}
	}
	return kw, dim, empty
}

func (r *Reader) geometry() (geostream.Geometry, error) {
	tok, err := r.next("geometry keyword")
	if err != nil {
		return nil, err
	}
	if tok.Type != TokenIdent {
		return nil, newSyntaxError(tok, "expected geometry keyword")
	}
	kw, dim, empty := keyword(tok.Text)
	if !empty {
		if dim, empty, err = r.suffixes(dim); err != nil {
			return nil, err
		}
	}

	if empty {
		switch kw {
		case "MULTIPOINT":
			return &geostream.MultiPoint{}, nil
		case "MULTILINESTRING":
			return &geostream.MultiLine{}, nil
		case "MULTIPOLYGON":
			return &geostream.MultiPolygons{}, nil
		case "GEOMETRYCOLLECTION":
			return &geostream.GeometryBag{}, nil
		}
		return nil, newSyntaxError(tok, "EMPTY is not supported for %s", kw)
	}

	switch kw {
	case "POINT":
		if err := r.expect('('); err != nil {
			return nil, err
		}
		p, err := r.coordinate(dim)
		if err != nil {
			return nil, err
		}
		return &p, r.expect(')')
	case "LINESTRING":
		pts, err := r.coordinates(dim)
		if err != nil {
			return nil, err
		}
		line, err := geostream.NewLine(pts)
		return line, r.invalid(tok, err)
	case "POLYGON":
		return r.polygon(tok, dim)
	case "MULTIPOINT":
		return r.multiPoint(dim)
	case "MULTILINESTRING":
		ml := &geostream.MultiLine{}
		err := r.list(func() error {
			pts, err := r.coordinates(dim)
			if err != nil {
				return err
			}
			line, err := geostream.NewLine(pts)
			if err != nil {
				return r.invalid(tok, err)
			}
			ml.Lines = append(ml.Lines, line)
			return nil
		})
		return ml, err
	case "MULTIPOLYGON":
		mp := &geostream.MultiPolygons{}
		err := r.list(func() error {
			poly, err := r.polygon(tok, dim)
			if err != nil {
				return err
			}
			mp.Polygons = append(mp.Polygons, poly)
			return nil
		})
		return mp, err
	case "GEOMETRYCOLLECTION":
		bag := &geostream.GeometryBag{}
		err := r.list(func() error {
			g, err := r.geometry()
			if err != nil {
				return err
			}
			bag.Geometries = append(bag.Geometries, g)
			return nil
		})
		return bag, err
	}
	return nil, newSyntaxError(tok, "unknown geometry type")
}

// suffixes reads the dimension and EMPTY words that may follow a geometry
// keyword. The first other token is pushed back, so "EMPTY" at the end of one
// geometry never swallows the keyword of the next.
func (r *Reader) suffixes(dim dimension) (dimension, bool, error) {
	for {
		tok, err := r.lex.Next()
		if errors.Is(err, io.EOF) {
			return dim, false, nil
		}
		if err != nil {
			return dim, false, err
		}
		if tok.Type == TokenIdent {
			switch tok.Text {
			case "Z":
				dim.z = true
				continue
			case "M":
				dim.m = true
				continue
			case "ZM", "MZ":
				dim = dimension{z: true, m: true}
				continue
			case "EMPTY":
				return dim, true, nil
			}
		}
		r.lex.Push(tok)
		return dim, false, nil
	}
}

// invalid converts a geometry constraint failure into a syntax error at tok.
func (r *Reader) invalid(tok *Token, err error) error {
	if err == nil {
		return nil
	}
	e := newSyntaxError(tok, "invalid %s", strings.ToLower(tok.Text))
	e.Err = err
	return e
}

// list parses '(' item (',' item)* ')'.
func (r *Reader) list(item func() error) error {
	if err := r.expect('('); err != nil {
		return err
	}
	for {
		if err := item(); err != nil {
			return err
		}
		more, err := r.more()
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

func (r *Reader) coordinates(dim dimension) ([]geostream.Point, error) {
	var pts []geostream.Point
	err := r.list(func() error {
		p, err := r.coordinate(dim)
		if err != nil {
			return err
		}
		pts = append(pts, p)
		return nil
	})
	return pts, err
}

// coordinate reads x y and the extra ordinates implied by dim. Without a
// suffix a third ordinate is taken as elevation and a fourth is discarded.
func (r *Reader) coordinate(dim dimension) (geostream.Point, error) {
	var p geostream.Point
	x, err := r.number()
	if err != nil {
		return p, err
	}
	y, err := r.number()
	if err != nil {
		return p, err
	}
	p.Lon, p.Lat = x.Number, y.Number

	switch {
	case dim.z:
		z, err := r.number()
		if err != nil {
			return p, err
		}
		p.Elev, p.HasElev = z.Number, true
		if dim.m {
			if _, err := r.number(); err != nil {
				return p, err
			}
		}
	case dim.m:
		if _, err := r.number(); err != nil {
			return p, err
		}
	default:
		extra, err := r.optionalNumber()
		if err != nil || extra == nil {
			return p, err
		}
		p.Elev, p.HasElev = extra.Number, true
		if _, err := r.optionalNumber(); err != nil {
			return p, err
		}
	}
	return p, nil
}

// optionalNumber returns the next token if it is a number and pushes it back
// otherwise.
func (r *Reader) optionalNumber() (*Token, error) {
	tok, err := r.next("number, ',' or ')'")
	if err != nil {
		return nil, err
	}
	if tok.Type == TokenNumber {
		return tok, nil
	}
	r.lex.Push(tok)
	return nil, nil
}

func (r *Reader) polygon(kw *Token, dim dimension) (*geostream.Polygon, error) {
	var rings []*geostream.LinearRing
	err := r.list(func() error {
		pts, err := r.coordinates(dim)
		if err != nil {
			return err
		}
		ring, err := geostream.NewLinearRing(pts)
		if err != nil {
			return r.invalid(kw, err)
		}
		rings = append(rings, ring)
		return nil
	})
	if err != nil {
		return nil, err
	}
	poly, err := geostream.NewPolygon(rings[0], rings[1:]...)
	return poly, r.invalid(kw, err)
}

// multiPoint accepts both MULTIPOINT (1 2, 3 4) and MULTIPOINT ((1 2), (3 4)).
func (r *Reader) multiPoint(dim dimension) (*geostream.MultiPoint, error) {
	mp := &geostream.MultiPoint{}
	err := r.list(func() error {
		tok, err := r.next("point")
		if err != nil {
			return err
		}
		wrapped := tok.Is('(')
		if !wrapped {
			r.lex.Push(tok)
		}
		p, err := r.coordinate(dim)
		if err != nil {
			return err
		}
		mp.Points = append(mp.Points, p)
		if wrapped {
			return r.expect(')')
		}
		return nil
	})
	return mp, err
}
