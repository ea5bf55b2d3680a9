package wkt

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/tingold/geostream"
)

const partSeparator = ",\n  "

// Writer encodes geometries as WKT, one per line. Features are written as
// their geometry; schemas, rows and container markers are ignored.
type Writer struct {
	geostream.VisitorBase

	w      *bufio.Writer
	dst    io.Writer
	logger zerolog.Logger
	closed bool
}

// NewWriter returns a writer over w. The writer owns w and closes it on
// Close when it implements io.Closer.
func NewWriter(w io.Writer, opts *Options) *Writer {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Writer{
		w:      bufio.NewWriter(w),
		dst:    w,
		logger: geostream.LoggerOr(opts.Logger),
	}
}

// Write encodes obj if it is a geometry or a feature.
func (w *Writer) Write(obj geostream.Object) error {
	if w.closed {
		return geostream.ErrClosed
	}
	return geostream.Dispatch(w, obj)
}

// VisitGeometry writes g on its own line. A geometry is written in 3D only
// when all of its points carry elevation; otherwise the elevations present
// are dropped.
func (w *Writer) VisitGeometry(g geostream.Geometry) error {
	b, err := appendGeometry(nil, g)
	if err != nil {
		return err
	}
	if dropsElevation(g) {
		w.logger.Debug().Str("type", g.GeometryType().String()).Msg("partial elevation dropped")
	}
	b = append(b, '\n')
	_, err = w.w.Write(b)
	return err
}

// VisitFeature writes the feature's geometry and skips features without one.
func (w *Writer) VisitFeature(f *geostream.Feature) error {
	if f.Geometry == nil {
		w.logger.Debug().Str("feature", f.Name).Msg("skipping feature without geometry")
		return nil
	}
	return w.VisitGeometry(f.Geometry)
}

// Close flushes buffered output and releases the sink once.
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
	return err
}

// Marshal returns the WKT text of g.
func Marshal(g geostream.Geometry) (string, error) {
	b, err := appendGeometry(nil, g)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func appendGeometry(b []byte, g geostream.Geometry) ([]byte, error) {
	if g == nil {
		return b, geostream.ErrNilObject
	}
	if err := checkFinite(g); err != nil {
		return b, err
	}
	z := g.Is3D()
	switch v := g.(type) {
	case *geostream.Point:
		b = appendKeyword(b, "POINT", z)
		b = append(b, '(')
		b = appendPoint(b, v, z)
		b = append(b, ')')
	case *geostream.Line:
		b = appendKeyword(b, "LINESTRING", z)
		b = appendPoints(b, v.Points, z)
	case *geostream.LinearRing:
		b = appendKeyword(b, "POLYGON", z)
		b = append(b, '(')
		b = appendPoints(b, v.Points, z)
		b = append(b, ')')
	case *geostream.Polygon:
		b = appendKeyword(b, "POLYGON", z)
		b = appendPolygon(b, v, z)
	case *geostream.MultiPoint:
		if len(v.Points) == 0 {
			return append(b, "MULTIPOINT EMPTY"...), nil
		}
		b = appendKeyword(b, "MULTIPOINT", z)
		b = appendPoints(b, v.Points, z)
	case *geostream.MultiLine:
		if len(v.Lines) == 0 {
			return append(b, "MULTILINESTRING EMPTY"...), nil
		}
		b = appendKeyword(b, "MULTILINESTRING", z)
		b = append(b, '(')
		for i, l := range v.Lines {
			if i > 0 {
				b = append(b, partSeparator...)
			}
			b = appendPoints(b, l.Points, z)
		}
		b = append(b, ')')
	case *geostream.MultiLinearRings:
		if len(v.Rings) == 0 {
			return append(b, "MULTIPOLYGON EMPTY"...), nil
		}
		b = appendKeyword(b, "MULTIPOLYGON", z)
		b = append(b, '(')
		for i, r := range v.Rings {
			if i > 0 {
				b = append(b, partSeparator...)
			}
			b = append(b, '(')
			b = appendPoints(b, r.Points, z)
			b = append(b, ')')
		}
		b = append(b, ')')
	case *geostream.MultiPolygons:
		if len(v.Polygons) == 0 {
			return append(b, "MULTIPOLYGON EMPTY"...), nil
		}
		b = appendKeyword(b, "MULTIPOLYGON", z)
		b = append(b, '(')
		for i, p := range v.Polygons {
			if i > 0 {
				b = append(b, partSeparator...)
			}
			b = appendPolygon(b, p, z)
		}
		b = append(b, ')')
	case *geostream.GeometryBag:
		if len(v.Geometries) == 0 {
			return append(b, "GEOMETRYCOLLECTION EMPTY"...), nil
		}
		b = append(b, "GEOMETRYCOLLECTION ("...)
		for i, child := range v.Geometries {
			if i > 0 {
				b = append(b, partSeparator...)
			}
			var err error
			if b, err = appendGeometry(b, child); err != nil {
				return b, err
			}
		}
		b = append(b, ')')
	default:
		return b, fmt.Errorf("%w: cannot encode %T", geostream.ErrUnsupported, g)
	}
	return b, nil
}

func appendKeyword(b []byte, kw string, z bool) []byte {
	b = append(b, kw...)
	if z {
		b = append(b, " Z"...)
	}
	return append(b, ' ')
}

func appendPolygon(b []byte, p *geostream.Polygon, z bool) []byte {
	b = append(b, '(')
	b = appendPoints(b, p.Outer.Points, z)
	for _, hole := range p.Inner {
		b = append(b, partSeparator...)
		b = appendPoints(b, hole.Points, z)
	}
	return append(b, ')')
}

func appendPoints(b []byte, pts []geostream.Point, z bool) []byte {
	b = append(b, '(')
	for i := range pts {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = appendPoint(b, &pts[i], z)
	}
	return append(b, ')')
}

func appendPoint(b []byte, p *geostream.Point, z bool) []byte {
	b = appendNumber(b, p.Lon)
	b = append(b, ' ')
	b = appendNumber(b, p.Lat)
	if z {
		b = append(b, ' ')
		b = appendNumber(b, p.Elev)
	}
	return b
}

// appendNumber writes the shortest exact decimal form, keeping a ".0" on
// integral values so 79 is written as 79.0.
func appendNumber(b []byte, v float64) []byte {
	start := len(b)
	b = strconv.AppendFloat(b, v, 'f', -1, 64)
	for _, c := range b[start:] {
		if c == '.' {
			return b
		}
	}
	return append(b, ".0"...)
}

func checkFinite(g geostream.Geometry) error {
	for _, pts := range pointSets(g, nil) {
		for _, p := range pts {
			for _, v := range []float64{p.Lon, p.Lat, p.Elev} {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return fmt.Errorf("%w: non-finite coordinate %v", geostream.ErrInvalidGeometry, p.Coordinate)
				}
			}
		}
	}
	return nil
}

// dropsElevation reports whether some point of g has an elevation that the
// 2D rendering of its part leaves out.
func dropsElevation(g geostream.Geometry) bool {
	if bag, ok := g.(*geostream.GeometryBag); ok {
		for _, child := range bag.Geometries {
			if dropsElevation(child) {
				return true
			}
		}
		return false
	}
	if g.Is3D() {
		return false
	}
	for _, pts := range pointSets(g, nil) {
		for _, p := range pts {
			if p.HasElev {
				return true
			}
		}
	}
	return false
}

func pointSets(g geostream.Geometry, sets [][]geostream.Point) [][]geostream.Point {
	switch v := g.(type) {
	case *geostream.Point:
		sets = append(sets, []geostream.Point{*v})
	case *geostream.Line:
		sets = append(sets, v.Points)
	case *geostream.LinearRing:
		sets = append(sets, v.Points)
	case *geostream.MultiPoint:
		sets = append(sets, v.Points)
	case *geostream.Polygon:
		sets = append(sets, v.Outer.Points)
		for _, r := range v.Inner {
			sets = append(sets, r.Points)
		}
	case *geostream.MultiLine:
		for _, l := range v.Lines {
			sets = append(sets, l.Points)
		}
	case *geostream.MultiLinearRings:
		for _, r := range v.Rings {
			sets = append(sets, r.Points)
		}
	case *geostream.MultiPolygons:
		for _, p := range v.Polygons {
			sets = pointSets(p, sets)
		}
	case *geostream.GeometryBag:
		for _, child := range v.Geometries {
			sets = pointSets(child, sets)
		}
	}
	return sets
}
