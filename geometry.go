package geostream

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Coordinate is a WGS-84 position. No datum transformation is ever applied.
type Coordinate struct {
	Lon     float64 // longitude in degrees
	Lat     float64 // latitude in degrees
	Elev    float64 // elevation in meters, meaningful only when HasElev is set
	HasElev bool
}

func (c Coordinate) String() string {
	if c.HasElev {
		return fmt.Sprintf("(%g, %g, %g)", c.Lon, c.Lat, c.Elev)
	}
	return fmt.Sprintf("(%g, %g)", c.Lon, c.Lat)
}

// GeometryType identifies the concrete kind of a Geometry.
type GeometryType int

const (
	GeometryPoint GeometryType = iota + 1
	GeometryLine
	GeometryLinearRing
	GeometryPolygon
	GeometryMultiPoint
	GeometryMultiLine
	GeometryMultiLinearRings
	GeometryMultiPolygons
	GeometryCollection
)

var geometryTypeNames = map[GeometryType]string{
	GeometryPoint:            "Point",
	GeometryLine:             "Line",
	GeometryLinearRing:       "LinearRing",
	GeometryPolygon:          "Polygon",
	GeometryMultiPoint:       "MultiPoint",
	GeometryMultiLine:        "MultiLine",
	GeometryMultiLinearRings: "MultiLinearRings",
	GeometryMultiPolygons:    "MultiPolygons",
	GeometryCollection:       "GeometryBag",
}

func (t GeometryType) String() string {
	if name, ok := geometryTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("GeometryType(%d)", int(t))
}

// Geometry is implemented by every geometry in this package. The set is
// closed: codecs switch over the concrete types.
type Geometry interface {
	Object
	GeometryType() GeometryType
	NumPoints() int
	// Is3D reports whether every point of the geometry carries an elevation.
	Is3D() bool
	Bound() orb.Bound
	// ToOrb converts to the equivalent orb geometry. Elevations are dropped.
	ToOrb() orb.Geometry
	isGeometry()
}

// Point is a single position.
type Point struct {
	Coordinate
}

// NewPoint returns a 2D point.
func NewPoint(lon, lat float64) *Point {
	return &Point{Coordinate{Lon: lon, Lat: lat}}
}

// NewPoint3D returns a point with an elevation.
func NewPoint3D(lon, lat, elev float64) *Point {
	return &Point{Coordinate{Lon: lon, Lat: lat, Elev: elev, HasElev: true}}
}

func (p *Point) Kind() Kind                 { return KindGeometry }
func (p *Point) GeometryType() GeometryType { return GeometryPoint }
func (p *Point) NumPoints() int             { return 1 }
func (p *Point) Is3D() bool                 { return p.HasElev }
func (p *Point) Bound() orb.Bound           { return p.ToOrb().Bound() }
func (p *Point) ToOrb() orb.Geometry        { return orb.Point{p.Lon, p.Lat} }
func (p *Point) isGeometry()                {}

// Line is an ordered list of at least two points.
type Line struct {
	Points []Point
}

// NewLine validates the point count and returns a Line.
func NewLine(pts []Point) (*Line, error) {
	if len(pts) < 2 {
		return nil, fmt.Errorf("%w: line must contain at least 2 points, got %d", ErrInvalidGeometry, len(pts))
	}
	return &Line{Points: pts}, nil
}

func (l *Line) Kind() Kind                 { return KindGeometry }
func (l *Line) GeometryType() GeometryType { return GeometryLine }
func (l *Line) NumPoints() int             { return len(l.Points) }
func (l *Line) Is3D() bool                 { return pointsAre3D(l.Points) }
func (l *Line) Bound() orb.Bound           { return l.ToOrb().Bound() }
func (l *Line) ToOrb() orb.Geometry        { return orb.LineString(orbPoints(l.Points)) }
func (l *Line) isGeometry()                {}

// LinearRing is a closed line: at least four points, first equal to last.
type LinearRing struct {
	Points []Point
}

// NewLinearRing validates closure and returns a LinearRing.
func NewLinearRing(pts []Point) (*LinearRing, error) {
	if len(pts) < 4 {
		return nil, fmt.Errorf("%w: linear ring must contain at least 4 points, got %d", ErrInvalidGeometry, len(pts))
	}
	first, last := pts[0].Coordinate, pts[len(pts)-1].Coordinate
	if first.Lon != last.Lon || first.Lat != last.Lat {
		return nil, fmt.Errorf("%w: linear ring is not closed, first %v last %v", ErrInvalidGeometry, first, last)
	}
	return &LinearRing{Points: pts}, nil
}

func (r *LinearRing) Kind() Kind                 { return KindGeometry }
func (r *LinearRing) GeometryType() GeometryType { return GeometryLinearRing }
func (r *LinearRing) NumPoints() int             { return len(r.Points) }
func (r *LinearRing) Is3D() bool                 { return pointsAre3D(r.Points) }
func (r *LinearRing) Bound() orb.Bound           { return r.ToOrb().Bound() }
func (r *LinearRing) ToOrb() orb.Geometry        { return orb.Ring(orbPoints(r.Points)) }
func (r *LinearRing) isGeometry()                {}

// Polygon is an outer ring and zero or more holes. The outer ring always
// comes first in every encoding.
type Polygon struct {
	Outer *LinearRing
	Inner []*LinearRing
}

// NewPolygon returns a Polygon; outer must not be nil.
func NewPolygon(outer *LinearRing, inner ...*LinearRing) (*Polygon, error) {
	if outer == nil {
		return nil, fmt.Errorf("%w: polygon has no outer ring", ErrInvalidGeometry)
	}
	for i, ring := range inner {
		if ring == nil {
			return nil, fmt.Errorf("%w: polygon inner ring %d is nil", ErrInvalidGeometry, i)
		}
	}
	return &Polygon{Outer: outer, Inner: inner}, nil
}

func (p *Polygon) Kind() Kind                 { return KindGeometry }
func (p *Polygon) GeometryType() GeometryType { return GeometryPolygon }
func (p *Polygon) isGeometry()                {}

func (p *Polygon) NumPoints() int {
	n := p.Outer.NumPoints()
	for _, ring := range p.Inner {
		n += ring.NumPoints()
	}
	return n
}

func (p *Polygon) Is3D() bool {
	if !p.Outer.Is3D() {
		return false
	}
	for _, ring := range p.Inner {
		if !ring.Is3D() {
			return false
		}
	}
	return true
}

func (p *Polygon) Bound() orb.Bound { return p.ToOrb().Bound() }

func (p *Polygon) ToOrb() orb.Geometry { return p.orbPolygon() }

func (p *Polygon) orbPolygon() orb.Polygon {
	poly := make(orb.Polygon, 0, len(p.Inner)+1)
	poly = append(poly, orb.Ring(orbPoints(p.Outer.Points)))
	for _, ring := range p.Inner {
		poly = append(poly, orb.Ring(orbPoints(ring.Points)))
	}
	return poly
}

// MultiPoint is an unordered set of points; it may be empty.
type MultiPoint struct {
	Points []Point
}

func (m *MultiPoint) Kind() Kind                 { return KindGeometry }
func (m *MultiPoint) GeometryType() GeometryType { return GeometryMultiPoint }
func (m *MultiPoint) NumPoints() int             { return len(m.Points) }
func (m *MultiPoint) Is3D() bool                 { return pointsAre3D(m.Points) }
func (m *MultiPoint) Bound() orb.Bound           { return m.ToOrb().Bound() }
func (m *MultiPoint) ToOrb() orb.Geometry        { return orb.MultiPoint(orbPoints(m.Points)) }
func (m *MultiPoint) isGeometry()                {}

// MultiLine is a list of lines.
type MultiLine struct {
	Lines []*Line
}

func (m *MultiLine) Kind() Kind                 { return KindGeometry }
func (m *MultiLine) GeometryType() GeometryType { return GeometryMultiLine }
func (m *MultiLine) isGeometry()                {}

func (m *MultiLine) NumPoints() int {
	n := 0
	for _, l := range m.Lines {
		n += l.NumPoints()
	}
	return n
}

func (m *MultiLine) Is3D() bool {
	if len(m.Lines) == 0 {
		return false
	}
	for _, l := range m.Lines {
		if !l.Is3D() {
			return false
		}
	}
	return true
}

func (m *MultiLine) Bound() orb.Bound { return m.ToOrb().Bound() }

func (m *MultiLine) ToOrb() orb.Geometry {
	mls := make(orb.MultiLineString, 0, len(m.Lines))
	for _, l := range m.Lines {
		mls = append(mls, orb.LineString(orbPoints(l.Points)))
	}
	return mls
}

// MultiLinearRings is a list of rings, each one treated as a polygon without
// holes.
type MultiLinearRings struct {
	Rings []*LinearRing
}

func (m *MultiLinearRings) Kind() Kind                 { return KindGeometry }
func (m *MultiLinearRings) GeometryType() GeometryType { return GeometryMultiLinearRings }
func (m *MultiLinearRings) isGeometry()                {}

func (m *MultiLinearRings) NumPoints() int {
	n := 0
	for _, r := range m.Rings {
		n += r.NumPoints()
	}
	return n
}

func (m *MultiLinearRings) Is3D() bool {
	if len(m.Rings) == 0 {
		return false
	}
	for _, r := range m.Rings {
		if !r.Is3D() {
			return false
		}
	}
	return true
}

func (m *MultiLinearRings) Bound() orb.Bound { return m.ToOrb().Bound() }

func (m *MultiLinearRings) ToOrb() orb.Geometry {
	mp := make(orb.MultiPolygon, 0, len(m.Rings))
	for _, r := range m.Rings {
		mp = append(mp, orb.Polygon{orb.Ring(orbPoints(r.Points))})
	}
	return mp
}

// MultiPolygons is a list of polygons.
type MultiPolygons struct {
	Polygons []*Polygon
}

func (m *MultiPolygons) Kind() Kind                 { return KindGeometry }
func (m *MultiPolygons) GeometryType() GeometryType { return GeometryMultiPolygons }
func (m *MultiPolygons) isGeometry()                {}

func (m *MultiPolygons) NumPoints() int {
	n := 0
	for _, p := range m.Polygons {
		n += p.NumPoints()
	}
	return n
}

func (m *MultiPolygons) Is3D() bool {
	if len(m.Polygons) == 0 {
		return false
	}
	for _, p := range m.Polygons {
		if !p.Is3D() {
			return false
		}
	}
	return true
}

func (m *MultiPolygons) Bound() orb.Bound { return m.ToOrb().Bound() }

func (m *MultiPolygons) ToOrb() orb.Geometry {
	mp := make(orb.MultiPolygon, 0, len(m.Polygons))
	for _, p := range m.Polygons {
		mp = append(mp, p.orbPolygon())
	}
	return mp
}

// GeometryBag is a heterogeneous, ordered and possibly empty collection.
type GeometryBag struct {
	Geometries []Geometry
}

func (b *GeometryBag) Kind() Kind                 { return KindGeometry }
func (b *GeometryBag) GeometryType() GeometryType { return GeometryCollection }
func (b *GeometryBag) isGeometry()                {}

func (b *GeometryBag) NumPoints() int {
	n := 0
	for _, g := range b.Geometries {
		n += g.NumPoints()
	}
	return n
}

func (b *GeometryBag) Is3D() bool {
	if len(b.Geometries) == 0 {
		return false
	}
	for _, g := range b.Geometries {
		if !g.Is3D() {
			return false
		}
	}
	return true
}

func (b *GeometryBag) Bound() orb.Bound { return b.ToOrb().Bound() }

func (b *GeometryBag) ToOrb() orb.Geometry {
	coll := make(orb.Collection, 0, len(b.Geometries))
	for _, g := range b.Geometries {
		coll = append(coll, g.ToOrb())
	}
	return coll
}

// FromOrb converts an orb geometry into the equivalent Geometry. An orb.Bound
// becomes a rectangular Polygon.
func FromOrb(g orb.Geometry) (Geometry, error) {
	switch v := g.(type) {
	case nil:
		return nil, ErrNilObject
	case orb.Point:
		return NewPoint(v[0], v[1]), nil
	case orb.MultiPoint:
		return &MultiPoint{Points: pointsFromOrb(v)}, nil
	case orb.LineString:
		return NewLine(pointsFromOrb(v))
	case orb.MultiLineString:
		ml := &MultiLine{Lines: make([]*Line, 0, len(v))}
		for _, ls := range v {
			line, err := NewLine(pointsFromOrb(ls))
			if err != nil {
				return nil, err
			}
			ml.Lines = append(ml.Lines, line)
		}
		return ml, nil
	case orb.Ring:
		return NewLinearRing(pointsFromOrb(v))
	case orb.Polygon:
		return polygonFromOrb(v)
	case orb.MultiPolygon:
		mp := &MultiPolygons{Polygons: make([]*Polygon, 0, len(v))}
		for _, poly := range v {
			p, err := polygonFromOrb(poly)
			if err != nil {
				return nil, err
			}
			mp.Polygons = append(mp.Polygons, p)
		}
		return mp, nil
	case orb.Collection:
		bag := &GeometryBag{Geometries: make([]Geometry, 0, len(v))}
		for _, child := range v {
			part, err := FromOrb(child)
			if err != nil {
				return nil, err
			}
			bag.Geometries = append(bag.Geometries, part)
		}
		return bag, nil
	case orb.Bound:
		return polygonFromOrb(v.ToPolygon())
	default:
		return nil, fmt.Errorf("%w: unsupported orb geometry %T", ErrInvalidGeometry, g)
	}
}

func polygonFromOrb(poly orb.Polygon) (*Polygon, error) {
	if len(poly) == 0 {
		return nil, fmt.Errorf("%w: polygon has no outer ring", ErrInvalidGeometry)
	}
	rings := make([]*LinearRing, 0, len(poly))
	for _, r := range poly {
		ring, err := NewLinearRing(pointsFromOrb(r))
		if err != nil {
			return nil, err
		}
		rings = append(rings, ring)
	}
	return NewPolygon(rings[0], rings[1:]...)
}

// EqualGeometry reports whether a and b have the same structure and all
// coordinates agree within tol.
func EqualGeometry(a, b Geometry, tol float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.GeometryType() != b.GeometryType() {
		return false
	}
	switch x := a.(type) {
	case *Point:
		return coordsEqual(x.Coordinate, b.(*Point).Coordinate, tol)
	case *Line:
		return pointsEqual(x.Points, b.(*Line).Points, tol)
	case *LinearRing:
		return pointsEqual(x.Points, b.(*LinearRing).Points, tol)
	case *MultiPoint:
		return pointsEqual(x.Points, b.(*MultiPoint).Points, tol)
	case *Polygon:
		return polygonsEqual(x, b.(*Polygon), tol)
	case *MultiLine:
		y := b.(*MultiLine)
		if len(x.Lines) != len(y.Lines) {
			return false
		}
		for i := range x.Lines {
			if !pointsEqual(x.Lines[i].Points, y.Lines[i].Points, tol) {
				return false
			}
		}
		return true
	case *MultiLinearRings:
		y := b.(*MultiLinearRings)
		if len(x.Rings) != len(y.Rings) {
			return false
		}
		for i := range x.Rings {
			if !pointsEqual(x.Rings[i].Points, y.Rings[i].Points, tol) {
				return false
			}
		}
		return true
	case *MultiPolygons:
		y := b.(*MultiPolygons)
		if len(x.Polygons) != len(y.Polygons) {
			return false
		}
		for i := range x.Polygons {
			if !polygonsEqual(x.Polygons[i], y.Polygons[i], tol) {
				return false
			}
		}
		return true
	case *GeometryBag:
		y := b.(*GeometryBag)
		if len(x.Geometries) != len(y.Geometries) {
			return false
		}
		for i := range x.Geometries {
			if !EqualGeometry(x.Geometries[i], y.Geometries[i], tol) {
				return false
			}
		}
		return true
	}
	return false
}

func polygonsEqual(a, b *Polygon, tol float64) bool {
	if !pointsEqual(a.Outer.Points, b.Outer.Points, tol) || len(a.Inner) != len(b.Inner) {
		return false
	}
	for i := range a.Inner {
		if !pointsEqual(a.Inner[i].Points, b.Inner[i].Points, tol) {
			return false
		}
	}
	return true
}

func pointsEqual(a, b []Point, tol float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !coordsEqual(a[i].Coordinate, b[i].Coordinate, tol) {
			return false
		}
	}
	return true
}

func coordsEqual(a, b Coordinate, tol float64) bool {
	if math.Abs(a.Lon-b.Lon) > tol || math.Abs(a.Lat-b.Lat) > tol || a.HasElev != b.HasElev {
		return false
	}
	return !a.HasElev || math.Abs(a.Elev-b.Elev) <= tol
}

func pointsAre3D(pts []Point) bool {
	if len(pts) == 0 {
		return false
	}
	for _, p := range pts {
		if !p.HasElev {
			return false
		}
	}
	return true
}

func orbPoints(pts []Point) []orb.Point {
	out := make([]orb.Point, 0, len(pts))
	for _, p := range pts {
		out = append(out, orb.Point{p.Lon, p.Lat})
	}
	return out
}

func pointsFromOrb(pts []orb.Point) []Point {
	out := make([]Point, 0, len(pts))
	for _, p := range pts {
		out = append(out, Point{Coordinate{Lon: p[0], Lat: p[1]}})
	}
	return out
}
