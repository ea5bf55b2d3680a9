package flatgeobuf

import (
	"fmt"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/tingold/geostream"
)

// geometryType returns the FlatGeobuf type a geometry is stored as. Rings
// are stored as single-ring polygons.
func geometryType(g geostream.Geometry) flattypes.GeometryType {
	switch g.(type) {
	case *geostream.Point:
		return flattypes.GeometryTypePoint
	case *geostream.MultiPoint:
		return flattypes.GeometryTypeMultiPoint
	case *geostream.Line:
		return flattypes.GeometryTypeLineString
	case *geostream.MultiLine:
		return flattypes.GeometryTypeMultiLineString
	case *geostream.LinearRing, *geostream.Polygon:
		return flattypes.GeometryTypePolygon
	case *geostream.MultiLinearRings, *geostream.MultiPolygons:
		return flattypes.GeometryTypeMultiPolygon
	case *geostream.GeometryBag:
		return flattypes.GeometryTypeGeometryCollection
	default:
		return flattypes.GeometryTypeUnknown
	}
}

// geometryToFGB builds the FlatGeobuf form of g, or nil for an unsupported
// geometry.
func geometryToFGB(g geostream.Geometry, builder *flatbuffers.Builder) *writer.Geometry {
	if g == nil {
		return nil
	}

	fg := writer.NewGeometry(builder)

	switch v := g.(type) {
	case *geostream.Point:
		fg.SetType(flattypes.GeometryTypePoint)
		fg.SetXY([]float64{v.Lon, v.Lat})

	case *geostream.MultiPoint:
		fg.SetType(flattypes.GeometryTypeMultiPoint)
		fg.SetXY(pointsToXY(nil, v.Points))

	case *geostream.Line:
		fg.SetType(flattypes.GeometryTypeLineString)
		fg.SetXY(pointsToXY(nil, v.Points))

	case *geostream.MultiLine:
		fg.SetType(flattypes.GeometryTypeMultiLineString)
		parts := make([][]geostream.Point, len(v.Lines))
		for i, l := range v.Lines {
			parts[i] = l.Points
		}
		xy, ends := partsToXYEnds(parts)
		fg.SetXY(xy)
		fg.SetEnds(ends)

	case *geostream.LinearRing:
		fg.SetType(flattypes.GeometryTypePolygon)
		xy, ends := partsToXYEnds([][]geostream.Point{v.Points})
		fg.SetXY(xy)
		fg.SetEnds(ends)

	case *geostream.Polygon:
		fg.SetType(flattypes.GeometryTypePolygon)
		xy, ends := partsToXYEnds(polygonRings(v))
		fg.SetXY(xy)
		fg.SetEnds(ends)

	case *geostream.MultiLinearRings:
		fg.SetType(flattypes.GeometryTypeMultiPolygon)
		parts := make([]writer.Geometry, 0, len(v.Rings))
		for _, ring := range v.Rings {
			parts = append(parts, *polygonPart(builder, [][]geostream.Point{ring.Points}))
		}
		fg.SetParts(parts)

	case *geostream.MultiPolygons:
		fg.SetType(flattypes.GeometryTypeMultiPolygon)
		parts := make([]writer.Geometry, 0, len(v.Polygons))
		for _, poly := range v.Polygons {
			parts = append(parts, *polygonPart(builder, polygonRings(poly)))
		}
		fg.SetParts(parts)

	case *geostream.GeometryBag:
		fg.SetType(flattypes.GeometryTypeGeometryCollection)
		parts := make([]writer.Geometry, 0, len(v.Geometries))
		for _, child := range v.Geometries {
			if cg := geometryToFGB(child, builder); cg != nil {
				parts = append(parts, *cg)
			}
		}
		fg.SetParts(parts)

	default:
		return nil
	}

	return fg
}

func polygonPart(builder *flatbuffers.Builder, rings [][]geostream.Point) *writer.Geometry {
	pg := writer.NewGeometry(builder)
	pg.SetType(flattypes.GeometryTypePolygon)
	xy, ends := partsToXYEnds(rings)
	pg.SetXY(xy)
	pg.SetEnds(ends)
	return pg
}

func polygonRings(p *geostream.Polygon) [][]geostream.Point {
	rings := make([][]geostream.Point, 0, 1+len(p.Inner))
	rings = append(rings, p.Outer.Points)
	for _, r := range p.Inner {
		rings = append(rings, r.Points)
	}
	return rings
}

func pointsToXY(xy []float64, pts []geostream.Point) []float64 {
	if xy == nil {
		xy = make([]float64, 0, len(pts)*2)
	}
	for _, p := range pts {
		xy = append(xy, p.Lon, p.Lat)
	}
	return xy
}

// partsToXYEnds flattens parts into one coordinate array with cumulative
// end offsets, counted in points.
func partsToXYEnds(parts [][]geostream.Point) ([]float64, []uint32) {
	total := 0
	for _, p := range parts {
		total += len(p)
	}

	xy := make([]float64, 0, total*2)
	ends := make([]uint32, 0, len(parts))

	cumulative := uint32(0)
	for _, p := range parts {
		xy = pointsToXY(xy, p)
		cumulative += uint32(len(p))
		ends = append(ends, cumulative)
	}

	return xy, ends
}

// geometryFromFGB converts a stored geometry. Malformed rings and
// unsupported types are errors wrapping ErrInvalidData or ErrUnsupportedType.
func geometryFromFGB(fg *flattypes.Geometry, declared flattypes.GeometryType) (geostream.Geometry, error) {
	if fg == nil {
		return nil, nil
	}

	t := fg.Type()
	if t == flattypes.GeometryTypeUnknown {
		t = declared
	}

	switch t {
	case flattypes.GeometryTypePoint:
		pts := pointsFromXY(fg, 0, fg.XyLength()/2)
		if len(pts) == 0 {
			return nil, fmt.Errorf("%w: point without coordinates", ErrInvalidData)
		}
		return &pts[0], nil

	case flattypes.GeometryTypeMultiPoint:
		return &geostream.MultiPoint{Points: pointsFromXY(fg, 0, fg.XyLength()/2)}, nil

	case flattypes.GeometryTypeLineString:
		return lineFromXY(fg, 0, fg.XyLength()/2)

	case flattypes.GeometryTypeMultiLineString:
		ml := &geostream.MultiLine{}
		for _, span := range spans(fg) {
			l, err := lineFromXY(fg, span[0], span[1])
			if err != nil {
				return nil, err
			}
			ml.Lines = append(ml.Lines, l)
		}
		return ml, nil

	case flattypes.GeometryTypePolygon:
		return polygonFromXYEnds(fg)

	case flattypes.GeometryTypeMultiPolygon:
		mp := &geostream.MultiPolygons{}
		n := fg.PartsLength()
		if n == 0 {
			poly, err := polygonFromXYEnds(fg)
			if err != nil {
				return nil, err
			}
			mp.Polygons = append(mp.Polygons, poly)
			return mp, nil
		}
		for i := 0; i < n; i++ {
			var part flattypes.Geometry
			if !fg.Parts(&part, i) {
				continue
			}
			poly, err := polygonFromXYEnds(&part)
			if err != nil {
				return nil, err
			}
			mp.Polygons = append(mp.Polygons, poly)
		}
		return mp, nil

	case flattypes.GeometryTypeGeometryCollection:
		bag := &geostream.GeometryBag{}
		for i := 0; i < fg.PartsLength(); i++ {
			var part flattypes.Geometry
			if !fg.Parts(&part, i) {
				continue
			}
			child, err := geometryFromFGB(&part, flattypes.GeometryTypeUnknown)
			if err != nil {
				return nil, err
			}
			if child != nil {
				bag.Geometries = append(bag.Geometries, child)
			}
		}
		return bag, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, flattypes.EnumNamesGeometryType[t])
}

func pointsFromXY(fg *flattypes.Geometry, start, end int) []geostream.Point {
	if end <= start {
		return nil
	}
	pts := make([]geostream.Point, 0, end-start)
	for i := start; i < end; i++ {
		pts = append(pts, *geostream.NewPoint(fg.Xy(2*i), fg.Xy(2*i+1)))
	}
	return pts
}

// spans returns the [start, end) point ranges of each part. Without ends the
// whole coordinate array is one part.
func spans(fg *flattypes.Geometry) [][2]int {
	n := fg.XyLength() / 2
	if fg.EndsLength() == 0 {
		return [][2]int{{0, n}}
	}
	out := make([][2]int, 0, fg.EndsLength())
	start := 0
	for i := 0; i < fg.EndsLength(); i++ {
		end := int(fg.Ends(i))
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
		start = end
	}
	return out
}

func lineFromXY(fg *flattypes.Geometry, start, end int) (*geostream.Line, error) {
	l, err := geostream.NewLine(pointsFromXY(fg, start, end))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return l, nil
}

func polygonFromXYEnds(fg *flattypes.Geometry) (*geostream.Polygon, error) {
	var rings []*geostream.LinearRing
	for _, span := range spans(fg) {
		ring, err := geostream.NewLinearRing(pointsFromXY(fg, span[0], span[1]))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
		}
		rings = append(rings, ring)
	}
	if len(rings) == 0 {
		return nil, fmt.Errorf("%w: polygon without rings", ErrInvalidData)
	}
	poly, err := geostream.NewPolygon(rings[0], rings[1:]...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return poly, nil
}
