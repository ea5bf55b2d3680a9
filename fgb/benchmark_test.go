package flatgeobuf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"testing"

	"github.com/paulmach/orb"
	"github.com/tingold/geostream"
)

// =============================================================================
// Test Data Generators
// =============================================================================

var benchSchema = func() *geostream.Schema {
	s, err := geostream.NewSchemaWithFields("bench",
		geostream.MustField("id", geostream.FieldInt),
		geostream.MustField("name", geostream.FieldString),
		geostream.MustField("value", geostream.FieldDouble),
		geostream.MustField("active", geostream.FieldBool),
		geostream.MustField("category", geostream.FieldString),
	)
	if err != nil {
		panic(err)
	}
	return s
}()

// generateGeometry creates a random point, square or 32-gon within the world bounds.
func generateGeometry(r *rand.Rand, geomType string) geostream.Geometry {
	x := -179 + r.Float64()*358
	y := -89 + r.Float64()*178
	switch geomType {
	case "polygon":
		size := 0.01 + r.Float64()*0.09
		ring, _ := geostream.NewLinearRing([]geostream.Point{
			*geostream.NewPoint(x, y),
			*geostream.NewPoint(x+size, y),
			*geostream.NewPoint(x+size, y+size),
			*geostream.NewPoint(x, y+size),
			*geostream.NewPoint(x, y),
		})
		poly, _ := geostream.NewPolygon(ring)
		return poly
	case "complexpolygon":
		radius := 0.01 + r.Float64()*0.05
		pts := make([]geostream.Point, 0, 33)
		for j := 0; j < 32; j++ {
			angle := 2 * math.Pi * float64(j) / 32
			pts = append(pts, *geostream.NewPoint(x+radius*math.Cos(angle), y+radius*math.Sin(angle)))
		}
		pts = append(pts, pts[0])
		ring, _ := geostream.NewLinearRing(pts)
		poly, _ := geostream.NewPolygon(ring)
		return poly
	default:
		return geostream.NewPoint(x, y)
	}
}

// generateObjects creates the schema followed by n random features.
func generateObjects(r *rand.Rand, n int, geomType string, withProperties bool) []geostream.Object {
	objs := make([]geostream.Object, 0, n+1)
	objs = append(objs, benchSchema)
	fields := benchSchema.Fields()
	for i := 0; i < n; i++ {
		f := geostream.NewFeature(benchSchema.ID, generateGeometry(r, geomType))
		if withProperties {
			f.Put(fields[0], i)
			f.Put(fields[1], fmt.Sprintf("Feature %d", i))
			f.Put(fields[2], r.Float64()*1000)
			f.Put(fields[3], r.Intn(2) == 1)
			f.Put(fields[4], fmt.Sprintf("cat_%d", r.Intn(10)))
		}
		objs = append(objs, f)
	}
	return objs
}

func drain(tb testing.TB, rd *Reader) int {
	n := 0
	for {
		_, err := rd.Read()
		if errors.Is(err, io.EOF) {
			return n
		}
		if err != nil {
			tb.Fatal(err)
		}
		n++
	}
}

func TestSizeComparison(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for _, geomType := range []string{"point", "polygon", "complexpolygon"} {
		objs := generateObjects(r, 1000, geomType, true)
		noIndex := DefaultOptions()
		noIndex.IncludeIndex = false
		plain := encode(t, noIndex, objs...)
		indexed := encode(t, nil, objs...)
		if len(indexed) <= len(plain) {
			t.Errorf("%s: indexed file %d bytes, plain %d", geomType, len(indexed), len(plain))
		}
		t.Logf("%-15s | %-10d | %-10d", geomType, len(plain), len(indexed))
	}
}

// =============================================================================
// Serialization Benchmarks (Write Performance)
// =============================================================================

func BenchmarkSerialize_Points_1000(b *testing.B) {
	benchmarkSerialize(b, "point", 1000, false, false)
}

func BenchmarkSerialize_PointsIdx_1000(b *testing.B) {
	benchmarkSerialize(b, "point", 1000, false, true)
}

func BenchmarkSerialize_PointsProps_1000(b *testing.B) {
	benchmarkSerialize(b, "point", 1000, true, true)
}

func BenchmarkSerialize_ComplexPolygons_1000(b *testing.B) {
	benchmarkSerialize(b, "complexpolygon", 1000, false, true)
}

func benchmarkSerialize(b *testing.B, geomType string, n int, withProps, includeIndex bool) {
	r := rand.New(rand.NewSource(42))
	objs := generateObjects(r, n, geomType, withProps)
	opts := DefaultOptions()
	opts.IncludeIndex = includeIndex

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		encode(b, opts, objs...)
	}
}

// =============================================================================
// Deserialization Benchmarks (Read Performance)
// =============================================================================

func BenchmarkDeserialize_Points_1000(b *testing.B) {
	benchmarkDeserialize(b, "point", 1000, false)
}

func BenchmarkDeserialize_PointsProps_1000(b *testing.B) {
	benchmarkDeserialize(b, "point", 1000, true)
}

func BenchmarkDeserialize_Polygons_1000(b *testing.B) {
	benchmarkDeserialize(b, "polygon", 1000, false)
}

func benchmarkDeserialize(b *testing.B, geomType string, n int, withProps bool) {
	r := rand.New(rand.NewSource(42))
	data := encode(b, nil, generateObjects(r, n, geomType, withProps)...)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		rd, err := NewReaderFromData(bytes.Clone(data), nil)
		if err != nil {
			b.Fatal(err)
		}
		if got := drain(b, rd); got != n+1 {
			b.Fatalf("read %d objects, want %d", got, n+1)
		}
	}
}

// =============================================================================
// Spatial Query Benchmarks
// =============================================================================

func BenchmarkSpatialQuery_Points_10000(b *testing.B) {
	r := rand.New(rand.NewSource(42))
	rd, err := NewReaderFromData(encode(b, nil, generateObjects(r, 10000, "point", false)...), nil)
	if err != nil {
		b.Fatal(err)
	}
	defer func() { _ = rd.Close() }()
	bounds := orb.Bound{Min: orb.Point{-10, -10}, Max: orb.Point{10, 10}}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := rd.Search(bounds); err != nil {
			b.Fatal(err)
		}
	}
}
