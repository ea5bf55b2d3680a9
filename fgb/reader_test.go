package flatgeobuf

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/tingold/geostream"
)

// encode writes objs through a Writer and returns the file bytes.
func encode(t testing.TB, opts *Options, objs ...geostream.Object) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf, opts)
	for _, obj := range objs {
		if err := w.Write(obj); err != nil {
			t.Fatalf("Write(%s): %v", obj.Kind(), err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

func readFeatures(t *testing.T, r *Reader) (*geostream.Schema, []*geostream.Feature) {
	t.Helper()
	var schema *geostream.Schema
	var features []*geostream.Feature
	for {
		obj, err := r.Read()
		if errors.Is(err, io.EOF) {
			return schema, features
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		switch v := obj.(type) {
		case *geostream.Schema:
			schema = v
		case *geostream.Feature:
			features = append(features, v)
		default:
			t.Fatalf("unexpected %s", obj.Kind())
		}
	}
}

func pointSchema(t testing.TB) *geostream.Schema {
	t.Helper()
	s, err := geostream.NewSchemaWithFields("points",
		geostream.MustField("index", geostream.FieldInt),
		geostream.MustField("name", geostream.FieldString),
	)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func pointFeature(t testing.TB, s *geostream.Schema, x, y float64, index int) *geostream.Feature {
	t.Helper()
	f := geostream.NewFeature(s.ID, geostream.NewPoint(x, y))
	if err := f.Put(s.Fields()[0], index); err != nil {
		t.Fatal(err)
	}
	if err := f.Put(s.Fields()[1], "point"); err != nil {
		t.Fatal(err)
	}
	return f
}

func TestNewReaderFromData_Invalid(t *testing.T) {
	if _, err := NewReaderFromData([]byte("not a flatgeobuf"), nil); err == nil {
		t.Error("expected error for invalid data")
	}
}

func TestNewReaderFromData_Empty(t *testing.T) {
	if _, err := NewReaderFromData([]byte{}, nil); !errors.Is(err, ErrInvalidData) {
		t.Errorf("err = %v, want ErrInvalidData", err)
	}
}

func TestNewReader_NonExistent(t *testing.T) {
	if _, err := NewReader(filepath.Join(t.TempDir(), "missing.fgb"), nil); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestRoundTrip_Points(t *testing.T) {
	s := pointSchema(t)
	objs := []geostream.Object{s}
	for i := 0; i < 10; i++ {
		objs = append(objs, pointFeature(t, s, float64(i), float64(i*2), i))
	}

	path := filepath.Join(t.TempDir(), "points.fgb")
	opts := DefaultOptions()
	opts.Name = "test_points"
	if err := os.WriteFile(path, encode(t, opts, objs...), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := NewReader(path, nil)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer func() { _ = r.Close() }()

	h := r.Header()
	if h.Name != "test_points" {
		t.Errorf("expected name 'test_points', got %q", h.Name)
	}
	if h.GeometryType != "Point" {
		t.Errorf("expected geometry type 'Point', got %q", h.GeometryType)
	}
	if h.FeaturesCount != 10 {
		t.Errorf("expected 10 features, got %d", h.FeaturesCount)
	}
	if !h.HasIndex {
		t.Error("expected an index")
	}
	if h.CRS == nil || h.CRS.Code != 4326 {
		t.Errorf("CRS = %+v, want EPSG:4326", h.CRS)
	}

	schema, features := readFeatures(t, r)
	if schema == nil || schema.Name != "test_points" {
		t.Fatalf("schema = %v", schema)
	}
	if f, _ := schema.Field("index"); f == nil || f.Type != geostream.FieldInt {
		t.Errorf("index field = %v", f)
	}
	if len(features) != 10 {
		t.Fatalf("expected 10 features, got %d", len(features))
	}

	seen := make(map[int32]bool)
	for _, f := range features {
		if f.SchemaID != schema.ID {
			t.Errorf("feature schema %q, want %q", f.SchemaID, schema.ID)
		}
		v, _ := f.Value("index")
		i, ok := v.(int32)
		if !ok {
			t.Fatalf("index = %#v, want int32", v)
		}
		seen[i] = true
		want := geostream.NewPoint(float64(i), float64(i*2))
		if !geostream.EqualGeometry(f.Geometry, want, 0) {
			t.Errorf("feature %d geometry = %v, want %v", i, f.Geometry, want)
		}
		if name, _ := f.Value("name"); name != "point" {
			t.Errorf("feature %d name = %v", i, name)
		}
	}
	if len(seen) != 10 {
		t.Errorf("distinct indexes = %d, want 10", len(seen))
	}
}

func TestRoundTrip_Search(t *testing.T) {
	s := pointSchema(t)
	objs := []geostream.Object{s}
	for x := 0; x < 10; x++ {
		for y := 0; y < 10; y++ {
			objs = append(objs, pointFeature(t, s, float64(x), float64(y), x*10+y))
		}
	}
	r, err := NewReaderFromData(encode(t, nil, objs...), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = r.Close() }()

	bounds := orb.Bound{Min: orb.Point{2.5, 2.5}, Max: orb.Point{4.5, 4.5}}
	results, err := r.Search(bounds)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected some results from search")
	}
	for _, f := range results {
		if !bounds.Contains(f.Geometry.ToOrb().(orb.Point)) {
			t.Errorf("result %v outside %v", f.Geometry, bounds)
		}
	}
}

func TestSearch_NoIndex(t *testing.T) {
	opts := DefaultOptions()
	opts.IncludeIndex = false
	data := encode(t, opts, geostream.NewFeature("", geostream.NewPoint(1, 2)))

	r, err := NewReaderFromData(data, nil)
	if err != nil {
		t.Fatalf("NewReaderFromData failed: %v", err)
	}
	defer func() { _ = r.Close() }()

	if r.Header().HasIndex {
		t.Error("expected no index")
	}
	if _, err := r.Search(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}); !errors.Is(err, ErrNoIndex) {
		t.Errorf("expected ErrNoIndex, got %v", err)
	}
	if obj, err := r.Read(); err != nil || obj.Kind() != geostream.KindSchema {
		t.Fatalf("first Read = %v, %v; want the schema", obj, err)
	}
	if _, err := r.Read(); !errors.Is(err, ErrNoIndex) {
		t.Errorf("expected ErrNoIndex, got %v", err)
	}
}

func TestRoundTrip_Geometries(t *testing.T) {
	ring := func(pts ...float64) *geostream.LinearRing {
		var ps []geostream.Point
		for i := 0; i+1 < len(pts); i += 2 {
			ps = append(ps, *geostream.NewPoint(pts[i], pts[i+1]))
		}
		r, err := geostream.NewLinearRing(ps)
		if err != nil {
			t.Fatal(err)
		}
		return r
	}
	line := func(pts ...float64) *geostream.Line {
		var ps []geostream.Point
		for i := 0; i+1 < len(pts); i += 2 {
			ps = append(ps, *geostream.NewPoint(pts[i], pts[i+1]))
		}
		l, err := geostream.NewLine(ps)
		if err != nil {
			t.Fatal(err)
		}
		return l
	}
	outer := ring(0, 0, 10, 0, 10, 10, 0, 10, 0, 0)
	hole := ring(2, 2, 4, 2, 4, 4, 2, 2)
	withHole, _ := geostream.NewPolygon(outer, hole)
	single, _ := geostream.NewPolygon(outer)

	tests := []struct {
		name string
		in   geostream.Geometry
		want geostream.Geometry
	}{
		{"point", geostream.NewPoint(79, -35.2), geostream.NewPoint(79, -35.2)},
		{"line", line(0, 0, 1, 1, 2, 0), line(0, 0, 1, 1, 2, 0)},
		{"polygon with hole", withHole, withHole},
		{"ring as polygon", outer, single},
		{"multipoint", &geostream.MultiPoint{Points: []geostream.Point{*geostream.NewPoint(1, 2), *geostream.NewPoint(3, 4)}},
			&geostream.MultiPoint{Points: []geostream.Point{*geostream.NewPoint(1, 2), *geostream.NewPoint(3, 4)}}},
		{"multiline", &geostream.MultiLine{Lines: []*geostream.Line{line(0, 0, 1, 1), line(5, 5, 6, 6, 7, 5)}},
			&geostream.MultiLine{Lines: []*geostream.Line{line(0, 0, 1, 1), line(5, 5, 6, 6, 7, 5)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewReaderFromData(encode(t, nil, geostream.NewFeature("", tt.in)), nil)
			if err != nil {
				t.Fatal(err)
			}
			defer func() { _ = r.Close() }()
			_, features := readFeatures(t, r)
			if len(features) != 1 {
				t.Fatalf("got %d features, want 1", len(features))
			}
			if got := features[0].Geometry; !geostream.EqualGeometry(got, tt.want, 1e-12) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRoundTrip_FieldTypes(t *testing.T) {
	s, err := geostream.NewSchemaWithFields("typed",
		geostream.MustField("s", geostream.FieldString),
		geostream.MustField("short", geostream.FieldShort),
		geostream.MustField("int", geostream.FieldInt),
		geostream.MustField("long", geostream.FieldLong),
		geostream.MustField("double", geostream.FieldDouble),
		geostream.MustField("float", geostream.FieldFloat),
		geostream.MustField("date", geostream.FieldDate),
		geostream.MustField("bool", geostream.FieldBool),
		geostream.MustField("empty", geostream.FieldString),
	)
	if err != nil {
		t.Fatal(err)
	}
	values := map[string]any{
		"s":      "héllo",
		"short":  int16(-7),
		"int":    int32(70000),
		"long":   int64(1) << 40,
		"double": 0.125,
		"float":  float32(1.5),
		"date":   time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC),
		"bool":   true,
	}
	f := geostream.NewFeature(s.ID, geostream.NewPoint(1, 1))
	for _, fld := range s.Fields() {
		if err := f.Put(fld, values[fld.Name]); err != nil {
			t.Fatal(err)
		}
	}

	r, err := NewReaderFromData(encode(t, nil, s, f), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = r.Close() }()
	got, features := readFeatures(t, r)
	if len(features) != 1 {
		t.Fatalf("got %d features", len(features))
	}
	for _, fld := range s.Fields() {
		gf, ok := got.Field(fld.Name)
		if !ok || gf.Type != fld.Type {
			t.Errorf("field %s = %v, want type %s", fld.Name, gf, fld.Type)
		}
	}
	for name, want := range values {
		v, _ := features[0].Value(name)
		if want, ok := want.(time.Time); ok {
			if d, ok := v.(time.Time); !ok || !d.Equal(want) {
				t.Errorf("%s = %#v, want %v", name, v, want)
			}
			continue
		}
		if v != want {
			t.Errorf("%s = %#v, want %#v", name, v, want)
		}
	}
	if v, _ := features[0].Value("empty"); v != nil {
		t.Errorf("empty = %#v, want nil", v)
	}
}
