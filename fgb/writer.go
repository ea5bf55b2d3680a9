package flatgeobuf

import (
	"fmt"
	"io"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/rs/zerolog"
	"github.com/tingold/geostream"
)

// Writer buffers features and encodes them as one FlatGeobuf layer on Close.
// Rows without geometry and features with a nil geometry are skipped.
type Writer struct {
	geostream.VisitorBase

	dst      io.Writer
	opts     Options
	guard    geostream.SchemaGuard
	schema   *geostream.Schema
	features []*geostream.Feature
	logger   zerolog.Logger
	closed   bool
}

// NewWriter returns a writer over w. The writer owns w and closes it on
// Close when it implements io.Closer.
func NewWriter(w io.Writer, opts *Options) *Writer {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Writer{
		dst:    w,
		opts:   *opts,
		guard:  geostream.SchemaGuard{AllowSchemaless: true},
		logger: geostream.LoggerOr(opts.Logger),
	}
}

// Write buffers obj until Close, which needs every feature to build the index.
func (w *Writer) Write(obj geostream.Object) error {
	if w.closed {
		return geostream.ErrClosed
	}
	return geostream.Dispatch(w, obj)
}

// VisitSchema sets the columns. Repeating the same schema is allowed.
func (w *Writer) VisitSchema(s *geostream.Schema) error {
	if w.schema != nil && w.schema.ID != s.ID {
		return fmt.Errorf("%w: got %s after %s", ErrMultipleSchemas, s.ID, w.schema.ID)
	}
	if err := w.guard.AddSchema(s); err != nil {
		return err
	}
	w.schema = s
	return nil
}

// VisitRow checks r and skips it: FlatGeobuf has no geometry-less records.
func (w *Writer) VisitRow(r *geostream.Row) error {
	if _, err := w.guard.CheckRow(r); err != nil {
		return err
	}
	w.logger.Debug().Str("schema", r.SchemaID).Msg("row without geometry skipped")
	return nil
}

// VisitFeature buffers f. Features without geometry are skipped.
func (w *Writer) VisitFeature(f *geostream.Feature) error {
	if _, err := w.guard.CheckRow(&f.Row); err != nil {
		return err
	}
	if f.Geometry == nil {
		w.logger.Debug().Str("name", f.Name).Msg("feature without geometry skipped")
		return nil
	}
	if geometryType(f.Geometry) == flattypes.GeometryTypeUnknown {
		return fmt.Errorf("%w: %T", ErrUnsupportedType, f.Geometry)
	}
	if f.Geometry.Is3D() {
		w.logger.Trace().Str("name", f.Name).Msg("elevation dropped")
	}
	w.features = append(w.features, f)
	return nil
}

// VisitGeometry stores a bare geometry as a feature without properties.
func (w *Writer) VisitGeometry(g geostream.Geometry) error {
	return w.VisitFeature(geostream.NewFeature("", g))
}

// Close encodes the buffered features and releases the sink.
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
	if len(w.features) == 0 {
		return ErrNoFeatures
	}

	geomType := geometryType(w.features[0].Geometry)
	for _, f := range w.features[1:] {
		if geometryType(f.Geometry) != geomType {
			geomType = flattypes.GeometryTypeUnknown
			break
		}
	}

	schema := w.schema
	if schema == nil {
		schema = inferSchema(w.features)
	}
	columns := make([]column, 0, schema.Len())
	for _, f := range schema.Fields() {
		columns = append(columns, column{field: f, ctype: columnType(f.Type)})
	}

	props := make([][]byte, len(w.features))
	if len(columns) > 0 {
		for i, f := range w.features {
			b, err := encodeProperties(&f.Row, columns)
			if err != nil {
				return fmt.Errorf("feature %d: %w", i+1, err)
			}
			props[i] = b
		}
	}

	gen := &featureGenerator{features: w.features, props: props}
	if err := writeWithGenerator(w.dst, gen, geomType, columns, &w.opts); err != nil {
		return err
	}
	w.logger.Debug().
		Int("features", len(w.features)).
		Int("columns", len(columns)).
		Str("geometryType", flattypes.EnumNamesGeometryType[geomType]).
		Bool("index", w.opts.IncludeIndex).
		Msg("wrote flatgeobuf")
	return nil
}

// writeWithGenerator handles the common writing logic.
func writeWithGenerator(
	w io.Writer,
	gen writer.FeatureGenerator,
	geomType flattypes.GeometryType,
	columns []column,
	opts *Options,
) error {
	builder := flatbuffers.NewBuilder(4096)

	header := writer.NewHeader(builder)
	header.SetGeometryType(geomType)

	if opts.Name != "" {
		header.SetName(opts.Name)
	}
	if opts.Description != "" {
		header.SetDescription(opts.Description)
	}

	if len(columns) > 0 {
		cols := make([]*writer.Column, 0, len(columns))
		for _, c := range columns {
			col := writer.NewColumn(builder)
			col.SetName(c.field.Name)
			col.SetTitle(c.field.Name) // Set title to match name for JS library compatibility
			col.SetType(c.ctype)
			col.SetNullable(true)
			cols = append(cols, col)
		}
		header.SetColumns(cols)
	}

	if opts.CRS != nil {
		crs := writer.NewCrs(builder)
		crs.SetOrg("EPSG")
		if opts.CRS.Code > 0 {
			crs.SetCode(int32(opts.CRS.Code))
		}
		if opts.CRS.Name != "" {
			crs.SetName(opts.CRS.Name)
		}
		if opts.CRS.Description != "" {
			crs.SetDescription(opts.CRS.Description)
		}
		// WKT can be stored in description if needed
		if opts.CRS.WKT != "" && opts.CRS.Description == "" {
			crs.SetDescription(opts.CRS.WKT)
		}
		header.SetCrs(crs)
	}

	fgbWriter := writer.NewWriter(header, opts.IncludeIndex, gen, nil)

	_, err := fgbWriter.Write(w)
	return err
}

// featureGenerator yields the buffered features with their encoded
// properties.
type featureGenerator struct {
	features []*geostream.Feature
	props    [][]byte
	index    int
}

func (g *featureGenerator) Generate() *writer.Feature {
	for g.index < len(g.features) {
		f, props := g.features[g.index], g.props[g.index]
		g.index++

		builder := flatbuffers.NewBuilder(1024)
		fgbGeom := geometryToFGB(f.Geometry, builder)
		if fgbGeom == nil {
			continue
		}

		feature := writer.NewFeature(builder)
		feature.SetGeometry(fgbGeom)
		if len(props) > 0 {
			feature.SetProperties(props)
		}
		return feature
	}
	return nil
}
