package geojson

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	orbjson "github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
	"github.com/tingold/geostream"
)

// Writer collects features into a FeatureCollection written on Close. Rows
// without a geometry are skipped.
type Writer struct {
	geostream.VisitorBase

	dst    io.Writer
	opts   *Options
	guard  geostream.SchemaGuard
	schema *geostream.Schema
	fc     *orbjson.FeatureCollection
	logger zerolog.Logger
	closed bool
}

// NewWriter creates a writer. The writer owns dst and closes it on Close
// when it implements io.Closer.
func NewWriter(dst io.Writer, opts *Options) *Writer {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Writer{
		dst:    dst,
		opts:   opts,
		guard:  geostream.SchemaGuard{AllowSchemaless: true},
		fc:     orbjson.NewFeatureCollection(),
		logger: geostream.LoggerOr(opts.Logger),
	}
}

// Write adds obj to the collection.
func (w *Writer) Write(obj geostream.Object) error {
	if w.closed {
		return geostream.ErrClosed
	}
	return geostream.Dispatch(w, obj)
}

// VisitSchema records s as the collection schema. Repeating it is allowed.
func (w *Writer) VisitSchema(s *geostream.Schema) error {
	if w.schema != nil && w.schema.ID != s.ID {
		return fmt.Errorf("%w: %s after %s", ErrMultipleSchemas, s.ID, w.schema.ID)
	}
	if err := w.guard.AddSchema(s); err != nil {
		return err
	}
	w.schema = s
	return nil
}

// VisitRow checks r and skips it, since a GeoJSON feature needs a geometry.
func (w *Writer) VisitRow(r *geostream.Row) error {
	if _, err := w.guard.CheckRow(r); err != nil {
		return err
	}
	w.logger.Debug().Str("schema", r.SchemaID).Msg("skipping row without geometry")
	return nil
}

// VisitFeature appends f to the collection with its attributes as
// properties. Features without geometry are skipped.
func (w *Writer) VisitFeature(f *geostream.Feature) error {
	if _, err := w.guard.CheckRow(&f.Row); err != nil {
		return err
	}
	if f.Geometry == nil {
		w.logger.Debug().Str("name", f.Name).Msg("skipping feature without geometry")
		return nil
	}
	out := orbjson.NewFeature(f.Geometry.ToOrb())
	if f.Name != "" {
		out.ID = f.Name
	}
	for _, fld := range f.Fields() {
		v, _ := f.Value(fld.Name)
		out.Properties[fld.Name] = propertyValue(v)
	}
	if f.Geometry.Is3D() {
		w.logger.Trace().Str("name", f.Name).Msg("dropping elevation")
	}
	w.fc.Append(out)
	return nil
}

// VisitGeometry appends g as a feature without properties.
func (w *Writer) VisitGeometry(g geostream.Geometry) error {
	return w.VisitFeature(geostream.NewFeature("", g))
}

func propertyValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return v
}

// Close encodes the collection, writes it and closes the sink.
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
	name := w.opts.Name
	if name == "" && w.schema != nil {
		name = w.schema.Name
	}
	if name != "" {
		w.fc.ExtraMembers = orbjson.Properties{NameMember: name}
	}

	var data []byte
	var err error
	if w.opts.Indent {
		data, err = json.MarshalIndent(w.fc, "", "  ")
	} else {
		data, err = json.Marshal(w.fc)
	}
	if err != nil {
		return fmt.Errorf("encoding collection: %w", err)
	}
	if _, err := w.dst.Write(data); err != nil {
		return err
	}
	w.logger.Debug().Str("name", name).Int("features", len(w.fc.Features)).Msg("wrote geojson")
	return nil
}
