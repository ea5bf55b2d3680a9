package geojson

import (
	"encoding/json"
	"fmt"
	"io"

	orbjson "github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
	"github.com/tingold/geostream"
)

// Reader decodes a FeatureCollection into a schema followed by one Feature
// per GeoJSON feature. Features with a null geometry become Rows.
type Reader struct {
	geostream.ObjectQueue

	src    io.Closer
	fc     *orbjson.FeatureCollection
	schema *geostream.Schema
	next   int
	logger zerolog.Logger
	closed bool
}

// NewReader reads all of src and decodes it. The reader owns src and closes
// it on Close when it implements io.Closer.
func NewReader(src io.Reader, opts *Options) (*Reader, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	r, err := NewReaderFromData(data, opts)
	if err != nil {
		return nil, err
	}
	if c, ok := src.(io.Closer); ok {
		r.src = c
	}
	return r, nil
}

// NewReaderFromData decodes a FeatureCollection document.
func NewReaderFromData(data []byte, opts *Options) (*Reader, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	fc, err := orbjson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	r := &Reader{fc: fc, logger: geostream.LoggerOr(opts.Logger)}
	r.schema = inferSchema(fc)
	if name, ok := fc.ExtraMembers[NameMember].(string); ok {
		r.schema.Name = name
	}
	r.AddLast(r.schema)

	r.logger.Debug().
		Str("name", r.schema.Name).
		Int("features", len(fc.Features)).
		Int("fields", r.schema.Len()).
		Msg("decoded geojson")
	return r, nil
}

// Schema returns the inferred schema.
func (r *Reader) Schema() *geostream.Schema { return r.schema }

// Read returns the schema first, then every feature of the collection.
func (r *Reader) Read() (geostream.Object, error) {
	if r.closed {
		return nil, geostream.ErrClosed
	}
	if r.HasSaved() {
		return r.ReadSaved(), nil
	}
	for r.next < len(r.fc.Features) {
		f := r.fc.Features[r.next]
		r.next++
		if f == nil {
			continue
		}
		r.schema.Freeze()
		return r.convert(f)
	}
	return nil, io.EOF
}

func (r *Reader) convert(f *orbjson.Feature) (geostream.Object, error) {
	feature := geostream.NewFeature(r.schema.ID, nil)
	row := &feature.Row
	for _, fld := range r.schema.Fields() {
		v, ok := f.Properties[fld.Name]
		if !ok || v == nil {
			continue
		}
		switch v.(type) {
		case map[string]any, []any:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("%w: property %q: %v", ErrInvalidData, fld.Name, err)
			}
			v = string(b)
		}
		value, err := geostream.Coerce(fld.Type, v)
		if err != nil {
			r.logger.Warn().Err(err).Str("field", fld.Name).Int("feature", r.next-1).Msg("dropping property value")
			continue
		}
		if err := row.Put(fld, value); err != nil {
			return nil, err
		}
	}

	if f.Geometry == nil {
		return row, nil
	}
	g, err := geostream.FromOrb(f.Geometry)
	if err != nil {
		return nil, fmt.Errorf("feature %d: %w", r.next-1, err)
	}
	feature.Geometry = g
	if f.ID != nil {
		feature.Name = fmt.Sprint(f.ID)
	}
	return feature, nil
}

// EnumerateSchemata returns the inferred schema.
func (r *Reader) EnumerateSchemata() ([]*geostream.Schema, error) {
	if r.closed {
		return nil, geostream.ErrClosed
	}
	return []*geostream.Schema{r.schema}, nil
}

// Close releases the source. It is safe to call more than once.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.fc = nil
	if r.src != nil {
		return r.src.Close()
	}
	return nil
}
