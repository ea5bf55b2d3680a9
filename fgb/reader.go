package flatgeobuf

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"

	flatgeobuf "github.com/flatgeobuf/flatgeobuf/src/go"
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"github.com/tingold/geostream"
)

// Reader provides read access to a FlatGeobuf file.
type Reader struct {
	geostream.ObjectQueue

	fgb     *flatgeobuf.FlatGeoBuf
	src     io.Closer
	schema  *geostream.Schema
	types   []flattypes.ColumnType
	pending []*flattypes.Feature
	loaded  bool
	logger  zerolog.Logger
	closed  bool
}

// NewReader creates a reader from a file path.
// The file is memory-mapped for efficient access.
func NewReader(path string, opts *Options) (*Reader, error) {
	fgb, err := flatgeobuf.New(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r, err := newReader(fgb, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if r.schema.Name == "" {
		r.schema.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return r, nil
}

// NewReaderFromData creates a reader from byte data.
func NewReaderFromData(data []byte, opts *Options) (*Reader, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidData)
	}
	fgb, err := flatgeobuf.NewWithData(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return newReader(fgb, opts)
}

// NewStreamReader reads all of src and decodes it. The reader owns src and
// closes it on Close when it implements io.Closer.
func NewStreamReader(src io.Reader, opts *Options) (*Reader, error) {
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

func newReader(fgb *flatgeobuf.FlatGeoBuf, opts *Options) (r *Reader, err error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	// The flatbuffers accessors panic on corrupt offsets.
	defer func() {
		if p := recover(); p != nil {
			r, err = nil, fmt.Errorf("%w: %v", ErrInvalidData, p)
		}
	}()

	h := fgb.Header()
	if h == nil {
		return nil, fmt.Errorf("%w: missing header", ErrInvalidData)
	}
	r = &Reader{fgb: fgb, logger: geostream.LoggerOr(opts.Logger)}
	r.schema = geostream.NewSchema("")
	r.schema.Name = string(h.Name())

	for i := 0; i < h.ColumnsLength(); i++ {
		var col flattypes.Column
		if !h.Columns(&col, i) {
			return nil, fmt.Errorf("%w: unreadable column %d", ErrInvalidData, i)
		}
		ft, err := fieldType(col.Type())
		if err != nil {
			return nil, err
		}
		f, err := geostream.NewField(string(col.Name()), ft)
		if err != nil {
			return nil, fmt.Errorf("%w: column %d: %v", ErrInvalidData, i, err)
		}
		if err := r.schema.Put(f); err != nil {
			return nil, err
		}
		r.types = append(r.types, col.Type())
	}
	r.AddLast(r.schema)

	r.logger.Debug().
		Str("name", r.schema.Name).
		Uint64("features", h.FeaturesCount()).
		Int("columns", len(r.types)).
		Bool("index", h.IndexNodeSize() > 0).
		Msg("opened flatgeobuf")
	return r, nil
}

// Header returns metadata about the FlatGeobuf file.
func (r *Reader) Header() *Header {
	h := r.fgb.Header()
	if h == nil {
		return nil
	}

	header := &Header{
		Name:          string(h.Name()),
		Description:   string(h.Description()),
		FeaturesCount: h.FeaturesCount(),
		HasIndex:      h.IndexNodeSize() > 0,
		GeometryType:  flattypes.EnumNamesGeometryType[h.GeometryType()],
	}

	if h.EnvelopeLength() >= 4 {
		header.Envelope = [4]float64{
			h.Envelope(0),
			h.Envelope(1),
			h.Envelope(2),
			h.Envelope(3),
		}
	}

	var crs flattypes.Crs
	if h.Crs(&crs) != nil {
		header.CRS = &CRS{
			Code:        int(crs.Code()),
			Name:        string(crs.Name()),
			Description: string(crs.Description()),
		}
	}

	for i := 0; i < h.ColumnsLength(); i++ {
		var col flattypes.Column
		if h.Columns(&col, i) {
			header.Columns = append(header.Columns, ColumnInfo{
				Name:        string(col.Name()),
				Type:        flattypes.EnumNamesColumnType[col.Type()],
				Title:       string(col.Title()),
				Description: string(col.Description()),
				Nullable:    col.Nullable(),
			})
		}
	}

	return header
}

// Schema returns the schema built from the header columns.
func (r *Reader) Schema() *geostream.Schema { return r.schema }

// Read returns the schema first, then every feature of the file.
func (r *Reader) Read() (geostream.Object, error) {
	if r.closed {
		return nil, geostream.ErrClosed
	}
	if r.HasSaved() {
		return r.ReadSaved(), nil
	}
	if !r.loaded {
		if err := r.load(); err != nil {
			return nil, err
		}
	}
	if len(r.pending) == 0 {
		return nil, io.EOF
	}
	f := r.pending[0]
	r.pending = r.pending[1:]
	r.schema.Freeze()
	return r.convert(f)
}

// load queries the whole envelope, since features are only reachable
// through the index.
func (r *Reader) load() error {
	r.loaded = true
	h := r.fgb.Header()
	if h.FeaturesCount() == 0 {
		return nil
	}
	if h.IndexNodeSize() == 0 {
		return ErrNoIndex
	}
	b := orb.Bound{
		Min: orb.Point{-math.MaxFloat64, -math.MaxFloat64},
		Max: orb.Point{math.MaxFloat64, math.MaxFloat64},
	}
	if h.EnvelopeLength() >= 4 {
		b = orb.Bound{
			Min: orb.Point{h.Envelope(0), h.Envelope(1)},
			Max: orb.Point{h.Envelope(2), h.Envelope(3)},
		}
	}
	features, err := r.fgb.Search(b.Min[0], b.Min[1], b.Max[0], b.Max[1])
	if err != nil {
		return err
	}
	if uint64(len(features)) != h.FeaturesCount() {
		r.logger.Warn().
			Int("found", len(features)).
			Uint64("declared", h.FeaturesCount()).
			Msg("index search did not return every feature")
	}
	r.pending = features
	return nil
}

// Search performs a spatial query using the built-in index.
// Returns features whose bounding boxes intersect the query bounds.
func (r *Reader) Search(bounds orb.Bound) ([]*geostream.Feature, error) {
	if r.closed {
		return nil, geostream.ErrClosed
	}
	if r.fgb.Header().IndexNodeSize() == 0 {
		return nil, ErrNoIndex
	}

	found, err := r.fgb.Search(bounds.Min[0], bounds.Min[1], bounds.Max[0], bounds.Max[1])
	if err != nil {
		return nil, err
	}

	out := make([]*geostream.Feature, 0, len(found))
	for _, f := range found {
		feature, err := r.convert(f)
		if err != nil {
			return nil, err
		}
		out = append(out, feature)
	}
	return out, nil
}

// convert turns a stored feature into a geostream feature of the file schema.
func (r *Reader) convert(ff *flattypes.Feature) (feature *geostream.Feature, err error) {
	defer func() {
		if p := recover(); p != nil {
			feature, err = nil, fmt.Errorf("%w: %v", ErrInvalidData, p)
		}
	}()

	var g flattypes.Geometry
	var geom geostream.Geometry
	if ff.Geometry(&g) != nil {
		geom, err = geometryFromFGB(&g, r.fgb.Header().GeometryType())
		if err != nil {
			return nil, err
		}
	}
	feature = geostream.NewFeature(r.schema.ID, geom)

	n := ff.PropertiesLength()
	if n == 0 || len(r.types) == 0 {
		return feature, nil
	}
	data := make([]byte, n)
	for i := 0; i < n; i++ {
		data[i] = byte(ff.Properties(i))
	}
	values, err := decodeProperties(data, r.types)
	if err != nil {
		return nil, err
	}

	fields := r.schema.Fields()
	for i, f := range fields {
		v, ok := values[i]
		if !ok {
			continue
		}
		cv, cerr := geostream.Coerce(f.Type, v)
		if cerr != nil {
			r.logger.Warn().Err(cerr).Str("field", f.Name).Msg("unconvertible flatgeobuf value, using null")
			cv = nil
		}
		if err := feature.Put(f, cv); err != nil {
			return nil, err
		}
	}
	return feature, nil
}

// EnumerateSchemata returns the single file schema.
func (r *Reader) EnumerateSchemata() ([]*geostream.Schema, error) {
	return []*geostream.Schema{r.schema}, nil
}

// Close releases resources associated with the reader.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	// FlatGeoBuf has no Close; dropping it lets the mapping be collected.
	r.fgb = nil
	r.pending = nil
	if r.src != nil {
		return r.src.Close()
	}
	return nil
}
