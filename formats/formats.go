// Package formats plugs every built-in codec into a geostream.Registry.
package formats

import (
	"github.com/rs/zerolog"
	"github.com/tingold/geostream"
	"github.com/tingold/geostream/csv"
	"github.com/tingold/geostream/dbf"
	flatgeobuf "github.com/tingold/geostream/fgb"
	"github.com/tingold/geostream/geojson"
	"github.com/tingold/geostream/wkt"
)

// Options carries the base options of each codec. Nil members use the
// codec defaults. Logger is handed to every codec whose own options do not
// name one.
type Options struct {
	Logger     *zerolog.Logger
	CSVReader  *csv.ReaderOptions
	CSVWriter  *csv.WriterOptions
	FlatGeobuf *flatgeobuf.Options
	GeoJSON    *geojson.Options
}

// DefaultOptions returns the defaults of every codec.
func DefaultOptions() *Options {
	return &Options{
		CSVReader:  csv.DefaultReaderOptions(),
		CSVWriter:  csv.DefaultWriterOptions(),
		FlatGeobuf: flatgeobuf.DefaultOptions(),
		GeoJSON:    geojson.DefaultOptions(),
	}
}

// Registrations returns the construction contracts of all built-in formats
// in a stable order.
func Registrations(opts *Options) []*geostream.Registration {
	opts = withDefaults(opts)

	csvIn := *opts.CSVReader
	csvOut := *opts.CSVWriter
	fgb := *opts.FlatGeobuf
	gj := *opts.GeoJSON
	if csvIn.Logger == nil {
		csvIn.Logger = opts.Logger
	}
	if csvOut.Logger == nil {
		csvOut.Logger = opts.Logger
	}
	if fgb.Logger == nil {
		fgb.Logger = opts.Logger
	}
	if gj.Logger == nil {
		gj.Logger = opts.Logger
	}
	dbfOpts := dbf.DefaultOptions()
	dbfOpts.Logger = opts.Logger
	wktOpts := wkt.DefaultOptions()
	wktOpts.Logger = opts.Logger

	return []*geostream.Registration{
		wkt.Registration(wktOpts),
		csv.Registration(&csvIn, &csvOut),
		csv.ZipRegistration(&csvIn, &csvOut),
		dbf.Registration(dbfOpts),
		dbf.ZipRegistration(dbfOpts),
		flatgeobuf.Registration(&fgb),
		geojson.Registration(&gj),
	}
}

// Register adds every built-in format to reg.
func Register(reg *geostream.Registry, opts *Options) error {
	for _, r := range Registrations(opts) {
		if err := reg.Register(r); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding every built-in format.
func NewRegistry(opts *Options) (*geostream.Registry, error) {
	opts = withDefaults(opts)
	reg := geostream.NewRegistry(&geostream.RegistryOptions{Logger: opts.Logger})
	if err := Register(reg, opts); err != nil {
		return nil, err
	}
	return reg, nil
}

func withDefaults(opts *Options) *Options {
	def := DefaultOptions()
	if opts == nil {
		return def
	}
	out := *opts
	if out.CSVReader == nil {
		out.CSVReader = def.CSVReader
	}
	if out.CSVWriter == nil {
		out.CSVWriter = def.CSVWriter
	}
	if out.FlatGeobuf == nil {
		out.FlatGeobuf = def.FlatGeobuf
	}
	if out.GeoJSON == nil {
		out.GeoJSON = def.GeoJSON
	}
	return &out
}
