package geojson

import (
	"io"

	"github.com/tingold/geostream"
)

// Registration returns the construction contract of DocGeoJSON.
func Registration(opts *Options) *geostream.Registration {
	return &geostream.Registration{
		Type:       geostream.DocGeoJSON,
		OutputArgs: OutputArgs,
		NewReader: func(r io.Reader, _ []any) (geostream.Reader, error) {
			rd, err := NewReader(r, opts)
			if err != nil {
				return nil, err
			}
			return rd, nil
		},
		NewWriter: func(w io.Writer, args []any) (geostream.Writer, error) {
			return NewWriter(w, OptionsFromArgs(opts, args)), nil
		},
	}
}
