package flatgeobuf

import (
	"io"

	"github.com/tingold/geostream"
)

// Registration returns the construction contract of DocFlatGeobuf. Paths are
// memory-mapped; streams are read fully before decoding.
func Registration(opts *Options) *geostream.Registration {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &geostream.Registration{
		Type:       geostream.DocFlatGeobuf,
		OutputArgs: OutputArgs,
		NewReader: func(r io.Reader, _ []any) (geostream.Reader, error) {
			rd, err := NewStreamReader(r, opts)
			if err != nil {
				return nil, err
			}
			return rd, nil
		},
		NewFileReader: func(name string, _ []any) (geostream.Reader, error) {
			rd, err := NewReader(name, opts)
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
