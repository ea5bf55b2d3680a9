package wkt

import (
	"io"

	"github.com/tingold/geostream"
)

// Registration returns the construction contract of DocWKT. WKT takes no
// extra arguments.
func Registration(opts *Options) *geostream.Registration {
	return &geostream.Registration{
		Type: geostream.DocWKT,
		NewReader: func(r io.Reader, _ []any) (geostream.Reader, error) {
			return NewReader(r, opts), nil
		},
		NewWriter: func(w io.Writer, _ []any) (geostream.Writer, error) {
			return NewWriter(w, opts), nil
		},
	}
}
