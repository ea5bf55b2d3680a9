package dbf

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/tingold/geostream"
)

// Registration returns the construction contract of DocDBF. opts supplies
// the logger for every reader and writer built through it.
func Registration(opts *Options) *geostream.Registration {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &geostream.Registration{
		Type: geostream.DocDBF,
		NewReader: func(r io.Reader, _ []any) (geostream.Reader, error) {
			rd, err := NewReader(r, opts)
			if err != nil {
				return nil, err
			}
			return rd, nil
		},
		NewFileReader: func(name string, _ []any) (geostream.Reader, error) {
			rd, err := Open(name, opts)
			if err != nil {
				return nil, err
			}
			return rd, nil
		},
		NewWriter: func(w io.Writer, _ []any) (geostream.Writer, error) {
			return NewWriter(w, opts), nil
		},
	}
}

// ZipRegistration returns the construction contract of DocDBFZip: the table
// is the first .dbf entry of an archive. The optional output argument names
// the entry to create.
func ZipRegistration(opts *Options) *geostream.Registration {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &geostream.Registration{
		Type:       geostream.DocDBFZip,
		OutputArgs: []geostream.ArgSpec{geostream.Arg[string]("entry", false)},
		NewArchiveReader: func(z *zip.Reader, _ []any) (geostream.Reader, error) {
			for _, f := range z.File {
				if !strings.EqualFold(path.Ext(f.Name), ".dbf") {
					continue
				}
				rc, err := f.Open()
				if err != nil {
					return nil, err
				}
				rd, err := NewReader(rc, opts)
				if err != nil {
					rc.Close()
					return nil, fmt.Errorf("%s: %w", f.Name, err)
				}
				rd.schema.Name = strings.TrimSuffix(path.Base(f.Name), path.Ext(f.Name))
				return rd, nil
			}
			return nil, fmt.Errorf("%w: archive has no .dbf entry", geostream.ErrInvalidArgument)
		},
		NewArchiveWriter: func(z *zip.Writer, args []any) (geostream.Writer, error) {
			name := opts.EntryName
			if len(args) > 0 {
				if s, ok := args[0].(string); ok && s != "" {
					name = s
				}
			}
			if name == "" {
				name = DefaultOptions().EntryName
			}
			entry, err := z.Create(name)
			if err != nil {
				return nil, err
			}
			return NewWriter(entry, opts), nil
		},
	}
}
