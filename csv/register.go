package csv

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/tingold/geostream"
)

// DefaultEntryName is the archive entry written by the zip variant when no
// name is given.
const DefaultEntryName = "data.csv"

// Registration returns the construction contract of DocCSV. The base options
// are overlaid with the positional arguments of each call.
func Registration(in *ReaderOptions, out *WriterOptions) *geostream.Registration {
	return &geostream.Registration{
		Type:       geostream.DocCSV,
		InputArgs:  InputArgs,
		OutputArgs: OutputArgs,
		NewReader: func(r io.Reader, args []any) (geostream.Reader, error) {
			return NewReader(r, ReaderOptionsFromArgs(in, args)), nil
		},
		NewWriter: func(w io.Writer, args []any) (geostream.Writer, error) {
			return NewWriter(w, WriterOptionsFromArgs(out, args)), nil
		},
	}
}

// ZipRegistration returns the construction contract of DocCSVZip: the table
// is the first .csv entry of an archive. Output takes the entry name after
// the regular output arguments.
func ZipRegistration(in *ReaderOptions, out *WriterOptions) *geostream.Registration {
	outArgs := append(append([]geostream.ArgSpec(nil), OutputArgs...), geostream.Arg[string]("entry", false))
	return &geostream.Registration{
		Type:       geostream.DocCSVZip,
		InputArgs:  InputArgs,
		OutputArgs: outArgs,
		NewArchiveReader: func(z *zip.Reader, args []any) (geostream.Reader, error) {
			for _, f := range z.File {
				if !strings.EqualFold(path.Ext(f.Name), ".csv") {
					continue
				}
				rc, err := f.Open()
				if err != nil {
					return nil, fmt.Errorf("%s: %w", f.Name, err)
				}
				return NewReader(rc, ReaderOptionsFromArgs(in, args)), nil
			}
			return nil, fmt.Errorf("%w: archive has no .csv entry", geostream.ErrInvalidArgument)
		},
		NewArchiveWriter: func(z *zip.Writer, args []any) (geostream.Writer, error) {
			name := DefaultEntryName
			if s, ok := arg[string](args, len(OutputArgs)); ok && s != "" {
				name = s
			}
			entry, err := z.Create(name)
			if err != nil {
				return nil, err
			}
			return NewWriter(entry, WriterOptionsFromArgs(out, args)), nil
		},
	}
}
