package geostream

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ArgSpec declares one positional construction argument of a format.
type ArgSpec struct {
	Name     string
	Type     reflect.Type
	Required bool
}

// Arg declares an argument whose values must be assignable to T. T may be an
// interface type.
func Arg[T any](name string, required bool) ArgSpec {
	return ArgSpec{Name: name, Type: reflect.TypeOf((*T)(nil)).Elem(), Required: required}
}

// Factory signatures. Each receives the primary source or sink plus the
// extra arguments, already checked against the registration.
type (
	StreamReaderFunc  func(r io.Reader, args []any) (Reader, error)
	FileReaderFunc    func(path string, args []any) (Reader, error)
	ArchiveReaderFunc func(z *zip.Reader, args []any) (Reader, error)
	StreamWriterFunc  func(w io.Writer, args []any) (Writer, error)
	ArchiveWriterFunc func(z *zip.Writer, args []any) (Writer, error)
)

// Registration is the construction contract of one DocType.
type Registration struct {
	Type       DocType
	InputArgs  []ArgSpec
	OutputArgs []ArgSpec

	NewReader        StreamReaderFunc
	NewFileReader    FileReaderFunc
	NewArchiveReader ArchiveReaderFunc
	NewWriter        StreamWriterFunc
	NewArchiveWriter ArchiveWriterFunc
}

// HasFileCtor reports whether the format reads directly from a path.
func (r *Registration) HasFileCtor() bool { return r.NewFileReader != nil }

func (r *Registration) args(forInput bool) []ArgSpec {
	if forInput {
		return r.InputArgs
	}
	return r.OutputArgs
}

// RequiredArgs is the length of the leading run of required arguments.
func (r *Registration) RequiredArgs(forInput bool) int {
	n := 0
	for _, spec := range r.args(forInput) {
		if !spec.Required {
			break
		}
		n++
	}
	return n
}

// CheckArguments validates args against the declared input or output list.
// Arguments beyond the declared list are accepted unchecked.
func (r *Registration) CheckArguments(forInput bool, args []any) error {
	specs := r.args(forInput)
	required := r.RequiredArgs(forInput)
	if len(args) < required {
		return fmt.Errorf("%w: %s needs at least %d arguments, got %d", ErrInvalidArgument, r.Type, required, len(args))
	}
	for i, arg := range args {
		if i >= len(specs) {
			break
		}
		spec := specs[i]
		if arg == nil {
			if spec.Required {
				return fmt.Errorf("%w: %s argument %d (%s) is required", ErrInvalidArgument, r.Type, i, spec.Name)
			}
			continue
		}
		if got := reflect.TypeOf(arg); !got.AssignableTo(spec.Type) {
			return fmt.Errorf("%w: %s argument %d (%s) must be %s, got %s", ErrInvalidArgument, r.Type, i, spec.Name, spec.Type, got)
		}
	}
	return nil
}

// Validate checks the registration itself. Registry.Register calls it.
func (r *Registration) Validate() error {
	if r.Type.Name == "" {
		return fmt.Errorf("%w: registration without a format name", ErrInvalidArgument)
	}
	if r.NewReader == nil && r.NewFileReader == nil && r.NewArchiveReader == nil &&
		r.NewWriter == nil && r.NewArchiveWriter == nil {
		return fmt.Errorf("%w: %s has no factories", ErrInvalidArgument, r.Type)
	}
	if r.Type.ZipStream && r.NewArchiveReader == nil && r.NewArchiveWriter == nil {
		return fmt.Errorf("%w: %s is a zip format without archive factories", ErrInvalidArgument, r.Type)
	}
	for _, specs := range [][]ArgSpec{r.InputArgs, r.OutputArgs} {
		prefix := true
		for i, spec := range specs {
			if spec.Type == nil {
				return fmt.Errorf("%w: %s argument %d has no type", ErrInvalidArgument, r.Type, i)
			}
			if spec.Required && !prefix {
				return fmt.Errorf("%w: %s argument %d (%s) is required after an optional one", ErrInvalidArgument, r.Type, i, spec.Name)
			}
			prefix = prefix && spec.Required
		}
	}
	return nil
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Logger *zerolog.Logger // defaults to the global logger
}

// Registry maps DocTypes to registrations. Lookups are safe for concurrent
// use; register everything before the first lookup.
type Registry struct {
	mu     sync.RWMutex
	regs   map[DocType]*Registration
	order  []DocType
	logger zerolog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(opts *RegistryOptions) *Registry {
	if opts == nil {
		opts = &RegistryOptions{}
	}
	return &Registry{
		regs:   make(map[DocType]*Registration),
		logger: LoggerOr(opts.Logger),
	}
}

// Register adds reg. A type may be registered once.
func (r *Registry) Register(reg *Registration) error {
	if reg == nil {
		return ErrNilObject
	}
	if err := reg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.regs[reg.Type]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateFormat, reg.Type)
	}
	r.regs[reg.Type] = reg
	r.order = append(r.order, reg.Type)
	r.logger.Debug().Str("format", reg.Type.String()).Msg("registered format")
	return nil
}

// Replace registers reg, overwriting any existing registration of its type.
func (r *Registry) Replace(reg *Registration) error {
	if reg == nil {
		return ErrNilObject
	}
	if err := reg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.regs[reg.Type]; !ok {
		r.order = append(r.order, reg.Type)
	}
	r.regs[reg.Type] = reg
	r.logger.Info().Str("format", reg.Type.String()).Msg("replaced format registration")
	return nil
}

// Lookup returns the registration of t. An absent type means the format is
// unsupported.
func (r *Registry) Lookup(t DocType) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.regs[t]
	return reg, ok
}

// Types returns the registered types in registration order.
func (r *Registry) Types() []DocType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]DocType, len(r.order))
	copy(out, r.order)
	return out
}

// Find resolves a user-facing name such as "csv" or "dbf+zip".
func (r *Registry) Find(name string) (*Registration, bool) {
	if t, ok := ParseDocType(name); ok {
		if reg, ok := r.Lookup(t); ok {
			return reg, true
		}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.order {
		if strings.EqualFold(t.Name, name) || strings.EqualFold(t.String(), name) {
			return r.regs[t], true
		}
	}
	return nil, false
}

func (r *Registry) registration(t DocType, forInput bool, args []any) (*Registration, error) {
	reg, ok := r.Lookup(t)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, t)
	}
	if err := reg.CheckArguments(forInput, args); err != nil {
		return nil, err
	}
	return reg, nil
}

// OpenReader builds a reader of type t over src. The reader owns src. Zip
// formats buffer src in memory to open it as an archive.
func (r *Registry) OpenReader(t DocType, src io.Reader, args ...any) (Reader, error) {
	reg, err := r.registration(t, true, args)
	if err != nil {
		return nil, err
	}
	if t.ZipStream {
		if reg.NewArchiveReader == nil {
			return nil, fmt.Errorf("%w: %s cannot read archives", ErrUnsupported, t)
		}
		data, err := io.ReadAll(src)
		if c, ok := src.(io.Closer); ok {
			CloseQuietly(&r.logger, c, t.String()+" source")
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s archive: %w", t, err)
		}
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, fmt.Errorf("opening %s archive: %w", t, err)
		}
		return reg.NewArchiveReader(zr, args)
	}
	if reg.NewReader == nil {
		return nil, fmt.Errorf("%w: %s cannot read from a stream", ErrUnsupported, t)
	}
	return reg.NewReader(src, args)
}

// OpenFile builds a reader of type t for the file at path, using the format's
// file constructor when it has one and a stream over the opened file
// otherwise.
func (r *Registry) OpenFile(t DocType, path string, args ...any) (Reader, error) {
	reg, err := r.registration(t, true, args)
	if err != nil {
		return nil, err
	}
	if reg.NewFileReader != nil {
		return reg.NewFileReader(path, args)
	}
	if t.ZipStream {
		if reg.NewArchiveReader == nil {
			return nil, fmt.Errorf("%w: %s cannot read archives", ErrUnsupported, t)
		}
		zrc, err := zip.OpenReader(path)
		if err != nil {
			return nil, err
		}
		rd, err := reg.NewArchiveReader(&zrc.Reader, args)
		if err != nil {
			CloseQuietly(&r.logger, zrc, path)
			return nil, err
		}
		return &archiveFileReader{Reader: rd, archive: zrc}, nil
	}
	if reg.NewReader == nil {
		return nil, fmt.Errorf("%w: %s cannot read from a stream", ErrUnsupported, t)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	rd, err := reg.NewReader(f, args)
	if err != nil {
		CloseQuietly(&r.logger, f, path)
		return nil, err
	}
	return rd, nil
}

// OpenArchive builds a reader of type t over an already opened archive. The
// archive stays owned by the caller.
func (r *Registry) OpenArchive(t DocType, z *zip.Reader, args ...any) (Reader, error) {
	reg, err := r.registration(t, true, args)
	if err != nil {
		return nil, err
	}
	if reg.NewArchiveReader == nil {
		return nil, fmt.Errorf("%w: %s cannot read archives", ErrUnsupported, t)
	}
	return reg.NewArchiveReader(z, args)
}

// Open dispatches on the kind of src: *zip.Reader, a path string or an
// io.Reader.
func (r *Registry) Open(t DocType, src any, args ...any) (Reader, error) {
	switch v := src.(type) {
	case *zip.Reader:
		return r.OpenArchive(t, v, args...)
	case string:
		return r.OpenFile(t, v, args...)
	case io.Reader:
		return r.OpenReader(t, v, args...)
	case nil:
		return nil, fmt.Errorf("%w: nil source", ErrInvalidArgument)
	}
	return nil, fmt.Errorf("%w: cannot read %s from %T", ErrInvalidArgument, t, src)
}

// CreateWriter builds a writer of type t over dst. The writer owns dst. Zip
// formats wrap dst in a new archive that is finished on Close.
func (r *Registry) CreateWriter(t DocType, dst io.Writer, args ...any) (Writer, error) {
	reg, err := r.registration(t, false, args)
	if err != nil {
		return nil, err
	}
	if t.ZipStream {
		if reg.NewArchiveWriter == nil {
			return nil, fmt.Errorf("%w: %s cannot write archives", ErrUnsupported, t)
		}
		zw := zip.NewWriter(dst)
		wr, err := reg.NewArchiveWriter(zw, args)
		if err != nil {
			return nil, err
		}
		return &archiveStreamWriter{Writer: wr, archive: zw, dst: dst}, nil
	}
	if reg.NewWriter == nil {
		return nil, fmt.Errorf("%w: %s cannot write to a stream", ErrUnsupported, t)
	}
	return reg.NewWriter(dst, args)
}

// CreateArchive builds a writer adding an entry to z. The archive stays
// owned by the caller.
func (r *Registry) CreateArchive(t DocType, z *zip.Writer, args ...any) (Writer, error) {
	reg, err := r.registration(t, false, args)
	if err != nil {
		return nil, err
	}
	if reg.NewArchiveWriter == nil {
		return nil, fmt.Errorf("%w: %s cannot write archives", ErrUnsupported, t)
	}
	return reg.NewArchiveWriter(z, args)
}

// CreateFile creates or truncates path and builds a writer of type t on it.
func (r *Registry) CreateFile(t DocType, path string, args ...any) (Writer, error) {
	if _, err := r.registration(t, false, args); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w, err := r.CreateWriter(t, f, args...)
	if err != nil {
		CloseQuietly(&r.logger, f, path)
		return nil, err
	}
	return w, nil
}

// Create dispatches on the kind of dst: *zip.Writer, a path string or an
// io.Writer.
func (r *Registry) Create(t DocType, dst any, args ...any) (Writer, error) {
	switch v := dst.(type) {
	case *zip.Writer:
		return r.CreateArchive(t, v, args...)
	case string:
		return r.CreateFile(t, v, args...)
	case io.Writer:
		return r.CreateWriter(t, v, args...)
	case nil:
		return nil, fmt.Errorf("%w: nil destination", ErrInvalidArgument)
	}
	return nil, fmt.Errorf("%w: cannot write %s to %T", ErrInvalidArgument, t, dst)
}

// archiveFileReader closes the archive it was opened from.
type archiveFileReader struct {
	Reader
	archive io.Closer
	closed  bool
}

func (a *archiveFileReader) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	err := a.Reader.Close()
	if cerr := a.archive.Close(); err == nil {
		err = cerr
	}
	return err
}

// archiveStreamWriter finishes the archive and closes the raw sink after
// the entry writer.
type archiveStreamWriter struct {
	Writer
	archive *zip.Writer
	dst     io.Writer
	closed  bool
}

func (a *archiveStreamWriter) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	err := a.Writer.Close()
	if cerr := a.archive.Close(); err == nil {
		err = cerr
	}
	if c, ok := a.dst.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
