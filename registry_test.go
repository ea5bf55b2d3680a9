package geostream

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

var docTest = DocType{Name: "TEST"}

// lineWriter writes one line per row and closes its sink.
type lineWriter struct {
	w      io.Writer
	closed bool
}

func (l *lineWriter) Write(obj Object) error {
	if _, ok := obj.(*Row); ok {
		_, err := io.WriteString(l.w, "row\n")
		return err
	}
	return nil
}

func (l *lineWriter) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	if c, ok := l.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// lineReader yields one row per line of its source.
type lineReader struct {
	data []byte
}

func (l *lineReader) Read() (Object, error) {
	i := bytes.IndexByte(l.data, '\n')
	if i < 0 {
		return nil, io.EOF
	}
	l.data = l.data[i+1:]
	return NewRow(""), nil
}

func (l *lineReader) EnumerateSchemata() ([]*Schema, error) { return nil, ErrUnsupported }
func (l *lineReader) Close() error                          { return nil }

func newLineReader(r io.Reader) (Reader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return &lineReader{data: data}, nil
}

func testRegistration(t DocType) *Registration {
	reg := &Registration{
		Type: t,
		InputArgs: []ArgSpec{
			Arg[string]("delimiter", true),
			Arg[rune]("quote", false),
			Arg[io.Reader]("extra", false),
		},
		OutputArgs: []ArgSpec{Arg[bool]("header", false)},
	}
	if t.ZipStream {
		reg.NewArchiveReader = func(z *zip.Reader, args []any) (Reader, error) {
			f, err := z.Open("data.txt")
			if err != nil {
				return nil, err
			}
			defer f.Close()
			return newLineReader(f)
		}
		reg.NewArchiveWriter = func(z *zip.Writer, args []any) (Writer, error) {
			w, err := z.Create("data.txt")
			if err != nil {
				return nil, err
			}
			return &lineWriter{w: w}, nil
		}
		return reg
	}
	reg.NewReader = func(r io.Reader, args []any) (Reader, error) { return newLineReader(r) }
	reg.NewWriter = func(w io.Writer, args []any) (Writer, error) { return &lineWriter{w: w}, nil }
	return reg
}

func TestRegistration_CheckArguments(t *testing.T) {
	reg := testRegistration(docTest)

	tests := []struct {
		name    string
		args    []any
		wantErr bool
	}{
		{"missing required", nil, true},
		{"required only", []any{","}, false},
		{"all typed", []any{",", '"', bytes.NewReader(nil)}, false},
		{"nil optional", []any{",", nil}, false},
		{"nil required", []any{nil}, true},
		{"wrong type", []any{",", "quote"}, true},
		{"interface not implemented", []any{",", '"', 42}, true},
		{"extras unchecked", []any{",", '"', nil, 3.14, "x"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.CheckArguments(true, tt.args)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckArguments() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}

	if reg.RequiredArgs(true) != 1 || reg.RequiredArgs(false) != 0 {
		t.Errorf("unexpected required counts %d, %d", reg.RequiredArgs(true), reg.RequiredArgs(false))
	}
}

func TestRegistration_Validate(t *testing.T) {
	reg := testRegistration(docTest)
	reg.InputArgs = []ArgSpec{Arg[string]("a", false), Arg[string]("b", true)}
	if err := reg.Validate(); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected required-after-optional to fail, got %v", err)
	}

	if err := (&Registration{Type: docTest}).Validate(); err == nil {
		t.Error("expected registration without factories to fail")
	}

	zipOnlyStream := &Registration{Type: DocType{Name: "Z", ZipStream: true}, NewReader: testRegistration(docTest).NewReader}
	if err := zipOnlyStream.Validate(); err == nil {
		t.Error("expected zip registration without archive factories to fail")
	}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.Register(testRegistration(docTest)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(testRegistration(docTest)); !errors.Is(err, ErrDuplicateFormat) {
		t.Errorf("expected ErrDuplicateFormat, got %v", err)
	}
	if err := r.Replace(testRegistration(docTest)); err != nil {
		t.Errorf("Replace failed: %v", err)
	}

	if _, ok := r.Lookup(DocType{Name: "TEST", ZipStream: true}); ok {
		t.Error("lookup must match flags as well as name")
	}
	if _, ok := r.Lookup(DocKML); ok {
		t.Error("KML must not be registered")
	}
	if _, err := r.OpenReader(DocKML, bytes.NewReader(nil)); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
	if reg, ok := r.Find("test"); !ok || reg.Type != docTest {
		t.Errorf("Find(test) = %v, %v", reg, ok)
	}
	if types := r.Types(); len(types) != 1 {
		t.Errorf("expected 1 type, got %v", types)
	}
}

func TestRegistry_OpenDispatch(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.Register(testRegistration(docTest)); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "rows.txt")
	if err := os.WriteFile(path, []byte("a\nb\nc\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	sources := map[string]any{
		"path":   path,
		"stream": bytes.NewReader([]byte("a\nb\nc\n")),
	}
	for name, src := range sources {
		t.Run(name, func(t *testing.T) {
			rd, err := r.Open(docTest, src, ",")
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			defer rd.Close()
			if n := countObjects(t, rd); n != 3 {
				t.Errorf("expected 3 rows, got %d", n)
			}
		})
	}

	if _, err := r.Open(docTest, 42, ","); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for unsupported source kind, got %v", err)
	}
	if _, err := r.Open(docTest, path); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected missing required argument to fail, got %v", err)
	}
}

func TestRegistry_ZipStream(t *testing.T) {
	zipped := DocType{Name: "TEST", ZipStream: true, ZipEntry: true}
	r := NewRegistry(nil)
	if err := r.Register(testRegistration(zipped)); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	w, err := r.Create(zipped, &buf)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	for i := 0; i < 4; i++ {
		if err := w.Write(NewRow("")); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close must be a no-op, got %v", err)
	}

	rd, err := r.Open(zipped, bytes.NewReader(buf.Bytes()), ",")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer rd.Close()
	if n := countObjects(t, rd); n != 4 {
		t.Errorf("expected 4 rows, got %d", n)
	}
}

func countObjects(t *testing.T, rd Reader) int {
	t.Helper()
	n := 0
	for {
		_, err := rd.Read()
		if errors.Is(err, io.EOF) {
			return n
		}
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		n++
	}
}

func TestParseDocType(t *testing.T) {
	tests := []struct {
		in   string
		want DocType
		ok   bool
	}{
		{"wkt", DocWKT, true},
		{"CSV", DocCSV, true},
		{"csv+zip", DocCSVZip, true},
		{"dbf.zip", DocDBFZip, true},
		{"fgb", DocFlatGeobuf, true},
		{"geojson", DocGeoJSON, true},
		{"kmz", DocKMZ, true},
		{"nope", DocType{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseDocType(tt.in)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ParseDocType(%q) = %v, %v", tt.in, got, ok)
			}
		})
	}
}
