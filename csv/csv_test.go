package csv

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/tingold/geostream"
)

func readAll(t *testing.T, r geostream.Reader) []geostream.Object {
	t.Helper()
	var out []geostream.Object
	for {
		obj, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		out = append(out, obj)
	}
}

func testSchema(t *testing.T) *geostream.Schema {
	t.Helper()
	s, err := geostream.NewSchemaWithFields("people",
		geostream.MustField("name", geostream.FieldString),
		geostream.MustField("note", geostream.FieldString),
		geostream.MustField("city", geostream.FieldString),
	)
	if err != nil {
		t.Fatalf("NewSchemaWithFields: %v", err)
	}
	return s
}

func TestRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 1000} {
		t.Run(fmt.Sprintf("rows=%d", n), func(t *testing.T) {
			s := testSchema(t)
			var buf bytes.Buffer
			w := NewWriter(&buf, nil)
			if err := w.Write(s); err != nil {
				t.Fatalf("write schema: %v", err)
			}
			want := make([][]string, n)
			for i := 0; i < n; i++ {
				want[i] = []string{
					fmt.Sprintf("name %d", i),
					fmt.Sprintf("says \"hi\", twice\n#%d", i),
					"",
				}
				row := geostream.NewRow(s.ID)
				for j, f := range s.Fields() {
					if err := row.Put(f, want[i][j]); err != nil {
						t.Fatal(err)
					}
				}
				if err := w.Write(row); err != nil {
					t.Fatalf("write row %d: %v", i, err)
				}
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			objs := readAll(t, NewReader(&buf, nil))
			if len(objs) != n+1 {
				t.Fatalf("got %d objects, want %d", len(objs), n+1)
			}
			got, ok := objs[0].(*geostream.Schema)
			if !ok {
				t.Fatalf("first object is %T, want schema", objs[0])
			}
			if got.ID != HeaderSchemaID {
				t.Errorf("schema ID = %q, want %q", got.ID, HeaderSchemaID)
			}
			if strings.Join(got.Keys(), ",") != "name,note,city" {
				t.Errorf("keys = %v", got.Keys())
			}
			for i, obj := range objs[1:] {
				row := obj.(*geostream.Row)
				for j, key := range got.Keys() {
					v, _ := row.Value(key)
					if v != want[i][j] {
						t.Fatalf("row %d %s = %q, want %q", i, key, v, want[i][j])
					}
				}
			}
		})
	}
}

func TestSniffLineDelimiter(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a,b\n1,2\n", "\n"},
		{"a,b\r\n1,2\r\n", "\r\n"},
		{"a,b\r1,2", "\r"},
		{"a,b", "\n"},
		{"a\n\nb", "\n"},
		{"a\r\n\r\nb", "\r\n"},
		{"a\n\tb", "\n"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.in), func(t *testing.T) {
			if got := NewReader(strings.NewReader(tt.in), nil).LineDelimiter(); got != tt.want {
				t.Errorf("LineDelimiter() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReaderCRLF(t *testing.T) {
	objs := readAll(t, NewReader(strings.NewReader("\xEF\xBB\xBFid,name\r\n1,\"a\r\nb\"\r\n2,c"), nil))
	if len(objs) != 3 {
		t.Fatalf("got %d objects, want 3", len(objs))
	}
	s := objs[0].(*geostream.Schema)
	if strings.Join(s.Keys(), ",") != "id,name" {
		t.Errorf("keys = %v", s.Keys())
	}
	second := objs[1].(*geostream.Row)
	if v, _ := second.Value("name"); v != "a\r\nb" {
		t.Errorf("name = %q, want quoted line break kept", v)
	}
	third := objs[2].(*geostream.Row)
	if v, _ := third.Value("name"); v != "c" {
		t.Errorf("last row name = %q, want c", v)
	}
}

func TestReaderHeaderNames(t *testing.T) {
	objs := readAll(t, NewReader(strings.NewReader("a,,a\n1,2,3\n"), nil))
	s := objs[0].(*geostream.Schema)
	if got := strings.Join(s.Keys(), ","); got != "a,field_2,a_2" {
		t.Errorf("keys = %s", got)
	}
}

func TestReaderMissingValues(t *testing.T) {
	objs := readAll(t, NewReader(strings.NewReader("a,b,c\n1\n"), nil))
	row := objs[1].(*geostream.Row)
	if row.Len() != 1 {
		t.Fatalf("row has %d values, want 1", row.Len())
	}
	if _, ok := row.Value("b"); ok {
		t.Error("b should be unset")
	}
}

func TestReaderSuppliedSchema(t *testing.T) {
	s, err := geostream.NewSchemaWithFields("given",
		geostream.MustField("n", geostream.FieldInt),
		geostream.MustField("x", geostream.FieldDouble),
		geostream.MustField("label", geostream.FieldString),
	)
	if err != nil {
		t.Fatal(err)
	}
	opts := DefaultReaderOptions()
	opts.Schema = s
	objs := readAll(t, NewReader(strings.NewReader("7,2.5,seven\nbad,,eight\n"), opts))
	if len(objs) != 3 {
		t.Fatalf("got %d objects, want 3", len(objs))
	}
	if objs[0] != s {
		t.Fatalf("first object = %v, want the supplied schema", objs[0])
	}
	first := objs[1].(*geostream.Row)
	if first.SchemaID != "given" {
		t.Errorf("SchemaID = %q", first.SchemaID)
	}
	if v, _ := first.Value("n"); v != int32(7) {
		t.Errorf("n = %#v, want int32(7)", v)
	}
	if v, _ := first.Value("x"); v != 2.5 {
		t.Errorf("x = %#v, want 2.5", v)
	}
	second := objs[2].(*geostream.Row)
	for _, key := range []string{"n", "x"} {
		if v, _ := second.Value(key); v != nil {
			t.Errorf("%s = %#v, want nil", key, v)
		}
	}
}

func TestReaderErrors(t *testing.T) {
	t.Run("unterminated quote", func(t *testing.T) {
		r := NewReader(strings.NewReader("a,b\n1,\"open\n"), nil)
		if _, err := r.Read(); err != nil {
			t.Fatalf("header: %v", err)
		}
		if _, err := r.Read(); !errors.Is(err, ErrUnterminatedQuote) {
			t.Fatalf("err = %v, want ErrUnterminatedQuote", err)
		}
	})
	t.Run("text after closing quote", func(t *testing.T) {
		r := NewReader(strings.NewReader("\"a\"x,b\n"), nil)
		_, err := r.Read()
		var fe *FormatError
		if !errors.As(err, &fe) {
			t.Fatalf("err = %v, want *FormatError", err)
		}
		if fe.Line != 1 || fe.Offset != 3 {
			t.Errorf("line %d offset %d, want 1 and 3", fe.Line, fe.Offset)
		}
	})
	t.Run("closed", func(t *testing.T) {
		r := NewReader(strings.NewReader("a\n"), nil)
		r.Close()
		if _, err := r.Read(); !errors.Is(err, geostream.ErrClosed) {
			t.Fatalf("err = %v, want ErrClosed", err)
		}
	})
}

func TestEnumerateSchemata(t *testing.T) {
	r := NewReader(strings.NewReader("x,y\n1,2\n"), nil)
	schemas, err := r.EnumerateSchemata()
	if err != nil {
		t.Fatal(err)
	}
	if len(schemas) != 1 || strings.Join(schemas[0].Keys(), ",") != "x,y" {
		t.Fatalf("schemas = %v", schemas)
	}
	objs := readAll(t, r)
	if len(objs) != 2 || objs[0] != schemas[0] {
		t.Fatalf("Read after EnumerateSchemata = %v", objs)
	}

	empty, err := NewReader(strings.NewReader(""), nil).EnumerateSchemata()
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty input: %v, %v", empty, err)
	}
}

func TestCustomDelimiters(t *testing.T) {
	s := testSchema(t)
	row := geostream.NewRow(s.ID)
	values := []string{"it's", "a;b", "'quoted'"}
	for i, f := range s.Fields() {
		row.Put(f, values[i])
	}

	write := func(objs ...geostream.Object) []byte {
		var buf bytes.Buffer
		w := NewWriter(&buf, WriterOptionsFromArgs(nil, []any{"\r\n", ';', '\''}))
		for _, obj := range objs {
			if err := w.Write(obj); err != nil {
				t.Fatal(err)
			}
		}
		w.Close()
		return buf.Bytes()
	}
	first := write(s, row)
	want := "'name';'note';'city'\r\n'it''s';'a;b';'''quoted'''\r\n"
	if string(first) != want {
		t.Fatalf("output = %q, want %q", first, want)
	}

	r := NewReader(bytes.NewReader(first), ReaderOptionsFromArgs(nil, []any{nil, nil, ';', '\''}))
	objs := readAll(t, r)
	if len(objs) != 2 {
		t.Fatalf("got %d objects", len(objs))
	}
	got := objs[1].(*geostream.Row)
	for i, f := range s.Fields() {
		if v, _ := got.Value(f.Name); v != values[i] {
			t.Errorf("%s = %q, want %q", f.Name, v, values[i])
		}
	}
	// Re-encoding what was read yields the same bytes.
	if second := write(objs...); !bytes.Equal(first, second) {
		t.Errorf("second pass = %q, want %q", second, first)
	}
}

func TestWriterValues(t *testing.T) {
	s, _ := geostream.NewSchemaWithFields("typed",
		geostream.MustField("when", geostream.FieldDate),
		geostream.MustField("count", geostream.FieldLong),
		geostream.MustField("ratio", geostream.FieldDouble),
		geostream.MustField("ok", geostream.FieldBool),
	)
	row := geostream.NewRow(s.ID)
	row.Put(s.Fields()[0], time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC))
	row.Put(s.Fields()[1], int64(42))
	row.Put(s.Fields()[2], 0.25)
	row.Put(s.Fields()[3], true)

	var buf bytes.Buffer
	opts := DefaultWriterOptions()
	opts.SkipHeader = true
	w := NewWriter(&buf, opts)
	if err := w.Write(s); err != nil {
		t.Fatal(err)
	}
	if err := w.Write(row); err != nil {
		t.Fatal(err)
	}
	w.Close()
	want := "\"2024-03-05T10:30:00Z\",\"42\",\"0.25\",\"true\"\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestWriterErrors(t *testing.T) {
	s := testSchema(t)
	w := NewWriter(io.Discard, nil)
	if err := w.Write(s); err != nil {
		t.Fatal(err)
	}
	if err := w.Write(testSchema(t)); !errors.Is(err, ErrMultipleSchemas) {
		t.Errorf("second schema: %v, want ErrMultipleSchemas", err)
	}
	if err := w.Write(geostream.NewRow("other")); !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("foreign row: %v, want ErrSchemaMismatch", err)
	}
	if err := w.Write(geostream.NewRow(s.ID)); err != nil {
		t.Errorf("row: %v", err)
	}
	if err := w.Write(testSchema(t)); err == nil {
		t.Error("schema after rows accepted")
	}
	w.Close()
	if err := w.Write(geostream.NewRow(s.ID)); !errors.Is(err, geostream.ErrClosed) {
		t.Errorf("after Close: %v, want ErrClosed", err)
	}
}

func TestWriterSchemaless(t *testing.T) {
	row := geostream.NewRow("")
	row.Put(geostream.MustField("b", geostream.FieldString), "x")
	row.Put(geostream.MustField("a", geostream.FieldInt), 3)
	var buf bytes.Buffer
	w := NewWriter(&buf, nil)
	if err := w.Write(row); err != nil {
		t.Fatal(err)
	}
	w.Close()
	if buf.String() != "\"x\",\"3\"\n" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestWriterSchemaOrdering(t *testing.T) {
	t.Run("schema after schemaless row", func(t *testing.T) {
		row := geostream.NewRow("")
		row.Put(geostream.MustField("a", geostream.FieldString), "x")
		var buf bytes.Buffer
		w := NewWriter(&buf, nil)
		if err := w.Write(row); err != nil {
			t.Fatal(err)
		}
		if err := w.Write(testSchema(t)); !errors.Is(err, geostream.ErrSchemaAfterRows) {
			t.Errorf("schema after row: %v, want ErrSchemaAfterRows", err)
		}
		w.Close()
		if buf.String() != "\"x\"\n" {
			t.Errorf("output = %q", buf.String())
		}
	})

	t.Run("schemaless row under a header", func(t *testing.T) {
		row := geostream.NewRow("")
		row.Put(geostream.MustField("zzz", geostream.FieldString), "x")
		var buf bytes.Buffer
		w := NewWriter(&buf, nil)
		if err := w.Write(testSchema(t)); err != nil {
			t.Fatal(err)
		}
		if err := w.Write(row); !errors.Is(err, ErrSchemaMismatch) {
			t.Errorf("schemaless row: %v, want ErrSchemaMismatch", err)
		}
		w.Close()
		if buf.String() != "\"name\",\"note\",\"city\"\n" {
			t.Errorf("output = %q", buf.String())
		}
	})
}
