package flatgeobuf

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/tingold/geostream"
)

func TestInferFieldType(t *testing.T) {
	tests := []struct {
		value    any
		expected geostream.FieldType
	}{
		{true, geostream.FieldBool},
		{42, geostream.FieldInt},
		{math.MaxInt32 + 1, geostream.FieldLong},
		{int16(42), geostream.FieldInt},
		{int64(42), geostream.FieldLong},
		{uint32(42), geostream.FieldLong},
		{float32(3.14), geostream.FieldFloat},
		{3.14, geostream.FieldDouble},
		{"hello", geostream.FieldString},
		{time.Now(), geostream.FieldDate},
		{json.Number("42"), geostream.FieldLong},
		{json.Number("4.2"), geostream.FieldDouble},
		{[]int{1}, geostream.FieldString},
	}

	for _, tt := range tests {
		if got := inferFieldType(tt.value); got != tt.expected {
			t.Errorf("inferFieldType(%#v) = %s, expected %s", tt.value, got, tt.expected)
		}
	}
}

func TestPromoteFieldType(t *testing.T) {
	tests := []struct {
		a, b     geostream.FieldType
		expected geostream.FieldType
	}{
		{geostream.FieldInt, geostream.FieldInt, geostream.FieldInt},
		{geostream.FieldInt, geostream.FieldLong, geostream.FieldLong},
		{geostream.FieldDouble, geostream.FieldInt, geostream.FieldDouble},
		{geostream.FieldBool, geostream.FieldShort, geostream.FieldShort},
		{geostream.FieldString, geostream.FieldInt, geostream.FieldString},
		{geostream.FieldDate, geostream.FieldLong, geostream.FieldString},
	}

	for _, tt := range tests {
		if got := promoteFieldType(tt.a, tt.b); got != tt.expected {
			t.Errorf("promoteFieldType(%s, %s) = %s, expected %s", tt.a, tt.b, got, tt.expected)
		}
	}
}

func TestColumnTypeMapping(t *testing.T) {
	for _, ft := range []geostream.FieldType{
		geostream.FieldString, geostream.FieldShort, geostream.FieldInt, geostream.FieldLong,
		geostream.FieldDouble, geostream.FieldFloat, geostream.FieldDate, geostream.FieldBool,
	} {
		back, err := fieldType(columnType(ft))
		if err != nil || back != ft {
			t.Errorf("%s -> %s -> %s, %v", ft, flattypes.EnumNamesColumnType[columnType(ft)], back, err)
		}
	}
}

func TestEncodeDecodeProperties(t *testing.T) {
	s, _ := geostream.NewSchemaWithFields("p",
		geostream.MustField("name", geostream.FieldString),
		geostream.MustField("count", geostream.FieldLong),
		geostream.MustField("missing", geostream.FieldInt),
		geostream.MustField("ok", geostream.FieldBool),
	)
	columns := make([]column, 0, s.Len())
	types := make([]flattypes.ColumnType, 0, s.Len())
	for _, f := range s.Fields() {
		columns = append(columns, column{field: f, ctype: columnType(f.Type)})
		types = append(types, columnType(f.Type))
	}

	row := geostream.NewRow(s.ID)
	row.Put(s.Fields()[0], "abc")
	row.Put(s.Fields()[1], "12")
	row.Put(s.Fields()[2], nil)
	row.Put(s.Fields()[3], false)

	data, err := encodeProperties(row, columns)
	if err != nil {
		t.Fatal(err)
	}
	// name: 2 + 4 + 3, count: 2 + 8, ok: 2 + 1
	if len(data) != 22 {
		t.Errorf("encoded %d bytes, want 22", len(data))
	}

	values, err := decodeProperties(data, types)
	if err != nil {
		t.Fatal(err)
	}
	if values[0] != "abc" || values[1] != int64(12) || values[3] != false {
		t.Errorf("values = %#v", values)
	}
	if _, ok := values[2]; ok {
		t.Error("nil value was encoded")
	}

	if _, err := decodeProperties(data[:len(data)-1], types); !errors.Is(err, ErrInvalidData) {
		t.Errorf("truncated: err = %v, want ErrInvalidData", err)
	}
	if _, err := decodeProperties([]byte{9, 0, 1}, types); !errors.Is(err, ErrInvalidData) {
		t.Errorf("bad index: err = %v, want ErrInvalidData", err)
	}
}

func TestReadPropertyValue_Binary(t *testing.T) {
	v, n, err := readPropertyValue([]byte{2, 0, 0, 0, 0xff, 0x00}, flattypes.ColumnTypeBinary)
	if err != nil || n != 6 || v != "/wA=" {
		t.Errorf("got %#v, %d, %v", v, n, err)
	}
}
