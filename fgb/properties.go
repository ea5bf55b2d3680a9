package flatgeobuf

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/tingold/geostream"
)

// column pairs a schema field with the type it is stored as.
type column struct {
	field *geostream.SimpleField
	ctype flattypes.ColumnType
}

// columnType returns the storage type of a field type.
func columnType(t geostream.FieldType) flattypes.ColumnType {
	switch t {
	case geostream.FieldBool:
		return flattypes.ColumnTypeBool
	case geostream.FieldShort:
		return flattypes.ColumnTypeShort
	case geostream.FieldInt:
		return flattypes.ColumnTypeInt
	case geostream.FieldLong:
		return flattypes.ColumnTypeLong
	case geostream.FieldFloat:
		return flattypes.ColumnTypeFloat
	case geostream.FieldDouble:
		return flattypes.ColumnTypeDouble
	case geostream.FieldDate:
		return flattypes.ColumnTypeDateTime
	default:
		return flattypes.ColumnTypeString
	}
}

// fieldType returns the field type a stored column decodes to.
func fieldType(c flattypes.ColumnType) (geostream.FieldType, error) {
	switch c {
	case flattypes.ColumnTypeBool:
		return geostream.FieldBool, nil
	case flattypes.ColumnTypeByte, flattypes.ColumnTypeUByte, flattypes.ColumnTypeShort:
		return geostream.FieldShort, nil
	case flattypes.ColumnTypeUShort, flattypes.ColumnTypeInt:
		return geostream.FieldInt, nil
	case flattypes.ColumnTypeUInt, flattypes.ColumnTypeLong, flattypes.ColumnTypeULong:
		return geostream.FieldLong, nil
	case flattypes.ColumnTypeFloat:
		return geostream.FieldFloat, nil
	case flattypes.ColumnTypeDouble:
		return geostream.FieldDouble, nil
	case flattypes.ColumnTypeDateTime:
		return geostream.FieldDate, nil
	case flattypes.ColumnTypeString, flattypes.ColumnTypeJson, flattypes.ColumnTypeBinary:
		return geostream.FieldString, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrInvalidColumn, c)
}

// inferFieldType determines the field type for a Go value.
func inferFieldType(value any) geostream.FieldType {
	switch v := value.(type) {
	case bool:
		return geostream.FieldBool
	case int:
		if v >= math.MinInt32 && v <= math.MaxInt32 {
			return geostream.FieldInt
		}
		return geostream.FieldLong
	case int8, int16, int32, uint8, uint16:
		return geostream.FieldInt
	case int64, uint, uint32, uint64:
		return geostream.FieldLong
	case float32:
		return geostream.FieldFloat
	case float64:
		return geostream.FieldDouble
	case time.Time:
		return geostream.FieldDate
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return geostream.FieldLong
		}
		return geostream.FieldDouble
	default:
		return geostream.FieldString
	}
}

// promoteFieldType returns the more general type when two values of one
// column disagree.
func promoteFieldType(a, b geostream.FieldType) geostream.FieldType {
	if a == b {
		return a
	}
	rank := map[geostream.FieldType]int{
		geostream.FieldBool:   0,
		geostream.FieldShort:  1,
		geostream.FieldInt:    2,
		geostream.FieldLong:   3,
		geostream.FieldFloat:  4,
		geostream.FieldDouble: 5,
	}
	ra, okA := rank[a]
	rb, okB := rank[b]
	if !okA || !okB {
		return geostream.FieldString
	}
	if ra > rb {
		return a
	}
	return b
}

// inferSchema builds a schema from the values of schemaless features, in
// order of first appearance. Nil values do not vote.
func inferSchema(features []*geostream.Feature) *geostream.Schema {
	types := make(map[string]geostream.FieldType)
	var order []string
	for _, f := range features {
		for _, fld := range f.Fields() {
			v, _ := f.Value(fld.Name)
			prev, seen := types[fld.Name]
			if !seen {
				order = append(order, fld.Name)
			}
			if v == nil {
				if !seen {
					types[fld.Name] = fld.Type
				}
				continue
			}
			t := inferFieldType(v)
			if seen {
				t = promoteFieldType(prev, t)
			}
			types[fld.Name] = t
		}
	}
	s := geostream.NewSchema("")
	for _, name := range order {
		s.Put(geostream.MustField(name, types[name]))
	}
	return s
}

// encodeProperties encodes the non-nil values of r in column order. Each
// value is a little-endian uint16 column index followed by the value bytes.
func encodeProperties(r *geostream.Row, columns []column) ([]byte, error) {
	var buf bytes.Buffer
	var scratch [8]byte

	for i, col := range columns {
		value, ok := r.Value(col.field.Name)
		if !ok || value == nil {
			continue
		}
		v, err := geostream.Coerce(col.field.Type, value)
		if err != nil {
			return nil, fmt.Errorf("%w: column %q: %v", ErrPropertyMismatch, col.field.Name, err)
		}

		binary.LittleEndian.PutUint16(scratch[:2], uint16(i))
		buf.Write(scratch[:2])

		switch col.ctype {
		case flattypes.ColumnTypeBool:
			if v.(bool) {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}
		case flattypes.ColumnTypeShort:
			binary.LittleEndian.PutUint16(scratch[:2], uint16(v.(int16)))
			buf.Write(scratch[:2])
		case flattypes.ColumnTypeInt:
			binary.LittleEndian.PutUint32(scratch[:4], uint32(v.(int32)))
			buf.Write(scratch[:4])
		case flattypes.ColumnTypeLong:
			binary.LittleEndian.PutUint64(scratch[:8], uint64(v.(int64)))
			buf.Write(scratch[:8])
		case flattypes.ColumnTypeFloat:
			binary.LittleEndian.PutUint32(scratch[:4], math.Float32bits(v.(float32)))
			buf.Write(scratch[:4])
		case flattypes.ColumnTypeDouble:
			binary.LittleEndian.PutUint64(scratch[:8], math.Float64bits(v.(float64)))
			buf.Write(scratch[:8])
		case flattypes.ColumnTypeDateTime:
			writeString(&buf, v.(time.Time).UTC().Format(time.RFC3339Nano))
		default:
			s, _ := geostream.Coerce(geostream.FieldString, v)
			writeString(&buf, s.(string))
		}
	}

	return buf.Bytes(), nil
}

// writeString writes a uint32 byte length followed by the UTF-8 bytes.
func writeString(buf *bytes.Buffer, s string) {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(s)))
	buf.Write(n[:])
	buf.WriteString(s)
}

// decodeProperties decodes property bytes into values keyed by column index.
func decodeProperties(data []byte, types []flattypes.ColumnType) (map[int]any, error) {
	values := make(map[int]any)
	offset := 0

	for offset < len(data) {
		if offset+2 > len(data) {
			return nil, fmt.Errorf("%w: truncated column index", ErrInvalidData)
		}
		idx := int(binary.LittleEndian.Uint16(data[offset : offset+2]))
		offset += 2

		if idx >= len(types) {
			return nil, fmt.Errorf("%w: column index %d out of range", ErrInvalidData, idx)
		}

		value, n, err := readPropertyValue(data[offset:], types[idx])
		if err != nil {
			return nil, err
		}
		offset += n
		values[idx] = value
	}

	return values, nil
}

// readPropertyValue reads one value and returns it with the number of bytes
// consumed.
func readPropertyValue(data []byte, colType flattypes.ColumnType) (any, int, error) {
	need := func(n int) error {
		if len(data) < n {
			return fmt.Errorf("%w: %s value needs %d bytes, %d left", ErrInvalidData, flattypes.EnumNamesColumnType[colType], n, len(data))
		}
		return nil
	}

	switch colType {
	case flattypes.ColumnTypeBool:
		if err := need(1); err != nil {
			return nil, 0, err
		}
		return data[0] != 0, 1, nil

	case flattypes.ColumnTypeByte:
		if err := need(1); err != nil {
			return nil, 0, err
		}
		return int8(data[0]), 1, nil

	case flattypes.ColumnTypeUByte:
		if err := need(1); err != nil {
			return nil, 0, err
		}
		return data[0], 1, nil

	case flattypes.ColumnTypeShort:
		if err := need(2); err != nil {
			return nil, 0, err
		}
		return int16(binary.LittleEndian.Uint16(data[:2])), 2, nil

	case flattypes.ColumnTypeUShort:
		if err := need(2); err != nil {
			return nil, 0, err
		}
		return binary.LittleEndian.Uint16(data[:2]), 2, nil

	case flattypes.ColumnTypeInt:
		if err := need(4); err != nil {
			return nil, 0, err
		}
		return int32(binary.LittleEndian.Uint32(data[:4])), 4, nil

	case flattypes.ColumnTypeUInt:
		if err := need(4); err != nil {
			return nil, 0, err
		}
		return binary.LittleEndian.Uint32(data[:4]), 4, nil

	case flattypes.ColumnTypeLong:
		if err := need(8); err != nil {
			return nil, 0, err
		}
		return int64(binary.LittleEndian.Uint64(data[:8])), 8, nil

	case flattypes.ColumnTypeULong:
		if err := need(8); err != nil {
			return nil, 0, err
		}
		return binary.LittleEndian.Uint64(data[:8]), 8, nil

	case flattypes.ColumnTypeFloat:
		if err := need(4); err != nil {
			return nil, 0, err
		}
		return math.Float32frombits(binary.LittleEndian.Uint32(data[:4])), 4, nil

	case flattypes.ColumnTypeDouble:
		if err := need(8); err != nil {
			return nil, 0, err
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(data[:8])), 8, nil

	case flattypes.ColumnTypeString, flattypes.ColumnTypeDateTime, flattypes.ColumnTypeJson, flattypes.ColumnTypeBinary:
		if err := need(4); err != nil {
			return nil, 0, err
		}
		n := int(binary.LittleEndian.Uint32(data[:4]))
		if err := need(4 + n); err != nil {
			return nil, 0, err
		}
		raw := data[4 : 4+n]
		if colType == flattypes.ColumnTypeBinary {
			return base64.StdEncoding.EncodeToString(raw), 4 + n, nil
		}
		return string(raw), 4 + n, nil
	}
	return nil, 0, fmt.Errorf("%w: %d", ErrInvalidColumn, colType)
}
