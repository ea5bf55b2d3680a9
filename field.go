package geostream

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// FieldType is the declared type of a SimpleField.
type FieldType int

const (
	FieldString FieldType = iota + 1
	FieldShort
	FieldInt
	FieldLong
	FieldDouble
	FieldFloat
	FieldDate
	FieldBool
)

var fieldTypeNames = map[FieldType]string{
	FieldString: "STRING",
	FieldShort:  "SHORT",
	FieldInt:    "INT",
	FieldLong:   "LONG",
	FieldDouble: "DOUBLE",
	FieldFloat:  "FLOAT",
	FieldDate:   "DATE",
	FieldBool:   "BOOL",
}

func (t FieldType) String() string {
	if name, ok := fieldTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("FieldType(%d)", int(t))
}

// ParseFieldType maps a name such as "double" back to its FieldType.
func ParseFieldType(name string) (FieldType, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for t, n := range fieldTypeNames {
		if n == upper {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown field type %q", ErrInvalidField, name)
}

// IsNumeric reports whether values of this type are numbers.
func (t FieldType) IsNumeric() bool {
	switch t {
	case FieldShort, FieldInt, FieldLong, FieldDouble, FieldFloat:
		return true
	}
	return false
}

// DefaultLength is the width used when a field declares no length.
func (t FieldType) DefaultLength() int {
	switch t {
	case FieldString:
		return 255
	case FieldShort:
		return 2
	case FieldInt, FieldFloat, FieldDate:
		return 4
	case FieldLong, FieldDouble:
		return 8
	case FieldBool:
		return 1
	}
	return 0
}

// SimpleField is one typed column of a Schema.
type SimpleField struct {
	Name   string
	Type   FieldType
	Length int // declared width; 0 means DefaultLength
	Scale  int // decimal digits, DOUBLE only
}

// NewField returns a field with a trimmed, non-blank name.
func NewField(name string, t FieldType) (*SimpleField, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: blank field name", ErrInvalidField)
	}
	if _, ok := fieldTypeNames[t]; !ok {
		return nil, fmt.Errorf("%w: field %q has unknown type %d", ErrInvalidField, name, int(t))
	}
	return &SimpleField{Name: name, Type: t}, nil
}

// MustField is like NewField but panics on error. Intended for literals.
func MustField(name string, t FieldType) *SimpleField {
	f, err := NewField(name, t)
	if err != nil {
		panic(err)
	}
	return f
}

// EffectiveLength returns Length, or the type's default when unset.
func (f *SimpleField) EffectiveLength() int {
	if f.Length > 0 {
		return f.Length
	}
	return f.Type.DefaultLength()
}

func (f *SimpleField) String() string {
	return fmt.Sprintf("%s %s(%d)", f.Name, f.Type, f.EffectiveLength())
}

// DateLayouts are tried in order by ParseDate.
var DateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"20060102",
}

// ParseDate parses s with the first matching layout of DateLayouts. Values
// without a zone are taken as UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range DateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized date %q", ErrIncompatibleValue, s)
}

// Compatible reports whether v may be stored in a field of type t. Strings are
// accepted everywhere; conversion happens when a codec coerces the value.
func Compatible(t FieldType, v any) bool {
	switch v.(type) {
	case nil, string:
		return true
	case time.Time:
		return t == FieldDate || t == FieldString
	case bool:
		return t == FieldBool || t == FieldString
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return t.IsNumeric() || t == FieldString || t == FieldBool
	case fmt.Stringer:
		return true
	}
	return false
}

// Coerce converts v to the canonical Go type of t: string, int16, int32, int64,
// float64, float32, time.Time or bool. A nil v yields nil.
func Coerce(t FieldType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(fmt.Stringer); ok {
		if _, isTime := v.(time.Time); !isTime {
			v = s.String()
		}
	}
	switch t {
	case FieldString:
		return coerceString(v), nil
	case FieldShort:
		n, err := coerceInt(v, math.MinInt16, math.MaxInt16)
		return int16(n), err
	case FieldInt:
		n, err := coerceInt(v, math.MinInt32, math.MaxInt32)
		return int32(n), err
	case FieldLong:
		return coerceInt(v, math.MinInt64, math.MaxInt64)
	case FieldDouble:
		return coerceFloat(v)
	case FieldFloat:
		f, err := coerceFloat(v)
		return float32(f), err
	case FieldDate:
		return coerceDate(v)
	case FieldBool:
		return coerceBool(v)
	}
	return nil, fmt.Errorf("%w: unknown field type %d", ErrInvalidField, int(t))
}

func coerceString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case time.Time:
		return x.UTC().Format("2006-01-02T15:04:05Z")
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	}
	return fmt.Sprint(v)
}

func coerceInt(v any, lo, hi int64) (int64, error) {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int8:
		n = int64(x)
	case int16:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case uint:
		n = int64(x)
	case uint8:
		n = int64(x)
	case uint16:
		n = int64(x)
	case uint32:
		n = int64(x)
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d out of range", ErrIncompatibleValue, x)
		}
		n = int64(x)
	case float32:
		return coerceInt(float64(x), lo, hi)
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) || math.IsNaN(x) {
			return 0, fmt.Errorf("%w: %v is not integral", ErrIncompatibleValue, x)
		}
		if x < float64(lo) || x > float64(hi) {
			return 0, fmt.Errorf("%w: %v out of range", ErrIncompatibleValue, x)
		}
		return int64(x), nil
	case bool:
		if x {
			n = 1
		}
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not an integer", ErrIncompatibleValue, x)
		}
		n = parsed
	default:
		return 0, fmt.Errorf("%w: %T is not an integer", ErrIncompatibleValue, v)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%w: %d out of range [%d, %d]", ErrIncompatibleValue, n, lo, hi)
	}
	return n, nil
}

func coerceFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrIncompatibleValue, x)
		}
		return f, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	}
	n, err := coerceInt(v, math.MinInt64, math.MaxInt64)
	return float64(n), err
}

func coerceDate(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		return ParseDate(x)
	}
	return time.Time{}, fmt.Errorf("%w: %T is not a date", ErrIncompatibleValue, v)
}

func coerceBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return false, nil
		}
		switch s[0] {
		case 'Y', 'y', 'T', 't', '1':
			return true, nil
		}
		return false, nil
	}
	n, err := coerceFloat(v)
	return n != 0, err
}
