package geostream

import (
	"errors"
	"testing"
	"time"
)

func TestParseFieldType(t *testing.T) {
	for ft, name := range fieldTypeNames {
		got, err := ParseFieldType(name)
		if err != nil || got != ft {
			t.Errorf("ParseFieldType(%q) = %v, %v", name, got, err)
		}
	}
	if got, err := ParseFieldType(" double "); err != nil || got != FieldDouble {
		t.Errorf("expected case and space insensitive parse, got %v, %v", got, err)
	}
	if _, err := ParseFieldType("blob"); !errors.Is(err, ErrInvalidField) {
		t.Errorf("expected ErrInvalidField, got %v", err)
	}
}

func TestNewField(t *testing.T) {
	f, err := NewField("  name ", FieldString)
	if err != nil {
		t.Fatalf("NewField failed: %v", err)
	}
	if f.Name != "name" {
		t.Errorf("expected trimmed name, got %q", f.Name)
	}
	if f.EffectiveLength() != 255 {
		t.Errorf("expected default string length 255, got %d", f.EffectiveLength())
	}
	if _, err := NewField("   ", FieldInt); !errors.Is(err, ErrInvalidField) {
		t.Errorf("expected ErrInvalidField for blank name, got %v", err)
	}
}

func TestCoerce(t *testing.T) {
	day := time.Date(2011, 3, 14, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		typ     FieldType
		in      any
		want    any
		wantErr bool
	}{
		{"nil", FieldInt, nil, nil, false},
		{"string to short", FieldShort, " 120", int16(120), false},
		{"short overflow", FieldShort, 40000, nil, true},
		{"int from float", FieldInt, 42.0, int32(42), false},
		{"int from fraction", FieldInt, 42.5, nil, true},
		{"long from string", FieldLong, "9000000000", int64(9000000000), false},
		{"double from int", FieldDouble, 3, float64(3), false},
		{"float from string", FieldFloat, "1.5", float32(1.5), false},
		{"bad number", FieldDouble, "abc", nil, true},
		{"date from string", FieldDate, "20110314", day, false},
		{"date from iso", FieldDate, "2011-03-14T00:00:00Z", day, false},
		{"bool from T", FieldBool, "T", true, false},
		{"bool from n", FieldBool, "n", false, false},
		{"string from float", FieldString, 79.5, "79.5", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.typ, tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Coerce() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrIncompatibleValue) {
					t.Errorf("expected ErrIncompatibleValue, got %v", err)
				}
				return
			}
			if tm, ok := tt.want.(time.Time); ok {
				if got.(time.Time).Equal(tm) {
					return
				}
			}
			if got != tt.want {
				t.Errorf("Coerce() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestRow_Put(t *testing.T) {
	altitude := MustField("altitude", FieldShort)
	when := MustField("when", FieldDate)

	row := NewRow("s1")
	if err := row.Put(altitude, 120); err != nil {
		t.Fatalf("Put number failed: %v", err)
	}
	if err := row.Put(when, "20110314"); err != nil {
		t.Fatalf("Put string date failed: %v", err)
	}
	if err := row.Put(when, true); !errors.Is(err, ErrIncompatibleValue) {
		t.Errorf("expected ErrIncompatibleValue for bool date, got %v", err)
	}
	if err := row.Put(altitude, nil); err != nil {
		t.Fatalf("Put nil failed: %v", err)
	}

	if row.Len() != 2 {
		t.Errorf("expected 2 fields, got %d", row.Len())
	}
	if v, ok := row.Value("altitude"); !ok || v != nil {
		t.Errorf("expected present nil altitude, got %v, %v", v, ok)
	}
	if row.Fields()[0].Name != "altitude" {
		t.Errorf("expected field order to be kept, got %v", row.Fields()[0].Name)
	}
}

func TestSchema_PutAndFreeze(t *testing.T) {
	s := NewSchema("")
	if len(s.ID) != len("s_")+36 {
		t.Errorf("expected generated id, got %q", s.ID)
	}

	if err := s.Put(MustField("a", FieldInt)); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(MustField("b", FieldString)); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(MustField("a", FieldDouble)); err != nil {
		t.Fatal(err)
	}

	keys := s.Keys()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("unexpected keys %v", keys)
	}
	if f, _ := s.Field("a"); f.Type != FieldDouble {
		t.Errorf("expected replaced field type DOUBLE, got %v", f.Type)
	}

	s.Freeze()
	if err := s.Put(MustField("c", FieldBool)); !errors.Is(err, ErrSchemaFrozen) {
		t.Errorf("expected ErrSchemaFrozen, got %v", err)
	}
}
