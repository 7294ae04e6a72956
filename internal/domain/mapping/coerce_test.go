package mapping

import (
	"testing"
	"time"

	"github.com/cohortdesk/cohortdesk/internal/domain/schema"
)

func TestCoerce_Float(t *testing.T) {
	if v := Coerce("3.5", schema.TypeFloat); v.Kind != KindFloat || v.Float != 3.5 {
		t.Errorf("got %+v", v)
	}
	if v := Coerce(" 42 ", schema.TypeFloat); v.Kind != KindFloat || v.Float != 42 {
		t.Errorf("got %+v", v)
	}
	if v := Coerce("n/a", schema.TypeFloat); !v.IsNull() {
		t.Errorf("expected null, got %+v", v)
	}
	if v := Coerce("", schema.TypeFloat); !v.IsNull() {
		t.Errorf("expected null for blank, got %+v", v)
	}
}

func TestCoerce_Integer(t *testing.T) {
	if v := Coerce("7", schema.TypeInteger); v.Kind != KindInteger || v.Int != 7 {
		t.Errorf("got %+v", v)
	}
	if v := Coerce("7.0", schema.TypeInteger); v.Kind != KindInteger || v.Int != 7 {
		t.Errorf("spreadsheet-style integer: got %+v", v)
	}
	if v := Coerce("7.5", schema.TypeInteger); !v.IsNull() {
		t.Errorf("expected null for fractional, got %+v", v)
	}
}

func TestCoerce_Boolean(t *testing.T) {
	for _, raw := range []string{"true", "Yes", "1", "y", "CONFIRMED"} {
		if v := Coerce(raw, schema.TypeBoolean); v.Kind != KindBool || !v.Bool {
			t.Errorf("%q: expected true, got %+v", raw, v)
		}
	}
	for _, raw := range []string{"no", "false", "0", "pending"} {
		if v := Coerce(raw, schema.TypeBoolean); v.Kind != KindBool || v.Bool {
			t.Errorf("%q: expected false, got %+v", raw, v)
		}
	}
	if v := Coerce("", schema.TypeBoolean); !v.IsNull() {
		t.Errorf("expected null for blank, got %+v", v)
	}
}

func TestCoerce_Datetime(t *testing.T) {
	cases := map[string]time.Time{
		"03/15/2024":          time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		"2024-03-15":          time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		"25/12/2020":          time.Date(2020, 12, 25, 0, 0, 0, 0, time.UTC),
		"2024-03-15 09:30:00": time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC),
	}
	for raw, want := range cases {
		v := Coerce(raw, schema.TypeDatetime)
		if v.Kind != KindDatetime || !v.Time.Equal(want) {
			t.Errorf("%q: got %+v, want %v", raw, v, want)
		}
	}
	if v := Coerce("someday", schema.TypeDatetime); !v.IsNull() {
		t.Errorf("expected null, got %+v", v)
	}
}

func TestCoerce_StringPassthrough(t *testing.T) {
	if v := Coerce("  Clinic A  ", schema.TypeString); v.Kind != KindString || v.Str != "Clinic A" {
		t.Errorf("got %+v", v)
	}
	if v := Coerce("   ", schema.TypeString); !v.IsNull() {
		t.Errorf("expected null for whitespace, got %+v", v)
	}
}
