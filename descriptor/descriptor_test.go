package descriptor

import (
	"errors"
	"testing"
)

func TestParseField(t *testing.T) {
	tests := []struct {
		in    string
		slots int
	}{
		{"I", 1},
		{"J", 2},
		{"D", 2},
		{"Z", 1},
		{"Ljava/lang/String;", 1},
		{"[I", 1},
		{"[[Ljava/lang/Object;", 1},
	}

	for _, tt := range tests {
		ft, err := ParseField(tt.in)
		if err != nil {
			t.Errorf("ParseField(%q): %v", tt.in, err)
			continue
		}
		if got := ft.String(); got != tt.in {
			t.Errorf("ParseField(%q).String() = %q", tt.in, got)
		}
		if got := ft.Slots(); got != tt.slots {
			t.Errorf("ParseField(%q).Slots() = %d, want %d", tt.in, got, tt.slots)
		}
	}
}

func TestParseFieldMalformed(t *testing.T) {
	for _, in := range []string{"", "V", "L;", "Ljava/lang/String", "Q", "II", "["} {
		if _, err := ParseField(in); !errors.Is(err, ErrMalformed) {
			t.Errorf("ParseField(%q) error = %v, want ErrMalformed", in, err)
		}
	}
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("(IJLjava/lang/String;[D)V")
	if err != nil {
		t.Fatalf("ParseMethod: %v", err)
	}
	if len(m.Params) != 4 {
		t.Fatalf("len(Params) = %d, want 4", len(m.Params))
	}
	if !m.Return.IsVoid() {
		t.Errorf("Return = %s, want V", m.Return)
	}
	if got := m.ParamSlots(); got != 5 {
		t.Errorf("ParamSlots() = %d, want 5", got)
	}
	if got := m.String(); got != "(IJLjava/lang/String;[D)V" {
		t.Errorf("String() = %q", got)
	}
}

func TestParseMethodMalformed(t *testing.T) {
	for _, in := range []string{"", "I", "(I", "(V)V", "()", "()VV"} {
		if _, err := ParseMethod(in); !errors.Is(err, ErrMalformed) {
			t.Errorf("ParseMethod(%q) error = %v, want ErrMalformed", in, err)
		}
	}
}

func TestNewMethod(t *testing.T) {
	m := NewMethod(IntType, ObjectType("java/lang/String"), ArrayOf(LongType))
	if got := m.String(); got != "(Ljava/lang/String;[J)I" {
		t.Errorf("String() = %q", got)
	}
}

func TestFieldTypeEqual(t *testing.T) {
	a := ArrayOf(ObjectType("x/Y"))
	b, _ := ParseField("[Lx/Y;")
	if !a.Equal(b) {
		t.Errorf("%s should equal %s", a, b)
	}
	if a.Equal(ArrayOf(IntType)) {
		t.Errorf("%s should not equal [I", a)
	}
}
