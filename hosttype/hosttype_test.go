package hosttype

import (
	"errors"
	"go/types"
	"testing"
)

func TestFieldType(t *testing.T) {
	geo := types.NewPackage("example.com/geo-kit", "geo")
	point := types.NewNamed(types.NewTypeName(0, geo, "Point", nil), types.NewStruct(nil, nil), nil)
	meters := types.NewNamed(types.NewTypeName(0, geo, "Meters", nil), types.Typ[types.Float64], nil)
	errType := types.Universe.Lookup("error").Type()

	tests := []struct {
		name string
		typ  types.Type
		want string
	}{
		{"bool", types.Typ[types.Bool], "Z"},
		{"int8", types.Typ[types.Int8], "B"},
		{"uint8", types.Typ[types.Uint8], "B"},
		{"int16", types.Typ[types.Int16], "S"},
		{"uint16", types.Typ[types.Uint16], "C"},
		{"int32", types.Typ[types.Int32], "I"},
		{"uint32", types.Typ[types.Uint32], "I"},
		{"int", types.Typ[types.Int], "J"},
		{"uint64", types.Typ[types.Uint64], "J"},
		{"float32", types.Typ[types.Float32], "F"},
		{"float64", types.Typ[types.Float64], "D"},
		{"string", types.Typ[types.String], "Ljava/lang/String;"},
		{"slice", types.NewSlice(types.Typ[types.Int32]), "[I"},
		{"array of slices", types.NewArray(types.NewSlice(types.Typ[types.Uint8]), 4), "[[B"},
		{"pointer", types.NewPointer(point), "Lexample_com/geo_kit/Point;"},
		{"named basic", meters, "D"},
		{"any", types.NewInterfaceType(nil, nil), "Ljava/lang/Object;"},
		{"map", types.NewMap(types.Typ[types.String], types.Typ[types.Int]), "Ljava/util/Map;"},
		{"error", errType, "Ljava/lang/Throwable;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FieldType(tt.typ)
			if err != nil {
				t.Fatalf("FieldType(%s): %v", tt.typ, err)
			}
			if got.String() != tt.want {
				t.Errorf("FieldType(%s) = %s, want %s", tt.typ, got, tt.want)
			}
		})
	}
}

func TestFieldTypeUnsupported(t *testing.T) {
	for _, typ := range []types.Type{
		types.Typ[types.Complex128],
		types.NewChan(types.SendRecv, types.Typ[types.Int]),
		types.NewSignatureType(nil, nil, nil, nil, nil, false),
		types.NewSlice(types.Typ[types.Complex64]),
	} {
		if _, err := FieldType(typ); !errors.Is(err, ErrUnsupportedType) {
			t.Errorf("FieldType(%s) error = %v, want ErrUnsupportedType", typ, err)
		}
	}
}

func TestMethodDescriptor(t *testing.T) {
	str := types.Typ[types.String]
	errType := types.Universe.Lookup("error").Type()
	v := func(t types.Type) *types.Var { return types.NewParam(0, nil, "", t) }

	tests := []struct {
		name    string
		params  []*types.Var
		results []*types.Var
		want    string
	}{
		{"void", nil, nil, "()V"},
		{"one result", []*types.Var{v(str), v(types.Typ[types.Int64])}, []*types.Var{v(types.Typ[types.Bool])}, "(Ljava/lang/String;J)Z"},
		{"error only", []*types.Var{v(types.Typ[types.Float64])}, []*types.Var{v(errType)}, "(D)V"},
		{"value and error", nil, []*types.Var{v(str), v(errType)}, "()Ljava/lang/String;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := types.NewSignatureType(nil, nil, nil, types.NewTuple(tt.params...), types.NewTuple(tt.results...), false)
			got, err := MethodDescriptor(sig)
			if err != nil {
				t.Fatalf("MethodDescriptor: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("MethodDescriptor = %s, want %s", got, tt.want)
			}
		})
	}

	two := types.NewSignatureType(nil, nil, nil, nil, types.NewTuple(v(str), v(str)), false)
	if _, err := MethodDescriptor(two); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("two results error = %v, want ErrUnsupportedType", err)
	}
}

func TestLoadSignatures_Strings(t *testing.T) {
	sigs, err := LoadSignatures("strings")
	if err != nil {
		t.Fatalf("LoadSignatures(strings): %v", err)
	}

	found := make(map[string]string)
	for _, s := range sigs {
		found[s.Name] = s.Descriptor.String()
	}
	want := map[string]string{
		"Contains":  "(Ljava/lang/String;Ljava/lang/String;)Z",
		"Repeat":    "(Ljava/lang/String;J)Ljava/lang/String;",
		"Fields":    "(Ljava/lang/String;)[Ljava/lang/String;",
		"NewReader": "(Ljava/lang/String;)Lstrings/Reader;",
	}
	for name, desc := range want {
		if found[name] != desc {
			t.Errorf("%s = %q, want %q", name, found[name], desc)
		}
	}
	if _, ok := found["Cut"]; ok {
		t.Error("Cut has three results and should be skipped")
	}
}
