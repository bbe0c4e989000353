package dyniface

import (
	"errors"
	"testing"

	"github.com/flowd-org/slicerwrap/internal/types"
)

func intPtr(i int) *int { return &i }

func testSchema() *types.Schema {
	return &types.Schema{
		Parameters: []types.ParameterDescriptor{
			{Name: "fixedVolume", Kind: types.Kind{Scalar: types.ScalarImage}, Flag: "--fixedVolume ", Format: "%s", ExistsRequired: true},
			{Name: "iterations", Kind: types.Kind{Scalar: types.ScalarInteger}, Flag: "--iterations ", Format: "%d"},
			{Name: "scales", Kind: types.Kind{Scalar: types.ScalarFloat, Vector: true}, Flag: "--scales ", Format: "%f", Separator: ","},
			{Name: "verbose", Kind: types.Kind{Scalar: types.ScalarBoolean}, Flag: "--verbose "},
			{Name: "mode", Kind: types.Kind{Scalar: types.ScalarStringEnum}, Flag: "--mode ", Format: "%s", EnumValues: []string{"Off", "On"}},
			{Name: "inputList", Kind: types.Kind{Scalar: types.ScalarFile}, Index: intPtr(0), Format: "%s"},
			{Name: "outputTransform", Kind: types.Kind{Scalar: types.ScalarTransform}, Role: types.RoleOutput, Flag: "--outputTransform ", Format: "%s", DefaultFilename: "/work/outputTransform.txt"},
		},
		Outputs:   []string{"outputTransform"},
		Filenames: map[string]string{"outputTransform": "/work/outputTransform.txt"},
	}
}

func TestNewStartsUndefined(t *testing.T) {
	iface := New(testSchema())
	for _, name := range iface.Inputs.Names() {
		v, err := iface.Inputs.Get(name)
		if err != nil {
			t.Fatalf("Get(%s): %v", name, err)
		}
		if v.IsDefined() {
			t.Fatalf("expected %s undefined, got %v", name, v)
		}
	}
	if got := iface.Outputs.Names(); len(got) != 1 || got[0] != "outputTransform" {
		t.Fatalf("unexpected outputs %v", got)
	}
}

func TestUndefinedDiffersFromZeroValues(t *testing.T) {
	iface := New(testSchema())
	if err := iface.Inputs.Set("verbose", false); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, _ := iface.Inputs.Get("verbose")
	if !v.IsDefined() || v.Equal(Undefined) {
		t.Fatalf("false must be distinct from undefined")
	}
	if err := iface.Inputs.Set("verbose", Undefined); err != nil {
		t.Fatalf("reset: %v", err)
	}
	v, _ = iface.Inputs.Get("verbose")
	if v.IsDefined() {
		t.Fatalf("expected reset to undefined")
	}
}

func TestSetValidatesKinds(t *testing.T) {
	iface := New(testSchema())
	cases := []struct {
		field string
		value any
		ok    bool
	}{
		{"iterations", 10, true},
		{"iterations", 1.5, false},
		{"iterations", "10", false},
		{"scales", []float64{1, 0.5}, true},
		{"scales", []int{1, 2}, true},
		{"scales", []string{"a"}, false},
		{"scales", []float64{}, false},
		{"scales", 1.0, false},
		{"mode", "On", true},
		{"mode", "Maybe", false},
		{"fixedVolume", "/data/fixed.nii", true},
		{"fixedVolume", "", false},
		{"fixedVolume", true, false},
		{"outputTransform", true, true},
		{"outputTransform", false, true},
		{"outputTransform", "/tmp/t.h5", true},
		{"outputTransform", 3, false},
	}
	for _, tc := range cases {
		err := iface.Inputs.Set(tc.field, tc.value)
		if tc.ok && err != nil {
			t.Fatalf("Set(%s, %v): unexpected error %v", tc.field, tc.value, err)
		}
		if !tc.ok {
			var ive *InvalidValueError
			if !errors.As(err, &ive) {
				t.Fatalf("Set(%s, %v): expected InvalidValueError, got %v", tc.field, tc.value, err)
			}
		}
	}
	v, _ := iface.Inputs.Get("scales")
	if got, ok := v.Raw().([]float64); !ok || len(got) != 2 || got[0] != 1 {
		t.Fatalf("expected integer vector stored as floats, got %#v", v.Raw())
	}
}

func TestNumericCoercionIsSymmetric(t *testing.T) {
	iface := New(&types.Schema{Parameters: []types.ParameterDescriptor{
		{Name: "iterations", Kind: types.Kind{Scalar: types.ScalarInteger}, Flag: "--iterations ", Format: "%d"},
		{Name: "sigma", Kind: types.Kind{Scalar: types.ScalarFloat}, Flag: "--sigma ", Format: "%f"},
	}})
	values := []any{int(2), int8(2), int16(2), int32(2), int64(2), uint(2), uint8(2), uint16(2), uint32(2), uint64(2)}
	for _, v := range values {
		if err := iface.Inputs.Set("iterations", v); err != nil {
			t.Fatalf("Set(iterations, %T): %v", v, err)
		}
		if err := iface.Inputs.Set("sigma", v); err != nil {
			t.Fatalf("Set(sigma, %T): %v", v, err)
		}
		got, _ := iface.Inputs.Get("sigma")
		if got.Raw() != float64(2) {
			t.Fatalf("expected sigma stored as float64 2 for %T, got %#v", v, got.Raw())
		}
	}
	if err := iface.Inputs.Set("scales", []any{int8(1), uint16(2)}); err == nil {
		t.Fatalf("expected unknown field error for scales")
	}
	vec := New(testSchema())
	if err := vec.Inputs.Set("scales", []any{int8(1), uint16(2)}); err != nil {
		t.Fatalf("Set(scales): %v", err)
	}
}

func TestUnknownField(t *testing.T) {
	iface := New(testSchema())
	if err := iface.Inputs.Set("nope", 1); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
	if _, err := iface.Outputs.Get("fixedVolume"); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("inputs are not outputs, got %v", err)
	}
}

func TestParseText(t *testing.T) {
	iface := New(testSchema())
	steps := map[string]string{
		"iterations":      "42",
		"scales":          "1.5, 2",
		"verbose":         "true",
		"outputTransform": "false",
	}
	for field, text := range steps {
		if err := iface.Inputs.Parse(field, text); err != nil {
			t.Fatalf("Parse(%s, %q): %v", field, text, err)
		}
	}
	if v, _ := iface.Inputs.Get("iterations"); v.Raw() != int64(42) {
		t.Fatalf("expected 42, got %#v", v.Raw())
	}
	if v, _ := iface.Inputs.Get("outputTransform"); v.Raw() != false {
		t.Fatalf("expected toggle false, got %#v", v.Raw())
	}
	if err := iface.Inputs.Parse("outputTransform", "out/t.txt"); err != nil {
		t.Fatalf("Parse path: %v", err)
	}
	if v, _ := iface.Inputs.Get("outputTransform"); v.Raw() != "out/t.txt" {
		t.Fatalf("expected path, got %#v", v.Raw())
	}
	if err := iface.Inputs.Parse("iterations", "ten"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestInstancesAreIndependent(t *testing.T) {
	schema := testSchema()
	a := New(schema)
	b := New(schema)
	if err := a.Inputs.Set("iterations", 5); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, _ := b.Inputs.Get("iterations"); v.IsDefined() {
		t.Fatalf("instance b observed instance a's value")
	}
	schema.Parameters[4].EnumValues[0] = "Changed"
	if err := a.Inputs.Set("mode", "Off"); err != nil {
		t.Fatalf("instance enum values must not alias the schema: %v", err)
	}
}

func TestOnChangeOnlyReportsAssignments(t *testing.T) {
	iface := New(testSchema())
	var seen []string
	iface.Inputs.OnChange(func(name string, old, new Value) {
		if old.IsDefined() {
			t.Fatalf("unexpected previous value for %s", name)
		}
		seen = append(seen, name+"="+new.String())
	})
	if len(seen) != 0 {
		t.Fatalf("no notifications expected before assignment")
	}
	if err := iface.Inputs.Set("mode", "On"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if len(seen) != 1 || seen[0] != "mode=On" {
		t.Fatalf("unexpected notifications %v", seen)
	}
}
