package tensor

import "testing"

func TestTypeSizeInBytes(t *testing.T) {
	cases := []struct {
		ty   Type
		want int
	}{
		{NewType(Float32, 2, 3), 24},
		{NewType(Float16, 4), 8},
		{NewType(Int8, 10, 10), 100},
		{NewType(Int64, 5), 40},
		{NewType(Float32), 4}, // scalar
	}
	for _, tc := range cases {
		if got := tc.ty.SizeInBytes(); got != tc.want {
			t.Errorf("%s.SizeInBytes() = %d, want %d", tc.ty, got, tc.want)
		}
	}
}

func TestTypeString(t *testing.T) {
	ty := NewType(Float32, 2, 3)
	if got, want := ty.String(), "float32<2 x 3>"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestTypeEqual(t *testing.T) {
	a := NewType(Float32, 2, 3)
	if !a.Equal(NewType(Float32, 2, 3)) {
		t.Error("identical types reported unequal")
	}
	if a.Equal(NewType(Float32, 3, 2)) {
		t.Error("different shapes reported equal")
	}
	if a.Equal(NewType(Int32, 2, 3)) {
		t.Error("different element kinds reported equal")
	}
}

func TestParseElemKind(t *testing.T) {
	for _, s := range []string{"float32", "f32"} {
		k, err := ParseElemKind(s)
		if err != nil || k != Float32 {
			t.Errorf("ParseElemKind(%q) = %v, %v; want Float32, nil", s, k, err)
		}
	}
	if _, err := ParseElemKind("complex128"); err == nil {
		t.Error("ParseElemKind accepted unknown kind")
	}
}
