// Package tensor defines element kinds and shaped tensor types shared by the
// graph, the instruction IR and the allocation planner.
package tensor

import (
	"fmt"
	"strings"
)

// ElemKind enumerates the element types a tensor can hold.
type ElemKind uint8

const (
	// Float32 is a 32-bit IEEE-754 floating point element.
	Float32 ElemKind = iota
	// Float16 is a 16-bit IEEE-754 floating point element.
	Float16
	// Int8 is an 8-bit integer element, used by quantized tensors.
	Int8
	// Int32 is a 32-bit integer element.
	Int32
	// Int64 is a 64-bit integer element, used for index tensors.
	Int64
)

// Size returns the element size in bytes.
func (k ElemKind) Size() int {
	switch k {
	case Float32:
		return 4
	case Float16:
		return 2
	case Int8:
		return 1
	case Int32:
		return 4
	case Int64:
		return 8
	}
	return 0
}

func (k ElemKind) String() string {
	switch k {
	case Float32:
		return "float32"
	case Float16:
		return "float16"
	case Int8:
		return "int8"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	}
	return "invalid"
}

// ParseElemKind maps a manifest dtype string to an ElemKind.
func ParseElemKind(s string) (ElemKind, error) {
	switch s {
	case "float32", "f32":
		return Float32, nil
	case "float16", "f16":
		return Float16, nil
	case "int8", "i8":
		return Int8, nil
	case "int32", "i32":
		return Int32, nil
	case "int64", "i64":
		return Int64, nil
	}
	return 0, fmt.Errorf("unknown element kind %q", s)
}

// Type describes the element kind and shape of one tensor. Dims are ordered
// outermost first.
type Type struct {
	Elem ElemKind
	Dims []int
}

// NewType builds a tensor type from an element kind and dimension extents.
func NewType(elem ElemKind, dims ...int) Type {
	return Type{Elem: elem, Dims: dims}
}

// NumElements returns the product of all dimension extents.
func (t Type) NumElements() int {
	n := 1
	for _, d := range t.Dims {
		n *= d
	}
	return n
}

// SizeInBytes returns the total byte size of a tensor of this type.
func (t Type) SizeInBytes() int {
	return t.NumElements() * t.Elem.Size()
}

// Equal reports whether two tensor types have the same element kind and shape.
func (t Type) Equal(o Type) bool {
	if t.Elem != o.Elem || len(t.Dims) != len(o.Dims) {
		return false
	}
	for i := range t.Dims {
		if t.Dims[i] != o.Dims[i] {
			return false
		}
	}
	return true
}

func (t Type) String() string {
	var sb strings.Builder
	sb.WriteString(t.Elem.String())
	sb.WriteString("<")
	for i, d := range t.Dims {
		if i > 0 {
			sb.WriteString(" x ")
		}
		fmt.Fprintf(&sb, "%d", d)
	}
	sb.WriteString(">")
	return sb.String()
}
