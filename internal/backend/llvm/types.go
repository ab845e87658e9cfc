package llvm

import (
	"fmt"

	lltypes "github.com/llir/llvm/ir/types"

	"github.com/jygan/glow/internal/tensor"
)

// The emitter hands out one Go value per distinct machine type so the
// identity-keyed debug type cache sees stable keys.
var (
	i8Ptr  = lltypes.NewPointer(lltypes.I8)
	f32Ptr = lltypes.NewPointer(lltypes.Float)
	f16Ptr = lltypes.NewPointer(lltypes.Half)
	i32Ptr = lltypes.NewPointer(lltypes.I32)
	i64Ptr = lltypes.NewPointer(lltypes.I64)
)

// elemPtrType returns the pointer type a kernel takes for buffers of the
// given element kind.
func elemPtrType(k tensor.ElemKind) (*lltypes.PointerType, error) {
	switch k {
	case tensor.Float32:
		return f32Ptr, nil
	case tensor.Float16:
		return f16Ptr, nil
	case tensor.Int8:
		return i8Ptr, nil
	case tensor.Int32:
		return i32Ptr, nil
	case tensor.Int64:
		return i64Ptr, nil
	}
	return nil, fmt.Errorf("no machine pointer type for element kind %s", k)
}

// elemScalarType returns the scalar machine type of an element kind.
func elemScalarType(k tensor.ElemKind) (lltypes.Type, error) {
	switch k {
	case tensor.Float32:
		return lltypes.Float, nil
	case tensor.Float16:
		return lltypes.Half, nil
	case tensor.Int8:
		return lltypes.I8, nil
	case tensor.Int32:
		return lltypes.I32, nil
	case tensor.Int64:
		return lltypes.I64, nil
	}
	return nil, fmt.Errorf("no machine type for element kind %s", k)
}
