// Package llvm lowers the tensor IR to an LLVM module. Kernels are not
// inlined; every instruction becomes a call into the glowjit_* runtime with
// raw buffer pointers, so the emitted module stays small and the runtime
// library carries the math.
package llvm

import (
	"fmt"
	"os"
	"path/filepath"

	llvmir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/metadata"
	lltypes "github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/jygan/glow/internal/alloc"
	"github.com/jygan/glow/internal/ir"
	"github.com/jygan/glow/internal/tensor"
)

// Options configure one emission.
type Options struct {
	// EmitDebugInfo turns on debug metadata synthesis: the IR dump file,
	// source locations, parameter records and per-tensor global records.
	// Off by default; debug metadata costs module size and compile time.
	EmitDebugInfo bool

	// OutputDir receives the emitted artifacts. The synthesized source file
	// lands here too, because the locations in the binary point into it.
	OutputDir string
}

// Emitter lowers one IR module. Not safe for concurrent use; make one per
// compilation.
type Emitter struct {
	mod         *ir.Module
	allocations *alloc.Info
	numbering   *ir.Numbering
	opts        Options

	llmod  *llvmir.Module
	llmain *llvmir.Func
	entry  *llvmir.Block

	// buffers caches the lowered address of each tensor value.
	buffers map[ir.Value]value.Value
	kernels map[string]*llvmir.Func

	dbg        *debugInfo
	curLoc     *metadata.DILocation
	dbgDeclare *llvmir.Func
}

// NewEmitter prepares an emitter over a validated module and its allocation
// plan.
func NewEmitter(mod *ir.Module, info *alloc.Info, opts Options) *Emitter {
	return &Emitter{
		mod:         mod,
		allocations: info,
		numbering:   ir.NewNumbering(mod.Main),
		opts:        opts,
		buffers:     make(map[ir.Value]value.Value),
		kernels:     make(map[string]*llvmir.Func),
	}
}

// Emit lowers the module. The entry function takes the three region base
// pointers; all tensor addresses are static offsets from them.
func (e *Emitter) Emit() (*llvmir.Module, error) {
	e.llmod = llvmir.NewModule()
	if e.opts.EmitDebugInfo {
		// The source name must match the dump file the locations point into.
		e.llmod.SourceFilename = e.mod.Main.Name + irDumpExt
	}

	e.llmain = e.llmod.NewFunc(e.mod.Main.Name, lltypes.Void,
		llvmir.NewParam("constWeights", i8Ptr),
		llvmir.NewParam("mutableWeights", i8Ptr),
		llvmir.NewParam("activations", i8Ptr),
	)
	e.entry = e.llmain.NewBlock("entry")

	if err := e.initDebugInfo(); err != nil {
		return nil, err
	}
	if err := e.generateFunctionDebugInfo(e.llmain); err != nil {
		return nil, err
	}

	for _, in := range e.mod.Main.Instrs {
		if err := e.setCurrentDebugLocation(in); err != nil {
			return nil, err
		}
		if err := e.emitInstr(in); err != nil {
			return nil, fmt.Errorf("llvm: lower %q: %w", in.Name(), err)
		}
	}

	ret := e.entry.NewRet(nil)
	if e.dbg != nil && e.curLoc != nil {
		attachDebugTermLoc(ret, e.curLoc)
	}

	if err := e.generateDebugInfo(); err != nil {
		return nil, err
	}
	return e.llmod, nil
}

// WriteModule renders the lowered module as textual LLVM assembly under the
// output directory.
func (e *Emitter) WriteModule() (string, error) {
	if e.llmod == nil {
		return "", fmt.Errorf("llvm: module not emitted")
	}
	path := filepath.Join(e.opts.OutputDir, e.mod.Main.Name+".ll")
	if err := os.WriteFile(path, []byte(e.llmod.String()), 0o644); err != nil {
		return "", fmt.Errorf("llvm: write module: %w", err)
	}
	return path, nil
}

func (e *Emitter) emitInstr(in *ir.Instr) error {
	switch in.Kind {
	case ir.InstrAllocActivation, ir.InstrTensorView:
		// Materialize the address at the definition point so the address
		// computation carries this instruction's source location.
		_, err := e.bufferAddress(in)
		return err
	case ir.InstrDeallocActivation:
		// Storage is planned statically and never reused, so release is
		// a no-op in the lowered code.
		return nil
	case ir.InstrMatMul:
		return e.emitMatMul(in)
	case ir.InstrElementAdd:
		return e.emitElementwise(in, "elementadd")
	case ir.InstrRelu:
		return e.emitElementwise(in, "relu")
	case ir.InstrCopy:
		return e.emitCopy(in)
	}
	return fmt.Errorf("unhandled instruction kind %s", in.Kind)
}

// bufferAddress lowers a tensor value to its typed machine address: the
// region base parameter plus the value's static offset, cast to the element
// pointer type. Cached per value.
func (e *Emitter) bufferAddress(v ir.Value) (value.Value, error) {
	if addr, ok := e.buffers[v]; ok {
		return addr, nil
	}
	kind, offset, ok := e.allocations.Assigned(v)
	if !ok {
		return nil, fmt.Errorf("value %q has no allocation", v.Name())
	}
	var base value.Value
	switch kind {
	case alloc.ConstantWeight:
		base = e.llmain.Params[0]
	case alloc.MutableWeight:
		base = e.llmain.Params[1]
	case alloc.Activation:
		base = e.llmain.Params[2]
	default:
		return nil, fmt.Errorf("value %q: unknown storage class %v", v.Name(), kind)
	}

	ptrTy, err := elemPtrType(v.Type().Elem)
	if err != nil {
		return nil, err
	}
	gep := e.entry.NewGetElementPtr(lltypes.I8, base, constant.NewInt(lltypes.I64, int64(offset)))
	cast := e.entry.NewBitCast(gep, ptrTy)
	cast.LocalName = v.Name()
	e.stamp(gep)
	e.stamp(cast)
	e.buffers[v] = cast
	return cast, nil
}

func (e *Emitter) emitMatMul(in *ir.Instr) error {
	if len(in.Ops) != 3 {
		return fmt.Errorf("matmul wants 3 operands, got %d", len(in.Ops))
	}
	args, err := e.operandAddresses(in.Ops)
	if err != nil {
		return err
	}
	dest, lhs := in.Ops[0].Type(), in.Ops[1].Type()
	args = append(args,
		constant.NewInt(lltypes.I64, int64(dest.Dims[0])),
		constant.NewInt(lltypes.I64, int64(lhs.Dims[1])),
		constant.NewInt(lltypes.I64, int64(dest.Dims[1])),
	)
	fn, err := e.kernel("matmul", dest.Elem, 3, 3)
	if err != nil {
		return err
	}
	e.stamp(e.entry.NewCall(fn, args...))
	return nil
}

func (e *Emitter) emitElementwise(in *ir.Instr, op string) error {
	args, err := e.operandAddresses(in.Ops)
	if err != nil {
		return err
	}
	n := in.Ops[0].Type().NumElements()
	args = append(args, constant.NewInt(lltypes.I64, int64(n)))
	fn, err := e.kernel(op, in.Ops[0].Type().Elem, len(in.Ops), 1)
	if err != nil {
		return err
	}
	e.stamp(e.entry.NewCall(fn, args...))
	return nil
}

// emitCopy moves raw bytes between same-size buffers, so it works over i8
// pointers regardless of element kind.
func (e *Emitter) emitCopy(in *ir.Instr) error {
	if len(in.Ops) != 2 {
		return fmt.Errorf("copy wants 2 operands, got %d", len(in.Ops))
	}
	dst, err := e.bufferAddress(in.Ops[0])
	if err != nil {
		return err
	}
	src, err := e.bufferAddress(in.Ops[1])
	if err != nil {
		return err
	}
	dstRaw := e.entry.NewBitCast(dst, i8Ptr)
	srcRaw := e.entry.NewBitCast(src, i8Ptr)
	e.stamp(dstRaw)
	e.stamp(srcRaw)
	size := in.Ops[0].Type().SizeInBytes()
	fn := e.rawKernel("glowjit_copy", lltypes.Void,
		llvmir.NewParam("dest", i8Ptr),
		llvmir.NewParam("src", i8Ptr),
		llvmir.NewParam("size", lltypes.I64),
	)
	e.stamp(e.entry.NewCall(fn, dstRaw, srcRaw, constant.NewInt(lltypes.I64, int64(size))))
	return nil
}

func (e *Emitter) operandAddresses(ops []ir.Value) ([]value.Value, error) {
	args := make([]value.Value, 0, len(ops)+3)
	for _, op := range ops {
		addr, err := e.bufferAddress(op)
		if err != nil {
			return nil, err
		}
		args = append(args, addr)
	}
	return args, nil
}

// kernel declares (once) the runtime entry glowjit_<op>_<elem> taking nPtrs
// buffer pointers and nDims i64 extents.
func (e *Emitter) kernel(op string, elem tensor.ElemKind, nPtrs, nDims int) (*llvmir.Func, error) {
	name := fmt.Sprintf("glowjit_%s_%s", op, elemSuffix(elem))
	if fn, ok := e.kernels[name]; ok {
		return fn, nil
	}
	ptrTy, err := elemPtrType(elem)
	if err != nil {
		return nil, err
	}
	params := make([]*llvmir.Param, 0, nPtrs+nDims)
	for i := 0; i < nPtrs; i++ {
		params = append(params, llvmir.NewParam("", ptrTy))
	}
	for i := 0; i < nDims; i++ {
		params = append(params, llvmir.NewParam("", lltypes.I64))
	}
	fn := e.llmod.NewFunc(name, lltypes.Void, params...)
	e.kernels[name] = fn
	return fn, nil
}

func (e *Emitter) rawKernel(name string, ret lltypes.Type, params ...*llvmir.Param) *llvmir.Func {
	if fn, ok := e.kernels[name]; ok {
		return fn
	}
	fn := e.llmod.NewFunc(name, ret, params...)
	e.kernels[name] = fn
	return fn
}

func elemSuffix(k tensor.ElemKind) string {
	switch k {
	case tensor.Float32:
		return "f32"
	case tensor.Float16:
		return "f16"
	case tensor.Int8:
		return "i8"
	case tensor.Int32:
		return "i32"
	case tensor.Int64:
		return "i64"
	}
	return "invalid"
}
