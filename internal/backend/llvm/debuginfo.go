package llvm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	llvmir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/metadata"
	lltypes "github.com/llir/llvm/ir/types"

	"github.com/jygan/glow/internal/alloc"
	"github.com/jygan/glow/internal/ir"
)

// Extension of the synthesized source file holding the entry function's IR
// dump. A debugger steps through this file; its line numbering is the
// authoritative source of every emitted location.
const irDumpExt = ".glow"

// debugInfo is the per-compilation debug metadata state. It lives on the
// emitter, never in package state, so concurrent compilations cannot
// interfere.
type debugInfo struct {
	builder *diBuilder

	// Identity-keyed cache of debug type descriptors. The nil entry for
	// void is cached too, hence the presence map rather than nil checks.
	types map[lltypes.Type]metadata.Field

	file        *metadata.DIFile
	compileUnit *metadata.DICompileUnit

	// mainSubprogram scopes every synthesized instruction location.
	mainSubprogram *metadata.DISubprogram
	subprograms    map[*llvmir.Func]*metadata.DISubprogram

	// firstInstrLine is the dump line of instruction 0 (marker line + 1).
	firstInstrLine int

	// Base-pointer globals mirroring the entry function's first three
	// arguments, so a debugger can recompute tensor addresses.
	constWeightsBase   *llvmir.Global
	mutableWeightsBase *llvmir.Global
	activationsBase    *llvmir.Global

	// debugNames maps normalized tensor names to their origin value,
	// guarding against post-normalization collisions.
	debugNames map[string]ir.Value
}

// initDebugInfo sets up the debug scaffolding for the module: normalized
// tensor names, the synthesized source file, the compile unit, the three
// base-pointer globals and the entry function's subprogram. Must run after
// the entry function and block exist but before any instruction is lowered.
func (e *Emitter) initDebugInfo() error {
	if !e.opts.EmitDebugInfo {
		return nil
	}
	e.dbg = &debugInfo{
		builder:     newDIBuilder(e.llmod),
		types:       make(map[lltypes.Type]metadata.Field),
		subprograms: make(map[*llvmir.Func]*metadata.DISubprogram),
		debugNames:  make(map[string]ir.Value),
	}

	// Normalize weight and activation names so debuggers can key on them.
	for _, w := range e.mod.Weights {
		w.SetName(ir.NormalizeName(w.Name()))
	}
	for _, in := range e.mod.Main.Instrs {
		if in.IsTensorValue() {
			in.SetName(ir.NormalizeName(in.Name()))
		}
	}

	// Mirror the base addresses into globals. The debugger reads tensor
	// contents through these; the compiled code itself never does.
	e.dbg.constWeightsBase = e.newBasePointerGlobal("constWeightsBaseAddress")
	e.dbg.mutableWeightsBase = e.newBasePointerGlobal("mutableWeightsBaseAddress")
	e.dbg.activationsBase = e.newBasePointerGlobal("activationsBaseAddress")
	e.stamp(e.entry.NewStore(e.llmain.Params[0], e.dbg.constWeightsBase))
	e.stamp(e.entry.NewStore(e.llmain.Params[1], e.dbg.mutableWeightsBase))
	e.stamp(e.entry.NewStore(e.llmain.Params[2], e.dbg.activationsBase))

	// Dump the IR after normalization so the file shows the same names the
	// debug records use.
	content := ir.DumpString(e.mod.Main)
	dir, err := filepath.Abs(e.opts.OutputDir)
	if err != nil {
		return fmt.Errorf("llvm: resolve output dir: %w", err)
	}
	fileName := e.mod.Main.Name + irDumpExt
	fullPath := filepath.Join(dir, fileName)
	// Single blocking write; the scan below depends on the flushed file.
	if err := os.WriteFile(fullPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("llvm: write IR dump: %w", err)
	}

	firstLine, err := scanFirstInstrLine(content, fileName)
	if err != nil {
		return err
	}
	e.dbg.firstInstrLine = firstLine

	e.dbg.file = e.dbg.builder.createFile(fileName, dir)
	e.dbg.compileUnit = e.dbg.builder.createCompileUnit(e.dbg.file, "Glow Compiler")

	sp, err := e.getOrCreateFunctionDebugInfo(e.llmain)
	if err != nil {
		return err
	}
	e.dbg.mainSubprogram = sp
	return nil
}

// scanFirstInstrLine locates the body marker in a dump and returns the line
// of instruction 0, the one right below the marker.
func scanFirstInstrLine(content, fileName string) (int, error) {
	markerLine, ok := ir.ScanBodyMarker(content)
	if !ok {
		return 0, fmt.Errorf("llvm: %s: %w", fileName, ErrNoIRBody)
	}
	return markerLine + 1, nil
}

func (e *Emitter) newBasePointerGlobal(name string) *llvmir.Global {
	g := e.llmod.NewGlobalDef(name, constant.NewNull(i8Ptr))
	g.Linkage = enum.LinkageInternal
	return g
}

// getDebugType maps a machine type to its debug descriptor, memoized per
// emitter. The supported set is closed: void, 32-bit float, integers
// (64-bit doubles as size_t), and pointers. Anything else is a compiler
// defect.
func (e *Emitter) getDebugType(ty lltypes.Type) (metadata.Field, error) {
	if cached, ok := e.dbg.types[ty]; ok {
		return cached, nil
	}
	var dty metadata.Field
	switch t := ty.(type) {
	case *lltypes.VoidType:
		dty = nil
	case *lltypes.FloatType:
		switch t.Kind {
		case lltypes.FloatKindFloat:
			dty = e.dbg.builder.createBasicType("float", 32, enum.DwarfAttEncodingFloat)
		case lltypes.FloatKindHalf:
			dty = e.dbg.builder.createBasicType("half", 16, enum.DwarfAttEncodingFloat)
		default:
			return nil, fmt.Errorf("llvm: %w: %v", ErrUnsupportedDebugType, ty)
		}
	case *lltypes.IntType:
		if t.BitSize == 64 {
			// The target's size type.
			dty = e.dbg.builder.createBasicType("size_t", 64, enum.DwarfAttEncodingUnsigned)
		} else {
			name := fmt.Sprintf("int%d", t.BitSize)
			dty = e.dbg.builder.createBasicType(name, t.BitSize, enum.DwarfAttEncodingUnsigned)
		}
	case *lltypes.PointerType:
		pointee, err := e.getDebugType(t.ElemType)
		if err != nil {
			return nil, err
		}
		dty = e.dbg.builder.createPointerType(pointee, 64)
	default:
		return nil, fmt.Errorf("llvm: %w: %v", ErrUnsupportedDebugType, ty)
	}
	e.dbg.types[ty] = dty
	return dty, nil
}

// getOrCreateFunctionDebugInfo returns the subprogram descriptor for a
// function, creating it on first call. Functions with empty names or in the
// toolchain's own namespaces get none: debugging them is meaningless.
// Idempotent; a second call returns the identical descriptor.
func (e *Emitter) getOrCreateFunctionDebugInfo(f *llvmir.Func) (*metadata.DISubprogram, error) {
	name := f.GlobalName
	if name == "" || strings.HasPrefix(name, "llvm.") || strings.HasPrefix(name, "glowjit_") {
		return nil, nil
	}
	if sp, ok := e.dbg.subprograms[f]; ok {
		if attached := functionSubprogram(f); attached != nil && attached != sp {
			return nil, fmt.Errorf("llvm: %s: %w", name, ErrSubprogramMismatch)
		}
		return sp, nil
	}

	// Signature: result type first, then each parameter's debug type.
	sigTypes := make([]metadata.Field, 0, len(f.Params)+1)
	retTy, err := e.getDebugType(f.Sig.RetType)
	if err != nil {
		return nil, err
	}
	sigTypes = append(sigTypes, retTy)
	for _, p := range f.Params {
		pty, err := e.getDebugType(p.Typ)
		if err != nil {
			return nil, err
		}
		sigTypes = append(sigTypes, pty)
	}
	sig := e.dbg.builder.createSubroutineType(sigTypes)
	sp := e.dbg.builder.createFunction(name, e.dbg.file, e.dbg.file, 0, sig)
	f.Metadata = append(f.Metadata, &metadata.Attachment{Name: "dbg", Node: sp})
	e.dbg.subprograms[f] = sp
	return sp, nil
}

// generateFunctionDebugInfo materializes a local shadow for every parameter
// of f: an entry-block alloca, a store of the incoming value, and an
// arg<N> parameter variable bound to the slot. Debuggers read stack slots,
// not SSA values; without the shadows the arguments would be invisible.
func (e *Emitter) generateFunctionDebugInfo(f *llvmir.Func) error {
	if !e.opts.EmitDebugInfo {
		return nil
	}
	sp, err := e.getOrCreateFunctionDebugInfo(f)
	if err != nil {
		return err
	}
	if sp == nil || len(f.Blocks) == 0 {
		return nil
	}
	entry := f.Blocks[0]
	loc := e.dbg.builder.createLocation(0, 0, sp)
	for i, p := range f.Params {
		shadow := entry.NewAlloca(p.Typ)
		pty, err := e.getDebugType(p.Typ)
		if err != nil {
			return err
		}
		paramName := fmt.Sprintf("arg%d", i+1)
		pvar := e.dbg.builder.createParameterVariable(sp, paramName, i+1, e.dbg.file, 0, pty)
		st := entry.NewStore(p, shadow)
		attachDebugLoc(shadow, loc)
		attachDebugLoc(st, loc)
		e.insertDeclare(entry, shadow, pvar, loc)
	}
	return nil
}

// insertDeclare records that pvar lives in the given stack slot, via the
// llvm.dbg.declare intrinsic.
func (e *Emitter) insertDeclare(block *llvmir.Block, slot *llvmir.InstAlloca, pvar *metadata.DILocalVariable, loc *metadata.DILocation) {
	call := block.NewCall(e.dbgDeclareFunc(),
		&metadata.Value{Value: slot},
		mdArg{node: pvar},
		mdArg{node: e.dbg.builder.createExpression()},
	)
	attachDebugLoc(call, loc)
}

func (e *Emitter) dbgDeclareFunc() *llvmir.Func {
	if e.dbgDeclare == nil {
		e.dbgDeclare = e.llmod.NewFunc("llvm.dbg.declare", lltypes.Void,
			llvmir.NewParam("", lltypes.Metadata),
			llvmir.NewParam("", lltypes.Metadata),
			llvmir.NewParam("", lltypes.Metadata),
		)
	}
	return e.dbgDeclare
}

// setCurrentDebugLocation computes the synthetic location of a tensor IR
// instruction and makes it the emitter's current location: machine
// instructions emitted from now on inherit it until the next call.
//
// The line is firstInstrLine + the instruction's stable number. The
// numbering is fixed before lowering starts, so lines stay correct even when
// instructions lower out of order.
func (e *Emitter) setCurrentDebugLocation(in *ir.Instr) error {
	if !e.opts.EmitDebugInfo {
		return nil
	}
	num, ok := e.numbering.InstrNumber(in)
	if !ok {
		return fmt.Errorf("llvm: instruction %q has no stable number", in.Name())
	}
	line := int64(e.dbg.firstInstrLine + num)
	e.curLoc = e.dbg.builder.createLocation(line, 0, e.dbg.mainSubprogram)
	return nil
}

// stamp attaches the current debug location to a freshly emitted
// instruction. A nil current location (debug info off, or before the first
// located instruction) leaves the instruction bare; the final sweep fills
// those in.
func (e *Emitter) stamp(inst llvmir.Instruction) {
	if e.dbg == nil || e.curLoc == nil {
		return
	}
	attachDebugLoc(inst, e.curLoc)
}

// fillMissingDebugLocations sweeps every function that carries debug info
// and gives location-less instructions a line-0 location at the function's
// scope. Location gaps inside a tracked function make LLVM drop unrelated
// metadata (parameter types among it), so coverage must be total. Functions
// without debug info stay untouched.
func (e *Emitter) fillMissingDebugLocations() error {
	for _, f := range e.llmod.Funcs {
		if len(f.Blocks) == 0 {
			continue
		}
		sp := e.dbg.subprograms[f]
		if sp == nil {
			continue
		}
		var def *metadata.DILocation
		for _, bb := range f.Blocks {
			for _, inst := range bb.Insts {
				if hasDebugLoc(instAttachments(inst)) {
					continue
				}
				if def == nil {
					def = e.dbg.builder.createLocation(0, 0, sp)
				}
				if !attachDebugLoc(inst, def) {
					return fmt.Errorf("llvm: cannot attach location to %T", inst)
				}
			}
			if !hasDebugLoc(termAttachments(bb.Term)) {
				if def == nil {
					def = e.dbg.builder.createLocation(0, 0, sp)
				}
				if !attachDebugTermLoc(bb.Term, def) {
					return fmt.Errorf("llvm: cannot attach location to %T", bb.Term)
				}
			}
		}
	}
	return nil
}

// emitDebugGlobalVariable synthesizes a global-variable debug record for one
// logical tensor. The record's address is a computation, not a constant:
// dereference the storage class's base-pointer global, then add the tensor's
// static offset. Offsets are compile-time fixed; base addresses bind at
// entry-function invocation.
func (e *Emitter) emitDebugGlobalVariable(v ir.Value) error {
	name := v.Name()
	origin := ir.Origin(v)

	if prev, taken := e.dbg.debugNames[name]; taken {
		if prev != origin {
			return fmt.Errorf("llvm: %w: %q", ErrDebugNameCollision, name)
		}
		return nil
	}
	e.dbg.debugNames[name] = origin

	// An N-dimensional tensor becomes an N-dimensional C array, so the
	// debugger's natural tensor[i][j]...[k] notation works.
	ty := origin.Type()
	scalarTy, err := elemScalarType(ty.Elem)
	if err != nil {
		return err
	}
	elemDbg, err := e.getDebugType(scalarTy)
	if err != nil {
		return err
	}
	dims := make([]int64, len(ty.Dims))
	for i, d := range ty.Dims {
		dims[i] = int64(d)
	}
	arrayTy := e.dbg.builder.createArrayType(uint64(ty.SizeInBytes())*8, elemDbg, dims)

	kind, offset, ok := e.allocations.Assigned(origin)
	if !ok {
		return fmt.Errorf("llvm: tensor %q has no allocation", origin.Name())
	}
	var base *llvmir.Global
	switch kind {
	case alloc.ConstantWeight:
		base = e.dbg.constWeightsBase
	case alloc.MutableWeight:
		base = e.dbg.mutableWeightsBase
	case alloc.Activation:
		base = e.dbg.activationsBase
	default:
		return fmt.Errorf("llvm: tensor %q: unknown storage class %v", origin.Name(), kind)
	}

	expr := e.dbg.builder.createExpression(
		enum.DwarfOpDeref,
		enum.DwarfOpConstu,
		metadata.UintLit(offset),
		enum.DwarfOpPlus,
	)
	gve := e.dbg.builder.createGlobalVariableExpression(name, e.dbg.compileUnit, e.dbg.file, arrayTy, expr)
	base.Metadata = append(base.Metadata, &metadata.Attachment{Name: "dbg", Node: gve})
	return nil
}

// generateDebugInfo is the final debug pass: it checks the all-functions-
// tracked precondition, emits a global-variable record for every weight and
// every activation or view, fills location gaps, finalizes the builder and
// verifies the whole module. Runs exactly once, after every function has
// been lowered.
func (e *Emitter) generateDebugInfo() error {
	if !e.opts.EmitDebugInfo {
		return nil
	}

	for _, f := range e.llmod.Funcs {
		if len(f.Blocks) == 0 {
			continue
		}
		if e.dbg.subprograms[f] == nil {
			return fmt.Errorf("llvm: %s: %w", f.GlobalName, ErrMissingSubprogram)
		}
	}

	if err := e.fillMissingDebugLocations(); err != nil {
		return err
	}

	for _, w := range e.mod.Weights {
		if err := e.emitDebugGlobalVariable(w); err != nil {
			return err
		}
	}
	for _, in := range e.mod.Main.Instrs {
		if !in.IsTensorValue() {
			continue
		}
		if err := e.emitDebugGlobalVariable(in); err != nil {
			return err
		}
	}

	if err := e.dbg.builder.Finalize(); err != nil {
		return err
	}
	return e.verifyEmittedModule()
}

// verifyEmittedModule runs the verifier and classifies its findings: debug
// metadata defects surface as ErrBrokenDebugInfo, anything else as
// ErrBrokenModule.
func (e *Emitter) verifyEmittedModule() error {
	var brokenDebugInfo bool
	if err := verifyModule(e.llmod, &brokenDebugInfo); err != nil {
		if brokenDebugInfo {
			return fmt.Errorf("llvm: %w: %v", ErrBrokenDebugInfo, err)
		}
		return fmt.Errorf("llvm: %w: %v", ErrBrokenModule, err)
	}
	return nil
}

// functionSubprogram returns the subprogram attached to f, if any.
func functionSubprogram(f *llvmir.Func) *metadata.DISubprogram {
	for _, att := range f.Metadata {
		if att.Name != "dbg" {
			continue
		}
		if sp, ok := att.Node.(*metadata.DISubprogram); ok {
			return sp
		}
	}
	return nil
}
