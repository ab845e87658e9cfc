package llvm

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	llvmir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/metadata"
	lltypes "github.com/llir/llvm/ir/types"

	"github.com/jygan/glow/internal/alloc"
	"github.com/jygan/glow/internal/ir"
	"github.com/jygan/glow/internal/tensor"
)

func f32(dims ...int) tensor.Type {
	return tensor.NewType(tensor.Float32, dims...)
}

// tinyModule builds a module with three constant weights (the third under a
// name that needs normalization), one mutable result placeholder and one
// activation.
func tinyModule() *ir.Module {
	m := ir.NewModule("tinynet")
	m.AddWeight(ir.NewWeightVar("w0", f32(16), ir.Constant))         // const @0
	m.AddWeight(ir.NewWeightVar("w1", f32(16), ir.Constant))         // const @64
	m.AddWeight(ir.NewWeightVar("W-1.bias", f32(2, 3), ir.Constant)) // const @128
	m.AddWeight(ir.NewWeightVar("result", f32(2, 3), ir.Mutable))

	bias := m.Weights[2]
	res := m.Weights[3]
	act := ir.NewAllocActivation("act", f32(2, 3))
	m.Main.Append(act)
	m.Main.Append(ir.NewInstr(ir.InstrElementAdd, "act.op", act.Type(), act, bias, bias))
	m.Main.Append(ir.NewInstr(ir.InstrCopy, "save0", res.Type(), res, act))
	m.Main.Append(ir.NewDeallocActivation("act.free", act))
	return m
}

func emitTiny(t *testing.T, debug bool) (*Emitter, *llvmir.Module, string) {
	t.Helper()
	m := tinyModule()
	plan, err := alloc.Plan(m)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	dir := t.TempDir()
	e := NewEmitter(m, plan, Options{EmitDebugInfo: debug, OutputDir: dir})
	llmod, err := e.Emit()
	if err != nil {
		t.Fatalf("Emit() error: %v", err)
	}
	return e, llmod, dir
}

func globalByName(m *llvmir.Module, name string) *llvmir.Global {
	for _, g := range m.Globals {
		if g.GlobalName == name {
			return g
		}
	}
	return nil
}

func globalRecords(g *llvmir.Global) []*metadata.DIGlobalVariableExpression {
	var out []*metadata.DIGlobalVariableExpression
	for _, att := range g.Metadata {
		if att.Name != "dbg" {
			continue
		}
		if gve, ok := att.Node.(*metadata.DIGlobalVariableExpression); ok {
			out = append(out, gve)
		}
	}
	return out
}

func TestEmitWritesIRDump(t *testing.T) {
	_, _, dir := emitTiny(t, true)

	data, err := os.ReadFile(filepath.Join(dir, "tinynet.glow"))
	if err != nil {
		t.Fatalf("IR dump not written: %v", err)
	}
	text := string(data)
	if _, ok := ir.ScanBodyMarker(text); !ok {
		t.Fatalf("dump has no body marker:\n%s", text)
	}
	// The dump shows the normalized names the debug records use.
	if !strings.Contains(text, "W_1_bias") || strings.Contains(text, "W-1.bias") {
		t.Errorf("dump not normalized:\n%s", text)
	}
}

func TestBasePointerGlobals(t *testing.T) {
	_, llmod, _ := emitTiny(t, true)

	for _, name := range []string{
		"constWeightsBaseAddress",
		"mutableWeightsBaseAddress",
		"activationsBaseAddress",
	} {
		g := globalByName(llmod, name)
		if g == nil {
			t.Errorf("global %s missing", name)
			continue
		}
		if g.Linkage != enum.LinkageInternal {
			t.Errorf("%s linkage = %v, want internal", name, g.Linkage)
		}
	}
}

func TestDebugGlobalRecords(t *testing.T) {
	_, llmod, _ := emitTiny(t, true)

	constBase := globalByName(llmod, "constWeightsBaseAddress")
	mutBase := globalByName(llmod, "mutableWeightsBaseAddress")
	actBase := globalByName(llmod, "activationsBaseAddress")

	constRecs := globalRecords(constBase)
	if len(constRecs) != 3 {
		t.Fatalf("const base has %d records, want 3", len(constRecs))
	}
	if len(globalRecords(mutBase)) != 1 || len(globalRecords(actBase)) != 1 {
		t.Errorf("mutable/activation records = %d/%d, want 1/1",
			len(globalRecords(mutBase)), len(globalRecords(actBase)))
	}

	var bias *metadata.DIGlobalVariableExpression
	for _, rec := range constRecs {
		if rec.Var.Name == "W_1_bias" {
			bias = rec
		}
	}
	if bias == nil {
		t.Fatal("no record named W_1_bias on the const base")
	}

	// Address recipe: deref the base, then add the static offset.
	fields := bias.Expr.Fields
	if len(fields) != 4 {
		t.Fatalf("expression has %d fields, want 4", len(fields))
	}
	if op, ok := fields[0].(enum.DwarfOp); !ok || op != enum.DwarfOpDeref {
		t.Errorf("field 0 = %v, want DW_OP_deref", fields[0])
	}
	if op, ok := fields[1].(enum.DwarfOp); !ok || op != enum.DwarfOpConstu {
		t.Errorf("field 1 = %v, want DW_OP_constu", fields[1])
	}
	if off, ok := fields[2].(metadata.UintLit); !ok || off != 128 {
		t.Errorf("field 2 = %v, want 128", fields[2])
	}
	if op, ok := fields[3].(enum.DwarfOp); !ok || op != enum.DwarfOpPlus {
		t.Errorf("field 3 = %v, want DW_OP_plus", fields[3])
	}

	// A [2 x 3] float tensor is a 2-D array of 24 bytes.
	arr, ok := bias.Var.Type.(*metadata.DICompositeType)
	if !ok {
		t.Fatalf("record type is %T, want composite array", bias.Var.Type)
	}
	if arr.Tag != enum.DwarfTagArrayType || arr.Size != 24*8 {
		t.Errorf("array tag/size = %v/%d, want array/%d", arr.Tag, arr.Size, 24*8)
	}
	subs := arr.Elements
	if subs == nil || len(subs.Fields) != 2 {
		t.Fatalf("array has %T elements, want tuple of 2 subranges", arr.Elements)
	}
}

func TestDebugOffByDefault(t *testing.T) {
	_, llmod, dir := emitTiny(t, false)

	if _, err := os.Stat(filepath.Join(dir, "tinynet.glow")); !errors.Is(err, os.ErrNotExist) {
		t.Error("IR dump written without the debug flag")
	}
	for _, name := range []string{
		"constWeightsBaseAddress",
		"mutableWeightsBaseAddress",
		"activationsBaseAddress",
	} {
		if globalByName(llmod, name) != nil {
			t.Errorf("base global %s emitted without the debug flag", name)
		}
	}
	if len(llmod.MetadataDefs) != 0 {
		t.Errorf("%d metadata definitions emitted without the debug flag", len(llmod.MetadataDefs))
	}
	if llmod.SourceFilename != "" {
		t.Errorf("source filename %q points at a dump that is never written", llmod.SourceFilename)
	}
}

func TestSyntheticLines(t *testing.T) {
	e, _, dir := emitTiny(t, true)

	data, err := os.ReadFile(filepath.Join(dir, "tinynet.glow"))
	if err != nil {
		t.Fatal(err)
	}
	markerLine, ok := ir.ScanBodyMarker(string(data))
	if !ok {
		t.Fatal("no marker")
	}
	if e.dbg.firstInstrLine != markerLine+1 {
		t.Fatalf("firstInstrLine = %d, want %d", e.dbg.firstInstrLine, markerLine+1)
	}

	// The elementadd kernel call must carry the line of instruction 1.
	wantLine := int64(e.dbg.firstInstrLine + 1)
	var got []int64
	for _, inst := range e.entry.Insts {
		call, ok := inst.(*llvmir.InstCall)
		if !ok {
			continue
		}
		callee, ok := call.Callee.(*llvmir.Func)
		if !ok || !strings.HasPrefix(callee.GlobalName, "glowjit_elementadd") {
			continue
		}
		for _, att := range call.Metadata {
			if att.Name != "dbg" {
				continue
			}
			loc := att.Node.(*metadata.DILocation)
			got = append(got, loc.Line)
			if loc.Column != 0 {
				t.Errorf("column = %d, want 0", loc.Column)
			}
			if loc.Scope != metadata.Field(e.dbg.mainSubprogram) {
				t.Error("location scope is not the entry subprogram")
			}
		}
	}
	if len(got) != 1 || got[0] != wantLine {
		t.Errorf("elementadd call lines = %v, want [%d]", got, wantLine)
	}
}

func TestEveryInstructionLocated(t *testing.T) {
	e, _, _ := emitTiny(t, true)

	for _, inst := range e.entry.Insts {
		if !hasDebugLoc(instAttachments(inst)) {
			t.Errorf("instruction %T has no location", inst)
		}
	}
	if !hasDebugLoc(termAttachments(e.entry.Term)) {
		t.Error("terminator has no location")
	}
}

func TestParameterShadows(t *testing.T) {
	e, _, _ := emitTiny(t, true)

	var allocas, declares int
	var names []string
	for _, inst := range e.entry.Insts {
		switch i := inst.(type) {
		case *llvmir.InstAlloca:
			allocas++
		case *llvmir.InstCall:
			callee, ok := i.Callee.(*llvmir.Func)
			if ok && callee.GlobalName == "llvm.dbg.declare" {
				declares++
				arg := i.Args[1].(mdArg)
				pvar := arg.node.(*metadata.DILocalVariable)
				names = append(names, pvar.Name)
			}
		}
	}
	if allocas != 3 || declares != 3 {
		t.Fatalf("got %d allocas, %d declares; want 3, 3", allocas, declares)
	}
	for i, want := range []string{"arg1", "arg2", "arg3"} {
		if names[i] != want {
			t.Errorf("parameter %d named %q, want %q", i, names[i], want)
		}
	}
}

func TestDebugTypeCache(t *testing.T) {
	e, _, _ := emitTiny(t, true)

	first, err := e.getDebugType(lltypes.Float)
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.getDebugType(lltypes.Float)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("float debug type not memoized")
	}

	i64, err := e.getDebugType(lltypes.I64)
	if err != nil {
		t.Fatal(err)
	}
	if bt := i64.(*metadata.DIBasicType); bt.Name != "size_t" || bt.Encoding != enum.DwarfAttEncodingUnsigned {
		t.Errorf("i64 debug type = %q/%v, want size_t/unsigned", bt.Name, bt.Encoding)
	}

	i8, err := e.getDebugType(lltypes.I8)
	if err != nil {
		t.Fatal(err)
	}
	if bt := i8.(*metadata.DIBasicType); bt.Name != "int8" {
		t.Errorf("i8 debug type = %q, want int8", bt.Name)
	}

	void, err := e.getDebugType(lltypes.Void)
	if err != nil || void != nil {
		t.Errorf("void debug type = %v, %v; want nil, nil", void, err)
	}
	// The nil result is itself cached.
	if _, cached := e.dbg.types[lltypes.Type(lltypes.Void)]; !cached {
		t.Error("void not present in the cache")
	}

	ptr, err := e.getDebugType(f32Ptr)
	if err != nil {
		t.Fatal(err)
	}
	dt := ptr.(*metadata.DIDerivedType)
	if dt.Tag != enum.DwarfTagPointerType || dt.BaseType != first {
		t.Error("pointer debug type does not reference the cached pointee")
	}

	if _, err := e.getDebugType(lltypes.NewStruct(lltypes.I32)); !errors.Is(err, ErrUnsupportedDebugType) {
		t.Errorf("struct type error = %v, want ErrUnsupportedDebugType", err)
	}
}

func TestSubprogramIdempotent(t *testing.T) {
	e, _, _ := emitTiny(t, true)

	sp1, err := e.getOrCreateFunctionDebugInfo(e.llmain)
	if err != nil {
		t.Fatal(err)
	}
	sp2, err := e.getOrCreateFunctionDebugInfo(e.llmain)
	if err != nil {
		t.Fatal(err)
	}
	if sp1 == nil || sp1 != sp2 {
		t.Error("repeated calls returned different subprograms")
	}
	if sp1 != e.dbg.mainSubprogram {
		t.Error("entry subprogram differs from the cached one")
	}

	// Toolchain intrinsics get no subprogram.
	sp, err := e.getOrCreateFunctionDebugInfo(e.dbgDeclareFunc())
	if err != nil || sp != nil {
		t.Errorf("llvm.dbg.declare subprogram = %v, %v; want nil, nil", sp, err)
	}
}

func TestDumpWithoutBodyMarker(t *testing.T) {
	if _, err := scanFirstInstrLine("function tiny()\n", "tiny.glow"); !errors.Is(err, ErrNoIRBody) {
		t.Fatalf("scanFirstInstrLine() = %v, want ErrNoIRBody", err)
	}
	line, err := scanFirstInstrLine("function tiny()\ncode {\n  %0 = alloc\n}\n", "tiny.glow")
	if err != nil || line != 3 {
		t.Errorf("scanFirstInstrLine() = %d, %v; want 3, nil", line, err)
	}
}

func TestSubprogramMismatchDetected(t *testing.T) {
	e, _, _ := emitTiny(t, true)

	// Something swapped the attached descriptor behind the emitter's back.
	for _, att := range e.llmain.Metadata {
		if att.Name == "dbg" {
			att.Node = &metadata.DISubprogram{Name: "imposter"}
		}
	}
	if _, err := e.getOrCreateFunctionDebugInfo(e.llmain); !errors.Is(err, ErrSubprogramMismatch) {
		t.Fatalf("getOrCreateFunctionDebugInfo() = %v, want ErrSubprogramMismatch", err)
	}
}

func TestFinalPassRequiresSubprograms(t *testing.T) {
	e, llmod, _ := emitTiny(t, true)

	// A defined function that slipped past subprogram creation.
	f := llmod.NewFunc("stray", lltypes.Void)
	f.NewBlock("").NewRet(nil)

	if err := e.generateDebugInfo(); !errors.Is(err, ErrMissingSubprogram) {
		t.Fatalf("generateDebugInfo() = %v, want ErrMissingSubprogram", err)
	}
}

func TestDebugNameCollision(t *testing.T) {
	m := ir.NewModule("clash")
	m.AddWeight(ir.NewWeightVar("a.b", f32(4), ir.Constant))
	m.AddWeight(ir.NewWeightVar("a-b", f32(4), ir.Constant))

	plan, err := alloc.Plan(m)
	if err != nil {
		t.Fatal(err)
	}
	e := NewEmitter(m, plan, Options{EmitDebugInfo: true, OutputDir: t.TempDir()})
	_, err = e.Emit()
	if !errors.Is(err, ErrDebugNameCollision) {
		t.Fatalf("Emit() = %v, want ErrDebugNameCollision", err)
	}
}

func TestCompileUnitRegistered(t *testing.T) {
	_, llmod, _ := emitTiny(t, true)

	named, ok := llmod.NamedMetadataDefs["llvm.dbg.cu"]
	if !ok || len(named.Nodes) != 1 {
		t.Fatal("llvm.dbg.cu missing or empty")
	}
	cu, ok := named.Nodes[0].(*metadata.DICompileUnit)
	if !ok {
		t.Fatalf("llvm.dbg.cu node is %T", named.Nodes[0])
	}
	if cu.Producer != "Glow Compiler" {
		t.Errorf("producer = %q, want Glow Compiler", cu.Producer)
	}
	if cu.EmissionKind != enum.EmissionKindFullDebug {
		t.Errorf("emission kind = %v, want full debug", cu.EmissionKind)
	}
	if _, ok := llmod.NamedMetadataDefs["llvm.module.flags"]; !ok {
		t.Error("llvm.module.flags missing")
	}
}
