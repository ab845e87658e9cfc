package llvm

import (
	"fmt"

	llvmir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/metadata"
	lltypes "github.com/llir/llvm/ir/types"
)

// diBuilder collects debug metadata nodes for one module and wires them into
// the module on Finalize. Nodes stay unregistered (no metadata ID) until
// then, which keeps forward references cheap: identity is the Go pointer.
type diBuilder struct {
	m         *llvmir.Module
	defs      []metadata.Definition
	cu        *metadata.DICompileUnit
	finalized bool
}

func newDIBuilder(m *llvmir.Module) *diBuilder {
	return &diBuilder{m: m}
}

// track registers a node for ID assignment at finalization.
func (b *diBuilder) track(d metadata.Definition) {
	b.defs = append(b.defs, d)
}

func (b *diBuilder) createFile(filename, dir string) *metadata.DIFile {
	f := &metadata.DIFile{Filename: filename, Directory: dir}
	b.track(f)
	return f
}

func (b *diBuilder) createCompileUnit(file *metadata.DIFile, producer string) *metadata.DICompileUnit {
	cu := &metadata.DICompileUnit{
		Distinct:              true,
		Language:              enum.DwarfLangC99,
		File:                  file,
		Producer:              producer,
		EmissionKind:          enum.EmissionKindFullDebug,
		SplitDebugInlining:    true,
		DebugInfoForProfiling: true,
	}
	b.cu = cu
	b.track(cu)
	return cu
}

func (b *diBuilder) createBasicType(name string, sizeBits uint64, encoding enum.DwarfAttEncoding) *metadata.DIBasicType {
	t := &metadata.DIBasicType{Name: name, Size: sizeBits, Encoding: encoding}
	b.track(t)
	return t
}

func (b *diBuilder) createPointerType(pointee metadata.Field, sizeBits uint64) *metadata.DIDerivedType {
	t := &metadata.DIDerivedType{
		Tag:      enum.DwarfTagPointerType,
		BaseType: pointee,
		Size:     sizeBits,
	}
	b.track(t)
	return t
}

func (b *diBuilder) createArrayType(sizeBits uint64, elem metadata.Field, dims []int64) *metadata.DICompositeType {
	subranges := make([]metadata.Field, len(dims))
	for i, d := range dims {
		sub := &metadata.DISubrange{Count: metadata.IntLit(d)}
		b.track(sub)
		subranges[i] = sub
	}
	subscripts := b.createTuple(subranges)
	t := &metadata.DICompositeType{
		Tag:      enum.DwarfTagArrayType,
		Size:     sizeBits,
		BaseType: elem,
		Elements: subscripts,
	}
	b.track(t)
	return t
}

func (b *diBuilder) createSubroutineType(paramTypes []metadata.Field) *metadata.DISubroutineType {
	t := &metadata.DISubroutineType{Types: b.createTuple(paramTypes)}
	b.track(t)
	return t
}

func (b *diBuilder) createFunction(name string, scope metadata.Field, file *metadata.DIFile, line int64, sig *metadata.DISubroutineType) *metadata.DISubprogram {
	sp := &metadata.DISubprogram{
		Distinct:  true,
		Scope:     scope,
		Name:      name,
		File:      file,
		Line:      line,
		ScopeLine: line,
		Type:      sig,
		Flags:     enum.DIFlagPrototyped,
		SPFlags:   enum.DISPFlagDefinition | enum.DISPFlagOptimized,
		Unit:      b.cu,
	}
	b.track(sp)
	return sp
}

func (b *diBuilder) createParameterVariable(scope metadata.Field, name string, argNo int, file *metadata.DIFile, line int64, ty metadata.Field) *metadata.DILocalVariable {
	v := &metadata.DILocalVariable{
		Name:  name,
		Arg:   uint64(argNo),
		Scope: scope,
		File:  file,
		Line:  line,
		Type:  ty,
	}
	b.track(v)
	return v
}

func (b *diBuilder) createLocation(line, col int64, scope metadata.Field) *metadata.DILocation {
	loc := &metadata.DILocation{Line: line, Column: col, Scope: scope}
	b.track(loc)
	return loc
}

func (b *diBuilder) createExpression(fields ...metadata.DIExpressionField) *metadata.DIExpression {
	e := &metadata.DIExpression{Fields: fields}
	b.track(e)
	return e
}

func (b *diBuilder) createGlobalVariableExpression(name string, scope metadata.Field, file *metadata.DIFile, ty metadata.Field, expr *metadata.DIExpression) *metadata.DIGlobalVariableExpression {
	gv := &metadata.DIGlobalVariable{
		Distinct:     true,
		Name:         name,
		Scope:        scope,
		File:         file,
		Line:         0,
		Type:         ty,
		IsLocal:      false,
		IsDefinition: true,
	}
	b.track(gv)
	gve := &metadata.DIGlobalVariableExpression{Var: gv, Expr: expr}
	b.track(gve)
	return gve
}

func (b *diBuilder) createTuple(fields []metadata.Field) *metadata.Tuple {
	t := &metadata.Tuple{Fields: fields}
	b.track(t)
	return t
}

// Finalize assigns metadata IDs, registers every tracked node with the
// module and installs the named metadata (!llvm.dbg.cu) and module flags
// LLVM requires before it will keep debug info at all.
func (b *diBuilder) Finalize() error {
	if b.finalized {
		return fmt.Errorf("debug info builder finalized twice")
	}
	b.finalized = true
	if b.cu == nil {
		return fmt.Errorf("finalize without a compile unit")
	}

	// Module flags come first; they are tuples like any other node.
	flags := []*metadata.Tuple{
		b.moduleFlag("Debug Info Version", 3),
		b.moduleFlag("Dwarf Version", 4),
	}

	next := int64(len(b.m.MetadataDefs))
	for _, d := range b.defs {
		setMetadataID(d, next)
		next++
		b.m.MetadataDefs = append(b.m.MetadataDefs, d)
	}

	if b.m.NamedMetadataDefs == nil {
		b.m.NamedMetadataDefs = make(map[string]*metadata.NamedDef)
	}
	b.m.NamedMetadataDefs["llvm.dbg.cu"] = &metadata.NamedDef{
		Name:  "llvm.dbg.cu",
		Nodes: []metadata.Node{b.cu},
	}
	flagNodes := make([]metadata.Node, len(flags))
	for i, f := range flags {
		flagNodes[i] = f
	}
	b.m.NamedMetadataDefs["llvm.module.flags"] = &metadata.NamedDef{
		Name:  "llvm.module.flags",
		Nodes: flagNodes,
	}
	return nil
}

// moduleFlag builds a !{i32 <behavior>, !"<name>", i32 <value>} tuple with
// override behavior.
func (b *diBuilder) moduleFlag(name string, value int64) *metadata.Tuple {
	const override = 4
	t := &metadata.Tuple{
		Fields: []metadata.Field{
			&metadata.Value{Value: constant.NewInt(lltypes.I32, override)},
			&metadata.String{Value: name},
			&metadata.Value{Value: constant.NewInt(lltypes.I32, value)},
		},
	}
	b.track(t)
	return t
}

// setMetadataID stamps the definition's ID. The metadata node set here is
// closed; a new node kind must be added to both the builder and this switch.
func setMetadataID(d metadata.Definition, id int64) {
	mid := metadata.MetadataID(id)
	switch n := d.(type) {
	case *metadata.DIFile:
		n.MetadataID = mid
	case *metadata.DICompileUnit:
		n.MetadataID = mid
	case *metadata.DIBasicType:
		n.MetadataID = mid
	case *metadata.DIDerivedType:
		n.MetadataID = mid
	case *metadata.DICompositeType:
		n.MetadataID = mid
	case *metadata.DISubrange:
		n.MetadataID = mid
	case *metadata.DISubroutineType:
		n.MetadataID = mid
	case *metadata.DISubprogram:
		n.MetadataID = mid
	case *metadata.DILocalVariable:
		n.MetadataID = mid
	case *metadata.DILocation:
		n.MetadataID = mid
	case *metadata.DIExpression:
		n.MetadataID = mid
	case *metadata.DIGlobalVariable:
		n.MetadataID = mid
	case *metadata.DIGlobalVariableExpression:
		n.MetadataID = mid
	case *metadata.Tuple:
		n.MetadataID = mid
	default:
		panic(fmt.Sprintf("llvm: metadata node %T not registered for ID assignment", d))
	}
}
