package graph

import (
	"strings"
	"testing"

	"github.com/jygan/glow/internal/ir"
	"github.com/jygan/glow/internal/model"
)

func testManifest() *model.Manifest {
	return &model.Manifest{
		Name: "tiny",
		Placeholders: []model.PlaceholderDecl{
			{Name: "input", DType: "float32", Dims: []int{1, 4}},
			{Name: "result", DType: "float32", Dims: []int{1, 2}},
		},
		Weights: []model.WeightDecl{
			{Name: "fc.w", DType: "float32", Dims: []int{4, 2}, Data: "fc_w"},
			{Name: "fc.b", DType: "float32", Dims: []int{1, 2}, Data: "fc_b"},
		},
		Ops: []model.OpDecl{
			{Kind: "matmul", Inputs: []string{"input", "fc.w"}, Output: "mul"},
			{Kind: "add", Inputs: []string{"mul", "fc.b"}, Output: "act"},
			{Kind: "relu", Inputs: []string{"act"}, Output: "out"},
			{Kind: "save", Inputs: []string{"result", "out"}},
		},
	}
}

func TestBuildInfersShapes(t *testing.T) {
	g, err := Build(testManifest(), nil)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	ty, ok := g.Lookup("mul")
	if !ok || ty.String() != "float32<1 x 2>" {
		t.Errorf("mul type = %v, %t; want float32<1 x 2>, true", ty, ok)
	}
	if len(g.Nodes) != 4 {
		t.Fatalf("got %d nodes, want 4", len(g.Nodes))
	}
	if g.Nodes[3].Kind != NodeSave || g.Nodes[3].Output != "" {
		t.Errorf("save node = %v output %q, want NodeSave with empty output", g.Nodes[3].Kind, g.Nodes[3].Output)
	}
}

func TestBuildRejectsShapeMismatch(t *testing.T) {
	man := testManifest()
	man.Weights[0].Dims = []int{3, 2} // matmul inner dims now disagree
	_, err := Build(man, nil)
	if err == nil || !strings.Contains(err.Error(), "matmul shape mismatch") {
		t.Fatalf("Build() = %v, want matmul shape mismatch", err)
	}
}

func TestBuildRejectsBadReshape(t *testing.T) {
	man := testManifest()
	man.Ops = []model.OpDecl{
		{Kind: "reshape", Inputs: []string{"input"}, Output: "r", Dims: []int{3, 3}},
	}
	_, err := Build(man, nil)
	if err == nil || !strings.Contains(err.Error(), "changes element count") {
		t.Fatalf("Build() = %v, want element count error", err)
	}
}

func TestLowerProducesValidIR(t *testing.T) {
	g, err := Build(testManifest(), nil)
	if err != nil {
		t.Fatal(err)
	}
	m, err := Lower(g)
	if err != nil {
		t.Fatalf("Lower() error: %v", err)
	}
	if len(m.Weights) != 4 {
		t.Errorf("got %d weights, want 4 (placeholders included)", len(m.Weights))
	}

	// Kernel ops write into a freshly allocated destination.
	var kinds []ir.InstrKind
	for _, in := range m.Main.Instrs {
		kinds = append(kinds, in.Kind)
	}
	want := []ir.InstrKind{
		ir.InstrAllocActivation, ir.InstrMatMul,
		ir.InstrAllocActivation, ir.InstrElementAdd,
		ir.InstrAllocActivation, ir.InstrRelu,
		ir.InstrCopy,
		ir.InstrDeallocActivation, ir.InstrDeallocActivation, ir.InstrDeallocActivation,
	}
	if len(kinds) != len(want) {
		t.Fatalf("got %d instrs %v, want %d", len(kinds), kinds, len(want))
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("instr %d = %s, want %s", i, kinds[i], want[i])
		}
	}

	// Deallocation runs in reverse allocation order.
	frees := m.Main.Instrs[7:]
	if frees[0].Ops[0].Name() != "out" || frees[2].Ops[0].Name() != "mul" {
		t.Errorf("dealloc order = %q, %q, %q; want out, act, mul",
			frees[0].Ops[0].Name(), frees[1].Ops[0].Name(), frees[2].Ops[0].Name())
	}
}

func TestLowerReshapeBecomesView(t *testing.T) {
	man := &model.Manifest{
		Name: "views",
		Weights: []model.WeightDecl{
			{Name: "w", DType: "float32", Dims: []int{2, 3}, Data: "w"},
		},
		Ops: []model.OpDecl{
			{Kind: "reshape", Inputs: []string{"w"}, Output: "flat", Dims: []int{6}},
		},
	}
	g, err := Build(man, nil)
	if err != nil {
		t.Fatal(err)
	}
	m, err := Lower(g)
	if err != nil {
		t.Fatalf("Lower() error: %v", err)
	}
	if len(m.Main.Instrs) != 1 {
		t.Fatalf("got %d instrs, want 1", len(m.Main.Instrs))
	}
	view := m.Main.Instrs[0]
	if view.Kind != ir.InstrTensorView || view.ViewOffset != 0 {
		t.Errorf("instr = %s offset %d, want tensorview offset 0", view.Kind, view.ViewOffset)
	}
	if ir.Origin(view).Name() != "w" {
		t.Errorf("view origin = %q, want w", ir.Origin(view).Name())
	}
}
