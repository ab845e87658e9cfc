package diag

import (
	"strings"
	"testing"
)

func TestBagCollectsInOrder(t *testing.T) {
	var bag Bag
	bag.Report(Warning(CodeWeights, "first"))
	bag.Report(Error(CodeGraph, "second", "a note"))

	all := bag.All()
	if len(all) != 2 {
		t.Fatalf("got %d diagnostics, want 2", len(all))
	}
	if all[0].Message != "first" || all[1].Message != "second" {
		t.Errorf("order = %q, %q; want first, second", all[0].Message, all[1].Message)
	}
	if !bag.HasErrors() {
		t.Error("HasErrors() = false with one error collected")
	}

	var warnOnly Bag
	warnOnly.Report(Warning(CodeWeights, "just a warning"))
	if warnOnly.HasErrors() {
		t.Error("HasErrors() = true without errors")
	}
}

func TestConsoleReporterOutput(t *testing.T) {
	var sb strings.Builder
	r := NewConsoleReporter(&sb, "never")
	r.Report(Error(CodeIR, "broken function", "see instr 3"))

	out := sb.String()
	for _, want := range []string{"ERROR", "GLW0004", "broken function", "note: see instr 3"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("color escapes in never mode: %q", out)
	}
}
