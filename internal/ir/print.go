package ir

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// BodyMarker is the exact line that opens the instruction body in a dump.
// The line right after it holds instruction 0; line markerLine+1+i holds
// instruction i. Debug locations are synthesized from this contract, so the
// dump format below must keep exactly one instruction per line between the
// marker and the closing brace.
const BodyMarker = "code {"

// Dump writes the textual form of a function, including the module weights it
// references.
func Dump(w io.Writer, f *Function) error {
	if f == nil {
		return nil
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "function %s\n", f.Name)
	if m := f.Module(); m != nil && len(m.Weights) > 0 {
		fmt.Fprintf(bw, "declare {\n")
		for _, wt := range m.Weights {
			fmt.Fprintf(bw, "  %%%s = weight %s, %s\n", wt.Name(), wt.Type(), wt.Mut)
		}
		fmt.Fprintf(bw, "}\n")
	}
	fmt.Fprintf(bw, "%s\n", BodyMarker)
	for _, in := range f.Instrs {
		fmt.Fprintf(bw, "  %s\n", FormatInstr(in))
	}
	fmt.Fprintf(bw, "}\n")
	return bw.Flush()
}

// DumpString renders a function to a string.
func DumpString(f *Function) string {
	var sb strings.Builder
	// strings.Builder writes cannot fail.
	_ = Dump(&sb, f)
	return sb.String()
}

// FormatInstr renders one instruction on a single line.
func FormatInstr(in *Instr) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%%%s = %s %s", in.Name(), in.Kind, in.Type())
	if in.Kind == InstrTensorView {
		fmt.Fprintf(&sb, " @%%%s offset %d", in.Ops[0].Name(), in.ViewOffset)
		return sb.String()
	}
	for i, op := range in.Ops {
		if i == 0 {
			sb.WriteString(" ")
		} else {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%%%s", op.Name())
	}
	return sb.String()
}

// ScanBodyMarker returns the 1-based line number of the body marker in a
// dump. It reports ok=false when the dump contains no marker, which means the
// dump is empty or malformed and no debug location can be trusted.
func ScanBodyMarker(text string) (int, bool) {
	line := 0
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line++
		if sc.Text() == BodyMarker {
			return line, true
		}
	}
	return 0, false
}
