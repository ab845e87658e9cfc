package diag

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// ConsoleReporter prints diagnostics for humans, with color when the
// destination is a terminal.
type ConsoleReporter struct {
	w     io.Writer
	color bool
}

// NewConsoleReporter writes to w. Color follows mode: "always", "never", or
// "auto" (on only when w is a terminal).
func NewConsoleReporter(w io.Writer, mode string) *ConsoleReporter {
	enabled := false
	switch mode {
	case "always":
		enabled = true
	case "never":
	default:
		if f, ok := w.(*os.File); ok {
			enabled = term.IsTerminal(int(f.Fd()))
		}
	}
	return &ConsoleReporter{w: w, color: enabled}
}

var (
	errorLabel = color.New(color.FgRed, color.Bold)
	warnLabel  = color.New(color.FgYellow, color.Bold)
	infoLabel  = color.New(color.FgCyan)
	codeLabel  = color.New(color.Faint)
)

func (r *ConsoleReporter) Report(d Diagnostic) {
	label := d.Severity.String()
	if r.color {
		switch d.Severity {
		case SevError:
			label = errorLabel.Sprint(label)
		case SevWarning:
			label = warnLabel.Sprint(label)
		default:
			label = infoLabel.Sprint(label)
		}
	}
	code := string(d.Code)
	if r.color {
		code = codeLabel.Sprint(code)
	}
	fmt.Fprintf(r.w, "%s %s: %s\n", label, code, d.Message)
	for _, note := range d.Notes {
		fmt.Fprintf(r.w, "  note: %s\n", note)
	}
}
