package main

import (
	"fmt"
	"strings"

	"github.com/jygan/glow/internal/observ"
)

// timingSummary renders a timer report the same way the timer itself does,
// for results that crossed a package boundary as plain data.
func timingSummary(r observ.Report) string {
	var b strings.Builder
	b.WriteString("timings:\n")
	for _, p := range r.Phases {
		fmt.Fprintf(&b, "  %-20s %7.2f ms", p.Name, p.DurationMS)
		if p.Note != "" {
			b.WriteString("  // " + p.Note)
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "  %-20s %7.2f ms\n", "total", r.TotalMS)
	return b.String()
}
