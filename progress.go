package main

import (
	"fmt"
	"io"
	"strings"
)

// progressBar renders a colored bar of width cells followed by the
// percentage. percent is clamped to 0..100.
func progressBar(percent, width int) string {
	percent = max(0, min(percent, 100))
	filled := percent * width / 100

	color := colorRed
	switch {
	case percent >= 100:
		color = colorGreen
	case percent >= 50:
		color = colorYellow
	}
	return color + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + colorReset +
		fmt.Sprintf(" %3d%%", percent)
}

// progressPrinter redraws one status line per document. Update is called
// by the translation service after every chunk.
type progressPrinter struct {
	out     io.Writer
	enabled bool
	open    bool
}

func newProgressPrinter(out io.Writer, enabled bool) *progressPrinter {
	return &progressPrinter{out: out, enabled: enabled}
}

func (p *progressPrinter) Update(done, total int) {
	if !p.enabled || total <= 0 {
		return
	}
	fmt.Fprintf(p.out, "\r  %s  %d/%d", progressBar(done*100/total, 30), done, total)
	p.open = true
}

// End terminates the current line, if one was drawn.
func (p *progressPrinter) End() {
	if p.open {
		fmt.Fprintln(p.out)
		p.open = false
	}
}
