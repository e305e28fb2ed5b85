package ui

import (
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"

	"github.com/testdeck/testdeck/internal/ui/styles"
)

// maxOutputLines caps the stdio scrollback kept in memory.
const maxOutputLines = 1000

// outputPane accumulates stdio chunks from the remote runner and renders
// the tail of the scrollback, word-wrapped to the pane width.
type outputPane struct {
	lines   []string
	partial string // trailing chunk not yet terminated by a newline
	width   int
	height  int
}

func newOutputPane() *outputPane {
	return &outputPane{}
}

func (p *outputPane) setSize(width, height int) {
	p.width = width
	p.height = height
}

// append folds a stdio chunk into the scrollback. Chunks are not
// line-aligned: a trailing partial line is buffered until its newline
// arrives.
func (p *outputPane) append(chunk string) {
	if chunk == "" {
		return
	}
	text := p.partial + chunk
	parts := strings.Split(text, "\n")
	p.partial = parts[len(parts)-1]
	p.lines = append(p.lines, parts[:len(parts)-1]...)

	if len(p.lines) > maxOutputLines {
		p.lines = p.lines[len(p.lines)-maxOutputLines:]
	}
}

// clear drops the scrollback, typically at the start of a new run.
func (p *outputPane) clear() {
	p.lines = nil
	p.partial = ""
}

// view renders the last height lines of wrapped output.
func (p *outputPane) view() string {
	if len(p.lines) == 0 && p.partial == "" {
		return styles.MutedStyle.Render("No output yet.")
	}

	visible := p.lines
	if p.partial != "" {
		visible = append(append([]string{}, p.lines...), p.partial)
	}

	wrapped := wordwrap.String(strings.Join(visible, "\n"), max(p.width, 1))
	wrappedLines := strings.Split(wrapped, "\n")
	// wordwrap breaks on whitespace only; hard-truncate unbroken runs.
	for i, line := range wrappedLines {
		if runewidth.StringWidth(line) > p.width && p.width > 0 {
			wrappedLines[i] = runewidth.Truncate(line, p.width, "…")
		}
	}
	if len(wrappedLines) > p.height && p.height > 0 {
		wrappedLines = wrappedLines[len(wrappedLines)-p.height:]
	}
	return strings.Join(wrappedLines, "\n")
}
