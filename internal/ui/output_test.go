package ui

import (
	"fmt"
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputPaneBuffersPartialLines(t *testing.T) {
	p := newOutputPane()
	p.setSize(80, 10)

	p.append("hel")
	assert.Empty(t, p.lines, "no newline yet, nothing committed")
	assert.Equal(t, "hel", p.partial)

	p.append("lo\nworld")
	assert.Equal(t, []string{"hello"}, p.lines, "newline commits the joined chunk")
	assert.Equal(t, "world", p.partial)

	view := p.view()
	assert.Contains(t, view, "hello")
	assert.Contains(t, view, "world", "trailing partial line still renders")
}

func TestOutputPaneCapsScrollback(t *testing.T) {
	p := newOutputPane()
	p.setSize(80, 10)

	for i := 0; i < maxOutputLines+50; i++ {
		p.append(fmt.Sprintf("line %d\n", i))
	}

	require.Len(t, p.lines, maxOutputLines)
	assert.Equal(t, fmt.Sprintf("line %d", maxOutputLines+49), p.lines[len(p.lines)-1],
		"newest lines survive the cap")
	assert.Equal(t, "line 50", p.lines[0], "oldest lines are dropped")
}

func TestOutputPaneViewShowsTail(t *testing.T) {
	p := newOutputPane()
	p.setSize(80, 3)

	for i := 0; i < 10; i++ {
		p.append(fmt.Sprintf("line %d\n", i))
	}

	lines := strings.Split(p.view(), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"line 7", "line 8", "line 9"}, lines)
}

func TestOutputPaneWrapsLongLines(t *testing.T) {
	p := newOutputPane()
	p.setSize(10, 20)

	p.append("aaaa bbbb cccc\n")
	lines := strings.Split(p.view(), "\n")
	assert.Greater(t, len(lines), 1, "long lines wrap to the pane width")
	for _, line := range lines {
		assert.LessOrEqual(t, len(line), 10)
	}
}

func TestOutputPaneTruncatesUnbrokenRuns(t *testing.T) {
	p := newOutputPane()
	p.setSize(10, 5)

	p.append(strings.Repeat("x", 40) + "\n")
	for _, line := range strings.Split(p.view(), "\n") {
		assert.LessOrEqual(t, runewidth.StringWidth(line), 10,
			"unbroken runs are hard-truncated to the pane width")
	}
}

func TestOutputPaneClear(t *testing.T) {
	p := newOutputPane()
	p.setSize(80, 10)

	p.append("stale output\npartial")
	p.clear()

	assert.Empty(t, p.lines)
	assert.Empty(t, p.partial)
	assert.Contains(t, p.view(), "No output yet")
}
