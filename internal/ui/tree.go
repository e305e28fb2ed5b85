package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/testdeck/testdeck/internal/model"
	"github.com/testdeck/testdeck/internal/projection"
	"github.com/testdeck/testdeck/internal/runner"
	"github.com/testdeck/testdeck/internal/ui/styles"
	"github.com/testdeck/testdeck/internal/watchmode"
)

// formatLocation renders a source location as file:line.
func formatLocation(loc model.Location) string {
	if loc.File == "" {
		return ""
	}
	if loc.Line > 0 {
		return fmt.Sprintf("%s:%d", loc.File, loc.Line)
	}
	return loc.File
}

// treeRow is one visible line of the tree pane: an item plus the branch
// prefix computed during flattening.
type treeRow struct {
	item   *projection.Item
	prefix string
}

// treePane renders the projected suite tree with cursor navigation,
// viewport scrolling and per-node collapse state.
type treePane struct {
	tree      *projection.Tree
	collapsed map[string]bool
	rows      []treeRow
	cursor    int
	scrollTop int
	width     int
	height    int

	selector *watchmode.Selector
	running  map[string]struct{}
}

func newTreePane(selector *watchmode.Selector) *treePane {
	return &treePane{
		collapsed: make(map[string]bool),
		selector:  selector,
	}
}

// setTree replaces the projected tree, preserving the cursor position by
// item id when the selected item survives the rebuild.
func (p *treePane) setTree(tree *projection.Tree) {
	var selectedID string
	if sel := p.selected(); sel != nil {
		selectedID = sel.ID
	}

	p.tree = tree
	p.refreshRows()

	if selectedID != "" {
		for i, row := range p.rows {
			if row.item.ID == selectedID {
				p.cursor = i
				break
			}
		}
	}
	p.clampCursor()
}

// setRunning replaces the set of currently executing test ids.
func (p *treePane) setRunning(ids map[string]struct{}) {
	p.running = ids
}

func (p *treePane) setSize(width, height int) {
	p.width = width
	p.height = height
	p.ensureCursorVisible()
}

// refreshRows rebuilds the flattened row list honoring collapse state.
func (p *treePane) refreshRows() {
	p.rows = p.rows[:0]
	if p.tree == nil || p.tree.Root == nil {
		return
	}
	children := p.tree.Root.Children
	for i, child := range children {
		p.appendRows(child, "", i == len(children)-1)
	}
	p.clampCursor()
}

func (p *treePane) appendRows(item *projection.Item, parentPrefix string, isLast bool) {
	connector := "├─"
	childIndent := "│ "
	if isLast {
		connector = "└─"
		childIndent = "  "
	}
	p.rows = append(p.rows, treeRow{item: item, prefix: parentPrefix + connector})

	if item.Kind != projection.ItemTest && !p.collapsed[item.ID] {
		for i, child := range item.Children {
			p.appendRows(child, parentPrefix+childIndent, i == len(item.Children)-1)
		}
	}
}

// selected returns the item under the cursor, or nil.
func (p *treePane) selected() *projection.Item {
	if p.cursor >= 0 && p.cursor < len(p.rows) {
		return p.rows[p.cursor].item
	}
	return nil
}

// moveCursor moves the cursor by delta, respecting bounds.
func (p *treePane) moveCursor(delta int) {
	newPos := p.cursor + delta
	newPos = max(newPos, 0)
	newPos = min(newPos, len(p.rows)-1)
	newPos = max(newPos, 0) // Handle empty rows case
	p.cursor = newPos
	p.ensureCursorVisible()
}

func (p *treePane) moveTop() {
	p.cursor = 0
	p.ensureCursorVisible()
}

func (p *treePane) moveBottom() {
	p.cursor = max(len(p.rows)-1, 0)
	p.ensureCursorVisible()
}

// toggleCollapse flips the collapse state of the selected group.
// Returns false when the selection is not a group.
func (p *treePane) toggleCollapse() bool {
	sel := p.selected()
	if sel == nil || sel.Kind == projection.ItemTest {
		return false
	}
	p.collapsed[sel.ID] = !p.collapsed[sel.ID]
	p.refreshRows()
	p.ensureCursorVisible()
	return true
}

func (p *treePane) clampCursor() {
	if p.cursor >= len(p.rows) {
		p.cursor = len(p.rows) - 1
	}
	if p.cursor < 0 {
		p.cursor = 0
	}
}

// ensureCursorVisible adjusts scrollTop to keep cursor in view.
func (p *treePane) ensureCursorVisible() {
	if p.height <= 0 {
		return
	}
	if p.cursor >= p.scrollTop+p.height {
		p.scrollTop = p.cursor - p.height + 1
	}
	if p.cursor < p.scrollTop {
		p.scrollTop = p.cursor
	}
	maxScroll := max(len(p.rows)-p.height, 0)
	p.scrollTop = min(p.scrollTop, maxScroll)
	p.scrollTop = max(p.scrollTop, 0)
}

// view renders the visible window of tree rows.
func (p *treePane) view() string {
	if len(p.rows) == 0 {
		return styles.MutedStyle.Render("No tests match the current filters.")
	}

	var sb strings.Builder
	endIdx := min(p.scrollTop+p.height, len(p.rows))

	for i := p.scrollTop; i < endIdx; i++ {
		sb.WriteString(p.renderRow(p.rows[i], i == p.cursor))
		if i < endIdx-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// renderRow renders one tree line: cursor, branch prefix, status glyph,
// watch marker, title and right-aligned location.
func (p *treePane) renderRow(row treeRow, isSelected bool) string {
	var sb strings.Builder

	if isSelected {
		sb.WriteString(styles.SelectionIndicatorStyle.Render(">"))
	} else {
		sb.WriteString(" ")
	}
	sb.WriteString(styles.MutedStyle.Render(row.prefix))

	sb.WriteString(p.statusGlyph(row.item))
	sb.WriteString(" ")

	if p.watched(row.item) {
		sb.WriteString(styles.WatchStyle.Render("◉ "))
	}

	title := row.item.Title
	if row.item.Kind != projection.ItemTest && p.collapsed[row.item.ID] {
		title += " …"
	}

	location := ""
	if row.item.Kind == projection.ItemTest {
		location = formatLocation(row.item.Location)
	}
	locRendered := styles.LocationStyle.Render(location)
	locWidth := lipgloss.Width(locRendered)

	leftWidth := lipgloss.Width(sb.String())
	minPadding := 2
	showLocation := location != "" && p.width >= leftWidth+10+minPadding+locWidth

	available := p.width - leftWidth
	if showLocation {
		available -= minPadding + locWidth
	}
	if available > 0 && lipgloss.Width(title) > available {
		title = styles.TruncateString(title, available)
	} else if available <= 0 {
		title = ""
	}

	if isSelected {
		sb.WriteString(styles.SelectedStyle.Render(title))
	} else {
		sb.WriteString(title)
	}

	if showLocation {
		padding := max(p.width-lipgloss.Width(sb.String())-locWidth, minPadding)
		sb.WriteString(strings.Repeat(" ", padding))
		sb.WriteString(locRendered)
	}

	return sb.String()
}

// watched reports whether the item carries a watch marker. In watch-all
// mode every row is implicitly watched, so only curated marks render.
func (p *treePane) watched(item *projection.Item) bool {
	if p.selector == nil || p.selector.WatchAll() {
		return false
	}
	return p.selector.IsWatched(item.ID)
}

// statusGlyph picks the status symbol for an item, preferring the
// running marker for test leaves that are currently executing.
func (p *treePane) statusGlyph(item *projection.Item) string {
	if item.Kind == projection.ItemTest && item.Test != nil {
		if _, ok := p.running[item.Test.ID]; ok {
			return styles.RunningStyle.Render("»")
		}
	}
	switch item.Status {
	case runner.StatusPassed:
		return styles.PassedStyle.Render("✓")
	case runner.StatusFailed:
		return styles.FailedStyle.Render("✘")
	case runner.StatusSkipped:
		return styles.SkippedStyle.Render("⊘")
	default:
		return styles.PendingStyle.Render("○")
	}
}
