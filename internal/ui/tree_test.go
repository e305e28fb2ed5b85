package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testdeck/testdeck/internal/model"
	"github.com/testdeck/testdeck/internal/projection"
	"github.com/testdeck/testdeck/internal/runner"
	"github.com/testdeck/testdeck/internal/testutil"
)

// buildTestTree projects a two-file single-project suite. The failed
// outcome gives the tree a mix of rollup statuses to render.
func buildTestTree(t *testing.T) *projection.Tree {
	t.Helper()

	report := testutil.NewReportBuilder().
		Project("chromium").
		File("auth/login.spec.ts").
		Group("login form").
		GroupTest("t1", "accepts valid credentials").
		GroupTest("t2", "rejects bad password").
		File("cart/checkout.spec.ts").
		Test("t3", "totals the cart").
		Build()

	b := model.NewBuilder()
	b.ProcessListReport(report)
	b.ProcessTestEvent(testutil.TestBegin("t2"))
	b.ProcessTestEvent(testutil.TestFailed("t2", 10*time.Millisecond, runner.TestError{Message: "boom"}))

	return projection.Build(b.Snapshot(1), projection.Options{Projects: []string{"chromium"}})
}

func rowTitles(p *treePane) []string {
	titles := make([]string, 0, len(p.rows))
	for _, row := range p.rows {
		titles = append(titles, row.item.Title)
	}
	return titles
}

func TestTreePaneFlattensTree(t *testing.T) {
	p := newTreePane(nil)
	p.setSize(80, 20)
	p.setTree(buildTestTree(t))

	titles := rowTitles(p)
	require.NotEmpty(t, titles)
	assert.Contains(t, titles, "auth", "paths expand into folder rows")
	assert.Contains(t, titles, "login.spec.ts")
	assert.Contains(t, titles, "login form")
	assert.Contains(t, titles, "rejects bad password")
	assert.Contains(t, titles, "totals the cart")

	// Children come after their parent.
	assert.Greater(t,
		indexOf(titles, "rejects bad password"),
		indexOf(titles, "login form"),
		"tests should be listed under their group")
}

func TestTreePaneCursorNavigation(t *testing.T) {
	p := newTreePane(nil)
	p.setSize(80, 20)
	p.setTree(buildTestTree(t))

	assert.Equal(t, 0, p.cursor, "cursor starts at the top")

	p.moveCursor(-1)
	assert.Equal(t, 0, p.cursor, "cursor does not move above the first row")

	p.moveBottom()
	assert.Equal(t, len(p.rows)-1, p.cursor)

	p.moveCursor(1)
	assert.Equal(t, len(p.rows)-1, p.cursor, "cursor does not move past the last row")

	p.moveTop()
	assert.Equal(t, 0, p.cursor)
}

func TestTreePaneCollapseHidesDescendants(t *testing.T) {
	p := newTreePane(nil)
	p.setSize(80, 20)
	p.setTree(buildTestTree(t))

	// Move the cursor onto the describe group.
	groupIdx := indexOf(rowTitles(p), "login form")
	require.GreaterOrEqual(t, groupIdx, 0)
	p.moveCursor(groupIdx)

	total := len(p.rows)
	require.True(t, p.toggleCollapse())
	assert.Len(t, p.rows, total-2, "collapsing hides the two group tests")
	assert.NotContains(t, rowTitles(p), "rejects bad password")

	require.True(t, p.toggleCollapse())
	assert.Len(t, p.rows, total, "expanding restores the hidden rows")
}

func TestTreePaneToggleCollapseIgnoresTests(t *testing.T) {
	p := newTreePane(nil)
	p.setSize(80, 20)
	p.setTree(buildTestTree(t))

	p.moveCursor(indexOf(rowTitles(p), "totals the cart"))
	assert.False(t, p.toggleCollapse(), "test leaves cannot be collapsed")
}

func TestTreePaneCursorSurvivesRebuild(t *testing.T) {
	p := newTreePane(nil)
	p.setSize(80, 20)
	p.setTree(buildTestTree(t))

	idx := indexOf(rowTitles(p), "rejects bad password")
	p.moveCursor(idx)
	selectedID := p.selected().ID

	p.setTree(buildTestTree(t))
	require.NotNil(t, p.selected())
	assert.Equal(t, selectedID, p.selected().ID, "cursor follows the item id across rebuilds")
}

func TestTreePaneRendersStatusGlyphs(t *testing.T) {
	p := newTreePane(nil)
	p.setSize(80, 20)
	p.setTree(buildTestTree(t))

	plain := ansi.Strip(p.view())
	assert.Contains(t, plain, "✘", "failed test should render the failure glyph")
	assert.Contains(t, plain, "○", "tests without results should render as pending")
	assert.Contains(t, plain, "auth/login.spec.ts:", "test rows should show their location")
}

func TestTreePaneRunningMarker(t *testing.T) {
	p := newTreePane(nil)
	p.setSize(80, 20)
	p.setTree(buildTestTree(t))

	p.setRunning(map[string]struct{}{"t3": {}})
	plain := ansi.Strip(p.view())
	assert.Contains(t, plain, "» totals the cart", "running test should carry the in-flight marker")
}

func TestTreePaneScrollKeepsCursorVisible(t *testing.T) {
	p := newTreePane(nil)
	p.setSize(80, 3)
	p.setTree(buildTestTree(t))
	require.Greater(t, len(p.rows), 3, "fixture must overflow the viewport")

	p.moveBottom()
	assert.Equal(t, len(p.rows)-3, p.scrollTop, "viewport scrolls to keep the cursor in view")

	rendered := strings.Split(p.view(), "\n")
	assert.Len(t, rendered, 3, "only the viewport rows render")
}

func TestFormatLocation(t *testing.T) {
	assert.Equal(t, "", formatLocation(model.Location{}))
	assert.Equal(t, "a.spec.ts", formatLocation(model.Location{File: "a.spec.ts"}))
	assert.Equal(t, "a.spec.ts:12", formatLocation(model.Location{File: "a.spec.ts", Line: 12}))
}

func indexOf(ss []string, want string) int {
	for i, s := range ss {
		if s == want {
			return i
		}
	}
	return -1
}
