// Package ui implements the Bubble Tea presentation layer: a suite tree
// pane, a stdio output pane and a status bar, driven entirely by the
// controller's published projections.
package ui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/testdeck/testdeck/internal/config"
	"github.com/testdeck/testdeck/internal/controller"
	"github.com/testdeck/testdeck/internal/keys"
	"github.com/testdeck/testdeck/internal/projection"
	"github.com/testdeck/testdeck/internal/runner"
	"github.com/testdeck/testdeck/internal/ui/styles"
)

// treeMsg delivers a freshly projected tree.
type treeMsg *projection.Tree

// outputMsg delivers a chunk of remote stdio.
type outputMsg string

// Model is the root Bubble Tea model.
type Model struct {
	ctrl *controller.Controller
	cfg  config.UIConfig
	keys keys.KeyMap
	help help.Model

	tree   *treePane
	output *outputPane

	filter     textinput.Model
	filtering  bool
	failedOnly bool
	showOutput bool
	showHelp   bool

	width  int
	height int

	ctx    context.Context
	cancel context.CancelFunc
	treeCh <-chan *projection.Tree
	outCh  <-chan string
}

// New builds the root model around a started controller.
func New(ctrl *controller.Controller, cfg config.UIConfig) *Model {
	ctx, cancel := context.WithCancel(context.Background())

	filter := textinput.New()
	filter.Placeholder = "filter tests"
	filter.Prompt = "/ "
	filter.CharLimit = 128

	return &Model{
		ctrl:       ctrl,
		cfg:        cfg,
		keys:       keys.Default(),
		help:       help.New(),
		tree:       newTreePane(ctrl.Watch()),
		output:     newOutputPane(),
		filter:     filter,
		showOutput: cfg.ShowOutput,
		ctx:        ctx,
		cancel:     cancel,
		treeCh:     ctrl.Trees().Subscribe(ctx),
		outCh:      ctrl.Output().Subscribe(ctx),
	}
}

// Init starts the broker listeners and seeds the pane with whatever tree
// the controller already holds.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.listenTree(), m.listenOutput()}
	if tree := m.ctrl.CurrentTree(); tree != nil {
		cmds = append(cmds, func() tea.Msg { return treeMsg(tree) })
	}
	return tea.Batch(cmds...)
}

func (m *Model) listenTree() tea.Cmd {
	ch := m.treeCh
	ctx := m.ctx
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case v, ok := <-ch:
			if !ok {
				return nil
			}
			return treeMsg(v)
		}
	}
}

func (m *Model) listenOutput() tea.Cmd {
	ch := m.outCh
	ctx := m.ctx
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case v, ok := <-ch:
			if !ok {
				return nil
			}
			return outputMsg(v)
		}
	}
}

// Update routes messages to the panes and translates keys into
// controller calls.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ctrl.Resize(msg.Width, msg.Height)
		m.layout()
		return m, nil

	case treeMsg:
		m.tree.setTree((*projection.Tree)(msg))
		m.refreshRunning()
		return m, m.listenTree()

	case outputMsg:
		m.output.append(string(msg))
		return m, m.listenOutput()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filtering {
		return m.handleFilterKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		m.tree.moveCursor(-1)
	case key.Matches(msg, m.keys.Down):
		m.tree.moveCursor(1)
	case key.Matches(msg, m.keys.Top):
		m.tree.moveTop()
	case key.Matches(msg, m.keys.Bottom):
		m.tree.moveBottom()

	case key.Matches(msg, m.keys.Toggle):
		m.tree.toggleCollapse()

	case key.Matches(msg, m.keys.Run):
		m.runSelected()
	case key.Matches(msg, m.keys.RunVisible):
		m.output.clear()
		m.ctrl.RunVisible()
	case key.Matches(msg, m.keys.Stop):
		m.ctrl.StopRun(context.Background())

	case key.Matches(msg, m.keys.WatchItem):
		if sel := m.tree.selected(); sel != nil {
			m.ctrl.ToggleWatchItem(sel.ID)
		}
	case key.Matches(msg, m.keys.WatchAll):
		m.ctrl.SetWatchAll(!m.ctrl.Watch().WatchAll())

	case key.Matches(msg, m.keys.Filter):
		m.filtering = true
		m.filter.Focus()
		m.layout()
		return m, textinput.Blink

	case key.Matches(msg, m.keys.FailedOnly):
		m.failedOnly = !m.failedOnly
		m.ctrl.SetStatusFilter(runner.StatusFailed, m.failedOnly)

	case key.Matches(msg, m.keys.ToggleOutput):
		m.showOutput = !m.showOutput
		m.layout()

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp

	case key.Matches(msg, m.keys.Escape):
		if m.filter.Value() != "" {
			m.filter.SetValue("")
			m.ctrl.SetFilterText("")
		}

	default:
		if idx, err := strconv.Atoi(msg.String()); err == nil && idx >= 1 && idx <= 9 {
			names := m.ctrl.Projects().Names()
			if idx <= len(names) {
				m.ctrl.ToggleProject(names[idx-1])
			}
		}
	}

	return m, nil
}

// handleFilterKey routes keys to the filter input while it has focus.
// The filter applies live on every edit.
func (m *Model) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.filtering = false
		m.filter.Blur()
		m.filter.SetValue("")
		m.ctrl.SetFilterText("")
		m.layout()
		return m, nil
	case "enter":
		m.filtering = false
		m.filter.Blur()
		m.layout()
		return m, nil
	case "ctrl+c":
		m.cancel()
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.ctrl.SetFilterText(m.filter.Value())
	return m, cmd
}

// runSelected runs every test under the selected item.
func (m *Model) runSelected() {
	sel := m.tree.selected()
	if sel == nil {
		return
	}
	ids := projection.CollectTestIDs(sel)
	if len(ids) == 0 {
		return
	}
	m.output.clear()
	m.ctrl.RequestRun(controller.BounceIfBusy, ids, true)
}

// refreshRunning mirrors the controller's in-flight run into the tree
// pane's running markers.
func (m *Model) refreshRunning() {
	if state := m.ctrl.Running(); state != nil {
		m.tree.setRunning(state.TestIDs)
	} else {
		m.tree.setRunning(nil)
	}
}

// layout recomputes pane sizes from the window size and visible chrome.
func (m *Model) layout() {
	chrome := 0
	if m.cfg.ShowCounts {
		chrome++ // header
	}
	if m.cfg.ShowStatusBar {
		chrome++ // status bar
	}
	if m.filtering || m.filter.Value() != "" {
		chrome++ // filter line
	}

	body := max(m.height-chrome, 0)
	outputH := 0
	if m.showOutput && body >= 6 {
		outputH = max(body/3, 3)
	}
	treeH := body - outputH

	// Borders consume two rows and two columns per pane.
	m.tree.setSize(max(m.width-2, 0), max(treeH-2, 0))
	m.output.setSize(max(m.width-2, 0), max(outputH-2, 0))
	m.filter.Width = max(m.width-4, 10)
}

// View renders header, tree, output and status bar top to bottom.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "loading…"
	}

	var sections []string
	if m.cfg.ShowCounts {
		sections = append(sections, m.headerView())
	}
	if m.filtering || m.filter.Value() != "" {
		sections = append(sections, m.filter.View())
	}

	treeBox := styles.PaneStyle.Width(max(m.width-2, 1)).Render(m.tree.view())
	sections = append(sections, treeBox)

	if m.showOutput && m.output.height > 0 {
		outBox := styles.PaneStyle.Width(max(m.width-2, 1)).Render(m.output.view())
		sections = append(sections, outBox)
	}

	if m.cfg.ShowStatusBar {
		sections = append(sections, m.statusBarView())
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// headerView renders the title, aggregate counts, project toggles and
// the watch mode indicator.
func (m *Model) headerView() string {
	var parts []string
	parts = append(parts, styles.HeaderStyle.Render("testdeck"))

	if snap := m.ctrl.Model().Latest(); snap != nil {
		c := snap.Counts()
		parts = append(parts,
			styles.PassedStyle.Render(fmt.Sprintf("✓ %d", c.Passed)),
			styles.FailedStyle.Render(fmt.Sprintf("✘ %d", c.Failed)),
			styles.SkippedStyle.Render(fmt.Sprintf("⊘ %d", c.Skipped)),
			styles.PendingStyle.Render(fmt.Sprintf("○ %d", c.Pending+c.NoResult)),
		)
	}

	filter := m.ctrl.Projects()
	for i, name := range filter.Names() {
		label := fmt.Sprintf("[%d] %s", i+1, name)
		if filter.IsEnabled(name) {
			parts = append(parts, styles.HeaderStyle.Render(label))
		} else {
			parts = append(parts, styles.MutedStyle.Render(label))
		}
	}

	if m.ctrl.Watch().WatchAll() {
		parts = append(parts, styles.WatchStyle.Render("watch: all"))
	} else if n := len(m.ctrl.Watch().Watched()); n > 0 {
		parts = append(parts, styles.WatchStyle.Render(fmt.Sprintf("watch: %d", n)))
	}

	line := strings.Join(parts, "  ")
	if lipgloss.Width(line) > m.width {
		line = styles.TruncateString(line, m.width)
	}
	return line
}

// statusBarView shows the session error state, run progress, or the key
// help line.
func (m *Model) statusBarView() string {
	if err := m.ctrl.Err(); err != nil {
		return styles.FailedStyle.Render(err.Error())
	}
	if state := m.ctrl.Running(); state != nil {
		return styles.StatusBarStyle.Render(
			fmt.Sprintf("running %d tests — press s to stop", len(state.TestIDs)))
	}
	return m.help.View(m.keys)
}
