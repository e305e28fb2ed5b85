// Package keys contains keybinding definitions.
package keys

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the keybindings for the application.
type KeyMap struct {
	// Navigation
	Up     key.Binding
	Down   key.Binding
	Top    key.Binding
	Bottom key.Binding

	// Tree
	Toggle key.Binding

	// Runs
	Run        key.Binding
	RunVisible key.Binding
	Stop       key.Binding

	// Watch mode
	WatchItem key.Binding
	WatchAll  key.Binding

	// Filters
	Filter     key.Binding
	FailedOnly key.Binding

	// Panes
	ToggleOutput key.Binding

	// General
	Help   key.Binding
	Escape key.Binding
	Quit   key.Binding
}

// Default returns the default keybindings.
func Default() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "move down"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "go to top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "go to bottom"),
		),
		Toggle: key.NewBinding(
			key.WithKeys("enter", " "),
			key.WithHelp("enter", "expand/collapse"),
		),
		Run: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "run selected"),
		),
		RunVisible: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "run all visible"),
		),
		Stop: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "stop run"),
		),
		WatchItem: key.NewBinding(
			key.WithKeys("w"),
			key.WithHelp("w", "watch selected"),
		),
		WatchAll: key.NewBinding(
			key.WithKeys("W"),
			key.WithHelp("W", "watch all"),
		),
		Filter: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "filter"),
		),
		FailedOnly: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "failed only"),
		),
		ToggleOutput: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "toggle output"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "clear filter"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp returns the bindings shown in the collapsed help line.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Run, k.Stop, k.WatchItem, k.Filter, k.Help, k.Quit}
}

// FullHelp returns all bindings grouped into help columns.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Top, k.Bottom, k.Toggle},
		{k.Run, k.RunVisible, k.Stop},
		{k.WatchItem, k.WatchAll, k.Filter, k.FailedOnly},
		{k.ToggleOutput, k.Help, k.Escape, k.Quit},
	}
}
