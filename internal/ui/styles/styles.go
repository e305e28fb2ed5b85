// Package styles contains Lip Gloss style definitions.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Semantic color names - Text hierarchy
	TextPrimaryColor   = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#CCCCCC"} // Main/primary text
	TextSecondaryColor = lipgloss.AdaptiveColor{Light: "#AAAAAA", Dark: "#BBBBBB"} // Locations, secondary info
	TextMutedColor     = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#696969"} // Hints, help text, footers

	// Semantic color names - Border
	BorderDefaultColor = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#696969"} // Unfocused borders

	// Semantic color names - Status
	StatusPassedColor  = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"} // Passed tests
	StatusFailedColor  = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"} // Failed tests
	StatusSkippedColor = lipgloss.AdaptiveColor{Light: "#FECA57", Dark: "#FECA57"} // Skipped tests
	StatusPendingColor = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#777777"} // Pending / no result
	StatusRunningColor = lipgloss.AdaptiveColor{Light: "#1E66F5", Dark: "#89B4FA"} // Currently executing

	// Watch mode indicator
	WatchColor = lipgloss.AdaptiveColor{Light: "#179299", Dark: "#94E2D5"}

	// Selection indicator color (used for ">" prefix in the tree)
	SelectionIndicatorColor = lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#FFFFFF"}

	// Selection indicator style
	SelectionIndicatorStyle = lipgloss.NewStyle().Bold(true).Foreground(SelectionIndicatorColor)

	// Tree node styles
	SelectedStyle = lipgloss.NewStyle().Bold(true)
	MutedStyle    = lipgloss.NewStyle().Foreground(TextMutedColor)
	LocationStyle = lipgloss.NewStyle().Foreground(TextSecondaryColor)
	WatchStyle    = lipgloss.NewStyle().Foreground(WatchColor)

	// Status glyph styles
	PassedStyle  = lipgloss.NewStyle().Foreground(StatusPassedColor)
	FailedStyle  = lipgloss.NewStyle().Foreground(StatusFailedColor)
	SkippedStyle = lipgloss.NewStyle().Foreground(StatusSkippedColor)
	PendingStyle = lipgloss.NewStyle().Foreground(StatusPendingColor)
	RunningStyle = lipgloss.NewStyle().Foreground(StatusRunningColor)

	// Header and status bar
	HeaderStyle    = lipgloss.NewStyle().Bold(true).Foreground(TextPrimaryColor)
	StatusBarStyle = lipgloss.NewStyle().Foreground(TextMutedColor)

	// Pane borders
	PaneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderDefaultColor)
)
