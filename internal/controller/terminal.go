package controller

import "sync"

// TerminalSize is the shared handle for the side-channel display size.
// The presentation layer writes it on resize; the session controller
// reads it when forwarding the new dimensions to the server. An explicit
// handle, not process-wide state.
type TerminalSize struct {
	mu   sync.Mutex
	cols int
	rows int
}

// NewTerminalSize creates a handle with the given initial dimensions.
func NewTerminalSize(cols, rows int) *TerminalSize {
	return &TerminalSize{cols: cols, rows: rows}
}

// Set records new dimensions.
func (t *TerminalSize) Set(cols, rows int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cols = cols
	t.rows = rows
}

// Size returns the current dimensions.
func (t *TerminalSize) Size() (cols, rows int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cols, t.rows
}
