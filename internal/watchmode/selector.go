// Package watchmode decides which tests to re-run when source files
// change, and provides a local filesystem change source feeding the same
// event path as server-pushed notifications.
package watchmode

import (
	"sync"

	"github.com/testdeck/testdeck/internal/log"
	"github.com/testdeck/testdeck/internal/projection"
)

// Selector maps changed files onto test ids. Two mutually exclusive
// modes: watch-all re-runs anything whose file changed; otherwise only
// tree nodes the user explicitly watches are considered.
type Selector struct {
	mu       sync.Mutex
	watchAll bool
	watched  map[string]struct{} // tree-item identities
}

// NewSelector creates a selector with watching off.
func NewSelector() *Selector {
	return &Selector{watched: make(map[string]struct{})}
}

// SetWatchAll enables or disables watch-all mode. Enabling it clears the
// curated set; the modes never combine.
func (s *Selector) SetWatchAll(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchAll = on
	if on {
		s.watched = make(map[string]struct{})
	}
}

// WatchAll reports whether watch-all mode is active.
func (s *Selector) WatchAll() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watchAll
}

// ToggleWatched flips the watched state of a tree-item identity and
// returns the new state. Curating an item leaves watch-all mode.
func (s *Selector) ToggleWatched(itemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchAll = false
	if _, ok := s.watched[itemID]; ok {
		delete(s.watched, itemID)
		return false
	}
	s.watched[itemID] = struct{}{}
	return true
}

// IsWatched reports whether the identity is in the curated set.
func (s *Selector) IsWatched(itemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.watched[itemID]
	return ok
}

// Watched returns the curated identities.
func (s *Selector) Watched() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.watched))
	for id := range s.watched {
		out = append(out, id)
	}
	return out
}

// SetWatched replaces the curated set, used when restoring persisted
// state.
func (s *Selector) SetWatched(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watched = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s.watched[id] = struct{}{}
	}
	if len(ids) > 0 {
		s.watchAll = false
	}
}

// OnFilesChanged returns the ids of every test affected by the changed
// files, per the active mode. Watch-all walks the whole tree: a node
// whose own file changed contributes its subtree, and recursion
// continues through folder-level groups regardless of a match, since one
// changed file can sit under several independent leaves of a folder.
func (s *Selector) OnFilesChanged(tree *projection.Tree, changed map[string]struct{}) []string {
	s.mu.Lock()
	watchAll := s.watchAll
	watched := s.watched
	s.mu.Unlock()

	if tree == nil || tree.Root == nil || len(changed) == 0 {
		return nil
	}
	if !watchAll && len(watched) == 0 {
		return nil
	}

	ids := make(map[string]struct{})
	var visit func(it *projection.Item)
	visit = func(it *projection.Item) {
		_, fileChanged := changed[it.Location.File]
		eligible := watchAll
		if !eligible {
			_, eligible = watched[it.ID]
		}
		if eligible && fileChanged {
			for _, id := range projection.CollectTestIDs(it) {
				ids[id] = struct{}{}
			}
			if !it.IsFolder() {
				return
			}
		}
		for _, c := range it.Children {
			visit(c)
		}
	}
	visit(tree.Root)

	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	if len(out) > 0 {
		log.Debug(log.CatWatch, "files mapped to tests", "files", len(changed), "tests", len(out))
	}
	return out
}
