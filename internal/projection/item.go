// Package projection derives the filtered, sorted tree view of a model
// snapshot. A projection is a pure function of its inputs: the same
// snapshot and options always produce a tree with identical shape, and a
// built tree is never mutated, only replaced.
package projection

import (
	"github.com/testdeck/testdeck/internal/model"
	"github.com/testdeck/testdeck/internal/runner"
)

// ItemKind distinguishes container nodes from test leaves.
type ItemKind string

const (
	ItemGroup ItemKind = "group"
	ItemTest  ItemKind = "test"
)

// GroupKind subtypes container nodes.
type GroupKind string

const (
	GroupRoot     GroupKind = "root"
	GroupProject  GroupKind = "project"
	GroupFolder   GroupKind = "folder"
	GroupFile     GroupKind = "file"
	GroupDescribe GroupKind = "describe"
)

// Item is one node of the derived tree. The ID is the slash-joined title
// path from the root, stable across recomputations so watched-set
// identities survive a rebuild.
type Item struct {
	ID        string
	Kind      ItemKind
	GroupKind GroupKind
	Title     string
	Location  model.Location
	Project   string

	// Status is the bottom-up rollup: a group carries its worst-case
	// descendant status, precedence failed > skipped > passed > pending.
	Status runner.Status

	Children []*Item

	// Test references the underlying case for test leaves.
	Test *model.TestCase
}

// IsFolder reports whether the item is a directory-level group. The watch
// selector recurses through folders even after a match, since one changed
// file can affect several independent leaves under the same folder.
func (it *Item) IsFolder() bool {
	return it.Kind == ItemGroup && (it.GroupKind == GroupFolder || it.GroupKind == GroupRoot || it.GroupKind == GroupProject)
}

// CollectTestIDs returns the ids of every test leaf under the item, in
// tree order.
func CollectTestIDs(it *Item) []string {
	var ids []string
	var walk func(*Item)
	walk = func(n *Item) {
		if n.Kind == ItemTest {
			ids = append(ids, n.Test.ID)
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(it)
	return ids
}

// statusRank orders rollup precedence; higher wins.
func statusRank(s runner.Status) int {
	switch s {
	case runner.StatusFailed:
		return 3
	case runner.StatusSkipped:
		return 2
	case runner.StatusPassed:
		return 1
	default:
		return 0
	}
}

// leafStatus maps a test's current result onto the four rollup statuses.
// Timed-out and interrupted results count as failed; a missing or
// unfinished result counts as pending.
func leafStatus(tc *model.TestCase) runner.Status {
	cur := tc.Current()
	if cur == nil || cur.Unfinished() {
		return runner.StatusPending
	}
	switch cur.Status {
	case runner.StatusPassed:
		return runner.StatusPassed
	case runner.StatusFailed, runner.StatusTimedOut, runner.StatusInterrupted:
		return runner.StatusFailed
	case runner.StatusSkipped:
		return runner.StatusSkipped
	default:
		return runner.StatusPending
	}
}
