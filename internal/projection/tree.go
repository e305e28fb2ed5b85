package projection

import (
	"fmt"
	"hash/fnv"
	"path"
	"sort"
	"strings"

	"github.com/testdeck/testdeck/internal/model"
	"github.com/testdeck/testdeck/internal/runner"
)

// Options parameterize one projection build.
type Options struct {
	// FilterText keeps nodes whose title or file location contains it,
	// case-insensitively, along with their subtrees.
	FilterText string
	// StatusFilters, when non-empty, hides test leaves whose rollup
	// status is not an enabled one. In-flight tests are exempt.
	StatusFilters map[runner.Status]bool
	// RunningIDs holds the ids of the in-flight run, if any. Tests in it
	// are never hidden by a status filter.
	RunningIDs map[string]struct{}
	// Projects lists the enabled project names; nil enables all.
	Projects []string
}

// Digest returns a stable key for the options, used to memoize builds
// per snapshot version.
func (o Options) Digest() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "t:%s;", strings.ToLower(o.FilterText))
	var statuses []string
	for s, on := range o.StatusFilters {
		if on {
			statuses = append(statuses, string(s))
		}
	}
	sort.Strings(statuses)
	fmt.Fprintf(h, "s:%s;", strings.Join(statuses, ","))
	var running []string
	for id := range o.RunningIDs {
		running = append(running, id)
	}
	sort.Strings(running)
	fmt.Fprintf(h, "r:%s;", strings.Join(running, ","))
	fmt.Fprintf(h, "p:%s", strings.Join(o.Projects, ","))
	return fmt.Sprintf("%x", h.Sum64())
}

// Tree is the result of one projection build.
type Tree struct {
	Root  *Item
	items map[string]*Item
	// visibleTests holds the id of every test leaf surviving the filter,
	// in tree order.
	visibleTests []string
}

// ItemByID returns the tree item with the given id, or nil.
func (t *Tree) ItemByID(id string) *Item {
	return t.items[id]
}

// VisibleTestIDs returns the ids of all test leaves in the tree, in tree
// order. Callers must not mutate the returned slice.
func (t *Tree) VisibleTestIDs() []string {
	return t.visibleTests
}

// Build projects a snapshot into a tree. Stages run in a fixed order:
// raw build, filter, sort and status rollup, shorten-root, flatten for a
// single enabled project, then indexing.
func Build(snap *model.Snapshot, opts Options) *Tree {
	root := buildRaw(snap, opts)
	singleProject := len(root.Children) == 1
	root = filterItem(root, newFilter(opts))
	if root == nil {
		root = &Item{Kind: ItemGroup, GroupKind: GroupRoot, Status: runner.StatusPending}
	}
	sortAndRollup(root)
	root = shortenRoot(root)
	if singleProject {
		root = flattenSingleProject(root)
	}

	t := &Tree{Root: root, items: make(map[string]*Item)}
	var index func(*Item)
	index = func(it *Item) {
		t.items[it.ID] = it
		if it.Kind == ItemTest {
			t.visibleTests = append(t.visibleTests, it.Test.ID)
			return
		}
		for _, c := range it.Children {
			index(c)
		}
	}
	index(root)
	return t
}

// buildRaw converts the snapshot graph into items for the enabled
// projects. File suites expand into a folder chain so deep directory
// layouts group naturally.
func buildRaw(snap *model.Snapshot, opts Options) *Item {
	enabled := map[string]bool{}
	for _, p := range opts.Projects {
		enabled[p] = true
	}

	root := &Item{Kind: ItemGroup, GroupKind: GroupRoot}
	for _, suite := range snap.Root.Suites {
		if suite.Kind != model.KindProject {
			continue
		}
		if opts.Projects != nil && !enabled[suite.Title] {
			continue
		}
		project := &Item{
			ID:        suite.Title,
			Kind:      ItemGroup,
			GroupKind: GroupProject,
			Title:     suite.Title,
			Project:   suite.Title,
		}
		for _, file := range suite.Suites {
			parent := folderFor(project, path.Dir(file.Title))
			parent.Children = append(parent.Children, buildSuite(file, GroupFile, path.Base(file.Title), parent, suite.Title))
		}
		root.Children = append(root.Children, project)
	}
	return root
}

// folderFor returns the item for dir under project, creating the folder
// chain as needed.
func folderFor(project *Item, dir string) *Item {
	if dir == "." || dir == "" || dir == "/" {
		return project
	}
	cur := project
	for _, seg := range strings.Split(dir, "/") {
		var next *Item
		for _, c := range cur.Children {
			if c.GroupKind == GroupFolder && c.Title == seg {
				next = c
				break
			}
		}
		if next == nil {
			next = &Item{
				ID:        cur.ID + "/" + seg,
				Kind:      ItemGroup,
				GroupKind: GroupFolder,
				Title:     seg,
				Project:   project.Project,
			}
			cur.Children = append(cur.Children, next)
		}
		cur = next
	}
	return cur
}

func buildSuite(s *model.Suite, kind GroupKind, title string, parent *Item, project string) *Item {
	it := &Item{
		ID:        parent.ID + "/" + title,
		Kind:      ItemGroup,
		GroupKind: kind,
		Title:     title,
		Location:  s.Location,
		Project:   project,
	}
	for _, child := range s.Suites {
		it.Children = append(it.Children, buildSuite(child, GroupDescribe, child.Title, it, project))
	}
	for _, tc := range s.Tests {
		it.Children = append(it.Children, &Item{
			ID:       it.ID + "/" + tc.Title,
			Kind:     ItemTest,
			Title:    tc.Title,
			Location: tc.Location,
			Project:  project,
			Test:     tc,
		})
	}
	return it
}

type filter struct {
	text     string
	statuses map[runner.Status]bool
	running  map[string]struct{}
}

func newFilter(opts Options) filter {
	active := map[runner.Status]bool{}
	for s, on := range opts.StatusFilters {
		if on {
			active[s] = true
		}
	}
	return filter{
		text:     strings.ToLower(opts.FilterText),
		statuses: active,
		running:  opts.RunningIDs,
	}
}

func (f filter) textMatch(it *Item) bool {
	if f.text == "" {
		return true
	}
	return strings.Contains(strings.ToLower(it.Title), f.text) ||
		strings.Contains(strings.ToLower(it.Location.File), f.text)
}

func (f filter) leafStatusOK(it *Item) bool {
	if len(f.statuses) == 0 {
		return true
	}
	if _, running := f.running[it.Test.ID]; running {
		return true
	}
	return f.statuses[leafStatus(it.Test)]
}

// filterItem returns a filtered copy of the subtree, or nil when nothing
// under it survives. A text match on a group keeps its whole subtree,
// subject only to status filtering of the leaves.
func filterItem(root *Item, f filter) *Item {
	var walk func(it *Item, inheritedMatch bool) *Item
	walk = func(it *Item, inheritedMatch bool) *Item {
		match := inheritedMatch || f.textMatch(it)
		if it.Kind == ItemTest {
			if match && f.leafStatusOK(it) {
				copied := *it
				return &copied
			}
			return nil
		}
		var kept []*Item
		for _, c := range it.Children {
			if survivor := walk(c, match); survivor != nil {
				kept = append(kept, survivor)
			}
		}
		if len(kept) == 0 {
			return nil
		}
		copied := *it
		copied.Children = kept
		return &copied
	}
	return walk(root, f.text == "")
}

// sortAndRollup orders siblings by source position and propagates the
// worst-case descendant status upward.
func sortAndRollup(it *Item) runner.Status {
	if it.Kind == ItemTest {
		it.Status = leafStatus(it.Test)
		return it.Status
	}
	sort.SliceStable(it.Children, func(i, j int) bool {
		a, b := it.Children[i], it.Children[j]
		if a.Location.File != b.Location.File {
			return a.Location.File < b.Location.File
		}
		if a.Location.Line != b.Location.Line {
			return a.Location.Line < b.Location.Line
		}
		if a.Location.Column != b.Location.Column {
			return a.Location.Column < b.Location.Column
		}
		return a.Title < b.Title
	})
	rollup := runner.StatusPending
	for _, c := range it.Children {
		if s := sortAndRollup(c); statusRank(s) > statusRank(rollup) {
			rollup = s
		}
	}
	it.Status = rollup
	return rollup
}

// shortenRoot promotes a lone child group to the root position until the
// root branches or reaches a leaf, eliding redundant single-entry levels.
// Reapplying to its own output is a no-op.
func shortenRoot(root *Item) *Item {
	for len(root.Children) == 1 && root.Children[0].Kind == ItemGroup {
		root = root.Children[0]
	}
	return root
}

// flattenSingleProject elides the project grouping level when exactly one
// project is enabled, so its contents appear directly under the root.
// Idempotent: a flattened tree carries no project-kind nodes to elide.
func flattenSingleProject(root *Item) *Item {
	if root.GroupKind == GroupProject {
		lifted := *root
		lifted.GroupKind = GroupRoot
		return &lifted
	}
	changed := false
	var children []*Item
	for _, c := range root.Children {
		if c.Kind == ItemGroup && c.GroupKind == GroupProject {
			children = append(children, c.Children...)
			changed = true
			continue
		}
		children = append(children, c)
	}
	if !changed {
		return root
	}
	copied := *root
	copied.Children = children
	return &copied
}
