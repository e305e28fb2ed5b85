package watchmode

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testdeck/testdeck/internal/model"
	"github.com/testdeck/testdeck/internal/projection"
	"github.com/testdeck/testdeck/internal/runner"
	"github.com/testdeck/testdeck/internal/testutil"
)

func projectedTree(t *testing.T, report *runner.ListReport) *projection.Tree {
	t.Helper()
	b := model.NewBuilder()
	b.ProcessListReport(report)
	return projection.Build(b.Snapshot(1), projection.Options{})
}

func watchReport() *runner.ListReport {
	return testutil.NewReportBuilder().
		Project("chromium").
		File("a.spec.ts").
		Test("a1", "first in a").
		Test("a2", "second in a").
		File("b.spec.ts").
		Test("b1", "only in b").
		Build()
}

func changed(paths ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		m[p] = struct{}{}
	}
	return m
}

func sorted(ids []string) []string {
	sort.Strings(ids)
	return ids
}

func TestWatchAllSelectsTestsOfChangedFile(t *testing.T) {
	tree := projectedTree(t, watchReport())
	s := NewSelector()
	s.SetWatchAll(true)

	ids := s.OnFilesChanged(tree, changed("a.spec.ts"))
	assert.Equal(t, []string{"a1", "a2"}, sorted(ids))

	ids = s.OnFilesChanged(tree, changed("a.spec.ts", "b.spec.ts"))
	assert.Equal(t, []string{"a1", "a2", "b1"}, sorted(ids))

	assert.Empty(t, s.OnFilesChanged(tree, changed("c.spec.ts")))
}

func TestWatchedSetOnlyConsidersCuratedNodes(t *testing.T) {
	tree := projectedTree(t, watchReport())
	s := NewSelector()

	// Nothing watched: changes select nothing.
	assert.Empty(t, s.OnFilesChanged(tree, changed("a.spec.ts")))

	// Watch one test inside a.spec.ts; the file's other test stays out.
	item := tree.ItemByID("chromium/a.spec.ts/first in a")
	require.NotNil(t, item)
	assert.True(t, s.ToggleWatched(item.ID))

	ids := s.OnFilesChanged(tree, changed("a.spec.ts"))
	assert.Equal(t, []string{"a1"}, sorted(ids))

	// A change elsewhere does not touch the watched node.
	assert.Empty(t, s.OnFilesChanged(tree, changed("b.spec.ts")))

	// Unwatch: back to nothing.
	assert.False(t, s.ToggleWatched(item.ID))
	assert.Empty(t, s.OnFilesChanged(tree, changed("a.spec.ts")))
}

func TestWatchedFileNodeCoversItsSubtree(t *testing.T) {
	tree := projectedTree(t, watchReport())
	s := NewSelector()
	s.ToggleWatched("chromium/a.spec.ts")

	ids := s.OnFilesChanged(tree, changed("a.spec.ts"))
	assert.Equal(t, []string{"a1", "a2"}, sorted(ids))
}

func TestWatchAllRecursesThroughFolders(t *testing.T) {
	// Two independent files under one folder; a change to either must be
	// found even after matches higher in the walk.
	tree := projectedTree(t, testutil.NewReportBuilder().
		Project("chromium").
		File("nested/a.spec.ts").
		Test("a1", "in a").
		File("nested/b.spec.ts").
		Test("b1", "in b").
		Build())

	s := NewSelector()
	s.SetWatchAll(true)
	ids := s.OnFilesChanged(tree, changed("nested/b.spec.ts"))
	assert.Equal(t, []string{"b1"}, sorted(ids))
}

func TestModesAreMutuallyExclusive(t *testing.T) {
	s := NewSelector()

	s.ToggleWatched("some/item")
	s.SetWatchAll(true)
	assert.True(t, s.WatchAll())
	assert.Empty(t, s.Watched(), "enabling watch-all clears the curated set")

	s.ToggleWatched("some/item")
	assert.False(t, s.WatchAll(), "curating an item leaves watch-all")
	assert.True(t, s.IsWatched("some/item"))
}

func TestOnFilesChangedToleratesMissingTree(t *testing.T) {
	s := NewSelector()
	s.SetWatchAll(true)
	assert.Empty(t, s.OnFilesChanged(nil, changed("a.spec.ts")))
}
