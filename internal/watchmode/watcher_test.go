package watchmode

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testdeck/testdeck/internal/pubsub"
	"github.com/testdeck/testdeck/internal/runner"
)

func startWatcher(t *testing.T, dir string) <-chan runner.Event {
	t.Helper()
	events := pubsub.NewBroker[runner.Event]()
	t.Cleanup(events.Close)

	w, err := NewWatcher(WatcherConfig{Dir: dir, Debounce: 50 * time.Millisecond}, events)
	require.NoError(t, err, "failed to create watcher")
	t.Cleanup(func() { _ = w.Stop() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ch := events.Subscribe(ctx)

	require.NoError(t, w.Start(), "failed to start watcher")
	return ch
}

func expectChange(t *testing.T, ch <-chan runner.Event) runner.FilesChangedEvent {
	t.Helper()
	select {
	case ev := <-ch:
		fc, ok := ev.(runner.FilesChangedEvent)
		require.True(t, ok, "expected FilesChangedEvent, got %T", ev)
		return fc
	case <-time.After(2 * time.Second):
		t.Fatal("expected change notification but got timeout")
		return runner.FilesChangedEvent{}
	}
}

func TestWatcherDebouncesASingleBatch(t *testing.T) {
	dir := t.TempDir()
	specPath := filepath.Join(dir, "login.spec.ts")
	require.NoError(t, os.WriteFile(specPath, []byte("test"), 0644))

	ch := startWatcher(t, dir)

	// Rapid writes coalesce into one notification.
	for i := 0; i < 10; i++ {
		require.NoError(t, os.WriteFile(specPath, []byte(fmt.Sprintf("test%d", i)), 0644))
		time.Sleep(5 * time.Millisecond)
	}

	fc := expectChange(t, ch)
	assert.Equal(t, []string{"login.spec.ts"}, fc.Paths)

	select {
	case <-ch:
		t.Fatal("unexpected second notification")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestWatcherBatchesDistinctFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.spec.ts")
	b := filepath.Join(dir, "b.spec.ts")
	require.NoError(t, os.WriteFile(a, []byte("a"), 0644))
	require.NoError(t, os.WriteFile(b, []byte("b"), 0644))

	ch := startWatcher(t, dir)

	require.NoError(t, os.WriteFile(a, []byte("a2"), 0644))
	require.NoError(t, os.WriteFile(b, []byte("b2"), 0644))

	fc := expectChange(t, ch)
	assert.ElementsMatch(t, []string{"a.spec.ts", "b.spec.ts"}, fc.Paths)
}

func TestWatcherIgnoresNonTestFiles(t *testing.T) {
	dir := t.TempDir()
	spec := filepath.Join(dir, "a.spec.ts")
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(spec, []byte("a"), 0644))
	require.NoError(t, os.WriteFile(other, []byte("n"), 0644))

	ch := startWatcher(t, dir)

	require.NoError(t, os.WriteFile(other, []byte("more notes"), 0644))
	select {
	case ev := <-ch:
		t.Fatalf("unexpected notification for non-test file: %v", ev)
	case <-time.After(150 * time.Millisecond):
	}

	// A real test file still comes through.
	require.NoError(t, os.WriteFile(spec, []byte("changed"), 0644))
	fc := expectChange(t, ch)
	assert.Equal(t, []string{"a.spec.ts"}, fc.Paths)
}

func TestWatcherHonorsGitignore(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("generated/\n"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "generated"), 0755))
	ignored := filepath.Join(dir, "generated", "gen.spec.ts")
	kept := filepath.Join(dir, "real.spec.ts")
	require.NoError(t, os.WriteFile(ignored, []byte("g"), 0644))
	require.NoError(t, os.WriteFile(kept, []byte("r"), 0644))

	ch := startWatcher(t, dir)

	require.NoError(t, os.WriteFile(ignored, []byte("g2"), 0644))
	require.NoError(t, os.WriteFile(kept, []byte("r2"), 0644))

	fc := expectChange(t, ch)
	assert.Equal(t, []string{"real.spec.ts"}, fc.Paths)
}

func TestWatcherPicksUpNewDirectories(t *testing.T) {
	dir := t.TempDir()
	ch := startWatcher(t, dir)

	sub := filepath.Join(dir, "newdir")
	require.NoError(t, os.MkdirAll(sub, 0755))
	// Give fsnotify a beat to register the new directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "later.spec.ts"), []byte("x"), 0644))

	fc := expectChange(t, ch)
	assert.Equal(t, []string{"newdir/later.spec.ts"}, fc.Paths)
}

func TestIsTestFile(t *testing.T) {
	assert.True(t, isTestFile("a.spec.ts"))
	assert.True(t, isTestFile("dir/b.test.jsx"))
	assert.True(t, isTestFile("C.Spec.TS"))
	assert.False(t, isTestFile("a.ts"))
	assert.False(t, isTestFile("spec.md"))
}
