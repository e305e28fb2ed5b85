package watchmode

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/testdeck/testdeck/internal/log"
	"github.com/testdeck/testdeck/internal/pubsub"
	"github.com/testdeck/testdeck/internal/runner"
)

// testFileSuffixes are the filename shapes treated as test sources.
var testFileSuffixes = []string{
	".spec.ts", ".spec.tsx", ".spec.js", ".spec.jsx", ".spec.mjs",
	".test.ts", ".test.tsx", ".test.js", ".test.jsx", ".test.mjs",
}

// WatcherConfig configures the local change source.
type WatcherConfig struct {
	// Dir is the root of the test tree to watch, recursively.
	Dir string
	// Debounce is how long to accumulate events before publishing one
	// batched change notification.
	Debounce time.Duration
}

// DefaultWatcherConfig returns sensible defaults for dir.
func DefaultWatcherConfig(dir string) WatcherConfig {
	return WatcherConfig{Dir: dir, Debounce: 500 * time.Millisecond}
}

// Watcher watches a directory tree for test-file changes and publishes
// debounced FilesChangedEvents on a session event broker, so locally
// observed changes flow through the same path as server-pushed ones.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	dir       string
	debounce  time.Duration
	ignorer   *ignore.GitIgnore
	events    *pubsub.Broker[runner.Event]
	done      chan struct{}
}

// NewWatcher creates a watcher publishing into events. A .gitignore at
// the root, when present, filters both watched directories and reported
// paths.
func NewWatcher(cfg WatcherConfig, events *pubsub.Broker[runner.Event]) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	var ignorer *ignore.GitIgnore
	if gi, err := ignore.CompileIgnoreFile(filepath.Join(cfg.Dir, ".gitignore")); err == nil {
		ignorer = gi
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultWatcherConfig(cfg.Dir).Debounce
	}
	return &Watcher{
		fsWatcher: fsw,
		dir:       cfg.Dir,
		debounce:  debounce,
		ignorer:   ignorer,
		events:    events,
		done:      make(chan struct{}),
	}, nil
}

// Start registers the directory tree and begins the event loop.
func (w *Watcher) Start() error {
	err := filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.skipDir(path) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
	if err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}

	go w.loop()
	log.Info(log.CatWatch, "file watcher started", "dir", w.dir, "debounce", w.debounce)
	return nil
}

// Stop terminates the watcher and releases resources.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsWatcher.Close()
}

// loop accumulates relevant events and publishes one batched
// notification per quiet period.
func (w *Watcher) loop() {
	var (
		timer   *time.Timer
		pending = make(map[string]struct{})
	)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			// New directories join the watch set as they appear.
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !w.skipDir(event.Name) {
					if err := w.fsWatcher.Add(event.Name); err != nil {
						log.Warn(log.CatWatch, "cannot watch new directory", "dir", event.Name, "error", err)
					}
					continue
				}
			}

			rel, relevant := w.relevantPath(event)
			if !relevant {
				continue
			}
			pending[rel] = struct{}{}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					// Drain the timer channel if it already fired
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-func() <-chan time.Time {
			if timer != nil {
				return timer.C
			}
			return nil
		}():
			if len(pending) > 0 {
				paths := make([]string, 0, len(pending))
				for p := range pending {
					paths = append(paths, p)
				}
				pending = make(map[string]struct{})
				log.Debug(log.CatWatch, "publishing file changes", "files", len(paths))
				w.events.Publish(runner.FilesChangedEvent{Paths: paths})
			}
			timer = nil

		case _, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// relevantPath maps an event to a root-relative test-file path, or
// reports it irrelevant.
func (w *Watcher) relevantPath(event fsnotify.Event) (string, bool) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return "", false
	}
	if !isTestFile(event.Name) {
		return "", false
	}
	rel, err := filepath.Rel(w.dir, event.Name)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if w.ignorer != nil && w.ignorer.MatchesPath(rel) {
		return "", false
	}
	return rel, true
}

func (w *Watcher) skipDir(path string) bool {
	base := filepath.Base(path)
	if base == ".git" || base == "node_modules" {
		return true
	}
	if w.ignorer == nil || path == w.dir {
		return false
	}
	rel, err := filepath.Rel(w.dir, path)
	if err != nil {
		return false
	}
	return w.ignorer.MatchesPath(filepath.ToSlash(rel))
}

func isTestFile(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	for _, suffix := range testFileSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
