package controller

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/x/ansi"
	"golang.org/x/sync/errgroup"

	"github.com/testdeck/testdeck/internal/cachemanager"
	"github.com/testdeck/testdeck/internal/log"
	"github.com/testdeck/testdeck/internal/model"
	"github.com/testdeck/testdeck/internal/prefs"
	"github.com/testdeck/testdeck/internal/projection"
	"github.com/testdeck/testdeck/internal/pubsub"
	"github.com/testdeck/testdeck/internal/runner"
	"github.com/testdeck/testdeck/internal/watchmode"
)

// ErrDisconnected marks the terminal state after connection loss. It is
// never auto-recovered; a full session reload clears it.
var ErrDisconnected = errors.New("session disconnected")

// ErrSetupFailed is reported when the server's global setup did not pass.
var ErrSetupFailed = errors.New("global setup did not pass")

// treeCacheTTL bounds how long a memoized projection stays useful; keys
// change with every published snapshot anyway.
const treeCacheTTL = time.Minute

// PrefStore is the preference persistence capability the controller
// consumes. Satisfied by *prefs.Store.
type PrefStore interface {
	GetStrings(key string) ([]string, error)
	SetStrings(key string, values []string) error
	Get(key string) (string, error)
	Set(key, value string) error
}

// Config assembles a Controller.
type Config struct {
	Session runner.Session
	Store   PrefStore
	// PublishDelay is the model coalescing window; zero means the
	// default.
	PublishDelay time.Duration
	// QueueOptions configure the command queue (capacity, tracer).
	QueueOptions []QueueOption
}

type buildInput struct {
	snap *model.Snapshot
	opts projection.Options
}

// Controller is the session orchestrator: it owns the command queue, the
// model builder and publisher, the run controller, the projection
// pipeline and the watch selector, and exposes the narrow surface the
// presentation layer drives.
type Controller struct {
	session  runner.Session
	store    PrefStore
	queue    *CommandQueue
	builder  *model.Builder
	pub      *model.Publisher
	runs     *RunController
	filter   *projection.ProjectFilter
	selector *watchmode.Selector
	termSize *TerminalSize

	trees  *pubsub.Broker[*projection.Tree]
	output *pubsub.Broker[string]

	treeCache *cachemanager.ReadThroughCache[string, *projection.Tree, buildInput]

	mu            sync.Mutex
	filterText    string
	statusFilters map[runner.Status]bool
	currentTree   *projection.Tree
	disconnected  error
	setupFailed   bool

	cancel context.CancelFunc
	group  *errgroup.Group
}

// New assembles a controller around a connected session. Call Start to
// run setup and begin consuming events, Close to tear down.
func New(ctx context.Context, cfg Config) *Controller {
	c := &Controller{
		session:       cfg.Session,
		store:         cfg.Store,
		builder:       model.NewBuilder(),
		filter:        projection.NewProjectFilter(),
		selector:      watchmode.NewSelector(),
		termSize:      NewTerminalSize(80, 24),
		trees:         pubsub.NewBroker[*projection.Tree](),
		output:        pubsub.NewBroker[string](),
		statusFilters: make(map[runner.Status]bool),
	}
	c.queue = NewCommandQueue(ctx, cfg.QueueOptions...)
	c.pub = model.NewPublisher(cfg.PublishDelay, c.builder.Snapshot)
	c.builder.OnUpdate(c.pub.Notify)
	c.runs = NewRunController(c.queue, cfg.Session, c.builder, c.filter.Enabled)

	manager := cachemanager.NewInMemoryCacheManager[string, *projection.Tree](
		"projection", cachemanager.DefaultExpiration, cachemanager.DefaultCleanupInterval)
	c.treeCache = cachemanager.NewReadThroughCache[string, *projection.Tree, buildInput](
		manager,
		func(ctx context.Context, in buildInput) (*projection.Tree, error) {
			return projection.Build(in.snap, in.opts), nil
		},
		false,
	)
	return c
}

// Start runs the session bring-up sequence: global setup, environment
// check, preference restore, then the initial list and the event pump.
// A non-passed setup aborts early, leaving the model empty; that is a
// visible state, not an error.
func (c *Controller) Start(ctx context.Context) error {
	status, err := c.session.RunGlobalSetup(ctx)
	if err != nil {
		return fmt.Errorf("global setup: %w", err)
	}
	if status != runner.SetupPassed {
		log.Warn(log.CatSession, "global setup did not pass, aborting bring-up", "status", status)
		c.mu.Lock()
		c.setupFailed = true
		c.mu.Unlock()
		return nil
	}

	ready, err := c.session.CheckEnvironment(ctx)
	if err != nil {
		return fmt.Errorf("environment check: %w", err)
	}
	if !ready {
		log.Info(log.CatSession, "environment missing pieces, installing")
		if err := c.session.InstallEnvironment(ctx); err != nil {
			return fmt.Errorf("environment install: %w", err)
		}
	}

	c.restoreWatchPrefs()

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	events := c.session.Events().Subscribe(runCtx)
	snaps := c.pub.Broker().Subscribe(runCtx)

	g, runCtx := errgroup.WithContext(runCtx)
	c.group = g
	g.Go(func() error { return c.eventLoop(runCtx, events) })
	g.Go(func() error { return c.snapshotLoop(runCtx, snaps) })

	c.ReloadTests()
	log.Info(log.CatSession, "session started")
	return nil
}

// Close tears down the pumps, the queue and the session.
func (c *Controller) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	if c.group != nil {
		_ = c.group.Wait()
	}
	c.queue.Close()
	c.pub.Close()
	c.trees.Close()
	c.output.Close()
	return c.session.Close()
}

func (c *Controller) restoreWatchPrefs() {
	if all, err := c.store.Get(prefs.KeyWatchAll); err == nil && all == "true" {
		c.selector.SetWatchAll(true)
		return
	}
	if items, err := c.store.GetStrings(prefs.KeyWatchedItems); err == nil && len(items) > 0 {
		c.selector.SetWatched(items)
	}
}

// eventLoop folds session events into the model and side channels.
// Malformed or unexpected events are logged and dropped; nothing here
// may crash the pipeline.
func (c *Controller) eventLoop(ctx context.Context, events <-chan runner.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev := ev.(type) {
			case runner.TestReportEvent:
				c.builder.ProcessTestEvent(ev.Event)
			case runner.ListReportEvent:
				if ev.Report != nil {
					c.applyListReport(ev.Report)
				}
			case runner.ListChangedEvent:
				c.ReloadTests()
			case runner.FilesChangedEvent:
				c.handleFilesChanged(ev.Paths)
			case runner.StdioEvent:
				c.handleStdio(ev)
			case runner.DisconnectedEvent:
				c.mu.Lock()
				c.disconnected = fmt.Errorf("%w: %v", ErrDisconnected, ev.Err)
				c.mu.Unlock()
				log.ErrorErr(log.CatSession, "session disconnected", ev.Err)
			default:
				log.Warn(log.CatSession, "unexpected session event", "type", fmt.Sprintf("%T", ev))
			}
		}
	}
}

// snapshotLoop recomputes the derived tree for every published model.
// The pipeline is explicit: model to projection to visible ids, each
// stage recomputed when its declared inputs change.
func (c *Controller) snapshotLoop(ctx context.Context, snaps <-chan *model.Snapshot) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-snaps:
			if !ok {
				return nil
			}
			c.recompute(ctx, snap)
		}
	}
}

func (c *Controller) recompute(ctx context.Context, snap *model.Snapshot) {
	if snap == nil {
		return
	}
	opts := c.projectionOptions()
	key := fmt.Sprintf("%d/%s", snap.Version, opts.Digest())
	tree, err := c.treeCache.Get(ctx, key, buildInput{snap: snap, opts: opts}, treeCacheTTL)
	if err != nil {
		log.ErrorErr(log.CatTree, "projection rebuild failed", err)
		return
	}
	c.mu.Lock()
	c.currentTree = tree
	c.mu.Unlock()
	c.trees.Publish(tree)
	log.Debug(log.CatTree, "tree recomputed", "version", snap.Version, "visible", len(tree.VisibleTestIDs()))
}

func (c *Controller) projectionOptions() projection.Options {
	c.mu.Lock()
	text := c.filterText
	statuses := make(map[runner.Status]bool, len(c.statusFilters))
	for s, on := range c.statusFilters {
		statuses[s] = on
	}
	c.mu.Unlock()

	opts := projection.Options{
		FilterText:    text,
		StatusFilters: statuses,
		Projects:      c.filter.Enabled(),
	}
	if running := c.runs.Running(); running != nil {
		opts.RunningIDs = running.TestIDs
	}
	return opts
}

// refresh re-derives the tree from the latest published model after a
// view-option change.
func (c *Controller) refresh() {
	c.recompute(context.Background(), c.pub.Latest())
}

func (c *Controller) applyListReport(report *runner.ListReport) {
	names := make([]string, 0, len(report.Projects))
	for _, p := range report.Projects {
		names = append(names, p.Name)
	}
	persisted, err := c.store.GetStrings(prefs.KeyEnabledProjects)
	if err != nil {
		log.ErrorErr(log.CatPrefs, "reading enabled projects", err)
	}
	if c.filter.Reconcile(names, persisted) {
		if err := c.store.SetStrings(prefs.KeyEnabledProjects, c.filter.Enabled()); err != nil {
			log.ErrorErr(log.CatPrefs, "persisting enabled projects", err)
		}
	}
	// Applied after reconcile so the publish that follows sees the
	// up-to-date project filter.
	c.builder.ProcessListReport(report)
}

func (c *Controller) handleFilesChanged(paths []string) {
	changed := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		changed[p] = struct{}{}
	}
	ids := c.selector.OnFilesChanged(c.CurrentTree(), changed)
	if len(ids) == 0 {
		return
	}
	log.Info(log.CatWatch, "queueing watch-triggered run", "tests", len(ids))
	c.runs.RequestRun(QueueIfBusy, ids, false)
}

func (c *Controller) handleStdio(ev runner.StdioEvent) {
	text := ev.Text
	if ev.Base64 != "" {
		raw, err := base64.StdEncoding.DecodeString(ev.Base64)
		if err != nil {
			log.Warn(log.CatSession, "undecodable stdio chunk", "stream", ev.Stream)
			return
		}
		text = string(raw)
	}
	c.output.Publish(ansi.Strip(text))
}

// ReloadTests queues a fresh list request. An explicit reload is also
// the only way out of the disconnected state.
func (c *Controller) ReloadTests() {
	c.mu.Lock()
	c.disconnected = nil
	c.mu.Unlock()

	err := c.queue.Enqueue("list", func(ctx context.Context) error {
		report, err := c.session.ListTests(ctx, nil)
		if err != nil {
			return fmt.Errorf("list tests: %w", err)
		}
		c.applyListReport(report)
		return nil
	})
	if err != nil {
		log.ErrorErr(log.CatSession, "reload not enqueued", err)
	}
}

// RequestRun submits a run request; see RunMode for busy semantics.
func (c *Controller) RequestRun(mode RunMode, ids []string, userInitiated bool) {
	c.runs.RequestRun(mode, ids, userInitiated)
}

// RunVisible runs every test currently visible in the tree.
func (c *Controller) RunVisible() {
	tree := c.CurrentTree()
	if tree == nil {
		return
	}
	c.RequestRun(BounceIfBusy, tree.VisibleTestIDs(), true)
}

// StopRun interrupts the in-flight run, if any.
func (c *Controller) StopRun(ctx context.Context) {
	c.runs.StopRun(ctx)
}

// Running returns the in-flight run state, or nil when idle.
func (c *Controller) Running() *RunningState {
	return c.runs.Running()
}

// SetFilterText updates the free-text filter and recomputes the tree.
func (c *Controller) SetFilterText(text string) {
	c.mu.Lock()
	c.filterText = text
	c.mu.Unlock()
	c.refresh()
}

// SetStatusFilter enables or disables one status filter.
func (c *Controller) SetStatusFilter(status runner.Status, on bool) {
	c.mu.Lock()
	if on {
		c.statusFilters[status] = true
	} else {
		delete(c.statusFilters, status)
	}
	c.mu.Unlock()
	c.refresh()
}

// ToggleProject flips a project's enabled state, persists the selection
// and recomputes the tree.
func (c *Controller) ToggleProject(name string) {
	c.filter.Toggle(name)
	if err := c.store.SetStrings(prefs.KeyEnabledProjects, c.filter.Enabled()); err != nil {
		log.ErrorErr(log.CatPrefs, "persisting enabled projects", err)
	}
	c.refresh()
}

// Projects returns the project filter for read access.
func (c *Controller) Projects() *projection.ProjectFilter {
	return c.filter
}

// SetWatchAll toggles watch-all mode and persists it.
func (c *Controller) SetWatchAll(on bool) {
	c.selector.SetWatchAll(on)
	value := "false"
	if on {
		value = "true"
	}
	if err := c.store.Set(prefs.KeyWatchAll, value); err != nil {
		log.ErrorErr(log.CatPrefs, "persisting watch-all", err)
	}
}

// ToggleWatchItem flips an item's watched state and persists the set.
func (c *Controller) ToggleWatchItem(itemID string) bool {
	watched := c.selector.ToggleWatched(itemID)
	if err := c.store.SetStrings(prefs.KeyWatchedItems, c.selector.Watched()); err != nil {
		log.ErrorErr(log.CatPrefs, "persisting watched items", err)
	}
	return watched
}

// Watch returns the watch selector for read access.
func (c *Controller) Watch() *watchmode.Selector {
	return c.selector
}

// Resize records the side-channel display size and forwards it.
func (c *Controller) Resize(cols, rows int) {
	c.termSize.Set(cols, rows)
	c.session.Resize(cols, rows)
}

// TerminalSize returns the shared size handle.
func (c *Controller) TerminalSize() *TerminalSize {
	return c.termSize
}

// CurrentTree returns the most recently computed tree, or nil.
func (c *Controller) CurrentTree() *projection.Tree {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentTree
}

// Trees returns the broker publishing recomputed trees.
func (c *Controller) Trees() *pubsub.Broker[*projection.Tree] {
	return c.trees
}

// Output returns the broker carrying ANSI-stripped runner output.
func (c *Controller) Output() *pubsub.Broker[string] {
	return c.output
}

// Model returns the publisher for snapshot access and subscription.
func (c *Controller) Model() *model.Publisher {
	return c.pub
}

// Err reports the terminal session state: ErrDisconnected after
// connection loss, ErrSetupFailed when bring-up aborted, nil otherwise.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disconnected != nil {
		return c.disconnected
	}
	if c.setupFailed {
		return ErrSetupFailed
	}
	return nil
}
