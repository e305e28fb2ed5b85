package controller

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/testdeck/testdeck/internal/log"
	"github.com/testdeck/testdeck/internal/model"
	"github.com/testdeck/testdeck/internal/runner"
)

// RunMode decides what happens to a run request when a run is already in
// flight.
type RunMode string

const (
	// BounceIfBusy drops the request entirely while a run is active.
	// Repeated "run all" keypresses must not pile up into an
	// ever-growing backlog.
	BounceIfBusy RunMode = "bounce-if-busy"
	// QueueIfBusy unions the requested ids into the pending backlog
	// regardless of state. Watch-triggered runs are never dropped; a
	// silently bounced one would desynchronize the displayed results
	// from the files on disk.
	QueueIfBusy RunMode = "queue-if-busy"
)

// RunningState exists only while a run is in flight.
type RunningState struct {
	TestIDs       map[string]struct{}
	UserInitiated bool
}

// RunController owns the run lifecycle: backlog accumulation while
// queued, the single outstanding remote run call, and result cleanup
// when the run resolves. State machine: Idle -> Queued -> Running ->
// Idle, with Queued re-entrant.
type RunController struct {
	mu          sync.Mutex
	backlog     map[string]struct{}
	backlogUser bool
	running     *RunningState

	queue    *CommandQueue
	session  runner.Session
	builder  *model.Builder
	projects func() []string
}

// NewRunController creates a controller dispatching through queue.
// projects supplies the enabled project names at dispatch time.
func NewRunController(queue *CommandQueue, session runner.Session, builder *model.Builder, projects func() []string) *RunController {
	return &RunController{
		backlog:  make(map[string]struct{}),
		queue:    queue,
		session:  session,
		builder:  builder,
		projects: projects,
	}
}

// Running returns a copy of the in-flight state, or nil when idle.
func (rc *RunController) Running() *RunningState {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.running == nil {
		return nil
	}
	ids := make(map[string]struct{}, len(rc.running.TestIDs))
	for id := range rc.running.TestIDs {
		ids[id] = struct{}{}
	}
	return &RunningState{TestIDs: ids, UserInitiated: rc.running.UserInitiated}
}

// RequestRun submits a run request. With BounceIfBusy the request is
// dropped while a run is executing; otherwise the ids join the pending
// backlog and a dispatch is queued. Requests arriving while a prior
// dispatch is still queued collapse into its backlog.
func (rc *RunController) RequestRun(mode RunMode, ids []string, userInitiated bool) {
	rc.mu.Lock()
	if mode == BounceIfBusy && rc.running != nil {
		rc.mu.Unlock()
		log.Debug(log.CatRun, "run request bounced", "tests", len(ids))
		return
	}
	for _, id := range ids {
		rc.backlog[id] = struct{}{}
	}
	rc.backlogUser = rc.backlogUser || userInitiated
	rc.mu.Unlock()

	if err := rc.queue.Enqueue("run", rc.dispatch); err != nil {
		log.ErrorErr(log.CatRun, "run dispatch not enqueued", err, "tests", len(ids))
	}
}

// dispatch executes one run on the command queue. The backlog is
// snapshotted and cleared atomically so concurrent QueueIfBusy requests
// start a fresh one; an empty snapshot is a no-op (the request that
// filled it was absorbed by an earlier dispatch).
func (rc *RunController) dispatch(ctx context.Context) error {
	rc.mu.Lock()
	snapshot := rc.backlog
	user := rc.backlogUser
	rc.backlog = make(map[string]struct{})
	rc.backlogUser = false
	rc.mu.Unlock()

	if len(snapshot) == 0 {
		return nil
	}

	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// Scheduled marks publish immediately, before the remote call, so
	// the interval between request and first incoming event never shows
	// stale results.
	rc.builder.MarkScheduled(ids)

	rc.mu.Lock()
	rc.running = &RunningState{TestIDs: snapshot, UserInitiated: user}
	rc.mu.Unlock()

	runID := uuid.NewString()
	log.Info(log.CatRun, "run dispatched", "runId", runID, "tests", len(ids), "userInitiated", user)

	outcome, err := rc.session.RunTests(ctx, runner.RunRequest{
		RunID:    runID,
		TestIDs:  ids,
		Projects: rc.projects(),
	})

	// Completion, stop and connection loss all converge here: drop
	// whatever never finished and go idle.
	cleared := rc.builder.ClearUnfinished()

	rc.mu.Lock()
	rc.running = nil
	rc.mu.Unlock()

	if err != nil {
		return fmt.Errorf("run %s: %w", runID, err)
	}
	log.Info(log.CatRun, "run resolved", "runId", runID, "outcome", outcome, "cleared", cleared)
	return nil
}

// StopRun asks the server to interrupt the current run. Deliberately not
// serialized: the queue is blocked by the very run being stopped. No
// acknowledgement is awaited; resolution arrives through the outstanding
// RunTests call.
func (rc *RunController) StopRun(ctx context.Context) {
	rc.mu.Lock()
	active := rc.running != nil
	rc.mu.Unlock()
	if !active {
		return
	}
	if err := rc.session.StopTests(ctx); err != nil {
		log.ErrorErr(log.CatRun, "stop request failed", err)
	}
}
