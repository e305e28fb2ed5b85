package controller

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/testdeck/testdeck/internal/model"
	"github.com/testdeck/testdeck/internal/runner"
	"github.com/testdeck/testdeck/internal/runner/runnertest"
	"github.com/testdeck/testdeck/internal/testutil"
)

type runHarness struct {
	session *runnertest.Scripted
	builder *model.Builder
	queue   *CommandQueue
	runs    *RunController
	cancel  context.CancelFunc
}

// newRunHarness wires a run controller against a scripted session, with
// session events pumped straight into the builder.
func newRunHarness(t *testing.T, report *runner.ListReport) *runHarness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	session := runnertest.NewScripted(report)
	builder := model.NewBuilder()
	builder.ProcessListReport(report)
	queue := NewCommandQueue(ctx)
	runs := NewRunController(queue, session, builder, func() []string { return []string{"chromium"} })

	events := session.Events().Subscribe(ctx)
	go func() {
		for ev := range events {
			if tr, ok := ev.(runner.TestReportEvent); ok {
				builder.ProcessTestEvent(tr.Event)
			}
		}
	}()

	h := &runHarness{session: session, builder: builder, queue: queue, runs: runs, cancel: cancel}
	t.Cleanup(func() {
		cancel()
		queue.Close()
		_ = session.Close()
	})
	return h
}

func (h *runHarness) waitIdle(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool { return h.runs.Running() == nil }, 2*time.Second, time.Millisecond)
}

func (h *runHarness) waitRunning(t *testing.T) *RunningState {
	t.Helper()
	var state *RunningState
	require.Eventually(t, func() bool {
		state = h.runs.Running()
		return state != nil
	}, 2*time.Second, time.Millisecond)
	return state
}

func threeTestReport() *runner.ListReport {
	return testutil.NewReportBuilder().
		Project("chromium").
		File("a.spec.ts").
		Test("t1", "one").
		Test("t2", "two").
		Test("t3", "three").
		Build()
}

func TestRunDispatchesSnapshotAndReturnsToIdle(t *testing.T) {
	h := newRunHarness(t, threeTestReport())

	h.runs.RequestRun(BounceIfBusy, []string{"t1", "t2"}, true)
	h.waitIdle(t)

	require.Eventually(t, func() bool { return len(h.session.Runs()) == 1 }, time.Second, time.Millisecond)
	req := h.session.Runs()[0]
	assert.Equal(t, []string{"t1", "t2"}, req.TestIDs)
	assert.Equal(t, []string{"chromium"}, req.Projects)
	assert.NotEmpty(t, req.RunID)

	require.Eventually(t, func() bool {
		cur := h.builder.Snapshot(1).TestByID("t1").Current()
		return cur != nil && cur.Phase == model.PhaseDone
	}, time.Second, time.Millisecond)
}

func TestBounceIfBusyDropsWhileRunning(t *testing.T) {
	h := newRunHarness(t, threeTestReport())
	release := h.session.HoldNextRun()

	h.runs.RequestRun(BounceIfBusy, []string{"t1"}, true)
	h.waitRunning(t)

	// Bounced: no model mutation, no dispatch.
	h.runs.RequestRun(BounceIfBusy, []string{"t2", "t3"}, true)
	time.Sleep(20 * time.Millisecond)
	assert.Nil(t, h.builder.Snapshot(1).TestByID("t2").Current(), "bounced request must not touch the model")

	release()
	h.waitIdle(t)
	require.Eventually(t, func() bool { return h.queue.Processed() >= 1 }, time.Second, time.Millisecond)
	require.Len(t, h.session.Runs(), 1, "bounced request must not dispatch")
}

func TestQueueIfBusyUnionsBacklog(t *testing.T) {
	h := newRunHarness(t, threeTestReport())
	release := h.session.HoldNextRun()

	h.runs.RequestRun(BounceIfBusy, []string{"t1"}, true)
	h.waitRunning(t)

	// Watch-triggered requests during the run union into one backlog.
	h.runs.RequestRun(QueueIfBusy, []string{"t2"}, false)
	h.runs.RequestRun(QueueIfBusy, []string{"t3"}, false)
	h.runs.RequestRun(QueueIfBusy, []string{"t2"}, false)

	release()
	h.waitIdle(t)

	require.Eventually(t, func() bool { return len(h.session.Runs()) == 2 }, 2*time.Second, time.Millisecond)
	h.waitIdle(t)

	second := h.session.Runs()[1]
	assert.Equal(t, []string{"t2", "t3"}, second.TestIDs, "backlog must be the union, no id lost or duplicated")
}

func TestQueuedRequestsCollapseWhileIdle(t *testing.T) {
	h := newRunHarness(t, threeTestReport())
	release := h.session.HoldNextRun()

	// Several requests before the first dispatch executes: one growing
	// backlog, one run, and the absorbed dispatches turn into no-ops.
	h.runs.RequestRun(QueueIfBusy, []string{"t1"}, false)
	h.runs.RequestRun(QueueIfBusy, []string{"t2"}, false)
	h.runs.RequestRun(QueueIfBusy, []string{"t3"}, false)

	h.waitRunning(t)
	release()
	h.waitIdle(t)
	require.Eventually(t, func() bool { return h.queue.Processed() >= 3 }, 2*time.Second, time.Millisecond)

	require.Len(t, h.session.Runs(), 1)
	assert.Equal(t, []string{"t1", "t2", "t3"}, h.session.Runs()[0].TestIDs)
}

func TestScheduledMarksPrecedeDispatch(t *testing.T) {
	h := newRunHarness(t, threeTestReport())
	release := h.session.HoldNextRun()
	defer release()

	h.runs.RequestRun(BounceIfBusy, []string{"t1", "t2"}, true)
	state := h.waitRunning(t)

	_, ok := state.TestIDs["t1"]
	assert.True(t, ok)
	assert.True(t, state.UserInitiated)

	// By the time the run is in flight the marks are long since applied;
	// t1/t2 carry a result (begin already arrived), t3 stays untouched.
	snap := h.builder.Snapshot(1)
	require.NotNil(t, snap.TestByID("t1").Current())
	require.NotNil(t, snap.TestByID("t2").Current())
	assert.True(t, snap.TestByID("t1").Current().Unfinished())
	assert.Nil(t, snap.TestByID("t3").Current())
}

func TestStopClearsUnfinishedResults(t *testing.T) {
	h := newRunHarness(t, threeTestReport())
	_ = h.session.HoldNextRun()

	h.runs.RequestRun(BounceIfBusy, []string{"t1", "t2"}, true)
	h.waitRunning(t)

	// Wait for the begin fragments to land before interrupting.
	require.Eventually(t, func() bool {
		cur := h.builder.Snapshot(1).TestByID("t2").Current()
		return cur != nil && cur.Phase == model.PhaseRunning
	}, time.Second, time.Millisecond)

	// Stop mid-run: held runs resolve as stopped without emitting ends.
	h.runs.StopRun(context.Background())
	h.waitIdle(t)

	snap := h.builder.Snapshot(1)
	assert.Nil(t, snap.TestByID("t1").Current(), "interrupted test reverts to no result")
	assert.Nil(t, snap.TestByID("t2").Current(), "interrupted test reverts to no result")

	var unfinished int
	snap.EachTest(func(tc *model.TestCase) bool {
		if cur := tc.Current(); cur != nil && cur.Unfinished() {
			unfinished++
		}
		return true
	})
	assert.Zero(t, unfinished, "no unfinished sentinel may survive an interrupted run")
}

func TestStopWhileIdleIsANoOp(t *testing.T) {
	h := newRunHarness(t, threeTestReport())
	h.runs.StopRun(context.Background())
	assert.Empty(t, h.session.Runs())
}

func TestBacklogUnionProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ids := []string{"t1", "t2", "t3"}
		requests := rapid.SliceOfN(rapid.SliceOfN(rapid.SampledFrom(ids), 1, 3), 1, 8).Draw(t, "requests")

		rc := &RunController{backlog: make(map[string]struct{})}
		want := make(map[string]struct{})
		for _, req := range requests {
			rc.mu.Lock()
			for _, id := range req {
				rc.backlog[id] = struct{}{}
			}
			rc.mu.Unlock()
			for _, id := range req {
				want[id] = struct{}{}
			}
		}

		rc.mu.Lock()
		got := rc.backlog
		rc.backlog = make(map[string]struct{})
		rc.mu.Unlock()

		var gotIDs, wantIDs []string
		for id := range got {
			gotIDs = append(gotIDs, id)
		}
		for id := range want {
			wantIDs = append(wantIDs, id)
		}
		sort.Strings(gotIDs)
		sort.Strings(wantIDs)
		assert.Equal(t, wantIDs, gotIDs)
		assert.Empty(t, rc.backlog, "snapshot must clear the backlog")
	})
}
