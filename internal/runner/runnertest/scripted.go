// Package runnertest provides an in-process Session with scripted
// behavior. Tests use it to drive the session core deterministically;
// the "demo" provider exposes it to the binary so the full UI can run
// without a server.
package runnertest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/testdeck/testdeck/internal/pubsub"
	"github.com/testdeck/testdeck/internal/runner"
)

// ErrClosed is returned by calls on a closed session.
var ErrClosed = errors.New("session closed")

// DefaultTestDuration is the reported duration of a scripted result.
const DefaultTestDuration = 5 * time.Millisecond

type scriptedOutcome struct {
	status   runner.Status
	duration time.Duration
	errors   []runner.TestError
}

// Scripted is a Session whose list report and per-test outcomes are
// configured up front. Runs emit begin/end fragments synchronously in
// request order; tests without a scripted outcome pass.
type Scripted struct {
	mu       sync.Mutex
	report   *runner.ListReport
	outcomes map[string]scriptedOutcome
	setup    runner.SetupStatus
	envReady bool

	hold  chan struct{} // non-nil: the next run blocks on it mid-flight
	stop  chan struct{} // open while a run is in flight
	abort chan error    // open while a run is in flight
	runs  []runner.RunRequest

	installed bool
	cols      int
	rows      int
	closed    bool

	events *pubsub.Broker[runner.Event]
}

// NewScripted creates a session listing the given report.
func NewScripted(report *runner.ListReport) *Scripted {
	return &Scripted{
		report:   report,
		outcomes: make(map[string]scriptedOutcome),
		setup:    runner.SetupPassed,
		envReady: true,
		events:   pubsub.NewBroker[runner.Event](),
	}
}

// ScriptOutcome fixes the result a test reports when run.
func (s *Scripted) ScriptOutcome(id string, status runner.Status, duration time.Duration, errs ...runner.TestError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[id] = scriptedOutcome{status: status, duration: duration, errors: errs}
}

// ScriptSetup fixes the global setup outcome.
func (s *Scripted) ScriptSetup(status runner.SetupStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setup = status
}

// ScriptEnvironment fixes the CheckEnvironment answer.
func (s *Scripted) ScriptEnvironment(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envReady = ready
}

// HoldNextRun makes the next run block after emitting its begin
// fragments, until the returned release function is called or the run is
// stopped. Lets tests observe the Running state at leisure.
func (s *Scripted) HoldNextRun() (release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hold := make(chan struct{})
	s.hold = hold
	var once sync.Once
	return func() { once.Do(func() { close(hold) }) }
}

// Runs returns every run request received so far.
func (s *Scripted) Runs() []runner.RunRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]runner.RunRequest(nil), s.runs...)
}

// Installed reports whether InstallEnvironment was called.
func (s *Scripted) Installed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.installed
}

// Size returns the last Resize dimensions.
func (s *Scripted) Size() (cols, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cols, s.rows
}

// EmitEvent publishes an arbitrary session event, standing in for a
// server-pushed notification.
func (s *Scripted) EmitEvent(ev runner.Event) {
	s.events.Publish(ev)
}

func (s *Scripted) ListTests(ctx context.Context, locations []string) (*runner.ListReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.report, nil
}

func (s *Scripted) RunTests(ctx context.Context, req runner.RunRequest) (runner.RunOutcome, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	s.runs = append(s.runs, req)
	hold := s.hold
	s.hold = nil
	stop := make(chan struct{})
	s.stop = stop
	abort := make(chan error, 1)
	s.abort = abort
	outcomes := s.outcomes
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.stop = nil
		s.abort = nil
		s.mu.Unlock()
	}()

	for _, id := range req.TestIDs {
		s.events.Publish(runner.TestReportEvent{Event: runner.TestEvent{
			Kind:   runner.TestEventBegin,
			TestID: id,
		}})
	}

	if hold != nil {
		select {
		case <-hold:
		case <-stop:
			return runner.RunStopped, nil
		case err := <-abort:
			return "", err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	for _, id := range req.TestIDs {
		select {
		case <-stop:
			return runner.RunStopped, nil
		case err := <-abort:
			return "", err
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		outcome, ok := outcomes[id]
		if !ok {
			outcome = scriptedOutcome{status: runner.StatusPassed, duration: DefaultTestDuration}
		}
		s.events.Publish(runner.TestReportEvent{Event: runner.TestEvent{
			Kind:     runner.TestEventEnd,
			TestID:   id,
			Status:   outcome.status,
			Duration: outcome.duration,
			Errors:   outcome.errors,
		}})
	}
	return runner.RunFinished, nil
}

// AbortRun fails the in-flight run with err, standing in for a dropped
// connection. No-op when idle.
func (s *Scripted) AbortRun(err error) {
	s.mu.Lock()
	abort := s.abort
	s.mu.Unlock()
	if abort != nil {
		select {
		case abort <- err:
		default:
		}
	}
}

func (s *Scripted) StopTests(ctx context.Context) error {
	s.mu.Lock()
	stop := s.stop
	s.stop = nil
	s.mu.Unlock()
	if stop != nil {
		close(stop)
	}
	return nil
}

func (s *Scripted) RunGlobalSetup(ctx context.Context) (runner.SetupStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	return s.setup, nil
}

func (s *Scripted) CheckEnvironment(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.envReady, nil
}

func (s *Scripted) InstallEnvironment(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installed = true
	s.envReady = true
	return nil
}

func (s *Scripted) Resize(cols, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cols = cols
	s.rows = rows
}

func (s *Scripted) Events() *pubsub.Broker[runner.Event] {
	return s.events
}

func (s *Scripted) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	stop := s.stop
	s.stop = nil
	s.mu.Unlock()
	if stop != nil {
		close(stop)
	}
	s.events.Close()
	return nil
}
