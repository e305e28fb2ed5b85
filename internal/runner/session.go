// Package runner defines the contract between the session core and a
// remote test-execution server. The core never implements a transport;
// it consumes a Session created by a registered provider and reacts to
// the out-of-band events the session publishes.
package runner

import (
	"context"

	"github.com/testdeck/testdeck/internal/pubsub"
)

// SetupStatus is the outcome of the server's global setup phase.
type SetupStatus string

const (
	SetupPassed      SetupStatus = "passed"
	SetupFailed      SetupStatus = "failed"
	SetupInterrupted SetupStatus = "interrupted"
)

// RunRequest parameterizes a single remote test run.
type RunRequest struct {
	// RunID correlates log entries and trace spans for one run.
	RunID string
	// TestIDs is the exact set of tests the server should execute.
	TestIDs []string
	// Projects is the list of enabled project names.
	Projects []string
}

// RunOutcome describes how a run resolved.
type RunOutcome string

const (
	// RunFinished means the server reported normal completion.
	RunFinished RunOutcome = "finished"
	// RunStopped means the run ended after an explicit stop request.
	RunStopped RunOutcome = "stopped"
)

// Session is a bidirectional channel to a remote test-execution server.
//
// Request/response calls block until the server replies; out-of-band
// events (report fragments, list/file change notifications, stdio,
// disconnect) arrive on the Events broker. Callers must never issue two
// overlapping RunTests or ListTests calls; the session is a single
// logical connection with ordered request/response semantics.
type Session interface {
	// ListTests requests the suite structure for the given file locations.
	// An empty locations slice lists everything.
	ListTests(ctx context.Context, locations []string) (*ListReport, error)

	// RunTests executes the requested tests, blocking until the run
	// completes or is stopped. Result fragments stream in via Events
	// while the call is outstanding.
	RunTests(ctx context.Context, req RunRequest) (RunOutcome, error)

	// StopTests asks the server to interrupt the current run.
	// Fire-and-forget: no acknowledgement is awaited.
	StopTests(ctx context.Context) error

	// RunGlobalSetup runs the server's global setup phase.
	RunGlobalSetup(ctx context.Context) (SetupStatus, error)

	// CheckEnvironment reports whether the server's execution
	// environment (browsers, fixtures) is ready.
	CheckEnvironment(ctx context.Context) (bool, error)

	// InstallEnvironment installs whatever CheckEnvironment found
	// missing. Side-effecting and potentially slow.
	InstallEnvironment(ctx context.Context) error

	// Resize notifies the server that the side-channel display changed size.
	Resize(cols, rows int)

	// Events returns the broker carrying out-of-band session events.
	Events() *pubsub.Broker[Event]

	// Close tears down the connection and closes the event broker.
	Close() error
}
