// Package model owns the in-memory representation of a test suite: the
// Suite/TestCase/TestResult graph, the builder that folds server report
// fragments into it, and the publisher that hands versioned snapshots to
// consumers on a bounded cadence.
package model

import (
	"time"

	"github.com/testdeck/testdeck/internal/runner"
)

// DurationUnfinished marks a result whose run has not completed.
const DurationUnfinished = time.Duration(-1)

// Phase is the scheduling phase of a result. The server-reported status
// only encodes pass/fail/skip/pending; Phase distinguishes a result that
// is merely queued from one actually executing or finished.
type Phase int

const (
	// PhaseScheduled means the test is queued for a run that has not
	// reached it yet.
	PhaseScheduled Phase = iota
	// PhaseRunning means the server reported the test as started.
	PhaseRunning
	// PhaseDone means the result is final.
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseScheduled:
		return "scheduled"
	case PhaseRunning:
		return "running"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// Location is a position in a test source file.
type Location struct {
	File   string
	Line   int
	Column int
}

// Step is one reported step within a result.
type Step struct {
	Title    string
	Category string
	Duration time.Duration // DurationUnfinished until the step ends
}

// ResultError is one error attached to a failed result. Diff carries an
// inline expected/actual diff when the assertion produced snippets.
type ResultError struct {
	Message string
	Stack   string
	Diff    string
}

// TestResult is one execution attempt of a test.
type TestResult struct {
	Status      runner.Status
	Phase       Phase
	Duration    time.Duration
	Steps       []Step
	Attachments []runner.Attachment
	Errors      []ResultError
}

// Unfinished reports whether the result never completed.
func (r *TestResult) Unfinished() bool {
	return r.Duration == DurationUnfinished
}

// TestCase is a single test, identified by a stable ID. Results are
// ordered most recent first; the current result is Results[0].
type TestCase struct {
	ID        string
	Title     string
	TitlePath []string // project, file, groups..., title
	Location  Location
	Project   string
	Results   []*TestResult
}

// Current returns the most recent result, or nil when the test has none.
func (tc *TestCase) Current() *TestResult {
	if len(tc.Results) == 0 {
		return nil
	}
	return tc.Results[0]
}

// SuiteKind distinguishes levels of the suite hierarchy.
type SuiteKind string

const (
	KindRoot    SuiteKind = "root"
	KindProject SuiteKind = "project"
	KindFile    SuiteKind = "file"
	KindGroup   SuiteKind = "describe"
)

// Suite is a container node in the test hierarchy.
type Suite struct {
	Kind     SuiteKind
	Title    string
	Location Location
	Suites   []*Suite
	Tests    []*TestCase
}

// LoadError is a file that failed to load during listing.
type LoadError struct {
	Location Location
	Message  string
}

// Counts aggregates result statuses across a snapshot. Tests whose
// current result is unfinished (scheduled or running) count as Pending;
// tests with no results count as NoResult.
type Counts struct {
	Passed   int
	Failed   int
	Skipped  int
	Pending  int
	NoResult int
}

// Total returns the number of tests covered by the counts.
func (c Counts) Total() int {
	return c.Passed + c.Failed + c.Skipped + c.Pending + c.NoResult
}

// Snapshot is a published, read-only view of the model. Consumers must
// not mutate it; the builder publishes a fresh Snapshot rather than
// mutating one a consumer already holds.
type Snapshot struct {
	Version    uint64
	Root       *Suite
	LoadErrors []LoadError

	tests    map[string]*TestCase
	projects []string
	counts   Counts
}

// TestByID returns the test with the given id, or nil.
func (s *Snapshot) TestByID(id string) *TestCase {
	return s.tests[id]
}

// EachTest calls fn for every test in the snapshot until fn returns false.
func (s *Snapshot) EachTest(fn func(*TestCase) bool) {
	for _, tc := range s.tests {
		if !fn(tc) {
			return
		}
	}
}

// NumTests returns the number of tests in the snapshot.
func (s *Snapshot) NumTests() int {
	return len(s.tests)
}

// Projects returns the project suite titles in configuration order.
func (s *Snapshot) Projects() []string {
	return s.projects
}

// Counts returns aggregate status counters, used by the presentation
// layer to derive run progress while a run is in flight.
func (s *Snapshot) Counts() Counts {
	return s.counts
}

func computeCounts(tests map[string]*TestCase) Counts {
	var c Counts
	for _, tc := range tests {
		cur := tc.Current()
		switch {
		case cur == nil:
			c.NoResult++
		case cur.Unfinished():
			c.Pending++
		case cur.Status == runner.StatusPassed:
			c.Passed++
		case cur.Status == runner.StatusFailed, cur.Status == runner.StatusTimedOut, cur.Status == runner.StatusInterrupted:
			c.Failed++
		case cur.Status == runner.StatusSkipped:
			c.Skipped++
		default:
			c.Pending++
		}
	}
	return c
}
