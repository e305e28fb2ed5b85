package runner

import "time"

// Status is a test result status as reported by the server.
type Status string

const (
	StatusPending     Status = "pending"
	StatusPassed      Status = "passed"
	StatusFailed      Status = "failed"
	StatusSkipped     Status = "skipped"
	StatusTimedOut    Status = "timedout"
	StatusInterrupted Status = "interrupted"
)

// ListReport describes the suite structure the server discovered.
// Projects are ordered as configured on the server; files and groups are
// ordered by source position.
type ListReport struct {
	Projects []ProjectEntry
	Errors   []LoadErrorEntry
}

// ProjectEntry is one configured project and its test files.
type ProjectEntry struct {
	Name  string
	Files []FileEntry
}

// FileEntry is one test file with its top-level groups and tests.
type FileEntry struct {
	Path   string
	Groups []GroupEntry
	Tests  []TestEntry
}

// GroupEntry is a describe-style grouping inside a file.
type GroupEntry struct {
	Title  string
	Line   int
	Column int
	Groups []GroupEntry
	Tests  []TestEntry
}

// TestEntry is a single test declaration.
type TestEntry struct {
	ID     string
	Title  string
	Line   int
	Column int
}

// LoadErrorEntry is a file that failed to load during listing.
type LoadErrorEntry struct {
	File    string
	Line    int
	Column  int
	Message string
}

// TestEventKind discriminates result fragments.
type TestEventKind string

const (
	TestEventBegin      TestEventKind = "test-begin"
	TestEventStepBegin  TestEventKind = "step-begin"
	TestEventStepEnd    TestEventKind = "step-end"
	TestEventAttachment TestEventKind = "attachment"
	TestEventEnd        TestEventKind = "test-end"
)

// TestError is one error attached to a failed result. Expected and Actual
// carry the raw comparison snippets when the assertion produced them.
type TestError struct {
	Message  string
	Stack    string
	Expected string
	Actual   string
}

// Attachment is a file or buffer the server attached to a result.
type Attachment struct {
	Name        string
	ContentType string
	Path        string
	Body        []byte
}

// TestEvent is a single result fragment for one test.
// Fields are populated per Kind: Step/Category for step fragments,
// Status/Duration/Errors for test-end, Attachment for attachments.
type TestEvent struct {
	Kind       TestEventKind
	TestID     string
	Step       string
	Category   string
	Status     Status
	Duration   time.Duration
	Errors     []TestError
	Attachment *Attachment
}
