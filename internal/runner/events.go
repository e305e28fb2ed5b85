package runner

// Event is an out-of-band notification published by a Session.
type Event interface {
	isSessionEvent()
}

// ListReportEvent carries a full or partial suite structure pushed by the
// server outside an explicit ListTests call.
type ListReportEvent struct {
	Report *ListReport
}

// TestReportEvent carries a single result fragment for an in-flight run.
type TestReportEvent struct {
	Event TestEvent
}

// ListChangedEvent signals that the server-side test list changed and a
// reload is needed.
type ListChangedEvent struct{}

// FilesChangedEvent reports source files that changed on disk.
type FilesChangedEvent struct {
	Paths []string
}

// StdioEvent carries raw output bytes for the side-channel terminal.
// Either Text or Base64 is set, never both.
type StdioEvent struct {
	Stream string // "stdout" or "stderr"
	Text   string
	Base64 string
}

// DisconnectedEvent signals that the connection to the server was lost.
// The session is unusable afterwards; recovery requires a full reload
// through a fresh session.
type DisconnectedEvent struct {
	Err error
}

func (ListReportEvent) isSessionEvent()   {}
func (TestReportEvent) isSessionEvent()   {}
func (ListChangedEvent) isSessionEvent()  {}
func (FilesChangedEvent) isSessionEvent() {}
func (StdioEvent) isSessionEvent()        {}
func (DisconnectedEvent) isSessionEvent() {}
