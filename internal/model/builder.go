package model

import (
	"sync"

	"github.com/testdeck/testdeck/internal/log"
	"github.com/testdeck/testdeck/internal/runner"
)

// Builder folds list reports and result fragments into the owned suite
// graph. Every ingestion notifies the registered onUpdate callback;
// structural changes (list replaced, tests scheduled, cleanup) notify
// immediately, result fragments do not.
//
// The callback is invoked outside the builder's lock so it may call back
// into Snapshot.
type Builder struct {
	mu         sync.Mutex
	root       *Suite
	tests      map[string]*TestCase
	loadErrors []LoadError
	onUpdate   func(immediate bool)
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		root:  &Suite{Kind: KindRoot},
		tests: make(map[string]*TestCase),
	}
}

// OnUpdate registers the update callback. Must be called before any
// ingestion; a nil callback disables notification.
func (b *Builder) OnUpdate(fn func(immediate bool)) {
	b.mu.Lock()
	b.onUpdate = fn
	b.mu.Unlock()
}

func (b *Builder) notify(immediate bool) {
	if b.onUpdate != nil {
		b.onUpdate(immediate)
	}
}

// ProcessListReport replaces the suite structure wholesale. Result
// histories of tests whose ids survive the reload carry over.
func (b *Builder) ProcessListReport(report *runner.ListReport) {
	b.mu.Lock()

	prev := b.tests
	b.tests = make(map[string]*TestCase)
	b.loadErrors = nil

	root := &Suite{Kind: KindRoot}
	for _, project := range report.Projects {
		root.Suites = append(root.Suites, b.buildProject(project, prev))
	}
	for _, e := range report.Errors {
		b.loadErrors = append(b.loadErrors, LoadError{
			Location: Location{File: e.File, Line: e.Line, Column: e.Column},
			Message:  e.Message,
		})
	}
	b.root = root
	total := len(b.tests)

	b.mu.Unlock()
	log.Debug(log.CatModel, "list report applied", "projects", len(report.Projects), "tests", total)
	b.notify(true)
}

func (b *Builder) buildProject(entry runner.ProjectEntry, prev map[string]*TestCase) *Suite {
	project := &Suite{Kind: KindProject, Title: entry.Name}
	for _, file := range entry.Files {
		fileSuite := &Suite{
			Kind:     KindFile,
			Title:    file.Path,
			Location: Location{File: file.Path},
		}
		path := []string{entry.Name, file.Path}
		for _, group := range file.Groups {
			fileSuite.Suites = append(fileSuite.Suites, b.buildGroup(group, file.Path, entry.Name, path, prev))
		}
		for _, test := range file.Tests {
			fileSuite.Tests = append(fileSuite.Tests, b.buildTest(test, file.Path, entry.Name, path, prev))
		}
		project.Suites = append(project.Suites, fileSuite)
	}
	return project
}

func (b *Builder) buildGroup(entry runner.GroupEntry, file, project string, parentPath []string, prev map[string]*TestCase) *Suite {
	group := &Suite{
		Kind:     KindGroup,
		Title:    entry.Title,
		Location: Location{File: file, Line: entry.Line, Column: entry.Column},
	}
	path := append(append([]string{}, parentPath...), entry.Title)
	for _, child := range entry.Groups {
		group.Suites = append(group.Suites, b.buildGroup(child, file, project, path, prev))
	}
	for _, test := range entry.Tests {
		group.Tests = append(group.Tests, b.buildTest(test, file, project, path, prev))
	}
	return group
}

// buildTest creates a TestCase, carrying over the prior result history
// when the id existed before the reload.
func (b *Builder) buildTest(entry runner.TestEntry, file, project string, parentPath []string, prev map[string]*TestCase) *TestCase {
	tc := &TestCase{
		ID:        entry.ID,
		Title:     entry.Title,
		TitlePath: append(append([]string{}, parentPath...), entry.Title),
		Location:  Location{File: file, Line: entry.Line, Column: entry.Column},
		Project:   project,
	}
	if old, ok := prev[entry.ID]; ok {
		tc.Results = old.Results
	}
	if _, dup := b.tests[entry.ID]; dup {
		log.Warn(log.CatModel, "duplicate test id in list report", "id", entry.ID)
	}
	b.tests[entry.ID] = tc
	return tc
}

// ProcessTestEvent applies one result fragment. Fragments for unknown
// tests or of unknown kinds are logged and dropped; they never crash the
// pipeline.
func (b *Builder) ProcessTestEvent(ev runner.TestEvent) {
	b.mu.Lock()

	tc, ok := b.tests[ev.TestID]
	if !ok {
		b.mu.Unlock()
		log.Warn(log.CatModel, "result fragment for unknown test", "id", ev.TestID, "kind", ev.Kind)
		return
	}

	switch ev.Kind {
	case runner.TestEventBegin:
		if cur := tc.Current(); cur != nil && cur.Phase == PhaseScheduled {
			cur.Phase = PhaseRunning
		} else {
			tc.Results = append([]*TestResult{{
				Status:   runner.StatusPending,
				Phase:    PhaseRunning,
				Duration: DurationUnfinished,
			}}, tc.Results...)
		}

	case runner.TestEventStepBegin:
		cur := b.ensureCurrent(tc)
		cur.Steps = append(cur.Steps, Step{Title: ev.Step, Category: ev.Category, Duration: DurationUnfinished})

	case runner.TestEventStepEnd:
		cur := b.ensureCurrent(tc)
		for i := len(cur.Steps) - 1; i >= 0; i-- {
			if cur.Steps[i].Title == ev.Step && cur.Steps[i].Duration == DurationUnfinished {
				cur.Steps[i].Duration = ev.Duration
				break
			}
		}

	case runner.TestEventAttachment:
		cur := b.ensureCurrent(tc)
		if ev.Attachment != nil {
			cur.Attachments = append(cur.Attachments, *ev.Attachment)
		}

	case runner.TestEventEnd:
		cur := b.ensureCurrent(tc)
		cur.Status = ev.Status
		cur.Duration = ev.Duration
		cur.Phase = PhaseDone
		cur.Errors = buildResultErrors(ev.Errors)

	default:
		b.mu.Unlock()
		log.Warn(log.CatModel, "unknown result fragment kind", "kind", ev.Kind, "id", ev.TestID)
		return
	}

	b.mu.Unlock()
	b.notify(false)
}

// ensureCurrent returns the current result, creating a running one when a
// fragment arrives before test-begin.
func (b *Builder) ensureCurrent(tc *TestCase) *TestResult {
	if cur := tc.Current(); cur != nil {
		return cur
	}
	r := &TestResult{Status: runner.StatusPending, Phase: PhaseRunning, Duration: DurationUnfinished}
	tc.Results = []*TestResult{r}
	return r
}

// MarkScheduled clears the result history of every listed test and
// appends a single pending, scheduled result, then notifies immediately
// so the UI reflects queuing before the run dispatches.
func (b *Builder) MarkScheduled(ids []string) {
	b.mu.Lock()
	for _, id := range ids {
		tc, ok := b.tests[id]
		if !ok {
			continue
		}
		tc.Results = []*TestResult{{
			Status:   runner.StatusPending,
			Phase:    PhaseScheduled,
			Duration: DurationUnfinished,
		}}
	}
	b.mu.Unlock()
	b.notify(true)
}

// ClearUnfinished removes the result history of every test whose current
// result never finished. An interrupted test reverts to "no result"
// rather than lingering in a misleading pending state. Returns the number
// of tests cleared and notifies immediately when any were.
func (b *Builder) ClearUnfinished() int {
	b.mu.Lock()
	cleared := 0
	for _, tc := range b.tests {
		if cur := tc.Current(); cur != nil && cur.Unfinished() {
			tc.Results = nil
			cleared++
		}
	}
	b.mu.Unlock()
	if cleared > 0 {
		log.Debug(log.CatModel, "cleared unfinished results", "tests", cleared)
		b.notify(true)
	}
	return cleared
}

// Snapshot deep-copies the current graph into a versioned read-only
// view. The builder keeps mutating its own graph afterwards; a published
// snapshot never changes under a consumer.
func (b *Builder) Snapshot(version uint64) *Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	tests := make(map[string]*TestCase, len(b.tests))
	root := cloneSuite(b.root, tests)
	for id, tc := range b.tests {
		if _, ok := tests[id]; !ok {
			tests[id] = cloneTestCase(tc)
		}
	}
	var projects []string
	for _, s := range root.Suites {
		if s.Kind == KindProject {
			projects = append(projects, s.Title)
		}
	}
	return &Snapshot{
		Version:    version,
		Root:       root,
		LoadErrors: append([]LoadError{}, b.loadErrors...),
		tests:      tests,
		projects:   projects,
		counts:     computeCounts(tests),
	}
}

// cloneSuite copies a suite subtree, registering each copied test in
// tests so the snapshot's index and tree share the same copies.
func cloneSuite(s *Suite, tests map[string]*TestCase) *Suite {
	out := &Suite{Kind: s.Kind, Title: s.Title, Location: s.Location}
	for _, child := range s.Suites {
		out.Suites = append(out.Suites, cloneSuite(child, tests))
	}
	for _, tc := range s.Tests {
		c := cloneTestCase(tc)
		tests[c.ID] = c
		out.Tests = append(out.Tests, c)
	}
	return out
}

func cloneTestCase(tc *TestCase) *TestCase {
	out := &TestCase{
		ID:        tc.ID,
		Title:     tc.Title,
		TitlePath: append([]string(nil), tc.TitlePath...),
		Location:  tc.Location,
		Project:   tc.Project,
	}
	if len(tc.Results) > 0 {
		out.Results = make([]*TestResult, len(tc.Results))
		for i, r := range tc.Results {
			out.Results[i] = cloneResult(r)
		}
	}
	return out
}

func cloneResult(r *TestResult) *TestResult {
	return &TestResult{
		Status:      r.Status,
		Phase:       r.Phase,
		Duration:    r.Duration,
		Steps:       append([]Step(nil), r.Steps...),
		Attachments: append([]runner.Attachment(nil), r.Attachments...),
		Errors:      append([]ResultError(nil), r.Errors...),
	}
}
