// Package testutil provides fluent builders for suite reports and result
// fragments used across the core's tests.
package testutil

import (
	"time"

	"github.com/testdeck/testdeck/internal/runner"
)

// ReportBuilder accumulates a list report. Calls are position-sensitive:
// Test and Group attach to the most recent File, which attaches to the
// most recent Project.
type ReportBuilder struct {
	report runner.ListReport
	line   int
}

// NewReportBuilder creates an empty report builder.
func NewReportBuilder() *ReportBuilder {
	return &ReportBuilder{}
}

// Project starts a new project.
func (b *ReportBuilder) Project(name string) *ReportBuilder {
	b.report.Projects = append(b.report.Projects, runner.ProjectEntry{Name: name})
	return b
}

// File starts a new file under the current project.
func (b *ReportBuilder) File(path string) *ReportBuilder {
	p := b.currentProject()
	p.Files = append(p.Files, runner.FileEntry{Path: path})
	b.line = 0
	return b
}

// Group starts a new top-level group under the current file.
func (b *ReportBuilder) Group(title string) *ReportBuilder {
	f := b.currentFile()
	b.line++
	f.Groups = append(f.Groups, runner.GroupEntry{Title: title, Line: b.line})
	return b
}

// Test adds a test under the current file (outside any group).
func (b *ReportBuilder) Test(id, title string) *ReportBuilder {
	f := b.currentFile()
	b.line++
	f.Tests = append(f.Tests, runner.TestEntry{ID: id, Title: title, Line: b.line})
	return b
}

// GroupTest adds a test under the current file's most recent group.
func (b *ReportBuilder) GroupTest(id, title string) *ReportBuilder {
	f := b.currentFile()
	g := &f.Groups[len(f.Groups)-1]
	b.line++
	g.Tests = append(g.Tests, runner.TestEntry{ID: id, Title: title, Line: b.line})
	return b
}

// LoadError attaches a load error to the report.
func (b *ReportBuilder) LoadError(file, message string) *ReportBuilder {
	b.report.Errors = append(b.report.Errors, runner.LoadErrorEntry{File: file, Message: message})
	return b
}

// Build returns the accumulated report.
func (b *ReportBuilder) Build() *runner.ListReport {
	r := b.report
	return &r
}

func (b *ReportBuilder) currentProject() *runner.ProjectEntry {
	if len(b.report.Projects) == 0 {
		b.Project("default")
	}
	return &b.report.Projects[len(b.report.Projects)-1]
}

func (b *ReportBuilder) currentFile() *runner.FileEntry {
	p := b.currentProject()
	if len(p.Files) == 0 {
		p.Files = append(p.Files, runner.FileEntry{Path: "untitled.spec.ts"})
	}
	return &p.Files[len(p.Files)-1]
}

// TestBegin builds a test-begin fragment.
func TestBegin(id string) runner.TestEvent {
	return runner.TestEvent{Kind: runner.TestEventBegin, TestID: id}
}

// TestEnd builds a test-end fragment.
func TestEnd(id string, status runner.Status, d time.Duration) runner.TestEvent {
	return runner.TestEvent{Kind: runner.TestEventEnd, TestID: id, Status: status, Duration: d}
}

// TestFailed builds a failing test-end fragment with one error.
func TestFailed(id string, d time.Duration, err runner.TestError) runner.TestEvent {
	return runner.TestEvent{
		Kind:     runner.TestEventEnd,
		TestID:   id,
		Status:   runner.StatusFailed,
		Duration: d,
		Errors:   []runner.TestError{err},
	}
}

// StepBegin builds a step-begin fragment.
func StepBegin(id, title string) runner.TestEvent {
	return runner.TestEvent{Kind: runner.TestEventStepBegin, TestID: id, Step: title}
}

// StepEnd builds a step-end fragment.
func StepEnd(id, title string, d time.Duration) runner.TestEvent {
	return runner.TestEvent{Kind: runner.TestEventStepEnd, TestID: id, Step: title, Duration: d}
}
