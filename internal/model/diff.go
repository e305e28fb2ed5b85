package model

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/testdeck/testdeck/internal/runner"
)

// buildResultErrors converts server errors into ResultErrors, computing
// an inline expected/actual diff when both snippets are present.
func buildResultErrors(errs []runner.TestError) []ResultError {
	if len(errs) == 0 {
		return nil
	}
	out := make([]ResultError, 0, len(errs))
	for _, e := range errs {
		re := ResultError{Message: e.Message, Stack: e.Stack}
		if e.Expected != "" && e.Actual != "" {
			re.Diff = inlineDiff(e.Expected, e.Actual)
		}
		out = append(out, re)
	}
	return out
}

// inlineDiff renders a compact character diff from expected to actual,
// marking removals as [-x-] and insertions as {+y+}.
func inlineDiff(expected, actual string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(expected, actual, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var sb strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			sb.WriteString(d.Text)
		case diffmatchpatch.DiffDelete:
			sb.WriteString("[-")
			sb.WriteString(d.Text)
			sb.WriteString("-]")
		case diffmatchpatch.DiffInsert:
			sb.WriteString("{+")
			sb.WriteString(d.Text)
			sb.WriteString("+}")
		}
	}
	return sb.String()
}
