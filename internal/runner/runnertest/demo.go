package runnertest

import (
	"time"

	"github.com/testdeck/testdeck/internal/runner"
)

func init() {
	runner.Register("demo", func(opts runner.Options) (runner.Session, error) {
		return NewDemo(), nil
	})
}

// NewDemo creates a scripted session with a small canned suite, used by
// the demo provider so the application can be exercised without a
// server.
func NewDemo() *Scripted {
	report := &runner.ListReport{
		Projects: []runner.ProjectEntry{
			{
				Name: "chromium",
				Files: []runner.FileEntry{
					{
						Path: "auth/login.spec.ts",
						Groups: []runner.GroupEntry{
							{
								Title: "login form",
								Line:  3,
								Tests: []runner.TestEntry{
									{ID: "demo-login-valid", Title: "accepts valid credentials", Line: 4},
									{ID: "demo-login-invalid", Title: "rejects bad password", Line: 12},
								},
							},
						},
					},
					{
						Path: "cart/checkout.spec.ts",
						Tests: []runner.TestEntry{
							{ID: "demo-cart-total", Title: "totals the cart", Line: 5},
							{ID: "demo-cart-empty", Title: "handles an empty cart", Line: 19},
						},
					},
				},
			},
			{
				Name: "firefox",
				Files: []runner.FileEntry{
					{
						Path: "auth/login.spec.ts",
						Tests: []runner.TestEntry{
							{ID: "demo-ff-login", Title: "accepts valid credentials", Line: 4},
						},
					},
				},
			},
		},
	}

	s := NewScripted(report)
	s.ScriptOutcome("demo-login-invalid", runner.StatusFailed, 230*time.Millisecond, runner.TestError{
		Message:  "expect(received).toBe(expected)",
		Expected: "error: wrong password",
		Actual:   "error: wrong username",
	})
	s.ScriptOutcome("demo-cart-empty", runner.StatusSkipped, 0)
	return s
}
