package ui

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"
	"github.com/stretchr/testify/require"

	"github.com/testdeck/testdeck/internal/config"
	"github.com/testdeck/testdeck/internal/controller"
	"github.com/testdeck/testdeck/internal/runner/runnertest"
)

// memStore is an in-memory PrefStore for tests.
type memStore struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemStore() *memStore {
	return &memStore{values: make(map[string]string)}
}

func (s *memStore) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return "", nil
	}
	return v, nil
}

func (s *memStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *memStore) GetStrings(key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok || v == "" {
		return nil, nil
	}
	return splitCSV(v), nil
}

func (s *memStore) SetStrings(key string, values []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = joinCSV(values)
	return nil
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}

func joinCSV(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

// newTestModel starts a controller over the demo session and wraps the
// root model in a teatest harness.
func newTestModel(t *testing.T) *teatest.TestModel {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	session := runnertest.NewDemo()
	ctrl := controller.New(ctx, controller.Config{
		Session:      session,
		Store:        newMemStore(),
		PublishDelay: 10 * time.Millisecond,
	})
	require.NoError(t, ctrl.Start(ctx))
	t.Cleanup(func() { _ = ctrl.Close() })

	cfg := config.Defaults().UI
	m := New(ctrl, cfg)

	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(100, 30))
	outHistory[tm] = &bytes.Buffer{}
	t.Cleanup(func() { delete(outHistory, tm) })
	return tm
}

// outHistory retains everything already read from each test model's
// output, since teatest.WaitFor drains the reader destructively and
// bubbletea only emits diffs between frames.
var outHistory = map[*teatest.TestModel]*bytes.Buffer{}

// replayReader serves the model's full output history followed by any
// new live output, copying the latter into the shared history as it
// goes. EOF is non-sticky so WaitFor's polling keeps seeing new data.
type replayReader struct {
	src  io.Reader
	hist *bytes.Buffer
	pos  int
}

func (r *replayReader) Read(p []byte) (int, error) {
	if _, err := io.Copy(r.hist, r.src); err != nil {
		return 0, err
	}
	if r.pos >= r.hist.Len() {
		return 0, io.EOF
	}
	n := copy(p, r.hist.Bytes()[r.pos:])
	r.pos += n
	return n, nil
}

func waitForOutput(t *testing.T, tm *teatest.TestModel, want string) {
	t.Helper()
	var r io.Reader = tm.Output()
	if hist := outHistory[tm]; hist != nil {
		r = &replayReader{src: tm.Output(), hist: hist}
	}
	teatest.WaitFor(t, r, func(bts []byte) bool {
		return bytes.Contains(bts, []byte(want))
	}, teatest.WithDuration(5*time.Second), teatest.WithCheckInterval(20*time.Millisecond))
}

func TestModelRendersDemoSuite(t *testing.T) {
	tm := newTestModel(t)

	waitForOutput(t, tm, "login form")
	waitForOutput(t, tm, "testdeck")

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	tm.WaitFinished(t, teatest.WithFinalTimeout(3*time.Second))
}

func TestModelRunVisibleUpdatesCounts(t *testing.T) {
	tm := newTestModel(t)

	waitForOutput(t, tm, "login form")

	// Run everything; the demo scripts one failure and one skip.
	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'a'}})
	waitForOutput(t, tm, "✘ 1")
	waitForOutput(t, tm, "⊘ 1")

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	tm.WaitFinished(t, teatest.WithFinalTimeout(3*time.Second))
}

func TestModelFilterNarrowsTree(t *testing.T) {
	tm := newTestModel(t)

	waitForOutput(t, tm, "totals the cart")

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'/'}})
	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("login")})

	// Give the controller time to recompute and publish the narrowed tree.
	time.Sleep(500 * time.Millisecond)

	tm.Send(tea.KeyMsg{Type: tea.KeyEnter})
	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	tm.WaitFinished(t, teatest.WithFinalTimeout(3*time.Second))

	fm, ok := tm.FinalModel(t).(*Model)
	require.True(t, ok)
	titles := rowTitles(fm.tree)
	require.Contains(t, titles, "login form", "matching rows survive the filter")
	require.NotContains(t, titles, "totals the cart", "non-matching rows are filtered out")
}
