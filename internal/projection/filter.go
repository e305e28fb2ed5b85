package projection

import "sync"

// ProjectFilter is the ordered project name to enabled-state mapping.
// Order always follows the model; the enabled set is reconciled against
// a persisted selection whenever the model's project list changes.
//
// Reconcile runs on the command pipeline while Toggle and the readers
// run on the presentation loop, so all state lives behind the mutex.
type ProjectFilter struct {
	mu      sync.Mutex
	names   []string
	enabled map[string]bool
}

// NewProjectFilter creates an empty filter.
func NewProjectFilter() *ProjectFilter {
	return &ProjectFilter{enabled: make(map[string]bool)}
}

// Reconcile rebuilds the filter from the model's project list. The
// persisted selection is intersected with the projects that still exist;
// when nothing survives, the first project is enabled and the rest are
// not. Returns true when the enabled set changed.
func (f *ProjectFilter) Reconcile(projects, persisted []string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	exists := make(map[string]bool, len(projects))
	for _, p := range projects {
		exists[p] = true
	}

	next := make(map[string]bool, len(projects))
	any := false
	for _, p := range persisted {
		if exists[p] {
			next[p] = true
			any = true
		}
	}
	if !any && len(projects) > 0 {
		next[projects[0]] = true
	}

	changed := len(f.names) != len(projects)
	for i, p := range projects {
		if !changed && (f.names[i] != p || f.enabled[p] != next[p]) {
			changed = true
		}
	}

	f.names = append([]string(nil), projects...)
	f.enabled = next
	return changed
}

// Names returns the project names in model order.
func (f *ProjectFilter) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...)
}

// Enabled returns the enabled project names in model order.
func (f *ProjectFilter) Enabled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabledLocked()
}

func (f *ProjectFilter) enabledLocked() []string {
	var out []string
	for _, p := range f.names {
		if f.enabled[p] {
			out = append(out, p)
		}
	}
	return out
}

// IsEnabled reports whether the named project is enabled.
func (f *ProjectFilter) IsEnabled(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled[name]
}

// Toggle flips the named project and returns the new state. At least one
// project stays enabled: disabling the last enabled project is refused.
func (f *ProjectFilter) Toggle(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.enabled[name] {
		f.enabled[name] = true
		return true
	}
	if len(f.enabledLocked()) == 1 {
		return true
	}
	delete(f.enabled, name)
	return false
}
