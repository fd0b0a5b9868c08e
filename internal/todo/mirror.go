package todo

import "sync"

// Mirror is the transient in-memory copy of the task list. It has a single
// writer (the session controller) and is read through Snapshot by pipeline
// callbacks, so registered handlers always see the current list instead of
// values captured at registration time.
type Mirror struct {
	mu    sync.RWMutex
	tasks []Task
}

func NewMirror() *Mirror {
	return &Mirror{}
}

// Replace swaps the mirrored list for a fresh server snapshot.
func (m *Mirror) Replace(tasks []Task) {
	copied := make([]Task, len(tasks))
	copy(copied, tasks)
	m.mu.Lock()
	m.tasks = copied
	m.mu.Unlock()
}

// Snapshot returns a copy of the current list; callers may hold it across
// suspension points without seeing later writes.
func (m *Mirror) Snapshot() []Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Task, len(m.tasks))
	copy(out, m.tasks)
	return out
}

// Len reports the mirrored task count.
func (m *Mirror) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tasks)
}
