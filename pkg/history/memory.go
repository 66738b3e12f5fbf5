package history

import (
	"strings"
	"sync"
)

// Memory is an in-process session history, the equivalent of a browser tab.
// Back, Forward, Go and Navigate move between entries and notify listeners;
// Push and Replace change entries silently, like pushState and replaceState.
type Memory struct {
	mu      sync.Mutex
	entries []string
	index   int

	listeners listeners
}

// NewMemory creates a history with a single entry.
func NewMemory(initial string) *Memory {
	return &Memory{entries: []string{trimQuery(initial)}}
}

// Location returns the raw query of the current entry.
func (m *Memory) Location() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[m.index]
}

// Replace rewrites the current entry.
func (m *Memory) Replace(rawQuery string) error {
	m.mu.Lock()
	m.entries[m.index] = trimQuery(rawQuery)
	m.mu.Unlock()
	return nil
}

// Listen registers a navigation listener.
func (m *Memory) Listen(fn func(rawQuery string)) (stop func(), err error) {
	return m.listeners.add(fn), nil
}

// Push appends a new entry after the current one, discarding any forward
// entries. Listeners are not notified.
func (m *Memory) Push(rawQuery string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries[:m.index+1], trimQuery(rawQuery))
	m.index++
}

// Navigate pushes a new entry and notifies listeners, as when the user
// follows a link to another view.
func (m *Memory) Navigate(rawQuery string) {
	m.Push(rawQuery)
	m.listeners.emit(m.Location())
}

// Back moves one entry back. It reports false at the first entry.
func (m *Memory) Back() bool {
	return m.Go(-1)
}

// Forward moves one entry forward. It reports false at the last entry.
func (m *Memory) Forward() bool {
	return m.Go(1)
}

// Go moves delta entries and notifies listeners. Moves past either end are
// ignored and reported as false.
func (m *Memory) Go(delta int) bool {
	m.mu.Lock()
	target := m.index + delta
	if delta == 0 || target < 0 || target >= len(m.entries) {
		m.mu.Unlock()
		return false
	}
	m.index = target
	location := m.entries[target]
	m.mu.Unlock()

	m.listeners.emit(location)
	return true
}

// Len returns the number of entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Index returns the position of the current entry.
func (m *Memory) Index() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index
}

// Entries returns a copy of all entries.
func (m *Memory) Entries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.entries...)
}

func trimQuery(rawQuery string) string {
	return strings.TrimPrefix(rawQuery, "?")
}
