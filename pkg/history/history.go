// Package history provides the address bar the catalog view is synchronized
// with. A History holds the current location (a raw query string), lets the
// store rewrite it in place and notifies listeners when the user navigates
// to another entry.
package history

import (
	"errors"
	"slices"
	"sync"
)

// ErrNotFound is returned when a view session does not exist.
var ErrNotFound = errors.New("view session not found")

// History is the address bar of a view.
type History interface {
	// Location returns the current raw query string.
	Location() string

	// Replace rewrites the current entry without creating a new one.
	// Listeners are not notified.
	Replace(rawQuery string) error

	// Listen registers fn for navigation events. fn receives the raw query
	// of the entry navigated to. Call stop to unregister. An error means
	// navigations will not be delivered.
	Listen(fn func(rawQuery string)) (stop func(), err error)
}

// listeners is a registry of navigation callbacks.
type listeners struct {
	mu   sync.RWMutex
	next int
	fns  map[int]func(string)
}

func (l *listeners) add(fn func(string)) (stop func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fns == nil {
		l.fns = make(map[int]func(string))
	}
	id := l.next
	l.next++
	l.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, id)
			l.mu.Unlock()
		})
	}
}

// emit calls every listener in registration order.
func (l *listeners) emit(rawQuery string) {
	l.mu.RLock()
	ids := make([]int, 0, len(l.fns))
	for id := range l.fns {
		ids = append(ids, id)
	}
	fns := make([]func(string), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, l.fns[id])
	}
	l.mu.RUnlock()

	for _, fn := range fns {
		fn(rawQuery)
	}
}

func (l *listeners) count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.fns)
}
