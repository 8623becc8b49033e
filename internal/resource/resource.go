// Package resource implements the request-scoped typed resource manager
// (spec.md §4.7): integer-keyed handles to things the GC can't reason
// about (open files, DB connections) with deterministic release at
// request end even if the script never explicitly closes them.
//
// value.Resource (internal/value/resource.go) deliberately carries only
// the integer key this package mints plus a type tag, to keep the value model itself
// free of any dependency on what a resource actually is.
package resource

import (
	"sort"
	"sync"
)

// Closer is anything a resource manager can release. Concrete resource
// types (a wrapped *os.File, a DB handle) implement this.
type Closer interface {
	Close() error
}

// Manager owns every open resource for one request.
type Manager struct {
	mu      sync.Mutex
	next    int
	entries map[int]entry
}

type entry struct {
	typ    string
	closer Closer
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{entries: make(map[int]entry)}
}

// Open registers a new resource of the given type, returning its key.
func (m *Manager) Open(typ string, c Closer) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	key := m.next
	m.entries[key] = entry{typ: typ, closer: c}
	return key
}

// Lookup returns the closer and type for key.
func (m *Manager) Lookup(key int) (Closer, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return e.closer, e.typ, ok
}

// Close releases one resource explicitly (fclose(), and friends).
func (m *Manager) Close(key int) error {
	m.mu.Lock()
	e, ok := m.entries[key]
	delete(m.entries, key)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return e.closer.Close()
}

// ReleaseAll closes every still-open resource, in key order, at request
// shutdown (spec.md §4.7: "deterministic release").
func (m *Manager) ReleaseAll() {
	m.mu.Lock()
	keys := make([]int, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	entries := m.entries
	m.entries = make(map[int]entry)
	m.mu.Unlock()

	sort.Ints(keys)
	for _, k := range keys {
		_ = entries[k].closer.Close()
	}
}
