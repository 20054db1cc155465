package store

import (
	"context"
	"sync"
)

type record struct {
	value   int64
	version Version
}

// Compile-time interface check.
var _ Table = (*MemoryTable)(nil)

// MemoryTable is an in-memory Table implementation.
// It is safe for concurrent use. Entries are lost on process restart.
type MemoryTable struct {
	mu      sync.Mutex
	records map[string]record
	last    Version // last version issued, shared by all keys
}

// NewMemoryTable creates a new in-memory table.
func NewMemoryTable() *MemoryTable {
	return &MemoryTable{
		records: make(map[string]record),
	}
}

// Get returns the entry for key.
func (m *MemoryTable) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[key]
	if !ok {
		return Entry{}, false, nil
	}
	return Entry{Value: r.value, Version: r.version}, true, nil
}

// Insert writes value to key, checking expected unless it is Unconditional.
func (m *MemoryTable) Insert(_ context.Context, key string, value int64, expected Version) (Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[key]
	if expected != Unconditional {
		if !ok {
			return 0, NewError(KindKeyDoesNotExist, "insert", key, nil)
		}
		if r.version != expected {
			return 0, NewError(KindVersionMismatch, "insert", key, nil)
		}
	}

	m.last++
	m.records[key] = record{value: value, version: m.last}
	return m.last, nil
}

// Len returns the number of keys in the table.
func (m *MemoryTable) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Close is a no-op for the in-memory table.
func (m *MemoryTable) Close() error {
	return nil
}
