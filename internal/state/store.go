// Package state persists the last-known applied state per resource. The
// engine reads the full mapping before planning and writes single entries
// as operations complete, so a crash mid-apply leaves the record consistent
// with exactly the operations that finished.
package state

import (
	"context"
	"sync"

	"github.com/gantry-io/gantry/internal/ir"
)

// Store is the durable record of last-known resource state.
type Store interface {
	// Load returns every recorded entry.
	Load(ctx context.Context) (map[ir.ID]*ir.Entry, error)

	// Upsert records the entry for one resource.
	Upsert(ctx context.Context, id ir.ID, entry *ir.Entry) error

	// Remove deletes the entry for one resource.
	Remove(ctx context.Context, id ir.ID) error
}

// Memory is an in-memory store, used in tests and as the engine substitute
// for an external persistence medium.
type Memory struct {
	mu      sync.Mutex
	entries map[ir.ID]*ir.Entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[ir.ID]*ir.Entry)}
}

// Seed pre-populates the store, overwriting any existing entries.
func (m *Memory) Seed(entries ...*ir.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.entries[e.ID()] = e
	}
}

func (m *Memory) Load(ctx context.Context) (map[ir.ID]*ir.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[ir.ID]*ir.Entry, len(m.entries))
	for id, e := range m.entries {
		out[id] = e
	}
	return out, nil
}

func (m *Memory) Upsert(ctx context.Context, id ir.ID, entry *ir.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = entry
	return nil
}

func (m *Memory) Remove(ctx context.Context, id ir.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}
