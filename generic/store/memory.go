// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/M7sN2/AsilSys-sub001/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps every table in a map. Each call is atomic; callers get no
// isolation across calls, which matches the production contract.
type Memory struct {
	mu     sync.RWMutex
	tables map[string]map[string]generic.Record
}

func NewMemory() *Memory {
	return &Memory{tables: make(map[string]map[string]generic.Record)}
}

func (m *Memory) FetchOne(_ context.Context, table, id string) (generic.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.tables[table][id]
	if !ok {
		return nil, &generic.NotFoundError{Table: table, ID: id}
	}
	return rec.Clone(), nil
}

// FetchMany returns matches ordered by id, so results are deterministic.
func (m *Memory) FetchMany(_ context.Context, table string, filter generic.Filter) ([]generic.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.Record
	for _, rec := range m.tables[table] {
		if rec.Matches(filter) {
			result = append(result, rec.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID() < result[j].ID() })
	return result, nil
}

func (m *Memory) Insert(_ context.Context, table string, rec generic.Record) error {
	id := rec.ID()
	if id == "" {
		return generic.ErrMissingID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[table]
	if !ok {
		t = make(map[string]generic.Record)
		m.tables[table] = t
	}
	if _, exists := t[id]; exists {
		return generic.ErrDuplicateID
	}
	t[id] = rec.Clone()
	return nil
}

func (m *Memory) Update(_ context.Context, table, id string, rec generic.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tables[table][id]; !ok {
		return &generic.NotFoundError{Table: table, ID: id}
	}
	out := rec.Clone()
	out[generic.FieldID] = id
	m.tables[table][id] = out
	return nil
}

func (m *Memory) Delete(_ context.Context, table, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tables[table][id]; !ok {
		return &generic.NotFoundError{Table: table, ID: id}
	}
	delete(m.tables[table], id)
	return nil
}

// Len returns the number of records in table.
func (m *Memory) Len(table string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tables[table])
}
