package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethpandaops/medallion/pkg/table"
)

// Memory is an in-process store. Tables live until the process exits.
type Memory struct {
	mu     sync.RWMutex
	tables map[string]*table.Dataset
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{tables: make(map[string]*table.Dataset)}
}

// Name implements Store
func (m *Memory) Name() string {
	return "memory"
}

// Read implements Store
func (m *Memory) Read(_ context.Context, location string) (*table.Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ds, ok := m.tables[location]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, location)
	}

	return ds, nil
}

// Write implements Store
func (m *Memory) Write(_ context.Context, location string, ds *table.Dataset, mode Mode) error {
	if location == "" {
		return ErrEmptyLocation
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch mode {
	case ModeOverwrite:
		m.tables[location] = ds
	case ModeAppend:
		existing, ok := m.tables[location]
		if !ok {
			m.tables[location] = ds
			return nil
		}

		if err := CheckAppend(existing.Schema(), ds); err != nil {
			return err
		}

		merged, err := table.Concat(existing, ds)
		if err != nil {
			return err
		}

		m.tables[location] = merged
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	return nil
}

// Exists implements Store
func (m *Memory) Exists(_ context.Context, location string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.tables[location]

	return ok, nil
}
