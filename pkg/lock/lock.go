// Package lock enforces a single writer per table. A second writer does not
// wait: Acquire fails immediately with ErrLocked.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Define static errors
var (
	ErrLocked = errors.New("table is locked by another writer")
)

// Locker hands out exclusive leases on keys
type Locker interface {
	Acquire(ctx context.Context, key string) (Lease, error)
}

// Lease is held until Release. Release is safe to call more than once.
type Lease interface {
	Key() string
	// Lost is closed when the lease expired or was taken over before Release
	Lost() <-chan struct{}
	Release(ctx context.Context) error
}

// Memory is an in-process lock table
type Memory struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemory creates an empty lock table
func NewMemory() *Memory {
	return &Memory{held: make(map[string]struct{})}
}

// Acquire implements Locker
func (m *Memory) Acquire(_ context.Context, key string) (Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.held[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, key)
	}

	m.held[key] = struct{}{}

	return &memoryLease{owner: m, key: key}, nil
}

type memoryLease struct {
	owner *Memory
	key   string
	once  sync.Once
}

func (l *memoryLease) Key() string {
	return l.key
}

// Lost returns nil: an in-process lease is never lost
func (l *memoryLease) Lost() <-chan struct{} {
	return nil
}

func (l *memoryLease) Release(_ context.Context) error {
	l.once.Do(func() {
		l.owner.mu.Lock()
		delete(l.owner.held, l.key)
		l.owner.mu.Unlock()
	})

	return nil
}
