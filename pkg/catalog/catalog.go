// Package catalog maps logical table names (bronze_ratings, silver_movies, ...)
// to the locations the stages wrote them to.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Define static errors
var (
	ErrNotRegistered = errors.New("table name not registered")
	ErrEmptyName     = errors.New("logical table name is empty")
)

// Entry is a registered logical name
type Entry struct {
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	Store     string    `json:"store"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Catalog registers logical names. Registering an existing name replaces
// its location.
type Catalog interface {
	Register(ctx context.Context, entry Entry) error
	Lookup(ctx context.Context, name string) (*Entry, error)
	List(ctx context.Context) ([]Entry, error)
}

func validate(entry *Entry) error {
	entry.Name = strings.TrimSpace(entry.Name)
	if entry.Name == "" {
		return ErrEmptyName
	}

	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}

	return nil
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
}

// Memory is a process-local catalog
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemory creates an empty in-memory catalog
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

// Register implements Catalog
func (m *Memory) Register(_ context.Context, entry Entry) error {
	if err := validate(&entry); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[entry.Name] = entry

	return nil
}

// Lookup implements Catalog
func (m *Memory) Lookup(_ context.Context, name string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}

	return &entry, nil
}

// List implements Catalog, ordered by name
func (m *Memory) List(_ context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}

	sortEntries(entries)

	return entries, nil
}
