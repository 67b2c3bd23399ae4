package rules

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DefinitionStore persists published table definitions
type DefinitionStore interface {
	// Save stores def as the new active version of its table and returns that version
	Save(ctx context.Context, def TableDefinition) (int, error)

	// Get returns the active definition of a table
	Get(ctx context.Context, name string) (TableDefinition, error)

	// ListActive returns the active definition of every table
	ListActive(ctx context.Context) ([]TableDefinition, error)

	// Delete deactivates a table
	Delete(ctx context.Context, name string) error
}

type storedDefinition struct {
	def       TableDefinition
	createdAt time.Time
}

// InMemoryDefinitionStore implements DefinitionStore with a map of version histories.
// Thread-safe for concurrent access.
type InMemoryDefinitionStore struct {
	versions map[string][]storedDefinition
	active   map[string]bool
	mu       sync.RWMutex
}

// NewInMemoryDefinitionStore creates an empty store
func NewInMemoryDefinitionStore() *InMemoryDefinitionStore {
	return &InMemoryDefinitionStore{
		versions: make(map[string][]storedDefinition),
		active:   make(map[string]bool),
	}
}

// Save appends a new version and makes it active
func (s *InMemoryDefinitionStore) Save(ctx context.Context, def TableDefinition) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	version := len(s.versions[def.Name]) + 1
	def.Version = version
	s.versions[def.Name] = append(s.versions[def.Name], storedDefinition{def: def, createdAt: time.Now()})
	s.active[def.Name] = true
	return version, nil
}

// Get returns the latest version of an active table
func (s *InMemoryDefinitionStore) Get(ctx context.Context, name string) (TableDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.versions[name]
	if !s.active[name] || len(history) == 0 {
		return TableDefinition{}, &NotFoundError{Table: name}
	}
	return history[len(history)-1].def, nil
}

// ListActive returns the latest version of every active table, sorted by name
func (s *InMemoryDefinitionStore) ListActive(ctx context.Context) ([]TableDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	defs := make([]TableDefinition, 0, len(s.active))
	for name, active := range s.active {
		if !active {
			continue
		}
		history := s.versions[name]
		defs = append(defs, history[len(history)-1].def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}

// Delete deactivates a table; its history is kept
func (s *InMemoryDefinitionStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active[name] {
		return &NotFoundError{Table: name}
	}
	s.active[name] = false
	return nil
}
