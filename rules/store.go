package rules

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// snapshot is an immutable name -> table mapping
type snapshot struct {
	tables   map[string]*Table
	loadedAt time.Time
}

// Store holds the compiled tables served by an Engine.
// Readers load the current snapshot without locking; writers build a new
// snapshot and swap it in atomically, so in-flight evaluations always see a
// consistent set of tables.
type Store struct {
	current atomic.Pointer[snapshot]
	mu      sync.Mutex // serializes writers
}

// NewStore creates an empty store
func NewStore() *Store {
	s := &Store{}
	s.current.Store(&snapshot{tables: map[string]*Table{}, loadedAt: time.Now()})
	return s
}

// Load compiles def and registers the resulting table, replacing any table
// with the same name. On error the store is left untouched.
func (s *Store) Load(def TableDefinition) (*Table, error) {
	t, err := Compile(def)
	if err != nil {
		return nil, err
	}
	s.Put(t)
	return t, nil
}

// Get returns the named table
func (s *Store) Get(name string) (*Table, error) {
	t, ok := s.current.Load().tables[name]
	if !ok {
		return nil, &NotFoundError{Table: name}
	}
	return t, nil
}

// Put registers a compiled table
func (s *Store) Put(t *Table) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.current.Load()
	next := make(map[string]*Table, len(old.tables)+1)
	for name, existing := range old.tables {
		next[name] = existing
	}
	next[t.Name] = t
	s.current.Store(&snapshot{tables: next, loadedAt: time.Now()})
}

// Replace swaps the whole table set in one step
func (s *Store) Replace(tables []*Table) error {
	next := make(map[string]*Table, len(tables))
	for _, t := range tables {
		if _, dup := next[t.Name]; dup {
			return fmt.Errorf("duplicate table %q", t.Name)
		}
		next[t.Name] = t
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Store(&snapshot{tables: next, loadedAt: time.Now()})
	return nil
}

// Remove unregisters the named table
func (s *Store) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.current.Load()
	if _, ok := old.tables[name]; !ok {
		return &NotFoundError{Table: name}
	}
	next := make(map[string]*Table, len(old.tables))
	for n, t := range old.tables {
		if n != name {
			next[n] = t
		}
	}
	s.current.Store(&snapshot{tables: next, loadedAt: time.Now()})
	return nil
}

// Tables returns the current tables sorted by name
func (s *Store) Tables() []*Table {
	snap := s.current.Load()
	tables := make([]*Table, 0, len(snap.tables))
	for _, t := range snap.tables {
		tables = append(tables, t)
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })
	return tables
}

// Names returns the current table names sorted
func (s *Store) Names() []string {
	tables := s.Tables()
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	return names
}

// Len returns the number of loaded tables
func (s *Store) Len() int {
	return len(s.current.Load().tables)
}

// LoadedAt returns when the current snapshot was published
func (s *Store) LoadedAt() time.Time {
	return s.current.Load().loadedAt
}
