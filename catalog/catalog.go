package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/liamcoop/decisions/rules"
)

// ReloadObserver is notified after every reload attempt
type ReloadObserver interface {
	ObserveReload(tables int, elapsed time.Duration, err error)
}

// Option configures a Catalog
type Option func(*Catalog)

// WithSource appends a definition source. Later sources override earlier
// ones when both define a table with the same name.
func WithSource(s Source) Option {
	return func(c *Catalog) { c.sources = append(c.sources, s) }
}

// WithRepository persists published tables and reads them back on reload.
// The repository is consulted after every other source.
func WithRepository(repo rules.DefinitionStore) Option {
	return func(c *Catalog) { c.repo = repo }
}

// WithObserver attaches a reload observer, typically a metrics collector
func WithObserver(o ReloadObserver) Option {
	return func(c *Catalog) { c.observer = o }
}

// WithLogger sets the logger used for reload diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(c *Catalog) { c.logger = logger }
}

// Status describes the outcome of the most recent reload
type Status struct {
	Tables     int
	LastReload time.Time
	LastError  error
}

// Catalog composes definition sources into the tables served by a rules.Store.
// Reloads are all-or-nothing: a new snapshot is swapped in only when every
// source was read and every definition compiled.
type Catalog struct {
	store    *rules.Store
	sources  []Source
	repo     rules.DefinitionStore
	observer ReloadObserver
	logger   *slog.Logger

	// published holds tables published without a repository so reloads keep them
	published map[string]rules.TableDefinition

	mu     sync.Mutex
	status Status
}

// New creates a catalog that publishes into store
func New(store *rules.Store, opts ...Option) *Catalog {
	c := &Catalog{
		store:     store,
		logger:    slog.Default(),
		published: make(map[string]rules.TableDefinition),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.repo != nil {
		c.sources = append(c.sources, NewRepositorySource(c.repo))
	}
	return c
}

// Store returns the store the catalog publishes into
func (c *Catalog) Store() *rules.Store {
	return c.store
}

// LoadAll performs the initial load. It fails if any source cannot be read or
// any definition does not compile.
func (c *Catalog) LoadAll(ctx context.Context) error {
	if _, err := c.Reload(ctx); err != nil {
		return fmt.Errorf("failed to load decision tables: %w", err)
	}
	return nil
}

// Reload rebuilds the table set from every source and swaps it in atomically.
// On error the previous tables stay in place and the joined errors are returned.
func (c *Catalog) Reload(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	tables, err := c.build(ctx)
	if err == nil {
		err = c.store.Replace(tables)
	}
	elapsed := time.Since(start)

	c.status.LastError = err
	if err != nil {
		c.logger.Error("decision table reload failed",
			"error", err,
			"kept_tables", c.store.Len(),
		)
	} else {
		c.status.Tables = len(tables)
		c.status.LastReload = time.Now()
		c.logger.Info("decision tables reloaded",
			"tables", len(tables),
			"sources", len(c.sources),
			"elapsed", elapsed,
		)
	}
	if c.observer != nil {
		c.observer.ObserveReload(len(tables), elapsed, err)
	}

	if err != nil {
		return 0, err
	}
	return len(tables), nil
}

// build reads and compiles every source; it never touches the store
func (c *Catalog) build(ctx context.Context) ([]*rules.Table, error) {
	var errs []error
	byName := make(map[string]*rules.Table)
	var order []string

	add := func(origin string, def rules.TableDefinition) {
		table, err := rules.Compile(def)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", origin, err))
			return
		}
		if _, seen := byName[table.Name]; !seen {
			order = append(order, table.Name)
		} else {
			c.logger.Debug("decision table overridden",
				"table", table.Name,
				"source", origin,
			)
		}
		byName[table.Name] = table
	}

	for _, src := range c.sources {
		defs, err := src.Definitions(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, def := range defs {
			add(src.Name(), def)
		}
	}
	for _, def := range c.published {
		add("published", def)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	tables := make([]*rules.Table, 0, len(order))
	for _, name := range order {
		tables = append(tables, byName[name])
	}
	return tables, nil
}

// Publish compiles def, persists it when a repository is configured and makes
// it visible to evaluations. A definition that does not compile is never saved.
func (c *Catalog) Publish(ctx context.Context, def rules.TableDefinition) (*rules.Table, error) {
	table, err := rules.Compile(def)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.repo != nil {
		version, err := c.repo.Save(ctx, def)
		if err != nil {
			return nil, fmt.Errorf("failed to save table %s: %w", table.Name, err)
		}
		table.Version = version
	} else {
		c.published[table.Name] = def
	}

	c.store.Put(table)
	c.status.Tables = c.store.Len()

	c.logger.Info("decision table published",
		"table", table.Name,
		"version", table.Version,
		"revision", table.Revision,
		"rules", len(table.Rules),
	)
	return table, nil
}

// Remove withdraws a table from evaluation and from the repository.
// Tables that come from a file source reappear on the next reload.
func (c *Catalog) Remove(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.repo != nil {
		if err := c.repo.Delete(ctx, name); err != nil && !rules.IsNotFound(err) {
			return fmt.Errorf("failed to delete table %s: %w", name, err)
		}
	}
	delete(c.published, name)

	if err := c.store.Remove(name); err != nil {
		return err
	}
	c.status.Tables = c.store.Len()

	c.logger.Info("decision table removed", "table", name)
	return nil
}

// Status returns the outcome of the most recent reload
func (c *Catalog) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Sources returns the names of the configured sources in precedence order
func (c *Catalog) Sources() []string {
	names := make([]string, len(c.sources))
	for i, src := range c.sources {
		names[i] = src.Name()
	}
	return names
}
