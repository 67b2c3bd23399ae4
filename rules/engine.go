package rules

import (
	"log/slog"
	"time"
)

// Observer is notified after every evaluation
type Observer interface {
	ObserveEvaluation(table string, policy HitPolicy, elapsed time.Duration, err error)
}

// Option configures an Engine
type Option func(*Engine)

// WithObserver attaches an evaluation observer, typically a metrics collector
func WithObserver(o Observer) Option {
	return func(en *Engine) { en.observer = o }
}

// WithRequireMatch makes every table behave as if it declared requireMatch
func WithRequireMatch(require bool) Option {
	return func(en *Engine) { en.requireMatch = require }
}

// WithLogger sets the logger used for evaluation diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(en *Engine) { en.logger = logger }
}

// Engine evaluates named decision tables held in a Store.
// It holds no mutable state of its own and is safe for concurrent use.
type Engine struct {
	store        *Store
	observer     Observer
	requireMatch bool
	logger       *slog.Logger
}

// NewEngine creates an engine serving the tables of store
func NewEngine(store *Store, opts ...Option) *Engine {
	en := &Engine{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(en)
	}
	return en
}

// Store returns the table store the engine reads from
func (en *Engine) Store() *Store {
	return en.store
}

// Evaluate looks up the named table, matches row against its rules and
// resolves the matches by the table's hit policy. Errors are returned as-is.
func (en *Engine) Evaluate(name string, row InputRow) (*Result, error) {
	t, err := en.store.Get(name)
	if err != nil {
		en.observe(name, "", 0, err)
		return nil, err
	}
	return en.EvaluateTable(t, row)
}

// EvaluateTable evaluates a table the caller already holds
func (en *Engine) EvaluateTable(t *Table, row InputRow) (*Result, error) {
	start := time.Now()

	var res *Result
	matched, err := Match(t, row)
	if err == nil {
		res, err = resolve(t, matched, t.RequireMatch || en.requireMatch)
	}

	elapsed := time.Since(start)
	en.observe(t.Name, t.HitPolicy, elapsed, err)

	if err != nil {
		en.logger.Debug("evaluation failed",
			"table", t.Name,
			"revision", t.Revision,
			"error", err,
		)
		return nil, err
	}

	en.logger.Debug("evaluation completed",
		"table", t.Name,
		"matched", res.Matched,
		"elapsed", elapsed,
	)
	return res, nil
}

func (en *Engine) observe(table string, policy HitPolicy, elapsed time.Duration, err error) {
	if en.observer != nil {
		en.observer.ObserveEvaluation(table, policy, elapsed, err)
	}
}
