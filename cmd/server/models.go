package main

import (
	"time"

	"github.com/liamcoop/decisions/rules"
)

// API request and response models

// EvaluateRequest is the body of POST /decisions/{name}/evaluate
type EvaluateRequest struct {
	Input map[string]any `json:"input" validate:"required"`
}

// EvaluateResponse wraps a result with its timing
type EvaluateResponse struct {
	*rules.Result
	EvaluationTime string `json:"evaluationTime"`
}

// TableSummary describes a served table in listings
type TableSummary struct {
	Name       string          `json:"name"`
	HitPolicy  rules.HitPolicy `json:"hitPolicy"`
	Inputs     int             `json:"inputs"`
	Outputs    int             `json:"outputs"`
	Rules      int             `json:"rules"`
	Version    int             `json:"version,omitempty"`
	Revision   string          `json:"revision"`
	CompiledAt time.Time       `json:"compiledAt"`
}

func summarize(t *rules.Table) TableSummary {
	return TableSummary{
		Name:       t.Name,
		HitPolicy:  t.HitPolicy,
		Inputs:     len(t.Inputs),
		Outputs:    len(t.Outputs),
		Rules:      len(t.Rules),
		Version:    t.Version,
		Revision:   t.Revision,
		CompiledAt: t.CompiledAt,
	}
}

// TablesListResponse is returned by GET /decisions
type TablesListResponse struct {
	Tables   []TableSummary `json:"tables"`
	LoadedAt time.Time      `json:"loadedAt"`
}

// TableResponse is returned by GET and PUT /decisions/{name}
type TableResponse struct {
	TableSummary
	Definition rules.TableDefinition `json:"definition"`
}

// ReloadResponse is returned by POST /reload
type ReloadResponse struct {
	Tables  int      `json:"tables"`
	Sources []string `json:"sources"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status     string     `json:"status"`
	Tables     int        `json:"tables"`
	LastReload *time.Time `json:"lastReload,omitempty"`
	LastError  string     `json:"lastError,omitempty"`
	Database   string     `json:"database,omitempty"`
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
