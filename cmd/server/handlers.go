package main

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/liamcoop/decisions/function"
	"github.com/liamcoop/decisions/internal/logger"
	"github.com/liamcoop/decisions/rules"
)

// maxDefinitionSize bounds every request body
const maxDefinitionSize = 1 << 20

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.catalog.Status()
	resp := HealthResponse{
		Status: "healthy",
		Tables: s.engine.Store().Len(),
	}
	if !status.LastReload.IsZero() {
		lastReload := status.LastReload
		resp.LastReload = &lastReload
	}
	if status.LastError != nil {
		resp.LastError = status.LastError.Error()
	}

	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			resp.Status = "unhealthy"
			resp.Database = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp.Database = "ok"
	}

	respondJSON(w, http.StatusOK, resp)
}

// List tables handler
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	store := s.engine.Store()
	tables := store.Tables()

	summaries := make([]TableSummary, 0, len(tables))
	for _, t := range tables {
		summaries = append(summaries, summarize(t))
	}

	respondJSON(w, http.StatusOK, TablesListResponse{
		Tables:   summaries,
		LoadedAt: store.LoadedAt(),
	})
}

// Get table handler
func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
	table, err := s.engine.Store().Get(chi.URLParam(r, "name"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, TableResponse{
		TableSummary: summarize(table),
		Definition:   rules.Describe(table),
	})
}

// Publish table handler. Accepts JSON, or YAML when the content type says so.
func (s *Server) handlePublishTable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDefinitionSize))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body", err)
		return
	}

	def, err := rules.ParseDefinition(body, requestFormat(r))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	switch def.Name {
	case "":
		def.Name = name
	case name:
	default:
		respondError(w, http.StatusBadRequest, "table name does not match path",
			fmt.Errorf("path names %q, definition names %q", name, def.Name))
		return
	}

	table, err := s.catalog.Publish(r.Context(), def)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, TableResponse{
		TableSummary: summarize(table),
		Definition:   rules.Describe(table),
	})
}

func requestFormat(r *http.Request) rules.Format {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.Contains(mediaType, "yaml") {
		return rules.FormatYAML
	}
	return rules.FormatJSON
}

// Delete table handler
func (s *Server) handleDeleteTable(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.Remove(r.Context(), chi.URLParam(r, "name")); err != nil {
		s.respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Evaluation handler
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	r.Body = http.MaxBytesReader(w, r.Body, maxDefinitionSize)
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "input is required", err)
		return
	}

	row, err := rules.NewInputRow(req.Input)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid input", err)
		return
	}

	startTime := time.Now()
	result, err := s.engine.Evaluate(name, row)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, EvaluateResponse{
		Result:         result,
		EvaluationTime: time.Since(startTime).String(),
	})
}

// Reload handler
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	n, err := s.catalog.Reload(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "reload failed, previous tables kept", err)
		return
	}

	respondJSON(w, http.StatusOK, ReloadResponse{
		Tables:  n,
		Sources: s.catalog.Sources(),
	})
}

// Invoke handler: wraps the request in a gateway event and replays the function response
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDefinitionSize))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body", err)
		return
	}

	event := function.GatewayEvent{
		HTTPMethod: r.Method,
		Path:       r.URL.Path,
		Headers:    map[string]string{"Content-Type": r.Header.Get("Content-Type")},
		Body:       string(body),
	}
	if table := chi.URLParam(r, "table"); table != "" {
		event.PathParameters = map[string]string{"table": table}
	}

	resp, err := s.function.Invoke(r.Context(), event)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "invocation failed", err)
		return
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	io.WriteString(w, resp.Body)
}

// respondServiceError maps engine and catalog errors to HTTP responses
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case rules.IsMalformed(err):
		respondError(w, http.StatusBadRequest, "malformed decision table", err)
	case rules.IsTypeMismatch(err):
		respondError(w, http.StatusBadRequest, "input does not match table", err)
	case rules.IsNotFound(err):
		respondError(w, http.StatusNotFound, "decision table not found", err)
	case rules.IsOverlapping(err):
		respondError(w, http.StatusConflict, "overlapping rules matched", err)
	case rules.IsEmptyResult(err):
		respondError(w, http.StatusUnprocessableEntity, "no rule matched", err)
	case rules.IsExpression(err):
		respondError(w, http.StatusUnprocessableEntity, "expression evaluation failed", err)
	default:
		s.logger.Error("internal server error", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error", nil)
	}
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	switch {
	case status >= http.StatusInternalServerError:
		logger.ErrorHttp5xx()
	case status >= http.StatusBadRequest:
		logger.WarnHttp4xx()
	}

	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	respondJSON(w, status, response)
}
