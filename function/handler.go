// Package function adapts the decision engine to a cloud-function style entry point:
// an API gateway event comes in, a gateway response goes out.
package function

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/liamcoop/decisions/rules"
)

// GatewayEvent is the subset of an API gateway proxy event the handler reads
type GatewayEvent struct {
	HTTPMethod      string            `json:"httpMethod"`
	Path            string            `json:"path"`
	Headers         map[string]string `json:"headers,omitempty"`
	PathParameters  map[string]string `json:"pathParameters,omitempty"`
	Body            string            `json:"body"`
	IsBase64Encoded bool              `json:"isBase64Encoded"`
}

// GatewayResponse is returned to the gateway as-is
type GatewayResponse struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body"`
}

// ErrBadRequest marks a body the handler could not turn into an input row
var ErrBadRequest = errors.New("bad request")

// Handler evaluates one decision table per event
type Handler struct {
	engine       *rules.Engine
	defaultTable string
	logger       *slog.Logger
}

// NewHandler returns a handler that evaluates defaultTable unless the event names a table
func NewHandler(engine *rules.Engine, defaultTable string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		engine:       engine,
		defaultTable: defaultTable,
		logger:       logger,
	}
}

// Invoke evaluates the event body against the selected table. The response body is the
// JSON encoding of the first output value of the first result entry. Domain failures
// become error responses; the returned error is reserved for failures the gateway
// should retry, and is currently always nil.
func (h *Handler) Invoke(ctx context.Context, event GatewayEvent) (GatewayResponse, error) {
	name := h.tableName(event)

	row, err := decodeBody(event)
	if err != nil {
		return h.errorResponse(name, err), nil
	}

	res, err := h.engine.Evaluate(name, row)
	if err != nil {
		return h.errorResponse(name, err), nil
	}
	if res.Empty() {
		return h.errorResponse(name, &rules.EmptyResultError{Table: name}), nil
	}

	value, err := res.Primary()
	if err != nil {
		return h.errorResponse(name, err), nil
	}
	body, err := json.Marshal(value)
	if err != nil {
		return h.errorResponse(name, err), nil
	}

	h.logger.DebugContext(ctx, "function invoked", "table", name, "matched", res.Matched)
	return GatewayResponse{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}, nil
}

func (h *Handler) tableName(event GatewayEvent) string {
	if name := event.PathParameters["table"]; name != "" {
		return name
	}
	return h.defaultTable
}

func decodeBody(event GatewayEvent) (rules.InputRow, error) {
	raw := []byte(event.Body)
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(event.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: body is not valid base64: %v", ErrBadRequest, err)
		}
		raw = decoded
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrBadRequest)
	}

	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("%w: body must be a JSON object: %v", ErrBadRequest, err)
	}
	row, err := rules.NewInputRow(values)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return row, nil
}

// StatusCode maps an evaluation error to the HTTP status reported to the gateway
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest), rules.IsTypeMismatch(err):
		return http.StatusBadRequest
	case rules.IsNotFound(err):
		return http.StatusNotFound
	case rules.IsOverlapping(err):
		return http.StatusConflict
	case rules.IsEmptyResult(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) errorResponse(table string, err error) GatewayResponse {
	status := StatusCode(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("function evaluation failed", "table", table, "error", err)
	} else {
		h.logger.Warn("function evaluation rejected", "table", table, "status", status, "error", err)
	}

	body, _ := json.Marshal(map[string]string{"error": err.Error()})
	return GatewayResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}
