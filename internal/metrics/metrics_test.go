package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/liamcoop/decisions/internal/logger"
	"github.com/liamcoop/decisions/rules"
)

func TestCollector_ObserveEvaluation(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	collector.ObserveEvaluation("dishDecision", rules.PolicyUnique, 120*time.Microsecond, nil)
	collector.ObserveEvaluation("dishDecision", rules.PolicyUnique, 80*time.Microsecond, nil)
	collector.ObserveEvaluation("dishDecision", rules.PolicyUnique, 50*time.Microsecond,
		&rules.OverlappingRulesError{Table: "dishDecision", Policy: rules.PolicyUnique, Rules: []int{0, 1}})

	if got := testutil.ToFloat64(collector.evaluationsTotal.WithLabelValues("dishDecision", "UNIQUE", "success")); got != 2 {
		t.Errorf("Expected 2 successful evaluations, got %f", got)
	}
	if got := testutil.ToFloat64(collector.evaluationsTotal.WithLabelValues("dishDecision", "UNIQUE", "overlap")); got != 1 {
		t.Errorf("Expected 1 overlapping evaluation, got %f", got)
	}
	if got := testutil.CollectAndCount(collector.evaluationDuration); got != 1 {
		t.Errorf("Expected one duration series, got %d", got)
	}
}

func TestCollector_ObserveReload(t *testing.T) {
	collector := NewCollector(nil)

	collector.ObserveReload(3, 10*time.Millisecond, nil)
	if got := testutil.ToFloat64(collector.tablesLoaded); got != 3 {
		t.Errorf("Expected 3 tables loaded, got %f", got)
	}

	collector.ObserveReload(0, 5*time.Millisecond, errors.New("bad file"))
	if got := testutil.ToFloat64(collector.tablesLoaded); got != 3 {
		t.Errorf("Failed reload should keep the gauge at 3, got %f", got)
	}
	if got := testutil.ToFloat64(collector.reloadsTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("Expected 1 failed reload, got %f", got)
	}
	if got := testutil.ToFloat64(collector.reloadsTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("Expected 1 successful reload, got %f", got)
	}
}

func TestCollector_LogCounters(t *testing.T) {
	collector := NewCollector(nil)
	errorsCounter, serverErrors := collector.logCounters[0], collector.logCounters[3]

	errorsBefore := testutil.ToFloat64(errorsCounter)
	serverBefore := testutil.ToFloat64(serverErrors)
	logger.ErrorHttp5xx()

	if got := testutil.ToFloat64(serverErrors) - serverBefore; got != 1 {
		t.Errorf("Expected 5xx counter to grow by 1, got %f", got)
	}
	if got := testutil.ToFloat64(errorsCounter) - errorsBefore; got != 1 {
		t.Errorf("Expected error counter to grow by 1, got %f", got)
	}
	if got := testutil.CollectAndCount(errorsCounter, "decisions_log_errors_total"); got != 1 {
		t.Errorf("Expected decisions_log_errors_total to be exported, got %d series", got)
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "success"},
		{&rules.NotFoundError{Table: "x"}, "not_found"},
		{&rules.TypeMismatchError{Table: "x", Column: "a", Expected: "number", Actual: "string"}, "type_mismatch"},
		{&rules.EmptyResultError{Table: "x"}, "empty"},
		{fmt.Errorf("wrapped: %w", &rules.ExpressionError{Table: "x", Column: "a", Rule: 0, Err: errors.New("no such key")}), "expression_error"},
		{errors.New("other"), "error"},
	}

	for _, tt := range tests {
		if got := Outcome(tt.err); got != tt.want {
			t.Errorf("Outcome(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestCollector_Handler(t *testing.T) {
	collector := NewCollector(nil)
	collector.RecordRequest("/api/v1/decisions/{name}/evaluate", http.MethodPost, http.StatusOK)
	collector.ObserveEvaluation("beverages", rules.PolicyCollect, time.Millisecond, nil)

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"decisions_http_requests_total",
		`decisions_evaluations_total{outcome="success",policy="COLLECT",table="beverages"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected metrics output to contain %q", want)
		}
	}
}
