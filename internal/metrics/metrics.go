// Package metrics exposes Prometheus metrics for evaluations, reloads and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liamcoop/decisions/internal/logger"
	"github.com/liamcoop/decisions/rules"
)

const namespace = "decisions"

// Collector owns a registry and the metrics registered on it.
//
// Metrics:
//   - decisions_evaluations_total: evaluations by table, hit policy and outcome
//   - decisions_evaluation_duration_seconds: evaluation latency by table
//   - decisions_reloads_total: catalog reloads by outcome
//   - decisions_reload_duration_seconds: catalog reload latency
//   - decisions_tables_loaded: tables served after the last successful reload
//   - decisions_http_requests_total: requests by route, method and status
//   - decisions_log_errors_total, decisions_log_warnings_total: logger counters
//   - decisions_http_client_errors_total, decisions_http_server_errors_total: error responses
//
// Collector implements rules.Observer and the catalog reload observer.
type Collector struct {
	registry *prometheus.Registry

	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	reloadsTotal       *prometheus.CounterVec
	reloadDuration     prometheus.Histogram
	tablesLoaded       prometheus.Gauge
	httpRequestsTotal  *prometheus.CounterVec
	logCounters        []prometheus.CounterFunc
}

// NewCollector registers all metrics on registry, or on a fresh registry when nil.
// Go runtime and process collectors are included.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Total number of decision table evaluations",
			},
			[]string{"table", "policy", "outcome"},
		),
		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_duration_seconds",
				Help:      "Decision table evaluation latency",
				Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1},
			},
			[]string{"table"},
		),
		reloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reloads_total",
				Help:      "Total number of catalog reloads",
			},
			[]string{"outcome"},
		),
		reloadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reload_duration_seconds",
				Help:      "Catalog reload latency",
				Buckets:   prometheus.DefBuckets,
			},
		),
		tablesLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tables_loaded",
				Help:      "Decision tables served after the last successful reload",
			},
		),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		logCounters: []prometheus.CounterFunc{
			counterFunc("log_errors_total", "Errors reported through the logger, sampled or not", &logger.TotalErrors),
			counterFunc("log_warnings_total", "Warnings reported through the logger, sampled or not", &logger.TotalWarnings),
			counterFunc("http_client_errors_total", "Responses with a 4xx status", &logger.Total4xxErrors),
			counterFunc("http_server_errors_total", "Responses with a 5xx status", &logger.Total5xxErrors),
		},
	}

	registry.MustRegister(
		c.evaluationsTotal,
		c.evaluationDuration,
		c.reloadsTotal,
		c.reloadDuration,
		c.tablesLoaded,
		c.httpRequestsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, counter := range c.logCounters {
		registry.MustRegister(counter)
	}

	return c
}

type int64Loader interface {
	Load() int64
}

// counterFunc exports a process-wide counter owned by the logger package
func counterFunc(name, help string, v int64Loader) prometheus.CounterFunc {
	return prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		},
		func() float64 { return float64(v.Load()) },
	)
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveEvaluation records one evaluation
func (c *Collector) ObserveEvaluation(table string, policy rules.HitPolicy, elapsed time.Duration, err error) {
	c.evaluationsTotal.WithLabelValues(table, string(policy), Outcome(err)).Inc()
	c.evaluationDuration.WithLabelValues(table).Observe(elapsed.Seconds())
}

// ObserveReload records one catalog reload. A failed reload leaves the table gauge alone.
func (c *Collector) ObserveReload(tables int, elapsed time.Duration, err error) {
	c.reloadDuration.Observe(elapsed.Seconds())
	if err != nil {
		c.reloadsTotal.WithLabelValues("error").Inc()
		return
	}
	c.reloadsTotal.WithLabelValues("success").Inc()
	c.tablesLoaded.Set(float64(tables))
}

// RecordRequest counts one HTTP response
func (c *Collector) RecordRequest(route, method string, status int) {
	c.httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(
		c.registry,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			ErrorHandling:     promhttp.ContinueOnError,
		},
	)
}

// Outcome maps an evaluation error to a low-cardinality label value
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case rules.IsNotFound(err):
		return "not_found"
	case rules.IsTypeMismatch(err):
		return "type_mismatch"
	case rules.IsOverlapping(err):
		return "overlap"
	case rules.IsEmptyResult(err):
		return "empty"
	case rules.IsExpression(err):
		return "expression_error"
	default:
		return "error"
	}
}
