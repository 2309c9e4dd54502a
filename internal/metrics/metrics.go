// Package metrics exposes Prometheus collectors for depreciation runs and
// the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "capex"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Collector groups the application's collectors. A nil *Collector is valid
// and records nothing.
type Collector struct {
	registry *prometheus.Registry

	CalculationRuns     *prometheus.CounterVec
	CalculationDuration *prometheus.HistogramVec
	RecordsWritten      prometheus.Counter
	BatchRuns           prometheus.Counter
	BatchFailures       prometheus.Counter
	ImportedRows        *prometheus.CounterVec
	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		CalculationRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "calculation",
			Name:      "runs_total",
			Help:      "Depreciation runs by method and outcome.",
		}, []string{"method", "outcome"}),

		CalculationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "calculation",
			Name:      "duration_seconds",
			Help:      "Time to calculate and persist one project's depreciation.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method"}),

		RecordsWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "calculation",
			Name:      "records_written_total",
			Help:      "Depreciation records persisted.",
		}),

		BatchRuns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "runs_total",
			Help:      "Batch runs over all projects.",
		}),

		BatchFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "project_failures_total",
			Help:      "Projects that failed inside a batch run.",
		}),

		ImportedRows: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "rows_total",
			Help:      "Spreadsheet rows imported by sheet kind.",
		}, []string{"kind"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),

		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveCalculation records one project run.
func (c *Collector) ObserveCalculation(method string, err error, elapsed time.Duration, records int) {
	if c == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	if method == "" {
		method = "unknown"
	}
	c.CalculationRuns.WithLabelValues(method, outcome).Inc()
	c.CalculationDuration.WithLabelValues(method).Observe(elapsed.Seconds())
	if err == nil {
		c.RecordsWritten.Add(float64(records))
	}
}

// ObserveBatch records a completed batch run.
func (c *Collector) ObserveBatch(failures int) {
	if c == nil {
		return
	}
	c.BatchRuns.Inc()
	c.BatchFailures.Add(float64(failures))
}

// ObserveImport records imported rows of a sheet kind.
func (c *Collector) ObserveImport(kind string, rows int) {
	if c == nil {
		return
	}
	c.ImportedRows.WithLabelValues(kind).Add(float64(rows))
}

// Middleware records request counts and latency per chi route pattern.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	if c == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		c.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
