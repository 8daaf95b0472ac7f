// Package metrics exposes Prometheus instruments for imports, staging and
// recalculation. Every method is safe on a nil *Metrics so components can
// run without instrumentation in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "profitrecon"

// Recalculation outcomes.
const (
	RecalcOK      = "recalculated"
	RecalcSkipped = "skipped"
	RecalcFailed  = "failed"
)

// Metrics holds every instrument of the service.
type Metrics struct {
	gatherer prometheus.Gatherer

	parsedRows     *prometheus.CounterVec
	commits        *prometheus.CounterVec
	committedRows  *prometheus.CounterVec
	recalcs        *prometheus.CounterVec
	recalcDuration prometheus.Histogram
	coalesced      prometheus.Counter
	dropped        prometheus.Counter
	queueDepth     prometheus.Gauge
	stagedSessions prometheus.Gauge
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New registers the instruments on a fresh registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return newMetrics(reg, reg)
}

func newMetrics(registerer prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	m := &Metrics{
		gatherer: gatherer,
		parsedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_rows_parsed_total",
			Help:      "Rows parsed from uploaded files by kind and validity.",
		}, []string{"kind", "outcome"}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_commits_total",
			Help:      "Import commits by kind and result.",
		}, []string{"kind", "result"}),
		committedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_rows_committed_total",
			Help:      "Rows handled at commit by kind and outcome (inserted, duplicate, skipped).",
		}, []string{"kind", "outcome"}),
		recalcs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recalculations_total",
			Help:      "Per-order profit recalculations by result.",
		}, []string{"result"}),
		recalcDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recalculation_duration_seconds",
			Help:      "Latency of one per-order recalculation.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recalculation_coalesced_total",
			Help:      "Recalculation submissions merged into an already queued or running one.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recalculation_dropped_total",
			Help:      "Recalculation submissions rejected because the queue was full.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recalculation_queue_depth",
			Help:      "Orders waiting in the recalculation queue.",
		}),
		stagedSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "staged_sessions",
			Help:      "Upload sessions held in the in-process staging store.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	registerer.MustRegister(
		m.parsedRows,
		m.commits,
		m.committedRows,
		m.recalcs,
		m.recalcDuration,
		m.coalesced,
		m.dropped,
		m.queueDepth,
		m.stagedSessions,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveParse records the row split of one parsed file.
func (m *Metrics) ObserveParse(kind string, valid, invalid int) {
	if m == nil {
		return
	}
	m.parsedRows.WithLabelValues(kind, "valid").Add(float64(valid))
	m.parsedRows.WithLabelValues(kind, "invalid").Add(float64(invalid))
}

// ObserveCommit records one commit attempt.
func (m *Metrics) ObserveCommit(kind string, inserted, duplicates, skipped int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.commits.WithLabelValues(kind, "error").Inc()
		return
	}
	m.commits.WithLabelValues(kind, "ok").Inc()
	m.committedRows.WithLabelValues(kind, "inserted").Add(float64(inserted))
	m.committedRows.WithLabelValues(kind, "duplicate").Add(float64(duplicates))
	m.committedRows.WithLabelValues(kind, "skipped").Add(float64(skipped))
}

// ObserveRecalc records one per-order recalculation.
func (m *Metrics) ObserveRecalc(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.recalcs.WithLabelValues(result).Inc()
	m.recalcDuration.Observe(d.Seconds())
}

func (m *Metrics) AddCoalesced(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.coalesced.Add(float64(n))
}

func (m *Metrics) AddDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.dropped.Add(float64(n))
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) SetStagedSessions(n int) {
	if m == nil {
		return
	}
	m.stagedSessions.Set(float64(n))
}

// ObserveHTTP records a finished request. route is the chi pattern, not the
// raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}
