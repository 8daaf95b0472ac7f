package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	return newMetrics(reg, reg)
}

func TestObserveCommit(t *testing.T) {
	m := newTestMetrics()

	m.ObserveCommit("orders", 8, 1, 2, nil)
	m.ObserveCommit("orders", 0, 0, 0, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.commits.WithLabelValues("orders", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commits.WithLabelValues("orders", "error")))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.committedRows.WithLabelValues("orders", "inserted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.committedRows.WithLabelValues("orders", "duplicate")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.committedRows.WithLabelValues("orders", "skipped")))
}

func TestObserveParseAndQueue(t *testing.T) {
	m := newTestMetrics()

	m.ObserveParse("purchases", 3, 1)
	m.AddCoalesced(2)
	m.AddCoalesced(0)
	m.SetQueueDepth(7)
	m.ObserveRecalc(RecalcOK, time.Millisecond)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.parsedRows.WithLabelValues("purchases", "valid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.parsedRows.WithLabelValues("purchases", "invalid")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.coalesced))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.queueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recalcs.WithLabelValues(RecalcOK)))
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveParse("orders", 1, 1)
		m.ObserveCommit("orders", 1, 0, 0, nil)
		m.ObserveRecalc(RecalcFailed, time.Second)
		m.AddCoalesced(1)
		m.AddDropped(1)
		m.SetQueueDepth(1)
		m.SetStagedSessions(1)
		m.ObserveHTTP("/api", http.MethodGet, 200, time.Second)
	})
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.ObserveHTTP("/api/orders/kpi", http.MethodGet, 200, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `profitrecon_http_requests_total{method="GET",route="/api/orders/kpi",status="200"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
