package qnetsim

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveRequest(SwapSucceeded, 0)
		c.ObserveReplenish()
		c.ObserveRun(10, time.Second)
		c.WorkerStarted()
		c.WorkerDone()
	})
	assert.NotNil(t, c.Handler())
}

func TestCollectorRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.ObserveRequest(SwapSucceeded, 0)
	c.ObserveRequest(SwapFailed, 2)
	c.ObserveRequest(SwapSucceeded, 1)
	c.ObserveRun(12, 5*time.Millisecond)
	c.WorkerStarted()
	c.WorkerStarted()
	c.WorkerDone()

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Requests.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Requests.WithLabelValues("failed")))
	assert.Equal(t, 12.0, testutil.ToFloat64(c.PairsUsed))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Runs))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ActiveWorkers))
	series, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 8, series)
}

func TestCollectorReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	require.NoError(t, err)
	second, err := NewCollector(reg)
	require.NoError(t, err)

	first.ObserveReplenish()
	second.ObserveReplenish()
	assert.Equal(t, 2.0, testutil.ToFloat64(first.Replenishments))
	assert.Same(t, first.Requests, second.Requests)
}

func TestCollectorHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)
	c.ObserveRun(3, time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "qnetsim_runs_total 1")
	assert.Contains(t, rec.Body.String(), "qnetsim_pairs_used_total 3")
}
