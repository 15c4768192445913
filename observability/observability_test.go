package observability

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"docintake/common"
	"docintake/jobs"
	"docintake/queue"
	"docintake/types"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()

	m.ObserveAPI("GET", "/status/:jobId", "200", 5*time.Millisecond)
	m.ObserveAPI("GET", "/status/:jobId", "404", time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.apiRequests.WithLabelValues("GET", "/status/:jobId", "404")))

	m.JobFinished(context.Background(), types.Job{State: types.JobCompleted, Result: &types.JobResult{DurationMs: 1500}})
	m.JobFinished(context.Background(), types.Job{State: types.JobFailed})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsFinished.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsFinished.WithLabelValues("failed")))

	m.ObserveDuplicateCheck("duplicate", 2*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dedupChecks.WithLabelValues("duplicate")))

	m.APIInflightInc()
	m.APIInflightDec()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.apiInflight))
}

func TestQueueCollectorReadsLiveStats(t *testing.T) {
	m := NewMetrics()
	calls := 0
	require.NoError(t, m.RegisterQueue(func(context.Context) (jobs.QueueStats, error) {
		calls++
		return jobs.QueueStats{
			Stats:     queue.Stats{Reachable: true, Paused: true, Waiting: 3, Active: 1},
			LocalJobs: 2,
		}, nil
	}))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	assert.Equal(t, 1, calls)
	assert.Contains(t, body, "docintake_queue_up 1")
	assert.Contains(t, body, "docintake_queue_paused 1")
	assert.Contains(t, body, `docintake_queue_jobs{state="waiting"} 3`)
	assert.Contains(t, body, "docintake_local_jobs 2")
	assert.True(t, strings.Contains(body, "go_goroutines"))
}

func TestQueueCollectorError(t *testing.T) {
	c := newQueueCollector(func(context.Context) (jobs.QueueStats, error) {
		return jobs.QueueStats{}, errors.New("stats failed")
	})
	assert.Equal(t, 1, testutil.CollectAndCount(c))
	assert.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(`
# HELP docintake_queue_up Whether the queue backend answered its probe.
# TYPE docintake_queue_up gauge
docintake_queue_up 0
`), "docintake_queue_up"))
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), common.NopLogger(), TracingConfig{})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}
