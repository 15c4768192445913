// Package observability holds the Prometheus registry and OpenTelemetry setup
// shared by the API server and the worker.
package observability

import (
	"context"
	"net/http"
	"time"

	"docintake/jobs"
	"docintake/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docintake"

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	jobsFinished *prometheus.CounterVec
	jobDuration  prometheus.Histogram

	dedupChecks  *prometheus.CounterVec
	dedupLatency prometheus.Histogram
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_inflight",
			Help: "HTTP requests currently being served.",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "jobs", Name: "finished_total",
			Help: "Jobs that reached a terminal state.",
		}, []string{"state"}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "jobs", Name: "duration_seconds",
			Help:    "Measured processing time of completed jobs.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		dedupChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dedup", Name: "checks_total",
			Help: "Duplicate checks by outcome.",
		}, []string{"outcome"}),
		dedupLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "dedup", Name: "check_duration_seconds",
			Help:    "Duplicate check latency.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.jobsFinished, m.jobDuration,
		m.dedupChecks, m.dedupLatency,
	)
	return m
}

func (m *Metrics) APIInflightInc() { m.apiInflight.Inc() }
func (m *Metrics) APIInflightDec() { m.apiInflight.Dec() }

func (m *Metrics) ObserveAPI(method, route, status string, d time.Duration) {
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route).Observe(d.Seconds())
}

// JobFinished counts a terminal job. It satisfies queue.JobListener.
func (m *Metrics) JobFinished(_ context.Context, job types.Job) {
	m.jobsFinished.WithLabelValues(string(job.State)).Inc()
	if job.Result != nil {
		m.jobDuration.Observe(float64(job.Result.DurationMs) / 1000)
	}
}

// ObserveDuplicateCheck satisfies deduplication.Recorder.
func (m *Metrics) ObserveDuplicateCheck(outcome string, elapsed time.Duration) {
	m.dedupChecks.WithLabelValues(outcome).Inc()
	m.dedupLatency.Observe(elapsed.Seconds())
}

// QueueStatsFunc reports the current queue view.
type QueueStatsFunc func(ctx context.Context) (jobs.QueueStats, error)

// RegisterQueue exports queue gauges, read live on every scrape.
func (m *Metrics) RegisterQueue(stats QueueStatsFunc) error {
	return m.registry.Register(newQueueCollector(stats))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

type queueCollector struct {
	stats   QueueStatsFunc
	up      *prometheus.Desc
	paused  *prometheus.Desc
	jobs    *prometheus.Desc
	local   *prometheus.Desc
	timeout time.Duration
}

func newQueueCollector(stats QueueStatsFunc) *queueCollector {
	return &queueCollector{
		stats:   stats,
		up:      prometheus.NewDesc(namespace+"_queue_up", "Whether the queue backend answered its probe.", nil, nil),
		paused:  prometheus.NewDesc(namespace+"_queue_paused", "Whether the queue is paused.", nil, nil),
		jobs:    prometheus.NewDesc(namespace+"_queue_jobs", "Backend jobs by queue state.", []string{"state"}, nil),
		local:   prometheus.NewDesc(namespace+"_local_jobs", "Jobs held in the local result store.", nil, nil),
		timeout: 2 * time.Second,
	}
}

func (c *queueCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.up
	ch <- c.paused
	ch <- c.jobs
	ch <- c.local
}

func (c *queueCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	s, err := c.stats(ctx)
	if err != nil {
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, boolGauge(s.Reachable))
	ch <- prometheus.MustNewConstMetric(c.paused, prometheus.GaugeValue, boolGauge(s.Paused))
	ch <- prometheus.MustNewConstMetric(c.local, prometheus.GaugeValue, float64(s.LocalJobs))
	for state, n := range map[string]int64{
		"waiting":   s.Waiting,
		"active":    s.Active,
		"completed": s.Completed,
		"failed":    s.Failed,
	} {
		ch <- prometheus.MustNewConstMetric(c.jobs, prometheus.GaugeValue, float64(n), state)
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
