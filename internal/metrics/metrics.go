// Package metrics exposes Prometheus counters, gauges and histograms for
// Gate and Worker, grounded on ChuLiYu-raft-recovery's internal/metrics
// Collector (job counters + latency histogram + queue gauges), registered
// against a private registry so /metrics stays scoped to this process
// rather than the default global one.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the metrics surface shared by Gate and Worker. Not every
// field is populated by every process: Gate drives dispatch and admin API
// metrics, Worker drives claim/handler metrics and samples queue depth.
type Collector struct {
	registry *prometheus.Registry

	DispatchTotal    *prometheus.CounterVec
	DispatchLatency  *prometheus.HistogramVec
	DispatchTimeouts prometheus.Counter

	JobsClaimedTotal   *prometheus.CounterVec
	JobsCompletedTotal *prometheus.CounterVec
	JobsFailedTotal    *prometheus.CounterVec
	HandlerLatency     *prometheus.HistogramVec

	QueueDepth *prometheus.GaugeVec

	APIRequestsTotal *prometheus.CounterVec
}

func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_dispatch_total",
			Help: "Total dispatch attempts by outcome.",
		}, []string{"outcome"}),
		DispatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gate_dispatch_latency_seconds",
			Help:    "End-to-end dispatch latency as observed by Gate.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		DispatchTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gate_dispatch_timeouts_total",
			Help: "Dispatches that exceeded their deadline.",
		}),
		JobsClaimedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_jobs_claimed_total",
			Help: "Jobs claimed (PENDING -> IN_PROGRESS) by worker_version.",
		}, []string{"worker_version"}),
		JobsCompletedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Jobs completed successfully by worker_version.",
		}, []string{"worker_version"}),
		JobsFailedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Jobs that ended FAILED, by worker_version and reason.",
		}, []string{"worker_version", "reason"}),
		HandlerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "worker_handler_latency_seconds",
			Help:    "Handler execution latency by worker_version.",
			Buckets: prometheus.DefBuckets,
		}, []string{"worker_version"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Last-observed queue length by worker_version.",
		}, []string{"worker_version"}),
		APIRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_api_requests_total",
			Help: "Admin/introspection API requests by route and status.",
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(
		c.DispatchTotal, c.DispatchLatency, c.DispatchTimeouts,
		c.JobsClaimedTotal, c.JobsCompletedTotal, c.JobsFailedTotal, c.HandlerLatency,
		c.QueueDepth, c.APIRequestsTotal,
	)
	return c
}

// Handler returns the /metrics HTTP handler scoped to this collector's
// private registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
