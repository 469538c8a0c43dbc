// Package metrics holds the Prometheus collectors shared across the service.
// They are registered with the default registry, which /metrics serves.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	PublishAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publish_attempts_total",
			Help: "Publish attempts by flow (claim, republish) and outcome.",
		}, []string{"flow", "outcome"})

	ImageUploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_uploads_total",
			Help: "Inline image uploads to object storage by outcome.",
		}, []string{"outcome"})

	Deployments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deployments_total",
			Help: "Hosting deployments by outcome.",
		}, []string{"outcome"})

	DetachedTaskFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detached_task_failures_total",
			Help: "Background tasks that returned an error or panicked.",
		}, []string{"task"})

	ReconciledRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_records_total",
			Help: "Records surfaced by dashboard reconciliation, by winning source.",
		}, []string{"source"})

	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Latency of calls to external providers.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "operation", "outcome"})
)

func init() {
	prometheus.MustRegister(
		PublishAttempts,
		ImageUploads,
		Deployments,
		DetachedTaskFailures,
		ReconciledRecords,
		UpstreamDuration,
	)
}

// Outcome maps an error to the outcome label value.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
