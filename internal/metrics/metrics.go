// Package metrics holds the Prometheus collectors of the publishing pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PublishOutcomes counts finished publish attempts by destination and outcome.
	PublishOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postflow_publish_outcomes_total",
		Help: "Publish attempts by destination and outcome",
	}, []string{"destination", "outcome"})

	// PublishLatency records the duration of platform publish calls.
	PublishLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "postflow_publish_latency_seconds",
		Help:    "Platform publish call latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"destination"})

	// Claims counts claim attempts by source and result.
	Claims = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postflow_claims_total",
		Help: "Claim attempts by source and result",
	}, []string{"source", "result"})

	// RateLimitDenials counts publishes deferred by the per-brand rate limiter.
	RateLimitDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postflow_rate_limit_denials_total",
		Help: "Publishes deferred by the rate limiter",
	}, []string{"destination"})

	// TokenRefreshes counts OAuth refresh attempts by destination and result.
	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postflow_token_refreshes_total",
		Help: "OAuth token refreshes by destination and result",
	}, []string{"destination", "result"})

	// RecurrencesGenerated counts posts created from recurrence plans.
	RecurrencesGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postflow_recurrences_generated_total",
		Help: "Posts generated from recurrence plans",
	})

	// JobRuns records the duration of scheduler loop passes.
	JobRuns = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "postflow_job_run_seconds",
		Help:    "Scheduler loop pass duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
)

// ObservePublish records the latency of a publish call started at start.
func ObservePublish(destination string, start time.Time) {
	PublishLatency.WithLabelValues(destination).Observe(time.Since(start).Seconds())
}

// TrackJob returns a function that records a loop pass duration when called (e.g. defer).
func TrackJob(job string) func() {
	start := time.Now()
	return func() {
		JobRuns.WithLabelValues(job).Observe(time.Since(start).Seconds())
	}
}
