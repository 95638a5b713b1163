// Package metrics holds the Prometheus collectors Newsly exports at
// /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EmailsTotal counts per-recipient outcomes: sent, failed, skipped.
	EmailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsly_emails_total",
			Help: "Per-recipient delivery outcomes",
		},
		[]string{"status"},
	)

	// DispatchRunsTotal counts tier runs by outcome: sent, generation_failed,
	// dispatch_failed, empty.
	DispatchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsly_dispatch_runs_total",
			Help: "Dispatch runs by target tier and outcome",
		},
		[]string{"tier", "outcome"},
	)

	// ContentGenerationSeconds times LLM content generation.
	ContentGenerationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "newsly_content_generation_seconds",
			Help:    "AI content generation latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 9), // 0.5s to ~2m
		},
		[]string{"provider"},
	)

	// QueueJobsTotal counts queue-mode job handling results.
	QueueJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsly_queue_jobs_total",
			Help: "Delivery jobs consumed from the queue by result",
		},
		[]string{"result"},
	)

	// RecoveredDeliveriesTotal counts deliveries reset by the recovery sweeper.
	RecoveredDeliveriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "newsly_recovered_deliveries_total",
			Help: "Stale in-flight deliveries reset to pending",
		},
	)
)

// ObserveGeneration records one generation's latency.
func ObserveGeneration(provider string, start time.Time) {
	ContentGenerationSeconds.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}
