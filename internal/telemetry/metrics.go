// Package telemetry exposes Prometheus metrics for the crawl pipeline.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	itemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_items_total",
			Help: "Total detail fetch items processed, labeled by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_retries_total",
			Help: "Total detail fetch retries, labeled by source.",
		},
		[]string{"source"},
	)

	priceChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_price_changes_total",
			Help: "Total observed price changes, labeled by source.",
		},
		[]string{"source"},
	)

	urlsDiscoveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_urls_discovered_total",
			Help: "Total URLs emitted by discovery, labeled by source.",
		},
		[]string{"source"},
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_runs_total",
			Help: "Total crawl runs, labeled by phase and status.",
		},
		[]string{"phase", "status"},
	)

	inFlightFetches = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pricewatch_in_flight_fetches",
			Help: "Detail fetches currently in flight across the worker pool.",
		},
	)

	rateLimitDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricewatch_rate_limit_delay_seconds",
			Help:    "Delay introduced by the per-source rate limiter.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"source"},
	)
)

// ObserveItem records the outcome of one detail fetch item.
func ObserveItem(source, outcome string) {
	itemsTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveRetry records one retry attempt.
func ObserveRetry(source string) {
	retriesTotal.WithLabelValues(source).Inc()
}

// ObservePriceChange records one observed price transition.
func ObservePriceChange(source string) {
	priceChangesTotal.WithLabelValues(source).Inc()
}

// ObserveDiscoveredURL records one URL emitted during discovery.
func ObserveDiscoveredURL(source string) {
	urlsDiscoveredTotal.WithLabelValues(source).Inc()
}

// ObserveRun records the terminal status of a crawl run.
func ObserveRun(phase, status string) {
	runsTotal.WithLabelValues(phase, status).Inc()
}

// FetchStarted increments the in-flight gauge.
func FetchStarted() {
	inFlightFetches.Inc()
}

// FetchFinished decrements the in-flight gauge.
func FetchFinished() {
	inFlightFetches.Dec()
}

// ObserveRateLimitDelay records time spent waiting on the limiter.
func ObserveRateLimitDelay(source string, d time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(source).Observe(d.Seconds())
}
