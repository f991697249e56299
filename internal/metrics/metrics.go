// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Poll Metrics
var (
	// PollCyclesTotal counts completed poll cycles by result (ok, error).
	PollCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repopulse_poll_cycles_total",
			Help: "Total poll cycles by result",
		},
		[]string{"result"},
	)

	// PollPairsTotal counts processed (subscriber, repository) pairs by result.
	PollPairsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repopulse_poll_pairs_total",
			Help: "Total subscriber/repository pairs processed by result",
		},
		[]string{"result"},
	)

	// PollCycleDuration tracks how long a cycle takes end to end.
	PollCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "repopulse_poll_cycle_duration_seconds",
			Help:    "Poll cycle duration in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	// PollCyclesSkipped counts ticks dropped because a cycle was still running.
	PollCyclesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "repopulse_poll_cycles_skipped_total",
			Help: "Poll ticks skipped because the previous cycle was still running",
		},
	)
)

// Delivery Metrics
var (
	// NotificationsTotal counts notification sends by result (sent, failed, filtered).
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repopulse_notifications_total",
			Help: "Total notifications by result",
		},
		[]string{"result"},
	)

	// CircuitBreakerState tracks the notify circuit breaker (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "repopulse_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)

// GitHub Metrics
var (
	// GitHubRequestsTotal counts GitHub API calls by endpoint and HTTP status.
	GitHubRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repopulse_github_requests_total",
			Help: "Total GitHub API requests by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)

	// GitHubRateLimitRemaining is the last observed remaining core quota.
	GitHubRateLimitRemaining = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "repopulse_github_rate_limit_remaining",
			Help: "Last observed GitHub rate limit remaining",
		},
	)
)

// Webhook Metrics
var (
	// WebhookDeliveriesTotal counts webhook deliveries by event and result.
	WebhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repopulse_webhook_deliveries_total",
			Help: "Total webhook deliveries by event and result",
		},
		[]string{"event", "result"},
	)
)
