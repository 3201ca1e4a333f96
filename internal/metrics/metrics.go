package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth tracks items waiting in the submission queue
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "zkrelay_queue_depth",
			Help: "Number of submissions waiting in the queue",
		},
	)

	// SubmissionsTotal tracks settled submissions per network and outcome
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zkrelay_submissions_total",
			Help: "Total number of settled submissions",
		},
		[]string{"network", "outcome"},
	)

	// FailuresTotal tracks failed submissions per failure category
	FailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zkrelay_failures_total",
			Help: "Total number of failed submissions by category",
		},
		[]string{"category"},
	)

	// RetriesTotal tracks nonce race retries
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zkrelay_retries_total",
			Help: "Total number of submission retries",
		},
		[]string{"network"},
	)

	// SubmissionLatency tracks the duration of the final attempt
	SubmissionLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zkrelay_submission_latency_seconds",
			Help:    "Submission attempt latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"network", "outcome"},
	)

	// QueueClearedTotal tracks items dropped by ClearQueue
	QueueClearedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "zkrelay_queue_cleared_total",
			Help: "Total number of pending submissions dropped by a queue clear",
		},
	)

	// ConnectionState is 1 for the current connection state and 0 otherwise
	ConnectionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "zkrelay_connection_state",
			Help: "Current chain connection state",
		},
		[]string{"state"},
	)

	// ReconnectAttempts tracks reconnection attempts
	ReconnectAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "zkrelay_reconnect_attempts_total",
			Help: "Total number of chain reconnection attempts",
		},
	)

	// HTTPRequests tracks API requests per route and status code
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zkrelay_http_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"route", "code"},
	)

	// RateLimited tracks requests rejected by the rate limiter
	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "zkrelay_http_rate_limited_total",
			Help: "Total number of API requests rejected by the rate limiter",
		},
	)

	// LedgerPoolUsage tracks ledger connection pool usage percentage
	LedgerPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "zkrelay_ledger_pool_usage_percent",
			Help: "Ledger database connection pool usage percentage",
		},
	)
)
