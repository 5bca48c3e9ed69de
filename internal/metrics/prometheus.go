// Package metrics defines the Prometheus collectors shared by the mailer
// binaries. Collectors register with the default registry on init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Queue metrics
var (
	QueueEnqueuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mpmail_queue_enqueued_total",
			Help: "Total number of jobs written to the queue store",
		},
	)

	QueueDrainedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mpmail_queue_drained_total",
			Help: "Total number of jobs claimed and returned by drain calls",
		},
	)

	QueueDrainSkipsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpmail_queue_drain_skips_total",
			Help: "Total number of keys skipped during drain by reason",
		},
		[]string{"reason"}, // not_found, read_failed, decode_failed, delete_failed, already_claimed
	)

	QueueDrainDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mpmail_queue_drain_duration_seconds",
			Help:    "Duration of drain calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	QueueDrainErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mpmail_queue_drain_errors_total",
			Help: "Total number of drain calls aborted because the store was unavailable",
		},
	)

	QueueQuarantinedRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mpmail_queue_quarantined_records",
			Help: "Undecodable records held under the quarantine prefix, as seen by the last drain",
		},
	)
)

// Delivery metrics
var (
	DeliverySendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpmail_delivery_send_total",
			Help: "Total number of send requests by provider and result",
		},
		[]string{"provider", "result"}, // success, validation, failure, panic
	)

	DeliverySendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mpmail_delivery_send_duration_seconds",
			Help:    "Duration of provider send calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)
)

// API metrics
var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpmail_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mpmail_api_request_duration_seconds",
			Help:    "Duration of API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	APIAuthFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mpmail_api_auth_failures_total",
			Help: "Total number of rejected bearer tokens",
		},
	)
)

// Relay metrics
var (
	RelayDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpmail_relay_deliveries_total",
			Help: "Total number of relayed jobs by outcome",
		},
		[]string{"result"}, // delivered, permanent, exhausted
	)

	RelayRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mpmail_relay_retries_total",
			Help: "Total number of transient delivery retries",
		},
	)

	RelayPollErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mpmail_relay_poll_errors_total",
			Help: "Total number of failed drain requests",
		},
	)
)

// SMTP submission metrics
var (
	SMTPSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mpmail_smtp_sessions_active",
			Help: "Number of open SMTP submission sessions",
		},
	)

	SMTPMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpmail_smtp_messages_total",
			Help: "Total number of SMTP submissions by outcome",
		},
		[]string{"result"}, // accepted, rejected, failed
	)

	SMTPAuthFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mpmail_smtp_auth_failures_total",
			Help: "Total number of failed SMTP AUTH attempts",
		},
	)
)
