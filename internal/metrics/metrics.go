package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "encoding_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "encoding_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Publish Metrics
	PublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "encoding_publishes_total",
			Help: "Total number of encode-job publish attempts",
		},
		[]string{"backend", "status"},
	)

	PublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "encoding_publish_duration_seconds",
			Help:    "Broker publish latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Webhook Metrics
	WebhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "encoding_webhook_deliveries_total",
			Help: "Total number of inbound webhook deliveries",
		},
		[]string{"event", "outcome"},
	)

	SignatureFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "encoding_webhook_signature_failures_total",
			Help: "Total number of rejected webhook signatures",
		},
		[]string{"reason"},
	)

	// Reducer Metrics
	ReducerEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "encoding_reducer_events_total",
			Help: "Total number of events handled by the state reducer",
		},
		[]string{"event", "outcome"},
	)

	VideoTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "encoding_video_transitions_total",
			Help: "Total number of video status transitions",
		},
		[]string{"from", "to"},
	)
)
