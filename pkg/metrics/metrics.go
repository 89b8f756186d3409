package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "polarhr"

// Consumer outcomes.
const (
	OutcomeStored      = "stored"
	OutcomeNacked      = "nacked"
	OutcomeDecodeError = "decode_error"
	OutcomeInvalid     = "invalid"
	OutcomeIgnored     = "ignored"
	OutcomeAckFailed   = "ack_failed"
)

// Producer outcomes.
const (
	OutcomePublished    = "published"
	OutcomeEncodeError  = "encode_error"
	OutcomePublishError = "publish_error"
	OutcomeDropped      = "dropped"
)

var ConsumedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "consumer",
	Name:      "messages_total",
	Help:      "Channel messages handled by the consumer, by outcome.",
}, []string{"outcome"})

var StoreDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "consumer",
	Name:      "store_duration_seconds",
	Help:      "Time spent persisting one reading.",
	Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
})

var ProducedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "producer",
	Name:      "events_total",
	Help:      "Sensor events seen by the producer, by outcome.",
}, []string{"outcome"})

var AsyncPublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "channel",
	Name:      "async_publish_failures_total",
	Help:      "Fire-and-forget publishes the broker rejected after hand-off.",
}, []string{"broker"})

var APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "api",
	Name:      "requests_total",
	Help:      "Query API requests, by transport, operation and status.",
}, []string{"transport", "operation", "status"})
