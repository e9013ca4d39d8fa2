package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_messages_received_total",
			Help: "Total number of messages received from the queue (count)",
		},
		[]string{"queue"},
	)

	MessagesHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_messages_handled_total",
			Help: "Total number of dispatched messages by outcome (count)",
		},
		[]string{"event", "status"},
	)

	LockContentionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_lock_contention_total",
			Help: "Total number of messages skipped because another worker holds the lock (count)",
		},
		[]string{"queue"},
	)

	PollErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_poll_errors_total",
			Help: "Total number of failed queue polls (count)",
		},
		[]string{"queue"},
	)

	HandlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fanout_handler_duration_ms",
			Help:    "Handler execution duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"event"},
	)

	MessagesPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_messages_published_total",
			Help: "Total number of messages published to the topic (count)",
		},
		[]string{"topic", "status"},
	)

	PublishPayloadBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fanout_publish_payload_bytes",
			Help:    "Size of published payloads in bytes",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		},
	)

	ConsumerReceiving = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fanout_consumer_receiving",
			Help: "Whether the consumer polling loop is running (0/1)",
		},
		[]string{"queue"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)
)

var (
	consumerOnce       sync.Once
	producerOnce       sync.Once
	circuitBreakerOnce sync.Once
)

func RegisterConsumerMetrics() {
	consumerOnce.Do(func() {
		prometheus.MustRegister(MessagesReceivedTotal)
		prometheus.MustRegister(MessagesHandledTotal)
		prometheus.MustRegister(LockContentionTotal)
		prometheus.MustRegister(PollErrorsTotal)
		prometheus.MustRegister(HandlerDuration)
		prometheus.MustRegister(ConsumerReceiving)
	})
}

func RegisterProducerMetrics() {
	producerOnce.Do(func() {
		prometheus.MustRegister(MessagesPublishedTotal)
		prometheus.MustRegister(PublishPayloadBytes)
	})
}

func RegisterCircuitBreakerMetrics() {
	circuitBreakerOnce.Do(func() {
		prometheus.MustRegister(CircuitBreakerState)
		prometheus.MustRegister(CircuitBreakerRequests)
		prometheus.MustRegister(CircuitBreakerFailures)
	})
}

func IncMessagesReceived(queue string, n int) {
	MessagesReceivedTotal.WithLabelValues(queue).Add(float64(n))
}

func IncMessagesHandled(event, status string) {
	MessagesHandledTotal.WithLabelValues(event, status).Inc()
}

func IncLockContention(queue string) {
	LockContentionTotal.WithLabelValues(queue).Inc()
}

func IncPollErrors(queue string) {
	PollErrorsTotal.WithLabelValues(queue).Inc()
}

func ObserveHandlerDuration(event string, duration time.Duration) {
	HandlerDuration.WithLabelValues(event).Observe(float64(duration.Milliseconds()))
}

func IncMessagesPublished(topic, status string) {
	MessagesPublishedTotal.WithLabelValues(topic, status).Inc()
}

func ObservePublishPayload(sizeBytes int) {
	PublishPayloadBytes.Observe(float64(sizeBytes))
}

func SetConsumerReceiving(queue string, receiving bool) {
	v := 0.0
	if receiving {
		v = 1
	}
	ConsumerReceiving.WithLabelValues(queue).Set(v)
}
