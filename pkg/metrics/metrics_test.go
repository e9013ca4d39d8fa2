package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		RegisterConsumerMetrics()
		RegisterConsumerMetrics()
		RegisterProducerMetrics()
		RegisterProducerMetrics()
		RegisterCircuitBreakerMetrics()
		RegisterCircuitBreakerMetrics()
	})
}

func TestHelpersUpdateCollectors(t *testing.T) {
	before := testutil.ToFloat64(LockContentionTotal.WithLabelValues("q-metrics"))
	IncLockContention("q-metrics")
	assert.Equal(t, before+1, testutil.ToFloat64(LockContentionTotal.WithLabelValues("q-metrics")))

	SetConsumerReceiving("q-metrics", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(ConsumerReceiving.WithLabelValues("q-metrics")))
	SetConsumerReceiving("q-metrics", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(ConsumerReceiving.WithLabelValues("q-metrics")))

	IncMessagesReceived("q-metrics", 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(MessagesReceivedTotal.WithLabelValues("q-metrics")))
}
