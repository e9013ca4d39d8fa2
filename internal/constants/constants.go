package constants

import "time"

const (
	ShutdownTimeout = 5 * time.Second
)

// Initialization type flag names as they appear in configuration.
const (
	InitSNSProducer  = "SNS_PRODUCER"
	InitSQSConsumer  = "SQS_CONSUMER"
	InitEventPolling = "EVENT_POLLING"
	InitQueuePolling = "QUEUE_POLLING"
)

// SQS limits.
const (
	MaxReceiveBatch = 10
	MaxWaitSeconds  = 20
)

const (
	LockBackendRedis  = "redis"
	LockBackendMemory = "memory"
)

// Handler outcome labels for metrics.
const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusNoHandler = "no_handler"
)
