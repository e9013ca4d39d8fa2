package consumer

import (
	"context"
	"time"

	"fanout/internal/constants"
	"fanout/pkg/retry"
)

// BatchResult counts what happened to the records of one poll.
type BatchResult struct {
	Received  int
	Handled   int
	Failed    int
	Contended int
	Unhandled int
	// LockErrors records could not be guarded because the lock store failed.
	LockErrors int
	// Skipped records were left on the queue because a stop was requested.
	Skipped int
}

// PostBatchHook runs after every poll, including empty ones. Returning false
// ends the polling loop.
type PostBatchHook func(ctx context.Context, result BatchResult) bool

type Options struct {
	QueueName                string
	MaxMessages              int32
	WaitTimeSeconds          int32
	VisibilityTimeoutSeconds int32
	// PollsPerSecond caps how often the queue is polled. Zero disables pacing.
	PollsPerSecond float64
	// PollBackoff paces retries after failed polls.
	PollBackoff   retry.Policy
	PostBatchHook PostBatchHook
}

type Option func(*Options)

func WithMaxMessages(n int32) Option {
	return func(o *Options) { o.MaxMessages = n }
}

func WithWaitTime(seconds int32) Option {
	return func(o *Options) { o.WaitTimeSeconds = seconds }
}

func WithVisibilityTimeout(seconds int32) Option {
	return func(o *Options) { o.VisibilityTimeoutSeconds = seconds }
}

func WithPollsPerSecond(rate float64) Option {
	return func(o *Options) { o.PollsPerSecond = rate }
}

func WithPollBackoff(policy retry.Policy) Option {
	return func(o *Options) { o.PollBackoff = policy }
}

func WithPostBatchHook(hook PostBatchHook) Option {
	return func(o *Options) { o.PostBatchHook = hook }
}

func defaultOptions(queueName string) Options {
	return Options{
		QueueName:       queueName,
		MaxMessages:     constants.MaxReceiveBatch,
		WaitTimeSeconds: 5,
		PollBackoff: retry.Policy{
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     10 * time.Second,
			Multiplier:      2,
		},
	}
}
