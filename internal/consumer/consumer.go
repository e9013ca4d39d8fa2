// Package consumer polls a queue and dispatches each message to its handler.
//
// Messages of one batch are handled one at a time in receipt order. Every
// message is guarded by a per-message lock so that instances polling the same
// queue do not handle it concurrently. A failed handler leaves the message on
// the queue for redelivery; it never stops the loop.
package consumer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"fanout/internal/codec"
	"fanout/internal/constants"
	"fanout/internal/handler"
	"fanout/internal/lock"
	"fanout/internal/logger"
	"fanout/internal/transport"
	apperrors "fanout/pkg/errors"
	"fanout/pkg/logging"
	"fanout/pkg/metrics"
	"fanout/pkg/models"
	"fanout/pkg/retry"
	"fanout/pkg/tracing"
)

type Queue interface {
	ResolveQueueURL(ctx context.Context, name string) (string, error)
	Receive(ctx context.Context, queueURL string, opts transport.ReceiveOptions) ([]models.QueueRecord, error)
	Delete(ctx context.Context, queueURL, receiptHandle string) error
	Send(ctx context.Context, queueURL, body string, attrs map[string]string, delaySeconds int32) (string, error)
}

type Locker interface {
	TryAcquire(ctx context.Context, messageID string) (*lock.Entry, error)
	Release(ctx context.Context, entry *lock.Entry) error
}

// ErrStopPolling, returned by a handler (possibly wrapped), counts the
// message as handled and ends polling once it is deleted.
var ErrStopPolling = errors.New("stop polling")

// loopKey marks contexts handed to handlers so Stop can tell it is being
// called from inside the loop it would otherwise wait for.
type loopKey struct{}

type outcome int

const (
	outcomeHandled outcome = iota
	outcomeFailed
	outcomeContended
	outcomeUnhandled
	outcomeLockUnavailable
)

type Consumer struct {
	queue    Queue
	locks    Locker
	registry *handler.Registry
	codec    *codec.Codec
	logger   logger.Logger
	opts     Options
	limiter  *rate.Limiter

	mu       sync.Mutex
	state    State
	queueURL string
	cancel   context.CancelFunc
	done     chan struct{}
	lastErr  error

	// loopGoroutine is the goroutine running the loop and its handlers, 0 when idle.
	loopGoroutine atomic.Uint64
}

func New(queue Queue, locks Locker, registry *handler.Registry, c *codec.Codec, log logger.Logger, queueName string, opts ...Option) *Consumer {
	o := defaultOptions(queueName)
	for _, opt := range opts {
		opt(&o)
	}

	var limiter *rate.Limiter
	if o.PollsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(o.PollsPerSecond), 1)
	}

	return &Consumer{
		queue:    queue,
		locks:    locks,
		registry: registry,
		codec:    c,
		logger:   log,
		opts:     o,
		limiter:  limiter,
	}
}

func (c *Consumer) QueueName() string {
	return c.opts.QueueName
}

func (c *Consumer) QueueURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queueURL
}

func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Consumer) IsReceiving() bool {
	return c.State() == StateReceiving
}

// Err returns the fatal error that ended the last polling loop, if any.
func (c *Consumer) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Initialize resolves the queue URL. It fails when the queue does not exist
// and is a no-op once the consumer is initialized.
func (c *Consumer) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateUninitialized {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if c.opts.QueueName == "" {
		return apperrors.ErrConfiguration.WithMessage("consumer queue name is not configured")
	}

	url, err := c.queue.ResolveQueueURL(ctx, c.opts.QueueName)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateUninitialized {
		c.queueURL = url
		c.state = StateReady
	}

	c.logger.InfowCtx(ctx, "Consumer initialized", "queue", c.opts.QueueName, "queue_url", url)
	return nil
}

// Start launches the polling loop in the background. Calling it while the
// loop is running does nothing. The loop ends when Stop is called, when ctx
// is cancelled, when the post-batch hook returns false or on a fatal poll error.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateUninitialized:
		return apperrors.ErrNotInitialized.WithMessage("consumer must be initialized before receiving messages")
	case StateReceiving:
		return nil
	case StateStopping:
		return apperrors.ErrNotInitialized.WithMessage("consumer is still stopping")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	loopCtx = logging.WithQueue(loopCtx, c.opts.QueueName)

	c.cancel = cancel
	c.done = make(chan struct{})
	c.lastErr = nil
	c.state = StateReceiving
	metrics.SetConsumerReceiving(c.opts.QueueName, true)

	go c.run(loopCtx, c.queueURL, c.done)

	c.logger.InfowCtx(ctx, "Started receiving messages", "queue", c.opts.QueueName)
	return nil
}

// Stop ends the polling loop and waits for it to exit, so no message is
// dispatched once it returns. Called from inside a handler, with any context,
// it only signals: the message in flight completes and the rest of its batch
// stays on the queue. Goroutines started by a handler must pass the handler's
// context, or the handler can return ErrStopPolling instead.
func (c *Consumer) Stop(ctx context.Context) error {
	done, stopping := c.signalStop()
	if !stopping {
		return nil
	}

	if ctx.Value(loopKey{}) == c || c.inLoop() {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// signalStop cancels the running loop without waiting for it.
func (c *Consumer) signalStop() (<-chan struct{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateReceiving && c.state != StateStopping {
		return nil, false
	}
	c.state = StateStopping
	c.cancel()
	return c.done, true
}

func (c *Consumer) inLoop() bool {
	id := c.loopGoroutine.Load()
	return id != 0 && id == goroutineID()
}

// Done is closed when the current polling loop exits. It is nil before the
// first Start.
func (c *Consumer) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *Consumer) run(ctx context.Context, queueURL string, done chan struct{}) {
	defer close(done)
	defer c.finish()

	c.loopGoroutine.Store(goroutineID())
	defer c.loopGoroutine.Store(0)

	pause := retry.NewPause(c.opts.PollBackoff)
	receive := transport.ReceiveOptions{
		MaxMessages:              c.opts.MaxMessages,
		WaitTimeSeconds:          c.opts.WaitTimeSeconds,
		VisibilityTimeoutSeconds: c.opts.VisibilityTimeoutSeconds,
	}

	for {
		if ctx.Err() != nil {
			return
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return
			}
		}

		records, err := c.queue.Receive(ctx, queueURL, receive)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.IncPollErrors(c.opts.QueueName)

			if apperrors.IsFatal(err) {
				c.logger.ErrorwCtx(ctx, "Polling stopped after fatal queue error", "error", err)
				c.setErr(err)
				return
			}

			delay := pause.Next()
			c.logger.WarnwCtx(ctx, "Failed to receive messages", "error", err, "retry_in", delay)
			if !sleep(ctx, delay) {
				return
			}
			records = nil
		} else {
			pause.Reset()
		}

		result := c.processBatch(ctx, queueURL, records)

		if c.opts.PostBatchHook != nil && !c.opts.PostBatchHook(ctx, result) {
			c.logger.DebugwCtx(ctx, "Post-batch hook ended polling")
			return
		}
	}
}

func (c *Consumer) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	c.state = StateReady
	metrics.SetConsumerReceiving(c.opts.QueueName, false)
	c.logger.InfowCtx(context.Background(), "Stopped receiving messages", "queue", c.opts.QueueName)
}

func (c *Consumer) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err
}

func (c *Consumer) processBatch(ctx context.Context, queueURL string, records []models.QueueRecord) BatchResult {
	result := BatchResult{Received: len(records)}
	if len(records) == 0 {
		return result
	}
	metrics.IncMessagesReceived(c.opts.QueueName, len(records))

	// Stop cancels ctx; per-message work runs to completion regardless so that
	// deletes and lock releases are not cut short.
	workCtx := context.WithValue(context.WithoutCancel(ctx), loopKey{}, c)

	for i, rec := range records {
		if ctx.Err() != nil {
			result.Skipped = len(records) - i
			break
		}

		switch c.processMessage(workCtx, queueURL, rec) {
		case outcomeHandled:
			result.Handled++
		case outcomeFailed:
			result.Failed++
		case outcomeContended:
			result.Contended++
		case outcomeUnhandled:
			result.Unhandled++
		case outcomeLockUnavailable:
			result.LockErrors++
		}
	}
	return result
}

func (c *Consumer) processMessage(ctx context.Context, queueURL string, rec models.QueueRecord) outcome {
	msg := c.codec.Decode(rec)

	ctx, span := tracing.StartSpanFromAttributes(ctx, "consumer.handle", msg.RawAttributes,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "aws_sqs"),
			attribute.String("messaging.destination.name", c.opts.QueueName),
			attribute.String("messaging.message.id", msg.ID),
			attribute.String("fanout.event", msg.EventLabel()),
		),
	)
	defer span.End()

	ctx = logging.WithMessageID(ctx, msg.ID)
	ctx = logging.WithEvent(ctx, msg.EventLabel())
	if traceID := tracing.TraceID(ctx); traceID != "" {
		ctx = logging.WithTraceID(ctx, traceID)
	}

	entry, err := c.locks.TryAcquire(ctx, msg.ID)
	if err != nil {
		c.logger.ErrorwCtx(ctx, "Lock store unavailable, leaving message on the queue",
			"attributes", msg.RawAttributes,
			"error", err,
		)
		span.SetStatus(codes.Error, "lock store unavailable")
		return outcomeLockUnavailable
	}
	if entry == nil {
		metrics.IncLockContention(c.opts.QueueName)
		c.logger.WarnwCtx(ctx, "Can not acquire the lock",
			"attributes", msg.RawAttributes,
			"body", msg.Body,
		)
		span.SetAttributes(attribute.Bool("fanout.lock_contended", true))
		return outcomeContended
	}
	defer c.release(ctx, entry)

	h, ok := c.registry.Lookup(msg.Event)
	if !ok {
		metrics.IncMessagesHandled(msg.EventLabel(), constants.StatusNoHandler)
		c.logger.WarnwCtx(ctx, "No handler registered for event",
			"attributes", msg.RawAttributes,
		)
		return outcomeUnhandled
	}

	start := time.Now()
	err = invoke(ctx, h.Handler, msg)
	metrics.ObserveHandlerDuration(msg.EventLabel(), time.Since(start))

	stop := errors.Is(err, ErrStopPolling)
	if stop {
		err = nil
	}

	if err != nil {
		metrics.IncMessagesHandled(msg.EventLabel(), constants.StatusError)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.ErrorwCtx(ctx, "Error while handling message",
			"body", msg.Body,
			"attributes", msg.RawAttributes,
			"error", err,
		)
		return outcomeFailed
	}

	if err := c.queue.Delete(ctx, queueURL, msg.ReceiptHandle); err != nil {
		c.logger.ErrorwCtx(ctx, "Failed to delete handled message", "error", err)
	}
	metrics.IncMessagesHandled(msg.EventLabel(), constants.StatusSuccess)

	if stop {
		c.logger.InfowCtx(ctx, "Handler requested to stop polling")
		c.signalStop()
	}
	return outcomeHandled
}

func (c *Consumer) release(ctx context.Context, entry *lock.Entry) {
	if err := c.locks.Release(ctx, entry); err != nil {
		c.logger.ErrorwCtx(ctx, "Failed to release lock", "key", entry.Key, "error", err)
	}
}

func invoke(ctx context.Context, h handler.Handler, msg *models.InboundMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.RecoverPanic(r)
		}
	}()
	return h.Handle(ctx, msg)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
