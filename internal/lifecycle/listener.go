// Package lifecycle wires producer and consumer into a host application's
// start and stop hooks.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"fanout/internal/codec"
	"fanout/internal/config"
	"fanout/internal/consumer"
	"fanout/internal/filterpolicy"
	"fanout/internal/handler"
	"fanout/internal/lock"
	"fanout/internal/logger"
	"fanout/internal/producer"
	apperrors "fanout/pkg/errors"
	"fanout/pkg/retry"
)

type Subscriptions interface {
	FindSubscription(ctx context.Context, topicARN, endpointARN string) (string, error)
	SubscriptionFilterPolicy(ctx context.Context, subscriptionARN string) (filterpolicy.Policy, error)
}

type QueueInspector interface {
	QueueARN(ctx context.Context, queueURL string) (string, error)
}

// Deps are the collaborators the listener builds components from. Only the
// ones needed by the configured initialization type have to be set.
type Deps struct {
	Config         *config.Config
	Logger         logger.Logger
	Registry       *handler.Registry
	Publisher      producer.Publisher
	Queue          consumer.Queue
	QueueInspector QueueInspector
	Subscriptions  Subscriptions
	Locks          *lock.Manager
	// ConsumerOptions are applied after the options derived from Config.
	ConsumerOptions []consumer.Option
}

type Listener struct {
	deps     Deps
	initType InitializationType
	codec    *codec.Codec
}

func NewListener(deps Deps) (*Listener, error) {
	if deps.Config == nil {
		return nil, apperrors.ErrConfiguration.WithMessage("listener requires a configuration")
	}
	if deps.Logger == nil {
		deps.Logger = logger.NopLogger()
	}
	if deps.Registry == nil {
		deps.Registry = handler.NewRegistry()
	}

	initType, err := ParseInitializationType(deps.Config.InitializationType)
	if err != nil {
		return nil, err
	}

	return &Listener{
		deps:     deps,
		initType: initType,
		codec:    codec.New(deps.Config.Consumer.EventKey),
	}, nil
}

func (l *Listener) InitializationType() InitializationType {
	return l.initType
}

func (l *Listener) Registry() *handler.Registry {
	return l.deps.Registry
}

// FilterPolicy is the subscription filter derived from consumer.filters.
func (l *Listener) FilterPolicy() (filterpolicy.Policy, error) {
	return filterpolicy.Translate(l.deps.Config.Consumer.EventKey, l.deps.Config.Consumer.Filters)
}

// OnStart runs the hooks selected by the initialization type.
func (l *Listener) OnStart(ctx context.Context, host *Host) error {
	l.deps.Logger.InfowCtx(ctx, "Starting messaging", "initialization_type", l.initType.String())

	if l.initType.Has(SNSProducer) {
		if err := l.OnStartProducer(ctx, host); err != nil {
			return err
		}
	}

	switch {
	case l.initType.Has(EventPolling):
		return l.OnStartEventPolling(ctx, host)
	case l.initType.Has(QueuePolling):
		return l.OnStartQueuePolling(ctx, host)
	case l.initType.Has(SQSConsumer):
		_, err := l.OnStartConsumer(ctx, host)
		return err
	}
	return nil
}

func (l *Listener) OnStartProducer(ctx context.Context, host *Host) error {
	if l.deps.Publisher == nil {
		return apperrors.ErrConfiguration.WithMessage("producer requires a publisher")
	}

	p, err := producer.New(l.deps.Config.Producer.TopicARN, l.codec, l.deps.Publisher, l.deps.Logger)
	if err != nil {
		return err
	}

	host.Set(ProducerAttr, p)
	l.deps.Logger.InfowCtx(ctx, "Producer attached", "topic", p.TopicARN())
	return nil
}

// OnStartConsumer builds and initializes the consumer without polling. A
// consumer already attached to host is reused.
func (l *Listener) OnStartConsumer(ctx context.Context, host *Host) (*consumer.Consumer, error) {
	if c, ok := host.Consumer(); ok {
		return c, nil
	}
	if l.deps.Queue == nil || l.deps.Locks == nil {
		return nil, apperrors.ErrConfiguration.WithMessage("consumer requires a queue and a lock manager")
	}

	c := consumer.New(
		l.deps.Queue,
		l.deps.Locks,
		l.deps.Registry,
		l.codec,
		l.deps.Logger,
		l.deps.Config.ResolvedQueueName(),
		l.consumerOptions()...,
	)
	if err := c.Initialize(ctx); err != nil {
		return nil, err
	}

	host.Set(ConsumerAttr, c)
	return c, nil
}

func (l *Listener) OnStartQueuePolling(ctx context.Context, host *Host) error {
	c, err := l.OnStartConsumer(ctx, host)
	if err != nil {
		return err
	}
	return c.Start(ctx)
}

// OnStartEventPolling verifies the subscription filter policy, when enabled,
// before it starts polling.
func (l *Listener) OnStartEventPolling(ctx context.Context, host *Host) error {
	c, err := l.OnStartConsumer(ctx, host)
	if err != nil {
		return err
	}

	if l.deps.Config.Consumer.AssertFilterPolicies {
		if err := l.AssertFilterPolicy(ctx, c.QueueURL()); err != nil {
			return err
		}
	}

	return c.Start(ctx)
}

// AssertFilterPolicy checks that the queue is subscribed to the topic with
// exactly the configured filter policy.
func (l *Listener) AssertFilterPolicy(ctx context.Context, queueURL string) error {
	topicARN := l.deps.Config.Producer.TopicARN
	if topicARN == "" {
		return apperrors.ErrConfiguration.WithMessage("filter policy assertion requires producer.topic_arn")
	}
	if l.deps.Subscriptions == nil || l.deps.QueueInspector == nil {
		return apperrors.ErrConfiguration.WithMessage("filter policy assertion requires subscription access")
	}

	expected, err := l.FilterPolicy()
	if err != nil {
		return err
	}

	queueARN, err := l.deps.QueueInspector.QueueARN(ctx, queueURL)
	if err != nil {
		return err
	}

	subscriptionARN, err := l.deps.Subscriptions.FindSubscription(ctx, topicARN, queueARN)
	if err != nil {
		return err
	}
	if subscriptionARN == "" {
		return apperrors.ErrFilterPolicyDrift.
			WithMessage(fmt.Sprintf("queue %s is not subscribed to %s", queueARN, topicARN))
	}

	actual, err := l.deps.Subscriptions.SubscriptionFilterPolicy(ctx, subscriptionARN)
	if err != nil {
		return err
	}

	if !expected.Equal(actual) {
		return apperrors.ErrFilterPolicyDrift.
			WithDetail("expected", expected.String()).
			WithDetail("actual", actual.String()).
			WithDetail("subscription", subscriptionARN)
	}

	l.deps.Logger.InfowCtx(ctx, "Subscription filter policy verified",
		"subscription", subscriptionARN,
		"policy", expected.String(),
	)
	return nil
}

// OnStop stops polling and closes the lock manager.
func (l *Listener) OnStop(ctx context.Context, host *Host) error {
	var errs []error

	if c, ok := host.Consumer(); ok {
		if err := c.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop consumer: %w", err))
		}
	}

	if l.deps.Locks != nil {
		if err := l.deps.Locks.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close lock manager: %w", err))
		}
	}

	l.deps.Logger.InfowCtx(ctx, "Messaging stopped")
	return errors.Join(errs...)
}

func (l *Listener) consumerOptions() []consumer.Option {
	cc := l.deps.Config.Consumer
	rc := l.deps.Config.Retry

	opts := []consumer.Option{
		consumer.WithMaxMessages(cc.MaxMessages),
		consumer.WithWaitTime(cc.WaitTimeSeconds),
		consumer.WithVisibilityTimeout(cc.VisibilityTimeoutSeconds),
		consumer.WithPollsPerSecond(cc.PollsPerSecond),
	}
	if rc.InitialInterval > 0 {
		opts = append(opts, consumer.WithPollBackoff(retry.Policy{
			InitialInterval: rc.InitialInterval,
			MaxInterval:     rc.MaxInterval,
			Multiplier:      rc.Multiplier,
		}))
	}
	return append(opts, l.deps.ConsumerOptions...)
}
