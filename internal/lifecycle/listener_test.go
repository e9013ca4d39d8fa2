package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fanout/internal/config"
	"fanout/internal/filterpolicy"
	"fanout/internal/lock"
	"fanout/internal/logger"
	"fanout/internal/transport"
	apperrors "fanout/pkg/errors"
	"fanout/pkg/models"
)

const testTopic = "arn:aws:sns:us-east-1:000000000000:orders"

type idleQueue struct {
	mu       sync.Mutex
	receives int
}

func (q *idleQueue) ResolveQueueURL(_ context.Context, name string) (string, error) {
	return "memory://" + name, nil
}

func (q *idleQueue) Receive(ctx context.Context, _ string, _ transport.ReceiveOptions) ([]models.QueueRecord, error) {
	q.mu.Lock()
	q.receives++
	q.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (q *idleQueue) Delete(context.Context, string, string) error { return nil }

func (q *idleQueue) Send(context.Context, string, string, map[string]string, int32) (string, error) {
	return "sent", nil
}

func (q *idleQueue) QueueARN(_ context.Context, queueURL string) (string, error) {
	return "arn:aws:sqs:us-east-1:000000000000:" + queueURL[len("memory://"):], nil
}

type stubPublisher struct{}

func (stubPublisher) Publish(context.Context, *sns.PublishInput) (transport.PublishResult, error) {
	return transport.PublishResult{MessageID: "m-1"}, nil
}

type stubSubscriptions struct {
	subscriptionARN string
	policy          filterpolicy.Policy
	endpoint        string
}

func (s *stubSubscriptions) FindSubscription(_ context.Context, _, endpointARN string) (string, error) {
	s.endpoint = endpointARN
	return s.subscriptionARN, nil
}

func (s *stubSubscriptions) SubscriptionFilterPolicy(context.Context, string) (filterpolicy.Policy, error) {
	return s.policy, nil
}

func testConfig(initTypes ...string) *config.Config {
	return &config.Config{
		Service:  config.ServiceConfig{Name: "billing", Environment: "test"},
		Producer: config.ProducerConfig{TopicARN: testTopic},
		Consumer: config.ConsumerConfig{
			QueueNamePrefix: config.DefaultQueueNamePrefix,
			EventKey:        config.DefaultEventKey,
			Filters:         []string{"order.created", "user.*"},
			MaxMessages:     10,
			WaitTimeSeconds: 1,
		},
		InitializationType: initTypes,
	}
}

func newTestListener(t *testing.T, cfg *config.Config, subs *stubSubscriptions) (*Listener, *idleQueue) {
	t.Helper()
	queue := &idleQueue{}
	log := logger.NopLogger()
	l, err := NewListener(Deps{
		Config:         cfg,
		Logger:         log,
		Publisher:      stubPublisher{},
		Queue:          queue,
		QueueInspector: queue,
		Subscriptions:  subs,
		Locks:          lock.NewManager(lock.NewMemoryStore(), "", time.Minute, log),
	})
	require.NoError(t, err)
	return l, queue
}

func TestNewListener_RejectsUnknownInitType(t *testing.T) {
	_, err := NewListener(Deps{Config: testConfig("SNS_PRODUCER|NOPE")})
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestListener_ProducerOnly(t *testing.T) {
	l, queue := newTestListener(t, testConfig("SNS_PRODUCER"), nil)
	host := NewHost()
	ctx := context.Background()

	require.NoError(t, l.OnStart(ctx, host))

	p, ok := host.Producer()
	require.True(t, ok)
	assert.Equal(t, testTopic, p.TopicARN())

	_, ok = host.Consumer()
	assert.False(t, ok)
	assert.Equal(t, 0, queue.receives)

	require.NoError(t, l.OnStop(ctx, host))
}

func TestListener_ProducerWithoutTopic(t *testing.T) {
	cfg := testConfig("SNS_PRODUCER")
	cfg.Producer.TopicARN = ""
	l, _ := newTestListener(t, cfg, nil)

	err := l.OnStart(context.Background(), NewHost())
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestListener_ConsumerWithoutPolling(t *testing.T) {
	l, _ := newTestListener(t, testConfig("SQS_CONSUMER"), nil)
	host := NewHost()

	require.NoError(t, l.OnStart(context.Background(), host))

	c, ok := host.Consumer()
	require.True(t, ok)
	assert.Equal(t, "fanout-test-billing", c.QueueName())
	assert.Equal(t, "memory://fanout-test-billing", c.QueueURL())
	assert.False(t, c.IsReceiving())
}

func TestListener_QueuePollingStartsAndStops(t *testing.T) {
	l, _ := newTestListener(t, testConfig("SNS_PRODUCER|QUEUE_POLLING"), nil)
	host := NewHost()
	ctx := context.Background()

	require.NoError(t, l.OnStart(ctx, host))

	c, ok := host.Consumer()
	require.True(t, ok)
	assert.True(t, c.IsReceiving())
	assert.Equal(t, []string{ConsumerAttr, ProducerAttr}, host.Names())

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, l.OnStop(stopCtx, host))
	assert.False(t, c.IsReceiving())
}

func TestListener_OnStartConsumerReusesAttached(t *testing.T) {
	l, _ := newTestListener(t, testConfig("SQS_CONSUMER"), nil)
	host := NewHost()
	ctx := context.Background()

	first, err := l.OnStartConsumer(ctx, host)
	require.NoError(t, err)
	second, err := l.OnStartConsumer(ctx, host)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestListener_EventPollingAssertsFilterPolicy(t *testing.T) {
	cfg := testConfig("EVENT_POLLING")
	cfg.Consumer.AssertFilterPolicies = true

	expected, err := filterpolicy.Translate(cfg.Consumer.EventKey, cfg.Consumer.Filters)
	require.NoError(t, err)

	subs := &stubSubscriptions{subscriptionARN: testTopic + ":sub-1", policy: expected}
	l, _ := newTestListener(t, cfg, subs)
	host := NewHost()
	ctx := context.Background()

	require.NoError(t, l.OnStart(ctx, host))
	assert.Equal(t, "arn:aws:sqs:us-east-1:000000000000:fanout-test-billing", subs.endpoint)

	c, _ := host.Consumer()
	assert.True(t, c.IsReceiving())

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, l.OnStop(stopCtx, host))
}

func TestListener_EventPollingRejectsDrift(t *testing.T) {
	cfg := testConfig("EVENT_POLLING")
	cfg.Consumer.AssertFilterPolicies = true

	stale, err := filterpolicy.Translate(cfg.Consumer.EventKey, []string{"order.created"})
	require.NoError(t, err)

	l, _ := newTestListener(t, cfg, &stubSubscriptions{subscriptionARN: "sub", policy: stale})
	host := NewHost()

	err = l.OnStart(context.Background(), host)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrFilterPolicyDrift)
	assert.True(t, apperrors.IsFatal(err))

	c, _ := host.Consumer()
	assert.False(t, c.IsReceiving())
}

func TestListener_EventPollingRequiresSubscription(t *testing.T) {
	cfg := testConfig("EVENT_POLLING")
	cfg.Consumer.AssertFilterPolicies = true

	l, _ := newTestListener(t, cfg, &stubSubscriptions{})

	err := l.OnStart(context.Background(), NewHost())
	assert.ErrorIs(t, err, apperrors.ErrFilterPolicyDrift)
}

func TestListener_EventPollingWithoutAssertion(t *testing.T) {
	l, _ := newTestListener(t, testConfig("EVENT_POLLING"), nil)
	host := NewHost()
	ctx := context.Background()

	require.NoError(t, l.OnStart(ctx, host))

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, l.OnStop(stopCtx, host))
}

func TestListener_FilterPolicy(t *testing.T) {
	l, _ := newTestListener(t, testConfig(), nil)

	policy, err := l.FilterPolicy()
	require.NoError(t, err)
	assert.JSONEq(t, `{"fanout_event":["order.created",{"prefix":"user."}]}`, policy.String())
}

func TestHost_TypedAccessors(t *testing.T) {
	host := NewHost()
	host.Set(ProducerAttr, "not a producer")

	_, ok := host.Producer()
	assert.False(t, ok)

	v, ok := host.Get(ProducerAttr)
	require.True(t, ok)
	assert.Equal(t, "not a producer", v)

	_, ok = host.Consumer()
	assert.False(t, ok)
}
