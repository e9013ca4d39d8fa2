// Package producer publishes envelopes to the fan-out topic.
package producer

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fanout/internal/codec"
	"fanout/internal/constants"
	"fanout/internal/logger"
	"fanout/internal/transport"
	apperrors "fanout/pkg/errors"
	"fanout/pkg/logging"
	"fanout/pkg/metrics"
	"fanout/pkg/models"
	"fanout/pkg/tracing"
)

type Publisher interface {
	Publish(ctx context.Context, input *sns.PublishInput) (transport.PublishResult, error)
}

type Producer struct {
	topicARN  string
	codec     *codec.Codec
	publisher Publisher
	logger    logger.Logger
}

func New(topicARN string, c *codec.Codec, publisher Publisher, log logger.Logger) (*Producer, error) {
	if topicARN == "" {
		return nil, apperrors.ErrConfiguration.WithMessage("producer topic ARN is not configured")
	}
	return &Producer{
		topicARN:  topicARN,
		codec:     c,
		publisher: publisher,
		logger:    log,
	}, nil
}

func (p *Producer) TopicARN() string {
	return p.topicARN
}

type MessageOption func(*models.Envelope)

func WithVersion(version int) MessageOption {
	return func(e *models.Envelope) {
		e.Version = version
	}
}

func WithAttribute(key, value string) MessageOption {
	return func(e *models.Envelope) {
		if e.Attributes == nil {
			e.Attributes = make(map[string]string)
		}
		e.Attributes[key] = value
	}
}

// CreateMessage builds an envelope for event. An empty event publishes
// without an event attribute.
func (p *Producer) CreateMessage(event string, body interface{}, opts ...MessageOption) models.Envelope {
	env := models.Envelope{
		Event:   event,
		Version: models.DefaultVersion,
		Body:    body,
	}
	for _, opt := range opts {
		opt(&env)
	}
	return env
}

// Request encodes env into the SNS request Publish would send, including the
// trace context of ctx.
func (p *Producer) Request(ctx context.Context, env models.Envelope) (*sns.PublishInput, error) {
	body, attrs, err := p.codec.Encode(env)
	if err != nil {
		return nil, apperrors.ErrValidation.WithCause(err)
	}
	attrs = tracing.InjectTraceContext(ctx, attrs)
	return transport.PublishInput(p.topicARN, body, attrs), nil
}

// Publish sends env once. Failures are returned to the caller as-is; there is
// no retry.
func (p *Producer) Publish(ctx context.Context, env models.Envelope) (models.DeliveryReceipt, error) {
	ctx, span := tracing.GetTracer("fanout").Start(ctx, "producer.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "aws_sns"),
			attribute.String("messaging.destination.name", p.topicARN),
			attribute.String("fanout.event", env.Event),
		),
	)
	defer span.End()

	if env.Event != models.DefaultEvent {
		ctx = logging.WithEvent(ctx, env.Event)
	}

	input, err := p.Request(ctx, env)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return models.DeliveryReceipt{}, err
	}
	payloadLength := len(aws.ToString(input.Message))

	result, err := p.publisher.Publish(ctx, input)
	if err != nil {
		metrics.IncMessagesPublished(p.topicARN, constants.StatusError)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.ErrorwCtx(ctx, "Failed to publish message",
			"topic", p.topicARN,
			"error", err,
		)
		return models.DeliveryReceipt{}, err
	}

	metrics.IncMessagesPublished(p.topicARN, constants.StatusSuccess)
	metrics.ObservePublishPayload(payloadLength)
	span.SetAttributes(attribute.String("messaging.message.id", result.MessageID))

	p.logger.DebugwCtx(ctx, "Message published",
		"topic", p.topicARN,
		"message_id", result.MessageID,
		"payload_length", payloadLength,
	)

	return models.DeliveryReceipt{
		MessageID:      result.MessageID,
		SequenceNumber: result.SequenceNumber,
		PayloadLength:  payloadLength,
		PublishedAt:    time.Now(),
	}, nil
}
