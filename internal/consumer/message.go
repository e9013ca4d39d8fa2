package consumer

import (
	"context"

	apperrors "fanout/pkg/errors"
	"fanout/pkg/models"
	"fanout/pkg/tracing"
)

// QueueMessage is a message sent straight onto the consumer's own queue,
// bypassing the topic.
type QueueMessage struct {
	consumer     *Consumer
	Event        string
	Body         interface{}
	Attributes   map[string]string
	DelaySeconds int32
}

func (c *Consumer) CreateMessage(body interface{}) *QueueMessage {
	return &QueueMessage{consumer: c, Body: body}
}

func (m *QueueMessage) WithEvent(event string) *QueueMessage {
	m.Event = event
	return m
}

func (m *QueueMessage) WithAttribute(key, value string) *QueueMessage {
	if m.Attributes == nil {
		m.Attributes = make(map[string]string)
	}
	m.Attributes[key] = value
	return m
}

func (m *QueueMessage) WithDelay(seconds int32) *QueueMessage {
	m.DelaySeconds = seconds
	return m
}

// Send enqueues the message and returns its queue message id.
func (m *QueueMessage) Send(ctx context.Context) (string, error) {
	c := m.consumer
	queueURL := c.QueueURL()
	if queueURL == "" {
		return "", apperrors.ErrNotInitialized.WithMessage("consumer must be initialized before sending messages")
	}

	body, attrs, err := c.codec.Encode(models.Envelope{
		Event:      m.Event,
		Version:    models.DefaultVersion,
		Body:       m.Body,
		Attributes: m.Attributes,
	})
	if err != nil {
		return "", apperrors.ErrValidation.WithCause(err)
	}
	attrs = tracing.InjectTraceContext(ctx, attrs)

	id, err := c.queue.Send(ctx, queueURL, body, attrs, m.DelaySeconds)
	if err != nil {
		c.logger.ErrorwCtx(ctx, "Failed to send message", "queue", c.opts.QueueName, "error", err)
		return "", err
	}
	return id, nil
}
