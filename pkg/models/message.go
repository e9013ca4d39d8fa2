package models

import "time"

// DefaultEvent is the event key of a message without an event attribute. SQS
// rejects empty attribute values, so it never collides with a real event name.
const DefaultEvent = ""

// DefaultVersion is the envelope version used when none is given.
const DefaultVersion = 1

// Envelope is the unit published to the fan-out topic. Event travels as a
// message attribute so subscriptions can filter without reading Body.
type Envelope struct {
	Event      string
	Version    int
	Body       interface{}
	Attributes map[string]string
}

// InboundMessage is a queue record after decoding.
type InboundMessage struct {
	ID            string
	ReceiptHandle string
	RawAttributes map[string]string
	Event         string
	// Body holds the decoded JSON value, or the raw text when it is not JSON.
	Body    interface{}
	RawBody string
	// ReceiveCount is the transport's approximate delivery count, 0 when unknown.
	ReceiveCount int
}

func (m *InboundMessage) HasEvent() bool {
	return m.Event != DefaultEvent
}

// EventLabel is Event, or "default" when the message carries none.
func (m *InboundMessage) EventLabel() string {
	if m.HasEvent() {
		return m.Event
	}
	return "default"
}

// DeliveryReceipt is returned by a successful publish.
type DeliveryReceipt struct {
	MessageID      string
	SequenceNumber string
	PayloadLength  int
	PublishedAt    time.Time
}

// QueueRecord is a raw message as returned by the queue transport.
type QueueRecord struct {
	MessageID     string
	ReceiptHandle string
	Body          string
	Attributes    map[string]string
	ReceiveCount  int
}
