// Package codec converts envelopes to and from the wire form used on the
// topic and queue: a JSON body plus a flat string attribute map.
package codec

import (
	"encoding/json"
	"fmt"
	"strconv"

	"fanout/pkg/models"
)

const DefaultVersionKey = "fanout_version"

type Codec struct {
	eventKey   string
	versionKey string
}

func New(eventKey string) *Codec {
	return &Codec{eventKey: eventKey, versionKey: DefaultVersionKey}
}

func (c *Codec) EventKey() string {
	return c.eventKey
}

func (c *Codec) VersionKey() string {
	return c.versionKey
}

// Encode returns the wire body and attributes for env. The event and version
// attributes override any caller-supplied attribute with the same name.
func (c *Codec) Encode(env models.Envelope) (string, map[string]string, error) {
	body, err := EncodeBody(env.Body)
	if err != nil {
		return "", nil, err
	}

	version := env.Version
	if version == 0 {
		version = models.DefaultVersion
	}

	attrs := make(map[string]string, len(env.Attributes)+2)
	for k, v := range env.Attributes {
		attrs[k] = v
	}
	if env.Event != models.DefaultEvent {
		attrs[c.eventKey] = env.Event
	}
	attrs[c.versionKey] = strconv.Itoa(version)

	return body, attrs, nil
}

// EncodeBody marshals v as JSON. Raw JSON passes through untouched.
func EncodeBody(v interface{}) (string, error) {
	switch b := v.(type) {
	case json.RawMessage:
		return string(b), nil
	case nil:
		return "null", nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal message body: %w", err)
	}
	return string(raw), nil
}

// Decode never fails: a missing event attribute yields models.DefaultEvent and
// a body that is not JSON is kept as a string.
func (c *Codec) Decode(rec models.QueueRecord) *models.InboundMessage {
	attrs := rec.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}

	return &models.InboundMessage{
		ID:            rec.MessageID,
		ReceiptHandle: rec.ReceiptHandle,
		RawAttributes: attrs,
		Event:         attrs[c.eventKey],
		Body:          DecodeBody(rec.Body),
		RawBody:       rec.Body,
		ReceiveCount:  rec.ReceiveCount,
	}
}

func DecodeBody(raw string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

// Version reads the version attribute of a decoded message, 0 when absent or malformed.
func (c *Codec) Version(msg *models.InboundMessage) int {
	v, err := strconv.Atoi(msg.RawAttributes[c.versionKey])
	if err != nil {
		return 0
	}
	return v
}
