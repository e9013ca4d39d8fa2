package codec

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fanout/pkg/models"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	c := New("fanout_event")

	body, attrs, err := c.Encode(models.Envelope{
		Event:   "engineering.division",
		Version: 1,
		Body:    "help.me",
	})
	require.NoError(t, err)
	assert.Equal(t, `"help.me"`, body)
	assert.Equal(t, "engineering.division", attrs["fanout_event"])
	assert.Equal(t, "1", attrs[DefaultVersionKey])

	msg := c.Decode(models.QueueRecord{MessageID: "m-1", ReceiptHandle: "r-1", Body: body, Attributes: attrs})
	assert.Equal(t, "engineering.division", msg.Event)
	assert.Equal(t, "help.me", msg.Body)
	assert.Equal(t, 1, c.Version(msg))
	assert.Equal(t, "r-1", msg.ReceiptHandle)
}

func TestEncode_DefaultsVersion(t *testing.T) {
	c := New("ev")
	_, attrs, err := c.Encode(models.Envelope{Event: "a"})
	require.NoError(t, err)
	assert.Equal(t, "1", attrs[DefaultVersionKey])
}

func TestEncode_DoesNotMutateEnvelopeAttributes(t *testing.T) {
	c := New("ev")
	env := models.Envelope{Event: "a", Attributes: map[string]string{"traceparent": "x"}}

	_, attrs, err := c.Encode(env)
	require.NoError(t, err)
	assert.Equal(t, "x", attrs["traceparent"])
	assert.Len(t, env.Attributes, 1)
}

func TestEncode_StructuredBody(t *testing.T) {
	c := New("ev")
	body, _, err := c.Encode(models.Envelope{Event: "a", Body: map[string]int{"message_number": 3}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"message_number":3}`, body)

	raw, _, err := c.Encode(models.Envelope{Event: "a", Body: json.RawMessage(`{"k":1}`)})
	require.NoError(t, err)
	assert.Equal(t, `{"k":1}`, raw)
}

func TestEncode_UnmarshalableBody(t *testing.T) {
	c := New("ev")
	_, _, err := c.Encode(models.Envelope{Event: "a", Body: math.Inf(1)})
	assert.Error(t, err)
}

func TestDecode_MissingEventIsDefault(t *testing.T) {
	c := New("ev")
	msg := c.Decode(models.QueueRecord{MessageID: "m", Body: `{"a":1}`})

	assert.Equal(t, models.DefaultEvent, msg.Event)
	assert.False(t, msg.HasEvent())
	assert.Equal(t, "default", msg.EventLabel())
	assert.NotNil(t, msg.RawAttributes)
}

func TestDecode_MalformedBodyKeptAsString(t *testing.T) {
	c := New("ev")
	msg := c.Decode(models.QueueRecord{MessageID: "m", Body: "not {json", Attributes: map[string]string{"ev": "x"}})

	assert.Equal(t, "not {json", msg.Body)
	assert.Equal(t, "x", msg.Event)
}

func TestDecode_UnknownEventIsNotAnError(t *testing.T) {
	c := New("ev")
	msg := c.Decode(models.QueueRecord{Body: `1`, Attributes: map[string]string{"ev": "never.registered"}})
	assert.Equal(t, "never.registered", msg.Event)
	assert.Equal(t, float64(1), msg.Body)
}
