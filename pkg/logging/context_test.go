package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLogFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetLogFields(ctx))

	ctx = WithMessageID(ctx, "m-1")
	ctx = WithEvent(ctx, "order.created")
	ctx = WithServiceName(ctx, "billing")

	assert.Equal(t, []interface{}{
		"message_id", "m-1",
		"event", "order.created",
		"service_name", "billing",
	}, GetLogFields(ctx))
}

func TestContextKeysDoNotCollideWithPlainStrings(t *testing.T) {
	ctx := context.WithValue(context.Background(), "message_id", "plain") //nolint:staticcheck
	assert.Equal(t, "", GetMessageID(ctx))
}
