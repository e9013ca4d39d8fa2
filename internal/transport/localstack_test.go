package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fanout/internal/filterpolicy"
	"fanout/internal/testinfra"
	apperrors "fanout/pkg/errors"
)

func TestLocalstack_FilteredFanOut(t *testing.T) {
	infra := testinfra.SetupLocalstack(t)
	ctx := context.Background()

	topicSNS := NewSNS(infra.SNS)
	queueSQS := NewSQS(infra.SQS, nil)

	topicARN, err := topicSNS.CreateTopic(ctx, "fanout-events")
	require.NoError(t, err)

	infra.CreateQueue(t, "fanout-test-billing")
	queueURL, err := queueSQS.ResolveQueueURL(ctx, "fanout-test-billing")
	require.NoError(t, err)

	queueARN, err := queueSQS.QueueARN(ctx, queueURL)
	require.NoError(t, err)
	require.NoError(t, queueSQS.AllowTopic(ctx, queueURL, queueARN, topicARN))

	policy, err := filterpolicy.Translate("fanout_event", []string{"order.*"})
	require.NoError(t, err)
	subARN, err := topicSNS.SubscribeQueue(ctx, topicARN, queueARN, policy)
	require.NoError(t, err)

	found, err := topicSNS.FindSubscription(ctx, topicARN, queueARN)
	require.NoError(t, err)
	assert.Equal(t, subARN, found)

	attached, err := topicSNS.SubscriptionFilterPolicy(ctx, subARN)
	require.NoError(t, err)
	assert.True(t, policy.Equal(attached), "got %s", attached)

	_, err = topicSNS.Publish(ctx, PublishInput(topicARN, `{"n":1}`, map[string]string{"fanout_event": "payment.settled"}))
	require.NoError(t, err)
	published, err := topicSNS.Publish(ctx, PublishInput(topicARN, `{"n":2}`, map[string]string{"fanout_event": "order.created"}))
	require.NoError(t, err)
	assert.NotEmpty(t, published.MessageID)

	deadline := time.Now().Add(20 * time.Second)
	var bodies []string
	for time.Now().Before(deadline) && len(bodies) == 0 {
		records, err := queueSQS.Receive(ctx, queueURL, ReceiveOptions{MaxMessages: 10, WaitTimeSeconds: 2})
		require.NoError(t, err)
		for _, r := range records {
			bodies = append(bodies, r.Body)
			assert.Equal(t, "order.created", r.Attributes["fanout_event"])
			require.NoError(t, queueSQS.Delete(ctx, queueURL, r.ReceiptHandle))
		}
	}
	assert.Equal(t, []string{`{"n":2}`}, bodies)
}

func TestLocalstack_MissingQueue(t *testing.T) {
	infra := testinfra.SetupLocalstack(t)

	_, err := NewSQS(infra.SQS, nil).ResolveQueueURL(context.Background(), "does-not-exist")
	require.Error(t, err)
	assert.True(t, apperrors.IsQueueNotFound(err))
}
