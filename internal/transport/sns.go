package transport

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"fanout/internal/filterpolicy"
)

// SNSAPI is the subset of *sns.Client used here.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	CreateTopic(ctx context.Context, params *sns.CreateTopicInput, optFns ...func(*sns.Options)) (*sns.CreateTopicOutput, error)
	Subscribe(ctx context.Context, params *sns.SubscribeInput, optFns ...func(*sns.Options)) (*sns.SubscribeOutput, error)
	GetSubscriptionAttributes(ctx context.Context, params *sns.GetSubscriptionAttributesInput, optFns ...func(*sns.Options)) (*sns.GetSubscriptionAttributesOutput, error)
	ListSubscriptionsByTopic(ctx context.Context, params *sns.ListSubscriptionsByTopicInput, optFns ...func(*sns.Options)) (*sns.ListSubscriptionsByTopicOutput, error)
}

const (
	subscriptionAttrFilterPolicy = "FilterPolicy"
	subscriptionAttrRawDelivery  = "RawMessageDelivery"
	protocolSQS                  = "sqs"
)

type PublishResult struct {
	MessageID      string
	SequenceNumber string
}

type SNS struct {
	client SNSAPI
}

func NewSNS(client SNSAPI) *SNS {
	return &SNS{client: client}
}

// PublishInput builds the request sent by Publish. Exposed so callers can
// report exactly what goes over the wire.
func PublishInput(topicARN, body string, attrs map[string]string) *sns.PublishInput {
	return &sns.PublishInput{
		TopicArn:          aws.String(topicARN),
		Message:           aws.String(body),
		MessageAttributes: toSNSAttributes(attrs),
	}
}

func (s *SNS) Publish(ctx context.Context, input *sns.PublishInput) (PublishResult, error) {
	out, err := s.client.Publish(ctx, input)
	if err != nil {
		return PublishResult{}, classify("sns:Publish", err)
	}
	return PublishResult{
		MessageID:      aws.ToString(out.MessageId),
		SequenceNumber: aws.ToString(out.SequenceNumber),
	}, nil
}

func (s *SNS) CreateTopic(ctx context.Context, name string) (string, error) {
	out, err := s.client.CreateTopic(ctx, &sns.CreateTopicInput{Name: aws.String(name)})
	if err != nil {
		return "", classify("sns:CreateTopic", err)
	}
	return aws.ToString(out.TopicArn), nil
}

// SubscribeQueue subscribes queueARN to topicARN with raw message delivery so
// message attributes arrive as SQS attributes. An empty policy means no filter.
func (s *SNS) SubscribeQueue(ctx context.Context, topicARN, queueARN string, policy filterpolicy.Policy) (string, error) {
	attrs := map[string]string{subscriptionAttrRawDelivery: "true"}
	if !policy.IsEmpty() {
		attrs[subscriptionAttrFilterPolicy] = policy.String()
	}

	out, err := s.client.Subscribe(ctx, &sns.SubscribeInput{
		TopicArn:              aws.String(topicARN),
		Protocol:              aws.String(protocolSQS),
		Endpoint:              aws.String(queueARN),
		Attributes:            attrs,
		ReturnSubscriptionArn: true,
	})
	if err != nil {
		return "", classify("sns:Subscribe", err)
	}
	return aws.ToString(out.SubscriptionArn), nil
}

// FindSubscription returns the ARN of the subscription of endpointARN on
// topicARN, or "" when there is none.
func (s *SNS) FindSubscription(ctx context.Context, topicARN, endpointARN string) (string, error) {
	var next *string
	for {
		out, err := s.client.ListSubscriptionsByTopic(ctx, &sns.ListSubscriptionsByTopicInput{
			TopicArn:  aws.String(topicARN),
			NextToken: next,
		})
		if err != nil {
			return "", classify("sns:ListSubscriptionsByTopic", err)
		}
		for _, sub := range out.Subscriptions {
			if aws.ToString(sub.Endpoint) == endpointARN {
				return aws.ToString(sub.SubscriptionArn), nil
			}
		}
		if out.NextToken == nil || *out.NextToken == "" {
			return "", nil
		}
		next = out.NextToken
	}
}

// SubscriptionFilterPolicy reads the filter policy currently attached to the
// subscription. A subscription without a policy yields an empty Policy.
func (s *SNS) SubscriptionFilterPolicy(ctx context.Context, subscriptionARN string) (filterpolicy.Policy, error) {
	out, err := s.client.GetSubscriptionAttributes(ctx, &sns.GetSubscriptionAttributesInput{
		SubscriptionArn: aws.String(subscriptionARN),
	})
	if err != nil {
		return filterpolicy.Policy{}, classify("sns:GetSubscriptionAttributes", err)
	}

	policy, err := filterpolicy.Parse(out.Attributes[subscriptionAttrFilterPolicy])
	if err != nil {
		return filterpolicy.Policy{}, fmt.Errorf("subscription %s: %w", subscriptionARN, err)
	}
	return policy, nil
}
