package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	apperrors "fanout/pkg/errors"
	"fanout/pkg/models"
)

// SQSAPI is the subset of *sqs.Client used here.
type SQSAPI interface {
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
	SetQueueAttributes(ctx context.Context, params *sqs.SetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.SetQueueAttributesOutput, error)
}

// URLCache maps queue names to queue URLs. Entries are only ever added.
type URLCache struct {
	mu   sync.RWMutex
	urls map[string]string
}

func NewURLCache() *URLCache {
	return &URLCache{urls: make(map[string]string)}
}

func (c *URLCache) Get(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	url, ok := c.urls[name]
	return url, ok
}

func (c *URLCache) Put(name, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.urls[name] = url
}

type ReceiveOptions struct {
	MaxMessages              int32
	WaitTimeSeconds          int32
	VisibilityTimeoutSeconds int32
}

type SQS struct {
	client SQSAPI
	urls   *URLCache
}

func NewSQS(client SQSAPI, cache *URLCache) *SQS {
	if cache == nil {
		cache = NewURLCache()
	}
	return &SQS{client: client, urls: cache}
}

// ResolveQueueURL looks the queue up once per name. A missing queue is a
// fatal configuration error.
func (s *SQS) ResolveQueueURL(ctx context.Context, name string) (string, error) {
	if url, ok := s.urls.Get(name); ok {
		return url, nil
	}

	out, err := s.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(name)})
	if err != nil {
		if isMissingQueue(err) {
			return "", apperrors.ErrQueueNotFound.
				WithMessage(fmt.Sprintf("queue %q does not exist", name)).
				WithDetail("queue", name).
				WithCause(err)
		}
		return "", classify("sqs:GetQueueUrl", err)
	}

	url := aws.ToString(out.QueueUrl)
	s.urls.Put(name, url)
	return url, nil
}

func (s *SQS) Receive(ctx context.Context, queueURL string, opts ReceiveOptions) ([]models.QueueRecord, error) {
	input := &sqs.ReceiveMessageInput{
		QueueUrl:                    aws.String(queueURL),
		MaxNumberOfMessages:         opts.MaxMessages,
		WaitTimeSeconds:             opts.WaitTimeSeconds,
		MessageAttributeNames:       []string{"All"},
		MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{sqstypes.MessageSystemAttributeNameApproximateReceiveCount},
	}
	if opts.VisibilityTimeoutSeconds > 0 {
		input.VisibilityTimeout = opts.VisibilityTimeoutSeconds
	}

	out, err := s.client.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, classify("sqs:ReceiveMessage", err)
	}

	records := make([]models.QueueRecord, 0, len(out.Messages))
	for _, m := range out.Messages {
		records = append(records, toRecord(m))
	}
	return records, nil
}

func (s *SQS) Delete(ctx context.Context, queueURL, receiptHandle string) error {
	_, err := s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	return classify("sqs:DeleteMessage", err)
}

func (s *SQS) Send(ctx context.Context, queueURL, body string, attrs map[string]string, delaySeconds int32) (string, error) {
	out, err := s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(queueURL),
		MessageBody:       aws.String(body),
		MessageAttributes: toSQSAttributes(attrs),
		DelaySeconds:      delaySeconds,
	})
	if err != nil {
		return "", classify("sqs:SendMessage", err)
	}
	return aws.ToString(out.MessageId), nil
}

func (s *SQS) QueueARN(ctx context.Context, queueURL string) (string, error) {
	out, err := s.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(queueURL),
		AttributeNames: []sqstypes.QueueAttributeName{sqstypes.QueueAttributeNameQueueArn},
	})
	if err != nil {
		return "", classify("sqs:GetQueueAttributes", err)
	}
	return out.Attributes[string(sqstypes.QueueAttributeNameQueueArn)], nil
}

type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

type policyStatement struct {
	Sid       string                       `json:"Sid"`
	Effect    string                       `json:"Effect"`
	Principal map[string]string            `json:"Principal"`
	Action    string                       `json:"Action"`
	Resource  string                       `json:"Resource"`
	Condition map[string]map[string]string `json:"Condition"`
}

// TopicPolicy is the queue policy that lets topicARN deliver into queueARN.
func TopicPolicy(queueARN, topicARN string) (string, error) {
	doc := policyDocument{
		Version: "2012-10-17",
		Statement: []policyStatement{{
			Sid:       "AllowTopicDelivery",
			Effect:    "Allow",
			Principal: map[string]string{"Service": "sns.amazonaws.com"},
			Action:    "SQS:SendMessage",
			Resource:  queueARN,
			Condition: map[string]map[string]string{
				"ArnEquals": {"aws:SourceArn": topicARN},
			},
		}},
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal queue policy: %w", err)
	}
	return string(raw), nil
}

// AllowTopic sets the queue policy so that topicARN may deliver into the queue.
func (s *SQS) AllowTopic(ctx context.Context, queueURL, queueARN, topicARN string) error {
	policy, err := TopicPolicy(queueARN, topicARN)
	if err != nil {
		return err
	}

	_, err = s.client.SetQueueAttributes(ctx, &sqs.SetQueueAttributesInput{
		QueueUrl: aws.String(queueURL),
		Attributes: map[string]string{
			string(sqstypes.QueueAttributeNamePolicy): policy,
		},
	})
	return classify("sqs:SetQueueAttributes", err)
}

func toRecord(m sqstypes.Message) models.QueueRecord {
	rec := models.QueueRecord{
		MessageID:     aws.ToString(m.MessageId),
		ReceiptHandle: aws.ToString(m.ReceiptHandle),
		Body:          aws.ToString(m.Body),
		Attributes:    fromSQSAttributes(m.MessageAttributes),
	}

	if n, err := strconv.Atoi(m.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)]); err == nil {
		rec.ReceiveCount = n
	}

	unwrapNotification(&rec)
	return rec
}
