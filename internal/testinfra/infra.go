// Package testinfra starts the containers used by integration tests.
package testinfra

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go/modules/localstack"
	redismodule "github.com/testcontainers/testcontainers-go/modules/redis"
)

const (
	LocalstackRegion    = "us-east-1"
	LocalstackAccountID = "000000000000"
	localstackKey       = "test"
)

type AWS struct {
	Endpoint string
	Region   string
	Config   aws.Config
	SNS      *sns.Client
	SQS      *sqs.Client
}

// SkipShort skips integration tests under -short.
func SkipShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

func disableReaper() {
	if os.Getenv("TESTCONTAINERS_RYUK_DISABLED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	}
}

func SetupRedis(t *testing.T) *redisclient.Client {
	t.Helper()
	SkipShort(t)
	disableReaper()

	ctx := context.Background()

	container, err := redismodule.Run(ctx, "redis:8.4.0-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		container.Terminate(ctx)
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis uri: %v", err)
	}

	opt, err := redisclient.ParseURL(uri)
	if err != nil {
		t.Fatalf("failed to parse redis URL: %v", err)
	}

	client := redisclient.NewClient(opt)

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.Ping(ctxWithTimeout).Err(); err != nil {
		client.Close()
		t.Fatalf("failed to ping redis: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
	})
	return client
}

func SetupLocalstack(t *testing.T) *AWS {
	t.Helper()
	SkipShort(t)
	disableReaper()

	ctx := context.Background()

	container, err := localstack.Run(ctx, "localstack/localstack:3.8")
	if err != nil {
		t.Fatalf("failed to start localstack container: %v", err)
	}
	t.Cleanup(func() {
		container.Terminate(ctx)
	})

	endpoint, err := container.PortEndpoint(ctx, "4566/tcp", "http")
	if err != nil {
		t.Fatalf("failed to get localstack endpoint: %v", err)
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(LocalstackRegion),
		awsconfig.WithCredentialsProvider(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: localstackKey, SecretAccessKey: localstackKey}, nil
		})),
	)
	if err != nil {
		t.Fatalf("failed to load aws config: %v", err)
	}
	cfg.BaseEndpoint = aws.String(endpoint)

	return &AWS{
		Endpoint: endpoint,
		Region:   LocalstackRegion,
		Config:   cfg,
		SNS:      sns.NewFromConfig(cfg),
		SQS:      sqs.NewFromConfig(cfg),
	}
}

func (a *AWS) CreateQueue(t *testing.T, name string) string {
	t.Helper()
	out, err := a.SQS.CreateQueue(context.Background(), &sqs.CreateQueueInput{QueueName: aws.String(name)})
	if err != nil {
		t.Fatalf("failed to create queue %s: %v", name, err)
	}
	return aws.ToString(out.QueueUrl)
}

func (a *AWS) CreateTopic(t *testing.T, name string) string {
	t.Helper()
	out, err := a.SNS.CreateTopic(context.Background(), &sns.CreateTopicInput{Name: aws.String(name)})
	if err != nil {
		t.Fatalf("failed to create topic %s: %v", name, err)
	}
	return aws.ToString(out.TopicArn)
}
