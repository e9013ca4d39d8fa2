// Package transport adapts SNS and SQS to the narrow capabilities the
// producer and consumer need.
package transport

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"fanout/internal/config"
	"fanout/internal/logger"
)

// AWSDefaultConfigLoader is replaced in tests.
var AWSDefaultConfigLoader = awsconfig.LoadDefaultConfig

const (
	localstackAccountID = "000000000000"
	awsAccountIDLength  = 12
)

func NewAWSConfig(ctx context.Context, conf config.AWSConfig, log logger.Logger) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if conf.Region != "" {
		opts = append(opts, awsconfig.WithRegion(conf.Region))
	}
	if conf.AccessKeyID != "" && conf.SecretAccessKey != "" {
		log.DebugwCtx(ctx, "Using static AWS credentials from config")
		opts = append(opts, awsconfig.WithCredentialsProvider(staticCredentialsProvider(conf.AccessKeyID, conf.SecretAccessKey)))
	}

	cfg, err := AWSDefaultConfigLoader(ctx, opts...)
	if err != nil {
		log.ErrorwCtx(ctx, "Failed to load AWS default config", "region", conf.Region, "error", err)
		return aws.Config{}, fmt.Errorf("failed to load aws config: %w", err)
	}
	if conf.Region != "" {
		cfg.Region = conf.Region
	}

	if conf.Endpoint != "" {
		endpoint, err := url.Parse(conf.Endpoint)
		if err != nil {
			return aws.Config{}, fmt.Errorf("failed to parse AWS endpoint: %w", err)
		}
		cfg.BaseEndpoint = aws.String(endpoint.String())
	}

	log.InfowCtx(ctx, "Created AWS config",
		"region", cfg.Region,
		"custom_endpoint", hasCustomEndpoint(cfg),
	)

	return cfg, nil
}

func NewSNSClient(cfg aws.Config) *sns.Client {
	return sns.NewFromConfig(cfg)
}

func NewSQSClient(cfg aws.Config) *sqs.Client {
	return sqs.NewFromConfig(cfg)
}

// AccountID returns the configured account, falling back to the LocalStack
// account when a custom endpoint is in use.
func AccountID(conf config.AWSConfig) string {
	accountID := strings.Trim(conf.AccountID, "\"' ")
	if conf.Endpoint != "" && len(accountID) != awsAccountIDLength {
		return localstackAccountID
	}
	return accountID
}

// TopicARN builds the ARN of a topic in the configured account and region.
func TopicARN(conf config.AWSConfig, topicName string) string {
	return fmt.Sprintf("arn:aws:sns:%s:%s:%s", conf.Region, AccountID(conf), topicName)
}

func hasCustomEndpoint(cfg aws.Config) bool {
	return cfg.BaseEndpoint != nil && *cfg.BaseEndpoint != ""
}

func staticCredentialsProvider(accessKeyID, secretAccessKey string) aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     accessKeyID,
			SecretAccessKey: secretAccessKey,
		}, nil
	})
}
