package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"fanout/internal/config"
	"fanout/internal/logger"
	"fanout/internal/transport"
)

// Base holds what every command needs: configuration, logger and the AWS
// messaging clients.
type Base struct {
	Config    *config.Config
	Logger    logger.Logger
	AWS       aws.Config
	SNS       *transport.SNS
	SQS       *transport.SQS
	SQSClient *sqs.Client
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

// InitAWS builds the SNS and SQS adapters. They share one queue URL cache.
func (b *Base) InitAWS(ctx context.Context) error {
	awsCfg, err := transport.NewAWSConfig(ctx, b.Config.AWS, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create aws config: %w", err)
	}

	b.AWS = awsCfg
	b.SQSClient = transport.NewSQSClient(awsCfg)
	b.SNS = transport.NewSNS(transport.NewSNSClient(awsCfg))
	b.SQS = transport.NewSQS(b.SQSClient, transport.NewURLCache())
	return nil
}

func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.InfowCtx(ctx, "Shutting down application...")

	var errs []error

	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	b.Logger.InfowCtx(ctx, "Application exited successfully")
	return nil
}
