package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fanout/internal/codec"
	"fanout/internal/config"
	"fanout/internal/consumer"
	"fanout/internal/filterpolicy"
	"fanout/internal/handler"
	"fanout/internal/lifecycle"
	"fanout/internal/logger"
	"fanout/internal/producer"
	"fanout/pkg/bootstrap"
	apperrors "fanout/pkg/errors"
	"fanout/pkg/logging"
)

var (
	configFile string
)

const (
	exitFailure       = 1
	exitMisconfigured = 2
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode separates a deployment that can never start (bad config, missing
// queue, drifted filter policy) from a runtime failure worth restarting.
func exitCode(err error) int {
	if apperrors.IsConfiguration(err) || apperrors.IsValidation(err) {
		return exitMisconfigured
	}
	return exitFailure
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "fanout",
		Short:        "Fan-out messaging over SNS and SQS",
		Long:         "Publishes events to a fan-out topic and consumes them from the service's own queue",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (required)")

	rootCmd.AddCommand(
		serveCmd(),
		publishCmd(),
		sendCmd(),
		filterPoliciesCmd(),
		initializationTypeCmd(),
	)
	return rootCmd
}

// setup loads the configuration and builds the logger every command needs.
func setup() (*config.Config, logger.Logger, error) {
	earlyLog := logging.NewEarlyLog()

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
		if configFile == "" {
			earlyLog.Error("Config file is required. Use --config flag or CONFIG_FILE environment variable")
			return nil, nil, apperrors.ErrConfiguration.WithMessage("config file is required")
		}
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		earlyLog.Error("Failed to load config: %v", err)
		return nil, nil, err
	}

	log, err := logger.New(cfg.Logging.Level)
	if err != nil {
		earlyLog.Error("Failed to init logger: %v", err)
		return nil, nil, err
	}
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(cfg.Service.Name)
	}
	return cfg, log, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the configured producer and consumer until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log.InfowCtx(ctx, "Starting fanout", "service", cfg.Service.Name, "environment", cfg.Service.Environment)

			app := NewApp(cfg, log, handler.NewRegistry())
			if err := app.Initialize(ctx); err != nil {
				log.ErrorwCtx(ctx, "Failed to initialize application", "error", err)
				return err
			}

			if err := app.Run(ctx); err != nil {
				log.ErrorwCtx(ctx, "Application error", "error", err)
				return err
			}
			return nil
		},
	}
}

func publishCmd() *cobra.Command {
	var (
		event   string
		message string
		version int
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish one message to the fan-out topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx := cmd.Context()
			base := bootstrap.NewBase(cfg, log)
			if err := base.InitAWS(ctx); err != nil {
				return err
			}

			p, err := producer.New(cfg.Producer.TopicARN, codec.New(cfg.Consumer.EventKey), base.SNS, log)
			if err != nil {
				return err
			}

			env := p.CreateMessage(event, message, producer.WithVersion(version))
			request, err := p.Request(ctx, env)
			if err != nil {
				return err
			}

			receipt, err := p.Publish(ctx, env)
			if err != nil {
				return err
			}

			return printPublish(cmd.OutOrStdout(), event, message, request, receipt)
		},
	}

	cmd.Flags().StringVarP(&event, "event", "e", "", "Event name sent as the event attribute")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Message body")
	cmd.Flags().IntVarP(&version, "version", "v", 1, "Envelope version")
	cmd.MarkFlagRequired("message")
	return cmd
}

func sendCmd() *cobra.Command {
	var (
		event   string
		message string
		delay   int32
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one message straight onto the service's own queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx := cmd.Context()
			base := bootstrap.NewBase(cfg, log)
			if err := base.InitAWS(ctx); err != nil {
				return err
			}

			// Sending never takes locks.
			c := consumer.New(base.SQS, nil, handler.NewRegistry(), codec.New(cfg.Consumer.EventKey), log, cfg.ResolvedQueueName())
			if err := c.Initialize(ctx); err != nil {
				return err
			}

			msg := c.CreateMessage(message).WithDelay(delay)
			if event != "" {
				msg = msg.WithEvent(event)
			}
			id, err := msg.Send(ctx)
			if err != nil {
				return err
			}

			return printSend(cmd.OutOrStdout(), c.QueueName(), id)
		},
	}

	cmd.Flags().StringVarP(&event, "event", "e", "", "Event name sent as the event attribute")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Message body")
	cmd.Flags().Int32VarP(&delay, "delay", "d", 0, "Delivery delay in seconds")
	cmd.MarkFlagRequired("message")
	return cmd
}

func filterPoliciesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "filter-policies",
		Short: "Print the subscription filter policy for the configured filters",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			policy, err := filterpolicy.Translate(cfg.Consumer.EventKey, cfg.Consumer.Filters)
			if err != nil {
				return err
			}
			return printFilterPolicy(cmd.OutOrStdout(), policy)
		},
	}
}

func initializationTypeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "initialization-type",
		Short: "Print the computed initialization type",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			initType, err := lifecycle.ParseInitializationType(cfg.InitializationType)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), initType.String())
			return err
		},
	}
}
