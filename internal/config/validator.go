package config

import (
	"fmt"
	"strings"

	"fanout/internal/constants"
	"fanout/internal/filterpolicy"
	apperrors "fanout/pkg/errors"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

var knownInitTypes = map[string]bool{
	constants.InitSNSProducer:  true,
	constants.InitSQSConsumer:  true,
	constants.InitEventPolling: true,
	constants.InitQueuePolling: true,
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateInitializationType(cfg.InitializationType); err != nil {
		errors = append(errors, err)
	}

	if err := validateProducer(cfg); err != nil {
		errors = append(errors, err)
	}

	if err := validateConsumer(cfg); err != nil {
		errors = append(errors, err)
	}

	if err := validateLock(cfg.Lock, cfg.Database.Redis); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return apperrors.ErrValidation.WithMessage(fmt.Sprintf("configuration validation failed: %v", errors))
	}

	return nil
}

func HasInitType(cfg *Config, name string) bool {
	for _, t := range cfg.InitializationType {
		if strings.EqualFold(strings.TrimSpace(t), name) {
			return true
		}
	}
	return false
}

func consumes(cfg *Config) bool {
	return HasInitType(cfg, constants.InitSQSConsumer) ||
		HasInitType(cfg, constants.InitQueuePolling) ||
		HasInitType(cfg, constants.InitEventPolling)
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateInitializationType(types []string) error {
	for i, t := range types {
		if !knownInitTypes[strings.ToUpper(strings.TrimSpace(t))] {
			return &ValidationError{
				Field:   fmt.Sprintf("initialization_type[%d]", i),
				Message: fmt.Sprintf("unknown initialization type: %s (valid: SNS_PRODUCER, SQS_CONSUMER, EVENT_POLLING, QUEUE_POLLING)", t),
			}
		}
	}
	return nil
}

func validateProducer(cfg *Config) error {
	if HasInitType(cfg, constants.InitSNSProducer) && cfg.Producer.TopicARN == "" {
		return &ValidationError{
			Field:   "producer.topic_arn",
			Message: "topic ARN is required for SNS_PRODUCER",
		}
	}
	return nil
}

func validateConsumer(cfg *Config) error {
	c := cfg.Consumer

	if consumes(cfg) && cfg.ResolvedQueueName() == "" {
		return &ValidationError{
			Field:   "consumer.queue_name",
			Message: "queue name is required (set consumer.queue_name or service.name)",
		}
	}

	if c.EventKey == "" {
		return &ValidationError{
			Field:   "consumer.event_key",
			Message: "event key is required",
		}
	}

	for i, pattern := range c.Filters {
		if err := filterpolicy.ValidatePattern(pattern); err != nil {
			return &ValidationError{
				Field:   fmt.Sprintf("consumer.filters[%d]", i),
				Message: err.Error(),
			}
		}
	}

	if c.MaxMessages < 1 || c.MaxMessages > constants.MaxReceiveBatch {
		return &ValidationError{
			Field:   "consumer.max_messages",
			Message: fmt.Sprintf("max_messages must be between 1 and %d, got %d", constants.MaxReceiveBatch, c.MaxMessages),
		}
	}

	if c.WaitTimeSeconds < 0 || c.WaitTimeSeconds > constants.MaxWaitSeconds {
		return &ValidationError{
			Field:   "consumer.wait_time_seconds",
			Message: fmt.Sprintf("wait_time_seconds must be between 0 and %d, got %d", constants.MaxWaitSeconds, c.WaitTimeSeconds),
		}
	}

	if c.VisibilityTimeoutSeconds < 0 {
		return &ValidationError{
			Field:   "consumer.visibility_timeout_seconds",
			Message: "visibility timeout must be non-negative",
		}
	}

	if c.PollsPerSecond < 0 {
		return &ValidationError{
			Field:   "consumer.polls_per_second",
			Message: "polls_per_second must be non-negative",
		}
	}

	return nil
}

func validateLock(cfg LockConfig, redis RedisConfig) error {
	if cfg.TTL <= 0 {
		return &ValidationError{
			Field:   "lock.ttl",
			Message: "lock TTL must be positive",
		}
	}

	switch strings.ToLower(cfg.Backend) {
	case constants.LockBackendRedis:
		return validateRedis(redis)
	case constants.LockBackendMemory:
		return nil
	default:
		return &ValidationError{
			Field:   "lock.backend",
			Message: fmt.Sprintf("unknown lock backend: %s (supported: redis, memory)", cfg.Backend),
		}
	}
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.redis.host",
			Message: "Redis host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}
