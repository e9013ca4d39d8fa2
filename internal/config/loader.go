package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	apperrors "fanout/pkg/errors"
)

const (
	DefaultEventKey        = "fanout_event"
	DefaultQueueNamePrefix = "fanout"
	DefaultLockKeyPrefix   = "fanout:lock:"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		return nil, apperrors.ErrConfiguration.
			WithMessage(fmt.Sprintf("failed to read config file %s", configFile)).
			WithCause(err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, apperrors.ErrConfiguration.WithMessage("failed to unmarshal config").WithCause(err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, apperrors.ErrConfiguration.WithMessage("failed to apply environment overrides").WithCause(err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("service.environment", "dev")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout_seconds", 10)
	viper.SetDefault("server.write_timeout_seconds", 10)

	viper.SetDefault("aws.region", "us-east-1")

	viper.SetDefault("consumer.queue_name_prefix", DefaultQueueNamePrefix)
	viper.SetDefault("consumer.event_key", DefaultEventKey)
	viper.SetDefault("consumer.max_messages", 10)
	viper.SetDefault("consumer.wait_time_seconds", 5)
	viper.SetDefault("consumer.polls_per_second", 0)

	viper.SetDefault("lock.backend", "redis")
	viper.SetDefault("lock.key_prefix", DefaultLockKeyPrefix)
	viper.SetDefault("lock.ttl", "10s")

	viper.SetDefault("database.redis.host", "localhost")
	viper.SetDefault("database.redis.port", 6379)

	viper.SetDefault("retry.max_attempts", 5)
	viper.SetDefault("retry.initial_interval", "500ms")
	viper.SetDefault("retry.max_interval", "30s")
	viper.SetDefault("retry.multiplier", 2.0)
}

func bindEnvVariables() {
	viper.BindEnv("service.name", "SERVICE_NAME")
	viper.BindEnv("service.environment", "SERVICE_ENVIRONMENT")

	viper.BindEnv("aws.region", "AWS_REGION")
	viper.BindEnv("aws.endpoint", "AWS_ENDPOINT_URL")
	viper.BindEnv("aws.account_id", "AWS_ACCOUNT_ID")
	viper.BindEnv("aws.access_key_id", "AWS_ACCESS_KEY_ID")
	viper.BindEnv("aws.secret_access_key", "AWS_SECRET_ACCESS_KEY")

	viper.BindEnv("producer.topic_arn", "PRODUCER_TOPIC_ARN")

	viper.BindEnv("consumer.queue_name", "CONSUMER_QUEUE_NAME")
	viper.BindEnv("consumer.event_key", "CONSUMER_EVENT_KEY")

	viper.BindEnv("lock.backend", "LOCK_BACKEND")
	viper.BindEnv("lock.key_prefix", "LOCK_KEY_PREFIX")
	viper.BindEnv("lock.ttl", "LOCK_TTL")

	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	viper.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout_seconds", "SERVER_READ_TIMEOUT_SECONDS")
	viper.BindEnv("server.write_timeout_seconds", "SERVER_WRITE_TIMEOUT_SECONDS")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func applyEnvOverrides(cfg *Config) error {
	if filters := viper.GetString("CONSUMER_FILTERS"); filters != "" {
		cfg.Consumer.Filters = splitList(filters)
	}

	if initType := viper.GetString("INITIALIZATION_TYPE"); initType != "" {
		cfg.InitializationType = splitList(strings.ReplaceAll(initType, "|", ","))
	}

	if otlpEndpoint := viper.GetString("TRACING_OTLP_ENDPOINT"); otlpEndpoint != "" {
		cfg.Tracing.OTLP.Endpoint = otlpEndpoint
	}

	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = cfg.Service.Name
	}

	return nil
}
