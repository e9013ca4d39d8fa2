package config

import (
	"strings"
	"time"
)

type Config struct {
	Service            ServiceConfig
	Logging            LoggingConfig
	Server             ServerConfig
	AWS                AWSConfig `mapstructure:"aws"`
	Producer           ProducerConfig
	Consumer           ConsumerConfig
	Lock               LockConfig
	Database           DatabaseConfig
	CircuitBreaker     CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Retry              RetryConfig
	Tracing            TracingConfig
	InitializationType []string `mapstructure:"initialization_type"`
}

type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

type AWSConfig struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccountID       string `mapstructure:"account_id"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

type ProducerConfig struct {
	TopicARN string `mapstructure:"topic_arn"`
}

type ConsumerConfig struct {
	QueueName                string   `mapstructure:"queue_name"`
	QueueNamePrefix          string   `mapstructure:"queue_name_prefix"`
	EventKey                 string   `mapstructure:"event_key"`
	Filters                  []string `mapstructure:"filters"`
	MaxMessages              int32    `mapstructure:"max_messages"`
	WaitTimeSeconds          int32    `mapstructure:"wait_time_seconds"`
	VisibilityTimeoutSeconds int32    `mapstructure:"visibility_timeout_seconds"`
	PollsPerSecond           float64  `mapstructure:"polls_per_second"`
	AssertFilterPolicies     bool     `mapstructure:"assert_filter_policies"`
}

type LockConfig struct {
	Backend   string        `mapstructure:"backend"` // "redis" or "memory"
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type DatabaseConfig struct {
	Redis RedisConfig
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

// ResolvedQueueName returns consumer.queue_name, or
// "{prefix}-{environment}-{service}" when it is not set.
func (c *Config) ResolvedQueueName() string {
	if c.Consumer.QueueName != "" {
		return c.Consumer.QueueName
	}
	if c.Service.Name == "" {
		return ""
	}

	parts := make([]string, 0, 3)
	for _, p := range []string{c.Consumer.QueueNamePrefix, c.Service.Environment, c.Service.Name} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "-")
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
