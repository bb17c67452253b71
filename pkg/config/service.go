package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServiceConfig is the YAML file read by the restsource and restsink binaries.
type ServiceConfig struct {
	LogLevel    string        `yaml:"log_level"`
	HTTPPort    string        `yaml:"http_port"`
	ServiceName string        `yaml:"service_name"`
	Broker      BrokerConfig  `yaml:"broker"`
	Redis       *RedisConfig  `yaml:"redis,omitempty"`
	Shutdown    time.Duration `yaml:"shutdown_timeout"`
	// Connector holds the task properties, exactly as a host would pass them to Start.
	Connector Properties `yaml:"connector"`
}

// BrokerConfig selects and configures the broker side of the bridge.
type BrokerConfig struct {
	Type string `yaml:"type" validate:"oneof=kafka pubsub"`

	// Kafka
	Brokers  []string `yaml:"brokers" validate:"required_if=Type kafka,dive,hostname_port"`
	GroupID  string   `yaml:"group_id"`
	Topics   []string `yaml:"topics"`
	ClientID string   `yaml:"client_id"`

	// Pub/Sub
	ProjectID       string `yaml:"project_id" validate:"required_if=Type pubsub"`
	SubscriptionID  string `yaml:"subscription_id"`
	CredentialsFile string `yaml:"credentials_file"`

	// Sink batching and dead lettering.
	BatchSize       int           `yaml:"batch_size"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
	MaxPayloadBytes int           `yaml:"max_payload_bytes"`
	DeadLetterTopic string        `yaml:"dead_letter_topic"`
	// Retryable delivery failures are retried in-process before the message is nacked.
	MaxRetries   int           `yaml:"max_retries" validate:"gte=0"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// RedisConfig enables the Redis backed de-duplication cache.
type RedisConfig struct {
	Addr     string        `yaml:"addr" validate:"required"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// LoadServiceFile reads a YAML service file, applies defaults and environment
// overrides, and validates the broker section.
func LoadServiceFile(path string) (*ServiceConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ParseService(b)
}

// ParseService is LoadServiceFile for an in-memory document.
func ParseService(data []byte) (*ServiceConfig, error) {
	var cfg ServiceConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	if err := Validate(&cfg.Broker); err != nil {
		return nil, err
	}
	if cfg.Redis != nil {
		if err := Validate(cfg.Redis); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

func (c *ServiceConfig) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.HTTPPort == "" {
		c.HTTPPort = ":8080"
	}
	if c.Shutdown <= 0 {
		c.Shutdown = 10 * time.Second
	}
	if c.Broker.Type == "" {
		c.Broker.Type = "kafka"
	}
	if c.Broker.BatchSize <= 0 {
		c.Broker.BatchSize = 50
	}
	if c.Broker.FlushInterval <= 0 {
		c.Broker.FlushInterval = 500 * time.Millisecond
	}
	if c.Broker.MaxPayloadBytes <= 0 {
		c.Broker.MaxPayloadBytes = 10 << 20
	}
	if c.Broker.RetryBackoff <= 0 {
		c.Broker.RetryBackoff = 200 * time.Millisecond
	}
	if c.Redis != nil && c.Redis.TTL <= 0 {
		c.Redis.TTL = 24 * time.Hour
	}
	if c.Connector == nil {
		c.Connector = Properties{}
	}
}

// The following allows overriding file values via environment variables.
func (c *ServiceConfig) applyEnvOverrides() {
	if v := os.Getenv("RESTBRIDGE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("RESTBRIDGE_HTTP_PORT"); v != "" {
		c.HTTPPort = v
	}
	if v := os.Getenv("RESTBRIDGE_KAFKA_BROKERS"); v != "" {
		c.Broker.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("RESTBRIDGE_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Broker.BatchSize = n
		}
	}
}
