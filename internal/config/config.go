package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/nicolaspannunzio/backend-I/pkg/config"
)

// Config holds all configuration for the cart service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort              int `env:"CART_HTTP_PORT" envDefault:"8080"`
	RequestTimeoutSeconds int `env:"CART_REQUEST_TIMEOUT_SECONDS" envDefault:"30"`

	// JSON file storage
	DataDir  string `env:"CART_DATA_DIR" envDefault:"data"`
	DataFile string `env:"CART_DATA_FILE" envDefault:"carts.json"`

	// Redis cache, disabled when RedisAddr is empty
	RedisAddr       string `env:"REDIS_ADDR" envDefault:""`
	RedisPass       string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB         int    `env:"REDIS_DB" envDefault:"0"`
	CacheTTLSeconds int    `env:"CART_CACHE_TTL_SECONDS" envDefault:"30"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Tracing
	OTelEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTelSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load cart config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// CacheEnabled reports whether the Redis cache should be wired in.
func (c *Config) CacheEnabled() bool {
	return c.RedisAddr != ""
}

// CacheTTL returns the cache entry lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// RequestTimeout returns the per-request handler deadline.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid request timeout: %ds", c.RequestTimeoutSeconds)
	}
	if c.DataDir == "" || c.DataFile == "" {
		return fmt.Errorf("data dir and data file must not be empty")
	}
	if c.CacheEnabled() && c.CacheTTLSeconds <= 0 {
		return fmt.Errorf("invalid cache TTL: %ds", c.CacheTTLSeconds)
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	if c.OTelSampleRate < 0 || c.OTelSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %v", c.OTelSampleRate)
	}
	return nil
}
