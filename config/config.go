package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Observ   ObservabilityConfig
	Business BusinessConfig
}

type ServerConfig struct {
	Port     string `envconfig:"PORT" default:"8080"`
	Env      string `envconfig:"ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL"`
}

// DatabaseConfig selects the store. An empty URL runs on the seeded
// in-memory store.
type DatabaseConfig struct {
	URL          string `envconfig:"DATABASE_URL"`
	MaxOpenConns int    `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	AutoMigrate  bool   `envconfig:"DB_AUTO_MIGRATE" default:"true"`
}

// RedisConfig configures the stock mirror; an empty Addr disables it
type RedisConfig struct {
	Addr                  string `envconfig:"REDIS_ADDR"`
	Password              string `envconfig:"REDIS_PASSWORD"`
	DB                    int    `envconfig:"REDIS_DB" default:"0"`
	BreakerTimeoutSeconds int    `envconfig:"REDIS_BREAKER_TIMEOUT_SECONDS" default:"30"`
}

// KafkaConfig configures sale events; no brokers disables them
type KafkaConfig struct {
	Brokers       []string `envconfig:"KAFKA_BROKERS"`
	TopicSale     string   `envconfig:"KAFKA_TOPIC_SALE_EVENTS" default:"sale-events"`
	ConsumerGroup string   `envconfig:"KAFKA_CONSUMER_GROUP" default:"optical-pos-inventory"`
}

type ObservabilityConfig struct {
	JaegerEndpoint string `envconfig:"JAEGER_ENDPOINT"`
}

type BusinessConfig struct {
	TaxRate                decimal.Decimal `envconfig:"TAX_RATE" default:"0.08"`
	HoldTTLSeconds         int             `envconfig:"HOLD_TTL_SECONDS" default:"900"`
	HoldSweepSeconds       int             `envconfig:"HOLD_SWEEP_SECONDS" default:"30"`
	SessionIdleTTLSeconds  int             `envconfig:"SESSION_IDLE_TTL_SECONDS" default:"3600"`
	CheckoutTimeoutSeconds int             `envconfig:"CHECKOUT_TIMEOUT_SECONDS" default:"10"`
}

func (b BusinessConfig) HoldTTL() time.Duration {
	return time.Duration(b.HoldTTLSeconds) * time.Second
}

func (b BusinessConfig) HoldSweepInterval() time.Duration {
	return time.Duration(b.HoldSweepSeconds) * time.Second
}

func (b BusinessConfig) SessionIdleTTL() time.Duration {
	return time.Duration(b.SessionIdleTTLSeconds) * time.Second
}

func (b BusinessConfig) CheckoutTimeout() time.Duration {
	return time.Duration(b.CheckoutTimeoutSeconds) * time.Second
}

// Load reads an optional .env file and then the environment
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	sections := []interface{}{&cfg.Server, &cfg.Database, &cfg.Redis, &cfg.Kafka, &cfg.Observ, &cfg.Business}
	for _, section := range sections {
		if err := envconfig.Process("", section); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	if c.Business.TaxRate.IsNegative() || c.Business.TaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Errorf("TAX_RATE must be in [0, 1), got %s", c.Business.TaxRate))
	}
	if c.Business.HoldTTLSeconds <= 0 {
		errs = append(errs, errors.New("HOLD_TTL_SECONDS must be positive"))
	}
	if c.Business.HoldSweepSeconds <= 0 {
		errs = append(errs, errors.New("HOLD_SWEEP_SECONDS must be positive"))
	}
	if c.Business.SessionIdleTTLSeconds <= 0 {
		errs = append(errs, errors.New("SESSION_IDLE_TTL_SECONDS must be positive"))
	}
	if c.Business.CheckoutTimeoutSeconds < 0 {
		errs = append(errs, errors.New("CHECKOUT_TIMEOUT_SECONDS must not be negative"))
	}
	if c.Database.MaxOpenConns < 1 {
		errs = append(errs, errors.New("DB_MAX_OPEN_CONNS must be at least 1"))
	}

	return errors.Join(errs...)
}
