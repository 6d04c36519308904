package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

const (
	StoreDriverRedis    = "redis"
	StoreDriverPostgres = "postgres"
)

type Config struct {
	APIPort     int    `env:"API_PORT,default=8080"`
	WorkerPort  int    `env:"WORKER_PORT,default=9091"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`

	StoreDriver string `env:"STORE_DRIVER,default=redis"`
	RedisURL    string `env:"REDIS_URL"`
	DatabaseDSN string `env:"DATABASE_DSN"`

	DBMaxOpenConns int `env:"DB_MAX_OPEN_CONNS,default=25"`
	DBMaxIdleConns int `env:"DB_MAX_IDLE_CONNS,default=5"`

	DefaultFrom           string `env:"DEFAULT_FROM,default=noreply@example.com"`
	MessageRetentionHours int    `env:"MESSAGE_RETENTION_HOURS,default=720"`
	WebhookRetentionHours int    `env:"WEBHOOK_RETENTION_HOURS,default=168"`
	SweepIntervalSeconds  int    `env:"SWEEP_INTERVAL_SECONDS,default=300"`

	WorkerConcurrency int `env:"WORKER_CONCURRENCY,default=16"`
	QueuePrefetch     int `env:"QUEUE_PREFETCH,default=32"`
	QueueMaxAttempts  int `env:"QUEUE_MAX_ATTEMPTS,default=5"`

	ProviderFailover   bool `env:"PROVIDER_FAILOVER,default=false"`
	LogProviderEnabled bool `env:"LOG_PROVIDER_ENABLED,default=false"`

	ResendAPIKey  string `env:"RESEND_API_KEY"`
	ResendBaseURL string `env:"RESEND_BASE_URL"`

	SendGridAPIKey  string `env:"SENDGRID_API_KEY"`
	SendGridBaseURL string `env:"SENDGRID_BASE_URL,default=https://api.sendgrid.com"`

	MailgunAPIKey  string `env:"MAILGUN_API_KEY"`
	MailgunDomain  string `env:"MAILGUN_DOMAIN"`
	MailgunAPIBase string `env:"MAILGUN_API_BASE"`

	SESRegion           string `env:"SES_REGION"`
	SESAccessKeyID      string `env:"SES_ACCESS_KEY_ID"`
	SESSecretAccessKey  string `env:"SES_SECRET_ACCESS_KEY"`
	SESConfigurationSet string `env:"SES_CONFIGURATION_SET"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// Validate checks cross-field requirements that struct tags cannot express.
func (c *Config) Validate() error {
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))

	switch c.StoreDriver {
	case StoreDriverRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			return fmt.Errorf("REDIS_URL is required when STORE_DRIVER=%s", StoreDriverRedis)
		}
	case StoreDriverPostgres:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("DATABASE_DSN is required when STORE_DRIVER=%s", StoreDriverPostgres)
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}

	if c.MessageRetentionHours <= 0 || c.WebhookRetentionHours <= 0 {
		return fmt.Errorf("retention hours must be positive")
	}
	if c.QueueMaxAttempts <= 0 {
		return fmt.Errorf("QUEUE_MAX_ATTEMPTS must be positive")
	}
	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive")
	}
	return nil
}

func (c *Config) MessageRetention() time.Duration {
	return time.Duration(c.MessageRetentionHours) * time.Hour
}

func (c *Config) WebhookRetention() time.Duration {
	return time.Duration(c.WebhookRetentionHours) * time.Hour
}

func (c *Config) SweepInterval() time.Duration {
	if c.SweepIntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}
