package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	TransportSES   = "ses"
	TransportSMTP  = "smtp"
	TransportRelay = "relay"
)

// DispatchConfig is everything needed to run a campaign dispatch; both the
// API (synchronous trigger) and the worker (queued trigger) embed it.
type DispatchConfig struct {
	DBDSN                 string        `envconfig:"DB_DSN" required:"true"`
	DBPoolMaxConns        int32         `envconfig:"DB_POOL_MAX_CONNS" default:"20"`
	DBPoolMinConns        int32         `envconfig:"DB_POOL_MIN_CONNS" default:"0"`
	DBPoolMaxConnLifetime time.Duration `envconfig:"DB_POOL_MAX_CONN_LIFETIME" default:"30m"`
	DBPoolMaxConnIdleTime time.Duration `envconfig:"DB_POOL_MAX_CONN_IDLE_TIME" default:"5m"`
	DBPoolHealthCheck     time.Duration `envconfig:"DB_POOL_HEALTH_CHECK_PERIOD" default:"30s"`

	AWSRegion          string `envconfig:"AWS_REGION" default:"us-east-1"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`

	// Empty REDIS_ADDR falls back to Postgres advisory locks.
	RedisAddr  string        `envconfig:"REDIS_ADDR"`
	RunLockTTL time.Duration `envconfig:"RUN_LOCK_TTL" default:"2m"`

	BatchSize          int    `envconfig:"DISPATCH_BATCH_SIZE" default:"50"`
	TrackingBaseURL    string `envconfig:"TRACKING_BASE_URL" required:"true"`
	TrackingSigningKey string `envconfig:"TRACKING_SIGNING_KEY"`

	Transport           string `envconfig:"TRANSPORT" default:"ses"`
	SESConfigurationSet string `envconfig:"SES_CONFIGURATION_SET"`
	SMTPHost            string `envconfig:"SMTP_HOST"`
	SMTPPort            int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername        string `envconfig:"SMTP_USERNAME"`
	SMTPPassword        string `envconfig:"SMTP_PASSWORD"`
	RelayBaseURL        string `envconfig:"RELAY_BASE_URL"`
	RelayAPIKey         string `envconfig:"RELAY_API_KEY"`

	SendRPS         float64       `envconfig:"SEND_RPS" default:"14"`
	SendBurst       int           `envconfig:"SEND_BURST" default:"50"`
	SendTimeout     time.Duration `envconfig:"SEND_TIMEOUT" default:"10s"`
	BreakerFailures uint32        `envconfig:"BREAKER_FAILURES" default:"10"`
	BreakerTimeout  time.Duration `envconfig:"BREAKER_TIMEOUT" default:"20s"`
}

func (c DispatchConfig) Validate() error {
	switch c.Transport {
	case TransportSES:
	case TransportSMTP:
		if c.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required for TRANSPORT=smtp")
		}
	case TransportRelay:
		if c.RelayBaseURL == "" {
			return fmt.Errorf("RELAY_BASE_URL is required for TRANSPORT=relay")
		}
	default:
		return fmt.Errorf("unknown TRANSPORT %q (want ses, smtp or relay)", c.Transport)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("DISPATCH_BATCH_SIZE must be positive, got %d", c.BatchSize)
	}
	// a zero limit never refills: every send after the first burst would fail
	if c.SendRPS <= 0 {
		return fmt.Errorf("SEND_RPS must be positive, got %v", c.SendRPS)
	}
	if c.SendBurst <= 0 {
		return fmt.Errorf("SEND_BURST must be positive, got %d", c.SendBurst)
	}
	return nil
}

type APIConfig struct {
	DispatchConfig

	Port      string `envconfig:"PORT" default:"8080"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	// Optional; without it /enqueue is not routed.
	SQSQueueURL string `envconfig:"SQS_QUEUE_URL"`
}

type WorkerConfig struct {
	DispatchConfig

	Port      string `envconfig:"PORT" default:"8080"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	SQSQueueURL   string `envconfig:"SQS_QUEUE_URL" required:"true"`
	SQSWaitTime   int32  `envconfig:"SQS_WAIT_TIME" default:"20"`
	SQSMaxMsgs    int32  `envconfig:"SQS_MAX_MSGS" default:"10"`
	SQSVizTimeout int32  `envconfig:"SQS_VISIBILITY_TIMEOUT" default:"300"`

	WorkerConcurrency int `envconfig:"WORKER_CONCURRENCY" default:"4"`
}

func LoadAPI() APIConfig {
	var cfg APIConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}

func LoadWorker() WorkerConfig {
	var cfg WorkerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}
