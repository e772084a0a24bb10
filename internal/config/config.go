// Package config defines the top-level configuration for the marketplace
// daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/empowa-tech/marketplace/internal/pipeline/cron"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by MARKETD_* environment variables.
type Config struct {
	Mongo      MongoConfig      `toml:"mongo"`
	Redis      RedisConfig      `toml:"redis"`
	Postgres   PostgresConfig   `toml:"postgres"`
	S3         S3Config         `toml:"s3"`
	Blockfrost BlockfrostConfig `toml:"blockfrost"`
	Processor  ProcessorConfig  `toml:"processor"`
	Ingest     IngestConfig     `toml:"ingest"`
	Archive    ArchiveConfig    `toml:"archive"`
	Kafka      KafkaConfig      `toml:"kafka"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// MongoConfig holds the document store connection. Either URI is set, or
// Server is combined with AWS IAM credentials (auth_mechanism = "MONGODB-AWS").
type MongoConfig struct {
	URI            string   `toml:"uri"`
	Server         string   `toml:"server"`
	Database       string   `toml:"database"`
	AuthMechanism  string   `toml:"auth_mechanism"`
	AWSRegion      string   `toml:"aws_region"`
	MaxPoolSize    int      `toml:"max_pool_size"`
	ConnectTimeout duration `toml:"connect_timeout"`
	EnsureIndexes  bool     `toml:"ensure_indexes"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	// AssetCacheTTL bounds how long a policy asset lookup is served from cache.
	AssetCacheTTL duration `toml:"asset_cache_ttl"`
}

// PostgresConfig holds the audit-log database. Disabled by default.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// BlockfrostConfig holds ledger API credentials and client limits.
type BlockfrostConfig struct {
	ProjectID string `toml:"project_id"`
	// Network is one of mainnet, preprod, preview. Ignored when BaseURL is set.
	Network          string   `toml:"network"`
	BaseURL          string   `toml:"base_url"`
	Timeout          duration `toml:"timeout"`
	RequestsPerSec   float64  `toml:"requests_per_sec"`
	Burst            int      `toml:"burst"`
	BreakerFailures  int      `toml:"breaker_failures"`
	BreakerOpenDelay duration `toml:"breaker_open_delay"`
}

// ProcessorConfig drives the sales reconciliation loop.
type ProcessorConfig struct {
	Enabled bool `toml:"enabled"`
	// Schedule is a 5-field cron expression or "@every <duration>".
	Schedule         string   `toml:"schedule"`
	RunTimeout       duration `toml:"run_timeout"`
	Concurrency      int      `toml:"concurrency"`
	MinConfirmations int      `toml:"min_confirmations"`
	LockKey          string   `toml:"lock_key"`
	TestOnly         bool     `toml:"test_only"`
}

// IngestConfig drives the policy asset fetcher.
type IngestConfig struct {
	PolicyIDs []string `toml:"policy_ids"`
	Interval  duration `toml:"interval"`
}

// ArchiveConfig drives the terminal activity export to S3.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	Cron          string `toml:"cron"`
	RetentionDays int    `toml:"retention_days"`
}

// KafkaConfig holds the sale event stream. Disabled by default.
type KafkaConfig struct {
	Enabled bool     `toml:"enabled"`
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled       bool     `toml:"enabled"`
	Port          int      `toml:"port"`
	CORSOrigins   []string `toml:"cors_origins"`
	RatePerMinute int      `toml:"rate_per_minute"`
	MaxPageSize   int      `toml:"max_page_size"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Mongo: MongoConfig{
			URI:            "mongodb://localhost:27017",
			Database:       "marketplace_db",
			AWSRegion:      "us-east-1",
			MaxPoolSize:    50,
			ConnectTimeout: duration{10 * time.Second},
			EnsureIndexes:  true,
		},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			PoolSize:      20,
			MaxRetries:    3,
			AssetCacheTTL: duration{5 * time.Minute},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "marketplace-archive",
			ForcePathStyle: true,
		},
		Blockfrost: BlockfrostConfig{
			Network:          "mainnet",
			Timeout:          duration{10 * time.Second},
			RequestsPerSec:   10,
			Burst:            50,
			BreakerFailures:  5,
			BreakerOpenDelay: duration{30 * time.Second},
		},
		Processor: ProcessorConfig{
			Enabled:          true,
			Schedule:         "* * * * *",
			RunTimeout:       duration{50 * time.Second},
			Concurrency:      10,
			MinConfirmations: 3,
			LockKey:          "lock:sales-reconcile",
		},
		Ingest: IngestConfig{
			Interval: duration{time.Hour},
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Cron:          "0 3 * * *",
			RetentionDays: 90,
		},
		Kafka: KafkaConfig{
			Topic: "marketplace.sales",
		},
		Server: ServerConfig{
			Enabled:       true,
			Port:          8080,
			CORSOrigins:   []string{"http://localhost:3000"},
			RatePerMinute: 600,
			MaxPageSize:   100,
		},
		Notify: NotifyConfig{
			Events: []string{"sale_completed", "reconcile_failed"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"api":       true,
	"processor": true,
	"ingest":    true,
	"full":      true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validNetworks = map[string]bool{
	"mainnet": true,
	"preprod": true,
	"preview": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string
	mode := strings.ToLower(c.Mode)

	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: api, processor, ingest, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Mongo
	if strings.EqualFold(c.Mongo.AuthMechanism, "MONGODB-AWS") {
		if c.Mongo.Server == "" {
			errs = append(errs, "mongo: server must be set when auth_mechanism is MONGODB-AWS")
		}
	} else if c.Mongo.AuthMechanism != "" {
		errs = append(errs, fmt.Sprintf("mongo: unsupported auth_mechanism %q (valid: MONGODB-AWS)", c.Mongo.AuthMechanism))
	} else if strings.TrimSpace(c.Mongo.URI) == "" {
		errs = append(errs, "mongo: uri must not be empty")
	}
	if c.Mongo.Database == "" {
		errs = append(errs, "mongo: database must not be empty")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Postgres
	if c.Postgres.Enabled && strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
	}
	if c.Postgres.Enabled && c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Blockfrost is needed by every mode that talks to the ledger.
	needsLedger := mode == "processor" || mode == "ingest" || (mode == "full" && c.Processor.Enabled)
	if needsLedger && c.Blockfrost.ProjectID == "" {
		errs = append(errs, "blockfrost: project_id is required for mode "+c.Mode)
	}
	if c.Blockfrost.BaseURL == "" && !validNetworks[c.Blockfrost.Network] {
		errs = append(errs, fmt.Sprintf("blockfrost: unknown network %q (valid: mainnet, preprod, preview)", c.Blockfrost.Network))
	}
	if c.Blockfrost.RequestsPerSec <= 0 {
		errs = append(errs, "blockfrost: requests_per_sec must be > 0")
	}

	// Processor
	if c.Processor.Enabled {
		if _, err := cron.Parse(c.Processor.Schedule); err != nil {
			errs = append(errs, fmt.Sprintf("processor: invalid schedule %q: %v", c.Processor.Schedule, err))
		}
		if c.Processor.Concurrency < 1 {
			errs = append(errs, "processor: concurrency must be >= 1")
		}
		if c.Processor.MinConfirmations < 0 {
			errs = append(errs, "processor: min_confirmations must be >= 0")
		}
		if c.Processor.RunTimeout.Duration <= 0 {
			errs = append(errs, "processor: run_timeout must be > 0")
		}
	}

	// Ingest
	if mode == "ingest" && len(c.Ingest.PolicyIDs) == 0 {
		errs = append(errs, "ingest: policy_ids must not be empty for mode ingest")
	}

	// Archive
	if c.Archive.Enabled {
		if _, err := cron.Parse(c.Archive.Cron); err != nil {
			errs = append(errs, fmt.Sprintf("archive: invalid cron %q: %v", c.Archive.Cron, err))
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
	}

	// Kafka
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, "kafka: brokers must not be empty when enabled")
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, "kafka: topic must not be empty when enabled")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.MaxPageSize < 1 {
			errs = append(errs, "server: max_page_size must be >= 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
