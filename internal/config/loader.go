package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MARKETD_* environment variable overrides, and
// returns the final Config. A missing file is not an error so containers can
// run on environment variables alone. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MARKETD_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Mongo ──
	setStr(&cfg.Mongo.URI, "MARKETD_MONGO_URI")
	setStr(&cfg.Mongo.URI, "DB_URI") // compatibility alias
	setStr(&cfg.Mongo.Server, "MARKETD_MONGO_SERVER")
	setStr(&cfg.Mongo.Database, "MARKETD_MONGO_DATABASE")
	setStr(&cfg.Mongo.Database, "DB_NAME") // compatibility alias
	setStr(&cfg.Mongo.AuthMechanism, "MARKETD_MONGO_AUTH_MECHANISM")
	setStr(&cfg.Mongo.AWSRegion, "MARKETD_MONGO_AWS_REGION")
	setInt(&cfg.Mongo.MaxPoolSize, "MARKETD_MONGO_MAX_POOL_SIZE")
	setDuration(&cfg.Mongo.ConnectTimeout, "MARKETD_MONGO_CONNECT_TIMEOUT")
	setBool(&cfg.Mongo.EnsureIndexes, "MARKETD_MONGO_ENSURE_INDEXES")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "MARKETD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MARKETD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MARKETD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MARKETD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MARKETD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MARKETD_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.AssetCacheTTL, "MARKETD_REDIS_ASSET_CACHE_TTL")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "MARKETD_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "MARKETD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "MARKETD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MARKETD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MARKETD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MARKETD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MARKETD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MARKETD_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MARKETD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MARKETD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MARKETD_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "MARKETD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MARKETD_S3_REGION")
	setStr(&cfg.S3.Bucket, "MARKETD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MARKETD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MARKETD_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "MARKETD_S3_FORCE_PATH_STYLE")

	// ── Blockfrost ──
	setStr(&cfg.Blockfrost.ProjectID, "MARKETD_BLOCKFROST_PROJECT_ID")
	setStr(&cfg.Blockfrost.ProjectID, "BLOCKFROST_PROJECT_ID") // compatibility alias
	setStr(&cfg.Blockfrost.Network, "MARKETD_BLOCKFROST_NETWORK")
	setStr(&cfg.Blockfrost.BaseURL, "MARKETD_BLOCKFROST_BASE_URL")
	setDuration(&cfg.Blockfrost.Timeout, "MARKETD_BLOCKFROST_TIMEOUT")
	setFloat64(&cfg.Blockfrost.RequestsPerSec, "MARKETD_BLOCKFROST_REQUESTS_PER_SEC")
	setInt(&cfg.Blockfrost.Burst, "MARKETD_BLOCKFROST_BURST")

	// ── Processor ──
	setBool(&cfg.Processor.Enabled, "MARKETD_PROCESSOR_ENABLED")
	setStr(&cfg.Processor.Schedule, "MARKETD_PROCESSOR_SCHEDULE")
	setStr(&cfg.Processor.Schedule, "PROCESS_POLICY_ASSET_INTERVAL") // compatibility alias
	setDuration(&cfg.Processor.RunTimeout, "MARKETD_PROCESSOR_RUN_TIMEOUT")
	setInt(&cfg.Processor.Concurrency, "MARKETD_PROCESSOR_CONCURRENCY")
	setInt(&cfg.Processor.MinConfirmations, "MARKETD_PROCESSOR_MIN_CONFIRMATIONS")
	setStr(&cfg.Processor.LockKey, "MARKETD_PROCESSOR_LOCK_KEY")
	setBool(&cfg.Processor.TestOnly, "MARKETD_PROCESSOR_TEST_ONLY")

	// ── Ingest ──
	setStringSlice(&cfg.Ingest.PolicyIDs, "MARKETD_INGEST_POLICY_IDS")
	setDuration(&cfg.Ingest.Interval, "MARKETD_INGEST_INTERVAL")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "MARKETD_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Cron, "MARKETD_ARCHIVE_CRON")
	setInt(&cfg.Archive.RetentionDays, "MARKETD_ARCHIVE_RETENTION_DAYS")

	// ── Kafka ──
	setBool(&cfg.Kafka.Enabled, "MARKETD_KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "MARKETD_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "MARKETD_KAFKA_TOPIC")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "MARKETD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "MARKETD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MARKETD_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RatePerMinute, "MARKETD_SERVER_RATE_PER_MINUTE")
	setInt(&cfg.Server.MaxPageSize, "MARKETD_SERVER_MAX_PAGE_SIZE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MARKETD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MARKETD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MARKETD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MARKETD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "MARKETD_MODE")
	setStr(&cfg.LogLevel, "MARKETD_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
