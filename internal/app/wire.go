package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/empowa-tech/marketplace/internal/blob/s3"
	"github.com/empowa-tech/marketplace/internal/cache/redis"
	"github.com/empowa-tech/marketplace/internal/config"
	"github.com/empowa-tech/marketplace/internal/domain"
	"github.com/empowa-tech/marketplace/internal/events"
	"github.com/empowa-tech/marketplace/internal/notify"
	"github.com/empowa-tech/marketplace/internal/platform/blockfrost"
	"github.com/empowa-tech/marketplace/internal/query"
	"github.com/empowa-tech/marketplace/internal/server/handler"
	mongostore "github.com/empowa-tech/marketplace/internal/store/mongo"
	"github.com/empowa-tech/marketplace/internal/store/postgres"
)

// Dependencies bundles every concrete dependency the modes need. Optional
// ones are nil when their backing service is not configured.
type Dependencies struct {
	// Document store
	Assets     domain.PolicyAssetStore
	Activities *mongostore.ActivityStore
	Extends    domain.ExtendStore
	Configs    domain.AppConfigStore

	// Redis
	AssetCache  domain.AssetCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Optional backends
	AuditStore   domain.AuditStore
	Ledger       *blockfrost.Client
	BlobArchiver domain.ActivityArchiver

	// Event delivery
	Events   domain.EventPublisher
	Notifier *notify.Notifier

	// Health checks keyed by dependency name.
	Checks map[string]handler.Check
}

// needsLedger reports whether mode talks to Blockfrost.
func needsLedger(cfg *config.Config) bool {
	switch strings.ToLower(cfg.Mode) {
	case "processor", "ingest":
		return true
	case "full":
		return cfg.Processor.Enabled || len(cfg.Ingest.PolicyIDs) > 0
	default:
		return cfg.Blockfrost.ProjectID != ""
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(stage string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", stage, err)
	}

	deps := &Dependencies{Checks: make(map[string]handler.Check)}

	// --- MongoDB ---
	mongoClient, err := mongostore.New(ctx, mongostore.ClientConfig{
		URI:            cfg.Mongo.URI,
		Server:         cfg.Mongo.Server,
		Database:       cfg.Mongo.Database,
		AuthMechanism:  cfg.Mongo.AuthMechanism,
		AWSRegion:      cfg.Mongo.AWSRegion,
		MaxPoolSize:    uint64(max(cfg.Mongo.MaxPoolSize, 0)),
		ConnectTimeout: cfg.Mongo.ConnectTimeout.Duration,
	}, logger)
	if err != nil {
		return fail("mongo", err)
	}
	closers = append(closers, mongoClient.Close)
	deps.Checks["mongo"] = mongoClient.Ping

	if cfg.Mongo.EnsureIndexes {
		if err := mongoClient.EnsureIndexes(ctx); err != nil {
			return fail("mongo indexes", err)
		}
	}

	deps.Assets = mongostore.NewAssetStore(mongoClient, query.NewCompiler())
	deps.Activities = mongostore.NewActivityStore(mongoClient)
	deps.Extends = mongostore.NewExtendStore(mongoClient)
	deps.Configs = mongostore.NewConfigStore(mongoClient)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		return fail("redis", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	deps.Checks["redis"] = redisClient.Ping

	deps.AssetCache = redis.NewAssetCache(redisClient, cfg.Redis.AssetCacheTTL.Duration)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- PostgreSQL audit log ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)
		deps.Checks["postgres"] = pgClient.Pool().Ping

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}
		deps.AuditStore = postgres.NewAuditStore(pgClient.Pool())
	}

	// --- Blockfrost ---
	if needsLedger(cfg) {
		deps.Ledger = blockfrost.New(blockfrost.Config{
			ProjectID:        cfg.Blockfrost.ProjectID,
			Network:          cfg.Blockfrost.Network,
			BaseURL:          cfg.Blockfrost.BaseURL,
			Timeout:          cfg.Blockfrost.Timeout.Duration,
			RequestsPerSec:   cfg.Blockfrost.RequestsPerSec,
			Burst:            cfg.Blockfrost.Burst,
			BreakerFailures:  cfg.Blockfrost.BreakerFailures,
			BreakerOpenDelay: cfg.Blockfrost.BreakerOpenDelay.Duration,
		})
	}

	// --- S3 activity archive ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		deps.Checks["s3"] = s3Client.Health
		deps.BlobArchiver = s3blob.NewActivityArchiver(s3blob.NewWriter(s3Client), deps.Activities, deps.AuditStore)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Sale events ---
	targets := []events.Named{{Name: "redis", Publisher: events.NewBusPublisher(deps.SignalBus)}}
	if cfg.Kafka.Enabled {
		kafkaPub := events.NewKafkaPublisher(events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		closers = append(closers, func() {
			if err := kafkaPub.Close(); err != nil {
				logger.Warn("kafka writer close failed", slog.String("error", err.Error()))
			}
		})
		targets = append(targets, events.Named{Name: "kafka", Publisher: kafkaPub})
	}
	if deps.Notifier.Enabled() {
		targets = append(targets, events.Named{Name: "notify", Publisher: deps.Notifier})
	}
	deps.Events = events.NewFanout(logger, targets...)

	return deps, cleanup, nil
}
