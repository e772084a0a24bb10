// Package redis implements the domain lock, rate-limit, pub/sub and cache
// interfaces using go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// namespace prefixes every key and channel this service touches so several
// deployments can share one Redis.
const namespace = "marketd"

// key joins parts under the service namespace: key("asset", id) yields
// "marketd:asset:<id>".
func key(parts ...string) string {
	return namespace + ":" + strings.Join(parts, ":")
}

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
	// DialTimeout bounds the initial connect and ping. Zero means 5s.
	DialTimeout time.Duration
}

// Client owns the go-redis connection pool shared by the lock manager, rate
// limiter, signal bus and asset cache.
type Client struct {
	rdb *redis.Client
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	dial := cfg.DialTimeout
	if dial <= 0 {
		dial = 5 * time.Second
	}
	opts := &redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: dial,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, dial)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return &Client{rdb: rdb}, nil
}

// Ping is the health check used by /api/health.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying returns the raw *redis.Client.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
