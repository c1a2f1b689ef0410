// Package redis backs the shared quote cache, the lifecycle event bus, and
// the live-mode leadership lock with a single Redis connection. Every
// replica of the engine points at the same instance; that is what makes the
// quote cache shared and the lock meaningful.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ClientConfig holds the connection parameters for the shared instance.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

// Client is the one connection the cache, bus, and lock types share.
type Client struct {
	rdb *redis.Client
}

// New connects and pings. A quote cache that cannot be reached at startup is
// a configuration error, not something to retry into.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return &Client{rdb: rdb}, nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying exposes the driver to the quote cache, event bus, and lock
// manager in this package.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
