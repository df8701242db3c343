// Package redis opens the shared Redis connection used by the progress
// broadcaster and the rate limit counters.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"confirmit/internal/platform/config"
)

// ErrNotConfigured is returned by Open when redis.url is empty.
var ErrNotConfigured = errors.New("redis.url is not set")

// Client is a pinged go-redis client.
type Client struct {
	*redis.Client
	addr string
}

// Open dials cfg.URL and pings it before returning. Zero pool and timeout
// settings keep the go-redis defaults.
func Open(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, ErrNotConfigured
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis.url: %w", err)
	}
	applyOverrides(opts, cfg)

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	return &Client{Client: rdb, addr: opts.Addr}, nil
}

func applyOverrides(opts *redis.Options, cfg config.RedisConfig) {
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
}

// Addr is the host:port the client dialled.
func (c *Client) Addr() string { return c.addr }

// Health pings the server. A pool with every connection timing out is
// reported even when the ping itself succeeds on a fresh connection.
func (c *Client) Health(ctx context.Context) error {
	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis at %s: %w", c.addr, err)
	}
	if st := c.PoolStats(); st.Timeouts > 0 && st.TotalConns == 0 {
		return fmt.Errorf("redis pool at %s has no live connections after %d timeouts", c.addr, st.Timeouts)
	}
	return nil
}
