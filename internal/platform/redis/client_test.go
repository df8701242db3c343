package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confirmit/internal/platform/config"
)

func TestOpenWithoutURL(t *testing.T) {
	client, err := Open(context.Background(), config.RedisConfig{})
	require.ErrorIs(t, err, ErrNotConfigured)
	assert.Nil(t, client)
}

func TestOpenRejectsMalformedURL(t *testing.T) {
	_, err := Open(context.Background(), config.RedisConfig{URL: "http://not-redis"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse redis.url")
}

func TestApplyOverridesKeepsDefaultsForZeroValues(t *testing.T) {
	opts := &redis.Options{PoolSize: 10, DialTimeout: 5 * time.Second}
	applyOverrides(opts, config.RedisConfig{MinIdleConns: 2, ReadTimeout: time.Second})

	assert.Equal(t, 10, opts.PoolSize)
	assert.Equal(t, 5*time.Second, opts.DialTimeout)
	assert.Equal(t, 2, opts.MinIdleConns)
	assert.Equal(t, time.Second, opts.ReadTimeout)
}
