package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transferdesk/internal/platform/config"
)

func TestNewAppliesPoolSettings(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	client, err := New(ctx, config.RedisConfig{URL: "redis://" + mr.Addr(), PoolSize: 3, MinIdleConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	assert.Equal(t, 3, client.Options().PoolSize)
	assert.NoError(t, client.Health(ctx))
}

func TestNewFailures(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, config.RedisConfig{})
	assert.Error(t, err)

	_, err = New(ctx, config.RedisConfig{URL: "not-a-url"})
	assert.ErrorContains(t, err, "parse redis URL")

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err = New(ctx, config.RedisConfig{URL: "redis://" + addr})
	assert.ErrorContains(t, err, "ping")
}
