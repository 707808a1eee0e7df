//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/lalith-99/brokerguard/internal/policy"
	"github.com/lalith-99/brokerguard/internal/repository/cache"
	"github.com/lalith-99/brokerguard/internal/repository/memory"
	"github.com/lalith-99/brokerguard/internal/testutil/containers"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPolicyCacheWithRedis(t *testing.T) {
	ctx := context.Background()
	client := containers.NewRedis(t)
	store := memory.NewPolicyStore()
	c := cache.NewPolicyCache(store, client, time.Minute, zap.NewNop())

	custom := policy.Default()
	custom.BrokerVisibility.RetentionDays = 30
	require.NoError(t, store.Put(ctx, 1, custom, 900))

	cfg, err := c.Load(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.BrokerVisibility.RetentionDays)

	ttl, err := client.TTL(ctx, "broker:policy:1").Result()
	require.NoError(t, err)
	assert.Positive(t, ttl)

	t.Run("cached value wins over a write that bypassed the cache", func(t *testing.T) {
		bypass := policy.Default()
		bypass.BrokerVisibility.RetentionDays = 60
		require.NoError(t, store.Put(ctx, 1, bypass, 900))

		cfg, err := c.Load(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 30, cfg.BrokerVisibility.RetentionDays)
	})

	t.Run("put invalidates", func(t *testing.T) {
		updated := policy.Default()
		updated.BrokerVisibility.RetentionDays = 90
		require.NoError(t, c.Put(ctx, 1, updated, 900))

		_, err := client.Get(ctx, "broker:policy:1").Result()
		assert.ErrorIs(t, err, redis.Nil)

		cfg, err := c.Load(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 90, cfg.BrokerVisibility.RetentionDays)
	})

	t.Run("undecodable entry falls back to the store", func(t *testing.T) {
		require.NoError(t, client.Set(ctx, "broker:policy:1", "not json", time.Minute).Err())

		cfg, err := c.Load(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 90, cfg.BrokerVisibility.RetentionDays)
	})

	t.Run("unsaved tenant gets defaults", func(t *testing.T) {
		cfg, err := c.Load(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, policy.Default(), cfg)
	})
}
