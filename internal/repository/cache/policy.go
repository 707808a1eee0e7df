// Package cache puts Redis in front of read-mostly repositories.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lalith-99/brokerguard/internal/policy"
	"github.com/lalith-99/brokerguard/internal/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const policyKeyPrefix = "broker:policy:"

// PolicyCache reads tenant configuration through Redis and invalidates the
// key on every write. A nil client turns it into a passthrough.
//
// Redis failures never fail a request: reads fall back to the store and the
// error is logged.
type PolicyCache struct {
	repo   repository.PolicyRepository
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewPolicyCache(repo repository.PolicyRepository, client *redis.Client, ttl time.Duration, logger *zap.Logger) *PolicyCache {
	return &PolicyCache{repo: repo, client: client, ttl: ttl, logger: logger}
}

func policyKey(tenantID int64) string {
	return policyKeyPrefix + strconv.FormatInt(tenantID, 10)
}

// Load returns the tenant's configuration, or policy.Default() when none was
// ever saved.
func (c *PolicyCache) Load(ctx context.Context, tenantID int64) (policy.Config, error) {
	if cfg, ok := c.cached(ctx, tenantID); ok {
		return cfg, nil
	}

	stored, err := c.repo.Get(ctx, tenantID)
	if err != nil {
		return policy.Config{}, fmt.Errorf("load broker config: %w", err)
	}
	cfg := policy.Default()
	if stored != nil {
		cfg = *stored
	}
	c.store(ctx, tenantID, cfg)
	return cfg, nil
}

func (c *PolicyCache) Get(ctx context.Context, tenantID int64) (*policy.Config, error) {
	return c.repo.Get(ctx, tenantID)
}

// Put writes through to the store and drops the cached copy.
func (c *PolicyCache) Put(ctx context.Context, tenantID int64, cfg policy.Config, updatedBy int64) error {
	if err := c.repo.Put(ctx, tenantID, cfg, updatedBy); err != nil {
		return err
	}
	if c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, policyKey(tenantID)).Err(); err != nil {
		c.logger.Warn("failed to invalidate cached broker config",
			zap.Int64("tenant_id", tenantID), zap.Error(err))
	}
	return nil
}

func (c *PolicyCache) cached(ctx context.Context, tenantID int64) (policy.Config, bool) {
	if c.client == nil {
		return policy.Config{}, false
	}
	raw, err := c.client.Get(ctx, policyKey(tenantID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("broker config cache read failed",
				zap.Int64("tenant_id", tenantID), zap.Error(err))
		}
		return policy.Config{}, false
	}
	cfg := policy.Default()
	if err := json.Unmarshal(raw, &cfg); err != nil {
		c.logger.Warn("dropping undecodable cached broker config",
			zap.Int64("tenant_id", tenantID), zap.Error(err))
		return policy.Config{}, false
	}
	return cfg, true
}

func (c *PolicyCache) store(ctx context.Context, tenantID int64, cfg policy.Config) {
	if c.client == nil || c.ttl <= 0 {
		return
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, policyKey(tenantID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("broker config cache write failed",
			zap.Int64("tenant_id", tenantID), zap.Error(err))
	}
}
