package compliance

import (
	"context"

	"github.com/lalith-99/brokerguard/internal/apperr"
	"github.com/lalith-99/brokerguard/internal/audit"
	"github.com/lalith-99/brokerguard/internal/policy"
	"github.com/lalith-99/brokerguard/internal/repository"
	"go.uber.org/zap"
)

// PolicyStore is the cached reader plus the writer; the Redis cache in
// front of the database implements both.
type PolicyStore interface {
	repository.PolicyReader
	repository.PolicyRepository
}

// Settings administers the tenant's broker configuration.
type Settings struct {
	store  PolicyStore
	logger *zap.Logger
	opts   options
}

func NewSettings(store PolicyStore, logger *zap.Logger, opts ...Option) *Settings {
	return &Settings{store: store, logger: logger, opts: buildOptions(opts)}
}

func (s *Settings) Get(ctx context.Context, tenantID int64) (policy.Config, error) {
	return s.store.Load(ctx, tenantID)
}

func (s *Settings) Update(ctx context.Context, tenantID, actorID int64, cfg policy.Config) (policy.Config, error) {
	if err := cfg.Validate(); err != nil {
		return policy.Config{}, apperr.Validation(err.Error())
	}
	if err := s.store.Put(ctx, tenantID, cfg, actorID); err != nil {
		return policy.Config{}, err
	}

	s.logger.Info("broker config updated", zap.Int64("tenant_id", tenantID), zap.Int64("updated_by", actorID))
	s.opts.audit.Publish(ctx, audit.Event{
		Type:       audit.EventConfigChanged,
		TenantID:   tenantID,
		ActorID:    &actorID,
		OccurredAt: s.opts.now(),
	})
	return cfg, nil
}
