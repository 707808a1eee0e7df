package compliance

import (
	"context"

	"github.com/lalith-99/brokerguard/internal/apperr"
	"github.com/lalith-99/brokerguard/internal/audit"
	"github.com/lalith-99/brokerguard/internal/models"
	"github.com/lalith-99/brokerguard/internal/repository"
	"github.com/lalith-99/brokerguard/internal/tenancy"
	"go.uber.org/zap"
)

// Registry is the risk tag registry. Writes are refused while the tenant
// has risk tagging disabled; reads always work.
type Registry struct {
	tags     repository.RiskTagRepository
	policies repository.PolicyReader
	guard    *tenancy.Guard
	logger   *zap.Logger
	opts     options
}

func NewRegistry(tags repository.RiskTagRepository, policies repository.PolicyReader, guard *tenancy.Guard, logger *zap.Logger, opts ...Option) *Registry {
	return &Registry{tags: tags, policies: policies, guard: guard, logger: logger, opts: buildOptions(opts)}
}

type TagInput struct {
	RiskLevel         models.RiskLevel
	RiskCategory      *string
	RiskNotes         *string
	DBSRequired       bool
	InsuranceRequired bool
}

func (r *Registry) writable(ctx context.Context, tenantID int64) error {
	cfg, err := r.policies.Load(ctx, tenantID)
	if err != nil {
		return err
	}
	if !cfg.RiskTagging.Enabled {
		return apperr.ErrRiskTaggingDisabled
	}
	return nil
}

// Tag sets the listing's tag, replacing any previous one.
func (r *Registry) Tag(ctx context.Context, tenantID, listingID, actorID int64, in TagInput) (*models.RiskTag, error) {
	if !in.RiskLevel.Valid() {
		return nil, apperr.Validation("risk_level must be one of low, medium, high, critical")
	}
	if err := r.writable(ctx, tenantID); err != nil {
		return nil, err
	}
	if _, err := r.guard.Listing(ctx, tenantID, listingID); err != nil {
		return nil, err
	}

	now := r.opts.now()
	tag, err := r.tags.Upsert(ctx, &models.RiskTag{
		TenantID:          tenantID,
		ListingID:         listingID,
		RiskLevel:         in.RiskLevel,
		RiskCategory:      in.RiskCategory,
		RiskNotes:         in.RiskNotes,
		DBSRequired:       in.DBSRequired,
		InsuranceRequired: in.InsuranceRequired,
		TaggedBy:          actorID,
		TaggedAt:          now,
	})
	if err != nil {
		return nil, err
	}
	if tag == nil {
		return nil, apperr.ErrTenantMismatch.With("listing is tagged by a different tenant")
	}

	r.opts.audit.Publish(ctx, audit.Event{
		Type:       audit.EventRiskTagChanged,
		TenantID:   tenantID,
		ActorID:    &actorID,
		SubjectID:  listingID,
		Reason:     string(tag.RiskLevel),
		OccurredAt: now,
	})
	return tag, nil
}

func (r *Registry) Untag(ctx context.Context, tenantID, listingID, actorID int64) error {
	if err := r.writable(ctx, tenantID); err != nil {
		return err
	}
	deleted, err := r.tags.Delete(ctx, tenantID, listingID)
	if err != nil {
		return err
	}
	if !deleted {
		return apperr.NotFound("risk tag")
	}
	r.opts.audit.Publish(ctx, audit.Event{
		Type:       audit.EventRiskTagChanged,
		TenantID:   tenantID,
		ActorID:    &actorID,
		SubjectID:  listingID,
		Reason:     "removed",
		OccurredAt: r.opts.now(),
	})
	return nil
}

func (r *Registry) Get(ctx context.Context, tenantID, listingID int64) (*models.RiskTag, error) {
	tag, err := r.tags.Get(ctx, tenantID, listingID)
	if err != nil {
		return nil, err
	}
	if tag == nil {
		return nil, apperr.NotFound("risk tag")
	}
	return tag, nil
}

// List returns the tenant's tags, critical first. A nil level lists all.
func (r *Registry) List(ctx context.Context, tenantID int64, level *models.RiskLevel) ([]models.RiskTagView, error) {
	if level != nil && !level.Valid() {
		return nil, apperr.Validation("risk_level must be one of low, medium, high, critical")
	}
	return r.tags.List(ctx, tenantID, level)
}
