// Package tenancy resolves host-application entities and refuses any that
// belong to a different tenant than the caller.
package tenancy

import (
	"context"
	"fmt"
	"time"

	"github.com/lalith-99/brokerguard/internal/apperr"
	"github.com/lalith-99/brokerguard/internal/audit"
	"github.com/lalith-99/brokerguard/internal/models"
	"github.com/lalith-99/brokerguard/internal/repository"
	"go.uber.org/zap"
)

type Guard struct {
	dir    repository.DirectoryRepository
	audit  audit.Publisher
	logger *zap.Logger
}

func NewGuard(dir repository.DirectoryRepository, pub audit.Publisher, logger *zap.Logger) *Guard {
	if pub == nil {
		pub = audit.Nop{}
	}
	return &Guard{dir: dir, audit: pub, logger: logger}
}

// Member returns the member if it belongs to tenantID. An unknown id is
// NotFound; a member of another tenant is TenantMismatch.
func (g *Guard) Member(ctx context.Context, tenantID, userID int64) (*models.Member, error) {
	m, err := g.dir.GetMember(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup member: %w", err)
	}
	if m == nil {
		return nil, apperr.NotFound("member")
	}
	if m.TenantID != tenantID {
		return nil, g.mismatch(ctx, tenantID, "member", userID, m.TenantID)
	}
	return m, nil
}

func (g *Guard) Listing(ctx context.Context, tenantID, listingID int64) (*models.Listing, error) {
	l, err := g.dir.GetListing(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("lookup listing: %w", err)
	}
	if l == nil {
		return nil, apperr.NotFound("listing")
	}
	if l.TenantID != tenantID {
		return nil, g.mismatch(ctx, tenantID, "listing", listingID, l.TenantID)
	}
	return l, nil
}

// mismatch logs the violation for investigation and returns the error to
// hand back. The owning tenant is never included in the error.
func (g *Guard) mismatch(ctx context.Context, tenantID int64, entity string, id, ownerTenantID int64) error {
	g.logger.Warn("cross-tenant access refused",
		zap.Int64("tenant_id", tenantID),
		zap.String("entity", entity),
		zap.Int64("entity_id", id),
		zap.Int64("entity_tenant_id", ownerTenantID),
	)
	g.audit.Publish(ctx, audit.Event{
		Type:       audit.EventTenantMismatch,
		TenantID:   tenantID,
		SubjectID:  id,
		Reason:     entity,
		OccurredAt: time.Now().UTC(),
	})
	return apperr.ErrTenantMismatch.With(entity + " belongs to a different tenant")
}
