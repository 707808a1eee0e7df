package compliance

import (
	"context"
	"strings"

	"github.com/lalith-99/brokerguard/internal/apperr"
	"github.com/lalith-99/brokerguard/internal/audit"
	"github.com/lalith-99/brokerguard/internal/models"
	"github.com/lalith-99/brokerguard/internal/repository"
	"go.uber.org/zap"
)

// Moderator serves the broker review queue.
type Moderator struct {
	copies repository.CopyRepository
	logger *zap.Logger
	opts   options
}

func NewModerator(copies repository.CopyRepository, logger *zap.Logger, opts ...Option) *Moderator {
	return &Moderator{copies: copies, logger: logger, opts: buildOptions(opts)}
}

func (m *Moderator) List(ctx context.Context, tenantID int64, filter models.CopyFilter, p models.Pagination) (models.Page[models.MessageCopyView], error) {
	if !filter.Valid() {
		return models.Page[models.MessageCopyView]{}, apperr.Validation("filter must be one of unreviewed, flagged, reviewed, all")
	}
	items, total, err := m.copies.List(ctx, tenantID, filter, p)
	if err != nil {
		return models.Page[models.MessageCopyView]{}, err
	}
	return models.NewPage(items, total, p), nil
}

func (m *Moderator) Get(ctx context.Context, tenantID, copyID int64) (*models.MessageCopyView, error) {
	v, err := m.copies.Get(ctx, tenantID, copyID)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, apperr.NotFound("message copy")
	}
	return v, nil
}

// Review marks the copy reviewed and returns it. Reviewing an already
// reviewed copy returns it unchanged and emits no audit event.
func (m *Moderator) Review(ctx context.Context, tenantID, copyID, reviewerID int64) (*models.MessageCopyView, error) {
	now := m.opts.now()
	changed, err := m.copies.MarkReviewed(ctx, tenantID, copyID, reviewerID, now)
	if err != nil {
		return nil, err
	}
	v, err := m.Get(ctx, tenantID, copyID)
	if err != nil {
		return nil, err
	}
	if changed {
		m.opts.audit.Publish(ctx, audit.Event{
			Type:       audit.EventMessageReviewed,
			TenantID:   tenantID,
			ActorID:    &reviewerID,
			SubjectID:  copyID,
			Reason:     string(v.CopyReason),
			OccurredAt: now,
		})
	}
	return v, nil
}

// Flag marks the copy flagged, which also reviews it and holds it back from
// retention deletion.
func (m *Moderator) Flag(ctx context.Context, tenantID, copyID, reviewerID int64, reason string) (*models.MessageCopyView, error) {
	reason = strings.TrimSpace(reason)
	now := m.opts.now()
	changed, err := m.copies.Flag(ctx, tenantID, copyID, reviewerID, reason, now)
	if err != nil {
		return nil, err
	}
	v, err := m.Get(ctx, tenantID, copyID)
	if err != nil {
		return nil, err
	}
	if changed {
		m.logger.Info("message copy flagged",
			zap.Int64("tenant_id", tenantID),
			zap.Int64("copy_id", copyID),
			zap.Int64("reviewer_id", reviewerID))
		m.opts.audit.Publish(ctx, audit.Event{
			Type:       audit.EventMessageFlagged,
			TenantID:   tenantID,
			ActorID:    &reviewerID,
			SubjectID:  copyID,
			Reason:     reason,
			OccurredAt: now,
		})
	}
	return v, nil
}
