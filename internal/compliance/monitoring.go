package compliance

import (
	"context"
	"strings"

	"github.com/lalith-99/brokerguard/internal/apperr"
	"github.com/lalith-99/brokerguard/internal/audit"
	"github.com/lalith-99/brokerguard/internal/models"
	"github.com/lalith-99/brokerguard/internal/repository"
	"github.com/lalith-99/brokerguard/internal/tenancy"
	"go.uber.org/zap"
)

// Monitor administers per-member monitoring flags.
type Monitor struct {
	tx       repository.Transactor
	contacts repository.ContactRepository
	guard    *tenancy.Guard
	logger   *zap.Logger
	opts     options
}

func NewMonitor(tx repository.Transactor, contacts repository.ContactRepository, guard *tenancy.Guard, logger *zap.Logger, opts ...Option) *Monitor {
	return &Monitor{tx: tx, contacts: contacts, guard: guard, logger: logger, opts: buildOptions(opts)}
}

type MonitoringUpdate struct {
	UnderMonitoring   bool
	MessagingDisabled bool
	Reason            string
}

// Set replaces the member's monitoring flags, creating the record with the
// member's join date if this is the first time the member is seen.
func (m *Monitor) Set(ctx context.Context, tenantID, userID, actorID int64, upd MonitoringUpdate) (*models.UserMonitoring, error) {
	member, err := m.guard.Member(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}

	now := m.opts.now()
	var out *models.UserMonitoring
	err = m.tx.WithinTx(ctx, func(ctx context.Context) error {
		rec, err := m.contacts.EnsureMonitoring(ctx, tenantID, userID, member.CreatedAt)
		if err != nil {
			return err
		}
		rec.UnderMonitoring = upd.UnderMonitoring
		rec.MessagingDisabled = upd.MessagingDisabled
		rec.MonitoringReason = nil
		if r := strings.TrimSpace(upd.Reason); r != "" {
			rec.MonitoringReason = &r
		}
		rec.MonitoringSetBy = &actorID
		rec.MonitoringSetAt = &now

		out, err = m.contacts.SetMonitoring(ctx, rec)
		if err != nil {
			return err
		}
		if out == nil {
			return apperr.NotFound("monitoring record")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("member monitoring changed",
		zap.Int64("tenant_id", tenantID),
		zap.Int64("user_id", userID),
		zap.Bool("under_monitoring", out.UnderMonitoring),
		zap.Bool("messaging_disabled", out.MessagingDisabled),
		zap.Int64("set_by", actorID))
	m.opts.audit.Publish(ctx, audit.Event{
		Type:      audit.EventMonitoringChanged,
		TenantID:  tenantID,
		ActorID:   &actorID,
		SubjectID: userID,
		Reason:    upd.Reason,
		Details: map[string]any{
			"under_monitoring":   out.UnderMonitoring,
			"messaging_disabled": out.MessagingDisabled,
		},
		OccurredAt: now,
	})
	return out, nil
}

func (m *Monitor) Get(ctx context.Context, tenantID, userID int64) (*models.UserMonitoring, error) {
	rec, err := m.contacts.GetMonitoring(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apperr.NotFound("monitoring record")
	}
	return rec, nil
}

func (m *Monitor) List(ctx context.Context, tenantID int64, filter models.MonitoringFilter, p models.Pagination) (models.Page[models.MonitoringView], error) {
	if !filter.Valid() {
		return models.Page[models.MonitoringView]{}, apperr.Validation("filter must be one of all, restricted, monitored, flagged")
	}
	items, total, err := m.contacts.ListMonitoring(ctx, tenantID, filter, p)
	if err != nil {
		return models.Page[models.MonitoringView]{}, err
	}
	return models.NewPage(items, total, p), nil
}
