package compliance

import (
	"context"

	"github.com/lalith-99/brokerguard/internal/models"
	"github.com/lalith-99/brokerguard/internal/repository"
	"golang.org/x/sync/errgroup"
)

type Dashboard struct {
	copies    repository.CopyRepository
	tags      repository.RiskTagRepository
	contacts  repository.ContactRepository
	exchanges repository.ExchangeRepository
}

func NewDashboard(copies repository.CopyRepository, tags repository.RiskTagRepository, contacts repository.ContactRepository, exchanges repository.ExchangeRepository) *Dashboard {
	return &Dashboard{copies: copies, tags: tags, contacts: contacts, exchanges: exchanges}
}

// Counts gathers the dashboard numbers concurrently. Pending exchanges are
// the ones waiting on a broker: pending_broker and disputed.
func (d *Dashboard) Counts(ctx context.Context, tenantID int64) (models.DashboardCounts, error) {
	var (
		out      models.DashboardCounts
		pending  int64
		disputed int64
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		pending, err = d.exchanges.CountByStatus(ctx, tenantID, models.StatusPendingBroker)
		return err
	})
	g.Go(func() (err error) {
		disputed, err = d.exchanges.CountByStatus(ctx, tenantID, models.StatusDisputed)
		return err
	})
	g.Go(func() (err error) {
		out.UnreviewedMessages, err = d.copies.CountUnreviewed(ctx, tenantID)
		return err
	})
	g.Go(func() (err error) {
		out.HighRiskListings, err = d.tags.CountHighRisk(ctx, tenantID)
		return err
	})
	g.Go(func() (err error) {
		out.MonitoredUsers, err = d.contacts.CountMonitored(ctx, tenantID)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.DashboardCounts{}, err
	}
	out.PendingExchanges = pending + disputed
	return out, nil
}
