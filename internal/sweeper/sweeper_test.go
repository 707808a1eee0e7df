package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lalith-99/brokerguard/internal/audit"
	"github.com/lalith-99/brokerguard/internal/exchange"
	"github.com/lalith-99/brokerguard/internal/models"
	"github.com/lalith-99/brokerguard/internal/observ"
	"github.com/lalith-99/brokerguard/internal/policy"
	"github.com/lalith-99/brokerguard/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
)

const (
	tenantA int64 = 1
	tenantB int64 = 2
)

const day = 24 * time.Hour

// failingExpirer fails for one tenant and delegates the rest.
type failingExpirer struct {
	Expirer
	tenantID int64
}

func (f failingExpirer) ExpireDue(ctx context.Context, tenantID int64, now time.Time) (int, error) {
	if tenantID == f.tenantID {
		return 0, errors.New("database is down")
	}
	return f.Expirer.ExpireDue(ctx, tenantID, now)
}

type brokenTenants struct{}

func (brokenTenants) ListIDs(context.Context) ([]int64, error) {
	return nil, errors.New("connection refused")
}

type SweeperSuite struct {
	suite.Suite
	ctx      context.Context
	w        *testutil.World
	metrics  *observ.Metrics
	workflow *exchange.Workflow
}

func TestSweeperSuite(t *testing.T) {
	suite.Run(t, new(SweeperSuite))
}

func (s *SweeperSuite) SetupTest() {
	s.ctx = context.Background()
	s.w = testutil.NewWorld()
	s.w.Member(tenantA, 1, 365)
	s.w.Member(tenantA, 2, 365)
	s.w.Member(tenantB, 20, 365)
	s.w.Listing(tenantA, 100, 2, "Garden help")
	s.w.Policy(tenantB, func(c *policy.Config) { c.BrokerVisibility.RetentionDays = 30 })

	s.metrics = observ.NewMetrics(prometheus.NewRegistry())
	s.workflow = exchange.NewWorkflow(exchange.Stores{
		Tx:        s.w.Tx,
		Policies:  s.w.PolicyCache(),
		RiskTags:  s.w.RiskTags,
		Contacts:  s.w.Contacts,
		Exchanges: s.w.Exchanges,
	}, s.w.Guard(), s.w.Logger, exchange.WithClock(s.w.Clock.Now))
}

func (s *SweeperSuite) sweeper(expirer Expirer) *Sweeper {
	return New(s.w.Dir, s.w.PolicyCache(), s.w.Copies, expirer, Config{Concurrency: 2}, s.w.Logger,
		WithClock(s.w.Clock.Now),
		WithAudit(s.w.Audit),
		WithMetrics(s.metrics))
}

func (s *SweeperSuite) addCopy(tenantID int64, age time.Duration) *models.MessageCopy {
	cp, err := s.w.Copies.Create(s.ctx, &models.MessageCopy{
		TenantID:    tenantID,
		SenderID:    1,
		ReceiverID:  2,
		MessageBody: "hello",
		CopyReason:  models.CopyReasonFirstContact,
		CreatedAt:   s.w.Clock.Now().Add(-age),
	})
	s.Require().NoError(err)
	return cp
}

// addReviewed adds a copy a broker has already read.
func (s *SweeperSuite) addReviewed(tenantID int64, age time.Duration) *models.MessageCopy {
	cp := s.addCopy(tenantID, age)
	_, err := s.w.Copies.MarkReviewed(s.ctx, tenantID, cp.ID, 900, s.w.Clock.Now())
	s.Require().NoError(err)
	return cp
}

func (s *SweeperSuite) exists(tenantID, copyID int64) bool {
	v, err := s.w.Copies.Get(s.ctx, tenantID, copyID)
	s.Require().NoError(err)
	return v != nil
}

func (s *SweeperSuite) TestRetention() {
	stale := s.addReviewed(tenantA, 400*day)
	held := s.addReviewed(tenantA, 400*day)
	unread := s.addCopy(tenantA, 400*day)
	recent := s.addReviewed(tenantA, 100*day)
	staleB := s.addReviewed(tenantB, 40*day)
	recentB := s.addReviewed(tenantB, 10*day)
	_, err := s.w.Copies.Flag(s.ctx, tenantA, held.ID, 900, "evidence", s.w.Clock.Now())
	s.Require().NoError(err)

	res, err := s.sweeper(s.workflow).RunOnce(s.ctx)
	s.Require().NoError(err)
	s.NotEmpty(res.RunID)
	s.Equal(2, res.Tenants)
	s.Equal(int64(2), res.Purged)
	s.Zero(res.Failures)

	s.False(s.exists(tenantA, stale.ID))
	s.True(s.exists(tenantA, held.ID), "flagged copies are kept past retention")
	s.True(s.exists(tenantA, unread.ID), "unreviewed copies are kept past retention")
	s.True(s.exists(tenantA, recent.ID))
	s.False(s.exists(tenantB, staleB.ID))
	s.True(s.exists(tenantB, recentB.ID))

	events := s.w.Audit.OfType(audit.EventRetentionPurged)
	s.Require().Len(events, 2)
	for _, ev := range events {
		s.Equal(int64(1), ev.Details["count"])
		s.Equal(res.RunID, ev.Details["run_id"])
	}
	s.Equal(2.0, promtest.ToFloat64(s.metrics.RetentionDeleted))

	res, err = s.sweeper(s.workflow).RunOnce(s.ctx)
	s.Require().NoError(err)
	s.Zero(res.Purged)
	s.Len(s.w.Audit.OfType(audit.EventRetentionPurged), 2, "an empty purge is not announced")
}

func (s *SweeperSuite) TestExpiresOverdueExchanges() {
	ex, err := s.workflow.Create(s.ctx, tenantA, exchange.CreateInput{RequesterID: 1, ListingID: 100, Hours: 8})
	s.Require().NoError(err)
	s.Require().Equal(models.StatusPendingBroker, ex.Status)

	res, err := s.sweeper(s.workflow).RunOnce(s.ctx)
	s.Require().NoError(err)
	s.Zero(res.Expired)

	s.w.Clock.Advance(8 * day)
	res, err = s.sweeper(s.workflow).RunOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, res.Expired)

	got, err := s.w.Exchanges.Get(s.ctx, tenantA, ex.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusExpired, got.Status)
}

func (s *SweeperSuite) TestFailingTenantDoesNotStopOthers() {
	s.addReviewed(tenantA, 400*day)
	s.addReviewed(tenantB, 400*day)

	res, err := s.sweeper(failingExpirer{Expirer: s.workflow, tenantID: tenantA}).RunOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, res.Failures)
	s.Equal(int64(2), res.Purged, "retention still runs for the failing tenant")
}

func (s *SweeperSuite) TestTenantListFailure() {
	sw := New(brokenTenants{}, s.w.PolicyCache(), s.w.Copies, s.workflow, Config{}, s.w.Logger)
	_, err := sw.RunOnce(s.ctx)
	s.ErrorContains(err, "list tenants")
}

func (s *SweeperSuite) TestRunStopsWithContext() {
	s.addReviewed(tenantA, 400*day)
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	s.NoError(s.sweeper(s.workflow).Run(ctx))
	s.Len(s.w.Audit.OfType(audit.EventRetentionPurged), 1, "Run sweeps once before waiting")
}
