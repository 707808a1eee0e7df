//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lalith-99/brokerguard/internal/db"
	"github.com/lalith-99/brokerguard/internal/models"
	"github.com/lalith-99/brokerguard/internal/policy"
	"github.com/lalith-99/brokerguard/internal/repository"
	"github.com/lalith-99/brokerguard/internal/repository/postgres"
	"github.com/lalith-99/brokerguard/internal/testutil/containers"
	"github.com/stretchr/testify/suite"
)

const (
	tenantA int64 = 1
	tenantB int64 = 2

	alice   int64 = 10
	bob     int64 = 11
	outside int64 = 20
	broker  int64 = 900

	listingGarden  int64 = 100
	listingOutside int64 = 200
)

type StoreSuite struct {
	suite.Suite
	db  *db.DB
	ctx context.Context
	now time.Time

	contacts  *postgres.ContactStore
	copies    *postgres.CopyStore
	directory *postgres.DirectoryStore
	exchanges *postgres.ExchangeStore
	policies  *postgres.PolicyStore
	riskTags  *postgres.RiskTagStore
	tenants   *postgres.TenantStore
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupSuite() {
	s.db = containers.NewPostgres(s.T())
	pool := s.db.Pool()
	s.contacts = postgres.NewContactStore(pool)
	s.copies = postgres.NewCopyStore(pool)
	s.directory = postgres.NewDirectoryStore(pool)
	s.exchanges = postgres.NewExchangeStore(pool)
	s.policies = postgres.NewPolicyStore(pool)
	s.riskTags = postgres.NewRiskTagStore(pool)
	s.tenants = postgres.NewTenantStore(pool)
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Now().UTC().Truncate(time.Microsecond)

	_, err := s.db.Pool().Exec(s.ctx, `TRUNCATE tenants, users, listings, messages, broker_configs,
		listing_risk_tags, user_first_contacts, user_monitoring, broker_message_copies,
		exchange_history, exchange_requests RESTART IDENTITY CASCADE`)
	s.Require().NoError(err)

	s.exec(`INSERT INTO tenants (id, name) VALUES ($1, 'Riverside'), ($2, 'Hilltop')`, tenantA, tenantB)
	s.exec(`INSERT INTO users (id, tenant_id, display_name) VALUES ($1, $4, 'Alice'), ($2, $4, 'Bob'), ($3, $5, 'Olga')`,
		alice, bob, outside, tenantA, tenantB)
	s.exec(`INSERT INTO listings (id, tenant_id, user_id, title) VALUES ($1, $3, $4, 'Garden help'), ($2, $5, $6, 'Bike repair')`,
		listingGarden, listingOutside, tenantA, bob, tenantB, outside)
}

func (s *StoreSuite) exec(query string, args ...any) {
	_, err := s.db.Pool().Exec(s.ctx, query, args...)
	s.Require().NoError(err)
}

func (s *StoreSuite) addCopy(tenantID int64, listingID *int64, createdAt time.Time) *models.MessageCopy {
	c, err := s.copies.Create(s.ctx, &models.MessageCopy{
		TenantID:         tenantID,
		SenderID:         alice,
		ReceiverID:       bob,
		MessageBody:      "hello",
		CopyReason:       models.CopyReasonFirstContact,
		RelatedListingID: listingID,
		CreatedAt:        createdAt,
	})
	s.Require().NoError(err)
	return c
}

func (s *StoreSuite) TestDirectoryAndTenants() {
	s.Run("member carries its tenant", func() {
		m, err := s.directory.GetMember(s.ctx, outside)
		s.Require().NoError(err)
		s.Require().NotNil(m)
		s.Equal(tenantB, m.TenantID)
		s.Equal("Olga", m.DisplayName)
	})

	s.Run("listing carries its owner", func() {
		l, err := s.directory.GetListing(s.ctx, listingGarden)
		s.Require().NoError(err)
		s.Require().NotNil(l)
		s.Equal(bob, l.OwnerID)
		s.Equal("Garden help", l.Title)
	})

	s.Run("unknown rows are nil", func() {
		m, err := s.directory.GetMember(s.ctx, 4040)
		s.Require().NoError(err)
		s.Nil(m)
		l, err := s.directory.GetListing(s.ctx, 4040)
		s.Require().NoError(err)
		s.Nil(l)
	})

	s.Run("tenant ids", func() {
		ids, err := s.tenants.ListIDs(s.ctx)
		s.Require().NoError(err)
		s.Equal([]int64{tenantA, tenantB}, ids)
	})
}

func (s *StoreSuite) TestMarkPairConcurrent() {
	pair := models.NewUserPair(bob, alice)

	const callers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		errs    []error
	)
	for i := range callers {
		wg.Add(1)
		go func(messageID int64) {
			defer wg.Done()
			ok, err := s.contacts.MarkPair(s.ctx, tenantA, pair, messageID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if ok {
				created++
			}
		}(int64(i + 1))
	}
	wg.Wait()

	s.Empty(errs)
	s.Equal(1, created)

	has, err := s.contacts.HasHistory(s.ctx, tenantA, models.NewUserPair(alice, bob))
	s.Require().NoError(err)
	s.True(has)

	has, err = s.contacts.HasHistory(s.ctx, tenantB, pair)
	s.Require().NoError(err)
	s.False(has, "history is per tenant")
}

func (s *StoreSuite) TestMonitoring() {
	joined := s.now.Add(-48 * time.Hour)

	rec, err := s.contacts.EnsureMonitoring(s.ctx, tenantA, alice, joined)
	s.Require().NoError(err)
	s.True(rec.JoinedAt.Equal(joined))
	s.False(rec.UnderMonitoring)

	again, err := s.contacts.EnsureMonitoring(s.ctx, tenantA, alice, s.now)
	s.Require().NoError(err)
	s.True(again.JoinedAt.Equal(joined), "joined_at is never overwritten")

	reason := "reported by neighbour"
	setBy := broker
	rec.UnderMonitoring = true
	rec.MonitoringReason = &reason
	rec.MonitoringSetBy = &setBy
	rec.MonitoringSetAt = &s.now
	updated, err := s.contacts.SetMonitoring(s.ctx, rec)
	s.Require().NoError(err)
	s.True(updated.UnderMonitoring)
	s.Equal(reason, *updated.MonitoringReason)

	n, err := s.contacts.CountMonitored(s.ctx, tenantA)
	s.Require().NoError(err)
	s.EqualValues(1, n)

	views, total, err := s.contacts.ListMonitoring(s.ctx, tenantA, models.MonitoringFilterMonitored, models.Pagination{Page: 1, PerPage: 20})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Require().Len(views, 1)
	s.Equal("Alice", views[0].DisplayName)

	missing, err := s.contacts.GetMonitoring(s.ctx, tenantB, alice)
	s.Require().NoError(err)
	s.Nil(missing)
}

func (s *StoreSuite) TestCopyReviewLifecycle() {
	c := s.addCopy(tenantA, nil, s.now)

	view, err := s.copies.Get(s.ctx, tenantA, c.ID)
	s.Require().NoError(err)
	s.Require().NotNil(view)
	s.Equal("Alice", view.SenderName)
	s.Equal("Bob", view.ReceiverName)
	s.Nil(view.ListingTitle)

	other, err := s.copies.Get(s.ctx, tenantB, c.ID)
	s.Require().NoError(err)
	s.Nil(other, "copies are tenant scoped")

	changed, err := s.copies.MarkReviewed(s.ctx, tenantA, c.ID, broker, s.now)
	s.Require().NoError(err)
	s.True(changed)
	changed, err = s.copies.MarkReviewed(s.ctx, tenantA, c.ID, broker+1, s.now.Add(time.Minute))
	s.Require().NoError(err)
	s.False(changed)

	changed, err = s.copies.Flag(s.ctx, tenantA, c.ID, broker+1, "asked for bank details", s.now.Add(time.Hour))
	s.Require().NoError(err)
	s.True(changed)

	view, err = s.copies.Get(s.ctx, tenantA, c.ID)
	s.Require().NoError(err)
	s.True(view.Reviewed)
	s.True(view.Flagged)
	s.Equal(broker, *view.ReviewedBy, "first reviewer is kept")
	s.True(view.ReviewedAt.Equal(s.now))
	s.Equal("asked for bank details", *view.FlagReason)

	n, err := s.copies.CountUnreviewed(s.ctx, tenantA)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *StoreSuite) TestCopyListOrdering() {
	garden := listingGarden
	older := s.addCopy(tenantA, &garden, s.now.Add(-2*time.Hour))
	newer := s.addCopy(tenantA, nil, s.now.Add(-time.Hour))
	flagged := s.addCopy(tenantA, nil, s.now.Add(-3*time.Hour))
	s.addCopy(tenantB, nil, s.now)

	_, err := s.copies.Flag(s.ctx, tenantA, flagged.ID, broker, "spam", s.now)
	s.Require().NoError(err)

	views, total, err := s.copies.List(s.ctx, tenantA, models.CopyFilterAll, models.Pagination{Page: 1, PerPage: 20})
	s.Require().NoError(err)
	s.Equal(3, total)
	s.Require().Len(views, 3)
	s.Equal([]int64{flagged.ID, newer.ID, older.ID}, []int64{views[0].ID, views[1].ID, views[2].ID})
	s.Require().NotNil(views[2].ListingTitle)
	s.Equal("Garden help", *views[2].ListingTitle)

	views, total, err = s.copies.List(s.ctx, tenantA, models.CopyFilterUnreviewed, models.Pagination{Page: 2, PerPage: 1})
	s.Require().NoError(err)
	s.Equal(2, total)
	s.Require().Len(views, 1)
	s.Equal(older.ID, views[0].ID)
}

func (s *StoreSuite) TestDeleteExpiredKeepsFlaggedAndUnread() {
	old := s.addCopy(tenantA, nil, s.now.Add(-400*24*time.Hour))
	oldFlagged := s.addCopy(tenantA, nil, s.now.Add(-400*24*time.Hour))
	oldUnread := s.addCopy(tenantA, nil, s.now.Add(-400*24*time.Hour))
	recent := s.addCopy(tenantA, nil, s.now.Add(-time.Hour))
	otherTenant := s.addCopy(tenantB, nil, s.now.Add(-400*24*time.Hour))

	for _, c := range []*models.MessageCopy{old, recent, otherTenant} {
		_, err := s.copies.MarkReviewed(s.ctx, c.TenantID, c.ID, broker, s.now)
		s.Require().NoError(err)
	}
	_, err := s.copies.Flag(s.ctx, tenantA, oldFlagged.ID, broker, "evidence", s.now)
	s.Require().NoError(err)

	n, err := s.copies.DeleteExpired(s.ctx, tenantA, s.now.Add(-365*24*time.Hour))
	s.Require().NoError(err)
	s.EqualValues(1, n)

	for id, kept := range map[int64]bool{old.ID: false, oldFlagged.ID: true, oldUnread.ID: true, recent.ID: true} {
		v, err := s.copies.Get(s.ctx, tenantA, id)
		s.Require().NoError(err)
		s.Equal(kept, v != nil, "copy %d", id)
	}
	v, err := s.copies.Get(s.ctx, tenantB, otherTenant.ID)
	s.Require().NoError(err)
	s.NotNil(v)
}

func (s *StoreSuite) newExchange(status models.ExchangeStatus) *models.ExchangeRequest {
	expires := s.now.Add(168 * time.Hour)
	ex, err := s.exchanges.Create(s.ctx, &models.ExchangeRequest{
		TenantID:       tenantA,
		RequesterID:    alice,
		ProviderID:     bob,
		ListingID:      listingGarden,
		Status:         status,
		HoursRequested: 2,
		CreatedAt:      s.now,
		ExpiresAt:      &expires,
	})
	s.Require().NoError(err)
	return ex
}

func (s *StoreSuite) TestExchangeVersioning() {
	ex := s.newExchange(models.StatusPendingBroker)
	s.EqualValues(1, ex.Version)

	stale := *ex

	ex.Status = models.StatusApproved
	s.Require().NoError(s.exchanges.Update(s.ctx, ex))
	s.EqualValues(2, ex.Version)

	stale.Status = models.StatusRejected
	err := s.exchanges.Update(s.ctx, &stale)
	s.ErrorIs(err, repository.ErrVersionConflict)

	got, err := s.exchanges.Get(s.ctx, tenantA, ex.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, got.Status)
	s.EqualValues(2, got.Version)

	missing, err := s.exchanges.Get(s.ctx, tenantB, ex.ID)
	s.Require().NoError(err)
	s.Nil(missing)
}

func (s *StoreSuite) TestExchangeQueries() {
	pending := s.newExchange(models.StatusPendingBroker)
	approved := s.newExchange(models.StatusAutoApproved)

	deadline := s.now.Add(-time.Minute)
	approved.ConfirmationDeadline = &deadline
	s.Require().NoError(s.exchanges.Update(s.ctx, approved))

	due, err := s.exchanges.ListDue(s.ctx, tenantA, s.now, 10)
	s.Require().NoError(err)
	s.Require().Len(due, 1)
	s.Equal(approved.ID, due[0].ID)

	due, err = s.exchanges.ListDue(s.ctx, tenantA, s.now.Add(168*time.Hour), 10)
	s.Require().NoError(err)
	s.Len(due, 2, "a deadline equal to now is due")

	due, err = s.exchanges.ListDue(s.ctx, tenantA, s.now.Add(200*time.Hour), 10)
	s.Require().NoError(err)
	s.Len(due, 2)

	n, err := s.exchanges.CountByStatus(s.ctx, tenantA, models.StatusPendingBroker)
	s.Require().NoError(err)
	s.EqualValues(1, n)

	list, total, err := s.exchanges.List(s.ctx, tenantA, []models.ExchangeStatus{models.StatusPendingBroker}, models.Pagination{Page: 1, PerPage: 20})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Require().Len(list, 1)
	s.Equal(pending.ID, list[0].ID)

	exists, err := s.exchanges.ExistsForListing(s.ctx, tenantA, listingGarden, models.NewUserPair(bob, alice))
	s.Require().NoError(err)
	s.True(exists)
	exists, err = s.exchanges.ExistsForListing(s.ctx, tenantA, listingOutside, models.NewUserPair(bob, alice))
	s.Require().NoError(err)
	s.False(exists)
}

func (s *StoreSuite) TestExchangeHistory() {
	ex := s.newExchange(models.StatusPendingBroker)
	from, to := models.StatusRequested, models.StatusPendingBroker
	actor := alice

	s.Require().NoError(s.exchanges.AppendHistory(s.ctx, &models.ExchangeHistoryEntry{
		TenantID:   tenantA,
		ExchangeID: ex.ID,
		Action:     "requested",
		ActorID:    &actor,
		ActorRole:  models.RoleRequester,
		OldStatus:  &from,
		NewStatus:  &to,
		CreatedAt:  s.now,
	}))
	s.Require().NoError(s.exchanges.AppendHistory(s.ctx, &models.ExchangeHistoryEntry{
		TenantID:   tenantA,
		ExchangeID: ex.ID,
		Action:     "expired",
		ActorRole:  models.RoleSystem,
		OldStatus:  &to,
		CreatedAt:  s.now.Add(time.Hour),
	}))

	history, err := s.exchanges.History(s.ctx, tenantA, ex.ID)
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal("requested", history[0].Action)
	s.Equal(alice, *history[0].ActorID)
	s.Equal("expired", history[1].Action)
	s.Nil(history[1].ActorID)

	history, err = s.exchanges.History(s.ctx, tenantB, ex.ID)
	s.Require().NoError(err)
	s.Empty(history)
}

func (s *StoreSuite) TestWithinTxRollsBack() {
	boom := errors.New("boom")
	err := s.db.WithinTx(s.ctx, func(ctx context.Context) error {
		created, err := s.contacts.MarkPair(ctx, tenantA, models.NewUserPair(alice, bob), 1)
		s.Require().NoError(err)
		s.True(created)
		return boom
	})
	s.ErrorIs(err, boom)

	has, err := s.contacts.HasHistory(s.ctx, tenantA, models.NewUserPair(alice, bob))
	s.Require().NoError(err)
	s.False(has)

	err = s.db.WithinTx(s.ctx, func(ctx context.Context) error {
		_, err := s.contacts.MarkPair(ctx, tenantA, models.NewUserPair(alice, bob), 1)
		return err
	})
	s.Require().NoError(err)
	has, err = s.contacts.HasHistory(s.ctx, tenantA, models.NewUserPair(alice, bob))
	s.Require().NoError(err)
	s.True(has)
}

func (s *StoreSuite) TestPolicyRoundTrip() {
	missing, err := s.policies.Get(s.ctx, tenantA)
	s.Require().NoError(err)
	s.Nil(missing)

	cfg := policy.Default()
	cfg.BrokerVisibility.RetentionDays = 30
	cfg.BrokerVisibility.RandomSamplePercentage = 15
	cfg.ExchangeWorkflow.RequireBrokerApproval = true
	s.Require().NoError(s.policies.Put(s.ctx, tenantA, cfg, broker))

	got, err := s.policies.Get(s.ctx, tenantA)
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(cfg, *got)

	cfg.BrokerVisibility.RetentionDays = 90
	s.Require().NoError(s.policies.Put(s.ctx, tenantA, cfg, broker))
	got, err = s.policies.Get(s.ctx, tenantA)
	s.Require().NoError(err)
	s.Equal(90, got.BrokerVisibility.RetentionDays)
}

func (s *StoreSuite) TestRiskTags() {
	category := "safeguarding"
	tag, err := s.riskTags.Upsert(s.ctx, &models.RiskTag{
		TenantID:     tenantA,
		ListingID:    listingGarden,
		RiskLevel:    models.RiskHigh,
		RiskCategory: &category,
		DBSRequired:  true,
		TaggedBy:     broker,
		TaggedAt:     s.now,
	})
	s.Require().NoError(err)
	s.Require().NotNil(tag)
	s.Equal(models.RiskHigh, tag.RiskLevel)

	s.Run("retagging replaces the level", func() {
		tag, err := s.riskTags.Upsert(s.ctx, &models.RiskTag{
			TenantID:  tenantA,
			ListingID: listingGarden,
			RiskLevel: models.RiskCritical,
			TaggedBy:  broker,
			TaggedAt:  s.now.Add(time.Minute),
		})
		s.Require().NoError(err)
		s.Require().NotNil(tag)
		s.Equal(models.RiskCritical, tag.RiskLevel)
		s.Nil(tag.RiskCategory)
	})

	s.Run("another tenant cannot take over the tag", func() {
		tag, err := s.riskTags.Upsert(s.ctx, &models.RiskTag{
			TenantID:  tenantB,
			ListingID: listingGarden,
			RiskLevel: models.RiskLow,
			TaggedBy:  broker,
			TaggedAt:  s.now,
		})
		s.Require().NoError(err)
		s.Nil(tag)

		got, err := s.riskTags.Get(s.ctx, tenantA, listingGarden)
		s.Require().NoError(err)
		s.Equal(models.RiskCritical, got.RiskLevel)
	})

	s.Run("list joins the title", func() {
		views, err := s.riskTags.List(s.ctx, tenantA, nil)
		s.Require().NoError(err)
		s.Require().Len(views, 1)
		s.Equal("Garden help", *views[0].ListingTitle)

		low := models.RiskLow
		views, err = s.riskTags.List(s.ctx, tenantA, &low)
		s.Require().NoError(err)
		s.Empty(views)

		n, err := s.riskTags.CountHighRisk(s.ctx, tenantA)
		s.Require().NoError(err)
		s.EqualValues(1, n)
	})

	s.Run("delete", func() {
		removed, err := s.riskTags.Delete(s.ctx, tenantB, listingGarden)
		s.Require().NoError(err)
		s.False(removed)

		removed, err = s.riskTags.Delete(s.ctx, tenantA, listingGarden)
		s.Require().NoError(err)
		s.True(removed)

		got, err := s.riskTags.Get(s.ctx, tenantA, listingGarden)
		s.Require().NoError(err)
		s.Nil(got)
	})
}
