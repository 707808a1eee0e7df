// Package testutil builds in-memory fixtures shared by service, sweeper and
// handler tests.
package testutil

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/lalith-99/brokerguard/internal/audit"
	"github.com/lalith-99/brokerguard/internal/models"
	"github.com/lalith-99/brokerguard/internal/policy"
	"github.com/lalith-99/brokerguard/internal/repository/cache"
	"github.com/lalith-99/brokerguard/internal/repository/memory"
	"github.com/lalith-99/brokerguard/internal/tenancy"
	"go.uber.org/zap"
)

// Epoch is the fixed start time of every World clock.
var Epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Clock is a settable time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock(t time.Time) *Clock {
	return &Clock{t: t}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// Recorder is an audit.Publisher that keeps every event.
type Recorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *Recorder) Publish(_ context.Context, ev audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder) Events() []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Event(nil), r.events...)
}

func (r *Recorder) OfType(t audit.EventType) []audit.Event {
	var out []audit.Event
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// World is one complete set of in-memory stores plus a clock and an audit
// recorder.
type World struct {
	Tx        *memory.Transactor
	Dir       *memory.DirectoryStore
	Policies  *memory.PolicyStore
	RiskTags  *memory.RiskTagStore
	Contacts  *memory.ContactStore
	Messages  *memory.MessageStore
	Copies    *memory.CopyStore
	Exchanges *memory.ExchangeStore

	Clock  *Clock
	Audit  *Recorder
	Logger *zap.Logger
}

func NewWorld() *World {
	dir := memory.NewDirectoryStore()
	return &World{
		Tx:        memory.NewTransactor(),
		Dir:       dir,
		Policies:  memory.NewPolicyStore(),
		RiskTags:  memory.NewRiskTagStore(dir),
		Contacts:  memory.NewContactStore(dir),
		Messages:  memory.NewMessageStore(),
		Copies:    memory.NewCopyStore(dir),
		Exchanges: memory.NewExchangeStore(),
		Clock:     NewClock(Epoch),
		Audit:     &Recorder{},
		Logger:    zap.NewNop(),
	}
}

// PolicyCache is the passthrough cache the services read configuration
// through.
func (w *World) PolicyCache() *cache.PolicyCache {
	return cache.NewPolicyCache(w.Policies, nil, time.Minute, w.Logger)
}

func (w *World) Guard() *tenancy.Guard {
	return tenancy.NewGuard(w.Dir, w.Audit, w.Logger)
}

// Member adds a member who joined the given number of days before Epoch.
func (w *World) Member(tenantID, id int64, joinedDaysAgo int) models.Member {
	m := models.Member{
		ID:          id,
		TenantID:    tenantID,
		DisplayName: "member " + strconv.FormatInt(id, 10),
		CreatedAt:   Epoch.Add(-time.Duration(joinedDaysAgo) * 24 * time.Hour),
	}
	w.Dir.AddMember(m)
	return m
}

func (w *World) Listing(tenantID, id, ownerID int64, title string) models.Listing {
	l := models.Listing{ID: id, TenantID: tenantID, OwnerID: ownerID, Title: title}
	w.Dir.AddListing(l)
	return l
}

// Tag stores a risk tag directly, bypassing the registry.
func (w *World) Tag(tenantID, listingID int64, level models.RiskLevel) {
	_, _ = w.RiskTags.Upsert(context.Background(), &models.RiskTag{
		TenantID:  tenantID,
		ListingID: listingID,
		RiskLevel: level,
		TaggedAt:  w.Clock.Now(),
	})
}

// Policy stores Default() for the tenant after applying mutate.
func (w *World) Policy(tenantID int64, mutate func(*policy.Config)) policy.Config {
	cfg := policy.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	_ = w.Policies.Put(context.Background(), tenantID, cfg, 0)
	return cfg
}
