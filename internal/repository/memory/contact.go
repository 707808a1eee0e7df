package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lalith-99/brokerguard/internal/models"
)

type pairKey struct {
	tenantID int64
	pair     models.UserPair
}

type memberKey struct {
	tenantID int64
	userID   int64
}

type ContactStore struct {
	mu         sync.RWMutex
	dir        *DirectoryStore
	pairs      map[pairKey]int64 // first message id
	monitoring map[memberKey]models.UserMonitoring
}

// NewContactStore returns an empty tracker. dir supplies display names and
// may be nil.
func NewContactStore(dir *DirectoryStore) *ContactStore {
	return &ContactStore{
		dir:        dir,
		pairs:      make(map[pairKey]int64),
		monitoring: make(map[memberKey]models.UserMonitoring),
	}
}

func (s *ContactStore) MarkPair(_ context.Context, tenantID int64, pair models.UserPair, messageID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := pairKey{tenantID, pair}
	if _, ok := s.pairs[k]; ok {
		return false, nil
	}
	s.pairs[k] = messageID
	return true, nil
}

func (s *ContactStore) HasHistory(_ context.Context, tenantID int64, pair models.UserPair) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pairs[pairKey{tenantID, pair}]
	return ok, nil
}

func (s *ContactStore) EnsureMonitoring(_ context.Context, tenantID, userID int64, joinedAt time.Time) (*models.UserMonitoring, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memberKey{tenantID, userID}
	rec, ok := s.monitoring[k]
	if !ok {
		rec = models.UserMonitoring{TenantID: tenantID, UserID: userID, JoinedAt: joinedAt}
		s.monitoring[k] = rec
	}
	return &rec, nil
}

func (s *ContactStore) GetMonitoring(_ context.Context, tenantID, userID int64) (*models.UserMonitoring, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.monitoring[memberKey{tenantID, userID}]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (s *ContactStore) SetMonitoring(_ context.Context, rec *models.UserMonitoring) (*models.UserMonitoring, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memberKey{rec.TenantID, rec.UserID}
	stored, ok := s.monitoring[k]
	if !ok {
		return nil, nil
	}
	stored.UnderMonitoring = rec.UnderMonitoring
	stored.MessagingDisabled = rec.MessagingDisabled
	stored.MonitoringReason = rec.MonitoringReason
	stored.MonitoringSetBy = rec.MonitoringSetBy
	stored.MonitoringSetAt = rec.MonitoringSetAt
	s.monitoring[k] = stored
	return &stored, nil
}

func (s *ContactStore) ListMonitoring(_ context.Context, tenantID int64, filter models.MonitoringFilter, p models.Pagination) ([]models.MonitoringView, int, error) {
	s.mu.RLock()
	all := make([]models.MonitoringView, 0)
	for _, rec := range s.monitoring {
		if rec.TenantID != tenantID || !filter.Matches(&rec) {
			continue
		}
		var contacts int64
		for k := range s.pairs {
			if k.tenantID == tenantID && (k.pair.Low == rec.UserID || k.pair.High == rec.UserID) {
				contacts++
			}
		}
		all = append(all, models.MonitoringView{UserMonitoring: rec, FirstContactCount: contacts})
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		a, b := all[i].MonitoringSetAt, all[j].MonitoringSetAt
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return all[i].UserID < all[j].UserID
	})

	page := paginate(all, p)
	for i := range page {
		page[i].DisplayName = s.dir.memberName(page[i].UserID)
	}
	return page, len(all), nil
}

func (s *ContactStore) CountMonitored(_ context.Context, tenantID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, rec := range s.monitoring {
		if rec.TenantID == tenantID && rec.UnderMonitoring {
			n++
		}
	}
	return n, nil
}
