package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/lalith-99/brokerguard/internal/models"
)

type RiskTagStore struct {
	mu   sync.RWMutex
	dir  *DirectoryStore
	tags map[int64]models.RiskTag // by listing id
}

// NewRiskTagStore returns an empty registry. dir supplies listing titles and
// may be nil.
func NewRiskTagStore(dir *DirectoryStore) *RiskTagStore {
	return &RiskTagStore{dir: dir, tags: make(map[int64]models.RiskTag)}
}

func (s *RiskTagStore) Get(_ context.Context, tenantID, listingID int64) (*models.RiskTag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tags[listingID]; ok && t.TenantID == tenantID {
		return &t, nil
	}
	return nil, nil
}

func (s *RiskTagStore) Upsert(_ context.Context, tag *models.RiskTag) (*models.RiskTag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.tags[tag.ListingID]; ok && existing.TenantID != tag.TenantID {
		return nil, nil
	}
	s.tags[tag.ListingID] = *tag
	out := *tag
	return &out, nil
}

func (s *RiskTagStore) Delete(_ context.Context, tenantID, listingID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tags[listingID]
	if !ok || t.TenantID != tenantID {
		return false, nil
	}
	delete(s.tags, listingID)
	return true, nil
}

func (s *RiskTagStore) List(_ context.Context, tenantID int64, level *models.RiskLevel) ([]models.RiskTagView, error) {
	s.mu.RLock()
	out := make([]models.RiskTagView, 0)
	for _, t := range s.tags {
		if t.TenantID != tenantID {
			continue
		}
		if level != nil && t.RiskLevel != *level {
			continue
		}
		out = append(out, models.RiskTagView{RiskTag: t})
	}
	s.mu.RUnlock()

	for i := range out {
		out[i].ListingTitle = s.dir.listingTitle(&out[i].ListingID)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.RiskLevel.Rank() != b.RiskLevel.Rank() {
			return a.RiskLevel.Rank() < b.RiskLevel.Rank()
		}
		return a.TaggedAt.After(b.TaggedAt)
	})
	return out, nil
}

func (s *RiskTagStore) CountHighRisk(_ context.Context, tenantID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, t := range s.tags {
		if t.TenantID == tenantID && t.RiskLevel.IsHigh() {
			n++
		}
	}
	return n, nil
}
