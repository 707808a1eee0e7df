package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/lalith-99/brokerguard/internal/models"
)

// DirectoryStore holds tenants, members and listings. It implements both
// repository.DirectoryRepository and repository.TenantRepository.
type DirectoryStore struct {
	mu       sync.RWMutex
	tenants  map[int64]models.Tenant
	members  map[int64]models.Member
	listings map[int64]models.Listing
}

func NewDirectoryStore() *DirectoryStore {
	return &DirectoryStore{
		tenants:  make(map[int64]models.Tenant),
		members:  make(map[int64]models.Member),
		listings: make(map[int64]models.Listing),
	}
}

func (s *DirectoryStore) AddTenant(t models.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[t.ID] = t
}

// AddMember registers the member and, if unknown, its tenant.
func (s *DirectoryStore) AddMember(m models.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[m.TenantID]; !ok {
		s.tenants[m.TenantID] = models.Tenant{ID: m.TenantID}
	}
	s.members[m.ID] = m
}

func (s *DirectoryStore) AddListing(l models.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[l.ID] = l
}

func (s *DirectoryStore) GetMember(_ context.Context, userID int64) (*models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.members[userID]; ok {
		return &m, nil
	}
	return nil, nil
}

func (s *DirectoryStore) GetListing(_ context.Context, listingID int64) (*models.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if l, ok := s.listings[listingID]; ok {
		return &l, nil
	}
	return nil, nil
}

func (s *DirectoryStore) ListIDs(_ context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.tenants))
	for id := range s.tenants {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *DirectoryStore) memberName(id int64) string {
	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.members[id].DisplayName
}

func (s *DirectoryStore) listingTitle(id *int64) *string {
	if s == nil || id == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if l, ok := s.listings[*id]; ok {
		return ptr(l.Title)
	}
	return nil
}
