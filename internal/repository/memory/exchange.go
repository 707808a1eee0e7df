package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/lalith-99/brokerguard/internal/models"
	"github.com/lalith-99/brokerguard/internal/repository"
)

type ExchangeStore struct {
	mu        sync.RWMutex
	nextID    int64
	nextHist  int64
	exchanges map[int64]models.ExchangeRequest
	history   map[int64][]models.ExchangeHistoryEntry
}

func NewExchangeStore() *ExchangeStore {
	return &ExchangeStore{
		exchanges: make(map[int64]models.ExchangeRequest),
		history:   make(map[int64][]models.ExchangeHistoryEntry),
	}
}

func (s *ExchangeStore) Create(_ context.Context, ex *models.ExchangeRequest) (*models.ExchangeRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	out := *ex
	out.ID = s.nextID
	out.Version = 1
	s.exchanges[out.ID] = out
	return &out, nil
}

func (s *ExchangeStore) Get(_ context.Context, tenantID, exchangeID int64) (*models.ExchangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.exchanges[exchangeID]; ok && e.TenantID == tenantID {
		return &e, nil
	}
	return nil, nil
}

func (s *ExchangeStore) Update(_ context.Context, ex *models.ExchangeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.exchanges[ex.ID]
	if !ok || stored.TenantID != ex.TenantID || stored.Version != ex.Version {
		return repository.ErrVersionConflict
	}
	next := *ex
	next.Version++
	s.exchanges[ex.ID] = next
	ex.Version = next.Version
	return nil
}

func (s *ExchangeStore) AppendHistory(_ context.Context, entry *models.ExchangeHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHist++
	entry.ID = s.nextHist
	s.history[entry.ExchangeID] = append(s.history[entry.ExchangeID], *entry)
	return nil
}

func (s *ExchangeStore) History(_ context.Context, tenantID, exchangeID int64) ([]models.ExchangeHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ExchangeHistoryEntry, 0)
	for _, h := range s.history[exchangeID] {
		if h.TenantID == tenantID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *ExchangeStore) List(_ context.Context, tenantID int64, statuses []models.ExchangeStatus, p models.Pagination) ([]models.ExchangeRequest, int, error) {
	s.mu.RLock()
	matched := make([]models.ExchangeRequest, 0)
	for _, e := range s.exchanges {
		if e.TenantID != tenantID {
			continue
		}
		if len(statuses) > 0 && !slices.Contains(statuses, e.Status) {
			continue
		}
		matched = append(matched, e)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	return paginate(matched, p), len(matched), nil
}

func (s *ExchangeStore) ListDue(_ context.Context, tenantID int64, now time.Time, limit int) ([]models.ExchangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ExchangeRequest, 0)
	for _, e := range s.exchanges {
		if e.TenantID != tenantID {
			continue
		}
		switch e.Status {
		case models.StatusPendingBroker:
			if e.ExpiresAt == nil || e.ExpiresAt.After(now) {
				continue
			}
		case models.StatusApproved, models.StatusAutoApproved, models.StatusAwaitingConfirmation:
			if e.ConfirmationDeadline == nil || e.ConfirmationDeadline.After(now) {
				continue
			}
		default:
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *ExchangeStore) CountByStatus(_ context.Context, tenantID int64, status models.ExchangeStatus) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, e := range s.exchanges {
		if e.TenantID == tenantID && e.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *ExchangeStore) ExistsForListing(_ context.Context, tenantID, listingID int64, pair models.UserPair) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.exchanges {
		if e.TenantID == tenantID && e.ListingID == listingID &&
			models.NewUserPair(e.RequesterID, e.ProviderID) == pair {
			return true, nil
		}
	}
	return false, nil
}
