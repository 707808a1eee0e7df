package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lalith-99/brokerguard/internal/models"
)

type CopyStore struct {
	mu     sync.RWMutex
	dir    *DirectoryStore
	nextID int64
	copies map[int64]models.MessageCopy
}

// NewCopyStore returns an empty store. dir supplies names and listing titles
// for views and may be nil.
func NewCopyStore(dir *DirectoryStore) *CopyStore {
	return &CopyStore{dir: dir, copies: make(map[int64]models.MessageCopy)}
}

func (s *CopyStore) Create(_ context.Context, c *models.MessageCopy) (*models.MessageCopy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	out := *c
	out.ID = s.nextID
	s.copies[out.ID] = out
	return &out, nil
}

func (s *CopyStore) view(c models.MessageCopy) models.MessageCopyView {
	return models.MessageCopyView{
		MessageCopy:  c,
		SenderName:   s.dir.memberName(c.SenderID),
		ReceiverName: s.dir.memberName(c.ReceiverID),
		ListingTitle: s.dir.listingTitle(c.RelatedListingID),
	}
}

func (s *CopyStore) Get(_ context.Context, tenantID, copyID int64) (*models.MessageCopyView, error) {
	s.mu.RLock()
	c, ok := s.copies[copyID]
	s.mu.RUnlock()
	if !ok || c.TenantID != tenantID {
		return nil, nil
	}
	v := s.view(c)
	return &v, nil
}

func (s *CopyStore) List(_ context.Context, tenantID int64, filter models.CopyFilter, p models.Pagination) ([]models.MessageCopyView, int, error) {
	s.mu.RLock()
	matched := make([]models.MessageCopy, 0)
	for _, c := range s.copies {
		if c.TenantID == tenantID && filter.Matches(&c) {
			matched = append(matched, c)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.Flagged != b.Flagged {
			return a.Flagged
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	page := paginate(matched, p)
	out := make([]models.MessageCopyView, 0, len(page))
	for _, c := range page {
		out = append(out, s.view(c))
	}
	return out, len(matched), nil
}

func (s *CopyStore) MarkReviewed(_ context.Context, tenantID, copyID, reviewerID int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.copies[copyID]
	if !ok || c.TenantID != tenantID || c.Reviewed {
		return false, nil
	}
	c.Reviewed = true
	c.ReviewedAt = &at
	c.ReviewedBy = &reviewerID
	s.copies[copyID] = c
	return true, nil
}

func (s *CopyStore) Flag(_ context.Context, tenantID, copyID, reviewerID int64, reason string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.copies[copyID]
	if !ok || c.TenantID != tenantID {
		return false, nil
	}
	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	if c.Flagged && equalStrings(c.FlagReason, reasonPtr) {
		return false, nil
	}
	c.Flagged = true
	c.FlagReason = reasonPtr
	if !c.Reviewed {
		c.Reviewed = true
		c.ReviewedAt = &at
		c.ReviewedBy = &reviewerID
	}
	s.copies[copyID] = c
	return true, nil
}

func equalStrings(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *CopyStore) CountUnreviewed(_ context.Context, tenantID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, c := range s.copies {
		if c.TenantID == tenantID && !c.Reviewed {
			n++
		}
	}
	return n, nil
}

func (s *CopyStore) DeleteExpired(_ context.Context, tenantID int64, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, c := range s.copies {
		if c.TenantID == tenantID && c.Reviewed && !c.Flagged && c.CreatedAt.Before(cutoff) {
			delete(s.copies, id)
			n++
		}
	}
	return n, nil
}
