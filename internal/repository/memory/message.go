package memory

import (
	"context"
	"sync"

	"github.com/lalith-99/brokerguard/internal/models"
)

type MessageStore struct {
	mu       sync.RWMutex
	nextID   int64
	messages []models.DirectMessage
}

func NewMessageStore() *MessageStore {
	return &MessageStore{}
}

func (s *MessageStore) Create(_ context.Context, msg *models.DirectMessage) (*models.DirectMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	out := *msg
	out.ID = s.nextID
	s.messages = append(s.messages, out)
	return &out, nil
}

// Count returns the number of stored messages for tenantID.
func (s *MessageStore) Count(tenantID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.messages {
		if m.TenantID == tenantID {
			n++
		}
	}
	return n
}
