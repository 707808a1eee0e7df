package memory

import (
	"context"
	"sync"

	"github.com/lalith-99/brokerguard/internal/policy"
)

type PolicyStore struct {
	mu      sync.RWMutex
	configs map[int64]policy.Config
}

func NewPolicyStore() *PolicyStore {
	return &PolicyStore{configs: make(map[int64]policy.Config)}
}

func (s *PolicyStore) Get(_ context.Context, tenantID int64) (*policy.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cfg, ok := s.configs[tenantID]; ok {
		return &cfg, nil
	}
	return nil, nil
}

func (s *PolicyStore) Put(_ context.Context, tenantID int64, cfg policy.Config, _ int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[tenantID] = cfg
	return nil
}
