package agreements

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	agreements map[string]*Agreement
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{agreements: make(map[string]*Agreement)}
}

func (s *MemoryStore) Create(ctx context.Context, a *Agreement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.agreements[a.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Agreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agreements[id]
	if !ok {
		return nil, ErrAgreementNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) Update(ctx context.Context, a *Agreement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agreements[a.ID]; !ok {
		return ErrAgreementNotFound
	}
	cp := *a
	cp.UpdatedAt = time.Now()
	s.agreements[a.ID] = &cp
	return nil
}

func (s *MemoryStore) ListByPair(ctx context.Context, primary, secondary string) ([]*Agreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Agreement
	for _, a := range s.agreements {
		if a.PrimaryAgent == primary && a.SecondaryAgent == secondary {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListByAgent(ctx context.Context, agent string) ([]*Agreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Agreement
	for _, a := range s.agreements {
		if a.Touches(agent) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}
