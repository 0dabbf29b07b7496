package splitter

import (
	"context"
	"sync"
)

// MemoryChainStore is an in-memory ChainStore for development and tests.
type MemoryChainStore struct {
	mu     sync.RWMutex
	chains map[string][]*ChainNode
}

// NewMemoryChainStore creates an empty in-memory chain store.
func NewMemoryChainStore() *MemoryChainStore {
	return &MemoryChainStore{chains: make(map[string][]*ChainNode)}
}

func (s *MemoryChainStore) PutChain(ctx context.Context, rootAgentID string, chain []*ChainNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chains[rootAgentID] = chain
	return nil
}

func (s *MemoryChainStore) GetChain(ctx context.Context, rootAgentID string) ([]*ChainNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain, ok := s.chains[rootAgentID]
	if !ok {
		return nil, ErrChainNotFound
	}
	return chain, nil
}
