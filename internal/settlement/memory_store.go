package settlement

import (
	"context"
	"math/big"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	plans      map[string]*SplitPlan
	balances   map[string]*big.Int
	executions map[string]*ExecutionRecord // planID:sessionID
	history    []*ExecutionRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		plans:      make(map[string]*SplitPlan),
		balances:   make(map[string]*big.Int),
		executions: make(map[string]*ExecutionRecord),
	}
}

func copyPlan(p *SplitPlan) *SplitPlan {
	cp := *p
	cp.Recipients = append([]string(nil), p.Recipients...)
	cp.ShareBps = append([]int(nil), p.ShareBps...)
	cp.Roles = append([]string(nil), p.Roles...)
	return &cp
}

func (s *MemoryStore) CreatePlan(ctx context.Context, plan *SplitPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[plan.ID] = copyPlan(plan)
	return nil
}

func (s *MemoryStore) GetPlan(ctx context.Context, id string) (*SplitPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[id]
	if !ok {
		return nil, ErrPlanNotFound
	}
	return copyPlan(p), nil
}

func (s *MemoryStore) UpdatePlan(ctx context.Context, plan *SplitPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[plan.ID]; !ok {
		return ErrPlanNotFound
	}
	s.plans[plan.ID] = copyPlan(plan)
	return nil
}

func (s *MemoryStore) ListPlans(ctx context.Context) ([]*SplitPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*SplitPlan, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, copyPlan(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) GetBalance(ctx context.Context, addr string) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.balances[addr]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(b), nil
}

func (s *MemoryStore) Credit(ctx context.Context, addr string, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[addr]
	if !ok {
		b = big.NewInt(0)
		s.balances[addr] = b
	}
	b.Add(b, amount)
	return nil
}

func (s *MemoryStore) ZeroBalance(ctx context.Context, addr string) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[addr]
	if !ok {
		return big.NewInt(0), nil
	}
	prior := new(big.Int).Set(b)
	b.SetInt64(0)
	return prior, nil
}

func (s *MemoryStore) ApplyExecution(ctx context.Context, credits []CreditEntry, rec *ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rec.PlanID + ":" + rec.SessionID
	if _, ok := s.executions[key]; ok {
		return ErrDuplicateSession
	}
	for _, c := range credits {
		b, ok := s.balances[c.Address]
		if !ok {
			b = big.NewInt(0)
			s.balances[c.Address] = b
		}
		b.Add(b, c.Amount)
	}
	cp := *rec
	s.executions[key] = &cp
	s.history = append(s.history, &cp)
	return nil
}

func (s *MemoryStore) RecordExecution(ctx context.Context, rec *ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rec.PlanID + ":" + rec.SessionID
	if _, ok := s.executions[key]; ok {
		return ErrDuplicateSession
	}
	cp := *rec
	s.executions[key] = &cp
	s.history = append(s.history, &cp)
	return nil
}

func (s *MemoryStore) HasExecution(ctx context.Context, planID, sessionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.executions[planID+":"+sessionID]
	return ok, nil
}

func (s *MemoryStore) ListExecutions(ctx context.Context, planID string, limit int) ([]*ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ExecutionRecord
	for i := len(s.history) - 1; i >= 0 && len(out) < limit; i-- {
		if s.history[i].PlanID == planID {
			cp := *s.history[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}
