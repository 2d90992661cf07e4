package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	domain "github.com/R3E-Network/voting_client/internal/domain/voting"
)

// MemoryStore keeps operations in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	ops   map[string]*domain.Operation
	order []string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ops: make(map[string]*domain.Operation)}
}

func (s *MemoryStore) Save(_ context.Context, op *domain.Operation) error {
	if op == nil || op.ID == "" {
		return fmt.Errorf("journal: operation id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.ops[op.ID]; !exists {
		s.order = append(s.order, op.ID)
	}
	s.ops[op.ID] = clone(op)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*domain.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.ops[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return clone(op), nil
}

func (s *MemoryStore) List(_ context.Context, filter Filter) ([]*domain.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit := filter.limit()
	out := make([]*domain.Operation, 0)
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		op := s.ops[s.order[i]]
		if filter.matches(op) {
			out = append(out, clone(op))
		}
	}
	return out, nil
}

func clone(op *domain.Operation) *domain.Operation {
	c := *op
	if op.Payload != nil {
		c.Payload = append(json.RawMessage(nil), op.Payload...)
	}
	return &c
}
