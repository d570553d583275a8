package approval

import (
	"sync"

	"github.com/stewardio/steward/internal/types"
)

// Store is a concurrent-safe in-memory map of approval requests. The
// manager is the only writer; API handlers read through the manager.
type Store struct {
	mu   sync.RWMutex
	byID map[string]types.ApprovalRequest
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{byID: make(map[string]types.ApprovalRequest)}
}

// Put inserts or replaces a request.
func (s *Store) Put(req types.ApprovalRequest) {
	s.mu.Lock()
	s.byID[req.ID] = req
	s.mu.Unlock()
}

// Get returns the request with the given ID.
func (s *Store) Get(id string) (types.ApprovalRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.byID[id]
	return req, ok
}

// All returns every stored request.
func (s *Store) All() []types.ApprovalRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]types.ApprovalRequest, 0, len(s.byID))
	for _, req := range s.byID {
		result = append(result, req)
	}
	return result
}

// InState returns every request currently in the given state.
func (s *Store) InState(state types.ApprovalState) []types.ApprovalRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []types.ApprovalRequest
	for _, req := range s.byID {
		if req.State == state {
			result = append(result, req)
		}
	}
	return result
}

// Count returns the number of stored requests.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
