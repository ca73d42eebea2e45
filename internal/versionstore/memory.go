package versionstore

import (
	"context"
	"sync"

	"github.com/pds-match-service/internal/domain"
)

// MemoryStore keeps the state in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	state domain.AlgorithmVersionState
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// NewMemoryStoreWithState creates an in-memory store seeded with state.
func NewMemoryStoreWithState(state domain.AlgorithmVersionState) *MemoryStore {
	return &MemoryStore{state: state}
}

// Load returns the current state.
func (s *MemoryStore) Load(ctx context.Context) (domain.AlgorithmVersionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

// CompareAndSwap replaces the state when it still equals expected.
func (s *MemoryStore) CompareAndSwap(ctx context.Context, expected, next domain.AlgorithmVersionState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != expected {
		return false, nil
	}
	s.state = next
	return true, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
