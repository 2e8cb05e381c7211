package coordinator

import (
	"context"
	"sync"

	"storyreel/internal/domain"
)

// MemoryCheckpointStore is an in-memory CheckpointStore for tests and
// single-process development runs without Postgres.
type MemoryCheckpointStore struct {
	mu     sync.Mutex
	states map[string]*State
}

func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{states: make(map[string]*State)}
}

func (s *MemoryCheckpointStore) Load(_ context.Context, storyID string) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[storyID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return st.clone(), nil
}

func (s *MemoryCheckpointStore) Save(_ context.Context, st *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[st.StoryID] = st.clone()
	return nil
}

func (s *MemoryCheckpointStore) Delete(_ context.Context, storyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, storyID)
	return nil
}
