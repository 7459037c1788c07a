package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process interview store for local/dev use.
type InMemoryStore struct {
	mu         sync.RWMutex
	interviews map[string]Interview
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{interviews: make(map[string]Interview)}
}

func (s *InMemoryStore) Create(_ context.Context, interview Interview) (Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if interview.ID == "" {
		interview.ID = uuid.NewString()
	}
	if interview.CreatedAt.IsZero() {
		interview.CreatedAt = time.Now().UTC()
	}
	s.interviews[interview.ID] = interview
	return interview, nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (Interview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	iv, ok := s.interviews[id]
	if !ok {
		return Interview{}, ErrNotFound
	}
	return iv, nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID string) ([]Interview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Interview
	for _, iv := range s.interviews {
		if iv.UserID == userID {
			out = append(out, iv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) Questions(ctx context.Context, id string) ([]string, error) {
	iv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return iv.Questions, nil
}

func (s *InMemoryStore) Close() error { return nil }
