package snapshot

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps snapshots in-memory for development and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates a new in-memory snapshot store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Save persists the body and returns a memory:// URI.
func (s *MemoryStore) Save(_ context.Context, objectPath string, _ string, body []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[objectPath] = append([]byte(nil), body...)
	return fmt.Sprintf("memory://%s", objectPath), nil
}

// Get returns a stored snapshot body (test helper).
func (s *MemoryStore) Get(objectPath string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	body, ok := s.data[objectPath]
	return body, ok
}

// Len reports the number of stored snapshots (test helper).
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
