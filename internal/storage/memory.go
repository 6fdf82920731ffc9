package storage

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store used by tests and the demo seeder.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	puts    int
}

// NewMemoryStore returns an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Put stores a copy of the blob under mem://key
func (s *MemoryStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects["mem://"+key] = cp
	s.puts++
	return "mem://" + key, nil
}

// Fetch returns the stored blob or ErrNotFound
func (s *MemoryStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[ref]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

// Delete removes the blob if present
func (s *MemoryStore) Delete(ctx context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, ref)
	return nil
}

// PutCount reports how many writes the store has seen
func (s *MemoryStore) PutCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts
}
