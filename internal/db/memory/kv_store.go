// Package memory provides a bounded in-process key-value store
package memory

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"Sideline/internal/core/storage"
)

// DefaultCapacity bounds the number of keys kept when no capacity is configured.
// Snapshot keys grow with the number of distinct filters a viewer tries.
const DefaultCapacity = 256

// KVStore implements storage.Store on top of an LRU cache.
// The least recently used key is evicted once capacity is reached.
type KVStore struct {
	cache *lru.Cache[string, string]
}

var _ storage.Store = (*KVStore)(nil)

// NewKVStore creates an in-memory store holding at most capacity keys
func NewKVStore(capacity int) (*KVStore, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	cache, err := lru.New[string, string](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru cache: %w", err)
	}
	return &KVStore{cache: cache}, nil
}

// Get returns the value for key or storage.ErrNotFound
func (s *KVStore) Get(_ context.Context, key string) (string, error) {
	value, ok := s.cache.Get(key)
	if !ok {
		return "", storage.ErrNotFound
	}
	return value, nil
}

// Set stores value under key
func (s *KVStore) Set(_ context.Context, key, value string) error {
	s.cache.Add(key, value)
	return nil
}

// Remove deletes key
func (s *KVStore) Remove(_ context.Context, key string) error {
	s.cache.Remove(key)
	return nil
}

// Len returns the number of stored keys
func (s *KVStore) Len() int {
	return s.cache.Len()
}
