// Package memstore is an in-process bucket store. It is the default
// cache store for one-shot CLI runs and the reference store in tests.
package memstore

import (
	"context"
	"sync"

	"github.com/minios-linux/doclate/store/keylock"
)

// Store keeps buckets in a map.
type Store struct {
	mu      sync.RWMutex
	buckets map[string]map[string]string
	locks   keylock.Locker
}

// New returns an empty store.
func New() *Store {
	return &Store{buckets: make(map[string]map[string]string)}
}

func (s *Store) Get(_ context.Context, key string) (map[string]string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buckets[key]
	if !ok {
		return nil, false, nil
	}
	return copyBucket(b), true, nil
}

func (s *Store) Update(_ context.Context, key string, fn func(map[string]string)) error {
	unlock := s.locks.Lock(key)
	defer unlock()

	s.mu.RLock()
	b := copyBucket(s.buckets[key])
	s.mu.RUnlock()

	fn(b)

	s.mu.Lock()
	s.buckets[key] = b
	s.mu.Unlock()
	return nil
}

func (s *Store) Reset(_ context.Context, key string) (bool, error) {
	unlock := s.locks.Lock(key)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[key]
	if !ok || len(b) == 0 {
		return false, nil
	}
	s.buckets[key] = map[string]string{}
	return true, nil
}

// Keys returns the bucket keys present in the store.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.buckets))
	for k := range s.buckets {
		keys = append(keys, k)
	}
	return keys
}

func copyBucket(b map[string]string) map[string]string {
	out := make(map[string]string, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}
