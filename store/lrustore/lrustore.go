// Package lrustore puts a bounded in-process read cache in front of a
// slower bucket store. Writes go straight through and evict the bucket,
// so a process never reads back a bucket older than its own last write.
package lrustore

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/minios-linux/doclate/cache"
)

// DefaultSize is the number of buckets kept when size <= 0.
const DefaultSize = 256

// Store is a read-through LRU over another cache.Store.
type Store struct {
	inner   cache.Store
	buckets *lru.Cache[string, map[string]string]

	// gens counts writes per key. A fill is only kept when no write
	// finished between its inner read and its insertion.
	mu   sync.Mutex
	gens map[string]uint64
}

// New wraps inner with an LRU holding up to size buckets.
func New(inner cache.Store, size int) (*Store, error) {
	if size <= 0 {
		size = DefaultSize
	}
	c, err := lru.New[string, map[string]string](size)
	if err != nil {
		return nil, err
	}
	return &Store{inner: inner, buckets: c, gens: make(map[string]uint64)}, nil
}

func (s *Store) Get(ctx context.Context, key string) (map[string]string, bool, error) {
	if b, ok := s.buckets.Get(key); ok {
		return clone(b), true, nil
	}
	s.mu.Lock()
	gen := s.gens[key]
	s.mu.Unlock()

	b, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}

	s.mu.Lock()
	if s.gens[key] == gen {
		s.buckets.Add(key, clone(b))
	}
	s.mu.Unlock()
	return b, true, nil
}

func (s *Store) Update(ctx context.Context, key string, fn func(map[string]string)) error {
	defer s.invalidate(key)
	return s.inner.Update(ctx, key, fn)
}

func (s *Store) Reset(ctx context.Context, key string) (bool, error) {
	defer s.invalidate(key)
	return s.inner.Reset(ctx, key)
}

// invalidate drops key and makes any fill that read before this point stale.
func (s *Store) invalidate(key string) {
	s.mu.Lock()
	s.gens[key]++
	s.buckets.Remove(key)
	s.mu.Unlock()
}

// Len reports how many buckets are cached in memory.
func (s *Store) Len() int { return s.buckets.Len() }

// Unwrap returns the wrapped store.
func (s *Store) Unwrap() cache.Store { return s.inner }

func clone(b map[string]string) map[string]string {
	out := make(map[string]string, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}
