// Package cache implements the content-addressable translation cache.
//
// Every translated string is stored under a SHA-256 hash of everything
// that influenced it (backend, model, endpoint, locales, instructions and
// the source text). Hashes are grouped into 256 buckets by their first two
// hex characters, so a lookup for a whole document touches at most 256
// store keys no matter how many segments it has. Bumping the cache version
// moves all reads and writes to a fresh key space without deleting anything.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultVersion is the cache key-space version used when none is configured.
const DefaultVersion = 1

// KeyPrefix starts every bucket key.
const KeyPrefix = "translation-cache"

const (
	hashLen     = 64
	prefixLen   = 2
	bucketCount = 256
	// maxParallel bounds concurrent store calls per operation.
	maxParallel = 16
)

// Store is a key/value backend holding buckets (flat hash -> text maps).
type Store interface {
	// Get returns the bucket stored under key. A missing bucket is
	// reported with ok == false and no error.
	Get(ctx context.Context, key string) (bucket map[string]string, ok bool, err error)
	// Update atomically reads the bucket under key (empty if missing),
	// passes it to fn for in-place modification and writes it back.
	// Concurrent Updates of the same key must not lose writes.
	Update(ctx context.Context, key string, fn func(bucket map[string]string)) error
	// Reset empties the bucket under key if it exists and holds data.
	// It never creates a bucket and reports whether anything was cleared.
	Reset(ctx context.Context, key string) (bool, error)
}

// Key is the set of inputs a translation depends on.
type Key struct {
	Backend      string
	Model        string
	Endpoint     string
	SourceLocale string
	TargetLocale string
	Instructions string
	Text         string
}

// Hash returns the hex SHA-256 of the canonical form of k at version.
// Model, endpoint and instructions are trimmed; the text is hashed as is.
// Every field is written with its length in front and its raw bytes
// after, so distinct inputs never share an encoding, invalid UTF-8
// included.
func Hash(version int, k Key) string {
	h := sha256.New()
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(version))
	h.Write(n[:])
	for _, field := range []string{
		k.Backend,
		strings.TrimSpace(k.Model),
		strings.TrimSpace(k.Endpoint),
		k.SourceLocale,
		k.TargetLocale,
		strings.TrimSpace(k.Instructions),
		k.Text,
	} {
		binary.BigEndian.PutUint64(n[:], uint64(len(field)))
		h.Write(n[:])
		io.WriteString(h, field)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ValidHash reports whether h looks like a value returned by Hash.
func ValidHash(h string) bool {
	if len(h) != hashLen {
		return false
	}
	for i := 0; i < len(h); i++ {
		c := h[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// BucketKey returns the store key of the bucket with the given prefix.
func BucketKey(version int, prefix string) string {
	return fmt.Sprintf("%s:v%d:%s", KeyPrefix, version, prefix)
}

// ClearResult summarizes a Clear call.
type ClearResult struct {
	ClearedBuckets  int   `json:"clearedBuckets"`
	ClearedVersions []int `json:"clearedVersions"`
}

// Cache is a versioned view over a Store.
type Cache struct {
	store   Store
	version int
}

// New returns a cache at version (DefaultVersion when version < 1).
func New(store Store, version int) *Cache {
	if version < 1 {
		version = DefaultVersion
	}
	return &Cache{store: store, version: version}
}

// Version returns the active key-space version.
func (c *Cache) Version() int { return c.version }

// Hash is Hash at the cache's version.
func (c *Cache) Hash(k Key) string { return Hash(c.version, k) }

func (c *Cache) bucketKey(hash string) string {
	return BucketKey(c.version, hash[:prefixLen])
}

// Get looks up hashes. Only found, non-empty translations are returned;
// malformed and unknown hashes are simply absent from the result.
func (c *Cache) Get(ctx context.Context, hashes []string) (map[string]string, error) {
	byBucket := make(map[string][]string)
	for _, h := range hashes {
		if !ValidHash(h) {
			continue
		}
		key := c.bucketKey(h)
		byBucket[key] = append(byBucket[key], h)
	}

	found := make(map[string]string)
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for key, hs := range byBucket {
		g.Go(func() error {
			bucket, ok, err := c.store.Get(gctx, key)
			if err != nil {
				return fmt.Errorf("reading bucket %s: %w", key, err)
			}
			if !ok {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			for _, h := range hs {
				if v := bucket[h]; v != "" {
					found[h] = v
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return found, nil
}

// Set stores entries (hash -> translation). Entries with a malformed hash
// or an empty translation are dropped. Each touched bucket is updated
// with one atomic read-merge-write; distinct buckets are written
// concurrently. It returns how many entries were written. A failure in
// one bucket does not stop the others; all failures are joined.
func (c *Cache) Set(ctx context.Context, entries map[string]string) (int, error) {
	byBucket := make(map[string]map[string]string)
	for h, v := range entries {
		if !ValidHash(h) || v == "" {
			continue
		}
		key := c.bucketKey(h)
		if byBucket[key] == nil {
			byBucket[key] = make(map[string]string)
		}
		byBucket[key][h] = v
	}

	var (
		mu      sync.Mutex
		written int
		errs    []error
	)
	var g errgroup.Group
	g.SetLimit(maxParallel)
	for key, add := range byBucket {
		g.Go(func() error {
			err := c.store.Update(ctx, key, func(bucket map[string]string) {
				for h, v := range add {
					bucket[h] = v
				}
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("writing bucket %s: %w", key, err))
				return nil
			}
			written += len(add)
			return nil
		})
	}
	_ = g.Wait()
	return written, errors.Join(errs...)
}

// Clear empties every non-empty bucket of the current version, and of all
// earlier versions when includeOlder is set. Buckets that do not exist
// are left absent.
func (c *Cache) Clear(ctx context.Context, includeOlder bool) (ClearResult, error) {
	versions := []int{c.version}
	if includeOlder {
		for v := c.version - 1; v >= 1; v-- {
			versions = append(versions, v)
		}
	}

	var (
		mu     sync.Mutex
		result = ClearResult{ClearedVersions: versions}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for _, v := range versions {
		for i := 0; i < bucketCount; i++ {
			key := BucketKey(v, fmt.Sprintf("%02x", i))
			g.Go(func() error {
				cleared, err := c.store.Reset(gctx, key)
				if err != nil {
					return fmt.Errorf("clearing bucket %s: %w", key, err)
				}
				if cleared {
					mu.Lock()
					result.ClearedBuckets++
					mu.Unlock()
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}
