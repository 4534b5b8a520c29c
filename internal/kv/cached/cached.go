// Package cached decorates a kv.Store with a read-through LRU cache.
package cached

import (
	"context"
	"hash/maphash"
	"strings"
	"sync"
	"time"

	"fiscalflow/internal/cache"
	"fiscalflow/internal/kv"
)

// stripes bounds the generation table; keys hashing to the same stripe share
// a counter, which only costs a skipped fill.
const stripes = 256

// Store serves repeated Gets from memory. Writes go to the backing store first
// and invalidate the cached entry; misses are never cached.
//
// A fill is only stored if no write to the same stripe completed while the
// backing Get was in flight, so a slow read cannot resurrect an old value.
type Store struct {
	next   kv.Store
	cache  *cache.LRUCache[[]byte]
	bypass []string

	seed maphash.Seed
	mu   sync.Mutex
	gens [stripes]uint64
}

var _ kv.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithBypass leaves keys starting with any of prefixes uncached. Entries that
// other processes rewrite, such as collection indexes, belong here.
func WithBypass(prefixes ...string) Option {
	return func(s *Store) { s.bypass = append(s.bypass, prefixes...) }
}

// New wraps next with a cache of at most size entries living for ttl.
func New(next kv.Store, size int, ttl time.Duration, opts ...Option) *Store {
	s := &Store{
		next:  next,
		cache: cache.NewLRUCache[[]byte](size, ttl),
		seed:  maphash.MakeSeed(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cache exposes the underlying LRU so it can be registered for expiry.
func (s *Store) Cache() *cache.LRUCache[[]byte] {
	return s.cache
}

// Unwrap returns the backing store.
func (s *Store) Unwrap() kv.Store {
	return s.next
}

// Get implements kv.Store.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if s.bypassed(key) {
		return s.next.Get(ctx, key)
	}
	if v, ok := s.cache.Get(key); ok {
		return clone(v), nil
	}

	stripe := s.stripe(key)
	s.mu.Lock()
	gen := s.gens[stripe]
	s.mu.Unlock()

	v, err := s.next.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.gens[stripe] == gen {
		s.cache.Set(key, clone(v))
	}
	s.mu.Unlock()
	return v, nil
}

// Put implements kv.Store.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if s.bypassed(key) {
		return s.next.Put(ctx, key, value)
	}
	// Invalidate before and after: a failed write may still have been applied.
	s.invalidate(key)
	err := s.next.Put(ctx, key, value)
	s.invalidate(key)
	return err
}

// Delete implements kv.Store.
func (s *Store) Delete(ctx context.Context, key string) error {
	if s.bypassed(key) {
		return s.next.Delete(ctx, key)
	}
	s.invalidate(key)
	err := s.next.Delete(ctx, key)
	s.invalidate(key)
	return err
}

// Close drops every cached entry and closes the backing store when it holds
// resources.
func (s *Store) Close() error {
	s.cache.Purge()
	if c, ok := s.next.(kv.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *Store) invalidate(key string) {
	stripe := s.stripe(key)
	s.mu.Lock()
	s.gens[stripe]++
	s.cache.Delete(key)
	s.mu.Unlock()
}

func (s *Store) stripe(key string) uint64 {
	return maphash.String(s.seed, key) % stripes
}

func (s *Store) bypassed(key string) bool {
	for _, p := range s.bypass {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
