package entity

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"fiscalflow/internal/kv"
	"fiscalflow/internal/log"
)

// Handle binds a kv.Store to the bookkeeping shared by every entity built on
// it: the partition locks, the logger and the id generator.
type Handle struct {
	store      kv.Store
	partitions *Partitions
	logger     *slog.Logger
	newID      func() string
	hydration  int
}

// Option configures a Handle.
type Option func(*Handle)

// WithLogger sets the logger used for seeding and batch-delete reports.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handle) { h.logger = l }
}

// WithIDGenerator replaces the random UUID generator.
func WithIDGenerator(fn func() string) Option {
	return func(h *Handle) { h.newID = fn }
}

// WithHydrationConcurrency bounds the parallel record reads of one List call.
func WithHydrationConcurrency(n int) Option {
	return func(h *Handle) {
		if n > 0 {
			h.hydration = n
		}
	}
}

// NewHandle wraps store.
func NewHandle(store kv.Store, opts ...Option) *Handle {
	h := &Handle{
		store:      store,
		partitions: NewPartitions(),
		logger:     slog.Default(),
		newID:      uuid.NewString,
		hydration:  8,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(log.FieldComponent, log.ComponentEntity)
	return h
}

// Store returns the wrapped store.
func (h *Handle) Store() kv.Store {
	return h.store
}

func (h *Handle) get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := h.store.Get(ctx, key)
	if err == nil {
		return v, true, nil
	}
	if kv.IsNotFound(err) {
		return nil, false, nil
	}
	return nil, false, &StoreError{Op: "get", Key: key, Err: err}
}

func (h *Handle) put(ctx context.Context, key string, value []byte) error {
	if err := h.store.Put(ctx, key, value); err != nil {
		return &StoreError{Op: "put", Key: key, Err: err}
	}
	return nil
}

func (h *Handle) delete(ctx context.Context, key string) error {
	if err := h.store.Delete(ctx, key); err != nil {
		return &StoreError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

// Partitions hands out one mutex per index name. Holding it gives the caller
// exclusive use of that index within the process.
type Partitions struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewPartitions returns an empty lock table.
func NewPartitions() *Partitions {
	return &Partitions{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the partition of name and returns its release function.
func (p *Partitions) Lock(name string) (unlock func()) {
	p.mu.Lock()
	m, ok := p.locks[name]
	if !ok {
		m = &sync.Mutex{}
		p.locks[name] = m
	}
	p.mu.Unlock()

	m.Lock()
	return m.Unlock
}
