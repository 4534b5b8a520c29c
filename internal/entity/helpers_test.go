package entity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"fiscalflow/internal/kv"
	"fiscalflow/internal/kv/memory"
)

var errBoom = errors.New("boom")

type note struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Amount float64 `json:"amount"`
}

func (n note) GetID() string           { return n.ID }
func (n note) WithID(id string) note   { n.ID = id; return n }
func (p prefs) GetID() string          { return p.ID }
func (p prefs) WithID(id string) prefs { p.ID = id; return p }

type prefs struct {
	ID            string  `json:"id"`
	Currency      string  `json:"currency"`
	MonthlyBudget float64 `json:"monthlyBudget"`
}

func noteKind() *Kind[note] {
	return &Kind[note]{Name: "note", Index: "notes"}
}

func prefsKind() *Kind[prefs] {
	return &Kind[prefs]{
		Name: "prefs",
		Default: func(id string) prefs {
			return prefs{Currency: "USD"}
		},
	}
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("id-%d", n.Add(1)) }
}

func newTestHandle(t *testing.T, store kv.Store) *Handle {
	t.Helper()
	return NewHandle(store,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithIDGenerator(sequentialIDs()),
	)
}

// faultyStore fails the calls selected by its hooks and counts puts.
type faultyStore struct {
	kv.Store

	mu         sync.Mutex
	puts       int
	failGet    func(key string) bool
	failPut    func(key string) bool
	failDelete func(key string) bool
}

func newFaultyStore() *faultyStore {
	return &faultyStore{Store: memory.New()}
}

func (s *faultyStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	fail := s.failGet != nil && s.failGet(key)
	s.mu.Unlock()
	if fail {
		return nil, errBoom
	}
	return s.Store.Get(ctx, key)
}

func (s *faultyStore) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	s.puts++
	fail := s.failPut != nil && s.failPut(key)
	s.mu.Unlock()
	if fail {
		return errBoom
	}
	return s.Store.Put(ctx, key, value)
}

func (s *faultyStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	fail := s.failDelete != nil && s.failDelete(key)
	s.mu.Unlock()
	if fail {
		return errBoom
	}
	return s.Store.Delete(ctx, key)
}

func (s *faultyStore) putCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

func (s *faultyStore) set(fn func(s *faultyStore)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

func onKey(want string) func(string) bool {
	return func(key string) bool { return key == want }
}

func mustCreate[T Record[T]](t *testing.T, c *Collection[T], v T) T {
	t.Helper()
	got, err := c.Create(context.Background(), v)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return got
}

func mustIDs[T Record[T]](t *testing.T, c *Collection[T]) []string {
	t.Helper()
	ids, err := c.IDs(context.Background())
	if err != nil {
		t.Fatalf("IDs() error = %v", err)
	}
	return ids
}
