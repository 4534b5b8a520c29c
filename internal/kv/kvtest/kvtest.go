// Package kvtest holds the conformance suite every kv.Store backend must pass.
package kvtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"fiscalflow/internal/kv"
)

// Run exercises the kv.Store contract against the store returned by newStore.
// newStore is called once per subtest and must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) kv.Store) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s kv.Store)
	}{
		{"get missing key", testGetMissing},
		{"put then get", testPutGet},
		{"put overwrites", testOverwrite},
		{"delete", testDelete},
		{"delete missing key", testDeleteMissing},
		{"empty value", testEmptyValue},
		{"keys are independent", testIndependentKeys},
		{"returned value is a copy", testValueCopy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func testGetMissing(t *testing.T, s kv.Store) {
	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, kv.ErrKeyNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrKeyNotFound", err)
	}
}

func testPutGet(t *testing.T, s kv.Store) {
	ctx := context.Background()
	if err := s.Put(ctx, "expense:1", []byte(`{"id":"1"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(ctx, "expense:1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"id":"1"}` {
		t.Errorf("Get = %q, want %q", got, `{"id":"1"}`)
	}
}

func testOverwrite(t *testing.T, s kv.Store) {
	ctx := context.Background()
	mustPut(t, s, "k", "one")
	mustPut(t, s, "k", "two")
	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "two" {
		t.Errorf("Get = %q, want %q", got, "two")
	}
}

func testDelete(t *testing.T, s kv.Store) {
	ctx := context.Background()
	mustPut(t, s, "k", "v")
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	ok, err := kv.Exists(ctx, s, "k")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Error("key still present after Delete")
	}
}

func testDeleteMissing(t *testing.T, s kv.Store) {
	if err := s.Delete(context.Background(), "never-written"); err != nil {
		t.Fatalf("Delete(missing) = %v, want nil", err)
	}
}

func testEmptyValue(t *testing.T, s kv.Store) {
	ctx := context.Background()
	if err := s.Put(ctx, "empty", []byte{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(ctx, "empty")
	if err != nil {
		t.Fatalf("Get(empty) = %v, want stored empty value", err)
	}
	if len(got) != 0 {
		t.Errorf("Get(empty) = %q, want empty", got)
	}
}

func testIndependentKeys(t *testing.T, s kv.Store) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		mustPut(t, s, fmt.Sprintf("expense:%d", i), fmt.Sprintf("v%d", i))
	}
	if err := s.Delete(ctx, "expense:2"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("expense:%d", i)
		got, err := s.Get(ctx, key)
		if i == 2 {
			if !errors.Is(err, kv.ErrKeyNotFound) {
				t.Errorf("Get(%s) error = %v, want ErrKeyNotFound", key, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Get(%s): %v", key, err)
		}
		if want := fmt.Sprintf("v%d", i); string(got) != want {
			t.Errorf("Get(%s) = %q, want %q", key, got, want)
		}
	}
}

func testValueCopy(t *testing.T, s kv.Store) {
	ctx := context.Background()
	in := []byte("original")
	if err := s.Put(ctx, "k", in); err != nil {
		t.Fatalf("Put: %v", err)
	}
	in[0] = 'X'
	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, []byte("original")) {
		t.Errorf("stored value aliased caller buffer: %q", got)
	}
	got[0] = 'Y'
	again, _ := s.Get(ctx, "k")
	if !bytes.Equal(again, []byte("original")) {
		t.Errorf("stored value aliased returned buffer: %q", again)
	}
}

func mustPut(t *testing.T, s kv.Store, key, value string) {
	t.Helper()
	if err := s.Put(context.Background(), key, []byte(value)); err != nil {
		t.Fatalf("Put(%s): %v", key, err)
	}
}
