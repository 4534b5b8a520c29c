// Package kv defines the key/value store contract the entity layer is built on.
//
// A Store is an opaque durable map from string keys to byte values. It offers
// no transactions and no iteration: single-key get, put and delete only.
// Implementations must give read-your-writes consistency for a given key and
// must not retry failed calls; retry policy belongs to the caller.
package kv

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by Get when no value is stored under the key.
var ErrKeyNotFound = errors.New("kv: key not found")

// Store is the per-key durable store consumed by the entity layer.
type Store interface {
	// Get returns the value stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores value under key, overwriting any previous value.
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// Closer is implemented by stores holding resources (files, connections).
type Closer interface {
	Close() error
}

// IsNotFound reports whether err means the key was absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}

// Exists reports whether a value is stored under key.
func Exists(ctx context.Context, s Store, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		return false, nil
	}
	return false, err
}
