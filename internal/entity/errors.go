package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an operation requires a record that does not exist.
	ErrNotFound = errors.New("entity: record not found")

	// ErrStoreUnavailable matches every failure of the underlying key/value store.
	ErrStoreUnavailable = errors.New("entity: store unavailable")

	// ErrInvalidRecord is returned when a record cannot be encoded, decoded or merged.
	ErrInvalidRecord = errors.New("entity: invalid record")
)

// StoreError describes a failed key/value store call.
type StoreError struct {
	Op  string // get, put or delete
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("entity: store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is makes every StoreError match ErrStoreUnavailable.
func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

func invalidRecord(key string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrInvalidRecord, key, err)
}
