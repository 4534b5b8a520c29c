package entity

import (
	"bytes"
	"context"
	"encoding/json"
)

// idField is the JSON name of the identity field; patches never touch it.
const idField = "id"

// Entity manages the lifecycle of a single record.
type Entity[T Record[T]] struct {
	h    *Handle
	kind *Kind[T]
	id   string
}

// New returns the entity of kind with the given id. Nothing is read or
// written until an operation is called.
func New[T Record[T]](h *Handle, kind *Kind[T], id string) *Entity[T] {
	return &Entity[T]{h: h, kind: kind, id: id}
}

// ID returns the record id.
func (e *Entity[T]) ID() string { return e.id }

// Key returns the store key of the record.
func (e *Entity[T]) Key() string { return e.kind.Key(e.id) }

// load reads the stored record without materializing defaults.
func (e *Entity[T]) load(ctx context.Context) (T, bool, error) {
	var v T
	key := e.Key()
	raw, ok, err := e.h.get(ctx, key)
	if err != nil || !ok {
		return v, false, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, invalidRecord(key, err)
	}
	return e.kind.prepare(v.WithID(e.id)), true, nil
}

func (e *Entity[T]) save(ctx context.Context, v T) (T, error) {
	v = v.WithID(e.id)
	key := e.Key()
	raw, err := json.Marshal(v)
	if err != nil {
		return v, invalidRecord(key, err)
	}
	if err := e.h.put(ctx, key, raw); err != nil {
		return v, err
	}
	return v, nil
}

// GetState returns the stored record. A record that was never written is
// materialized from the kind's default, stored, and returned; later calls
// read it back without writing again.
func (e *Entity[T]) GetState(ctx context.Context) (T, error) {
	v, ok, err := e.load(ctx)
	if err != nil || ok {
		return v, err
	}
	v, err = e.save(ctx, e.kind.initial(e.id))
	if err != nil {
		return v, err
	}
	return e.kind.prepare(v), nil
}

// Exists reports whether a record is currently stored.
func (e *Entity[T]) Exists(ctx context.Context) (bool, error) {
	_, ok, err := e.h.get(ctx, e.Key())
	return ok, err
}

// Save overwrites the record with v, keeping this entity's id.
func (e *Entity[T]) Save(ctx context.Context, v T) (T, error) {
	return e.save(ctx, v)
}

// Patch shallow-merges partial over the current state (materializing defaults
// if needed) and writes the result. Keys are JSON field names; fields absent
// from partial keep their value and "id" is ignored. Patch is a plain
// read-modify-write: a concurrent patch of the same record may be lost.
func (e *Entity[T]) Patch(ctx context.Context, partial map[string]any) error {
	cur, err := e.GetState(ctx)
	if err != nil {
		return err
	}
	return e.patch(ctx, cur, partial)
}

// PatchExisting is Patch for records that must already exist; it returns
// ErrNotFound instead of materializing defaults.
func (e *Entity[T]) PatchExisting(ctx context.Context, partial map[string]any) error {
	cur, ok, err := e.load(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return e.patch(ctx, cur, partial)
}

func (e *Entity[T]) patch(ctx context.Context, cur T, partial map[string]any) error {
	next, err := merge(e.Key(), cur, partial)
	if err != nil {
		return err
	}
	_, err = e.save(ctx, next)
	return err
}

// Mutate replaces the state with fn(current). The id is restored after fn
// runs, so fn cannot rename the record. An error from fn aborts the write.
func (e *Entity[T]) Mutate(ctx context.Context, fn func(T) (T, error)) (T, error) {
	cur, err := e.GetState(ctx)
	if err != nil {
		return cur, err
	}
	next, err := fn(cur)
	if err != nil {
		return cur, err
	}
	next, err = e.save(ctx, next)
	if err != nil {
		return next, err
	}
	return e.kind.prepare(next), nil
}

// Delete removes the record. It reports whether a record existed. Members of
// a Collection must be deleted through the Collection so the index follows.
func (e *Entity[T]) Delete(ctx context.Context) (bool, error) {
	ok, err := e.Exists(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := e.h.delete(ctx, e.Key()); err != nil {
		return false, err
	}
	return true, nil
}

// merge overlays partial on the JSON form of cur. Unknown field names are
// rejected.
func merge[T any](key string, cur T, partial map[string]any) (T, error) {
	var out T
	base, err := json.Marshal(cur)
	if err != nil {
		return out, invalidRecord(key, err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(base, &fields); err != nil {
		return out, invalidRecord(key, err)
	}

	for name, v := range partial {
		if name == idField {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return out, invalidRecord(key, err)
		}
		fields[name] = raw
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return out, invalidRecord(key, err)
	}
	dec := json.NewDecoder(bytes.NewReader(merged))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, invalidRecord(key, err)
	}
	return out, nil
}
