package entity

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"fiscalflow/internal/log"
)

// Page is one slice of a collection listing. Next is empty on the last page.
type Page[T any] struct {
	Items []T    `json:"items"`
	Next  string `json:"next,omitempty"`
}

// Collection is an enumerable kind: its records plus the index of their ids.
type Collection[T Record[T]] struct {
	h    *Handle
	kind *Kind[T]
}

// NewCollection returns the collection of kind stored through h.
func NewCollection[T Record[T]](h *Handle, kind *Kind[T]) *Collection[T] {
	return &Collection[T]{h: h, kind: kind}
}

// Kind returns the collection's kind.
func (c *Collection[T]) Kind() *Kind[T] { return c.kind }

// Entity returns the single-record helper for id. Use it to read, patch or
// mutate members; deletes go through the Collection.
func (c *Collection[T]) Entity(id string) *Entity[T] {
	return New(c.h, c.kind, id)
}

func (c *Collection[T]) lock() func() {
	return c.h.partitions.Lock(c.kind.indexName())
}

func (c *Collection[T]) logger() *slog.Logger {
	return c.h.logger.With(log.FieldKind, c.kind.Name, log.FieldIndex, c.kind.indexName())
}

// touch loads the index, seeding the collection first if it was never
// touched. Callers hold the partition lock.
func (c *Collection[T]) touch(ctx context.Context) (*index, error) {
	idx, err := loadIndex(ctx, c.h, c.kind.indexName())
	if err != nil {
		return nil, err
	}
	if !idx.touched {
		if _, err := c.seed(ctx, idx); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// Seed applies the kind's seed set if the collection was never touched. It
// reports whether records were written; a collection that already has an
// index entry is left alone.
func (c *Collection[T]) Seed(ctx context.Context) (bool, error) {
	defer c.lock()()

	idx, err := loadIndex(ctx, c.h, c.kind.indexName())
	if err != nil {
		return false, err
	}
	if idx.touched {
		c.logger().DebugContext(ctx, "seed skipped, collection already touched",
			log.FieldOperation, log.OpSeed, log.FieldCount, len(idx.ids))
		return false, nil
	}
	return c.seed(ctx, idx)
}

// Create stores initial as a new member. An empty id is replaced by a fresh
// UUID. The record is written before the index, so a failure in between
// leaves an orphan record that Repair can pick up.
func (c *Collection[T]) Create(ctx context.Context, initial T) (T, error) {
	defer c.lock()()

	idx, err := c.touch(ctx)
	if err != nil {
		return initial, err
	}

	id := initial.GetID()
	if id == "" {
		id = c.h.newID()
	}
	e := c.Entity(id)
	stored, err := e.save(ctx, initial)
	if err != nil {
		return stored, err
	}
	if idx.add(id) {
		if err := idx.save(ctx, c.h); err != nil {
			return stored, err
		}
	}
	return c.kind.prepare(stored), nil
}

// List returns up to limit members after cursor, oldest first. Ids whose
// record is missing or unreadable are skipped.
func (c *Collection[T]) List(ctx context.Context, cursor string, limit int) (Page[T], error) {
	unlock := c.lock()
	idx, err := c.touch(ctx)
	unlock()
	if err != nil {
		return Page[T]{}, err
	}

	from := DecodeCursor(cursor).position(idx.ids)
	ids, next := idx.paginate(from, limit)

	items, err := c.hydrate(ctx, ids)
	if err != nil {
		return Page[T]{}, err
	}
	page := Page[T]{Items: items}
	if next >= 0 && len(ids) > 0 {
		page.Next = Cursor{Offset: next, After: ids[len(ids)-1]}.Encode()
	}
	return page, nil
}

// hydrate reads ids concurrently and returns the found records in ids order.
func (c *Collection[T]) hydrate(ctx context.Context, ids []string) ([]T, error) {
	records := make([]T, len(ids))
	found := make([]bool, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.h.hydration)
	for i, id := range ids {
		g.Go(func() error {
			v, ok, err := c.Entity(id).load(gctx)
			if errors.Is(err, ErrInvalidRecord) {
				c.logger().WarnContext(ctx, "skipping unreadable record",
					log.FieldEntityID, id, log.FieldError, err)
				return nil
			}
			if err != nil {
				return err
			}
			records[i], found[i] = v, ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make([]T, 0, len(ids))
	for i, v := range records {
		if found[i] {
			items = append(items, v)
		}
	}
	return items, nil
}

// Delete removes the record of id and its index entry. It reports whether a
// record existed; deleting an unknown id is not an error.
func (c *Collection[T]) Delete(ctx context.Context, id string) (bool, error) {
	defer c.lock()()
	return c.delete(ctx, id)
}

func (c *Collection[T]) delete(ctx context.Context, id string) (bool, error) {
	existed, err := c.Entity(id).Delete(ctx)
	if err != nil {
		return false, err
	}

	idx, err := loadIndex(ctx, c.h, c.kind.indexName())
	if err != nil {
		return existed, err
	}
	if idx.remove(id) {
		if err := idx.save(ctx, c.h); err != nil {
			return existed, err
		}
	}
	return existed, nil
}

// DeleteMany deletes every id independently and returns how many records were
// actually removed. Individual failures are logged and skipped; the batch
// stops early only when ctx is done.
func (c *Collection[T]) DeleteMany(ctx context.Context, ids []string) (int, error) {
	defer c.lock()()

	logger := c.logger()
	deleted := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		ok, err := c.delete(ctx, id)
		if err != nil {
			logger.WarnContext(ctx, "delete failed, continuing batch",
				log.FieldOperation, log.OpDeleteMany, log.FieldEntityID, id, log.FieldError, err)
			continue
		}
		if ok {
			deleted++
		}
	}
	logger.DebugContext(ctx, "batch delete finished",
		log.FieldOperation, log.OpDeleteMany, log.FieldCount, deleted)
	return deleted, nil
}

// IDs returns a snapshot of the index in insertion order.
func (c *Collection[T]) IDs(ctx context.Context) ([]string, error) {
	defer c.lock()()
	idx, err := c.touch(ctx)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), idx.ids...), nil
}

// Count returns the number of indexed ids.
func (c *Collection[T]) Count(ctx context.Context) (int, error) {
	ids, err := c.IDs(ctx)
	return len(ids), err
}

// Repair brings the index in line with the record of id: an orphan record is
// indexed and a dangling index id is dropped. It reports whether the index
// changed.
func (c *Collection[T]) Repair(ctx context.Context, id string) (bool, error) {
	defer c.lock()()

	idx, err := c.touch(ctx)
	if err != nil {
		return false, err
	}
	exists, err := c.Entity(id).Exists(ctx)
	if err != nil {
		return false, err
	}

	var changed bool
	switch {
	case exists:
		changed = idx.add(id)
	default:
		changed = idx.remove(id)
	}
	if !changed {
		return false, nil
	}
	if err := idx.save(ctx, c.h); err != nil {
		return false, err
	}
	c.logger().InfoContext(ctx, "index repaired",
		log.FieldOperation, log.OpRepair, log.FieldEntityID, id, "indexed", exists)
	return true, nil
}

// Sweep drops every indexed id whose record is gone and returns how many were
// dropped. An untouched collection is left alone.
//
// Sweep may run in another process than the writers of the index, so it never
// writes back the list it scanned: candidates are re-checked and removed from
// a freshly loaded index.
func (c *Collection[T]) Sweep(ctx context.Context) (int, error) {
	defer c.lock()()

	idx, err := loadIndex(ctx, c.h, c.kind.indexName())
	if err != nil || !idx.touched {
		return 0, err
	}
	dangling, err := c.missing(ctx, idx.ids)
	if err != nil || len(dangling) == 0 {
		return 0, err
	}
	if dangling, err = c.missing(ctx, dangling); err != nil || len(dangling) == 0 {
		return 0, err
	}

	idx, err = loadIndex(ctx, c.h, c.kind.indexName())
	if err != nil {
		return 0, err
	}
	dropped := 0
	for _, id := range dangling {
		if idx.remove(id) {
			dropped++
		}
	}
	if dropped == 0 {
		return 0, nil
	}
	if err := idx.save(ctx, c.h); err != nil {
		return 0, err
	}
	c.logger().InfoContext(ctx, "dangling ids dropped",
		log.FieldOperation, log.OpSweep, log.FieldCount, dropped)
	return dropped, nil
}

// missing returns the ids among ids that have no record.
func (c *Collection[T]) missing(ctx context.Context, ids []string) ([]string, error) {
	var out []string
	for _, id := range ids {
		ok, err := c.Entity(id).Exists(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			out = append(out, id)
		}
	}
	return out, nil
}
