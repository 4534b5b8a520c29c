package entity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"fiscalflow/internal/log"
)

// seed writes every seed record, then the index listing them in seed order.
// An empty seed set writes nothing; the collection stays untouched until its
// first Create.
func (c *Collection[T]) seed(ctx context.Context, idx *index) (bool, error) {
	if len(c.kind.Seeds) == 0 {
		return false, nil
	}

	for _, s := range c.kind.Seeds {
		id := s.GetID()
		if id == "" {
			id = c.h.newID()
		}
		if _, err := c.Entity(id).save(ctx, s); err != nil {
			return false, fmt.Errorf("seed %s: %w", c.kind.Name, err)
		}
		idx.add(id)
	}
	if err := idx.save(ctx, c.h); err != nil {
		return false, fmt.Errorf("seed %s: %w", c.kind.Name, err)
	}

	c.logger().InfoContext(ctx, "collection seeded",
		log.FieldOperation, log.OpSeed, log.FieldCount, len(idx.ids))
	return true, nil
}

// LoadSeedFile reads a JSON array of records from path. A missing file yields
// no seeds.
func LoadSeedFile[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var seeds []T
	if err := json.Unmarshal(data, &seeds); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return seeds, nil
}
