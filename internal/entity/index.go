package entity

import (
	"context"
	"encoding/json"
	"slices"
)

// index is the in-memory form of a collection's id list.
type index struct {
	key string
	ids []string
	// touched is set when the entry exists in the store, even with no ids.
	touched bool
}

type indexEntry struct {
	IDs []string `json:"ids"`
}

func loadIndex(ctx context.Context, h *Handle, name string) (*index, error) {
	key := IndexKey(name)
	raw, ok, err := h.get(ctx, key)
	if err != nil {
		return nil, err
	}
	idx := &index{key: key, touched: ok}
	if !ok {
		return idx, nil
	}
	var entry indexEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, invalidRecord(key, err)
	}
	idx.ids = dedupe(entry.IDs)
	return idx, nil
}

func (x *index) save(ctx context.Context, h *Handle) error {
	ids := x.ids
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(indexEntry{IDs: ids})
	if err != nil {
		return invalidRecord(x.key, err)
	}
	if err := h.put(ctx, x.key, raw); err != nil {
		return err
	}
	x.touched = true
	return nil
}

func (x *index) contains(id string) bool {
	return slices.Contains(x.ids, id)
}

// add appends id unless it is already present. It reports whether the list
// changed.
func (x *index) add(id string) bool {
	if x.contains(id) {
		return false
	}
	x.ids = append(x.ids, id)
	return true
}

// remove drops id. It reports whether the list changed.
func (x *index) remove(id string) bool {
	i := slices.Index(x.ids, id)
	if i < 0 {
		return false
	}
	x.ids = slices.Delete(x.ids, i, i+1)
	return true
}

// paginate returns up to limit ids starting at from and the position after
// the last returned id, or -1 when the end was reached.
func (x *index) paginate(from, limit int) ([]string, int) {
	if limit < 1 {
		limit = 1
	}
	if from < 0 || from > len(x.ids) {
		from = 0
	}
	end := min(from+limit, len(x.ids))
	page := slices.Clone(x.ids[from:end])
	if end >= len(x.ids) {
		return page, -1
	}
	return page, end
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
