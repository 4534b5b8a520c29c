// Package entity persists typed records on top of a plain kv.Store.
//
// # Entities
//
// An [Entity] is one record identified by (kind name, id). Reading a record
// that was never written materializes the kind's default value and stores it;
// [Entity.Patch] shallow-merges a set of fields over the current state. The
// id field never changes after creation.
//
// # Collections
//
// A [Collection] is an enumerable kind: every live id is kept, in insertion
// order, in a single index entry of the store. Collections support Create,
// cursor-paginated List, Delete and DeleteMany. A collection with a seed set
// is populated from it the first time it is touched; once the index entry
// exists the collection is never seeded again, even after it is emptied.
//
// # Consistency
//
// The store has no transactions, so a record and its index entry are written
// by separate calls. Operations that mutate one collection's index run under
// a per-index lock ([Partitions]) so they never interleave inside a process.
// A failure between the two writes leaves an orphan record or a dangling
// index id; List skips dangling ids and [Collection.Repair] / [Collection.Sweep]
// restore consistency.
//
// Patches are plain read-modify-write: concurrent patches of the same record
// race and the last write wins.
//
// # Errors
//
// Every store failure is returned as a [*StoreError] matching
// [ErrStoreUnavailable]. Operations that require an existing record return
// [ErrNotFound]. Nothing is retried.
package entity
