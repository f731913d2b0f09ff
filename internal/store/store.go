// Package store provides the shared key-value system of record used by the
// registry, task catalog, and reward ledger. Records carry a version that
// increases on every write so multi-record transitions can be applied with
// optimistic concurrency.
package store

import "context"

// Record is a stored value together with its current version.
type Record struct {
	Value   []byte
	Version int64
}

// Store is the persistence interface shared by all components.
//
// Layout convention (one record per entity, keyed by id):
//
//	node:<id>        node record
//	task:<id>        task record
//	tasks:available  set of AVAILABLE task ids
//	wallet:<addr>    set of node ids owned by a wallet
//	rewards:<addr>   append-only list of reward entries
//	history:<id>     append-only list of completed tasks per node
type Store interface {
	// Get returns the record stored under key, or a NotFound error.
	Get(ctx context.Context, key string) (Record, error)
	// Put writes value unconditionally and returns the new version.
	Put(ctx context.Context, key string, value []byte) (int64, error)
	// CompareAndSwap writes value only if the stored version matches
	// expect, returning the new version. A mismatch yields a Conflict
	// error and leaves the record untouched.
	CompareAndSwap(ctx context.Context, key string, value []byte, expect int64) (int64, error)
	// Delete removes a record. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys returns all keys with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// SetAdd adds member to a named set.
	SetAdd(ctx context.Context, set, member string) error
	// SetRemove removes member from a named set.
	SetRemove(ctx context.Context, set, member string) error
	// SetMembers returns all members of a named set.
	SetMembers(ctx context.Context, set string) ([]string, error)

	// ListAppend appends value to a named append-only list.
	ListAppend(ctx context.Context, list string, value []byte) error
	// ListRange returns the full contents of a named list in insertion
	// order.
	ListRange(ctx context.Context, list string) ([][]byte, error)

	Close() error
}
