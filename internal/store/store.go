// Package store defines the shared-state capability the game core runs on:
// a replicated tree of keyed JSON values with change subscriptions and a
// disconnect hook. Multi-path updates are applied per path and are NOT
// atomic across paths; only Transact is atomic, and only for a single path.
package store

import (
	"context"
	"errors"
)

// ErrPathNotFound is returned by Get when no value exists at the path.
var ErrPathNotFound = errors.New("store: path not found")

// Snapshot is one change notification: the path that changed and its new
// JSON value (nil when the path was deleted).
type Snapshot struct {
	Path  string
	Value []byte
}

// Store is the shared state tree. Paths are slash-separated, e.g.
// "games/r1/players/p1". Values are marshalled to JSON on write and
// unmarshalled on read.
type Store interface {
	// Get reads the value at path into out.
	Get(ctx context.Context, path string, out any) error
	// Set replaces the value at path.
	Set(ctx context.Context, path string, value any) error
	// Update applies every path->value write in the batch. Not atomic: a
	// reader may observe a partially applied batch.
	Update(ctx context.Context, updates map[string]any) error
	// Delete removes the value at path. Deleting an absent path is a no-op.
	Delete(ctx context.Context, path string) error
	// DeleteTree removes path and every descendant.
	DeleteTree(ctx context.Context, path string) error
	// Transact runs an atomic read-modify-write on one path. fn receives the
	// current raw JSON (nil when absent) and returns the replacement value.
	Transact(ctx context.Context, path string, fn func(current []byte) (any, error)) error
	// Push appends a child with a generated key under path and returns the key.
	Push(ctx context.Context, path string, value any) (string, error)
	// Subscribe delivers a snapshot for every write under path (inclusive).
	// Slow consumers lose intermediate snapshots rather than blocking writers.
	// The cancel func releases the subscription.
	Subscribe(path string) (<-chan Snapshot, func())
	// RegisterDisconnect arranges for value to be written to path when
	// FireDisconnects is called for clientID (or delete when value is nil).
	RegisterDisconnect(clientID, path string, value any)
	// FireDisconnects executes and clears every write registered for clientID.
	FireDisconnects(clientID string)
}
