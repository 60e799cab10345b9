// Package storage provides abstractions for local persistent data storage.
package storage

import (
	"context"
	"errors"
)

// Collection names used by the sync core. Each holds one JSON document.
const (
	CollectionGroups         = "groups"
	CollectionExpenses       = "expenses"
	CollectionSettlements    = "settlements"
	CollectionPaymentMethods = "payment_methods"
	CollectionQueue          = "queue"
	CollectionQueueDead      = "queue_dead"
	CollectionIdentityMap    = "identity_map"
	CollectionSession        = "session"
)

// ErrNotFound is returned when a collection has never been written.
var ErrNotFound = errors.New("collection not found")

// LocalStore defines the interface for the device-local cache of named
// collections. Every collection is an opaque JSON document; the store makes
// no attempt to interpret it. Implementations must survive process restarts.
//
// This abstraction allows swapping storage backends (SQLite, flat files,
// etc.) without changing the queue, identity map, or state manager.
type LocalStore interface {
	// Get returns the last written document for the named collection.
	// Returns ErrNotFound if the collection has never been written.
	Get(ctx context.Context, collection string) ([]byte, error)

	// Put overwrites the named collection with data.
	Put(ctx context.Context, collection string, data []byte) error

	// Delete removes the named collection.
	Delete(ctx context.Context, collection string) error

	// Flush removes every collection. Used for corrupt-cache recovery,
	// where the only safe repair is a full re-pull from the server.
	Flush(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}
