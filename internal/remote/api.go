// Package remote defines the client side of the Divvy backend API: the
// operations the sync worker drains queued mutations against, the error
// taxonomy it classifies failures into, and the session token that
// authenticates calls.
package remote

import (
	"context"
	"encoding/json"

	"github.com/divvyhq/divvy/internal/models"
)

// API is the remote backend collaborator. Successful create/update calls
// return the canonical entity as stored by the server, including the
// server-assigned id.
//
// Every mutating call carries the operation id so the server can
// deduplicate a retried operation (idempotency key).
type API interface {
	// Create sends a new entity and returns the canonical copy.
	Create(ctx context.Context, entity models.EntityType, opID string, payload json.RawMessage) (json.RawMessage, error)

	// Update replaces an existing entity and returns the canonical copy.
	Update(ctx context.Context, entity models.EntityType, id, opID string, payload json.RawMessage) (json.RawMessage, error)

	// Delete removes an entity.
	Delete(ctx context.Context, entity models.EntityType, id, opID string) error

	// Get fetches the current server copy of an entity. Used for conflict
	// recovery, where the server copy replaces the local one.
	Get(ctx context.Context, entity models.EntityType, id string) (json.RawMessage, error)

	// Pull fetches an entire collection for the session user. Used for the
	// initial load and for corrupt-cache recovery.
	Pull(ctx context.Context, entity models.EntityType) (json.RawMessage, error)
}
