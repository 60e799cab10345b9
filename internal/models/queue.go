package models

import "encoding/json"

// EntityType identifies which domain collection a mutation targets.
type EntityType string

// Entity types that can be mutated through the queue.
const (
	EntityGroup         EntityType = "group"
	EntityExpense       EntityType = "expense"
	EntitySettlement    EntityType = "settlement"
	EntityPaymentMethod EntityType = "payment_method"
)

// Operation is the kind of mutation a queue entry carries.
type Operation string

// Queue operations.
const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// QueueEntry is one pending mutation awaiting application to the remote
// backend. Entries are persisted on every change so the queue survives
// process restarts.
type QueueEntry struct {
	// OpID is the client-generated operation id (UUID). It doubles as the
	// idempotency key forwarded to the server so a retried create is
	// deduplicated.
	OpID string `json:"op_id"`

	// Op is the mutation kind: create, update, or delete.
	Op Operation `json:"op"`

	// EntityType is the target collection.
	EntityType EntityType `json:"entity_type"`

	// EntityID is the id of the target entity. For a create this is the
	// temp id assigned optimistically; the identity map rewrites it once
	// the canonical id is known.
	EntityID string `json:"entity_id"`

	// Payload is the entity snapshot at enqueue time. Empty for deletes.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Attempts counts sync attempts so far.
	Attempts int `json:"attempts"`

	// LastError records the most recent failure, if any.
	LastError string `json:"last_error,omitempty"`

	// EnqueuedAt is the Unix timestamp the entry was appended.
	EnqueuedAt int64 `json:"enqueued_at"`
}
