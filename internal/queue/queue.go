// Package queue implements the persisted offline mutation queue.
//
// The queue is an ordered, append-only log of pending create/update/delete
// operations. Every mutation writes through to the local store, so a crash
// mid-drain loses at most the in-flight entry's completion state, never
// queue contents. Entries for the same logical entity are applied in strict
// creation order: a create must be acknowledged (and its temp id remapped)
// before any dependent update or delete can be sent.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/divvyhq/divvy/internal/identity"
	"github.com/divvyhq/divvy/internal/models"
	"github.com/divvyhq/divvy/internal/storage"
)

// ErrQueueCorrupt means the persisted queue cannot be deserialized. This is
// fatal for the cache: recovery is a full flush and a fresh pull from the
// server, never a partial patch.
var ErrQueueCorrupt = errors.New("persisted queue is corrupt")

// Queue is the mutation queue. Safe for concurrent use: UI-triggered
// enqueues may race with the sync worker's drain loop.
type Queue struct {
	store storage.LocalStore

	mu      sync.Mutex
	entries []models.QueueEntry
	dead    []models.QueueEntry

	// inflight is the operation id the drain loop has claimed via TakeNext.
	// A claimed create is off-limits for collapse: its payload may already
	// be on the wire, so a later update or delete must queue normally
	// behind it. Not persisted; after a restart nothing is in flight.
	inflight string
}

// Load restores the persisted queue and dead-letter list.
func Load(ctx context.Context, store storage.LocalStore) (*Queue, error) {
	q := &Queue{store: store}

	entries, err := loadList(ctx, store, storage.CollectionQueue)
	if err != nil {
		return nil, err
	}
	dead, err := loadList(ctx, store, storage.CollectionQueueDead)
	if err != nil {
		return nil, err
	}
	q.entries, q.dead = entries, dead
	return q, nil
}

func loadList(ctx context.Context, store storage.LocalStore, collection string) ([]models.QueueEntry, error) {
	data, err := store.Get(ctx, collection)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", collection, err)
	}
	var list []models.QueueEntry
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrQueueCorrupt, collection, err)
	}
	return list, nil
}

// Enqueue appends a mutation and returns its operation id.
//
// Two collapse cases apply to a still-queued, never-synced create (its
// entity id is still a temp id and the drain loop has not claimed it):
//   - an update merges its payload into the create instead of appending,
//     returning the create's operation id;
//   - a delete removes the create and appends nothing, returning "".
//
// No other entries are ever silently discarded. In particular, a create
// claimed by TakeNext may already have reached the server, so mutations
// against it append normally and are sent after the create resolves.
func (q *Queue) Enqueue(ctx context.Context, entityType models.EntityType, op models.Operation, entityID string, payload json.RawMessage) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if identity.IsTemp(entityID) {
		if idx := q.findCreateLocked(entityType, entityID); idx >= 0 {
			switch op {
			case models.OpDelete:
				// The server never saw this entity; drop the create too.
				q.entries = append(q.entries[:idx], q.entries[idx+1:]...)
				return "", q.persistLocked(ctx)
			case models.OpUpdate:
				q.entries[idx].Payload = payload
				return q.entries[idx].OpID, q.persistLocked(ctx)
			}
		}
	}

	entry := models.QueueEntry{
		OpID:       uuid.NewString(),
		Op:         op,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    payload,
		EnqueuedAt: time.Now().Unix(),
	}
	q.entries = append(q.entries, entry)
	return entry.OpID, q.persistLocked(ctx)
}

// PeekNext returns a copy of the oldest entry, or nil when the queue is
// empty. The entry stays queued until Remove or Park is called.
func (q *Queue) PeekNext() *models.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return nil
	}
	head := q.entries[0]
	return &head
}

// TakeNext claims the oldest entry for sending and returns a copy, or nil
// when the queue is empty. The claim excludes the entry from collapse until
// Remove or Park resolves it; a retried entry stays claimed across
// attempts. Only the single drain goroutine calls this.
func (q *Queue) TakeNext() *models.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		q.inflight = ""
		return nil
	}
	head := q.entries[0]
	q.inflight = head.OpID
	return &head
}

// Remove deletes the entry with the given operation id. Removing an entry
// that is already gone (e.g., collapsed away while in flight) is not an
// error.
func (q *Queue) Remove(ctx context.Context, opID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inflight == opID {
		q.inflight = ""
	}
	for i := range q.entries {
		if q.entries[i].OpID == opID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return q.persistLocked(ctx)
		}
	}
	return nil
}

// MarkFailed increments the attempt count and records the error on the
// entry, keeping it at its position for retry.
func (q *Queue) MarkFailed(ctx context.Context, opID string, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.entries {
		if q.entries[i].OpID == opID {
			q.entries[i].Attempts++
			q.entries[i].LastError = cause.Error()
			return q.persistLocked(ctx)
		}
	}
	return nil
}

// Park moves a poisoned entry to the dead-letter list so it cannot block
// the rest of the queue.
func (q *Queue) Park(ctx context.Context, opID string, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inflight == opID {
		q.inflight = ""
	}
	for i := range q.entries {
		if q.entries[i].OpID == opID {
			entry := q.entries[i]
			entry.LastError = cause.Error()
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			q.dead = append(q.dead, entry)
			return q.persistLocked(ctx)
		}
	}
	return nil
}

// All returns a copy of the pending entries in order.
func (q *Queue) All() []models.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.QueueEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Dead returns a copy of the dead-letter list.
func (q *Queue) Dead() []models.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.QueueEntry, len(q.dead))
	copy(out, q.dead)
	return out
}

// Len returns the number of pending entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// RewriteID implements identity.Rewriter: it replaces old with new in every
// still-queued entry's entity id and payload.
func (q *Queue) RewriteID(ctx context.Context, old, new string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	changed := false
	for i := range q.entries {
		if q.entries[i].EntityID == old {
			q.entries[i].EntityID = new
			changed = true
		}
		if len(q.entries[i].Payload) == 0 {
			continue
		}
		rewritten, c, err := identity.RewriteJSON(q.entries[i].Payload, old, new)
		if err != nil {
			return fmt.Errorf("failed to rewrite queued payload %s: %w", q.entries[i].OpID, err)
		}
		if c {
			q.entries[i].Payload = rewritten
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return q.persistLocked(ctx)
}

// persistLocked writes both lists through to the local store. Callers must
// hold q.mu.
func (q *Queue) persistLocked(ctx context.Context) error {
	entries, err := json.Marshal(q.entries)
	if err != nil {
		return fmt.Errorf("failed to encode queue: %w", err)
	}
	if err := q.store.Put(ctx, storage.CollectionQueue, entries); err != nil {
		return fmt.Errorf("failed to persist queue: %w", err)
	}

	dead, err := json.Marshal(q.dead)
	if err != nil {
		return fmt.Errorf("failed to encode dead-letter list: %w", err)
	}
	if err := q.store.Put(ctx, storage.CollectionQueueDead, dead); err != nil {
		return fmt.Errorf("failed to persist dead-letter list: %w", err)
	}
	return nil
}

// findCreateLocked returns the index of an unclaimed pending create for the
// given entity, or -1. Callers must hold q.mu.
func (q *Queue) findCreateLocked(entityType models.EntityType, entityID string) int {
	for i := range q.entries {
		if q.entries[i].Op == models.OpCreate &&
			q.entries[i].EntityType == entityType &&
			q.entries[i].EntityID == entityID &&
			q.entries[i].OpID != q.inflight {
			return i
		}
	}
	return -1
}
