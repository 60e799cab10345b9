// Package state holds the in-memory authoritative view of the domain
// collections, assembled from the local store plus confirmed remote
// responses, with optimistic entries for not-yet-synced mutations.
//
// The Manager is constructed at session start and torn down at logout; it
// is an explicit object with a lifecycle, not an ambient singleton. Screens
// and services observe it through Subscribe rather than polling.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/divvyhq/divvy/internal/models"
	"github.com/divvyhq/divvy/internal/storage"
)

// EventKind classifies a state notification.
type EventKind string

// Notification kinds delivered to subscribers.
const (
	EventEntityUpdated EventKind = "entity_updated"
	EventEntityRemoved EventKind = "entity_removed"
	EventSyncError     EventKind = "sync_error"
)

// Event is one state-change notification.
type Event struct {
	Kind       EventKind
	EntityType models.EntityType
	EntityID   string
	// Message carries the user-visible error text for EventSyncError.
	Message string
}

// Manager is the domain state manager.
type Manager struct {
	store storage.LocalStore

	mu             sync.RWMutex
	groups         map[string]models.Group
	expenses       map[string]models.Expense
	settlements    map[string]models.Settlement
	paymentMethods map[string]models.PaymentMethod
	subs           []chan Event
	closed         bool
}

// Open loads the last-known-good collections from the local store.
func Open(ctx context.Context, store storage.LocalStore) (*Manager, error) {
	m := &Manager{
		store:          store,
		groups:         make(map[string]models.Group),
		expenses:       make(map[string]models.Expense),
		settlements:    make(map[string]models.Settlement),
		paymentMethods: make(map[string]models.PaymentMethod),
	}
	if err := loadCollection(ctx, store, storage.CollectionGroups, &m.groups); err != nil {
		return nil, err
	}
	if err := loadCollection(ctx, store, storage.CollectionExpenses, &m.expenses); err != nil {
		return nil, err
	}
	if err := loadCollection(ctx, store, storage.CollectionSettlements, &m.settlements); err != nil {
		return nil, err
	}
	if err := loadCollection(ctx, store, storage.CollectionPaymentMethods, &m.paymentMethods); err != nil {
		return nil, err
	}
	return m, nil
}

func loadCollection[T any](ctx context.Context, store storage.LocalStore, name string, dst *map[string]T) error {
	data, err := store.Get(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", name, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return nil
}

// Close tears the manager down and closes all subscriber channels.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for _, ch := range m.subs {
		close(ch)
	}
	m.subs = nil
}

// Subscribe returns a channel of state notifications. Slow subscribers drop
// events rather than blocking mutations.
func (m *Manager) Subscribe() <-chan Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan Event, 64)
	if m.closed {
		close(ch)
		return ch
	}
	m.subs = append(m.subs, ch)
	return ch
}

func (m *Manager) publishLocked(ev Event) {
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// NotifySyncError surfaces a user-visible sync failure to subscribers.
// The sync worker calls this once per failure, not once per retry.
func (m *Manager) NotifySyncError(entityType models.EntityType, entityID, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishLocked(Event{
		Kind:       EventSyncError,
		EntityType: entityType,
		EntityID:   entityID,
		Message:    message,
	})
}
