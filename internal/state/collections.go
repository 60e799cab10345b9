package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/divvyhq/divvy/internal/models"
	"github.com/divvyhq/divvy/internal/storage"
)

// Group returns the cached group, if present.
func (m *Manager) Group(id string) (models.Group, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[id]
	return g, ok
}

// Groups returns all cached groups sorted by name then id.
func (m *Manager) Groups() []models.Group {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Group, 0, len(m.groups))
	for _, g := range m.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Expense returns the cached expense, if present.
func (m *Manager) Expense(id string) (models.Expense, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.expenses[id]
	return e, ok
}

// ExpensesByGroup returns the group's expenses sorted by date then id.
func (m *Manager) ExpensesByGroup(groupID string) []models.Expense {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Expense
	for _, e := range m.expenses {
		if e.GroupID == groupID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Settlement returns the cached settlement, if present.
func (m *Manager) Settlement(id string) (models.Settlement, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.settlements[id]
	return s, ok
}

// SettlementsByGroup returns the group's settlements sorted by creation
// time then id.
func (m *Manager) SettlementsByGroup(groupID string) []models.Settlement {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Settlement
	for _, s := range m.settlements {
		if s.GroupID == groupID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// PaymentMethodsByUser returns a user's payment methods sorted by label.
func (m *Manager) PaymentMethodsByUser(userID string) []models.PaymentMethod {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.PaymentMethod
	for _, pm := range m.paymentMethods {
		if pm.UserID == userID {
			out = append(out, pm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// UpsertGroup stores a group, persists the collection, and notifies.
func (m *Manager) UpsertGroup(ctx context.Context, g models.Group) error {
	return upsert(ctx, m, storage.CollectionGroups, models.EntityGroup, g.ID, func() { m.groups[g.ID] = g }, &m.groups)
}

// UpsertExpense stores an expense, persists the collection, and notifies.
func (m *Manager) UpsertExpense(ctx context.Context, e models.Expense) error {
	return upsert(ctx, m, storage.CollectionExpenses, models.EntityExpense, e.ID, func() { m.expenses[e.ID] = e }, &m.expenses)
}

// UpsertSettlement stores a settlement, persists the collection, and
// notifies.
func (m *Manager) UpsertSettlement(ctx context.Context, s models.Settlement) error {
	return upsert(ctx, m, storage.CollectionSettlements, models.EntitySettlement, s.ID, func() { m.settlements[s.ID] = s }, &m.settlements)
}

// UpsertPaymentMethod stores a payment method, persists the collection, and
// notifies.
func (m *Manager) UpsertPaymentMethod(ctx context.Context, pm models.PaymentMethod) error {
	return upsert(ctx, m, storage.CollectionPaymentMethods, models.EntityPaymentMethod, pm.ID, func() { m.paymentMethods[pm.ID] = pm }, &m.paymentMethods)
}

func upsert[T any](ctx context.Context, m *Manager, collection string, entityType models.EntityType, id string, apply func(), snapshot *map[string]T) error {
	m.mu.Lock()
	apply()
	data, err := json.Marshal(*snapshot)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("failed to encode %s: %w", collection, err)
	}
	m.publishLocked(Event{Kind: EventEntityUpdated, EntityType: entityType, EntityID: id})
	m.mu.Unlock()

	if err := m.store.Put(ctx, collection, data); err != nil {
		return fmt.Errorf("failed to persist %s: %w", collection, err)
	}
	return nil
}

// ApplyRemote decodes a canonical server entity and upserts it. It returns
// the canonical entity id.
func (m *Manager) ApplyRemote(ctx context.Context, entityType models.EntityType, raw json.RawMessage) (string, error) {
	switch entityType {
	case models.EntityGroup:
		var g models.Group
		if err := json.Unmarshal(raw, &g); err != nil {
			return "", fmt.Errorf("failed to decode remote group: %w", err)
		}
		return g.ID, m.UpsertGroup(ctx, g)
	case models.EntityExpense:
		var e models.Expense
		if err := json.Unmarshal(raw, &e); err != nil {
			return "", fmt.Errorf("failed to decode remote expense: %w", err)
		}
		return e.ID, m.UpsertExpense(ctx, e)
	case models.EntitySettlement:
		var s models.Settlement
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("failed to decode remote settlement: %w", err)
		}
		return s.ID, m.UpsertSettlement(ctx, s)
	case models.EntityPaymentMethod:
		var pm models.PaymentMethod
		if err := json.Unmarshal(raw, &pm); err != nil {
			return "", fmt.Errorf("failed to decode remote payment method: %w", err)
		}
		return pm.ID, m.UpsertPaymentMethod(ctx, pm)
	default:
		return "", fmt.Errorf("unknown entity type %q", entityType)
	}
}

// ReplaceCollection swaps a whole collection for the decoded server list.
// Used by the full re-pull, where the server copy wins outright.
func (m *Manager) ReplaceCollection(ctx context.Context, entityType models.EntityType, raw json.RawMessage) error {
	switch entityType {
	case models.EntityGroup:
		return replaceCollection(ctx, m, storage.CollectionGroups, entityType, raw, &m.groups, func(g models.Group) string { return g.ID })
	case models.EntityExpense:
		return replaceCollection(ctx, m, storage.CollectionExpenses, entityType, raw, &m.expenses, func(e models.Expense) string { return e.ID })
	case models.EntitySettlement:
		return replaceCollection(ctx, m, storage.CollectionSettlements, entityType, raw, &m.settlements, func(s models.Settlement) string { return s.ID })
	case models.EntityPaymentMethod:
		return replaceCollection(ctx, m, storage.CollectionPaymentMethods, entityType, raw, &m.paymentMethods, func(pm models.PaymentMethod) string { return pm.ID })
	default:
		return fmt.Errorf("unknown entity type %q", entityType)
	}
}

func replaceCollection[T any](ctx context.Context, m *Manager, collection string, entityType models.EntityType, raw json.RawMessage, dst *map[string]T, idOf func(T) string) error {
	var list []T
	if err := json.Unmarshal(raw, &list); err != nil {
		return fmt.Errorf("failed to decode %s pull: %w", collection, err)
	}
	next := make(map[string]T, len(list))
	for _, item := range list {
		next[idOf(item)] = item
	}

	m.mu.Lock()
	*dst = next
	data, err := json.Marshal(next)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("failed to encode %s: %w", collection, err)
	}
	m.publishLocked(Event{Kind: EventEntityUpdated, EntityType: entityType})
	m.mu.Unlock()

	if err := m.store.Put(ctx, collection, data); err != nil {
		return fmt.Errorf("failed to persist %s: %w", collection, err)
	}
	return nil
}

// Remove purges an entity from the cache, persists, and notifies.
func (m *Manager) Remove(ctx context.Context, entityType models.EntityType, id string) error {
	m.mu.Lock()
	var (
		collection string
		data       []byte
		err        error
	)
	switch entityType {
	case models.EntityGroup:
		delete(m.groups, id)
		collection = storage.CollectionGroups
		data, err = json.Marshal(m.groups)
	case models.EntityExpense:
		delete(m.expenses, id)
		collection = storage.CollectionExpenses
		data, err = json.Marshal(m.expenses)
	case models.EntitySettlement:
		delete(m.settlements, id)
		collection = storage.CollectionSettlements
		data, err = json.Marshal(m.settlements)
	case models.EntityPaymentMethod:
		delete(m.paymentMethods, id)
		collection = storage.CollectionPaymentMethods
		data, err = json.Marshal(m.paymentMethods)
	default:
		m.mu.Unlock()
		return fmt.Errorf("unknown entity type %q", entityType)
	}
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("failed to encode %s: %w", collection, err)
	}
	m.publishLocked(Event{Kind: EventEntityRemoved, EntityType: entityType, EntityID: id})
	m.mu.Unlock()

	if err := m.store.Put(ctx, collection, data); err != nil {
		return fmt.Errorf("failed to persist %s: %w", collection, err)
	}
	return nil
}
