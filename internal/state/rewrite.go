package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/divvyhq/divvy/internal/models"
	"github.com/divvyhq/divvy/internal/storage"
)

// RewriteID implements identity.Rewriter: it replaces every cached
// occurrence of old with new (map keys, owning ids, and nested references
// such as payer, split users, settlement parties and related expense
// lists), then persists every collection that changed.
func (m *Manager) RewriteID(ctx context.Context, old, new string) error {
	m.mu.Lock()

	type dirty struct {
		collection string
		data       []byte
	}
	var pending []dirty

	if changed := rewriteGroups(m.groups, old, new); changed {
		data, err := json.Marshal(m.groups)
		if err != nil {
			m.mu.Unlock()
			return fmt.Errorf("failed to encode groups: %w", err)
		}
		pending = append(pending, dirty{storage.CollectionGroups, data})
	}
	if changed := rewriteExpenses(m.expenses, old, new); changed {
		data, err := json.Marshal(m.expenses)
		if err != nil {
			m.mu.Unlock()
			return fmt.Errorf("failed to encode expenses: %w", err)
		}
		pending = append(pending, dirty{storage.CollectionExpenses, data})
	}
	if changed := rewriteSettlements(m.settlements, old, new); changed {
		data, err := json.Marshal(m.settlements)
		if err != nil {
			m.mu.Unlock()
			return fmt.Errorf("failed to encode settlements: %w", err)
		}
		pending = append(pending, dirty{storage.CollectionSettlements, data})
	}
	if changed := rewritePaymentMethods(m.paymentMethods, old, new); changed {
		data, err := json.Marshal(m.paymentMethods)
		if err != nil {
			m.mu.Unlock()
			return fmt.Errorf("failed to encode payment methods: %w", err)
		}
		pending = append(pending, dirty{storage.CollectionPaymentMethods, data})
	}
	m.mu.Unlock()

	for _, d := range pending {
		if err := m.store.Put(ctx, d.collection, d.data); err != nil {
			return fmt.Errorf("failed to persist %s: %w", d.collection, err)
		}
	}
	return nil
}

func rewriteGroups(groups map[string]models.Group, old, new string) bool {
	changed := false
	for id, g := range groups {
		entityChanged := false
		if g.ID == old {
			g.ID = new
			entityChanged = true
		}
		for i := range g.Members {
			if g.Members[i].UserID == old {
				g.Members[i].UserID = new
				entityChanged = true
			}
		}
		if entityChanged {
			delete(groups, id)
			groups[g.ID] = g
			changed = true
		}
	}
	return changed
}

func rewriteExpenses(expenses map[string]models.Expense, old, new string) bool {
	changed := false
	for id, e := range expenses {
		entityChanged := false
		if e.ID == old {
			e.ID = new
			entityChanged = true
		}
		if e.GroupID == old {
			e.GroupID = new
			entityChanged = true
		}
		if e.PayerID == old {
			e.PayerID = new
			entityChanged = true
		}
		for i := range e.Splits {
			if e.Splits[i].ExpenseID == old {
				e.Splits[i].ExpenseID = new
				entityChanged = true
			}
			if e.Splits[i].UserID == old {
				e.Splits[i].UserID = new
				entityChanged = true
			}
		}
		if entityChanged {
			delete(expenses, id)
			expenses[e.ID] = e
			changed = true
		}
	}
	return changed
}

func rewriteSettlements(settlements map[string]models.Settlement, old, new string) bool {
	changed := false
	for id, s := range settlements {
		entityChanged := false
		if s.ID == old {
			s.ID = new
			entityChanged = true
		}
		if s.GroupID == old {
			s.GroupID = new
			entityChanged = true
		}
		if s.FromUserID == old {
			s.FromUserID = new
			entityChanged = true
		}
		if s.ToUserID == old {
			s.ToUserID = new
			entityChanged = true
		}
		for i := range s.ExpenseIDs {
			if s.ExpenseIDs[i] == old {
				s.ExpenseIDs[i] = new
				entityChanged = true
			}
		}
		if entityChanged {
			delete(settlements, id)
			settlements[s.ID] = s
			changed = true
		}
	}
	return changed
}

func rewritePaymentMethods(methods map[string]models.PaymentMethod, old, new string) bool {
	changed := false
	for id, pm := range methods {
		entityChanged := false
		if pm.ID == old {
			pm.ID = new
			entityChanged = true
		}
		if pm.UserID == old {
			pm.UserID = new
			entityChanged = true
		}
		if entityChanged {
			delete(methods, id)
			methods[pm.ID] = pm
			changed = true
		}
	}
	return changed
}
