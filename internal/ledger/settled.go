package ledger

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/divvyhq/divvy/internal/models"
)

// SplitRef identifies one split within a group's expenses.
type SplitRef struct {
	ExpenseID string `json:"expense_id"`
	UserID    string `json:"user_id"`
}

// SettledSplits derives which splits count as settled from the settlement
// log. A split is settled when the settlements its debtor has paid to the
// expense's payer fully cover it, applying the settled amount to the
// debtor's splits oldest expense first.
//
// This is the single source of truth for "settled": the per-split flag the
// server stores is a presentation detail derived from this view, never an
// input to it.
func SettledSplits(group models.Group, expenses []models.Expense, settlements []models.Settlement) map[SplitRef]bool {
	type pair struct{ debtor, creditor string }

	// Total settled per debtor->creditor direction.
	paid := make(map[pair]decimal.Decimal)
	for _, s := range settlements {
		if s.GroupID != group.ID {
			continue
		}
		p := pair{s.FromUserID, s.ToUserID}
		paid[p] = paid[p].Add(s.Amount)
	}

	// Deterministic application order: oldest expense first, id as
	// tie-break, split order within an expense.
	ordered := make([]models.Expense, 0, len(expenses))
	for _, e := range expenses {
		if e.GroupID == group.ID && e.PayerID != "" {
			ordered = append(ordered, e)
		}
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Date != ordered[j].Date {
			return ordered[i].Date < ordered[j].Date
		}
		return ordered[i].ID < ordered[j].ID
	})

	settled := make(map[SplitRef]bool)
	remaining := make(map[pair]decimal.Decimal, len(paid))
	for p, amt := range paid {
		remaining[p] = amt
	}

	for _, e := range ordered {
		for _, s := range e.Splits {
			if s.UserID == e.PayerID {
				continue
			}
			p := pair{s.UserID, e.PayerID}
			if remaining[p].Cmp(s.Amount) >= 0 {
				remaining[p] = remaining[p].Sub(s.Amount)
				settled[SplitRef{ExpenseID: e.ID, UserID: s.UserID}] = true
			}
		}
	}
	return settled
}
