// Package ledger computes per-member balances for a group from its
// expenses, splits, and settlements.
//
// The engine is a pure function of its inputs: it never mutates them, keeps
// no state between calls, and produces identical output regardless of the
// order expenses and settlements are iterated (all aggregation is decimal
// addition, which is exact and commutative). It may be invoked from any
// goroutine.
package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/divvyhq/divvy/internal/models"
)

// Balance is one member's derived position in a group. It is never
// persisted; callers recompute it whenever the underlying collections
// change.
type Balance struct {
	UserID string `json:"user_id"`

	// Receivable is what the rest of the group owes this member: the sum
	// of other members' shares of expenses this member paid, less
	// settlements already received.
	Receivable decimal.Decimal `json:"receivable"`

	// Payable is what this member owes the group: their shares of expenses
	// others paid, less settlements already made.
	Payable decimal.Decimal `json:"payable"`

	// Net is Receivable − Payable. Positive means the group owes this
	// member; negative means this member owes the group.
	Net decimal.Decimal `json:"net"`
}

// ComputeBalances derives the signed net balance of every group member.
//
// The settlement log is authoritative for what has been paid: split amounts
// are aggregated in full and settlements are subtracted afterwards. The
// per-split settled flag the server sends is deliberately ignored here (see
// SettledSplits for the derived view).
func ComputeBalances(group models.Group, expenses []models.Expense, settlements []models.Settlement) map[string]Balance {
	receivable := make(map[string]decimal.Decimal)
	payable := make(map[string]decimal.Decimal)

	// Every member appears in the result, even with an all-zero balance.
	for _, m := range group.Members {
		receivable[m.UserID] = decimal.Zero
		payable[m.UserID] = decimal.Zero
	}

	// Only members participate. A stale split or settlement naming a user
	// who has left (or never joined) must not conjure a balance entry.
	member := func(userID string) bool {
		_, ok := receivable[userID]
		return ok
	}

	for _, e := range expenses {
		if e.GroupID != group.ID || !member(e.PayerID) {
			continue
		}
		for _, s := range e.Splits {
			if s.UserID == e.PayerID {
				// The payer's own share is money they spent on themselves;
				// it moves no debt.
				continue
			}
			if !member(s.UserID) {
				continue
			}
			receivable[e.PayerID] = receivable[e.PayerID].Add(s.Amount)
			payable[s.UserID] = payable[s.UserID].Add(s.Amount)
		}
	}

	// A settlement is evidence that a portion of debt was paid outside the
	// split bookkeeping: it reduces the payer's payable and the receiver's
	// receivable.
	for _, s := range settlements {
		if s.GroupID != group.ID || !member(s.FromUserID) || !member(s.ToUserID) {
			continue
		}
		payable[s.FromUserID] = payable[s.FromUserID].Sub(s.Amount)
		receivable[s.ToUserID] = receivable[s.ToUserID].Sub(s.Amount)
	}

	balances := make(map[string]Balance, len(receivable))
	for userID, r := range receivable {
		p := payable[userID]
		balances[userID] = Balance{
			UserID:     userID,
			Receivable: r,
			Payable:    p,
			Net:        r.Sub(p),
		}
	}
	return balances
}
