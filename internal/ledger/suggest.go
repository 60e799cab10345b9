package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Suggestion proposes one settle-up payment from a debtor to a single
// creditor.
type Suggestion struct {
	FromUserID string          `json:"from_user"`
	ToUserID   string          `json:"to_user"`
	Amount     decimal.Decimal `json:"amount"`
}

// SuggestSettlement offers the debtor one creditor at a time: the creditor
// with the largest receivable, for min(|debtor's net|, creditor's net).
//
// This is a greedy pairwise heuristic, not a debt-minimizing transfer graph
// across more than two parties. That is a deliberate product behavior, kept
// as-is.
func SuggestSettlement(balances map[string]Balance, debtorID string) (Suggestion, bool) {
	debtor, ok := balances[debtorID]
	if !ok || debtor.Net.Sign() >= 0 {
		return Suggestion{}, false
	}

	var creditors []Balance
	for _, b := range balances {
		if b.UserID != debtorID && b.Net.Sign() > 0 {
			creditors = append(creditors, b)
		}
	}
	if len(creditors) == 0 {
		return Suggestion{}, false
	}

	// Largest creditor first; ties broken by user id so the suggestion is
	// stable across calls.
	sort.Slice(creditors, func(i, j int) bool {
		if c := creditors[i].Net.Cmp(creditors[j].Net); c != 0 {
			return c > 0
		}
		return creditors[i].UserID < creditors[j].UserID
	})

	owed := debtor.Net.Neg()
	amount := decimal.Min(owed, creditors[0].Net)
	return Suggestion{
		FromUserID: debtorID,
		ToUserID:   creditors[0].UserID,
		Amount:     amount,
	}, true
}
