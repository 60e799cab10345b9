package models

import "github.com/shopspring/decimal"

// Split types supported for an expense.
const (
	SplitTypeEqual  = "equal"
	SplitTypeCustom = "custom"
)

// SplitTolerance is the maximum allowed difference between an expense total
// and the sum of its splits, in currency units.
var SplitTolerance = decimal.New(1, -2) // 0.01

// Split represents one user's assigned share of a single expense.
type Split struct {
	// ExpenseID is the owning expense.
	ExpenseID string `json:"expense_id"`

	// UserID is the member who owes this share.
	UserID string `json:"user_id"`

	// Amount is this member's share of the expense total.
	Amount decimal.Decimal `json:"amount"`

	// Settled is the server's per-split settled flag. The balance ledger
	// treats the settlement log as authoritative and derives the settled
	// state instead of reading this field; it is carried only because the
	// wire format includes it.
	Settled bool `json:"is_settled"`
}

// Expense represents a cost paid by one member and divided among participants.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format, or a temp id
	// while the expense is only known locally).
	ID string `json:"id"`

	// GroupID is the group this expense belongs to.
	GroupID string `json:"group_id"`

	// PayerID is the member who paid the total.
	PayerID string `json:"payer_id"`

	// Description is a short human-readable label ("Groceries", "Rent").
	Description string `json:"description,omitempty"`

	// Amount is the total cost of the expense.
	Amount decimal.Decimal `json:"amount"`

	// Date is the Unix timestamp the expense occurred.
	Date int64 `json:"date"`

	// SplitType is how the total is divided: "equal" or "custom".
	SplitType string `json:"split_type"`

	// Splits is the ordered list of per-member shares. Their amounts must
	// sum to Amount within SplitTolerance.
	Splits []Split `json:"splits"`

	// ReceiptURL optionally references an uploaded receipt image. Upload
	// transport is handled outside the core; only the reference is synced.
	ReceiptURL string `json:"receipt_url,omitempty"`

	// CreatedAt is the Unix timestamp when the expense was recorded.
	CreatedAt int64 `json:"created_at"`

	// UpdatedAt is the Unix timestamp of the last modification.
	UpdatedAt int64 `json:"updated_at,omitempty"`
}

// SplitSum returns the sum of all split amounts.
func (e *Expense) SplitSum() decimal.Decimal {
	sum := decimal.Zero
	for _, s := range e.Splits {
		sum = sum.Add(s.Amount)
	}
	return sum
}

// SplitsBalanced reports whether the splits sum to the expense total within
// SplitTolerance.
func (e *Expense) SplitsBalanced() bool {
	return e.SplitSum().Sub(e.Amount).Abs().Cmp(SplitTolerance) <= 0
}

// SplitFor returns the split assigned to userID, or nil if none exists.
func (e *Expense) SplitFor(userID string) *Split {
	for i := range e.Splits {
		if e.Splits[i].UserID == userID {
			return &e.Splits[i]
		}
	}
	return nil
}
