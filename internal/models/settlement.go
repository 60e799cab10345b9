package models

import "github.com/shopspring/decimal"

// Settlement represents a payment between two group members to clear debt.
//
// Amount is always non-negative; direction is carried by FromUserID and
// ToUserID, never by sign.
type Settlement struct {
	// ID is the unique identifier for the settlement (UUID format, or a
	// temp id while the settlement is only known locally).
	ID string `json:"id"`

	// GroupID is the group this settlement belongs to.
	GroupID string `json:"group_id"`

	// FromUserID is the member who paid (debtor settling up).
	FromUserID string `json:"from_user"`

	// ToUserID is the member who received payment (creditor being paid).
	ToUserID string `json:"to_user"`

	// Amount is the payment amount. Always positive.
	Amount decimal.Decimal `json:"amount"`

	// ExpenseIDs optionally lists the expenses this settlement relates to.
	ExpenseIDs []string `json:"expense_ids,omitempty"`

	// CreatedAt is the Unix timestamp when the settlement was recorded.
	CreatedAt int64 `json:"created_at"`

	// Note is an optional description for the settlement.
	Note string `json:"note,omitempty"`
}
