package models

// PaymentMethod represents how a member prefers to be paid back.
// The core only syncs these records; executing payments is out of scope.
type PaymentMethod struct {
	// ID is the unique identifier (UUID format, or a temp id while the
	// record is only known locally).
	ID string `json:"id"`

	// UserID is the owning member.
	UserID string `json:"user_id"`

	// Kind is the payment channel (e.g., "iban", "paypal", "venmo").
	Kind string `json:"kind"`

	// Label is the user-facing name ("Main account").
	Label string `json:"label"`

	// Handle is the channel-specific address or account handle.
	Handle string `json:"handle"`

	// CreatedAt is the Unix timestamp when the method was added.
	CreatedAt int64 `json:"created_at"`
}
