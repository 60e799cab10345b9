package models

// User represents a registered member account.
//
// The core never authenticates users itself; it receives the session from
// the surrounding application and carries user records only so cached
// groups can be displayed with names.
type User struct {
	// ID is the unique identifier for the user (UUID format).
	ID string `json:"id"`

	// Name is the display name of the user.
	Name string `json:"name"`

	// Email is the user's email address (unique).
	Email string `json:"email"`

	// CreatedAt is the Unix timestamp when the account was created.
	CreatedAt int64 `json:"created_at"`
}
