package models

// Member roles within a group.
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

// Member is one user's membership in a group.
type Member struct {
	// UserID references the member's user account.
	UserID string `json:"user_id"`

	// Role is the member's role in the group (owner or member).
	Role string `json:"role"`
}

// Group represents a shared household whose members record and split expenses.
type Group struct {
	// ID is the unique identifier for the group (UUID format, or a temp id
	// while the group is only known locally).
	ID string `json:"id"`

	// Name is the display name of the group (e.g., "Flat 4B", "Ski Trip").
	Name string `json:"name"`

	// Description is an optional free-form description.
	Description string `json:"description,omitempty"`

	// Members is the list of group memberships.
	Members []Member `json:"members"`

	// CreatedAt is the Unix timestamp when the group was created.
	CreatedAt int64 `json:"created_at"`

	// UpdatedAt is the Unix timestamp of the last modification.
	UpdatedAt int64 `json:"updated_at,omitempty"`
}

// HasMember reports whether userID belongs to the group.
func (g *Group) HasMember(userID string) bool {
	for _, m := range g.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// MemberIDs returns the user ids of all members, in member-list order.
func (g *Group) MemberIDs() []string {
	ids := make([]string, len(g.Members))
	for i, m := range g.Members {
		ids[i] = m.UserID
	}
	return ids
}
