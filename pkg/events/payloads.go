package events

// Role is the user's role as carried on user events.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// UserCreated is the payload of user.created.
type UserCreated struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	FirstName string  `json:"firstName"`
	LastName  *string `json:"lastName,omitempty"`
	Role      Role    `json:"role"`
	IsActive  bool    `json:"isActive"`
	CreatedAt string  `json:"createdAt"`
}

// UserUpdated is the payload of user.updated.
type UserUpdated struct {
	UserCreated
	UpdatedAt string `json:"updatedAt"`
}

// UserDeleted is the payload of user.deleted.
type UserDeleted struct {
	ID        string `json:"id"`
	DeletedAt string `json:"deletedAt"`
}

// AuthAttempt is the payload of auth.attempt.
type AuthAttempt struct {
	Email     string         `json:"email"`
	Timestamp string         `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AuthSuccess is the payload of auth.success.
type AuthSuccess struct {
	UserID    string         `json:"userId"`
	Email     string         `json:"email"`
	Timestamp string         `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AuthFailed is the payload of auth.failed.
type AuthFailed struct {
	Email     string         `json:"email"`
	Reason    string         `json:"reason"`
	Timestamp string         `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
