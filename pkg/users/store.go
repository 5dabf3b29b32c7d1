// Package users holds the user records that auth events update and whose
// changes are published as user events.
package users

import (
	"context"
	"errors"
	"time"

	"github.com/tnewman/event-gateway/pkg/events"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already in use")
)

// User is a stored user record.
type User struct {
	ID                  string
	Email               string
	FirstName           string
	LastName            *string
	Role                events.Role
	IsActive            bool
	LastLoginAt         *time.Time
	LastActivityAt      *time.Time
	FailedLoginAttempts int
	CreatedAt           time.Time
	UpdatedAt           time.Time
	DeletedAt           *time.Time
}

// NewUser holds the fields required to create a user.
type NewUser struct {
	Email     string
	FirstName string
	LastName  *string
	Role      events.Role
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Email               *string
	FirstName           *string
	LastName            *string
	Role                *events.Role
	IsActive            *bool
	LastLoginAt         *time.Time
	LastActivityAt      *time.Time
	FailedLoginAttempts *int
	DeletedAt           *time.Time
}

// Store persists users. Soft-deleted users are invisible to every method.
type Store interface {
	// FindByEmail returns ErrUserNotFound when no live user has email.
	FindByEmail(ctx context.Context, email string) (*User, error)
	// Update applies p and returns the updated user, or ErrUserNotFound.
	Update(ctx context.Context, id string, p Patch) (*User, error)
	// Create stores a new active user, or fails with ErrEmailTaken.
	Create(ctx context.Context, u NewUser) (*User, error)
}

func (p Patch) apply(u *User) {
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = p.LastName
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.IsActive != nil {
		u.IsActive = *p.IsActive
	}
	if p.LastLoginAt != nil {
		u.LastLoginAt = p.LastLoginAt
	}
	if p.LastActivityAt != nil {
		u.LastActivityAt = p.LastActivityAt
	}
	if p.FailedLoginAttempts != nil {
		u.FailedLoginAttempts = *p.FailedLoginAttempts
	}
	if p.DeletedAt != nil {
		u.DeletedAt = p.DeletedAt
	}
}
