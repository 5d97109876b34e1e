// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package registry

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UserRole determines the scopes a session user is granted.
type UserRole string

const (
	RoleUser      UserRole = "user"
	RoleTeamAdmin UserRole = "team_admin"
	RoleAdmin     UserRole = "admin"
)

// SessionScopes maps a user role to the API scopes a session cookie
// resolves to.
func (r UserRole) SessionScopes() Scopes {
	switch r {
	case RoleAdmin:
		return Scopes{ScopeRead, ScopeWrite, ScopeAdmin}
	case RoleTeamAdmin:
		return Scopes{ScopeRead, ScopeWrite}
	default:
		return Scopes{ScopeRead}
	}
}

// Users exposes user storage.
//
// architecture: Database
type Users interface {
	// Insert creates a user. Fails with ErrConflict when a live user
	// with the same email exists.
	Insert(ctx context.Context, user User) (*User, error)
	// Get returns an active user by id.
	Get(ctx context.Context, id uuid.UUID) (*User, error)
	// GetByEmail returns an active user by email.
	GetByEmail(ctx context.Context, email string) (*User, error)
	// ListByTeam returns the active users attached to a team.
	ListByTeam(ctx context.Context, teamID uuid.UUID) ([]User, error)
	// Deactivate stamps deactivated_at; deactivated users fail auth.
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// User is a person attached to at most one team.
type User struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	Email         string     `db:"email" json:"email"`
	Name          string     `db:"name" json:"name,omitempty"`
	Role          UserRole   `db:"role" json:"role"`
	TeamID        *uuid.UUID `db:"team_id" json:"team_id,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
	DeactivatedAt *time.Time `db:"deactivated_at" json:"deactivated_at,omitempty"`
}
