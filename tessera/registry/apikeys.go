// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package registry

import (
	"context"
	"database/sql/driver"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/errs"
)

// Scope is an API permission. Admin implies the others.
type Scope string

const (
	ScopeRead  Scope = "read"
	ScopeWrite Scope = "write"
	ScopeAdmin Scope = "admin"
)

// Scopes is a set of API permissions, stored as a comma-joined string.
type Scopes []Scope

// Has reports whether the set grants the scope, with admin implying
// all scopes.
func (s Scopes) Has(scope Scope) bool {
	for _, have := range s {
		if have == ScopeAdmin || have == scope {
			return true
		}
	}
	return false
}

// Value implements driver.Valuer.
func (s Scopes) Value() (driver.Value, error) {
	parts := make([]string, len(s))
	for i, scope := range s {
		parts[i] = string(scope)
	}
	return strings.Join(parts, ","), nil
}

// Scan implements sql.Scanner.
func (s *Scopes) Scan(value interface{}) error {
	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	case nil:
		*s = nil
		return nil
	default:
		return errs.New("cannot scan %T into Scopes", value)
	}
	*s = nil
	for _, part := range strings.Split(raw, ",") {
		if part != "" {
			*s = append(*s, Scope(part))
		}
	}
	return nil
}

// APIKeys exposes API key storage.
//
// architecture: Database
type APIKeys interface {
	// Insert stores a hashed key. Fails with ErrConflict on a prefix
	// collision.
	Insert(ctx context.Context, key APIKey) (*APIKey, error)
	// Get returns a key by id.
	Get(ctx context.Context, id uuid.UUID) (*APIKey, error)
	// GetByPrefix returns a key by its public prefix.
	GetByPrefix(ctx context.Context, prefix string) (*APIKey, error)
	// ListByTeam returns a team's keys.
	ListByTeam(ctx context.Context, teamID uuid.UUID) ([]APIKey, error)
	// Delete hard-revokes a key.
	Delete(ctx context.Context, id uuid.UUID) error
	// UpdateLastUsed stamps last_used_at.
	UpdateLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error
}

// APIKey is a hashed bearer credential owned by a team.
type APIKey struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	KeyHash    string     `db:"key_hash" json:"-"`
	KeyPrefix  string     `db:"key_prefix" json:"key_prefix"`
	Name       string     `db:"name" json:"name"`
	TeamID     uuid.UUID  `db:"team_id" json:"team_id"`
	Scopes     Scopes     `db:"scopes" json:"scopes"`
	ExpiresAt  *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
}

// Expired reports whether the key has an elapsed expiry.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}
