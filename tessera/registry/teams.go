// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package registry

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Teams exposes team storage.
//
// architecture: Database
type Teams interface {
	// Insert creates a team. Fails with ErrConflict when a live team
	// with the same name exists.
	Insert(ctx context.Context, team Team) (*Team, error)
	// Get returns a live team by id.
	Get(ctx context.Context, id uuid.UUID) (*Team, error)
	// GetByName returns a live team by name.
	GetByName(ctx context.Context, name string) (*Team, error)
	// GetAny returns a team by id regardless of soft deletion, for
	// audit joins.
	GetAny(ctx context.Context, id uuid.UUID) (*Team, error)
	// List returns live teams ordered by name.
	List(ctx context.Context, limit, offset int) ([]Team, error)
	// Update applies the non-nil fields of the request.
	Update(ctx context.Context, id uuid.UUID, req UpdateTeamRequest) (*Team, error)
	// SoftDelete marks a team deleted, preserving audit joins.
	SoftDelete(ctx context.Context, id uuid.UUID) error
	// Search returns live teams whose name matches the query substring.
	Search(ctx context.Context, query string, limit int) ([]Team, error)
}

// Team is a producer or consumer organization.
type Team struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	Description string     `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt   *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// UpdateTeamRequest carries the mutable team fields; nil means keep.
type UpdateTeamRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}
