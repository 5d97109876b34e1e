// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package registry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Assets exposes asset storage.
//
// architecture: Database
type Assets interface {
	// Insert creates an asset. Fails with ErrConflict when a live
	// asset with the same (fqn, environment) exists.
	Insert(ctx context.Context, asset Asset) (*Asset, error)
	// Get returns a live asset by id.
	Get(ctx context.Context, id uuid.UUID) (*Asset, error)
	// GetByFQN returns a live asset by (fqn, environment).
	GetByFQN(ctx context.Context, fqn, environment string) (*Asset, error)
	// GetBatch returns the live assets among ids.
	GetBatch(ctx context.Context, ids []uuid.UUID) ([]Asset, error)
	// GetByFQNBatch returns the live assets matching any of the fqns
	// in one environment. One call per bulk publish.
	GetByFQNBatch(ctx context.Context, environment string, fqns []string) ([]Asset, error)
	// List returns live assets with optional owner filtering.
	List(ctx context.Context, opts ListAssetsOptions) ([]Asset, error)
	// Update applies the non-nil fields of the request.
	Update(ctx context.Context, id uuid.UUID, req UpdateAssetRequest) (*Asset, error)
	// SoftDelete marks an asset deleted.
	SoftDelete(ctx context.Context, id uuid.UUID) error
	// ListByDependsOnFQN returns live assets whose metadata depends_on
	// array names the given fqn. Backed by a JSON containment filter,
	// not a full-table scan.
	ListByDependsOnFQN(ctx context.Context, fqn string) ([]Asset, error)
	// Search returns live assets whose fqn matches the query substring.
	Search(ctx context.Context, query string, limit int) ([]Asset, error)
}

// Asset is an addressable unit of data identified by fqn and
// environment.
type Asset struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	FQN          string          `db:"fqn" json:"fqn"`
	Environment  string          `db:"environment" json:"environment"`
	OwnerTeamID  uuid.UUID       `db:"owner_team_id" json:"owner_team_id"`
	ResourceType string          `db:"resource_type" json:"resource_type"`
	Description  string          `db:"description" json:"description,omitempty"`
	Metadata     json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
	DeletedAt    *time.Time      `db:"deleted_at" json:"deleted_at,omitempty"`
}

// DependsOn extracts the optional depends_on fqn list from metadata.
func (a *Asset) DependsOn() []string {
	if len(a.Metadata) == 0 {
		return nil
	}
	var meta struct {
		DependsOn []string `json:"depends_on"`
	}
	if err := json.Unmarshal(a.Metadata, &meta); err != nil {
		return nil
	}
	return meta.DependsOn
}

// ListAssetsOptions filters asset listings.
type ListAssetsOptions struct {
	OwnerTeamID *uuid.UUID
	Environment string
	Limit       int
	Offset      int
}

// UpdateAssetRequest carries the mutable asset fields; nil means keep.
type UpdateAssetRequest struct {
	Description  *string          `json:"description,omitempty"`
	ResourceType *string          `json:"resource_type,omitempty"`
	OwnerTeamID  *uuid.UUID       `json:"owner_team_id,omitempty"`
	Metadata     *json.RawMessage `json:"metadata,omitempty"`
}
