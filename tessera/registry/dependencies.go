// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package registry

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DependencyType describes how a dependent asset uses its dependency.
type DependencyType string

const (
	DependencyConsumes   DependencyType = "consumes"
	DependencyReferences DependencyType = "references"
	DependencyTransforms DependencyType = "transforms"
)

// ValidDependencyType reports whether t is a known dependency type.
func ValidDependencyType(t DependencyType) bool {
	switch t {
	case DependencyConsumes, DependencyReferences, DependencyTransforms:
		return true
	}
	return false
}

// Dependencies exposes lineage-edge storage.
//
// architecture: Database
type Dependencies interface {
	// Insert creates an edge. Fails with ErrConflict when a live edge
	// with the same (dependent, dependency, type) exists.
	Insert(ctx context.Context, dep Dependency) (*Dependency, error)
	// Upsert creates the edge if no live duplicate exists, otherwise
	// returns the existing one. Used by connector sync.
	Upsert(ctx context.Context, dep Dependency) (*Dependency, error)
	// ListDownstream returns live edges whose dependency asset is in
	// the frontier, joined against live dependent assets. One call per
	// traversal level.
	ListDownstream(ctx context.Context, frontier []uuid.UUID) ([]DownstreamEdge, error)
	// ListUpstream returns live edges originating at the asset, joined
	// against live dependency assets.
	ListUpstream(ctx context.Context, assetID uuid.UUID) ([]UpstreamEdge, error)
	// SoftDelete marks an edge deleted.
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

// Dependency is a lineage edge: dependent depends on dependency.
type Dependency struct {
	ID                uuid.UUID      `db:"id" json:"id"`
	DependentAssetID  uuid.UUID      `db:"dependent_asset_id" json:"dependent_asset_id"`
	DependencyAssetID uuid.UUID      `db:"dependency_asset_id" json:"dependency_asset_id"`
	DependencyType    DependencyType `db:"dependency_type" json:"dependency_type"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
	DeletedAt         *time.Time     `db:"deleted_at" json:"deleted_at,omitempty"`
}

// DownstreamEdge pairs a dependent asset with the edge that reached it.
type DownstreamEdge struct {
	Asset             Asset
	DependencyAssetID uuid.UUID
	DependencyType    DependencyType
}

// UpstreamEdge pairs a dependency asset with the edge that reached it.
type UpstreamEdge struct {
	Asset          Asset
	DependencyType DependencyType
}
