// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package registry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"tessera.io/tessera/tessera/schemadiff"
)

// ContractStatus is a contract lifecycle state.
type ContractStatus string

const (
	ContractActive     ContractStatus = "active"
	ContractDeprecated ContractStatus = "deprecated"
	ContractRetired    ContractStatus = "retired"
)

// SchemaFormat identifies the submitted schema dialect. Avro inputs
// are normalized before storage; the differ only ever sees the
// JSON-Schema-like model.
type SchemaFormat string

const (
	FormatJSONSchema SchemaFormat = "json_schema"
	FormatAvro       SchemaFormat = "avro"
)

// Contracts exposes contract storage.
//
// architecture: Database
type Contracts interface {
	// Insert creates a contract. The hard (asset_id, version) unique
	// constraint makes version reuse fail with ErrConflict regardless
	// of soft-delete state.
	Insert(ctx context.Context, contract Contract) (*Contract, error)
	// Get returns a contract by id.
	Get(ctx context.Context, id uuid.UUID) (*Contract, error)
	// GetActive returns the asset's active contract, or ErrNotFound.
	GetActive(ctx context.Context, assetID uuid.UUID) (*Contract, error)
	// GetActiveForUpdate is GetActive holding a row-level lock to
	// serialize concurrent publishes. Must run inside a transaction.
	GetActiveForUpdate(ctx context.Context, assetID uuid.UUID) (*Contract, error)
	// GetActiveBatch returns the active contracts for any of the
	// assets, locked for update when lock is set.
	GetActiveBatch(ctx context.Context, assetIDs []uuid.UUID, lock bool) ([]Contract, error)
	// ListByAsset returns the asset's contracts, newest first.
	ListByAsset(ctx context.Context, assetID uuid.UUID) ([]Contract, error)
	// SetStatus moves a contract between lifecycle states.
	SetStatus(ctx context.Context, id uuid.UUID, status ContractStatus) error
	// Search returns contracts whose asset fqn or version matches the
	// query substring.
	Search(ctx context.Context, query string, limit int) ([]Contract, error)
}

// Contract is a versioned declarative description of an asset.
type Contract struct {
	ID                uuid.UUID       `db:"id" json:"id"`
	AssetID           uuid.UUID       `db:"asset_id" json:"asset_id"`
	Version           string          `db:"version" json:"version"`
	SchemaDef         json.RawMessage `db:"schema_def" json:"schema_def"`
	SchemaFormat      SchemaFormat    `db:"schema_format" json:"schema_format"`
	CompatibilityMode schemadiff.Mode `db:"compatibility_mode" json:"compatibility_mode"`
	Guarantees        json.RawMessage `db:"guarantees" json:"guarantees,omitempty"`
	Status            ContractStatus  `db:"status" json:"status"`
	PublishedBy       uuid.UUID       `db:"published_by" json:"published_by"`
	PublishedByUserID *uuid.UUID      `db:"published_by_user_id" json:"published_by_user_id,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// Schema decodes the stored schema document.
func (c *Contract) Schema() (schemadiff.Schema, error) {
	return schemadiff.Parse(c.SchemaDef)
}
