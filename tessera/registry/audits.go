// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package registry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditEvents exposes the append-only audit trail. Events are written
// in the same transaction as the state change they describe.
//
// architecture: Database
type AuditEvents interface {
	// Insert appends an audit event.
	Insert(ctx context.Context, event AuditEvent) error
	// ListByEntity returns an entity's events, newest first.
	ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]AuditEvent, error)
}

// AuditEvent records one state-changing action.
type AuditEvent struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	EntityType string          `db:"entity_type" json:"entity_type"`
	EntityID   uuid.UUID       `db:"entity_id" json:"entity_id"`
	Action     string          `db:"action" json:"action"`
	ActorID    *uuid.UUID      `db:"actor_id" json:"actor_id,omitempty"`
	Payload    json.RawMessage `db:"payload" json:"payload,omitempty"`
	OccurredAt time.Time       `db:"occurred_at" json:"occurred_at"`
}

// AuditRunStatus is the outcome of an external quality-tool run.
type AuditRunStatus string

const (
	AuditPassed  AuditRunStatus = "passed"
	AuditFailed  AuditRunStatus = "failed"
	AuditPartial AuditRunStatus = "partial"
)

// AuditRuns exposes write-audit-publish result storage.
//
// architecture: Database
type AuditRuns interface {
	// Insert records an external audit run.
	Insert(ctx context.Context, run AuditRun) (*AuditRun, error)
	// ListByAsset returns an asset's runs matching the filter, newest
	// first.
	ListByAsset(ctx context.Context, assetID uuid.UUID, opts ListAuditRunsOptions) ([]AuditRun, error)
}

// AuditRun is one quality-tool report against an asset.
type AuditRun struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	AssetID      uuid.UUID       `db:"asset_id" json:"asset_id"`
	ContractID   *uuid.UUID      `db:"contract_id" json:"contract_id,omitempty"`
	Status       AuditRunStatus  `db:"status" json:"status"`
	ChecksTotal  int             `db:"checks_total" json:"checks_total"`
	ChecksPassed int             `db:"checks_passed" json:"checks_passed"`
	ChecksFailed int             `db:"checks_failed" json:"checks_failed"`
	TriggeredBy  string          `db:"triggered_by" json:"triggered_by"`
	RunID        string          `db:"run_id" json:"run_id,omitempty"`
	Details      json.RawMessage `db:"details" json:"details,omitempty"`
	RunAt        time.Time       `db:"run_at" json:"run_at"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// ListAuditRunsOptions filters audit-run listings.
type ListAuditRunsOptions struct {
	Status      *AuditRunStatus
	TriggeredBy string
	Limit       int
}
