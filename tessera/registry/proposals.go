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

// ProposalStatus is a proposal lifecycle state.
type ProposalStatus string

const (
	ProposalPending   ProposalStatus = "pending"
	ProposalApproved  ProposalStatus = "approved"
	ProposalRejected  ProposalStatus = "rejected"
	ProposalWithdrawn ProposalStatus = "withdrawn"
)

// Proposals exposes proposal storage.
//
// architecture: Database
type Proposals interface {
	// Insert creates a proposal. At most one pending proposal may
	// exist per asset; violations fail with ErrConflict.
	Insert(ctx context.Context, proposal Proposal) (*Proposal, error)
	// Get returns a proposal by id.
	Get(ctx context.Context, id uuid.UUID) (*Proposal, error)
	// GetForUpdate is Get holding a row-level lock to serialize state
	// transitions. Must run inside a transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Proposal, error)
	// GetPendingByAsset returns the asset's pending proposal, or
	// ErrNotFound.
	GetPendingByAsset(ctx context.Context, assetID uuid.UUID) (*Proposal, error)
	// GetPendingBatch returns pending proposals for any of the assets.
	GetPendingBatch(ctx context.Context, assetIDs []uuid.UUID) ([]Proposal, error)
	// List returns proposals matching the filter, newest first.
	List(ctx context.Context, opts ListProposalsOptions) ([]Proposal, error)
	// SetStatus transitions a proposal and stamps resolved_at for
	// terminal states.
	SetStatus(ctx context.Context, id uuid.UUID, status ProposalStatus, resolvedAt *time.Time) error
	// AddObjection appends an objection. One per (proposal, team);
	// duplicates fail with ErrConflict.
	AddObjection(ctx context.Context, proposalID uuid.UUID, objection Objection) error
	// ListObjections returns a proposal's objections, oldest first.
	ListObjections(ctx context.Context, proposalID uuid.UUID) ([]Objection, error)
}

// Proposal is a pending breaking change awaiting consumer
// acknowledgment.
type Proposal struct {
	ID                 uuid.UUID            `db:"id" json:"id"`
	AssetID            uuid.UUID            `db:"asset_id" json:"asset_id"`
	ProposedSchema     json.RawMessage      `db:"proposed_schema" json:"proposed_schema"`
	ProposedGuarantees json.RawMessage      `db:"proposed_guarantees" json:"proposed_guarantees,omitempty"`
	ChangeType         schemadiff.ChangeType `db:"change_type" json:"change_type"`
	BreakingChanges    json.RawMessage      `db:"breaking_changes" json:"breaking_changes"`
	AffectedTeams      json.RawMessage      `db:"affected_teams" json:"affected_teams"`
	AffectedAssets     json.RawMessage      `db:"affected_assets" json:"affected_assets"`
	Status             ProposalStatus       `db:"status" json:"status"`
	ProposedBy         uuid.UUID            `db:"proposed_by" json:"proposed_by"`
	ProposedByUserID   *uuid.UUID           `db:"proposed_by_user_id" json:"proposed_by_user_id,omitempty"`
	ResolvedAt         *time.Time           `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt          time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time            `db:"updated_at" json:"updated_at"`
}

// Objection is a downstream team's veto reason attached to a proposal.
type Objection struct {
	ID         uuid.UUID `db:"id" json:"id"`
	ProposalID uuid.UUID `db:"proposal_id" json:"proposal_id"`
	TeamID     uuid.UUID `db:"team_id" json:"team_id"`
	Reason     string    `db:"reason" json:"reason"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ListProposalsOptions filters proposal listings.
type ListProposalsOptions struct {
	AssetID    *uuid.UUID
	Status     *ProposalStatus
	ProposedBy *uuid.UUID
	Limit      int
	Offset     int
}

// AffectedTeam is one entry of a proposal's precomputed affected_teams
// hint.
type AffectedTeam struct {
	TeamID uuid.UUID `json:"team_id"`
	Name   string    `json:"name"`
}

// AffectedAsset is one entry of a proposal's precomputed
// affected_assets hint.
type AffectedAsset struct {
	AssetID uuid.UUID `json:"asset_id"`
	FQN     string    `json:"fqn"`
	Depth   int       `json:"depth"`
}
