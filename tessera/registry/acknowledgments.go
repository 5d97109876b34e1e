// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package registry

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AckResponse is a consumer's answer to a proposal.
type AckResponse string

const (
	AckApproved  AckResponse = "approved"
	AckBlocked   AckResponse = "blocked"
	AckMigrating AckResponse = "migrating"
)

// ValidAckResponse reports whether r is a known acknowledgment response.
func ValidAckResponse(r AckResponse) bool {
	switch r {
	case AckApproved, AckBlocked, AckMigrating:
		return true
	}
	return false
}

// Acknowledgments exposes acknowledgment storage.
//
// architecture: Database
type Acknowledgments interface {
	// Insert records an acknowledgment. One per (proposal, team);
	// duplicates fail with ErrConflict.
	Insert(ctx context.Context, ack Acknowledgment) (*Acknowledgment, error)
	// GetByProposalAndTeam returns a team's acknowledgment on a
	// proposal, or ErrNotFound.
	GetByProposalAndTeam(ctx context.Context, proposalID, teamID uuid.UUID) (*Acknowledgment, error)
	// ListByProposal returns a proposal's acknowledgments, oldest
	// first.
	ListByProposal(ctx context.Context, proposalID uuid.UUID) ([]Acknowledgment, error)
}

// Acknowledgment is a consumer team's response to a proposal.
type Acknowledgment struct {
	ID                uuid.UUID   `db:"id" json:"id"`
	ProposalID        uuid.UUID   `db:"proposal_id" json:"proposal_id"`
	ConsumerTeamID    uuid.UUID   `db:"consumer_team_id" json:"consumer_team_id"`
	Response          AckResponse `db:"response" json:"response"`
	MigrationDeadline *time.Time  `db:"migration_deadline" json:"migration_deadline,omitempty"`
	Notes             string      `db:"notes" json:"notes,omitempty"`
	CreatedAt         time.Time   `db:"created_at" json:"created_at"`
}
