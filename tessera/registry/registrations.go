// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package registry

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RegistrationStatus is a consumer registration lifecycle state.
type RegistrationStatus string

const (
	RegistrationActive    RegistrationStatus = "active"
	RegistrationMigrating RegistrationStatus = "migrating"
	RegistrationInactive  RegistrationStatus = "inactive"
)

// Registrations exposes consumer-registration storage.
//
// architecture: Database
type Registrations interface {
	// Insert creates a registration. Fails with ErrConflict when a
	// live registration for the same (contract, consumer team) exists.
	Insert(ctx context.Context, reg Registration) (*Registration, error)
	// Get returns a live registration by id.
	Get(ctx context.Context, id uuid.UUID) (*Registration, error)
	// ListByContract returns live registrations on a contract.
	ListByContract(ctx context.Context, contractID uuid.UUID) ([]Registration, error)
	// ListActiveWithTeams returns live, active-status registrations on
	// any of the contracts, joined against live consumer teams.
	ListActiveWithTeams(ctx context.Context, contractIDs []uuid.UUID) ([]RegistrationWithTeam, error)
	// Update applies the non-nil fields of the request.
	Update(ctx context.Context, id uuid.UUID, req UpdateRegistrationRequest) (*Registration, error)
	// SoftDelete marks a registration deleted; deleted rows are
	// ignored by completion checks and auth.
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

// Registration is a consumer team's declared dependence on a contract.
type Registration struct {
	ID             uuid.UUID          `db:"id" json:"id"`
	ContractID     uuid.UUID          `db:"contract_id" json:"contract_id"`
	ConsumerTeamID uuid.UUID          `db:"consumer_team_id" json:"consumer_team_id"`
	PinnedVersion  *string            `db:"pinned_version" json:"pinned_version,omitempty"`
	Status         RegistrationStatus `db:"status" json:"status"`
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `db:"updated_at" json:"updated_at"`
	DeletedAt      *time.Time         `db:"deleted_at" json:"deleted_at,omitempty"`
}

// RegistrationWithTeam joins a registration with its live consumer team.
type RegistrationWithTeam struct {
	Registration Registration
	Team         Team
}

// UpdateRegistrationRequest carries the mutable registration fields.
type UpdateRegistrationRequest struct {
	PinnedVersion **string            `json:"-"`
	Status        *RegistrationStatus `json:"status,omitempty"`
}
