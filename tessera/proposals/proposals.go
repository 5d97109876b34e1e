// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

// Package proposals implements the breaking-change proposal workflow:
// acknowledgment collection, auto-approval, rejection on block,
// force-approval, withdrawal, and publish-from-approved.
package proposals

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"tessera.io/tessera/tessera/registry"
	"tessera.io/tessera/tessera/schemadiff"
	"tessera.io/tessera/tessera/versioning"
	"tessera.io/tessera/tessera/webhooks"
)

var mon = monkit.Package()

var (
	// Error is the default error class for the proposals package.
	Error = errs.Class("proposals")
	// ErrNotPending is returned when a transition needs a pending
	// proposal and the proposal has already been resolved.
	ErrNotPending = errs.Class("proposal is not pending")
	// ErrNotApproved is returned when publish-from-proposal is called
	// on a proposal that is not approved.
	ErrNotApproved = errs.Class("proposal is not approved")
)

// Service runs proposal state transitions.
//
// architecture: Service
type Service struct {
	log    *zap.Logger
	store  registry.DB
	notify *webhooks.Service
	nowFn  func() time.Time
}

// NewService creates a proposals service.
func NewService(log *zap.Logger, store registry.DB, notify *webhooks.Service) *Service {
	return &Service{log: log, store: store, notify: notify, nowFn: time.Now}
}

// Get returns a proposal.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (_ *registry.Proposal, err error) {
	defer mon.Task()(&ctx)(&err)
	return s.store.Proposals().Get(ctx, id)
}

// List returns proposals matching the filter.
func (s *Service) List(ctx context.Context, opts registry.ListProposalsOptions) (_ []registry.Proposal, err error) {
	defer mon.Task()(&ctx)(&err)
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	return s.store.Proposals().List(ctx, opts)
}

// AckRequest is one acknowledgment submission.
type AckRequest struct {
	ConsumerTeamID    uuid.UUID            `json:"consumer_team_id"`
	Response          registry.AckResponse `json:"response"`
	MigrationDeadline *time.Time           `json:"migration_deadline,omitempty"`
	Notes             string               `json:"notes,omitempty"`
	ActorID           *uuid.UUID           `json:"-"`
}

// AckResult reports an acknowledgment and the proposal state it left
// behind.
type AckResult struct {
	Acknowledgment *registry.Acknowledgment `json:"acknowledgment"`
	ProposalStatus registry.ProposalStatus  `json:"proposal_status"`
	Completed      bool                     `json:"completed"`
}

// Acknowledge records a consumer team's response. A blocked response
// rejects the proposal immediately; otherwise, once every registered
// consumer team has acknowledged, the proposal auto-approves inside
// the same transaction.
func (s *Service) Acknowledge(ctx context.Context, proposalID uuid.UUID, req AckRequest) (result *AckResult, err error) {
	defer mon.Task()(&ctx)(&err)
	if !registry.ValidAckResponse(req.Response) {
		return nil, registry.ErrValidation.New("unknown acknowledgment response %q", req.Response)
	}

	var notify []func()
	err = registry.WithTx(ctx, s.store, func(tx registry.DBTx) error {
		proposal, err := tx.Proposals().GetForUpdate(ctx, proposalID)
		if err != nil {
			return err
		}
		if proposal.Status != registry.ProposalPending {
			return ErrNotPending.New("proposal is %s", proposal.Status)
		}
		if _, err := tx.Teams().Get(ctx, req.ConsumerTeamID); err != nil {
			return err
		}
		if _, err := tx.Acknowledgments().GetByProposalAndTeam(ctx, proposalID, req.ConsumerTeamID); err == nil {
			return registry.ErrConflict.New("team %s already acknowledged this proposal", req.ConsumerTeamID)
		} else if !registry.ErrNotFound.Has(err) {
			return Error.Wrap(err)
		}

		ack, err := tx.Acknowledgments().Insert(ctx, registry.Acknowledgment{
			ID:                uuid.New(),
			ProposalID:        proposalID,
			ConsumerTeamID:    req.ConsumerTeamID,
			Response:          req.Response,
			MigrationDeadline: req.MigrationDeadline,
			Notes:             req.Notes,
		})
		if err != nil {
			return err
		}
		if err := s.audit(ctx, tx, proposalID, "proposal.acknowledged", req.ActorID, map[string]interface{}{
			"consumer_team_id": req.ConsumerTeamID, "response": req.Response,
		}); err != nil {
			return err
		}
		notify = append(notify, func() { s.notify.ProposalAcknowledged(proposal, ack) })

		result = &AckResult{Acknowledgment: ack, ProposalStatus: registry.ProposalPending}

		if req.Response == registry.AckBlocked {
			if err := s.resolve(ctx, tx, proposal, registry.ProposalRejected, "proposal.rejected", req.ActorID); err != nil {
				return err
			}
			result.ProposalStatus = registry.ProposalRejected
			notify = append(notify, func() { s.notify.ProposalStatusChanged(proposal, webhooks.EventProposalRejected) })
			return nil
		}

		complete, err := s.isComplete(ctx, tx, proposal)
		if err != nil {
			return err
		}
		if complete {
			if err := s.resolve(ctx, tx, proposal, registry.ProposalApproved, "proposal.approved", req.ActorID); err != nil {
				return err
			}
			result.ProposalStatus = registry.ProposalApproved
			result.Completed = true
			notify = append(notify, func() { s.notify.ProposalStatusChanged(proposal, webhooks.EventProposalApproved) })
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, fn := range notify {
		fn()
	}
	return result, nil
}

// isComplete reports whether every live consumer team registered on
// the asset's current active contract appears among the proposal's
// acknowledgments. With no live registrations the proposal is
// trivially complete.
func (s *Service) isComplete(ctx context.Context, tx registry.DB, proposal *registry.Proposal) (bool, error) {
	current, err := tx.Contracts().GetActive(ctx, proposal.AssetID)
	if err != nil {
		if registry.ErrNotFound.Has(err) {
			return true, nil
		}
		return false, Error.Wrap(err)
	}
	registered, err := tx.Registrations().ListActiveWithTeams(ctx, []uuid.UUID{current.ID})
	if err != nil {
		return false, Error.Wrap(err)
	}
	if len(registered) == 0 {
		return true, nil
	}
	acks, err := tx.Acknowledgments().ListByProposal(ctx, proposal.ID)
	if err != nil {
		return false, Error.Wrap(err)
	}
	acknowledged := make(map[uuid.UUID]bool, len(acks))
	for _, ack := range acks {
		acknowledged[ack.ConsumerTeamID] = true
	}
	for _, rt := range registered {
		if !acknowledged[rt.Team.ID] {
			return false, nil
		}
	}
	return true, nil
}

func (s *Service) resolve(ctx context.Context, tx registry.DB, proposal *registry.Proposal, status registry.ProposalStatus, action string, actorID *uuid.UUID) error {
	now := s.nowFn().UTC()
	if err := tx.Proposals().SetStatus(ctx, proposal.ID, status, &now); err != nil {
		return err
	}
	proposal.Status = status
	proposal.ResolvedAt = &now
	return s.audit(ctx, tx, proposal.ID, action, actorID, nil)
}

// Object records a downstream team's veto reason. The proposal row is
// locked so concurrent objections cannot clobber each other.
func (s *Service) Object(ctx context.Context, proposalID, teamID uuid.UUID, reason string, actorID *uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)
	return registry.WithTx(ctx, s.store, func(tx registry.DBTx) error {
		proposal, err := tx.Proposals().GetForUpdate(ctx, proposalID)
		if err != nil {
			return err
		}
		if proposal.Status != registry.ProposalPending {
			return ErrNotPending.New("proposal is %s", proposal.Status)
		}
		if _, err := tx.Teams().Get(ctx, teamID); err != nil {
			return err
		}
		if err := tx.Proposals().AddObjection(ctx, proposalID, registry.Objection{
			ID:         uuid.New(),
			ProposalID: proposalID,
			TeamID:     teamID,
			Reason:     reason,
		}); err != nil {
			return err
		}
		return s.audit(ctx, tx, proposalID, "proposal.objection_added", actorID, map[string]interface{}{
			"team_id": teamID,
		})
	})
}

// Withdraw moves a pending proposal to withdrawn.
func (s *Service) Withdraw(ctx context.Context, proposalID uuid.UUID, actorID *uuid.UUID) (proposal *registry.Proposal, err error) {
	defer mon.Task()(&ctx)(&err)
	proposal, err = s.transition(ctx, proposalID, registry.ProposalWithdrawn, "proposal.withdrawn", actorID)
	if err != nil {
		return nil, err
	}
	s.notify.ProposalStatusChanged(proposal, webhooks.EventProposalWithdrawn)
	return proposal, nil
}

// Force approves a pending proposal without waiting for
// acknowledgments. Callers need admin authority; the HTTP layer
// enforces it.
func (s *Service) Force(ctx context.Context, proposalID uuid.UUID, actorID *uuid.UUID) (proposal *registry.Proposal, err error) {
	defer mon.Task()(&ctx)(&err)
	proposal, err = s.transition(ctx, proposalID, registry.ProposalApproved, "proposal.force_approved", actorID)
	if err != nil {
		return nil, err
	}
	s.notify.ProposalStatusChanged(proposal, webhooks.EventProposalForceApproved)
	return proposal, nil
}

func (s *Service) transition(ctx context.Context, proposalID uuid.UUID, status registry.ProposalStatus, action string, actorID *uuid.UUID) (proposal *registry.Proposal, err error) {
	err = registry.WithTx(ctx, s.store, func(tx registry.DBTx) error {
		proposal, err = tx.Proposals().GetForUpdate(ctx, proposalID)
		if err != nil {
			return err
		}
		if proposal.Status != registry.ProposalPending {
			return ErrNotPending.New("proposal is %s", proposal.Status)
		}
		return s.resolve(ctx, tx, proposal, status, action, actorID)
	})
	if err != nil {
		return nil, err
	}
	return proposal, nil
}

// PublishResult reports a publish-from-proposal.
type PublishResult struct {
	Action               string             `json:"action"`
	Contract             *registry.Contract `json:"contract"`
	DeprecatedContractID *uuid.UUID         `json:"deprecated_contract_id,omitempty"`
}

// PublishFromApproved publishes an approved proposal's schema as the
// asset's new active contract. The proposal row lock and the hard
// (asset_id, version) constraint prevent a double publish; the
// proposal stays approved.
func (s *Service) PublishFromApproved(ctx context.Context, proposalID uuid.UUID, version string, publishedBy uuid.UUID, actorID *uuid.UUID) (result *PublishResult, err error) {
	defer mon.Task()(&ctx)(&err)
	if _, err := versioning.Parse(version); err != nil {
		return nil, registry.ErrValidation.Wrap(err)
	}

	var notify func()
	err = registry.WithTx(ctx, s.store, func(tx registry.DBTx) error {
		proposal, err := tx.Proposals().GetForUpdate(ctx, proposalID)
		if err != nil {
			return err
		}
		if proposal.Status != registry.ProposalApproved {
			return ErrNotApproved.New("proposal is %s", proposal.Status)
		}
		asset, err := tx.Assets().Get(ctx, proposal.AssetID)
		if err != nil {
			return err
		}

		current, err := tx.Contracts().GetActiveForUpdate(ctx, asset.ID)
		if err != nil && !registry.ErrNotFound.Has(err) {
			return Error.Wrap(err)
		}

		guarantees := proposal.ProposedGuarantees
		mode := schemadiff.Backward
		var deprecated *registry.Contract
		if current != nil {
			if len(guarantees) == 0 {
				guarantees = current.Guarantees
			}
			mode = current.CompatibilityMode
			if err := tx.Contracts().SetStatus(ctx, current.ID, registry.ContractDeprecated); err != nil {
				return err
			}
			if err := s.audit(ctx, tx, current.ID, "contract.deprecated", actorID, map[string]interface{}{
				"superseded_by_version": version,
			}); err != nil {
				return err
			}
			deprecated = current
		}

		contract, err := tx.Contracts().Insert(ctx, registry.Contract{
			ID:                uuid.New(),
			AssetID:           asset.ID,
			Version:           version,
			SchemaDef:         proposal.ProposedSchema,
			SchemaFormat:      registry.FormatJSONSchema,
			CompatibilityMode: mode,
			Guarantees:        guarantees,
			Status:            registry.ContractActive,
			PublishedBy:       publishedBy,
			PublishedByUserID: actorID,
		})
		if err != nil {
			return err
		}
		if err := s.audit(ctx, tx, contract.ID, "contract.published", actorID, map[string]interface{}{
			"version": version, "proposal_id": proposal.ID,
		}); err != nil {
			return err
		}

		result = &PublishResult{Action: "published", Contract: contract}
		if deprecated != nil {
			result.DeprecatedContractID = &deprecated.ID
		}
		notify = func() { s.notify.ContractPublished(asset, contract, deprecated) }
		return nil
	})
	if err != nil {
		return nil, err
	}
	if notify != nil {
		notify()
	}
	return result, nil
}

func (s *Service) audit(ctx context.Context, tx registry.DB, entityID uuid.UUID, action string, actorID *uuid.UUID, payload interface{}) error {
	var raw json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return Error.Wrap(err)
		}
		raw = encoded
	}
	entityType := "proposal"
	if action == "contract.published" || action == "contract.deprecated" {
		entityType = "contract"
	}
	return tx.AuditEvents().Insert(ctx, registry.AuditEvent{
		ID:         uuid.New(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		ActorID:    actorID,
		Payload:    raw,
		OccurredAt: s.nowFn().UTC(),
	})
}
