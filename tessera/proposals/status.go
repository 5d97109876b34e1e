// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package proposals

import (
	"context"

	"github.com/google/uuid"

	"tessera.io/tessera/tessera/registry"
)

// ConsumerCounts summarizes acknowledgment progress across the
// registered consumer teams.
type ConsumerCounts struct {
	Total        int `json:"total"`
	Acknowledged int `json:"acknowledged"`
	Pending      int `json:"pending"`
	Blocked      int `json:"blocked"`
}

// PendingConsumer names a registered team that has not responded yet.
type PendingConsumer struct {
	TeamID uuid.UUID `json:"team_id"`
	Name   string    `json:"name"`
}

// Status is the acknowledgment progress view of a proposal.
type Status struct {
	Proposal         *registry.Proposal        `json:"proposal"`
	Consumers        ConsumerCounts            `json:"consumers"`
	Acknowledgments  []registry.Acknowledgment `json:"acknowledgments"`
	PendingConsumers []PendingConsumer         `json:"pending_consumers"`
	Objections       []registry.Objection      `json:"objections,omitempty"`
}

// GetStatus reports who has acknowledged and who is still expected to.
// The expected set is the live consumer teams registered on the
// asset's current active contract; acknowledgments from unregistered
// teams are listed but do not count toward the totals.
func (s *Service) GetStatus(ctx context.Context, proposalID uuid.UUID) (_ *Status, err error) {
	defer mon.Task()(&ctx)(&err)
	proposal, err := s.store.Proposals().Get(ctx, proposalID)
	if err != nil {
		return nil, err
	}

	acks, err := s.store.Acknowledgments().ListByProposal(ctx, proposalID)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	objections, err := s.store.Proposals().ListObjections(ctx, proposalID)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	status := &Status{
		Proposal:        proposal,
		Acknowledgments: acks,
		Objections:      objections,
	}

	var registered []registry.RegistrationWithTeam
	current, err := s.store.Contracts().GetActive(ctx, proposal.AssetID)
	if err == nil {
		registered, err = s.store.Registrations().ListActiveWithTeams(ctx, []uuid.UUID{current.ID})
		if err != nil {
			return nil, Error.Wrap(err)
		}
	} else if !registry.ErrNotFound.Has(err) {
		return nil, Error.Wrap(err)
	}

	ackByTeam := make(map[uuid.UUID]registry.AckResponse, len(acks))
	for _, ack := range acks {
		ackByTeam[ack.ConsumerTeamID] = ack.Response
	}

	status.Consumers.Total = len(registered)
	for _, rt := range registered {
		response, ok := ackByTeam[rt.Team.ID]
		if !ok {
			status.Consumers.Pending++
			status.PendingConsumers = append(status.PendingConsumers, PendingConsumer{
				TeamID: rt.Team.ID,
				Name:   rt.Team.Name,
			})
			continue
		}
		status.Consumers.Acknowledged++
		if response == registry.AckBlocked {
			status.Consumers.Blocked++
		}
	}
	return status, nil
}
