// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package webhooks

import (
	"encoding/json"

	"tessera.io/tessera/tessera/registry"
)

// ContractPublished schedules a contract.published notification.
func (s *Service) ContractPublished(asset *registry.Asset, contract *registry.Contract, deprecated *registry.Contract) {
	if !s.Enabled() {
		return
	}
	payload := map[string]interface{}{
		"asset_id":    asset.ID,
		"fqn":         asset.FQN,
		"environment": asset.Environment,
		"contract_id": contract.ID,
		"version":     contract.Version,
		"status":      contract.Status,
	}
	if deprecated != nil {
		payload["deprecated_contract_id"] = deprecated.ID
		payload["deprecated_version"] = deprecated.Version
	}
	s.Send(EventContractPublished, payload)
}

// ProposalCreated schedules a proposal.created notification.
func (s *Service) ProposalCreated(asset *registry.Asset, proposal *registry.Proposal) {
	if !s.Enabled() {
		return
	}
	var breaking []json.RawMessage
	_ = json.Unmarshal(proposal.BreakingChanges, &breaking)
	s.Send(EventProposalCreated, map[string]interface{}{
		"proposal_id":      proposal.ID,
		"asset_id":         asset.ID,
		"fqn":              asset.FQN,
		"change_type":      proposal.ChangeType,
		"breaking_changes": breaking,
		"proposed_by":      proposal.ProposedBy,
	})
}

// ProposalAcknowledged schedules a proposal.acknowledged notification.
func (s *Service) ProposalAcknowledged(proposal *registry.Proposal, ack *registry.Acknowledgment) {
	if !s.Enabled() {
		return
	}
	s.Send(EventProposalAcknowledged, map[string]interface{}{
		"proposal_id":      proposal.ID,
		"asset_id":         proposal.AssetID,
		"consumer_team_id": ack.ConsumerTeamID,
		"response":         ack.Response,
	})
}

// ProposalStatusChanged schedules the notification matching a proposal
// transition.
func (s *Service) ProposalStatusChanged(proposal *registry.Proposal, event string) {
	if !s.Enabled() {
		return
	}
	s.Send(event, map[string]interface{}{
		"proposal_id": proposal.ID,
		"asset_id":    proposal.AssetID,
		"status":      proposal.Status,
	})
}
