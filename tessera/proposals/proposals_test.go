// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package proposals_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tessera.io/tessera/tessera/proposals"
	"tessera.io/tessera/tessera/registry"
	"tessera.io/tessera/tessera/tesseradb/tesseradbtest"
)

type fixture struct {
	svc      *proposals.Service
	producer *registry.Team
	asset    *registry.Asset
	contract *registry.Contract
	proposal *registry.Proposal
}

// seed builds an asset with an active contract, a pending proposal,
// and n consumer teams registered on the contract.
func seed(ctx context.Context, t *testing.T, db registry.DB, consumers int) (*fixture, []*registry.Team) {
	t.Helper()
	producer, err := db.Teams().Insert(ctx, registry.Team{ID: uuid.New(), Name: "producer"})
	require.NoError(t, err)
	asset, err := db.Assets().Insert(ctx, registry.Asset{
		ID: uuid.New(), FQN: "warehouse.orders", Environment: "production",
		OwnerTeamID: producer.ID, ResourceType: "table",
	})
	require.NoError(t, err)
	contract, err := db.Contracts().Insert(ctx, registry.Contract{
		ID: uuid.New(), AssetID: asset.ID, Version: "1.0.0",
		SchemaDef:    json.RawMessage(`{"type":"object"}`),
		SchemaFormat: registry.FormatJSONSchema, CompatibilityMode: "backward",
		Status: registry.ContractActive, PublishedBy: producer.ID,
	})
	require.NoError(t, err)
	proposal, err := db.Proposals().Insert(ctx, registry.Proposal{
		ID: uuid.New(), AssetID: asset.ID,
		ProposedSchema: json.RawMessage(`{"type":"object","properties":{"id":{"type":"string"}}}`),
		ChangeType:     "major", Status: registry.ProposalPending, ProposedBy: producer.ID,
	})
	require.NoError(t, err)

	teams := make([]*registry.Team, 0, consumers)
	for i := 0; i < consumers; i++ {
		team, err := db.Teams().Insert(ctx, registry.Team{
			ID: uuid.New(), Name: "consumer-" + string(rune('a'+i)),
		})
		require.NoError(t, err)
		_, err = db.Registrations().Insert(ctx, registry.Registration{
			ID: uuid.New(), ContractID: contract.ID, ConsumerTeamID: team.ID,
			Status: registry.RegistrationActive,
		})
		require.NoError(t, err)
		teams = append(teams, team)
	}

	return &fixture{
		svc:      proposals.NewService(zaptest.NewLogger(t), db, nil),
		producer: producer,
		asset:    asset,
		contract: contract,
		proposal: proposal,
	}, teams
}

func TestAcknowledgeApprovesWhenAllConsumersRespond(t *testing.T) {
	tesseradbtest.Run(t, func(ctx context.Context, t *testing.T, db registry.DB) {
		f, consumers := seed(ctx, t, db, 2)

		first, err := f.svc.Acknowledge(ctx, f.proposal.ID, proposals.AckRequest{
			ConsumerTeamID: consumers[0].ID, Response: registry.AckApproved,
		})
		require.NoError(t, err)
		require.Equal(t, registry.ProposalPending, first.ProposalStatus)
		require.False(t, first.Completed)

		second, err := f.svc.Acknowledge(ctx, f.proposal.ID, proposals.AckRequest{
			ConsumerTeamID: consumers[1].ID, Response: registry.AckMigrating,
		})
		require.NoError(t, err)
		require.Equal(t, registry.ProposalApproved, second.ProposalStatus)
		require.True(t, second.Completed)

		stored, err := db.Proposals().Get(ctx, f.proposal.ID)
		require.NoError(t, err)
		require.Equal(t, registry.ProposalApproved, stored.Status)
		require.NotNil(t, stored.ResolvedAt)
	})
}

func TestAcknowledgeBlockedRejectsImmediately(t *testing.T) {
	tesseradbtest.Run(t, func(ctx context.Context, t *testing.T, db registry.DB) {
		f, consumers := seed(ctx, t, db, 2)

		result, err := f.svc.Acknowledge(ctx, f.proposal.ID, proposals.AckRequest{
			ConsumerTeamID: consumers[0].ID, Response: registry.AckBlocked,
			Notes: "migration not scheduled",
		})
		require.NoError(t, err)
		require.Equal(t, registry.ProposalRejected, result.ProposalStatus)

		stored, err := db.Proposals().Get(ctx, f.proposal.ID)
		require.NoError(t, err)
		require.Equal(t, registry.ProposalRejected, stored.Status)
		require.NotNil(t, stored.ResolvedAt)

		// The second consumer can no longer respond.
		_, err = f.svc.Acknowledge(ctx, f.proposal.ID, proposals.AckRequest{
			ConsumerTeamID: consumers[1].ID, Response: registry.AckApproved,
		})
		require.True(t, proposals.ErrNotPending.Has(err))
	})
}

func TestAcknowledgeDuplicateConflicts(t *testing.T) {
	tesseradbtest.Run(t, func(ctx context.Context, t *testing.T, db registry.DB) {
		f, consumers := seed(ctx, t, db, 2)

		_, err := f.svc.Acknowledge(ctx, f.proposal.ID, proposals.AckRequest{
			ConsumerTeamID: consumers[0].ID, Response: registry.AckApproved,
		})
		require.NoError(t, err)

		_, err = f.svc.Acknowledge(ctx, f.proposal.ID, proposals.AckRequest{
			ConsumerTeamID: consumers[0].ID, Response: registry.AckMigrating,
		})
		require.True(t, registry.ErrConflict.Has(err))
	})
}

func TestAcknowledgeUnknownResponseRejected(t *testing.T) {
	tesseradbtest.Run(t, func(ctx context.Context, t *testing.T, db registry.DB) {
		f, consumers := seed(ctx, t, db, 1)
		_, err := f.svc.Acknowledge(ctx, f.proposal.ID, proposals.AckRequest{
			ConsumerTeamID: consumers[0].ID, Response: "maybe",
		})
		require.True(t, registry.ErrValidation.Has(err))
	})
}

func TestAcknowledgeWithNoConsumersApprovesTrivially(t *testing.T) {
	tesseradbtest.Run(t, func(ctx context.Context, t *testing.T, db registry.DB) {
		f, _ := seed(ctx, t, db, 0)
		observer, err := db.Teams().Insert(ctx, registry.Team{ID: uuid.New(), Name: "observer"})
		require.NoError(t, err)

		// An unregistered team's acknowledgment completes the proposal
		// because the registered set is empty.
		result, err := f.svc.Acknowledge(ctx, f.proposal.ID, proposals.AckRequest{
			ConsumerTeamID: observer.ID, Response: registry.AckApproved,
		})
		require.NoError(t, err)
		require.Equal(t, registry.ProposalApproved, result.ProposalStatus)
	})
}

func TestWithdrawAndForceRequirePending(t *testing.T) {
	tesseradbtest.Run(t, func(ctx context.Context, t *testing.T, db registry.DB) {
		f, _ := seed(ctx, t, db, 0)

		withdrawn, err := f.svc.Withdraw(ctx, f.proposal.ID, nil)
		require.NoError(t, err)
		require.Equal(t, registry.ProposalWithdrawn, withdrawn.Status)
		require.NotNil(t, withdrawn.ResolvedAt)

		_, err = f.svc.Force(ctx, f.proposal.ID, nil)
		require.True(t, proposals.ErrNotPending.Has(err))
	})
}

func TestForceApproves(t *testing.T) {
	tesseradbtest.Run(t, func(ctx context.Context, t *testing.T, db registry.DB) {
		f, _ := seed(ctx, t, db, 3)

		forced, err := f.svc.Force(ctx, f.proposal.ID, nil)
		require.NoError(t, err)
		require.Equal(t, registry.ProposalApproved, forced.Status)

		events, err := db.AuditEvents().ListByEntity(ctx, "proposal", f.proposal.ID, 10)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "proposal.force_approved", events[0].Action)
	})
}

func TestObjectOncePerTeam(t *testing.T) {
	tesseradbtest.Run(t, func(ctx context.Context, t *testing.T, db registry.DB) {
		f, consumers := seed(ctx, t, db, 1)

		require.NoError(t, f.svc.Object(ctx, f.proposal.ID, consumers[0].ID, "breaks nightly job", nil))
		err := f.svc.Object(ctx, f.proposal.ID, consumers[0].ID, "again", nil)
		require.True(t, registry.ErrConflict.Has(err))

		objections, err := db.Proposals().ListObjections(ctx, f.proposal.ID)
		require.NoError(t, err)
		require.Len(t, objections, 1)
		assert.Equal(t, "breaks nightly job", objections[0].Reason)
	})
}

func TestGetStatusCountsConsumers(t *testing.T) {
	tesseradbtest.Run(t, func(ctx context.Context, t *testing.T, db registry.DB) {
		f, consumers := seed(ctx, t, db, 3)

		_, err := f.svc.Acknowledge(ctx, f.proposal.ID, proposals.AckRequest{
			ConsumerTeamID: consumers[0].ID, Response: registry.AckApproved,
		})
		require.NoError(t, err)

		status, err := f.svc.GetStatus(ctx, f.proposal.ID)
		require.NoError(t, err)
		require.Equal(t, 3, status.Consumers.Total)
		require.Equal(t, 1, status.Consumers.Acknowledged)
		require.Equal(t, 2, status.Consumers.Pending)
		require.Equal(t, 0, status.Consumers.Blocked)
		require.Len(t, status.PendingConsumers, 2)
	})
}

func TestPublishFromApproved(t *testing.T) {
	tesseradbtest.Run(t, func(ctx context.Context, t *testing.T, db registry.DB) {
		f, _ := seed(ctx, t, db, 0)

		// Not yet approved.
		_, err := f.svc.PublishFromApproved(ctx, f.proposal.ID, "2.0.0", f.producer.ID, nil)
		require.True(t, proposals.ErrNotApproved.Has(err))

		_, err = f.svc.Force(ctx, f.proposal.ID, nil)
		require.NoError(t, err)

		result, err := f.svc.PublishFromApproved(ctx, f.proposal.ID, "2.0.0", f.producer.ID, nil)
		require.NoError(t, err)
		require.Equal(t, "2.0.0", result.Contract.Version)
		require.NotNil(t, result.DeprecatedContractID)
		require.Equal(t, f.contract.ID, *result.DeprecatedContractID)

		old, err := db.Contracts().Get(ctx, f.contract.ID)
		require.NoError(t, err)
		require.Equal(t, registry.ContractDeprecated, old.Status)

		// The proposal stays approved, so a double publish trips the
		// version constraint instead of racing.
		_, err = f.svc.PublishFromApproved(ctx, f.proposal.ID, "2.0.0", f.producer.ID, nil)
		require.True(t, registry.ErrConflict.Has(err))
	})
}

func TestBulkAcknowledgeContinueOnError(t *testing.T) {
	tesseradbtest.Run(t, func(ctx context.Context, t *testing.T, db registry.DB) {
		f, consumers := seed(ctx, t, db, 2)

		result, err := f.svc.BulkAcknowledge(ctx, proposals.BulkAckRequest{
			ContinueOnError: true,
			Items: []proposals.BulkAckItem{
				{ProposalID: f.proposal.ID, ConsumerTeamID: consumers[0].ID, Response: registry.AckApproved},
				{ProposalID: f.proposal.ID, ConsumerTeamID: consumers[0].ID, Response: registry.AckApproved}, // duplicate
				{ProposalID: f.proposal.ID, ConsumerTeamID: consumers[1].ID, Response: registry.AckApproved},
			},
		})
		require.NoError(t, err)
		require.Equal(t, 2, result.Succeeded)
		require.Equal(t, 1, result.Failed)
		assert.Equal(t, "approved", result.Results[2].ProposalStatus)
	})
}
