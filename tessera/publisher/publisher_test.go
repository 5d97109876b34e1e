// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package publisher_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tessera.io/tessera/tessera/impact"
	"tessera.io/tessera/tessera/publisher"
	"tessera.io/tessera/tessera/registry"
	"tessera.io/tessera/tessera/tesseradb/tesseradbtest"
)

var (
	schemaV1 = json.RawMessage(`{
		"type": "object",
		"properties": {
			"id": {"type": "string"},
			"amount": {"type": "number"}
		},
		"required": ["id"]
	}`)
	schemaAddOptional = json.RawMessage(`{
		"type": "object",
		"properties": {
			"id": {"type": "string"},
			"amount": {"type": "number"},
			"currency": {"type": "string"}
		},
		"required": ["id"]
	}`)
	schemaDropAmount = json.RawMessage(`{
		"type": "object",
		"properties": {
			"id": {"type": "string"}
		},
		"required": ["id"]
	}`)
)

func run(t *testing.T, fn func(ctx context.Context, t *testing.T, db registry.DB, svc *publisher.Service, team *registry.Team, asset *registry.Asset)) {
	tesseradbtest.Run(t, func(ctx context.Context, t *testing.T, db registry.DB) {
		log := zaptest.NewLogger(t)
		svc := publisher.NewService(log, db, impact.NewService(log, db), nil, nil)

		team, err := db.Teams().Insert(ctx, registry.Team{ID: uuid.New(), Name: "orders-core"})
		require.NoError(t, err)
		asset, err := db.Assets().Insert(ctx, registry.Asset{
			ID: uuid.New(), FQN: "warehouse.orders", Environment: "production",
			OwnerTeamID: team.ID, ResourceType: "table",
		})
		require.NoError(t, err)

		fn(ctx, t, db, svc, team, asset)
	})
}

func TestPublishFirstContract(t *testing.T) {
	run(t, func(ctx context.Context, t *testing.T, db registry.DB, svc *publisher.Service, team *registry.Team, asset *registry.Asset) {
		result, err := svc.Publish(ctx, publisher.Request{
			AssetID: asset.ID, Schema: schemaV1, PublishedBy: team.ID,
		})
		require.NoError(t, err)
		require.Equal(t, publisher.ActionPublished, result.Action)
		require.Equal(t, "1.0.0", result.Contract.Version)
		require.Equal(t, registry.ContractActive, result.Contract.Status)

		events, err := db.AuditEvents().ListByEntity(ctx, "contract", result.Contract.ID, 10)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "contract.published", events[0].Action)
	})
}

func TestPublishIdenticalSchemaSkips(t *testing.T) {
	run(t, func(ctx context.Context, t *testing.T, db registry.DB, svc *publisher.Service, team *registry.Team, asset *registry.Asset) {
		first, err := svc.Publish(ctx, publisher.Request{
			AssetID: asset.ID, Schema: schemaV1, PublishedBy: team.ID,
		})
		require.NoError(t, err)

		again, err := svc.Publish(ctx, publisher.Request{
			AssetID: asset.ID, Schema: schemaV1, PublishedBy: team.ID,
		})
		require.NoError(t, err)
		require.Equal(t, publisher.ActionSkipped, again.Action)
		require.Equal(t, first.Contract.ID, again.Contract.ID)
	})
}

func TestPublishCompatibleBumpsMinorAndDeprecates(t *testing.T) {
	run(t, func(ctx context.Context, t *testing.T, db registry.DB, svc *publisher.Service, team *registry.Team, asset *registry.Asset) {
		first, err := svc.Publish(ctx, publisher.Request{
			AssetID: asset.ID, Schema: schemaV1, PublishedBy: team.ID,
		})
		require.NoError(t, err)

		next, err := svc.Publish(ctx, publisher.Request{
			AssetID: asset.ID, Schema: schemaAddOptional, PublishedBy: team.ID,
		})
		require.NoError(t, err)
		require.Equal(t, publisher.ActionPublished, next.Action)
		require.Equal(t, "1.1.0", next.Contract.Version)
		require.NotNil(t, next.DeprecatedContractID)
		require.Equal(t, first.Contract.ID, *next.DeprecatedContractID)

		old, err := db.Contracts().Get(ctx, first.Contract.ID)
		require.NoError(t, err)
		assert.Equal(t, registry.ContractDeprecated, old.Status)
	})
}

func TestPublishBreakingCreatesProposal(t *testing.T) {
	run(t, func(ctx context.Context, t *testing.T, db registry.DB, svc *publisher.Service, team *registry.Team, asset *registry.Asset) {
		_, err := svc.Publish(ctx, publisher.Request{
			AssetID: asset.ID, Schema: schemaV1, PublishedBy: team.ID,
		})
		require.NoError(t, err)

		result, err := svc.Publish(ctx, publisher.Request{
			AssetID: asset.ID, Schema: schemaDropAmount, PublishedBy: team.ID,
		})
		require.NoError(t, err)
		require.Equal(t, publisher.ActionProposalCreated, result.Action)
		require.NotNil(t, result.Proposal)
		require.Equal(t, registry.ProposalPending, result.Proposal.Status)
		require.NotEmpty(t, result.BreakingChanges)

		// The active contract is untouched.
		active, err := db.Contracts().GetActive(ctx, asset.ID)
		require.NoError(t, err)
		assert.Equal(t, "1.0.0", active.Version)

		// A second publish hits the pending proposal.
		_, err = svc.Publish(ctx, publisher.Request{
			AssetID: asset.ID, Schema: schemaAddOptional, PublishedBy: team.ID,
		})
		require.True(t, publisher.ErrPendingProposal.Has(err))
	})
}

func TestPublishForceOverridesBreaking(t *testing.T) {
	run(t, func(ctx context.Context, t *testing.T, db registry.DB, svc *publisher.Service, team *registry.Team, asset *registry.Asset) {
		_, err := svc.Publish(ctx, publisher.Request{
			AssetID: asset.ID, Schema: schemaV1, PublishedBy: team.ID,
		})
		require.NoError(t, err)

		result, err := svc.Publish(ctx, publisher.Request{
			AssetID: asset.ID, Schema: schemaDropAmount, PublishedBy: team.ID, Force: true,
		})
		require.NoError(t, err)
		require.Equal(t, publisher.ActionForcePublished, result.Action)
		require.Equal(t, "2.0.0", result.Contract.Version)
		require.NotEmpty(t, result.Warning)

		events, err := db.AuditEvents().ListByEntity(ctx, "contract", result.Contract.ID, 10)
		require.NoError(t, err)
		actions := make([]string, 0, len(events))
		for _, e := range events {
			actions = append(actions, e.Action)
		}
		assert.Contains(t, actions, "contract.force_published")
	})
}

func TestPublishPrereleaseBreaksFreely(t *testing.T) {
	run(t, func(ctx context.Context, t *testing.T, db registry.DB, svc *publisher.Service, team *registry.Team, asset *registry.Asset) {
		_, err := svc.Publish(ctx, publisher.Request{
			AssetID: asset.ID, Schema: schemaV1, Version: "2.0.0-beta.1", PublishedBy: team.ID,
		})
		require.NoError(t, err)

		// Breaking against a prerelease needs neither force nor proposal.
		result, err := svc.Publish(ctx, publisher.Request{
			AssetID: asset.ID, Schema: schemaDropAmount, Version: "2.0.0-beta.2", PublishedBy: team.ID,
		})
		require.NoError(t, err)
		require.Equal(t, publisher.ActionPublished, result.Action)
		require.Equal(t, "2.0.0-beta.2", result.Contract.Version)

		// Graduating to the release version publishes without a proposal.
		final, err := svc.Publish(ctx, publisher.Request{
			AssetID: asset.ID, Schema: schemaDropAmount, Version: "2.0.0", PublishedBy: team.ID,
		})
		require.NoError(t, err)
		require.Equal(t, publisher.ActionPublished, final.Action)
	})
}

func TestPublishVersionReuseConflicts(t *testing.T) {
	run(t, func(ctx context.Context, t *testing.T, db registry.DB, svc *publisher.Service, team *registry.Team, asset *registry.Asset) {
		_, err := svc.Publish(ctx, publisher.Request{
			AssetID: asset.ID, Schema: schemaV1, Version: "1.0.0", PublishedBy: team.ID,
		})
		require.NoError(t, err)

		_, err = svc.Publish(ctx, publisher.Request{
			AssetID: asset.ID, Schema: schemaAddOptional, Version: "1.0.0", PublishedBy: team.ID,
		})
		require.Error(t, err)
		require.True(t, registry.ErrConflict.Has(err))
	})
}

func TestPublishBulkDryRunWritesNothing(t *testing.T) {
	run(t, func(ctx context.Context, t *testing.T, db registry.DB, svc *publisher.Service, team *registry.Team, asset *registry.Asset) {
		_, err := svc.Publish(ctx, publisher.Request{
			AssetID: asset.ID, Schema: schemaV1, PublishedBy: team.ID,
		})
		require.NoError(t, err)

		result, err := svc.PublishBulk(ctx, publisher.BulkRequest{
			PublishedBy: team.ID,
			DryRun:      true,
			Items: []publisher.BulkItem{
				{FQN: "warehouse.orders", Schema: schemaDropAmount},
				{FQN: "warehouse.orders_v9", Schema: schemaV1},
			},
		})
		require.NoError(t, err)
		require.True(t, result.Preview)
		require.Equal(t, 2, result.Total)
		require.Equal(t, publisher.BulkBreaking, result.Results[0].Status)
		require.Equal(t, publisher.BulkFailed, result.Results[1].Status)

		// The breaking item did not create a proposal.
		_, err = db.Proposals().GetPendingByAsset(ctx, asset.ID)
		require.True(t, registry.ErrNotFound.Has(err))
	})
}

func TestPublishBulkMixedOutcomes(t *testing.T) {
	run(t, func(ctx context.Context, t *testing.T, db registry.DB, svc *publisher.Service, team *registry.Team, asset *registry.Asset) {
		second, err := db.Assets().Insert(ctx, registry.Asset{
			ID: uuid.New(), FQN: "warehouse.customers", Environment: "production",
			OwnerTeamID: team.ID, ResourceType: "table",
		})
		require.NoError(t, err)
		_, err = svc.Publish(ctx, publisher.Request{
			AssetID: asset.ID, Schema: schemaV1, PublishedBy: team.ID,
		})
		require.NoError(t, err)

		result, err := svc.PublishBulk(ctx, publisher.BulkRequest{
			PublishedBy:                team.ID,
			CreateProposalsForBreaking: true,
			Items: []publisher.BulkItem{
				{FQN: asset.FQN, Schema: schemaDropAmount},     // breaking -> proposal
				{FQN: second.FQN, Schema: schemaV1},            // first publish
				{FQN: "warehouse.missing", Schema: schemaV1},   // unknown asset
				{FQN: asset.FQN, Schema: json.RawMessage(`[]`)}, // invalid schema
			},
		})
		require.NoError(t, err)
		require.Equal(t, 1, result.ProposalsCreated)
		require.Equal(t, 1, result.Published)
		require.Equal(t, 2, result.Failed)

		// The failed items did not poison the committed ones.
		_, err = db.Contracts().GetActive(ctx, second.ID)
		require.NoError(t, err)
		_, err = db.Proposals().GetPendingByAsset(ctx, asset.ID)
		require.NoError(t, err)
	})
}

func TestPublishBulkBreakingWithoutProposalsFails(t *testing.T) {
	run(t, func(ctx context.Context, t *testing.T, db registry.DB, svc *publisher.Service, team *registry.Team, asset *registry.Asset) {
		_, err := svc.Publish(ctx, publisher.Request{
			AssetID: asset.ID, Schema: schemaV1, PublishedBy: team.ID,
		})
		require.NoError(t, err)

		result, err := svc.PublishBulk(ctx, publisher.BulkRequest{
			PublishedBy: team.ID,
			Items: []publisher.BulkItem{
				{FQN: asset.FQN, Schema: schemaDropAmount},
			},
		})
		require.NoError(t, err)
		require.Equal(t, 1, result.Failed)
		require.Contains(t, result.Results[0].Error, "validation:")

		_, err = db.Proposals().GetPendingByAsset(ctx, asset.ID)
		require.True(t, registry.ErrNotFound.Has(err))
	})
}
