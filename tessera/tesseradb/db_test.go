// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package tesseradb_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"tessera.io/tessera/tessera/registry"
	"tessera.io/tessera/tessera/tesseradb/tesseradbtest"
)

func TestTeamsUniqueNameLiveOnly(t *testing.T) {
	tesseradbtest.Run(t, func(ctx context.Context, t *testing.T, db registry.DB) {
		first, err := db.Teams().Insert(ctx, registry.Team{ID: uuid.New(), Name: "analytics"})
		require.NoError(t, err)

		_, err = db.Teams().Insert(ctx, registry.Team{ID: uuid.New(), Name: "analytics"})
		require.True(t, registry.ErrConflict.Has(err))

		// A deleted team frees its name.
		require.NoError(t, db.Teams().SoftDelete(ctx, first.ID))
		_, err = db.Teams().Insert(ctx, registry.Team{ID: uuid.New(), Name: "analytics"})
		require.NoError(t, err)

		_, err = db.Teams().Get(ctx, first.ID)
		require.True(t, registry.ErrNotFound.Has(err))
		deleted, err := db.Teams().GetAny(ctx, first.ID)
		require.NoError(t, err)
		require.NotNil(t, deleted.DeletedAt)
	})
}

func TestAssetsFQNUniquePerEnvironment(t *testing.T) {
	tesseradbtest.Run(t, func(ctx context.Context, t *testing.T, db registry.DB) {
		team, err := db.Teams().Insert(ctx, registry.Team{ID: uuid.New(), Name: "core"})
		require.NoError(t, err)

		asset := registry.Asset{
			ID: uuid.New(), FQN: "warehouse.orders", Environment: "production",
			OwnerTeamID: team.ID, ResourceType: "table",
		}
		_, err = db.Assets().Insert(ctx, asset)
		require.NoError(t, err)

		dup := asset
		dup.ID = uuid.New()
		_, err = db.Assets().Insert(ctx, dup)
		require.True(t, registry.ErrConflict.Has(err))

		// Same fqn in another environment is fine.
		staging := asset
		staging.ID = uuid.New()
		staging.Environment = "staging"
		_, err = db.Assets().Insert(ctx, staging)
		require.NoError(t, err)

		got, err := db.Assets().GetByFQN(ctx, "warehouse.orders", "staging")
		require.NoError(t, err)
		require.Equal(t, staging.ID, got.ID)
	})
}

func TestContractsVersionNeverReusable(t *testing.T) {
	tesseradbtest.Run(t, func(ctx context.Context, t *testing.T, db registry.DB) {
		team, asset := seedAsset(ctx, t, db, "warehouse.orders")

		contract := registry.Contract{
			ID: uuid.New(), AssetID: asset.ID, Version: "1.0.0",
			SchemaDef:    json.RawMessage(`{"type":"object"}`),
			SchemaFormat: registry.FormatJSONSchema, CompatibilityMode: "backward",
			Status: registry.ContractActive, PublishedBy: team.ID,
		}
		_, err := db.Contracts().Insert(ctx, contract)
		require.NoError(t, err)

		require.NoError(t, db.Contracts().SetStatus(ctx, contract.ID, registry.ContractRetired))

		// Even a retired contract keeps its version reserved.
		reuse := contract
		reuse.ID = uuid.New()
		_, err = db.Contracts().Insert(ctx, reuse)
		require.True(t, registry.ErrConflict.Has(err))
	})
}

func TestContractsOneActivePerAsset(t *testing.T) {
	tesseradbtest.Run(t, func(ctx context.Context, t *testing.T, db registry.DB) {
		team, asset := seedAsset(ctx, t, db, "warehouse.orders")

		first := registry.Contract{
			ID: uuid.New(), AssetID: asset.ID, Version: "1.0.0",
			SchemaDef:    json.RawMessage(`{"type":"object"}`),
			SchemaFormat: registry.FormatJSONSchema, CompatibilityMode: "backward",
			Status: registry.ContractActive, PublishedBy: team.ID,
		}
		_, err := db.Contracts().Insert(ctx, first)
		require.NoError(t, err)

		second := first
		second.ID = uuid.New()
		second.Version = "2.0.0"
		_, err = db.Contracts().Insert(ctx, second)
		require.True(t, registry.ErrConflict.Has(err))

		// Deprecating the current one clears the way.
		require.NoError(t, db.Contracts().SetStatus(ctx, first.ID, registry.ContractDeprecated))
		_, err = db.Contracts().Insert(ctx, second)
		require.NoError(t, err)

		active, err := db.Contracts().GetActive(ctx, asset.ID)
		require.NoError(t, err)
		require.Equal(t, "2.0.0", active.Version)
	})
}

func TestProposalsOnePendingPerAsset(t *testing.T) {
	tesseradbtest.Run(t, func(ctx context.Context, t *testing.T, db registry.DB) {
		team, asset := seedAsset(ctx, t, db, "warehouse.orders")

		proposal := registry.Proposal{
			ID: uuid.New(), AssetID: asset.ID,
			ProposedSchema: json.RawMessage(`{"type":"object"}`),
			ChangeType:     "major", Status: registry.ProposalPending, ProposedBy: team.ID,
		}
		_, err := db.Proposals().Insert(ctx, proposal)
		require.NoError(t, err)

		dup := proposal
		dup.ID = uuid.New()
		_, err = db.Proposals().Insert(ctx, dup)
		require.True(t, registry.ErrConflict.Has(err))

		// A resolved proposal no longer blocks new ones.
		require.NoError(t, db.Proposals().SetStatus(ctx, proposal.ID, registry.ProposalWithdrawn, nil))
		_, err = db.Proposals().Insert(ctx, dup)
		require.NoError(t, err)
	})
}

func TestAcknowledgmentsOnePerTeam(t *testing.T) {
	tesseradbtest.Run(t, func(ctx context.Context, t *testing.T, db registry.DB) {
		team, asset := seedAsset(ctx, t, db, "warehouse.orders")
		proposal, err := db.Proposals().Insert(ctx, registry.Proposal{
			ID: uuid.New(), AssetID: asset.ID,
			ProposedSchema: json.RawMessage(`{"type":"object"}`),
			ChangeType:     "major", Status: registry.ProposalPending, ProposedBy: team.ID,
		})
		require.NoError(t, err)

		consumer, err := db.Teams().Insert(ctx, registry.Team{ID: uuid.New(), Name: "consumers"})
		require.NoError(t, err)

		_, err = db.Acknowledgments().Insert(ctx, registry.Acknowledgment{
			ID: uuid.New(), ProposalID: proposal.ID, ConsumerTeamID: consumer.ID,
			Response: registry.AckApproved,
		})
		require.NoError(t, err)

		_, err = db.Acknowledgments().Insert(ctx, registry.Acknowledgment{
			ID: uuid.New(), ProposalID: proposal.ID, ConsumerTeamID: consumer.ID,
			Response: registry.AckBlocked,
		})
		require.True(t, registry.ErrConflict.Has(err))
	})
}

func TestSavepointIsolatesFailure(t *testing.T) {
	tesseradbtest.Run(t, func(ctx context.Context, t *testing.T, db registry.DB) {
		err := registry.WithTx(ctx, db, func(tx registry.DBTx) error {
			if _, err := tx.Teams().Insert(ctx, registry.Team{ID: uuid.New(), Name: "kept"}); err != nil {
				return err
			}
			// The savepoint failure must not poison the outer tx.
			sperr := tx.Savepoint(ctx, func(db registry.DB) error {
				if _, err := db.Teams().Insert(ctx, registry.Team{ID: uuid.New(), Name: "rolled-back"}); err != nil {
					return err
				}
				_, err := db.Teams().Insert(ctx, registry.Team{ID: uuid.New(), Name: "rolled-back"})
				return err
			})
			require.True(t, registry.ErrConflict.Has(sperr))
			return nil
		})
		require.NoError(t, err)

		_, err = db.Teams().GetByName(ctx, "kept")
		require.NoError(t, err)
		_, err = db.Teams().GetByName(ctx, "rolled-back")
		require.True(t, registry.ErrNotFound.Has(err))
	})
}

func TestDependenciesUpsertAndTraversalQueries(t *testing.T) {
	tesseradbtest.Run(t, func(ctx context.Context, t *testing.T, db registry.DB) {
		_, upstream := seedAsset(ctx, t, db, "warehouse.orders")
		team, downstream := seedAsset(ctx, t, db, "marts.daily_orders")
		_ = team

		edge := registry.Dependency{
			ID: uuid.New(), DependentAssetID: downstream.ID,
			DependencyAssetID: upstream.ID, DependencyType: registry.DependencyConsumes,
		}
		created, err := db.Dependencies().Upsert(ctx, edge)
		require.NoError(t, err)

		again := edge
		again.ID = uuid.New()
		got, err := db.Dependencies().Upsert(ctx, again)
		require.NoError(t, err)
		require.Equal(t, created.ID, got.ID)

		down, err := db.Dependencies().ListDownstream(ctx, []uuid.UUID{upstream.ID})
		require.NoError(t, err)
		require.Len(t, down, 1)
		require.Equal(t, downstream.ID, down[0].Asset.ID)

		up, err := db.Dependencies().ListUpstream(ctx, downstream.ID)
		require.NoError(t, err)
		require.Len(t, up, 1)
		require.Equal(t, upstream.ID, up[0].Asset.ID)
	})
}

func TestAssetsListByDependsOnFQN(t *testing.T) {
	tesseradbtest.Run(t, func(ctx context.Context, t *testing.T, db registry.DB) {
		team, _ := seedAsset(ctx, t, db, "warehouse.orders")
		_, err := db.Assets().Insert(ctx, registry.Asset{
			ID: uuid.New(), FQN: "marts.revenue", Environment: "production",
			OwnerTeamID: team.ID, ResourceType: "table",
			Metadata: json.RawMessage(`{"depends_on":["warehouse.orders"]}`),
		})
		require.NoError(t, err)

		dependents, err := db.Assets().ListByDependsOnFQN(ctx, "warehouse.orders")
		require.NoError(t, err)
		require.Len(t, dependents, 1)
		require.Equal(t, "marts.revenue", dependents[0].FQN)

		none, err := db.Assets().ListByDependsOnFQN(ctx, "warehouse.unknown")
		require.NoError(t, err)
		require.Empty(t, none)
	})
}

func TestAPIKeysPrefixUnique(t *testing.T) {
	tesseradbtest.Run(t, func(ctx context.Context, t *testing.T, db registry.DB) {
		team, err := db.Teams().Insert(ctx, registry.Team{ID: uuid.New(), Name: "platform"})
		require.NoError(t, err)

		key := registry.APIKey{
			ID: uuid.New(), KeyHash: "hash-1", KeyPrefix: "tess_live_abcd1234",
			Name: "ci", TeamID: team.ID, Scopes: registry.Scopes{registry.ScopeRead},
		}
		created, err := db.APIKeys().Insert(ctx, key)
		require.NoError(t, err)
		require.False(t, created.CreatedAt.IsZero())

		clash := key
		clash.ID = uuid.New()
		clash.KeyHash = "hash-2"
		_, err = db.APIKeys().Insert(ctx, clash)
		require.True(t, registry.ErrConflict.Has(err))

		got, err := db.APIKeys().GetByPrefix(ctx, key.KeyPrefix)
		require.NoError(t, err)
		require.Equal(t, key.ID, got.ID)
		require.Nil(t, got.LastUsedAt)

		require.NoError(t, db.APIKeys().UpdateLastUsed(ctx, key.ID, created.CreatedAt))
		got, err = db.APIKeys().Get(ctx, key.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LastUsedAt)

		require.NoError(t, db.APIKeys().Delete(ctx, key.ID))
		require.True(t, registry.ErrNotFound.Has(db.APIKeys().Delete(ctx, key.ID)))
	})
}

func TestEmptyJSONDocumentsReadBack(t *testing.T) {
	tesseradbtest.Run(t, func(ctx context.Context, t *testing.T, db registry.DB) {
		// No metadata on the asset and no guarantees on the contract;
		// the rows must still scan.
		team, asset := seedAsset(ctx, t, db, "warehouse.orders")

		got, err := db.Assets().Get(ctx, asset.ID)
		require.NoError(t, err)
		require.Empty(t, got.Metadata)

		contract, err := db.Contracts().Insert(ctx, registry.Contract{
			ID: uuid.New(), AssetID: asset.ID, Version: "1.0.0",
			SchemaDef:    json.RawMessage(`{"type":"object"}`),
			SchemaFormat: registry.FormatJSONSchema, CompatibilityMode: "backward",
			Status: registry.ContractActive, PublishedBy: team.ID,
		})
		require.NoError(t, err)

		active, err := db.Contracts().GetActive(ctx, asset.ID)
		require.NoError(t, err)
		require.Equal(t, contract.ID, active.ID)
		require.Empty(t, active.Guarantees)

		// Join queries hand-scan the asset columns and hit the same rows.
		_, downstream := seedAsset(ctx, t, db, "marts.daily_orders")
		_, err = db.Dependencies().Insert(ctx, registry.Dependency{
			ID: uuid.New(), DependentAssetID: downstream.ID,
			DependencyAssetID: asset.ID, DependencyType: registry.DependencyConsumes,
		})
		require.NoError(t, err)
		up, err := db.Dependencies().ListUpstream(ctx, downstream.ID)
		require.NoError(t, err)
		require.Len(t, up, 1)
		require.Empty(t, up[0].Asset.Metadata)

		run, err := db.AuditRuns().Insert(ctx, registry.AuditRun{
			ID: uuid.New(), AssetID: asset.ID, ContractID: &contract.ID,
			Status: registry.AuditPassed, ChecksTotal: 3, ChecksPassed: 3,
			TriggeredBy: "ci",
		})
		require.NoError(t, err)
		runs, err := db.AuditRuns().ListByAsset(ctx, asset.ID, registry.ListAuditRunsOptions{Limit: 10})
		require.NoError(t, err)
		require.Len(t, runs, 1)
		require.Equal(t, run.ID, runs[0].ID)
		require.Empty(t, runs[0].Details)
	})
}

func seedAsset(ctx context.Context, t *testing.T, db registry.DB, fqn string) (*registry.Team, *registry.Asset) {
	t.Helper()
	team, err := db.Teams().Insert(ctx, registry.Team{ID: uuid.New(), Name: "owner-" + fqn})
	require.NoError(t, err)
	asset, err := db.Assets().Insert(ctx, registry.Asset{
		ID: uuid.New(), FQN: fqn, Environment: "production",
		OwnerTeamID: team.ID, ResourceType: "table",
	})
	require.NoError(t, err)
	return team, asset
}
