// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package ingest_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tessera.io/tessera/tessera/impact"
	"tessera.io/tessera/tessera/ingest"
	"tessera.io/tessera/tessera/registry"
	"tessera.io/tessera/tessera/tesseradb/tesseradbtest"
)

func newService(t *testing.T, db registry.DB) *ingest.Service {
	log := zaptest.NewLogger(t)
	return ingest.NewService(log, db, impact.NewService(log, db))
}

func manifestJSON(t *testing.T, raw string) ingest.DbtManifest {
	t.Helper()
	var manifest ingest.DbtManifest
	require.NoError(t, json.Unmarshal([]byte(raw), &manifest))
	return manifest
}

const ordersManifest = `{
	"nodes": {
		"model.shop.orders": {
			"name": "orders", "resource_type": "model",
			"schema": "warehouse", "description": "order facts",
			"columns": {"id": {"data_type": "text"}},
			"depends_on": {"nodes": ["model.shop.raw_orders"]}
		},
		"model.shop.raw_orders": {
			"name": "raw_orders", "resource_type": "model",
			"schema": "staging",
			"depends_on": {"nodes": []}
		},
		"test.shop.not_null_orders_id": {
			"name": "not_null_orders_id", "resource_type": "test",
			"depends_on": {"nodes": ["model.shop.orders"]}
		}
	}
}`

func TestSyncDbtCreatesAssetsAndLineage(t *testing.T) {
	tesseradbtest.Run(t, func(ctx context.Context, t *testing.T, db registry.DB) {
		team, err := db.Teams().Insert(ctx, registry.Team{ID: uuid.New(), Name: "data-platform"})
		require.NoError(t, err)
		svc := newService(t, db)

		summary, err := svc.SyncDbt(ctx, "production", manifestJSON(t, ordersManifest), team.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, summary.AssetsCreated)
		assert.Equal(t, 1, summary.DependenciesCreated)
		assert.Contains(t, summary.Skipped, "test.shop.not_null_orders_id")

		orders, err := db.Assets().GetByFQN(ctx, "warehouse.orders", "production")
		require.NoError(t, err)
		up, err := db.Dependencies().ListUpstream(ctx, orders.ID)
		require.NoError(t, err)
		require.Len(t, up, 1)
		assert.Equal(t, "staging.raw_orders", up[0].Asset.FQN)

		// Re-upload is idempotent.
		again, err := svc.SyncDbt(ctx, "production", manifestJSON(t, ordersManifest), team.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, again.AssetsCreated)
		assert.Equal(t, 2, again.AssetsExisting)
		assert.Equal(t, 0, again.DependenciesCreated)
	})
}

func TestDbtImpactResolvesRegisteredModels(t *testing.T) {
	tesseradbtest.Run(t, func(ctx context.Context, t *testing.T, db registry.DB) {
		team, err := db.Teams().Insert(ctx, registry.Team{ID: uuid.New(), Name: "data-platform"})
		require.NoError(t, err)
		svc := newService(t, db)
		_, err = svc.SyncDbt(ctx, "production", manifestJSON(t, ordersManifest), team.ID)
		require.NoError(t, err)

		items, err := svc.DbtImpact(ctx, "production", []string{"staging.raw_orders", "warehouse.unknown"})
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.True(t, items[0].Found)
		assert.Equal(t, 1, items[0].AffectedAssets)
		assert.False(t, items[1].Found)
	})
}

func TestSyncOpenAPIRegistersEndpoints(t *testing.T) {
	tesseradbtest.Run(t, func(ctx context.Context, t *testing.T, db registry.DB) {
		team, err := db.Teams().Insert(ctx, registry.Team{ID: uuid.New(), Name: "api-platform"})
		require.NoError(t, err)
		svc := newService(t, db)

		var doc ingest.OpenAPIDoc
		require.NoError(t, json.Unmarshal([]byte(`{
			"info": {"title": "Orders API"},
			"paths": {
				"/orders": {"get": {"operationId": "listOrders"}, "post": {"operationId": "createOrder"}},
				"/orders/{id}": {"get": {"operationId": "getOrder"}}
			}
		}`), &doc))

		summary, err := svc.SyncOpenAPI(ctx, "production", doc, team.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, summary.AssetsCreated)

		asset, err := db.Assets().GetByFQN(ctx, "orders_api.get.orders", "production")
		require.NoError(t, err)
		assert.Equal(t, "endpoint", asset.ResourceType)
	})
}

func TestSyncGraphQLSkipsIntrospectionTypes(t *testing.T) {
	tesseradbtest.Run(t, func(ctx context.Context, t *testing.T, db registry.DB) {
		team, err := db.Teams().Insert(ctx, registry.Team{ID: uuid.New(), Name: "api-platform"})
		require.NoError(t, err)
		svc := newService(t, db)

		var introspection ingest.GraphQLIntrospection
		require.NoError(t, json.Unmarshal([]byte(`{
			"__schema": {
				"types": [
					{"kind": "OBJECT", "name": "Order", "fields": [{"name": "id"}]},
					{"kind": "OBJECT", "name": "__Schema"},
					{"kind": "SCALAR", "name": "String"}
				]
			}
		}`), &introspection))

		summary, err := svc.SyncGraphQL(ctx, "production", "shop", introspection, team.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.AssetsCreated)
		assert.Len(t, summary.Skipped, 2)

		asset, err := db.Assets().GetByFQN(ctx, "shop.order", "production")
		require.NoError(t, err)
		assert.Equal(t, "graphql_type", asset.ResourceType)
	})
}

func TestPushPullRoundTrip(t *testing.T) {
	tesseradbtest.Run(t, func(ctx context.Context, t *testing.T, db registry.DB) {
		team, err := db.Teams().Insert(ctx, registry.Team{ID: uuid.New(), Name: "data-platform"})
		require.NoError(t, err)
		asset, err := db.Assets().Insert(ctx, registry.Asset{
			ID: uuid.New(), FQN: "warehouse.orders", Environment: "production",
			OwnerTeamID: team.ID, ResourceType: "table",
		})
		require.NoError(t, err)
		_, err = db.Contracts().Insert(ctx, registry.Contract{
			ID: uuid.New(), AssetID: asset.ID, Version: "1.2.0",
			SchemaDef:    json.RawMessage(`{"type":"object"}`),
			SchemaFormat: registry.FormatJSONSchema, CompatibilityMode: "backward",
			Status: registry.ContractActive, PublishedBy: team.ID,
		})
		require.NoError(t, err)

		svc := newService(t, db)
		dir := t.TempDir()
		pushed, err := svc.Push(ctx, dir)
		require.NoError(t, err)
		assert.Equal(t, 1, pushed.Teams)
		assert.Equal(t, 1, pushed.Assets)

		// Pulling into a fresh database recreates the catalog shell.
		tesseradbtest.Run(t, func(ctx context.Context, t *testing.T, fresh registry.DB) {
			result, err := newService(t, fresh).Pull(ctx, dir)
			require.NoError(t, err)
			assert.Equal(t, 1, result.TeamsCreated)
			assert.Equal(t, 1, result.AssetsCreated)

			imported, err := fresh.Assets().GetByFQN(ctx, "warehouse.orders", "production")
			require.NoError(t, err)
			assert.Equal(t, "table", imported.ResourceType)
		})
	})
}
