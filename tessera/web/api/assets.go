// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tessera.io/tessera/tessera/cache"
	"tessera.io/tessera/tessera/impact"
	"tessera.io/tessera/tessera/publisher"
	"tessera.io/tessera/tessera/registry"
	"tessera.io/tessera/tessera/schemadiff"
)

// Assets handles asset, contract-publishing, lineage and audit-run
// endpoints.
type Assets struct {
	log       *zap.Logger
	service   *registry.Service
	publisher *publisher.Service
	impact    *impact.Service
	store     registry.DB
	cache     *cache.Cache
}

// NewAssets creates an assets controller.
func NewAssets(log *zap.Logger, service *registry.Service, pub *publisher.Service, imp *impact.Service, store registry.DB, readCache *cache.Cache) *Assets {
	return &Assets{log: log, service: service, publisher: pub, impact: imp, store: store, cache: readCache}
}

func (c *Assets) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		FQN          string          `json:"fqn"`
		Environment  string          `json:"environment"`
		OwnerTeamID  uuid.UUID       `json:"owner_team_id"`
		ResourceType string          `json:"resource_type"`
		Description  string          `json:"description"`
		Metadata     json.RawMessage `json:"metadata"`
	}
	if err := decode(w, r, &req); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if err := RequireScope(ctx, registry.ScopeWrite); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if err := RequireOwner(ctx, req.OwnerTeamID); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	asset, err := c.service.CreateAsset(ctx, registry.Asset{
		FQN:          req.FQN,
		Environment:  req.Environment,
		OwnerTeamID:  req.OwnerTeamID,
		ResourceType: req.ResourceType,
		Description:  req.Description,
		Metadata:     req.Metadata,
	}, ActorID(ctx))
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	serveJSON(w, http.StatusCreated, asset)
}

func (c *Assets) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	opts := registry.ListAssetsOptions{Environment: r.URL.Query().Get("environment")}
	opts.Limit, opts.Offset = pagination(r)
	if owner := r.URL.Query().Get("owner"); owner != "" {
		id, err := uuid.Parse(owner)
		if err != nil {
			ServeError(c.log, w, r, registry.ErrValidation.New("malformed owner: %v", err))
			return
		}
		opts.OwnerTeamID = &id
	}
	assets, err := c.service.ListAssets(ctx, opts)
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	serveJSON(w, http.StatusOK, assets)
}

func (c *Assets) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r, "id")
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	var cached registry.Asset
	if c.cache.GetAsset(ctx, id, &cached) {
		serveJSON(w, http.StatusOK, &cached)
		return
	}
	asset, err := c.service.GetAsset(ctx, id)
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	c.cache.SetAsset(ctx, id, asset)
	serveJSON(w, http.StatusOK, asset)
}

func (c *Assets) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r, "id")
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	var req registry.UpdateAssetRequest
	if err := decode(w, r, &req); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if err := RequireScope(ctx, registry.ScopeWrite); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if err := c.requireAssetOwner(r, id); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	asset, err := c.service.UpdateAsset(ctx, id, req, ActorID(ctx))
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	c.cache.InvalidateAsset(ctx, id)
	serveJSON(w, http.StatusOK, asset)
}

func (c *Assets) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r, "id")
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if err := RequireScope(ctx, registry.ScopeWrite); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if err := c.requireAssetOwner(r, id); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if err := c.service.DeleteAsset(ctx, id, ActorID(ctx)); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	c.cache.InvalidateAsset(ctx, id)
	w.WriteHeader(http.StatusNoContent)
}

// PublishContract runs the publish workflow for one asset. The
// published_by query parameter names the producing team and must match
// the caller's team unless the caller is an admin.
func (c *Assets) PublishContract(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	assetID, err := pathID(r, "id")
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	publishedBy, err := uuid.Parse(r.URL.Query().Get("published_by"))
	if err != nil {
		ServeError(c.log, w, r, registry.ErrValidation.New("published_by is required: %v", err))
		return
	}
	if err := RequireScope(ctx, registry.ScopeWrite); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if err := RequireOwner(ctx, publishedBy); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	// The producing team must also own the asset it publishes to.
	if err := c.requireAssetOwner(r, assetID); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	var req struct {
		Schema            json.RawMessage       `json:"schema"`
		SchemaFormat      registry.SchemaFormat `json:"schema_format"`
		Version           string                `json:"version"`
		CompatibilityMode schemadiff.Mode       `json:"compatibility_mode"`
		Guarantees        json.RawMessage       `json:"guarantees"`
	}
	if err := decode(w, r, &req); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	result, err := c.publisher.Publish(ctx, publisher.Request{
		AssetID:           assetID,
		Schema:            req.Schema,
		SchemaFormat:      req.SchemaFormat,
		Version:           req.Version,
		CompatibilityMode: req.CompatibilityMode,
		Guarantees:        req.Guarantees,
		PublishedBy:       publishedBy,
		PublishedByUserID: ActorID(ctx),
		Force:             force,
	})
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	status := http.StatusCreated
	if result.Action == publisher.ActionSkipped {
		status = http.StatusOK
	}
	serveJSON(w, status, result)
}

func (c *Assets) ListContracts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	assetID, err := pathID(r, "id")
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if _, err := c.service.GetAsset(ctx, assetID); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	contracts, err := c.store.Contracts().ListByAsset(ctx, assetID)
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	serveJSON(w, http.StatusOK, contracts)
}

// Impact answers a what-if: the body is the proposed schema, the
// response who it would break.
func (c *Assets) Impact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	assetID, err := pathID(r, "id")
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	var proposed json.RawMessage
	if err := decode(w, r, &proposed); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	doc, err := schemadiff.Parse(proposed)
	if err != nil {
		ServeError(c.log, w, r, registry.ErrValidation.Wrap(err))
		return
	}
	asset, err := c.service.GetAsset(ctx, assetID)
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if err := RequireOwner(ctx, asset.OwnerTeamID); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	depth, _ := strconv.Atoi(r.URL.Query().Get("depth"))
	analysis, err := c.impact.Analyze(ctx, asset, doc, depth)
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	serveJSON(w, http.StatusOK, analysis)
}

func (c *Assets) Lineage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	assetID, err := pathID(r, "id")
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if _, err := c.service.GetAsset(ctx, assetID); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	lineage, err := c.impact.Lineage(ctx, assetID)
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	serveJSON(w, http.StatusOK, lineage)
}

func (c *Assets) DeclareDependency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	assetID, err := pathID(r, "id")
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	var req struct {
		DependencyAssetID uuid.UUID               `json:"dependency_asset_id"`
		DependencyType    registry.DependencyType `json:"dependency_type"`
	}
	if err := decode(w, r, &req); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if err := RequireScope(ctx, registry.ScopeWrite); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if err := c.requireAssetOwner(r, assetID); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	dep, err := c.service.DeclareDependency(ctx, registry.Dependency{
		DependentAssetID:  assetID,
		DependencyAssetID: req.DependencyAssetID,
		DependencyType:    req.DependencyType,
	}, ActorID(ctx))
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	serveJSON(w, http.StatusCreated, dep)
}

// RecordAuditRun ingests an external quality-tool report.
func (c *Assets) RecordAuditRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	assetID, err := pathID(r, "id")
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	var run registry.AuditRun
	if err := decode(w, r, &run); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	run.AssetID = assetID
	if err := RequireScope(ctx, registry.ScopeWrite); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	created, err := c.service.RecordAuditRun(ctx, run)
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	serveJSON(w, http.StatusCreated, created)
}

func (c *Assets) AuditHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	assetID, err := pathID(r, "id")
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	opts := registry.ListAuditRunsOptions{TriggeredBy: r.URL.Query().Get("triggered_by")}
	opts.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if status := r.URL.Query().Get("status"); status != "" {
		s := registry.AuditRunStatus(status)
		opts.Status = &s
	}
	runs, err := c.service.ListAuditRuns(ctx, assetID, opts)
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	serveJSON(w, http.StatusOK, runs)
}

// requireAssetOwner resolves the asset and checks the caller owns it.
func (c *Assets) requireAssetOwner(r *http.Request, assetID uuid.UUID) error {
	asset, err := c.service.GetAsset(r.Context(), assetID)
	if err != nil {
		return err
	}
	return RequireOwner(r.Context(), asset.OwnerTeamID)
}
