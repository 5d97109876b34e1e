// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package api

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tessera.io/tessera/tessera/ingest"
	"tessera.io/tessera/tessera/registry"
)

// Sync handles catalog ingestion from external tools and the git-sync
// import/export pair.
type Sync struct {
	log         *zap.Logger
	service     *ingest.Service
	gitSyncPath string
}

// NewSync creates a sync controller. gitSyncPath may be empty when
// git sync is not configured.
func NewSync(log *zap.Logger, service *ingest.Service, gitSyncPath string) *Sync {
	return &Sync{log: log, service: service, gitSyncPath: gitSyncPath}
}

// teamParam resolves the owning team every ingest call attributes new
// assets to, and checks the caller may act for it.
func (c *Sync) teamParam(r *http.Request, raw string) (uuid.UUID, error) {
	teamID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, registry.ErrValidation.New("team_id is required: %v", err)
	}
	if err := RequireScope(r.Context(), registry.ScopeWrite); err != nil {
		return uuid.Nil, err
	}
	if err := RequireOwner(r.Context(), teamID); err != nil {
		return uuid.Nil, err
	}
	return teamID, nil
}

func environment(r *http.Request) string {
	if env := r.URL.Query().Get("environment"); env != "" {
		return env
	}
	return "production"
}

// UploadDbt ingests a dbt manifest: models become assets, depends_on
// edges become lineage.
func (c *Sync) UploadDbt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	teamID, err := c.teamParam(r, r.URL.Query().Get("team_id"))
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	var manifest ingest.DbtManifest
	if err := decode(w, r, &manifest); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	summary, err := c.service.SyncDbt(ctx, environment(r), manifest, teamID)
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	serveJSON(w, http.StatusOK, summary)
}

// DbtImpact maps modified dbt model fqns to registered assets and
// their blast radius.
func (c *Sync) DbtImpact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		Environment string   `json:"environment"`
		Modified    []string `json:"modified"`
	}
	if err := decode(w, r, &req); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if req.Environment == "" {
		req.Environment = "production"
	}
	if len(req.Modified) == 0 {
		ServeError(c.log, w, r, registry.ErrValidation.New("modified model list is empty"))
		return
	}
	items, err := c.service.DbtImpact(ctx, req.Environment, req.Modified)
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	serveJSON(w, http.StatusOK, items)
}

// UploadOpenAPI registers an OpenAPI document's operations as endpoint
// assets.
func (c *Sync) UploadOpenAPI(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	teamID, err := c.teamParam(r, r.URL.Query().Get("team_id"))
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	var doc ingest.OpenAPIDoc
	if err := decode(w, r, &doc); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	summary, err := c.service.SyncOpenAPI(ctx, environment(r), doc, teamID)
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	serveJSON(w, http.StatusOK, summary)
}

// UploadGraphQL registers a GraphQL introspection result's object
// types as assets.
func (c *Sync) UploadGraphQL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	teamID, err := c.teamParam(r, r.URL.Query().Get("team_id"))
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	service := r.URL.Query().Get("service")
	if service == "" {
		ServeError(c.log, w, r, registry.ErrValidation.New("service name is required"))
		return
	}
	var introspection ingest.GraphQLIntrospection
	if err := decode(w, r, &introspection); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	summary, err := c.service.SyncGraphQL(ctx, environment(r), service, introspection, teamID)
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	serveJSON(w, http.StatusOK, summary)
}

// Push exports the catalog to the configured git-sync directory.
func (c *Sync) Push(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := RequireScope(ctx, registry.ScopeAdmin); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	result, err := c.service.Push(ctx, c.gitSyncPath)
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	serveJSON(w, http.StatusOK, result)
}

// Pull imports the catalog from the configured git-sync directory.
func (c *Sync) Pull(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := RequireScope(ctx, registry.ScopeAdmin); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	result, err := c.service.Pull(ctx, c.gitSyncPath)
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	serveJSON(w, http.StatusOK, result)
}
