// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"tessera.io/tessera/tessera/registry"
)

// Teams handles team and API key endpoints.
type Teams struct {
	log     *zap.Logger
	service *registry.Service
}

// NewTeams creates a teams controller.
func NewTeams(log *zap.Logger, service *registry.Service) *Teams {
	return &Teams{log: log, service: service}
}

func (c *Teams) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decode(w, r, &req); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if err := RequireScope(ctx, registry.ScopeWrite); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	team, err := c.service.CreateTeam(ctx, req.Name, req.Description, ActorID(ctx))
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	serveJSON(w, http.StatusCreated, team)
}

func (c *Teams) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, offset := pagination(r)
	teams, err := c.service.ListTeams(ctx, limit, offset)
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	serveJSON(w, http.StatusOK, teams)
}

func (c *Teams) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r, "id")
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	team, err := c.service.GetTeam(ctx, id)
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	serveJSON(w, http.StatusOK, team)
}

func (c *Teams) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r, "id")
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	var req registry.UpdateTeamRequest
	if err := decode(w, r, &req); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if err := RequireScope(ctx, registry.ScopeWrite); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if err := RequireOwner(ctx, id); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	team, err := c.service.UpdateTeam(ctx, id, req, ActorID(ctx))
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	serveJSON(w, http.StatusOK, team)
}

func (c *Teams) Delete(w http.ResponseWriter, r *http.Request) {
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
	if err := RequireOwner(ctx, id); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if err := c.service.DeleteTeam(ctx, id, ActorID(ctx)); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *Teams) IssueAPIKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	teamID, err := pathID(r, "id")
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	var req struct {
		Name      string          `json:"name"`
		Scopes    registry.Scopes `json:"scopes"`
		ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	}
	if err := decode(w, r, &req); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	// A read-only key must not be able to mint broader keys.
	if err := RequireScope(ctx, registry.ScopeWrite); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if err := RequireOwner(ctx, teamID); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	plaintext, key, err := c.service.IssueAPIKey(ctx, teamID, req.Name, req.Scopes, req.ExpiresAt)
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	serveJSON(w, http.StatusCreated, struct {
		// The plaintext key is shown exactly once.
		Key    string           `json:"key"`
		APIKey *registry.APIKey `json:"api_key"`
	}{Key: plaintext, APIKey: key})
}

func (c *Teams) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r, "id")
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if err := RequireScope(ctx, registry.ScopeAdmin); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if err := c.service.RevokeAPIKey(ctx, id, ActorID(ctx)); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pathID parses a uuid path variable.
func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, registry.ErrValidation.New("malformed %s: %v", name, err)
	}
	return id, nil
}

// pagination reads limit/offset query params with defaults.
func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
