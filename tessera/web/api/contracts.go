// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tessera.io/tessera/tessera/cache"
	"tessera.io/tessera/tessera/registry"
)

// Contracts handles contract reads and consumer registrations.
type Contracts struct {
	log     *zap.Logger
	service *registry.Service
	store   registry.DB
	cache   *cache.Cache
}

// NewContracts creates a contracts controller.
func NewContracts(log *zap.Logger, service *registry.Service, store registry.DB, readCache *cache.Cache) *Contracts {
	return &Contracts{log: log, service: service, store: store, cache: readCache}
}

func (c *Contracts) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r, "id")
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	var cached registry.Contract
	if c.cache.GetContract(ctx, id, &cached) {
		serveJSON(w, http.StatusOK, &cached)
		return
	}
	contract, err := c.store.Contracts().Get(ctx, id)
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	c.cache.SetContract(ctx, id, contract)
	serveJSON(w, http.StatusOK, contract)
}

func (c *Contracts) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r, "id")
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if _, err := c.store.Contracts().Get(ctx, id); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	regs, err := c.store.Registrations().ListByContract(ctx, id)
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	serveJSON(w, http.StatusOK, regs)
}

// Register subscribes a consumer team to a contract. The contract is
// named by the contract_id query parameter.
func (c *Contracts) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contractID, err := uuid.Parse(r.URL.Query().Get("contract_id"))
	if err != nil {
		ServeError(c.log, w, r, registry.ErrValidation.New("contract_id is required: %v", err))
		return
	}
	var req struct {
		ConsumerTeamID uuid.UUID `json:"consumer_team_id"`
		PinnedVersion  *string   `json:"pinned_version"`
	}
	if err := decode(w, r, &req); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if err := RequireScope(ctx, registry.ScopeWrite); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if err := RequireOwner(ctx, req.ConsumerTeamID); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	reg, err := c.service.Register(ctx, contractID, req.ConsumerTeamID, req.PinnedVersion, ActorID(ctx))
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	serveJSON(w, http.StatusCreated, reg)
}

func (c *Contracts) GetRegistration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r, "id")
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	reg, err := c.service.GetRegistration(ctx, id)
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	serveJSON(w, http.StatusOK, reg)
}

func (c *Contracts) UpdateRegistration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r, "id")
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	// pinned_version distinguishes absent from explicit null, so the
	// body is decoded by hand.
	var body struct {
		PinnedVersion json.RawMessage             `json:"pinned_version"`
		Status        *registry.RegistrationStatus `json:"status"`
	}
	if err := decode(w, r, &body); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	req := registry.UpdateRegistrationRequest{Status: body.Status}
	if len(body.PinnedVersion) > 0 {
		var pinned *string
		if err := json.Unmarshal(body.PinnedVersion, &pinned); err != nil {
			ServeError(c.log, w, r, registry.ErrValidation.New("malformed pinned_version: %v", err))
			return
		}
		req.PinnedVersion = &pinned
	}
	if err := RequireScope(ctx, registry.ScopeWrite); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if err := c.requireRegistrationOwner(r, id); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	reg, err := c.service.UpdateRegistration(ctx, id, req, ActorID(ctx))
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	serveJSON(w, http.StatusOK, reg)
}

func (c *Contracts) Unregister(w http.ResponseWriter, r *http.Request) {
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
	if err := c.requireRegistrationOwner(r, id); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if err := c.service.Unregister(ctx, id, ActorID(ctx)); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *Contracts) requireRegistrationOwner(r *http.Request, id uuid.UUID) error {
	reg, err := c.service.GetRegistration(r.Context(), id)
	if err != nil {
		return err
	}
	return RequireOwner(r.Context(), reg.ConsumerTeamID)
}
