// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package api

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tessera.io/tessera/tessera/proposals"
	"tessera.io/tessera/tessera/registry"
)

// Proposals handles the breaking-change proposal workflow endpoints.
type Proposals struct {
	log     *zap.Logger
	service *proposals.Service
}

// NewProposals creates a proposals controller.
func NewProposals(log *zap.Logger, service *proposals.Service) *Proposals {
	return &Proposals{log: log, service: service}
}

func (c *Proposals) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var opts registry.ListProposalsOptions
	opts.Limit, opts.Offset = pagination(r)
	q := r.URL.Query()
	if raw := q.Get("asset_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			ServeError(c.log, w, r, registry.ErrValidation.New("malformed asset_id: %v", err))
			return
		}
		opts.AssetID = &id
	}
	if raw := q.Get("status"); raw != "" {
		status := registry.ProposalStatus(raw)
		opts.Status = &status
	}
	if raw := q.Get("proposed_by"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			ServeError(c.log, w, r, registry.ErrValidation.New("malformed proposed_by: %v", err))
			return
		}
		opts.ProposedBy = &id
	}
	list, err := c.service.List(ctx, opts)
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	serveJSON(w, http.StatusOK, list)
}

func (c *Proposals) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r, "id")
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	proposal, err := c.service.Get(ctx, id)
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	serveJSON(w, http.StatusOK, proposal)
}

func (c *Proposals) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r, "id")
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	status, err := c.service.GetStatus(ctx, id)
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	serveJSON(w, http.StatusOK, status)
}

func (c *Proposals) Acknowledge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r, "id")
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	var req proposals.AckRequest
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
	req.ActorID = ActorID(ctx)
	result, err := c.service.Acknowledge(ctx, id, req)
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	serveJSON(w, http.StatusCreated, result)
}

// Object records an objection. The objecting team is named by the
// objector_team_id query parameter.
func (c *Proposals) Object(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r, "id")
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	teamID, err := uuid.Parse(r.URL.Query().Get("objector_team_id"))
	if err != nil {
		ServeError(c.log, w, r, registry.ErrValidation.New("objector_team_id is required: %v", err))
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decode(w, r, &req); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if err := RequireScope(ctx, registry.ScopeWrite); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if err := RequireOwner(ctx, teamID); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if err := c.service.Object(ctx, id, teamID, req.Reason, ActorID(ctx)); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	serveJSON(w, http.StatusCreated, map[string]string{"status": "objection recorded"})
}

func (c *Proposals) Withdraw(w http.ResponseWriter, r *http.Request) {
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
	if err := c.requireProposer(r, id); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	proposal, err := c.service.Withdraw(ctx, id, ActorID(ctx))
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	serveJSON(w, http.StatusOK, proposal)
}

// Force approves a proposal past outstanding acknowledgments. Admin
// only; the audit trail records who.
func (c *Proposals) Force(w http.ResponseWriter, r *http.Request) {
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
	actorID := ActorID(ctx)
	if raw := r.URL.Query().Get("actor_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			ServeError(c.log, w, r, registry.ErrValidation.New("malformed actor_id: %v", err))
			return
		}
		actorID = &parsed
	}
	proposal, err := c.service.Force(ctx, id, actorID)
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	serveJSON(w, http.StatusOK, proposal)
}

// Publish turns an approved proposal into the new active contract.
func (c *Proposals) Publish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r, "id")
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	var req struct {
		Version     string    `json:"version"`
		PublishedBy uuid.UUID `json:"published_by"`
	}
	if err := decode(w, r, &req); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if err := RequireScope(ctx, registry.ScopeWrite); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if err := RequireOwner(ctx, req.PublishedBy); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	result, err := c.service.PublishFromApproved(ctx, id, req.Version, req.PublishedBy, ActorID(ctx))
	if err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	serveJSON(w, http.StatusCreated, result)
}

// BulkAcknowledge processes many acknowledgments in one request; each
// item commits on its own so partial progress survives failures.
func (c *Proposals) BulkAcknowledge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req proposals.BulkAckRequest
	if err := decode(w, r, &req); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	if err := RequireScope(ctx, registry.ScopeWrite); err != nil {
		ServeError(c.log, w, r, err)
		return
	}
	for _, item := range req.Items {
		if err := RequireOwner(ctx, item.ConsumerTeamID); err != nil {
			ServeError(c.log, w, r, err)
			return
		}
	}
	req.ActorID = ActorID(ctx)
	result, err := c.service.BulkAcknowledge(ctx, req)
	if err != nil && result == nil {
		ServeError(c.log, w, r, err)
		return
	}
	status := http.StatusOK
	if result.Failed > 0 {
		status = http.StatusMultiStatus
	}
	serveJSON(w, status, result)
}

func (c *Proposals) requireProposer(r *http.Request, id uuid.UUID) error {
	proposal, err := c.service.Get(r.Context(), id)
	if err != nil {
		return err
	}
	return RequireOwner(r.Context(), proposal.ProposedBy)
}
