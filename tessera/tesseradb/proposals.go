// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package tesseradb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"tessera.io/tessera/tessera/registry"
)

type proposals struct{ *core }

const proposalColumns = "id, asset_id, proposed_schema, COALESCE(proposed_guarantees, '') AS proposed_guarantees, change_type, breaking_changes, affected_teams, affected_assets, status, proposed_by, proposed_by_user_id, resolved_at, created_at, updated_at"

func (r *proposals) Insert(ctx context.Context, proposal registry.Proposal) (_ *registry.Proposal, err error) {
	defer mon.Task()(&ctx)(&err)
	now := r.now()
	proposal.CreatedAt, proposal.UpdatedAt = now, now
	if proposal.Status == "" {
		proposal.Status = registry.ProposalPending
	}
	_, err = r.q.ExecContext(ctx, r.rebind(`
		INSERT INTO proposals (id, asset_id, proposed_schema, proposed_guarantees, change_type,
			breaking_changes, affected_teams, affected_assets, status,
			proposed_by, proposed_by_user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		proposal.ID, proposal.AssetID, []byte(proposal.ProposedSchema),
		nullJSON(proposal.ProposedGuarantees), proposal.ChangeType,
		jsonOrEmptyArray(proposal.BreakingChanges), jsonOrEmptyArray(proposal.AffectedTeams),
		jsonOrEmptyArray(proposal.AffectedAssets), proposal.Status,
		proposal.ProposedBy, proposal.ProposedByUserID, proposal.CreatedAt, proposal.UpdatedAt)
	if err != nil {
		return nil, r.convert(err)
	}
	return &proposal, nil
}

func (r *proposals) Get(ctx context.Context, id uuid.UUID) (*registry.Proposal, error) {
	return r.get(ctx, id, false)
}

func (r *proposals) GetForUpdate(ctx context.Context, id uuid.UUID) (*registry.Proposal, error) {
	return r.get(ctx, id, true)
}

func (r *proposals) get(ctx context.Context, id uuid.UUID, lock bool) (_ *registry.Proposal, err error) {
	defer mon.Task()(&ctx)(&err)
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE id = ?`
	if lock {
		query += r.forUpdate()
	}
	var proposal registry.Proposal
	if err := sqlx.GetContext(ctx, r.q, &proposal, r.rebind(query), id); err != nil {
		return nil, r.convert(err)
	}
	return &proposal, nil
}

func (r *proposals) GetPendingByAsset(ctx context.Context, assetID uuid.UUID) (_ *registry.Proposal, err error) {
	defer mon.Task()(&ctx)(&err)
	var proposal registry.Proposal
	err = sqlx.GetContext(ctx, r.q, &proposal, r.rebind(`
		SELECT `+proposalColumns+` FROM proposals
		WHERE asset_id = ? AND status = 'pending'`), assetID)
	if err != nil {
		return nil, r.convert(err)
	}
	return &proposal, nil
}

func (r *proposals) GetPendingBatch(ctx context.Context, assetIDs []uuid.UUID) (_ []registry.Proposal, err error) {
	defer mon.Task()(&ctx)(&err)
	if len(assetIDs) == 0 {
		return nil, nil
	}
	query, args, err := r.in(`
		SELECT `+proposalColumns+` FROM proposals
		WHERE asset_id IN (?) AND status = 'pending'`, assetIDs)
	if err != nil {
		return nil, err
	}
	var out []registry.Proposal
	if err := sqlx.SelectContext(ctx, r.q, &out, query, args...); err != nil {
		return nil, r.convert(err)
	}
	return out, nil
}

func (r *proposals) List(ctx context.Context, opts registry.ListProposalsOptions) (_ []registry.Proposal, err error) {
	defer mon.Task()(&ctx)(&err)
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE 1 = 1`
	var args []interface{}
	if opts.AssetID != nil {
		query += ` AND asset_id = ?`
		args = append(args, *opts.AssetID)
	}
	if opts.Status != nil {
		query += ` AND status = ?`
		args = append(args, *opts.Status)
	}
	if opts.ProposedBy != nil {
		query += ` AND proposed_by = ?`
		args = append(args, *opts.ProposedBy)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset)

	var out []registry.Proposal
	if err := sqlx.SelectContext(ctx, r.q, &out, r.rebind(query), args...); err != nil {
		return nil, r.convert(err)
	}
	return out, nil
}

func (r *proposals) SetStatus(ctx context.Context, id uuid.UUID, status registry.ProposalStatus, resolvedAt *time.Time) (err error) {
	defer mon.Task()(&ctx)(&err)
	res, err := r.q.ExecContext(ctx, r.rebind(`
		UPDATE proposals SET status = ?, resolved_at = ?, updated_at = ? WHERE id = ?`),
		status, resolvedAt, r.now(), id)
	if err != nil {
		return r.convert(err)
	}
	return r.mustAffect(res, "proposal %s", id)
}

func (r *proposals) AddObjection(ctx context.Context, proposalID uuid.UUID, objection registry.Objection) (err error) {
	defer mon.Task()(&ctx)(&err)
	objection.CreatedAt = r.now()
	_, err = r.q.ExecContext(ctx, r.rebind(`
		INSERT INTO objections (id, proposal_id, team_id, reason, created_at)
		VALUES (?, ?, ?, ?, ?)`),
		objection.ID, proposalID, objection.TeamID, objection.Reason, objection.CreatedAt)
	return r.convert(err)
}

func (r *proposals) ListObjections(ctx context.Context, proposalID uuid.UUID) (_ []registry.Objection, err error) {
	defer mon.Task()(&ctx)(&err)
	var out []registry.Objection
	err = sqlx.SelectContext(ctx, r.q, &out, r.rebind(`
		SELECT id, proposal_id, team_id, reason, created_at FROM objections
		WHERE proposal_id = ? ORDER BY created_at`), proposalID)
	if err != nil {
		return nil, r.convert(err)
	}
	return out, nil
}
