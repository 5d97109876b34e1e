// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package tesseradb

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/zeebo/errs"

	"tessera.io/tessera/tessera/registry"
)

type dependencies struct{ *core }

const dependencyColumns = "id, dependent_asset_id, dependency_asset_id, dependency_type, created_at, updated_at, deleted_at"

func (r *dependencies) Insert(ctx context.Context, dep registry.Dependency) (_ *registry.Dependency, err error) {
	defer mon.Task()(&ctx)(&err)
	now := r.now()
	dep.CreatedAt, dep.UpdatedAt = now, now
	_, err = r.q.ExecContext(ctx, r.rebind(`
		INSERT INTO dependencies (id, dependent_asset_id, dependency_asset_id, dependency_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		dep.ID, dep.DependentAssetID, dep.DependencyAssetID, dep.DependencyType,
		dep.CreatedAt, dep.UpdatedAt)
	if err != nil {
		return nil, r.convert(err)
	}
	return &dep, nil
}

func (r *dependencies) Upsert(ctx context.Context, dep registry.Dependency) (_ *registry.Dependency, err error) {
	defer mon.Task()(&ctx)(&err)
	var existing registry.Dependency
	err = sqlx.GetContext(ctx, r.q, &existing, r.rebind(`
		SELECT `+dependencyColumns+` FROM dependencies
		WHERE dependent_asset_id = ? AND dependency_asset_id = ? AND dependency_type = ?
		AND deleted_at IS NULL`),
		dep.DependentAssetID, dep.DependencyAssetID, dep.DependencyType)
	if err == nil {
		return &existing, nil
	}
	if !registry.ErrNotFound.Has(r.convert(err)) {
		return nil, r.convert(err)
	}
	return r.Insert(ctx, dep)
}

func (r *dependencies) ListDownstream(ctx context.Context, frontier []uuid.UUID) (_ []registry.DownstreamEdge, err error) {
	defer mon.Task()(&ctx)(&err)
	if len(frontier) == 0 {
		return nil, nil
	}
	query, args, err := r.in(`
		SELECT a.id, a.fqn, a.environment, a.owner_team_id, a.resource_type,
		       a.description, COALESCE(a.metadata, '') AS metadata, a.created_at, a.updated_at, a.deleted_at,
		       d.dependency_asset_id, d.dependency_type
		FROM dependencies d
		JOIN assets a ON a.id = d.dependent_asset_id AND a.deleted_at IS NULL
		WHERE d.dependency_asset_id IN (?) AND d.deleted_at IS NULL`, frontier)
	if err != nil {
		return nil, err
	}
	rows, err := r.q.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, r.convert(err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	var out []registry.DownstreamEdge
	for rows.Next() {
		var edge registry.DownstreamEdge
		a := &edge.Asset
		if err := rows.Scan(&a.ID, &a.FQN, &a.Environment, &a.OwnerTeamID, &a.ResourceType,
			&a.Description, &a.Metadata, &a.CreatedAt, &a.UpdatedAt, &a.DeletedAt,
			&edge.DependencyAssetID, &edge.DependencyType); err != nil {
			return nil, r.convert(err)
		}
		out = append(out, edge)
	}
	return out, r.convert(rows.Err())
}

func (r *dependencies) ListUpstream(ctx context.Context, assetID uuid.UUID) (_ []registry.UpstreamEdge, err error) {
	defer mon.Task()(&ctx)(&err)
	rows, err := r.q.QueryxContext(ctx, r.rebind(`
		SELECT a.id, a.fqn, a.environment, a.owner_team_id, a.resource_type,
		       a.description, COALESCE(a.metadata, '') AS metadata, a.created_at, a.updated_at, a.deleted_at,
		       d.dependency_type
		FROM dependencies d
		JOIN assets a ON a.id = d.dependency_asset_id AND a.deleted_at IS NULL
		WHERE d.dependent_asset_id = ? AND d.deleted_at IS NULL`), assetID)
	if err != nil {
		return nil, r.convert(err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	var out []registry.UpstreamEdge
	for rows.Next() {
		var edge registry.UpstreamEdge
		a := &edge.Asset
		if err := rows.Scan(&a.ID, &a.FQN, &a.Environment, &a.OwnerTeamID, &a.ResourceType,
			&a.Description, &a.Metadata, &a.CreatedAt, &a.UpdatedAt, &a.DeletedAt,
			&edge.DependencyType); err != nil {
			return nil, r.convert(err)
		}
		out = append(out, edge)
	}
	return out, r.convert(rows.Err())
}

func (r *dependencies) SoftDelete(ctx context.Context, id uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)
	now := r.now()
	res, err := r.q.ExecContext(ctx, r.rebind(`
		UPDATE dependencies SET deleted_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`), now, now, id)
	if err != nil {
		return r.convert(err)
	}
	return r.mustAffect(res, "dependency %s", id)
}
