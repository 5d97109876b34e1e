// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package tesseradb

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"tessera.io/tessera/tessera/registry"
)

type assets struct{ *core }

const assetColumns = "id, fqn, environment, owner_team_id, resource_type, description, COALESCE(metadata, '') AS metadata, created_at, updated_at, deleted_at"

func (r *assets) Insert(ctx context.Context, asset registry.Asset) (_ *registry.Asset, err error) {
	defer mon.Task()(&ctx)(&err)
	now := r.now()
	asset.CreatedAt, asset.UpdatedAt = now, now
	_, err = r.q.ExecContext(ctx, r.rebind(`
		INSERT INTO assets (id, fqn, environment, owner_team_id, resource_type, description, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		asset.ID, asset.FQN, asset.Environment, asset.OwnerTeamID, asset.ResourceType,
		asset.Description, nullJSON(asset.Metadata), asset.CreatedAt, asset.UpdatedAt)
	if err != nil {
		return nil, r.convert(err)
	}
	return &asset, nil
}

func (r *assets) Get(ctx context.Context, id uuid.UUID) (_ *registry.Asset, err error) {
	defer mon.Task()(&ctx)(&err)
	var asset registry.Asset
	err = sqlx.GetContext(ctx, r.q, &asset, r.rebind(`
		SELECT `+assetColumns+` FROM assets WHERE id = ? AND deleted_at IS NULL`), id)
	if err != nil {
		return nil, r.convert(err)
	}
	return &asset, nil
}

func (r *assets) GetByFQN(ctx context.Context, fqn, environment string) (_ *registry.Asset, err error) {
	defer mon.Task()(&ctx)(&err)
	var asset registry.Asset
	err = sqlx.GetContext(ctx, r.q, &asset, r.rebind(`
		SELECT `+assetColumns+` FROM assets
		WHERE fqn = ? AND environment = ? AND deleted_at IS NULL`), fqn, environment)
	if err != nil {
		return nil, r.convert(err)
	}
	return &asset, nil
}

func (r *assets) GetBatch(ctx context.Context, ids []uuid.UUID) (_ []registry.Asset, err error) {
	defer mon.Task()(&ctx)(&err)
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := r.in(`
		SELECT `+assetColumns+` FROM assets
		WHERE id IN (?) AND deleted_at IS NULL`, ids)
	if err != nil {
		return nil, err
	}
	var out []registry.Asset
	if err := sqlx.SelectContext(ctx, r.q, &out, query, args...); err != nil {
		return nil, r.convert(err)
	}
	return out, nil
}

func (r *assets) GetByFQNBatch(ctx context.Context, environment string, fqns []string) (_ []registry.Asset, err error) {
	defer mon.Task()(&ctx)(&err)
	if len(fqns) == 0 {
		return nil, nil
	}
	query, args, err := r.in(`
		SELECT `+assetColumns+` FROM assets
		WHERE environment = ? AND fqn IN (?) AND deleted_at IS NULL`, environment, fqns)
	if err != nil {
		return nil, err
	}
	var out []registry.Asset
	if err := sqlx.SelectContext(ctx, r.q, &out, query, args...); err != nil {
		return nil, r.convert(err)
	}
	return out, nil
}

func (r *assets) List(ctx context.Context, opts registry.ListAssetsOptions) (_ []registry.Asset, err error) {
	defer mon.Task()(&ctx)(&err)
	query := `SELECT ` + assetColumns + ` FROM assets WHERE deleted_at IS NULL`
	var args []interface{}
	if opts.OwnerTeamID != nil {
		query += ` AND owner_team_id = ?`
		args = append(args, *opts.OwnerTeamID)
	}
	if opts.Environment != "" {
		query += ` AND environment = ?`
		args = append(args, opts.Environment)
	}
	query += ` ORDER BY fqn LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset)

	var out []registry.Asset
	if err := sqlx.SelectContext(ctx, r.q, &out, r.rebind(query), args...); err != nil {
		return nil, r.convert(err)
	}
	return out, nil
}

func (r *assets) Update(ctx context.Context, id uuid.UUID, req registry.UpdateAssetRequest) (_ *registry.Asset, err error) {
	defer mon.Task()(&ctx)(&err)
	asset, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Description != nil {
		asset.Description = *req.Description
	}
	if req.ResourceType != nil {
		asset.ResourceType = *req.ResourceType
	}
	if req.OwnerTeamID != nil {
		asset.OwnerTeamID = *req.OwnerTeamID
	}
	if req.Metadata != nil {
		asset.Metadata = *req.Metadata
	}
	asset.UpdatedAt = r.now()
	_, err = r.q.ExecContext(ctx, r.rebind(`
		UPDATE assets SET description = ?, resource_type = ?, owner_team_id = ?, metadata = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`),
		asset.Description, asset.ResourceType, asset.OwnerTeamID,
		nullJSON(asset.Metadata), asset.UpdatedAt, id)
	if err != nil {
		return nil, r.convert(err)
	}
	return asset, nil
}

func (r *assets) SoftDelete(ctx context.Context, id uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)
	now := r.now()
	res, err := r.q.ExecContext(ctx, r.rebind(`
		UPDATE assets SET deleted_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`), now, now, id)
	if err != nil {
		return r.convert(err)
	}
	return r.mustAffect(res, "asset %s", id)
}

func (r *assets) ListByDependsOnFQN(ctx context.Context, fqn string) (_ []registry.Asset, err error) {
	defer mon.Task()(&ctx)(&err)
	query := `
		SELECT ` + assetColumns + ` FROM assets
		WHERE deleted_at IS NULL AND EXISTS (
			SELECT 1 FROM json_each(json_extract(assets.metadata, '$.depends_on')) dep
			WHERE dep.value = ?
		)`
	if r.driver == driverPostgres {
		query = `
		SELECT ` + assetColumns + ` FROM assets
		WHERE deleted_at IS NULL AND EXISTS (
			SELECT 1 FROM jsonb_array_elements_text(metadata::jsonb -> 'depends_on') dep
			WHERE dep = ?
		)`
	}
	var out []registry.Asset
	if err := sqlx.SelectContext(ctx, r.q, &out, r.rebind(query), fqn); err != nil {
		return nil, r.convert(err)
	}
	return out, nil
}

func (r *assets) Search(ctx context.Context, query string, limit int) (_ []registry.Asset, err error) {
	defer mon.Task()(&ctx)(&err)
	var out []registry.Asset
	err = sqlx.SelectContext(ctx, r.q, &out, r.rebind(`
		SELECT `+assetColumns+` FROM assets
		WHERE deleted_at IS NULL AND fqn LIKE ? ESCAPE '\'
		ORDER BY fqn LIMIT ?`), "%"+escapeLike(query)+"%", limit)
	if err != nil {
		return nil, r.convert(err)
	}
	return out, nil
}
