// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package tesseradb

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"tessera.io/tessera/tessera/registry"
)

type contracts struct{ *core }

const contractColumns = "id, asset_id, version, schema_def, schema_format, compatibility_mode, COALESCE(guarantees, '') AS guarantees, status, published_by, published_by_user_id, created_at, updated_at"

func (r *contracts) Insert(ctx context.Context, contract registry.Contract) (_ *registry.Contract, err error) {
	defer mon.Task()(&ctx)(&err)
	now := r.now()
	contract.CreatedAt, contract.UpdatedAt = now, now
	_, err = r.q.ExecContext(ctx, r.rebind(`
		INSERT INTO contracts (id, asset_id, version, schema_def, schema_format, compatibility_mode,
			guarantees, status, published_by, published_by_user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		contract.ID, contract.AssetID, contract.Version, []byte(contract.SchemaDef),
		contract.SchemaFormat, contract.CompatibilityMode, nullJSON(contract.Guarantees),
		contract.Status, contract.PublishedBy, contract.PublishedByUserID,
		contract.CreatedAt, contract.UpdatedAt)
	if err != nil {
		return nil, r.convert(err)
	}
	return &contract, nil
}

func (r *contracts) Get(ctx context.Context, id uuid.UUID) (_ *registry.Contract, err error) {
	defer mon.Task()(&ctx)(&err)
	var contract registry.Contract
	err = sqlx.GetContext(ctx, r.q, &contract, r.rebind(`
		SELECT `+contractColumns+` FROM contracts WHERE id = ?`), id)
	if err != nil {
		return nil, r.convert(err)
	}
	return &contract, nil
}

func (r *contracts) GetActive(ctx context.Context, assetID uuid.UUID) (*registry.Contract, error) {
	return r.getActive(ctx, assetID, false)
}

func (r *contracts) GetActiveForUpdate(ctx context.Context, assetID uuid.UUID) (*registry.Contract, error) {
	return r.getActive(ctx, assetID, true)
}

func (r *contracts) getActive(ctx context.Context, assetID uuid.UUID, lock bool) (_ *registry.Contract, err error) {
	defer mon.Task()(&ctx)(&err)
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE asset_id = ? AND status = 'active'`
	if lock {
		query += r.forUpdate()
	}
	var contract registry.Contract
	if err := sqlx.GetContext(ctx, r.q, &contract, r.rebind(query), assetID); err != nil {
		return nil, r.convert(err)
	}
	return &contract, nil
}

func (r *contracts) GetActiveBatch(ctx context.Context, assetIDs []uuid.UUID, lock bool) (_ []registry.Contract, err error) {
	defer mon.Task()(&ctx)(&err)
	if len(assetIDs) == 0 {
		return nil, nil
	}
	base := `SELECT ` + contractColumns + ` FROM contracts WHERE asset_id IN (?) AND status = 'active'`
	if lock {
		base += r.forUpdate()
	}
	query, args, err := r.in(base, assetIDs)
	if err != nil {
		return nil, err
	}
	var out []registry.Contract
	if err := sqlx.SelectContext(ctx, r.q, &out, query, args...); err != nil {
		return nil, r.convert(err)
	}
	return out, nil
}

func (r *contracts) ListByAsset(ctx context.Context, assetID uuid.UUID) (_ []registry.Contract, err error) {
	defer mon.Task()(&ctx)(&err)
	var out []registry.Contract
	err = sqlx.SelectContext(ctx, r.q, &out, r.rebind(`
		SELECT `+contractColumns+` FROM contracts
		WHERE asset_id = ? ORDER BY created_at DESC`), assetID)
	if err != nil {
		return nil, r.convert(err)
	}
	return out, nil
}

func (r *contracts) SetStatus(ctx context.Context, id uuid.UUID, status registry.ContractStatus) (err error) {
	defer mon.Task()(&ctx)(&err)
	res, err := r.q.ExecContext(ctx, r.rebind(`
		UPDATE contracts SET status = ?, updated_at = ? WHERE id = ?`),
		status, r.now(), id)
	if err != nil {
		return r.convert(err)
	}
	return r.mustAffect(res, "contract %s", id)
}

func (r *contracts) Search(ctx context.Context, query string, limit int) (_ []registry.Contract, err error) {
	defer mon.Task()(&ctx)(&err)
	pattern := "%" + escapeLike(query) + "%"
	var out []registry.Contract
	err = sqlx.SelectContext(ctx, r.q, &out, r.rebind(`
		SELECT c.id, c.asset_id, c.version, c.schema_def, c.schema_format, c.compatibility_mode,
		       COALESCE(c.guarantees, '') AS guarantees, c.status, c.published_by, c.published_by_user_id, c.created_at, c.updated_at
		FROM contracts c
		JOIN assets a ON a.id = c.asset_id AND a.deleted_at IS NULL
		WHERE a.fqn LIKE ? ESCAPE '\' OR c.version LIKE ? ESCAPE '\'
		ORDER BY c.created_at DESC LIMIT ?`), pattern, pattern, limit)
	if err != nil {
		return nil, r.convert(err)
	}
	return out, nil
}
