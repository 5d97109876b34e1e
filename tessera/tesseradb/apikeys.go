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

type apikeys struct{ *core }

const apiKeyColumns = "id, key_hash, key_prefix, name, team_id, scopes, expires_at, created_at, last_used_at"

func (r *apikeys) Insert(ctx context.Context, key registry.APIKey) (_ *registry.APIKey, err error) {
	defer mon.Task()(&ctx)(&err)
	key.CreatedAt = r.now()
	_, err = r.q.ExecContext(ctx, r.rebind(`
		INSERT INTO api_keys (id, key_hash, key_prefix, name, team_id, scopes, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		key.ID, key.KeyHash, key.KeyPrefix, key.Name, key.TeamID, key.Scopes, key.ExpiresAt, key.CreatedAt)
	if err != nil {
		return nil, r.convert(err)
	}
	return &key, nil
}

func (r *apikeys) Get(ctx context.Context, id uuid.UUID) (_ *registry.APIKey, err error) {
	defer mon.Task()(&ctx)(&err)
	var key registry.APIKey
	err = sqlx.GetContext(ctx, r.q, &key, r.rebind(`
		SELECT `+apiKeyColumns+` FROM api_keys WHERE id = ?`), id)
	if err != nil {
		return nil, r.convert(err)
	}
	return &key, nil
}

func (r *apikeys) GetByPrefix(ctx context.Context, prefix string) (_ *registry.APIKey, err error) {
	defer mon.Task()(&ctx)(&err)
	var key registry.APIKey
	err = sqlx.GetContext(ctx, r.q, &key, r.rebind(`
		SELECT `+apiKeyColumns+` FROM api_keys WHERE key_prefix = ?`), prefix)
	if err != nil {
		return nil, r.convert(err)
	}
	return &key, nil
}

func (r *apikeys) ListByTeam(ctx context.Context, teamID uuid.UUID) (_ []registry.APIKey, err error) {
	defer mon.Task()(&ctx)(&err)
	var out []registry.APIKey
	err = sqlx.SelectContext(ctx, r.q, &out, r.rebind(`
		SELECT `+apiKeyColumns+` FROM api_keys
		WHERE team_id = ? ORDER BY created_at DESC`), teamID)
	if err != nil {
		return nil, r.convert(err)
	}
	return out, nil
}

func (r *apikeys) Delete(ctx context.Context, id uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)
	res, err := r.q.ExecContext(ctx, r.rebind(`DELETE FROM api_keys WHERE id = ?`), id)
	if err != nil {
		return r.convert(err)
	}
	return r.mustAffect(res, "api key %s", id)
}

func (r *apikeys) UpdateLastUsed(ctx context.Context, id uuid.UUID, at time.Time) (err error) {
	defer mon.Task()(&ctx)(&err)
	_, err = r.q.ExecContext(ctx, r.rebind(`
		UPDATE api_keys SET last_used_at = ? WHERE id = ?`), at.UTC(), id)
	return r.convert(err)
}
