// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package tesseradb

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"tessera.io/tessera/tessera/registry"
)

type teams struct{ *core }

const teamColumns = "id, name, description, created_at, updated_at, deleted_at"

func (r *teams) Insert(ctx context.Context, team registry.Team) (_ *registry.Team, err error) {
	defer mon.Task()(&ctx)(&err)
	now := r.now()
	team.CreatedAt, team.UpdatedAt = now, now
	_, err = r.q.ExecContext(ctx, r.rebind(`
		INSERT INTO teams (id, name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`),
		team.ID, team.Name, team.Description, team.CreatedAt, team.UpdatedAt)
	if err != nil {
		return nil, r.convert(err)
	}
	return &team, nil
}

func (r *teams) Get(ctx context.Context, id uuid.UUID) (_ *registry.Team, err error) {
	defer mon.Task()(&ctx)(&err)
	var team registry.Team
	err = sqlx.GetContext(ctx, r.q, &team, r.rebind(`
		SELECT `+teamColumns+` FROM teams WHERE id = ? AND deleted_at IS NULL`), id)
	if err != nil {
		return nil, r.convert(err)
	}
	return &team, nil
}

func (r *teams) GetByName(ctx context.Context, name string) (_ *registry.Team, err error) {
	defer mon.Task()(&ctx)(&err)
	var team registry.Team
	err = sqlx.GetContext(ctx, r.q, &team, r.rebind(`
		SELECT `+teamColumns+` FROM teams WHERE name = ? AND deleted_at IS NULL`), name)
	if err != nil {
		return nil, r.convert(err)
	}
	return &team, nil
}

func (r *teams) GetAny(ctx context.Context, id uuid.UUID) (_ *registry.Team, err error) {
	defer mon.Task()(&ctx)(&err)
	var team registry.Team
	err = sqlx.GetContext(ctx, r.q, &team, r.rebind(`
		SELECT `+teamColumns+` FROM teams WHERE id = ?`), id)
	if err != nil {
		return nil, r.convert(err)
	}
	return &team, nil
}

func (r *teams) List(ctx context.Context, limit, offset int) (_ []registry.Team, err error) {
	defer mon.Task()(&ctx)(&err)
	var out []registry.Team
	err = sqlx.SelectContext(ctx, r.q, &out, r.rebind(`
		SELECT `+teamColumns+` FROM teams WHERE deleted_at IS NULL
		ORDER BY name LIMIT ? OFFSET ?`), limit, offset)
	if err != nil {
		return nil, r.convert(err)
	}
	return out, nil
}

func (r *teams) Update(ctx context.Context, id uuid.UUID, req registry.UpdateTeamRequest) (_ *registry.Team, err error) {
	defer mon.Task()(&ctx)(&err)
	team, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		team.Name = *req.Name
	}
	if req.Description != nil {
		team.Description = *req.Description
	}
	team.UpdatedAt = r.now()
	_, err = r.q.ExecContext(ctx, r.rebind(`
		UPDATE teams SET name = ?, description = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`),
		team.Name, team.Description, team.UpdatedAt, id)
	if err != nil {
		return nil, r.convert(err)
	}
	return team, nil
}

func (r *teams) SoftDelete(ctx context.Context, id uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)
	now := r.now()
	res, err := r.q.ExecContext(ctx, r.rebind(`
		UPDATE teams SET deleted_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`), now, now, id)
	if err != nil {
		return r.convert(err)
	}
	return r.mustAffect(res, "team %s", id)
}

func (r *teams) Search(ctx context.Context, query string, limit int) (_ []registry.Team, err error) {
	defer mon.Task()(&ctx)(&err)
	var out []registry.Team
	err = sqlx.SelectContext(ctx, r.q, &out, r.rebind(`
		SELECT `+teamColumns+` FROM teams
		WHERE deleted_at IS NULL AND name LIKE ? ESCAPE '\'
		ORDER BY name LIMIT ?`), "%"+escapeLike(query)+"%", limit)
	if err != nil {
		return nil, r.convert(err)
	}
	return out, nil
}
