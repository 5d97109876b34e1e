// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package tesseradb

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"tessera.io/tessera/tessera/registry"
)

type users struct{ *core }

const userColumns = "id, email, name, role, team_id, created_at, updated_at, deactivated_at"

func (r *users) Insert(ctx context.Context, user registry.User) (_ *registry.User, err error) {
	defer mon.Task()(&ctx)(&err)
	now := r.now()
	user.CreatedAt, user.UpdatedAt = now, now
	if user.Role == "" {
		user.Role = registry.RoleUser
	}
	_, err = r.q.ExecContext(ctx, r.rebind(`
		INSERT INTO users (id, email, name, role, team_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		user.ID, user.Email, user.Name, user.Role, user.TeamID, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return nil, r.convert(err)
	}
	return &user, nil
}

func (r *users) Get(ctx context.Context, id uuid.UUID) (_ *registry.User, err error) {
	defer mon.Task()(&ctx)(&err)
	var user registry.User
	err = sqlx.GetContext(ctx, r.q, &user, r.rebind(`
		SELECT `+userColumns+` FROM users WHERE id = ? AND deactivated_at IS NULL`), id)
	if err != nil {
		return nil, r.convert(err)
	}
	return &user, nil
}

func (r *users) GetByEmail(ctx context.Context, email string) (_ *registry.User, err error) {
	defer mon.Task()(&ctx)(&err)
	var user registry.User
	err = sqlx.GetContext(ctx, r.q, &user, r.rebind(`
		SELECT `+userColumns+` FROM users WHERE email = ? AND deactivated_at IS NULL`), email)
	if err != nil {
		return nil, r.convert(err)
	}
	return &user, nil
}

func (r *users) ListByTeam(ctx context.Context, teamID uuid.UUID) (_ []registry.User, err error) {
	defer mon.Task()(&ctx)(&err)
	var out []registry.User
	err = sqlx.SelectContext(ctx, r.q, &out, r.rebind(`
		SELECT `+userColumns+` FROM users
		WHERE team_id = ? AND deactivated_at IS NULL ORDER BY email`), teamID)
	if err != nil {
		return nil, r.convert(err)
	}
	return out, nil
}

func (r *users) Deactivate(ctx context.Context, id uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)
	now := r.now()
	res, err := r.q.ExecContext(ctx, r.rebind(`
		UPDATE users SET deactivated_at = ?, updated_at = ?
		WHERE id = ? AND deactivated_at IS NULL`), now, now, id)
	if err != nil {
		return r.convert(err)
	}
	return r.mustAffect(res, "user %s", id)
}
