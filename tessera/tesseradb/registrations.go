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

type registrations struct{ *core }

const registrationColumns = "id, contract_id, consumer_team_id, pinned_version, status, created_at, updated_at, deleted_at"

func (r *registrations) Insert(ctx context.Context, reg registry.Registration) (_ *registry.Registration, err error) {
	defer mon.Task()(&ctx)(&err)
	now := r.now()
	reg.CreatedAt, reg.UpdatedAt = now, now
	if reg.Status == "" {
		reg.Status = registry.RegistrationActive
	}
	_, err = r.q.ExecContext(ctx, r.rebind(`
		INSERT INTO registrations (id, contract_id, consumer_team_id, pinned_version, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		reg.ID, reg.ContractID, reg.ConsumerTeamID, reg.PinnedVersion, reg.Status,
		reg.CreatedAt, reg.UpdatedAt)
	if err != nil {
		return nil, r.convert(err)
	}
	return &reg, nil
}

func (r *registrations) Get(ctx context.Context, id uuid.UUID) (_ *registry.Registration, err error) {
	defer mon.Task()(&ctx)(&err)
	var reg registry.Registration
	err = sqlx.GetContext(ctx, r.q, &reg, r.rebind(`
		SELECT `+registrationColumns+` FROM registrations
		WHERE id = ? AND deleted_at IS NULL`), id)
	if err != nil {
		return nil, r.convert(err)
	}
	return &reg, nil
}

func (r *registrations) ListByContract(ctx context.Context, contractID uuid.UUID) (_ []registry.Registration, err error) {
	defer mon.Task()(&ctx)(&err)
	var out []registry.Registration
	err = sqlx.SelectContext(ctx, r.q, &out, r.rebind(`
		SELECT `+registrationColumns+` FROM registrations
		WHERE contract_id = ? AND deleted_at IS NULL ORDER BY created_at`), contractID)
	if err != nil {
		return nil, r.convert(err)
	}
	return out, nil
}

func (r *registrations) ListActiveWithTeams(ctx context.Context, contractIDs []uuid.UUID) (_ []registry.RegistrationWithTeam, err error) {
	defer mon.Task()(&ctx)(&err)
	if len(contractIDs) == 0 {
		return nil, nil
	}
	query, args, err := r.in(`
		SELECT r.id, r.contract_id, r.consumer_team_id, r.pinned_version, r.status,
		       r.created_at, r.updated_at, r.deleted_at,
		       t.id, t.name, t.description, t.created_at, t.updated_at, t.deleted_at
		FROM registrations r
		JOIN teams t ON t.id = r.consumer_team_id AND t.deleted_at IS NULL
		WHERE r.contract_id IN (?) AND r.deleted_at IS NULL AND r.status = 'active'`, contractIDs)
	if err != nil {
		return nil, err
	}
	rows, err := r.q.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, r.convert(err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	var out []registry.RegistrationWithTeam
	for rows.Next() {
		var rt registry.RegistrationWithTeam
		reg, team := &rt.Registration, &rt.Team
		if err := rows.Scan(&reg.ID, &reg.ContractID, &reg.ConsumerTeamID, &reg.PinnedVersion,
			&reg.Status, &reg.CreatedAt, &reg.UpdatedAt, &reg.DeletedAt,
			&team.ID, &team.Name, &team.Description, &team.CreatedAt, &team.UpdatedAt,
			&team.DeletedAt); err != nil {
			return nil, r.convert(err)
		}
		out = append(out, rt)
	}
	return out, r.convert(rows.Err())
}

func (r *registrations) Update(ctx context.Context, id uuid.UUID, req registry.UpdateRegistrationRequest) (_ *registry.Registration, err error) {
	defer mon.Task()(&ctx)(&err)
	reg, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.PinnedVersion != nil {
		reg.PinnedVersion = *req.PinnedVersion
	}
	if req.Status != nil {
		reg.Status = *req.Status
	}
	reg.UpdatedAt = r.now()
	_, err = r.q.ExecContext(ctx, r.rebind(`
		UPDATE registrations SET pinned_version = ?, status = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`),
		reg.PinnedVersion, reg.Status, reg.UpdatedAt, id)
	if err != nil {
		return nil, r.convert(err)
	}
	return reg, nil
}

func (r *registrations) SoftDelete(ctx context.Context, id uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)
	now := r.now()
	res, err := r.q.ExecContext(ctx, r.rebind(`
		UPDATE registrations SET deleted_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`), now, now, id)
	if err != nil {
		return r.convert(err)
	}
	return r.mustAffect(res, "registration %s", id)
}
