// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package tesseradb

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"tessera.io/tessera/tessera/registry"
)

type acknowledgments struct{ *core }

const ackColumns = "id, proposal_id, consumer_team_id, response, migration_deadline, notes, created_at"

func (r *acknowledgments) Insert(ctx context.Context, ack registry.Acknowledgment) (_ *registry.Acknowledgment, err error) {
	defer mon.Task()(&ctx)(&err)
	ack.CreatedAt = r.now()
	_, err = r.q.ExecContext(ctx, r.rebind(`
		INSERT INTO acknowledgments (id, proposal_id, consumer_team_id, response, migration_deadline, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		ack.ID, ack.ProposalID, ack.ConsumerTeamID, ack.Response,
		ack.MigrationDeadline, ack.Notes, ack.CreatedAt)
	if err != nil {
		return nil, r.convert(err)
	}
	return &ack, nil
}

func (r *acknowledgments) GetByProposalAndTeam(ctx context.Context, proposalID, teamID uuid.UUID) (_ *registry.Acknowledgment, err error) {
	defer mon.Task()(&ctx)(&err)
	var ack registry.Acknowledgment
	err = sqlx.GetContext(ctx, r.q, &ack, r.rebind(`
		SELECT `+ackColumns+` FROM acknowledgments
		WHERE proposal_id = ? AND consumer_team_id = ?`), proposalID, teamID)
	if err != nil {
		return nil, r.convert(err)
	}
	return &ack, nil
}

func (r *acknowledgments) ListByProposal(ctx context.Context, proposalID uuid.UUID) (_ []registry.Acknowledgment, err error) {
	defer mon.Task()(&ctx)(&err)
	var out []registry.Acknowledgment
	err = sqlx.SelectContext(ctx, r.q, &out, r.rebind(`
		SELECT `+ackColumns+` FROM acknowledgments
		WHERE proposal_id = ? ORDER BY created_at`), proposalID)
	if err != nil {
		return nil, r.convert(err)
	}
	return out, nil
}
