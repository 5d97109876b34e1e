// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package tesseradb

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"tessera.io/tessera/tessera/registry"
)

type auditEvents struct{ *core }

func (r *auditEvents) Insert(ctx context.Context, event registry.AuditEvent) (err error) {
	defer mon.Task()(&ctx)(&err)
	if event.OccurredAt.IsZero() {
		event.OccurredAt = r.now()
	}
	_, err = r.q.ExecContext(ctx, r.rebind(`
		INSERT INTO audit_events (id, entity_type, entity_id, action, actor_id, payload, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		event.ID, event.EntityType, event.EntityID, event.Action,
		event.ActorID, nullJSON(event.Payload), event.OccurredAt)
	return r.convert(err)
}

func (r *auditEvents) ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit int) (_ []registry.AuditEvent, err error) {
	defer mon.Task()(&ctx)(&err)
	var out []registry.AuditEvent
	err = sqlx.SelectContext(ctx, r.q, &out, r.rebind(`
		SELECT id, entity_type, entity_id, action, actor_id, COALESCE(payload, '') AS payload, occurred_at
		FROM audit_events
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY occurred_at DESC LIMIT ?`), entityType, entityID, limit)
	if err != nil {
		return nil, r.convert(err)
	}
	return out, nil
}

type auditRuns struct{ *core }

const auditRunColumns = "id, asset_id, contract_id, status, checks_total, checks_passed, checks_failed, triggered_by, run_id, COALESCE(details, '') AS details, run_at, created_at"

func (r *auditRuns) Insert(ctx context.Context, run registry.AuditRun) (_ *registry.AuditRun, err error) {
	defer mon.Task()(&ctx)(&err)
	run.CreatedAt = r.now()
	if run.RunAt.IsZero() {
		run.RunAt = run.CreatedAt
	}
	_, err = r.q.ExecContext(ctx, r.rebind(`
		INSERT INTO audit_runs (id, asset_id, contract_id, status, checks_total, checks_passed,
			checks_failed, triggered_by, run_id, details, run_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		run.ID, run.AssetID, run.ContractID, run.Status, run.ChecksTotal, run.ChecksPassed,
		run.ChecksFailed, run.TriggeredBy, run.RunID, nullJSON(run.Details),
		run.RunAt, run.CreatedAt)
	if err != nil {
		return nil, r.convert(err)
	}
	return &run, nil
}

func (r *auditRuns) ListByAsset(ctx context.Context, assetID uuid.UUID, opts registry.ListAuditRunsOptions) (_ []registry.AuditRun, err error) {
	defer mon.Task()(&ctx)(&err)
	query := `SELECT ` + auditRunColumns + ` FROM audit_runs WHERE asset_id = ?`
	args := []interface{}{assetID}
	if opts.Status != nil {
		query += ` AND status = ?`
		args = append(args, *opts.Status)
	}
	if opts.TriggeredBy != "" {
		query += ` AND triggered_by = ?`
		args = append(args, opts.TriggeredBy)
	}
	query += ` ORDER BY run_at DESC LIMIT ?`
	args = append(args, opts.Limit)

	var out []registry.AuditRun
	if err := sqlx.SelectContext(ctx, r.q, &out, r.rebind(query), args...); err != nil {
		return nil, r.convert(err)
	}
	return out, nil
}
