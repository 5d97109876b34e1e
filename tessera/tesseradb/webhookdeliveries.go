// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package tesseradb

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"tessera.io/tessera/tessera/registry"
)

type webhookDeliveries struct{ *core }

const deliveryColumns = "id, event_type, payload, url, status, attempts, last_attempt_at, last_error, last_status_code, delivered_at, created_at"

func (r *webhookDeliveries) Insert(ctx context.Context, delivery registry.WebhookDelivery) (_ *registry.WebhookDelivery, err error) {
	defer mon.Task()(&ctx)(&err)
	delivery.CreatedAt = r.now()
	if delivery.Status == "" {
		delivery.Status = registry.DeliveryPending
	}
	_, err = r.q.ExecContext(ctx, r.rebind(`
		INSERT INTO webhook_deliveries (id, event_type, payload, url, status, attempts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		delivery.ID, delivery.EventType, []byte(delivery.Payload), delivery.URL,
		delivery.Status, delivery.Attempts, delivery.CreatedAt)
	if err != nil {
		return nil, r.convert(err)
	}
	return &delivery, nil
}

func (r *webhookDeliveries) Update(ctx context.Context, id uuid.UUID, req registry.UpdateDeliveryRequest) (err error) {
	defer mon.Task()(&ctx)(&err)
	res, err := r.q.ExecContext(ctx, r.rebind(`
		UPDATE webhook_deliveries
		SET status = ?, attempts = ?, last_attempt_at = ?, last_error = ?,
		    last_status_code = ?, delivered_at = ?
		WHERE id = ?`),
		req.Status, req.Attempts, req.LastAttemptAt, req.LastError,
		req.LastStatusCode, req.DeliveredAt, id)
	if err != nil {
		return r.convert(err)
	}
	return r.mustAffect(res, "delivery %s", id)
}

func (r *webhookDeliveries) List(ctx context.Context, limit int) (_ []registry.WebhookDelivery, err error) {
	defer mon.Task()(&ctx)(&err)
	var out []registry.WebhookDelivery
	err = sqlx.SelectContext(ctx, r.q, &out, r.rebind(`
		SELECT `+deliveryColumns+` FROM webhook_deliveries
		ORDER BY created_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, r.convert(err)
	}
	return out, nil
}
