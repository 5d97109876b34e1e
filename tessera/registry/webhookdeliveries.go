// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package registry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus is a webhook delivery lifecycle state.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// WebhookDeliveries exposes delivery-attempt storage.
//
// architecture: Database
type WebhookDeliveries interface {
	// Insert records a scheduled delivery as pending.
	Insert(ctx context.Context, delivery WebhookDelivery) (*WebhookDelivery, error)
	// Update records the outcome of a delivery.
	Update(ctx context.Context, id uuid.UUID, req UpdateDeliveryRequest) error
	// List returns deliveries, newest first.
	List(ctx context.Context, limit int) ([]WebhookDelivery, error)
}

// WebhookDelivery is one scheduled webhook send and its outcome.
type WebhookDelivery struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	EventType      string          `db:"event_type" json:"event_type"`
	Payload        json.RawMessage `db:"payload" json:"payload"`
	URL            string          `db:"url" json:"url"`
	Status         DeliveryStatus  `db:"status" json:"status"`
	Attempts       int             `db:"attempts" json:"attempts"`
	LastAttemptAt  *time.Time      `db:"last_attempt_at" json:"last_attempt_at,omitempty"`
	LastError      string          `db:"last_error" json:"last_error,omitempty"`
	LastStatusCode *int            `db:"last_status_code" json:"last_status_code,omitempty"`
	DeliveredAt    *time.Time      `db:"delivered_at" json:"delivered_at,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// UpdateDeliveryRequest carries a delivery outcome.
type UpdateDeliveryRequest struct {
	Status         DeliveryStatus
	Attempts       int
	LastAttemptAt  *time.Time
	LastError      string
	LastStatusCode *int
	DeliveredAt    *time.Time
}
