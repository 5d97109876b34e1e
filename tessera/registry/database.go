// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package registry

import (
	"context"

	"github.com/zeebo/errs"
)

// DB aggregates every repository the registry domain uses.
//
// architecture: Master Database
type DB interface {
	Teams() Teams
	Users() Users
	Assets() Assets
	Dependencies() Dependencies
	APIKeys() APIKeys
	Contracts() Contracts
	Registrations() Registrations
	Proposals() Proposals
	Acknowledgments() Acknowledgments
	AuditEvents() AuditEvents
	AuditRuns() AuditRuns
	WebhookDeliveries() WebhookDeliveries

	// BeginTx starts a transaction scoped to the returned DBTx.
	BeginTx(ctx context.Context) (DBTx, error)
	// MigrateToLatest applies pending schema migrations.
	MigrateToLatest(ctx context.Context) error
	// Ping verifies store reachability.
	Ping(ctx context.Context) error
	// Close releases the connection pool.
	Close() error
}

// DBTx is a transaction-scoped view of the database. Savepoint runs fn
// inside a nested scope so a failure rolls back only that step.
type DBTx interface {
	DB

	Savepoint(ctx context.Context, fn func(DB) error) error
	Commit() error
	Rollback() error
}

// WithTx runs fn inside a transaction, committing on clean return and
// rolling back on error.
func WithTx(ctx context.Context, db DB, fn func(tx DBTx) error) (err error) {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() {
		if err != nil {
			err = Error.Wrap(errs.Combine(err, tx.Rollback()))
			return
		}
		err = Error.Wrap(tx.Commit())
	}()
	return fn(tx)
}
