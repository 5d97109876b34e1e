// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

// Package tesseradb implements the registry storage interfaces on top
// of PostgreSQL (production) and SQLite (tests, small deployments).
// Queries are written with ? placeholders and rebound per driver; the
// only dialect forks are row locking and JSON containment.
package tesseradb

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"tessera.io/tessera/tessera/registry"
)

var mon = monkit.Package()

// Error is the default error class for the tesseradb package.
var Error = errs.Class("tesseradb")

//go:embed migrations/*.sql
var migrations embed.FS

const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite3"
)

// DB implements registry.DB on a sqlx connection pool.
//
// architecture: Master Database
type DB struct {
	*core
	log *zap.Logger
	db  *sqlx.DB
}

// core carries the query target shared by the pool and transaction
// views. q is the pool outside transactions and the tx inside them.
type core struct {
	q      sqlx.ExtContext
	driver string
	nowFn  func() time.Time
}

// Open connects to the database named by databaseURL. postgres:// and
// postgresql:// URLs use lib/pq; sqlite:// URLs and bare file paths
// use the sqlite driver.
func Open(ctx context.Context, log *zap.Logger, databaseURL string) (*DB, error) {
	driver, dsn, err := parseURL(databaseURL)
	if err != nil {
		return nil, err
	}
	conn, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if driver == driverSQLite {
		// SQLite serializes writers; a single connection avoids
		// SQLITE_BUSY under concurrent transactions.
		conn.SetMaxOpenConns(1)
	}
	if err := conn.PingContext(ctx); err != nil {
		return nil, Error.Wrap(errs.Combine(err, conn.Close()))
	}
	log.Debug("database opened", zap.String("driver", driver))
	return &DB{
		core: &core{q: conn, driver: driver, nowFn: time.Now},
		log:  log,
		db:   conn,
	}, nil
}

func parseURL(databaseURL string) (driver, dsn string, err error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"),
		strings.HasPrefix(databaseURL, "postgresql://"):
		return driverPostgres, databaseURL, nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return driverSQLite, strings.TrimPrefix(databaseURL, "sqlite://"), nil
	case databaseURL == "":
		return "", "", Error.New("database URL is required")
	default:
		return driverSQLite, databaseURL, nil
	}
}

// MigrateToLatest applies pending schema migrations.
func (db *DB) MigrateToLatest(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	sources, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return Error.Wrap(err)
	}
	provider, err := goose.NewProvider(gooseDialect(db.driver), db.db.DB, sources)
	if err != nil {
		return Error.Wrap(err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return Error.Wrap(err)
	}
	for _, r := range results {
		db.log.Info("migration applied", zap.String("source", r.Source.Path))
	}
	return nil
}

func gooseDialect(driver string) goose.Dialect {
	if driver == driverPostgres {
		return goose.DialectPostgres
	}
	return goose.DialectSQLite3
}

// Ping verifies store reachability.
func (db *DB) Ping(ctx context.Context) error {
	return Error.Wrap(db.db.PingContext(ctx))
}

// Close releases the connection pool.
func (db *DB) Close() error {
	return Error.Wrap(db.db.Close())
}

// BeginTx starts a transaction scoped to the returned view.
func (db *DB) BeginTx(ctx context.Context) (registry.DBTx, error) {
	tx, err := db.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &Tx{
		core: &core{q: tx, driver: db.driver, nowFn: db.nowFn},
		tx:   tx,
	}, nil
}

// Tx is a transaction-scoped view of the database.
type Tx struct {
	*core
	tx        *sqlx.Tx
	savepoint int
}

// Savepoint runs fn inside a nested scope so a failure rolls back only
// that step.
func (t *Tx) Savepoint(ctx context.Context, fn func(registry.DB) error) error {
	t.savepoint++
	name := fmt.Sprintf("sp_%d", t.savepoint)
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return Error.Wrap(err)
	}
	if err := fn(t); err != nil {
		if _, rerr := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rerr != nil {
			return Error.Wrap(errs.Combine(err, rerr))
		}
		return err
	}
	_, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
	return Error.Wrap(err)
}

// BeginTx on a transaction is invalid.
func (t *Tx) BeginTx(ctx context.Context) (registry.DBTx, error) {
	return nil, Error.New("already in a transaction")
}

// MigrateToLatest on a transaction is invalid.
func (t *Tx) MigrateToLatest(ctx context.Context) error {
	return Error.New("cannot migrate inside a transaction")
}

// Ping on a transaction is a no-op.
func (t *Tx) Ping(ctx context.Context) error { return nil }

// Close on a transaction is a no-op; use Commit or Rollback.
func (t *Tx) Close() error { return nil }

// Commit commits the transaction.
func (t *Tx) Commit() error { return Error.Wrap(t.tx.Commit()) }

// Rollback aborts the transaction.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return Error.Wrap(err)
}

// Repository getters. They are cheap value wrappers; no caching needed.

func (c *core) Teams() registry.Teams                         { return &teams{c} }
func (c *core) Users() registry.Users                         { return &users{c} }
func (c *core) Assets() registry.Assets                       { return &assets{c} }
func (c *core) Dependencies() registry.Dependencies           { return &dependencies{c} }
func (c *core) APIKeys() registry.APIKeys                     { return &apikeys{c} }
func (c *core) Contracts() registry.Contracts                 { return &contracts{c} }
func (c *core) Registrations() registry.Registrations         { return &registrations{c} }
func (c *core) Proposals() registry.Proposals                 { return &proposals{c} }
func (c *core) Acknowledgments() registry.Acknowledgments     { return &acknowledgments{c} }
func (c *core) AuditEvents() registry.AuditEvents             { return &auditEvents{c} }
func (c *core) AuditRuns() registry.AuditRuns                 { return &auditRuns{c} }
func (c *core) WebhookDeliveries() registry.WebhookDeliveries { return &webhookDeliveries{c} }

// rebind converts ? placeholders to the driver's syntax.
func (c *core) rebind(query string) string {
	if c.driver == driverPostgres {
		return sqlx.Rebind(sqlx.DOLLAR, query)
	}
	return query
}

// forUpdate returns the row-lock suffix. SQLite transactions already
// serialize writers, so the suffix is empty there.
func (c *core) forUpdate() string {
	if c.driver == driverPostgres {
		return " FOR UPDATE"
	}
	return ""
}

func (c *core) now() time.Time {
	return c.nowFn().UTC().Truncate(time.Microsecond)
}

// convert maps driver errors onto the registry error classes.
func (c *core) convert(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return registry.ErrNotFound.Wrap(err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return registry.ErrConflict.Wrap(err)
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) &&
		(liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return registry.ErrConflict.Wrap(err)
	}
	return Error.Wrap(err)
}

// nullJSON maps an empty JSON document to NULL. Selects COALESCE
// these columns back to '' because database/sql cannot scan NULL into
// a json.RawMessage field; an empty document stays len-0 either way.
func nullJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// jsonOrEmptyArray maps an empty JSON document to a [] literal for
// NOT NULL array columns.
func jsonOrEmptyArray(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("[]")
	}
	return []byte(raw)
}

// mustAffect converts a zero-row update into ErrNotFound.
func (c *core) mustAffect(res sql.Result, format string, args ...interface{}) error {
	n, err := res.RowsAffected()
	if err != nil {
		return Error.Wrap(err)
	}
	if n == 0 {
		return registry.ErrNotFound.New(format, args...)
	}
	return nil
}

// escapeLike neutralizes LIKE wildcards in user-supplied substrings.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

// in expands an IN clause and rebinds it for the driver.
func (c *core) in(query string, args ...interface{}) (string, []interface{}, error) {
	expanded, list, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, Error.Wrap(err)
	}
	return c.rebind(expanded), list, nil
}
