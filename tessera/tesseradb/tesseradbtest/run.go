// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

// Package tesseradbtest runs tests against a migrated database.
// TESSERA_TEST_DATABASE selects the backend; without it tests use an
// in-memory SQLite database.
package tesseradbtest

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tessera.io/tessera/tessera/registry"
	"tessera.io/tessera/tessera/tesseradb"
)

// Run opens a fresh migrated database and calls fn with it.
func Run(t *testing.T, fn func(ctx context.Context, t *testing.T, db registry.DB)) {
	t.Helper()
	ctx := context.Background()

	databaseURL := os.Getenv("TESSERA_TEST_DATABASE")
	if databaseURL == "" {
		databaseURL = "sqlite://file::memory:?_fk=on"
	}

	db, err := tesseradb.Open(ctx, zaptest.NewLogger(t), databaseURL)
	require.NoError(t, err)
	defer func() { require.NoError(t, db.Close()) }()

	require.NoError(t, db.MigrateToLatest(ctx))
	fn(ctx, t, db)
}
