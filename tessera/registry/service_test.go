// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package registry_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tessera.io/tessera/tessera/registry"
)

func TestValidateFQN(t *testing.T) {
	for _, ok := range []string{"warehouse.analytics.users", "a.b", "_x.y_1"} {
		assert.NoError(t, registry.ValidateFQN(ok), ok)
	}
	for _, bad := range []string{"single", "", "a.", ".b", "a..b", "1a.b", "a.b-c", "a b.c"} {
		err := registry.ValidateFQN(bad)
		require.Error(t, err, bad)
		assert.True(t, registry.ErrValidation.Has(err))
	}
}

func TestScopes(t *testing.T) {
	s := registry.Scopes{registry.ScopeRead}
	assert.True(t, s.Has(registry.ScopeRead))
	assert.False(t, s.Has(registry.ScopeWrite))

	admin := registry.Scopes{registry.ScopeAdmin}
	assert.True(t, admin.Has(registry.ScopeRead))
	assert.True(t, admin.Has(registry.ScopeWrite))
	assert.True(t, admin.Has(registry.ScopeAdmin))
}

func TestScopesRoundTrip(t *testing.T) {
	s := registry.Scopes{registry.ScopeRead, registry.ScopeWrite}
	v, err := s.Value()
	require.NoError(t, err)
	assert.Equal(t, "read,write", v)

	var out registry.Scopes
	require.NoError(t, out.Scan("read,write"))
	assert.Equal(t, s, out)

	require.NoError(t, out.Scan(""))
	assert.Empty(t, out)
}

func TestSessionScopes(t *testing.T) {
	assert.True(t, registry.RoleAdmin.SessionScopes().Has(registry.ScopeAdmin))
	assert.True(t, registry.RoleTeamAdmin.SessionScopes().Has(registry.ScopeWrite))
	assert.False(t, registry.RoleTeamAdmin.SessionScopes().Has(registry.ScopeAdmin))
	assert.False(t, registry.RoleUser.SessionScopes().Has(registry.ScopeWrite))
}

func TestKeyHashRoundTrip(t *testing.T) {
	hash, err := registry.HashKey("tess_live_secret")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$"))

	ok, err := registry.VerifyKeyHash(hash, "tess_live_secret")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = registry.VerifyKeyHash(hash, "tess_live_wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = registry.VerifyKeyHash("not-a-hash", "x")
	assert.Error(t, err)
}
