// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package api

import (
	"context"

	"github.com/google/uuid"

	"tessera.io/tessera/tessera/registry"
)

type contextKey int

const (
	requestIDKey contextKey = iota
	credentialsKey
)

// WithRequestID stores the request id for log joining.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id, or "" outside a request.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Credentials is the authenticated caller attached to a request.
type Credentials struct {
	TeamID uuid.UUID
	UserID *uuid.UUID
	Scopes registry.Scopes
	// Bootstrap marks the operator key and the AUTH_DISABLED dev mode;
	// both bypass team-ownership checks.
	Bootstrap bool
}

// Admin reports whether the caller holds the admin scope.
func (c *Credentials) Admin() bool {
	return c.Bootstrap || c.Scopes.Has(registry.ScopeAdmin)
}

// WithCredentials attaches the caller to the context.
func WithCredentials(ctx context.Context, creds *Credentials) context.Context {
	return context.WithValue(ctx, credentialsKey, creds)
}

// GetCredentials returns the caller, or nil when auth is disabled for
// the route.
func GetCredentials(ctx context.Context) *Credentials {
	creds, _ := ctx.Value(credentialsKey).(*Credentials)
	return creds
}

// RequireScope fails unless the caller holds the scope.
func RequireScope(ctx context.Context, scope registry.Scope) error {
	creds := GetCredentials(ctx)
	if creds == nil {
		return ErrAuth.New("authentication required")
	}
	if creds.Bootstrap || creds.Scopes.Has(scope) {
		return nil
	}
	return registry.ErrForbidden.New("scope %q required", scope)
}

// RequireOwner fails unless the caller is an admin or belongs to the
// owning team.
func RequireOwner(ctx context.Context, ownerTeamID uuid.UUID) error {
	creds := GetCredentials(ctx)
	if creds == nil {
		return ErrAuth.New("authentication required")
	}
	if creds.Admin() || creds.TeamID == ownerTeamID {
		return nil
	}
	return registry.ErrForbidden.New("only the owning team may do this")
}

// ActorID returns the acting user for audit rows, when known.
func ActorID(ctx context.Context) *uuid.UUID {
	if creds := GetCredentials(ctx); creds != nil {
		return creds.UserID
	}
	return nil
}
