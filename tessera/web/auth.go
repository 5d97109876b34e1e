// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package web

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tessera.io/tessera/tessera/registry"
	"tessera.io/tessera/tessera/web/api"
)

// SessionCookieName carries the signed browser session.
const SessionCookieName = "tessera_session"

// authenticator resolves request credentials: team API keys, the
// bootstrap key, or a signed session cookie.
type authenticator struct {
	log     *zap.Logger
	config  Config
	service *registry.Service
	store   registry.DB
}

func newAuthenticator(log *zap.Logger, config Config, service *registry.Service, store registry.DB) *authenticator {
	return &authenticator{log: log, config: config, service: service, store: store}
}

func (a *authenticator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		creds, err := a.resolve(r)
		if err != nil {
			api.ServeError(a.log, w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(api.WithCredentials(r.Context(), creds)))
	})
}

func (a *authenticator) resolve(r *http.Request) (*api.Credentials, error) {
	if a.config.AuthDisabled {
		return &api.Credentials{Bootstrap: true}, nil
	}

	if token := bearerToken(r); token != "" {
		if a.config.BootstrapAPIKey != "" &&
			subtle.ConstantTimeCompare([]byte(token), []byte(a.config.BootstrapAPIKey)) == 1 {
			return &api.Credentials{Bootstrap: true}, nil
		}
		key, team, err := a.service.VerifyAPIKey(r.Context(), token)
		if err != nil {
			// Unknown, malformed, expired and revoked keys are all
			// authentication failures, not authorization ones.
			if registry.ErrNotFound.Has(err) || registry.ErrValidation.Has(err) || registry.ErrForbidden.Has(err) {
				mon.Counter("auth_rejected").Inc(1)
				return nil, api.ErrAuth.New("invalid API key")
			}
			return nil, Error.Wrap(err)
		}
		return &api.Credentials{TeamID: team.ID, Scopes: key.Scopes}, nil
	}

	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return a.resolveSession(r, cookie.Value)
	}

	return nil, api.ErrAuth.New("missing credentials")
}

// resolveSession verifies a "<user id>.<hmac>" cookie and maps the
// user's role to scopes.
func (a *authenticator) resolveSession(r *http.Request, value string) (*api.Credentials, error) {
	if a.config.SessionSecret == "" {
		return nil, api.ErrAuth.New("session auth is not enabled")
	}
	rawID, signature, found := strings.Cut(value, ".")
	if !found || !verifySession(a.config.SessionSecret, rawID, signature) {
		mon.Counter("auth_rejected").Inc(1)
		return nil, api.ErrAuth.New("invalid session")
	}
	userID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, api.ErrAuth.New("invalid session")
	}
	user, err := a.store.Users().Get(r.Context(), userID)
	if err != nil {
		if registry.ErrNotFound.Has(err) {
			return nil, api.ErrAuth.New("session user is gone")
		}
		return nil, Error.Wrap(err)
	}
	creds := &api.Credentials{UserID: &user.ID, Scopes: user.Role.SessionScopes()}
	if user.TeamID != nil {
		creds.TeamID = *user.TeamID
	}
	return creds, nil
}

// SignSession produces the session cookie value for a user id.
func SignSession(secret string, userID uuid.UUID) string {
	return userID.String() + "." + sessionMAC(secret, userID.String())
}

func verifySession(secret, rawID, signature string) bool {
	return hmac.Equal([]byte(sessionMAC(secret, rawID)), []byte(signature))
}

func sessionMAC(secret, rawID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(rawID))
	return hex.EncodeToString(mac.Sum(nil))
}
