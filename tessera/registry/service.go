// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package registry

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"
)

// KeyPrefix is the public prefix of every issued API key.
const KeyPrefix = "tess_live_"

// Service exposes registry operations: team, asset, registration and
// dependency lifecycle, API key management, and audit history.
//
// architecture: Service
type Service struct {
	log   *zap.Logger
	store DB
	nowFn func() time.Time
}

// NewService creates a registry service.
func NewService(log *zap.Logger, store DB) *Service {
	return &Service{log: log, store: store, nowFn: time.Now}
}

// TestSetNow overrides the clock, for tests.
func (s *Service) TestSetNow(nowFn func() time.Time) { s.nowFn = nowFn }

func (s *Service) audit(ctx context.Context, tx DB, entityType string, entityID uuid.UUID, action string, actorID *uuid.UUID, payload interface{}) error {
	var raw json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return Error.Wrap(err)
		}
		raw = encoded
	}
	return tx.AuditEvents().Insert(ctx, AuditEvent{
		ID:         uuid.New(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		ActorID:    actorID,
		Payload:    raw,
		OccurredAt: s.nowFn().UTC(),
	})
}

// CreateTeam creates a team and audits the creation.
func (s *Service) CreateTeam(ctx context.Context, name, description string, actorID *uuid.UUID) (team *Team, err error) {
	defer mon.Task()(&ctx)(&err)
	if strings.TrimSpace(name) == "" {
		return nil, ErrValidation.New("team name is required")
	}
	err = WithTx(ctx, s.store, func(tx DBTx) error {
		team, err = tx.Teams().Insert(ctx, Team{ID: uuid.New(), Name: name, Description: description})
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, "team", team.ID, "team.created", actorID, map[string]string{"name": name})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("team created", zap.Stringer("id", team.ID), zap.String("name", name))
	return team, nil
}

// GetTeam returns a live team.
func (s *Service) GetTeam(ctx context.Context, id uuid.UUID) (_ *Team, err error) {
	defer mon.Task()(&ctx)(&err)
	return s.store.Teams().Get(ctx, id)
}

// ListTeams returns live teams.
func (s *Service) ListTeams(ctx context.Context, limit, offset int) (_ []Team, err error) {
	defer mon.Task()(&ctx)(&err)
	return s.store.Teams().List(ctx, normalizeLimit(limit), offset)
}

// UpdateTeam applies a partial update and audits it.
func (s *Service) UpdateTeam(ctx context.Context, id uuid.UUID, req UpdateTeamRequest, actorID *uuid.UUID) (team *Team, err error) {
	defer mon.Task()(&ctx)(&err)
	err = WithTx(ctx, s.store, func(tx DBTx) error {
		team, err = tx.Teams().Update(ctx, id, req)
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, "team", id, "team.updated", actorID, req)
	})
	if err != nil {
		return nil, err
	}
	return team, nil
}

// DeleteTeam soft-deletes a team, preserving audit joins.
func (s *Service) DeleteTeam(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)
	return WithTx(ctx, s.store, func(tx DBTx) error {
		if _, err := tx.Teams().Get(ctx, id); err != nil {
			return err
		}
		if err := tx.Teams().SoftDelete(ctx, id); err != nil {
			return err
		}
		return s.audit(ctx, tx, "team", id, "team.deleted", actorID, nil)
	})
}

// CreateAsset creates an asset after validating its fqn and owner.
func (s *Service) CreateAsset(ctx context.Context, asset Asset, actorID *uuid.UUID) (created *Asset, err error) {
	defer mon.Task()(&ctx)(&err)
	if err := ValidateFQN(asset.FQN); err != nil {
		return nil, err
	}
	if asset.Environment == "" {
		asset.Environment = "production"
	}
	err = WithTx(ctx, s.store, func(tx DBTx) error {
		if _, err := tx.Teams().Get(ctx, asset.OwnerTeamID); err != nil {
			return err
		}
		asset.ID = uuid.New()
		created, err = tx.Assets().Insert(ctx, asset)
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, "asset", created.ID, "asset.created", actorID, map[string]string{
			"fqn": asset.FQN, "environment": asset.Environment,
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("asset created", zap.Stringer("id", created.ID), zap.String("fqn", created.FQN))
	return created, nil
}

// GetAsset returns a live asset.
func (s *Service) GetAsset(ctx context.Context, id uuid.UUID) (_ *Asset, err error) {
	defer mon.Task()(&ctx)(&err)
	return s.store.Assets().Get(ctx, id)
}

// ListAssets returns live assets matching the filter.
func (s *Service) ListAssets(ctx context.Context, opts ListAssetsOptions) (_ []Asset, err error) {
	defer mon.Task()(&ctx)(&err)
	opts.Limit = normalizeLimit(opts.Limit)
	return s.store.Assets().List(ctx, opts)
}

// UpdateAsset applies a partial update; only the owning team or an
// admin may call it (enforced by the HTTP layer via RequireOwner).
func (s *Service) UpdateAsset(ctx context.Context, id uuid.UUID, req UpdateAssetRequest, actorID *uuid.UUID) (asset *Asset, err error) {
	defer mon.Task()(&ctx)(&err)
	err = WithTx(ctx, s.store, func(tx DBTx) error {
		asset, err = tx.Assets().Update(ctx, id, req)
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, "asset", id, "asset.updated", actorID, req)
	})
	if err != nil {
		return nil, err
	}
	return asset, nil
}

// DeleteAsset soft-deletes an asset.
func (s *Service) DeleteAsset(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)
	return WithTx(ctx, s.store, func(tx DBTx) error {
		if _, err := tx.Assets().Get(ctx, id); err != nil {
			return err
		}
		if err := tx.Assets().SoftDelete(ctx, id); err != nil {
			return err
		}
		return s.audit(ctx, tx, "asset", id, "asset.deleted", actorID, nil)
	})
}

// DeclareDependency records an explicit lineage edge.
func (s *Service) DeclareDependency(ctx context.Context, dep Dependency, actorID *uuid.UUID) (created *Dependency, err error) {
	defer mon.Task()(&ctx)(&err)
	if !ValidDependencyType(dep.DependencyType) {
		return nil, ErrValidation.New("unknown dependency type %q", dep.DependencyType)
	}
	if dep.DependentAssetID == dep.DependencyAssetID {
		return nil, ErrValidation.New("an asset cannot depend on itself")
	}
	err = WithTx(ctx, s.store, func(tx DBTx) error {
		if _, err := tx.Assets().Get(ctx, dep.DependentAssetID); err != nil {
			return err
		}
		if _, err := tx.Assets().Get(ctx, dep.DependencyAssetID); err != nil {
			return err
		}
		dep.ID = uuid.New()
		created, err = tx.Dependencies().Insert(ctx, dep)
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, "dependency", created.ID, "dependency.created", actorID, nil)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Register declares a consumer team's dependence on a contract.
func (s *Service) Register(ctx context.Context, contractID, consumerTeamID uuid.UUID, pinnedVersion *string, actorID *uuid.UUID) (reg *Registration, err error) {
	defer mon.Task()(&ctx)(&err)
	err = WithTx(ctx, s.store, func(tx DBTx) error {
		if _, err := tx.Contracts().Get(ctx, contractID); err != nil {
			return err
		}
		if _, err := tx.Teams().Get(ctx, consumerTeamID); err != nil {
			return err
		}
		reg, err = tx.Registrations().Insert(ctx, Registration{
			ID:             uuid.New(),
			ContractID:     contractID,
			ConsumerTeamID: consumerTeamID,
			PinnedVersion:  pinnedVersion,
			Status:         RegistrationActive,
		})
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, "registration", reg.ID, "registration.created", actorID, map[string]string{
			"contract_id": contractID.String(), "consumer_team_id": consumerTeamID.String(),
		})
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

// GetRegistration returns a live registration.
func (s *Service) GetRegistration(ctx context.Context, id uuid.UUID) (_ *Registration, err error) {
	defer mon.Task()(&ctx)(&err)
	return s.store.Registrations().Get(ctx, id)
}

// UpdateRegistration applies a partial update and audits it.
func (s *Service) UpdateRegistration(ctx context.Context, id uuid.UUID, req UpdateRegistrationRequest, actorID *uuid.UUID) (reg *Registration, err error) {
	defer mon.Task()(&ctx)(&err)
	err = WithTx(ctx, s.store, func(tx DBTx) error {
		reg, err = tx.Registrations().Update(ctx, id, req)
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, "registration", id, "registration.updated", actorID, nil)
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

// Unregister soft-deletes a registration; it stops counting toward
// proposal completion immediately.
func (s *Service) Unregister(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)
	return WithTx(ctx, s.store, func(tx DBTx) error {
		if _, err := tx.Registrations().Get(ctx, id); err != nil {
			return err
		}
		if err := tx.Registrations().SoftDelete(ctx, id); err != nil {
			return err
		}
		return s.audit(ctx, tx, "registration", id, "registration.deleted", actorID, nil)
	})
}

// IssueAPIKey mints a new key for a team. The plaintext is returned
// exactly once; only its argon2id hash is stored.
func (s *Service) IssueAPIKey(ctx context.Context, teamID uuid.UUID, name string, scopes Scopes, expiresAt *time.Time) (plaintext string, key *APIKey, err error) {
	defer mon.Task()(&ctx)(&err)
	if len(scopes) == 0 {
		scopes = Scopes{ScopeRead}
	}
	for _, scope := range scopes {
		switch scope {
		case ScopeRead, ScopeWrite, ScopeAdmin:
		default:
			return "", nil, ErrValidation.New("unknown scope %q", scope)
		}
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", nil, Error.Wrap(err)
	}
	plaintext = KeyPrefix + hex.EncodeToString(secret)
	prefix := plaintext[:len(KeyPrefix)+8]

	hash, err := HashKey(plaintext)
	if err != nil {
		return "", nil, err
	}

	err = WithTx(ctx, s.store, func(tx DBTx) error {
		if _, err := tx.Teams().Get(ctx, teamID); err != nil {
			return err
		}
		key, err = tx.APIKeys().Insert(ctx, APIKey{
			ID:        uuid.New(),
			KeyHash:   hash,
			KeyPrefix: prefix,
			Name:      name,
			TeamID:    teamID,
			Scopes:    scopes,
			ExpiresAt: expiresAt,
		})
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, "api_key", key.ID, "api_key.created", nil, map[string]string{"name": name})
	})
	if err != nil {
		return "", nil, err
	}
	return plaintext, key, nil
}

// VerifyAPIKey resolves a bearer token to its key and owning team.
// Expired keys and keys of soft-deleted teams are rejected.
func (s *Service) VerifyAPIKey(ctx context.Context, raw string) (_ *APIKey, _ *Team, err error) {
	defer mon.Task()(&ctx)(&err)
	if !strings.HasPrefix(raw, KeyPrefix) || len(raw) < len(KeyPrefix)+8 {
		return nil, nil, ErrForbidden.New("malformed API key")
	}
	key, err := s.store.APIKeys().GetByPrefix(ctx, raw[:len(KeyPrefix)+8])
	if err != nil {
		return nil, nil, ErrForbidden.New("invalid API key")
	}
	ok, err := VerifyKeyHash(key.KeyHash, raw)
	if err != nil || !ok {
		return nil, nil, ErrForbidden.New("invalid API key")
	}
	if key.Expired(s.nowFn()) {
		return nil, nil, ErrForbidden.New("expired API key")
	}
	team, err := s.store.Teams().Get(ctx, key.TeamID)
	if err != nil {
		return nil, nil, ErrForbidden.New("API key team is not active")
	}
	if err := s.store.APIKeys().UpdateLastUsed(ctx, key.ID, s.nowFn().UTC()); err != nil {
		s.log.Debug("failed to stamp key usage", zap.Error(err))
	}
	return key, team, nil
}

// RevokeAPIKey hard-deletes a key.
func (s *Service) RevokeAPIKey(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)
	return WithTx(ctx, s.store, func(tx DBTx) error {
		if err := tx.APIKeys().Delete(ctx, id); err != nil {
			return err
		}
		return s.audit(ctx, tx, "api_key", id, "api_key.revoked", actorID, nil)
	})
}

// RecordAuditRun ingests an external quality-tool report.
func (s *Service) RecordAuditRun(ctx context.Context, run AuditRun) (created *AuditRun, err error) {
	defer mon.Task()(&ctx)(&err)
	switch run.Status {
	case AuditPassed, AuditFailed, AuditPartial:
	default:
		return nil, ErrValidation.New("unknown audit status %q", run.Status)
	}
	err = WithTx(ctx, s.store, func(tx DBTx) error {
		if _, err := tx.Assets().Get(ctx, run.AssetID); err != nil {
			return err
		}
		run.ID = uuid.New()
		if run.RunAt.IsZero() {
			run.RunAt = s.nowFn().UTC()
		}
		created, err = tx.AuditRuns().Insert(ctx, run)
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, "asset", run.AssetID, "audit_run.recorded", nil, map[string]interface{}{
			"status": run.Status, "triggered_by": run.TriggeredBy,
		})
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ListAuditRuns returns an asset's audit history.
func (s *Service) ListAuditRuns(ctx context.Context, assetID uuid.UUID, opts ListAuditRunsOptions) (_ []AuditRun, err error) {
	defer mon.Task()(&ctx)(&err)
	if _, err := s.store.Assets().Get(ctx, assetID); err != nil {
		return nil, err
	}
	opts.Limit = normalizeLimit(opts.Limit)
	return s.store.AuditRuns().ListByAsset(ctx, assetID, opts)
}

// SearchResults groups matches by entity kind.
type SearchResults struct {
	Teams     []Team     `json:"teams,omitempty"`
	Assets    []Asset    `json:"assets,omitempty"`
	Contracts []Contract `json:"contracts,omitempty"`
}

// Search runs a substring search across the requested entity kinds.
// An empty types list searches everything.
func (s *Service) Search(ctx context.Context, query string, limit int, types []string) (results SearchResults, err error) {
	defer mon.Task()(&ctx)(&err)
	if strings.TrimSpace(query) == "" {
		return results, ErrValidation.New("query is required")
	}
	limit = normalizeLimit(limit)
	wanted := map[string]bool{}
	for _, t := range types {
		wanted[t] = true
	}
	all := len(wanted) == 0
	if all || wanted["teams"] {
		if results.Teams, err = s.store.Teams().Search(ctx, query, limit); err != nil {
			return results, err
		}
	}
	if all || wanted["assets"] {
		if results.Assets, err = s.store.Assets().Search(ctx, query, limit); err != nil {
			return results, err
		}
	}
	if all || wanted["contracts"] {
		if results.Contracts, err = s.store.Contracts().Search(ctx, query, limit); err != nil {
			return results, err
		}
	}
	return results, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 500 {
		return 500
	}
	return limit
}

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// HashKey derives an argon2id hash in the standard encoded form.
func HashKey(plaintext string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", Error.Wrap(err)
	}
	digest := argon2.IDKey([]byte(plaintext), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest)), nil
}

// VerifyKeyHash checks plaintext against an encoded argon2id hash in
// constant time.
func VerifyKeyHash(encoded, plaintext string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, errs.New("malformed key hash")
	}
	var memory, timeCost uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &timeCost, &threads); err != nil {
		return false, errs.New("malformed key hash params")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, errs.Wrap(err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, errs.Wrap(err)
	}
	got := argon2.IDKey([]byte(plaintext), salt, timeCost, memory, threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
