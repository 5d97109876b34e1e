// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

// Package publisher implements the contract publishing workflow:
// classify a proposed schema against the active contract, auto-publish
// compatible changes, and gate breaking ones behind a proposal.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"tessera.io/tessera/tessera/cache"
	"tessera.io/tessera/tessera/impact"
	"tessera.io/tessera/tessera/registry"
	"tessera.io/tessera/tessera/schemadiff"
	"tessera.io/tessera/tessera/versioning"
	"tessera.io/tessera/tessera/webhooks"
)

var mon = monkit.Package()

var (
	// Error is the default error class for the publisher package.
	Error = errs.Class("publisher")
	// ErrPendingProposal is returned when a publish collides with an
	// open proposal on the same asset.
	ErrPendingProposal = errs.Class("pending proposal exists")
)

// Action is the outcome of a publish request.
type Action string

const (
	ActionPublished       Action = "published"
	ActionForcePublished  Action = "force_published"
	ActionProposalCreated Action = "proposal_created"
	ActionSkipped         Action = "skipped"
)

// Request is one contract publication.
type Request struct {
	AssetID           uuid.UUID
	Schema            json.RawMessage
	SchemaFormat      registry.SchemaFormat
	Version           string
	CompatibilityMode schemadiff.Mode
	Guarantees        json.RawMessage
	PublishedBy       uuid.UUID
	PublishedByUserID *uuid.UUID
	Force             bool
}

// Result is the outcome of one publish.
type Result struct {
	Action               Action                `json:"action"`
	Contract             *registry.Contract    `json:"contract,omitempty"`
	Proposal             *registry.Proposal    `json:"proposal,omitempty"`
	ChangeType           schemadiff.ChangeType `json:"change_type"`
	Changes              []schemadiff.Change   `json:"changes,omitempty"`
	BreakingChanges      []schemadiff.Change   `json:"breaking_changes,omitempty"`
	Suggestion           versioning.Suggestion `json:"version_suggestion"`
	Warning              string                `json:"warning,omitempty"`
	DeprecatedContractID *uuid.UUID            `json:"deprecated_contract_id,omitempty"`
}

// Service runs publishes.
//
// architecture: Service
type Service struct {
	log    *zap.Logger
	store  registry.DB
	impact *impact.Service
	notify *webhooks.Service
	cache  *cache.Cache
	nowFn  func() time.Time
}

// NewService creates a publisher.
func NewService(log *zap.Logger, store registry.DB, impactSvc *impact.Service, notify *webhooks.Service, readCache *cache.Cache) *Service {
	return &Service{log: log, store: store, impact: impactSvc, notify: notify, cache: readCache, nowFn: time.Now}
}

// normalized carries a validated request.
type normalized struct {
	Request
	doc schemadiff.Schema
}

func (s *Service) validate(req Request) (normalized, error) {
	out := normalized{Request: req}
	if req.SchemaFormat == "" {
		out.SchemaFormat = registry.FormatJSONSchema
	}
	switch out.SchemaFormat {
	case registry.FormatJSONSchema:
		doc, err := schemadiff.Parse(req.Schema)
		if err != nil {
			return out, registry.ErrValidation.Wrap(err)
		}
		out.doc = doc
	case registry.FormatAvro:
		var raw map[string]interface{}
		if err := json.Unmarshal(req.Schema, &raw); err != nil {
			return out, registry.ErrValidation.New("avro schema is not valid JSON: %v", err)
		}
		doc, err := schemadiff.FromAvro(raw)
		if err != nil {
			return out, registry.ErrValidation.Wrap(err)
		}
		encoded, err := json.Marshal(doc)
		if err != nil {
			return out, Error.Wrap(err)
		}
		out.doc = doc
		out.Schema = encoded
	default:
		return out, registry.ErrValidation.New("unknown schema format %q", req.SchemaFormat)
	}
	if req.Version != "" {
		if _, err := versioning.Parse(req.Version); err != nil {
			return out, registry.ErrValidation.Wrap(err)
		}
	}
	if req.CompatibilityMode != "" && !schemadiff.ValidMode(req.CompatibilityMode) {
		return out, registry.ErrValidation.New("unknown compatibility mode %q", req.CompatibilityMode)
	}
	if len(req.Guarantees) > 0 {
		if _, err := schemadiff.ParseGuarantees(req.Guarantees); err != nil {
			return out, registry.ErrValidation.Wrap(err)
		}
	}
	return out, nil
}

// Publish runs the single-contract workflow. The asset's current
// active contract row is locked for the duration to serialize
// concurrent publishes.
func (s *Service) Publish(ctx context.Context, req Request) (result *Result, err error) {
	defer mon.Task()(&ctx)(&err)
	norm, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	var notify func()
	err = registry.WithTx(ctx, s.store, func(tx registry.DBTx) error {
		asset, err := tx.Assets().Get(ctx, norm.AssetID)
		if err != nil {
			return err
		}
		result, notify, err = s.publishLocked(ctx, tx, asset, norm)
		return err
	})
	if err != nil {
		return nil, err
	}
	if notify != nil {
		notify()
	}
	return result, nil
}

// publishLocked runs one publish inside an open transaction. It
// returns a post-commit notification closure so webhooks never fire
// for rolled-back work.
func (s *Service) publishLocked(ctx context.Context, tx registry.DB, asset *registry.Asset, norm normalized) (*Result, func(), error) {
	if _, err := tx.Proposals().GetPendingByAsset(ctx, asset.ID); err == nil {
		return nil, nil, ErrPendingProposal.New("asset %s has a pending proposal", asset.ID)
	} else if !registry.ErrNotFound.Has(err) {
		return nil, nil, Error.Wrap(err)
	}

	current, err := tx.Contracts().GetActiveForUpdate(ctx, asset.ID)
	if err != nil && !registry.ErrNotFound.Has(err) {
		return nil, nil, Error.Wrap(err)
	}

	if current == nil {
		return s.publishFirst(ctx, tx, asset, norm)
	}
	return s.publishNext(ctx, tx, asset, current, norm)
}

func (s *Service) publishFirst(ctx context.Context, tx registry.DB, asset *registry.Asset, norm normalized) (*Result, func(), error) {
	version := versioning.Initial
	if norm.Version != "" {
		version = norm.Version
	}
	mode := norm.CompatibilityMode
	if mode == "" {
		mode = schemadiff.Backward
	}
	contract, err := s.insertActive(ctx, tx, asset, norm, version, mode, nil)
	if err != nil {
		return nil, nil, err
	}
	result := &Result{
		Action:     ActionPublished,
		Contract:   contract,
		ChangeType: schemadiff.Patch,
		Suggestion: versioning.Suggest("", true, schemadiff.Patch),
	}
	notify := func() { s.notify.ContractPublished(asset, contract, nil) }
	return result, notify, nil
}

func (s *Service) publishNext(ctx context.Context, tx registry.DB, asset *registry.Asset, current *registry.Contract, norm normalized) (*Result, func(), error) {
	currentSchema, err := current.Schema()
	if err != nil {
		return nil, nil, Error.Wrap(err)
	}
	// Diffs are pure functions of the schema pair, so repeated publishes
	// of the same document reuse the cached result.
	var changes []schemadiff.Change
	diffKey := cache.DiffKey(current.SchemaDef, norm.Schema)
	if !s.cache.GetDiff(ctx, diffKey, &changes) {
		changes = schemadiff.Diff(currentSchema, norm.doc)
		s.cache.SetDiff(ctx, diffKey, changes)
	}
	mode := norm.CompatibilityMode
	if mode == "" {
		mode = current.CompatibilityMode
	}
	compatible, breaking := schemadiff.Classify(mode, changes)
	changeType := schemadiff.TypeOf(changes)

	guaranteesChanged := !bytes.Equal(normalizeJSON(current.Guarantees), normalizeJSON(norm.Guarantees))
	if len(changes) == 0 && !guaranteesChanged {
		return &Result{
			Action:     ActionSkipped,
			Contract:   current,
			ChangeType: schemadiff.Patch,
			Suggestion: versioning.Suggestion{Version: current.Version, Reason: "No changes detected"},
		}, nil, nil
	}

	suggestion := versioning.Suggest(current.Version, compatible, changeType)
	version := suggestion.Version
	if norm.Version != "" {
		version = norm.Version
	}

	// Pre-release chains may break freely, and graduating a
	// pre-release to its base version is compatible by definition.
	prerelease := versioning.IsPrerelease(version)
	graduation := versioning.IsGraduation(current.Version, version)

	action := ActionPublished
	warning := ""
	switch {
	case compatible || graduation:
	case prerelease:
		warning = "breaking change published on a pre-release version"
	case norm.Force:
		action = ActionForcePublished
		warning = fmt.Sprintf("force-published with %d breaking change(s)", len(breaking))
	default:
		return s.createProposal(ctx, tx, asset, current, norm, changeType, breaking)
	}

	contract, err := s.replaceActive(ctx, tx, asset, current, norm, version, mode, action)
	if err != nil {
		return nil, nil, err
	}
	if guaranteesChanged {
		if err := s.audit(ctx, tx, "contract", contract.ID, "contract.guarantees_updated", norm.PublishedByUserID, nil); err != nil {
			return nil, nil, err
		}
	}
	result := &Result{
		Action:               action,
		Contract:             contract,
		ChangeType:           changeType,
		Changes:              changes,
		BreakingChanges:      breaking,
		Suggestion:           suggestion,
		Warning:              warning,
		DeprecatedContractID: &current.ID,
	}
	deprecated := *current
	notify := func() {
		s.cache.InvalidateContract(ctx, current.ID)
		s.notify.ContractPublished(asset, contract, &deprecated)
	}
	return result, notify, nil
}

func (s *Service) createProposal(ctx context.Context, tx registry.DB, asset *registry.Asset, current *registry.Contract, norm normalized, changeType schemadiff.ChangeType, breaking []schemadiff.Change) (*Result, func(), error) {
	teams, assets, err := s.impact.AffectedParties(ctx, *asset, asset.OwnerTeamID)
	if err != nil {
		return nil, nil, err
	}
	breakingJSON, err := json.Marshal(breaking)
	if err != nil {
		return nil, nil, Error.Wrap(err)
	}
	teamsJSON, err := json.Marshal(teams)
	if err != nil {
		return nil, nil, Error.Wrap(err)
	}
	assetsJSON, err := json.Marshal(assets)
	if err != nil {
		return nil, nil, Error.Wrap(err)
	}

	proposal, err := tx.Proposals().Insert(ctx, registry.Proposal{
		ID:                 uuid.New(),
		AssetID:            asset.ID,
		ProposedSchema:     norm.Schema,
		ProposedGuarantees: norm.Guarantees,
		ChangeType:         changeType,
		BreakingChanges:    breakingJSON,
		AffectedTeams:      teamsJSON,
		AffectedAssets:     assetsJSON,
		Status:             registry.ProposalPending,
		ProposedBy:         norm.PublishedBy,
		ProposedByUserID:   norm.PublishedByUserID,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := s.audit(ctx, tx, "proposal", proposal.ID, "proposal.created", norm.PublishedByUserID, map[string]interface{}{
		"asset_id": asset.ID, "change_type": changeType, "breaking_changes": len(breaking),
	}); err != nil {
		return nil, nil, err
	}

	result := &Result{
		Action:          ActionProposalCreated,
		Proposal:        proposal,
		ChangeType:      changeType,
		BreakingChanges: breaking,
		Suggestion:      versioning.Suggest(current.Version, false, changeType),
	}
	notify := func() { s.notify.ProposalCreated(asset, proposal) }
	mon.Counter("publish_proposal_created").Inc(1)
	return result, notify, nil
}

func (s *Service) insertActive(ctx context.Context, tx registry.DB, asset *registry.Asset, norm normalized, version string, mode schemadiff.Mode, deprecated *registry.Contract) (*registry.Contract, error) {
	contract, err := tx.Contracts().Insert(ctx, registry.Contract{
		ID:                uuid.New(),
		AssetID:           asset.ID,
		Version:           version,
		SchemaDef:         norm.Schema,
		SchemaFormat:      registry.FormatJSONSchema,
		CompatibilityMode: mode,
		Guarantees:        norm.Guarantees,
		Status:            registry.ContractActive,
		PublishedBy:       norm.PublishedBy,
		PublishedByUserID: norm.PublishedByUserID,
	})
	if err != nil {
		return nil, err
	}
	payload := map[string]interface{}{"version": version, "asset_id": asset.ID}
	if deprecated != nil {
		payload["deprecated_contract_id"] = deprecated.ID
	}
	if err := s.audit(ctx, tx, "contract", contract.ID, "contract.published", norm.PublishedByUserID, payload); err != nil {
		return nil, err
	}
	mon.Counter("publish_published").Inc(1)
	return contract, nil
}

func (s *Service) replaceActive(ctx context.Context, tx registry.DB, asset *registry.Asset, current *registry.Contract, norm normalized, version string, mode schemadiff.Mode, action Action) (*registry.Contract, error) {
	if err := tx.Contracts().SetStatus(ctx, current.ID, registry.ContractDeprecated); err != nil {
		return nil, err
	}
	if err := s.audit(ctx, tx, "contract", current.ID, "contract.deprecated", norm.PublishedByUserID, map[string]interface{}{
		"superseded_by_version": version,
	}); err != nil {
		return nil, err
	}
	contract, err := s.insertActive(ctx, tx, asset, norm, version, mode, current)
	if err != nil {
		return nil, err
	}
	if action == ActionForcePublished {
		if err := s.audit(ctx, tx, "contract", contract.ID, "contract.force_published", norm.PublishedByUserID, nil); err != nil {
			return nil, err
		}
	}
	return contract, nil
}

func (s *Service) audit(ctx context.Context, tx registry.DB, entityType string, entityID uuid.UUID, action string, actorID *uuid.UUID, payload interface{}) error {
	var raw json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return Error.Wrap(err)
		}
		raw = encoded
	}
	return tx.AuditEvents().Insert(ctx, registry.AuditEvent{
		ID:         uuid.New(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		ActorID:    actorID,
		Payload:    raw,
		OccurredAt: s.nowFn().UTC(),
	})
}

func normalizeJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	out, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return out
}
