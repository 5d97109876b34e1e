// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package publisher

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tessera.io/tessera/tessera/registry"
	"tessera.io/tessera/tessera/schemadiff"
	"tessera.io/tessera/tessera/versioning"
)

// BulkItem is one entry of a bulk publish, addressed by fqn.
type BulkItem struct {
	FQN               string                `json:"fqn"`
	Schema            json.RawMessage       `json:"schema"`
	SchemaFormat      registry.SchemaFormat `json:"schema_format,omitempty"`
	Version           string                `json:"version,omitempty"`
	CompatibilityMode schemadiff.Mode       `json:"compatibility_mode,omitempty"`
	Guarantees        json.RawMessage       `json:"guarantees,omitempty"`
	Force             bool                  `json:"force,omitempty"`
}

// BulkRequest publishes many contracts in one transaction.
type BulkRequest struct {
	Environment                string     `json:"environment,omitempty"`
	Items                      []BulkItem `json:"items"`
	PublishedBy                uuid.UUID  `json:"published_by"`
	PublishedByUserID          *uuid.UUID `json:"-"`
	DryRun                     bool       `json:"dry_run,omitempty"`
	CreateProposalsForBreaking bool       `json:"create_proposals_for_breaking,omitempty"`
}

// BulkItemStatus is the projected or actual outcome of one bulk item.
type BulkItemStatus string

const (
	BulkWillPublish     BulkItemStatus = "will_publish"
	BulkPublished       BulkItemStatus = "published"
	BulkWillSkip        BulkItemStatus = "will_skip"
	BulkSkipped         BulkItemStatus = "skipped"
	BulkBreaking        BulkItemStatus = "breaking"
	BulkProposalCreated BulkItemStatus = "proposal_created"
	BulkFailed          BulkItemStatus = "failed"
)

// BulkItemResult is one per-item outcome.
type BulkItemResult struct {
	FQN        string                `json:"fqn"`
	Status     BulkItemStatus        `json:"status"`
	ChangeType schemadiff.ChangeType `json:"change_type,omitempty"`
	Version    string                `json:"version,omitempty"`
	ContractID *uuid.UUID            `json:"contract_id,omitempty"`
	ProposalID *uuid.UUID            `json:"proposal_id,omitempty"`
	Error      string                `json:"error,omitempty"`
}

// BulkResult aggregates a bulk publish.
type BulkResult struct {
	Preview          bool             `json:"preview"`
	Total            int              `json:"total"`
	Published        int              `json:"published"`
	Skipped          int              `json:"skipped"`
	ProposalsCreated int              `json:"proposals_created"`
	Failed           int              `json:"failed"`
	Results          []BulkItemResult `json:"results"`
}

// PublishBulk processes N items with one batched asset lookup, one
// batched active-contract lookup (locked), and one batched
// pending-proposal lookup. Each item runs in a savepoint so a single
// failure rolls back only that item. Dry runs perform no writes.
func (s *Service) PublishBulk(ctx context.Context, req BulkRequest) (result *BulkResult, err error) {
	defer mon.Task()(&ctx)(&err)
	if len(req.Items) == 0 {
		return nil, registry.ErrValidation.New("bulk publish requires at least one item")
	}
	if req.Environment == "" {
		req.Environment = "production"
	}
	result = &BulkResult{Preview: req.DryRun, Total: len(req.Items)}

	var notifies []func()
	err = registry.WithTx(ctx, s.store, func(tx registry.DBTx) error {
		fqns := make([]string, 0, len(req.Items))
		for _, item := range req.Items {
			fqns = append(fqns, item.FQN)
		}
		assets, err := tx.Assets().GetByFQNBatch(ctx, req.Environment, fqns)
		if err != nil {
			return err
		}
		assetByFQN := make(map[string]*registry.Asset, len(assets))
		assetIDs := make([]uuid.UUID, 0, len(assets))
		for i := range assets {
			assetByFQN[assets[i].FQN] = &assets[i]
			assetIDs = append(assetIDs, assets[i].ID)
		}

		lock := !req.DryRun
		contracts, err := tx.Contracts().GetActiveBatch(ctx, assetIDs, lock)
		if err != nil {
			return err
		}
		activeByAsset := make(map[uuid.UUID]*registry.Contract, len(contracts))
		for i := range contracts {
			activeByAsset[contracts[i].AssetID] = &contracts[i]
		}

		pending, err := tx.Proposals().GetPendingBatch(ctx, assetIDs)
		if err != nil {
			return err
		}
		pendingByAsset := make(map[uuid.UUID]bool, len(pending))
		for _, p := range pending {
			pendingByAsset[p.AssetID] = true
		}

		for _, item := range req.Items {
			itemResult := s.bulkItem(ctx, tx, req, item, assetByFQN, activeByAsset, pendingByAsset, &notifies)
			switch itemResult.Status {
			case BulkPublished, BulkWillPublish:
				result.Published++
			case BulkSkipped, BulkWillSkip:
				result.Skipped++
			case BulkProposalCreated, BulkBreaking:
				result.ProposalsCreated++
			case BulkFailed:
				result.Failed++
			}
			result.Results = append(result.Results, itemResult)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, notify := range notifies {
		notify()
	}
	return result, nil
}

func (s *Service) bulkItem(ctx context.Context, tx registry.DBTx, req BulkRequest, item BulkItem, assetByFQN map[string]*registry.Asset, activeByAsset map[uuid.UUID]*registry.Contract, pendingByAsset map[uuid.UUID]bool, notifies *[]func()) BulkItemResult {
	out := BulkItemResult{FQN: item.FQN}
	asset, ok := assetByFQN[item.FQN]
	if !ok {
		out.Status = BulkFailed
		out.Error = "asset not found"
		return out
	}
	if pendingByAsset[asset.ID] {
		out.Status = BulkFailed
		out.Error = "a pending proposal exists for this asset"
		return out
	}

	norm, err := s.validate(Request{
		AssetID:           asset.ID,
		Schema:            item.Schema,
		SchemaFormat:      item.SchemaFormat,
		Version:           item.Version,
		CompatibilityMode: item.CompatibilityMode,
		Guarantees:        item.Guarantees,
		PublishedBy:       req.PublishedBy,
		PublishedByUserID: req.PublishedByUserID,
		Force:             item.Force,
	})
	if err != nil {
		out.Status = BulkFailed
		out.Error = err.Error()
		return out
	}

	current := activeByAsset[asset.ID]

	if req.DryRun {
		return s.bulkPreview(asset, current, norm, out)
	}

	err = tx.Savepoint(ctx, func(stx registry.DB) error {
		result, notify, err := s.bulkPublishOne(ctx, stx, asset, current, norm, req.CreateProposalsForBreaking)
		if err != nil {
			return err
		}
		switch result.Action {
		case ActionPublished, ActionForcePublished:
			out.Status = BulkPublished
			out.Version = result.Contract.Version
			out.ContractID = &result.Contract.ID
			activeByAsset[asset.ID] = result.Contract
		case ActionSkipped:
			out.Status = BulkSkipped
			out.Version = result.Contract.Version
		case ActionProposalCreated:
			out.Status = BulkProposalCreated
			out.ProposalID = &result.Proposal.ID
			pendingByAsset[asset.ID] = true
		}
		out.ChangeType = result.ChangeType
		if notify != nil {
			*notifies = append(*notifies, notify)
		}
		return nil
	})
	if err != nil {
		// A failed item rolls back to its savepoint and never aborts
		// the batch.
		s.log.Warn("bulk publish item failed",
			zap.String("fqn", item.FQN), zap.Error(err))
		return BulkItemResult{FQN: item.FQN, Status: BulkFailed, Error: errorLabel(err)}
	}
	return out
}

// bulkPublishOne mirrors publishLocked but uses the prefetched state
// and honors create_proposals_for_breaking.
func (s *Service) bulkPublishOne(ctx context.Context, tx registry.DB, asset *registry.Asset, current *registry.Contract, norm normalized, createProposals bool) (*Result, func(), error) {
	if current == nil {
		return s.publishFirst(ctx, tx, asset, norm)
	}
	if !createProposals && !norm.Force {
		// Classification still happens; breaking items surface as
		// errors instead of proposals.
		currentSchema, err := current.Schema()
		if err != nil {
			return nil, nil, Error.Wrap(err)
		}
		changes := schemadiff.Diff(currentSchema, norm.doc)
		mode := norm.CompatibilityMode
		if mode == "" {
			mode = current.CompatibilityMode
		}
		if compatible, breaking := schemadiff.Classify(mode, changes); !compatible {
			if !versioning.IsPrerelease(norm.Version) && !versioning.IsGraduation(current.Version, norm.Version) {
				return nil, nil, registry.ErrValidation.New("breaking change requires force or a proposal (%d breaking change(s))", len(breaking))
			}
		}
	}
	return s.publishNext(ctx, tx, asset, current, norm)
}

func (s *Service) bulkPreview(asset *registry.Asset, current *registry.Contract, norm normalized, out BulkItemResult) BulkItemResult {
	if current == nil {
		out.Status = BulkWillPublish
		out.ChangeType = schemadiff.Patch
		out.Version = versioning.Initial
		if norm.Version != "" {
			out.Version = norm.Version
		}
		return out
	}
	currentSchema, err := current.Schema()
	if err != nil {
		out.Status = BulkFailed
		out.Error = errorLabel(err)
		return out
	}
	changes := schemadiff.Diff(currentSchema, norm.doc)
	mode := norm.CompatibilityMode
	if mode == "" {
		mode = current.CompatibilityMode
	}
	compatible, _ := schemadiff.Classify(mode, changes)
	out.ChangeType = schemadiff.TypeOf(changes)
	switch {
	case len(changes) == 0:
		out.Status = BulkWillSkip
		out.Version = current.Version
	case compatible || norm.Force:
		out.Status = BulkWillPublish
		out.Version = versioning.Suggest(current.Version, compatible, out.ChangeType).Version
	default:
		out.Status = BulkBreaking
		out.Version = versioning.Suggest(current.Version, false, out.ChangeType).Version
	}
	return out
}

// errorLabel prefixes an item error with its class so operators can
// group failures.
func errorLabel(err error) string {
	switch {
	case registry.ErrValidation.Has(err):
		return "validation: " + err.Error()
	case registry.ErrNotFound.Has(err):
		return "not found: " + err.Error()
	case registry.ErrConflict.Has(err):
		return "conflict: " + err.Error()
	default:
		return "internal: " + err.Error()
	}
}
