// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

// Package impact walks the asset dependency graph to find downstream
// assets and the consumer teams a schema change would affect.
package impact

import (
	"context"

	"github.com/google/uuid"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"tessera.io/tessera/tessera/registry"
	"tessera.io/tessera/tessera/schemadiff"
)

var mon = monkit.Package()

// Error is the default error class for the impact package.
var Error = errs.Class("impact")

const (
	// DefaultMaxDepth bounds traversal when the caller does not ask
	// for a specific depth.
	DefaultMaxDepth = 10
	// MaxResults caps the number of downstream assets returned; past
	// it the traversal stops and the result is marked truncated.
	MaxResults = 500
)

// Service traverses lineage and resolves impacted consumers.
//
// architecture: Service
type Service struct {
	log           *zap.Logger
	dependencies  registry.Dependencies
	assets        registry.Assets
	contracts     registry.Contracts
	registrations registry.Registrations
}

// NewService creates an impact service.
func NewService(log *zap.Logger, db registry.DB) *Service {
	return NewServiceWith(log, db.Dependencies(), db.Assets(), db.Contracts(), db.Registrations())
}

// NewServiceWith creates an impact service from individual
// repositories.
func NewServiceWith(log *zap.Logger, dependencies registry.Dependencies, assets registry.Assets, contracts registry.Contracts, registrations registry.Registrations) *Service {
	return &Service{
		log:           log,
		dependencies:  dependencies,
		assets:        assets,
		contracts:     contracts,
		registrations: registrations,
	}
}

// Downstream is one asset reached by the traversal.
type Downstream struct {
	Asset          registry.Asset          `json:"asset"`
	DependencyType registry.DependencyType `json:"dependency_type"`
	Depth          int                     `json:"depth"`
}

// Traverse walks the dependency graph breadth-first from root. One
// batched query per level; a visited set makes cycles safe. Traversal
// stops past maxDepth or once maxResults assets have been collected,
// in which case truncated is set.
func (s *Service) Traverse(ctx context.Context, root uuid.UUID, maxDepth, maxResults int) (results []Downstream, truncated bool, err error) {
	defer mon.Task()(&ctx)(&err)
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if maxResults <= 0 || maxResults > MaxResults {
		maxResults = MaxResults
	}

	visited := map[uuid.UUID]bool{root: true}
	frontier := []uuid.UUID{root}
	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		edges, err := s.dependencies.ListDownstream(ctx, frontier)
		if err != nil {
			return nil, false, Error.Wrap(err)
		}
		frontier = frontier[:0]
		for _, edge := range edges {
			if visited[edge.Asset.ID] {
				continue
			}
			visited[edge.Asset.ID] = true
			results = append(results, Downstream{Asset: edge.Asset, DependencyType: edge.DependencyType, Depth: depth})
			if len(results) >= maxResults {
				return results, true, nil
			}
			frontier = append(frontier, edge.Asset.ID)
		}
	}
	return results, false, nil
}

// Consumer is a consumer team impacted through a registration on an
// asset's active contract.
type Consumer struct {
	TeamID         uuid.UUID `json:"team_id"`
	TeamName       string    `json:"team_name"`
	AssetID        uuid.UUID `json:"asset_id"`
	RegistrationID uuid.UUID `json:"registration_id"`
	Depth          int       `json:"depth"`
}

// Consumers batch-resolves the live, active registrations on the
// active contracts of the given assets, joined against live teams.
func (s *Service) Consumers(ctx context.Context, assetIDs []uuid.UUID) (_ map[uuid.UUID][]Consumer, err error) {
	defer mon.Task()(&ctx)(&err)
	if len(assetIDs) == 0 {
		return map[uuid.UUID][]Consumer{}, nil
	}
	contracts, err := s.contracts.GetActiveBatch(ctx, assetIDs, false)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if len(contracts) == 0 {
		return map[uuid.UUID][]Consumer{}, nil
	}
	contractAsset := make(map[uuid.UUID]uuid.UUID, len(contracts))
	contractIDs := make([]uuid.UUID, 0, len(contracts))
	for _, c := range contracts {
		contractAsset[c.ID] = c.AssetID
		contractIDs = append(contractIDs, c.ID)
	}
	regs, err := s.registrations.ListActiveWithTeams(ctx, contractIDs)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	out := map[uuid.UUID][]Consumer{}
	for _, rt := range regs {
		assetID := contractAsset[rt.Registration.ContractID]
		out[assetID] = append(out[assetID], Consumer{
			TeamID:         rt.Team.ID,
			TeamName:       rt.Team.Name,
			AssetID:        assetID,
			RegistrationID: rt.Registration.ID,
		})
	}
	return out, nil
}

// AffectedParties precomputes the affected-team and affected-asset
// hints stored on a proposal. Teams are de-duplicated and the producer
// team excluded. A secondary path picks up assets whose metadata
// depends_on array names the root fqn but that have no lineage edge.
func (s *Service) AffectedParties(ctx context.Context, root registry.Asset, producerTeamID uuid.UUID) (teams []registry.AffectedTeam, assets []registry.AffectedAsset, err error) {
	defer mon.Task()(&ctx)(&err)
	downstream, truncated, err := s.Traverse(ctx, root.ID, DefaultMaxDepth, MaxResults)
	if err != nil {
		return nil, nil, err
	}
	if truncated {
		s.log.Warn("affected-party traversal truncated", zap.Stringer("asset", root.ID))
	}

	seenAssets := map[uuid.UUID]bool{root.ID: true}
	for _, d := range downstream {
		seenAssets[d.Asset.ID] = true
		assets = append(assets, registry.AffectedAsset{AssetID: d.Asset.ID, FQN: d.Asset.FQN, Depth: d.Depth})
	}

	declared, err := s.assets.ListByDependsOnFQN(ctx, root.FQN)
	if err != nil {
		return nil, nil, Error.Wrap(err)
	}
	for _, a := range declared {
		if seenAssets[a.ID] {
			continue
		}
		seenAssets[a.ID] = true
		assets = append(assets, registry.AffectedAsset{AssetID: a.ID, FQN: a.FQN, Depth: 1})
		downstream = append(downstream, Downstream{Asset: a, Depth: 1})
	}

	seenTeams := map[uuid.UUID]bool{producerTeamID: true}
	for _, d := range downstream {
		if seenTeams[d.Asset.OwnerTeamID] {
			continue
		}
		seenTeams[d.Asset.OwnerTeamID] = true
		teams = append(teams, registry.AffectedTeam{TeamID: d.Asset.OwnerTeamID})
	}

	// Consumer teams registered on impacted contracts count as affected
	// even without owning a downstream asset.
	ids := make([]uuid.UUID, 0, len(seenAssets))
	for id := range seenAssets {
		ids = append(ids, id)
	}
	consumers, err := s.Consumers(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	for _, list := range consumers {
		for _, c := range list {
			if seenTeams[c.TeamID] {
				continue
			}
			seenTeams[c.TeamID] = true
			teams = append(teams, registry.AffectedTeam{TeamID: c.TeamID, Name: c.TeamName})
		}
	}
	return teams, assets, nil
}

// Analysis is the result of a what-if impact request.
type Analysis struct {
	ChangeType        schemadiff.ChangeType `json:"change_type"`
	BreakingChanges   []schemadiff.Change   `json:"breaking_changes"`
	ImpactedConsumers []Consumer            `json:"impacted_consumers"`
	ImpactedAssets    []Downstream          `json:"impacted_assets"`
	SafeToPublish     bool                  `json:"safe_to_publish"`
	TraversalDepth    int                   `json:"traversal_depth"`
	Truncated         bool                  `json:"truncated,omitempty"`
	Message           string                `json:"message,omitempty"`
}

// Analyze diffs a proposed schema against the asset's active contract
// and reports who would be affected. Without an active contract any
// schema is safe.
func (s *Service) Analyze(ctx context.Context, asset *registry.Asset, proposed schemadiff.Schema, maxDepth int) (_ *Analysis, err error) {
	defer mon.Task()(&ctx)(&err)
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	current, err := s.contracts.GetActive(ctx, asset.ID)
	if err != nil {
		if registry.ErrNotFound.Has(err) {
			return &Analysis{
				ChangeType:    schemadiff.Patch,
				SafeToPublish: true,
				Message:       "no active contract; any schema can be published",
			}, nil
		}
		return nil, Error.Wrap(err)
	}

	currentSchema, err := current.Schema()
	if err != nil {
		return nil, Error.Wrap(err)
	}
	changes := schemadiff.Diff(currentSchema, proposed)
	compatible, breaking := schemadiff.Classify(current.CompatibilityMode, changes)

	downstream, truncated, err := s.Traverse(ctx, asset.ID, maxDepth, MaxResults)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(downstream)+1)
	ids = append(ids, asset.ID)
	for _, d := range downstream {
		ids = append(ids, d.Asset.ID)
	}
	consumersByAsset, err := s.Consumers(ctx, ids)
	if err != nil {
		return nil, err
	}

	depthByAsset := map[uuid.UUID]int{asset.ID: 0}
	for _, d := range downstream {
		depthByAsset[d.Asset.ID] = d.Depth
	}
	seenTeams := map[uuid.UUID]bool{}
	var consumers []Consumer
	for _, list := range consumersByAsset {
		for _, c := range list {
			if seenTeams[c.TeamID] {
				continue
			}
			seenTeams[c.TeamID] = true
			c.Depth = depthByAsset[c.AssetID]
			consumers = append(consumers, c)
		}
	}

	analysis := &Analysis{
		ChangeType:        schemadiff.TypeOf(changes),
		BreakingChanges:   breaking,
		ImpactedConsumers: consumers,
		ImpactedAssets:    downstream,
		SafeToPublish:     compatible,
		TraversalDepth:    maxDepth,
		Truncated:         truncated,
	}
	if truncated {
		analysis.Message = "impact traversal truncated; narrow the depth or inspect lineage directly"
	}
	return analysis, nil
}

// Lineage is an asset's one-hop neighborhood.
type Lineage struct {
	Upstream   []registry.UpstreamEdge `json:"upstream"`
	Downstream []Downstream            `json:"downstream"`
}

// Lineage returns the asset's direct upstream edges and one level of
// downstream assets.
func (s *Service) Lineage(ctx context.Context, assetID uuid.UUID) (_ *Lineage, err error) {
	defer mon.Task()(&ctx)(&err)
	upstream, err := s.dependencies.ListUpstream(ctx, assetID)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	downstream, _, err := s.Traverse(ctx, assetID, 1, MaxResults)
	if err != nil {
		return nil, err
	}
	return &Lineage{Upstream: upstream, Downstream: downstream}, nil
}
