// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

// Package ingest imports asset catalogs from external tooling: dbt
// manifests, OpenAPI documents, and GraphQL introspection output. The
// connectors register assets and lineage; contract publication stays
// with the publishing workflow.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"tessera.io/tessera/tessera/impact"
	"tessera.io/tessera/tessera/registry"
)

var mon = monkit.Package()

// Error is the default error class for the ingest package.
var Error = errs.Class("ingest")

// Service imports external catalogs.
//
// architecture: Service
type Service struct {
	log    *zap.Logger
	store  registry.DB
	impact *impact.Service
	nowFn  func() time.Time
}

// NewService creates an ingest service.
func NewService(log *zap.Logger, store registry.DB, impactSvc *impact.Service) *Service {
	return &Service{log: log, store: store, impact: impactSvc, nowFn: time.Now}
}

// Summary reports what a sync changed.
type Summary struct {
	AssetsCreated       int      `json:"assets_created"`
	AssetsExisting      int      `json:"assets_existing"`
	DependenciesCreated int      `json:"dependencies_created"`
	Skipped             []string `json:"skipped,omitempty"`
}

// DbtManifest is the subset of a dbt manifest the connector reads.
type DbtManifest struct {
	Nodes map[string]DbtNode `json:"nodes"`
}

// DbtNode is one dbt model entry.
type DbtNode struct {
	Name         string              `json:"name"`
	ResourceType string              `json:"resource_type"`
	Schema       string              `json:"schema"`
	Database     string              `json:"database"`
	Description  string              `json:"description"`
	Columns      map[string]struct { // name -> column
		Description string `json:"description"`
		DataType    string `json:"data_type"`
	} `json:"columns"`
	DependsOn struct {
		Nodes []string `json:"nodes"`
	} `json:"depends_on"`
}

// FQN derives the dotted asset name for a model.
func (n DbtNode) FQN() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{n.Database, n.Schema, n.Name} {
		if p != "" {
			parts = append(parts, strings.ToLower(p))
		}
	}
	return strings.Join(parts, ".")
}

// SyncDbt registers the manifest's models as assets owned by ownerTeam
// and records model-to-model lineage. Non-model nodes are skipped.
// Existing assets are left untouched so a re-upload is idempotent.
func (s *Service) SyncDbt(ctx context.Context, environment string, manifest DbtManifest, ownerTeamID uuid.UUID) (_ *Summary, err error) {
	defer mon.Task()(&ctx)(&err)
	if environment == "" {
		environment = "production"
	}
	if len(manifest.Nodes) == 0 {
		return nil, registry.ErrValidation.New("manifest has no nodes")
	}

	summary := &Summary{}
	err = registry.WithTx(ctx, s.store, func(tx registry.DBTx) error {
		assetByNode := make(map[string]*registry.Asset, len(manifest.Nodes))

		for _, nodeID := range sortedKeys(manifest.Nodes) {
			node := manifest.Nodes[nodeID]
			if node.ResourceType != "model" {
				summary.Skipped = append(summary.Skipped, nodeID)
				continue
			}
			asset, created, err := s.ensureAsset(ctx, tx, environment, ownerTeamID, node)
			if err != nil {
				return err
			}
			assetByNode[nodeID] = asset
			if created {
				summary.AssetsCreated++
			} else {
				summary.AssetsExisting++
			}
		}

		for _, nodeID := range sortedKeys(manifest.Nodes) {
			node := manifest.Nodes[nodeID]
			dependent := assetByNode[nodeID]
			if dependent == nil {
				continue
			}
			for _, upstreamID := range node.DependsOn.Nodes {
				upstream := assetByNode[upstreamID]
				if upstream == nil {
					continue
				}
				edgeID := uuid.New()
				edge, err := tx.Dependencies().Upsert(ctx, registry.Dependency{
					ID:                edgeID,
					DependentAssetID:  dependent.ID,
					DependencyAssetID: upstream.ID,
					DependencyType:    registry.DependencyTransforms,
				})
				if err != nil {
					return err
				}
				// Upsert keeps the existing edge's id, so a match means
				// this call created it.
				if edge.ID == edgeID {
					summary.DependenciesCreated++
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("dbt manifest synced",
		zap.Int("created", summary.AssetsCreated),
		zap.Int("existing", summary.AssetsExisting),
		zap.Int("dependencies", summary.DependenciesCreated))
	return summary, nil
}

func (s *Service) ensureAsset(ctx context.Context, tx registry.DB, environment string, ownerTeamID uuid.UUID, node DbtNode) (*registry.Asset, bool, error) {
	fqn := node.FQN()
	if err := registry.ValidateFQN(fqn); err != nil {
		return nil, false, registry.ErrValidation.New("node %s: %v", node.Name, err)
	}
	existing, err := tx.Assets().GetByFQN(ctx, fqn, environment)
	if err == nil {
		return existing, false, nil
	}
	if !registry.ErrNotFound.Has(err) {
		return nil, false, Error.Wrap(err)
	}

	metadata, err := json.Marshal(map[string]interface{}{
		"source":  "dbt",
		"columns": node.Columns,
	})
	if err != nil {
		return nil, false, Error.Wrap(err)
	}
	created, err := tx.Assets().Insert(ctx, registry.Asset{
		ID:           uuid.New(),
		FQN:          fqn,
		Environment:  environment,
		OwnerTeamID:  ownerTeamID,
		ResourceType: "table",
		Description:  node.Description,
		Metadata:     metadata,
	})
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// DbtImpactItem reports downstream blast radius for one modified model.
type DbtImpactItem struct {
	FQN            string   `json:"fqn"`
	Found          bool     `json:"found"`
	AffectedAssets int      `json:"affected_assets"`
	AffectedTeams  []string `json:"affected_teams,omitempty"`
}

// DbtImpact resolves the modified models against registered assets and
// runs downstream impact analysis for each.
func (s *Service) DbtImpact(ctx context.Context, environment string, modified []string) (_ []DbtImpactItem, err error) {
	defer mon.Task()(&ctx)(&err)
	if environment == "" {
		environment = "production"
	}
	if len(modified) == 0 {
		return nil, registry.ErrValidation.New("no modified models given")
	}

	out := make([]DbtImpactItem, 0, len(modified))
	for _, fqn := range modified {
		item := DbtImpactItem{FQN: fqn}
		asset, err := s.store.Assets().GetByFQN(ctx, fqn, environment)
		if err != nil {
			if registry.ErrNotFound.Has(err) {
				out = append(out, item)
				continue
			}
			return nil, Error.Wrap(err)
		}
		item.Found = true

		teams, assets, err := s.impact.AffectedParties(ctx, *asset, asset.OwnerTeamID)
		if err != nil {
			return nil, err
		}
		item.AffectedAssets = len(assets)
		for _, team := range teams {
			item.AffectedTeams = append(item.AffectedTeams, team.Name)
		}
		out = append(out, item)
	}
	return out, nil
}

// OpenAPIDoc is the subset of an OpenAPI document the connector reads.
type OpenAPIDoc struct {
	Info struct {
		Title string `json:"title"`
	} `json:"info"`
	Paths map[string]map[string]struct {
		OperationID string `json:"operationId"`
		Summary     string `json:"summary"`
	} `json:"paths"`
}

// SyncOpenAPI registers each operation as an endpoint asset named
// service.method.path.
func (s *Service) SyncOpenAPI(ctx context.Context, environment string, doc OpenAPIDoc, ownerTeamID uuid.UUID) (_ *Summary, err error) {
	defer mon.Task()(&ctx)(&err)
	if environment == "" {
		environment = "production"
	}
	if len(doc.Paths) == 0 {
		return nil, registry.ErrValidation.New("document has no paths")
	}
	service := sanitizeSegment(doc.Info.Title)
	if service == "" {
		service = "api"
	}

	summary := &Summary{}
	err = registry.WithTx(ctx, s.store, func(tx registry.DBTx) error {
		for _, path := range sortedKeys(doc.Paths) {
			operations := doc.Paths[path]
			for _, method := range sortedKeys(operations) {
				op := operations[method]
				fqn := fmt.Sprintf("%s.%s.%s", service, strings.ToLower(method), sanitizeSegment(path))
				created, err := s.ensureFlatAsset(ctx, tx, environment, ownerTeamID, fqn, "endpoint", op.Summary, map[string]interface{}{
					"source": "openapi", "path": path, "method": strings.ToUpper(method),
					"operation_id": op.OperationID,
				})
				if err != nil {
					return err
				}
				if created {
					summary.AssetsCreated++
				} else {
					summary.AssetsExisting++
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// GraphQLIntrospection is the subset of an introspection result the
// connector reads.
type GraphQLIntrospection struct {
	Schema struct {
		Types []struct {
			Kind        string `json:"kind"`
			Name        string `json:"name"`
			Description string `json:"description"`
			Fields      []struct {
				Name string `json:"name"`
			} `json:"fields"`
		} `json:"types"`
	} `json:"__schema"`
}

// SyncGraphQL registers each object type as a graphql_type asset.
// Introspection internals (__-prefixed) and scalar wrappers are
// skipped.
func (s *Service) SyncGraphQL(ctx context.Context, environment, serviceName string, introspection GraphQLIntrospection, ownerTeamID uuid.UUID) (_ *Summary, err error) {
	defer mon.Task()(&ctx)(&err)
	if environment == "" {
		environment = "production"
	}
	if len(introspection.Schema.Types) == 0 {
		return nil, registry.ErrValidation.New("introspection has no types")
	}
	service := sanitizeSegment(serviceName)
	if service == "" {
		service = "graphql"
	}

	summary := &Summary{}
	err = registry.WithTx(ctx, s.store, func(tx registry.DBTx) error {
		for _, typ := range introspection.Schema.Types {
			if typ.Kind != "OBJECT" || strings.HasPrefix(typ.Name, "__") {
				summary.Skipped = append(summary.Skipped, typ.Name)
				continue
			}
			fields := make([]string, 0, len(typ.Fields))
			for _, f := range typ.Fields {
				fields = append(fields, f.Name)
			}
			fqn := service + "." + sanitizeSegment(typ.Name)
			created, err := s.ensureFlatAsset(ctx, tx, environment, ownerTeamID, fqn, "graphql_type", typ.Description, map[string]interface{}{
				"source": "graphql", "fields": fields,
			})
			if err != nil {
				return err
			}
			if created {
				summary.AssetsCreated++
			} else {
				summary.AssetsExisting++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func (s *Service) ensureFlatAsset(ctx context.Context, tx registry.DB, environment string, ownerTeamID uuid.UUID, fqn, resourceType, description string, metadata map[string]interface{}) (bool, error) {
	if err := registry.ValidateFQN(fqn); err != nil {
		return false, registry.ErrValidation.Wrap(err)
	}
	_, err := tx.Assets().GetByFQN(ctx, fqn, environment)
	if err == nil {
		return false, nil
	}
	if !registry.ErrNotFound.Has(err) {
		return false, Error.Wrap(err)
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return false, Error.Wrap(err)
	}
	_, err = tx.Assets().Insert(ctx, registry.Asset{
		ID:           uuid.New(),
		FQN:          fqn,
		Environment:  environment,
		OwnerTeamID:  ownerTeamID,
		ResourceType: resourceType,
		Description:  description,
		Metadata:     raw,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// sanitizeSegment lowercases a free-form name and replaces everything
// outside [a-z0-9_] so the result nests into an fqn.
func sanitizeSegment(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case b.Len() > 0 && b.String()[b.Len()-1] != '_':
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
