// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package ingest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"tessera.io/tessera/tessera/registry"
)

// SyncFile is the YAML document exchanged with a contracts repository.
type SyncFile struct {
	Teams  []SyncTeam  `yaml:"teams,omitempty"`
	Assets []SyncAsset `yaml:"assets,omitempty"`
}

// SyncTeam is a team in git-sync form.
type SyncTeam struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

// SyncAsset is an asset plus its active contract in git-sync form.
type SyncAsset struct {
	FQN          string        `yaml:"fqn"`
	Environment  string        `yaml:"environment"`
	Owner        string        `yaml:"owner"`
	ResourceType string        `yaml:"resource_type"`
	Description  string        `yaml:"description,omitempty"`
	Contract     *SyncContract `yaml:"contract,omitempty"`
}

// SyncContract is a published contract in git-sync form.
type SyncContract struct {
	Version           string                 `yaml:"version"`
	CompatibilityMode string                 `yaml:"compatibility_mode"`
	Schema            map[string]interface{} `yaml:"schema"`
	Guarantees        map[string]interface{} `yaml:"guarantees,omitempty"`
}

// PushResult reports a git-sync export.
type PushResult struct {
	Path   string `json:"path"`
	Teams  int    `json:"teams"`
	Assets int    `json:"assets"`
}

// Push exports the registry to tessera.yaml under dir, one document
// for the whole catalog so diffs stay reviewable.
func (s *Service) Push(ctx context.Context, dir string) (_ *PushResult, err error) {
	defer mon.Task()(&ctx)(&err)
	if dir == "" {
		return nil, registry.ErrValidation.New("git sync path is not configured")
	}

	var file SyncFile
	teams, err := s.store.Teams().List(ctx, 10000, 0)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	teamName := make(map[uuid.UUID]string, len(teams))
	for _, team := range teams {
		teamName[team.ID] = team.Name
		file.Teams = append(file.Teams, SyncTeam{Name: team.Name, Description: team.Description})
	}

	assets, err := s.store.Assets().List(ctx, registry.ListAssetsOptions{Limit: 100000})
	if err != nil {
		return nil, Error.Wrap(err)
	}
	for _, asset := range assets {
		entry := SyncAsset{
			FQN:          asset.FQN,
			Environment:  asset.Environment,
			Owner:        teamName[asset.OwnerTeamID],
			ResourceType: asset.ResourceType,
			Description:  asset.Description,
		}
		contract, err := s.store.Contracts().GetActive(ctx, asset.ID)
		if err == nil {
			sc := &SyncContract{
				Version:           contract.Version,
				CompatibilityMode: string(contract.CompatibilityMode),
			}
			if err := json.Unmarshal(contract.SchemaDef, &sc.Schema); err != nil {
				return nil, Error.Wrap(err)
			}
			if len(contract.Guarantees) > 0 {
				if err := json.Unmarshal(contract.Guarantees, &sc.Guarantees); err != nil {
					return nil, Error.Wrap(err)
				}
			}
			entry.Contract = sc
		} else if !registry.ErrNotFound.Has(err) {
			return nil, Error.Wrap(err)
		}
		file.Assets = append(file.Assets, entry)
	}

	encoded, err := yaml.Marshal(&file)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, Error.Wrap(err)
	}
	path := filepath.Join(dir, "tessera.yaml")
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return nil, Error.Wrap(err)
	}
	s.log.Info("catalog exported", zap.String("path", path),
		zap.Int("teams", len(file.Teams)), zap.Int("assets", len(file.Assets)))
	return &PushResult{Path: path, Teams: len(file.Teams), Assets: len(file.Assets)}, nil
}

// PullResult reports a git-sync import.
type PullResult struct {
	TeamsCreated  int `json:"teams_created"`
	AssetsCreated int `json:"assets_created"`
	Unchanged     int `json:"unchanged"`
}

// Pull imports tessera.yaml from dir, creating missing teams and
// assets. Contracts are deliberately not published here; the publish
// workflow owns versioning and compatibility.
func (s *Service) Pull(ctx context.Context, dir string) (_ *PullResult, err error) {
	defer mon.Task()(&ctx)(&err)
	if dir == "" {
		return nil, registry.ErrValidation.New("git sync path is not configured")
	}
	raw, err := os.ReadFile(filepath.Join(dir, "tessera.yaml"))
	if err != nil {
		return nil, Error.Wrap(err)
	}
	var file SyncFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, registry.ErrValidation.New("malformed sync file: %v", err)
	}

	result := &PullResult{}
	err = registry.WithTx(ctx, s.store, func(tx registry.DBTx) error {
		teamByName := make(map[string]uuid.UUID)
		for _, team := range file.Teams {
			name := strings.TrimSpace(team.Name)
			if name == "" {
				return registry.ErrValidation.New("team entry with empty name")
			}
			existing, err := tx.Teams().GetByName(ctx, name)
			if err == nil {
				teamByName[name] = existing.ID
				result.Unchanged++
				continue
			}
			if !registry.ErrNotFound.Has(err) {
				return Error.Wrap(err)
			}
			created, err := tx.Teams().Insert(ctx, registry.Team{
				ID: uuid.New(), Name: name, Description: team.Description,
			})
			if err != nil {
				return err
			}
			teamByName[name] = created.ID
			result.TeamsCreated++
		}

		for _, asset := range file.Assets {
			ownerID, ok := teamByName[asset.Owner]
			if !ok {
				owner, err := tx.Teams().GetByName(ctx, asset.Owner)
				if err != nil {
					return registry.ErrValidation.New("asset %s references unknown team %q", asset.FQN, asset.Owner)
				}
				ownerID = owner.ID
			}
			environment := asset.Environment
			if environment == "" {
				environment = "production"
			}
			_, err := tx.Assets().GetByFQN(ctx, asset.FQN, environment)
			if err == nil {
				result.Unchanged++
				continue
			}
			if !registry.ErrNotFound.Has(err) {
				return Error.Wrap(err)
			}
			if err := registry.ValidateFQN(asset.FQN); err != nil {
				return registry.ErrValidation.Wrap(err)
			}
			resourceType := asset.ResourceType
			if resourceType == "" {
				resourceType = "table"
			}
			if _, err := tx.Assets().Insert(ctx, registry.Asset{
				ID: uuid.New(), FQN: asset.FQN, Environment: environment,
				OwnerTeamID: ownerID, ResourceType: resourceType,
				Description: asset.Description,
			}); err != nil {
				return err
			}
			result.AssetsCreated++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
