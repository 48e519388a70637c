package badger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ternarybob/pulse/internal/common"
	"github.com/ternarybob/pulse/internal/models"
)

// SeedFile represents one YAML bootstrap file. Teams are loaded before
// integrations so integration team_id references resolve within a file.
//
// Format:
//
//	teams:
//	  - id: team-platform
//	    name: Platform
//	integrations:
//	  - id: int-platform-api
//	    team_id: team-platform
//	    name: platform-api
//	    type: github
//	    credentials:
//	      token: "{github-token}"
//	    config:
//	      repository: acme/platform-api
type SeedFile struct {
	Teams        []SeedTeam        `yaml:"teams"`
	Integrations []SeedIntegration `yaml:"integrations"`
}

type SeedTeam struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type SeedIntegration struct {
	ID          string                 `yaml:"id"`
	TeamID      string                 `yaml:"team_id"`
	Name        string                 `yaml:"name"`
	Type        string                 `yaml:"type"`
	Credentials SeedCredentials        `yaml:"credentials"`
	Config      map[string]interface{} `yaml:"config"`
}

type SeedCredentials struct {
	Token    string `yaml:"token"`
	Username string `yaml:"username"`
	APIKey   string `yaml:"api_key"`
}

// LoadSeedsFromFiles loads team and integration definitions from YAML
// files in the given directory. Credential and config values support
// {key-name} substitution from the KV store. Entries need a stable id
// so reloading a seed file updates records instead of duplicating them.
func (m *Manager) LoadSeedsFromFiles(ctx context.Context, dirPath string) error {
	m.logger.Debug().Str("dir", dirPath).Msg("Loading seed definitions from files")

	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		m.logger.Debug().Str("dir", dirPath).Msg("Seeds directory does not exist, skipping")
		return nil
	}

	kvMap, err := m.kv.GetAll(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Failed to load KV map for seed substitution")
		kvMap = make(map[string]string)
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		m.logger.Warn().Err(err).Str("dir", dirPath).Msg("Failed to read seeds directory")
		return nil // Non-fatal
	}

	loadedCount := 0
	skippedCount := 0
	errorCount := 0

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}

		filePath := filepath.Join(dirPath, name)
		content, err := os.ReadFile(filePath)
		if err != nil {
			m.logger.Warn().Err(err).Str("file", name).Msg("Failed to read seed file")
			errorCount++
			continue
		}

		var seed SeedFile
		if err := yaml.Unmarshal(content, &seed); err != nil {
			m.logger.Warn().Err(err).Str("file", name).Msg("Failed to parse seed file")
			errorCount++
			continue
		}

		for _, st := range seed.Teams {
			switch m.loadSeedTeam(ctx, name, st) {
			case seedLoaded:
				loadedCount++
			case seedSkipped:
				skippedCount++
			case seedFailed:
				errorCount++
			}
		}

		for _, si := range seed.Integrations {
			switch m.loadSeedIntegration(ctx, name, si, kvMap) {
			case seedLoaded:
				loadedCount++
			case seedSkipped:
				skippedCount++
			case seedFailed:
				errorCount++
			}
		}
	}

	m.logger.Info().
		Int("loaded", loadedCount).
		Int("skipped", skippedCount).
		Int("errors", errorCount).
		Msg("Finished loading seed definitions")

	return nil
}

type seedResult int

const (
	seedLoaded seedResult = iota
	seedSkipped
	seedFailed
)

func (m *Manager) loadSeedTeam(ctx context.Context, file string, st SeedTeam) seedResult {
	if st.ID == "" || st.Name == "" {
		m.logger.Warn().
			Str("file", file).
			Str("team", st.Name).
			Msg("Skipping team seed: id and name are required")
		return seedSkipped
	}

	team := &models.Team{
		ID:          st.ID,
		Name:        st.Name,
		Description: st.Description,
	}

	// Reloading a seed must not flip a deactivated team back on or
	// reset its creation time
	if existing, err := m.teams.GetTeam(ctx, st.ID); err == nil {
		team.CreatedAt = existing.CreatedAt
		team.Active = existing.Active
	}

	if err := m.teams.SaveTeam(ctx, team); err != nil {
		m.logger.Warn().Err(err).
			Str("file", file).
			Str("team", st.ID).
			Msg("Failed to save team seed")
		return seedFailed
	}

	m.logger.Debug().Str("team", st.ID).Msg("Loaded team seed")
	return seedLoaded
}

func (m *Manager) loadSeedIntegration(ctx context.Context, file string, si SeedIntegration, kvMap map[string]string) seedResult {
	if si.ID == "" || si.Name == "" {
		m.logger.Warn().
			Str("file", file).
			Str("integration", si.Name).
			Msg("Skipping integration seed: id and name are required")
		return seedSkipped
	}

	if !models.IntegrationType(si.Type).IsValid() {
		m.logger.Warn().
			Str("file", file).
			Str("integration", si.ID).
			Str("type", si.Type).
			Msg("Skipping integration seed: unknown type, valid types are: github, jira, trello")
		return seedSkipped
	}

	if si.Config != nil {
		if err := common.ReplaceInMap(si.Config, kvMap, m.logger); err != nil {
			m.logger.Warn().Err(err).
				Str("file", file).
				Str("integration", si.ID).
				Msg("Failed to substitute keys in seed config")
		}
	}

	configJSON, err := json.Marshal(si.Config)
	if err != nil {
		m.logger.Warn().Err(err).
			Str("file", file).
			Str("integration", si.ID).
			Msg("Failed to marshal seed config")
		return seedFailed
	}

	integration := &models.Integration{
		ID:     si.ID,
		TeamID: si.TeamID,
		Name:   si.Name,
		Type:   models.IntegrationType(si.Type),
		Credentials: models.Credentials{
			Token:    common.ReplaceKeyReferences(si.Credentials.Token, kvMap, m.logger),
			Username: common.ReplaceKeyReferences(si.Credentials.Username, kvMap, m.logger),
			APIKey:   common.ReplaceKeyReferences(si.Credentials.APIKey, kvMap, m.logger),
		},
		Config: configJSON,
	}

	// Preserve the sync lifecycle across reloads: a seed update changes
	// config and credentials, not the integration's sync history
	if existing, err := m.integrations.GetIntegration(ctx, si.ID); err == nil {
		integration.CreatedAt = existing.CreatedAt
		integration.Status = existing.Status
		integration.LastSync = existing.LastSync
		integration.LastError = existing.LastError
	}

	if err := m.integrations.SaveIntegration(ctx, integration); err != nil {
		m.logger.Warn().Err(err).
			Str("file", file).
			Str("integration", si.ID).
			Msg("Failed to save integration seed")
		return seedFailed
	}

	m.logger.Debug().
		Str("integration", si.ID).
		Str("type", si.Type).
		Msg("Loaded integration seed")
	return seedLoaded
}
