package badger

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pulse/internal/models"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	db := newTestDB(t)
	logger := arbor.NewLogger()
	return &Manager{
		db:           db,
		logger:       logger,
		integrations: NewIntegrationStorage(db, logger),
		teams:        NewTeamStorage(db, logger),
		snapshots:    NewSnapshotStorage(db, logger),
		jobs:         NewSyncJobStorage(db, logger),
		cache:        NewCacheStorage(db, logger),
		kv:           NewKVStorage(db, logger),
	}
}

func newSeedDir(t *testing.T) string {
	t.Helper()

	dir, err := ioutil.TempDir("", "seeds-test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func writeSeedFile(t *testing.T, dir, name, content string) {
	t.Helper()

	if err := ioutil.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write seed file: %v", err)
	}
}

func TestLoadSeedsFromFiles(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	if err := manager.kv.Set(ctx, "github-token", "ghp_secret123"); err != nil {
		t.Fatalf("Failed to set KV key: %v", err)
	}

	dir := newSeedDir(t)
	writeSeedFile(t, dir, "platform.yaml", `
teams:
  - id: team-platform
    name: Platform
    description: Core platform team
integrations:
  - id: int-platform-api
    team_id: team-platform
    name: platform-api
    type: github
    credentials:
      token: "{github-token}"
    config:
      repository: acme/platform-api
  - id: int-platform-board
    team_id: team-platform
    name: platform-board
    type: trello
    credentials:
      api_key: trello-key
      token: trello-token
    config:
      board_id: board123
`)

	if err := manager.LoadSeedsFromFiles(ctx, dir); err != nil {
		t.Fatalf("Failed to load seeds: %v", err)
	}

	team, err := manager.teams.GetTeam(ctx, "team-platform")
	if err != nil {
		t.Fatalf("Failed to get seeded team: %v", err)
	}
	if team.Name != "Platform" {
		t.Errorf("Expected team name Platform, got %q", team.Name)
	}
	if !team.Active {
		t.Error("Expected seeded team to be active")
	}

	integration, err := manager.integrations.GetIntegration(ctx, "int-platform-api")
	if err != nil {
		t.Fatalf("Failed to get seeded integration: %v", err)
	}
	if integration.TeamID != "team-platform" {
		t.Errorf("Expected team reference team-platform, got %q", integration.TeamID)
	}
	if integration.Credentials.Token != "ghp_secret123" {
		t.Errorf("Expected KV-substituted token, got %q", integration.Credentials.Token)
	}
	if integration.Status != models.IntegrationStatusPending {
		t.Errorf("Expected pending status on first load, got %q", integration.Status)
	}

	var cfg models.GitHubIntegrationConfig
	if err := json.Unmarshal(integration.Config, &cfg); err != nil {
		t.Fatalf("Failed to decode stored config: %v", err)
	}
	if cfg.Repository != "acme/platform-api" {
		t.Errorf("Expected repository acme/platform-api, got %q", cfg.Repository)
	}

	if _, err := manager.integrations.GetIntegration(ctx, "int-platform-board"); err != nil {
		t.Fatalf("Failed to get trello seed: %v", err)
	}
}

// TestLoadSeedsReloadPreservesLifecycle reloads an edited seed file and
// checks that sync state and deactivation survive the reload
func TestLoadSeedsReloadPreservesLifecycle(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	dir := newSeedDir(t)

	writeSeedFile(t, dir, "platform.yaml", `
teams:
  - id: team-platform
    name: Platform
integrations:
  - id: int-platform-api
    team_id: team-platform
    name: platform-api
    type: github
    credentials:
      token: ghp_first
    config:
      repository: acme/platform-api
`)
	if err := manager.LoadSeedsFromFiles(ctx, dir); err != nil {
		t.Fatalf("Failed to load seeds: %v", err)
	}

	originalTeam, err := manager.teams.GetTeam(ctx, "team-platform")
	if err != nil {
		t.Fatalf("Failed to get team: %v", err)
	}
	originalIntegration, err := manager.integrations.GetIntegration(ctx, "int-platform-api")
	if err != nil {
		t.Fatalf("Failed to get integration: %v", err)
	}

	// Simulate life after the first load: the team is retired and the
	// integration has completed a sync
	if err := manager.teams.DeactivateTeam(ctx, "team-platform"); err != nil {
		t.Fatalf("Failed to deactivate team: %v", err)
	}
	lastSync := time.Now().UTC().Add(-time.Hour)
	if err := manager.integrations.UpdateSyncState(ctx, "int-platform-api", models.IntegrationStatusActive, &lastSync, ""); err != nil {
		t.Fatalf("Failed to update sync state: %v", err)
	}

	writeSeedFile(t, dir, "platform.yaml", `
teams:
  - id: team-platform
    name: Platform Core
integrations:
  - id: int-platform-api
    team_id: team-platform
    name: platform-api-v2
    type: github
    credentials:
      token: ghp_second
    config:
      repository: acme/platform-api-v2
`)
	if err := manager.LoadSeedsFromFiles(ctx, dir); err != nil {
		t.Fatalf("Failed to reload seeds: %v", err)
	}

	team, err := manager.teams.GetTeam(ctx, "team-platform")
	if err != nil {
		t.Fatalf("Failed to get reloaded team: %v", err)
	}
	if team.Name != "Platform Core" {
		t.Errorf("Expected renamed team, got %q", team.Name)
	}
	if team.Active {
		t.Error("Reload must not reactivate a deactivated team")
	}
	if !team.CreatedAt.Equal(originalTeam.CreatedAt) {
		t.Error("Reload must preserve team CreatedAt")
	}

	integration, err := manager.integrations.GetIntegration(ctx, "int-platform-api")
	if err != nil {
		t.Fatalf("Failed to get reloaded integration: %v", err)
	}
	if integration.Name != "platform-api-v2" {
		t.Errorf("Expected renamed integration, got %q", integration.Name)
	}
	if integration.Credentials.Token != "ghp_second" {
		t.Errorf("Expected updated credentials, got %q", integration.Credentials.Token)
	}
	if integration.Status != models.IntegrationStatusActive {
		t.Errorf("Reload must preserve sync status, got %q", integration.Status)
	}
	if integration.LastSync == nil || !integration.LastSync.Equal(lastSync) {
		t.Errorf("Reload must preserve LastSync, got %v", integration.LastSync)
	}
	if !integration.CreatedAt.Equal(originalIntegration.CreatedAt) {
		t.Error("Reload must preserve integration CreatedAt")
	}
}

func TestLoadSeedsSkipsInvalidEntries(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	dir := newSeedDir(t)

	writeSeedFile(t, dir, "mixed.yaml", `
teams:
  - name: Missing ID
  - id: team-ok
    name: Valid Team
integrations:
  - id: int-bad-type
    team_id: team-ok
    name: bad-type
    type: gitlab
    config:
      repository: acme/repo
  - id: int-bad-config
    team_id: team-ok
    name: bad-config
    type: github
    config:
      repository: not-owner-slash-name
`)

	if err := manager.LoadSeedsFromFiles(ctx, dir); err != nil {
		t.Fatalf("Expected invalid entries to be skipped, got %v", err)
	}

	if _, err := manager.teams.GetTeam(ctx, "team-ok"); err != nil {
		t.Fatalf("Expected valid team to load: %v", err)
	}
	teams, err := manager.teams.ListTeams(ctx, false)
	if err != nil {
		t.Fatalf("Failed to list teams: %v", err)
	}
	if len(teams) != 1 {
		t.Errorf("Expected 1 team, got %d", len(teams))
	}

	integrations, err := manager.integrations.ListIntegrations(ctx)
	if err != nil {
		t.Fatalf("Failed to list integrations: %v", err)
	}
	if len(integrations) != 0 {
		t.Errorf("Expected invalid integrations to be rejected, got %d", len(integrations))
	}
}

func TestLoadSeedsMalformedFile(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	dir := newSeedDir(t)

	writeSeedFile(t, dir, "broken.yaml", "teams: [unclosed")
	writeSeedFile(t, dir, "good.yaml", "teams:\n  - id: team-a\n    name: Alpha\n")
	writeSeedFile(t, dir, "notes.txt", "not a seed file")

	if err := manager.LoadSeedsFromFiles(ctx, dir); err != nil {
		t.Fatalf("Expected malformed file to be skipped, got %v", err)
	}

	if _, err := manager.teams.GetTeam(ctx, "team-a"); err != nil {
		t.Fatalf("Expected the well-formed file to load: %v", err)
	}
}

func TestLoadSeedsMissingDirectory(t *testing.T) {
	manager := newTestManager(t)

	missing := filepath.Join(os.TempDir(), "pulse-seeds-does-not-exist")
	if err := manager.LoadSeedsFromFiles(context.Background(), missing); err != nil {
		t.Fatalf("Expected missing directory to be a no-op, got %v", err)
	}
}
