package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pulse/internal/models"
)

func (e *testEnv) teamHandler() *TeamHandler {
	return NewTeamHandler(e.storage, e.config, nil, arbor.NewLogger())
}

func createTeamViaAPI(t *testing.T, handler *TeamHandler, name string) *models.Team {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"name": name, "description": "test team"})
	req := httptest.NewRequest("POST", "/api/teams", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.CreateTeamHandler(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var team models.Team
	if err := json.NewDecoder(rec.Body).Decode(&team); err != nil {
		t.Fatalf("Failed to decode team: %v", err)
	}
	return &team
}

func TestTeamCRUDEndpoints(t *testing.T) {
	env := newTestEnv(t)
	handler := env.teamHandler()

	// Create
	team := createTeamViaAPI(t, handler, "Platform")
	if team.ID == "" {
		t.Fatal("Expected generated team ID")
	}
	if !team.Active {
		t.Error("Expected new team to be active")
	}

	// Create without a name fails validation
	req := httptest.NewRequest("POST", "/api/teams", bytes.NewReader([]byte(`{"description":"no name"}`)))
	rec := httptest.NewRecorder()
	handler.CreateTeamHandler(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for missing name, got %d", rec.Code)
	}

	// Get
	req = httptest.NewRequest("GET", "/api/teams/"+team.ID, nil)
	rec = httptest.NewRecorder()
	handler.GetTeamHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	// Update
	updateBody, _ := json.Marshal(map[string]string{"name": "Platform Core"})
	req = httptest.NewRequest("PUT", "/api/teams/"+team.ID, bytes.NewReader(updateBody))
	rec = httptest.NewRecorder()
	handler.UpdateTeamHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var updated models.Team
	json.NewDecoder(rec.Body).Decode(&updated)
	if updated.Name != "Platform Core" {
		t.Errorf("Expected name 'Platform Core', got %q", updated.Name)
	}

	// Delete is a soft-delete
	req = httptest.NewRequest("DELETE", "/api/teams/"+team.ID, nil)
	rec = httptest.NewRecorder()
	handler.DeleteTeamHandler(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d", rec.Code)
	}

	// The team still resolves, just inactive
	req = httptest.NewRequest("GET", "/api/teams/"+team.ID, nil)
	rec = httptest.NewRecorder()
	handler.GetTeamHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200 after soft delete, got %d", rec.Code)
	}
	var deleted models.Team
	json.NewDecoder(rec.Body).Decode(&deleted)
	if deleted.Active {
		t.Error("Expected team to be inactive after delete")
	}

	// Default list hides inactive teams
	req = httptest.NewRequest("GET", "/api/teams", nil)
	rec = httptest.NewRecorder()
	handler.ListTeamsHandler(rec, req)
	var teams []*models.Team
	json.NewDecoder(rec.Body).Decode(&teams)
	if len(teams) != 0 {
		t.Errorf("Expected 0 active teams, got %d", len(teams))
	}

	req = httptest.NewRequest("GET", "/api/teams?include_inactive=true", nil)
	rec = httptest.NewRecorder()
	handler.ListTeamsHandler(rec, req)
	json.NewDecoder(rec.Body).Decode(&teams)
	if len(teams) != 1 {
		t.Errorf("Expected 1 team including inactive, got %d", len(teams))
	}

	// PUT with active=true restores the team
	restoreBody, _ := json.Marshal(map[string]interface{}{"name": "Platform Core", "active": true})
	req = httptest.NewRequest("PUT", "/api/teams/"+team.ID, bytes.NewReader(restoreBody))
	rec = httptest.NewRecorder()
	handler.UpdateTeamHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	req = httptest.NewRequest("GET", "/api/teams", nil)
	rec = httptest.NewRecorder()
	handler.ListTeamsHandler(rec, req)
	json.NewDecoder(rec.Body).Decode(&teams)
	if len(teams) != 1 {
		t.Errorf("Expected restored team in active list, got %d teams", len(teams))
	}
}

func TestTeamNotFoundResponses(t *testing.T) {
	env := newTestEnv(t)
	handler := env.teamHandler()

	req := httptest.NewRequest("GET", "/api/teams/missing", nil)
	rec := httptest.NewRecorder()
	handler.GetTeamHandler(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}

	req = httptest.NewRequest("DELETE", "/api/teams/missing", nil)
	rec = httptest.NewRecorder()
	handler.DeleteTeamHandler(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}

	req = httptest.NewRequest("GET", "/api/teams/missing/metrics", nil)
	rec = httptest.NewRecorder()
	handler.GetTeamMetricsHandler(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}

func TestGetTeamMetricsAggregation(t *testing.T) {
	env := newTestEnv(t)
	handler := env.teamHandler()
	ctx := context.Background()

	team := createTeamViaAPI(t, handler, "Platform")

	// Two member integrations, only one with a snapshot
	synced := &models.Integration{
		TeamID:      team.ID,
		Name:        "Backend Repo",
		Type:        models.IntegrationTypeGitHub,
		Credentials: models.Credentials{Token: "ghp_test"},
		Config:      json.RawMessage(`{"repository":"acme/api"}`),
	}
	pending := &models.Integration{
		TeamID:      team.ID,
		Name:        "Board",
		Type:        models.IntegrationTypeTrello,
		Credentials: models.Credentials{APIKey: "key", Token: "token"},
		Config:      json.RawMessage(`{"board_id":"b1"}`),
	}
	for _, integration := range []*models.Integration{synced, pending} {
		if err := env.storage.IntegrationStorage().SaveIntegration(ctx, integration); err != nil {
			t.Fatalf("Failed to save integration: %v", err)
		}
	}

	snapshot := &models.MetricSnapshot{
		IntegrationID: synced.ID,
		Type:          models.IntegrationTypeGitHub,
		ComputedAt:    time.Now().UTC(),
		WindowDays:    30,
		Metrics:       json.RawMessage(`{"pr_count":5,"commit_count":12}`),
		Maturity: &models.MaturityScores{
			Collaboration:          80,
			TechnicalPractices:     60,
			DeliveryPredictability: 70,
			Quality:                90,
			Overall:                75,
			Level:                  models.MaturityLevelEstablished,
		},
	}
	if err := env.storage.SnapshotStorage().SaveSnapshot(ctx, snapshot); err != nil {
		t.Fatalf("Failed to save snapshot: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/teams/"+team.ID+"/metrics", nil)
	rec := httptest.NewRecorder()
	handler.GetTeamMetricsHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var metrics models.TeamMetrics
	if err := json.NewDecoder(rec.Body).Decode(&metrics); err != nil {
		t.Fatalf("Failed to decode team metrics: %v", err)
	}

	if metrics.TeamID != team.ID {
		t.Errorf("Expected team ID %s, got %s", team.ID, metrics.TeamID)
	}
	if len(metrics.Integrations) != 2 {
		t.Fatalf("Expected 2 member entries, got %d", len(metrics.Integrations))
	}
	if metrics.Integrations[synced.ID] == nil {
		t.Error("Expected snapshot for synced integration")
	}
	if metrics.Integrations[pending.ID] != nil {
		t.Error("Expected nil entry for integration without snapshot")
	}

	if metrics.Summary.MemberCount != 2 {
		t.Errorf("Expected member count 2, got %d", metrics.Summary.MemberCount)
	}
	if metrics.Summary.MissingCount != 1 {
		t.Errorf("Expected missing count 1, got %d", metrics.Summary.MissingCount)
	}
	if metrics.Summary.Velocity != 5 {
		t.Errorf("Expected velocity 5, got %d", metrics.Summary.Velocity)
	}
	if metrics.Summary.Maturity == nil {
		t.Fatal("Expected aggregated maturity scores")
	}
	if metrics.Summary.Quality == nil || *metrics.Summary.Quality != 90 {
		t.Errorf("Expected quality 90, got %v", metrics.Summary.Quality)
	}
	if metrics.Summary.StaleSince != nil {
		t.Errorf("Expected fresh snapshot, got stale since %v", metrics.Summary.StaleSince)
	}
}

func TestGetTeamMetricsEmptyTeam(t *testing.T) {
	env := newTestEnv(t)
	handler := env.teamHandler()

	team := createTeamViaAPI(t, handler, "New Team")

	req := httptest.NewRequest("GET", "/api/teams/"+team.ID+"/metrics", nil)
	rec := httptest.NewRecorder()
	handler.GetTeamMetricsHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for empty team, got %d", rec.Code)
	}

	var metrics models.TeamMetrics
	json.NewDecoder(rec.Body).Decode(&metrics)
	if metrics.Summary.MemberCount != 0 {
		t.Errorf("Expected member count 0, got %d", metrics.Summary.MemberCount)
	}
	if metrics.Summary.Maturity != nil {
		t.Error("Expected no maturity roll-up for empty team")
	}
}
