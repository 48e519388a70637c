package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pulse/internal/common"
	"github.com/ternarybob/pulse/internal/interfaces"
	"github.com/ternarybob/pulse/internal/metrics"
	"github.com/ternarybob/pulse/internal/models"
)

// TeamRequest is the create/update payload for a team. Active is only
// honored on update, where setting it true restores a soft-deleted team.
type TeamRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Active      *bool  `json:"active,omitempty"`
}

func (req *TeamRequest) Validate() error {
	return validate.Struct(req)
}

// TeamHandler handles HTTP requests for team management and the
// aggregated team metrics endpoint.
type TeamHandler struct {
	storage interfaces.StorageManager
	config  *common.Config
	events  interfaces.EventService
	logger  arbor.ILogger
}

// NewTeamHandler creates a new TeamHandler
func NewTeamHandler(
	storage interfaces.StorageManager,
	config *common.Config,
	eventSvc interfaces.EventService,
	logger arbor.ILogger,
) *TeamHandler {
	return &TeamHandler{
		storage: storage,
		config:  config,
		events:  eventSvc,
		logger:  logger,
	}
}

// ListTeamsHandler handles GET /api/teams. Active teams only unless
// ?include_inactive=true.
func (h *TeamHandler) ListTeamsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	activeOnly := r.URL.Query().Get("include_inactive") != "true"
	teams, err := h.storage.TeamStorage().ListTeams(r.Context(), activeOnly)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list teams")
		WriteError(w, http.StatusInternalServerError, "Failed to list teams")
		return
	}
	if teams == nil {
		teams = []*models.Team{}
	}

	WriteJSON(w, http.StatusOK, teams)
}

// GetTeamHandler handles GET /api/teams/{id}
func (h *TeamHandler) GetTeamHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	id := extractIDFromPath(r.URL.Path, "/api/teams/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Team ID is required")
		return
	}

	team, err := h.storage.TeamStorage().GetTeam(r.Context(), id)
	if err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			WriteError(w, http.StatusNotFound, "Team not found")
		} else {
			h.logger.Error().Err(err).Str("id", id).Msg("Failed to get team")
			WriteError(w, http.StatusInternalServerError, "Failed to get team")
		}
		return
	}

	WriteJSON(w, http.StatusOK, team)
}

// CreateTeamHandler handles POST /api/teams
func (h *TeamHandler) CreateTeamHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req TeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	team := &models.Team{
		Name:        req.Name,
		Description: req.Description,
	}
	if err := h.storage.TeamStorage().SaveTeam(r.Context(), team); err != nil {
		h.logger.Error().Err(err).Msg("Failed to create team")
		WriteError(w, http.StatusInternalServerError, "Failed to create team")
		return
	}

	h.logger.Info().Str("id", team.ID).Str("name", team.Name).Msg("Team created")

	h.publishEvent(r, interfaces.EventTeamCreated, map[string]interface{}{
		"team_id": team.ID,
		"name":    team.Name,
	})

	WriteJSON(w, http.StatusCreated, team)
}

// UpdateTeamHandler handles PUT /api/teams/{id}
func (h *TeamHandler) UpdateTeamHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "PUT") {
		return
	}

	id := extractIDFromPath(r.URL.Path, "/api/teams/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Team ID is required")
		return
	}

	var req TeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	team, err := h.storage.TeamStorage().GetTeam(r.Context(), id)
	if err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			WriteError(w, http.StatusNotFound, "Team not found")
		} else {
			h.logger.Error().Err(err).Str("id", id).Msg("Failed to load team")
			WriteError(w, http.StatusInternalServerError, "Failed to update team")
		}
		return
	}

	team.Name = req.Name
	team.Description = req.Description
	if req.Active != nil {
		team.Active = *req.Active
	}

	if err := h.storage.TeamStorage().UpdateTeam(r.Context(), team); err != nil {
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to update team")
		WriteError(w, http.StatusInternalServerError, "Failed to update team")
		return
	}

	h.publishEvent(r, interfaces.EventTeamUpdated, map[string]interface{}{
		"team_id": team.ID,
	})

	WriteJSON(w, http.StatusOK, team)
}

// DeleteTeamHandler handles DELETE /api/teams/{id}. Teams are
// soft-deleted so their integrations and snapshots keep resolving.
func (h *TeamHandler) DeleteTeamHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "DELETE") {
		return
	}

	id := extractIDFromPath(r.URL.Path, "/api/teams/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Team ID is required")
		return
	}

	if err := h.storage.TeamStorage().DeactivateTeam(r.Context(), id); err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			WriteError(w, http.StatusNotFound, "Team not found")
		} else {
			h.logger.Error().Err(err).Str("id", id).Msg("Failed to deactivate team")
			WriteError(w, http.StatusInternalServerError, "Failed to delete team")
		}
		return
	}

	h.publishEvent(r, interfaces.EventTeamDeactivated, map[string]interface{}{
		"team_id": id,
	})

	w.WriteHeader(http.StatusNoContent)
}

// GetTeamMetricsHandler handles GET /api/teams/{id}/metrics: the latest
// snapshot per member integration plus the roll-up summary.
func (h *TeamHandler) GetTeamMetricsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	id := extractIDFromPath(r.URL.Path, "/api/teams/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Team ID is required")
		return
	}

	ctx := r.Context()
	if _, err := h.storage.TeamStorage().GetTeam(ctx, id); err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			WriteError(w, http.StatusNotFound, "Team not found")
		} else {
			h.logger.Error().Err(err).Str("id", id).Msg("Failed to load team")
			WriteError(w, http.StatusInternalServerError, "Failed to load team metrics")
		}
		return
	}

	integrations, err := h.storage.IntegrationStorage().ListIntegrationsByTeam(ctx, id)
	if err != nil {
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to list team integrations")
		WriteError(w, http.StatusInternalServerError, "Failed to load team metrics")
		return
	}

	snapshots := make(map[string]*models.MetricSnapshot, len(integrations))
	for _, integration := range integrations {
		snapshot, err := h.storage.SnapshotStorage().GetLatestSnapshot(ctx, integration.ID)
		if err != nil {
			if !errors.Is(err, interfaces.ErrKeyNotFound) {
				h.logger.Warn().Err(err).Str("integration_id", integration.ID).Msg("Failed to load snapshot")
			}
			snapshots[integration.ID] = nil
			continue
		}
		snapshots[integration.ID] = snapshot
	}

	summary := metrics.BuildTeamSummary(snapshots)
	summary.StaleSince = h.oldestStaleSince(snapshots)

	WriteJSON(w, http.StatusOK, &models.TeamMetrics{
		TeamID:       id,
		Integrations: snapshots,
		Summary:      summary,
		GeneratedAt:  time.Now().UTC(),
	})
}

// oldestStaleSince finds the member snapshot that has been stale the
// longest, measured against the sweep cadence. Nil when every member is
// fresh or has never synced.
func (h *TeamHandler) oldestStaleSince(snapshots map[string]*models.MetricSnapshot) *time.Time {
	interval := h.config.Scheduler.SweepInterval()
	now := time.Now()

	var oldest time.Time
	for _, snapshot := range snapshots {
		if snapshot == nil {
			continue
		}
		since := common.StaleSince(snapshot.ComputedAt, now, interval)
		if since.IsZero() {
			continue
		}
		if oldest.IsZero() || since.Before(oldest) {
			oldest = since
		}
	}
	if oldest.IsZero() {
		return nil
	}
	return &oldest
}

func (h *TeamHandler) publishEvent(r *http.Request, eventType interfaces.EventType, payload map[string]interface{}) {
	if h.events == nil {
		return
	}
	// Subscribers run async and outlive the request, so the event carries
	// a background context rather than the request's
	if err := h.events.Publish(context.Background(), interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		h.logger.Warn().Err(err).Str("event", string(eventType)).Msg("Failed to publish event")
	}
}
