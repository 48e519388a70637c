package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pulse/internal/interfaces"
	"github.com/ternarybob/pulse/internal/models"
	"github.com/ternarybob/pulse/internal/services/cache"
)

var validate = validator.New()

// IntegrationRequest is the create/update payload for an integration.
// Credentials are accepted here but never echoed back in responses.
type IntegrationRequest struct {
	TeamID      string             `json:"team_id" validate:"required"`
	Name        string             `json:"name" validate:"required"`
	Type        string             `json:"type" validate:"required,oneof=github jira trello"`
	Credentials models.Credentials `json:"credentials"`
	Config      json.RawMessage    `json:"config" validate:"required"`
}

// Validate checks the request shape. Per-type config validation happens
// in the model when the integration is saved.
func (req *IntegrationRequest) Validate() error {
	return validate.Struct(req)
}

// IntegrationResponse is the API view of an integration with the
// credential material stripped.
type IntegrationResponse struct {
	ID        string                   `json:"id"`
	TeamID    string                   `json:"team_id"`
	Name      string                   `json:"name"`
	Type      models.IntegrationType   `json:"type"`
	Config    json.RawMessage          `json:"config"`
	Status    models.IntegrationStatus `json:"status"`
	LastSync  *time.Time               `json:"last_sync,omitempty"`
	LastError string                   `json:"last_error,omitempty"`
	CreatedAt time.Time                `json:"created_at"`
	UpdatedAt time.Time                `json:"updated_at"`
}

func toIntegrationResponse(integration *models.Integration) *IntegrationResponse {
	return &IntegrationResponse{
		ID:        integration.ID,
		TeamID:    integration.TeamID,
		Name:      integration.Name,
		Type:      integration.Type,
		Config:    integration.Config,
		Status:    integration.Status,
		LastSync:  integration.LastSync,
		LastError: integration.LastError,
		CreatedAt: integration.CreatedAt,
		UpdatedAt: integration.UpdatedAt,
	}
}

// IntegrationHandler handles HTTP requests for integration management
// and the per-integration sync and metrics endpoints.
type IntegrationHandler struct {
	storage     interfaces.StorageManager
	syncService interfaces.SyncService
	cache       interfaces.CacheService
	events      interfaces.EventService
	logger      arbor.ILogger
}

// NewIntegrationHandler creates a new IntegrationHandler
func NewIntegrationHandler(
	storage interfaces.StorageManager,
	syncService interfaces.SyncService,
	cacheSvc interfaces.CacheService,
	eventSvc interfaces.EventService,
	logger arbor.ILogger,
) *IntegrationHandler {
	return &IntegrationHandler{
		storage:     storage,
		syncService: syncService,
		cache:       cacheSvc,
		events:      eventSvc,
		logger:      logger,
	}
}

// ListIntegrationsHandler handles GET /api/integrations
func (h *IntegrationHandler) ListIntegrationsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	var integrations []*models.Integration
	var err error
	if teamID := r.URL.Query().Get("team_id"); teamID != "" {
		integrations, err = h.storage.IntegrationStorage().ListIntegrationsByTeam(r.Context(), teamID)
	} else {
		integrations, err = h.storage.IntegrationStorage().ListIntegrations(r.Context())
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list integrations")
		WriteError(w, http.StatusInternalServerError, "Failed to list integrations")
		return
	}

	responses := make([]*IntegrationResponse, 0, len(integrations))
	for _, integration := range integrations {
		responses = append(responses, toIntegrationResponse(integration))
	}

	WriteJSON(w, http.StatusOK, responses)
}

// GetIntegrationHandler handles GET /api/integrations/{id}
func (h *IntegrationHandler) GetIntegrationHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	id := extractIDFromPath(r.URL.Path, "/api/integrations/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Integration ID is required")
		return
	}

	integration, err := h.storage.IntegrationStorage().GetIntegration(r.Context(), id)
	if err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			WriteError(w, http.StatusNotFound, "Integration not found")
		} else {
			h.logger.Error().Err(err).Str("id", id).Msg("Failed to get integration")
			WriteError(w, http.StatusInternalServerError, "Failed to get integration")
		}
		return
	}

	WriteJSON(w, http.StatusOK, toIntegrationResponse(integration))
}

// CreateIntegrationHandler handles POST /api/integrations
func (h *IntegrationHandler) CreateIntegrationHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req IntegrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	integration := &models.Integration{
		TeamID:      req.TeamID,
		Name:        req.Name,
		Type:        models.IntegrationType(req.Type),
		Credentials: req.Credentials,
		Config:      req.Config,
	}

	if err := h.storage.IntegrationStorage().SaveIntegration(r.Context(), integration); err != nil {
		if strings.Contains(err.Error(), "invalid integration") {
			WriteError(w, http.StatusBadRequest, err.Error())
		} else {
			h.logger.Error().Err(err).Msg("Failed to create integration")
			WriteError(w, http.StatusInternalServerError, "Failed to create integration")
		}
		return
	}

	h.logger.Info().
		Str("id", integration.ID).
		Str("type", string(integration.Type)).
		Str("team_id", integration.TeamID).
		Msg("Integration created")

	h.publishEvent(r, interfaces.EventIntegrationCreated, map[string]interface{}{
		"integration_id": integration.ID,
		"type":           string(integration.Type),
		"team_id":        integration.TeamID,
	})

	WriteJSON(w, http.StatusCreated, toIntegrationResponse(integration))
}

// UpdateIntegrationHandler handles PUT /api/integrations/{id}. A config
// edit invalidates the integration's cache entries so the next metrics
// read reflects the new source.
func (h *IntegrationHandler) UpdateIntegrationHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "PUT") {
		return
	}

	id := extractIDFromPath(r.URL.Path, "/api/integrations/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Integration ID is required")
		return
	}

	var req IntegrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	existing, err := h.storage.IntegrationStorage().GetIntegration(r.Context(), id)
	if err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			WriteError(w, http.StatusNotFound, "Integration not found")
		} else {
			h.logger.Error().Err(err).Str("id", id).Msg("Failed to load integration")
			WriteError(w, http.StatusInternalServerError, "Failed to update integration")
		}
		return
	}

	existing.TeamID = req.TeamID
	existing.Name = req.Name
	existing.Type = models.IntegrationType(req.Type)
	existing.Config = req.Config
	// An empty credentials object keeps the stored secret so clients
	// can edit config without re-entering tokens
	if req.Credentials != (models.Credentials{}) {
		existing.Credentials = req.Credentials
	}

	if err := h.storage.IntegrationStorage().UpdateIntegration(r.Context(), existing); err != nil {
		if strings.Contains(err.Error(), "invalid integration") {
			WriteError(w, http.StatusBadRequest, err.Error())
		} else {
			h.logger.Error().Err(err).Str("id", id).Msg("Failed to update integration")
			WriteError(w, http.StatusInternalServerError, "Failed to update integration")
		}
		return
	}

	if err := h.cache.InvalidateIntegration(r.Context(), id); err != nil {
		h.logger.Warn().Err(err).Str("id", id).Msg("Cache invalidation failed")
	}

	h.publishEvent(r, interfaces.EventIntegrationUpdated, map[string]interface{}{
		"integration_id": id,
		"type":           string(existing.Type),
	})

	WriteJSON(w, http.StatusOK, toIntegrationResponse(existing))
}

// DeleteIntegrationHandler handles DELETE /api/integrations/{id}.
// Snapshots and cache entries go with the integration.
func (h *IntegrationHandler) DeleteIntegrationHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "DELETE") {
		return
	}

	id := extractIDFromPath(r.URL.Path, "/api/integrations/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Integration ID is required")
		return
	}

	if err := h.storage.IntegrationStorage().DeleteIntegration(r.Context(), id); err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			WriteError(w, http.StatusNotFound, "Integration not found")
		} else {
			h.logger.Error().Err(err).Str("id", id).Msg("Failed to delete integration")
			WriteError(w, http.StatusInternalServerError, "Failed to delete integration")
		}
		return
	}

	if _, err := h.storage.SnapshotStorage().DeleteSnapshots(r.Context(), id); err != nil {
		h.logger.Warn().Err(err).Str("id", id).Msg("Failed to delete snapshots")
	}
	if err := h.cache.InvalidateIntegration(r.Context(), id); err != nil {
		h.logger.Warn().Err(err).Str("id", id).Msg("Cache invalidation failed")
	}

	h.publishEvent(r, interfaces.EventIntegrationDeleted, map[string]interface{}{
		"integration_id": id,
	})

	w.WriteHeader(http.StatusNoContent)
}

// TriggerSyncHandler handles POST /api/integrations/{id}/sync. The sync
// runs in the background; the response carries the job ID for polling.
func (h *IntegrationHandler) TriggerSyncHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	id := extractIDFromPath(r.URL.Path, "/api/integrations/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Integration ID is required")
		return
	}

	job, err := h.syncService.EnqueueSync(r.Context(), id, models.SyncTriggerManual)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrSyncInFlight):
			WriteError(w, http.StatusConflict, "A sync for this integration is already in progress")
		case errors.Is(err, interfaces.ErrKeyNotFound):
			WriteError(w, http.StatusNotFound, "Integration not found")
		default:
			h.logger.Error().Err(err).Str("id", id).Msg("Failed to enqueue sync")
			WriteError(w, http.StatusInternalServerError, "Failed to enqueue sync")
		}
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"state":  string(job.State),
	})
}

// GetMetricsHandler handles GET /api/integrations/{id}/metrics. Reads
// fall through session cache, persistent cache, then storage; lower
// tiers are refilled on the way out.
func (h *IntegrationHandler) GetMetricsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	id := extractIDFromPath(r.URL.Path, "/api/integrations/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Integration ID is required")
		return
	}

	ctx := r.Context()
	key := cache.MetricsKey(id)

	if data, ok := h.cache.Get(ctx, models.CacheTierSession, key); ok {
		writeRawSnapshot(w, data)
		return
	}

	if data, ok := h.cache.Get(ctx, models.CacheTierPersistent, key); ok {
		if err := h.cache.Set(ctx, models.CacheTierSession, key, data); err != nil {
			h.logger.Warn().Err(err).Str("key", key).Msg("Session cache refill failed")
		}
		writeRawSnapshot(w, data)
		return
	}

	if _, err := h.storage.IntegrationStorage().GetIntegration(ctx, id); err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			WriteError(w, http.StatusNotFound, "Integration not found")
		} else {
			h.logger.Error().Err(err).Str("id", id).Msg("Failed to load integration")
			WriteError(w, http.StatusInternalServerError, "Failed to load metrics")
		}
		return
	}

	snapshot, err := h.storage.SnapshotStorage().GetLatestSnapshot(ctx, id)
	if err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			WriteError(w, http.StatusNotFound, "No metrics computed for this integration yet")
		} else {
			h.logger.Error().Err(err).Str("id", id).Msg("Failed to load snapshot")
			WriteError(w, http.StatusInternalServerError, "Failed to load metrics")
		}
		return
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to encode snapshot")
		WriteError(w, http.StatusInternalServerError, "Failed to load metrics")
		return
	}

	if err := h.cache.Set(ctx, models.CacheTierSession, key, data); err != nil {
		h.logger.Warn().Err(err).Str("key", key).Msg("Session cache refill failed")
	}
	if err := h.cache.Set(ctx, models.CacheTierPersistent, key, data); err != nil {
		h.logger.Warn().Err(err).Str("key", key).Msg("Persistent cache refill failed")
	}

	writeRawSnapshot(w, data)
}

// ListJobsHandler handles GET /api/integrations/{id}/jobs
func (h *IntegrationHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	id := extractIDFromPath(r.URL.Path, "/api/integrations/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Integration ID is required")
		return
	}

	limit := GetLimitParam(r, 20)
	jobs, err := h.storage.SyncJobStorage().ListJobsByIntegration(r.Context(), id, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []*models.SyncJob{}
	}

	WriteJSON(w, http.StatusOK, jobs)
}

// TypesHandler handles GET /api/integrations/types, listing the
// supported integration types and the metrics each produces.
func (h *IntegrationHandler) TypesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string][]string{
		string(models.IntegrationTypeGitHub): {
			"pr_count", "pr_merge_rate", "avg_time_to_merge_hours",
			"commit_count", "avg_commit_size", "author_distribution",
			"issue_count", "issue_close_rate", "avg_time_to_close_hours",
		},
		string(models.IntegrationTypeJira): {
			"issue_count", "issue_counts_by_type", "issue_counts_by_status",
			"completed_story_points", "avg_resolution_hours",
			"assignee_distribution", "board_count", "sprint_count",
			"active_sprint_count",
		},
		string(models.IntegrationTypeTrello): {
			"card_count", "card_counts_by_list", "open_card_count",
			"closed_card_count", "cards_with_due_count",
			"overdue_card_count", "avg_checklist_completion",
			"label_distribution", "member_distribution",
		},
	})
}

// writeRawSnapshot serves an already-encoded snapshot payload
func writeRawSnapshot(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *IntegrationHandler) publishEvent(r *http.Request, eventType interfaces.EventType, payload map[string]interface{}) {
	if h.events == nil {
		return
	}
	// Subscribers run async and outlive the request, so the event carries
	// a background context rather than the request's
	if err := h.events.Publish(context.Background(), interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		h.logger.Warn().Err(err).Str("event", string(eventType)).Msg("Failed to publish event")
	}
}
