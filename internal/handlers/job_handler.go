package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pulse/internal/interfaces"
	"github.com/ternarybob/pulse/internal/models"
	"github.com/ternarybob/pulse/internal/services/cache"
)

// JobHandler handles HTTP requests for sync job history
type JobHandler struct {
	storage interfaces.StorageManager
	cache   interfaces.CacheService
	logger  arbor.ILogger
}

// NewJobHandler creates a new JobHandler
func NewJobHandler(storage interfaces.StorageManager, cacheSvc interfaces.CacheService, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		storage: storage,
		cache:   cacheSvc,
		logger:  logger,
	}
}

// JobResponse pairs a job record with its cached attempt result when
// one is still in the task-result tier.
type JobResponse struct {
	Job    *models.SyncJob `json:"job"`
	Result json.RawMessage `json:"result,omitempty"`
}

// ListJobsHandler handles GET /api/jobs
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	limit := GetLimitParam(r, 50)
	jobs, err := h.storage.SyncJobStorage().ListJobs(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []*models.SyncJob{}
	}

	WriteJSON(w, http.StatusOK, jobs)
}

// GetJobHandler handles GET /api/jobs/{id}, for polling a triggered sync
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	id := extractIDFromPath(r.URL.Path, "/api/jobs/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	job, err := h.storage.SyncJobStorage().GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			WriteError(w, http.StatusNotFound, "Job not found")
		} else {
			h.logger.Error().Err(err).Str("id", id).Msg("Failed to get job")
			WriteError(w, http.StatusInternalServerError, "Failed to get job")
		}
		return
	}

	response := JobResponse{Job: job}
	if data, ok := h.cache.Get(r.Context(), models.CacheTierTaskResult, cache.TaskResultKey(id)); ok {
		response.Result = data
	}

	WriteJSON(w, http.StatusOK, response)
}
