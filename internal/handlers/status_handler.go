package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pulse/internal/interfaces"
)

// StatusHandler reports runtime state for the status endpoint
type StatusHandler struct {
	storage   interfaces.StorageManager
	queue     interfaces.QueueManager
	cache     interfaces.CacheService
	scheduler interfaces.SchedulerService
	logger    arbor.ILogger
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(storage interfaces.StorageManager, queueMgr interfaces.QueueManager, cacheSvc interfaces.CacheService, scheduler interfaces.SchedulerService, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		storage:   storage,
		queue:     queueMgr,
		cache:     cacheSvc,
		scheduler: scheduler,
		logger:    logger,
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	ctx := r.Context()
	status := make(map[string]interface{})

	queueStats, err := h.queue.Stats(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to collect queue stats")
		queueStats = map[string]interface{}{"error": err.Error()}
	}
	status["queue"] = queueStats

	cacheStats, err := h.cache.Stats(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to collect cache stats")
		cacheStats = map[string]int{}
	}
	status["cache"] = cacheStats

	if count, err := h.storage.IntegrationStorage().CountIntegrations(ctx); err == nil {
		status["integrations"] = count
	} else {
		h.logger.Warn().Err(err).Msg("Failed to count integrations")
	}

	jobs := make(map[string]interface{})
	for name, js := range h.scheduler.GetAllJobStatuses() {
		jobs[name] = map[string]interface{}{
			"enabled":     js.Enabled,
			"schedule":    js.Schedule,
			"description": js.Description,
			"last_run":    js.LastRun,
			"next_run":    js.NextRun,
			"is_running":  js.IsRunning,
			"last_error":  js.LastError,
		}
	}
	status["scheduler"] = map[string]interface{}{
		"running": h.scheduler.IsRunning(),
		"jobs":    jobs,
	}

	WriteJSON(w, http.StatusOK, status)
}
