package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Integrations
	mux.HandleFunc("/api/integrations", s.handleIntegrationsRoute) // GET (list), POST (create)
	mux.HandleFunc("/api/integrations/", s.handleIntegrationRoutes)

	// API routes - Teams
	mux.HandleFunc("/api/teams", s.handleTeamsRoute) // GET (list), POST (create)
	mux.HandleFunc("/api/teams/", s.handleTeamRoutes)

	// API routes - Sync jobs
	mux.HandleFunc("/api/jobs", s.app.JobHandler.ListJobsHandler)
	mux.HandleFunc("/api/jobs/", s.app.JobHandler.GetJobHandler)

	// API routes - System
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleIntegrationsRoute routes /api/integrations requests (list and create)
func (s *Server) handleIntegrationsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.IntegrationHandler.ListIntegrationsHandler(w, r)
	case "POST":
		s.app.IntegrationHandler.CreateIntegrationHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleIntegrationRoutes routes /api/integrations/{id} requests and subpaths
func (s *Server) handleIntegrationRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	// GET /api/integrations/types
	if path == "/api/integrations/types" {
		s.app.IntegrationHandler.TypesHandler(w, r)
		return
	}

	// POST /api/integrations/{id}/sync
	if strings.HasSuffix(path, "/sync") {
		s.app.IntegrationHandler.TriggerSyncHandler(w, r)
		return
	}

	// GET /api/integrations/{id}/metrics
	if strings.HasSuffix(path, "/metrics") {
		s.app.IntegrationHandler.GetMetricsHandler(w, r)
		return
	}

	// GET /api/integrations/{id}/jobs
	if strings.HasSuffix(path, "/jobs") {
		s.app.IntegrationHandler.ListJobsHandler(w, r)
		return
	}

	// /api/integrations/{id}
	switch r.Method {
	case "GET":
		s.app.IntegrationHandler.GetIntegrationHandler(w, r)
	case "PUT":
		s.app.IntegrationHandler.UpdateIntegrationHandler(w, r)
	case "DELETE":
		s.app.IntegrationHandler.DeleteIntegrationHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleTeamsRoute routes /api/teams requests (list and create)
func (s *Server) handleTeamsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.TeamHandler.ListTeamsHandler(w, r)
	case "POST":
		s.app.TeamHandler.CreateTeamHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleTeamRoutes routes /api/teams/{id} requests and subpaths
func (s *Server) handleTeamRoutes(w http.ResponseWriter, r *http.Request) {
	// GET /api/teams/{id}/metrics
	if strings.HasSuffix(r.URL.Path, "/metrics") {
		s.app.TeamHandler.GetTeamMetricsHandler(w, r)
		return
	}

	// /api/teams/{id}
	switch r.Method {
	case "GET":
		s.app.TeamHandler.GetTeamHandler(w, r)
	case "PUT":
		s.app.TeamHandler.UpdateTeamHandler(w, r)
	case "DELETE":
		s.app.TeamHandler.DeleteTeamHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
