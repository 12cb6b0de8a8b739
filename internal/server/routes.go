package server

import (
	"net/http"

	"github.com/linksmith/chrono-scraper-sub002/internal/common"
)

// setupRoutes configures every HTTP route this service exposes: project and
// target management, scrape triggering, scrape-page review/bulk-override,
// full-text search, job-progress streaming, and operational endpoints.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Projects (create/list, get/update/delete, plus nested scrape/review
	// actions dispatched inside handleProjectItem).
	mux.HandleFunc("/api/projects", s.handleProjectsCollection)
	mux.HandleFunc("/api/projects/", s.handleProjectItem)

	// Full-text search over extracted Page content.
	mux.HandleFunc("/api/search", s.handleSearch)

	// Live job-progress feed: one event per job completion/failure/dead-letter.
	mux.HandleFunc("/ws", s.app.ProgressHub.HandleWebSocket)

	// Operational endpoints.
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/shutdown", s.ShutdownHandler) // dev-mode graceful shutdown

	mux.HandleFunc("/api/", notFoundHandler)

	return mux
}

// handleHealth reports process liveness and the build version; it does not
// check the Job Engine, storage, or external archive sources.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": common.GetVersion(),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": common.GetVersion()})
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "no such route: "+r.URL.Path)
}
