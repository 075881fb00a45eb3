package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", s.handleStatus)

	// Crawl queue
	mux.HandleFunc("/api/jobs", s.handleJobsRoute)        // GET (list), POST (enqueue)
	mux.HandleFunc("/api/jobs/errors", s.handleJobErrors) // GET - terminal errors
	mux.HandleFunc("/api/fetchlog", s.handleFetchLog)     // GET - fetch audit trail

	// Source configuration
	mux.HandleFunc("/api/sources", s.handleSourcesList) // GET
	mux.HandleFunc("/api/sources/", s.handleSourceItem) // GET/PUT /{domain}

	// Listings and dedup
	mux.HandleFunc("/api/listings/", s.handleListingRoutes) // /{id}, /{id}/comparables, /{id}/split

	// Manual scheduler trigger
	mux.HandleFunc("/api/scheduler/run", s.handleSchedulerRun) // POST

	return mux
}

// handleJobsRoute dispatches the jobs collection by method
func (s *Server) handleJobsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleJobsList(w, r)
	case http.MethodPost:
		s.handleJobEnqueue(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleListingRoutes dispatches /api/listings/{id}[/comparables|/split]
func (s *Server) handleListingRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/listings/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "" && r.Method == http.MethodGet:
		s.handleListingGet(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "comparables" && r.Method == http.MethodGet:
		s.handleListingComparables(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "split" && r.Method == http.MethodPost:
		s.handleListingSplit(w, r, parts[0])
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}
