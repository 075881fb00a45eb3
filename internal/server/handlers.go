package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/casaval/casaval/internal/common"
	"github.com/casaval/casaval/internal/interfaces"
	"github.com/casaval/casaval/internal/models"
	badgerstore "github.com/casaval/casaval/internal/storage/badger"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.app.Logger.Warn().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func queryInt(r *http.Request, key, fallback string) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		value = fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return n
}

// handleStatus reports queue depth per status plus build info
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	counts, err := s.app.StorageManager.Jobs().CountByStatus(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":     common.GetVersion(),
		"environment": s.app.Config.Environment,
		"jobs":        counts,
	})
}

func (s *Server) handleJobsList(w http.ResponseWriter, r *http.Request) {
	opts := &interfaces.JobListOptions{
		Status: models.JobStatus(r.URL.Query().Get("status")),
		Domain: r.URL.Query().Get("domain"),
		Limit:  queryInt(r, "limit", "100"),
	}

	jobs, err := s.app.StorageManager.Jobs().ListJobs(r.Context(), opts)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs, "count": len(jobs)})
}

type enqueueRequest struct {
	URL      string `json:"url"`
	Kind     string `json:"kind"`
	Priority int    `json:"priority"`
}

func (s *Server) handleJobEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	kind := models.JobKind(req.Kind)
	if kind == "" {
		kind = models.JobKindDetail
	}
	if kind != models.JobKindDetail && kind != models.JobKindDiscover {
		s.writeError(w, http.StatusBadRequest, "kind must be detail or discover")
		return
	}

	job, inserted, err := s.app.Scheduler.EnqueueURL(r.Context(), req.URL, kind, req.Priority)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !inserted {
		// Already queued under the same normalized URL: reported, not an error
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "skipped", "url": req.URL})
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]interface{}{"status": "queued", "job": job})
}

func (s *Server) handleJobErrors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	jobs, err := s.app.StorageManager.Jobs().ListTerminalErrors(r.Context(), queryInt(r, "limit", "50"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs, "count": len(jobs)})
}

func (s *Server) handleFetchLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	logs, err := s.app.StorageManager.Fetch().ListFetchLogs(r.Context(), r.URL.Query().Get("url"), queryInt(r, "limit", "100"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"logs": logs, "count": len(logs)})
}

func (s *Server) handleSourcesList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sources, err := s.app.StorageManager.Fetch().ListSources(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"sources": sources, "count": len(sources)})
}

type sourceUpdateRequest struct {
	Enabled    *bool `json:"enabled"`
	MinDelayMs *int  `json:"min_delay_ms"`
}

// handleSourceItem reads or updates one source's politeness configuration
func (s *Server) handleSourceItem(w http.ResponseWriter, r *http.Request) {
	domain := r.URL.Path[len("/api/sources/"):]
	if domain == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		source, err := s.app.StorageManager.Fetch().GetSource(r.Context(), domain)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if source == nil {
			s.writeError(w, http.StatusNotFound, "source not found")
			return
		}
		s.writeJSON(w, http.StatusOK, source)

	case http.MethodPut:
		var req sourceUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		source, err := s.app.StorageManager.Fetch().GetSource(r.Context(), domain)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if source == nil {
			source = &models.ListingSource{Domain: domain, Enabled: true}
		}
		if req.Enabled != nil {
			source.Enabled = *req.Enabled
		}
		if req.MinDelayMs != nil {
			source.MinDelayMs = *req.MinDelayMs
		}

		if err := s.app.StorageManager.Fetch().UpsertSource(r.Context(), source); err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, source)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleListingGet(w http.ResponseWriter, r *http.Request, id string) {
	listing, err := s.app.StorageManager.Listings().GetListing(r.Context(), id)
	if err != nil {
		if errors.Is(err, badgerstore.ErrListingNotFound) {
			s.writeError(w, http.StatusNotFound, "listing not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handleListingComparables(w http.ResponseWriter, r *http.Request, id string) {
	matches, err := s.app.StorageManager.Listings().ListMatches(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"matches": matches, "count": len(matches)})
}

// handleListingSplit forces a listing into a new singleton group
func (s *Server) handleListingSplit(w http.ResponseWriter, r *http.Request, id string) {
	groupID, err := s.app.Resolver.SplitFromGroup(r.Context(), id)
	if err != nil {
		if errors.Is(err, badgerstore.ErrListingNotFound) {
			s.writeError(w, http.StatusNotFound, "listing not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"listing_id": id, "group_id": groupID})
}

// handleSchedulerRun triggers a batch outside the cron schedule
func (s *Server) handleSchedulerRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	go func() {
		if err := s.app.Scheduler.RunBatch(context.Background()); err != nil {
			s.app.Logger.Error().Err(err).Msg("Manual batch failed")
		}
	}()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "batch started"})
}
