package server

import (
	"encoding/json"
	"net/http"
)

// healthStatus represents the server health check response.
type healthStatus struct {
	Status     string `json:"status"`
	Workspaces int    `json:"workspaces"`
}

// handleHealth returns a health check response for load balancers and
// monitoring.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthStatus{
		Status:     "ok",
		Workspaces: len(s.workspaces.List()),
	})
}

// handleConfig serves and updates the process-wide configuration: GET
// returns the configuration currently in effect, PUT validates and swaps
// in a replacement (a failed validation leaves the prior configuration
// untouched and reports the rejecting field).
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.cfg.Current())
	case http.MethodPut:
		s.handleReplaceConfig(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleReplaceConfig(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	next := s.cfg.Current()
	if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.cfg.Replace(next); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Current())
}
