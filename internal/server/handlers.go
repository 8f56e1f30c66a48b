package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rybkr/logarc/internal/search"
	"github.com/rybkr/logarc/internal/workspace"
)

type createWorkspaceRequest struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

type refreshWorkspaceRequest struct {
	Path string `json:"path"`
}

type searchWorkspaceRequest struct {
	Query           string `json:"query"`
	Regex           bool   `json:"regex"`
	CaseInsensitive bool   `json:"caseInsensitive"`
	Substring       bool   `json:"substring"`
	Highlight       bool   `json:"highlight"`
	Level           string `json:"level,omitempty"`
	PathPrefix      string `json:"pathPrefix,omitempty"`
	Limit           int    `json:"limit,omitempty"`
}

type workspaceResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	SourcePath string    `json:"sourcePath"`
	State      string    `json:"state"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	LastAccess time.Time `json:"lastAccess"`
}

func toWorkspaceResponse(info workspace.Info) workspaceResponse {
	return workspaceResponse{
		ID:         info.ID,
		Name:       info.Name,
		SourcePath: info.SourcePath,
		State:      info.State.String(),
		Error:      info.Error,
		CreatedAt:  info.CreatedAt,
		LastAccess: info.LastAccess,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleWorkspaces dispatches /api/workspaces: POST creates a workspace
// (create_workspace), GET lists every managed workspace.
func (s *Server) handleWorkspaces(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateWorkspace(w, r)
	case http.MethodGet:
		s.handleListWorkspaces(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCreateWorkspace(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 4096)
	var req createWorkspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Path == "" {
		http.Error(w, "Missing 'path' field", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		req.Name = req.Path
	}

	id, err := s.workspaces.Create(r.Context(), req.Name, req.Path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	info, _, _ := s.workspaces.Status(id)
	writeJSON(w, http.StatusCreated, toWorkspaceResponse(info))
}

func (s *Server) handleListWorkspaces(w http.ResponseWriter, _ *http.Request) {
	infos := s.workspaces.List()
	resp := make([]workspaceResponse, len(infos))
	for i, info := range infos {
		resp[i] = toWorkspaceResponse(info)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleWorkspaceRoutes dispatches /api/workspaces/{id}/... to the correct
// operation: load_workspace, refresh_workspace, delete_workspace,
// get_workspace_status, cancel_task, plus the metrics/validate/watch
// operations this engine adds over the command surface above.
func (s *Server) handleWorkspaceRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/workspaces/")
	if path == "" {
		http.Error(w, "Missing workspace id", http.StatusBadRequest)
		return
	}

	id := path
	remainder := ""
	if idx := strings.IndexByte(path, '/'); idx >= 0 {
		id = path[:idx]
		remainder = path[idx+1:]
	}
	if !isValidWorkspaceID(id) {
		http.Error(w, "Invalid workspace id", http.StatusBadRequest)
		return
	}

	switch {
	case remainder == "" && r.Method == http.MethodGet:
		s.handleLoadWorkspace(w, r, id)
	case remainder == "" && r.Method == http.MethodDelete:
		s.handleDeleteWorkspace(w, r, id)
	case remainder == "status" && r.Method == http.MethodGet:
		s.handleWorkspaceStatus(w, r, id)
	case remainder == "refresh" && r.Method == http.MethodPost:
		s.handleRefreshWorkspace(w, r, id)
	case remainder == "progress" && r.Method == http.MethodGet:
		s.handleWorkspaceProgress(w, r, id)
	case remainder == "metrics" && r.Method == http.MethodGet:
		s.handleWorkspaceMetrics(w, r, id)
	case remainder == "validate" && r.Method == http.MethodPost:
		s.handleWorkspaceValidate(w, r, id)
	case remainder == "watch" && r.Method == http.MethodPost:
		s.handleWatchWorkspace(w, r, id)
	case remainder == "watch" && r.Method == http.MethodDelete:
		s.handleUnwatchWorkspace(w, r, id)
	case remainder == "tasks" && r.Method == http.MethodDelete:
		s.handleCancelTask(w, r, id)
	case remainder == "search" && r.Method == http.MethodPost:
		s.handleSearchWorkspace(w, r, id)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleLoadWorkspace implements load_workspace: returns the workspace's
// info, requiring it be in the Ready state.
func (s *Server) handleLoadWorkspace(w http.ResponseWriter, r *http.Request, id string) {
	info, err := s.workspaces.Load(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toWorkspaceResponse(info))
}

// handleWorkspaceStatus implements get_workspace_status: returns the
// current state and, while ingesting, the live progress phase.
func (s *Server) handleWorkspaceStatus(w http.ResponseWriter, _ *http.Request, id string) {
	info, progress, err := s.workspaces.Status(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"workspace": toWorkspaceResponse(info),
		"progress": map[string]any{
			"phase": progress.Phase,
			"done":  progress.Done,
			"state": progress.State,
			"error": progress.Error,
		},
	})
}

// handleRefreshWorkspace implements refresh_workspace.
func (s *Server) handleRefreshWorkspace(w http.ResponseWriter, r *http.Request, id string) {
	r.Body = http.MaxBytesReader(w, r.Body, 4096)
	var req refreshWorkspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Path == "" {
		http.Error(w, "Missing 'path' field", http.StatusBadRequest)
		return
	}
	if err := s.workspaces.Refresh(r.Context(), id, req.Path); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleDeleteWorkspace implements delete_workspace.
func (s *Server) handleDeleteWorkspace(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.workspaces.Delete(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCancelTask implements cancel_task for the ingest running against
// this workspace, the only cancelable task this engine runs.
func (s *Server) handleCancelTask(w http.ResponseWriter, _ *http.Request, id string) {
	if err := s.workspaces.CancelTask(id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleWorkspaceProgress streams ingest progress as Server-Sent Events,
// the same long-lived-GET shape the teacher uses for clone progress.
func (s *Server) handleWorkspaceProgress(w http.ResponseWriter, r *http.Request, id string) {
	info, progress, err := s.workspaces.Status(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	writeEvent := func(p workspace.Progress) {
		data, _ := json.Marshal(map[string]any{
			"phase": p.Phase,
			"done":  p.Done,
			"state": p.State,
			"error": p.Error,
		})
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	if info.State == workspace.StateReady || info.State == workspace.StateError {
		writeEvent(workspace.Progress{Done: true, State: info.State.String(), Error: info.Error})
		return
	}

	writeEvent(progress)

	ch, unsubscribe := s.workspaces.SubscribeProgress(id)
	defer unsubscribe()

	for {
		select {
		case p, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(p)
			if p.Done {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// handleWorkspaceMetrics implements the metrics operation added over the
// distilled command surface: the Workspace Metrics Collector's report.
func (s *Server) handleWorkspaceMetrics(w http.ResponseWriter, r *http.Request, id string) {
	metrics, err := s.workspaces.Metrics(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

// handleWorkspaceValidate implements the validate operation added over the
// distilled command surface: the Index Validator's report.
func (s *Server) handleWorkspaceValidate(w http.ResponseWriter, r *http.Request, id string) {
	report, err := s.workspaces.Validate(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleWatchWorkspace starts a live file watch on the workspace's source
// path, auto-refreshing it as new content arrives.
func (s *Server) handleWatchWorkspace(w http.ResponseWriter, _ *http.Request, id string) {
	if err := s.workspaces.Watch(id); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleUnwatchWorkspace(w http.ResponseWriter, _ *http.Request, id string) {
	s.workspaces.StopWatch(id)
	w.WriteHeader(http.StatusNoContent)
}

// handleSearchWorkspace runs a query against the shared search engine,
// scoped to this workspace. Every call here is what feeds the auto-tuning
// index optimizer real query timings, rather than synthetic ones.
func (s *Server) handleSearchWorkspace(w http.ResponseWriter, r *http.Request, id string) {
	r.Body = http.MaxBytesReader(w, r.Body, 4096)
	var req searchWorkspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "Missing 'query' field", http.StatusBadRequest)
		return
	}

	result, err := s.workspaces.Search(r.Context(), id, search.Request{
		Query:           req.Query,
		Regex:           req.Regex,
		CaseInsensitive: req.CaseInsensitive,
		Substring:       req.Substring,
		Highlight:       req.Highlight,
		Level:           req.Level,
		PathPrefix:      req.PathPrefix,
		Limit:           req.Limit,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
