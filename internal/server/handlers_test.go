package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rybkr/logarc/internal/workspace"
)

func TestHandleCreateWorkspace(t *testing.T) {
	s, fake := newTestServer(t)

	body := `{"name":"demo","path":"/var/log/demo"}`
	req := httptest.NewRequest(http.MethodPost, "/api/workspaces", bytes.NewBufferString(body))
	w := httptest.NewRecorder()

	s.handleWorkspaces(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body = %s", w.Code, http.StatusCreated, w.Body.String())
	}
	var resp workspaceResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Name != "demo" || resp.SourcePath != "/var/log/demo" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if len(fake.List()) != 1 {
		t.Errorf("expected 1 workspace registered, got %d", len(fake.List()))
	}
}

func TestHandleCreateWorkspace_MissingPath(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/workspaces", bytes.NewBufferString(`{"name":"demo"}`))
	w := httptest.NewRecorder()

	s.handleWorkspaces(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleListWorkspaces(t *testing.T) {
	s, fake := newTestServer(t)
	id, err := fake.Create(t.Context(), "a", "/src/a")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/workspaces", nil)
	w := httptest.NewRecorder()
	s.handleWorkspaces(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp []workspaceResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 1 || resp[0].ID != id {
		t.Errorf("unexpected list response: %+v", resp)
	}
}

func TestHandleWorkspaceRoutes_InvalidID(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/workspaces/../etc", nil)
	w := httptest.NewRecorder()
	s.handleWorkspaceRoutes(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleWorkspaceRoutes_LoadDeleteStatus(t *testing.T) {
	s, fake := newTestServer(t)
	id, _ := fake.Create(t.Context(), "a", "/src/a")

	req := httptest.NewRequest(http.MethodGet, "/api/workspaces/"+id, nil)
	w := httptest.NewRecorder()
	s.handleWorkspaceRoutes(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("load status = %d, want %d; body=%s", w.Code, http.StatusOK, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/workspaces/"+id+"/status", nil)
	w = httptest.NewRecorder()
	s.handleWorkspaceRoutes(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status-route status = %d, want %d", w.Code, http.StatusOK)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/workspaces/"+id, nil)
	w = httptest.NewRecorder()
	s.handleWorkspaceRoutes(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want %d", w.Code, http.StatusNoContent)
	}

	if _, err := fake.Load(t.Context(), id); err == nil {
		t.Error("expected workspace to be gone after delete")
	}
}

func TestHandleWorkspaceRoutes_UnknownID(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/workspaces/doesnotexist", nil)
	w := httptest.NewRecorder()
	s.handleWorkspaceRoutes(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandleRefreshWorkspace(t *testing.T) {
	s, fake := newTestServer(t)
	id, _ := fake.Create(t.Context(), "a", "/src/a")

	body := `{"path":"/src/a-v2"}`
	req := httptest.NewRequest(http.MethodPost, "/api/workspaces/"+id+"/refresh", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	s.handleWorkspaceRoutes(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d; body=%s", w.Code, http.StatusAccepted, w.Body.String())
	}
	info, err := fake.Load(t.Context(), id)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if info.SourcePath != "/src/a-v2" {
		t.Errorf("SourcePath = %q, want updated path", info.SourcePath)
	}
}

func TestHandleWatchAndUnwatchWorkspace(t *testing.T) {
	s, fake := newTestServer(t)
	id, _ := fake.Create(t.Context(), "a", "/src/a")

	req := httptest.NewRequest(http.MethodPost, "/api/workspaces/"+id+"/watch", nil)
	w := httptest.NewRecorder()
	s.handleWorkspaceRoutes(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("watch status = %d, want %d", w.Code, http.StatusAccepted)
	}
	if !fake.watched[id] {
		t.Error("expected workspace to be marked watched")
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/workspaces/"+id+"/watch", nil)
	w = httptest.NewRecorder()
	s.handleWorkspaceRoutes(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("unwatch status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if fake.watched[id] {
		t.Error("expected workspace to be unwatched")
	}
}

func TestHandleCancelTask_NoneRunning(t *testing.T) {
	s, fake := newTestServer(t)
	id, _ := fake.Create(t.Context(), "a", "/src/a")

	req := httptest.NewRequest(http.MethodDelete, "/api/workspaces/"+id+"/tasks", nil)
	w := httptest.NewRecorder()
	s.handleWorkspaceRoutes(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandleWorkspaceProgress_TerminalState(t *testing.T) {
	s, fake := newTestServer(t)
	id, _ := fake.Create(t.Context(), "a", "/src/a")

	req := httptest.NewRequest(http.MethodGet, "/api/workspaces/"+id+"/progress", nil)
	w := httptest.NewRecorder()
	s.handleWorkspaceRoutes(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Body.String(); got == "" {
		t.Error("expected an SSE event body for a terminal-state workspace")
	}
}

func TestHandleWorkspaceMetricsAndValidate(t *testing.T) {
	s, fake := newTestServer(t)
	id, _ := fake.Create(t.Context(), "a", "/src/a")
	fake.metrics[id] = workspace.Metrics{TotalFiles: 3}
	fake.reports[id] = workspace.ValidationReport{Total: 3, Valid: 3}

	req := httptest.NewRequest(http.MethodGet, "/api/workspaces/"+id+"/metrics", nil)
	w := httptest.NewRecorder()
	s.handleWorkspaceRoutes(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want %d", w.Code, http.StatusOK)
	}
	var metrics workspace.Metrics
	if err := json.Unmarshal(w.Body.Bytes(), &metrics); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if metrics.TotalFiles != 3 {
		t.Errorf("TotalFiles = %d, want 3", metrics.TotalFiles)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/workspaces/"+id+"/validate", nil)
	w = httptest.NewRecorder()
	s.handleWorkspaceRoutes(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("validate status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestHandleConfig_GetAndPut(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	w := httptest.NewRecorder()
	s.handleConfig(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want %d", w.Code, http.StatusOK)
	}

	req = httptest.NewRequest(http.MethodPut, "/api/config", bytes.NewBufferString(`{}`))
	w = httptest.NewRecorder()
	s.handleConfig(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, want %d; body=%s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	s, fake := newTestServer(t)
	fake.Create(t.Context(), "a", "/src/a")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var status healthStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if status.Status != "ok" || status.Workspaces != 1 {
		t.Errorf("unexpected health response: %+v", status)
	}
}
