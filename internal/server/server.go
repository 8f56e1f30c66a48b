package server

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/rybkr/logarc/internal/config"
	"github.com/rybkr/logarc/internal/statesync"
	"github.com/rybkr/logarc/internal/workspace"
)

// Server contains all HTTP/WebSocket behavior for the logarc engine. Unlike
// the teacher's dual local/SaaS server, there is one mode: every workspace
// is managed the same way regardless of how many are active, so the
// local-vs-SaaS split collapses into a single Workspace Manager instance.
type Server struct {
	addr        string
	webFS       fs.FS
	rateLimiter *rateLimiter
	httpServer  *http.Server
	logger      *slog.Logger

	workspaces workspace.Service
	cfg        *config.Manager
	hub        *statesync.Hub

	ctx    context.Context
	cancel context.CancelFunc
}

// Deps bundles the collaborators a Server dispatches to. Hub is optional:
// a nil Hub disables the /api/events WebSocket endpoint.
type Deps struct {
	Workspaces workspace.Service
	Config     *config.Manager
	Hub        *statesync.Hub
	Logger     *slog.Logger
}

// New constructs a Server ready to be started. webFS serves the bundled
// frontend assets, mirroring the teacher's single-page-app hosting.
func New(deps Deps, addr string, webFS fs.FS) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:        addr,
		webFS:       webFS,
		rateLimiter: newRateLimiter(100, 200, time.Second),
		logger:      logger,
		workspaces:  deps.Workspaces,
		cfg:         deps.Config,
		hub:         deps.Hub,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins serving and blocks until the server exits or encounters a
// fatal error.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(s.webFS)))
	mux.HandleFunc("/health", s.handleHealth)

	const apiWriteDeadline = 30 * time.Second
	rl := s.rateLimiter.middleware

	mux.HandleFunc("/api/workspaces", writeDeadline(apiWriteDeadline, rl(s.handleWorkspaces)))
	mux.HandleFunc("/api/workspaces/", writeDeadline(apiWriteDeadline, rl(s.handleWorkspaceRoutes)))
	mux.HandleFunc("/api/config", writeDeadline(apiWriteDeadline, rl(s.handleConfig)))

	if s.hub != nil {
		mux.HandleFunc("/api/events", s.hub.HandleWebSocket)
	}

	handler := corsMiddleware(requestLogger(s.logger, mux))

	// WriteTimeout must remain 0 because the events WebSocket and progress
	// SSE streams are long-lived. Non-streaming handlers enforce per-
	// response write deadlines via the writeDeadline middleware instead.
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("logarc server starting", "addr", "http://"+s.addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the HTTP listener, cancels the server's
// context and stops the rate limiter. It does not close the workspace
// manager.
func (s *Server) Shutdown() {
	start := time.Now()
	s.logger.Info("server shutting down")

	if s.httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP server shutdown error", "err", err)
		}
	}

	s.cancel()
	s.rateLimiter.Close()

	s.logger.Info("server shutdown complete", "elapsed", time.Since(start).Round(time.Millisecond))
}
