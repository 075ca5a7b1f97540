// Package web exposes the HTTP API: session turns streamed over SSE,
// approval decisions, history, task CRUD, health, and metrics.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/haasonsaas/concierge/internal/agent"
	"github.com/haasonsaas/concierge/internal/mcp"
	"github.com/haasonsaas/concierge/internal/observability"
	"github.com/haasonsaas/concierge/internal/schedule"
	"github.com/haasonsaas/concierge/internal/sessions"
)

// ServerOptions configures the HTTP server.
type ServerOptions struct {
	// Addr is the listen address.
	Addr string

	// Store persists sessions. Required.
	Store sessions.Store

	// Runtime drives conversation turns. Required.
	Runtime *agent.Runtime

	// Scheduler backs the task endpoints. Nil disables them with 503.
	Scheduler *schedule.Scheduler

	// AuthToken enables bearer auth on /api/ when non-empty.
	AuthToken string

	// MCP supplies remote tool servers. When non-nil, turns run through
	// the remote-tool agent, which merges each configured server's tools
	// before inference.
	MCP *mcp.Manager

	// MCPServers lists the servers the remote-tool agent connects.
	MCPServers []*mcp.ServerConfig

	// MetricsHandler serves GET /metrics when non-nil.
	MetricsHandler http.Handler

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Server is the HTTP API server.
type Server struct {
	opts       ServerOptions
	logger     *slog.Logger
	metrics    *observability.Metrics
	httpServer *http.Server
}

// NewServer validates the options and builds the server.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("web server requires a session store")
	}
	if opts.Runtime == nil {
		return nil, errors.New("web server requires a runtime")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewNopMetrics()
	}

	s := &Server{
		opts:    opts,
		logger:  opts.Logger.With("component", "web"),
		metrics: opts.Metrics,
	}
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler builds the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /api/sessions/{id}/messages", s.handleHistory)
	mux.HandleFunc("POST /api/sessions/{id}/messages", s.handleSendMessage)
	mux.HandleFunc("POST /api/sessions/{id}/decisions", s.handleDecision)

	mux.HandleFunc("GET /api/tasks", s.handleListTasks)
	mux.HandleFunc("POST /api/tasks", s.handleCreateTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.handleDeleteTask)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", s.opts.MetricsHandler)
	}

	var handler http.Handler = mux
	handler = authMiddleware(s.opts.AuthToken)(handler)
	handler = loggingMiddleware(s.logger, s.metrics)(handler)
	return handler
}

// Start serves until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.opts.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
