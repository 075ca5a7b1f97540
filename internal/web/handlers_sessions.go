package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/haasonsaas/concierge/internal/agents"
	"github.com/haasonsaas/concierge/internal/sessions"
	"github.com/haasonsaas/concierge/pkg/models"
)

type sendMessageRequest struct {
	Text string `json:"text"`
}

// newAgent builds the agent that runs a session's turn. With an MCP
// manager configured, the remote-tool variant connects each configured
// server and merges its tools first; a server that cannot connect is
// skipped so local tools keep working.
func (s *Server) newAgent(ctx context.Context, sessionID string) (*agents.ChatAgent, error) {
	if s.opts.MCP == nil {
		return agents.NewChatAgent(sessionID, s.opts.Store, s.opts.Runtime, s.logger)
	}
	remote, err := agents.NewRemoteToolAgent(sessionID, s.opts.Store, s.opts.Runtime, s.opts.MCP, s.logger)
	if err != nil {
		return nil, err
	}
	for _, cfg := range s.opts.MCPServers {
		if err := remote.AddServer(ctx, cfg); err != nil {
			s.logger.Warn("mcp server unavailable", "server", cfg.ID, "error", err)
		}
	}
	return remote.ChatAgent, nil
}

type decisionRequest struct {
	ToolCallID string `json:"tool_call_id"`
	Approved   bool   `json:"approved"`
}

// handleSendMessage runs one conversation turn and streams its chunks as
// server-sent events, one `data:` line per chunk.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	chatAgent, err := s.newAgent(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	chunks, err := chatAgent.Chat(r.Context(), req.Text)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.metrics.StreamClientConnected()
	defer s.metrics.StreamClientDisconnected()

	for chunk := range chunks {
		data, err := json.Marshal(chunk)
		if err != nil {
			s.logger.Error("encode chunk", "error", err)
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
}

// handleDecision records an approval or denial for a pending tool call.
func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ToolCallID == "" {
		writeError(w, http.StatusBadRequest, "tool_call_id is required")
		return
	}

	chatAgent, err := agents.NewChatAgent(sessionID, s.opts.Store, s.opts.Runtime, s.logger)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := chatAgent.RecordDecision(r.Context(), req.ToolCallID, req.Approved); err != nil {
		if errors.Is(err, agents.ErrNoPendingCall) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tool_call_id": req.ToolCallID,
		"approved":     req.Approved,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	history, err := s.opts.Store.History(r.Context(), sessionID, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"messages":   history,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.opts.Store.ListSessions(r.Context(), r.URL.Query().Get("agent_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []*models.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": list})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	if err := s.opts.Store.DeleteSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
