// Package agents wraps the runtime in session-owning agents: a fixed-tool
// chat agent, an MCP-backed variant, and the recorder scheduled tasks use
// to drop reminders into a conversation.
package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/concierge/internal/agent"
	"github.com/haasonsaas/concierge/internal/sessions"
	"github.com/haasonsaas/concierge/pkg/models"
)

// ErrNoPendingCall means RecordDecision found no pending part for the
// given tool call ID.
var ErrNoPendingCall = errors.New("no pending tool call with that id")

// ChatAgent binds one session to a runtime with a fixed local tool set.
type ChatAgent struct {
	sessionID string
	store     sessions.Store
	runtime   *agent.Runtime
	logger    *slog.Logger
}

// NewChatAgent creates an agent for a session. An empty session ID gets a
// generated one.
func NewChatAgent(sessionID string, store sessions.Store, runtime *agent.Runtime, logger *slog.Logger) (*ChatAgent, error) {
	if store == nil {
		return nil, errors.New("chat agent requires a session store")
	}
	if runtime == nil {
		return nil, errors.New("chat agent requires a runtime")
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatAgent{
		sessionID: sessionID,
		store:     store,
		runtime:   runtime,
		logger:    logger.With("session_id", sessionID),
	}, nil
}

// SessionID returns the session this agent owns.
func (a *ChatAgent) SessionID() string {
	return a.sessionID
}

// Chat runs one conversation turn for the user's text and streams the
// result. The channel closes when the turn finishes.
func (a *ChatAgent) Chat(ctx context.Context, text string) (<-chan *models.StreamChunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("message text required")
	}

	userMsg := &models.Message{
		ID:        uuid.NewString(),
		SessionID: a.sessionID,
		Role:      models.RoleUser,
		Parts:     []models.Part{models.TextPart(text)},
		CreatedAt: time.Now().UTC(),
	}
	return a.runtime.ProcessTurn(ctx, userMsg)
}

// History returns the session's messages, oldest first.
func (a *ChatAgent) History(ctx context.Context) ([]models.Message, error) {
	return a.store.History(ctx, a.sessionID, 0)
}

// RecordDecision writes the user's approval or denial into the pending
// tool part identified by toolCallID. The decision takes effect on the
// next turn, when the resolver reconciles it.
func (a *ChatAgent) RecordDecision(ctx context.Context, toolCallID string, approved bool) error {
	if toolCallID == "" {
		return errors.New("tool call ID required")
	}

	history, err := a.store.History(ctx, a.sessionID, 0)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	// Scan newest first; the pending call is almost always in the last
	// assistant message.
	for i := len(history) - 1; i >= 0; i-- {
		msg := &history[i]
		for j := range msg.Parts {
			part := &msg.Parts[j]
			if part.ToolCallID != toolCallID || !part.Pending() {
				continue
			}

			if approved {
				part.Output = models.DecisionApproved
			} else {
				part.Output = models.DecisionDenied
			}
			part.State = models.PartOutputAvailable

			if err := a.store.UpdateMessage(ctx, msg); err != nil {
				return fmt.Errorf("persist decision: %w", err)
			}
			a.logger.Info("decision recorded",
				"tool_call_id", toolCallID,
				"approved", approved)
			return nil
		}
	}
	return ErrNoPendingCall
}
