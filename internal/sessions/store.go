// Package sessions persists conversation history keyed by session ID.
package sessions

import (
	"context"
	"errors"

	"github.com/haasonsaas/concierge/pkg/models"
)

var (
	// ErrSessionNotFound is returned when a session ID has no record.
	ErrSessionNotFound = errors.New("session not found")

	// ErrMessageNotFound is returned when a message ID has no record.
	ErrMessageNotFound = errors.New("message not found")
)

// Store is the interface for session and message persistence.
//
// Implementations return defensive copies: mutating a returned session or
// message never changes stored state, and stored state changes only through
// the write methods. History returns messages oldest first.
type Store interface {
	// EnsureSession returns the session with the given ID, creating it
	// with the given agent ID if it does not exist.
	EnsureSession(ctx context.Context, sessionID, agentID string) (*models.Session, error)

	// GetSession returns a session by ID, or ErrSessionNotFound.
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)

	// UpdateSession overwrites a session's mutable fields (title,
	// metadata). Returns ErrSessionNotFound for unknown IDs.
	UpdateSession(ctx context.Context, session *models.Session) error

	// ListSessions returns sessions most recently updated first,
	// optionally filtered by agent ID.
	ListSessions(ctx context.Context, agentID string) ([]*models.Session, error)

	// DeleteSession removes a session and its messages.
	DeleteSession(ctx context.Context, sessionID string) error

	// AppendMessage adds a message to its session's history and bumps the
	// session's updated time. The message's SessionID must reference an
	// existing session.
	AppendMessage(ctx context.Context, msg *models.Message) error

	// UpdateMessage overwrites a stored message, matched by ID. Used to
	// record user decisions and resolved tool outputs on past messages.
	UpdateMessage(ctx context.Context, msg *models.Message) error

	// History returns a session's messages oldest first. A positive limit
	// returns only the most recent messages. Unknown sessions yield an
	// empty history, not an error.
	History(ctx context.Context, sessionID string, limit int) ([]models.Message, error)
}
